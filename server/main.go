package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"collabtext/config"
	"collabtext/logging"
	"collabtext/persist"
	"collabtext/relay"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func main() {
	v := config.New()
	rootCmd := &cobra.Command{
		Use:   "collabtext-server",
		Short: "CollabText sync relay",
		Long: `Relays document updates between agents over websockets. Updates are
fanned out through Redis so several relays can serve the same document, and
stored in PostgreSQL so late joiners can catch up.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), v)
		},
	}

	flags := rootCmd.Flags()
	flags.String("config", "", "config file (default ./collabtext.yaml)")
	flags.String("addr", ":8081", "address to listen on")
	flags.String("redis-addr", "localhost:6379", "Redis address")
	flags.String("database-url", "", "PostgreSQL URL for the update log")
	flags.String("log-level", "info", "log level")
	v.BindPFlag("server.addr", flags.Lookup("addr"))
	v.BindPFlag("redis.addr", flags.Lookup("redis-addr"))
	v.BindPFlag("database.url", flags.Lookup("database-url"))
	v.BindPFlag("log.level", flags.Lookup("log-level"))
	cobra.OnInitialize(func() {
		if path, _ := flags.GetString("config"); path != "" {
			v.SetConfigFile(path)
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, v *viper.Viper) error {
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	defer logging.Install(logger)()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("could not connect to Redis: %w", err)
	}
	logger.Info("connected to Redis", zap.String("addr", cfg.Redis.Addr))

	opts := []relay.Option{relay.WithLogger(logger)}
	if cfg.Database.URL != "" {
		db, err := persist.OpenPostgres(ctx, cfg.Database.URL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			return err
		}
		logger.Info("connected to PostgreSQL")
		opts = append(opts, relay.WithUpdateLog(db))
	} else {
		logger.Warn("no database configured, updates will not be stored")
	}

	r := mux.NewRouter()
	relay.NewServer(rdb, opts...).Routes(r)
	srv := &http.Server{Addr: cfg.Server.Addr, Handler: r}

	errc := make(chan error, 1)
	go func() {
		logger.Info("CollabText sync server starting", zap.String("addr", cfg.Server.Addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}
