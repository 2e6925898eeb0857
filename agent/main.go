package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"collabtext/config"
	"collabtext/logging"
	"collabtext/peer"
	"collabtext/persist"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func main() {
	v := config.New()
	rootCmd := &cobra.Command{
		Use:   "collabtext-agent",
		Short: "CollabText local agent",
		Long: `Hosts one document's metadata on this machine. Browser UIs connect over
/ws, scripts use the HTTP API under /api, and the document is kept in sync
with the relay and stored in a local update log.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), v)
		},
	}

	flags := rootCmd.Flags()
	flags.String("config", "", "config file (default ./collabtext.yaml)")
	flags.String("addr", ":8080", "address to listen on")
	flags.String("doc", "test-doc", "document ID")
	flags.String("relay", "ws://localhost:8081", "relay base URL, empty to run offline")
	flags.String("data", "collabtext-agent.db", "local update log file")
	flags.String("ui", "../ui", "directory with the browser UI")
	flags.Bool("discovery", true, "advertise and browse for agents over mDNS")
	flags.String("log-level", "info", "log level")
	v.BindPFlag("agent.addr", flags.Lookup("addr"))
	v.BindPFlag("agent.doc_id", flags.Lookup("doc"))
	v.BindPFlag("agent.relay_url", flags.Lookup("relay"))
	v.BindPFlag("agent.log_path", flags.Lookup("data"))
	v.BindPFlag("agent.ui_dir", flags.Lookup("ui"))
	v.BindPFlag("agent.discovery", flags.Lookup("discovery"))
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
	ac := cfg.Agent
	port, err := listenPort(ac.Addr)
	if err != nil {
		return err
	}

	log, err := persist.OpenBolt(ac.LogPath)
	if err != nil {
		return err
	}
	session, err := peer.NewSession(ctx, peer.SessionConfig{
		DocID:          ac.DocID,
		PeerID:         ac.PeerID,
		Log:            log,
		CaptureTimeout: ac.CaptureTimeout,
		Logger:         logger,
	})
	if err != nil {
		log.Close()
		return err
	}
	defer session.Close()
	logger.Info("session started", zap.String("doc", ac.DocID), zap.String("peer", session.PeerID()))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var wg sync.WaitGroup
	background := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && ctx.Err() == nil {
				logger.Error(name+" stopped", zap.Error(err))
			}
		}()
	}

	hub := peer.NewHub(session, logger)
	background("hub", hub.Run)

	if url := ac.DocURL(); url != "" {
		background("relay link", peer.NewLink(url, session, peer.WithLinkLogger(logger)).Run)
	} else {
		logger.Warn("no relay configured, running offline")
	}

	if ac.Discovery {
		d := peer.NewDiscovery(ac.DocID, port, logger)
		background("discovery", func(ctx context.Context) error { return d.Run(ctx, nil) })
	}

	r := mux.NewRouter()
	peer.NewAPI(session, logger).Routes(r.PathPrefix("/api").Subrouter())
	r.HandleFunc("/ws", hub.ServeWS)
	r.PathPrefix("/").Handler(http.FileServer(http.Dir(ac.UIDir)))
	srv := &http.Server{Addr: ac.Addr, Handler: r}

	errc := make(chan error, 1)
	go func() {
		logger.Info("CollabText agent is running", zap.String("addr", ac.Addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err = <-errc:
		err = fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	srv.Shutdown(shutdownCtx)
	cancel()
	wg.Wait()
	return err
}

func listenPort(addr string) (int, error) {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, fmt.Errorf("invalid agent.addr %q: %w", addr, err)
	}
	return strconv.Atoi(port)
}
