// Package relay fans document updates out between websocket peers. Each
// server instance subscribes to a Redis channel per document, so peers
// connected to different instances still see each other's updates.
package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"collabtext/crdt"
	"collabtext/persist"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const writeWait = 10 * time.Second

// Server relays updates for any number of documents.
type Server struct {
	rdb      *redis.Client
	log      persist.UpdateLog
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// Option configures a Server.
type Option func(*Server)

// WithUpdateLog stores every relayed update and replays the log to peers as
// they connect.
func WithUpdateLog(l persist.UpdateLog) Option {
	return func(s *Server) {
		s.log = l
	}
}

// WithLogger sets the server's logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// NewServer creates a relay publishing through rdb.
func NewServer(rdb *redis.Client, opts ...Option) *Server {
	s := &Server{
		rdb:    rdb,
		logger: zap.NewNop(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes registers the relay's handlers on r.
func (s *Server) Routes(r *mux.Router) {
	r.HandleFunc("/ws/{docID}", s.handleConnections)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
}

func (s *Server) handleConnections(w http.ResponseWriter, r *http.Request) {
	docID := mux.Vars(r)["docID"]
	connID := uuid.NewString()
	logger := s.logger.With(zap.String("doc", docID), zap.String("conn", connID))

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer ws.Close()
	logger.Info("new connection")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Subscribe before replaying so nothing published in between is lost.
	pubsub := s.rdb.Subscribe(ctx, Channel(docID))
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		logger.Error("could not subscribe", zap.Error(err))
		return
	}

	if err := s.replay(ctx, ws, docID); err != nil {
		logger.Error("replay failed", zap.Error(err))
		return
	}
	if err := writeJSON(ws, Message{Type: TypeReady, DocID: docID}); err != nil {
		return
	}

	go s.forward(ws, pubsub.Channel(), connID, logger)

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			logger.Info("client disconnected", zap.Error(err))
			return
		}
		s.receive(ctx, data, docID, connID, logger)
	}
}

func (s *Server) replay(ctx context.Context, ws *websocket.Conn, docID string) error {
	if s.log == nil {
		return nil
	}
	updates, err := s.log.Load(ctx, docID)
	if err != nil {
		return err
	}
	for _, u := range updates {
		if err := writeJSON(ws, Message{Type: TypeUpdate, DocID: docID, Update: u}); err != nil {
			return err
		}
	}
	return nil
}

// forward relays Redis messages to the client, skipping the client's own.
// It is the connection's only writer once the replay is done.
func (s *Server) forward(ws *websocket.Conn, ch <-chan *redis.Message, connID string, logger *zap.Logger) {
	for msg := range ch {
		var m Message
		if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
			logger.Warn("dropping malformed redis message", zap.Error(err))
			continue
		}
		if m.Sender == connID {
			continue
		}
		ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := ws.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
			logger.Warn("error writing message to client", zap.Error(err))
			return
		}
	}
}

func (s *Server) receive(ctx context.Context, data []byte, docID, connID string, logger *zap.Logger) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		logger.Warn("error decoding message", zap.Error(err))
		return
	}
	if m.Type != TypeUpdate {
		return
	}
	if _, err := crdt.DecodeUpdate(m.Update); err != nil {
		logger.Warn("rejecting update", zap.Error(err))
		return
	}
	if s.log != nil {
		if err := s.log.Append(ctx, docID, m.PeerID, m.Update); err != nil {
			logger.Error("error storing update", zap.Error(err))
			return
		}
	}

	m.DocID = docID
	m.Sender = connID
	payload, err := json.Marshal(m)
	if err != nil {
		logger.Error("error encoding message", zap.Error(err))
		return
	}
	if err := s.rdb.Publish(ctx, Channel(docID), payload).Err(); err != nil {
		logger.Error("error publishing to redis", zap.Error(err))
	}
}

type pinger interface {
	Ping(ctx context.Context) error
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"redis": "ok"}
	code := http.StatusOK
	if err := s.rdb.Ping(r.Context()).Err(); err != nil {
		status["redis"] = err.Error()
		code = http.StatusServiceUnavailable
	}
	if p, ok := s.log.(pinger); ok {
		status["updateLog"] = "ok"
		if err := p.Ping(r.Context()); err != nil {
			status["updateLog"] = err.Error()
			code = http.StatusServiceUnavailable
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(status)
}

func writeJSON(ws *websocket.Conn, m Message) error {
	ws.SetWriteDeadline(time.Now().Add(writeWait))
	return ws.WriteJSON(m)
}
