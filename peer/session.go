// Package peer runs a metadata session on the local agent: one document and
// editor view, synced with a relay, persisted to a local update log and
// exposed to browser UIs and an HTTP API.
//
// A crdt.Doc and an editor.View are single-threaded. Session owns both and
// runs every access on one event loop goroutine; everything else in this
// package goes through Session.Do.
package peer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"collabtext/crdt"
	"collabtext/editor"
	"collabtext/history"
	"collabtext/metasync"
	"collabtext/persist"

	"go.uber.org/zap"
)

// ErrSessionClosed is returned by operations on a closed Session.
var ErrSessionClosed = errors.New("peer: session closed")

type sessionOrigin string

// Origins of transactions the session applies on behalf of others.
const (
	// RemoteOrigin tags updates received from the relay.
	RemoteOrigin = sessionOrigin("relay")
	// ReplayOrigin tags updates replayed from the local update log.
	ReplayOrigin = sessionOrigin("replay")
)

const logTimeout = 5 * time.Second

// SessionConfig configures a Session.
type SessionConfig struct {
	DocID  string
	PeerID string

	// Log, if set, is replayed when the session starts and receives every
	// later update. The session closes it.
	Log persist.UpdateLog

	// CaptureTimeout merges local edits made within the interval into one
	// undo step.
	CaptureTimeout time.Duration

	Logger *zap.Logger
}

type call struct {
	fn   func()
	done chan result
}

type result struct {
	recovered any
	err       error
}

// Session owns a document, its metadata map, an undo manager and an editor
// view wired with the metadata and history plugins.
type Session struct {
	docID  string
	doc    *crdt.Doc
	undo   *crdt.UndoManager
	view   *editor.View
	log    persist.UpdateLog
	logger *zap.Logger

	calls     chan call
	closed    chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once

	// closing is set on the loop goroutine once teardown starts. Calls
	// that reach the loop after it fail with ErrSessionClosed.
	closing bool
}

// NewSession builds a session and starts its event loop.
func NewSession(ctx context.Context, cfg SessionConfig) (*Session, error) {
	if cfg.DocID == "" {
		return nil, persist.ErrEmptyDocID
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("doc", cfg.DocID))

	doc := crdt.NewDoc(crdt.WithPeerID(cfg.PeerID), crdt.WithLogger(logger))
	store := doc.Map(metasync.MapName)

	if cfg.Log != nil {
		updates, err := cfg.Log.Load(ctx, cfg.DocID)
		if err != nil {
			return nil, fmt.Errorf("failed to load update log: %w", err)
		}
		for i, u := range updates {
			if err := doc.ApplyUpdate(u, ReplayOrigin); err != nil {
				logger.Warn("skipping bad logged update", zap.Int("index", i), zap.Error(err))
			}
		}
		logger.Info("replayed update log", zap.Int("updates", len(updates)), zap.Int("keys", store.Len()))
	}

	undo := crdt.NewUndoManager([]*crdt.Map{store}, crdt.UndoOptions{
		TrackedOrigins: []any{nil, metasync.PluginKey},
		CaptureTimeout: cfg.CaptureTimeout,
	})
	state, err := editor.Create(editor.Config{Plugins: []*editor.Plugin{
		metasync.NewPlugin(store, metasync.WithLogger(logger)),
		history.NewPlugin(undo),
	}})
	if err != nil {
		return nil, err
	}

	s := &Session{
		docID:   cfg.DocID,
		doc:     doc,
		undo:    undo,
		log:     cfg.Log,
		logger:  logger,
		calls:   make(chan call),
		closed:  make(chan struct{}),
		stopped: make(chan struct{}),
	}
	s.view = editor.NewView(state, editor.Options{Logger: logger})
	if s.log != nil {
		doc.OnUpdate(s.appendLog)
	}
	go s.loop()
	return s, nil
}

func (s *Session) loop() {
	defer close(s.stopped)
	for {
		select {
		case c := <-s.calls:
			if s.closing {
				c.done <- result{err: ErrSessionClosed}
				continue
			}
			c.done <- result{recovered: run(c.fn)}
		case <-s.closed:
			return
		}
	}
}

func run(fn func()) (recovered any) {
	defer func() { recovered = recover() }()
	fn()
	return nil
}

// Do runs fn on the event loop and waits for it to return. A panic in fn is
// re-raised in the caller. fn must not call Do itself.
func (s *Session) Do(fn func()) error {
	c := call{fn: fn, done: make(chan result, 1)}
	select {
	case s.calls <- c:
	case <-s.closed:
		return ErrSessionClosed
	}
	r := <-c.done
	if r.recovered != nil {
		panic(r.recovered)
	}
	return r.err
}

func (s *Session) appendLog(update []byte, origin any) {
	if origin == ReplayOrigin {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), logTimeout)
	defer cancel()
	if err := s.log.Append(ctx, s.docID, s.doc.PeerID(), update); err != nil {
		s.logger.Error("failed to persist update", zap.Error(err))
	}
}

// DocID returns the session's document ID.
func (s *Session) DocID() string {
	return s.docID
}

// PeerID returns the ID stamped on this session's writes.
func (s *Session) PeerID() string {
	return s.doc.PeerID()
}

// Get returns the metadata value for key as seen by the editor.
func (s *Session) Get(key string) (value any, ok bool, err error) {
	err = s.Do(func() { value, ok = metasync.Get(s.view, key) })
	return value, ok, err
}

// GetAll returns a copy of all metadata as seen by the editor.
func (s *Session) GetAll() (all map[string]any, err error) {
	err = s.Do(func() { all = metasync.GetAll(s.view) })
	return all, err
}

// Set writes key through the editor.
func (s *Session) Set(key string, value any) error {
	return s.Do(func() { metasync.Set(s.view, key, value) })
}

// Undo reverts the last tracked change. It reports whether there was one.
func (s *Session) Undo() (ok bool, err error) {
	err = s.Do(func() { ok = history.Undo(s.view.State(), s.view.Dispatch) })
	return ok, err
}

// Redo reapplies the last undone change.
func (s *Session) Redo() (ok bool, err error) {
	err = s.Do(func() { ok = history.Redo(s.view.State(), s.view.Dispatch) })
	return ok, err
}

// Attributes returns the view's root attributes.
func (s *Session) Attributes() (attrs map[string]string, err error) {
	err = s.Do(func() { attrs = s.view.Attributes() })
	return attrs, err
}

// ApplyRemote merges an update received from the relay.
func (s *Session) ApplyRemote(update []byte) error {
	var applyErr error
	if err := s.Do(func() { applyErr = s.doc.ApplyUpdate(update, RemoteOrigin) }); err != nil {
		return err
	}
	return applyErr
}

// EncodeState returns the whole document as one update.
func (s *Session) EncodeState() (state []byte, err error) {
	var encErr error
	if err := s.Do(func() { state, encErr = s.doc.EncodeState() }); err != nil {
		return nil, err
	}
	return state, encErr
}

// OnUpdate calls fn on the event loop with every encoded update and its
// origin. fn must not block or call back into the session. The returned
// cancel function removes fn.
func (s *Session) OnUpdate(fn func(update []byte, origin any)) (cancel func(), err error) {
	var sub *crdt.Subscription
	if err := s.Do(func() { sub = s.doc.OnUpdate(fn) }); err != nil {
		return nil, err
	}
	return func() { s.Do(sub.Unsubscribe) }, nil
}

// OnAttributes calls fn on the event loop with the current root attributes
// and again after every view update. fn must not call back into the session.
func (s *Session) OnAttributes(fn func(map[string]string)) (cancel func(), err error) {
	var remove func()
	err = s.Do(func() {
		fn(s.view.Attributes())
		remove = s.view.OnUpdate(func(v *editor.View, _ *editor.State) { fn(v.Attributes()) })
	})
	if err != nil {
		return nil, err
	}
	return func() { s.Do(remove) }, nil
}

// Close destroys the view, the undo manager and the document, stops the
// event loop and closes the update log. It is safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.Do(func() {
			s.closing = true
			s.view.Destroy()
			s.undo.Destroy()
			s.doc.Destroy()
		})
		close(s.closed)
		<-s.stopped
		if s.log != nil {
			err = s.log.Close()
		}
	})
	return err
}
