package peer

import (
	"context"
	"errors"
	"time"

	"collabtext/relay"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	outboxSize = 256
)

var errOutboxFull = errors.New("peer: relay outbox full")

// Link keeps a session connected to a relay. While connected it ships the
// session's own updates and applies everyone else's; after a reconnect it
// resends the whole document so nothing written offline is lost.
type Link struct {
	url        string
	session    *Session
	dialer     *websocket.Dialer
	logger     *zap.Logger
	newBackOff func() backoff.BackOff
}

// LinkOption configures a Link.
type LinkOption func(*Link)

// WithLinkLogger sets the link's logger.
func WithLinkLogger(l *zap.Logger) LinkOption {
	return func(k *Link) {
		k.logger = l
	}
}

// WithBackOff sets the reconnect policy. The default is an exponential
// backoff that never gives up.
func WithBackOff(fn func() backoff.BackOff) LinkOption {
	return func(k *Link) {
		k.newBackOff = fn
	}
}

// NewLink creates a link from s to the relay websocket at url, for example
// ws://localhost:8081/ws/<docID>.
func NewLink(url string, s *Session, opts ...LinkOption) *Link {
	l := &Link{
		url:     url,
		session: s,
		dialer:  websocket.DefaultDialer,
		logger:  zap.NewNop(),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.MaxElapsedTime = 0
			return b
		},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run connects and reconnects until ctx is done or the backoff policy gives
// up.
func (l *Link) Run(ctx context.Context) error {
	b := backoff.WithContext(l.newBackOff(), ctx)
	for {
		var conn *websocket.Conn
		err := backoff.RetryNotify(func() error {
			c, _, err := l.dialer.DialContext(ctx, l.url, nil)
			if err != nil {
				return err
			}
			conn = c
			return nil
		}, b, func(err error, next time.Duration) {
			l.logger.Warn("relay unreachable", zap.String("url", l.url), zap.Duration("retry", next), zap.Error(err))
		})
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			return err
		}

		l.logger.Info("connected to relay", zap.String("url", l.url))
		err = l.serve(ctx, conn)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, ErrSessionClosed) {
			return err
		}
		l.logger.Warn("relay connection lost", zap.Error(err))
	}
}

func (l *Link) serve(ctx context.Context, conn *websocket.Conn) error {
	defer conn.Close()

	out := make(chan []byte, outboxSize)
	overflow := make(chan struct{}, 1)
	unsubscribe, err := l.session.OnUpdate(func(update []byte, origin any) {
		if origin == RemoteOrigin || origin == ReplayOrigin {
			return
		}
		select {
		case out <- update:
		default:
			select {
			case overflow <- struct{}{}:
			default:
			}
		}
	})
	if err != nil {
		return err
	}
	defer unsubscribe()

	// Subscribed first, so every update after this snapshot is queued.
	state, err := l.session.EncodeState()
	if err != nil {
		return err
	}
	if err := l.send(conn, state); err != nil {
		return err
	}

	readErr := make(chan error, 1)
	go func() { readErr <- l.readLoop(conn) }()

	for {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return ctx.Err()
		case err := <-readErr:
			return err
		case <-overflow:
			return errOutboxFull
		case update := <-out:
			if err := l.send(conn, update); err != nil {
				return err
			}
		}
	}
}

func (l *Link) send(conn *websocket.Conn, update []byte) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(relay.Message{
		Type:   relay.TypeUpdate,
		DocID:  l.session.DocID(),
		PeerID: l.session.PeerID(),
		Update: update,
	})
}

func (l *Link) readLoop(conn *websocket.Conn) error {
	for {
		var m relay.Message
		if err := conn.ReadJSON(&m); err != nil {
			return err
		}
		switch m.Type {
		case relay.TypeUpdate:
			if err := l.session.ApplyRemote(m.Update); err != nil {
				if errors.Is(err, ErrSessionClosed) {
					return err
				}
				l.logger.Warn("dropping remote update", zap.String("peer", m.PeerID), zap.Error(err))
			}
		case relay.TypeReady:
			l.logger.Debug("relay replay complete")
		}
	}
}
