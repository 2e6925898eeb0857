// Package crdt implements a replicated document made of named
// last-writer-wins key/value maps.
//
// A Doc is not safe for concurrent use. All mutations, observer callbacks
// and update handlers run synchronously on the caller's goroutine; callers
// that share a Doc between goroutines must serialize access themselves (see
// peer.Session).
//
// Mutations are grouped into transactions tagged with an origin. Observers
// fire once the outermost transaction closes, and may start new
// transactions of their own.
package crdt

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Doc is a replicated document holding named maps.
type Doc struct {
	peerID string
	clock  uint64
	maps   map[string]*Map
	order  []*Map
	txn    *Txn
	logger *zap.Logger

	afterTxn handlers[func(*Txn)]
	updates  handlers[func([]byte, any)]

	destroyed bool
}

// DocOption configures a Doc.
type DocOption func(*Doc)

// WithPeerID sets the peer ID stamped on local writes. By default a random
// UUID is used.
func WithPeerID(id string) DocOption {
	return func(d *Doc) {
		d.peerID = id
	}
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(l *zap.Logger) DocOption {
	return func(d *Doc) {
		d.logger = l
	}
}

// NewDoc creates an empty document.
func NewDoc(opts ...DocOption) *Doc {
	d := &Doc{
		maps:   make(map[string]*Map),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.peerID == "" {
		d.peerID = uuid.NewString()
	}
	return d
}

// PeerID returns the ID stamped on writes made through this Doc.
func (d *Doc) PeerID() string {
	return d.peerID
}

// Map returns the map registered under name, creating it on first use.
func (d *Doc) Map(name string) *Map {
	if m, ok := d.maps[name]; ok {
		return m
	}
	m := &Map{doc: d, name: name, entries: make(map[string]*Entry)}
	d.maps[name] = m
	d.order = append(d.order, m)
	return m
}

// Transact runs fn inside a transaction tagged with origin. If a transaction
// is already open, fn joins it and origin is ignored. Observers, after-
// transaction handlers and update handlers run once the outermost
// transaction returns.
func (d *Doc) Transact(fn func(*Txn), origin any) {
	d.transact(fn, origin, true)
}

func (d *Doc) transact(fn func(*Txn), origin any, local bool) {
	if d.txn != nil {
		fn(d.txn)
		return
	}
	txn := &Txn{doc: d, Origin: origin, Local: local, changes: make(map[*Map]map[string]*change)}
	d.txn = txn
	func() {
		defer func() { d.txn = nil }()
		fn(txn)
	}()
	d.cleanup(txn)
}

// cleanup delivers the notifications of a closed transaction: map observers
// first, then after-transaction handlers, then the encoded update.
func (d *Doc) cleanup(txn *Txn) {
	for _, m := range d.order {
		ev := txn.event(m)
		if ev == nil {
			continue
		}
		m.observers.each(func(fn func(*MapEvent)) { fn(ev) })
	}
	d.afterTxn.each(func(fn func(*Txn)) { fn(txn) })

	if len(txn.ops) == 0 || d.updates.len() == 0 {
		return
	}
	update, err := EncodeUpdate(Update{Ops: txn.ops})
	if err != nil {
		d.logger.Error("dropping unencodable update", zap.Error(err), zap.Int("ops", len(txn.ops)))
		return
	}
	d.updates.each(func(fn func([]byte, any)) { fn(update, txn.Origin) })
}

// OnAfterTransaction registers fn to run after every transaction, including
// transactions that changed nothing.
func (d *Doc) OnAfterTransaction(fn func(*Txn)) *Subscription {
	return d.afterTxn.add(fn)
}

// OnUpdate registers fn to receive the encoded delta of every transaction
// that wrote at least one register, together with the transaction origin.
func (d *Doc) OnUpdate(fn func(update []byte, origin any)) *Subscription {
	return d.updates.add(fn)
}

// ApplyUpdate merges a remote update. Ops that lose against the local
// register are ignored, so applying the same update twice is harmless. The
// merge runs in a non-local transaction tagged with origin.
func (d *Doc) ApplyUpdate(data []byte, origin any) error {
	if d.destroyed {
		return ErrDestroyed
	}
	u, err := DecodeUpdate(data)
	if err != nil {
		return err
	}
	d.transact(func(txn *Txn) {
		for _, op := range u.Ops {
			txn.integrate(d.Map(op.Map), op.Key, op.Entry)
		}
	}, origin, false)
	return nil
}

// EncodeState encodes every register of every map, tombstones included, as
// one update. Applying it to an empty Doc reproduces this Doc's state.
func (d *Doc) EncodeState() ([]byte, error) {
	var ops []Op
	for _, m := range d.order {
		keys := make([]string, 0, len(m.entries))
		for k := range m.entries {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			ops = append(ops, Op{Map: m.name, Key: k, Entry: *m.entries[k]})
		}
	}
	data, err := EncodeUpdate(Update{Ops: ops})
	if err != nil {
		return nil, fmt.Errorf("crdt: encode state: %w", err)
	}
	return data, nil
}

// Destroy drops every observer and handler. The maps keep their contents.
func (d *Doc) Destroy() {
	if d.destroyed {
		return
	}
	d.destroyed = true
	for _, m := range d.order {
		m.observers.clear()
	}
	d.afterTxn.clear()
	d.updates.clear()
}

func (d *Doc) tick() EntryID {
	d.clock++
	return EntryID{Clock: d.clock, PeerID: d.peerID}
}

func (d *Doc) witness(id EntryID) {
	if id.Clock > d.clock {
		d.clock = id.Clock
	}
}
