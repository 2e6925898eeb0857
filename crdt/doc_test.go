package crdt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapSetGet(t *testing.T) {
	doc := NewDoc()
	m := doc.Map("meta")

	assert.Nil(t, m.Get("missing"))
	assert.False(t, m.Has("missing"))

	m.Set("foo", "bar")
	m.Set("baz", 123)

	assert.Equal(t, "bar", m.Get("foo"))
	assert.Equal(t, 123, m.Get("baz"))
	assert.Equal(t, 2, m.Len())
	assert.Equal(t, map[string]any{"foo": "bar", "baz": 123}, m.ToMap())
	assert.Same(t, m, doc.Map("meta"))
}

func TestMapSetNilDeletes(t *testing.T) {
	m := NewDoc().Map("meta")
	m.Set("k", "v")
	m.Set("k", nil)

	assert.False(t, m.Has("k"))
	assert.Equal(t, 0, m.Len())
	assert.Empty(t, m.ToMap())
}

func TestMapEntriesSorted(t *testing.T) {
	m := NewDoc().Map("meta")
	m.Set("b", 2)
	m.Set("a", 1)
	m.Set("c", 3)
	m.Delete("c")

	var keys []string
	for k := range m.Entries() {
		keys = append(keys, k)
	}
	assert.Equal(t, []string{"a", "b"}, keys)
}

func TestObserveFiresAfterOutermostTransaction(t *testing.T) {
	doc := NewDoc()
	m := doc.Map("meta")

	var events []*MapEvent
	sub := m.Observe(func(ev *MapEvent) {
		// Observers see the committed state.
		assert.Equal(t, "v2", m.Get("k"))
		events = append(events, ev)
	})
	defer sub.Unsubscribe()

	doc.Transact(func(txn *Txn) {
		m.Set("k", "v1")
		doc.Transact(func(*Txn) {
			m.Set("k", "v2")
		}, "inner")
		assert.Empty(t, events)
	}, "outer")

	require.Len(t, events, 1)
	assert.Equal(t, "outer", events[0].Txn.Origin)
	assert.True(t, events[0].Txn.Local)
	assert.Equal(t, KeyChange{Action: ActionAdd}, events[0].Keys["k"])
}

func TestObserveReportsActions(t *testing.T) {
	doc := NewDoc()
	m := doc.Map("meta")
	m.Set("upd", 1)
	m.Set("del", 2)

	var ev *MapEvent
	m.Observe(func(e *MapEvent) { ev = e })

	doc.Transact(func(*Txn) {
		m.Set("upd", 10)
		m.Delete("del")
		m.Set("add", 3)
		m.Set("transient", 4)
		m.Delete("transient")
	}, nil)

	require.NotNil(t, ev)
	assert.Equal(t, map[string]KeyChange{
		"upd": {Action: ActionUpdate, OldValue: 1},
		"del": {Action: ActionDelete, OldValue: 2},
		"add": {Action: ActionAdd},
	}, ev.Keys)
}

func TestObserveSkipsNoopTransactions(t *testing.T) {
	doc := NewDoc()
	m := doc.Map("meta")
	calls := 0
	m.Observe(func(*MapEvent) { calls++ })

	doc.Transact(func(*Txn) {}, nil)
	m.Delete("absent")

	assert.Equal(t, 0, calls)
}

func TestUnsubscribe(t *testing.T) {
	m := NewDoc().Map("meta")
	calls := 0
	sub := m.Observe(func(*MapEvent) { calls++ })

	m.Set("a", 1)
	sub.Unsubscribe()
	sub.Unsubscribe()
	m.Set("a", 2)

	assert.Equal(t, 1, calls)
}

func TestObserverMayTransact(t *testing.T) {
	doc := NewDoc()
	m := doc.Map("meta")
	m.Observe(func(ev *MapEvent) {
		if _, ok := ev.Keys["src"]; ok {
			m.Set("mirror", m.Get("src"))
		}
	})

	m.Set("src", "x")

	assert.Equal(t, "x", m.Get("mirror"))
}

func TestUpdateRoundTrip(t *testing.T) {
	a := NewDoc(WithPeerID("a"))
	b := NewDoc(WithPeerID("b"))
	a.OnUpdate(func(update []byte, origin any) {
		require.NoError(t, b.ApplyUpdate(update, "remote"))
	})

	var remoteEvents []*MapEvent
	b.Map("meta").Observe(func(ev *MapEvent) { remoteEvents = append(remoteEvents, ev) })

	a.Map("meta").Set("title", "Hello")
	a.Map("meta").Set("tags", []any{"x", "y"})
	a.Map("meta").Delete("title")

	assert.Equal(t, map[string]any{"tags": []any{"x", "y"}}, b.Map("meta").ToMap())
	require.Len(t, remoteEvents, 3)
	assert.False(t, remoteEvents[0].Txn.Local)
	assert.Equal(t, "remote", remoteEvents[0].Txn.Origin)
}

func TestApplyUpdateLastWriterWins(t *testing.T) {
	a := NewDoc(WithPeerID("a"))
	b := NewDoc(WithPeerID("b"))

	a.Map("meta").Set("k", "from-a")
	b.Map("meta").Set("k", "from-b")

	stateA, err := a.EncodeState()
	require.NoError(t, err)
	stateB, err := b.EncodeState()
	require.NoError(t, err)

	require.NoError(t, a.ApplyUpdate(stateB, nil))
	require.NoError(t, b.ApplyUpdate(stateA, nil))

	// Equal clocks: the higher peer ID wins on both replicas.
	assert.Equal(t, "from-b", a.Map("meta").Get("k"))
	assert.Equal(t, "from-b", b.Map("meta").Get("k"))

	// The next local write on a outranks everything it has seen.
	a.Map("meta").Set("k", "again")
	stateA, err = a.EncodeState()
	require.NoError(t, err)
	require.NoError(t, b.ApplyUpdate(stateA, nil))
	assert.Equal(t, "again", b.Map("meta").Get("k"))
}

func TestApplyUpdateIsIdempotent(t *testing.T) {
	a := NewDoc(WithPeerID("a"))
	a.Map("meta").Set("k", "v")
	state, err := a.EncodeState()
	require.NoError(t, err)

	b := NewDoc(WithPeerID("b"))
	calls := 0
	b.Map("meta").Observe(func(*MapEvent) { calls++ })

	require.NoError(t, b.ApplyUpdate(state, nil))
	require.NoError(t, b.ApplyUpdate(state, nil))

	assert.Equal(t, 1, calls)
	assert.Equal(t, "v", b.Map("meta").Get("k"))
}

func TestTombstoneBeatsOlderWrite(t *testing.T) {
	a := NewDoc(WithPeerID("a"))
	a.Map("meta").Set("k", "v")
	older, err := a.EncodeState()
	require.NoError(t, err)
	a.Map("meta").Delete("k")

	require.NoError(t, a.ApplyUpdate(older, nil))
	assert.False(t, a.Map("meta").Has("k"))
}

func TestApplyUpdateRejectsGarbage(t *testing.T) {
	doc := NewDoc()

	err := doc.ApplyUpdate([]byte("not cbor"), nil)
	assert.ErrorIs(t, err, ErrMalformedUpdate)

	bad, err := EncodeUpdate(Update{Ops: []Op{{Map: "meta", Key: "k"}}})
	require.NoError(t, err)
	assert.ErrorIs(t, doc.ApplyUpdate(bad, nil), ErrMalformedUpdate)
}

func TestDestroy(t *testing.T) {
	doc := NewDoc()
	m := doc.Map("meta")
	calls := 0
	m.Observe(func(*MapEvent) { calls++ })

	doc.Destroy()
	m.Set("k", "v")

	assert.Equal(t, 0, calls)
	assert.ErrorIs(t, doc.ApplyUpdate(nil, nil), ErrDestroyed)
}
