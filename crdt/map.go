package crdt

import (
	"iter"
	"maps"
	"slices"
)

// Map is a last-writer-wins key/value map inside a Doc. Values are any
// CBOR-encodable Go value; setting a key to nil deletes it.
type Map struct {
	doc       *Doc
	name      string
	entries   map[string]*Entry
	observers handlers[func(*MapEvent)]
}

// Name returns the name the map is registered under.
func (m *Map) Name() string {
	return m.name
}

// Doc returns the owning document.
func (m *Map) Doc() *Doc {
	return m.doc
}

func (m *Map) lookup(key string) (any, bool) {
	e, ok := m.entries[key]
	if !ok || e.Deleted {
		return nil, false
	}
	return e.Value, true
}

// Get returns the value stored under key, or nil if the key is absent.
func (m *Map) Get(key string) any {
	v, _ := m.lookup(key)
	return v
}

// Has reports whether key is present.
func (m *Map) Has(key string) bool {
	_, ok := m.lookup(key)
	return ok
}

// Set writes value under key, joining the open transaction or opening one
// with a nil origin. A nil value deletes the key.
func (m *Map) Set(key string, value any) {
	if value == nil {
		m.Delete(key)
		return
	}
	m.doc.transact(func(txn *Txn) {
		txn.write(m, key, value, false)
	}, nil, true)
}

// Delete removes key. Deleting an absent key is a no-op.
func (m *Map) Delete(key string) {
	if !m.Has(key) {
		return
	}
	m.doc.transact(func(txn *Txn) {
		txn.write(m, key, nil, true)
	}, nil, true)
}

// Len returns the number of present keys.
func (m *Map) Len() int {
	n := 0
	for _, e := range m.entries {
		if !e.Deleted {
			n++
		}
	}
	return n
}

// Entries iterates over present keys in sorted order.
func (m *Map) Entries() iter.Seq2[string, any] {
	return func(yield func(string, any) bool) {
		for _, k := range slices.Sorted(maps.Keys(m.entries)) {
			e := m.entries[k]
			if e.Deleted {
				continue
			}
			if !yield(k, e.Value) {
				return
			}
		}
	}
}

// ToMap materializes the present entries into a new plain map.
func (m *Map) ToMap() map[string]any {
	out := make(map[string]any, len(m.entries))
	for k, v := range m.Entries() {
		out[k] = v
	}
	return out
}

// Observe registers fn to receive a MapEvent after every transaction that
// changed this map.
func (m *Map) Observe(fn func(*MapEvent)) *Subscription {
	return m.observers.add(fn)
}
