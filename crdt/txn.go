package crdt

// Txn is an open or closed grouped mutation.
type Txn struct {
	doc *Doc

	// Origin is the tag passed to Transact or ApplyUpdate.
	Origin any

	// Local is false for transactions created by ApplyUpdate.
	Local bool

	changes map[*Map]map[string]*change
	ops     []Op
}

type change struct {
	old     any
	existed bool
}

// Action describes what happened to a key within one transaction.
type Action string

const (
	ActionAdd    Action = "add"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// KeyChange describes the net effect of a transaction on one key.
type KeyChange struct {
	Action   Action
	OldValue any
}

// MapEvent is delivered to map observers after a transaction that changed
// the map.
type MapEvent struct {
	Target *Map
	Txn    *Txn
	Keys   map[string]KeyChange
}

// Doc returns the document the transaction belongs to.
func (t *Txn) Doc() *Doc {
	return t.doc
}

// Changed reports whether the transaction touched m.
func (t *Txn) Changed(m *Map) bool {
	return len(t.changes[m]) > 0
}

func (t *Txn) record(m *Map, key string) {
	keys := t.changes[m]
	if keys == nil {
		keys = make(map[string]*change)
		t.changes[m] = keys
	}
	if _, seen := keys[key]; seen {
		return
	}
	old, existed := m.lookup(key)
	keys[key] = &change{old: old, existed: existed}
}

func (t *Txn) write(m *Map, key string, value any, deleted bool) {
	t.record(m, key)
	e := &Entry{ID: t.doc.tick(), Deleted: deleted}
	if !deleted {
		e.Value = value
	}
	m.entries[key] = e
	t.ops = append(t.ops, Op{Map: m.name, Key: key, Entry: *e})
}

func (t *Txn) integrate(m *Map, key string, remote Entry) {
	t.doc.witness(remote.ID)
	if cur, ok := m.entries[key]; ok && !remote.ID.Newer(cur.ID) {
		return
	}
	t.record(m, key)
	e := remote
	if e.Deleted {
		e.Value = nil
	}
	m.entries[key] = &e
	t.ops = append(t.ops, Op{Map: m.name, Key: key, Entry: e})
}

// event computes the net key changes of m, dropping keys that were absent
// both before and after the transaction.
func (t *Txn) event(m *Map) *MapEvent {
	keys := t.changes[m]
	if len(keys) == 0 {
		return nil
	}
	out := make(map[string]KeyChange, len(keys))
	for k, c := range keys {
		_, exists := m.lookup(k)
		switch {
		case !c.existed && exists:
			out[k] = KeyChange{Action: ActionAdd}
		case c.existed && !exists:
			out[k] = KeyChange{Action: ActionDelete, OldValue: c.old}
		case c.existed && exists:
			out[k] = KeyChange{Action: ActionUpdate, OldValue: c.old}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return &MapEvent{Target: m, Txn: t, Keys: out}
}
