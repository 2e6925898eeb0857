package editor

import "time"

// Transaction describes one step from a state to the next. The editor's
// document content is out of scope here; a transaction only carries
// metadata addressed to plugins.
type Transaction struct {
	before *State
	time   time.Time
	meta   map[any]any
}

func newTransaction(s *State) *Transaction {
	return &Transaction{before: s, time: time.Now(), meta: make(map[any]any)}
}

// SetMeta stores metadata under key, usually a *PluginKey. It returns tr so
// calls can be chained.
func (tr *Transaction) SetMeta(key, value any) *Transaction {
	tr.meta[key] = value
	return tr
}

// GetMeta returns the metadata stored under key, or nil.
func (tr *Transaction) GetMeta(key any) any {
	return tr.meta[key]
}

// Before returns the state the transaction was started from.
func (tr *Transaction) Before() *State {
	return tr.before
}

// Time returns when the transaction was created.
func (tr *Transaction) Time() time.Time {
	return tr.time
}
