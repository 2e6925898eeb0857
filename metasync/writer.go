package metasync

import (
	"collabtext/crdt"
	"collabtext/editor"

	"go.uber.org/zap"
)

// writer mirrors applied set envelopes into the shared map.
type writer struct {
	store  *crdt.Map
	logger *zap.Logger
}

// appendTransaction writes each applied set into the shared map, skipping
// values the map already holds so that repeated sets cause no churn and no
// extra undo steps. It never appends a transaction of its own.
func (w *writer) appendTransaction(trs []*editor.Transaction, _, _ *editor.State) *editor.Transaction {
	for _, tr := range trs {
		env, ok := envelopeOf(tr)
		if !ok || !env.isSet() {
			continue
		}
		if deepEqual(w.store.Get(env.Key), env.Value) {
			continue
		}
		w.store.Doc().Transact(func(*crdt.Txn) {
			w.store.Set(env.Key, env.Value)
		}, PluginKey)
		w.logger.Debug("mirrored metadata write", zap.String("key", env.Key))
	}
	return nil
}
