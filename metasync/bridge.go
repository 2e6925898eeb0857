package metasync

import (
	"collabtext/crdt"
	"collabtext/editor"

	"go.uber.org/zap"
)

// bridge carries shared-map changes into one editor view. Its subscription
// lives exactly as long as the view.
type bridge struct {
	view   *editor.View
	store  *crdt.Map
	logger *zap.Logger
	sub    *crdt.Subscription
}

func observe(v *editor.View, store *crdt.Map, logger *zap.Logger) editor.PluginView {
	b := &bridge{view: v, store: store, logger: logger}
	b.sync()
	b.sub = store.Observe(func(*crdt.MapEvent) { b.sync() })
	return editor.PluginView{Destroy: b.close}
}

// sync dispatches a snapshot replacement when the shared map and the
// view's snapshot differ.
func (b *bridge) sync() {
	candidate := &Snapshot{values: b.store.ToMap()}
	if candidate.Equal(StateOf(b.view.State())) {
		return
	}
	if !b.view.Mounted() {
		b.logger.Debug("skipping metadata sync into unmounted view")
		return
	}
	b.logger.Debug("syncing metadata from shared map", zap.Int("keys", candidate.Len()))
	tr := b.view.State().Tr().SetMeta(PluginKey, SyncEnvelope(candidate.values))
	b.view.Dispatch(tr)
}

func (b *bridge) close() {
	b.sub.Unsubscribe()
}
