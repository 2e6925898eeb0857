// Package metasync keeps a shared metadata map in a crdt.Doc consistent with
// an editor state slice, in both directions.
//
// Local writes go through Set: they are applied to the editor state at once
// and mirrored into the shared map by the plugin's append hook, inside a
// transaction tagged with PluginKey. Changes to the shared map made anywhere
// else (remote peers, undo/redo, the store-direct API) reach the editor
// through a map observer that replaces the whole snapshot. Deep equality
// between the shared map and the snapshot is what stops the two paths from
// feeding each other.
package metasync

import (
	"collabtext/crdt"
	"collabtext/editor"

	"go.uber.org/zap"
)

const (
	// MapName is the name of the shared map inside the Doc.
	MapName = "da-metadata"

	// ExternalOrigin tags writes made through SetMetadata.
	ExternalOrigin = "external-api"
)

// PluginKey identifies the plugin's state slice and is the origin of every
// shared-map write the plugin performs.
var PluginKey = editor.NewPluginKey("da-metadata-sync")

type options struct {
	logger *zap.Logger
}

// Option configures NewPlugin.
type Option func(*options)

// WithLogger sets the logger for sync diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// NewPlugin returns the sync plugin for store, which should be the Doc's
// MapName map.
func NewPlugin(store *crdt.Map, opts ...Option) *editor.Plugin {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger.With(zap.String("map", store.Name()))
	w := &writer{store: store, logger: logger}

	return &editor.Plugin{
		Key: PluginKey,
		State: &editor.StateField{
			Init: func(*editor.State) any {
				return &Snapshot{values: store.ToMap()}
			},
			Apply: func(tr *editor.Transaction, value any, _, _ *editor.State) any {
				prev, _ := value.(*Snapshot)
				return reduce(tr, prev)
			},
		},
		View: func(v *editor.View) editor.PluginView {
			return observe(v, store, logger)
		},
		Props: editor.Props{
			Attributes: func(s *editor.State) map[string]string {
				return Attributes(StateOf(s))
			},
		},
		AppendTransaction: w.appendTransaction,
	}
}

// StateOf returns the plugin's snapshot in s, or nil when the plugin is not
// part of s.
func StateOf(s *editor.State) *Snapshot {
	snap, _ := PluginKey.GetState(s).(*Snapshot)
	return snap
}

// reduce is the state transition of the plugin's slice. A sync envelope
// replaces the snapshot unconditionally; the observer has already filtered
// out no-op syncs. A set envelope overwrites one key, keeping nil values
// rather than deleting the key. Everything else returns prev itself.
func reduce(tr *editor.Transaction, prev *Snapshot) *Snapshot {
	env, ok := envelopeOf(tr)
	if !ok {
		return prev
	}
	switch {
	case env.Action == ActionSyncFromYjs:
		return NewSnapshot(env.Metadata)
	case env.isSet():
		return prev.with(env.Key, env.Value)
	}
	return prev
}
