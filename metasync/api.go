package metasync

import (
	"collabtext/crdt"
	"collabtext/editor"

	"go.uber.org/zap"
)

// Get returns the value of key in the view's current snapshot. The boolean
// is false when the key is absent or the view has no snapshot.
func Get(v *editor.View, key string) (any, bool) {
	if v == nil {
		return nil, false
	}
	return StateOf(v.State()).Get(key)
}

// GetAll returns a shallow copy of the view's current snapshot. Mutating
// the result does not affect the editor state.
func GetAll(v *editor.View) map[string]any {
	if v == nil {
		return make(map[string]any)
	}
	return StateOf(v.State()).Map()
}

// Set dispatches a set envelope. The new value is visible through Get as
// soon as Set returns; the shared map is written during the same dispatch.
func Set(v *editor.View, key string, value any) {
	if v == nil {
		zap.L().Warn("metadata view not provided for Set", zap.String("key", key))
		return
	}
	v.Dispatch(v.State().Tr().SetMeta(PluginKey, SetEnvelope(key, value)))
}

// SetMetadata writes key straight into doc's metadata map, tagged with
// ExternalOrigin. It is meant for callers without a live editor view. A nil
// doc logs a warning and does nothing.
func SetMetadata(doc *crdt.Doc, key string, value any) {
	if doc == nil {
		zap.L().Warn("doc not provided for SetMetadata", zap.String("key", key))
		return
	}
	m := doc.Map(MapName)
	doc.Transact(func(*crdt.Txn) {
		m.Set(key, value)
	}, ExternalOrigin)
}

// GetMetadata reads key straight from doc's metadata map. A nil doc logs a
// warning and returns nil.
func GetMetadata(doc *crdt.Doc, key string) any {
	if doc == nil {
		zap.L().Warn("doc not provided for GetMetadata", zap.String("key", key))
		return nil
	}
	return doc.Map(MapName).Get(key)
}

// GetAllMetadata materializes doc's metadata map. A nil doc logs a warning
// and returns an empty map.
func GetAllMetadata(doc *crdt.Doc) map[string]any {
	if doc == nil {
		zap.L().Warn("doc not provided for GetAllMetadata")
		return make(map[string]any)
	}
	return doc.Map(MapName).ToMap()
}
