// Package history exposes a crdt.UndoManager to editor views as a plugin
// with undo and redo commands.
//
// Undo and redo change the shared maps directly; plugins observing those
// maps (metasync) carry the result back into the editor state.
package history

import (
	"collabtext/crdt"
	"collabtext/editor"
)

// PluginKey identifies the history plugin.
var PluginKey = editor.NewPluginKey("y-undo")

// State is the history plugin's slice of editor state.
type State struct {
	UndoManager *crdt.UndoManager
	CanUndo     bool
	CanRedo     bool
}

type stackMeta struct {
	canUndo, canRedo bool
}

// NewPlugin binds um to editor states built with the returned plugin.
func NewPlugin(um *crdt.UndoManager) *editor.Plugin {
	return &editor.Plugin{
		Key: PluginKey,
		State: &editor.StateField{
			Init: func(*editor.State) any {
				return &State{UndoManager: um, CanUndo: um.CanUndo(), CanRedo: um.CanRedo()}
			},
			Apply: func(tr *editor.Transaction, value any, _, _ *editor.State) any {
				meta, ok := tr.GetMeta(PluginKey).(stackMeta)
				if !ok {
					return value
				}
				return &State{UndoManager: um, CanUndo: meta.canUndo, CanRedo: meta.canRedo}
			},
		},
		View: func(v *editor.View) editor.PluginView {
			sub := um.OnStackChange(func(ev crdt.StackEvent) {
				if !v.Mounted() {
					return
				}
				v.Dispatch(v.State().Tr().SetMeta(PluginKey, stackMeta{canUndo: ev.CanUndo, canRedo: ev.CanRedo}))
			})
			return editor.PluginView{Destroy: sub.Unsubscribe}
		},
	}
}

// StateOf returns the history state in s, or nil.
func StateOf(s *editor.State) *State {
	st, _ := PluginKey.GetState(s).(*State)
	return st
}

// Undo reverts the last tracked change. With a nil dispatch it only reports
// whether there is something to undo.
func Undo(s *editor.State, dispatch func(*editor.Transaction)) bool {
	st := StateOf(s)
	if st == nil || st.UndoManager == nil {
		return false
	}
	if dispatch == nil {
		return st.UndoManager.CanUndo()
	}
	return st.UndoManager.Undo()
}

// Redo re-applies the last undone change. With a nil dispatch it only
// reports whether there is something to redo.
func Redo(s *editor.State, dispatch func(*editor.Transaction)) bool {
	st := StateOf(s)
	if st == nil || st.UndoManager == nil {
		return false
	}
	if dispatch == nil {
		return st.UndoManager.CanRedo()
	}
	return st.UndoManager.Redo()
}
