package editor

import "fmt"

// PluginKey identifies a plugin and the slice of state it owns. Keys compare
// by identity, so two keys created with the same name are distinct.
type PluginKey struct {
	name string
}

// NewPluginKey creates a key. The name is used only for diagnostics.
func NewPluginKey(name string) *PluginKey {
	return &PluginKey{name: name}
}

func (k *PluginKey) String() string {
	return fmt.Sprintf("PluginKey(%s)", k.name)
}

// GetState returns the plugin state stored under k in s, or nil.
func (k *PluginKey) GetState(s *State) any {
	if s == nil {
		return nil
	}
	return s.fields[k]
}

// StateField defines the slice of editor state owned by a plugin.
type StateField struct {
	// Init produces the initial value. The state passed in has every
	// earlier plugin's field initialized.
	Init func(s *State) any

	// Apply computes the next value. It must not mutate value and should
	// return value itself when the transaction does not concern it.
	Apply func(tr *Transaction, value any, oldState, newState *State) any
}

// PluginView is the per-view part of a plugin. Both hooks are optional.
type PluginView struct {
	Update  func(v *View, prev *State)
	Destroy func()
}

// Props are the rendering properties a plugin contributes to a view.
type Props struct {
	// Attributes returns attributes for the view's root element. Earlier
	// plugins win on conflicting names, except "class", which accumulates.
	Attributes func(s *State) map[string]string
}

// Plugin extends editor state and views.
type Plugin struct {
	Key   *PluginKey
	State *StateField
	View  func(v *View) PluginView
	Props Props

	// AppendTransaction runs after transactions have been applied and may
	// return one more transaction to apply, or nil. Each call receives only
	// the transactions this plugin has not seen yet.
	AppendTransaction func(trs []*Transaction, oldState, newState *State) *Transaction
}
