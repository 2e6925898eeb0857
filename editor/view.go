package editor

import (
	"maps"
	"slices"
	"strings"

	"go.uber.org/zap"
)

// Element is the root element a view renders into. Only attributes are
// modelled.
type Element struct {
	attrs map[string]string
}

func newElement() *Element {
	return &Element{attrs: make(map[string]string)}
}

// GetAttribute returns the attribute value and whether it is set.
func (e *Element) GetAttribute(name string) (string, bool) {
	v, ok := e.attrs[name]
	return v, ok
}

// HasAttribute reports whether the attribute is set.
func (e *Element) HasAttribute(name string) bool {
	_, ok := e.attrs[name]
	return ok
}

// Attributes returns a copy of every attribute.
func (e *Element) Attributes() map[string]string {
	return maps.Clone(e.attrs)
}

// Options configure a View.
type Options struct {
	Logger *zap.Logger
}

type updateListener struct {
	fn func(v *View, prev *State)
}

// View owns the current state of one editor and mounts plugin views.
type View struct {
	state       *State
	root        *Element
	pluginViews []PluginView
	listeners   []*updateListener
	logger      *zap.Logger

	mounted     bool
	dispatching bool
	queue       []*Transaction
}

// NewView mounts a view on state. Plugin views are created in plugin order
// after the view is mounted, so they may dispatch immediately.
func NewView(state *State, opts Options) *View {
	v := &View{
		state:  state,
		root:   newElement(),
		logger: opts.Logger,
	}
	if v.logger == nil {
		v.logger = zap.NewNop()
	}
	v.mounted = true
	v.syncAttributes()
	for _, p := range state.plugins {
		if p.View != nil {
			v.pluginViews = append(v.pluginViews, p.View(v))
		}
	}
	return v
}

// State returns the current state.
func (v *View) State() *State {
	return v.state
}

// Root returns the root element.
func (v *View) Root() *Element {
	return v.root
}

// Mounted reports whether the view is still mounted, i.e. not destroyed.
func (v *View) Mounted() bool {
	return v.mounted
}

// Dispatch applies tr, installs the resulting state and runs append hooks.
// A dispatch issued while another is in progress (from a plugin view,
// append hook or update listener) is queued and applied right after it.
// Dispatching into a destroyed view panics with ErrViewDestroyed.
func (v *View) Dispatch(tr *Transaction) {
	if !v.mounted {
		panic(ErrViewDestroyed)
	}
	if v.dispatching {
		v.queue = append(v.queue, tr)
		return
	}
	v.dispatching = true
	defer func() {
		v.dispatching = false
		v.queue = nil
	}()
	for {
		_, trs := v.state.applyTransaction(tr, v.install)
		if len(trs) > 1 {
			v.logger.Debug("plugins appended transactions", zap.Int("appended", len(trs)-1))
		}
		if len(v.queue) == 0 || !v.mounted {
			return
		}
		tr, v.queue = v.queue[0], v.queue[1:]
	}
}

// UpdateState replaces the current state without running plugins.
func (v *View) UpdateState(s *State) {
	if !v.mounted {
		panic(ErrViewDestroyed)
	}
	v.install(s)
}

func (v *View) install(s *State) {
	prev := v.state
	v.state = s
	v.syncAttributes()
	for _, pv := range v.pluginViews {
		if pv.Update != nil {
			pv.Update(v, prev)
		}
	}
	for _, l := range slices.Clone(v.listeners) {
		if !v.mounted {
			return
		}
		l.fn(v, prev)
	}
}

// OnUpdate registers fn to run after every installed state. The returned
// function removes it.
func (v *View) OnUpdate(fn func(v *View, prev *State)) (cancel func()) {
	l := &updateListener{fn: fn}
	v.listeners = append(v.listeners, l)
	return func() {
		v.listeners = slices.DeleteFunc(slices.Clone(v.listeners), func(x *updateListener) bool { return x == l })
	}
}

// Attributes computes the root attributes for the current state.
func (v *View) Attributes() map[string]string {
	return computeAttributes(v.state)
}

func computeAttributes(s *State) map[string]string {
	attrs := make(map[string]string)
	var classes []string
	for _, p := range s.plugins {
		if p.Props.Attributes == nil {
			continue
		}
		for name, value := range p.Props.Attributes(s) {
			if name == "class" {
				if value != "" {
					classes = append(classes, value)
				}
				continue
			}
			if _, taken := attrs[name]; !taken {
				attrs[name] = value
			}
		}
	}
	if len(classes) > 0 {
		attrs["class"] = strings.Join(classes, " ")
	}
	return attrs
}

func (v *View) syncAttributes() {
	next := computeAttributes(v.state)
	if maps.Equal(next, v.root.attrs) {
		return
	}
	v.root.attrs = next
}

// Destroy unmounts the view and destroys plugin views in reverse order.
// Destroying twice is a no-op.
func (v *View) Destroy() {
	if !v.mounted {
		return
	}
	v.mounted = false
	for i := len(v.pluginViews) - 1; i >= 0; i-- {
		if d := v.pluginViews[i].Destroy; d != nil {
			d()
		}
	}
	v.pluginViews = nil
	v.listeners = nil
}
