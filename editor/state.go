// Package editor is a headless transactional editor state with plugins.
//
// A State is immutable. It advances by applying a Transaction, which carries
// per-plugin metadata; every plugin with a StateField computes its next
// value from the transaction. A View owns the current state, mounts plugin
// views, and projects plugin attributes onto a root Element.
//
// Like the crdt package, nothing here is safe for concurrent use.
package editor

import (
	"errors"
	"fmt"
)

var (
	// ErrNilPluginKey is returned by Create for a plugin without a key.
	ErrNilPluginKey = errors.New("editor: plugin has no key")

	// ErrDuplicatePlugin is returned by Create when two plugins share a key.
	ErrDuplicatePlugin = errors.New("editor: duplicate plugin key")

	// ErrViewDestroyed is the panic value for dispatching into, or updating,
	// a destroyed view.
	ErrViewDestroyed = errors.New("editor: view destroyed")
)

// Config lists the plugins of a new state.
type Config struct {
	Plugins []*Plugin
}

// State is an immutable editor state.
type State struct {
	plugins []*Plugin
	fields  map[*PluginKey]any
	version uint64
}

// Create builds the initial state, running every plugin's Init in order.
func Create(cfg Config) (*State, error) {
	s := &State{fields: make(map[*PluginKey]any, len(cfg.Plugins))}
	seen := make(map[*PluginKey]bool, len(cfg.Plugins))
	for _, p := range cfg.Plugins {
		if p.Key == nil {
			return nil, ErrNilPluginKey
		}
		if seen[p.Key] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePlugin, p.Key)
		}
		seen[p.Key] = true
		s.plugins = append(s.plugins, p)
	}
	for _, p := range s.plugins {
		if p.State != nil && p.State.Init != nil {
			s.fields[p.Key] = p.State.Init(s)
		}
	}
	return s, nil
}

// Plugins returns the plugins of s in registration order.
func (s *State) Plugins() []*Plugin {
	return append([]*Plugin(nil), s.plugins...)
}

// PluginState is shorthand for key.GetState(s).
func (s *State) PluginState(key *PluginKey) any {
	return key.GetState(s)
}

// Version counts the transactions applied since Create.
func (s *State) Version() uint64 {
	return s.version
}

// Tr starts a transaction based on s.
func (s *State) Tr() *Transaction {
	return newTransaction(s)
}

// Apply returns the state that results from tr. It only runs state fields;
// use ApplyTransaction to give plugins a chance to append transactions.
func (s *State) Apply(tr *Transaction) *State {
	next := &State{
		plugins: s.plugins,
		fields:  make(map[*PluginKey]any, len(s.fields)),
		version: s.version + 1,
	}
	for _, p := range s.plugins {
		if p.State == nil {
			continue
		}
		if p.State.Apply == nil {
			next.fields[p.Key] = s.fields[p.Key]
			continue
		}
		next.fields[p.Key] = p.State.Apply(tr, s.fields[p.Key], s, next)
	}
	return next
}

// ApplyTransaction applies root and then lets plugins append transactions
// until none do. It returns the final state and every applied transaction,
// root first.
func (s *State) ApplyTransaction(root *Transaction) (*State, []*Transaction) {
	return s.applyTransaction(root, nil)
}

type seenState struct {
	state *State
	n     int
}

// applyTransaction is ApplyTransaction with an install hook, called with
// every intermediate state before append hooks see it. The view uses it so
// that side effects triggered from AppendTransaction observe the applied
// state.
func (s *State) applyTransaction(root *Transaction, install func(*State)) (*State, []*Transaction) {
	trs := []*Transaction{root}
	newState := s.Apply(root)
	if install != nil {
		install(newState)
	}
	seen := make([]*seenState, len(s.plugins))
	for {
		haveNew := false
		for i, p := range s.plugins {
			if p.AppendTransaction == nil {
				continue
			}
			n, old := 0, s
			if seen[i] != nil {
				n, old = seen[i].n, seen[i].state
			}
			if n >= len(trs) {
				continue
			}
			if tr := p.AppendTransaction(trs[n:], old, newState); tr != nil {
				newState = newState.Apply(tr)
				if install != nil {
					install(newState)
				}
				trs = append(trs, tr)
				haveNew = true
			}
			seen[i] = &seenState{state: newState, n: len(trs)}
		}
		if !haveNew {
			return newState, trs
		}
	}
}
