package crdt

import "time"

// UndoOptions configures an UndoManager.
type UndoOptions struct {
	// TrackedOrigins lists the transaction origins whose changes are
	// recorded. Origins are compared with ==, so they must be comparable.
	// When empty, only transactions with a nil origin are tracked.
	TrackedOrigins []any

	// CaptureTimeout merges tracked transactions that follow each other
	// within the timeout into one undo step. Zero disables merging.
	CaptureTimeout time.Duration

	// Now overrides the clock used for CaptureTimeout.
	Now func() time.Time
}

// StackEvent is delivered to OnStackChange handlers whenever an item is
// pushed to or popped from either stack.
type StackEvent struct {
	CanUndo bool
	CanRedo bool
}

type restore struct {
	m       *Map
	key     string
	value   any
	existed bool
}

type stackItem struct {
	restores []restore
}

func (it *stackItem) has(m *Map, key string) bool {
	for _, r := range it.restores {
		if r.m == m && r.key == key {
			return true
		}
	}
	return false
}

// UndoManager records tracked changes to a set of maps and reverts them
// last-applied-first-undone. Reverting writes inside a transaction whose
// origin is the manager itself.
type UndoManager struct {
	doc            *Doc
	scope          map[*Map]struct{}
	tracked        []any
	captureTimeout time.Duration
	now            func() time.Time

	undoStack []*stackItem
	redoStack []*stackItem
	undoing   bool
	redoing   bool
	last      time.Time

	sub      *Subscription
	onChange handlers[func(StackEvent)]
}

// NewUndoManager tracks changes to scope, which must all belong to the same
// Doc and must not be empty.
func NewUndoManager(scope []*Map, opts UndoOptions) *UndoManager {
	um := &UndoManager{
		doc:            scope[0].doc,
		scope:          make(map[*Map]struct{}, len(scope)),
		tracked:        opts.TrackedOrigins,
		captureTimeout: opts.CaptureTimeout,
		now:            opts.Now,
	}
	if len(um.tracked) == 0 {
		um.tracked = []any{nil}
	}
	if um.now == nil {
		um.now = time.Now
	}
	for _, m := range scope {
		um.scope[m] = struct{}{}
	}
	um.sub = um.doc.OnAfterTransaction(um.afterTransaction)
	return um
}

func (um *UndoManager) tracks(origin any) bool {
	for _, o := range um.tracked {
		if o == origin {
			return true
		}
	}
	return false
}

func (um *UndoManager) afterTransaction(txn *Txn) {
	item := &stackItem{}
	for m, keys := range txn.changes {
		if _, ok := um.scope[m]; !ok {
			continue
		}
		for k, c := range keys {
			item.restores = append(item.restores, restore{m: m, key: k, value: c.old, existed: c.existed})
		}
	}
	if len(item.restores) == 0 {
		return
	}

	// pop notifies once the reverting transaction has closed.
	switch {
	case um.undoing:
		um.redoStack = append(um.redoStack, item)
		return
	case um.redoing:
		um.undoStack = append(um.undoStack, item)
		return
	}
	if txn.Origin == any(um) || !um.tracks(txn.Origin) {
		return
	}
	now := um.now()
	if n := len(um.undoStack); n > 0 && um.captureTimeout > 0 && !um.last.IsZero() && now.Sub(um.last) < um.captureTimeout {
		top := um.undoStack[n-1]
		for _, r := range item.restores {
			if !top.has(r.m, r.key) {
				top.restores = append(top.restores, r)
			}
		}
	} else {
		um.undoStack = append(um.undoStack, item)
	}
	um.last = now
	um.redoStack = nil
	um.notify()
}

func (um *UndoManager) notify() {
	ev := StackEvent{CanUndo: um.CanUndo(), CanRedo: um.CanRedo()}
	um.onChange.each(func(fn func(StackEvent)) { fn(ev) })
}

func (um *UndoManager) pop(stack *[]*stackItem, flag *bool) bool {
	n := len(*stack)
	if n == 0 {
		return false
	}
	item := (*stack)[n-1]
	*stack = (*stack)[:n-1]
	*flag = true
	func() {
		defer func() { *flag = false }()
		um.doc.Transact(func(*Txn) {
			for i := len(item.restores) - 1; i >= 0; i-- {
				r := item.restores[i]
				if r.existed {
					r.m.Set(r.key, r.value)
				} else {
					r.m.Delete(r.key)
				}
			}
		}, um)
	}()
	um.last = time.Time{}
	um.notify()
	return true
}

// Undo reverts the most recent tracked change. It reports whether there was
// anything to undo.
func (um *UndoManager) Undo() bool {
	return um.pop(&um.undoStack, &um.undoing)
}

// Redo re-applies the most recently undone change.
func (um *UndoManager) Redo() bool {
	return um.pop(&um.redoStack, &um.redoing)
}

// CanUndo reports whether the undo stack is non-empty.
func (um *UndoManager) CanUndo() bool {
	return len(um.undoStack) > 0
}

// CanRedo reports whether the redo stack is non-empty.
func (um *UndoManager) CanRedo() bool {
	return len(um.redoStack) > 0
}

// StopCapturing makes the next tracked change start a new undo step even
// within the capture timeout.
func (um *UndoManager) StopCapturing() {
	um.last = time.Time{}
}

// Clear empties both stacks.
func (um *UndoManager) Clear() {
	um.undoStack = nil
	um.redoStack = nil
	um.notify()
}

// OnStackChange registers fn to run whenever either stack changes.
func (um *UndoManager) OnStackChange(fn func(StackEvent)) *Subscription {
	return um.onChange.add(fn)
}

// Destroy stops tracking and drops the stacks.
func (um *UndoManager) Destroy() {
	um.sub.Unsubscribe()
	um.onChange.clear()
	um.undoStack = nil
	um.redoStack = nil
}
