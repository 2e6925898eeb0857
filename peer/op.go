package peer

import "fmt"

// Actions a browser UI can send over the hub websocket.
const (
	ActionSet  = "set"
	ActionUndo = "undo"
	ActionRedo = "redo"
)

// Op is a UI request. Key and Value are used by "set" only; a null value
// removes the key.
type Op struct {
	Action string `json:"action"`
	Key    string `json:"key,omitempty"`
	Value  any    `json:"value,omitempty"`
}

// apply runs op against the session.
func (op Op) apply(s *Session) error {
	switch op.Action {
	case ActionSet:
		return s.Set(op.Key, op.Value)
	case ActionUndo:
		_, err := s.Undo()
		return err
	case ActionRedo:
		_, err := s.Redo()
		return err
	default:
		return fmt.Errorf("peer: unknown action %q", op.Action)
	}
}

// Event is pushed to every UI client whenever the projected attributes
// change.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// EventAttributes is the type of the event carrying the root attributes.
const EventAttributes = "attributes"
