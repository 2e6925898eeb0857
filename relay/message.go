package relay

import "fmt"

// Message types exchanged over the relay websocket.
const (
	TypeUpdate = "update"
	TypeReady  = "ready"
)

// Message is the JSON frame sent between peers and the relay. Update holds a
// CBOR-encoded crdt update and travels base64-encoded.
type Message struct {
	Type   string `json:"type"`
	DocID  string `json:"docId,omitempty"`
	PeerID string `json:"peerId,omitempty"`
	Sender string `json:"sender,omitempty"`
	Update []byte `json:"update,omitempty"`
}

// Channel returns the Redis pub/sub channel carrying docID's updates.
func Channel(docID string) string {
	return fmt.Sprintf("collabtext:doc:%s", docID)
}
