package crdt

// EntryID is a globally unique identifier for a map write, combining a
// Lamport clock and the ID of the peer that performed it.
type EntryID struct {
	Clock  uint64 `cbor:"clock" json:"clock"`
	PeerID string `cbor:"peerID" json:"peerID"`
}

// Newer reports whether id wins over other under last-writer-wins: the
// higher clock wins, and equal clocks are broken by the higher peer ID.
func (id EntryID) Newer(other EntryID) bool {
	if id.Clock != other.Clock {
		return id.Clock > other.Clock
	}
	return id.PeerID > other.PeerID
}

// Entry is the current register for one key of a Map. Deleted entries are
// kept as tombstones so that a late, older write cannot resurrect the key.
type Entry struct {
	ID      EntryID `cbor:"id" json:"id"`
	Value   any     `cbor:"value,omitempty" json:"value,omitempty"`
	Deleted bool    `cbor:"deleted,omitempty" json:"deleted,omitempty"`
}
