package crdt

// Op is a single register write as it travels between peers. Updates carry
// ops for local writes and for merged remote writes alike.
type Op struct {
	Map   string `cbor:"map" json:"map"`
	Key   string `cbor:"key" json:"key"`
	Entry Entry  `cbor:"entry" json:"entry"`
}

// Update is the decoded form of the bytes emitted by Doc.OnUpdate and
// accepted by Doc.ApplyUpdate.
type Update struct {
	Ops []Op `cbor:"ops"`
}

func (o Op) valid() bool {
	return o.Map != "" && o.Entry.ID.PeerID != "" && o.Entry.ID.Clock > 0
}
