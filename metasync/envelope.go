package metasync

import "collabtext/editor"

const (
	// ActionSet is a local write request for one key.
	ActionSet = "set"

	// ActionSyncFromYjs replaces the whole snapshot with the shared map's
	// contents. The name is kept for compatibility with existing clients.
	ActionSyncFromYjs = "syncFromYjs"
)

// Envelope is the transaction metadata this plugin reads and writes under
// PluginKey.
type Envelope struct {
	Action string

	// Key and Value are used by ActionSet. HasKey distinguishes the empty
	// key from no key at all; a set envelope without a key is ignored.
	Key    string
	HasKey bool
	Value  any

	// Metadata is used by ActionSyncFromYjs.
	Metadata map[string]any
}

// SetEnvelope builds the envelope for a local write.
func SetEnvelope(key string, value any) Envelope {
	return Envelope{Action: ActionSet, Key: key, HasKey: true, Value: value}
}

// SyncEnvelope builds the envelope for a full-snapshot replacement.
func SyncEnvelope(metadata map[string]any) Envelope {
	return Envelope{Action: ActionSyncFromYjs, Metadata: metadata}
}

// envelopeOf extracts this plugin's envelope from tr. Anything that is not
// an Envelope is treated as not addressed to the plugin.
func envelopeOf(tr *editor.Transaction) (Envelope, bool) {
	switch env := tr.GetMeta(PluginKey).(type) {
	case Envelope:
		return env, true
	case *Envelope:
		if env != nil {
			return *env, true
		}
	}
	return Envelope{}, false
}

func (e Envelope) isSet() bool {
	return e.Action == ActionSet && e.HasKey
}
