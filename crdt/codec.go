package crdt

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// encMode uses Core Deterministic Encoding so that the same update always
// produces identical bytes.
var encMode cbor.EncMode

// decMode decodes untyped maps as map[string]any, which is what the rest of
// the module (and encoding/json) expects for metadata values.
var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("crdt: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("crdt: CBOR decoder initialization failed: " + err.Error())
	}
}

// EncodeUpdate serializes an update to its wire form.
func EncodeUpdate(u Update) ([]byte, error) {
	data, err := encMode.Marshal(u)
	if err != nil {
		return nil, fmt.Errorf("crdt: encode update: %w", err)
	}
	return data, nil
}

// DecodeUpdate parses and validates an update produced by EncodeUpdate.
func DecodeUpdate(data []byte) (Update, error) {
	var u Update
	if err := decMode.Unmarshal(data, &u); err != nil {
		return Update{}, fmt.Errorf("%w: %v", ErrMalformedUpdate, err)
	}
	for i, op := range u.Ops {
		if !op.valid() {
			return Update{}, fmt.Errorf("%w: op %d has no map or author", ErrMalformedUpdate, i)
		}
	}
	return u, nil
}
