package metasync

import (
	"maps"
	"reflect"
)

// Snapshot is an immutable view of the metadata map held in editor state.
// Every transition produces a new Snapshot; none is ever modified in place.
type Snapshot struct {
	values map[string]any
}

// NewSnapshot copies m into a new snapshot. A nil map yields an empty one.
func NewSnapshot(m map[string]any) *Snapshot {
	values := maps.Clone(m)
	if values == nil {
		values = make(map[string]any)
	}
	return &Snapshot{values: values}
}

// Get returns the value stored under key and whether the key is present. A
// key may be present with a nil value.
func (s *Snapshot) Get(key string) (any, bool) {
	if s == nil {
		return nil, false
	}
	v, ok := s.values[key]
	return v, ok
}

// Len returns the number of keys.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.values)
}

// Map returns a shallow copy of the snapshot's contents.
func (s *Snapshot) Map() map[string]any {
	if s == nil {
		return make(map[string]any)
	}
	return maps.Clone(s.values)
}

// Equal reports deep structural equality. Key order never matters, and
// numbers compare by value regardless of Go type.
func (s *Snapshot) Equal(other *Snapshot) bool {
	if s == other {
		return true
	}
	var a, b map[string]any
	if s != nil {
		a = s.values
	}
	if other != nil {
		b = other.values
	}
	if len(a) != len(b) {
		return false
	}
	if len(a) == 0 {
		return true
	}
	return deepEqual(a, b)
}

// with returns a copy of s with key set to value. A nil value is stored as
// is; it does not remove the key.
func (s *Snapshot) with(key string, value any) *Snapshot {
	values := s.Map()
	values[key] = value
	return &Snapshot{values: values}
}

// deepEqual walks maps and slices decoded from the shared map. Numbers of
// any Go type compare by value; every other value compares exactly.
func deepEqual(a, b any) bool {
	switch a := a.(type) {
	case map[string]any:
		b, ok := b.(map[string]any)
		if !ok || len(a) != len(b) {
			return false
		}
		for k, va := range a {
			vb, ok := b[k]
			if !ok || !deepEqual(va, vb) {
				return false
			}
		}
		return true
	case []any:
		b, ok := b.([]any)
		if !ok || len(a) != len(b) {
			return false
		}
		for i := range a {
			if !deepEqual(a[i], b[i]) {
				return false
			}
		}
		return true
	}
	if eq, ok := numberEqual(a, b); ok {
		return eq
	}
	return reflect.DeepEqual(a, b)
}

// numberEqual compares a and b when both are numbers. Integers compare
// exactly; a float compares by value. ok is false if either is not a number.
func numberEqual(a, b any) (eq, ok bool) {
	ra, rb := reflect.ValueOf(a), reflect.ValueOf(b)
	ka, kb := numberKind(ra), numberKind(rb)
	if ka == reflect.Invalid || kb == reflect.Invalid {
		return false, false
	}
	switch {
	case ka == reflect.Int64 && kb == reflect.Int64:
		return ra.Int() == rb.Int(), true
	case ka == reflect.Uint64 && kb == reflect.Uint64:
		return ra.Uint() == rb.Uint(), true
	case ka == reflect.Int64 && kb == reflect.Uint64:
		return ra.Int() >= 0 && uint64(ra.Int()) == rb.Uint(), true
	case ka == reflect.Uint64 && kb == reflect.Int64:
		return rb.Int() >= 0 && ra.Uint() == uint64(rb.Int()), true
	}
	return floatOf(ra, ka) == floatOf(rb, kb), true
}

func numberKind(v reflect.Value) reflect.Kind {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return reflect.Int64
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return reflect.Uint64
	case reflect.Float32, reflect.Float64:
		return reflect.Float64
	}
	return reflect.Invalid
}

func floatOf(v reflect.Value, kind reflect.Kind) float64 {
	switch kind {
	case reflect.Int64:
		return float64(v.Int())
	case reflect.Uint64:
		return float64(v.Uint())
	}
	return v.Float()
}
