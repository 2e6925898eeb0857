package metasync

import (
	"math"
	"testing"

	"collabtext/editor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func emptyState(t *testing.T) *editor.State {
	t.Helper()
	s, err := editor.Create(editor.Config{})
	require.NoError(t, err)
	return s
}

func TestReduceIgnoresForeignTransactions(t *testing.T) {
	s := emptyState(t)
	prev := NewSnapshot(map[string]any{"a": 1})

	cases := map[string]*editor.Transaction{
		"no meta":         s.Tr(),
		"wrong type":      s.Tr().SetMeta(PluginKey, "set"),
		"unknown action":  s.Tr().SetMeta(PluginKey, Envelope{Action: "remove", Key: "a", HasKey: true}),
		"set without key": s.Tr().SetMeta(PluginKey, Envelope{Action: ActionSet, Value: 2}),
		"nil pointer":     s.Tr().SetMeta(PluginKey, (*Envelope)(nil)),
	}
	for name, tr := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Same(t, prev, reduce(tr, prev))
		})
	}
}

func TestReduceSetCopiesOnWrite(t *testing.T) {
	s := emptyState(t)
	prev := NewSnapshot(map[string]any{"a": 1})

	next := reduce(s.Tr().SetMeta(PluginKey, SetEnvelope("b", 2)), prev)

	assert.Equal(t, map[string]any{"a": 1}, prev.Map())
	assert.Equal(t, map[string]any{"a": 1, "b": 2}, next.Map())

	ptr := SetEnvelope("", "empty key")
	next = reduce(s.Tr().SetMeta(PluginKey, &ptr), prev)
	got, ok := next.Get("")
	assert.True(t, ok)
	assert.Equal(t, "empty key", got)
}

func TestReduceSyncReplacesUnconditionally(t *testing.T) {
	s := emptyState(t)
	source := map[string]any{"a": 1}
	prev := NewSnapshot(source)

	next := reduce(s.Tr().SetMeta(PluginKey, SyncEnvelope(source)), prev)

	assert.NotSame(t, prev, next)
	assert.True(t, next.Equal(prev))

	source["a"] = 2
	got, _ := next.Get("a")
	assert.Equal(t, 1, got)
}

func TestSnapshotEqual(t *testing.T) {
	a := NewSnapshot(map[string]any{"x": 1, "y": map[string]any{"p": "q", "r": []any{1, 2}}})
	b := NewSnapshot(map[string]any{"y": map[string]any{"r": []any{uint64(1), 2.0}, "p": "q"}, "x": int64(1)})

	assert.True(t, a.Equal(b))
	assert.True(t, NewSnapshot(nil).Equal(nil))
	assert.True(t, NewSnapshot(nil).Equal(NewSnapshot(map[string]any{})))
	assert.False(t, a.Equal(NewSnapshot(map[string]any{"x": 1})))
	assert.False(t, NewSnapshot(map[string]any{"k": nil}).Equal(NewSnapshot(nil)))
	assert.False(t, NewSnapshot(map[string]any{"k": "1"}).Equal(NewSnapshot(map[string]any{"k": 1})))
}

func TestSnapshotEqualIsExact(t *testing.T) {
	type opaque struct{ n int }
	tests := []struct {
		name string
		a, b any
	}{
		{"invalid utf8", "\xff", "\xfe"},
		{"bytes and base64", []byte("hi"), "aGk="},
		{"unexported fields", opaque{1}, opaque{2}},
		{"negative and unsigned", -1, uint64(18446744073709551615)},
		{"large integers", int64(1<<53 + 1), uint64(1 << 53)},
		{"nested", []any{map[string]any{"k": "\xff"}}, []any{map[string]any{"k": "\xfe"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewSnapshot(map[string]any{"k": tt.a})
			b := NewSnapshot(map[string]any{"k": tt.b})
			assert.False(t, a.Equal(b))
			assert.True(t, a.Equal(NewSnapshot(map[string]any{"k": tt.a})))
		})
	}
}

func TestAttributesFormatting(t *testing.T) {
	type label string
	snap := NewSnapshot(map[string]any{
		"str":    "v",
		"named":  label("draft"),
		"yes":    true,
		"int":    42,
		"neg":    int8(-3),
		"uint":   uint64(7),
		"float":  3.5,
		"f32":    float32(0.1),
		"whole":  float64(1000000),
		"tiny":   1e-7,
		"huge":   1e21,
		"nan":    math.NaN(),
		"nil":    nil,
		"map":    map[string]any{"complex": true},
		"slice":  []any{"a"},
		"struct": struct{ A int }{1},
		"ptr":    &struct{}{},
	})

	assert.Equal(t, map[string]string{
		"data-meta-str":   "v",
		"data-meta-named": "draft",
		"data-meta-yes":   "true",
		"data-meta-int":   "42",
		"data-meta-neg":   "-3",
		"data-meta-uint":  "7",
		"data-meta-float": "3.5",
		"data-meta-f32":   "0.1",
		"data-meta-whole": "1000000",
		"data-meta-tiny":  "1e-7",
		"data-meta-huge":  "1e+21",
		"data-meta-nan":   "NaN",
	}, Attributes(snap))
	assert.Empty(t, Attributes(nil))
}
