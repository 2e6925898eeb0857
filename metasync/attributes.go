package metasync

import (
	"math"
	"reflect"
	"strconv"
	"strings"
)

// AttributePrefix is prepended to a metadata key to form its root
// attribute name.
const AttributePrefix = "data-meta-"

// Attributes projects the scalar entries of snap onto root attributes.
// Nil values and objects (maps, slices, structs, pointers and the like) are
// left out.
func Attributes(snap *Snapshot) map[string]string {
	attrs := make(map[string]string)
	if snap == nil {
		return attrs
	}
	for key, value := range snap.values {
		if s, ok := scalarString(value); ok {
			attrs[AttributePrefix+key] = s
		}
	}
	return attrs
}

// scalarString formats strings, booleans and numbers the way a browser
// would coerce them to attribute values.
func scalarString(value any) (string, bool) {
	if value == nil {
		return "", false
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), true
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool()), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(rv.Uint(), 10), true
	case reflect.Float32:
		return formatNumber(rv.Float(), 32), true
	case reflect.Float64:
		return formatNumber(rv.Float(), 64), true
	}
	return "", false
}

func formatNumber(f float64, bitSize int) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}
	if abs := math.Abs(f); abs >= 1e-6 && abs < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, bitSize)
	}
	// 1e-07 -> 1e-7, 1e+21 stays.
	mantissa, exp, _ := strings.Cut(strconv.FormatFloat(f, 'e', -1, bitSize), "e")
	return mantissa + "e" + exp[:1] + strings.TrimLeft(exp[1:], "0")
}
