package core

// core/value.go — the tagged primitive carried by a fact: string, number or
// boolean. Nullability is the absence of a fact, never a null value.

import (
	"bytes"
	"encoding/binary"
	"math"
	"strings"
)

// ValueKind tags the runtime type of a Value.
type ValueKind uint8

const (
	KindAbsent ValueKind = iota
	KindString
	KindNumber
	KindBool
)

func (k ValueKind) String() string {
	switch k {
	case KindAbsent:
		return "absent"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "boolean"
	}
	return "invalid"
}

// Value is the tagged primitive stored in a fact. The zero Value has
// KindAbsent and represents "no value".
type Value struct {
	Kind ValueKind
	Str  string
	Num  float64
	Bool bool
}

// String wraps a string primitive.
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// Number wraps a numeric primitive. All numbers are 64-bit floating point.
func Number(f float64) Value { return Value{Kind: KindNumber, Num: f} }

// Boolean wraps a boolean primitive.
func Boolean(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// FromAny converts a native Go value into a Value. Unsupported runtime types
// are rejected with UNSUPPORTED_VALUE.
func FromAny(v any) (Value, error) {
	switch x := v.(type) {
	case string:
		return String(x), nil
	case bool:
		return Boolean(x), nil
	case float64:
		return Number(x), nil
	case float32:
		return Number(float64(x)), nil
	case int:
		return Number(float64(x)), nil
	case int32:
		return Number(float64(x)), nil
	case int64:
		return Number(float64(x)), nil
	case uint:
		return Number(float64(x)), nil
	case uint32:
		return Number(float64(x)), nil
	case uint64:
		return Number(float64(x)), nil
	}
	return Value{}, Errf(ErrUnsupportedValue, "cannot encode %T as a primitive value", v)
}

// Any returns the native Go form of the value, or nil when absent.
func (v Value) Any() any {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return v.Num
	case KindBool:
		return v.Bool
	}
	return nil
}

// Equal reports deep equality of two values including their kind.
func (v Value) Equal(other Value) bool { return v == other }

// Compare orders values totally: by kind first, then within a kind by the
// natural order (lexicographic for strings, numeric for numbers, false<true
// for booleans). Absent values order first here; callers that need
// absent-last handle that case themselves.
func (v Value) Compare(other Value) int {
	if v.Kind != other.Kind {
		if v.Kind < other.Kind {
			return -1
		}
		return 1
	}
	switch v.Kind {
	case KindString:
		return strings.Compare(v.Str, other.Str)
	case KindNumber:
		switch {
		case v.Num < other.Num:
			return -1
		case v.Num > other.Num:
			return 1
		}
		return 0
	case KindBool:
		switch {
		case !v.Bool && other.Bool:
			return -1
		case v.Bool && !other.Bool:
			return 1
		}
		return 0
	}
	return 0
}

// Wire tags for encoded values.
const (
	wireValueString byte = 1
	wireValueNumber byte = 2
	wireValueBool   byte = 3
)

// Encode renders the value as tagged bytes. Absent values cannot be encoded.
func (v Value) Encode() ([]byte, error) {
	var buf bytes.Buffer
	switch v.Kind {
	case KindString:
		buf.WriteByte(wireValueString)
		writeString(&buf, v.Str)
	case KindNumber:
		buf.WriteByte(wireValueNumber)
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], math.Float64bits(v.Num))
		buf.Write(b[:])
	case KindBool:
		buf.WriteByte(wireValueBool)
		if v.Bool {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	default:
		return nil, Errf(ErrUnsupportedValue, "cannot encode %s value", v.Kind)
	}
	return buf.Bytes(), nil
}
