package geo

import (
	"bytes"
	"encoding/hex"
	"math"
	"strconv"
	"time"
)

// Kind identifies the native type carried by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindText
	KindInteger
	KindFloat
	KindBoolean
	KindDate
	KindBytes
)

var kindNames = [...]string{"null", "text", "integer", "float", "boolean", "date", "bytes"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is one attribute value as stored in the source dataset. Exactly one of
// the payload fields is meaningful, selected by kind. The zero Value is null.
type Value struct {
	kind Kind
	s    string
	i    int64
	f    float64
	b    bool
	t    time.Time
	raw  []byte
}

func Null() Value            { return Value{} }
func Text(s string) Value    { return Value{kind: KindText, s: s} }
func Integer(i int64) Value  { return Value{kind: KindInteger, i: i} }
func Float(f float64) Value  { return Value{kind: KindFloat, f: f} }
func Boolean(b bool) Value   { return Value{kind: KindBoolean, b: b} }
func Date(t time.Time) Value { return Value{kind: KindDate, t: t} }
func Bytes(raw []byte) Value { return Value{kind: KindBytes, raw: append([]byte(nil), raw...)} }

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

// Accessors return the zero value when the kind does not match.
func (v Value) Text() string     { return v.s }
func (v Value) Integer() int64   { return v.i }
func (v Value) Float() float64   { return v.f }
func (v Value) Boolean() bool    { return v.b }
func (v Value) Date() time.Time  { return v.t }

// RawBytes returns a copy of a Bytes payload.
func (v Value) RawBytes() []byte {
	if v.raw == nil {
		return nil
	}
	return append([]byte(nil), v.raw...)
}

// Interface returns the payload as a plain Go value: nil, string, int64,
// float64, bool, time.Time or []byte.
func (v Value) Interface() interface{} {
	switch v.kind {
	case KindText:
		return v.s
	case KindInteger:
		return v.i
	case KindFloat:
		return v.f
	case KindBoolean:
		return v.b
	case KindDate:
		return v.t
	case KindBytes:
		return v.RawBytes()
	default:
		return nil
	}
}

// String renders the value for text outputs. Dates without a time component
// print as YYYY-MM-DD; floats use the shortest representation that round-trips.
func (v Value) String() string {
	switch v.kind {
	case KindText:
		return v.s
	case KindInteger:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindBoolean:
		return strconv.FormatBool(v.b)
	case KindDate:
		if v.t.Hour() == 0 && v.t.Minute() == 0 && v.t.Second() == 0 && v.t.Nanosecond() == 0 {
			return v.t.Format(time.DateOnly)
		}
		return v.t.Format(time.RFC3339Nano)
	case KindBytes:
		return hex.EncodeToString(v.raw)
	default:
		return ""
	}
}

// Equal reports whether two values have the same kind and identical payload.
// Floats compare bit for bit, so NaN equals NaN and 0 differs from -0.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindText:
		return v.s == o.s
	case KindInteger:
		return v.i == o.i
	case KindFloat:
		return math.Float64bits(v.f) == math.Float64bits(o.f)
	case KindBoolean:
		return v.b == o.b
	case KindDate:
		return v.t.Equal(o.t)
	case KindBytes:
		return bytes.Equal(v.raw, o.raw)
	default:
		return true
	}
}
