package geo

import (
	"math"
	"testing"
	"time"
)

func TestValue_String(t *testing.T) {
	testCases := []struct {
		v    Value
		want string
	}{
		{Null(), ""},
		{Text("Main St"), "Main St"},
		{Integer(-42), "-42"},
		{Float(0.1), "0.1"},
		{Float(1e21), "1e+21"},
		{Boolean(true), "true"},
		{Date(time.Date(2020, 1, 15, 0, 0, 0, 0, time.UTC)), "2020-01-15"},
		{Date(time.Date(2020, 1, 15, 8, 30, 0, 0, time.UTC)), "2020-01-15T08:30:00Z"},
		{Bytes([]byte{0xca, 0xfe}), "cafe"},
	}
	for _, tc := range testCases {
		if got := tc.v.String(); got != tc.want {
			t.Errorf("%s value String() = %q, want %q", tc.v.Kind(), got, tc.want)
		}
	}
}

func TestValue_Equal(t *testing.T) {
	nan := Float(math.NaN())
	testCases := []struct {
		name string
		a, b Value
		want bool
	}{
		{"null", Null(), Value{}, true},
		{"kind differs", Integer(1), Float(1), false},
		{"text", Text("a"), Text("a"), true},
		{"nan", nan, nan, true},
		{"signed zero", Float(0), Float(math.Copysign(0, -1)), false},
		{"date instant", Date(time.Date(2020, 1, 1, 1, 0, 0, 0, time.FixedZone("X", 3600))), Date(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)), true},
		{"bytes", Bytes([]byte{1}), Bytes([]byte{1}), true},
		{"bytes differ", Bytes([]byte{1}), Bytes([]byte{2}), false},
	}
	for _, tc := range testCases {
		if got := tc.a.Equal(tc.b); got != tc.want {
			t.Errorf("%s: Equal() = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestValue_Interface(t *testing.T) {
	if Null().Interface() != nil {
		t.Errorf("Null().Interface() should be nil")
	}
	if v, ok := Integer(5).Interface().(int64); !ok || v != 5 {
		t.Errorf("Integer(5).Interface() = %#v", Integer(5).Interface())
	}
	raw := []byte{1, 2}
	b := Bytes(raw)
	raw[0] = 9
	if b.RawBytes()[0] != 1 {
		t.Errorf("Bytes() did not copy its input")
	}

	out := b.RawBytes()
	out[1] = 9
	if b.RawBytes()[1] != 2 {
		t.Errorf("RawBytes() exposed the stored payload")
	}
	iface := b.Interface().([]byte)
	iface[0] = 7
	if !b.Equal(Bytes([]byte{1, 2})) {
		t.Errorf("Interface() exposed the stored payload")
	}
}
