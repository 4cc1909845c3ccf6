// Package statement defines the contract between the entity engine and the
// SQL backends: a tagged parameter value, parameterized statements, result
// rows, the Executor interface, SQL dialects, and conflict translation.
package statement

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// Kind identifies which member of the Value union is populated.
type Kind int

// Value kinds.
const (
	KindNull Kind = iota
	KindText
	KindInteger
	KindFloat
	KindBool
	KindTimestamp
	KindBytes
)

var kindNames = [...]string{"null", "text", "integer", "float", "bool", "timestamp", "bytes"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is a typed statement parameter or result column. The zero Value is
// Null.
type Value struct {
	kind Kind
	s    string
	i    int64
	f    float64
	b    bool
	t    time.Time
	raw  []byte
}

// Null returns the explicit null marker.
func Null() Value { return Value{} }

// Text returns a string value.
func Text(s string) Value { return Value{kind: KindText, s: s} }

// Integer returns an integral value.
func Integer(n int64) Value { return Value{kind: KindInteger, i: n} }

// Float returns a floating point value.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Timestamp returns a timestamp value normalized to UTC.
func Timestamp(t time.Time) Value { return Value{kind: KindTimestamp, t: t.UTC()} }

// Bytes returns a binary value.
func Bytes(b []byte) Value { return Value{kind: KindBytes, raw: b} }

// NullableText returns Null for the empty string.
func NullableText(s string) Value {
	if s == "" {
		return Null()
	}
	return Text(s)
}

// NullableInteger returns Null when n is zero.
func NullableInteger(n int64) Value {
	if n == 0 {
		return Null()
	}
	return Integer(n)
}

// NullableTimestamp returns Null for a nil time.
func NullableTimestamp(t *time.Time) Value {
	if t == nil {
		return Null()
	}
	return Timestamp(*t)
}

// Kind reports which member is populated.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is the null marker.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsText returns the string member, or the textual form of any other kind.
func (v Value) AsText() string {
	switch v.kind {
	case KindText:
		return v.s
	case KindBytes:
		return string(v.raw)
	case KindInteger:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindTimestamp:
		return v.t.Format(time.RFC3339Nano)
	default:
		return ""
	}
}

// AsInteger returns the integer member. Text is parsed and integral floats
// are converted.
func (v Value) AsInteger() (int64, error) {
	switch v.kind {
	case KindInteger:
		return v.i, nil
	case KindFloat:
		if v.f != math.Trunc(v.f) {
			return 0, fmt.Errorf("float %v is not integral", v.f)
		}
		return int64(v.f), nil
	case KindText:
		return strconv.ParseInt(v.s, 10, 64)
	case KindBytes:
		return strconv.ParseInt(string(v.raw), 10, 64)
	default:
		return 0, fmt.Errorf("cannot read %s as integer", v.kind)
	}
}

// AsFloat returns the float member.
func (v Value) AsFloat() float64 {
	if v.kind == KindInteger {
		return float64(v.i)
	}
	return v.f
}

// AsBool returns the bool member.
func (v Value) AsBool() bool { return v.b }

// AsTime returns the timestamp member. Text values are parsed with the
// layouts the supported backends emit.
func (v Value) AsTime() (time.Time, error) {
	switch v.kind {
	case KindTimestamp:
		return v.t, nil
	case KindText, KindBytes:
		return ParseTime(v.AsText())
	default:
		return time.Time{}, fmt.Errorf("cannot read %s as timestamp", v.kind)
	}
}

// AsBytes returns the bytes member, or the text member as bytes.
func (v Value) AsBytes() []byte {
	if v.kind == KindText {
		return []byte(v.s)
	}
	return v.raw
}

// Native returns the Go value a database/sql or pgx driver accepts.
func (v Value) Native() any {
	switch v.kind {
	case KindText:
		return v.s
	case KindInteger:
		return v.i
	case KindFloat:
		return v.f
	case KindBool:
		return v.b
	case KindTimestamp:
		return v.t
	case KindBytes:
		return v.raw
	default:
		return nil
	}
}

func (v Value) String() string {
	if v.kind == KindNull {
		return "NULL"
	}
	return v.AsText()
}

// FromAny converts a value produced by a database driver into a Value.
// Unsupported types become Text via fmt.
func FromAny(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case string:
		return Text(t)
	case []byte:
		return Bytes(t)
	case int64:
		return Integer(t)
	case int:
		return Integer(int64(t))
	case int32:
		return Integer(int64(t))
	case int16:
		return Integer(int64(t))
	case float64:
		return Float(t)
	case float32:
		return Float(float64(t))
	case bool:
		return Bool(t)
	case time.Time:
		return Timestamp(t)
	case *time.Time:
		return NullableTimestamp(t)
	case fmt.Stringer:
		return Text(t.String())
	default:
		return Text(fmt.Sprint(t))
	}
}

// SQLTimestampLayout is a fixed-width timestamp encoding. For UTC values its
// lexical order equals time order.
const SQLTimestampLayout = "2006-01-02 15:04:05.000000"

var timeLayouts = []string{
	SQLTimestampLayout,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999-07",
}

// ParseTime parses a timestamp in any layout the backends produce. Values
// without a zone are read as UTC.
func ParseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("parse timestamp %q", s)
}
