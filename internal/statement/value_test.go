package statement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromAny(t *testing.T) {
	ts := time.Date(2026, 3, 1, 10, 30, 0, 0, time.FixedZone("x", 3600))

	tests := []struct {
		name string
		in   any
		kind Kind
	}{
		{"nil", nil, KindNull},
		{"string", "abc", KindText},
		{"bytes", []byte("abc"), KindBytes},
		{"int64", int64(7), KindInteger},
		{"int", 7, KindInteger},
		{"int32", int32(7), KindInteger},
		{"float64", 1.5, KindFloat},
		{"bool", true, KindBool},
		{"time", ts, KindTimestamp},
		{"nil time pointer", (*time.Time)(nil), KindNull},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, FromAny(tt.in).Kind())
		})
	}

	got, err := FromAny(ts).AsTime()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, got.Location())
	assert.True(t, got.Equal(ts))
}

func TestValueIntegerAndFloatStayDistinct(t *testing.T) {
	assert.Equal(t, KindInteger, Integer(3).Kind())
	assert.Equal(t, KindFloat, Float(3).Kind())

	n, err := Float(3).AsInteger()
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	_, err = Float(3.5).AsInteger()
	assert.Error(t, err)

	n, err = Text("42").AsInteger()
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)

	_, err = Null().AsInteger()
	assert.Error(t, err)
}

func TestNullableConstructors(t *testing.T) {
	assert.True(t, NullableText("").IsNull())
	assert.Equal(t, "x", NullableText("x").AsText())
	assert.True(t, NullableInteger(0).IsNull())
	assert.Equal(t, KindInteger, NullableInteger(2).Kind())
	assert.True(t, NullableTimestamp(nil).IsNull())

	now := time.Now()
	assert.Equal(t, KindTimestamp, NullableTimestamp(&now).Kind())
}

func TestParseTime(t *testing.T) {
	want := time.Date(2026, 1, 2, 3, 4, 5, 123000000, time.UTC)

	for _, s := range []string{
		"2026-01-02 03:04:05.123000",
		"2026-01-02 03:04:05.123",
		"2026-01-02T03:04:05.123Z",
		"2026-01-02T05:04:05.123+02:00",
	} {
		got, err := ParseTime(s)
		require.NoError(t, err, s)
		assert.True(t, want.Equal(got), "%s parsed as %s", s, got)
	}

	_, err := ParseTime("yesterday")
	assert.Error(t, err)
}

func TestSQLTimestampLayoutSortsLexically(t *testing.T) {
	a := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC).Format(SQLTimestampLayout)
	b := time.Date(2026, 1, 2, 3, 4, 5, 1000, time.UTC).Format(SQLTimestampLayout)
	c := time.Date(2026, 1, 2, 3, 4, 6, 0, time.UTC).Format(SQLTimestampLayout)

	assert.Len(t, a, len(c))
	assert.Less(t, a, b)
	assert.Less(t, b, c)
}

func TestRowAccessors(t *testing.T) {
	row := Row{
		"entity_id": Text("cfg/x"),
		"version":   Integer(3),
		"expires":   Text("2026-01-02 03:04:05.000000"),
		"never":     Null(),
	}

	assert.Equal(t, "cfg/x", row.Text("entity_id"))

	v, err := row.Integer("version")
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)

	_, err = row.Integer("missing")
	assert.Error(t, err)

	exp, err := row.Time("expires")
	require.NoError(t, err)
	require.NotNil(t, exp)
	assert.Equal(t, 2026, exp.Year())

	never, err := row.Time("never")
	require.NoError(t, err)
	assert.Nil(t, never)
}
