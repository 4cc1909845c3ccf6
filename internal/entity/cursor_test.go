package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fivequarters/q5-sub008/pkg/types"
)

func TestCursorRoundTrip(t *testing.T) {
	for _, off := range []int64{0, 1, 100, 255, 1 << 40} {
		got, err := DecodeCursor(EncodeCursor(off))
		require.NoError(t, err)
		assert.Equal(t, off, got)
	}
}

func TestDecodeCursor(t *testing.T) {
	n, err := DecodeCursor("")
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = DecodeCursor("FF")
	require.NoError(t, err)
	assert.Equal(t, int64(255), n)

	for _, bad := range []string{"g", "0x10", " 1", "1;DROP TABLE entity", "1000000000000000"} {
		_, err := DecodeCursor(bad)
		assert.ErrorIs(t, err, types.ErrInvalidCursor, bad)
	}
}
