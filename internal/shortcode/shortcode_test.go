package shortcode

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		id   int64
		want string
	}{
		{1, "0001"},
		{61, "000Z"},
		{62, "0010"},
		{238328, "1000"},
		{math.MaxInt64, "aZl8N0y58M7"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, Encode(tt.id))
		})
	}
}

func TestEncode_NonPositive(t *testing.T) {
	assert.Empty(t, Encode(0))
	assert.Empty(t, Encode(-5))
}

func TestRoundTrip(t *testing.T) {
	for _, id := range []int64{1, 2, 61, 62, 3843, 3844, 1_000_000, 987654321987, math.MaxInt64} {
		got, err := Decode(Encode(id))
		require.NoError(t, err)
		assert.Equal(t, id, got)
	}
}

func TestDecode_Invalid(t *testing.T) {
	for _, code := range []string{"", "0000", "ab-c", "héllo", "zzzzzzzzzzzz", "ZZZZZZZZZZZ"} {
		t.Run(code, func(t *testing.T) {
			_, err := Decode(code)
			assert.ErrorIs(t, err, ErrInvalid)
			assert.False(t, Valid(code))
		})
	}
}
