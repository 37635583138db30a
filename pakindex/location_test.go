package pakindex

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocationRoundTrip(t *testing.T) {
	cases := []Location{
		OffsetLocation(0),
		OffsetLocation(12345),
		OffsetLocation(math.MaxInt32 - 1),
		IndexLocation(0),
		IndexLocation(9999),
		DeletedLocation(),
	}
	for _, l := range cases {
		got := FromRaw(l.Raw())
		require.Equal(t, l.Kind, got.Kind)
		if l.Kind != KindDeleted {
			require.Equal(t, l.Value, got.Value)
		}
	}
}

func TestDeletedIsMinInt32(t *testing.T) {
	require.Equal(t, int32(math.MinInt32), DeletedLocation().Raw())
	require.Equal(t, KindDeleted, FromRaw(math.MinInt32).Kind)
}
