package pakindex

import (
	"bytes"
	"testing"

	"github.com/kepler-assets/pakfile/pakentry"
	"github.com/kepler-assets/pakfile/pakversion"
	"github.com/kepler-assets/pakfile/wire"
	"github.com/stretchr/testify/require"
)

func TestV1RoundTripAndFind(t *testing.T) {
	v := NewV1("../../")
	v.Add("a.uasset", &pakentry.Entry{Offset: 0, Size: 10, UncompressedSize: 10})
	v.Add("sub/b.uasset", &pakentry.Entry{Offset: 10, Size: 20, UncompressedSize: 20})

	var buf bytes.Buffer
	require.NoError(t, EncodeV1(wire.NewWriter(&buf), v, pakversion.Initial))

	got, err := DecodeV1(wire.NewReader(&buf), pakversion.Initial)
	require.NoError(t, err)
	require.Equal(t, v.MountPoint, got.MountPoint)
	require.Equal(t, v.Len(), got.Len())

	e, ok := got.Find("sub/b.uasset")
	require.True(t, ok)
	require.Equal(t, uint64(10), e.Offset)

	_, ok = got.Find("missing")
	require.False(t, ok)
}

func TestV1ClearResetsLookup(t *testing.T) {
	v := NewV1("/")
	v.Add("a", &pakentry.Entry{})
	v.Clear()
	require.Equal(t, 0, v.Len())
	_, ok := v.Find("a")
	require.False(t, ok)
}
