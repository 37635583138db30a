package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIntRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, WriteU32(w, 0xdeadbeef))
	require.NoError(t, WriteU64(w, 0x0102030405060708))
	require.NoError(t, WriteI32(w, -1))

	r := NewReader(&buf)
	u32, err := ReadU32(r)
	require.NoError(t, err)
	require.Equal(t, uint32(0xdeadbeef), u32)

	u64, err := ReadU64(r)
	require.NoError(t, err)
	require.Equal(t, uint64(0x0102030405060708), u64)

	i32, err := ReadI32(r)
	require.NoError(t, err)
	require.Equal(t, int32(-1), i32)
}

func TestLittleEndianByteOrder(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteU32(NewWriter(&buf), 1))
	require.Equal(t, []byte{1, 0, 0, 0}, buf.Bytes())
}

func TestBoolAsU32(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, WriteBool32(w, true))
	require.Equal(t, []byte{1, 0, 0, 0}, buf.Bytes())

	r := NewReader(&buf)
	v, err := ReadBool32(r)
	require.NoError(t, err)
	require.True(t, v)
}

func TestStringRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteString(NewWriter(&buf), "hello"))
	// u32 length (6, including NUL) + "hello" + NUL
	require.Equal(t, append([]byte{6, 0, 0, 0}, append([]byte("hello"), 0)...), buf.Bytes())

	s, err := ReadString(NewReader(&buf))
	require.NoError(t, err)
	require.Equal(t, "hello", s)
}

func TestStringMissingNulIsCorrupt(t *testing.T) {
	buf := bytes.NewBuffer([]byte{5, 0, 0, 0, 'h', 'e', 'l', 'l', 'o'})
	_, err := ReadString(NewReader(buf))
	require.Error(t, err)
}

func TestStringInvalidUTF8(t *testing.T) {
	buf := bytes.NewBuffer([]byte{3, 0, 0, 0, 0xff, 0xfe, 0})
	_, err := ReadString(NewReader(buf))
	require.Error(t, err)
}

func TestVectorRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	items := []uint32{1, 2, 3}
	require.NoError(t, WriteVector(NewWriter(&buf), items, WriteU32))
	got, err := ReadVector(NewReader(&buf), ReadU32)
	require.NoError(t, err)
	require.Equal(t, items, got)
}

func TestOrderedMapEmitsAscendingKeys(t *testing.T) {
	var buf bytes.Buffer
	m := map[uint32]uint32{3: 30, 1: 10, 2: 20}
	require.NoError(t, WriteOrderedMap(NewWriter(&buf), m, WriteU32, WriteU32))

	// count
	r := NewReader(&buf)
	n, err := ReadU32(r)
	require.NoError(t, err)
	require.Equal(t, uint32(3), n)

	var keys []uint32
	for i := 0; i < 3; i++ {
		k, err := ReadU32(r)
		require.NoError(t, err)
		v, err := ReadU32(r)
		require.NoError(t, err)
		require.Equal(t, k*10, v)
		keys = append(keys, k)
	}
	require.Equal(t, []uint32{1, 2, 3}, keys)
}

func TestWrongDirectionIsPermissionDenied(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	_, err := ReadU32(w)
	require.Error(t, err)

	r := NewReader(&buf)
	err = WriteU32(r, 1)
	require.Error(t, err)
}

func TestLengthArchiveMatchesBytesWritten(t *testing.T) {
	la := NewLengthArchive(ModeWrite)
	require.NoError(t, WriteString(la, "abcdef"))
	require.NoError(t, WriteU64(la, 1))

	var buf bytes.Buffer
	require.NoError(t, WriteString(NewWriter(&buf), "abcdef"))
	require.NoError(t, WriteU64(NewWriter(&buf), 1))

	require.EqualValues(t, buf.Len(), la.Len())
}

func TestTeeArchiveTracksLengthAndSHA1(t *testing.T) {
	var buf bytes.Buffer
	w := NewTeeArchive(NewWriter(&buf))
	payload := []byte{1, 2, 3}
	require.NoError(t, w.WriteAll(payload))
	require.EqualValues(t, 3, w.Len())

	// mutating the underlying stream after the fact must not retroactively
	// change the already-computed digest
	sum := w.Sum20()
	require.NotEqual(t, [20]byte{}, sum)
	buf.Bytes()[0] ^= 0xFF
	require.Equal(t, sum, w.Sum20())
}
