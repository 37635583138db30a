package pakentry

import (
	"bytes"
	"testing"

	"github.com/kepler-assets/pakfile/pakversion"
	"github.com/kepler-assets/pakfile/wire"
	"github.com/stretchr/testify/require"
)

func sampleHash() [20]byte {
	var h [20]byte
	for i := range h {
		h[i] = byte(i)
	}
	return h
}

func TestFullFormRoundTripAllVersions(t *testing.T) {
	for _, v := range pakversion.All() {
		v := v
		t.Run(v.String(), func(t *testing.T) {
			e := &Entry{
				Offset:                 1234,
				Size:                   5678,
				UncompressedSize:       5678,
				Hash:                   sampleHash(),
				CompressionMethodIndex: CompressionNone,
			}
			var buf bytes.Buffer
			require.NoError(t, EncodeFull(wire.NewWriter(&buf), e, v))
			got, err := DecodeFull(wire.NewReader(&buf), v)
			require.NoError(t, err)
			require.Equal(t, e.Offset, got.Offset)
			require.Equal(t, e.Size, got.Size)
			require.Equal(t, e.UncompressedSize, got.UncompressedSize)
			require.Equal(t, e.Hash, got.Hash)
			require.Equal(t, e.CompressionMethodIndex, got.CompressionMethodIndex)
		})
	}
}

func TestFullFormWithBlocksRoundTrip(t *testing.T) {
	v := pakversion.RelativeChunkOffsets
	e := &Entry{
		Offset:                 0,
		Size:                   100,
		UncompressedSize:       200,
		Hash:                   sampleHash(),
		CompressionMethodIndex: CompressionZlib,
		CompressionBlockSize:   65536,
		CompressionBlocks: []CompressionBlock{
			{CompressedStart: 44, CompressedEnd: 94},
			{CompressedStart: 94, CompressedEnd: 144},
		},
	}
	var buf bytes.Buffer
	require.NoError(t, EncodeFull(wire.NewWriter(&buf), e, v))
	got, err := DecodeFull(wire.NewReader(&buf), v)
	require.NoError(t, err)
	require.Equal(t, e.CompressionBlocks, got.CompressionBlocks)
	require.Equal(t, e.CompressionBlockSize, got.CompressionBlockSize)
}

func TestLegacyCompressionFlagMapping(t *testing.T) {
	v := pakversion.Initial
	for _, tc := range []struct {
		method uint32
	}{{CompressionNone}, {CompressionZlib}, {CompressionGzip}, {CompressionCustom}} {
		var buf bytes.Buffer
		e := &Entry{Hash: sampleHash(), CompressionMethodIndex: tc.method}
		require.NoError(t, EncodeFull(wire.NewWriter(&buf), e, v))
		got, err := DecodeFull(wire.NewReader(&buf), v)
		require.NoError(t, err)
		require.Equal(t, tc.method, got.CompressionMethodIndex)
	}
}

func TestUnknownLegacyCompressionFlagCombinationErrors(t *testing.T) {
	buf := bytes.NewBuffer([]byte{
		0, 0, 0, 0, 0, 0, 0, 0, // offset
		0, 0, 0, 0, 0, 0, 0, 0, // size
		0, 0, 0, 0, 0, 0, 0, 0, // uncompressed size
		0x03, 0, 0, 0, // legacy flags: 0x01|0x02, invalid combo
	})
	buf.Write(make([]byte, 8))  // ticks
	buf.Write(sampleHash()[:])  // hash
	_, err := DecodeFull(wire.NewReader(buf), pakversion.Initial)
	require.Error(t, err)
}

func TestCompactRoundTripNoBlocksNoFraming(t *testing.T) {
	v := pakversion.CompressionEncryption
	e := &Entry{
		Offset:                 10,
		UncompressedSize:       100,
		Size:                   100,
		CompressionMethodIndex: CompressionNone,
	}
	require.True(t, Eligible(e, v))

	var buf bytes.Buffer
	require.NoError(t, EncodeCompact(wire.NewWriter(&buf), e))
	got, err := DecodeCompact(wire.NewReader(&buf), v)
	require.NoError(t, err)
	require.Equal(t, e.Offset, got.Offset)
	require.Equal(t, e.Size, got.Size)
	require.Equal(t, e.UncompressedSize, got.UncompressedSize)
	require.Len(t, got.CompressionBlocks, 0)
}

func TestCompactRoundTripEncryptedSingleBlockForcesList(t *testing.T) {
	v := pakversion.CompressionEncryption
	e := &Entry{
		Offset:                 0,
		UncompressedSize:       65536,
		Size:                   65536,
		CompressionMethodIndex: CompressionZlib,
		CompressionBlockSize:   65536,
		Flags:                  FlagEncrypted,
	}
	// header_end is the full-form (non-compact) entry's own serialized
	// length at v, including the one-element block vector it would carry
	// (§4.3) — stand in a same-length placeholder to measure it before the
	// real extents are known.
	e.CompressionBlocks = make([]CompressionBlock, 1)
	n, err := fullFormLen(e, v)
	require.NoError(t, err)
	headerEnd := int64(n)
	length := align(e.Size, aesBlockAlign)
	e.CompressionBlocks = []CompressionBlock{{
		CompressedStart: headerEnd,
		CompressedEnd:   headerEnd + int64(length),
	}}
	require.True(t, Eligible(e, v))

	var buf bytes.Buffer
	require.NoError(t, EncodeCompact(wire.NewWriter(&buf), e))
	got, err := DecodeCompact(wire.NewReader(&buf), v)
	require.NoError(t, err)
	require.Equal(t, e.CompressionBlocks, got.CompressionBlocks)
}

func TestCompactRoundTripThreeBlocksEncrypted(t *testing.T) {
	v := pakversion.CompressionEncryption
	e := &Entry{
		Offset:                 0,
		UncompressedSize:       3 * 65536,
		CompressionMethodIndex: CompressionZlib,
		CompressionBlockSize:   65536,
		Flags:                  FlagEncrypted,
	}
	e.CompressionBlocks = make([]CompressionBlock, 3)
	n, err := fullFormLen(e, v)
	require.NoError(t, err)
	headerEnd := int64(n)
	lens := []int64{1000, 2000, 500}
	cursor := headerEnd
	var blocks []CompressionBlock
	for _, l := range lens {
		blocks = append(blocks, CompressionBlock{CompressedStart: cursor, CompressedEnd: cursor + l})
		cursor += int64(align(uint64(l), aesBlockAlign))
	}
	e.CompressionBlocks = blocks
	e.Size = uint64(cursor - headerEnd)
	require.True(t, Eligible(e, v))

	var buf bytes.Buffer
	require.NoError(t, EncodeCompact(wire.NewWriter(&buf), e))
	got, err := DecodeCompact(wire.NewReader(&buf), v)
	require.NoError(t, err)
	require.Equal(t, e.CompressionBlocks, got.CompressionBlocks)
	require.Equal(t, e.CompressionBlockSize, got.CompressionBlockSize)
}

func TestCompactIneligibleMethodIndexTooLarge(t *testing.T) {
	e := &Entry{CompressionMethodIndex: 64}
	require.False(t, Eligible(e, pakversion.CompressionEncryption))
}
