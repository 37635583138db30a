package pakentry

import (
	"github.com/kepler-assets/pakfile/pakerr"
	"github.com/kepler-assets/pakfile/pakversion"
	"github.com/kepler-assets/pakfile/wire"
)

// Compact-form header bit layout (§4.3).
const (
	hdrOffsetFitsU32       = uint32(1) << 31
	hdrUncompressedFitsU32 = uint32(1) << 30
	hdrSizeFitsU32         = uint32(1) << 29
	hdrMethodShift         = 23
	hdrMethodMask          = 0x3F // 6 bits
	hdrEncryptedBit        = uint32(1) << 22
	hdrNumBlocksShift      = 6
	hdrNumBlocksMask       = 0xFFFF // 16 bits
	hdrBlockSizeMask       = 0x3F  // 6 bits

	alignedShift = 11 // block size stored as (block_size >> 11)

	aesBlockAlign = 16

	maxUint32 = uint64(0xFFFFFFFF)
)

// Eligible reports whether e can be emitted in compact form (§4.3
// eligibility rules).
func Eligible(e *Entry, v pakversion.Version) bool {
	if e.CompressionMethodIndex >= 64 {
		return false
	}
	if e.Deleted() {
		// the compact header has an ENCRYPTED bit but no DELETED bit, so a
		// deleted marker would decode without its flag.
		return false
	}
	if len(e.CompressionBlocks) >= 1<<16 {
		return false
	}
	shifted := e.CompressionBlockSize >> alignedShift
	if shifted >= 64 {
		return false
	}
	if min(uint64(e.UncompressedSize), uint64(shifted)<<alignedShift) != min(uint64(e.UncompressedSize), uint64(e.CompressionBlockSize)) {
		// the reconstructed block size must equal the real one whenever the
		// real one is below uncompressed_size; otherwise decode wouldn't
		// reproduce the original.
		return false
	}
	return blockGeometryReconstructible(e, v)
}

func align(n uint64, alignment uint64) uint64 {
	if n%alignment == 0 {
		return n
	}
	return n + (alignment - n%alignment)
}

// blockGeometryReconstructible checks that the block list is exactly what
// decode would reconstruct from (start positions implied, lengths packed
// with the ENCRYPTED-dependent alignment rule).
func blockGeometryReconstructible(e *Entry, v pakversion.Version) bool {
	blocks := e.CompressionBlocks
	if len(blocks) == 0 {
		// Decode reconstructs Size as UncompressedSize whenever method is
		// None and no blocks are present (§4.3); an entry that genuinely
		// differs (e.g. AES padding expanding an uncompressed payload) is
		// not reconstructible and must fall back to full form, where Size
		// is always stored explicitly.
		return e.CompressionMethodIndex == CompressionNone && e.Size == e.UncompressedSize
	}
	alignment := uint64(1)
	if e.Encrypted() {
		alignment = aesBlockAlign
	}
	n, err := fullFormLen(e, v)
	if err != nil {
		return false
	}
	headerEnd := int64(n)
	cursor := blocks[0].CompressedStart
	if cursor != headerEnd {
		return false
	}
	for i, b := range blocks {
		length := uint64(b.CompressedEnd - b.CompressedStart)
		if b.CompressedStart != cursor {
			return false
		}
		cursor += int64(align(length, alignment))
		if i == len(blocks)-1 {
			if len(blocks) == 1 {
				if headerEnd+int64(e.Size) != int64(b.CompressedStart)+int64(align(length, alignment)) {
					return false
				}
			}
		}
	}
	return true
}

// fullFormLen returns the serialized byte length of e's full-form header at
// version v. A real pak never stores the compact header ahead of a block's
// payload — only the full-form FPakEntry ever precedes it on disk (§4.3) —
// so this, not the compact header's own size, is the anchor block 0 starts
// from. Measured by running the real encoder through a length-only archive
// rather than recomputing the version-gated field layout a second time.
func fullFormLen(e *Entry, v pakversion.Version) (int, error) {
	la := wire.NewLengthArchive(wire.ModeWrite)
	if err := EncodeFull(la, e, v); err != nil {
		return 0, err
	}
	return int(la.Len()), nil
}

func needsBlockList(e *Entry) bool {
	return len(e.CompressionBlocks) > 1 || (len(e.CompressionBlocks) == 1 && e.Encrypted())
}

// EncodeCompact writes e in V2's compact bit-packed form. Caller must have
// checked Eligible(e) first; ineligible entries are emitted in full form
// inside the files fallback list instead (§4.3, §4.4).
func EncodeCompact(ar wire.Archive, e *Entry) error {
	offsetFits := e.Offset <= maxUint32
	uncompressedFits := e.UncompressedSize <= maxUint32
	sizeFits := e.Size <= maxUint32

	header := uint32(0)
	if offsetFits {
		header |= hdrOffsetFitsU32
	}
	if uncompressedFits {
		header |= hdrUncompressedFitsU32
	}
	if e.CompressionMethodIndex != CompressionNone && sizeFits {
		header |= hdrSizeFitsU32
	}
	header |= (e.CompressionMethodIndex & hdrMethodMask) << hdrMethodShift
	if e.Encrypted() {
		header |= hdrEncryptedBit
	}
	header |= (uint32(len(e.CompressionBlocks)) & hdrNumBlocksMask) << hdrNumBlocksShift
	header |= (e.CompressionBlockSize >> alignedShift) & hdrBlockSizeMask

	if err := wire.WriteU32(ar, header); err != nil {
		return err
	}
	if err := writeSized(ar, e.Offset, offsetFits); err != nil {
		return err
	}
	if err := writeSized(ar, e.UncompressedSize, uncompressedFits); err != nil {
		return err
	}
	if e.CompressionMethodIndex != CompressionNone {
		if err := writeSized(ar, e.Size, sizeFits); err != nil {
			return err
		}
	}
	if needsBlockList(e) {
		for _, b := range e.CompressionBlocks {
			if err := wire.WriteU32(ar, uint32(b.CompressedEnd-b.CompressedStart)); err != nil {
				return err
			}
		}
	}
	return nil
}

// DecodeCompact reads a compact-form entry starting at the current archive
// position. Block starts are reconstructed relative to the length of the
// full-form header that precedes the payload on disk (§4.3); the compact
// header decoded here never itself precedes anything.
func DecodeCompact(ar wire.Archive, v pakversion.Version) (*Entry, error) {
	header, err := wire.ReadU32(ar)
	if err != nil {
		return nil, err
	}
	e := &Entry{}
	offsetFits := header&hdrOffsetFitsU32 != 0
	uncompressedFits := header&hdrUncompressedFitsU32 != 0
	sizeFits := header&hdrSizeFitsU32 != 0
	e.CompressionMethodIndex = (header >> hdrMethodShift) & hdrMethodMask
	encrypted := header&hdrEncryptedBit != 0
	if encrypted {
		e.Flags |= FlagEncrypted
	}
	numBlocks := int((header >> hdrNumBlocksShift) & hdrNumBlocksMask)
	blockSizeShifted := header & hdrBlockSizeMask

	if e.Offset, err = readSized(ar, offsetFits); err != nil {
		return nil, err
	}
	if e.UncompressedSize, err = readSized(ar, uncompressedFits); err != nil {
		return nil, err
	}
	if e.CompressionMethodIndex != CompressionNone {
		if e.Size, err = readSized(ar, sizeFits); err != nil {
			return nil, err
		}
	} else {
		e.Size = e.UncompressedSize
	}

	e.CompressionBlockSize = uint32(min(uint64(e.UncompressedSize), uint64(blockSizeShifted)<<alignedShift))

	// The full-form header's own serialized length depends on how many
	// blocks it would carry; stand in a same-length placeholder slice so
	// fullFormLen measures the same header_end the encoder measured when it
	// checked eligibility against the real block list (§4.3).
	if e.CompressionMethodIndex != CompressionNone && numBlocks > 0 {
		e.CompressionBlocks = make([]CompressionBlock, numBlocks)
	}
	n, err := fullFormLen(e, v)
	if err != nil {
		return nil, err
	}
	headerEnd := int64(n)
	alignment := uint64(1)
	if encrypted {
		alignment = aesBlockAlign
	}

	switch {
	case numBlocks == 0:
		// uncompressed entry; no blocks.
	case numBlocks == 1 && !encrypted:
		e.CompressionBlocks = []CompressionBlock{{
			CompressedStart: headerEnd,
			CompressedEnd:   headerEnd + int64(e.Size),
		}}
	default:
		if !needsBlockListForCounts(numBlocks, encrypted) {
			return nil, pakerr.Corruptf("compact entry header implies %d blocks without a block list", numBlocks)
		}
		lengths := make([]uint32, numBlocks)
		for i := range lengths {
			l, err := wire.ReadU32(ar)
			if err != nil {
				return nil, err
			}
			lengths[i] = l
		}
		blocks := make([]CompressionBlock, numBlocks)
		cursor := headerEnd
		for i, l := range lengths {
			blocks[i] = CompressionBlock{CompressedStart: cursor, CompressedEnd: cursor + int64(l)}
			cursor += int64(align(uint64(l), alignment))
		}
		e.CompressionBlocks = blocks
	}

	return e, nil
}

func needsBlockListForCounts(numBlocks int, encrypted bool) bool {
	return numBlocks > 1 || (numBlocks == 1 && encrypted)
}

func writeSized(ar wire.Archive, v uint64, fits32 bool) error {
	if fits32 {
		return wire.WriteU32(ar, uint32(v))
	}
	return wire.WriteU64(ar, v)
}

func readSized(ar wire.Archive, fits32 bool) (uint64, error) {
	if fits32 {
		v, err := wire.ReadU32(ar)
		return uint64(v), err
	}
	return wire.ReadU64(ar)
}
