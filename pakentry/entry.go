// Package pakentry implements the per-file entry descriptor and its two
// on-wire forms (component C): the full form shared by V1 and V2's files
// fallback list, and V2's compact bit-packed form.
package pakentry

// CompressionMethod indices the full-form codec maps legacy flag bits onto
// (§4.3 point 2).
const (
	CompressionNone   uint32 = 0
	CompressionZlib   uint32 = 1
	CompressionGzip   uint32 = 2
	CompressionCustom uint32 = 3
)

// Flags bits (§3).
const (
	FlagEncrypted uint8 = 1 << 0
	FlagDeleted   uint8 = 1 << 1
)

// CompressionBlock is one (compressed_start, compressed_end) extent.
type CompressionBlock struct {
	CompressedStart int64
	CompressedEnd   int64
}

// Entry is a single stored-asset descriptor (§3).
type Entry struct {
	Offset                 uint64
	Size                   uint64
	UncompressedSize       uint64
	Hash                   [20]byte
	CompressionBlocks      []CompressionBlock
	CompressionBlockSize   uint32
	CompressionMethodIndex uint32
	Flags                  uint8
}

func (e *Entry) Encrypted() bool { return e.Flags&FlagEncrypted != 0 }
func (e *Entry) Deleted() bool   { return e.Flags&FlagDeleted != 0 }

// Uncompressed reports whether the invariant "size == uncompressed_size iff
// method_index == 0 and no blocks" holds for an uncompressed entry (§3).
func (e *Entry) Uncompressed() bool {
	return e.CompressionMethodIndex == CompressionNone && len(e.CompressionBlocks) == 0
}
