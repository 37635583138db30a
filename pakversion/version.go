// Package pakversion models the PakFile format's generation numbers and the
// semantic order in which their capabilities were introduced.
package pakversion

// Version is a format generation, numbered in emission order. The raw wire
// value (see Raw) equals the constant up to FNameBasedCompressionMethod422
// and is one less from FNameBasedCompressionMethod on (§3): Initial==1 ...
// Fnv64BugFix==11.
type Version int

const (
	Initial Version = iota + 1
	NoTimestamps
	CompressionEncryption
	IndexEncryption
	RelativeChunkOffsets
	DeleteRecords
	EncryptionKeyGuid
	FNameBasedCompressionMethod422
	FNameBasedCompressionMethod
	FrozenIndex
	PathHashIndex
	Fnv64BugFix
)

// Raw returns the wire-level version number. FNameBasedCompressionMethod422
// and FNameBasedCompressionMethod both raw-encode to 8; the trailer probe
// distinguishes them by the byte width of the compression-methods table,
// never by this number (§4.6). Every later version raw-encodes one below
// its constant (FrozenIndex==9, PathHashIndex==10, Fnv64BugFix==11).
func (v Version) Raw() int32 {
	if v >= FNameBasedCompressionMethod {
		return int32(v) - 1
	}
	return int32(v)
}

// All lists every version in emission (ascending) order.
func All() []Version {
	return []Version{
		Initial, NoTimestamps, CompressionEncryption, IndexEncryption,
		RelativeChunkOffsets, DeleteRecords, EncryptionKeyGuid,
		FNameBasedCompressionMethod422, FNameBasedCompressionMethod,
		FrozenIndex, PathHashIndex, Fnv64BugFix,
	}
}

// Descending lists every version newest to oldest, the order the trailer
// probe (§4.6) tries them in.
func Descending() []Version {
	all := All()
	out := make([]Version, len(all))
	for i, v := range all {
		out[len(all)-1-i] = v
	}
	return out
}

func (v Version) String() string {
	switch v {
	case Initial:
		return "Initial"
	case NoTimestamps:
		return "NoTimestamps"
	case CompressionEncryption:
		return "CompressionEncryption"
	case IndexEncryption:
		return "IndexEncryption"
	case RelativeChunkOffsets:
		return "RelativeChunkOffsets"
	case DeleteRecords:
		return "DeleteRecords"
	case EncryptionKeyGuid:
		return "EncryptionKeyGuid"
	case FNameBasedCompressionMethod422:
		return "FNameBasedCompressionMethod422"
	case FNameBasedCompressionMethod:
		return "FNameBasedCompressionMethod"
	case FrozenIndex:
		return "FrozenIndex"
	case PathHashIndex:
		return "PathHashIndex"
	case Fnv64BugFix:
		return "Fnv64BugFix"
	default:
		return "Unknown"
	}
}

// Capability predicates generalize the original's inline version-gate
// comparisons (original_source/src/pakentry.rs, pakinfo.rs) into named
// methods rather than scattering raw `>=` comparisons through the codec.

func (v Version) HasTicksField() bool { return v <= Initial }

func (v Version) UsesLegacyCompressionFlags() bool { return v < FNameBasedCompressionMethod422 }

func (v Version) Uses422CompressionWorkaround() bool { return v == FNameBasedCompressionMethod422 }

func (v Version) HasCompressionBlocks() bool { return v >= CompressionEncryption }

func (v Version) SupportsIndexEncryption() bool { return v >= IndexEncryption }

func (v Version) SupportsEncryptionGUID() bool { return v >= EncryptionKeyGuid }

func (v Version) HasCompressionMethodsTable() bool { return v >= FNameBasedCompressionMethod422 }

func (v Version) SupportsFrozenIndexFlag() bool { return v >= FrozenIndex }

func (v Version) UsesPathHashIndex() bool { return v >= PathHashIndex }

func (v Version) UsesFixedFnv64() bool { return v >= Fnv64BugFix }

// MaxCompressionMethods returns how many compression-method name slots the
// trailer's table holds at this version: 4 for the 4.22 workaround, 5
// otherwise (§6).
func (v Version) MaxCompressionMethods() int {
	if v.Uses422CompressionWorkaround() {
		return 4
	}
	return 5
}
