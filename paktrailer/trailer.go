// Package paktrailer implements the versioned, fixed-size trailer (§4.5)
// that sits at the end of every PakFile: magic, version, index
// offset/size/hash, encryption flags, and the compression-method name
// table.
package paktrailer

import (
	"github.com/google/uuid"
	"github.com/kepler-assets/pakfile/pakversion"
)

// Magic must prefix the version field of every trailer (§3, §6).
const Magic uint32 = 0x5A6F12E1

const compressionMethodNameLen = 32

// Trailer is the versioned fixed-size footer (§3).
type Trailer struct {
	Version            pakversion.Version
	IndexOffset        uint64
	IndexSize          uint64
	Hash               [20]byte
	EncryptedIndex     bool
	EncryptionKeyGUID  uuid.UUID // only meaningful when Version.SupportsEncryptionGUID()
	IndexIsFrozen      bool      // only meaningful when Version.SupportsFrozenIndexFlag()
	CompressionMethods []string  // element 0 is always the implicit "" (none) method
}

// Size returns the on-wire byte length of the trailer at this version
// (§6's size table), used by the reader's probe to know where to seek.
func Size(v pakversion.Version) int {
	n := 0
	if v.SupportsEncryptionGUID() {
		n += 16
	}
	n += 1 // encrypted_index byte
	n += 4 // magic
	n += 4 // version_raw
	n += 8 + 8 + 20 // index_offset, index_size, hash
	if v.SupportsFrozenIndexFlag() {
		n += 1
	}
	if v.HasCompressionMethodsTable() {
		n += v.MaxCompressionMethods() * compressionMethodNameLen
	}
	return n
}
