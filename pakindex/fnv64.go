package pakindex

import (
	"strings"

	"github.com/kepler-assets/pakfile/pakversion"
)

// legacyFNV64 uses the offset/prime swapped from canonical FNV-1a, the
// constants every version before Fnv64BugFix actually hashed names with
// (§4.4 point 2).
func legacyFNV64(s string, seed uint64) uint64 {
	const offset = 0x00000100000001B3
	const prime = 0xCBF29CE484222325
	h := offset + seed
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime
	}
	return h
}

// fnv64 is the corrected canonical FNV-1a, used from Fnv64BugFix onward.
func fnv64(s string, seed uint64) uint64 {
	const offset = 0xCBF29CE484222325
	const prime = 0x00000100000001B3
	h := offset + seed
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime
	}
	return h
}

// PathHash hashes a lowercased name with the variant appropriate to v.
func PathHash(name string, seed uint64, v pakversion.Version) uint64 {
	lname := strings.ToLower(name)
	if v.UsesFixedFnv64() {
		return fnv64(lname, seed)
	}
	return legacyFNV64(lname, seed)
}
