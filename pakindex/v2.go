package pakindex

import (
	"bytes"
	"sort"
	"strings"

	"github.com/kepler-assets/pakfile/pakentry"
	"github.com/kepler-assets/pakfile/pakerr"
	"github.com/kepler-assets/pakfile/pakversion"
	"github.com/kepler-assets/pakfile/wire"
)

const aesBlockSize = 16

// V2 is the hash/directory index (§3, §4.4): a compact-entry blob plus a
// full-form fallback list, addressed by a path-hash map and a directory
// tree, each an optional secondary region reached by absolute seek.
type V2 struct {
	MountPoint            string
	PathHashSeed          uint64
	HasPathHashIndex      bool
	HasFullDirectoryIndex bool

	// Populated by the reader/builder once the corresponding region's
	// absolute file position is known; meaningless until then.
	PathHashIndexOffset      int64
	PathHashIndexSize        int64
	PathHashIndexHash        [20]byte
	FullDirectoryIndexOffset int64
	FullDirectoryIndexSize   int64
	FullDirectoryIndexHash   [20]byte

	numEntries        uint32
	encodedPakEntries []byte
	decodedPakEntries map[int]*pakentry.Entry
	files             []*pakentry.Entry

	PathHashIndex        map[uint64]Location
	PrunedDirectoryIndex map[string]map[string]Location
	FullDirectoryIndex   map[string]map[string]Location
}

func NewV2(mountPoint string, pathHashSeed uint64, hasPathHashIndex, hasFullDirectoryIndex bool) *V2 {
	return &V2{
		MountPoint:            mountPoint,
		PathHashSeed:          pathHashSeed,
		HasPathHashIndex:      hasPathHashIndex,
		HasFullDirectoryIndex: hasFullDirectoryIndex,
		decodedPakEntries:     make(map[int]*pakentry.Entry),
		PathHashIndex:         make(map[uint64]Location),
		PrunedDirectoryIndex:  make(map[string]map[string]Location),
		FullDirectoryIndex:    make(map[string]map[string]Location),
	}
}

// Add encodes entry (compactly if eligible, else into the files fallback),
// then updates whichever of the path-hash map / directory tree this index
// was built to maintain (§4.4 V2 write path).
func (v *V2) Add(name string, entry *pakentry.Entry, version pakversion.Version) (Location, error) {
	v.numEntries++

	var location Location
	if pakentry.Eligible(entry, version) {
		offset := len(v.encodedPakEntries)
		var buf bytes.Buffer
		if err := pakentry.EncodeCompact(wire.NewWriter(&buf), entry); err != nil {
			return Location{}, err
		}
		v.encodedPakEntries = append(v.encodedPakEntries, buf.Bytes()...)
		v.decodedPakEntries[offset] = entry
		location = OffsetLocation(offset)
	} else {
		location = IndexLocation(len(v.files))
		v.files = append(v.files, entry)
	}

	if v.HasPathHashIndex {
		hash := PathHash(name, v.PathHashSeed, version)
		if _, exists := v.PathHashIndex[hash]; exists {
			return Location{}, pakerr.Invalidf("fnv64 hash collision for %q", strings.ToLower(name))
		}
		v.PathHashIndex[hash] = location
	}

	if v.HasFullDirectoryIndex {
		i := strings.LastIndex(name, "/")
		if i < 0 {
			return Location{}, pakerr.Invalidf("asset %q is not inside a directory", name)
		}
		dir, leaf := name[:i], name[i+1:]
		if v.FullDirectoryIndex[dir] == nil {
			v.FullDirectoryIndex[dir] = make(map[string]Location)
		}
		v.FullDirectoryIndex[dir][leaf] = location
	}

	return location, nil
}

// Resolve maps a Location obtained from FullEntries/PrunedEntries to its
// materialized entry, or nil for a deleted asset.
func (v *V2) Resolve(l Location) *pakentry.Entry {
	return v.resolve(l)
}

// resolve maps a Location to its materialized entry, or nil for Deleted.
func (v *V2) resolve(l Location) *pakentry.Entry {
	switch l.Kind {
	case KindOffset:
		return v.decodedPakEntries[l.Value]
	case KindIndex:
		return v.files[l.Value]
	default:
		return nil
	}
}

// Entries iterates every non-deleted entry reachable from the path-hash map,
// in ascending hash order.
func (v *V2) Entries(yield func(entry *pakentry.Entry) bool) {
	for _, h := range sortedU64Keys(v.PathHashIndex) {
		e := v.resolve(v.PathHashIndex[h])
		if e == nil {
			continue
		}
		if !yield(e) {
			return
		}
	}
}

// HashedEntries iterates (hash, entry) pairs the same way Entries does.
func (v *V2) HashedEntries(yield func(hash uint64, entry *pakentry.Entry) bool) {
	for _, h := range sortedU64Keys(v.PathHashIndex) {
		e := v.resolve(v.PathHashIndex[h])
		if e == nil {
			continue
		}
		if !yield(h, e) {
			return
		}
	}
}

// FullEntries iterates (dir, leaf, Location) triples from the full
// directory index in ascending (dir, leaf) order.
func (v *V2) FullEntries(yield func(dir, leaf string, loc Location) bool) {
	iterDirTree(v.FullDirectoryIndex, yield)
}

// PrunedEntries iterates the pruned directory index the builder never
// populates; present for read-side symmetry with the original layout.
func (v *V2) PrunedEntries(yield func(dir, leaf string, loc Location) bool) {
	iterDirTree(v.PrunedDirectoryIndex, yield)
}

// Find resolves name directly through the path-hash map (a convenience not
// present on the historical V2 index, which only ever iterated).
func (v *V2) Find(name string, version pakversion.Version) (*pakentry.Entry, bool) {
	if !v.HasPathHashIndex {
		return nil, false
	}
	hash := PathHash(name, v.PathHashSeed, version)
	loc, ok := v.PathHashIndex[hash]
	if !ok {
		return nil, false
	}
	e := v.resolve(loc)
	return e, e != nil
}

func iterDirTree(tree map[string]map[string]Location, yield func(dir, leaf string, loc Location) bool) {
	for _, dir := range sortedStringKeys(tree) {
		leaves := tree[dir]
		for _, leaf := range sortedStringKeys(leaves) {
			if !yield(dir, leaf, leaves[leaf]) {
				return
			}
		}
	}
}

// EncodePrimary writes the always-present prefix of the V2 index: header
// scalars, the optional secondary-region descriptors (offsets the caller
// must have already decided, since they depend on where the caller will
// place those regions), the compact-entry blob, and the files fallback
// vector (§4.4 points 1-5).
func EncodePrimary(ar wire.Archive, v *V2, version pakversion.Version) error {
	if err := wire.WriteString(ar, v.MountPoint); err != nil {
		return err
	}
	if err := wire.WriteU32(ar, v.numEntries); err != nil {
		return err
	}
	if err := wire.WriteU64(ar, v.PathHashSeed); err != nil {
		return err
	}

	if err := wire.WriteBool32(ar, v.HasPathHashIndex); err != nil {
		return err
	}
	if v.HasPathHashIndex {
		if err := wire.WriteI64(ar, v.PathHashIndexOffset); err != nil {
			return err
		}
		if err := wire.WriteI64(ar, v.PathHashIndexSize); err != nil {
			return err
		}
		if err := ar.WriteAll(v.PathHashIndexHash[:]); err != nil {
			return err
		}
	}

	if err := wire.WriteBool32(ar, v.HasFullDirectoryIndex); err != nil {
		return err
	}
	if v.HasFullDirectoryIndex {
		if err := wire.WriteI64(ar, v.FullDirectoryIndexOffset); err != nil {
			return err
		}
		if err := wire.WriteI64(ar, v.FullDirectoryIndexSize); err != nil {
			return err
		}
		if err := ar.WriteAll(v.FullDirectoryIndexHash[:]); err != nil {
			return err
		}
	}

	if err := wire.WriteU32(ar, uint32(len(v.encodedPakEntries))); err != nil {
		return err
	}
	if err := ar.WriteAll(v.encodedPakEntries); err != nil {
		return err
	}

	return wire.WriteVector(ar, v.files, func(ar wire.Archive, e *pakentry.Entry) error {
		return pakentry.EncodeFull(ar, e, version)
	})
}

// DecodePrimary reads the same prefix EncodePrimary writes. It does not
// follow the path-hash/full-directory offsets; the caller (the reader,
// which owns seeking) does that via DecodePathHashIndexRegion /
// DecodeFullDirectoryIndexRegion once it has validated each boundary.
func DecodePrimary(ar wire.Archive, version pakversion.Version) (*V2, error) {
	mountPoint, err := wire.ReadString(ar)
	if err != nil {
		return nil, err
	}
	numEntries, err := wire.ReadU32(ar)
	if err != nil {
		return nil, err
	}
	pathHashSeed, err := wire.ReadU64(ar)
	if err != nil {
		return nil, err
	}

	v := NewV2(mountPoint, pathHashSeed, false, false)
	v.numEntries = numEntries

	if v.HasPathHashIndex, err = wire.ReadBool32(ar); err != nil {
		return nil, err
	}
	if v.HasPathHashIndex {
		if v.PathHashIndexOffset, err = wire.ReadI64(ar); err != nil {
			return nil, err
		}
		if v.PathHashIndexSize, err = wire.ReadI64(ar); err != nil {
			return nil, err
		}
		if err := ar.ReadExact(v.PathHashIndexHash[:]); err != nil {
			return nil, err
		}
	}

	if v.HasFullDirectoryIndex, err = wire.ReadBool32(ar); err != nil {
		return nil, err
	}
	if v.HasFullDirectoryIndex {
		if v.FullDirectoryIndexOffset, err = wire.ReadI64(ar); err != nil {
			return nil, err
		}
		if v.FullDirectoryIndexSize, err = wire.ReadI64(ar); err != nil {
			return nil, err
		}
		if err := ar.ReadExact(v.FullDirectoryIndexHash[:]); err != nil {
			return nil, err
		}
	}

	blobLen, err := wire.ReadU32(ar)
	if err != nil {
		return nil, err
	}
	v.encodedPakEntries = make([]byte, blobLen)
	if err := ar.ReadExact(v.encodedPakEntries); err != nil {
		return nil, err
	}

	files, err := wire.ReadVector(ar, func(ar wire.Archive) (*pakentry.Entry, error) {
		return pakentry.DecodeFull(ar, version)
	})
	if err != nil {
		return nil, err
	}
	v.files = files

	return v, nil
}

// EncodePathHashIndexRegion writes (path_hash_index, pruned_directory_index)
// at the caller's current position (§4.4 point 6). The builder never
// populates PrunedDirectoryIndex, so it always emits an empty map there.
func EncodePathHashIndexRegion(ar wire.Archive, v *V2) error {
	if err := wire.WriteOrderedMap(ar, v.PathHashIndex, wire.WriteU64, WriteLocation); err != nil {
		return err
	}
	return writeDirTree(ar, v.PrunedDirectoryIndex)
}

func DecodePathHashIndexRegion(ar wire.Archive, v *V2) error {
	m, err := wire.ReadOrderedMap(ar, wire.ReadU64, ReadLocation)
	if err != nil {
		return err
	}
	v.PathHashIndex = m
	tree, err := readDirTree(ar)
	if err != nil {
		return err
	}
	v.PrunedDirectoryIndex = tree
	return nil
}

// EncodeFullDirectoryIndexRegion writes full_directory_index at the
// caller's current position (§4.4 point 7).
func EncodeFullDirectoryIndexRegion(ar wire.Archive, v *V2) error {
	return writeDirTree(ar, v.FullDirectoryIndex)
}

func DecodeFullDirectoryIndexRegion(ar wire.Archive, v *V2) error {
	tree, err := readDirTree(ar)
	if err != nil {
		return err
	}
	v.FullDirectoryIndex = tree
	return nil
}

func writeDirTree(ar wire.Archive, tree map[string]map[string]Location) error {
	return wire.WriteOrderedMap(ar, tree, wire.WriteString, func(ar wire.Archive, leaves map[string]Location) error {
		return wire.WriteOrderedMap(ar, leaves, wire.WriteString, WriteLocation)
	})
}

func readDirTree(ar wire.Archive) (map[string]map[string]Location, error) {
	return wire.ReadOrderedMap(ar, wire.ReadString, func(ar wire.Archive) (map[string]Location, error) {
		return wire.ReadOrderedMap(ar, wire.ReadString, ReadLocation)
	})
}

// MaterializeDecodedEntries eagerly decodes every compact entry the
// path-hash map references by Offset, caching it by blob offset (§4.6's
// "eagerly decodes each entry referenced from path_hash_index"). Called by
// the reader once the path-hash region has been read.
func (v *V2) MaterializeDecodedEntries(version pakversion.Version) error {
	v.decodedPakEntries = make(map[int]*pakentry.Entry, len(v.PathHashIndex))
	for _, loc := range v.PathHashIndex {
		if loc.Kind != KindOffset {
			continue
		}
		if loc.Value > len(v.encodedPakEntries) {
			return pakerr.Corruptf("pak entry location offset %d out of bounds: [0, %d]", loc.Value, len(v.encodedPakEntries))
		}
		if _, ok := v.decodedPakEntries[loc.Value]; ok {
			continue
		}
		r := bytes.NewReader(v.encodedPakEntries[loc.Value:])
		entry, err := pakentry.DecodeCompact(wire.NewReader(r), version)
		if err != nil {
			return err
		}
		v.decodedPakEntries[loc.Value] = entry
	}
	return nil
}

func sortedU64Keys(m map[uint64]Location) []uint64 {
	keys := make([]uint64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func sortedStringKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
