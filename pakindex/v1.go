package pakindex

import (
	"github.com/kepler-assets/pakfile/pakentry"
	"github.com/kepler-assets/pakfile/pakversion"
	"github.com/kepler-assets/pakfile/wire"
)

type namedEntry struct {
	Name  string
	Entry *pakentry.Entry
}

// V1 is the flat (mount_point, [(name, entry)]) index (§3, §4.4). byName is
// rebuilt after every decode; it is never itself serialized.
type V1 struct {
	MountPoint string

	files  []namedEntry
	byName map[string]int
}

func NewV1(mountPoint string) *V1 {
	return &V1{MountPoint: mountPoint, byName: make(map[string]int)}
}

func (v *V1) Find(name string) (*pakentry.Entry, bool) {
	idx, ok := v.byName[name]
	if !ok {
		return nil, false
	}
	return v.files[idx].Entry, true
}

func (v *V1) Iter(yield func(name string, e *pakentry.Entry) bool) {
	for _, f := range v.files {
		if !yield(f.Name, f.Entry) {
			return
		}
	}
}

func (v *V1) Len() int { return len(v.files) }

func (v *V1) Clear() {
	v.files = nil
	v.byName = make(map[string]int)
}

// Add appends a named entry, overwriting byName's lookup if the name was
// already present (the last write for a given name wins, matching the
// original's map-of-index-into-files rebuild).
func (v *V1) Add(name string, e *pakentry.Entry) {
	idx := len(v.files)
	v.files = append(v.files, namedEntry{Name: name, Entry: e})
	v.byName[name] = idx
}

// EncodeV1 writes v as (mount_point, count, [(name, entry_full_form)]) per
// §4.4.
func EncodeV1(ar wire.Archive, v *V1, version pakversion.Version) error {
	if err := wire.WriteString(ar, v.MountPoint); err != nil {
		return err
	}
	if err := wire.WriteU32(ar, uint32(len(v.files))); err != nil {
		return err
	}
	for _, f := range v.files {
		if err := wire.WriteString(ar, f.Name); err != nil {
			return err
		}
		if err := pakentry.EncodeFull(ar, f.Entry, version); err != nil {
			return err
		}
	}
	return nil
}

// DecodeV1 reads a V1 index and rebuilds the name lookup map.
func DecodeV1(ar wire.Archive, version pakversion.Version) (*V1, error) {
	mountPoint, err := wire.ReadString(ar)
	if err != nil {
		return nil, err
	}
	n, err := wire.ReadU32(ar)
	if err != nil {
		return nil, err
	}
	v := NewV1(mountPoint)
	for i := uint32(0); i < n; i++ {
		name, err := wire.ReadString(ar)
		if err != nil {
			return nil, err
		}
		entry, err := pakentry.DecodeFull(ar, version)
		if err != nil {
			return nil, err
		}
		v.Add(name, entry)
	}
	return v, nil
}
