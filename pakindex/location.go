package pakindex

import "github.com/kepler-assets/pakfile/wire"

// Kind tags what a Location resolves to (§3).
type Kind int

const (
	KindOffset Kind = iota
	KindIndex
	KindDeleted
)

// Location is the i32 tagged value V2 stores for every name: a byte offset
// into the compact-entry blob, an index into the files fallback list, or
// the deleted sentinel (§3).
type Location struct {
	Kind  Kind
	Value int
}

func OffsetLocation(offset int) Location { return Location{Kind: KindOffset, Value: offset} }
func IndexLocation(index int) Location   { return Location{Kind: KindIndex, Value: index} }
func DeletedLocation() Location          { return Location{Kind: KindDeleted} }

// Raw packs a Location into the i32 the wire format actually stores:
// 0..=i32::MAX-1 is an Offset, i32::MIN+1..=-1 is -(Index)-1, i32::MIN is
// Deleted (§3).
func (l Location) Raw() int32 {
	switch l.Kind {
	case KindOffset:
		return int32(l.Value)
	case KindIndex:
		return -int32(l.Value) - 1
	default:
		return -(1 << 31)
	}
}

// FromRaw is Raw's inverse.
func FromRaw(raw int32) Location {
	const max = int32(1<<31 - 1 - 1) // i32::MAX - 1
	const min = -max - 1
	switch {
	case raw >= min && raw <= -1:
		return IndexLocation(int(-(raw + 1)))
	case raw >= 0 && raw <= max:
		return OffsetLocation(int(raw))
	default:
		return DeletedLocation()
	}
}

func ReadLocation(ar wire.Archive) (Location, error) {
	raw, err := wire.ReadI32(ar)
	if err != nil {
		return Location{}, err
	}
	return FromRaw(raw), nil
}

func WriteLocation(ar wire.Archive, l Location) error {
	return wire.WriteI32(ar, l.Raw())
}
