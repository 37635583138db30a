package pakentry

import (
	"github.com/kepler-assets/pakfile/pakerr"
	"github.com/kepler-assets/pakfile/pakversion"
	"github.com/kepler-assets/pakfile/wire"
)

// EncodeFull writes an entry in full form (§4.3). Used by V1 and by V2's
// files fallback list.
func EncodeFull(ar wire.Archive, e *Entry, v pakversion.Version) error {
	if err := wire.WriteU64(ar, e.Offset); err != nil {
		return err
	}
	if err := wire.WriteU64(ar, e.Size); err != nil {
		return err
	}
	if err := wire.WriteU64(ar, e.UncompressedSize); err != nil {
		return err
	}

	if err := encodeCompressionSelector(ar, e, v); err != nil {
		return err
	}

	if v.HasTicksField() {
		if err := ar.WriteAll(make([]byte, 8)); err != nil {
			return err
		}
	}

	if err := ar.WriteAll(e.Hash[:]); err != nil {
		return err
	}

	if v.HasCompressionBlocks() {
		if e.CompressionMethodIndex != CompressionNone {
			if err := wire.WriteVector(ar, e.CompressionBlocks, writeBlock); err != nil {
				return err
			}
		}
		if err := wire.WriteU8(ar, e.Flags); err != nil {
			return err
		}
		if err := wire.WriteU32(ar, e.CompressionBlockSize); err != nil {
			return err
		}
	}

	return nil
}

// DecodeFull reads an entry in full form (§4.3).
func DecodeFull(ar wire.Archive, v pakversion.Version) (*Entry, error) {
	e := &Entry{}
	var err error
	if e.Offset, err = wire.ReadU64(ar); err != nil {
		return nil, err
	}
	if e.Size, err = wire.ReadU64(ar); err != nil {
		return nil, err
	}
	if e.UncompressedSize, err = wire.ReadU64(ar); err != nil {
		return nil, err
	}

	if err := decodeCompressionSelector(ar, e, v); err != nil {
		return nil, err
	}

	if v.HasTicksField() {
		var ticks [8]byte
		if err := ar.ReadExact(ticks[:]); err != nil {
			return nil, err
		}
	}

	if err := ar.ReadExact(e.Hash[:]); err != nil {
		return nil, err
	}

	if v.HasCompressionBlocks() {
		if e.CompressionMethodIndex != CompressionNone {
			blocks, err := wire.ReadVector(ar, readBlock)
			if err != nil {
				return nil, err
			}
			e.CompressionBlocks = blocks
		}
		if e.Flags, err = wire.ReadU8(ar); err != nil {
			return nil, err
		}
		if e.CompressionBlockSize, err = wire.ReadU32(ar); err != nil {
			return nil, err
		}
	}

	return e, nil
}

func writeBlock(ar wire.Archive, b CompressionBlock) error {
	if err := wire.WriteI64(ar, b.CompressedStart); err != nil {
		return err
	}
	return wire.WriteI64(ar, b.CompressedEnd)
}

func readBlock(ar wire.Archive) (CompressionBlock, error) {
	start, err := wire.ReadI64(ar)
	if err != nil {
		return CompressionBlock{}, err
	}
	end, err := wire.ReadI64(ar)
	if err != nil {
		return CompressionBlock{}, err
	}
	return CompressionBlock{CompressedStart: start, CompressedEnd: end}, nil
}

func encodeCompressionSelector(ar wire.Archive, e *Entry, v pakversion.Version) error {
	switch {
	case v.UsesLegacyCompressionFlags():
		var flags int32
		switch e.CompressionMethodIndex {
		case CompressionNone:
			flags = 0
		case CompressionZlib:
			flags = 0x01
		case CompressionGzip:
			flags = 0x02
		case CompressionCustom:
			flags = 0x04
		default:
			return pakerr.Invalidf("legacy compression selector cannot represent method index %d", e.CompressionMethodIndex)
		}
		return wire.WriteI32(ar, flags)
	case v.Uses422CompressionWorkaround():
		if e.CompressionMethodIndex > 0xff {
			return pakerr.Invalidf("4.22 compression workaround method index %d overflows u8", e.CompressionMethodIndex)
		}
		return wire.WriteU8(ar, uint8(e.CompressionMethodIndex))
	default:
		return wire.WriteU32(ar, e.CompressionMethodIndex)
	}
}

func decodeCompressionSelector(ar wire.Archive, e *Entry, v pakversion.Version) error {
	switch {
	case v.UsesLegacyCompressionFlags():
		flags, err := wire.ReadI32(ar)
		if err != nil {
			return err
		}
		switch flags {
		case 0:
			e.CompressionMethodIndex = CompressionNone
		case 0x01:
			e.CompressionMethodIndex = CompressionZlib
		case 0x02:
			e.CompressionMethodIndex = CompressionGzip
		case 0x04:
			e.CompressionMethodIndex = CompressionCustom
		default:
			return pakerr.Otherf("unknown legacy compression flag combination: %#x", flags)
		}
		return nil
	case v.Uses422CompressionWorkaround():
		b, err := wire.ReadU8(ar)
		if err != nil {
			return err
		}
		e.CompressionMethodIndex = uint32(b)
		return nil
	default:
		m, err := wire.ReadU32(ar)
		if err != nil {
			return err
		}
		e.CompressionMethodIndex = m
		return nil
	}
}
