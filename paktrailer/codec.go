package paktrailer

import (
	"strings"

	"github.com/google/uuid"
	"github.com/kepler-assets/pakfile/pakerr"
	"github.com/kepler-assets/pakfile/pakversion"
	"github.com/kepler-assets/pakfile/wire"
)

// defaultCompressionMethods is synthesized for versions that predate the
// on-wire compression-methods table (§4.5 point 7).
var defaultCompressionMethods = []string{"", "Zlib", "Gzip", "Oodle"}

// Encode writes t in the wire form for t.Version (§4.5). Caller picks the
// version; Encode does not infer it.
func Encode(ar wire.Archive, t *Trailer) error {
	v := t.Version

	if v.SupportsEncryptionGUID() {
		if err := ar.WriteAll(t.EncryptionKeyGUID[:]); err != nil {
			return err
		}
	}

	encryptedIndex := t.EncryptedIndex
	if !v.SupportsIndexEncryption() {
		encryptedIndex = false
	}
	if err := wire.WriteU8(ar, boolByte(encryptedIndex)); err != nil {
		return err
	}

	if err := wire.WriteU32(ar, Magic); err != nil {
		return err
	}
	if err := wire.WriteI32(ar, v.Raw()); err != nil {
		return err
	}

	if err := wire.WriteU64(ar, t.IndexOffset); err != nil {
		return err
	}
	if err := wire.WriteU64(ar, t.IndexSize); err != nil {
		return err
	}
	if err := ar.WriteAll(t.Hash[:]); err != nil {
		return err
	}

	if v.SupportsFrozenIndexFlag() {
		if err := wire.WriteU8(ar, boolByte(t.IndexIsFrozen)); err != nil {
			return err
		}
	}

	if v.HasCompressionMethodsTable() {
		return encodeCompressionMethodsTable(ar, t.CompressionMethods, v.MaxCompressionMethods())
	}
	return nil
}

// Decode reads a trailer assuming candidate version v. On a magic or version
// mismatch it returns a pakerr.InvalidInput error so the reader's probe can
// try the next older version (§4.6); any other error aborts the probe.
func Decode(ar wire.Archive, v pakversion.Version) (*Trailer, error) {
	t := &Trailer{Version: v}

	if v.SupportsEncryptionGUID() {
		var raw [16]byte
		if err := ar.ReadExact(raw[:]); err != nil {
			return nil, err
		}
		guid, err := uuid.FromBytes(raw[:])
		if err != nil {
			return nil, pakerr.Corruptf("trailer encryption_key_guid: %v", err)
		}
		t.EncryptionKeyGUID = guid
	}

	encryptedIndexByte, err := wire.ReadU8(ar)
	if err != nil {
		return nil, err
	}

	magic, err := wire.ReadU32(ar)
	if err != nil {
		return nil, err
	}
	if magic != Magic {
		return nil, pakerr.Invalidf("trailer magic %#x does not match %#x", magic, Magic)
	}

	versionRaw, err := wire.ReadI32(ar)
	if err != nil {
		return nil, err
	}
	if versionRaw != v.Raw() {
		return nil, pakerr.Invalidf("trailer version_raw %d does not match probed version %s (%d)", versionRaw, v, v.Raw())
	}

	if t.IndexOffset, err = wire.ReadU64(ar); err != nil {
		return nil, err
	}
	if t.IndexSize, err = wire.ReadU64(ar); err != nil {
		return nil, err
	}
	if err := ar.ReadExact(t.Hash[:]); err != nil {
		return nil, err
	}

	t.EncryptedIndex = encryptedIndexByte != 0
	if !v.SupportsIndexEncryption() {
		t.EncryptedIndex = false
	}

	if v.SupportsFrozenIndexFlag() {
		frozenByte, err := wire.ReadU8(ar)
		if err != nil {
			return nil, err
		}
		t.IndexIsFrozen = frozenByte != 0
	}

	if v.HasCompressionMethodsTable() {
		methods, err := decodeCompressionMethodsTable(ar, v.MaxCompressionMethods())
		if err != nil {
			return nil, err
		}
		t.CompressionMethods = methods
	} else {
		t.CompressionMethods = append([]string(nil), defaultCompressionMethods...)
	}

	return t, nil
}

func encodeCompressionMethodsTable(ar wire.Archive, methods []string, numSlots int) error {
	buf := make([]byte, numSlots*compressionMethodNameLen)
	stored := methods
	if len(stored) > 0 {
		stored = stored[1:] // slot 0 ("none") is implicit, never stored
	}
	for i, m := range stored {
		if i >= numSlots {
			return pakerr.Invalidf("too many compression methods: %d exceeds %d stored slots", len(stored), numSlots)
		}
		if len(m) > compressionMethodNameLen {
			return pakerr.Invalidf("compression method name %q exceeds %d bytes", m, compressionMethodNameLen)
		}
		copy(buf[i*compressionMethodNameLen:], m)
	}
	return ar.WriteAll(buf)
}

func decodeCompressionMethodsTable(ar wire.Archive, numSlots int) ([]string, error) {
	buf := make([]byte, numSlots*compressionMethodNameLen)
	if err := ar.ReadExact(buf); err != nil {
		return nil, err
	}
	methods := make([]string, 0, numSlots+1)
	methods = append(methods, "")
	for i := 0; i < numSlots; i++ {
		slot := buf[i*compressionMethodNameLen : (i+1)*compressionMethodNameLen]
		methods = append(methods, strings.TrimRight(string(slot), "\x00"))
	}
	// Unused trailing slots are all-NUL; drop them so the table round-trips
	// to the names that were actually stored.
	for len(methods) > 1 && methods[len(methods)-1] == "" {
		methods = methods[:len(methods)-1]
	}
	return methods, nil
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
