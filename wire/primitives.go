package wire

import (
	"encoding/binary"
	"math"
	"sort"
	"unicode/utf8"

	"github.com/kepler-assets/pakfile/pakerr"
)

// Fixed-width little-endian integers (§4.2). These mirror the direct
// binary.LittleEndian usage compactindexsized/header.go makes for its own
// fixed fields rather than routing through reflection-based codecs.

func ReadU8(ar Archive) (uint8, error) {
	var buf [1]byte
	if err := ar.ReadExact(buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func WriteU8(ar Archive, v uint8) error {
	return ar.WriteAll([]byte{v})
}

func ReadU16(ar Archive) (uint16, error) {
	var buf [2]byte
	if err := ar.ReadExact(buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(buf[:]), nil
}

func WriteU16(ar Archive, v uint16) error {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	return ar.WriteAll(buf[:])
}

func ReadU32(ar Archive) (uint32, error) {
	var buf [4]byte
	if err := ar.ReadExact(buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func WriteU32(ar Archive, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return ar.WriteAll(buf[:])
}

func ReadU64(ar Archive) (uint64, error) {
	var buf [8]byte
	if err := ar.ReadExact(buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

func WriteU64(ar Archive, v uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return ar.WriteAll(buf[:])
}

func ReadI32(ar Archive) (int32, error) {
	v, err := ReadU32(ar)
	return int32(v), err
}

func WriteI32(ar Archive, v int32) error {
	return WriteU32(ar, uint32(v))
}

func ReadI64(ar Archive) (int64, error) {
	v, err := ReadU64(ar)
	return int64(v), err
}

func WriteI64(ar Archive, v int64) error {
	return WriteU64(ar, uint64(v))
}

// Bool is encoded as a u32 in every context except the trailer's
// encrypted_index/index_is_frozen bytes, which paktrailer codes directly as
// a single byte per §4.5/§9's bool-width asymmetry note.

func ReadBool32(ar Archive) (bool, error) {
	v, err := ReadU32(ar)
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

func WriteBool32(ar Archive, v bool) error {
	if v {
		return WriteU32(ar, 1)
	}
	return WriteU32(ar, 0)
}

// String is a u32 length L including the terminating NUL, followed by L
// bytes; the last byte must be 0; interior bytes must be valid UTF-8 (§4.2).

func ReadString(ar Archive) (string, error) {
	l, err := ReadU32(ar)
	if err != nil {
		return "", err
	}
	if l == 0 {
		return "", nil
	}
	buf := make([]byte, l)
	if err := ar.ReadExact(buf); err != nil {
		return "", err
	}
	if buf[len(buf)-1] != 0 {
		return "", pakerr.Corruptf("string not NUL-terminated")
	}
	body := buf[:len(buf)-1]
	if !utf8.Valid(body) {
		return "", pakerr.Otherf("string contains invalid UTF-8")
	}
	return string(body), nil
}

func WriteString(ar Archive, s string) error {
	l := uint64(len(s)) + 1
	if l > math.MaxUint32 {
		return pakerr.Invalidf("string length %d overflows u32", l)
	}
	if err := WriteU32(ar, uint32(l)); err != nil {
		return err
	}
	if err := ar.WriteAll([]byte(s)); err != nil {
		return err
	}
	return ar.WriteAll([]byte{0})
}

// ReadVector reads a u32 count followed by count encoded Ts.
func ReadVector[T any](ar Archive, readOne func(Archive) (T, error)) ([]T, error) {
	n, err := ReadU32(ar)
	if err != nil {
		return nil, err
	}
	out := make([]T, n)
	for i := range out {
		v, err := readOne(ar)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// WriteVector writes a u32 count followed by count encoded Ts.
func WriteVector[T any](ar Archive, items []T, writeOne func(Archive, T) error) error {
	if uint64(len(items)) > math.MaxUint32 {
		return pakerr.Invalidf("vector length %d overflows u32", len(items))
	}
	if err := WriteU32(ar, uint32(len(items))); err != nil {
		return err
	}
	for _, it := range items {
		if err := writeOne(ar, it); err != nil {
			return err
		}
	}
	return nil
}

// ReadOrderedMap reads a u32 count followed by count key/value pairs into a
// Go map. The returned map keeps no key order; callers that iterate it sort
// the keys themselves.
func ReadOrderedMap[K Ordered, V any](
	ar Archive,
	readKey func(Archive) (K, error),
	readValue func(Archive) (V, error),
) (map[K]V, error) {
	n, err := ReadU32(ar)
	if err != nil {
		return nil, err
	}
	out := make(map[K]V, n)
	for i := uint32(0); i < n; i++ {
		k, err := readKey(ar)
		if err != nil {
			return nil, err
		}
		v, err := readValue(ar)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

// WriteOrderedMap writes a u32 count followed by count key/value pairs in
// ascending key order.
func WriteOrderedMap[K Ordered, V any](
	ar Archive,
	m map[K]V,
	writeKey func(Archive, K) error,
	writeValue func(Archive, V) error,
) error {
	if uint64(len(m)) > math.MaxUint32 {
		return pakerr.Invalidf("map length %d overflows u32", len(m))
	}
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	if err := WriteU32(ar, uint32(len(m))); err != nil {
		return err
	}
	for _, k := range keys {
		if err := writeKey(ar, k); err != nil {
			return err
		}
		if err := writeValue(ar, m[k]); err != nil {
			return err
		}
	}
	return nil
}

// Ordered constrains the key types ReadOrderedMap/WriteOrderedMap accept.
type Ordered interface {
	~string | ~int | ~int32 | ~int64 | ~uint32 | ~uint64
}
