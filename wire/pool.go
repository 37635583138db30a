package wire

import "github.com/valyala/bytebufferpool"

// ReadAllPooled reads exactly n bytes from ar using a pooled scratch buffer,
// returning a fresh copy sized to n. Mirrors the buffer-pooled read-all
// pattern compactindexsized.Bucket.Lookup uses before running its in-memory
// binary search: avoid repeated small allocations on a path that reads a
// whole section into memory at once (the reader materializes entire index
// boundaries, §4.6).
func ReadAllPooled(ar Archive, n int) ([]byte, error) {
	bb := bytebufferpool.Get()
	defer bytebufferpool.Put(bb)
	bb.Reset()
	bb.B = append(bb.B, make([]byte, n)...)
	if err := ar.ReadExact(bb.B); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, bb.B)
	return out, nil
}
