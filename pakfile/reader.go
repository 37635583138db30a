// Package pakfile ties the trailer probe (D), the two index flavors (E/F),
// and the entry codec (C) together into a reader and a builder: the two
// entry points an external caller actually uses (§4.6, §4.7).
package pakfile

import (
	"bytes"
	"io"
	"os"

	"github.com/kepler-assets/pakfile/pakcrypto"
	"github.com/kepler-assets/pakfile/pakentry"
	"github.com/kepler-assets/pakfile/pakerr"
	"github.com/kepler-assets/pakfile/pakindex"
	"github.com/kepler-assets/pakfile/paktrailer"
	"github.com/kepler-assets/pakfile/pakversion"
	"github.com/kepler-assets/pakfile/wire"
	"golang.org/x/sys/unix"
)

// ReadOptions configures Open.
type ReadOptions struct {
	// AESKeyBase64 decrypts the index when the trailer reports
	// encrypted_index; ignored otherwise. Decoding fails with
	// pakerr.InvalidInput if the trailer needs it and it is empty (an empty
	// string decodes to zero key bytes, not 32).
	AESKeyBase64 string
}

// Reader is an opened PakFile: its trailer and its materialized index.
// A Reader is not safe for concurrent use; distinct Readers over distinct
// sources may run in parallel (§5).
type Reader struct {
	Trailer *paktrailer.Trailer
	Version pakversion.Version

	v1 *pakindex.V1
	v2 *pakindex.V2
}

// Open reads the trailer (probing versions newest to oldest), then
// decrypts (if needed) and decodes the index, verifying every chained
// length+SHA1 boundary the index tree crosses (§4.6).
func Open(rs io.ReadSeeker, opts ReadOptions) (*Reader, error) {
	maybeFadviseRandom(rs)

	trailer, version, err := probeTrailer(rs)
	if err != nil {
		return nil, err
	}

	if version.SupportsFrozenIndexFlag() && trailer.IndexIsFrozen {
		return nil, pakerr.Denyf("index is frozen, which this reader does not support")
	}

	var cipher *pakcrypto.Cipher
	if trailer.EncryptedIndex {
		key, err := pakcrypto.DecodeKey(opts.AESKeyBase64)
		if err != nil {
			return nil, err
		}
		cipher, err = pakcrypto.New(key)
		if err != nil {
			return nil, err
		}
	}

	r := &Reader{Trailer: trailer, Version: version}

	if err := readBoundary(rs, trailer.IndexOffset, trailer.IndexSize, trailer.Hash, "PakIndex", cipher,
		func(ar wire.Archive) error {
			if version.UsesPathHashIndex() {
				v2, err := pakindex.DecodePrimary(ar, version)
				if err != nil {
					return err
				}
				r.v2 = v2
				return nil
			}
			v1, err := pakindex.DecodeV1(ar, version)
			if err != nil {
				return err
			}
			r.v1 = v1
			return nil
		}); err != nil {
		return nil, err
	}

	if r.v2 == nil {
		return r, nil
	}

	if r.v2.HasPathHashIndex && r.v2.PathHashIndexOffset != -1 {
		if r.v2.PathHashIndexOffset < 0 {
			return nil, pakerr.Corruptf("PathHashIndex offset %d is negative", r.v2.PathHashIndexOffset)
		}
		if err := readBoundary(rs, uint64(r.v2.PathHashIndexOffset), uint64(r.v2.PathHashIndexSize), r.v2.PathHashIndexHash, "PathHashIndex", cipher,
			func(ar wire.Archive) error {
				return pakindex.DecodePathHashIndexRegion(ar, r.v2)
			}); err != nil {
			return nil, err
		}
		if err := r.v2.MaterializeDecodedEntries(version); err != nil {
			return nil, err
		}
	}

	if r.v2.HasFullDirectoryIndex && r.v2.FullDirectoryIndexOffset != 0 {
		if r.v2.FullDirectoryIndexOffset < 0 {
			return nil, pakerr.Corruptf("FullDirectoryIndex offset %d is negative", r.v2.FullDirectoryIndexOffset)
		}
		if err := readBoundary(rs, uint64(r.v2.FullDirectoryIndexOffset), uint64(r.v2.FullDirectoryIndexSize), r.v2.FullDirectoryIndexHash, "FullDirectoryIndex", cipher,
			func(ar wire.Archive) error {
				return pakindex.DecodeFullDirectoryIndexRegion(ar, r.v2)
			}); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// Find resolves a stored asset's entry by its pak-internal name, dispatching
// to whichever index flavor this pak actually uses.
func (r *Reader) Find(name string) (*pakentry.Entry, bool) {
	if r.v2 != nil {
		return r.v2.Find(name, r.Version)
	}
	return r.v1.Find(name)
}

// Iter visits every named entry in mount-order (V1) or path-hash order
// (V2), giving external callers a single flat view regardless of index
// flavor (§6).
func (r *Reader) Iter(yield func(name string, e *pakentry.Entry) bool) {
	if r.v1 != nil {
		r.v1.Iter(yield)
		return
	}
	// V2 has no stored name, only its hash; callers that need names off a
	// V2 pak use IterDirectory instead, which does carry path segments.
	r.v2.Entries(func(e *pakentry.Entry) bool { return yield("", e) })
}

// IterDirectory visits every (dir, leaf, entry) triple of a V2 pak's full
// directory index. It yields nothing for a V1 pak or a V2 pak built
// without directory indexing.
func (r *Reader) IterDirectory(yield func(dir, leaf string, e *pakentry.Entry) bool) {
	if r.v2 == nil {
		return
	}
	r.v2.FullEntries(func(dir, leaf string, loc pakindex.Location) bool {
		e := r.v2.Resolve(loc)
		if e == nil {
			return true
		}
		return yield(dir, leaf, e)
	})
}

// V1Index exposes the flat index directly, or nil if this pak uses V2.
func (r *Reader) V1Index() *pakindex.V1 { return r.v1 }

// V2Index exposes the hash/directory index directly, or nil if this pak
// uses V1.
func (r *Reader) V2Index() *pakindex.V2 { return r.v2 }

func probeTrailer(rs io.ReadSeeker) (*paktrailer.Trailer, pakversion.Version, error) {
	end, err := rs.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, 0, err
	}

	for _, v := range pakversion.Descending() {
		size := int64(paktrailer.Size(v))
		if size >= end {
			continue
		}
		if _, err := rs.Seek(end-size, io.SeekStart); err != nil {
			return nil, 0, err
		}
		t, err := paktrailer.Decode(wire.NewReader(rs), v)
		if err == nil {
			return t, v, nil
		}
		if !pakerr.Is(err, pakerr.InvalidInput) {
			return nil, 0, err
		}
	}

	return nil, 0, pakerr.Invalidf("no compatible trailer version found")
}

// readBoundary seeks to offset, reads size bytes (decrypting them first if
// cipher is non-nil), decodes the region's structure through a length+SHA1
// tee, then folds any trailing padding below size into the same tee before
// asserting the accumulated length and digest match what the parent region
// recorded (§4.6). AES-256-ECB's blocks are independent, so decrypting each
// boundary's ciphertext fresh from a seek produces identical plaintext to
// one continuous cipher stream spanning every boundary.
func readBoundary(
	rs io.ReadSeeker,
	offset, size uint64,
	expectedHash [20]byte,
	label string,
	cipher *pakcrypto.Cipher,
	decode func(ar wire.Archive) error,
) error {
	if _, err := rs.Seek(int64(offset), io.SeekStart); err != nil {
		return err
	}

	var src io.Reader
	if cipher != nil {
		buf, err := wire.ReadAllPooled(wire.NewReader(rs), int(size))
		if err != nil {
			return err
		}
		if err := cipher.DecryptInPlace(buf); err != nil {
			return err
		}
		src = bytes.NewReader(buf)
	} else {
		src = io.LimitReader(rs, int64(size))
	}

	tee := wire.NewTeeArchive(wire.NewReader(src))
	if err := decode(tee); err != nil {
		if pakerr.Is(err, pakerr.EOF) {
			return pakerr.Wrap(pakerr.InvalidData, label+": structure runs past the declared region", err)
		}
		return err
	}

	if remaining := int64(size) - tee.Len(); remaining > 0 {
		pad := make([]byte, remaining)
		if err := tee.ReadExact(pad); err != nil {
			return err
		}
	} else if remaining < 0 {
		return pakerr.Corruptf("%s: decoded %d bytes, exceeding declared size %d", label, tee.Len(), size)
	}

	if tee.Len() != int64(size) {
		return pakerr.Corruptf("%s: length mismatch: decoded %d, declared %d", label, tee.Len(), size)
	}
	if tee.Sum20() != expectedHash {
		return pakerr.Corruptf("%s: SHA1 mismatch", label)
	}
	return nil
}

// maybeFadviseRandom hints the kernel that the pak will be accessed
// non-sequentially (trailer at the end, index wherever it lands, payload
// never touched by this reader), mirroring the cache-warmup hint the
// teacher's sized-index reader gives before a query.
func maybeFadviseRandom(rs io.ReadSeeker) {
	f, ok := rs.(*os.File)
	if !ok {
		return
	}
	_ = unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_RANDOM)
}
