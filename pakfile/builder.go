package pakfile

import (
	"bytes"
	"io"
	"log/slog"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"

	"github.com/kepler-assets/pakfile/pakchain"
	"github.com/kepler-assets/pakfile/pakcrypto"
	"github.com/kepler-assets/pakfile/pakentry"
	"github.com/kepler-assets/pakfile/pakerr"
	"github.com/kepler-assets/pakfile/pakindex"
	"github.com/kepler-assets/pakfile/paktrailer"
	"github.com/kepler-assets/pakfile/pakversion"
	"github.com/kepler-assets/pakfile/wire"
)

// defaultCompressionMethods mirrors the table paktrailer synthesizes for
// versions that predate it, used as the builder's default when the caller
// doesn't supply one.
var defaultCompressionMethods = []string{"", "Zlib", "Gzip", "Oodle"}

// WriteOptions configures NewBuilder.
type WriteOptions struct {
	Version    pakversion.Version
	MountPoint string

	// AESKeyBase64, if non-empty, is used to ECB-encrypt every asset's
	// payload bytes as they're written (§4.7). EncryptIndex additionally
	// applies the same cipher to the index at finalize time (§4.6) when the
	// version supports index encryption. EncryptIndex has no effect without
	// a key, and payload encryption follows the key alone.
	AESKeyBase64 string
	EncryptIndex bool

	// CompressionMethods, if set, replaces the default
	// ["", "Zlib", "Gzip", "Oodle"] table recorded in the trailer.
	// Element 0 must be "" (implicit).
	CompressionMethods []string

	// PathHashSeed, HasPathHashIndex and HasFullDirectoryIndex only take
	// effect when Version.UsesPathHashIndex(); a V1-format pak ignores them.
	PathHashSeed          uint64
	HasPathHashIndex      bool
	HasFullDirectoryIndex bool

	// ShowProgress reports zero-fill progress on stderr via progressbar.
	ShowProgress bool

	Logger *slog.Logger
}

// Builder accumulates assets and, on Finalize, emits the index and trailer
// (§4.7). A Builder is not safe for concurrent use; distinct Builders over
// distinct sinks may run in parallel (§5).
type Builder struct {
	w    io.Writer
	opts WriteOptions
	pos  uint64

	cipher *pakcrypto.Cipher
	guid   uuid.UUID

	v1 *pakindex.V1
	v2 *pakindex.V2

	logger *slog.Logger
}

// NewBuilder opens a builder writing to w starting at absolute position 0.
func NewBuilder(w io.Writer, opts WriteOptions) (*Builder, error) {
	b := &Builder{w: w, opts: opts, v1: pakindex.NewV1(opts.MountPoint)}

	if opts.AESKeyBase64 != "" {
		key, err := pakcrypto.DecodeKey(opts.AESKeyBase64)
		if err != nil {
			return nil, err
		}
		cipher, err := pakcrypto.New(key)
		if err != nil {
			return nil, err
		}
		b.cipher = cipher
	}

	if opts.Version.SupportsEncryptionGUID() {
		b.guid = uuid.New()
	}

	if opts.CompressionMethods == nil {
		b.opts.CompressionMethods = defaultCompressionMethods
	}

	b.logger = opts.Logger
	if b.logger == nil {
		b.logger = slog.Default()
	}

	return b, nil
}

// Pos returns the builder's current absolute output position.
func (b *Builder) Pos() uint64 { return b.pos }

type assetMode int

const (
	modeAdd assetMode = iota
	modeImport
)

// AssetWriter streams one asset's payload bytes to the builder's output,
// encrypting them in 16-byte chunks when the builder holds an AES key, and
// yields the finished entry on Close (§4.7).
type AssetWriter struct {
	b     *Builder
	name  string
	mode  assetMode
	entry *pakentry.Entry

	tee      *wire.TeeArchive
	pending  []byte
	plainLen uint64
	closed   bool
}

// AddAsset opens an asset writer in add mode: size, uncompressed_size and
// hash are computed from the bytes actually written. template supplies the
// caller-declared attributes (compression method/blocks/flags) the codec
// never computes itself (§1: "does not itself perform compress/decompress").
func (b *Builder) AddAsset(name string, template pakentry.Entry) (*AssetWriter, error) {
	entry := template
	entry.Offset = b.pos
	return b.newAssetWriter(name, modeAdd, &entry)
}

// ImportAsset opens an asset writer in import mode: entry's Size and Hash
// must match what streaming the payload bytes through actually produces,
// else Close fails with an invalid-input error (§4.7).
func (b *Builder) ImportAsset(name string, entry *pakentry.Entry) (*AssetWriter, error) {
	if entry.Offset != b.pos {
		return nil, pakerr.Invalidf("import asset %q: entry offset %d does not match current position %d", name, entry.Offset, b.pos)
	}
	imported := *entry
	return b.newAssetWriter(name, modeImport, &imported)
}

func (b *Builder) newAssetWriter(name string, mode assetMode, entry *pakentry.Entry) (*AssetWriter, error) {
	if b.cipher != nil {
		entry.Flags |= pakentry.FlagEncrypted
	}
	return &AssetWriter{
		b:     b,
		name:  name,
		mode:  mode,
		entry: entry,
		tee:   wire.NewTeeArchive(wire.NewWriter(b.w)),
	}, nil
}

// Write streams p into the asset, ECB-encrypting it in 16-byte chunks
// first if the builder holds an AES key. A final partial block is buffered
// across calls and must be flushed by Close.
func (aw *AssetWriter) Write(p []byte) (int, error) {
	if aw.closed {
		return 0, pakerr.Denyf("write on a closed asset writer")
	}
	n := len(p)
	aw.plainLen += uint64(n)

	if aw.b.cipher == nil {
		if err := aw.tee.WriteAll(p); err != nil {
			return 0, err
		}
		aw.b.pos += uint64(n)
		return n, nil
	}

	aw.pending = append(aw.pending, p...)
	for len(aw.pending) >= pakcrypto.BlockSize {
		block := append([]byte(nil), aw.pending[:pakcrypto.BlockSize]...)
		if err := aw.b.cipher.EncryptInPlace(block); err != nil {
			return 0, err
		}
		if err := aw.tee.WriteAll(block); err != nil {
			return 0, err
		}
		aw.b.pos += pakcrypto.BlockSize
		aw.pending = aw.pending[pakcrypto.BlockSize:]
	}
	return n, nil
}

// Close flushes any pending partial AES block (zero-padded), derives
// (size, hash) from the tee, patches or validates the entry depending on
// mode, and inserts it into the builder's index (§4.7).
func (aw *AssetWriter) Close() (*pakentry.Entry, error) {
	if aw.closed {
		return nil, pakerr.Denyf("asset writer already closed")
	}
	aw.closed = true

	if aw.b.cipher != nil && len(aw.pending) > 0 {
		block := make([]byte, pakcrypto.BlockSize)
		copy(block, aw.pending)
		if err := aw.b.cipher.EncryptInPlace(block); err != nil {
			return nil, err
		}
		if err := aw.tee.WriteAll(block); err != nil {
			return nil, err
		}
		aw.b.pos += pakcrypto.BlockSize
		aw.pending = nil
	}

	size := uint64(aw.tee.Len())
	hash := aw.tee.Sum20()

	switch aw.mode {
	case modeAdd:
		aw.entry.Size = size
		aw.entry.UncompressedSize = aw.plainLen
		aw.entry.Hash = hash
	case modeImport:
		if aw.entry.Size != size || aw.entry.Hash != hash {
			return nil, pakerr.Invalidf("import asset %q: observed (size=%d) does not match supplied entry (size=%d)", aw.name, size, aw.entry.Size)
		}
	}

	aw.b.v1.Add(aw.name, aw.entry)
	return aw.entry, nil
}

// AddDeleted records name as a deleted asset: flags |= DELETED, size 0, no
// payload written (§4.7).
func (b *Builder) AddDeleted(name string) {
	b.v1.Add(name, &pakentry.Entry{Offset: b.pos, Flags: pakentry.FlagDeleted})
}

// ZeroFillTo writes zero bytes up to the absolute target offset, erroring
// if target is behind the current position (§4.7, §9(b)).
func (b *Builder) ZeroFillTo(target uint64) error {
	if target < b.pos {
		return pakerr.Invalidf("zero-fill target %d is behind current position %d", target, b.pos)
	}
	const chunkSize = 4096
	remaining := target - b.pos

	var bar *progressbar.ProgressBar
	if b.opts.ShowProgress && remaining > 0 {
		bar = progressbar.DefaultBytes(int64(remaining), "zero-filling")
	}

	zeros := make([]byte, chunkSize)
	for remaining > 0 {
		n := uint64(chunkSize)
		if n > remaining {
			n = remaining
		}
		if _, err := b.w.Write(zeros[:n]); err != nil {
			return err
		}
		b.pos += n
		remaining -= n
		if bar != nil {
			_ = bar.Add64(int64(n))
		}
	}
	return nil
}

// Finalize rehomes the accumulated index into V2 if the format version
// requires it, prepares whichever secondary regions V2 needs (without
// writing them yet, so their lengths are known), writes the primary index
// first with those lengths already folded into its PathHashIndexOffset /
// FullDirectoryIndexOffset fields, then the secondary regions immediately
// after it, then the trailer — `[index][PathHashIndex][FullDirectoryIndex]
// [trailer]` (§6, §8 scenario 2). It returns the trailer actually written.
func (b *Builder) Finalize() (*paktrailer.Trailer, error) {
	var indexOffset, indexSize uint64
	var indexHash [20]byte

	indexCipher := b.cipher
	if !(b.opts.EncryptIndex && b.opts.Version.SupportsIndexEncryption()) {
		indexCipher = nil
	}

	chain := pakchain.New()

	chain.Thenf("rehome index", func() error {
		if !b.opts.Version.UsesPathHashIndex() {
			return nil
		}
		v2 := pakindex.NewV2(b.opts.MountPoint, b.opts.PathHashSeed, b.opts.HasPathHashIndex, b.opts.HasFullDirectoryIndex)
		var addErr error
		b.v1.Iter(func(name string, e *pakentry.Entry) bool {
			if _, err := v2.Add(name, e, b.opts.Version); err != nil {
				addErr = err
				return false
			}
			return true
		})
		if addErr != nil {
			return addErr
		}
		b.v2 = v2
		return nil
	})

	var pathHashOut, fullDirOut []byte

	chain.Thenf("prepare path hash index region", func() error {
		if b.v2 == nil {
			return nil
		}
		if !b.v2.HasPathHashIndex {
			b.v2.PathHashIndexOffset = -1
			return nil
		}
		out, size, sum, err := prepareRegion(indexCipher, func(ar wire.Archive) error {
			return pakindex.EncodePathHashIndexRegion(ar, b.v2)
		})
		if err != nil {
			return err
		}
		pathHashOut = out
		b.v2.PathHashIndexSize = int64(size)
		b.v2.PathHashIndexHash = sum
		return nil
	})

	chain.Thenf("prepare full directory index region", func() error {
		if b.v2 == nil {
			return nil
		}
		if !b.v2.HasFullDirectoryIndex {
			b.v2.FullDirectoryIndexOffset = 0
			return nil
		}
		out, size, sum, err := prepareRegion(indexCipher, func(ar wire.Archive) error {
			return pakindex.EncodeFullDirectoryIndexRegion(ar, b.v2)
		})
		if err != nil {
			return err
		}
		fullDirOut = out
		b.v2.FullDirectoryIndexSize = int64(size)
		b.v2.FullDirectoryIndexHash = sum
		return nil
	})

	chain.Thenf("write primary index", func() error {
		encode := func(ar wire.Archive) error {
			if b.v2 != nil {
				return pakindex.EncodePrimary(ar, b.v2, b.opts.Version)
			}
			return pakindex.EncodeV1(ar, b.v1, b.opts.Version)
		}

		// The header's offset fields are fixed-width, so a first pass with
		// placeholder zero offsets measures the real encoded length without
		// needing to know where the secondary regions will land yet.
		probeSize, err := probeRegionLen(indexCipher, encode)
		if err != nil {
			return err
		}

		if b.v2 != nil {
			next := b.pos + probeSize
			if b.v2.HasPathHashIndex {
				b.v2.PathHashIndexOffset = int64(next)
				next += uint64(b.v2.PathHashIndexSize)
			}
			if b.v2.HasFullDirectoryIndex {
				b.v2.FullDirectoryIndexOffset = int64(next)
			}
		}

		out, size, sum, err := prepareRegion(indexCipher, encode)
		if err != nil {
			return err
		}
		if size != probeSize {
			return pakerr.Otherf("primary index length changed after patching secondary offsets: probed %d, actual %d", probeSize, size)
		}
		offset, err := b.commitRegion(out)
		if err != nil {
			return err
		}
		indexOffset, indexSize, indexHash = offset, size, sum
		return nil
	})

	chain.Thenf("write path hash index region", func() error {
		if b.v2 == nil || !b.v2.HasPathHashIndex {
			return nil
		}
		offset, err := b.commitRegion(pathHashOut)
		if err != nil {
			return err
		}
		if int64(offset) != b.v2.PathHashIndexOffset {
			return pakerr.Otherf("PathHashIndex landed at %d, planned for %d", offset, b.v2.PathHashIndexOffset)
		}
		return nil
	})

	chain.Thenf("write full directory index region", func() error {
		if b.v2 == nil || !b.v2.HasFullDirectoryIndex {
			return nil
		}
		offset, err := b.commitRegion(fullDirOut)
		if err != nil {
			return err
		}
		if int64(offset) != b.v2.FullDirectoryIndexOffset {
			return pakerr.Otherf("FullDirectoryIndex landed at %d, planned for %d", offset, b.v2.FullDirectoryIndexOffset)
		}
		return nil
	})

	var trailer *paktrailer.Trailer
	chain.Thenf("write trailer", func() error {
		trailer = &paktrailer.Trailer{
			Version:            b.opts.Version,
			IndexOffset:        indexOffset,
			IndexSize:          indexSize,
			Hash:               indexHash,
			EncryptedIndex:     indexCipher != nil,
			EncryptionKeyGUID:  b.guid,
			IndexIsFrozen:      false, // never produced by this builder
			CompressionMethods: b.opts.CompressionMethods,
		}
		return paktrailer.Encode(wire.NewWriter(b.w), trailer)
	})

	if err := chain.Err(); err != nil {
		return nil, err
	}

	b.logger.Info("pak finalized",
		"entries", b.v1.Len(),
		"index_offset", indexOffset,
		"index_size", humanize.Bytes(indexSize),
		"encrypted_index", trailer.EncryptedIndex,
	)

	return trailer, nil
}

// prepareRegion serializes write's output into an in-memory buffer while
// tee-tracking its plaintext length and SHA1, zero-pads that buffer up to
// the next AES block when cipher is non-nil (folding the pad into the same
// hash, matching the reader's boundary-verification rule), then encrypts it
// in place. It does not touch the builder's position; the caller decides
// when (or whether) the bytes are actually committed to output, which lets
// a region's real length be known before any offset that depends on it is
// patched into another region still being prepared.
func prepareRegion(cipher *pakcrypto.Cipher, write func(ar wire.Archive) error) (out []byte, size uint64, sum [20]byte, err error) {
	var buf bytes.Buffer
	tee := wire.NewTeeArchive(wire.NewWriter(&buf))
	if err = write(tee); err != nil {
		return nil, 0, sum, err
	}

	if cipher != nil {
		if pad := pakcrypto.Align(int(tee.Len())) - int(tee.Len()); pad > 0 {
			if err = tee.WriteAll(make([]byte, pad)); err != nil {
				return nil, 0, sum, err
			}
		}
	}

	size = uint64(tee.Len())
	sum = tee.Sum20()

	out = buf.Bytes()
	if cipher != nil {
		if err = cipher.EncryptInPlace(out); err != nil {
			return nil, 0, sum, err
		}
	}
	return out, size, sum, nil
}

// probeRegionLen reports the byte length prepareRegion(cipher, write) would
// commit, without the caller needing to keep the bytes around. Used to
// measure the primary index's encoded length before its own
// PathHashIndexOffset/FullDirectoryIndexOffset fields can be patched in —
// those fields are fixed-width, so a zero-valued first pass measures the
// same length the final, patched pass will produce.
func probeRegionLen(cipher *pakcrypto.Cipher, write func(ar wire.Archive) error) (uint64, error) {
	out, _, _, err := prepareRegion(cipher, write)
	if err != nil {
		return 0, err
	}
	return uint64(len(out)), nil
}

// commitRegion writes already-prepared region bytes at the builder's
// current position and advances it, returning the offset they landed at.
func (b *Builder) commitRegion(out []byte) (offset uint64, err error) {
	offset = b.pos
	if _, err = b.w.Write(out); err != nil {
		return 0, err
	}
	b.pos += uint64(len(out))
	return offset, nil
}
