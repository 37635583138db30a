// Package wire implements the byte-archive abstraction (component A) and
// the primitive codec (component B) shared by every higher-level codec in
// this module.
package wire

import (
	"crypto/sha1"
	"hash"
	"io"

	"github.com/kepler-assets/pakfile/pakerr"
)

// Mode flags which direction an Archive is permitted to move bytes.
type Mode int

const (
	ModeRead Mode = iota
	ModeWrite
)

// Archive is the single read/write surface every codec in this module is
// built on. A given instance is permitted to move bytes in only one
// direction; the wrong direction returns a PermissionDenied error.
type Archive interface {
	Mode() Mode
	ReadExact(buf []byte) error
	WriteAll(buf []byte) error
}

// baseReader adapts an io.Reader into a read-only Archive.
type baseReader struct{ r io.Reader }

func NewReader(r io.Reader) Archive { return &baseReader{r: r} }

func (b *baseReader) Mode() Mode { return ModeRead }

func (b *baseReader) ReadExact(buf []byte) error {
	_, err := io.ReadFull(b.r, buf)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return pakerr.Wrap(pakerr.EOF, "read_exact", err)
	}
	return err
}

func (b *baseReader) WriteAll([]byte) error {
	return pakerr.Denyf("write_all called on a read-only archive")
}

// baseWriter adapts an io.Writer into a write-only Archive.
type baseWriter struct{ w io.Writer }

func NewWriter(w io.Writer) Archive { return &baseWriter{w: w} }

func (b *baseWriter) Mode() Mode { return ModeWrite }

func (b *baseWriter) ReadExact([]byte) error {
	return pakerr.Denyf("read_exact called on a write-only archive")
}

func (b *baseWriter) WriteAll(buf []byte) error {
	_, err := b.w.Write(buf)
	return err
}

// LengthArchive discards every byte and only counts how many passed
// through it. Used to compute a structure's on-wire length before actually
// writing it (encode_len == bytes_written(encode(x))).
type LengthArchive struct {
	mode Mode
	n    int64
}

func NewLengthArchive(mode Mode) *LengthArchive { return &LengthArchive{mode: mode} }

func (l *LengthArchive) Mode() Mode { return l.mode }

func (l *LengthArchive) ReadExact(buf []byte) error {
	if l.mode != ModeRead {
		return pakerr.Denyf("read_exact called on a write-mode length archive")
	}
	l.n += int64(len(buf))
	return nil
}

func (l *LengthArchive) WriteAll(buf []byte) error {
	if l.mode != ModeWrite {
		return pakerr.Denyf("write_all called on a read-mode length archive")
	}
	l.n += int64(len(buf))
	return nil
}

func (l *LengthArchive) Len() int64 { return l.n }

// TeeArchive forwards every read or write to an inner Archive while
// maintaining a running byte count and a running SHA1 over the same bytes.
// Tees compose: the builder wraps an outer writer in a tee per asset to
// compute the payload SHA1 at streaming speed (§4.1, §4.7).
type TeeArchive struct {
	inner Archive
	h     hash.Hash
	n     int64
}

func NewTeeArchive(inner Archive) *TeeArchive {
	return &TeeArchive{inner: inner, h: sha1.New()}
}

func (t *TeeArchive) Mode() Mode { return t.inner.Mode() }

func (t *TeeArchive) ReadExact(buf []byte) error {
	if err := t.inner.ReadExact(buf); err != nil {
		return err
	}
	t.h.Write(buf)
	t.n += int64(len(buf))
	return nil
}

func (t *TeeArchive) WriteAll(buf []byte) error {
	if err := t.inner.WriteAll(buf); err != nil {
		return err
	}
	t.h.Write(buf)
	t.n += int64(len(buf))
	return nil
}

// Len returns the number of bytes that have passed through the tee so far.
func (t *TeeArchive) Len() int64 { return t.n }

// Sum20 returns the running SHA1 digest so far without resetting it.
func (t *TeeArchive) Sum20() [20]byte {
	var out [20]byte
	copy(out[:], t.h.Sum(nil))
	return out
}
