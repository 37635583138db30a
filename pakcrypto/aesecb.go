// Package pakcrypto implements the AES-256-ECB envelope spec §6 requires:
// AES-256, ECB mode, NoPadding, applied either to the whole serialized
// index (read side, §4.6) or to payload bytes in 16-byte chunks
// (write side, §4.7).
package pakcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"

	"github.com/kepler-assets/pakfile/pakerr"
)

const BlockSize = aes.BlockSize // 16

// DecodeKey decodes a base64 key and validates it is exactly 32 bytes
// (AES-256).
func DecodeKey(b64 string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, pakerr.Wrap(pakerr.Other, "base64 decode of AES key", err)
	}
	if len(key) != 32 {
		return nil, pakerr.Invalidf("AES key must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

// Cipher wraps an AES-256 block cipher for ECB use. There is no
// cipher.BlockMode for ECB in the standard library by design (ECB is
// mechanically a bare loop over Block.Encrypt/Decrypt, unlike CBC/GCM which
// need chaining state) so this operates directly on aes.NewCipher's Block.
type Cipher struct {
	block cipher.Block
}

func New(key []byte) (*Cipher, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, pakerr.Wrap(pakerr.Other, "aes.NewCipher", err)
	}
	return &Cipher{block: block}, nil
}

// EncryptInPlace encrypts buf, whose length must be a multiple of
// BlockSize, in place, one 16-byte block at a time (NoPadding).
func (c *Cipher) EncryptInPlace(buf []byte) error {
	if len(buf)%BlockSize != 0 {
		return pakerr.Invalidf("ECB buffer length %d is not a multiple of %d", len(buf), BlockSize)
	}
	for off := 0; off < len(buf); off += BlockSize {
		c.block.Encrypt(buf[off:off+BlockSize], buf[off:off+BlockSize])
	}
	return nil
}

// DecryptInPlace decrypts buf, whose length must be a multiple of
// BlockSize, in place, one 16-byte block at a time (NoPadding).
func (c *Cipher) DecryptInPlace(buf []byte) error {
	if len(buf)%BlockSize != 0 {
		return pakerr.Invalidf("ECB buffer length %d is not a multiple of %d", len(buf), BlockSize)
	}
	for off := 0; off < len(buf); off += BlockSize {
		c.block.Decrypt(buf[off:off+BlockSize], buf[off:off+BlockSize])
	}
	return nil
}

// Align rounds n up to the next multiple of BlockSize.
func Align(n int) int {
	if n%BlockSize == 0 {
		return n
	}
	return n + (BlockSize - n%BlockSize)
}
