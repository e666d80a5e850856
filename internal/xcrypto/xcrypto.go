// Package xcrypto implements D4FT's key derivation and the
// XChaCha20-Poly1305 STREAM encryptor/decryptor that rides on top of
// internal/wire's frame headers.
package xcrypto

import (
	"crypto/cipher"
	"encoding/binary"
	"encoding/json"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"

	"github.com/dacid44/d4ft4/internal/d4ferr"
	"github.com/dacid44/d4ft4/internal/wire"
)

const (
	// KeySize is the size in bytes of a derived symmetric key.
	KeySize = 32

	// SaltSize is the size in bytes of a KDF salt.
	SaltSize = 32

	// NoncePrefixSize is the size in bytes of the per-session random
	// nonce prefix exchanged during the handshake.
	NoncePrefixSize = 19

	// TagSize is the size in bytes of the Poly1305 authentication tag.
	TagSize = chacha20poly1305.Overhead

	// FileChunkSize is the maximum number of plaintext bytes carried by
	// one file-body frame.
	FileChunkSize = 4 << 20 // 4 MiB

	// scrypt parameters, bit-exact per the wire protocol: log2(N)=16,
	// r=8, p=1, dkLen=32.
	scryptN = 1 << 16
	scryptR = 8
	scryptP = 1

	// maxFramePayload bounds a single encrypted frame's ciphertext+tag
	// length: the larger of a file chunk and the control-message
	// ceiling, both plus the AEAD tag.
	maxFramePayload = max(FileChunkSize, wire.MaxControlMessageSize) + TagSize
)

// DeriveKey runs the scrypt KDF over password and salt, producing a
// 32-byte symmetric key. This is CPU-bound and takes tens of
// milliseconds by design (N=2^16); callers on a cooperative scheduler
// should run it on a worker goroutine rather than inline on an I/O path
// — see handshake.deriveBothKeys for the pattern this package expects.
func DeriveKey(password string, salt []byte) ([]byte, error) {
	if len(salt) != SaltSize {
		return nil, d4ferr.New(d4ferr.KindMalformedMessage, "salt must be 32 bytes")
	}
	key, err := scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, KeySize)
	if err != nil {
		return nil, d4ferr.Wrap(d4ferr.KindEncryption, err)
	}
	return key, nil
}

// buildNonce constructs the 24-byte XChaCha20-Poly1305 nonce for frame
// counter from prefix: prefix(19) || counter(4, big-endian) ||
// lastFlag(1, always zero — D4FT signals end-of-stream with an empty
// frame instead of toggling this bit per the STREAM construction).
func buildNonce(prefix [NoncePrefixSize]byte, counter uint32) [chacha20poly1305.NonceSizeX]byte {
	var nonce [chacha20poly1305.NonceSizeX]byte
	copy(nonce[:NoncePrefixSize], prefix[:])
	binary.BigEndian.PutUint32(nonce[NoncePrefixSize:NoncePrefixSize+4], counter)
	// nonce[23] (the last-flag byte) stays zero.
	return nonce
}

// Encryptor owns one direction's write half and keystream counter. A
// Session holds exactly one Encryptor, bound to the write half of the
// underlying stream, for its entire lifetime.
type Encryptor struct {
	aead    cipher.AEAD
	prefix  [NoncePrefixSize]byte
	counter uint32
	w       io.Writer
}

// NewEncryptor derives the session key from password and salt and binds
// the resulting Encryptor to w. Key derivation happens synchronously
// here; dispatch to a worker goroutine at the call site if it must not
// block other sessions.
func NewEncryptor(password string, salt []byte, noncePrefix [NoncePrefixSize]byte, w io.Writer) (*Encryptor, error) {
	key, err := DeriveKey(password, salt)
	if err != nil {
		return nil, err
	}
	return NewEncryptorWithKey(key, noncePrefix, w)
}

// NewEncryptorWithKey binds an Encryptor to an already-derived key. Used
// by the handshake engine once both directional keys have been derived
// concurrently.
func NewEncryptorWithKey(key []byte, noncePrefix [NoncePrefixSize]byte, w io.Writer) (*Encryptor, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, d4ferr.Wrap(d4ferr.KindEncryption, err)
	}
	return &Encryptor{aead: aead, prefix: noncePrefix, w: w}, nil
}

// Encode JSON-encodes v and writes it as one encrypted data frame.
func (e *Encryptor) Encode(v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return d4ferr.Wrap(d4ferr.KindJSONEncode, err)
	}
	return e.encodeData(body)
}

// EncodeFile streams r's contents as a sequence of encrypted frames of
// up to FileChunkSize plaintext bytes each, terminated by one
// zero-length frame.
func (e *Encryptor) EncodeFile(r io.Reader) error {
	buf := make([]byte, FileChunkSize)
	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			if encErr := e.encodeData(buf[:n]); encErr != nil {
				return encErr
			}
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return e.encodeData(nil)
		}
		if err != nil {
			return d4ferr.Wrap(d4ferr.KindFileRead, err)
		}
	}
}

// encodeData encrypts data with the frame header as associated data and
// writes header || ciphertext || tag.
func (e *Encryptor) encodeData(data []byte) error {
	nonce := buildNonce(e.prefix, e.counter)
	e.counter++

	header := wire.EncodeHeader(len(data) + TagSize)

	sealed := e.aead.Seal(nil, nonce[:], data, header)

	if _, err := e.w.Write(header); err != nil {
		return d4ferr.Wrap(d4ferr.KindSocketError, err)
	}
	if _, err := e.w.Write(sealed); err != nil {
		return d4ferr.Wrap(d4ferr.KindSocketError, err)
	}
	return nil
}

// Decryptor owns one direction's read half and keystream counter.
type Decryptor struct {
	aead    cipher.AEAD
	prefix  [NoncePrefixSize]byte
	counter uint32
	r       io.Reader
}

// NewDecryptor derives the session key from password and salt and binds
// the resulting Decryptor to r.
func NewDecryptor(password string, salt []byte, noncePrefix [NoncePrefixSize]byte, r io.Reader) (*Decryptor, error) {
	key, err := DeriveKey(password, salt)
	if err != nil {
		return nil, err
	}
	return NewDecryptorWithKey(key, noncePrefix, r)
}

// NewDecryptorWithKey binds a Decryptor to an already-derived key.
func NewDecryptorWithKey(key []byte, noncePrefix [NoncePrefixSize]byte, r io.Reader) (*Decryptor, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, d4ferr.Wrap(d4ferr.KindEncryption, err)
	}
	return &Decryptor{aead: aead, prefix: noncePrefix, r: r}, nil
}

// Decode reads one encrypted data frame and JSON-decodes it into v.
func (d *Decryptor) Decode(v any) error {
	data, err := d.decodeData()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return d4ferr.Wrap(d4ferr.KindJSONDecode, err)
	}
	return nil
}

// DecodeFile reads encrypted data frames and writes their plaintext to
// w until the zero-length terminator frame is seen.
func (d *Decryptor) DecodeFile(w io.Writer) error {
	for {
		data, err := d.decodeData()
		if err != nil {
			return err
		}
		if len(data) == 0 {
			return nil
		}
		if _, err := w.Write(data); err != nil {
			return d4ferr.Wrap(d4ferr.KindFileWrite, err)
		}
	}
}

// decodeData reads one encrypted frame, authenticates and decrypts it
// against the frame header as associated data, and returns the
// plaintext.
func (d *Decryptor) decodeData() ([]byte, error) {
	header, payloadLen, err := wire.ReadHeader(d.r, maxFramePayload)
	if err != nil {
		return nil, err
	}
	if payloadLen < TagSize {
		return nil, d4ferr.New(d4ferr.KindMalformedMessage, "frame payload shorter than auth tag")
	}

	ciphertext := make([]byte, payloadLen)
	if _, err := io.ReadFull(d.r, ciphertext); err != nil {
		return nil, d4ferr.Wrap(d4ferr.KindSocketError, err)
	}

	nonce := buildNonce(d.prefix, d.counter)
	d.counter++

	plaintext, err := d.aead.Open(nil, nonce[:], ciphertext, header)
	if err != nil {
		return nil, d4ferr.Wrap(d4ferr.KindDecryption, err)
	}
	return plaintext, nil
}
