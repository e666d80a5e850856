// Package wire implements D4FT's on-wire framing: the plaintext bootstrap
// frame used only for the handshake, and the 12-byte header shared by
// every encrypted frame thereafter. It knows nothing about encryption or
// message semantics — those live in internal/xcrypto and
// internal/message respectively.
package wire

import (
	"encoding/binary"
	"encoding/json"
	"io"

	"github.com/dacid44/d4ft4/internal/d4ferr"
)

// Magic is the 4-byte ASCII tag that opens every frame header, plaintext
// or encrypted.
const Magic = "D4FT"

// HeaderSize is the size in bytes of a frame header: 4-byte magic plus an
// 8-byte big-endian length.
const HeaderSize = 4 + 8

// MaxControlMessageSize is the recommended ceiling on a plaintext or
// decrypted control-message frame, to prevent a malicious or buggy peer
// from causing unbounded memory allocation.
const MaxControlMessageSize = 64 << 20 // 64 MiB

// EncodePlaintext serializes v to JSON and writes it as a single
// plaintext frame: magic, big-endian u64 length, JSON bytes. Used only
// during the handshake's bootstrap phase, before either side holds keys.
func EncodePlaintext(w io.Writer, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return d4ferr.Wrap(d4ferr.KindJSONEncode, err)
	}

	header := make([]byte, HeaderSize)
	copy(header, Magic)
	binary.BigEndian.PutUint64(header[4:], uint64(len(body)))

	if _, err := w.Write(header); err != nil {
		return d4ferr.Wrap(d4ferr.KindSocketError, err)
	}
	if _, err := w.Write(body); err != nil {
		return d4ferr.Wrap(d4ferr.KindSocketError, err)
	}
	return nil
}

// DecodePlaintext reads one plaintext frame from r and unmarshals its
// JSON body into v. Reads are exact: a short read at any point is an
// error.
func DecodePlaintext(r io.Reader, v any) error {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return d4ferr.Wrap(d4ferr.KindSocketError, err)
	}

	if string(header[:4]) != Magic {
		return d4ferr.New(d4ferr.KindMalformedMessage, "bad magic")
	}

	length := binary.BigEndian.Uint64(header[4:])
	if length > MaxControlMessageSize {
		return d4ferr.New(d4ferr.KindMalformedMessage, "frame length exceeds ceiling")
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return d4ferr.Wrap(d4ferr.KindSocketError, err)
	}

	if err := json.Unmarshal(body, v); err != nil {
		return d4ferr.Wrap(d4ferr.KindJSONDecode, err)
	}
	return nil
}

// EncodeHeader builds the 12-byte header for an encrypted frame whose
// ciphertext+tag body is payloadLen bytes long. This header is also used
// as the frame's AEAD associated data, binding the authenticated length
// to the ciphertext it precedes.
func EncodeHeader(payloadLen int) []byte {
	header := make([]byte, HeaderSize)
	copy(header, Magic)
	binary.BigEndian.PutUint64(header[4:], uint64(payloadLen))
	return header
}

// ReadHeader reads and validates the next 12-byte frame header from r,
// returning the header bytes (for use as AEAD associated data) and the
// declared payload length. maxPayload bounds the length field.
func ReadHeader(r io.Reader, maxPayload uint64) (header []byte, payloadLen uint64, err error) {
	header = make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, 0, d4ferr.Wrap(d4ferr.KindSocketError, err)
	}

	if string(header[:4]) != Magic {
		return nil, 0, d4ferr.New(d4ferr.KindMalformedMessage, "bad magic")
	}

	payloadLen = binary.BigEndian.Uint64(header[4:])
	if payloadLen > maxPayload {
		return nil, 0, d4ferr.New(d4ferr.KindMalformedMessage, "frame payload exceeds ceiling")
	}

	return header, payloadLen, nil
}
