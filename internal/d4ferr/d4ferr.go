// Package d4ferr defines the tagged error taxonomy shared by every D4FT
// component, so callers can branch on error kind instead of string
// matching. No operation in this module retries internally; every error
// is surfaced to the caller.
package d4ferr

import "fmt"

// Kind tags the category of failure, mirroring the protocol's error
// taxonomy (transport, framing, codec, crypto, protocol, filesystem).
type Kind int

const (
	// KindUnknown is the zero value and should never be returned.
	KindUnknown Kind = iota

	// KindSocketError covers bind/accept/connect/read/write failures at
	// the OS level.
	KindSocketError

	// KindMalformedMessage covers bad magic bytes or an impossible
	// length field in a frame header.
	KindMalformedMessage

	// KindJSONEncode covers control-message serialization failures.
	KindJSONEncode

	// KindJSONDecode covers control-message deserialization failures.
	KindJSONDecode

	// KindHexDecode covers malformed hex in the handshake's IV fields.
	KindHexDecode

	// KindEncryption covers AEAD seal failures.
	KindEncryption

	// KindDecryption covers AEAD open failures: integrity failure, key
	// mismatch, or keystream counter desync.
	KindDecryption

	// KindRejectedHandshake is returned when the peer rejects the
	// handshake (version mismatch or role collision).
	KindRejectedHandshake

	// KindRejectedTransfer is returned when the peer rejects a
	// transfer-init message.
	KindRejectedTransfer

	// KindFileOpen covers failures to open a file for reading or
	// writing during transfer.
	KindFileOpen

	// KindFileRead covers failures reading a file body from disk on
	// the sender side.
	KindFileRead

	// KindFileWrite covers failures persisting a file body on the
	// receiver side. The session is unusable afterward: the keystream
	// counter has already advanced through the frame that failed to
	// write.
	KindFileWrite

	// KindCannotReadPath is returned when a FileHeader's path cannot be
	// reduced to a usable basename.
	KindCannotReadPath
)

func (k Kind) String() string {
	switch k {
	case KindSocketError:
		return "socket_error"
	case KindMalformedMessage:
		return "malformed_message"
	case KindJSONEncode:
		return "json_encode_error"
	case KindJSONDecode:
		return "json_decode_error"
	case KindHexDecode:
		return "hex_decode_error"
	case KindEncryption:
		return "encryption_error"
	case KindDecryption:
		return "decryption_error"
	case KindRejectedHandshake:
		return "rejected_handshake"
	case KindRejectedTransfer:
		return "rejected_transfer"
	case KindFileOpen:
		return "file_open_error"
	case KindFileRead:
		return "file_read_error"
	case KindFileWrite:
		return "file_write_error"
	case KindCannotReadPath:
		return "cannot_read_path"
	default:
		return "unknown"
	}
}

// Error is the concrete error type returned by every D4FT operation. It
// carries a Kind for programmatic branching, an optional peer-supplied
// reason (for rejections), and an optional wrapped cause.
type Error struct {
	Kind   Kind
	Reason string
	Cause  error
}

func (e *Error) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("d4ft: %s: %s", e.Kind, e.Reason)
	}
	if e.Cause != nil {
		return fmt.Sprintf("d4ft: %s: %v", e.Kind, e.Cause)
	}
	return fmt.Sprintf("d4ft: %s", e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds an Error with no wrapped cause.
func New(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// Wrap builds an Error that wraps cause, tagged with kind.
func Wrap(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Cause: cause}
}

// Rejected builds a protocol-rejection error, carrying the peer's reason
// verbatim.
func Rejected(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// Is reports whether target is a *Error with the same Kind; Reason and
// Cause are not compared, so errors.Is(err, &d4ferr.Error{Kind:
// d4ferr.KindDecryption}) matches any decryption error. For production
// code prefer KindOf.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// KindOf extracts the Kind from err if it is (or wraps) a *Error,
// returning KindUnknown otherwise.
func KindOf(err error) Kind {
	var e *Error
	for err != nil {
		if ae, ok := err.(*Error); ok {
			e = ae
			break
		}
		unwrap, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = unwrap.Unwrap()
	}
	if e == nil {
		return KindUnknown
	}
	return e.Kind
}
