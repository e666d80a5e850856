// Package session defines the bound (Encryptor, Decryptor) pair that the
// handshake engine produces and that the sender/receiver roles consume.
package session

import (
	"io"
	"net"

	"github.com/dacid44/d4ft4/internal/xcrypto"
)

// Session is the result of a successful handshake: a write-side
// Encryptor bound to the stream's write half, and a read-side Decryptor
// bound to its read half. A Session is either a sender's or a
// receiver's — never both — a distinction the handshake engine encodes
// by which of transfer.Sender/transfer.Receiver it hands the Session to.
//
// A Session's lifetime matches the underlying byte stream. It is not
// closed automatically when an encode or decode fails, although the
// keystream counters are no longer trustworthy after any such failure;
// the owner closes it with Close.
type Session struct {
	Enc  *xcrypto.Encryptor
	Dec  *xcrypto.Decryptor
	conn net.Conn
}

// New binds a Session to an already-established encryptor/decryptor
// pair and the connection they were derived from, so Close can tear down
// the transport.
func New(enc *xcrypto.Encryptor, dec *xcrypto.Decryptor, conn net.Conn) *Session {
	return &Session{Enc: enc, Dec: dec, conn: conn}
}

// Close closes the underlying connection. Safe to call once; the
// Session must not be used afterward.
func (s *Session) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// Conn exposes the underlying net.Conn, e.g. for deadlines the embedder
// wants to layer on top (timeouts are explicitly not built into the
// core per the concurrency model).
func (s *Session) Conn() net.Conn { return s.conn }

var _ io.Closer = (*Session)(nil)
