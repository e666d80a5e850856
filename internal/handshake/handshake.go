// Package handshake implements D4FT's role negotiation: the listener and
// connector entry points that turn a freshly accepted or dialed TCP
// connection into a bound session.Session, after a version check and a
// sender/receiver role-collision check.
package handshake

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/dacid44/d4ft4/internal/d4ferr"
	"github.com/dacid44/d4ft4/internal/logging"
	"github.com/dacid44/d4ft4/internal/message"
	"github.com/dacid44/d4ft4/internal/metrics"
	"github.com/dacid44/d4ft4/internal/session"
	"github.com/dacid44/d4ft4/internal/wire"
	"github.com/dacid44/d4ft4/internal/xcrypto"
)

// derivedKeys holds the two directional symmetric keys produced by
// deriveBothKeys.
type derivedKeys struct {
	clientServer []byte
	serverClient []byte
}

// deriveBothKeys derives the client->server and server->client keys
// concurrently, since scrypt at N=2^16 takes tens of milliseconds and
// the two directions have no data dependency on each other (§4.2, §5).
func deriveBothKeys(password string, ivs message.IVs) (derivedKeys, error) {
	type result struct {
		key []byte
		err error
	}

	csCh := make(chan result, 1)
	scCh := make(chan result, 1)

	go func() {
		key, err := xcrypto.DeriveKey(password, ivs.ClientServerSalt[:])
		csCh <- result{key, err}
	}()
	go func() {
		key, err := xcrypto.DeriveKey(password, ivs.ServerClientSalt[:])
		scCh <- result{key, err}
	}()

	cs, sc := <-csCh, <-scCh
	if cs.err != nil {
		return derivedKeys{}, cs.err
	}
	if sc.err != nil {
		return derivedKeys{}, sc.err
	}
	return derivedKeys{clientServer: cs.key, serverClient: sc.key}, nil
}

// InitListen binds address, accepts exactly one connection, closes the
// listener, and runs the listener side of the handshake. isSender is
// this endpoint's declared role; a peer declaring the same role causes a
// RejectedHandshake on both sides.
func InitListen(address, password string, isSender bool, log *slog.Logger) (*session.Session, error) {
	return InitListenWithMetrics(address, password, isSender, log, nil)
}

// InitListenWithMetrics is InitListen with an optional metrics sink; m
// may be nil to disable metrics collection.
func InitListenWithMetrics(address, password string, isSender bool, log *slog.Logger, m *metrics.Metrics) (sess *session.Session, err error) {
	if log == nil {
		log = logging.NopLogger()
	}
	log = logging.WithComponent(log, "handshake")
	start := time.Now()
	defer func() { recordHandshakeOutcome(m, roleName(isSender), start, err) }()

	ln, err := net.Listen("tcp", address)
	if err != nil {
		return nil, d4ferr.Wrap(d4ferr.KindSocketError, err)
	}

	conn, err := ln.Accept()
	// The listener is closed as soon as Accept returns, successfully or
	// not — it must not stay bound after the single expected peer has
	// connected (see spec's "close the listener after accept" note).
	_ = ln.Close()
	if err != nil {
		return nil, d4ferr.Wrap(d4ferr.KindSocketError, err)
	}
	log.Info("accepted connection", logging.KeyRemoteAddr, conn.RemoteAddr().String())

	var hs message.Handshake
	if err := wire.DecodePlaintext(conn, &hs); err != nil {
		conn.Close()
		return nil, err
	}

	ivs, err := hs.Encryption.Decode()
	if err != nil {
		// No reply is sent: the peer does not yet hold keys.
		conn.Close()
		return nil, err
	}

	keys, err := deriveBothKeys(password, ivs)
	if err != nil {
		conn.Close()
		return nil, err
	}

	// The listener is the "server" side: it decrypts client->server
	// frames and encrypts server->client frames.
	dec, err := xcrypto.NewDecryptorWithKey(keys.clientServer, ivs.ClientServerNonce, conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	enc, err := xcrypto.NewEncryptorWithKey(keys.serverClient, ivs.ServerClientNonce, conn)
	if err != nil {
		conn.Close()
		return nil, err
	}

	sess = session.New(enc, dec, conn)

	if hs.Version != message.ProtocolVersion {
		reason := "incompatible version"
		_ = enc.Encode(message.Reject(reason))
		sess.Close()
		log.Warn("rejected handshake", logging.KeyReason, reason)
		return nil, d4ferr.Rejected(d4ferr.KindRejectedHandshake, reason)
	}

	if hs.IsSender == isSender {
		reason := fmt.Sprintf("both ends are %s", roleName(isSender))
		_ = enc.Encode(message.Reject(reason))
		sess.Close()
		log.Warn("rejected handshake", logging.KeyReason, reason)
		return nil, d4ferr.Rejected(d4ferr.KindRejectedHandshake, reason)
	}

	if err := enc.Encode(message.Accept()); err != nil {
		sess.Close()
		return nil, err
	}

	log.Info("handshake accepted", logging.KeyRole, roleName(isSender))
	return sess, nil
}

// recordHandshakeOutcome records a handshake's result against m, a
// no-op if m is nil. err is the final (possibly nil) result of the
// InitListen/InitConnect call it instruments.
func recordHandshakeOutcome(m *metrics.Metrics, role string, start time.Time, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.RecordHandshakeError(d4ferr.KindOf(err).String())
		return
	}
	m.RecordSession(role)
	m.RecordHandshake(time.Since(start).Seconds())
}

// InitConnect dials address and runs the connector side of the
// handshake: generate fresh IVs, send the plaintext Handshake, derive
// keys, then wait for the listener's encrypted Accept/Reject.
func InitConnect(address, password string, isSender bool, log *slog.Logger) (*session.Session, error) {
	return InitConnectWithMetrics(address, password, isSender, log, nil)
}

// InitConnectWithMetrics is InitConnect with an optional metrics sink; m
// may be nil to disable metrics collection.
func InitConnectWithMetrics(address, password string, isSender bool, log *slog.Logger, m *metrics.Metrics) (sess *session.Session, err error) {
	if log == nil {
		log = logging.NopLogger()
	}
	log = logging.WithComponent(log, "handshake")
	start := time.Now()
	defer func() { recordHandshakeOutcome(m, roleName(isSender), start, err) }()

	conn, err := net.Dial("tcp", address)
	if err != nil {
		return nil, d4ferr.Wrap(d4ferr.KindSocketError, err)
	}

	ivs, err := message.NewIVs(rand.Read)
	if err != nil {
		conn.Close()
		return nil, err
	}

	hs := message.Handshake{
		Version:    message.ProtocolVersion,
		Encryption: ivs.Encode(),
		IsSender:   isSender,
	}
	if err := wire.EncodePlaintext(conn, hs); err != nil {
		conn.Close()
		return nil, err
	}

	keys, err := deriveBothKeys(password, ivs)
	if err != nil {
		conn.Close()
		return nil, err
	}

	// The connector is the "client" side: it encrypts client->server
	// frames and decrypts server->client frames.
	enc, err := xcrypto.NewEncryptorWithKey(keys.clientServer, ivs.ClientServerNonce, conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	dec, err := xcrypto.NewDecryptorWithKey(keys.serverClient, ivs.ServerClientNonce, conn)
	if err != nil {
		conn.Close()
		return nil, err
	}

	sess = session.New(enc, dec, conn)

	var resp message.Response
	if err := dec.Decode(&resp); err != nil {
		sess.Close()
		return nil, err
	}
	if !resp.IsAccept() {
		sess.Close()
		log.Warn("handshake rejected by peer", logging.KeyReason, resp.Reason)
		return nil, d4ferr.Rejected(d4ferr.KindRejectedHandshake, resp.Reason)
	}

	log.Info("handshake accepted", logging.KeyRole, roleName(isSender))
	return sess, nil
}

func roleName(isSender bool) string {
	if isSender {
		return "sender"
	}
	return "receiver"
}
