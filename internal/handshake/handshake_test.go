package handshake

import (
	"net"
	"testing"
	"time"

	"github.com/dacid44/d4ft4/internal/d4ferr"
	"github.com/dacid44/d4ft4/internal/message"
	"github.com/dacid44/d4ft4/internal/wire"
)

// freeAddr finds a free loopback TCP port by briefly binding to port 0.
func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func TestHandshakeRoleMatchSucceeds(t *testing.T) {
	addr := freeAddr(t)

	type result struct {
		sessionOK bool
		err       error
	}
	listenerDone := make(chan result, 1)

	go func() {
		sess, err := InitListen(addr, "hunter2", false, nil)
		if sess != nil {
			defer sess.Close()
		}
		listenerDone <- result{sess != nil, err}
	}()

	// Give the listener a moment to bind before dialing.
	time.Sleep(50 * time.Millisecond)

	connSess, err := InitConnect(addr, "hunter2", true, nil)
	if err != nil {
		t.Fatalf("InitConnect: %v", err)
	}
	defer connSess.Close()

	lr := <-listenerDone
	if lr.err != nil {
		t.Fatalf("InitListen: %v", lr.err)
	}
	if !lr.sessionOK {
		t.Fatal("expected listener to produce a session")
	}
}

func TestHandshakeRoleCollisionRejectedBothSides(t *testing.T) {
	addr := freeAddr(t)

	type result struct {
		err error
	}
	listenerDone := make(chan result, 1)

	go func() {
		_, err := InitListen(addr, "hunter2", true, nil)
		listenerDone <- result{err}
	}()

	time.Sleep(50 * time.Millisecond)

	_, connErr := InitConnect(addr, "hunter2", true, nil)
	if d4ferr.KindOf(connErr) != d4ferr.KindRejectedHandshake {
		t.Fatalf("connector: expected KindRejectedHandshake, got %v", connErr)
	}

	lr := <-listenerDone
	if d4ferr.KindOf(lr.err) != d4ferr.KindRejectedHandshake {
		t.Fatalf("listener: expected KindRejectedHandshake, got %v", lr.err)
	}
}

func TestHandshakeVersionMismatchRejected(t *testing.T) {
	addr := freeAddr(t)

	listenerDone := make(chan error, 1)
	go func() {
		_, err := InitListen(addr, "hunter2", false, nil)
		listenerDone <- err
	}()

	time.Sleep(50 * time.Millisecond)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	ivs, err := message.NewIVs(fakeRand)
	if err != nil {
		t.Fatalf("NewIVs: %v", err)
	}
	hs := message.Handshake{Version: "99", Encryption: ivs.Encode(), IsSender: true}

	if err := wire.EncodePlaintext(conn, hs); err != nil {
		t.Fatalf("EncodePlaintext: %v", err)
	}

	lerr := <-listenerDone
	if d4ferr.KindOf(lerr) != d4ferr.KindRejectedHandshake {
		t.Fatalf("expected KindRejectedHandshake, got %v", lerr)
	}
}

func TestBadPasswordFailsOnFirstEncryptedFrame(t *testing.T) {
	addr := freeAddr(t)

	listenerDone := make(chan error, 1)
	go func() {
		sess, err := InitListen(addr, "password-a", false, nil)
		if sess != nil {
			sess.Close()
		}
		listenerDone <- err
	}()

	time.Sleep(50 * time.Millisecond)

	_, err := InitConnect(addr, "password-b", true, nil)
	if d4ferr.KindOf(err) != d4ferr.KindDecryption {
		t.Fatalf("connector: expected KindDecryption from mismatched password, got %v", err)
	}
	<-listenerDone
}

func fakeRand(b []byte) (int, error) {
	for i := range b {
		b[i] = byte(i)
	}
	return len(b), nil
}
