package message

import (
	"crypto/rand"
	"encoding/json"
	"strings"
	"testing"
)

func TestIVsRoundTripAndUppercaseHex(t *testing.T) {
	ivs, err := NewIVs(rand.Read)
	if err != nil {
		t.Fatalf("NewIVs: %v", err)
	}

	enc := ivs.Encode()
	for _, s := range []string{enc.ClientServerNonce, enc.ClientServerSalt, enc.ServerClientNonce, enc.ServerClientSalt} {
		if s != strings.ToUpper(s) {
			t.Fatalf("expected uppercase hex, got %q", s)
		}
	}

	decoded, err := enc.Decode()
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded != ivs {
		t.Fatal("IV round trip mismatch")
	}
}

func TestEncryptionDecodeRejectsBadHex(t *testing.T) {
	enc := Encryption{
		ClientServerNonce: "not-hex",
		ClientServerSalt:  strings.Repeat("AA", 32),
		ServerClientNonce: strings.Repeat("BB", 19),
		ServerClientSalt:  strings.Repeat("CC", 32),
	}
	if _, err := enc.Decode(); err == nil {
		t.Fatal("expected an error for malformed hex")
	}
}

func TestEncryptionDecodeRejectsWrongLength(t *testing.T) {
	enc := Encryption{
		ClientServerNonce: "AABB", // too short
		ClientServerSalt:  strings.Repeat("AA", 32),
		ServerClientNonce: strings.Repeat("BB", 19),
		ServerClientSalt:  strings.Repeat("CC", 32),
	}
	if _, err := enc.Decode(); err == nil {
		t.Fatal("expected an error for wrong-length IV")
	}
}

func TestHandshakeWireShape(t *testing.T) {
	ivs, err := NewIVs(rand.Read)
	if err != nil {
		t.Fatalf("NewIVs: %v", err)
	}
	hs := Handshake{Version: ProtocolVersion, Encryption: ivs.Encode(), IsSender: true}

	body, err := json.Marshal(hs)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if raw["version"] != "4" {
		t.Fatalf("version = %v, want \"4\"", raw["version"])
	}
	if raw["is_sender"] != true {
		t.Fatalf("is_sender = %v, want true", raw["is_sender"])
	}
	encryption, ok := raw["encryption"].(map[string]any)
	if !ok {
		t.Fatal("encryption field missing or wrong type")
	}
	for _, key := range []string{"client-server-nonce", "client-server-salt", "server-client-nonce", "server-client-salt"} {
		if _, ok := encryption[key]; !ok {
			t.Fatalf("encryption missing key %q", key)
		}
	}
}

func TestResponseTagDiscrimination(t *testing.T) {
	accept := Accept()
	reject := Reject("incompatible version")

	acceptJSON, _ := json.Marshal(accept)
	rejectJSON, _ := json.Marshal(reject)

	if !strings.Contains(string(acceptJSON), `"response":"accept"`) {
		t.Fatalf("unexpected accept JSON: %s", acceptJSON)
	}
	if !strings.Contains(string(rejectJSON), `"reason":"incompatible version"`) {
		t.Fatalf("unexpected reject JSON: %s", rejectJSON)
	}

	if !accept.IsAccept() {
		t.Fatal("Accept() should report IsAccept() true")
	}
	if reject.IsAccept() {
		t.Fatal("Reject() should report IsAccept() false")
	}
}

func TestInitTransferModeDiscrimination(t *testing.T) {
	text := NewText("hello")
	files := NewFiles([]FileListItem{NewFile("a.txt", 3), NewDirectory("subdir")})

	if !text.IsText() || text.IsFiles() {
		t.Fatal("NewText should report IsText true, IsFiles false")
	}
	if !files.IsFiles() || files.IsText() {
		t.Fatal("NewFiles should report IsFiles true, IsText false")
	}

	body, err := json.Marshal(files)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(body), `"mode":"files"`) {
		t.Fatalf("unexpected files JSON: %s", body)
	}
}

func TestFileListItemTypeField(t *testing.T) {
	file := NewFile("report.pdf", 1024)
	dir := NewDirectory("photos")

	if !file.IsFile() {
		t.Fatal("NewFile should report IsFile true")
	}
	if dir.IsFile() {
		t.Fatal("NewDirectory should report IsFile false")
	}

	body, err := json.Marshal(dir)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(body), `"type":"directory"`) {
		t.Fatalf("unexpected directory JSON: %s", body)
	}
}

func TestFileHeaderOmitsHash(t *testing.T) {
	h := NewFileHeader("a.txt", 3)
	body, err := json.Marshal(h)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if strings.Contains(string(body), "hash") {
		t.Fatalf("expected hash field to be omitted, got %s", body)
	}
}

func TestFileListResponseAllowlist(t *testing.T) {
	resp := AcceptFiles([]string{"a.txt", "b.txt"})
	if !resp.IsAccept() {
		t.Fatal("AcceptFiles should report IsAccept true")
	}

	rejected := RejectFiles("got text, wanted files")
	if rejected.IsAccept() {
		t.Fatal("RejectFiles should report IsAccept false")
	}
	if rejected.Reason != "got text, wanted files" {
		t.Fatalf("Reason = %q", rejected.Reason)
	}
}
