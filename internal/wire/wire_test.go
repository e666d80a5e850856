package wire

import (
	"bytes"
	"strings"
	"testing"

	"github.com/dacid44/d4ft4/internal/d4ferr"
)

type sample struct {
	A string `json:"a"`
	B int    `json:"b"`
}

func TestPlaintextRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	in := sample{A: "hello", B: 42}

	if err := EncodePlaintext(&buf, in); err != nil {
		t.Fatalf("EncodePlaintext: %v", err)
	}

	var out sample
	if err := DecodePlaintext(&buf, &out); err != nil {
		t.Fatalf("DecodePlaintext: %v", err)
	}

	if out != in {
		t.Fatalf("round trip mismatch: got %+v, want %+v", out, in)
	}
}

func TestDecodePlaintextBadMagic(t *testing.T) {
	buf := bytes.NewBufferString("XXXX00000000")
	var out sample
	err := DecodePlaintext(buf, &out)
	if d4ferr.KindOf(err) != d4ferr.KindMalformedMessage {
		t.Fatalf("expected KindMalformedMessage, got %v", err)
	}
}

func TestDecodePlaintextShortRead(t *testing.T) {
	var buf bytes.Buffer
	if err := EncodePlaintext(&buf, sample{A: "x"}); err != nil {
		t.Fatalf("EncodePlaintext: %v", err)
	}

	truncated := bytes.NewReader(buf.Bytes()[:buf.Len()-2])
	var out sample
	err := DecodePlaintext(truncated, &out)
	if err == nil {
		t.Fatal("expected error decoding a truncated frame")
	}
}

func TestDecodePlaintextOverCeiling(t *testing.T) {
	header := EncodeHeader(int(MaxControlMessageSize + 1))
	r := bytes.NewReader(header)
	var out sample
	err := DecodePlaintext(r, &out)
	if d4ferr.KindOf(err) != d4ferr.KindMalformedMessage {
		t.Fatalf("expected KindMalformedMessage for oversized length, got %v", err)
	}
}

func TestEncodeHeaderAndReadHeader(t *testing.T) {
	header := EncodeHeader(100)
	if len(header) != HeaderSize {
		t.Fatalf("header length = %d, want %d", len(header), HeaderSize)
	}
	if !strings.HasPrefix(string(header), Magic) {
		t.Fatalf("header does not start with magic: %x", header)
	}

	r := bytes.NewReader(header)
	gotHeader, payloadLen, err := ReadHeader(r, 1<<20)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if payloadLen != 100 {
		t.Fatalf("payloadLen = %d, want 100", payloadLen)
	}
	if !bytes.Equal(gotHeader, header) {
		t.Fatal("ReadHeader returned a different header than was written")
	}
}

func TestReadHeaderExceedsCeiling(t *testing.T) {
	header := EncodeHeader(200)
	r := bytes.NewReader(header)
	_, _, err := ReadHeader(r, 100)
	if d4ferr.KindOf(err) != d4ferr.KindMalformedMessage {
		t.Fatalf("expected KindMalformedMessage, got %v", err)
	}
}
