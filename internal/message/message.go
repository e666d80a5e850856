// Package message defines D4FT's tag-discriminated control messages and
// their JSON wire shapes. It performs no I/O and no cryptography — those
// live in internal/wire and internal/xcrypto.
package message

import (
	"encoding/hex"

	"github.com/dacid44/d4ft4/internal/d4ferr"
	"github.com/dacid44/d4ft4/internal/xcrypto"
)

// ProtocolVersion is the only version this implementation speaks.
const ProtocolVersion = "4"

// Encryption carries the four hex-encoded initialization vectors
// exchanged in the plaintext Handshake message. Field names are
// kebab-case on the wire per §6.3.
type Encryption struct {
	ClientServerNonce string `json:"client-server-nonce"`
	ClientServerSalt  string `json:"client-server-salt"`
	ServerClientNonce string `json:"server-client-nonce"`
	ServerClientSalt  string `json:"server-client-salt"`
}

// IVs is the decoded form of Encryption: raw salts and nonce prefixes
// ready to hand to xcrypto.
type IVs struct {
	ClientServerSalt  [xcrypto.SaltSize]byte
	ClientServerNonce [xcrypto.NoncePrefixSize]byte
	ServerClientSalt  [xcrypto.SaltSize]byte
	ServerClientNonce [xcrypto.NoncePrefixSize]byte
}

// NewIVs generates a fresh set of initialization vectors from a
// cryptographic RNG. Called once by the connector at the start of each
// session.
func NewIVs(randRead func([]byte) (int, error)) (IVs, error) {
	var ivs IVs
	for _, b := range [][]byte{ivs.ClientServerSalt[:], ivs.ServerClientSalt[:]} {
		if _, err := randRead(b); err != nil {
			return IVs{}, d4ferr.Wrap(d4ferr.KindSocketError, err)
		}
	}
	for _, b := range [][]byte{ivs.ClientServerNonce[:], ivs.ServerClientNonce[:]} {
		if _, err := randRead(b); err != nil {
			return IVs{}, d4ferr.Wrap(d4ferr.KindSocketError, err)
		}
	}
	return ivs, nil
}

// Encode renders IVs as the uppercase-hex Encryption wire shape.
func (v IVs) Encode() Encryption {
	return Encryption{
		ClientServerNonce: encodeHexUpper(v.ClientServerNonce[:]),
		ClientServerSalt:  encodeHexUpper(v.ClientServerSalt[:]),
		ServerClientNonce: encodeHexUpper(v.ServerClientNonce[:]),
		ServerClientSalt:  encodeHexUpper(v.ServerClientSalt[:]),
	}
}

// Decode parses an Encryption wire value into IVs, rejecting a
// hex-decode failure as a HexDecode error and a size mismatch as a
// MalformedMessage error — per §4.4 step 3, no reply is sent on either
// failure since the peer does not yet hold keys.
func (e Encryption) Decode() (IVs, error) {
	var v IVs
	fields := []struct {
		src string
		dst []byte
	}{
		{e.ClientServerNonce, v.ClientServerNonce[:]},
		{e.ClientServerSalt, v.ClientServerSalt[:]},
		{e.ServerClientNonce, v.ServerClientNonce[:]},
		{e.ServerClientSalt, v.ServerClientSalt[:]},
	}
	for _, f := range fields {
		decoded, err := hex.DecodeString(f.src)
		if err != nil {
			return IVs{}, d4ferr.Wrap(d4ferr.KindHexDecode, err)
		}
		if len(decoded) != len(f.dst) {
			return IVs{}, d4ferr.New(d4ferr.KindMalformedMessage, "IV has wrong length")
		}
		copy(f.dst, decoded)
	}
	return v, nil
}

func encodeHexUpper(b []byte) string {
	dst := make([]byte, hex.EncodedLen(len(b)))
	hex.Encode(dst, b)
	for i, c := range dst {
		if c >= 'a' && c <= 'f' {
			dst[i] = c - ('a' - 'A')
		}
	}
	return string(dst)
}

// Handshake is the plaintext bootstrap message sent by the connector.
type Handshake struct {
	Version    string     `json:"version"`
	Encryption Encryption `json:"encryption"`
	IsSender   bool       `json:"is_sender"`
}

// Response is the tag-discriminated Accept/Reject reply to a Handshake
// or, later, an InitTransfer message.
type Response struct {
	Mode   string `json:"response"`
	Reason string `json:"reason,omitempty"`
}

const (
	responseAccept = "accept"
	responseReject = "reject"
)

// Accept builds an accepting Response.
func Accept() Response { return Response{Mode: responseAccept} }

// Reject builds a rejecting Response carrying reason verbatim.
func Reject(reason string) Response { return Response{Mode: responseReject, Reason: reason} }

// IsAccept reports whether r is an Accept response.
func (r Response) IsAccept() bool { return r.Mode == responseAccept }

// FileListItem is one entry of a Files manifest: either a File with a
// size or a bare Directory placeholder.
type FileListItem struct {
	Type string `json:"type"`
	Path string `json:"path"`
	Size uint64 `json:"size,omitempty"`
}

const (
	fileListItemFile      = "file"
	fileListItemDirectory = "directory"
)

// NewFile builds a File-typed FileListItem.
func NewFile(path string, size uint64) FileListItem {
	return FileListItem{Type: fileListItemFile, Path: path, Size: size}
}

// NewDirectory builds a Directory-typed FileListItem.
func NewDirectory(path string) FileListItem {
	return FileListItem{Type: fileListItemDirectory, Path: path}
}

// IsFile reports whether the item is a File entry.
func (f FileListItem) IsFile() bool { return f.Type == fileListItemFile }

// InitTransfer is the tag-discriminated message that opens a transfer:
// either a Text payload or a Files manifest. The discriminator field is
// "mode" per §4.3.
type InitTransfer struct {
	Mode  string         `json:"mode"`
	Text  string         `json:"text,omitempty"`
	Files []FileListItem `json:"files,omitempty"`
}

const (
	initTransferText  = "text"
	initTransferFiles = "files"
)

// NewText builds a Text-mode InitTransfer.
func NewText(text string) InitTransfer {
	return InitTransfer{Mode: initTransferText, Text: text}
}

// NewFiles builds a Files-mode InitTransfer.
func NewFiles(files []FileListItem) InitTransfer {
	return InitTransfer{Mode: initTransferFiles, Files: files}
}

// IsText reports whether the message is Text mode.
func (t InitTransfer) IsText() bool { return t.Mode == initTransferText }

// IsFiles reports whether the message is Files mode.
func (t InitTransfer) IsFiles() bool { return t.Mode == initTransferFiles }

// FileListResponse is the receiver's reply to a Files InitTransfer:
// either an allowlist of accepted paths, or a rejection.
type FileListResponse struct {
	Response  string   `json:"response"`
	Allowlist []string `json:"allowlist,omitempty"`
	Reason    string   `json:"reason,omitempty"`
}

// AcceptFiles builds an accepting FileListResponse carrying allowlist.
func AcceptFiles(allowlist []string) FileListResponse {
	return FileListResponse{Response: responseAccept, Allowlist: allowlist}
}

// RejectFiles builds a rejecting FileListResponse carrying reason
// verbatim.
func RejectFiles(reason string) FileListResponse {
	return FileListResponse{Response: responseReject, Reason: reason}
}

// IsAccept reports whether r accepts the manifest.
func (r FileListResponse) IsAccept() bool { return r.Response == responseAccept }

// FileHeader precedes one file's streamed body. Hash is reserved by the
// wire schema for a future integrity extension; this implementation
// never populates or checks it and serializes it as absent.
type FileHeader struct {
	Path string  `json:"path"`
	Size uint64  `json:"size"`
	Hash *string `json:"hash,omitempty"`
}

// NewFileHeader builds a FileHeader with Hash left unset, per this
// implementation's adoption of the "reserved, unchecked" field policy.
func NewFileHeader(path string, size uint64) FileHeader {
	return FileHeader{Path: path, Size: size}
}
