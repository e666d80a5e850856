package transfer

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/text/unicode/norm"

	"github.com/dacid44/d4ft4/internal/d4ferr"
	"github.com/dacid44/d4ft4/internal/logging"
	"github.com/dacid44/d4ft4/internal/message"
	"github.com/dacid44/d4ft4/internal/metrics"
	"github.com/dacid44/d4ft4/internal/session"
)

// outFileMode is the permission bits used for files created by
// ReceiveFlatFilesFS.
const outFileMode = 0o644

// Receiver drives the receiver-role state machine. A Receiver is
// single-shot: ReceiveText and ReceiveFileList each consume the one
// InitTransfer message the peer ever sends, so calling either more than
// once on the same Receiver produces undefined protocol behavior and is
// the caller's responsibility to avoid.
type Receiver struct {
	sess    *session.Session
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewReceiver wraps sess as a receiver-role session. log may be nil (a
// no-op logger is substituted).
func NewReceiver(sess *session.Session, log *slog.Logger) *Receiver {
	if log == nil {
		log = logging.NopLogger()
	}
	return &Receiver{sess: sess, log: logging.WithComponent(log, "receiver")}
}

// SetMetrics attaches m so the receive methods record byte and file
// counters against it. Metrics collection is disabled (the default)
// when m is nil.
func (r *Receiver) SetMetrics(m *metrics.Metrics) {
	r.metrics = m
}

// Close releases the underlying session's connection. Callers that
// obtained r from handshake.InitReceive, which does not hand back the
// session directly, should defer this instead of closing a session.
func (r *Receiver) Close() error {
	return r.sess.Close()
}

// ReceiveInit decodes the sender's InitTransfer message without
// accepting or rejecting it, for callers that don't know in advance
// whether the sender will offer text or files. Call AcceptText or
// ReceiveFlatFilesFS afterward depending on it.IsText()/it.IsFiles().
func (r *Receiver) ReceiveInit() (message.InitTransfer, error) {
	var it message.InitTransfer
	if err := r.sess.Dec.Decode(&it); err != nil {
		return message.InitTransfer{}, err
	}
	return it, nil
}

// AcceptText sends Accept for an InitTransfer previously obtained from
// ReceiveInit, and returns its text. It is an error to
// call this with a Files-mode message.
func (r *Receiver) AcceptText(it message.InitTransfer) (string, error) {
	if !it.IsText() {
		reason := "got a file manifest, wanted text"
		_ = r.sess.Enc.Encode(message.Reject(reason))
		return "", d4ferr.Rejected(d4ferr.KindRejectedTransfer, reason)
	}

	if err := r.sess.Enc.Encode(message.Accept()); err != nil {
		return "", err
	}
	if r.metrics != nil {
		r.metrics.RecordBytesReceived("text", len(it.Text))
	}
	r.log.Info("text transfer received", logging.KeyBytes, len(it.Text))
	return it.Text, nil
}

// ReceiveText reads the sender's InitTransfer message. If it is a text
// payload, the receiver accepts it and returns the text. If it is a
// file manifest instead, the receiver rejects it and returns an error;
// callers wanting files should call ReceiveFileList instead.
func (r *Receiver) ReceiveText() (string, error) {
	it, err := r.ReceiveInit()
	if err != nil {
		return "", err
	}
	return r.AcceptText(it)
}

// ReceiveFileList reads the sender's InitTransfer message and returns
// its flat manifest without yet accepting or rejecting it — the caller
// decides which entries to allow (e.g. by prompting the user) and
// passes the chosen basenames to ReceiveFlatFilesFS, which sends the
// FileListResponse.
func (r *Receiver) ReceiveFileList() ([]message.FileListItem, error) {
	it, err := r.ReceiveInit()
	if err != nil {
		return nil, err
	}

	if !it.IsFiles() {
		reason := "got text, wanted a file manifest"
		_ = r.sess.Enc.Encode(message.Reject(reason))
		return nil, d4ferr.Rejected(d4ferr.KindRejectedTransfer, reason)
	}

	return it.Files, nil
}

// ReceiveFlatFilesFS sends allowlist as the FileListResponse, then
// receives file bodies until every allowlisted basename has been
// consumed, writing each into outDir under its basename. A FileHeader
// whose basename does not appear on the allowlist is read and
// discarded rather than treated as a protocol error, since the sender
// is trusted to honor the allowlist but not required to.
func (r *Receiver) ReceiveFlatFilesFS(allowlist []string, outDir string) error {
	if err := r.sess.Enc.Encode(message.AcceptFiles(allowlist)); err != nil {
		return err
	}

	pending := make([]string, len(allowlist))
	for i, name := range allowlist {
		pending[i] = norm.NFC.String(name)
	}
	sort.Strings(pending)

	for len(pending) > 0 {
		var header message.FileHeader
		if err := r.sess.Dec.Decode(&header); err != nil {
			return err
		}

		basename, err := sanitizeBasename(header.Path)
		if err != nil {
			return err
		}

		idx := sort.SearchStrings(pending, basename)
		if idx < len(pending) && pending[idx] == basename {
			if err := r.writeFile(outDir, basename, header.Size); err != nil {
				return err
			}
			if r.metrics != nil {
				r.metrics.RecordFileAllowed()
				r.metrics.RecordBytesReceived("file", int(header.Size))
			}
			pending = append(pending[:idx], pending[idx+1:]...)
			continue
		}

		r.log.Warn("discarding file not on allowlist", logging.KeyPath, basename)
		if err := r.sess.Dec.DecodeFile(io.Discard); err != nil {
			return err
		}
		if r.metrics != nil {
			r.metrics.RecordFileDiscarded()
		}
	}

	r.log.Info("file transfer complete", "files_received", len(allowlist))
	return nil
}

func (r *Receiver) writeFile(outDir, basename string, size uint64) error {
	outPath := filepath.Join(outDir, basename)

	f, err := os.OpenFile(outPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, outFileMode)
	if err != nil {
		return d4ferr.Wrap(d4ferr.KindFileOpen, err)
	}

	decErr := r.sess.Dec.DecodeFile(f)
	closeErr := f.Close()

	if decErr != nil {
		// DecodeFile already tags write failures as KindFileWrite; socket
		// and decryption failures keep their own kind.
		return decErr
	}
	if closeErr != nil {
		return d4ferr.Wrap(d4ferr.KindFileWrite, closeErr)
	}
	r.log.Debug("received file", logging.KeyPath, basename, logging.KeyBytes, size)
	return nil
}

// sanitizeBasename reduces an inbound FileHeader path to a single path
// component, rejecting anything that would escape outDir (".", "..",
// an empty string, or a path separator) rather than trusting the
// sender's claimed path. This is the "spoofed file path" defense the
// core protocol leaves to the implementer. The path is first run through
// Unicode NFC normalization so two byte-distinct encodings of the same
// basename (e.g. combining vs. precomposed accents) can't be used to
// slip past the allowlist comparison in ReceiveFlatFilesFS.
func sanitizeBasename(path string) (string, error) {
	basename := normalizedBasename(path)
	if basename == "" || basename == "." || basename == string(filepath.Separator) || basename == ".." {
		return "", d4ferr.New(d4ferr.KindCannotReadPath, "file header has an unusable path")
	}
	return basename, nil
}

// normalizedBasename reduces path to its final component after applying
// Unicode NFC normalization, so the sender and receiver agree on one
// canonical basename regardless of which normalization form the
// originating filesystem handed them.
func normalizedBasename(path string) string {
	return filepath.Base(norm.NFC.String(path))
}
