// Package transfer implements D4FT's two transfer-phase roles: Sender
// and Receiver. Both ride on a session.Session produced by the
// handshake engine and speak the InitTransfer/FileListResponse/
// FileHeader exchange defined in internal/message.
package transfer

import (
	"context"
	"io"
	"log/slog"
	"sort"

	"golang.org/x/time/rate"

	"github.com/dacid44/d4ft4/internal/d4ferr"
	"github.com/dacid44/d4ft4/internal/logging"
	"github.com/dacid44/d4ft4/internal/message"
	"github.com/dacid44/d4ft4/internal/metrics"
	"github.com/dacid44/d4ft4/internal/session"
	"github.com/dacid44/d4ft4/internal/xcrypto"
)

// rateLimitBurst is the token-bucket burst size used when a Sender's
// bandwidth cap is active: one file chunk's worth of headroom.
const rateLimitBurst = xcrypto.FileChunkSize

// FileSource is one item offered to Sender.SendFlatFiles: a
// display path (only its basename is transmitted) and a seekable
// reader already open on its content. The sender rewinds Reader to
// offset 0 before streaming an allowlisted item's body, so Reader must
// support seeking back to the start even after statAll has seeked it to
// the end to measure its length.
type FileSource struct {
	DisplayPath string
	Reader      io.ReadSeeker
}

// Sender drives the sender-role state machine: Ready ->
// {TextSent|FilesSending -> FilesSent} -> terminal. A Sender is
// single-shot — after one successful SendText or SendFlatFiles call it
// is done, and further calls return an error.
type Sender struct {
	sess    *session.Session
	log     *slog.Logger
	ctx     context.Context
	limiter *rate.Limiter
	metrics *metrics.Metrics
	done    bool
}

// NewSender wraps sess as a sender-role session. log may be nil (a
// no-op logger is substituted).
func NewSender(sess *session.Session, log *slog.Logger) *Sender {
	if log == nil {
		log = logging.NopLogger()
	}
	return &Sender{sess: sess, log: logging.WithComponent(log, "sender"), ctx: context.Background()}
}

// SetMetrics attaches m so SendText and SendFlatFiles record byte and
// file counters against it. Metrics collection is disabled (the
// default) when m is nil.
func (s *Sender) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// Close releases the underlying session's connection. Callers that
// obtained s from handshake.InitSend, which does not hand back the
// session directly, should defer this instead of closing a session.
func (s *Sender) Close() error {
	return s.sess.Close()
}

// WithContext returns a copy of s that uses ctx to bound its rate
// limiter waits (and any future cancellable operation). It does not
// affect operations already in flight.
func (s *Sender) WithContext(ctx context.Context) *Sender {
	cp := *s
	cp.ctx = ctx
	return &cp
}

// SetRateLimit caps file-body throughput to bytesPerSec. This is purely
// an ambient throughput control — it changes no wire bytes and is
// invisible to the peer. A value <= 0 disables the limiter.
func (s *Sender) SetRateLimit(bytesPerSec int64) {
	if bytesPerSec <= 0 {
		s.limiter = nil
		return
	}
	s.limiter = rate.NewLimiter(rate.Limit(bytesPerSec), rateLimitBurst)
}

// SendText sends a text payload and waits for the receiver's
// Accept/Reject.
func (s *Sender) SendText(text string) error {
	if err := s.checkReady(); err != nil {
		return err
	}
	s.done = true

	if err := s.sess.Enc.Encode(message.NewText(text)); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.RecordBytesSent("text", len(text))
	}

	var resp message.Response
	if err := s.sess.Dec.Decode(&resp); err != nil {
		return err
	}
	if !resp.IsAccept() {
		s.log.Warn("text transfer rejected", logging.KeyReason, resp.Reason)
		return d4ferr.Rejected(d4ferr.KindRejectedTransfer, resp.Reason)
	}
	s.log.Info("text transfer accepted")
	return nil
}

// SendFlatFiles offers items as a flat (basename-only) manifest, waits
// for the receiver's allowlist, then streams the body of every item
// whose basename was allowlisted, in the original input order. Items
// absent from the allowlist are silently skipped; there is no per-file
// acknowledgement. If the same basename appears in the allowlist more
// than once, it matches every input item with that basename; if two
// input items share a basename, both are sent.
func (s *Sender) SendFlatFiles(items []FileSource) error {
	if err := s.checkReady(); err != nil {
		return err
	}
	s.done = true

	sizes, err := statAll(items)
	if err != nil {
		return err
	}

	fileList := make([]message.FileListItem, len(items))
	for i, item := range items {
		fileList[i] = message.NewFile(normalizedBasename(item.DisplayPath), sizes[i])
	}

	if err := s.sess.Enc.Encode(message.NewFiles(fileList)); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.RecordFilesOffered(len(items))
	}

	var resp message.FileListResponse
	if err := s.sess.Dec.Decode(&resp); err != nil {
		return err
	}
	if !resp.IsAccept() {
		s.log.Warn("file transfer rejected", logging.KeyReason, resp.Reason)
		return d4ferr.Rejected(d4ferr.KindRejectedTransfer, resp.Reason)
	}

	allowlist := append([]string{}, resp.Allowlist...)
	sort.Strings(allowlist)

	sent := 0
	for i, item := range items {
		basename := normalizedBasename(item.DisplayPath)
		if !sortedContains(allowlist, basename) {
			continue
		}

		if _, err := item.Reader.Seek(0, io.SeekStart); err != nil {
			return d4ferr.Wrap(d4ferr.KindFileRead, err)
		}

		if err := s.sess.Enc.Encode(message.NewFileHeader(basename, sizes[i])); err != nil {
			return err
		}

		body := io.Reader(item.Reader)
		if s.limiter != nil {
			body = &rateLimitedReader{r: body, limiter: s.limiter, ctx: s.ctx}
		}

		if err := s.sess.Enc.EncodeFile(body); err != nil {
			return err
		}
		if s.metrics != nil {
			s.metrics.RecordBytesSent("file", int(sizes[i]))
		}
		s.log.Debug("sent file", logging.KeyPath, basename, logging.KeyBytes, sizes[i])
		sent++
	}

	s.log.Info("file transfer complete", "files_sent", sent)
	return nil
}

func (s *Sender) checkReady() error {
	if s.done {
		return d4ferr.New(d4ferr.KindRejectedTransfer, "session already used for a transfer")
	}
	return nil
}

// statAll queries every item's byte length concurrently via its
// Seek(0, io.SeekEnd)/Seek(0, io.SeekStart) round trip, matching the
// "query metadata concurrently" requirement without assuming an
// *os.File underneath FileSource.Reader.
func statAll(items []FileSource) ([]uint64, error) {
	sizes := make([]uint64, len(items))
	errs := make([]error, len(items))

	done := make(chan int, len(items))
	for i, item := range items {
		go func(i int, item FileSource) {
			defer func() { done <- i }()
			end, err := item.Reader.Seek(0, io.SeekEnd)
			if err != nil {
				errs[i] = d4ferr.Wrap(d4ferr.KindFileRead, err)
				return
			}
			if _, err := item.Reader.Seek(0, io.SeekStart); err != nil {
				errs[i] = d4ferr.Wrap(d4ferr.KindFileRead, err)
				return
			}
			sizes[i] = uint64(end)
		}(i, item)
	}
	for range items {
		<-done
	}
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return sizes, nil
}

func sortedContains(sorted []string, v string) bool {
	i := sort.SearchStrings(sorted, v)
	return i < len(sorted) && sorted[i] == v
}

// rateLimitedReader throttles reads to the limiter's configured rate,
// grounded on the teacher's filetransfer.RateLimitedReader.
type rateLimitedReader struct {
	r       io.Reader
	limiter *rate.Limiter
	ctx     context.Context
}

func (r *rateLimitedReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n <= 0 {
		return n, err
	}
	if waitErr := r.limiter.WaitN(r.ctx, n); waitErr != nil {
		return n, waitErr
	}
	return n, err
}
