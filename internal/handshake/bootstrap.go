package handshake

import (
	"context"
	"log/slog"

	"github.com/dacid44/d4ft4/internal/metrics"
	"github.com/dacid44/d4ft4/internal/session"
	"github.com/dacid44/d4ft4/internal/transfer"
)

// InitSend is the sender-side embedder entry point named by the wire
// protocol's embedder-facing surface: it runs the listener or connector
// handshake depending on isListener and hands the resulting session to a
// new transfer.Sender. Handshake and transfer counters are recorded
// against metrics.Default() unconditionally — whether they're served
// over HTTP is a separate decision the caller makes elsewhere. ctx binds
// the returned Sender's rate-limited reads (see
// transfer.Sender.WithContext); the handshake itself does not support
// cancellation.
func InitSend(ctx context.Context, isListener bool, address, password string, log *slog.Logger) (*transfer.Sender, error) {
	sess, err := initHandshake(isListener, address, password, true, log)
	if err != nil {
		return nil, err
	}
	sender := transfer.NewSender(sess, log).WithContext(ctx)
	sender.SetMetrics(metrics.Default())
	return sender, nil
}

// InitReceive is the receiver-side embedder entry point: it runs the
// listener or connector handshake depending on isListener and hands the
// resulting session to a new transfer.Receiver, wired to metrics.Default()
// exactly as InitSend wires its Sender.
func InitReceive(ctx context.Context, isListener bool, address, password string, log *slog.Logger) (*transfer.Receiver, error) {
	sess, err := initHandshake(isListener, address, password, false, log)
	if err != nil {
		return nil, err
	}
	receiver := transfer.NewReceiver(sess, log)
	receiver.SetMetrics(metrics.Default())
	return receiver, nil
}

func initHandshake(isListener bool, address, password string, isSender bool, log *slog.Logger) (*session.Session, error) {
	if isListener {
		return InitListenWithMetrics(address, password, isSender, log, metrics.Default())
	}
	return InitConnectWithMetrics(address, password, isSender, log, metrics.Default())
}
