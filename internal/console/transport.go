package console

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/docbrown/xbdm/internal/observability"
	"github.com/docbrown/xbdm/internal/protocol/wire"
)

// Transport owns exactly one TCP stream to the monitor. No
// multiplexing happens here; a session holds two Transports, one for
// commands and one for notifications.
type Transport struct {
	conn   net.Conn
	fr     *wire.Reader
	cfg    Config
	closed atomic.Bool
}

// Dial connects to a console endpoint ("ip:port"). Connection
// failures come back wrapped in ErrConnect with the cause in the
// chain.
func Dial(ctx context.Context, addr string, cfg Config) (*Transport, error) {
	cfg = cfg.WithDefaults()
	dialer := net.Dialer{Timeout: cfg.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}
	return newTransport(conn, cfg), nil
}

func newTransport(conn net.Conn, cfg Config) *Transport {
	t := &Transport{conn: conn, cfg: cfg}
	t.fr = wire.NewReader(t, cfg.Limits)
	return t
}

// Read returns whatever bytes the stream has, up to len(p). All frame
// decoding goes through fr, which buffers on top of Read; callers arm
// deadlines first.
func (t *Transport) Read(p []byte) (int, error) {
	if t.closed.Load() {
		return 0, ErrTransportClosed
	}
	n, err := t.conn.Read(p)
	observability.RecordBytesReceived(n)
	if err != nil && errors.Is(err, net.ErrClosed) {
		return n, fmt.Errorf("%w: %v", ErrTransportClosed, err)
	}
	return n, err
}

// Send writes b as one timed write.
func (t *Transport) Send(ctx context.Context, b []byte) error {
	if t.closed.Load() {
		return ErrTransportClosed
	}
	if err := t.setWriteDeadline(ctx); err != nil {
		return err
	}
	if _, err := t.conn.Write(b); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return fmt.Errorf("%w: %v", ErrTransportClosed, err)
		}
		return err
	}
	observability.RecordBytesSent(len(b))
	return nil
}

// Close shuts the stream down. Safe to call twice.
func (t *Transport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	return t.conn.Close()
}

func (t *Transport) Closed() bool { return t.closed.Load() }

func (t *Transport) setWriteDeadline(ctx context.Context) error {
	deadline := time.Now().Add(t.cfg.WriteTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	return t.conn.SetWriteDeadline(deadline)
}

func (t *Transport) setReadDeadline(ctx context.Context) error {
	deadline := time.Now().Add(t.cfg.ReadTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	return t.conn.SetReadDeadline(deadline)
}

func (t *Transport) clearReadDeadline() error {
	return t.conn.SetReadDeadline(time.Time{})
}

func (t *Transport) setDeadline(d time.Time) error {
	return t.conn.SetDeadline(d)
}
