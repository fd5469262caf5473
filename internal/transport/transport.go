// Package transport implements the Appliance Transport (spec §4.E): a
// short-lived client that performs one HTTP/1.1 transaction per call
// over a plain TCP socket, with bounded connect and read retries; a
// failed write is not retried.
// Per spec §9 ("short-lived sockets ... do not introduce keep-alive
// pooling"), every call opens, writes, reads, and closes its own
// connection; there is no connection reuse across calls.
package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/messagenet/evodispatch/internal/evoerr"
	"github.com/messagenet/evodispatch/internal/metrics"
)

const (
	userAgent = "MessageNet Evolution Banner Socket"

	defaultConnectBudget = 5 * time.Second
	defaultReadIdle      = 5 * time.Second
	defaultRetryAttempts = 5
	defaultRetrySpacing  = 1 * time.Second
)

// Transport sends rendered appliance wire bodies over a fresh TCP
// connection per call (spec §4.E).
type Transport struct {
	log *slog.Logger

	connectBudget time.Duration
	readIdle      time.Duration
	retryAttempts int
	retrySpacing  time.Duration
}

// Option adjusts a Transport's retry/timeout budgets from their
// defaults. The dispatcher's operational config (internal/config) wires
// its retry-budget fields through here.
type Option func(*Transport)

// WithTimeouts overrides the per-attempt connect and read-idle budgets.
func WithTimeouts(connect, readIdle time.Duration) Option {
	return func(t *Transport) {
		t.connectBudget = connect
		t.readIdle = readIdle
	}
}

// WithRetryBudget overrides the bounded retry count and spacing applied
// to both the connect and read phases.
func WithRetryBudget(attempts int, spacing time.Duration) Option {
	return func(t *Transport) {
		t.retryAttempts = attempts
		t.retrySpacing = spacing
	}
}

// New creates a Transport, applying any Options over the spec's default
// budgets (5s connect/read, 5 attempts at 1s spacing).
func New(log *slog.Logger, opts ...Option) *Transport {
	t := &Transport{
		log:           log,
		connectBudget: defaultConnectBudget,
		readIdle:      defaultReadIdle,
		retryAttempts: defaultRetryAttempts,
		retrySpacing:  defaultRetrySpacing,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Result is the raw response bytes from one appliance transaction.
type Result struct {
	Body []byte
}

// Send performs one POST transaction to addr carrying body as the JSON
// request payload (spec §4.E algorithm, steps 2-5).
func (t *Transport) Send(ctx context.Context, addr string, body []byte) (Result, error) {
	return t.transact(ctx, addr, buildPostRequest(body))
}

// Ping performs the liveness probe GET request (spec §4.E: "a separate
// liveness probe issues GET /ping?password=... and updates the device's
// connection status identically").
func (t *Transport) Ping(ctx context.Context, addr, password string) (Result, error) {
	return t.transact(ctx, addr, buildPingRequest(password))
}

func (t *Transport) transact(ctx context.Context, addr string, request []byte) (Result, error) {
	conn, err := t.dialWithRetry(ctx, addr)
	if err != nil {
		return Result{}, err
	}
	defer conn.Close()

	n, err := conn.Write(request)
	if err != nil || n == 0 {
		metrics.TransportAttemptsTotal.WithLabelValues("write", "failure").Inc()
		t.log.Warn("appliance write failed", "addr", addr, "err", err)
		return Result{}, fmt.Errorf("write to %s: %w", addr, evoerr.ErrWriteFailed)
	}
	metrics.TransportAttemptsTotal.WithLabelValues("write", "success").Inc()

	data, err := t.readWithRetry(ctx, conn)
	if err != nil {
		metrics.TransportAttemptsTotal.WithLabelValues("read", "failure").Inc()
		return Result{}, err
	}
	metrics.TransportAttemptsTotal.WithLabelValues("read", "success").Inc()

	return Result{Body: data}, nil
}

func (t *Transport) dialWithRetry(ctx context.Context, addr string) (net.Conn, error) {
	op := func() (net.Conn, error) {
		dialCtx, cancel := context.WithTimeout(ctx, t.connectBudget)
		defer cancel()

		var d net.Dialer
		conn, err := d.DialContext(dialCtx, "tcp", addr)
		if err != nil {
			metrics.TransportRetriesTotal.WithLabelValues("connect").Inc()
			return nil, err
		}
		return conn, nil
	}

	conn, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(t.retrySpacing)),
		backoff.WithMaxTries(uint(t.retryAttempts)),
	)
	if err != nil {
		metrics.TransportAttemptsTotal.WithLabelValues("connect", "failure").Inc()
		t.log.Warn("appliance connect failed", "addr", addr, "err", err)
		return nil, fmt.Errorf("connect to %s: %w", addr, evoerr.ErrConnectFailed)
	}
	metrics.TransportAttemptsTotal.WithLabelValues("connect", "success").Inc()
	return conn, nil
}

func (t *Transport) readWithRetry(ctx context.Context, conn net.Conn) ([]byte, error) {
	op := func() ([]byte, error) {
		conn.SetReadDeadline(time.Now().Add(t.readIdle))
		reader := bufio.NewReader(conn)
		data, err := io.ReadAll(reader)
		if err != nil && len(data) == 0 {
			metrics.TransportRetriesTotal.WithLabelValues("read").Inc()
			return nil, err
		}
		return data, nil
	}

	data, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(t.retrySpacing)),
		backoff.WithMaxTries(uint(t.retryAttempts)),
	)
	if err != nil {
		return nil, fmt.Errorf("read: %w", evoerr.ErrReadTimeout)
	}
	return data, nil
}

func buildPostRequest(body []byte) []byte {
	req := fmt.Sprintf(
		"POST / HTTP/1.1\r\n"+
			"User-Agent: %s\r\n"+
			"Content-Type: application/json\r\n"+
			"Content-Length: %d\r\n"+
			"\r\n",
		userAgent, len(body),
	)
	return append([]byte(req), body...)
}

func buildPingRequest(password string) []byte {
	path := "/ping?password=" + password
	req := fmt.Sprintf(
		"GET %s HTTP/1.1\r\n"+
			"User-Agent: %s\r\n"+
			"\r\n",
		path, userAgent,
	)
	return []byte(req)
}

