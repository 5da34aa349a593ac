package broker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"OptionsFlow/internal/domain/repository"
	"OptionsFlow/internal/service/broker/flowrpc"
	"OptionsFlow/pkg/apperr"
	"OptionsFlow/pkg/logger"
	"OptionsFlow/pkg/metrics"
)

// Operation describes one broker RPC. Idempotent operations may be retried
// on a transport failure; the others are attempted exactly once.
type Operation struct {
	Name       string
	Method     string
	Idempotent bool
}

var (
	OpSnapshot  = Operation{Name: "snapshot", Method: flowrpc.FullMethod(flowrpc.MethodSnapshot), Idempotent: true}
	OpConfigure = Operation{Name: "configure", Method: flowrpc.FullMethod(flowrpc.MethodConfigure)}
	OpStatus    = Operation{Name: "status", Method: flowrpc.FullMethod(flowrpc.MethodStatus), Idempotent: true}
	OpHealth    = Operation{Name: "health", Method: "/grpc.health.v1.Health/Check", Idempotent: true}
)

var errClosed = errors.New("broker client closed")

// Config holds transport settings.
type Config struct {
	Target            string
	Timeout           time.Duration
	HealthTimeout     time.Duration
	ConnectTimeout    time.Duration
	ReconnectAttempts int
	ReconnectBackoff  time.Duration
	KeepaliveInterval time.Duration
	HistorySeconds    int
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithLogger sets the client logger.
func WithLogger(l *logger.Logger) ClientOption {
	return func(c *Client) { c.log = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m repository.Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// WithDialOptions appends extra gRPC dial options.
func WithDialOptions(opts ...grpc.DialOption) ClientOption {
	return func(c *Client) { c.extraDial = append(c.extraDial, opts...) }
}

// Client is a long-lived connection to the data broker. The underlying
// connection is created lazily and replaced after a transport failure.
// Safe for concurrent use.
type Client struct {
	cfg       Config
	log       *logger.Logger
	metrics   repository.Metrics
	extraDial []grpc.DialOption

	dials      singleflight.Group
	mu         sync.RWMutex
	conn       *grpc.ClientConn
	generation int
	closed     bool
}

var _ repository.FlowBroker = (*Client)(nil)

// New creates a client. No connection is made until the first call.
func New(cfg Config, opts ...ClientOption) (*Client, error) {
	if cfg.Target == "" {
		return nil, fmt.Errorf("broker target is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = 5 * time.Second
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.ReconnectAttempts < 0 {
		cfg.ReconnectAttempts = 0
	}
	if cfg.HistorySeconds <= 0 {
		cfg.HistorySeconds = 1200
	}

	c := &Client{
		cfg:     cfg,
		log:     logger.Nop(),
		metrics: metrics.Noop{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With(logger.String("component", "broker"), logger.String("target", cfg.Target))
	return c, nil
}

// Target returns the broker address.
func (c *Client) Target() string {
	return c.cfg.Target
}

// CallOption adjusts a single call.
type CallOption func(*callOptions)

type callOptions struct {
	timeout time.Duration
}

// WithTimeout overrides the default per-call timeout.
func WithTimeout(d time.Duration) CallOption {
	return func(o *callOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// Call performs one request/response exchange with a Struct payload.
func (c *Client) Call(ctx context.Context, op Operation, req *structpb.Struct, opts ...CallOption) (*structpb.Struct, error) {
	var reply *structpb.Struct
	err := c.do(ctx, op, opts, func(ctx context.Context, conn *grpc.ClientConn) error {
		out := &structpb.Struct{}
		if err := conn.Invoke(ctx, op.Method, req, out); err != nil {
			return err
		}
		reply = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reply, nil
}

// do runs invoke with the per-call timeout, retrying idempotent operations
// on UNAVAILABLE after a ctx-aware backoff.
func (c *Client) do(ctx context.Context, op Operation, opts []CallOption, invoke func(context.Context, *grpc.ClientConn) error) error {
	co := callOptions{timeout: c.cfg.Timeout}
	for _, o := range opts {
		o(&co)
	}

	attempts := 1
	if op.Idempotent {
		attempts += c.cfg.ReconnectAttempts
	}

	var last *apperr.Error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(c.cfg.ReconnectBackoff):
			case <-ctx.Done():
				return apperr.New(apperr.Timeout, "call abandoned while waiting to reconnect").
					WithOp(op.Name).WithError(ctx.Err())
			}
			c.log.Debug("retrying broker call", logger.String("operation", op.Name), logger.Int("attempt", attempt))
		}

		err := c.attempt(ctx, op, co.timeout, invoke)
		if err == nil {
			return nil
		}
		last = err
		if err.Kind != apperr.Unavailable {
			break
		}
	}
	return last
}

func (c *Client) attempt(ctx context.Context, op Operation, timeout time.Duration, invoke func(context.Context, *grpc.ClientConn) error) *apperr.Error {
	conn, err := c.connection()
	if err != nil {
		c.metrics.RecordBrokerCall(op.Name, string(apperr.Unavailable))
		return apperr.New(apperr.Unavailable, "cannot open broker connection").WithOp(op.Name).WithError(err)
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err = invoke(callCtx, conn)
	elapsed := time.Since(start)
	c.metrics.RecordLatency("broker."+op.Name, elapsed.Seconds())

	if err == nil {
		c.metrics.RecordBrokerCall(op.Name, "ok")
		c.log.Debug("broker call ok", logger.String("operation", op.Name), logger.Duration("latency_ms", elapsed))
		return nil
	}

	ae := classify(callCtx, op, timeout, err)
	c.metrics.RecordBrokerCall(op.Name, string(ae.Kind))
	c.metrics.RecordError(string(ae.Kind))
	c.log.Warn("broker call failed",
		logger.String("operation", op.Name),
		logger.String("kind", string(ae.Kind)),
		logger.Duration("latency_ms", elapsed),
		logger.Error(err),
	)
	if ae.Kind == apperr.Unavailable {
		c.invalidate(conn)
	}
	return ae
}

// classify maps a gRPC failure onto the error taxonomy.
func classify(ctx context.Context, op Operation, timeout time.Duration, err error) *apperr.Error {
	st, ok := status.FromError(err)
	if !ok {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return apperr.Newf(apperr.Timeout, "no reply from data broker within %s", timeout).WithOp(op.Name).WithError(err)
		}
		return apperr.New(apperr.Unavailable, "data broker unreachable").WithOp(op.Name).WithError(err)
	}

	switch st.Code() {
	case codes.Unavailable:
		return apperr.Newf(apperr.Unavailable, "data broker unavailable: %s", st.Message()).WithOp(op.Name).WithError(err)
	case codes.DeadlineExceeded:
		return apperr.Newf(apperr.Timeout, "no reply from data broker within %s", timeout).WithOp(op.Name).WithError(err)
	case codes.Canceled:
		if ctx.Err() == nil {
			// connection torn down under the call
			return apperr.Newf(apperr.Unavailable, "broker connection closed: %s", st.Message()).WithOp(op.Name).WithError(err)
		}
		return apperr.New(apperr.Timeout, "call cancelled before the data broker replied").WithOp(op.Name).WithError(err)
	case codes.Unimplemented:
		return apperr.Newf(apperr.Protocol, "data broker does not implement %s", op.Method).WithOp(op.Name).WithError(err)
	case codes.DataLoss:
		return apperr.Newf(apperr.Protocol, "corrupt reply: %s", st.Message()).WithOp(op.Name).WithError(err)
	case codes.Internal:
		if strings.Contains(st.Message(), "marshal") {
			return apperr.Newf(apperr.Protocol, "malformed reply: %s", st.Message()).WithOp(op.Name).WithError(err)
		}
	}
	return apperr.Newf(apperr.Remote, "data broker error (%s): %s", st.Code(), st.Message()).WithOp(op.Name).WithError(err)
}

func (c *Client) current() *grpc.ClientConn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

// connection returns the shared connection, creating it at most once per
// generation no matter how many callers arrive together.
func (c *Client) connection() (*grpc.ClientConn, error) {
	if conn := c.current(); conn != nil {
		return conn, nil
	}

	v, err, _ := c.dials.Do("dial", func() (interface{}, error) {
		if conn := c.current(); conn != nil {
			return conn, nil
		}
		c.mu.RLock()
		closed := c.closed
		c.mu.RUnlock()
		if closed {
			return nil, errClosed
		}

		conn, err := grpc.NewClient(c.cfg.Target, c.dialOptions()...)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			_ = conn.Close()
			return nil, errClosed
		}
		c.conn = conn
		c.generation++
		gen := c.generation
		c.mu.Unlock()

		c.log.Info("broker connection created", logger.Int("generation", gen))
		return conn, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*grpc.ClientConn), nil
}

// invalidate drops stale if it is still the shared connection. Calls already
// in flight on it get until the call timeout before it is closed.
func (c *Client) invalidate(stale *grpc.ClientConn) {
	c.mu.Lock()
	if c.conn != stale {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.mu.Unlock()

	c.metrics.RecordReconnect()
	c.log.Warn("broker connection discarded; next call reconnects")
	time.AfterFunc(c.cfg.Timeout, func() { _ = stale.Close() })
}

func (c *Client) dialOptions() []grpc.DialOption {
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithConnectParams(grpc.ConnectParams{
			Backoff: backoff.Config{
				BaseDelay:  100 * time.Millisecond,
				Multiplier: 1.6,
				Jitter:     0.2,
				MaxDelay:   c.cfg.ConnectTimeout,
			},
			MinConnectTimeout: c.cfg.ConnectTimeout,
		}),
		grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(64 * 1024 * 1024)),
	}
	if c.cfg.KeepaliveInterval > 0 {
		opts = append(opts, grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                c.cfg.KeepaliveInterval,
			Timeout:             10 * time.Second,
			PermitWithoutStream: false,
		}))
	}
	return append(opts, c.extraDial...)
}

// Close releases the connection. Later calls fail with UNAVAILABLE.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}
