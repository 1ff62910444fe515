package telemetry

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/danielpatrickdp/placement-engine/internal/logging"
)

// #region client-struct
// Invoker is the subset of *grpc.ClientConn the client needs.
type Invoker interface {
	Invoke(ctx context.Context, method string, args, reply any, opts ...grpc.CallOption) error
}

// Client ships events to a collector. Track never blocks: events go into
// a bounded queue drained by one worker, and a full queue drops.
type Client struct {
	conn    *grpc.ClientConn
	invoker Invoker
	opts    Options
	limiter *rate.Limiter
	log     *logging.Logger
	now     func() time.Time

	mu     sync.RWMutex
	closed bool
	queue  chan Event
	done   chan struct{}

	sent    atomic.Int64
	failed  atomic.Int64
	dropped atomic.Int64
}

// #endregion client-struct

// #region constructor
// NewClient connects to a collector at addr.
func NewClient(addr string, opts Options, log *logging.Logger) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	c := NewClientWithInvoker(conn, opts, log)
	c.conn = conn
	return c, nil
}

// NewClientWithInvoker creates a client over an existing connection or a
// test double, and starts its worker.
func NewClientWithInvoker(inv Invoker, opts Options, log *logging.Logger) *Client {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultOptions().QueueSize
	}
	if log == nil {
		log = logging.Nop()
	}
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	c := &Client{
		invoker: inv,
		opts:    opts,
		limiter: rate.NewLimiter(limit, burst),
		log:     log.With("component", "telemetry"),
		now:     time.Now,
		queue:   make(chan Event, opts.QueueSize),
		done:    make(chan struct{}),
	}
	go c.run()
	return c
}

// #endregion constructor

// #region track
// Track enqueues an event. It drops the event if the queue is full or the
// client is closed.
func (c *Client) Track(kind string, payload map[string]any) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		c.dropped.Add(1)
		return
	}
	select {
	case c.queue <- Event{Kind: kind, Payload: payload, SentAt: c.now()}:
	default:
		c.dropped.Add(1)
		c.log.Warn("telemetry queue full, dropping event", "kind", kind)
	}
}

// #endregion track

// #region worker
func (c *Client) run() {
	defer close(c.done)
	for ev := range c.queue {
		if err := c.limiter.Wait(context.Background()); err != nil {
			c.failed.Add(1)
			continue
		}
		if err := c.send(ev); err != nil {
			c.failed.Add(1)
			c.log.Warn("telemetry send failed", "kind", ev.Kind, "error", err)
			continue
		}
		c.sent.Add(1)
	}
}

func (c *Client) send(ev Event) error {
	msg, err := Encode(ev)
	if err != nil {
		return err
	}
	ctx := context.Background()
	if c.opts.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.SendTimeout)
		defer cancel()
	}
	if err := c.invoker.Invoke(ctx, TrackMethod, msg, &emptypb.Empty{}); err != nil {
		return fmt.Errorf("track rpc: %w", err)
	}
	return nil
}

// #endregion worker

// #region close
// Close stops accepting events, sends what is queued and closes the
// connection. If ctx ends first the remaining events are abandoned.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.queue)
	}
	c.mu.Unlock()

	var err error
	select {
	case <-c.done:
	case <-ctx.Done():
		err = fmt.Errorf("telemetry flush: %w", ctx.Err())
	}
	if c.conn != nil {
		if cerr := c.conn.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// Stats returns the running counters.
func (c *Client) Stats() Stats {
	return Stats{Sent: c.sent.Load(), Failed: c.failed.Load(), Dropped: c.dropped.Load()}
}

// #endregion close

// #region log-sink
// LogSink is a Telemetry that only logs. Used when no collector is configured.
type LogSink struct {
	log *logging.Logger
}

// NewLogSink creates a log-only telemetry sink.
func NewLogSink(log *logging.Logger) *LogSink {
	if log == nil {
		log = logging.Nop()
	}
	return &LogSink{log: log.With("component", "telemetry")}
}

// Track logs the event kind and payload at debug level.
func (s *LogSink) Track(kind string, payload map[string]any) {
	s.log.Debug("event", "kind", kind, "payload", payload)
}

// #endregion log-sink
