package osc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/live-logic-core/internal/infrastructure/config"
)

// Default settings applied when the configuration leaves them zero.
const (
	// defaultQueryTimeout bounds how long a query waits for its reply.
	defaultQueryTimeout = 2 * time.Second

	// defaultWriteTimeout bounds a single datagram write.
	defaultWriteTimeout = 2 * time.Second

	// defaultReadBufferSize fits the largest reply the workstation
	// produces, a parameter list for a large device rack.
	defaultReadBufferSize = 8192
)

// closeOnce wraps a close channel with sync.Once for safe repeated Close calls.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// Logger is the minimal structured logging interface the client needs.
// slog-style loggers, including internal/infrastructure/logging, satisfy
// it directly.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Stats is a point-in-time snapshot of transport activity counters.
type Stats struct {
	MessagesSent     uint64
	MessagesReceived uint64
	RepliesUnmatched uint64
	Errors           uint64
	LastActivity     time.Time
	Running          bool
}

// waiter is a registered reply listener. One waiter may be keyed under
// several addresses because the workstation answers either on the
// request address or on the request address with a "/response" suffix.
type waiter struct {
	ch   chan Message
	keys []string
}

// Client is the UDP OSC client for the workstation command channel.
//
// A single socket bound to the reply port both sends commands and
// receives replies. Queries register a waiter before sending so a fast
// reply cannot be lost, then block until the waiter fires or the
// deadline passes.
type Client struct {
	cfg    config.OSCConfig
	conn   *net.UDPConn
	remote *net.UDPAddr

	// Reply routing
	waiters  map[string][]*waiter
	waiterMu sync.Mutex

	// Replies that arrived with no waiter registered
	lastReply   map[string]Message
	lastReplyMu sync.RWMutex

	// Optional callback for unsolicited messages
	onMessage  func(Message)
	callbackMu sync.RWMutex

	// Connection state
	running   bool
	runningMu sync.RWMutex

	// Lifecycle
	done *closeOnce
	wg   sync.WaitGroup

	// Statistics
	messagesSent     atomic.Uint64
	messagesReceived atomic.Uint64
	repliesUnmatched atomic.Uint64
	errorsTotal      atomic.Uint64
	lastActivity     atomic.Int64

	// Logging
	logger   Logger
	loggerMu sync.RWMutex
}

// Connect binds the reply socket and starts the receive loop.
//
// UDP is connectionless, so a successful Connect proves only that the
// local socket is bound. First contact with the workstation is
// confirmed by the first successful query.
func Connect(cfg config.OSCConfig) (*Client, error) {
	remote, err := net.ResolveUDPAddr("udp", net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.CommandPort)))
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %s:%d: %v", ErrConnectionFailed, cfg.Host, cfg.CommandPort, err)
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: cfg.ReplyPort})
	if err != nil {
		return nil, fmt.Errorf("%w: bind reply port %d: %v", ErrConnectionFailed, cfg.ReplyPort, err)
	}

	c := &Client{
		cfg:       cfg,
		conn:      conn,
		remote:    remote,
		waiters:   make(map[string][]*waiter),
		lastReply: make(map[string]Message),
		done:      newCloseOnce(),
	}
	c.running = true
	c.lastActivity.Store(time.Now().Unix())

	c.wg.Add(1)
	go c.receiveLoop()

	return c, nil
}

// receiveLoop reads datagrams until the socket closes, decoding each
// one and routing it to a waiter or the unsolicited path.
func (c *Client) receiveLoop() {
	defer c.wg.Done()

	size := c.cfg.ReadBufferSize
	if size <= 0 {
		size = defaultReadBufferSize
	}
	buf := make([]byte, size)

	for {
		select {
		case <-c.done.Done():
			return
		default:
		}

		n, _, err := c.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			select {
			case <-c.done.Done():
				return
			default:
			}
			c.errorsTotal.Add(1)
			c.logError("read failed", "error", err)
			continue
		}

		msg, err := ParseMessage(buf[:n])
		if err != nil {
			c.errorsTotal.Add(1)
			c.logDebug("dropping undecodable datagram", "bytes", n, "error", err)
			continue
		}

		c.messagesReceived.Add(1)
		c.lastActivity.Store(time.Now().Unix())
		c.dispatch(msg)
	}
}

// dispatch hands a received message to the oldest waiter registered for
// its address, removing that waiter from every address it was keyed
// under. Messages nobody is waiting for are recorded and counted.
func (c *Client) dispatch(msg Message) {
	c.waiterMu.Lock()
	var target *waiter
	if queue := c.waiters[msg.Address]; len(queue) > 0 {
		target = queue[0]
		c.removeWaiterLocked(target)
	}
	c.waiterMu.Unlock()

	if target != nil {
		// The channel is buffered and the waiter is already out of the
		// registry, so this send cannot block or race another dispatch.
		target.ch <- msg
		return
	}

	c.lastReplyMu.Lock()
	c.lastReply[msg.Address] = msg
	c.lastReplyMu.Unlock()
	c.repliesUnmatched.Add(1)

	c.callbackMu.RLock()
	callback := c.onMessage
	c.callbackMu.RUnlock()
	if callback != nil {
		c.invokeCallback(callback, msg)
	}
}

func (c *Client) invokeCallback(callback func(Message), msg Message) {
	defer func() {
		if r := recover(); r != nil {
			c.logError("message callback panic recovered", "address", msg.Address, "panic", r)
		}
	}()
	callback(msg)
}

func (c *Client) registerWaiter(keys ...string) *waiter {
	w := &waiter{ch: make(chan Message, 1), keys: keys}
	c.waiterMu.Lock()
	for _, key := range keys {
		c.waiters[key] = append(c.waiters[key], w)
	}
	c.waiterMu.Unlock()
	return w
}

func (c *Client) unregisterWaiter(w *waiter) {
	c.waiterMu.Lock()
	c.removeWaiterLocked(w)
	c.waiterMu.Unlock()
}

func (c *Client) removeWaiterLocked(w *waiter) {
	for _, key := range w.keys {
		queue := c.waiters[key]
		for i, cand := range queue {
			if cand == w {
				c.waiters[key] = append(queue[:i], queue[i+1:]...)
				break
			}
		}
		if len(c.waiters[key]) == 0 {
			delete(c.waiters, key)
		}
	}
}

// Send encodes and transmits a message without waiting for a reply.
func (c *Client) Send(ctx context.Context, address string, args ...any) error {
	if !c.IsRunning() {
		return ErrNotRunning
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	data, err := NewMessage(address, args...).Encode()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	deadline := time.Now().Add(defaultWriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		c.errorsTotal.Add(1)
		return fmt.Errorf("%w: set deadline: %v", ErrSendFailed, err)
	}

	if _, err := c.conn.WriteToUDP(data, c.remote); err != nil {
		c.errorsTotal.Add(1)
		return fmt.Errorf("%w: %s: %v", ErrSendFailed, address, err)
	}

	c.messagesSent.Add(1)
	c.lastActivity.Store(time.Now().Unix())
	c.logDebug("sent", "address", address, "args", len(args))
	return nil
}

// Query sends a request and blocks until the matching reply arrives or
// the configured query timeout passes.
//
// The waiter is registered before the request goes out, under both the
// request address and its "/response" variant, so a reply cannot slip
// past between send and wait. Replies are matched by address; the
// workstation serializes request handling, which keeps replies in
// request order.
func (c *Client) Query(ctx context.Context, address string, args ...any) (Message, error) {
	return c.query(ctx, c.queryTimeout(), address, args...)
}

func (c *Client) query(ctx context.Context, timeout time.Duration, address string, args ...any) (Message, error) {
	return c.queryAccept(ctx, timeout, address, []string{address, address + "/response"}, args...)
}

// queryAccept performs a query that accepts a reply on any of the given
// addresses. Needed for endpoints where older workstation bridges reply
// on a different address than the one queried.
func (c *Client) queryAccept(ctx context.Context, timeout time.Duration, address string, accept []string, args ...any) (Message, error) {
	if !c.IsRunning() {
		return Message{}, ErrNotRunning
	}

	w := c.registerWaiter(accept...)
	defer c.unregisterWaiter(w)

	if err := c.Send(ctx, address, args...); err != nil {
		return Message{}, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg := <-w.ch:
		return msg, nil
	case <-timer.C:
		c.errorsTotal.Add(1)
		return Message{}, fmt.Errorf("%w: %s after %v", ErrQueryTimeout, address, timeout)
	case <-ctx.Done():
		return Message{}, fmt.Errorf("query %s: %w", address, ctx.Err())
	case <-c.done.Done():
		return Message{}, ErrNotRunning
	}
}

func (c *Client) queryTimeout() time.Duration {
	if t := c.cfg.GetQueryTimeout(); t > 0 {
		return t
	}
	return defaultQueryTimeout
}

// LastReply returns the most recent reply recorded for an address that
// arrived with no waiter registered.
func (c *Client) LastReply(address string) (Message, bool) {
	c.lastReplyMu.RLock()
	defer c.lastReplyMu.RUnlock()
	msg, ok := c.lastReply[address]
	return msg, ok
}

// SetOnMessage registers a callback for messages that arrive with no
// waiter registered. The callback runs on the receive goroutine and
// must not block.
func (c *Client) SetOnMessage(callback func(Message)) {
	c.callbackMu.Lock()
	c.onMessage = callback
	c.callbackMu.Unlock()
}

// IsRunning reports whether the receive loop is active.
func (c *Client) IsRunning() bool {
	c.runningMu.RLock()
	defer c.runningMu.RUnlock()
	return c.running
}

// LocalAddr returns the bound reply address.
func (c *Client) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// RemoteAddr returns the workstation command address.
func (c *Client) RemoteAddr() net.Addr {
	return c.remote
}

// GetStats returns a snapshot of transport counters.
func (c *Client) GetStats() Stats {
	return Stats{
		MessagesSent:     c.messagesSent.Load(),
		MessagesReceived: c.messagesReceived.Load(),
		RepliesUnmatched: c.repliesUnmatched.Load(),
		Errors:           c.errorsTotal.Load(),
		LastActivity:     time.Unix(c.lastActivity.Load(), 0),
		Running:          c.IsRunning(),
	}
}

// Close stops the receive loop and releases the socket. Safe to call
// more than once.
func (c *Client) Close() error {
	c.done.Close()

	c.runningMu.Lock()
	c.running = false
	c.runningMu.Unlock()

	var err error
	if c.conn != nil {
		err = c.conn.Close()
	}
	c.wg.Wait()

	c.logInfo("client closed",
		"messages_sent", c.messagesSent.Load(),
		"messages_received", c.messagesReceived.Load(),
	)
	return err
}

// SetLogger installs a logger. Passing nil disables logging.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) logDebug(msg string, args ...any) {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}

func (c *Client) logInfo(msg string, args ...any) {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	if c.logger != nil {
		c.logger.Info(msg, args...)
	}
}

func (c *Client) logError(msg string, args ...any) {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	if c.logger != nil {
		c.logger.Error(msg, args...)
	}
}
