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

// Loader addresses served by the companion remote script inside the
// workstation. The loader listens on its own port, separate from the
// command channel, and acknowledges each request to a fixed reply port.
const (
	addrLoaderLoad   = "/loader/device/load"
	addrLoaderSelect = "/loader/device/select"
	addrLoaderDelete = "/loader/device/delete"

	// defaultLoaderTimeout bounds how long a request waits for its ack.
	defaultLoaderTimeout = 3 * time.Second

	// loaderSettleDelay is how long a fire-and-forget request is given
	// to land when the ack port cannot be bound.
	loaderSettleDelay = 500 * time.Millisecond
)

// PositionEnd appends a loaded device at the end of the track chain.
const PositionEnd = -1

// LoaderStats is a snapshot of loader activity counters.
type LoaderStats struct {
	Requests uint64 `json:"requests"`
	Acks     uint64 `json:"acks"`
	Errors   uint64 `json:"errors"`
}

// Loader drives the device-loader remote script.
//
// Each request opens a short-lived socket bound to the ack port, sends
// one datagram and waits for one ack. The script always acknowledges to
// the fixed ack port, so when that port is taken the request is sent
// anyway and given a settle period, since the ack cannot be heard.
type Loader struct {
	cfg config.OSCConfig

	requests atomic.Uint64
	acks     atomic.Uint64
	errs     atomic.Uint64

	logger   Logger
	loggerMu sync.RWMutex
}

// NewLoader returns a loader for the configured workstation host.
func NewLoader(cfg config.OSCConfig) *Loader {
	return &Loader{cfg: cfg}
}

// LoadDevice asks the loader script to insert a device by browser name
// on a track. Position is a zero-based chain index, or PositionEnd to
// append.
func (l *Loader) LoadDevice(ctx context.Context, track int, name string, position int) error {
	return l.roundTrip(ctx, NewMessage(addrLoaderLoad, track, name, position))
}

// SelectDevice focuses a device so follow-up loads land next to it.
func (l *Loader) SelectDevice(ctx context.Context, track, device int) error {
	return l.roundTrip(ctx, NewMessage(addrLoaderSelect, track, device))
}

// DeleteDevice removes a device from a track chain.
func (l *Loader) DeleteDevice(ctx context.Context, track, device int) error {
	return l.roundTrip(ctx, NewMessage(addrLoaderDelete, track, device))
}

// roundTrip sends one loader request and waits for the ack. Any
// datagram back inside the deadline counts: the script sends a response
// message, but its payload is not needed to confirm delivery.
func (l *Loader) roundTrip(ctx context.Context, msg Message) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	data, err := msg.Encode()
	if err != nil {
		l.errs.Add(1)
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	remote, err := net.ResolveUDPAddr("udp", net.JoinHostPort(l.cfg.Host, strconv.Itoa(l.cfg.LoaderPort)))
	if err != nil {
		l.errs.Add(1)
		return fmt.Errorf("%w: resolve loader %s:%d: %v", ErrConnectionFailed, l.cfg.Host, l.cfg.LoaderPort, err)
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: l.cfg.LoaderReplyPort})
	if err != nil {
		// Ack port taken. The script acks only to the fixed port, so
		// send from an ephemeral socket and let the request settle.
		return l.fireAndForget(ctx, data, remote)
	}
	defer conn.Close()

	deadline := time.Now().Add(l.timeout())
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		l.errs.Add(1)
		return fmt.Errorf("%w: set deadline: %v", ErrSendFailed, err)
	}

	start := time.Now()
	if _, err := conn.WriteToUDP(data, remote); err != nil {
		l.errs.Add(1)
		return fmt.Errorf("%w: %s: %v", ErrSendFailed, msg.Address, err)
	}
	l.requests.Add(1)

	buf := make([]byte, 1024)
	if _, _, err := conn.ReadFromUDP(buf); err != nil {
		l.errs.Add(1)
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return fmt.Errorf("%w: %s after %v", ErrLoaderTimeout, msg.Address, time.Since(start).Round(time.Millisecond))
		}
		return fmt.Errorf("%w: %s: %v", ErrLoaderTimeout, msg.Address, err)
	}

	l.acks.Add(1)
	l.logDebug("loader ack", "address", msg.Address, "latency", time.Since(start))
	return nil
}

func (l *Loader) fireAndForget(ctx context.Context, data []byte, remote *net.UDPAddr) error {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: 0})
	if err != nil {
		l.errs.Add(1)
		return fmt.Errorf("%w: bind: %v", ErrConnectionFailed, err)
	}
	defer conn.Close()

	if _, err := conn.WriteToUDP(data, remote); err != nil {
		l.errs.Add(1)
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	l.requests.Add(1)
	l.logWarn("loader ack port busy, request sent unconfirmed", "port", l.cfg.LoaderReplyPort)

	return sleepContext(ctx, loaderSettleDelay)
}

// GetStats returns a snapshot of loader counters.
func (l *Loader) GetStats() LoaderStats {
	return LoaderStats{
		Requests: l.requests.Load(),
		Acks:     l.acks.Load(),
		Errors:   l.errs.Load(),
	}
}

// SetLogger installs a logger. Passing nil disables logging.
func (l *Loader) SetLogger(logger Logger) {
	l.loggerMu.Lock()
	l.logger = logger
	l.loggerMu.Unlock()
}

func (l *Loader) timeout() time.Duration {
	if t := l.cfg.GetLoaderTimeout(); t > 0 {
		return t
	}
	return defaultLoaderTimeout
}

func (l *Loader) logDebug(msg string, args ...any) {
	l.loggerMu.RLock()
	defer l.loggerMu.RUnlock()
	if l.logger != nil {
		l.logger.Debug(msg, args...)
	}
}

func (l *Loader) logWarn(msg string, args ...any) {
	l.loggerMu.RLock()
	defer l.loggerMu.RUnlock()
	if l.logger != nil {
		l.logger.Warn(msg, args...)
	}
}
