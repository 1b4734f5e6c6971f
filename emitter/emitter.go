// Package emitter - Sends the motion state of the tracked object as one OSC message per
// frame.
package emitter

import (
	"sync/atomic"

	"github.com/hypebeast/go-osc/osc"
	"github.com/nvr-ai/colortrack/motion"
	"go.uber.org/zap"
)

const (
	// DefaultHost is the default destination host.
	DefaultHost = "localhost"
	// DefaultPort is the default destination port.
	DefaultPort = 6448
	// DefaultAddress is the default OSC address pattern.
	DefaultAddress = "/wek/inputs"
)

// Sender delivers a packet to a fixed endpoint.
type Sender interface {
	Send(packet osc.Packet) error
}

// Dialer creates a Sender for host:port.
type Dialer func(host string, port int) Sender

// DialUDP is the default Dialer, backed by an osc.Client.
func DialUDP(host string, port int) Sender {
	return osc.NewClient(host, port)
}

// Options configures an Emitter.
type Options struct {
	Host    string
	Port    int
	Address string
	// Dial replaces DialUDP, mostly for tests.
	Dial   Dialer
	Logger *zap.Logger
}

// Emitter packages motion states into OSC messages and sends them fire-and-forget.
//
// An Emitter is driven from the frame thread and is not safe for concurrent Emit or
// Reconfigure calls. Sent and Count may be read from any goroutine.
type Emitter struct {
	logger  *zap.Logger
	dial    Dialer
	sender  Sender
	host    string
	port    int
	address string

	sent  atomic.Bool
	count atomic.Uint64
	fails atomic.Uint64
}

// New creates an Emitter connected to the endpoint in opts. Empty fields take the
// defaults.
//
// Arguments:
//   - opts: The endpoint, dialer and logger.
//
// Returns:
//   - *Emitter: The emitter, ready to send.
func New(opts Options) *Emitter {
	if opts.Host == "" {
		opts.Host = DefaultHost
	}
	if opts.Port == 0 {
		opts.Port = DefaultPort
	}
	if opts.Address == "" {
		opts.Address = DefaultAddress
	}
	if opts.Dial == nil {
		opts.Dial = DialUDP
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	e := &Emitter{
		logger:  opts.Logger.Named("emitter"),
		dial:    opts.Dial,
		address: opts.Address,
	}
	e.connect(opts.Host, opts.Port)
	return e
}

func (e *Emitter) connect(host string, port int) {
	e.host, e.port = host, port
	e.sender = e.dial(host, port)
	e.logger.Info("osc endpoint set",
		zap.String("host", host),
		zap.Int("port", port),
		zap.String("address", e.address),
	)
}

// Reconfigure applies a new endpoint. The transport is re-established only when host or
// port changed; a new address takes effect on the next Emit either way.
//
// Arguments:
//   - host: Destination host.
//   - port: Destination port.
//   - address: OSC address pattern.
//
// Returns:
//   - bool: Whether the transport was re-established.
func (e *Emitter) Reconfigure(host string, port int, address string) bool {
	e.address = address
	if host == e.host && port == e.port && e.sender != nil {
		return false
	}
	e.connect(host, port)
	return true
}

// Emit sends s when its position is not the sentinel. Delivery errors are logged and
// counted but never returned.
//
// Arguments:
//   - s: The motion state of this frame.
//
// Returns:
//   - bool: Whether a message was handed to the transport this frame.
func (e *Emitter) Emit(s motion.State) bool {
	if !s.Valid() || e.sender == nil {
		e.sent.Store(false)
		return false
	}

	if err := e.sender.Send(NewMessage(e.address, s)); err != nil {
		e.fails.Add(1)
		e.logger.Debug("osc send failed",
			zap.String("host", e.host),
			zap.Int("port", e.port),
			zap.Error(err),
		)
	}
	e.count.Add(1)
	e.sent.Store(true)
	return true
}

// Sent reports whether the last Emit produced a message.
func (e *Emitter) Sent() bool {
	return e.sent.Load()
}

// Count returns the number of messages emitted so far.
func (e *Emitter) Count() uint64 {
	return e.count.Load()
}

// Failures returns the number of sends the transport rejected.
func (e *Emitter) Failures() uint64 {
	return e.fails.Load()
}

// Host returns the destination host.
func (e *Emitter) Host() string { return e.host }

// Port returns the destination port.
func (e *Emitter) Port() int { return e.port }

// Address returns the OSC address pattern.
func (e *Emitter) Address() string { return e.address }

// Close drops the transport. Later calls to Emit send nothing.
func (e *Emitter) Close() error {
	e.sender = nil
	e.sent.Store(false)
	return nil
}

// NewMessage builds the message for s: nine float32 arguments in the order position,
// velocity, acceleration, each as x, y, z.
func NewMessage(address string, s motion.State) *osc.Message {
	msg := osc.NewMessage(address)
	for _, v := range []motion.Vec3{s.Position, s.Velocity, s.Acceleration} {
		msg.Append(v.X)
		msg.Append(v.Y)
		msg.Append(v.Z)
	}
	return msg
}
