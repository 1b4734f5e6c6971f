// Package statusfeed - Publishes tracker snapshots to websocket clients and collects the
// commands they send back (calibration clicks and configuration edits).
package statusfeed

import (
	"encoding/json"
	"image"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nvr-ai/colortrack/controller"
	"github.com/nvr-ai/colortrack/images"
	"github.com/nvr-ai/colortrack/motion"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	// CommandCalibrate samples the color at (X, Y) in display pixels.
	CommandCalibrate = "calibrate"
	// CommandPointer moves the calibration cursor to (X, Y).
	CommandPointer = "pointer"
	// CommandConfig applies a partial tracker configuration.
	CommandConfig = "config"

	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 8
)

// Command is a message received from a client.
type Command struct {
	Type string `json:"type"`
	X    int    `json:"x,omitempty"`
	Y    int    `json:"y,omitempty"`
	// Config holds the fields to change; omitted fields keep their value.
	Config json.RawMessage `json:"config,omitempty"`
}

// Point returns the command position.
func (c Command) Point() image.Point {
	return image.Pt(c.X, c.Y)
}

// ApplyConfig decodes the partial configuration of c onto base.
func (c Command) ApplyConfig(base controller.Config) (controller.Config, error) {
	if len(c.Config) == 0 {
		return base, errors.New("config command without config")
	}
	if err := json.Unmarshal(c.Config, &base); err != nil {
		return base, errors.Wrap(err, "decode config command")
	}
	return base, nil
}

// Frame is the message published after a processed frame.
type Frame struct {
	Type         string            `json:"type"`
	Session      string            `json:"session"`
	Frame        uint64            `json:"frame"`
	Position     motion.Vec3       `json:"position"`
	Velocity     motion.Vec3       `json:"velocity"`
	Acceleration motion.Vec3       `json:"acceleration"`
	Detected     bool              `json:"detected"`
	Sent         bool              `json:"sent"`
	Blobs        int               `json:"blobs"`
	MaxArea      float64           `json:"max_area"`
	Raw          images.HSVBounds  `json:"raw"`
	Expanded     images.HSVBounds  `json:"expanded"`
	FPS          float64           `json:"fps"`
	JitterMS     float64           `json:"jitter_ms"`
	SendFailures uint64            `json:"send_failures"`
	Config       controller.Config `json:"config"`
	// Mask is only set when the mask changed since the last published one.
	Mask         *images.Image     `json:"mask,omitempty"`
}

// NewFrame builds a Frame from a snapshot.
func NewFrame(s controller.Snapshot) Frame {
	return Frame{
		Type:         "frame",
		Session:      s.Session,
		Frame:        s.Frame,
		Position:     s.State.Position,
		Velocity:     s.State.Velocity,
		Acceleration: s.State.Acceleration,
		Detected:     s.Usable,
		Sent:         s.Sent,
		Blobs:        len(s.Detection.Blobs),
		MaxArea:      s.Detection.MaxArea,
		Raw:          s.Raw,
		Expanded:     s.Expanded,
		FPS:          s.FPS,
		JitterMS:     float64(s.Jitter) / float64(time.Millisecond),
		SendFailures: s.SendFailures,
		Config:       s.Config,
	}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans frames out to every connected client and queues their commands for the
// frame thread.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *zap.Logger
	commands chan Command

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

// NewHub creates a Hub.
//
// Arguments:
//   - logger: The logger; nil disables logging.
//   - queue: Capacity of the command queue; commands beyond it are dropped.
//
// Returns:
//   - *Hub: The hub, to be mounted as an http.Handler.
func NewHub(logger *zap.Logger, queue int) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if queue < 1 {
		queue = 16
	}
	return &Hub{
		// The default origin check turns away pages served from other hosts.
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger:   logger.Named("statusfeed"),
		commands: make(chan Command, queue),
		clients:  make(map[*client]struct{}),
	}
}

// Drain applies every queued command without blocking.
func (h *Hub) Drain(apply func(Command)) {
	for {
		select {
		case cmd := <-h.commands:
			apply(cmd)
		default:
			return
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request to a websocket and serves the client until it
// disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Info("client connected", zap.String("remote", conn.RemoteAddr().String()))

	go h.writeLoop(c)
	h.readLoop(c)
}

func (h *Hub) readLoop(c *client) {
	defer h.remove(c)

	c.conn.SetReadLimit(64 * 1024)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("client read failed", zap.Error(err))
			}
			return
		}

		var cmd Command
		if err := json.Unmarshal(message, &cmd); err != nil {
			h.logger.Warn("invalid command", zap.Error(err))
			continue
		}
		switch cmd.Type {
		case CommandCalibrate, CommandPointer, CommandConfig:
		default:
			h.logger.Warn("unknown command", zap.String("type", cmd.Type))
			continue
		}

		select {
		case h.commands <- cmd:
		default:
			h.logger.Warn("command queue full, dropping", zap.String("type", cmd.Type))
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				h.logger.Debug("client write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// remove unregisters c and closes its send queue, which ends its writer.
func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		h.logger.Info("client disconnected")
	}
}

// Broadcast publishes f to every client. Clients whose queue is full skip the
// frame.
func (h *Hub) Broadcast(f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return errors.Wrap(err, "encode frame")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Debug("client slow, skipping frame")
		}
	}
	return nil
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}
