package statusfeed

import (
	"encoding/json"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nvr-ai/colortrack/controller"
	"github.com/nvr-ai/colortrack/detector"
	"github.com/nvr-ai/colortrack/motion"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func dialHub(t *testing.T, h *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return h.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)
	return conn
}

func receiveCommand(t *testing.T, h *Hub) Command {
	t.Helper()
	select {
	case cmd := <-h.commands:
		return cmd
	case <-time.After(2 * time.Second):
		t.Fatal("no command received")
		return Command{}
	}
}

func TestHub_QueuesCommands(t *testing.T) {
	h := NewHub(nil, 4)
	defer h.Close()
	conn := dialHub(t, h)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"reboot"}`)))
	require.NoError(t, conn.WriteJSON(Command{Type: CommandCalibrate, X: 320, Y: 240}))

	cmd := receiveCommand(t, h)
	assert.Equal(t, CommandCalibrate, cmd.Type)
	assert.Equal(t, image.Pt(320, 240), cmd.Point())
}

func TestHub_Drain(t *testing.T) {
	h := NewHub(nil, 4)
	defer h.Close()
	conn := dialHub(t, h)

	require.NoError(t, conn.WriteJSON(Command{Type: CommandPointer, X: 1, Y: 2}))
	require.NoError(t, conn.WriteJSON(Command{Type: CommandPointer, X: 3, Y: 4}))
	require.Eventually(t, func() bool { return len(h.commands) == 2 }, 2*time.Second, 10*time.Millisecond)

	var got []image.Point
	h.Drain(func(c Command) { got = append(got, c.Point()) })
	assert.Equal(t, []image.Point{{1, 2}, {3, 4}}, got)

	h.Drain(func(Command) { t.Fatal("queue should be empty") })
}

func TestHub_Broadcast(t *testing.T) {
	h := NewHub(nil, 4)
	defer h.Close()
	conn := dialHub(t, h)

	f := Frame{Type: "frame", Frame: 7, Position: motion.Vec3{X: 0.5, Y: 0.5, Z: 0.01}, Sent: true}
	require.NoError(t, h.Broadcast(f))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got Frame
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, uint64(7), got.Frame)
	assert.Equal(t, f.Position, got.Position)
	assert.True(t, got.Sent)
	assert.Nil(t, got.Mask)
}

func TestHub_ClientDisconnect(t *testing.T) {
	h := NewHub(nil, 4)
	defer h.Close()
	conn := dialHub(t, h)

	conn.Close()
	assert.Eventually(t, func() bool { return h.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.NoError(t, h.Broadcast(Frame{}))
}

func TestCommand_ApplyConfig(t *testing.T) {
	base := controller.DefaultConfig(image.Pt(640, 480))

	cmd := Command{Type: CommandConfig, Config: json.RawMessage(`{"port": 9000, "smoothing": false}`)}
	cfg, err := cmd.ApplyConfig(base)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Port)
	assert.False(t, cfg.Smoothing)
	assert.Equal(t, base.Host, cfg.Host)
	assert.Equal(t, base.Tolerance, cfg.Tolerance)

	_, err = Command{Type: CommandConfig}.ApplyConfig(base)
	assert.Error(t, err)

	_, err = Command{Type: CommandConfig, Config: json.RawMessage(`{"port": "x"}`)}.ApplyConfig(base)
	assert.Error(t, err)
}

func TestNewFrame(t *testing.T) {
	snap := controller.Snapshot{
		Session: "abc",
		Frame:   3,
		State: motion.State{
			Position: motion.Vec3{X: 0.1, Y: 0.2, Z: 0.3},
			Velocity: motion.Vec3{X: 1},
		},
		Usable:       true,
		Sent:         true,
		Detection:    detector.Analyze([][]image.Point{{{0, 0}, {10, 0}, {10, 10}, {0, 10}}}),
		FPS:          29.5,
		Jitter:       1500 * time.Microsecond,
		SendFailures: 2,
	}

	f := NewFrame(snap)

	assert.Equal(t, "frame", f.Type)
	assert.Equal(t, "abc", f.Session)
	assert.Equal(t, snap.State.Position, f.Position)
	assert.Equal(t, snap.State.Velocity, f.Velocity)
	assert.True(t, f.Detected)
	assert.Equal(t, 1, f.Blobs)
	assert.InDelta(t, 100, f.MaxArea, 1e-9)
	assert.Equal(t, 29.5, f.FPS)
	assert.InDelta(t, 1.5, f.JitterMS, 1e-9)
	assert.Equal(t, uint64(2), f.SendFailures)
}

func TestHub_RejectsCrossOriginBrowsers(t *testing.T) {
	h := NewHub(nil, 4)
	defer h.Close()
	srv := httptest.NewServer(h)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	header := http.Header{"Origin": {"http://elsewhere.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, 0, h.Clients())

	header = http.Header{"Origin": {srv.URL}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	conn.Close()
}

func TestMaskPublisher(t *testing.T) {
	mask := gocv.NewMatWithSize(60, 80, gocv.MatTypeCV8UC1)
	defer mask.Close()
	mask.SetTo(gocv.NewScalar(0, 0, 0, 0))
	gocv.Circle(&mask, image.Pt(40, 30), 10, color.RGBA{R: 255, G: 255, B: 255, A: 255}, -1)

	p := &MaskPublisher{Width: 40}

	var f Frame
	attached, err := p.Attach(&f, mask)
	require.NoError(t, err)
	assert.True(t, attached)
	require.NotNil(t, f.Mask)
	assert.Equal(t, 40, f.Mask.Width)
	assert.Equal(t, 30, f.Mask.Height)

	var unchanged Frame
	attached, err = p.Attach(&unchanged, mask)
	require.NoError(t, err)
	assert.False(t, attached)
	assert.Nil(t, unchanged.Mask)

	mask.SetUCharAt(0, 0, 255)
	var changed Frame
	attached, err = p.Attach(&changed, mask)
	require.NoError(t, err)
	assert.True(t, attached)
}
