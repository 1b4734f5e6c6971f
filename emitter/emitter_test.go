package emitter

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/hypebeast/go-osc/osc"
	"github.com/nvr-ai/colortrack/motion"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	host    string
	port    int
	packets []osc.Packet
	err     error
}

func (r *recordingSender) Send(packet osc.Packet) error {
	r.packets = append(r.packets, packet)
	return r.err
}

type dialLog struct {
	senders []*recordingSender
	err     error
}

func (d *dialLog) dial(host string, port int) Sender {
	s := &recordingSender{host: host, port: port, err: d.err}
	d.senders = append(d.senders, s)
	return s
}

func (d *dialLog) last() *recordingSender {
	return d.senders[len(d.senders)-1]
}

var testState = motion.State{
	Position:     motion.Vec3{X: 0.5, Y: 0.25, Z: 0.125},
	Velocity:     motion.Vec3{X: 1, Y: -1, Z: 0},
	Acceleration: motion.Vec3{X: 0.5, Y: 0, Z: -0.5},
}

func TestNewMessage_ArgumentOrder(t *testing.T) {
	msg := NewMessage("/wek/inputs", testState)

	assert.Equal(t, "/wek/inputs", msg.Address)
	assert.Equal(t, []interface{}{
		float32(0.5), float32(0.25), float32(0.125),
		float32(1), float32(-1), float32(0),
		float32(0.5), float32(0), float32(-0.5),
	}, msg.Arguments)
}

func TestNew_Defaults(t *testing.T) {
	d := &dialLog{}
	e := New(Options{Dial: d.dial})

	require.Len(t, d.senders, 1)
	assert.Equal(t, DefaultHost, d.last().host)
	assert.Equal(t, DefaultPort, d.last().port)
	assert.Equal(t, DefaultAddress, e.Address())
}

func TestEmit_SkipsSentinel(t *testing.T) {
	d := &dialLog{}
	e := New(Options{Dial: d.dial})

	assert.False(t, e.Emit(motion.LostState))
	assert.False(t, e.Sent())
	assert.Empty(t, d.last().packets)

	assert.True(t, e.Emit(testState))
	assert.True(t, e.Sent())
	assert.Len(t, d.last().packets, 1)

	assert.False(t, e.Emit(motion.LostState))
	assert.False(t, e.Sent(), "sent flag is per frame")
	assert.Equal(t, uint64(1), e.Count())
}

func TestEmit_SendErrorIsSwallowed(t *testing.T) {
	d := &dialLog{err: errors.New("connection refused")}
	e := New(Options{Dial: d.dial})

	assert.True(t, e.Emit(testState))
	assert.True(t, e.Sent())
	assert.Equal(t, uint64(1), e.Failures())
}

func TestReconfigure(t *testing.T) {
	d := &dialLog{}
	e := New(Options{Host: "10.0.0.1", Port: 9000, Address: "/a", Dial: d.dial})

	t.Run("address only keeps the transport", func(t *testing.T) {
		assert.False(t, e.Reconfigure("10.0.0.1", 9000, "/b"))
		assert.Len(t, d.senders, 1)
		e.Emit(testState)
		msg, ok := d.last().packets[0].(*osc.Message)
		require.True(t, ok)
		assert.Equal(t, "/b", msg.Address)
	})

	t.Run("port change reconnects", func(t *testing.T) {
		assert.True(t, e.Reconfigure("10.0.0.1", 9001, "/b"))
		assert.Len(t, d.senders, 2)
		assert.Equal(t, 9001, d.last().port)
	})

	t.Run("host change reconnects", func(t *testing.T) {
		assert.True(t, e.Reconfigure("10.0.0.2", 9001, "/b"))
		assert.Len(t, d.senders, 3)
		assert.Equal(t, "10.0.0.2", e.Host())
	})
}

func TestClose(t *testing.T) {
	d := &dialLog{}
	e := New(Options{Dial: d.dial})
	require.NoError(t, e.Close())

	assert.False(t, e.Emit(testState))
	assert.Empty(t, d.last().packets)
}

func TestEmit_UDP(t *testing.T) {
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer conn.Close()
	port := conn.LocalAddr().(*net.UDPAddr).Port

	e := New(Options{Host: "127.0.0.1", Port: port, Address: "/wek/inputs"})
	require.True(t, e.Emit(testState))

	buf := make([]byte, 1024)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, _, err := conn.ReadFrom(buf)
	require.NoError(t, err)

	packet, err := osc.ParsePacket(string(buf[:n]))
	require.NoError(t, err)
	msg, ok := packet.(*osc.Message)
	require.True(t, ok)
	assert.Equal(t, "/wek/inputs", msg.Address)
	require.Len(t, msg.Arguments, 9)
	assert.Equal(t, float32(0.5), msg.Arguments[0])
	assert.Equal(t, float32(-0.5), msg.Arguments[8])
}
