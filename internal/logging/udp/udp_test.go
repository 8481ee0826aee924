package udp

import (
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chichichkin/SplunkLoggingAgent/internal/logging"
	"github.com/Chichichkin/SplunkLoggingAgent/internal/logging/format"
)

func listen(t *testing.T) (net.PacketConn, Config) {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { pc.Close() })

	addr := pc.LocalAddr().(*net.UDPAddr)
	return pc, Config{HostName: "127.0.0.1", Port: addr.Port}
}

func readDatagram(t *testing.T, pc net.PacketConn) string {
	t.Helper()
	buf := make([]byte, 64*1024)
	require.NoError(t, pc.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, _, err := pc.ReadFrom(buf)
	require.NoError(t, err)
	return string(buf[:n])
}

func TestNewSender_InvalidConfig(t *testing.T) {
	_, err := NewSender(Config{HostName: "", Port: 514})
	assert.Error(t, err)

	_, err = NewSender(Config{HostName: "localhost", Port: 0})
	assert.Error(t, err)

	_, err = NewSender(Config{HostName: "localhost", Port: 70000})
	assert.Error(t, err)
}

func TestSender_SendsOneDatagramPerLine(t *testing.T) {
	pc, cfg := listen(t)
	sender, err := NewSender(cfg)
	require.NoError(t, err)
	defer sender.Close()

	sender.Send("hello splunk")
	assert.Equal(t, "hello splunk\n", readDatagram(t, pc))

	assert.Eventually(t, func() bool {
		return sender.Stats().Sent == 1
	}, time.Second, 5*time.Millisecond)
}

func TestSender_SocketIsNotConnected(t *testing.T) {
	sender, err := NewSender(Config{HostName: "127.0.0.1", Port: 9})
	require.NoError(t, err)
	defer sender.Close()

	assert.Nil(t, sender.conn.(*net.UDPConn).RemoteAddr())
}

func TestSender_EncodesASCII(t *testing.T) {
	pc, cfg := listen(t)
	sender, err := NewSender(cfg)
	require.NoError(t, err)
	defer sender.Close()

	sender.Send("grüße")
	assert.Equal(t, "gr??e\n", readDatagram(t, pc))
}

func TestSender_DropsBlankAndClosed(t *testing.T) {
	_, cfg := listen(t)
	sender, err := NewSender(cfg)
	require.NoError(t, err)

	sender.Send("   ")
	require.NoError(t, sender.Close())
	require.NoError(t, sender.Close())
	sender.Send("after close")

	stats := sender.Stats()
	assert.Equal(t, uint64(2), stats.Dropped)
	assert.Equal(t, uint64(0), stats.Sent)
}

func TestSender_UnresolvableHostIsNotSurfaced(t *testing.T) {
	sender, err := NewSender(Config{HostName: "host.invalid", Port: 514})
	require.NoError(t, err)

	sender.Send("lost")
	require.NoError(t, sender.Close())

	assert.Equal(t, uint64(1), sender.Stats().Failed)
}

func TestLogger_UsesFormatterOrFallback(t *testing.T) {
	pc, cfg := listen(t)
	sender, err := NewSender(cfg)
	require.NoError(t, err)
	defer sender.Close()

	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	withFormatter := NewLogger("orders", sender, format.NewTextFormatter(format.Config{Now: func() time.Time { return fixed }}))
	withFormatter.Log(logging.LevelInformation, logging.EventID{ID: 1}, "created", nil, nil)
	assert.Equal(t, "2024-01-02T03:04:05Z [INFO] orders[1]: created\n", readDatagram(t, pc))

	withFallback := NewLogger("orders", sender, nil)
	withFallback.Log(logging.LevelDebug, logging.EventID{}, "raw", nil, format.Fallback)
	assert.Equal(t, "raw\n", readDatagram(t, pc))
}

func TestLogger_DropsEmptyText(t *testing.T) {
	pc, cfg := listen(t)
	sender, err := NewSender(cfg)
	require.NoError(t, err)

	l := NewLogger("orders", sender, nil)
	l.Log(logging.LevelError, logging.EventID{}, "\t \n", nil, format.Fallback)
	l.Log(logging.LevelError, logging.EventID{}, "x", nil, nil)
	l.Log(logging.LevelNone, logging.EventID{}, "never", nil, format.Fallback)
	require.NoError(t, sender.Close())

	assert.Equal(t, uint64(2), sender.Stats().Dropped)
	assert.Equal(t, uint64(0), sender.Stats().Sent)

	require.NoError(t, pc.SetReadDeadline(time.Now().Add(50*time.Millisecond)))
	_, _, err = pc.ReadFrom(make([]byte, 16))
	assert.Error(t, err)
}

func TestNewProvider(t *testing.T) {
	pc, cfg := listen(t)
	sender, err := NewSender(cfg)
	require.NoError(t, err)
	defer sender.Close()

	p := NewProvider(sender, nil)
	l := p.CreateLogger("payments")
	assert.Same(t, l, p.CreateLogger("payments"))

	l.Log(logging.LevelWarning, logging.EventID{}, "declined", nil, format.Fallback)
	assert.True(t, strings.HasPrefix(readDatagram(t, pc), "declined"))
}
