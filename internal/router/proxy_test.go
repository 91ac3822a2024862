package router

import (
	"bufio"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgflex/pgflex/pkg/models"
)

// startEchoBackend runs a TCP server that echoes every line back.
func startEchoBackend(t *testing.T) string {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { listener.Close() })

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				io.Copy(c, c)
			}(conn)
		}
	}()

	return listener.Addr().String()
}

func TestProxy_StreamsToBackend(t *testing.T) {
	backendAddr := startEchoBackend(t)

	r := New(Config{AdmissionTimeout: time.Second})
	unit := models.NewComputeUnit("pool-1", models.TierSmall, backendAddr)
	unit.Activate()
	r.RegisterUnit(unit)

	proxy := NewProxy("127.0.0.1:0", r, nil)
	require.NoError(t, proxy.Start())
	defer proxy.Stop()

	client, err := net.Dial("tcp", proxy.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Write([]byte("select 1\n"))
	require.NoError(t, err)

	line, err := bufio.NewReader(client).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "select 1\n", line)

	// The session is registered in the routing table while it lives.
	deadline := time.Now().Add(time.Second)
	for r.ConnCount(unit.ID) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	assert.Equal(t, 1, r.ConnCount(unit.ID))

	client.Close()

	deadline = time.Now().Add(time.Second)
	for r.ConnCount(unit.ID) > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	assert.Equal(t, 0, r.ConnCount(unit.ID))
}

func TestProxy_RefusesWithoutUnits(t *testing.T) {
	r := New(Config{AdmissionTimeout: 100 * time.Millisecond})

	proxy := NewProxy("127.0.0.1:0", r, nil)
	require.NoError(t, proxy.Start())
	defer proxy.Stop()

	client, err := net.Dial("tcp", proxy.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	// With no routable unit the proxy closes the connection after the
	// admission timeout.
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = client.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
}

func TestProxy_ForcedResetClosesClient(t *testing.T) {
	backendAddr := startEchoBackend(t)

	r := New(Config{AdmissionTimeout: time.Second})
	unit := models.NewComputeUnit("pool-1", models.TierSmall, backendAddr)
	unit.Activate()
	r.RegisterUnit(unit)

	proxy := NewProxy("127.0.0.1:0", r, nil)
	require.NoError(t, proxy.Start())
	defer proxy.Stop()

	client, err := net.Dial("tcp", proxy.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	// Exchange one line so the session is fully established.
	_, err = client.Write([]byte("ping\n"))
	require.NoError(t, err)
	_, err = bufio.NewReader(client).ReadString('\n')
	require.NoError(t, err)

	deadline := time.Now().Add(time.Second)
	for r.ConnCount(unit.ID) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	closed := r.ForceCloseUnit(unit.ID)
	assert.Len(t, closed, 1)

	// The client observes its connection ending.
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = client.Read(make([]byte, 1))
	assert.Error(t, err)
}
