package discovery

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponderAnswersRequest(t *testing.T) {
	r := NewResponder(0, nil)
	require.NoError(t, r.Start())
	t.Cleanup(r.Stop)

	conn, err := net.DialUDP("udp4", nil, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: r.Port()})
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte(Request))
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 1024)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, Response, string(buf[:n]))
}

func TestResponderIgnoresOtherDatagrams(t *testing.T) {
	r := NewResponder(0, nil)
	require.NoError(t, r.Start())
	t.Cleanup(r.Stop)

	conn, err := net.DialUDP("udp4", nil, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: r.Port()})
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("SOMETHING_ELSE_ENTIRELY"))
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	buf := make([]byte, 1024)
	_, err = conn.Read(buf)
	assert.Error(t, err, "no reply expected for an unknown datagram")
}

func TestLocateTimesOutWithoutServer(t *testing.T) {
	// Nothing answers on this port; Locate must give up and report it.
	_, err := Locate(54329, 300*time.Millisecond, nil)
	assert.ErrorIs(t, err, ErrNoServer)
}

func TestBroadcastAddrsAreDirectedIPv4(t *testing.T) {
	for _, addr := range broadcastAddrs(DefaultPort) {
		assert.Equal(t, DefaultPort, addr.Port)
		require.NotNil(t, addr.IP.To4())
		assert.False(t, addr.IP.IsLoopback())
	}
}
