package socket

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Raphine/Raph-Library/nettcp"
	"github.com/Raphine/Raph-Library/netstack"
)

func pump(t *testing.T, step func() error) error {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for {
		err := step()
		if !errors.Is(err, nettcp.ErrNoRxPacket) {
			return err
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Millisecond)
	}
}

func newConnectedPair(t *testing.T) (client, server *TCPSocket) {
	t.Helper()
	a, b := netstack.NewLoopbackPair(8)

	client = NewTCPSocket(0x0a000001, 40000, 0x0a000002, 8080)
	require.NoError(t, client.Open(a))

	server = NewTCPSocket(0x0a000002, 8080, 0x0a000001, 40000)
	require.NoError(t, server.Open(b))

	done := make(chan error, 2)
	go func() { done <- pump(t, server.Listen) }()
	go func() { done <- pump(t, client.Connect) }()
	require.NoError(t, <-done)
	require.NoError(t, <-done)

	return client, server
}

func TestOpenConnectListenEstablishes(t *testing.T) {
	client, server := newConnectedPair(t)
	require.Equal(t, nettcp.StateEstablished, client.State())
	require.Equal(t, nettcp.StateEstablished, server.State())
}

func TestWriteThenRead(t *testing.T) {
	client, server := newConnectedPair(t)

	msg := []byte("ping")
	wdone := make(chan error, 1)
	go func() {
		wdone <- pump(t, func() error {
			_, err := client.Write(msg)
			return err
		})
	}()

	buf := make([]byte, 64)
	var n int
	require.NoError(t, pump(t, func() error {
		var err error
		n, err = server.Read(buf)
		return err
	}))
	require.Equal(t, msg, buf[:n])
	require.NoError(t, <-wdone)
}

func TestCloseIsIdempotent(t *testing.T) {
	client, _ := newConnectedPair(t)
	require.NoError(t, client.Close())
	require.NoError(t, client.Close())
}

func TestOperationsBeforeOpenReturnErrNotOpen(t *testing.T) {
	s := NewTCPSocket(1, 1, 2, 2)
	_, err := s.Read(make([]byte, 4))
	require.ErrorIs(t, err, ErrNotOpen)
	require.ErrorIs(t, s.Connect(), ErrNotOpen)
}
