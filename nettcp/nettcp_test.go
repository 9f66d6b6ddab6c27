package nettcp

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Raphine/Raph-Library/netstack"
)

// pump calls step repeatedly until it returns nil or an error other
// than ErrNoRxPacket, standing in for the poll loop a Functional task
// would drive in the full scheduler-backed stack. It gives up after a
// second and returns the last ErrNoRxPacket rather than failing
// directly, since it commonly runs on a non-test-main goroutine.
func pump(t *testing.T, step func() error) error {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for {
		err := step()
		if !errors.Is(err, ErrNoRxPacket) {
			return err
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Millisecond)
	}
}

func newPair(t *testing.T) (client, server *Layer) {
	t.Helper()
	a, b := netstack.NewLoopbackPair(8)

	client = NewLayer()
	client.SetAddress(0x0a000001)
	client.SetPeerAddress(0x0a000002)
	client.SetPort(40000)
	client.SetPeerPort(8080)
	require.True(t, client.Setup(a))

	server = NewLayer()
	server.SetAddress(0x0a000002)
	server.SetPeerAddress(0x0a000001)
	server.SetPort(8080)
	server.SetPeerPort(40000)
	require.True(t, server.Setup(b))

	return client, server
}

func establish(t *testing.T) (client, server *Layer) {
	t.Helper()
	client, server = newPair(t)

	done := make(chan error, 2)
	go func() { done <- pump(t, server.Listen) }()
	go func() { done <- pump(t, client.Connect) }()

	require.NoError(t, <-done)
	require.NoError(t, <-done)
	require.Equal(t, StateEstablished, client.State())
	require.Equal(t, StateEstablished, server.State())
	return client, server
}

func TestThreeWayHandshakeEstablishesBothSides(t *testing.T) {
	establish(t)
}

func TestConnectFailsOnTamperedAck(t *testing.T) {
	a, b := netstack.NewLoopbackPair(8)

	client := NewLayer()
	client.SetAddress(1)
	client.SetPeerAddress(2)
	client.SetPort(1000)
	client.SetPeerPort(2000)
	require.True(t, client.Setup(a))

	server := NewLayer()
	server.SetAddress(2)
	server.SetPeerAddress(1)
	server.SetPort(2000)
	server.SetPeerPort(1000)
	require.True(t, server.Setup(b))

	// Drive the client up to SynSent, then inject a SYN+ACK with a
	// bogus ack number directly onto the wire instead of running the
	// real server, to exercise the kErrorAckFailure path deterministically.
	err := client.Connect()
	require.ErrorIs(t, err, ErrNoRxPacket)
	require.Equal(t, StateSynSent, client.State())

	bogus := Header{
		SourcePort: 2000,
		DestPort:   1000,
		SeqNumber:  999,
		AckNumber:  0xDEADBEEF, // does not match client's seq+1
		DataOffset: HeaderLen / 4,
		Flags:      FlagSYN | FlagACK,
	}
	buf := bogus.Marshal()
	bogus.Checksum = Ipv4Checksum(buf, 2, 1)
	buf[16], buf[17] = byte(bogus.Checksum>>8), byte(bogus.Checksum)
	require.True(t, b.TransmitPacket(buf))

	err = client.Connect()
	require.ErrorIs(t, err, ErrAckFailure)
}

func TestGracefulCloseFromClient(t *testing.T) {
	client, server := establish(t)

	done := make(chan error, 2)
	go func() { done <- pump(t, client.Shutup) }()
	go func() {
		done <- pump(t, func() error {
			_, err := server.ReceiveSub()
			return err
		})
	}()

	errA := <-done
	errB := <-done
	require.NoError(t, errA)
	require.ErrorIs(t, errB, ConnectionClosed)
	require.Equal(t, StateClosed, client.State())
	require.Equal(t, StateClosed, server.State())
}

func TestDataTransferSingleSegment(t *testing.T) {
	client, server := establish(t)

	payload := []byte("hello, raphine")

	txDone := make(chan struct {
		n   int
		err error
	}, 1)
	go func() {
		var n int
		err := pump(t, func() error {
			var innerErr error
			n, innerErr = client.TransmitSub(payload)
			return innerErr
		})
		txDone <- struct {
			n   int
			err error
		}{n, err}
	}()

	var got []byte
	require.NoError(t, pump(t, func() error {
		var err error
		got, err = server.ReceiveSub()
		return err
	}))
	require.Equal(t, payload, got)

	res := <-txDone
	require.NoError(t, res.err)
	require.Equal(t, len(payload), res.n)
}

func TestIpv4ChecksumIsSelfConsistent(t *testing.T) {
	h := Header{SourcePort: 1, DestPort: 2, SeqNumber: 3, AckNumber: 4, DataOffset: HeaderLen / 4, Flags: FlagSYN}
	buf := h.Marshal()
	sum := Ipv4Checksum(buf, 0x7f000001, 0x7f000002)
	require.NotZero(t, sum)

	buf[16], buf[17] = byte(sum>>8), byte(sum)
	// Ipv4Checksum sums buf exactly as given, so buf with the checksum
	// written in would fold to zero; this test instead confirms that
	// recomputing over a fresh header with a zero checksum field is
	// deterministic.
	again := Ipv4Checksum(h.Marshal(), 0x7f000001, 0x7f000002)
	require.Equal(t, sum, again)
}
