// Command rlibdemo wires the scheduler, the Functional self-rescheduling
// pattern and a TCP connection running over netstack's loopback
// transport into a single runnable demonstration: a server Functional
// drives TcpSocket.Listen to completion and reads and logs whatever a
// client Functional writes. Neither side runs Shutup; both sockets are
// released with Close on exit.
package main

import (
	"errors"
	"time"

	"github.com/Raphine/Raph-Library/cpuset"
	"github.com/Raphine/Raph-Library/functional"
	"github.com/Raphine/Raph-Library/nettcp"
	"github.com/Raphine/Raph-Library/netstack"
	"github.com/Raphine/Raph-Library/rlog"
	"github.com/Raphine/Raph-Library/socket"
	"github.com/Raphine/Raph-Library/tasksched"
)

const (
	serverAddr = 0x0a000002
	clientAddr = 0x0a000001
	serverPort = 8080
	clientPort = 40000
)

func main() {
	ctrl := tasksched.NewController()
	ctrl.Setup(cpuset.BootWorker)

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ctrl.Run(stop, cpuset.BootWorker)
	}()
	defer func() {
		close(stop)
		<-done
	}()

	clientTransp, serverTransp := netstack.NewLoopbackPair(8)

	client := socket.NewTCPSocket(clientAddr, clientPort, serverAddr, serverPort)
	server := socket.NewTCPSocket(serverAddr, serverPort, clientAddr, clientPort)

	if err := client.Open(clientTransp); err != nil {
		rlog.Err().Err(err).Log("rlibdemo: client open failed")
		return
	}
	defer client.Close()

	if err := server.Open(serverTransp); err != nil {
		rlog.Err().Err(err).Log("rlibdemo: server open failed")
		return
	}
	defer server.Close()

	handshakeDone := make(chan struct{})
	var connectErr, listenErr error

	connectFn := functional.New[*functional.Mutex](&functional.Mutex{}, func() bool {
		return client.State() != nettcp.StateEstablished
	}, func() {
		if err := client.Connect(); err != nil && !isRetryable(err) {
			connectErr = err
		}
	})
	connectFn.Bind(ctrl, cpuset.BootWorker)

	listenFn := functional.New[*functional.Mutex](&functional.Mutex{}, func() bool {
		return server.State() != nettcp.StateEstablished
	}, func() {
		if err := server.Listen(); err != nil && !isRetryable(err) {
			listenErr = err
		}
		if server.State() == nettcp.StateEstablished {
			close(handshakeDone)
		}
	})
	listenFn.Bind(ctrl, cpuset.BootWorker)

	listenFn.WakeupFunction()
	connectFn.WakeupFunction()

	select {
	case <-handshakeDone:
	case <-time.After(5 * time.Second):
		rlog.Warning().Log("rlibdemo: handshake timed out")
	}

	if connectErr != nil || listenErr != nil {
		rlog.Err().Err(connectErr).Err(listenErr).Log("rlibdemo: handshake failed")
		return
	}

	echo := []byte("hello from rlibdemo")
	wrote := make(chan struct{})
	sent := false

	writeFn := functional.New[*functional.Mutex](&functional.Mutex{}, func() bool {
		return !sent
	}, func() {
		if n, err := client.Write(echo); err == nil {
			sent = true
			rlog.Info().Int("bytes", n).Log("rlibdemo: client wrote")
			close(wrote)
		}
	})
	writeFn.Bind(ctrl, cpuset.BootWorker)
	writeFn.WakeupFunction()

	buf := make([]byte, 256)
	received := false
	readFn := functional.New[*functional.Mutex](&functional.Mutex{}, func() bool {
		return !received
	}, func() {
		if n, err := server.Read(buf); err == nil && n > 0 {
			received = true
			rlog.Info().Str("payload", string(buf[:n])).Log("rlibdemo: server read request")
		}
	})
	readFn.Bind(ctrl, cpuset.BootWorker)
	readFn.WakeupFunction()

	select {
	case <-wrote:
	case <-time.After(5 * time.Second):
		rlog.Warning().Log("rlibdemo: write timed out")
	}

	time.Sleep(50 * time.Millisecond)
}

func isRetryable(err error) bool {
	return errors.Is(err, nettcp.ErrNoRxPacket)
}
