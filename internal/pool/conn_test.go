package pool

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"httpcore/internal/herr"
	"httpcore/internal/urlinfo"
)

func dialLoopback(t *testing.T, handler func(net.Conn)) (*Conn, func()) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		handler(conn)
	}()

	host, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	origin := urlinfo.Origin{Scheme: "http", Host: host, Port: port}

	c, err := Dial(context.Background(), origin, DialOptions{ConnectTimeout: time.Second})
	require.NoError(t, err)

	return c, func() { ln.Close() }
}

func TestConnReadTimeoutClassifiesAsTimeout(t *testing.T) {
	c, cleanup := dialLoopback(t, func(conn net.Conn) {
		// Accept and never write, forcing the client read to block until
		// the inactivity deadline fires; return once the client closes so
		// this goroutine does not outlive the test.
		defer conn.Close()
		buf := make([]byte, 1)
		conn.Read(buf)
	})
	defer cleanup()
	defer c.Close()

	c.SetReadTimeoutPolicy(30*time.Millisecond, time.Time{})

	buf := make([]byte, 16)
	_, err := c.Read(buf)
	require.Error(t, err)
	require.True(t, herr.IsTimeout(err))
	require.False(t, c.Healthy())
}

func TestConnReadResetsDeadlineOnEachCall(t *testing.T) {
	c, cleanup := dialLoopback(t, func(conn net.Conn) {
		defer conn.Close()
		for i := 0; i < 3; i++ {
			time.Sleep(15 * time.Millisecond)
			conn.Write([]byte("x"))
		}
	})
	defer cleanup()
	defer c.Close()

	c.SetReadTimeoutPolicy(50*time.Millisecond, time.Time{})

	buf := make([]byte, 1)
	for i := 0; i < 3; i++ {
		_, err := c.Read(buf)
		require.NoError(t, err)
	}
}

func TestWatchCancellationClosesConnAndJoinsGoroutine(t *testing.T) {
	defer goleak.VerifyNone(t)

	c, cleanup := dialLoopback(t, func(conn net.Conn) {
		defer conn.Close()
		buf := make([]byte, 1)
		conn.Read(buf) // blocks until the client side closes on cancellation
	})
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())

	result := make(chan error, 1)
	go func() {
		result <- WatchCancellation(ctx, c, func() error {
			buf := make([]byte, 16)
			_, err := c.Read(buf)
			return err
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-result:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("WatchCancellation did not unblock the pending read")
	}
}

func TestWatchCancellationPassesThroughSuccess(t *testing.T) {
	defer goleak.VerifyNone(t)

	c, cleanup := dialLoopback(t, func(conn net.Conn) {
		defer conn.Close()
		conn.Write([]byte("ok"))
	})
	defer cleanup()
	defer c.Close()

	err := WatchCancellation(context.Background(), c, func() error {
		buf := make([]byte, 2)
		_, err := io.ReadFull(c, buf)
		return err
	})
	require.NoError(t, err)
}
