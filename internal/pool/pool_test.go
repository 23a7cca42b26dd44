package pool

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/suite"

	"httpcore/internal/urlinfo"
)

// PoolTestSuite mirrors the teacher's suite.Suite + clock.Mock style in
// application/http/actor/client/client_test.go, swapping the teacher's
// pipe transport for a real loopback listener since this pool dials
// through net directly.
type PoolTestSuite struct {
	suite.Suite

	ln     net.Listener
	origin urlinfo.Origin
	mock   *clock.Mock
	pool   *Pool
}

func TestPoolTestSuite(t *testing.T) {
	suite.Run(t, new(PoolTestSuite))
}

func (s *PoolTestSuite) SetupTest() {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	s.Require().NoError(err)
	s.ln = ln

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				buf := make([]byte, 4096)
				for {
					if _, err := conn.Read(buf); err != nil {
						conn.Close()
						return
					}
				}
			}()
		}
	}()

	host, port, err := net.SplitHostPort(ln.Addr().String())
	s.Require().NoError(err)
	s.origin = urlinfo.Origin{Scheme: "http", Host: host, Port: port}

	s.mock = clock.NewMock()
	s.pool = New(Options{
		MaxPerOrigin:     2,
		KeepaliveTimeout: time.Minute,
		DialOpts:         DialOptions{ConnectTimeout: time.Second},
		Clock:            s.mock,
	})
}

func (s *PoolTestSuite) TearDownTest() {
	s.ln.Close()
}

func (s *PoolTestSuite) TestAcquireReleaseReuse() {
	ctx := context.Background()

	conn, err := s.pool.Acquire(ctx, s.origin)
	s.Require().NoError(err)

	idle, checkedOut := s.pool.Stats(s.origin)
	s.Equal(0, idle)
	s.Equal(1, checkedOut)

	s.pool.Release(conn, true)

	idle, checkedOut = s.pool.Stats(s.origin)
	s.Equal(1, idle)
	s.Equal(0, checkedOut)

	again, err := s.pool.Acquire(ctx, s.origin)
	s.Require().NoError(err)
	s.Same(conn, again)
}

func (s *PoolTestSuite) TestReleaseNotReusableCloses() {
	ctx := context.Background()

	conn, err := s.pool.Acquire(ctx, s.origin)
	s.Require().NoError(err)
	s.pool.Release(conn, false)

	idle, checkedOut := s.pool.Stats(s.origin)
	s.Equal(0, idle)
	s.Equal(0, checkedOut)
	s.False(conn.Healthy())
}

func (s *PoolTestSuite) TestAcquireNeverExceedsMaxPerOrigin() {
	ctx := context.Background()

	c1, err := s.pool.Acquire(ctx, s.origin)
	s.Require().NoError(err)
	c2, err := s.pool.Acquire(ctx, s.origin)
	s.Require().NoError(err)

	_, checkedOut := s.pool.Stats(s.origin)
	s.Equal(2, checkedOut)

	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = s.pool.Acquire(waitCtx, s.origin)
	s.Require().Error(err)

	s.pool.Release(c1, true)
	s.pool.Release(c2, true)
}

func (s *PoolTestSuite) TestAcquireWaiterWokenByRelease() {
	ctx := context.Background()

	c1, err := s.pool.Acquire(ctx, s.origin)
	s.Require().NoError(err)
	c2, err := s.pool.Acquire(ctx, s.origin)
	s.Require().NoError(err)

	result := make(chan error, 1)
	go func() {
		c3, err := s.pool.Acquire(ctx, s.origin)
		if err == nil {
			s.pool.Release(c3, true)
		}
		result <- err
	}()

	time.Sleep(20 * time.Millisecond)
	s.pool.Release(c1, true)

	select {
	case err := <-result:
		s.Require().NoError(err)
	case <-time.After(time.Second):
		s.Fail("waiter was never woken after release")
	}

	s.pool.Release(c2, true)
}

func (s *PoolTestSuite) TestEvictsExpiredIdleConnections() {
	ctx := context.Background()

	conn, err := s.pool.Acquire(ctx, s.origin)
	s.Require().NoError(err)
	s.pool.Release(conn, true)

	s.mock.Add(time.Minute + time.Second)

	again, err := s.pool.Acquire(ctx, s.origin)
	s.Require().NoError(err)
	s.NotSame(conn, again)
}
