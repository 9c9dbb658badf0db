package connect

import (
	"errors"
	"testing"
	"time"

	"github.com/aegis-sign/connect/pkg/topic"
	"github.com/stretchr/testify/require"
)

const (
	testTimeout = time.Second
	testTick    = 5 * time.Millisecond
)

func TestSettleThenCloseRunsAfterSettlement(t *testing.T) {
	f := topic.NewFuture()
	closer := &stubCloser{}
	done := make(chan struct{})
	var value string
	var err error
	go func() {
		value, err = settleThenClose(f.Wait, closer, nil)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	require.Zero(t, closer.count.Load(), "close must wait for settlement")

	f.Resolve("v")
	<-done
	require.NoError(t, err)
	require.Equal(t, "v", value)
	require.Equal(t, int64(1), closer.count.Load())
}

func TestSettleThenCloseKeepsOriginalError(t *testing.T) {
	f := topic.NewFuture()
	f.Reject(topic.ErrTimeout)
	closer := &stubCloser{err: errors.New("close failed")}
	var reported error

	_, err := settleThenClose(f.Wait, closer, func(e error) { reported = e })
	require.ErrorIs(t, err, topic.ErrTimeout)
	require.EqualError(t, reported, "close failed")
	require.Equal(t, int64(1), closer.count.Load())
}

func TestSettleThenCloseWithoutCloser(t *testing.T) {
	f := topic.NewFuture()
	f.Resolve("v")
	value, err := settleThenClose(f.Wait, nil, nil)
	require.NoError(t, err)
	require.Equal(t, "v", value)
}

func TestSettleThenCloseRunsOnPanic(t *testing.T) {
	closer := &stubCloser{}
	require.Panics(t, func() {
		_, _ = settleThenClose(func() (string, error) { panic("boom") }, closer, nil)
	})
	require.Equal(t, int64(1), closer.count.Load())
}
