package sender

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

func noSleep(context.Context, time.Duration) error { return nil }

func TestDispatcherKeepsOrderPerKey(t *testing.T) {
	d := NewDispatcher(Options{Workers: 3, QueueSize: 128})

	var (
		mu  sync.Mutex
		got = map[int64][]int{}
	)
	for i := range 30 {
		key := int64(i % 3)
		require.NoError(t, d.Enqueue(context.Background(), key, "send.text", "sendMessage", func() error {
			mu.Lock()
			defer mu.Unlock()
			got[key] = append(got[key], i)
			return nil
		}))
	}
	d.Close()

	for key, seq := range got {
		require.Len(t, seq, 10, "key %d", key)
		for j := 1; j < len(seq); j++ {
			assert.Less(t, seq[j-1], seq[j], "key %d out of order: %v", key, seq)
		}
	}
}

func TestDispatcherRetriesTransientErrors(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 2})
	d.sleep = noSleep

	var calls atomic.Int32
	require.NoError(t, d.Enqueue(context.Background(), 1, "send.text", "sendMessage", func() error {
		if calls.Add(1) < 3 {
			return &net.DNSError{Err: "temporary", IsTimeout: true}
		}
		return nil
	}))
	d.Close()

	assert.EqualValues(t, 3, calls.Load())
	assert.Zero(t, d.ErrorCount())
}

func TestDispatcherGivesUpOnPermanentErrors(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 3})
	d.sleep = noSleep

	var calls atomic.Int32
	require.NoError(t, d.Enqueue(context.Background(), 1, "send.text", "sendMessage", func() error {
		calls.Add(1)
		return &tele.Error{Code: 400, Description: "Bad Request: chat not found"}
	}))
	d.Close()

	assert.EqualValues(t, 1, calls.Load())
	assert.EqualValues(t, 1, d.ErrorCount())
}

func TestDispatcherHonoursFloodWait(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 1})
	var slept []time.Duration
	d.sleep = func(_ context.Context, delay time.Duration) error {
		slept = append(slept, delay)
		return nil
	}

	first := true
	require.NoError(t, d.Enqueue(context.Background(), 1, "send.text", "sendMessage", func() error {
		if first {
			first = false
			return tele.FloodError{RetryAfter: 7}
		}
		return nil
	}))
	d.Close()

	assert.Equal(t, []time.Duration{7 * time.Second}, slept)
	assert.Zero(t, d.ErrorCount())
}

func TestDispatcherQueueLimits(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, QueueSize: 1})
	block := make(chan struct{})
	started := make(chan struct{})

	require.NoError(t, d.Enqueue(context.Background(), 1, "a", "", func() error {
		close(started)
		<-block
		return nil
	}))
	<-started
	require.NoError(t, d.Enqueue(context.Background(), 1, "b", "", func() error { return nil }))
	assert.ErrorIs(t, d.Enqueue(context.Background(), 1, "c", "", func() error { return nil }), ErrQueueFull)
	assert.Equal(t, 1, d.Pending())

	close(block)
	d.Close()
	assert.ErrorIs(t, d.Enqueue(context.Background(), 1, "d", "", func() error { return nil }), ErrQueueClosed)
	assert.Error(t, NewDispatcher(Options{}).Enqueue(context.Background(), 1, "e", "", nil))
}

func TestClassifyError(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{context.DeadlineExceeded, "timeout"},
		{&net.DNSError{Err: "no such host"}, "dns"},
		{&net.OpError{Op: "dial", Err: errors.New("refused")}, "dial"},
		{tele.FloodError{RetryAfter: 3}, "flood"},
		{&tele.Error{Code: 403}, "http_4xx"},
		{fmt.Errorf("telegram: internal (502)"), "http_5xx"},
		{errors.New("boom"), "unknown"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, classifyError(tc.err), "%v", tc.err)
	}
}

func TestSanitizeErrorMessage(t *testing.T) {
	err := errors.New(`Post "https://api.telegram.org/bot123456:AbC-d_e/sendMessage": EOF`)
	assert.Equal(t, `Post "https://api.telegram.org/bot<redacted>/sendMessage": EOF`, SanitizeError(err))
}
