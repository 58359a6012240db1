package netutil

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

type scripted struct {
	errs  []error
	calls int
}

func (s *scripted) RoundTrip(*http.Request) (*http.Response, error) {
	s.calls++
	if s.calls <= len(s.errs) {
		return nil, s.errs[s.calls-1]
	}
	return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader("ok"))}, nil
}

func TestShouldRetry(t *testing.T) {
	assert.False(t, ShouldRetry(nil))
	assert.False(t, ShouldRetry(errors.New("boom")))
	assert.True(t, ShouldRetry(timeoutErr{}))
	assert.True(t, ShouldRetry(&net.OpError{Op: "dial", Err: errors.New("refused")}))
	assert.True(t, ShouldRetry(&url.Error{Op: "Get", URL: "http://x", Err: timeoutErr{}}))
	assert.False(t, ShouldRetry(&url.Error{Op: "Get", URL: "http://x", Err: errors.New("tls: bad certificate")}))
}

func TestRetryTransportRetriesTransientErrors(t *testing.T) {
	base := &scripted{errs: []error{timeoutErr{}, timeoutErr{}}}
	rt := &RetryTransport{Base: base, MaxRetries: 3}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, "http://example.test", nil)
	require.NoError(t, err)

	resp, err := rt.RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 3, base.calls)
}

func TestRetryTransportStopsOnPermanentError(t *testing.T) {
	base := &scripted{errs: []error{errors.New("permanent")}}
	rt := &RetryTransport{Base: base, MaxRetries: 3}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, "http://example.test", nil)
	require.NoError(t, err)

	_, err = rt.RoundTrip(req)
	assert.EqualError(t, err, "permanent")
	assert.Equal(t, 1, base.calls)
}

func TestNewClientDefaults(t *testing.T) {
	c := NewClient(ClientOptions{})
	rt, ok := c.Transport.(*RetryTransport)
	require.True(t, ok)
	assert.Equal(t, defaultRetryAttempts, rt.MaxRetries)
	assert.Equal(t, defaultClientTimeout, c.Timeout)
}
