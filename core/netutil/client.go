package netutil

import (
	"cmp"
	"net"
	"net/http"
	"time"
)

const (
	defaultDialTimeout       = 5 * time.Second
	defaultTLSHandshake      = 5 * time.Second
	defaultIdleConnTimeout   = 30 * time.Second
	defaultResponseTimeout   = 5 * time.Second
	defaultClientTimeout     = 30 * time.Second
	defaultKeepAliveInterval = 30 * time.Second
	defaultRetryAttempts     = 3
	defaultRetryBackoff      = 2 * time.Second
)

// ClientOptions tunes NewClient. Zero values pick defaults.
type ClientOptions struct {
	Timeout         time.Duration
	ResponseTimeout time.Duration
	RetryAttempts   int
	RetryBackoff    time.Duration
}

// NewClient returns an HTTP client with bounded timeouts and transient-error retries.
func NewClient(opts ClientOptions) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultKeepAliveInterval}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   defaultTLSHandshake,
		ResponseHeaderTimeout: cmp.Or(opts.ResponseTimeout, defaultResponseTimeout),
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout: cmp.Or(opts.Timeout, defaultClientTimeout),
		Transport: &RetryTransport{
			Base:       transport,
			MaxRetries: cmp.Or(opts.RetryAttempts, defaultRetryAttempts),
			Backoff:    cmp.Or(opts.RetryBackoff, defaultRetryBackoff),
		},
	}
}
