// Package vk implements the profile provider on top of the VK API.
package vk

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/m3rciful/vkinder/core/logger"
	"github.com/m3rciful/vkinder/core/netutil"
	"github.com/m3rciful/vkinder/internal/provider"
)

const (
	DefaultAPIURL  = "https://api.vk.com/method"
	DefaultVersion = "5.199"
	// DefaultRPS is the per-application request rate allowed by the API.
	DefaultRPS = 3
	// DefaultRights are the permissions the bot asks users for.
	DefaultRights = "photos"
)

// API error codes with a meaning for the bot.
const (
	codeAuthFailed     = 5
	codeProfileDeleted = 18
	codePrivateProfile = 30
	codeInvalidUserID  = 113
)

// Config configures a Client.
type Config struct {
	APIURL       string  `yaml:"api_url" envconfig:"VK_API_URL"`
	Version      string  `yaml:"version" envconfig:"VK_API_VERSION"`
	ServiceToken string  `yaml:"service_token" envconfig:"VK_SERVICE_TOKEN"`
	RPS          float64 `yaml:"rps" envconfig:"VK_RPS"`
	Rights       string  `yaml:"rights" envconfig:"VK_RIGHTS"`
}

// Client calls VK API methods. It is safe for concurrent use.
type Client struct {
	http         *http.Client
	base         string
	version      string
	serviceToken string
	rights       string
	limiter      *rate.Limiter
}

// New returns a client; a nil httpClient uses netutil.NewClient.
func New(cfg Config, httpClient *http.Client) (*Client, error) {
	if strings.TrimSpace(cfg.ServiceToken) == "" {
		return nil, errors.New("vk: service token is required")
	}
	if httpClient == nil {
		httpClient = netutil.NewClient(netutil.ClientOptions{})
	}
	rps := cmp.Or(cfg.RPS, DefaultRPS)
	return &Client{
		http:         httpClient,
		base:         strings.TrimRight(cmp.Or(cfg.APIURL, DefaultAPIURL), "/"),
		version:      cmp.Or(cfg.Version, DefaultVersion),
		serviceToken: cfg.ServiceToken,
		rights:       cmp.Or(cfg.Rights, DefaultRights),
		limiter:      rate.NewLimiter(rate.Limit(rps), max(1, int(rps))),
	}, nil
}

var _ provider.ProfileProvider = (*Client)(nil)

type apiError struct {
	Code int    `json:"error_code"`
	Msg  string `json:"error_msg"`
}

type envelope struct {
	Response json.RawMessage `json:"response"`
	Error    *apiError       `json:"error"`
}

// call invokes method with token and decodes the response payload into out.
func (c *Client) call(ctx context.Context, method, token string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("vk: %s: %w", method, err)
	}
	if params == nil {
		params = url.Values{}
	}
	params.Set("access_token", token)
	params.Set("v", c.version)

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/"+method, strings.NewReader(params.Encode()))
	if err != nil {
		return fmt.Errorf("vk: %s: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logCall(ctx, method, start, err)
		return &provider.Error{Op: method, Msg: "transport", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		c.logCall(ctx, method, start, err)
		return &provider.Error{Op: method, Msg: "read body", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		err := &provider.Error{Op: method, Code: resp.StatusCode, Msg: "http status " + resp.Status}
		c.logCall(ctx, method, start, err)
		return err
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		c.logCall(ctx, method, start, err)
		return &provider.Error{Op: method, Msg: "decode", Err: err}
	}
	if env.Error != nil {
		err := classify(method, env.Error, token != c.serviceToken)
		c.logCall(ctx, method, start, err)
		return err
	}
	c.logCall(ctx, method, start, nil)
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Response, out); err != nil {
		return &provider.Error{Op: method, Msg: "decode response", Err: err}
	}
	return nil
}

// classify maps an API error onto the provider error kinds. An authorization
// failure is a token error only when the call carried the user's token.
func classify(method string, e *apiError, userToken bool) error {
	perr := &provider.Error{Op: method, Code: e.Code, Msg: e.Msg}
	switch e.Code {
	case codeAuthFailed:
		if userToken {
			perr.Err = provider.ErrToken
		}
	case codeProfileDeleted, codePrivateProfile, codeInvalidUserID:
		perr.Err = provider.ErrNotFound
	}
	return perr
}

func (c *Client) logCall(ctx context.Context, method string, start time.Time, err error) {
	attrs := []slog.Attr{
		slog.String("method", method),
		slog.Duration("duration", logger.Took(start)),
	}
	if err == nil {
		logger.Debug(ctx, logger.CompVK, "vk.call", append(attrs, slog.String("status", "ok"))...)
		return
	}
	var perr *provider.Error
	if errors.As(err, &perr) && perr.Code != 0 {
		attrs = append(attrs, slog.Int("api_code", perr.Code))
	}
	attrs = append(attrs, slog.String("status", "fail"), slog.String("err", err.Error()))
	logger.Warn(ctx, logger.CompVK, "vk.call", attrs...)
}

func idString(id int64) string {
	return strconv.FormatInt(id, 10)
}
