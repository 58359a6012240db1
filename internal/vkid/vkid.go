// Package vkid authorizes bot users through VK ID with the OAuth 2.1 PKCE flow.
//
// AuthLink hands out a link to this service's /auth route. The route redirects to
// VK ID, whose redirect lands on the callback route where the code is exchanged
// and the resulting grant is passed to a Completer.
package vkid

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
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/m3rciful/vkinder/core/logger"
	"github.com/m3rciful/vkinder/core/netutil"
	"github.com/m3rciful/vkinder/internal/model"
	"github.com/m3rciful/vkinder/internal/provider"
)

const (
	DefaultAuthURL    = "https://id.vk.ru/authorize"
	DefaultTokenURL   = "https://id.vk.ru/oauth2/auth"
	DefaultSessionTTL = 15 * time.Minute

	authRoute = "/auth"
)

// Config configures the authorization service.
type Config struct {
	ClientID string `yaml:"client_id" envconfig:"VK_ID_CLIENT_ID"`
	// RedirectURL is registered at VK ID; its path is served as the callback route.
	RedirectURL string `yaml:"redirect_url" envconfig:"VK_ID_REDIRECT_URL"`
	// Listen is the address of the callback HTTP server.
	Listen            string `yaml:"listen" envconfig:"AUTH_LISTEN"`
	AuthURL           string `yaml:"auth_url"`
	TokenURL          string `yaml:"token_url"`
	SessionTTLMinutes int    `yaml:"session_ttl_minutes"`
}

// Completer receives grants obtained by the callback.
type Completer interface {
	CompleteAuth(ctx context.Context, rec model.AuthRecord) error
}

// session is a pending authorization of one bot user.
type session struct {
	userID   int64
	verifier string
	rights   string
	created  time.Time
}

// Service implements provider.AuthProvider.
type Service struct {
	oauth        oauth2.Config
	http         *http.Client
	rootURL      string
	callbackPath string
	ttl          time.Duration
	now          func() time.Time

	mu       sync.Mutex
	sessions map[string]session
	byUser   map[int64]string
}

var _ provider.AuthProvider = (*Service)(nil)

// New validates cfg and returns a service. A nil httpClient uses netutil.NewClient.
func New(cfg Config, httpClient *http.Client) (*Service, error) {
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, errors.New("vkid: client id is required")
	}
	redirect, err := url.Parse(cfg.RedirectURL)
	if err != nil || redirect.Scheme == "" || redirect.Host == "" {
		return nil, fmt.Errorf("vkid: invalid redirect url %q", cfg.RedirectURL)
	}
	if httpClient == nil {
		httpClient = netutil.NewClient(netutil.ClientOptions{})
	}
	ttl := DefaultSessionTTL
	if cfg.SessionTTLMinutes > 0 {
		ttl = time.Duration(cfg.SessionTTLMinutes) * time.Minute
	}
	return &Service{
		oauth: oauth2.Config{
			ClientID:    cfg.ClientID,
			RedirectURL: cfg.RedirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cmp.Or(cfg.AuthURL, DefaultAuthURL),
				TokenURL:  cmp.Or(cfg.TokenURL, DefaultTokenURL),
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		http:         httpClient,
		rootURL:      redirect.Scheme + "://" + redirect.Host,
		callbackPath: cmp.Or(redirect.Path, "/"),
		ttl:          ttl,
		now:          time.Now,
		sessions:     make(map[string]session),
		byUser:       make(map[int64]string),
	}, nil
}

// AuthLink starts a new authorization for userID, replacing any pending one.
func (s *Service) AuthLink(_ context.Context, userID int64, rights string) (string, error) {
	state := uuid.NewString()
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked(now)
	if old, ok := s.byUser[userID]; ok {
		delete(s.sessions, old)
	}
	s.sessions[state] = session{userID: userID, verifier: oauth2.GenerateVerifier(), rights: rights, created: now}
	s.byUser[userID] = state

	return s.rootURL + authRoute + "?" + url.Values{"state": {state}}.Encode(), nil
}

func (s *Service) sweepLocked(now time.Time) {
	for state, sess := range s.sessions {
		if now.Sub(sess.created) >= s.ttl {
			delete(s.sessions, state)
			if s.byUser[sess.userID] == state {
				delete(s.byUser, sess.userID)
			}
		}
	}
}

// lookup returns the live session for state.
func (s *Service) lookup(state string) (session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[state]
	if !ok || s.now().Sub(sess.created) >= s.ttl {
		return session{}, false
	}
	return sess, true
}

// finish forgets a completed session.
func (s *Service) finish(state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[state]; ok {
		delete(s.sessions, state)
		if s.byUser[sess.userID] == state {
			delete(s.byUser, sess.userID)
		}
	}
}

// authorizeURL returns the VK ID authorization URL of a pending session.
func (s *Service) authorizeURL(state string, sess session) string {
	return s.oauth.AuthCodeURL(state,
		oauth2.S256ChallengeOption(sess.verifier),
		oauth2.SetAuthURLParam("scope", sess.rights),
		oauth2.SetAuthURLParam("display", "page"),
	)
}

// exchange trades an authorization code for a grant of sess's user.
func (s *Service) exchange(ctx context.Context, state, code, deviceID string, sess session) (model.AuthRecord, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.http)
	tok, err := s.oauth.Exchange(ctx, code,
		oauth2.VerifierOption(sess.verifier),
		oauth2.SetAuthURLParam("device_id", deviceID),
		oauth2.SetAuthURLParam("state", state),
	)
	if err != nil {
		return model.AuthRecord{}, fmt.Errorf("vkid: exchange: %w", err)
	}
	profileID, err := extraInt(tok.Extra("user_id"))
	if err != nil {
		return model.AuthRecord{}, fmt.Errorf("vkid: exchange: user_id: %w", err)
	}
	scope, _ := tok.Extra("scope").(string)
	return model.AuthRecord{
		UserID:       sess.userID,
		ProfileID:    profileID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		DeviceID:     deviceID,
		ExpiresAt:    tok.Expiry,
		Scope:        cmp.Or(scope, sess.rights),
	}, nil
}

func extraInt(v any) (int64, error) {
	switch x := v.(type) {
	case float64:
		return int64(x), nil
	case json.Number:
		return x.Int64()
	case string:
		return strconv.ParseInt(x, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected value %v", v)
	}
}

type tokenJSON struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresIn        int64  `json:"expires_in"`
	UserID           int64  `json:"user_id"`
	Scope            string `json:"scope"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// Refresh renews rec. VK ID requires the device id on refresh, which the oauth2
// token source cannot send, so the request is made directly.
func (s *Service) Refresh(ctx context.Context, rec model.AuthRecord) (model.AuthRecord, error) {
	if rec.RefreshToken == "" {
		return model.AuthRecord{}, fmt.Errorf("vkid: refresh: no refresh token: %w", provider.ErrRefresh)
	}
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {rec.RefreshToken},
		"client_id":     {s.oauth.ClientID},
		"device_id":     {rec.DeviceID},
		"state":         {uuid.NewString()},
	}
	if rec.Scope != "" {
		form.Set("scope", rec.Scope)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.oauth.Endpoint.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return model.AuthRecord{}, fmt.Errorf("vkid: refresh: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := time.Now()
	resp, err := s.http.Do(req)
	if err != nil {
		return model.AuthRecord{}, fmt.Errorf("vkid: refresh: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return model.AuthRecord{}, fmt.Errorf("vkid: refresh: %w", err)
	}

	var tok tokenJSON
	jsonErr := json.Unmarshal(body, &tok)
	if jsonErr != nil || resp.StatusCode != http.StatusOK || tok.Error != "" || tok.AccessToken == "" {
		logger.Warn(ctx, logger.CompAuth, "auth.refresh.call",
			slog.String("status", "fail"),
			slog.Int("http_status", resp.StatusCode),
			slog.String("err", tok.Error),
		)
		return model.AuthRecord{}, refreshError(resp.StatusCode, tok, jsonErr)
	}
	logger.Debug(ctx, logger.CompAuth, "auth.refresh.call",
		slog.String("status", "ok"),
		slog.Duration("duration", logger.Took(start)),
	)

	out := model.AuthRecord{
		UserID:       rec.UserID,
		ProfileID:    cmp.Or(tok.UserID, rec.ProfileID),
		AccessToken:  tok.AccessToken,
		RefreshToken: cmp.Or(tok.RefreshToken, rec.RefreshToken),
		DeviceID:     rec.DeviceID,
		Scope:        cmp.Or(tok.Scope, rec.Scope),
	}
	if tok.ExpiresIn > 0 {
		out.ExpiresAt = s.now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	}
	return out, nil
}

// refreshError wraps provider.ErrRefresh only when VK ID refused the refresh token:
// a 4xx or an explicit error code. Server failures and unreadable success bodies
// stay plain errors so the grant survives them.
func refreshError(status int, tok tokenJSON, jsonErr error) error {
	switch {
	case status >= 500:
		return fmt.Errorf("vkid: refresh: status %d %s", status, tok.Error)
	case status >= 400 || tok.Error != "":
		return fmt.Errorf("vkid: refresh: status %d %s %s: %w", status, tok.Error, tok.ErrorDescription, provider.ErrRefresh)
	case jsonErr != nil:
		return fmt.Errorf("vkid: refresh: status %d: %w", status, jsonErr)
	default:
		return fmt.Errorf("vkid: refresh: status %d: no access token", status)
	}
}
