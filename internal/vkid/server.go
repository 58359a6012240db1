package vkid

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/m3rciful/vkinder/core/logger"
	"github.com/m3rciful/vkinder/internal/i18n"
)

const shutdownTimeout = 5 * time.Second

// Router returns the HTTP routes of the flow; completed grants go to sink.
func (s *Service) Router(sink Completer, bundle *i18n.Bundle) *gin.Engine {
	if bundle == nil {
		bundle = i18n.Default()
	}
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	r.GET(authRoute, s.handleAuth)
	r.GET(s.callbackPath, func(c *gin.Context) { s.handleCallback(c, sink, bundle) })
	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info(c.Request.Context(), logger.CompAuth, "http.request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("http_status", c.Writer.Status()),
			slog.String("client_ip", c.ClientIP()),
			slog.Duration("duration", logger.Took(start)),
		)
	}
}

// handleAuth redirects a pending session to VK ID.
func (s *Service) handleAuth(c *gin.Context) {
	state := c.Query("state")
	sess, ok := s.lookup(state)
	if !ok {
		c.String(http.StatusBadRequest, "invalid or expired state")
		return
	}
	logger.Info(c.Request.Context(), logger.CompAuth, "auth.redirect", slog.Int64("user_id", sess.userID))
	c.Redirect(http.StatusFound, s.authorizeURL(state, sess))
}

// handleCallback exchanges the code returned by VK ID and stores the grant.
func (s *Service) handleCallback(c *gin.Context, sink Completer, bundle *i18n.Bundle) {
	ctx := c.Request.Context()
	p := bundle.Printer(bundle.Match(c.GetHeader("Accept-Language")))

	state := c.Query("state")
	sess, ok := s.lookup(state)
	if !ok {
		c.String(http.StatusBadRequest, "invalid or expired state")
		return
	}
	code := c.Query("code")
	if code == "" {
		c.String(http.StatusBadRequest, p.Sprintf("auth.callback_failed"))
		return
	}

	rec, err := s.exchange(ctx, state, code, c.Query("device_id"), sess)
	if err == nil {
		err = sink.CompleteAuth(ctx, rec)
	}
	if err != nil {
		logger.Error(ctx, logger.CompAuth, "auth.callback",
			slog.String("status", "fail"),
			slog.Int64("user_id", sess.userID),
			slog.String("err", err.Error()),
		)
		c.String(http.StatusBadGateway, p.Sprintf("auth.callback_failed"))
		return
	}
	s.finish(state)
	logger.Info(ctx, logger.CompAuth, "auth.callback",
		slog.String("status", "ok"),
		slog.Int64("user_id", sess.userID),
		slog.Int64("profile_id", rec.ProfileID),
	)
	c.String(http.StatusOK, p.Sprintf("auth.callback_done"))
}

// Serve runs the callback server on addr until ctx is done.
func Serve(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, logger.CompAuth, "http.listen", slog.String("listen", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("vkid: serve: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("vkid: shutdown: %w", err)
	}
	return nil
}
