package middleware

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/m3rciful/vkinder/core/logger"
	tghelpers "github.com/m3rciful/vkinder/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// RateLimitOptions configures behaviour of the rate limit middleware.
type RateLimitOptions struct {
	// Interval is the minimum spacing between updates of one user.
	Interval time.Duration
	// Burst lets a user send that many updates back to back; 0 means 1.
	Burst     int
	Exclude   map[string]struct{}
	OnLimited tele.HandlerFunc
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

type userLimiters struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	idle      time.Duration
	m         map[int64]*userLimiter
	lastSweep time.Time
}

type userLimiter struct {
	lim  *rate.Limiter
	seen time.Time
}

// allow consumes a token of userID's bucket; limiters idle longer than idle are dropped.
func (u *userLimiters) allow(userID int64, now time.Time) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if now.Sub(u.lastSweep) > u.idle {
		for id, l := range u.m {
			if now.Sub(l.seen) > u.idle {
				delete(u.m, id)
			}
		}
		u.lastSweep = now
	}
	l, ok := u.m[userID]
	if !ok {
		l = &userLimiter{lim: rate.NewLimiter(u.limit, u.burst)}
		u.m[userID] = l
	}
	l.seen = now
	return l.lim.AllowN(now, 1)
}

func updateKind(upd tele.Update) string {
	switch {
	case upd.Callback != nil:
		return "callback"
	case upd.Message != nil:
		return "message"
	case upd.Query != nil:
		return "inline_query"
	}
	return "other"
}

// RateLimitMiddleware returns a middleware that throttles updates per user
// with a token bucket refilled every Interval.
func RateLimitMiddleware(opts RateLimitOptions) tele.MiddlewareFunc {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	limiters := &userLimiters{
		limit: rate.Every(opts.Interval),
		burst: max(opts.Burst, 1),
		idle:  max(10*opts.Interval, time.Minute),
		m:     make(map[int64]*userLimiter),
	}
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if user == nil || opts.Interval <= 0 {
				return next(c)
			}
			if _, skip := opts.Exclude[updateKind(c.Update())]; skip {
				return next(c)
			}
			if limiters.allow(user.ID, now()) {
				return next(c)
			}

			logger.Warn(tghelpers.BuildContext(c), logger.CompTG, "tg.rate_limit",
				slog.String("status", "rate_limited"),
				slog.String("kind", updateKind(c.Update())),
			)
			if opts.OnLimited != nil {
				_ = opts.OnLimited(c)
			}
			return nil
		}
	}
}
