package router

import (
	"time"

	tg "github.com/m3rciful/vkinder/core/telegram"
	"github.com/m3rciful/vkinder/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// TextOptions controls fallback behaviour for text and non-text messages.
type TextOptions struct {
	UnknownText tele.HandlerFunc
	// NonText handles photos, documents, stickers and other messages without text.
	NonText tele.HandlerFunc
}

// nonTextEndpoints are the message kinds routed to TextOptions.NonText.
var nonTextEndpoints = []string{
	tele.OnPhoto,
	tele.OnDocument,
	tele.OnSticker,
	tele.OnVoice,
	tele.OnVideo,
	tele.OnLocation,
	tele.OnContact,
}

// TextRoutes builds handlers for free text and other message kinds.
// Text is matched against command aliases first, then handed to the registry
// text fallback.
func TextRoutes(reg *tg.Registry, opts TextOptions) []tg.Route {
	handler := func(c tele.Context) error {
		start := time.Now()
		text := c.Text()

		if reg != nil {
			if key, cmd, ok := reg.LookupCommand(text); ok && cmd.Handler != nil && !cmd.AdminOnly {
				return handleWithSummary(c, normalizeHandlerName(key), start, func() error {
					return cmd.Handler(c)
				})
			}
			if fb := reg.TextFallback(); fb != nil {
				return handleWithSummary(c, "text", start, func() error {
					return fb(c)
				})
			}
		}

		if opts.UnknownText != nil {
			return handleWithSummary(c, "unknown_text", start, func() error {
				return opts.UnknownText(c)
			})
		}
		logHandlerSummary(c, "unknown_text", start, "skip", nil)
		return nil
	}

	nonText := func(c tele.Context) error {
		start := time.Now()
		if opts.NonText == nil {
			logHandlerSummary(c, "non_text", start, "skip", nil)
			return nil
		}
		return handleWithSummary(c, "non_text", start, func() error {
			return opts.NonText(c)
		})
	}

	routes := []tg.Route{{
		Endpoint: tele.OnText,
		Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(handler)),
	}}
	for _, ep := range nonTextEndpoints {
		routes = append(routes, tg.Route{
			Endpoint: ep,
			Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(nonText)),
		})
	}
	return routes
}
