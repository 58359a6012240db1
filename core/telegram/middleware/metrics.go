package middleware

import tele "gopkg.in/telebot.v4"

const (
	messagesKey = "messages"
	keyboardKey = "kb"
)

// MessageMetricsMiddleware resets the per-update outbound counters.
func MessageMetricsMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		c.Set(messagesKey, 0)
		c.Set(keyboardKey, false)
		return next(c)
	}
}

// RecordSent adds n queued messages to the counters; withKeyboard marks that one carried markup.
// Sends are asynchronous, so handlers record what they enqueued.
func RecordSent(c tele.Context, n int, withKeyboard bool) {
	msgs, kb := GetCounters(c)
	c.Set(messagesKey, msgs+n)
	c.Set(keyboardKey, kb || withKeyboard)
}

// GetCounters reads message count and keyboard presence flags from context.
func GetCounters(c tele.Context) (int, bool) {
	msgs, _ := c.Get(messagesKey).(int)
	kb, _ := c.Get(keyboardKey).(bool)
	return msgs, kb
}
