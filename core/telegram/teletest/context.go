// Package teletest provides an in-memory tele.Context for handler tests.
package teletest

import (
	"sync"

	tele "gopkg.in/telebot.v4"
)

// Sent is one outbound call captured by Context.
type Sent struct {
	What any
	Opts []any
}

// Context implements the parts of tele.Context used by the bot handlers.
// Calling any other method panics.
type Context struct {
	tele.Context

	Upd     tele.Update
	SendErr error

	mu        sync.Mutex
	store     map[string]any
	sent      []Sent
	responded int
}

// Message returns a context for a private text message from userID.
func Message(userID int64, text string) *Context {
	user := &tele.User{ID: userID, FirstName: "Test", LanguageCode: "en"}
	return &Context{Upd: tele.Update{ID: 1, Message: &tele.Message{
		ID:     10,
		Sender: user,
		Chat:   &tele.Chat{ID: userID, Type: tele.ChatPrivate},
		Text:   text,
	}}}
}

// Callback returns a context for an inline button press from userID.
func Callback(userID int64, unique, data string) *Context {
	user := &tele.User{ID: userID, FirstName: "Test", LanguageCode: "en"}
	return &Context{Upd: tele.Update{ID: 2, Callback: &tele.Callback{
		ID:     "cb",
		Sender: user,
		Unique: unique,
		Data:   data,
		Message: &tele.Message{
			ID:   11,
			Chat: &tele.Chat{ID: userID, Type: tele.ChatPrivate},
		},
	}}}
}

// Update returns the wrapped update.
func (c *Context) Update() tele.Update { return c.Upd }

// Message returns the update message, or the message a callback is attached to.
func (c *Context) Message() *tele.Message {
	switch {
	case c.Upd.Message != nil:
		return c.Upd.Message
	case c.Upd.Callback != nil:
		return c.Upd.Callback.Message
	}
	return nil
}

// Callback returns the update callback.
func (c *Context) Callback() *tele.Callback { return c.Upd.Callback }

// Sender returns the author of the update.
func (c *Context) Sender() *tele.User {
	switch {
	case c.Upd.Callback != nil:
		return c.Upd.Callback.Sender
	case c.Upd.Message != nil:
		return c.Upd.Message.Sender
	}
	return nil
}

// Chat returns the chat of the update.
func (c *Context) Chat() *tele.Chat {
	if m := c.Message(); m != nil {
		return m.Chat
	}
	return nil
}

// Text returns the message text.
func (c *Context) Text() string {
	if m := c.Message(); m != nil && c.Upd.Message != nil {
		return m.Text
	}
	return ""
}

// Data returns the callback payload.
func (c *Context) Data() string {
	if c.Upd.Callback != nil {
		return c.Upd.Callback.Data
	}
	return ""
}

// Send records the call.
func (c *Context) Send(what any, opts ...any) error {
	return c.record(what, opts)
}

// SendAlbum records the call.
func (c *Context) SendAlbum(a tele.Album, opts ...any) error {
	return c.record(a, opts)
}

// Respond counts callback acknowledgements.
func (c *Context) Respond(...*tele.CallbackResponse) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responded++
	return nil
}

// Get returns a value stored with Set.
func (c *Context) Get(key string) any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store[key]
}

// Set stores a value.
func (c *Context) Set(key string, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		c.store = make(map[string]any)
	}
	c.store[key] = v
}

// Sent returns the captured outbound calls in order.
func (c *Context) Sent() []Sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Sent(nil), c.sent...)
}

// Responded reports how many times the callback was acknowledged.
func (c *Context) Responded() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.responded
}

func (c *Context) record(what any, opts []any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SendErr != nil {
		return c.SendErr
	}
	c.sent = append(c.sent, Sent{What: what, Opts: opts})
	return nil
}
