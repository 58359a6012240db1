// Package bot adapts Telegram updates to the dialog engine and delivers its replies.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	tg "github.com/m3rciful/vkinder/core/telegram"
	"github.com/m3rciful/vkinder/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/vkinder/core/telegram/helpers"
	"github.com/m3rciful/vkinder/core/telegram/keyboard"
	"github.com/m3rciful/vkinder/core/telegram/middleware"
	"github.com/m3rciful/vkinder/internal/engine"
	"github.com/m3rciful/vkinder/internal/menu"
	"github.com/m3rciful/vkinder/internal/model"
	"github.com/m3rciful/vkinder/internal/render"

	tele "gopkg.in/telebot.v4"
)

// CallbackKey is the unique part of the callback data of menu buttons; the payload is the token.
const CallbackKey = "menu"

const (
	// maxTextLen is Telegram's message length limit in characters.
	maxTextLen = 4096
	// maxAlbum is the largest media group Telegram accepts.
	maxAlbum = 10
)

// Dialog runs one turn for an inbound message.
type Dialog interface {
	Handle(ctx context.Context, in engine.Inbound) ([]render.Message, error)
}

// Stats are the runtime counters reported by /stats.
type Stats struct {
	ActiveTurns  int
	PendingSends int
	FailedSends  uint64
}

// Options configure a Bot.
type Options struct {
	// Stats feeds the admin-only /stats command; nil leaves the command out.
	Stats func() Stats
}

// Bot routes Telegram updates into a Dialog.
type Bot struct {
	dialog Dialog
	stats  func() Stats
}

// New returns a bot over d.
func New(d Dialog, opts Options) (*Bot, error) {
	if d == nil {
		return nil, errors.New("bot: dialog is required")
	}
	return &Bot{dialog: d, stats: opts.Stats}, nil
}

// Register adds the bot's commands, the menu callback and the text fallback to reg.
func (b *Bot) Register(reg *tg.Registry) error {
	errs := []error{
		reg.RegisterCommand("/start", tg.Command{Handler: b.HandleText, Description: "Main menu"}),
		reg.RegisterCommand("/help", tg.Command{Handler: b.handleHelp, Description: "What the buttons do"}),
		reg.RegisterCallback(CallbackKey, b.HandleCallback),
	}
	if b.stats != nil {
		errs = append(errs, reg.RegisterCommand("/stats", tg.Command{
			Handler:     b.handleStats,
			Description: "Runtime counters",
			AdminOnly:   true,
		}))
	}
	reg.SetTextFallback(b.HandleText)
	return errors.Join(errs...)
}

// HandleText runs a turn for a text message.
func (b *Bot) HandleText(c tele.Context) error {
	in := inbound(c)
	in.Text = stripBotName(c.Text())
	return b.turn(c, in)
}

// HandleCallback runs a turn for a menu button press; the callback payload is the token.
func (b *Bot) HandleCallback(c tele.Context) error {
	in := inbound(c)
	in.Token = menu.Token(callbacks.CallbackPayload(c))
	return b.turn(c, in)
}

// HandleNonText runs a turn for a message without text, using its caption as the input.
func (b *Bot) HandleNonText(c tele.Context) error {
	in := inbound(c)
	if m := c.Message(); m != nil {
		in.Text = m.Caption
	}
	return b.turn(c, in)
}

func (b *Bot) handleHelp(c tele.Context) error {
	in := inbound(c)
	in.Token = menu.Help
	return b.turn(c, in)
}

func (b *Bot) handleStats(c tele.Context) error {
	s := b.stats()
	text := fmt.Sprintf("active turns: %d\npending sends: %d\nfailed sends: %d", s.ActiveTurns, s.PendingSends, s.FailedSends)
	middleware.RecordSent(c, 1, false)
	return tghelpers.SendText(c, text, nil)
}

func (b *Bot) turn(c tele.Context, in engine.Inbound) error {
	ctx := tghelpers.BuildContext(c)
	msgs, err := b.dialog.Handle(ctx, in)
	if err != nil {
		return err
	}
	return deliver(c, msgs)
}

func inbound(c tele.Context) engine.Inbound {
	var in engine.Inbound
	if u := c.Sender(); u != nil {
		in.UserID = u.ID
		in.FirstName = u.FirstName
		in.LastName = u.LastName
		in.Lang = u.LanguageCode
	}
	if chat := c.Chat(); chat != nil {
		in.ChatID = chat.ID
	}
	return in
}

// stripBotName turns "/start@vkinder_bot" into "/start".
func stripBotName(text string) string {
	if !strings.HasPrefix(text, "/") {
		return text
	}
	cmd, _, _ := strings.Cut(text, "@")
	return cmd
}

// deliver sends msgs in order. Text goes first with the keyboard attached to its last
// chunk, then the photos.
func deliver(c tele.Context, msgs []render.Message) error {
	var errs []error
	for _, m := range msgs {
		markup := Markup(m.Keyboard)
		chunks := SplitText(m.Text, maxTextLen)
		for i, chunk := range chunks {
			var rm *tele.ReplyMarkup
			if i == len(chunks)-1 {
				rm = markup
			}
			errs = append(errs, tghelpers.SendText(c, chunk, rm))
		}
		if len(chunks) == 0 && len(m.Media) == 1 {
			errs = append(errs, tghelpers.SendPhoto(c, photo(m.Media[0]), markup))
			middleware.RecordSent(c, 1, markup != nil)
			continue
		}
		sent := len(chunks)
		for _, album := range Albums(m.Media) {
			errs = append(errs, tghelpers.SendAlbum(c, album))
			sent++
		}
		middleware.RecordSent(c, sent, markup != nil && len(chunks) > 0)
	}
	return errors.Join(errs...)
}

// Markup converts a rendered keyboard. Keyboards with links or marked inline become
// inline keyboards whose buttons call back with their token.
func Markup(kb *render.Keyboard) *tele.ReplyMarkup {
	if kb == nil || len(kb.Rows) == 0 {
		return nil
	}
	if kb.Inline {
		rows := make([][]keyboard.InlineBtn, 0, len(kb.Rows))
		for _, row := range kb.Rows {
			r := make([]keyboard.InlineBtn, 0, len(row))
			for _, btn := range row {
				r = append(r, keyboard.InlineBtn{
					Text:   btn.Label,
					Unique: CallbackKey,
					Data:   string(btn.Token),
					URL:    btn.Link,
				})
			}
			rows = append(rows, r)
		}
		return keyboard.InlineButtonsRows(rows...)
	}
	rows := make([][]string, 0, len(kb.Rows))
	for _, row := range kb.Rows {
		labels := make([]string, 0, len(row))
		for _, btn := range row {
			labels = append(labels, btn.Label)
		}
		rows = append(rows, labels)
	}
	return keyboard.ReplyButtons(rows...)
}

// Albums groups photos into media groups of at most ten.
func Albums(photos []model.Photo) []tele.Album {
	var out []tele.Album
	for chunk := range chunked(photos, maxAlbum) {
		album := make(tele.Album, 0, len(chunk))
		for _, p := range chunk {
			album = append(album, photo(p))
		}
		out = append(out, album)
	}
	return out
}

func chunked(photos []model.Photo, n int) func(yield func([]model.Photo) bool) {
	return func(yield func([]model.Photo) bool) {
		for len(photos) > 0 {
			k := min(n, len(photos))
			if !yield(photos[:k]) {
				return
			}
			photos = photos[k:]
		}
	}
}

func photo(p model.Photo) *tele.Photo {
	return &tele.Photo{File: tele.FromURL(p.URL)}
}

// SplitText cuts text into chunks of at most limit characters, preferring paragraph
// and line boundaries. Empty text yields no chunks.
func SplitText(text string, limit int) []string {
	var out []string
	for text != "" {
		if utf8.RuneCountInString(text) <= limit {
			out = append(out, text)
			break
		}
		cut := byteOffset(text, limit)
		head := text[:cut]
		if i := strings.LastIndex(head, "\n\n"); i > 0 {
			cut = i
		} else if i := strings.LastIndex(head, "\n"); i > 0 {
			cut = i
		}
		out = append(out, text[:cut])
		text = strings.TrimLeft(text[cut:], "\n")
	}
	return out
}

// byteOffset returns the byte index just past the first n runes of s.
func byteOffset(s string, n int) int {
	for i := range s {
		if n == 0 {
			return i
		}
		n--
	}
	return len(s)
}
