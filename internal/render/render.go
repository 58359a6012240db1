// Package render turns a turn's replies into the fewest outbound messages.
package render

import (
	"iter"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/m3rciful/vkinder/internal/i18n"
	"github.com/m3rciful/vkinder/internal/menu"
	"github.com/m3rciful/vkinder/internal/model"
	"github.com/m3rciful/vkinder/internal/response"
)

// ParagraphSeparator joins squashed replies.
const ParagraphSeparator = "\n\n"

const birthdayLayout = "02.01.2006"

// Button is a keyboard button with its localized caption.
type Button struct {
	Label string
	Token menu.Token
	Color menu.Color
	Link  string
}

// Keyboard is a localized keyboard.
type Keyboard struct {
	Rows   [][]Button
	Inline bool
}

// Message is one outbound message.
type Message struct {
	Text     string
	Keyboard *Keyboard
	Media    []model.Photo
}

// Renderer produces localized messages.
type Renderer struct {
	bundle *i18n.Bundle
	now    func() time.Time
}

// New returns a renderer over bundle; now defaults to time.Now.
func New(bundle *i18n.Bundle, now func() time.Time) *Renderer {
	if now == nil {
		now = time.Now
	}
	return &Renderer{bundle: bundle, now: now}
}

type accumulator struct {
	paragraphs []string
	keyboard   *Keyboard
	media      []model.Photo
}

func (a *accumulator) add(m Message) {
	if m.Text != "" {
		a.paragraphs = append(a.paragraphs, m.Text)
	}
	if m.Keyboard != nil {
		a.keyboard = m.Keyboard
	}
	a.media = append(a.media, m.Media...)
}

func (a *accumulator) pending() bool {
	return len(a.paragraphs) > 0 || len(a.media) > 0
}

// flush emits the pending message. The keyboard is kept for the next message when nothing is pending.
func (a *accumulator) flush(out []Message) []Message {
	if !a.pending() {
		return out
	}
	out = append(out, Message{
		Text:     strings.Join(a.paragraphs, ParagraphSeparator),
		Keyboard: a.keyboard,
		Media:    a.media,
	})
	*a = accumulator{}
	return out
}

// Render squashes replies: consecutive squashable replies become one message, and a
// non-squashable reply flushes the pending message and is sent on its own. A keyboard
// left over at the end goes onto the last text message without one, or else into a
// menu prompt of its own.
func (r *Renderer) Render(tag language.Tag, replies iter.Seq[response.Response]) []Message {
	var (
		out []Message
		acc accumulator
	)
	for resp := range replies {
		m := r.Message(tag, resp)
		if !resp.AllowSquash {
			out = acc.flush(out)
			out = append(out, m)
			continue
		}
		acc.add(m)
	}
	out = acc.flush(out)
	if acc.keyboard != nil {
		out = r.placeKeyboard(tag, out, acc.keyboard)
	}
	return out
}

func (r *Renderer) placeKeyboard(tag language.Tag, out []Message, kb *Keyboard) []Message {
	if n := len(out); n > 0 && out[n-1].Keyboard == nil && out[n-1].Text != "" {
		out[n-1].Keyboard = kb
		return out
	}
	m := r.Message(tag, response.SelectMenu())
	m.Keyboard = kb
	return append(out, m)
}

// Message renders a single reply.
func (r *Renderer) Message(tag language.Tag, resp response.Response) Message {
	p := r.bundle.Printer(tag)
	switch resp.Kind {
	case response.KindText:
		return Message{Text: resp.Text}
	case response.KindKeyboard:
		if resp.Keyboard == nil {
			return Message{}
		}
		return Message{Keyboard: r.keyboard(tag, *resp.Keyboard)}
	case response.KindAttachMedia:
		return Message{Media: resp.Media}
	case response.KindUnknownCommand:
		return Message{Text: p.Sprintf("unknown_command", r.bundle.Label(tag, menu.Help))}
	case response.KindGreetNewUser:
		return Message{Text: p.Sprintf("greet_new_user", resp.Name)}
	case response.KindMenuHelp:
		return Message{Text: r.help(tag, resp.Tokens)}
	case response.KindSearchResult:
		return Message{Text: r.card(p, p.Sprintf("heading.search_result"), resp.Profile)}
	case response.KindYourProfile:
		return Message{Text: r.card(p, p.Sprintf("heading.your_profile"), resp.Profile)}
	case response.KindFavoriteResult:
		return Message{Text: r.card(p, p.Sprintf("heading.favorite", resp.Index, resp.Total), resp.Profile)}
	case response.KindBlacklistResult:
		return Message{Text: r.card(p, p.Sprintf("heading.blacklist", resp.Index, resp.Total), resp.Profile)}
	default:
		// The remaining kinds are fixed strings keyed by their name.
		return Message{Text: p.Sprintf(resp.Kind.String())}
	}
}

func (r *Renderer) keyboard(tag language.Tag, kb menu.Keyboard) *Keyboard {
	out := &Keyboard{Inline: kb.Inline, Rows: make([][]Button, 0, len(kb.Rows))}
	for _, row := range kb.Rows {
		buttons := make([]Button, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, Button{
				Label: r.bundle.Label(tag, b.Token),
				Token: b.Token,
				Color: b.Color,
				Link:  b.Link,
			})
		}
		out.Rows = append(out.Rows, buttons)
	}
	return out
}

func (r *Renderer) help(tag language.Tag, tokens []menu.Token) string {
	p := r.bundle.Printer(tag)
	lines := make([]string, 0, len(tokens)+2)
	lines = append(lines, p.Sprintf("help.header"), p.Sprintf("card.separator"))
	for _, tok := range tokens {
		lines = append(lines, p.Sprintf("help.record", r.bundle.Label(tag, tok), p.Sprintf("help."+string(tok))))
	}
	return strings.Join(lines, "\n")
}

func (r *Renderer) card(p *message.Printer, heading string, prof *model.Profile) string {
	if prof == nil {
		return heading
	}
	unset := p.Sprintf("card.not_specified")
	orUnset := func(s string) string {
		if s == "" {
			return unset
		}
		return s
	}

	sex := unset
	switch prof.Sex {
	case model.SexMale:
		sex = p.Sprintf("sex.male")
	case model.SexFemale:
		sex = p.Sprintf("sex.female")
	}
	birthday := prof.BirthdayRaw
	if prof.Birthday != nil {
		birthday = prof.Birthday.Format(birthdayLayout)
	}
	age := unset
	if years, ok := prof.Age(r.now()); ok {
		age = p.Sprint(years)
	}
	online := p.Sprintf("bool.no")
	if prof.Online {
		online = p.Sprintf("bool.yes")
	}

	lines := []string{
		heading,
		p.Sprintf("card.separator"),
		p.Sprintf("card.first_name", orUnset(prof.FirstName)),
		p.Sprintf("card.last_name", orUnset(prof.LastName)),
	}
	if prof.Nickname != "" {
		lines = append(lines, p.Sprintf("card.nickname", prof.Nickname))
	}
	lines = append(lines,
		p.Sprintf("card.sex", sex),
		p.Sprintf("card.birthday", orUnset(birthday)),
		p.Sprintf("card.age", age),
		p.Sprintf("card.city", orUnset(prof.City)),
		p.Sprintf("card.id", strconv.FormatInt(prof.ID, 10)),
	)
	if prof.URL != "" {
		lines = append(lines, p.Sprintf("card.url", prof.URL))
	}
	lines = append(lines, p.Sprintf("card.online", online))
	return strings.Join(lines, "\n")
}
