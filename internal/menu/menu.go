// Package menu defines the command vocabulary shown on keyboards and accepted as input.
package menu

// Token is a language-independent menu command.
type Token string

const (
	Search          Token = "search"
	Profile         Token = "profile"
	Favorites       Token = "favorites"
	Blacklist       Token = "blacklist"
	Help            Token = "help"
	Prev            Token = "prev"
	Next            Token = "next"
	AddFavorite     Token = "add_favorite"
	DeleteFavorite  Token = "delete_favorite"
	AddBlacklist    Token = "add_blacklist"
	DeleteBlacklist Token = "delete_blacklist"
	GoBack          Token = "go_back"
	AuthBegin       Token = "auth_begin"
	AuthFinished    Token = "auth_finished"
)

// All lists every token in display order.
var All = []Token{
	Search, Profile, Favorites, Blacklist, Help,
	Prev, Next, AddFavorite, DeleteFavorite, AddBlacklist, DeleteBlacklist,
	GoBack, AuthBegin, AuthFinished,
}

// Color hints the visual weight of a button.
type Color string

const (
	ColorSecondary Color = "secondary"
	ColorPrimary   Color = "primary"
	ColorPositive  Color = "positive"
	ColorNegative  Color = "negative"
)

// Button is a keyboard button bound to a token. Link turns it into an open-link button.
type Button struct {
	Token Token
	Color Color
	Link  string
}

// Keyboard is a structured keyboard description.
type Keyboard struct {
	Rows [][]Button
	// Inline keyboards are attached to the message instead of replacing the input area.
	Inline bool
}

// Tokens returns the tokens of all buttons in row order.
func (k Keyboard) Tokens() []Token {
	var out []Token
	for _, row := range k.Rows {
		for _, b := range row {
			out = append(out, b.Token)
		}
	}
	return out
}

// HasLinks reports whether any button opens a link.
func (k Keyboard) HasLinks() bool {
	for _, row := range k.Rows {
		for _, b := range row {
			if b.Link != "" {
				return true
			}
		}
	}
	return false
}

// Builder assembles a keyboard row by row.
type Builder struct {
	kb Keyboard
}

// Row appends a row with the given buttons.
func (b *Builder) Row(buttons ...Button) *Builder {
	if len(buttons) > 0 {
		b.kb.Rows = append(b.kb.Rows, buttons)
	}
	return b
}

// Keyboard returns the assembled keyboard.
func (b *Builder) Keyboard() Keyboard {
	return b.kb
}

// Btn returns a secondary button for t.
func Btn(t Token) Button { return Button{Token: t, Color: ColorSecondary} }

// Primary returns a primary button for t.
func Primary(t Token) Button { return Button{Token: t, Color: ColorPrimary} }

// Positive returns a positive button for t.
func Positive(t Token) Button { return Button{Token: t, Color: ColorPositive} }

// Negative returns a negative button for t.
func Negative(t Token) Button { return Button{Token: t, Color: ColorNegative} }

// Link returns an open-link button for t.
func Link(t Token, url string) Button { return Button{Token: t, Color: ColorPrimary, Link: url} }
