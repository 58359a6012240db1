package menu

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuilder(t *testing.T) {
	var b Builder
	kb := b.Row(Primary(Search)).
		Row().
		Row(Btn(Profile), Btn(Favorites)).
		Row(Link(AuthBegin, "https://id.example/authorize"), Positive(AuthFinished)).
		Keyboard()

	assert.Len(t, kb.Rows, 3, "empty rows are skipped")
	assert.Equal(t, []Token{Search, Profile, Favorites, AuthBegin, AuthFinished}, kb.Tokens())
	assert.True(t, kb.HasLinks())
	assert.Equal(t, ColorPrimary, kb.Rows[0][0].Color)
}

func TestKeyboardWithoutLinks(t *testing.T) {
	var b Builder
	assert.False(t, b.Row(Btn(Help)).Keyboard().HasLinks())
}
