package render

import (
	"slices"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/m3rciful/vkinder/internal/i18n"
	"github.com/m3rciful/vkinder/internal/menu"
	"github.com/m3rciful/vkinder/internal/model"
	"github.com/m3rciful/vkinder/internal/response"
)

var fixedNow = time.Date(2026, time.October, 15, 12, 0, 0, 0, time.UTC)

func newRenderer() *Renderer {
	return New(i18n.Default(), func() time.Time { return fixedNow })
}

func texts(n int) []response.Response {
	out := make([]response.Response, n)
	for i := range out {
		out[i] = response.Text("p" + strconv.Itoa(i))
	}
	return out
}

func TestRenderSquashCounts(t *testing.T) {
	r := newRenderer()
	const n = 5
	cases := []struct {
		name       string
		standalone int
		want       int
	}{
		{"all squashable", -1, 1},
		{"standalone first", 0, 2},
		{"standalone middle", 2, 3},
		{"standalone second", 1, 3},
		{"standalone last", n - 1, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			replies := texts(n)
			if tc.standalone >= 0 {
				replies[tc.standalone] = replies[tc.standalone].Standalone()
			}
			msgs := r.Render(language.English, slices.Values(replies))
			assert.Len(t, msgs, tc.want)
		})
	}
}

func TestRenderJoinsParagraphsInOrder(t *testing.T) {
	msgs := newRenderer().Render(language.English, slices.Values(texts(3)))
	require.Len(t, msgs, 1)
	assert.Equal(t, "p0\n\np1\n\np2", msgs[0].Text)
}

func TestRenderLastKeyboardWins(t *testing.T) {
	var first, second menu.Builder
	replies := []response.Response{
		response.Keyboard(first.Row(menu.Btn(menu.Help)).Keyboard()),
		response.Text("hello"),
		response.Keyboard(second.Row(menu.Primary(menu.Search)).Keyboard()),
	}
	msgs := newRenderer().Render(language.English, slices.Values(replies))
	require.Len(t, msgs, 1)
	require.NotNil(t, msgs[0].Keyboard)
	assert.Equal(t, menu.Search, msgs[0].Keyboard.Rows[0][0].Token)
	assert.Equal(t, "🔍 Search", msgs[0].Keyboard.Rows[0][0].Label)
}

func TestRenderKeyboardCarriesOverStandalone(t *testing.T) {
	var kb menu.Builder
	replies := []response.Response{
		response.Keyboard(kb.Row(menu.Btn(menu.Help)).Keyboard()),
		response.UnknownCommand().Standalone(),
		response.SelectMenu(),
	}
	msgs := newRenderer().Render(language.English, slices.Values(replies))
	require.Len(t, msgs, 2)
	assert.Nil(t, msgs[0].Keyboard)
	assert.Equal(t, "I did not get that. Press ❓ Help", msgs[0].Text)
	require.NotNil(t, msgs[1].Keyboard)
	assert.Equal(t, "Choose an action:", msgs[1].Text)
}

func TestRenderTrailingKeyboardIsKept(t *testing.T) {
	var kb menu.Builder
	layout := kb.Row(menu.Btn(menu.Help)).Keyboard()

	msgs := newRenderer().Render(language.English, slices.Values([]response.Response{
		response.Text("alone").Standalone(),
		response.Keyboard(layout),
	}))
	require.Len(t, msgs, 1)
	assert.Equal(t, "alone", msgs[0].Text)
	require.NotNil(t, msgs[0].Keyboard)
	assert.Equal(t, menu.Help, msgs[0].Keyboard.Rows[0][0].Token)

	msgs = newRenderer().Render(language.English, slices.Values([]response.Response{
		response.AttachMedia([]model.Photo{{ID: 1}, {ID: 2}}).Standalone(),
		response.Keyboard(layout),
	}))
	require.Len(t, msgs, 2)
	assert.Nil(t, msgs[0].Keyboard)
	assert.Equal(t, "Choose an action:", msgs[1].Text)
	require.NotNil(t, msgs[1].Keyboard)

	msgs = newRenderer().Render(language.English, slices.Values([]response.Response{response.Keyboard(layout)}))
	require.Len(t, msgs, 1)
	assert.Equal(t, "Choose an action:", msgs[0].Text)
	assert.NotNil(t, msgs[0].Keyboard)
}

func TestRenderMediaAppended(t *testing.T) {
	replies := []response.Response{
		response.Text("card"),
		response.AttachMedia([]model.Photo{{ID: 1}}),
		response.AttachMedia([]model.Photo{{ID: 2}, {ID: 3}}),
		response.Text(""),
	}
	msgs := newRenderer().Render(language.English, slices.Values(replies))
	require.Len(t, msgs, 1)
	assert.Equal(t, "card", msgs[0].Text)
	assert.Len(t, msgs[0].Media, 3)
}

func TestRenderEmpty(t *testing.T) {
	assert.Empty(t, newRenderer().Render(language.English, slices.Values([]response.Response(nil))))
}

func TestProfileCard(t *testing.T) {
	birthday := time.Date(1996, time.March, 8, 0, 0, 0, 0, time.UTC)
	prof := model.Profile{
		ID: 123456789, FirstName: "Anna", Sex: model.SexFemale,
		Birthday: &birthday, City: "Moscow", Online: true, URL: "https://vk.com/id123456789",
	}
	msg := newRenderer().Message(language.English, response.ListResult(model.Favorites, prof, 2, 5))
	for _, want := range []string{
		"Favorite 2 of 5:",
		"First name: Anna",
		"Last name: Not specified",
		"Sex: Female",
		"Birthday: 08.03.1996",
		"Age: 30",
		"City: Moscow",
		"ID: 123456789",
		"Online: yes",
	} {
		assert.Contains(t, msg.Text, want)
	}
	assert.NotContains(t, msg.Text, "Nickname")
}

func TestProfileCardPartialBirthday(t *testing.T) {
	msg := newRenderer().Message(language.Russian, response.YourProfile(model.Profile{ID: 7, BirthdayRaw: "21.9"}))
	assert.Contains(t, msg.Text, "Твоя анкета:")
	assert.Contains(t, msg.Text, "Дата рождения: 21.9")
	assert.Contains(t, msg.Text, "Возраст: Не указан")
}

func TestHelpListsTokens(t *testing.T) {
	msg := newRenderer().Message(language.English, response.MenuHelp([]menu.Token{menu.Search, menu.Help}))
	assert.Equal(t, "Available commands:\n────────────────────\n🔍 Search - find a match\n❓ Help - this message", msg.Text)
}

func TestFixedStrings(t *testing.T) {
	r := newRenderer()
	assert.Equal(t, "Your favorites list is empty.", r.Message(language.English, response.ListEmpty(model.Favorites)).Text)
	assert.Equal(t, "Черный список пуст.", r.Message(language.Russian, response.ListEmpty(model.Blacklist)).Text)
	assert.Equal(t, "😔 Could not add the profile to favorites.", r.Message(language.English, response.AddFailed(model.Favorites)).Text)
}
