package i18n

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/m3rciful/vkinder/internal/menu"
)

func TestLabelsRoundTrip(t *testing.T) {
	b := Default()
	for _, lang := range []string{"ru", "en"} {
		tag := b.Match(lang)
		for _, tok := range menu.All {
			label := b.Label(tag, tok)
			require.NotEqual(t, "menu."+string(tok), label, "missing %s label for %s", lang, tok)
			got, ok := b.Normalize("  " + label + " ")
			require.True(t, ok, "label %q", label)
			assert.Equal(t, tok, got)
		}
	}
}

func TestNormalizeUnknown(t *testing.T) {
	_, ok := Default().Normalize("hello there")
	assert.False(t, ok)
}

func TestMatchFallsBack(t *testing.T) {
	b := Default()
	assert.Equal(t, language.Russian, b.Match("de"))
	assert.Equal(t, language.Russian, b.Match(""))
	assert.Equal(t, language.English, b.Match("en-GB"))
}

func TestPrinterFormats(t *testing.T) {
	b := Default()
	assert.Equal(t, "Favorite 2 of 5:", b.Printer(language.English).Sprintf("heading.favorite", 2, 5))
	assert.Equal(t, "Избранное 2 из 5:", b.Printer(language.Russian).Sprintf("heading.favorite", 2, 5))
}

func TestIsStartCommand(t *testing.T) {
	for _, s := range []string{"start", "/start", "Начать", " ПРИВЕТ "} {
		assert.True(t, IsStartCommand(s), s)
	}
	assert.False(t, IsStartCommand("search"))
}

func TestLoadRequiresFallback(t *testing.T) {
	fsys := fstest.MapFS{
		"locales/en.yaml": {Data: []byte("locale: en\nmessages: {}\n")},
	}
	_, err := Load(fsys, "ru")
	require.Error(t, err)
}
