package textclean

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanAlpha(t *testing.T) {
	c := New(ModeAlpha, 5)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"url stripped", "check http://x.co now", "check now"},
		{"punctuation and digits", "Seth's #1 flub!!! 100%", "seths flub"},
		{"whitespace collapsed", "  too \t many\n\nspaces ", "too many spaces"},
		{"accents folded", "Café Déjà vu", "cafe deja vu"},
		{"emoji only", "😂😂😂", ""},
		{"https link", "see https://youtu.be/abc?t=10 lol", "see lol"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Clean(tt.in))
		})
	}
}

func TestCleanRawKeepsPunctuation(t *testing.T) {
	c := New(ModeRaw, 0)
	assert.Equal(t, "seth's flub! 😂", c.Clean("Seth's   FLUB! http://a.b 😂"))
}

func TestCleanIsIdempotent(t *testing.T) {
	inputs := []string{
		"check http://x.co now",
		"ht-tp://sneaky link",
		"xhttp:glued ht.tps",
		"Café   Déjà  vu!!",
		"   ",
		"Mixed CASE words\twith\ttabs http",
	}
	for _, mode := range []Mode{ModeAlpha, ModeRaw} {
		c := New(mode, 0)
		for _, in := range inputs {
			once := c.Clean(in)
			assert.Equal(t, once, c.Clean(once), "mode=%s input=%q", mode, in)
		}
	}
}

func TestCleanStripsAllURLs(t *testing.T) {
	for _, mode := range []Mode{ModeAlpha, ModeRaw} {
		out := New(mode, 0).Clean("check http://x.co now and https://y.org/z too")
		assert.NotContains(t, out, "http", "mode=%s", mode)
	}
}

func TestKeep(t *testing.T) {
	c := New(ModeAlpha, 5)
	assert.False(t, c.Keep(""))
	assert.False(t, c.Keep("short"))
	assert.True(t, c.Keep("longer"))

	assert.True(t, New(ModeAlpha, 0).Keep("a"))
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("RAW")
	require.NoError(t, err)
	assert.Equal(t, ModeRaw, m)

	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeAlpha, m)

	_, err = ParseMode("stem")
	assert.Error(t, err)
}
