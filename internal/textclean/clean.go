// Package textclean normalizes comment text before vectorization.
package textclean

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Mode selects how aggressively characters are removed.
type Mode string

const (
	// ModeAlpha keeps only ASCII letters and spaces.
	ModeAlpha Mode = "alpha"
	// ModeRaw keeps lower-cased text with URLs removed.
	ModeRaw Mode = "raw"
)

var urlExpr = regexp.MustCompile(`http\S*`)

// ParseMode validates a mode name from configuration.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeAlpha, "":
		return ModeAlpha, nil
	case ModeRaw:
		return ModeRaw, nil
	}
	return "", fmt.Errorf("unknown cleaning mode %q", s)
}

// Cleaner applies one normalization variant plus a minimum-length filter.
type Cleaner struct {
	mode      Mode
	minLength int
}

// New builds a cleaner. Cleaned texts with length <= minLength are rejected by Keep.
func New(mode Mode, minLength int) *Cleaner {
	if mode == "" {
		mode = ModeAlpha
	}
	if minLength < 0 {
		minLength = 0
	}
	return &Cleaner{mode: mode, minLength: minLength}
}

// Clean normalizes text. Clean(Clean(x)) == Clean(x).
func (c *Cleaner) Clean(text string) string {
	text = strings.ToLower(text)
	text = urlExpr.ReplaceAllString(text, " ")

	if c.mode == ModeAlpha {
		text = keepLetters(foldAccents(text))
		// Filtering can glue fragments into a new "http" run.
		text = urlExpr.ReplaceAllString(text, " ")
	}

	return strings.Join(strings.Fields(text), " ")
}

// Keep reports whether a cleaned text passes the quality filter.
func (c *Cleaner) Keep(cleaned string) bool {
	if cleaned == "" {
		return false
	}
	return utf8.RuneCountInString(cleaned) > c.minLength
}

func foldAccents(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func keepLetters(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		case r >= 'A' && r <= 'Z':
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}
