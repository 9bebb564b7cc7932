package brawlstars

import (
	"errors"
	"regexp"
	"strings"
)

// ErrInvalidTag is returned by NormalizeTag for strings that cannot be tags.
var ErrInvalidTag = errors.New("invalid player tag")

// Player tags use a restricted alphabet without vowels or look-alike digits.
var tagPattern = regexp.MustCompile(`^#[0289PYLQGRJCUV]{3,15}$`)

// NormalizeTag upper-cases raw, adds the leading '#' and validates it.
func NormalizeTag(raw string) (string, error) {
	tag := strings.ToUpper(strings.TrimSpace(raw))
	if !strings.HasPrefix(tag, "#") {
		tag = "#" + tag
	}
	if !tagPattern.MatchString(tag) {
		return "", ErrInvalidTag
	}
	return tag, nil
}

// LooksLikeTag reports whether text is a single word that could be a tag.
func LooksLikeTag(text string) bool {
	text = strings.TrimSpace(text)
	return text != "" && !strings.ContainsAny(text, " \t\n") && !strings.HasPrefix(text, "/")
}
