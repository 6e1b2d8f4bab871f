package cipher

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"regexp"
	"strings"
)

// The substitution table. Each vowel maps to a token with a distinct first
// character, which is what keeps Decrypt's left-to-right scan unambiguous:
// in encrypted output a vowel can only ever appear inside a token.
var rules = [5][2]string{
	{"e", "enter"},
	{"i", "imes"},
	{"a", "ai"},
	{"o", "ober"},
	{"u", "ufat"},
}

// ErrInvalidText is returned by Encrypt for input outside the accepted
// alphabet: lowercase unaccented ASCII letters in words separated by single
// spaces, with no leading or trailing space.
var ErrInvalidText = errors.New("text must contain only lowercase unaccented letters and single spaces between words")

var validText = regexp.MustCompile(`^[a-z]+( [a-z]+)*$`)

var (
	encoder = newReplacer(false)
	decoder = newReplacer(true)
)

func newReplacer(invert bool) *strings.Replacer {
	pairs := make([]string, 0, len(rules)*2)
	for _, r := range rules {
		if invert {
			pairs = append(pairs, r[1], r[0])
		} else {
			pairs = append(pairs, r[0], r[1])
		}
	}
	return strings.NewReplacer(pairs...)
}

// Valid reports whether text is inside Encrypt's accepted alphabet.
func Valid(text string) bool {
	return validText.MatchString(text)
}

// Encrypt substitutes every vowel in text with its token. Consonants and
// spaces pass through unchanged. The substitution is a single left-to-right
// pass, so vowels inside already-written tokens are never re-substituted.
func Encrypt(text string) (string, error) {
	if !Valid(text) {
		return "", ErrInvalidText
	}
	return encoder.Replace(text), nil
}

// Decrypt substitutes every token back to its vowel in a single
// left-to-right pass. It is total: input that was not produced by Encrypt is
// still rewritten wherever a token-shaped substring happens to occur.
func Decrypt(encrypted string) string {
	return decoder.Replace(encrypted)
}

// Fingerprint returns the SHA-256 hex digest of the encrypted text. It is
// both the dedup key a text is stored under and the retrieval key handed to
// the user, so lookups agree with stores by construction.
func Fingerprint(encrypted string) string {
	sum := sha256.Sum256([]byte(encrypted))
	return hex.EncodeToString(sum[:])
}
