package security

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/pgElephant/ramd/internal/common"
)

// Credential length bounds, in bytes.
const (
	MaxUsernameLength = 64
	MaxPasswordLength = 128
)

// allowedByte rejects ASCII control characters (including NUL and DEL)
// except tab, newline and carriage return. Bytes of multi-byte UTF-8
// sequences are all >= 0x80 and pass.
func allowedByte(c byte) bool {
	switch c {
	case '\t', '\n', '\r':
		return true
	}
	return c >= 0x20 && c != 0x7f
}

// Validate reports whether input is at most maxLength bytes and free of
// disallowed control characters. An embedded NUL is never valid.
func Validate(input string, maxLength int) bool {
	if len(input) > maxLength {
		return false
	}
	for i := 0; i < len(input); i++ {
		if !allowedByte(input[i]) {
			return false
		}
	}
	return true
}

// Sanitize removes disallowed control characters, keeping the order of
// everything else, and bounds the result to maxLength bytes without
// splitting a UTF-8 sequence. Sanitize(Sanitize(x)) == Sanitize(x).
func Sanitize(input string, maxLength int) string {
	if maxLength < 0 {
		maxLength = 0
	}

	var b strings.Builder
	b.Grow(min(len(input), maxLength))
	for i := 0; i < len(input); i++ {
		if allowedByte(input[i]) {
			b.WriteByte(input[i])
		}
	}
	out := b.String()

	if len(out) > maxLength {
		cut := maxLength
		for cut > 0 && !utf8.RuneStart(out[cut]) {
			cut--
		}
		out = out[:cut]
	}
	return out
}

// validateCredential enforces the registry's format rules: non-empty,
// bounded, valid UTF-8 and printable. Usernames additionally may not
// contain whitespace.
func validateCredential(kind, s string, maxLength int, allowSpace bool) error {
	if s == "" {
		return fmt.Errorf("%w: empty %s", common.ErrValidation, kind)
	}
	if len(s) > maxLength {
		return fmt.Errorf("%w: %s longer than %d bytes", common.ErrValidation, kind, maxLength)
	}
	if !utf8.ValidString(s) {
		return fmt.Errorf("%w: %s is not valid UTF-8", common.ErrValidation, kind)
	}
	for _, r := range s {
		if !unicode.IsPrint(r) || (!allowSpace && unicode.IsSpace(r)) {
			return fmt.Errorf("%w: %s contains non-printable characters", common.ErrValidation, kind)
		}
	}
	return nil
}
