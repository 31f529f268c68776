package match

import "strings"

// NormalizeForScoring canonicalizes text for fuzzy scoring: ASCII letters are
// lower-cased, every character that is not an ASCII letter, digit, or space
// is removed, and leading/trailing whitespace is trimmed. Internal space runs
// are kept as-is — only disallowed characters are removed, whitespace is not
// collapsed.
//
// The function is idempotent and never fails; any input (including empty or
// entirely non-ASCII text) yields a possibly empty result.
func NormalizeForScoring(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
			b.WriteByte(byte(r) + ('a' - 'A'))
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == ' ':
			b.WriteByte(byte(r))
		}
	}
	return strings.Trim(b.String(), " ")
}

// NormalizeForContainment is [NormalizeForScoring] with all spaces removed as
// well, producing the compact form used by the literal-substring strategy.
func NormalizeForContainment(s string) string {
	return strings.ReplaceAll(NormalizeForScoring(s), " ", "")
}
