package extract

import (
	"regexp"
	"strings"
	"unicode"
)

// Thresholds tune the readability gate. Default values reject fragments with
// more than 30% of characters outside printable ASCII or fewer than 70%
// word-like tokens; the relaxed set is used by the aggressive scan pass.
type Thresholds struct {
	MinLen          int
	MaxNonPrintable float64
	MinWordlike     float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{MinLen: 3, MaxNonPrintable: 0.30, MinWordlike: 0.70}
}

func RelaxedThresholds() Thresholds {
	return Thresholds{MinLen: 3, MaxNonPrintable: 0.50, MinWordlike: 0.50}
}

// Known mojibake shapes: replacement characters, Private Use Area runs, and
// UTF-8 bytes read through a single-byte decoder.
var mojibakePatterns = []*regexp.Regexp{
	regexp.MustCompile("�"),
	regexp.MustCompile(`[\x{E000}-\x{F8FF}]{2,}`),
	regexp.MustCompile(`(?:Ã.){3,}`),
	regexp.MustCompile(`(?:â€.){2,}`),
}

// IsReadable reports whether a fragment looks like human-readable prose.
// This is a heuristic gate, not a grammar check: it never accepts trimmed
// strings shorter than MinLen, but it can let odd-but-printable noise through.
func IsReadable(s string, th Thresholds) bool {
	s = strings.TrimSpace(s)
	if len([]rune(s)) < th.MinLen {
		return false
	}

	for _, pat := range mojibakePatterns {
		if pat.MatchString(s) {
			return false
		}
	}

	total := 0
	printable := 0
	for _, r := range s {
		total++
		if (r >= 0x20 && r < 0x7F) || r == '\n' || r == '\r' || r == '\t' {
			printable++
		}
	}
	if total == 0 {
		return false
	}
	if float64(total-printable)/float64(total) > th.MaxNonPrintable {
		return false
	}

	tokens := strings.Fields(s)
	if len(tokens) == 0 {
		return false
	}
	wordlike := 0
	for _, tok := range tokens {
		if isWordlike(tok) {
			wordlike++
		}
	}
	return float64(wordlike)/float64(len(tokens)) >= th.MinWordlike
}

// isWordlike accepts tokens made solely of letters, digits, punctuation and
// symbols, i.e. anything that could appear in prose, as opposed to control
// bytes or encoding debris.
func isWordlike(tok string) bool {
	for _, r := range tok {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsPunct(r) || unicode.IsSymbol(r) {
			continue
		}
		return false
	}
	return true
}
