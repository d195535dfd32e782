// Package summarize condenses extracted document text to a character budget
// while keeping the sentences most useful for study material generation.
package summarize

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/local/docextract/internal/metrics"
)

// DefaultBudget is the character ceiling for condensed text, sized to keep
// prompts comfortably inside model context windows.
const DefaultBudget = 15000

// Artifact patterns stripped before scoring. These carry no study value and
// inflate the budget.
var (
	emailRe    = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	urlRe      = regexp.MustCompile(`https?://\S+|www\.\S+`)
	phoneRe    = regexp.MustCompile(`\+?\d[\d\s().-]{7,}\d`)
	pageNumRe  = regexp.MustCompile(`(?mi)^\s*(?:page\s+)?\d{1,4}(?:\s+of\s+\d{1,4})?\s*$`)
	dateLineRe = regexp.MustCompile(`(?mi)^\s*\d{1,2}[/.-]\d{1,2}[/.-]\d{2,4}\s*$`)
	multiWS    = regexp.MustCompile(`[ \t]{2,}`)
	sentenceRe = regexp.MustCompile(`[^.!?\n]+[.!?]?`)
)

// Summarizer selects the highest-scoring sentences until the budget is
// filled, emitting them best first. Ties keep their encounter order.
type Summarizer struct {
	weights *Weights
	budget  int
}

// New builds a summarizer. A nil weights table uses the embedded defaults;
// budget <= 0 uses DefaultBudget.
func New(weights *Weights, budget int) *Summarizer {
	if weights == nil {
		weights = DefaultWeights()
	}
	if budget <= 0 {
		budget = DefaultBudget
	}
	return &Summarizer{weights: weights, budget: budget}
}

// Budget returns the character ceiling.
func (s *Summarizer) Budget() int { return s.budget }

// Summarize strips artifacts, filters boilerplate lines, and selects
// sentences by keyword score until the budget is reached. Text already
// within budget after cleaning is returned as cleaned, making the call
// idempotent.
func (s *Summarizer) Summarize(text string) string {
	cleaned := s.clean(text)
	if utf8.RuneCountInString(cleaned) <= s.budget {
		return cleaned
	}

	type scored struct {
		text  string
		score float64
	}
	var sentences []scored
	for _, raw := range sentenceRe.FindAllString(cleaned, -1) {
		sent := strings.TrimSpace(raw)
		if sent == "" {
			continue
		}
		sentences = append(sentences, scored{text: sent, score: s.score(sent)})
	}

	// Emit highest score first; the stable sort keeps encounter order for
	// ties. Candidates that overflow the budget are skipped, not truncated.
	sort.SliceStable(sentences, func(i, j int) bool { return sentences[i].score > sentences[j].score })

	var sb strings.Builder
	used := 0
	for _, cand := range sentences {
		n := utf8.RuneCountInString(cand.text) + 1
		if used+n > s.budget {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(cand.text)
		used += n
	}
	out := sb.String()
	metrics.RecordSummarization(len(text), len(out))
	log.Debug().Int("in_chars", len(text)).Int("out_chars", len(out)).Msg("Condensed text to budget")
	return out
}

// clean strips contact artifacts and boilerplate lines, then normalizes
// whitespace.
func (s *Summarizer) clean(text string) string {
	text = emailRe.ReplaceAllString(text, "")
	text = urlRe.ReplaceAllString(text, "")
	text = phoneRe.ReplaceAllString(text, "")
	text = pageNumRe.ReplaceAllString(text, "")
	text = dateLineRe.ReplaceAllString(text, "")

	var kept []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(multiWS.ReplaceAllString(line, " "))
		if line == "" {
			continue
		}
		// The allowlist wins over both the length floor and the denylist, so
		// structural markers like slide headings survive cleanup.
		if (utf8.RuneCountInString(line) < 10 || s.denied(line)) && !s.allowListed(line) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

func (s *Summarizer) denied(line string) bool {
	lower := strings.ToLower(line)
	for _, deny := range s.weights.DenyLines {
		if strings.Contains(lower, deny) {
			return true
		}
	}
	return false
}

func (s *Summarizer) allowListed(line string) bool {
	for _, prefix := range s.weights.AllowPrefixes {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

// score sums keyword weights over the sentence plus a small length prior so
// substantive sentences beat fragments at equal keyword weight.
func (s *Summarizer) score(sentence string) float64 {
	lower := strings.ToLower(sentence)
	var total float64
	for kw, weight := range s.weights.Keywords {
		if strings.Contains(lower, kw) {
			total += weight
		}
	}
	words := len(strings.Fields(sentence))
	if words >= 8 && words <= 40 {
		total += 0.5
	}
	return total
}
