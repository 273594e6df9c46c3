package safety

import (
	"strings"
	"unicode"

	"github.com/abhisek/studybuddy/internal/learner"
)

// CheckComplexity measures average word and sentence length against the
// ceilings for the age tier. Empty text is always within limits.
func (d *Detector) CheckComplexity(text string, age int) (bool, ComplexityStats) {
	limits := learner.TierForAge(age).Limits()
	stats := ComplexityStats{
		MaxAvgWordLength:     limits.MaxAvgWordLength,
		MaxAvgSentenceLength: limits.MaxAvgSentenceLength,
	}

	letters := 0
	for _, w := range strings.Fields(text) {
		n := 0
		for _, r := range w {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				n++
			}
		}
		if n == 0 {
			continue
		}
		stats.Words++
		letters += n
	}
	if stats.Words == 0 {
		return true, stats
	}

	stats.Sentences = countSentences(text)
	stats.AvgWordLength = float64(letters) / float64(stats.Words)
	stats.AvgSentenceLength = float64(stats.Words) / float64(stats.Sentences)

	ok := stats.AvgWordLength <= limits.MaxAvgWordLength &&
		stats.AvgSentenceLength <= limits.MaxAvgSentenceLength
	return ok, stats
}

// countSentences counts runs of text separated by terminal punctuation or
// blank lines. Text without terminal punctuation is one sentence.
func countSentences(text string) int {
	parts := strings.FieldsFunc(text, func(r rune) bool {
		switch r {
		case '.', '!', '?', '\n', '؟':
			return true
		}
		return false
	})
	n := 0
	for _, p := range parts {
		if strings.IndexFunc(p, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }) >= 0 {
			n++
		}
	}
	if n == 0 {
		return 1
	}
	return n
}

// HasEducationalValue reports whether a reply is long enough and uses at
// least one pedagogical marker word.
func (d *Detector) HasEducationalValue(text string) bool {
	if len([]rune(strings.TrimSpace(text))) < d.rules.MinEducationalLength {
		return false
	}
	lower := strings.ToLower(text)
	for _, m := range d.markers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// CheckComplexity runs Default().CheckComplexity.
func CheckComplexity(text string, age int) (bool, ComplexityStats) {
	return Default().CheckComplexity(text, age)
}

// HasEducationalValue runs Default().HasEducationalValue.
func HasEducationalValue(text string) bool {
	return Default().HasEducationalValue(text)
}
