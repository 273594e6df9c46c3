package safety

import (
	"cmp"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"
	"unicode/utf8"
)

var linkPattern = regexp.MustCompile(`(?i)\bhttps?://[^\s<>"'()\[\]]*[^\s<>"'()\[\].,!?;:]`)

type compiledPII struct {
	typ         string
	placeholder string
	re          *regexp.Regexp
}

type compiledTopic struct {
	category string
	re       *regexp.Regexp
}

type compiledPattern struct {
	id string
	re *regexp.Regexp
}

// Detector classifies text against the compiled rule tables. It is
// immutable after construction and safe for concurrent use.
type Detector struct {
	rules        Rules
	profanity    *regexp.Regexp
	pii          []compiledPII
	topics       []compiledTopic
	manipulation []compiledPattern
	markers      []string
}

// New compiles rules into a Detector.
func New(rules Rules) (*Detector, error) {
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	d := &Detector{rules: rules}

	if len(rules.Profanity) > 0 {
		words := slices.Clone(rules.Profanity)
		// Longest first so "shut up" wins over any shorter overlap.
		slices.SortFunc(words, func(a, b string) int { return cmp.Compare(len(b), len(a)) })
		quoted := make([]string, len(words))
		for i, w := range words {
			quoted[i] = regexp.QuoteMeta(strings.ToLower(w))
		}
		d.profanity = regexp.MustCompile(`(?i)` + strings.Join(quoted, "|"))
	}

	for _, p := range rules.PII {
		re, err := regexp.Compile(p.Regex)
		if err != nil {
			return nil, fmt.Errorf("compile pii pattern %q: %w", p.Type, err)
		}
		d.pii = append(d.pii, compiledPII{typ: p.Type, placeholder: p.Placeholder, re: re})
	}

	for _, t := range rules.Topics {
		alts := make([]string, len(t.Words))
		for i, w := range t.Words {
			alts[i] = strings.Join(strings.Fields(regexp.QuoteMeta(w)), `\s+`)
		}
		re, err := regexp.Compile(`(?i)\b(?:` + strings.Join(alts, "|") + `)\b`)
		if err != nil {
			return nil, fmt.Errorf("compile topic %q: %w", t.Category, err)
		}
		d.topics = append(d.topics, compiledTopic{category: t.Category, re: re})
	}

	for _, m := range rules.Manipulation {
		re, err := regexp.Compile(m.Regex)
		if err != nil {
			return nil, fmt.Errorf("compile manipulation pattern %q: %w", m.ID, err)
		}
		d.manipulation = append(d.manipulation, compiledPattern{id: m.ID, re: re})
	}

	for _, w := range rules.EducationalMarkers {
		d.markers = append(d.markers, strings.ToLower(w))
	}
	return d, nil
}

var (
	defaultOnce     sync.Once
	defaultDetector *Detector
)

// Default returns the detector built from the embedded rules.
func Default() *Detector {
	defaultOnce.Do(func() {
		rules, err := DefaultRules()
		if err != nil {
			panic(fmt.Sprintf("safety: embedded rules are invalid: %v", err))
		}
		d, err := New(rules)
		if err != nil {
			panic(fmt.Sprintf("safety: embedded rules do not compile: %v", err))
		}
		defaultDetector = d
	})
	return defaultDetector
}

// Rules returns the rule tables the detector was built from.
func (d *Detector) Rules() Rules { return d.rules }

type finding struct {
	reason   Reason
	severity Severity
	flags    []string
}

// ValidateInput screens a message from the child before it reaches the model.
func (d *Detector) ValidateInput(text string, age int) Result {
	sev := d.rules.Severities.Input
	var fs []finding

	if d.hasProfanity(text) {
		fs = append(fs, finding{ReasonProfanity, sev.Profanity, []string{FlagProfanity}})
	}
	if pii := d.DetectPII(text); pii.Found {
		fs = append(fs, finding{ReasonPII, sev.PII, []string{FlagPII}})
	}
	fs = append(fs, d.topicFindings(text, sev.Topic)...)
	if d.isManipulation(text) {
		fs = append(fs, finding{ReasonManipulation, sev.Manipulation, []string{FlagManipulation}})
	}
	if utf8.RuneCountInString(strings.TrimSpace(text)) > d.rules.MaxInputLength {
		fs = append(fs, finding{ReasonLength, sev.Length, []string{FlagTooLong}})
	}

	res := summarize(fs)
	res.Passed = !res.Blocking()
	return res
}

// ValidateOutput screens a model reply before it reaches the child.
func (d *Detector) ValidateOutput(text string, age int) Result {
	sev := d.rules.Severities.Output
	var fs []finding

	if d.hasProfanity(text) {
		fs = append(fs, finding{ReasonProfanity, sev.Profanity, []string{FlagProfanity}})
	}
	if pii := d.DetectPII(text); pii.Found {
		fs = append(fs, finding{ReasonPII, sev.PII, []string{FlagPII}})
	}
	fs = append(fs, d.topicFindings(text, sev.Topic)...)
	if linkPattern.MatchString(text) {
		fs = append(fs, finding{ReasonLinks, sev.Links, []string{FlagExternalLinks}})
	}
	if ok, _ := d.CheckComplexity(text, age); !ok {
		fs = append(fs, finding{ReasonComplexity, sev.Complexity, []string{FlagTooComplex}})
	}
	if !d.HasEducationalValue(text) {
		fs = append(fs, finding{ReasonEducationalValue, sev.EducationalValue, []string{FlagLowEducationalValue}})
	}

	res := summarize(fs)
	res.Passed = len(res.Flags) == 0
	return res
}

// DetectPII finds personal information and returns the text with every
// match replaced by its placeholder. Rules run in order on progressively
// redacted text.
func (d *Detector) DetectPII(text string) PIIResult {
	res := PIIResult{SanitizedText: text, Types: []string{}}
	for _, p := range d.pii {
		if !p.re.MatchString(res.SanitizedText) {
			continue
		}
		res.Found = true
		if !slices.Contains(res.Types, p.typ) {
			res.Types = append(res.Types, p.typ)
		}
		res.SanitizedText = p.re.ReplaceAllLiteralString(res.SanitizedText, p.placeholder)
	}
	return res
}

// SanitizeOutput rewrites a reply so it is safe to show: PII redacted,
// links replaced with a placeholder, profanity masked.
func (d *Detector) SanitizeOutput(text string, age int) string {
	out := d.DetectPII(text).SanitizedText
	out = linkPattern.ReplaceAllLiteralString(out, d.rules.Placeholders.Link)
	if d.profanity != nil {
		out = d.profanity.ReplaceAllStringFunc(out, func(m string) string {
			return strings.Repeat("*", utf8.RuneCountInString(m))
		})
	}
	return out
}

func (d *Detector) hasProfanity(text string) bool {
	return d.profanity != nil && d.profanity.MatchString(text)
}

func (d *Detector) isManipulation(text string) bool {
	for _, m := range d.manipulation {
		if m.re.MatchString(text) {
			return true
		}
	}
	return false
}

// topicFindings returns one finding per matched category. Self-harm is
// reported under its own reason so callers can answer it differently.
func (d *Detector) topicFindings(text string, sev Severity) []finding {
	var fs []finding
	for _, t := range d.topics {
		if !t.re.MatchString(text) {
			continue
		}
		reason := ReasonTopic
		if t.category == string(ReasonSelfHarm) {
			reason = ReasonSelfHarm
		}
		fs = append(fs, finding{reason, sev, []string{FlagTopic, TopicFlag(t.category)}})
	}
	return fs
}

func summarize(fs []finding) Result {
	res := Result{Flags: []string{}, Severity: SeverityLow}
	for _, f := range fs {
		for _, fl := range f.flags {
			if !slices.Contains(res.Flags, fl) {
				res.Flags = append(res.Flags, fl)
			}
		}
		if f.severity.rank() > res.Severity.rank() {
			res.Severity = f.severity
		}
	}
	for _, r := range reasonPriority {
		if i := slices.IndexFunc(fs, func(f finding) bool { return f.reason == r && f.severity == res.Severity }); i >= 0 {
			res.Reason = r
			break
		}
	}
	if res.Blocking() {
		res.BlockedReason = blockedReasonText[res.Reason]
	}
	return res
}

// ValidateInput runs Default().ValidateInput.
func ValidateInput(text string, age int) Result { return Default().ValidateInput(text, age) }

// ValidateOutput runs Default().ValidateOutput.
func ValidateOutput(text string, age int) Result { return Default().ValidateOutput(text, age) }

// DetectPII runs Default().DetectPII.
func DetectPII(text string) PIIResult { return Default().DetectPII(text) }

// SanitizeOutput runs Default().SanitizeOutput.
func SanitizeOutput(text string, age int) string { return Default().SanitizeOutput(text, age) }
