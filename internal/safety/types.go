package safety

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Severity ranks how strongly a finding should affect the pipeline.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

func (s Severity) rank() int {
	switch s {
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	}
	return 0
}

// AtLeast reports whether s is as severe as other.
func (s Severity) AtLeast(other Severity) bool {
	return s.rank() >= other.rank()
}

// Valid reports whether s is one of the three levels.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}

func (s *Severity) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	v := Severity(raw)
	if !v.Valid() {
		return fmt.Errorf("invalid severity: %q", raw)
	}
	*s = v
	return nil
}

// Reason identifies which detector produced the dominant finding.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonPII              Reason = "pii"
	ReasonSelfHarm         Reason = "self_harm"
	ReasonManipulation     Reason = "manipulation"
	ReasonTopic            Reason = "topic"
	ReasonProfanity        Reason = "profanity"
	ReasonLinks            Reason = "external_links"
	ReasonLength           Reason = "length"
	ReasonComplexity       Reason = "complexity"
	ReasonEducationalValue Reason = "educational_value"
)

// reasonPriority breaks severity ties when picking the dominant reason.
var reasonPriority = []Reason{
	ReasonPII,
	ReasonSelfHarm,
	ReasonManipulation,
	ReasonTopic,
	ReasonProfanity,
	ReasonLinks,
	ReasonLength,
	ReasonComplexity,
	ReasonEducationalValue,
}

// Reasons returns every non-empty reason in priority order.
func Reasons() []Reason {
	return append([]Reason(nil), reasonPriority...)
}

// Flags reported in Result.Flags. Topic findings additionally carry a
// "topic:<category>" flag.
const (
	FlagPII                 = "pii_detected"
	FlagManipulation        = "manipulation_attempt"
	FlagProfanity           = "inappropriate_language"
	FlagTopic               = "inappropriate_topic"
	FlagTooLong             = "message_too_long"
	FlagExternalLinks       = "external_links"
	FlagTooComplex          = "language_too_complex"
	FlagLowEducationalValue = "low_educational_value"

	topicFlagPrefix = "topic:"
)

// TopicFlag returns the category-specific flag for a topic finding.
func TopicFlag(category string) string {
	return topicFlagPrefix + category
}

// Result is produced by every input or output check.
type Result struct {
	Passed        bool     `json:"passed"`
	Flags         []string `json:"flags"`
	Severity      Severity `json:"severity"`
	BlockedReason string   `json:"blockedReason,omitempty"`

	// Reason is the dominant finding: highest severity, ties broken by
	// reasonPriority. ReasonNone when nothing was flagged.
	Reason Reason `json:"reason,omitempty"`
}

// Blocking reports whether the result must block input or force the
// output to be rewritten.
func (r Result) Blocking() bool {
	return r.Severity.AtLeast(SeverityMedium)
}

// PIIResult is the side output of PII detection.
type PIIResult struct {
	Found         bool     `json:"found"`
	Types         []string `json:"types"`
	SanitizedText string   `json:"sanitizedText"`
}

// ComplexityStats describes the measured complexity of a text.
type ComplexityStats struct {
	Words                int     `json:"words"`
	Sentences            int     `json:"sentences"`
	AvgWordLength        float64 `json:"avgWordLength"`
	AvgSentenceLength    float64 `json:"avgSentenceLength"`
	MaxAvgWordLength     float64 `json:"maxAvgWordLength"`
	MaxAvgSentenceLength float64 `json:"maxAvgSentenceLength"`
}

var blockedReasonText = map[Reason]string{
	ReasonPII:              "personal information detected",
	ReasonSelfHarm:         "self-harm topic detected",
	ReasonManipulation:     "attempt to change the assistant's instructions",
	ReasonTopic:            "inappropriate topic",
	ReasonProfanity:        "inappropriate language",
	ReasonLinks:            "external link",
	ReasonLength:           "message too long",
	ReasonComplexity:       "language too complex",
	ReasonEducationalValue: "low educational value",
}
