package safety

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var embeddedRules []byte

// Rules is the policy configuration for the detectors. The embedded
// rules.yaml is the default; LoadRules reads a replacement.
type Rules struct {
	Version              int           `yaml:"version"`
	MaxInputLength       int           `yaml:"max_input_length"`
	MinEducationalLength int           `yaml:"min_educational_length"`
	Placeholders         Placeholders  `yaml:"placeholders"`
	Severities           Severities    `yaml:"severities"`
	Profanity            []string      `yaml:"profanity"`
	PII                  []PIIRule     `yaml:"pii"`
	Topics               []TopicRule   `yaml:"topics"`
	Manipulation         []PatternRule `yaml:"manipulation"`
	EducationalMarkers   []string      `yaml:"educational_markers"`
}

type Placeholders struct {
	Link string `yaml:"link"`
}

// Severities assigns a severity to each rule group.
type Severities struct {
	Input  InputSeverities  `yaml:"input"`
	Output OutputSeverities `yaml:"output"`
}

type InputSeverities struct {
	PII          Severity `yaml:"pii"`
	Topic        Severity `yaml:"topic"`
	Manipulation Severity `yaml:"manipulation"`
	Profanity    Severity `yaml:"profanity"`
	Length       Severity `yaml:"length"`
}

type OutputSeverities struct {
	PII              Severity `yaml:"pii"`
	Topic            Severity `yaml:"topic"`
	Links            Severity `yaml:"links"`
	Profanity        Severity `yaml:"profanity"`
	Complexity       Severity `yaml:"complexity"`
	EducationalValue Severity `yaml:"educational_value"`
}

// PIIRule matches one kind of personal information.
type PIIRule struct {
	Type        string `yaml:"type"`
	Placeholder string `yaml:"placeholder"`
	Regex       string `yaml:"regex"`
}

// TopicRule lists words and phrases for one unsafe category.
type TopicRule struct {
	Category string   `yaml:"category"`
	Words    []string `yaml:"words"`
}

// PatternRule is a named regular expression.
type PatternRule struct {
	ID    string `yaml:"id"`
	Regex string `yaml:"regex"`
}

// DefaultRules parses the embedded rule tables.
func DefaultRules() (Rules, error) {
	return ParseRules(embeddedRules)
}

// LoadRules reads a rule file from disk.
func LoadRules(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("read rules file: %w", err)
	}
	return ParseRules(data)
}

// ParseRules decodes and validates YAML rule tables.
func ParseRules(data []byte) (Rules, error) {
	var r Rules
	if err := yamlUnmarshalStrict(data, &r); err != nil {
		return Rules{}, fmt.Errorf("parse rules: %w", err)
	}
	if err := r.Validate(); err != nil {
		return Rules{}, err
	}
	return r, nil
}

// Validate checks that every severity is set and the tables are non-empty.
func (r Rules) Validate() error {
	var errs []error
	sevs := map[string]Severity{
		"input.pii":                r.Severities.Input.PII,
		"input.topic":              r.Severities.Input.Topic,
		"input.manipulation":       r.Severities.Input.Manipulation,
		"input.profanity":          r.Severities.Input.Profanity,
		"input.length":             r.Severities.Input.Length,
		"output.pii":               r.Severities.Output.PII,
		"output.topic":             r.Severities.Output.Topic,
		"output.links":             r.Severities.Output.Links,
		"output.profanity":         r.Severities.Output.Profanity,
		"output.complexity":        r.Severities.Output.Complexity,
		"output.educational_value": r.Severities.Output.EducationalValue,
	}
	for name, s := range sevs {
		if !s.Valid() {
			errs = append(errs, fmt.Errorf("severities.%s: missing or invalid", name))
		}
	}
	if r.MaxInputLength <= 0 {
		errs = append(errs, errors.New("max_input_length must be positive"))
	}
	if r.Placeholders.Link == "" {
		errs = append(errs, errors.New("placeholders.link is required"))
	}
	if len(r.PII) == 0 {
		errs = append(errs, errors.New("pii: at least one rule is required"))
	}
	for i, p := range r.PII {
		if p.Type == "" || p.Regex == "" || p.Placeholder == "" {
			errs = append(errs, fmt.Errorf("pii[%d]: type, regex and placeholder are required", i))
		}
	}
	for i, t := range r.Topics {
		if t.Category == "" || len(t.Words) == 0 {
			errs = append(errs, fmt.Errorf("topics[%d]: category and words are required", i))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid rules: %w", err)
	}
	return nil
}

func yamlUnmarshalStrict(data []byte, v any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(v)
}
