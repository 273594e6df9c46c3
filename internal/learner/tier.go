package learner

// AgeTier is one of three behavioral bands that drive vocabulary, sentence
// length, and tone. Ages above 12 use the oldest band.
type AgeTier int

const (
	TierEarly  AgeTier = iota // 6 and under
	TierMiddle                // 7-9
	TierUpper                 // 10-12
)

// TierForAge maps an age in years to its tier.
func TierForAge(age int) AgeTier {
	switch {
	case age <= 6:
		return TierEarly
	case age <= 9:
		return TierMiddle
	default:
		return TierUpper
	}
}

// String returns the tier label used in logs and prompts.
func (t AgeTier) String() string {
	switch t {
	case TierEarly:
		return "early"
	case TierMiddle:
		return "middle"
	case TierUpper:
		return "upper"
	}
	return "unknown"
}

// Limits are the language-complexity ceilings for a tier. The prompt builder
// asks the model to stay under them and the output detector enforces them.
type Limits struct {
	MaxAvgWordLength     float64
	MaxAvgSentenceLength float64
}

var tierLimits = [...]Limits{
	TierEarly:  {MaxAvgWordLength: 5, MaxAvgSentenceLength: 10},
	TierMiddle: {MaxAvgWordLength: 6, MaxAvgSentenceLength: 15},
	TierUpper:  {MaxAvgWordLength: 7, MaxAvgSentenceLength: 20},
}

// Limits returns the complexity ceilings for the tier.
func (t AgeTier) Limits() Limits {
	if t < 0 || int(t) >= len(tierLimits) {
		return tierLimits[TierUpper]
	}
	return tierLimits[t]
}
