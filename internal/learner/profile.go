package learner

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Language is the conversation language for a learner.
type Language string

const (
	LanguageEnglish Language = "en"
	LanguageArabic  Language = "ar"
)

// LearningStyle biases how explanations are phrased.
type LearningStyle string

const (
	StyleVisual      LearningStyle = "visual"
	StyleAuditory    LearningStyle = "auditory"
	StyleKinesthetic LearningStyle = "kinesthetic"
	StyleReading     LearningStyle = "reading"
)

// Curriculum selects spelling and standards framing.
type Curriculum string

const (
	CurriculumAmerican Curriculum = "american"
	CurriculumBritish  Curriculum = "british"
	CurriculumIB       Curriculum = "ib"
	CurriculumMOE      Curriculum = "moe"
)

// UserProfile describes the child on the other end of the conversation.
// It is supplied by the caller and never modified by the gateway.
type UserProfile struct {
	ID            string        `json:"id" validate:"required,max=128"`
	Name          string        `json:"name" validate:"max=64"`
	Age           int           `json:"age" validate:"gte=3,lte=18"`
	Grade         int           `json:"grade" validate:"gte=0,lte=12"`
	LearningStyle LearningStyle `json:"learningStyle,omitempty" validate:"omitempty,oneof=visual auditory kinesthetic reading"`
	Interests     []string      `json:"interests,omitempty" validate:"max=10,dive,max=40"`
	Language      Language      `json:"language" validate:"required,oneof=en ar"`
	Curriculum    Curriculum    `json:"curriculumType,omitempty" validate:"omitempty,oneof=american british ib moe"`
}

// Tier returns the behavioral band for the profile's age.
func (p UserProfile) Tier() AgeTier {
	return TierForAge(p.Age)
}

// DisplayName returns the name to address the child by.
func (p UserProfile) DisplayName() string {
	if p.Name == "" {
		return "friend"
	}
	return p.Name
}

var validate = validator.New()

// Validate checks the profile for required fields and supported enum values.
func (p UserProfile) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("invalid profile: %w", err)
	}
	return nil
}
