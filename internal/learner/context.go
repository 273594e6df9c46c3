package learner

import "slices"

// LessonContext narrows the assistant to a specific lesson. A nil
// *LessonContext means open-domain tutoring.
type LessonContext struct {
	LessonID           string   `json:"lessonId,omitempty" validate:"max=128"`
	Subject            string   `json:"subject,omitempty" validate:"max=80"`
	Topic              string   `json:"topic,omitempty" validate:"max=120"`
	Grade              int      `json:"grade,omitempty" validate:"gte=0,lte=12"`
	ContentType        string   `json:"contentType,omitempty" validate:"max=40"`
	UploadedContent    string   `json:"uploadedContent,omitempty" validate:"max=20000"`
	LearningObjectives []string `json:"learningObjectives,omitempty" validate:"max=20"`
	Summary            string   `json:"summary,omitempty" validate:"max=4000"`
	KeyPoints          []string `json:"keyPoints,omitempty" validate:"max=30"`
}

// Validate checks field bounds.
func (l *LessonContext) Validate() error {
	if l == nil {
		return nil
	}
	return validate.Struct(l)
}

// Clone returns a deep copy so callers cannot mutate gateway state.
func (l *LessonContext) Clone() *LessonContext {
	if l == nil {
		return nil
	}
	c := *l
	c.LearningObjectives = slices.Clone(l.LearningObjectives)
	c.KeyPoints = slices.Clone(l.KeyPoints)
	return &c
}

// ConversationContext carries gamification signals. They shape tone only and
// never feed safety decisions.
type ConversationContext struct {
	CurrentStreak int      `json:"currentStreak,omitempty"`
	XP            int      `json:"xp,omitempty"`
	RecentTopics  []string `json:"recentTopics,omitempty"`
}
