package prompt

import (
	"reflect"
	"strings"
	"testing"

	"github.com/abhisek/studybuddy/internal/learner"
)

func testProfile() learner.UserProfile {
	return learner.UserProfile{
		ID:            "kid-1",
		Name:          "Sara",
		Age:           8,
		Grade:         3,
		LearningStyle: learner.StyleVisual,
		Language:      learner.LanguageEnglish,
		Curriculum:    learner.CurriculumBritish,
	}
}

func testLesson() *learner.LessonContext {
	return &learner.LessonContext{
		Subject:   "Math",
		Topic:     "Fractions",
		Summary:   "Fractions show parts of a whole.",
		KeyPoints: []string{"numerator", "denominator"},
	}
}

func TestBuildSystemInstructionsOrder(t *testing.T) {
	conv := &learner.ConversationContext{CurrentStreak: 3, XP: 120}
	got := BuildSystemInstructions(testProfile(), testLesson(), conv)

	markers := []string{
		"You are Buddy",
		"Safety rules",
		"Age guidance",
		"Learning style",
		"Current lesson",
		"Curriculum: British",
		"Progress:",
		"Language:",
		"Formatting:",
	}
	last := -1
	for _, m := range markers {
		i := strings.Index(got, m)
		if i < 0 {
			t.Fatalf("missing block %q", m)
		}
		if i <= last {
			t.Errorf("block %q out of order", m)
		}
		last = i
	}
}

func TestBuildSystemInstructionsOptionalBlocks(t *testing.T) {
	p := learner.UserProfile{ID: "kid", Age: 5, Language: learner.LanguageEnglish}
	got := BuildSystemInstructions(p, nil, nil)

	for _, absent := range []string{"Learning style", "Current lesson", "Curriculum:", "Progress:"} {
		if strings.Contains(got, absent) {
			t.Errorf("unexpected block %q", absent)
		}
	}
	for _, present := range []string{"You are Buddy", "Safety rules", "Age guidance", "Language:", "Formatting:"} {
		if !strings.Contains(got, present) {
			t.Errorf("missing block %q", present)
		}
	}
}

func TestAgeGuidanceMatchesDetectorCeilings(t *testing.T) {
	tests := []struct {
		age  int
		want string
	}{
		{5, "no more than 5 letters) and sentences short (on average no more than 10 words"},
		{8, "no more than 6 letters) and sentences short (on average no more than 15 words"},
		{11, "no more than 7 letters) and sentences short (on average no more than 20 words"},
	}
	for _, tt := range tests {
		p := learner.UserProfile{ID: "kid", Age: tt.age, Language: learner.LanguageEnglish}
		if got := BuildSystemInstructions(p, nil, nil); !strings.Contains(got, tt.want) {
			t.Errorf("age %d: guidance missing %q", tt.age, tt.want)
		}
	}
}

func TestBuildSystemInstructionsArabic(t *testing.T) {
	p := testProfile()
	p.Language = learner.LanguageArabic
	if got := BuildSystemInstructions(p, nil, nil); !strings.Contains(got, "Arabic") {
		t.Error("expected Arabic language guidance")
	}
}

func TestBuildSystemInstructionsDeterministicAndPure(t *testing.T) {
	p := testProfile()
	lesson := testLesson()
	before := *lesson
	conv := &learner.ConversationContext{RecentTopics: []string{"shapes"}}

	a := BuildSystemInstructions(p, lesson, conv)
	b := BuildSystemInstructions(p, lesson, conv)
	if a != b {
		t.Error("output differs between identical calls")
	}
	if !reflect.DeepEqual(*lesson, before) {
		t.Error("lesson context was mutated")
	}
}

func TestBuildUserPrompt(t *testing.T) {
	if got := BuildUserPrompt("what is a half?", nil); got != "what is a half?" {
		t.Errorf("no lesson: got %q", got)
	}
	if got := BuildUserPrompt("what is a half?", testLesson()); got != "what is a half?" {
		t.Errorf("lesson without upload: got %q", got)
	}

	lesson := testLesson()
	lesson.UploadedContent = strings.Repeat("a", maxUploadedExcerpt+50)
	got := BuildUserPrompt("what is a half?", lesson)
	if !strings.Contains(got, "studying Fractions") {
		t.Errorf("missing topic framing: %q", got[:80])
	}
	if !strings.HasSuffix(got, "what is a half?") {
		t.Error("message should end the prompt")
	}
	if strings.Count(got, "a") > maxUploadedExcerpt+60 {
		t.Error("uploaded content not truncated")
	}
}

func TestSuggestedQuestions(t *testing.T) {
	p := testProfile()

	def := SuggestedQuestions(p, nil)
	if len(def) != 4 {
		t.Fatalf("defaults = %d, want 4", len(def))
	}

	lesson := testLesson()
	first := SuggestedQuestions(p, lesson)
	second := SuggestedQuestions(p, lesson)
	if !reflect.DeepEqual(first, second) {
		t.Error("suggestions not stable across calls")
	}
	if len(first) != maxSuggestions {
		t.Fatalf("len = %d, want %d", len(first), maxSuggestions)
	}
	if !strings.Contains(first[0], "Fractions") {
		t.Errorf("first suggestion should mention topic: %q", first[0])
	}
	if !strings.Contains(first[2], "numerator") {
		t.Errorf("expected key point suggestion, got %q", first[2])
	}

	// Mutating the returned slice must not leak into the defaults.
	def[0] = "changed"
	if SuggestedQuestions(p, nil)[0] == "changed" {
		t.Error("default suggestions were mutated")
	}

	p.Language = learner.LanguageArabic
	ar := SuggestedQuestions(p, &learner.LessonContext{})
	if ar[0] != defaultSuggestions[learner.LanguageArabic][0] {
		t.Errorf("expected Arabic defaults, got %q", ar[0])
	}
}
