package prompt

import (
	"fmt"

	"github.com/abhisek/studybuddy/internal/learner"
)

const maxSuggestions = 4

var defaultSuggestions = map[learner.Language][]string{
	learner.LanguageEnglish: {
		"Can you help me with math?",
		"Can you tell me a fun science fact?",
		"Can you help me practice reading?",
		"Can you quiz me on something I learned?",
	},
	learner.LanguageArabic: {
		"هل يمكنك مساعدتي في الرياضيات؟",
		"هل يمكنك أن تخبرني بمعلومة علمية ممتعة؟",
		"هل يمكنك مساعدتي في التدرب على القراءة؟",
		"هل يمكنك أن تختبرني في شيء تعلمته؟",
	},
}

type topicTemplates struct {
	explain, example, remember, keyPoint string
}

var templates = map[learner.Language]topicTemplates{
	learner.LanguageEnglish: {
		explain:  "Can you explain %s in a simple way?",
		example:  "Can you give me an example of %s?",
		remember: "What is the most important thing to remember about %s?",
		keyPoint: "What does \"%s\" mean?",
	},
	learner.LanguageArabic: {
		explain:  "هل يمكنك شرح %s بطريقة بسيطة؟",
		example:  "هل يمكنك إعطائي مثالاً على %s؟",
		remember: "ما أهم شيء يجب أن أتذكره عن %s؟",
		keyPoint: "ماذا يعني \"%s\"؟",
	},
}

// SuggestedQuestions returns follow-up questions for the current lesson,
// or a fixed default set when there is no lesson topic.
func SuggestedQuestions(p learner.UserProfile, lesson *learner.LessonContext) []string {
	lang := p.Language
	if _, ok := templates[lang]; !ok {
		lang = learner.LanguageEnglish
	}

	if lesson == nil || lesson.Topic == "" {
		return append([]string(nil), defaultSuggestions[lang]...)
	}

	t := templates[lang]
	out := []string{
		fmt.Sprintf(t.explain, lesson.Topic),
		fmt.Sprintf(t.example, lesson.Topic),
	}
	for _, kp := range lesson.KeyPoints {
		if len(out) >= maxSuggestions-1 {
			break
		}
		out = append(out, fmt.Sprintf(t.keyPoint, kp))
	}
	out = append(out, fmt.Sprintf(t.remember, lesson.Topic))
	return out
}
