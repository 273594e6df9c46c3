package prompt

import (
	"fmt"
	"strings"

	"github.com/abhisek/studybuddy/internal/learner"
)

// maxUploadedExcerpt bounds how much uploaded lesson text is repeated in
// each turn.
const maxUploadedExcerpt = 1500

// BuildUserPrompt wraps the child's message with lesson framing when the
// lesson carries uploaded material. Otherwise the message is sent as is.
func BuildUserPrompt(message string, lesson *learner.LessonContext) string {
	if lesson == nil || strings.TrimSpace(lesson.UploadedContent) == "" {
		return message
	}

	topic := lesson.Topic
	if topic == "" {
		topic = lesson.Subject
	}
	if topic == "" {
		topic = "the uploaded lesson"
	}

	excerpt := []rune(strings.TrimSpace(lesson.UploadedContent))
	if len(excerpt) > maxUploadedExcerpt {
		excerpt = append(excerpt[:maxUploadedExcerpt], []rune("...")...)
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("The child is studying %s.\n", topic))
	b.WriteString("Lesson material:\n")
	b.WriteString(string(excerpt))
	b.WriteString("\n\nThe child asks:\n")
	b.WriteString(message)
	return b.String()
}
