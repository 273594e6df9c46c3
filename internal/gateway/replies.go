package gateway

import (
	"github.com/abhisek/studybuddy/internal/learner"
	"github.com/abhisek/studybuddy/internal/llm"
	"github.com/abhisek/studybuddy/internal/safety"
)

// replySet holds every child-facing line the gateway can return instead of
// model text, for one language.
type replySet struct {
	blocked         map[safety.Reason]string
	upstreamBlocked string
	substituted     string
	rateLimited     string
	failed          map[llm.ErrorTag]string
}

var replies = map[learner.Language]replySet{
	learner.LanguageEnglish: {
		blocked: map[safety.Reason]string{
			safety.ReasonNone:             "Let's talk about something else. What would you like to learn today?",
			safety.ReasonPII:              "Let's keep personal things like your name, address, phone number and school private. Is there something you'd like to learn about instead?",
			safety.ReasonSelfHarm:         "It sounds like you might be going through something hard. Please talk to a grown-up you trust, like a parent or teacher, right away. They care about you and can help.",
			safety.ReasonManipulation:     "I'm Buddy, your learning friend, and I'm here to help you learn! What would you like to explore today?",
			safety.ReasonTopic:            "That's not something I can talk about. Let's pick a fun learning topic instead, like space or animals!",
			safety.ReasonProfanity:        "Let's use kind words with each other. What would you like to learn about?",
			safety.ReasonLinks:            "Let's keep our chat about learning. What would you like to explore?",
			safety.ReasonLength:           "That's a lot of words! Can you ask me in a shorter way?",
			safety.ReasonComplexity:       "Let's keep things simple. What would you like to learn about?",
			safety.ReasonEducationalValue: "Let's talk about something we can learn together. What are you curious about?",
		},
		upstreamBlocked: "Hmm, let me think of another way to explain that. Could you ask me in a different way?",
		substituted:     "Let's get back to learning! What would you like to explore next?",
		rateLimited:     "Whoa, you're fast! Let's slow down a little. Try again in a moment.",
		failed: map[llm.ErrorTag]string{
			llm.TagInvalidCredential: "I'm having trouble waking up right now. Please ask a grown-up to check my settings.",
			llm.TagQuotaExceeded:     "I've done a lot of thinking today and need a rest. Let's learn more a bit later!",
			llm.TagRateLimited:       "Lots of friends are learning with me right now. Can you try again in a moment?",
			llm.TagUnavailable:       "I can't reach my thinking cap right now. Let's try again in a little bit!",
			llm.TagTimeout:           "I took too long to think about that one. Can you ask me again?",
			llm.TagRequestFailed:     "Oops, something went wrong on my side. Let's try that again!",
		},
	},
	learner.LanguageArabic: {
		blocked: map[safety.Reason]string{
			safety.ReasonNone:             "لنتحدث عن شيء آخر. ماذا تود أن تتعلم اليوم؟",
			safety.ReasonPII:              "لنحافظ على خصوصية معلوماتك الشخصية مثل اسمك وعنوانك ورقم هاتفك ومدرستك. هل هناك شيء تود أن تتعلمه بدلاً من ذلك؟",
			safety.ReasonSelfHarm:         "يبدو أنك تمر بشيء صعب. من فضلك تحدث الآن مع شخص كبير تثق به، مثل أحد والديك أو معلمك. هم يهتمون بك ويستطيعون مساعدتك.",
			safety.ReasonManipulation:     "أنا بادي، صديقك في التعلم، وأنا هنا لمساعدتك على التعلم! ماذا تود أن تستكشف اليوم؟",
			safety.ReasonTopic:            "هذا موضوع لا أستطيع التحدث عنه. لنختر موضوعاً ممتعاً للتعلم بدلاً منه، مثل الفضاء أو الحيوانات!",
			safety.ReasonProfanity:        "لنستخدم كلمات لطيفة مع بعضنا. ماذا تود أن تتعلم؟",
			safety.ReasonLinks:            "لنجعل حديثنا عن التعلم. ماذا تود أن تستكشف؟",
			safety.ReasonLength:           "هذه كلمات كثيرة! هل يمكنك أن تسألني بطريقة أقصر؟",
			safety.ReasonComplexity:       "لنجعل الأمور بسيطة. ماذا تود أن تتعلم؟",
			safety.ReasonEducationalValue: "لنتحدث عن شيء نتعلمه معاً. ما الذي يثير فضولك؟",
		},
		upstreamBlocked: "حسناً، دعني أفكر في طريقة أخرى لشرح ذلك. هل يمكنك أن تسألني بطريقة مختلفة؟",
		substituted:     "لنعد إلى التعلم! ماذا تود أن تستكشف بعد ذلك؟",
		rateLimited:     "واو، أنت سريع! لنبطئ قليلاً. حاول مرة أخرى بعد لحظة.",
		failed: map[llm.ErrorTag]string{
			llm.TagInvalidCredential: "أواجه مشكلة في الاستيقاظ الآن. من فضلك اطلب من شخص كبير أن يتحقق من إعداداتي.",
			llm.TagQuotaExceeded:     "لقد فكرت كثيراً اليوم وأحتاج إلى استراحة. لنتعلم المزيد لاحقاً!",
			llm.TagRateLimited:       "الكثير من الأصدقاء يتعلمون معي الآن. هل يمكنك المحاولة مرة أخرى بعد لحظة؟",
			llm.TagUnavailable:       "لا أستطيع الوصول إلى قبعة التفكير الآن. لنحاول مرة أخرى بعد قليل!",
			llm.TagTimeout:           "استغرقت وقتاً طويلاً في التفكير. هل يمكنك أن تسألني مرة أخرى؟",
			llm.TagRequestFailed:     "عذراً، حدث خطأ من جهتي. لنحاول مرة أخرى!",
		},
	},
}

func repliesFor(lang learner.Language) replySet {
	if r, ok := replies[lang]; ok {
		return r
	}
	return replies[learner.LanguageEnglish]
}

func (r replySet) blockedReply(reason safety.Reason) string {
	if s, ok := r.blocked[reason]; ok {
		return s
	}
	return r.blocked[safety.ReasonNone]
}

func (r replySet) failedReply(tag llm.ErrorTag) string {
	if s, ok := r.failed[tag]; ok {
		return s
	}
	return r.failed[llm.TagRequestFailed]
}
