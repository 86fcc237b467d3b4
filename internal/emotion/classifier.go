// Package emotion labels finalized utterances with a fixed emotion taxonomy.
// Classification is best effort: a lightweight model call first, then a
// deterministic keyword fallback, then neutral. It never fails and is always
// dispatched off the turn-handling path.
package emotion

import (
	"context"
	"strings"
)

// Label is one entry of the closed emotion taxonomy.
type Label string

const (
	Neutral      Label = "neutral"
	Happy        Label = "happy"
	Sad          Label = "sad"
	Angry        Label = "angry"
	Surprised    Label = "surprised"
	Curious      Label = "curious"
	Anxious      Label = "anxious"
	Tired        Label = "tired"
	Disappointed Label = "disappointed"
	Confused     Label = "confused"
)

// Result is the outcome of a classification. Reason is a short human-readable
// explanation surfaced to the client next to the transcript.
type Result struct {
	Emotion Label  `json:"emotion"`
	Reason  string `json:"reason"`
}

// Classifier labels a finalized utterance. Implementations must not return
// errors; degraded paths fall back internally.
type Classifier interface {
	Classify(ctx context.Context, text, speaker, language string) Result
}

var taxonomy = map[Label]bool{
	Neutral:      true,
	Happy:        true,
	Sad:          true,
	Angry:        true,
	Surprised:    true,
	Curious:      true,
	Anxious:      true,
	Tired:        true,
	Disappointed: true,
	Confused:     true,
}

// ValidLabel reports whether s is a member of the taxonomy.
func ValidLabel(s string) bool {
	return taxonomy[Label(strings.ToLower(strings.TrimSpace(s)))]
}

type keywordRow struct {
	label    Label
	keywords []string
}

// Keyword tables per language, checked in order so results are deterministic.
// These are calibration data, not logic; extend per language as transcripts
// accumulate.
var keywordRows = map[string][]keywordRow{
	"en": {
		{Angry, []string{"angry", "furious", "unacceptable", "frustrat", "fed up"}},
		{Disappointed, []string{"disappointed", "let down", "a shame", "expected better"}},
		{Sad, []string{"sad", "sorry to hear", "heartbroken", "unfortunate"}},
		{Anxious, []string{"worried", "nervous", "anxious", "afraid", "scared"}},
		{Tired, []string{"tired", "exhausted", "worn out", "drained"}},
		{Confused, []string{"confused", "don't understand", "not sure what you", "makes no sense"}},
		{Surprised, []string{"wow", "can't believe", "surprised", "no way", "really?"}},
		{Curious, []string{"curious", "i wonder", "tell me more", "what if"}},
		{Happy, []string{"happy", "glad", "great news", "wonderful", "thank you so much"}},
	},
	"ko": {
		{Angry, []string{"화가", "짜증", "불쾌", "용납"}},
		{Disappointed, []string{"실망", "아쉽", "기대했는데"}},
		{Sad, []string{"슬프", "안타깝", "유감", "속상"}},
		{Anxious, []string{"걱정", "불안", "두렵", "무서"}},
		{Tired, []string{"피곤", "지쳤", "힘들"}},
		{Confused, []string{"혼란", "이해가 안", "무슨 말인지"}},
		{Surprised, []string{"놀랐", "세상에", "정말요", "믿기지 않"}},
		{Curious, []string{"궁금", "더 알고 싶", "어떻게 된"}},
		{Happy, []string{"기쁘", "좋아요", "감사합니다", "행복", "다행"}},
	},
	"ja": {
		{Angry, []string{"怒", "イライラ", "許せ"}},
		{Disappointed, []string{"残念", "がっかり"}},
		{Sad, []string{"悲し", "つらい", "寂し"}},
		{Anxious, []string{"心配", "不安", "怖い"}},
		{Tired, []string{"疲れ", "くたくた"}},
		{Confused, []string{"混乱", "わかりません", "どういうこと"}},
		{Surprised, []string{"驚", "びっくり", "まさか"}},
		{Curious, []string{"気になり", "興味", "もっと聞かせて"}},
		{Happy, []string{"嬉し", "ありがとう", "よかった", "楽し"}},
	},
}

// FallbackClassify is the deterministic tail of the fallback chain: keyword
// match against the original text in any supported language, then neutral.
func FallbackClassify(text, language string) Result {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Result{Emotion: Neutral, Reason: "empty utterance"}
	}

	lowered := strings.ToLower(trimmed)
	langs := orderedLanguages(language)
	for _, lang := range langs {
		for _, row := range keywordRows[lang] {
			for _, kw := range row.keywords {
				if strings.Contains(lowered, kw) {
					return Result{Emotion: row.label, Reason: "keyword match: " + kw}
				}
			}
		}
	}
	return Result{Emotion: Neutral, Reason: "no strong emotional cues detected"}
}

// orderedLanguages puts the session language first, then the rest in a fixed
// order so cross-language matches stay deterministic.
func orderedLanguages(language string) []string {
	primary := strings.ToLower(strings.TrimSpace(language))
	if i := strings.IndexAny(primary, "-_"); i > 0 {
		primary = primary[:i]
	}
	out := make([]string, 0, len(keywordRows))
	if _, ok := keywordRows[primary]; ok {
		out = append(out, primary)
	}
	for _, lang := range []string{"en", "ko", "ja"} {
		if lang != primary {
			out = append(out, lang)
		}
	}
	return out
}
