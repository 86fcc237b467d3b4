package emotion

import (
	"context"
	"strings"
	"testing"
)

func TestFallbackClassifyNeverEmpty(t *testing.T) {
	cases := []string{"", "   ", "zqxwv 12345", "완전히 무관한 내용입니다"}
	for _, text := range cases {
		res := FallbackClassify(text, "ko")
		if res.Emotion == "" || res.Reason == "" {
			t.Fatalf("FallbackClassify(%q) returned empty fields: %+v", text, res)
		}
		if !ValidLabel(string(res.Emotion)) {
			t.Fatalf("FallbackClassify(%q) label %q outside taxonomy", text, res.Emotion)
		}
	}
}

func TestFallbackClassifyDefaultsNeutral(t *testing.T) {
	res := FallbackClassify("the quarterly report totals forty pages", "en")
	if res.Emotion != Neutral {
		t.Fatalf("emotion = %q, want neutral", res.Emotion)
	}
}

func TestFallbackClassifyKeywords(t *testing.T) {
	cases := []struct {
		text string
		lang string
		want Label
	}{
		{"정말 실망했습니다", "ko", Disappointed},
		{"너무 걱정돼요", "ko", Anxious},
		{"I am so frustrated with this process", "en", Angry},
		{"Wow, I can't believe it worked", "en", Surprised},
		{"本当に嬉しいです", "ja", Happy},
	}
	for _, tc := range cases {
		res := FallbackClassify(tc.text, tc.lang)
		if res.Emotion != tc.want {
			t.Fatalf("FallbackClassify(%q, %s) = %q, want %q", tc.text, tc.lang, res.Emotion, tc.want)
		}
	}
}

func TestFallbackClassifyCrossLanguage(t *testing.T) {
	// Session language Korean, utterance leaked in English: tables for the
	// other supported languages still apply.
	res := FallbackClassify("I'm exhausted today", "ko")
	if res.Emotion != Tired {
		t.Fatalf("emotion = %q, want tired", res.Emotion)
	}
}

func TestParseStructuredReply(t *testing.T) {
	res, err := parseStructuredReply("```json\n{\"emotion\":\"Happy\",\"reason\":\"positive greeting\"}\n```")
	if err != nil {
		t.Fatalf("parseStructuredReply() error = %v", err)
	}
	if res.Emotion != Happy || res.Reason != "positive greeting" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestParseStructuredReplyRejectsUnknownLabel(t *testing.T) {
	if _, err := parseStructuredReply(`{"emotion":"ecstatic","reason":"x"}`); err == nil {
		t.Fatalf("expected error for out-of-taxonomy label")
	}
}

func TestModelClassifierFallsBackWithoutKey(t *testing.T) {
	c := NewModelClassifier(ModelConfig{})
	res := c.Classify(context.Background(), "정말 기쁘네요", "ai", "ko")
	if res.Emotion != Happy {
		t.Fatalf("emotion = %q, want happy via fallback", res.Emotion)
	}
	if !strings.HasPrefix(res.Reason, "keyword match") {
		t.Fatalf("reason = %q, want keyword-match fallback", res.Reason)
	}
}
