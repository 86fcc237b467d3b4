package textfilter

import "testing"

func TestCleanStripsStageDirections(t *testing.T) {
	got := Clean("(pausing)안녕하세요", "ko")
	if got != "안녕하세요" {
		t.Fatalf("Clean() = %q, want %q", got, "안녕하세요")
	}
}

func TestCleanIdempotentOnCleanText(t *testing.T) {
	cases := []struct {
		text string
		lang string
	}{
		{"안녕하세요, 오늘 회의를 시작하겠습니다.", "ko"},
		{"こんにちは、よろしくお願いします。", "ja"},
		{"Good morning, shall we begin the review?", "en"},
	}
	for _, tc := range cases {
		once := Clean(tc.text, tc.lang)
		if once != tc.text {
			t.Fatalf("Clean(%q, %s) = %q, want unchanged", tc.text, tc.lang, once)
		}
		if twice := Clean(once, tc.lang); twice != once {
			t.Fatalf("Clean not idempotent for %q: %q != %q", tc.text, twice, once)
		}
	}
}

func TestCleanDropsLatinReasoningForKorean(t *testing.T) {
	raw := "The user wants me to greet them politely in Korean so I should respond now\n안녕하세요!"
	got := Clean(raw, "ko")
	if got != "안녕하세요!" {
		t.Fatalf("Clean() = %q, want only the Korean line", got)
	}
}

func TestCleanDropsLinesWithoutTargetScript(t *testing.T) {
	if got := Clean("Okay here is my answer", "ko"); got != "" {
		t.Fatalf("Clean() = %q, want empty", got)
	}
}

func TestCleanStripsBoldHeaders(t *testing.T) {
	raw := "**상황 설명:** 안녕하세요 반갑습니다"
	got := Clean(raw, "ko")
	if got != "안녕하세요 반갑습니다" {
		t.Fatalf("Clean() = %q", got)
	}
}

func TestCleanKeepsLongBracketedContent(t *testing.T) {
	long := "(이 괄호 안의 내용은 무대 지시가 아니라 실제 대화의 일부로 취급될 만큼 충분히 긴 문장입니다 그래서 제거되면 안 됩니다)"
	if got := Clean(long, "ko"); got == "" {
		t.Fatalf("long bracketed span should survive, got empty")
	}
}

func TestCleanKanaDisambiguatesChineseTarget(t *testing.T) {
	// Shared ideographs: the kana marks this line as Japanese, not Chinese.
	raw := "会議を始めます\n我们开始开会吧"
	got := Clean(raw, "zh")
	if got != "我们开始开会吧" {
		t.Fatalf("Clean() = %q, want only the Chinese line", got)
	}
}

func TestCleanLatinTargetMetaPrefixes(t *testing.T) {
	raw := "I should acknowledge their concern first\nThat deadline sounds tough, tell me more."
	got := Clean(raw, "en")
	if got != "That deadline sounds tough, tell me more." {
		t.Fatalf("Clean() = %q", got)
	}
}

func TestCleanCollapsesWhitespace(t *testing.T) {
	got := Clean("안녕하세요    반갑습니다", "ko")
	if got != "안녕하세요 반갑습니다" {
		t.Fatalf("Clean() = %q", got)
	}
}

func TestCleanEmptyInput(t *testing.T) {
	if got := Clean("", "ko"); got != "" {
		t.Fatalf("Clean(\"\") = %q", got)
	}
}
