// Package textfilter cleans raw model output before it reaches the client.
// Realtime models occasionally leak stage directions, meta headers, and
// English "reasoning" lines into transcripts for non-English sessions; the
// rules here strip those deterministically, with no model call.
package textfilter

import (
	"regexp"
	"strings"
	"unicode"
)

// Tunables for the leak heuristics. Hand-tuned against recorded transcripts;
// revisit once a larger corpus is available.
const (
	// Bracketed spans longer than this are treated as real content, not
	// stage directions.
	maxStageDirectionRunes = 48

	// A line is considered leaked reasoning when its Latin word count is at
	// least this multiple of its target-script character count.
	latinWordRatio = 3
)

var (
	parenSpanRe    = regexp.MustCompile(`\([^()]*\)|（[^（）]*）`)
	bracketSpanRe  = regexp.MustCompile(`\[[^\[\]]*\]|【[^【】]*】`)
	asteriskSpanRe = regexp.MustCompile(`\*[^*\n]+\*`)
	boldHeaderRe   = regexp.MustCompile(`(?m)^\s*\*\*[^*\n]{1,60}\*\*:?\s*`)
	innerSpaceRe   = regexp.MustCompile(`[ \t]+`)
)

type scriptRange struct{ lo, hi rune }

// rule is one per-language row. Adding a language is a data change:
// its script ranges, the ranges unique to overlapping non-target scripts,
// and (for Latin-script targets) leaked meta-cognition phrase prefixes.
type rule struct {
	script        []scriptRange
	foreignScript []scriptRange
	metaPrefixes  []string
}

var (
	hangulRanges = []scriptRange{{0x1100, 0x11FF}, {0x3130, 0x318F}, {0xAC00, 0xD7A3}}
	kanaRanges   = []scriptRange{{0x3040, 0x30FF}, {0x31F0, 0x31FF}}
	hanRanges    = []scriptRange{{0x3400, 0x4DBF}, {0x4E00, 0x9FFF}}

	latinMetaPrefixes = []string{
		"i should",
		"i need to",
		"i will respond",
		"i'll respond",
		"let me think",
		"let me respond",
		"my response",
		"my answer",
		"the user is",
		"the user wants",
		"as an ai",
		"thinking about",
		"okay, the user",
	}

	rules = map[string]rule{
		"ko": {script: hangulRanges},
		"ja": {
			script:        append(append([]scriptRange{}, kanaRanges...), hanRanges...),
			foreignScript: hangulRanges,
		},
		"zh": {
			// Kana is unique to Japanese; its presence marks a line as
			// non-target even though the ideographs overlap.
			script:        hanRanges,
			foreignScript: append(append([]scriptRange{}, kanaRanges...), hangulRanges...),
		},
		"en": {metaPrefixes: latinMetaPrefixes},
	}
)

// Clean applies the language's filter rules to a raw fragment and returns the
// speakable remainder, possibly empty. Callers must skip emitting empty
// deltas. Clean is idempotent on already clean target-language text.
func Clean(raw, language string) string {
	if raw == "" {
		return ""
	}

	out := stripShortSpans(parenSpanRe, raw)
	out = stripShortSpans(bracketSpanRe, out)
	// Bold headers before single-asterisk spans so `**Header**` is not
	// half-eaten by the action-span rule.
	out = boldHeaderRe.ReplaceAllString(out, "")
	out = stripShortSpans(asteriskSpanRe, out)

	r, ok := rules[normalizeLanguage(language)]
	if !ok {
		r = rules["en"]
	}

	lines := strings.Split(out, "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(innerSpaceRe.ReplaceAllString(line, " "))
		if line == "" {
			continue
		}
		if !keepLine(line, r) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

func keepLine(line string, r rule) bool {
	if len(r.script) > 0 {
		if countScriptRunes(line, r.foreignScript) > 0 {
			return false
		}
		scriptCount := countScriptRunes(line, r.script)
		if scriptCount == 0 {
			return false
		}
		if countLatinWords(line) >= latinWordRatio*scriptCount {
			return false
		}
		return true
	}
	lower := strings.ToLower(line)
	for _, prefix := range r.metaPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return false
		}
	}
	return true
}

func stripShortSpans(re *regexp.Regexp, s string) string {
	return re.ReplaceAllStringFunc(s, func(m string) string {
		if len([]rune(m)) <= maxStageDirectionRunes+2 {
			return ""
		}
		return m
	})
}

func countScriptRunes(s string, ranges []scriptRange) int {
	if len(ranges) == 0 {
		return 0
	}
	n := 0
	for _, r := range s {
		for _, sr := range ranges {
			if r >= sr.lo && r <= sr.hi {
				n++
				break
			}
		}
	}
	return n
}

func countLatinWords(s string) int {
	n := 0
	inWord := false
	for _, r := range s {
		isLatin := r < 0x0250 && unicode.IsLetter(r)
		if isLatin && !inWord {
			n++
		}
		inWord = isLatin
	}
	return n
}

func normalizeLanguage(language string) string {
	language = strings.ToLower(strings.TrimSpace(language))
	if i := strings.IndexAny(language, "-_"); i > 0 {
		language = language[:i]
	}
	return language
}
