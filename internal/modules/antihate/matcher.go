package antihate

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"sentinel-guard/internal/normalize"
	"sentinel-guard/internal/storage"
)

// shortWordRunes is the length at or below which a blocked word must match on
// word boundaries.
const shortWordRunes = 3

var categorySeverity = map[string]float64{
	"slur":       1.0,
	"hate":       0.8,
	"harassment": 0.8,
	"sexual":     0.7,
	"profanity":  0.5,
	"other":      0.4,
}

type Match struct {
	Detected   bool
	Word       string
	Category   string
	Severity   float64
	UsedBypass bool
}

// CategorySeverity returns the fixed weight for category, falling back to
// "other" for unknown categories.
func CategorySeverity(category string) float64 {
	if severity, ok := categorySeverity[strings.ToLower(category)]; ok {
		return severity
	}
	return categorySeverity["other"]
}

// MatchText checks text against words and returns the first blocked word it
// contains. When detectBypasses is false, a match that only exists after
// normalization is dropped unless the lowercased text contains the word as is.
func MatchText(text string, words []storage.BlockedWord, detectBypasses bool) Match {
	if len(words) == 0 || strings.TrimSpace(text) == "" {
		return Match{}
	}

	lowered := strings.ToLower(text)
	normalized := normalize.Normalize(text)
	compact := normalize.StripSeparators(normalized)
	spelled := joinSpelledOut(normalized)
	bypass := lowered != normalized

	for _, word := range words {
		target := normalize.Normalize(word.Word)
		if target == "" {
			continue
		}

		var inNormalized, inCompact bool
		if utf8.RuneCountInString(target) <= shortWordRunes {
			inNormalized = containsWord(normalized, target)
			if !inNormalized && spelled != normalized {
				inCompact = containsWord(spelled, target)
			}
		} else {
			inNormalized = strings.Contains(normalized, target)
			if !inNormalized {
				if compactTarget := normalize.StripSeparators(target); compactTarget != "" {
					inCompact = strings.Contains(compact, compactTarget)
				}
			}
		}
		if !inNormalized && !inCompact {
			continue
		}

		usedBypass := bypass || inCompact
		if usedBypass && !detectBypasses && !strings.Contains(lowered, strings.ToLower(word.Word)) {
			continue
		}

		return Match{
			Detected:   true,
			Word:       word.Word,
			Category:   word.Category,
			Severity:   CategorySeverity(word.Category),
			UsedBypass: usedBypass,
		}
	}
	return Match{}
}

// containsWord reports whether word occurs in text with no letter or digit
// directly on either side.
func containsWord(text, word string) bool {
	for offset := 0; offset < len(text); {
		idx := strings.Index(text[offset:], word)
		if idx < 0 {
			return false
		}
		start := offset + idx
		end := start + len(word)
		before, _ := utf8.DecodeLastRuneInString(text[:start])
		after, _ := utf8.DecodeRuneInString(text[end:])
		if (start == 0 || !isWordRune(before)) && (end == len(text) || !isWordRune(after)) {
			return true
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		offset = start + size
	}
	return false
}

// joinSpelledOut rewrites text as space-separated tokens of letters and digits,
// merging runs of single-rune tokens: "hey f.a.g" becomes "hey fag" while
// "if a game" is left as "if a game".
func joinSpelledOut(text string) string {
	tokens := strings.FieldsFunc(text, func(r rune) bool { return !isWordRune(r) })
	out := make([]string, 0, len(tokens))
	var run strings.Builder
	runLen := 0
	flush := func() {
		if runLen == 0 {
			return
		}
		out = append(out, run.String())
		run.Reset()
		runLen = 0
	}
	for _, token := range tokens {
		if utf8.RuneCountInString(token) == 1 {
			run.WriteString(token)
			runLen++
			continue
		}
		flush()
		out = append(out, token)
	}
	flush()
	return strings.Join(out, " ")
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
