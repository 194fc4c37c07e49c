// Package normalize folds adversarial chat text into a canonical lowercase form
// so blocklist and pattern checks see through common evasion tricks.
//
// Pipeline order:
//  1. lowercase
//  2. strip zero-width and other invisible code points
//  3. canonical decomposition, drop combining marks (zalgo, diacritics)
//  4. fold homoglyphs and full-width forms to ASCII
//  5. decode leetspeak
//  6. collapse runs of three or more identical runes to two
//
// Homoglyph folding precedes leetspeak decoding and repeat collapsing runs
// last. No stage emits runes an earlier stage would change, which keeps
// Normalize idempotent.
package normalize

import (
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

var invisible = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x00AD, Hi: 0x00AD, Stride: 1}, // soft hyphen
		{Lo: 0x034F, Hi: 0x034F, Stride: 1}, // combining grapheme joiner
		{Lo: 0x061C, Hi: 0x061C, Stride: 1}, // arabic letter mark
		{Lo: 0x115F, Hi: 0x1160, Stride: 1}, // hangul fillers
		{Lo: 0x17B4, Hi: 0x17B5, Stride: 1},
		{Lo: 0x180B, Hi: 0x180E, Stride: 1}, // mongolian selectors
		{Lo: 0x200B, Hi: 0x200F, Stride: 1}, // zero-width space through RTL mark
		{Lo: 0x202A, Hi: 0x202E, Stride: 1}, // bidi embedding
		{Lo: 0x2060, Hi: 0x2064, Stride: 1}, // word joiner group
		{Lo: 0x2066, Hi: 0x206F, Stride: 1}, // bidi isolates, deprecated formatting
		{Lo: 0x3164, Hi: 0x3164, Stride: 1}, // hangul filler
		{Lo: 0xFE00, Hi: 0xFE0F, Stride: 1}, // variation selectors
		{Lo: 0xFEFF, Hi: 0xFEFF, Stride: 1}, // BOM
		{Lo: 0xFFA0, Hi: 0xFFA0, Stride: 1},
		{Lo: 0xFFF9, Hi: 0xFFFB, Stride: 1},
	},
	R32: []unicode.Range32{
		{Lo: 0x1D173, Hi: 0x1D17A, Stride: 1}, // musical formatting
		{Lo: 0xE0000, Hi: 0xE007F, Stride: 1}, // tags
		{Lo: 0xE0100, Hi: 0xE01EF, Stride: 1}, // variation selectors supplement
	},
}

// Transformer chains are stateful, so each goroutine takes its own from a pool.
var (
	stripPool = sync.Pool{New: func() any {
		return runes.Remove(runes.In(invisible))
	}}
	markPool = sync.Pool{New: func() any {
		return transform.Chain(
			norm.NFD,
			runes.Remove(runes.In(unicode.Mn)),
			runes.Remove(runes.In(unicode.Me)),
			norm.NFC,
		)
	}}
	separatorPool = sync.Pool{New: func() any {
		return runes.Remove(runes.Predicate(isSeparator))
	}}
)

// Normalize returns the canonical form of text. It never fails: if a transform
// errors, the input to that stage is passed through unchanged.
func Normalize(text string) string {
	if text == "" {
		return ""
	}

	s := strings.ToLower(text)
	s = apply(&stripPool, s)
	s = apply(&markPool, s)
	s = foldHomoglyphs(s)
	s = decodeLeet(s)
	return collapseRepeats(s)
}

// StripSeparators removes whitespace and the punctuation commonly inserted to
// break up blocked words, e.g. "b.a.d" or "b a d". Apply it to normalized text.
func StripSeparators(text string) string {
	if text == "" {
		return ""
	}
	return apply(&separatorPool, text)
}

// BypassAttempted reports whether normalization changed the lowercased text,
// meaning the author used at least one evasion technique.
func BypassAttempted(text string) bool {
	return strings.ToLower(text) != Normalize(text)
}

func apply(pool *sync.Pool, s string) string {
	t := pool.Get().(transform.Transformer)
	defer pool.Put(t)
	t.Reset()
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func isSeparator(r rune) bool {
	if unicode.IsSpace(r) || unicode.IsPunct(r) {
		return true
	}
	switch r {
	case '+', '=', '^', '`', '|', '~', '<', '>':
		return true
	}
	return false
}

func foldHomoglyphs(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r > unicode.MaxASCII {
			if folded, ok := homoglyphs[r]; ok {
				b.WriteString(folded)
				continue
			}
			if w := width.Fold.String(string(r)); len(w) == 1 && w[0] <= unicode.MaxASCII {
				b.WriteString(strings.ToLower(w))
				continue
			}
		}
		b.WriteRune(r)
	}
	return b.String()
}

func decodeLeet(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if decoded, ok := leet[r]; ok {
			b.WriteRune(decoded)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func collapseRepeats(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prev := rune(-1)
	run := 0
	for _, r := range s {
		if r == prev {
			run++
		} else {
			prev = r
			run = 1
		}
		if run <= 2 {
			b.WriteRune(r)
		}
	}
	return b.String()
}
