package antihate

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"sentinel-guard/internal/config"
	"sentinel-guard/internal/storage"
	"sentinel-guard/internal/threat"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSource struct {
	words []storage.BlockedWord
	err   error
	calls atomic.Int32
	// loading, when set, is signalled on entry and the load waits on release.
	loading chan struct{}
	release chan struct{}
}

func (f *fakeSource) ListBlockedWords(ctx context.Context, guildID string) ([]storage.BlockedWord, error) {
	f.calls.Add(1)
	words := f.words
	if f.loading != nil {
		f.loading <- struct{}{}
		<-f.release
	}
	return words, f.err
}

var idiot = []storage.BlockedWord{{Word: "idiot", Category: "harassment"}}

func TestMatchBypassVariants(t *testing.T) {
	variants := []string{
		"you idiot",
		"you i.d.i.o.t",
		"you i d i o t",
		"you 1d10t",
		"you \u0456d\u0456\u043et",
		"you \uff49\uff44\uff49\uff4f\uff54",
		"you i\u200bdiot",
		"you i\u0301d\u0308iot",
		"you iiiidiot",
	}
	for _, text := range variants {
		match := MatchText(text, idiot, true)
		assert.True(t, match.Detected, "variant %q", text)
		assert.Equal(t, 0.8, match.Severity, "variant %q", text)
	}
}

func TestMatchBypassDisabledKeepsPlainMatches(t *testing.T) {
	assert.True(t, MatchText("you idiot", idiot, false).Detected)
	assert.False(t, MatchText("you 1d10t", idiot, false).Detected)
	assert.False(t, MatchText("you i.d.i.o.t", idiot, false).Detected)

	// A bypass elsewhere in the text does not discard a literal match.
	match := MatchText("idiot l0l", idiot, false)
	assert.True(t, match.Detected)
	assert.True(t, match.UsedBypass)
}

func TestMatchShortWordNeedsBoundary(t *testing.T) {
	words := []storage.BlockedWord{{Word: "fag", Category: "slur"}}

	assert.False(t, MatchText("i love my fagottino", words, true).Detected)
	assert.False(t, MatchText("if a game starts", words, true).Detected)
	assert.False(t, MatchText("ifagame", words, true).Detected)

	for _, text := range []string{"f a g", "f.a.g", "hey f-a-g lol"} {
		match := MatchText(text, words, true)
		assert.True(t, match.Detected, text)
		assert.True(t, match.UsedBypass, text)
	}
	assert.False(t, MatchText("hey f a g", words, false).Detected)

	match := MatchText("you fag!", words, true)
	assert.True(t, match.Detected)
	assert.Equal(t, 1.0, match.Severity)
}

func TestMatchFirstWordWinsAndEmptyList(t *testing.T) {
	words := []storage.BlockedWord{
		{Word: "stupid", Category: "profanity"},
		{Word: "idiot", Category: "slur"},
	}
	match := MatchText("stupid idiot", words, true)
	assert.Equal(t, "stupid", match.Word)
	assert.Equal(t, 0.5, match.Severity)

	assert.False(t, MatchText("stupid idiot", nil, true).Detected)
}

func TestCategorySeverity(t *testing.T) {
	assert.Equal(t, 1.0, CategorySeverity("SLUR"))
	assert.Equal(t, 0.7, CategorySeverity("sexual"))
	assert.Equal(t, 0.4, CategorySeverity("unknown"))
}

func TestModuleCachesAndInvalidates(t *testing.T) {
	source := &fakeSource{words: idiot}
	module := New(source, config.ToxicConfig{DetectBypasses: true, CacheTTLSeconds: 60}, zap.NewNop())
	ctx := context.Background()
	msg := threat.Message{GuildID: "g1", AuthorID: "u1", Content: "what an idiot"}

	res := module.Check(ctx, msg)
	require.True(t, res.Detected)
	assert.Equal(t, threat.ToxicContent, res.Type)
	assert.Equal(t, threat.Deleted, res.Action)

	module.Check(ctx, msg)
	assert.Equal(t, int32(1), source.calls.Load())

	source.words = nil
	module.Invalidate("g1")
	assert.False(t, module.Check(ctx, msg).Detected)
	assert.Equal(t, int32(2), source.calls.Load())
}

func TestModuleLowSeverityWarns(t *testing.T) {
	source := &fakeSource{words: []storage.BlockedWord{{Word: "darn", Category: "profanity"}}}
	module := New(source, config.ToxicConfig{DetectBypasses: true}, zap.NewNop())
	res := module.Check(context.Background(), threat.Message{GuildID: "g1", Content: "darn it"})
	require.True(t, res.Detected)
	assert.Equal(t, threat.Warned, res.Action)
}

func TestModuleStoreErrorFailsOpen(t *testing.T) {
	source := &fakeSource{err: errors.New("db down")}
	module := New(source, config.ToxicConfig{DetectBypasses: true}, zap.NewNop())
	res := module.Check(context.Background(), threat.Message{GuildID: "g1", Content: "idiot"})
	assert.False(t, res.Detected)
}

func TestInvalidateDuringLoadDropsStaleList(t *testing.T) {
	source := &fakeSource{words: idiot, loading: make(chan struct{}), release: make(chan struct{})}
	module := New(source, config.ToxicConfig{DetectBypasses: true, CacheTTLSeconds: 60}, zap.NewNop())
	ctx := context.Background()
	msg := threat.Message{GuildID: "g1", Content: "what an idiot"}

	done := make(chan Result, 1)
	go func() { done <- module.Check(ctx, msg) }()
	<-source.loading
	module.Invalidate("g1")
	close(source.release)
	require.True(t, (<-done).Detected)

	source.loading = nil
	source.words = nil
	assert.False(t, module.Check(ctx, msg).Detected)
	assert.Equal(t, int32(2), source.calls.Load())
}
