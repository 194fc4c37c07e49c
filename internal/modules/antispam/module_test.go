package antispam

import (
	"strconv"
	"testing"
	"time"

	"sentinel-guard/internal/config"
	"sentinel-guard/internal/threat"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newModule(cfg config.SpamConfig) (*Module, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	return New(cfg, time.Hour, 100).WithClock(clock), clock
}

func message(content string) threat.Message {
	return threat.Message{ID: "m", GuildID: "g1", ChannelID: "c1", AuthorID: "u1", Content: content}
}

func TestSpamRateExceededOnSixthMessage(t *testing.T) {
	module, clock := newModule(config.SpamConfig{MaxMessagesPerWindow: 5, WindowSeconds: 5, DuplicateThreshold: 0.99})

	for i := 1; i <= 5; i++ {
		res := module.Check(message("distinct message number " + strconv.Itoa(i*7919)))
		require.False(t, res.RateExceeded, "message %d", i)
		clock.Advance(100 * time.Millisecond)
	}
	res := module.Check(message("something else entirely"))
	assert.True(t, res.Detected)
	assert.True(t, res.RateExceeded)
	assert.Equal(t, 6, res.MessageCount)
	assert.Equal(t, threat.Spam, res.Type)
	assert.Equal(t, 1.0, res.Severity)
}

func TestSpamDuplicateBelowRateCap(t *testing.T) {
	module, _ := newModule(config.SpamConfig{MaxMessagesPerWindow: 10, WindowSeconds: 5, DuplicateThreshold: 0.8})

	first := module.Check(message("buy my stuff"))
	assert.False(t, first.Detected)

	second := module.Check(message("buy my stuff"))
	assert.True(t, second.Detected)
	assert.True(t, second.DuplicateDetected)
	assert.False(t, second.RateExceeded)
	assert.Equal(t, 1.0, second.MaxSimilarity)
}

func TestSpamRepeatedHello(t *testing.T) {
	module, _ := newModule(config.SpamConfig{MaxMessagesPerWindow: 10, WindowSeconds: 5, DuplicateThreshold: 0.85})
	content := "hello hello hello hello hello hello"

	first := module.Check(message(content))
	assert.False(t, first.RateExceeded)
	assert.False(t, first.DuplicateDetected)

	second := module.Check(message(content))
	assert.True(t, second.DuplicateDetected)
}

func TestSpamWindowExpires(t *testing.T) {
	module, clock := newModule(config.SpamConfig{MaxMessagesPerWindow: 2, WindowSeconds: 5, DuplicateThreshold: 0.9})

	module.Check(message("one"))
	module.Check(message("two"))
	clock.Advance(6 * time.Second)

	res := module.Check(message("three"))
	assert.Equal(t, 1, res.MessageCount)
	assert.False(t, res.Detected)
}

func TestSpamWindowsArePerAuthor(t *testing.T) {
	module, _ := newModule(config.SpamConfig{MaxMessagesPerWindow: 1, WindowSeconds: 5, DuplicateThreshold: 0.9})

	module.Check(message("hi"))
	other := message("hi")
	other.AuthorID = "u2"
	res := module.Check(other)
	assert.Equal(t, 1, res.MessageCount)
	assert.False(t, res.Detected)
}

func TestSpamAction(t *testing.T) {
	module, _ := newModule(config.SpamConfig{MaxMessagesPerWindow: 1, WindowSeconds: 5, DuplicateThreshold: 0.9, Action: "mute"})
	module.Check(message("a"))
	res := module.Check(message("b"))
	assert.True(t, res.Detected)
	assert.Equal(t, threat.Muted, res.Action)
	assert.Equal(t, threat.Deleted, ActionFor("delete"))
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 0.0, Similarity("", ""))
	assert.Equal(t, 1.0, Similarity("abc", "abc"))
	assert.InDelta(t, 0.75, Similarity("abcd", "abce"), 1e-9)
	assert.Equal(t, 0.0, Similarity("abc", "xyz"))
}

func TestSpamRateLimitAboveTrackedHistory(t *testing.T) {
	module, clock := newModule(config.SpamConfig{MaxMessagesPerWindow: 60, WindowSeconds: 20, MaxTracked: 50})

	var res Result
	for i := 1; i <= 62; i++ {
		res = module.Check(message("burst " + strconv.Itoa(i*104729)))
		clock.Advance(100 * time.Millisecond)
	}
	assert.Equal(t, 62, res.MessageCount)
	assert.True(t, res.RateExceeded)
	assert.True(t, res.Detected)
}
