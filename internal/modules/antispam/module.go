package antispam

import (
	"strings"
	"time"
	"unicode/utf8"

	"sentinel-guard/internal/config"
	"sentinel-guard/internal/threat"
	"sentinel-guard/internal/utils"

	"github.com/agnivade/levenshtein"
)

const maxCompareRunes = 512

type Result struct {
	threat.Result
	MessageCount      int
	MaxSimilarity     float64
	RateExceeded      bool
	DuplicateDetected bool
}

type Module struct {
	config  config.SpamConfig
	windows *utils.TTLStore[*utils.SlidingWindow[string]]
	clock   utils.Clock
}

func New(cfg config.SpamConfig, ttl time.Duration, cacheSize int) *Module {
	if cfg.MaxTracked <= 0 {
		cfg.MaxTracked = 50
	}
	// the window must hold enough history to exceed the rate limit
	if cfg.MaxTracked <= cfg.MaxMessagesPerWindow {
		cfg.MaxTracked = cfg.MaxMessagesPerWindow + 1
	}
	return &Module{
		config:  cfg,
		windows: utils.NewTTLStore[*utils.SlidingWindow[string]](cacheSize, ttl),
		clock:   utils.RealClock{},
	}
}

func (m *Module) WithClock(clock utils.Clock) *Module {
	m.clock = clock
	return m
}

// Check counts msg against its author's window and compares its content with
// the author's recent messages. The message is recorded before returning.
func (m *Module) Check(msg threat.Message) Result {
	window := m.windows.GetOrCreate(msg.GuildID+":"+msg.AuthorID, func() *utils.SlidingWindow[string] {
		return utils.NewSlidingWindow[string](time.Duration(m.config.WindowSeconds)*time.Second, m.config.MaxTracked)
	})

	content := prepare(msg.Content)
	history := window.Observe(m.clock.Now(), content)

	count := len(history) + 1
	maxSimilarity := 0.0
	for _, entry := range history {
		if sim := Similarity(content, entry.Payload); sim > maxSimilarity {
			maxSimilarity = sim
		}
	}

	rateExceeded := m.config.MaxMessagesPerWindow > 0 && count > m.config.MaxMessagesPerWindow
	duplicate := m.config.DuplicateThreshold > 0 && maxSimilarity >= m.config.DuplicateThreshold

	rateRatio := 0.0
	if m.config.MaxMessagesPerWindow > 0 {
		rateRatio = float64(count) / float64(m.config.MaxMessagesPerWindow)
	}
	severity := threat.ClampSeverity(rateRatio)
	if maxSimilarity > severity {
		severity = threat.ClampSeverity(maxSimilarity)
	}

	res := Result{
		Result: threat.Result{
			Detected: rateExceeded || duplicate,
			Type:     threat.Spam,
			Severity: severity,
			Action:   ActionFor(m.config.Action),
			Details: map[string]any{
				"message_count":      count,
				"window_seconds":     m.config.WindowSeconds,
				"max_similarity":     maxSimilarity,
				"rate_exceeded":      rateExceeded,
				"duplicate_detected": duplicate,
			},
		},
		MessageCount:      count,
		MaxSimilarity:     maxSimilarity,
		RateExceeded:      rateExceeded,
		DuplicateDetected: duplicate,
	}
	return res
}

// ActionFor maps the configured spam action to MUTED or DELETED.
func ActionFor(value string) threat.Action {
	if strings.EqualFold(value, "mute") {
		return threat.Muted
	}
	return threat.Deleted
}

// Similarity returns 1 - levenshtein(a, b) / max(len(a), len(b)) in runes.
// Empty input is never similar to anything.
func Similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	longest := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > longest {
		longest = n
	}
	distance := levenshtein.ComputeDistance(a, b)
	return 1 - float64(distance)/float64(longest)
}

func prepare(content string) string {
	content = strings.ToLower(strings.TrimSpace(content))
	if utf8.RuneCountInString(content) <= maxCompareRunes {
		return content
	}
	return string([]rune(content)[:maxCompareRunes])
}
