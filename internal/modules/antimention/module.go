package antimention

import (
	"time"

	"sentinel-guard/internal/config"
	"sentinel-guard/internal/modules/antispam"
	"sentinel-guard/internal/threat"
	"sentinel-guard/internal/utils"
)

const everyoneSeverity = 0.9

type Result struct {
	threat.Result
	MessageMentions int
	WindowMentions  int
	Everyone        bool
}

type Module struct {
	config  config.MentionConfig
	windows *utils.TTLStore[*utils.SlidingWindow[int]]
	clock   utils.Clock
}

func New(cfg config.MentionConfig, ttl time.Duration, cacheSize int) *Module {
	return &Module{
		config:  cfg,
		windows: utils.NewTTLStore[*utils.SlidingWindow[int]](cacheSize, ttl),
		clock:   utils.RealClock{},
	}
}

func (m *Module) WithClock(clock utils.Clock) *Module {
	m.clock = clock
	return m
}

// Check evaluates the mentions in msg against the per-message cap and the
// author's rolling window. The window sum excludes msg itself until after the
// checks; the message's mention count is then recorded.
func (m *Module) Check(msg threat.Message) Result {
	current := msg.Mentions.Count()
	if current == 0 {
		return Result{Result: threat.None(threat.MentionSpam)}
	}

	window := m.windows.GetOrCreate(msg.GuildID+":"+msg.AuthorID, func() *utils.SlidingWindow[int] {
		return utils.NewSlidingWindow[int](time.Duration(m.config.WindowSeconds)*time.Second, 0)
	})
	history := window.Observe(m.clock.Now(), current)

	prior := 0
	for _, entry := range history {
		prior += entry.Payload
	}
	total := prior + current

	perMessage := m.config.MaxMentionsPerMessage > 0 && current > m.config.MaxMentionsPerMessage
	perWindow := m.config.MaxMentionsPerWindow > 0 && total > m.config.MaxMentionsPerWindow
	everyone := msg.Mentions.Everyone

	severity := 0.0
	if m.config.MaxMentionsPerMessage > 0 {
		severity = float64(current) / float64(m.config.MaxMentionsPerMessage)
	}
	if m.config.MaxMentionsPerWindow > 0 {
		if ratio := float64(total) / float64(m.config.MaxMentionsPerWindow); ratio > severity {
			severity = ratio
		}
	}
	severity = threat.ClampSeverity(severity)
	if everyone && severity < everyoneSeverity {
		severity = everyoneSeverity
	}

	return Result{
		Result: threat.Result{
			Detected: perMessage || perWindow || everyone,
			Type:     threat.MentionSpam,
			Severity: severity,
			Action:   antispam.ActionFor(m.config.Action),
			Details: map[string]any{
				"message_mentions": current,
				"window_mentions":  total,
				"window_seconds":   m.config.WindowSeconds,
				"everyone":         everyone,
			},
		},
		MessageMentions: current,
		WindowMentions:  total,
		Everyone:        everyone,
	}
}
