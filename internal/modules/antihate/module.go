package antihate

import (
	"context"
	"sync/atomic"
	"time"

	"sentinel-guard/internal/config"
	"sentinel-guard/internal/storage"
	"sentinel-guard/internal/threat"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const cacheSize = 4096

// deleteSeverity is the lowest category weight that removes the message
// instead of warning the author.
const deleteSeverity = 0.7

type Source interface {
	ListBlockedWords(ctx context.Context, guildID string) ([]storage.BlockedWord, error)
}

type Result struct {
	threat.Result
	Match Match
}

// Module is the toxic content detector. Blocklists are read through a
// per-guild cache that expires after CacheTTLSeconds or on Invalidate.
type Module struct {
	source Source
	config config.ToxicConfig
	logger *zap.Logger
	cache  *expirable.LRU[string, []storage.BlockedWord]
	group  singleflight.Group
	// epoch advances on every Invalidate; loads that started before it are
	// not cached.
	epoch atomic.Uint64
}

func New(source Source, cfg config.ToxicConfig, logger *zap.Logger) *Module {
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Module{
		source: source,
		config: cfg,
		logger: logger,
		cache:  expirable.NewLRU[string, []storage.BlockedWord](cacheSize, nil, ttl),
	}
}

func (m *Module) Check(ctx context.Context, msg threat.Message) Result {
	if msg.Content == "" {
		return Result{Result: threat.None(threat.ToxicContent)}
	}

	words := m.words(ctx, msg.GuildID)
	match := MatchText(msg.Content, words, m.config.DetectBypasses)
	if !match.Detected {
		return Result{Result: threat.None(threat.ToxicContent)}
	}

	action := threat.Warned
	if match.Severity >= deleteSeverity {
		action = threat.Deleted
	}
	return Result{
		Result: threat.Result{
			Detected: true,
			Type:     threat.ToxicContent,
			Severity: threat.ClampSeverity(match.Severity),
			Action:   action,
			Details: map[string]any{
				"matched_word": match.Word,
				"category":     match.Category,
				"bypass":       match.UsedBypass,
			},
		},
		Match: match,
	}
}

// Invalidate drops the cached blocklist for guildID. An empty id drops every
// guild, since global words are merged into each guild's list.
func (m *Module) Invalidate(guildID string) {
	m.epoch.Add(1)
	m.group.Forget(guildID)
	if guildID == storage.GlobalGuild {
		m.cache.Purge()
		return
	}
	m.cache.Remove(guildID)
}

func (m *Module) words(ctx context.Context, guildID string) []storage.BlockedWord {
	if m.source == nil {
		return nil
	}
	if words, ok := m.cache.Get(guildID); ok {
		return words
	}
	value, err, _ := m.group.Do(guildID, func() (any, error) {
		started := m.epoch.Load()
		words, err := m.source.ListBlockedWords(ctx, guildID)
		if err != nil {
			return nil, err
		}
		if m.epoch.Load() == started {
			m.cache.Add(guildID, words)
		}
		return words, nil
	})
	if err != nil {
		m.logger.Warn("blocklist load failed", zap.String("guild_id", guildID), zap.Error(err))
		return nil
	}
	return value.([]storage.BlockedWord)
}
