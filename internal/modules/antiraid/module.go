package antiraid

import (
	"strings"
	"sync"
	"time"

	"sentinel-guard/internal/config"
	"sentinel-guard/internal/threat"
	"sentinel-guard/internal/utils"
)

const newAccountBoost = 1.2

type Join struct {
	UserID           string
	AccountCreatedAt time.Time
}

type Result struct {
	threat.Result
	JoinCount       int
	NewAccountCount int
	NewAccount      bool
	RaidModeActive  bool
	// Activated is true only for the join that switched raid mode on.
	Activated bool
}

type guildState struct {
	mu        sync.Mutex
	joins     *utils.SlidingWindow[Join]
	active    bool
	startedAt time.Time
}

type Module struct {
	config  config.RaidConfig
	guilds  *utils.TTLStore[*guildState]
	clock   utils.Clock
	window  time.Duration
	mode    time.Duration
	newSpan time.Duration
}

func New(cfg config.RaidConfig, ttl time.Duration, cacheSize int) *Module {
	mode := time.Duration(cfg.RaidModeMinutes) * time.Minute
	if ttl < mode {
		ttl = mode
	}
	return &Module{
		config:  cfg,
		guilds:  utils.NewTTLStore[*guildState](cacheSize, ttl),
		clock:   utils.RealClock{},
		window:  time.Duration(cfg.WindowSeconds) * time.Second,
		mode:    mode,
		newSpan: time.Duration(cfg.NewAccountDays) * 24 * time.Hour,
	}
}

func (m *Module) WithClock(clock utils.Clock) *Module {
	m.clock = clock
	return m
}

// Check records member's join in the guild window and reports whether the
// guild is under a join burst. Raid mode expires RaidModeMinutes after it was
// activated, regardless of later joins.
func (m *Module) Check(member threat.Member) Result {
	if member.GuildID == "" {
		return Result{Result: threat.None(threat.Raid)}
	}

	state := m.guilds.GetOrCreate(member.GuildID, func() *guildState {
		return &guildState{joins: utils.NewSlidingWindow[Join](m.window, 0)}
	})

	now := m.clock.Now()
	state.mu.Lock()
	defer state.mu.Unlock()

	m.expireLocked(state, now)
	joins := state.joins.Push(now, Join{UserID: member.ID, AccountCreatedAt: member.AccountCreatedAt})

	newCount := 0
	for _, join := range joins {
		if m.isNew(join.Payload.AccountCreatedAt, now) {
			newCount++
		}
	}
	joinCount := len(joins)

	detected := m.config.MaxJoinsPerWindow > 0 && joinCount >= m.config.MaxJoinsPerWindow
	activated := false
	if detected && !state.active {
		state.active = true
		state.startedAt = now
		activated = true
	}

	severity := 0.0
	if m.config.MaxJoinsPerWindow > 0 {
		severity = float64(joinCount) / float64(m.config.MaxJoinsPerWindow)
	}
	if newCount*2 > joinCount {
		severity *= newAccountBoost
	}

	isNew := m.isNew(member.AccountCreatedAt, now)
	action := threat.Flagged
	if strings.EqualFold(m.config.Action, "kick_new") && state.active && isNew {
		action = threat.Kicked
	}

	return Result{
		Result: threat.Result{
			Detected: detected,
			Type:     threat.Raid,
			Severity: threat.ClampSeverity(severity),
			Action:   action,
			Details: map[string]any{
				"join_count":        joinCount,
				"new_account_count": newCount,
				"window_seconds":    m.config.WindowSeconds,
				"raid_mode":         state.active,
				"raid_action":       m.config.Action,
				"activated":         activated,
			},
		},
		JoinCount:       joinCount,
		NewAccountCount: newCount,
		NewAccount:      isNew,
		RaidModeActive:  state.active,
		Activated:       activated,
	}
}

// RaidModeActive reports whether guildID is currently in raid mode.
func (m *Module) RaidModeActive(guildID string) bool {
	state, ok := m.guilds.Get(guildID)
	if !ok {
		return false
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	m.expireLocked(state, m.clock.Now())
	return state.active
}

// EndRaidMode clears raid mode for guildID ahead of its expiry.
func (m *Module) EndRaidMode(guildID string) {
	state, ok := m.guilds.Get(guildID)
	if !ok {
		return
	}
	state.mu.Lock()
	state.active = false
	state.startedAt = time.Time{}
	state.mu.Unlock()
}

func (m *Module) expireLocked(state *guildState, now time.Time) {
	if state.active && now.Sub(state.startedAt) >= m.mode {
		state.active = false
		state.startedAt = time.Time{}
	}
}

func (m *Module) isNew(createdAt, now time.Time) bool {
	if createdAt.IsZero() || m.newSpan <= 0 {
		return false
	}
	return now.Sub(createdAt) < m.newSpan
}
