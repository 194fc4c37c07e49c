// Package detection sequences the threat detectors for each inbound event.
// Messages run scam, spam, mention and toxic checks in that order and stop at
// the first detection; joins run raid detection followed by account analysis.
package detection

import (
	"context"
	"time"

	"sentinel-guard/internal/config"
	"sentinel-guard/internal/metrics"
	"sentinel-guard/internal/modules/accountcheck"
	"sentinel-guard/internal/modules/antihate"
	"sentinel-guard/internal/modules/antimention"
	"sentinel-guard/internal/modules/antiphishing"
	"sentinel-guard/internal/modules/antiraid"
	"sentinel-guard/internal/modules/antispam"
	"sentinel-guard/internal/regexsafe"
	"sentinel-guard/internal/threat"
	"sentinel-guard/internal/utils"

	"go.uber.org/zap"
)

const (
	detectorScam    = "scam"
	detectorSpam    = "spam"
	detectorMention = "mention"
	detectorToxic   = "toxic"
	detectorRaid    = "raid"
	detectorAccount = "account"
)

type Deps struct {
	Blocklist  antihate.Source
	Registry   antiphishing.Registry
	Reputation antiphishing.Reputation
	DomainAge  antiphishing.DomainAge
	Patterns   *regexsafe.Cache
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
	Clock      utils.Clock
}

// MessageEvent is a created or edited message together with its author.
// ExemptRoleIDs extends the configured exempt roles for this guild.
type MessageEvent struct {
	Message       threat.Message
	Author        threat.Member
	Edited        bool
	ExemptRoleIDs []string
}

type Engine struct {
	config  config.DetectionConfig
	logger  *zap.Logger
	metrics *metrics.Metrics
	clock   utils.Clock

	scam    *antiphishing.Module
	spam    *antispam.Module
	mention *antimention.Module
	toxic   *antihate.Module
	raid    *antiraid.Module
	account *accountcheck.Analyzer
}

func New(cfg config.DetectionConfig, deps Deps) *Engine {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = utils.RealClock{}
	}
	if deps.Patterns == nil {
		deps.Patterns = regexsafe.NewCache(deps.Logger)
	}
	ttl := time.Duration(cfg.WindowTTLMinutes) * time.Minute
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	return &Engine{
		config:  cfg,
		logger:  deps.Logger,
		metrics: deps.Metrics,
		clock:   deps.Clock,
		scam:    antiphishing.New(cfg.Scam, deps.Registry, deps.Reputation, deps.Patterns, deps.Logger).WithDomainAge(deps.DomainAge).WithClock(deps.Clock),
		spam:    antispam.New(cfg.Spam, ttl, cfg.WindowCacheSize).WithClock(deps.Clock),
		mention: antimention.New(cfg.Mention, ttl, cfg.WindowCacheSize).WithClock(deps.Clock),
		toxic:   antihate.New(deps.Blocklist, cfg.Toxic, deps.Logger),
		raid:    antiraid.New(cfg.Raid, ttl, cfg.WindowCacheSize).WithClock(deps.Clock),
		account: accountcheck.New(deps.Patterns),
	}
}

// EvaluateMessage returns the first positive detection for event, or a result
// with Detected false when the author is exempt or nothing matched.
func (e *Engine) EvaluateMessage(ctx context.Context, event MessageEvent) threat.Result {
	if e.IsExempt(event.Author, event.ExemptRoleIDs) {
		return threat.Result{}
	}
	msg := event.Message

	if e.config.Scam.Enabled {
		if res := e.run(detectorScam, func() threat.Result { return e.scam.Check(ctx, msg.Content).Result }); res.Detected {
			return e.detected(res)
		}
	}
	if e.config.Spam.Enabled && !event.Edited {
		if res := e.run(detectorSpam, func() threat.Result { return e.spam.Check(msg).Result }); res.Detected {
			return e.detected(res)
		}
	}
	if e.config.Mention.Enabled {
		if res := e.run(detectorMention, func() threat.Result { return e.mention.Check(msg).Result }); res.Detected {
			return e.detected(res)
		}
	}
	if e.config.Toxic.Enabled {
		if res := e.run(detectorToxic, func() threat.Result { return e.toxic.Check(ctx, msg).Result }); res.Detected {
			return e.detected(res)
		}
	}
	return threat.Result{}
}

// EvaluateJoin runs raid detection and then account analysis for member. The
// raid verdict wins when both fire; the account reasons are attached to it.
func (e *Engine) EvaluateJoin(ctx context.Context, member threat.Member) threat.Result {
	var raid threat.Result
	if e.config.Raid.Enabled {
		raid = e.run(detectorRaid, func() threat.Result { return e.raid.Check(member).Result })
	}

	raidMode := e.config.Raid.Enabled && e.raid.RaidModeActive(member.GuildID)
	accountCfg := e.config.Account
	var account threat.Result
	if raidMode || accountCfg.Enabled() {
		if raidMode && !accountCfg.Enabled() {
			accountCfg = config.AccountConfig{MinAccountAgeDays: e.config.Raid.NewAccountDays, FlagDefaultAvatar: true}
		}
		now := e.clock.Now()
		account = e.run(detectorAccount, func() threat.Result { return e.account.Analyze(member, accountCfg, now).Result })
	}

	switch {
	case raid.Detected:
		if account.Detected {
			details := make(map[string]any, len(raid.Details)+1)
			for key, value := range raid.Details {
				details[key] = value
			}
			details["account_reasons"] = account.Details["reasons"]
			raid.Details = details
		}
		return e.detected(raid)
	case account.Detected:
		return e.detected(account)
	default:
		return threat.Result{}
	}
}

// AnalyzeMembers scores existing members in bulk, e.g. for a manual sweep.
func (e *Engine) AnalyzeMembers(ctx context.Context, members []threat.Member) ([]accountcheck.Result, error) {
	return e.account.AnalyzeAll(ctx, members, e.config.Account, e.clock.Now())
}

// IsExempt reports whether member is elevated or holds an exempt role.
func (e *Engine) IsExempt(member threat.Member, extraRoles []string) bool {
	if member.Elevated {
		return true
	}
	for _, role := range member.Roles {
		for _, exempt := range e.config.ExemptRoleIDs {
			if role == exempt {
				return true
			}
		}
		for _, exempt := range extraRoles {
			if role == exempt {
				return true
			}
		}
	}
	return false
}

func (e *Engine) RaidModeActive(guildID string) bool {
	return e.raid.RaidModeActive(guildID)
}

func (e *Engine) EndRaidMode(guildID string) {
	e.raid.EndRaidMode(guildID)
}

// InvalidateBlocklist drops the cached blocklist after an admin change.
func (e *Engine) InvalidateBlocklist(guildID string) {
	e.toxic.Invalidate(guildID)
}

// InvalidateDomain drops the cached registry verdict after an admin change.
func (e *Engine) InvalidateDomain(domain string) {
	e.scam.InvalidateDomain(domain)
}

// run calls detect and converts a panic into "no detection" for that
// detector only.
func (e *Engine) run(name string, detect func() threat.Result) (res threat.Result) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("detector panic recovered", zap.String("detector", name), zap.Any("panic", r))
			e.metrics.DetectorPanic(name)
			res = threat.Result{}
		}
	}()
	return detect()
}

func (e *Engine) detected(res threat.Result) threat.Result {
	e.metrics.Detection(res.Type)
	return res
}
