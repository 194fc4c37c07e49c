package accountcheck

import (
	"context"
	"fmt"
	"time"

	"sentinel-guard/internal/config"
	"sentinel-guard/internal/regexsafe"
	"sentinel-guard/internal/threat"

	"golang.org/x/sync/errgroup"
)

const (
	ageWeight    = 0.4
	avatarWeight = 0.2
	nameWeight   = 0.3

	batchLimit = 16
)

type Result struct {
	threat.Result
	AccountAgeDays int
	Reasons        []string
}

// Analyzer scores member snapshots. It holds no per-member state and is safe
// for concurrent use.
type Analyzer struct {
	patterns *regexsafe.Cache
}

func New(patterns *regexsafe.Cache) *Analyzer {
	return &Analyzer{patterns: patterns}
}

func (a *Analyzer) Analyze(member threat.Member, cfg config.AccountConfig, now time.Time) Result {
	ageDays := -1
	if !member.AccountCreatedAt.IsZero() {
		ageDays = int(now.Sub(member.AccountCreatedAt).Hours() / 24)
	}

	var reasons []string
	severity := 0.0

	if cfg.MinAccountAgeDays > 0 && ageDays >= 0 && ageDays < cfg.MinAccountAgeDays {
		reasons = append(reasons, fmt.Sprintf("account is %d days old (minimum %d)", ageDays, cfg.MinAccountAgeDays))
		severity += ageWeight
	}
	if cfg.FlagDefaultAvatar && !member.AvatarPresent {
		reasons = append(reasons, "default avatar")
		severity += avatarWeight
	}
	for _, pattern := range cfg.SuspiciousNamePatterns {
		if a.patterns.MatchString(pattern, member.Username) {
			reasons = append(reasons, "username matches suspicious pattern "+pattern)
			severity += nameWeight
			break
		}
	}

	return Result{
		Result: threat.Result{
			Detected: len(reasons) > 0,
			Type:     threat.SuspiciousAccount,
			Severity: threat.ClampSeverity(severity),
			Action:   threat.Flagged,
			Details: map[string]any{
				"account_age_days": ageDays,
				"reasons":          reasons,
			},
		},
		AccountAgeDays: ageDays,
		Reasons:        reasons,
	}
}

// AnalyzeAll scores members concurrently, preserving input order.
func (a *Analyzer) AnalyzeAll(ctx context.Context, members []threat.Member, cfg config.AccountConfig, now time.Time) ([]Result, error) {
	results := make([]Result, len(members))
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(batchLimit)
	for i := range members {
		group.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = a.Analyze(members[i], cfg, now)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
