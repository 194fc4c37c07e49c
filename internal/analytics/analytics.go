// Package analytics aggregates stored threat and audit logs into per-guild
// reports.
package analytics

import (
	"context"
	"sort"
	"time"

	"sentinel-guard/internal/storage"
)

type Source interface {
	ListThreatLogs(ctx context.Context, guildID string, since time.Time, limit int) ([]storage.ThreatLog, error)
	ListAuditLogs(ctx context.Context, guildID string, since time.Time) ([]storage.AuditLog, error)
}

type Service struct {
	store Source
}

func New(store Source) *Service {
	return &Service{store: store}
}

type Offender struct {
	UserID string
	Count  int
}

type Report struct {
	Total       int
	ByType      map[string]int
	ByAction    map[string]int
	ByLevel     map[string]int
	MaxSeverity float64
	// TopOffenders is ordered by count, then user id.
	TopOffenders []Offender
}

func (s *Service) Report(ctx context.Context, guildID string, since time.Time, topN int) (Report, error) {
	threats, err := s.store.ListThreatLogs(ctx, guildID, since, 0)
	if err != nil {
		return Report{}, err
	}
	audits, err := s.store.ListAuditLogs(ctx, guildID, since)
	if err != nil {
		return Report{}, err
	}

	report := Report{
		ByType:   make(map[string]int),
		ByAction: make(map[string]int),
		ByLevel:  make(map[string]int),
	}
	perUser := make(map[string]int)
	for _, log := range threats {
		report.Total++
		report.ByType[log.ThreatType]++
		report.ByAction[log.ActionTaken]++
		if log.Severity > report.MaxSeverity {
			report.MaxSeverity = log.Severity
		}
		if log.UserID != "" {
			perUser[log.UserID]++
		}
	}
	for _, log := range audits {
		report.ByLevel[log.Level]++
	}

	report.TopOffenders = topOffenders(perUser, topN)
	return report, nil
}

func topOffenders(perUser map[string]int, n int) []Offender {
	out := make([]Offender, 0, len(perUser))
	for userID, count := range perUser {
		out = append(out, Offender{UserID: userID, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].UserID < out[j].UserID
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
