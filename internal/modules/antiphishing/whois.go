package antiphishing

import (
	"context"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/likexian/whois"
	whoisparser "github.com/likexian/whois-parser"
	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/sync/singleflight"
)

const (
	whoisCacheSize = 4096
	whoisCacheTTL  = 24 * time.Hour
)

// DomainAge reports when a domain was registered. Implementations fail open:
// ok is false whenever the date is unknown.
type DomainAge interface {
	RegisteredAt(ctx context.Context, host string) (time.Time, bool)
}

type whoisEntry struct {
	created time.Time
	ok      bool
}

// WhoisAge resolves registration dates over WHOIS for the registrable domain
// of a host. Answers, including failures, are cached for a day.
type WhoisAge struct {
	timeout time.Duration
	logger  *zap.Logger
	query   func(domain string) (string, error)
	cache   *expirable.LRU[string, whoisEntry]
	group   singleflight.Group
}

func NewWhoisAge(timeout time.Duration, logger *zap.Logger) *WhoisAge {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client := whois.NewClient().SetTimeout(timeout)
	return &WhoisAge{
		timeout: timeout,
		logger:  logger,
		query:   func(domain string) (string, error) { return client.Whois(domain) },
		cache:   expirable.NewLRU[string, whoisEntry](whoisCacheSize, nil, whoisCacheTTL),
	}
}

func (w *WhoisAge) RegisteredAt(ctx context.Context, host string) (time.Time, bool) {
	domain, err := publicsuffix.EffectiveTLDPlusOne(strings.TrimSuffix(strings.ToLower(host), "."))
	if err != nil {
		return time.Time{}, false
	}
	if entry, ok := w.cache.Get(domain); ok {
		return entry.created, entry.ok
	}

	value, _, _ := w.group.Do(domain, func() (any, error) {
		entry := w.resolve(ctx, domain)
		w.cache.Add(domain, entry)
		return entry, nil
	})
	entry := value.(whoisEntry)
	return entry.created, entry.ok
}

func (w *WhoisAge) resolve(ctx context.Context, domain string) whoisEntry {
	type answer struct {
		raw string
		err error
	}
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	done := make(chan answer, 1)
	go func() {
		raw, err := w.query(domain)
		done <- answer{raw: raw, err: err}
	}()

	var got answer
	select {
	case got = <-done:
	case <-ctx.Done():
		w.logger.Warn("whois lookup timed out", zap.String("domain", domain))
		return whoisEntry{}
	}
	if got.err != nil {
		w.logger.Warn("whois lookup failed", zap.String("domain", domain), zap.Error(got.err))
		return whoisEntry{}
	}

	info, err := whoisparser.Parse(got.raw)
	if err != nil || info.Domain == nil {
		return whoisEntry{}
	}
	created, ok := parseWhoisDate(info.Domain.CreatedDate)
	return whoisEntry{created: created, ok: ok}
}

var whoisDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02-Jan-2006",
	"2006.01.02",
}

func parseWhoisDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range whoisDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
