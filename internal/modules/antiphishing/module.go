package antiphishing

import (
	"context"
	"regexp"
	"strings"
	"time"

	"sentinel-guard/internal/config"
	"sentinel-guard/internal/normalize"
	"sentinel-guard/internal/regexsafe"
	"sentinel-guard/internal/storage"
	"sentinel-guard/internal/threat"
	"sentinel-guard/internal/utils"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/net/idna"
	"golang.org/x/sync/singleflight"
)

const (
	ReasonPattern     = "pattern"
	ReasonFakeDomain  = "fake_domain"
	ReasonRegistry    = "registry"
	ReasonNewDomain   = "new_domain"
	ReasonShortener   = "shortener"
	ReasonExternalAPI = "external_api"

	registryCacheSize = 8192
)

type Registry interface {
	FindScamDomain(ctx context.Context, domain string) (storage.ScamDomain, bool, error)
}

type Match struct {
	URL      string
	Host     string
	Reason   string
	Severity float64
}

type Result struct {
	threat.Result
	// MatchReason is the reason of the first match in the message.
	MatchReason string
	Matches     []Match
}

type registryEntry struct {
	found    bool
	category string
}

type Module struct {
	config     config.ScamConfig
	registry   Registry
	reputation Reputation
	domainAge  DomainAge
	clock      utils.Clock
	logger     *zap.Logger

	safe         map[string]struct{}
	shorteners   map[string]struct{}
	textPatterns []*regexp.Regexp
	urlPatterns  []*regexp.Regexp
	fakePatterns []*regexp.Regexp

	cache *expirable.LRU[string, registryEntry]
	group singleflight.Group
}

// New builds the scam link detector. registry and reputation may be nil; the
// reputation service is only consulted when UseExternalAPI is set.
func New(cfg config.ScamConfig, registry Registry, reputation Reputation, patterns *regexsafe.Cache, logger *zap.Logger) *Module {
	if logger == nil {
		logger = zap.NewNop()
	}
	if patterns == nil {
		patterns = regexsafe.NewCache(logger)
	}
	ttl := time.Duration(cfg.RegistryTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	extra := patterns.CompileAll(cfg.ExtraPatterns)
	return &Module{
		config:       cfg,
		registry:     registry,
		reputation:   reputation,
		clock:        utils.RealClock{},
		logger:       logger,
		safe:         utils.DomainSet(safeDomains, cfg.ExtraSafeDomains),
		shorteners:   utils.DomainSet(shortenerDomains),
		textPatterns: append(patterns.CompileAll(textPatterns), extra...),
		urlPatterns:  append(patterns.CompileAll(urlPatterns), extra...),
		fakePatterns: patterns.CompileAll(fakeDomainPatterns),
		cache:        expirable.NewLRU[string, registryEntry](registryCacheSize, nil, ttl),
	}
}

func (m *Module) WithClock(clock utils.Clock) *Module {
	if clock != nil {
		m.clock = clock
	}
	return m
}

// WithDomainAge enables the newly-registered-domain rule when CheckDomainAge
// is set.
func (m *Module) WithDomainAge(age DomainAge) *Module {
	m.domainAge = age
	return m
}

// Check inspects content for scam phrases and every http(s) link in it. A link
// on the safe list is skipped before any other rule, including the external
// lookup. Each other link is recorded by the first rule it matches.
func (m *Module) Check(ctx context.Context, content string) Result {
	res := Result{Result: threat.None(threat.ScamLink)}
	if strings.TrimSpace(content) == "" {
		return res
	}

	text := utils.StripURLs(content)
	if phrase, ok := m.matchText(text); ok {
		res.add(Match{Reason: ReasonPattern, Severity: patternSeverity, URL: phrase})
	}

	seen := make(map[string]struct{})
	for _, raw := range utils.ExtractURLs(content) {
		normalized, host, err := utils.NormalizeURL(raw)
		if err != nil || host == "" {
			continue
		}
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}

		if utils.DomainMatch(host, m.safe) {
			continue
		}
		if match, ok := m.checkURL(ctx, normalized, host); ok {
			res.add(match)
		}
	}

	if res.Detected {
		urls := make([]string, 0, len(res.Matches))
		for _, match := range res.Matches {
			if match.Host != "" {
				urls = append(urls, match.URL)
			}
		}
		res.Details = map[string]any{
			"match_reason": res.MatchReason,
			"urls":         urls,
			"matches":      len(res.Matches),
		}
	}
	return res
}

// InvalidateDomain drops a cached registry verdict after an admin change.
func (m *Module) InvalidateDomain(domain string) {
	m.cache.Remove(strings.TrimSuffix(strings.ToLower(strings.TrimSpace(domain)), "."))
}

func (m *Module) matchText(text string) (string, bool) {
	if strings.TrimSpace(text) == "" {
		return "", false
	}
	candidates := []string{strings.ToLower(text), normalize.Normalize(text)}
	for _, re := range m.textPatterns {
		for _, candidate := range candidates {
			if phrase := re.FindString(candidate); phrase != "" {
				return phrase, true
			}
		}
	}
	return "", false
}

func (m *Module) checkURL(ctx context.Context, normalized, host string) (Match, bool) {
	match := Match{URL: normalized, Host: host}

	for _, re := range m.urlPatterns {
		if re.MatchString(normalized) {
			match.Reason, match.Severity = ReasonPattern, patternSeverity
			return match, true
		}
	}

	if m.isFakeDomain(host) {
		match.Reason, match.Severity = ReasonFakeDomain, fakeDomainSeverity
		return match, true
	}

	for _, candidate := range utils.ParentDomains(host) {
		if entry := m.lookup(ctx, candidate); entry.found {
			match.Reason, match.Severity = ReasonRegistry, RegistrySeverity(entry.category)
			return match, true
		}
	}

	if m.isNewDomain(ctx, host) {
		match.Reason, match.Severity = ReasonNewDomain, newDomainSeverity
		return match, true
	}

	if m.config.BlockShorteners && utils.DomainMatch(host, m.shorteners) {
		match.Reason, match.Severity = ReasonShortener, shortenerSeverity
		return match, true
	}

	if m.config.UseExternalAPI && m.reputation != nil && m.reputation.IsMalicious(ctx, host) {
		match.Reason, match.Severity = ReasonExternalAPI, externalSeverity
		return match, true
	}
	return Match{}, false
}

// isFakeDomain matches typosquat patterns, platform domains embedded as
// leading labels of another host, and internationalized hosts whose homoglyph-folded
// form is a safe domain.
func (m *Module) isFakeDomain(host string) bool {
	for _, re := range m.fakePatterns {
		for _, found := range re.FindAllString(host, -1) {
			if _, ok := brandSpellings[found]; !ok {
				return true
			}
		}
	}
	for _, platform := range platformDomains {
		if strings.HasPrefix(host, platform+".") || strings.Contains(host, "."+platform+".") {
			return true
		}
	}
	display, err := idna.ToUnicode(host)
	if err != nil || display == host {
		return false
	}
	return utils.DomainMatch(normalize.Normalize(display), m.safe)
}

func (m *Module) isNewDomain(ctx context.Context, host string) bool {
	if !m.config.CheckDomainAge || m.domainAge == nil || m.config.NewDomainDays <= 0 {
		return false
	}
	registered, ok := m.domainAge.RegisteredAt(ctx, host)
	if !ok {
		return false
	}
	return m.clock.Now().Sub(registered) < time.Duration(m.config.NewDomainDays)*24*time.Hour
}

func (m *Module) lookup(ctx context.Context, domain string) registryEntry {
	if m.registry == nil {
		return registryEntry{}
	}
	if entry, ok := m.cache.Get(domain); ok {
		return entry
	}
	value, err, _ := m.group.Do(domain, func() (any, error) {
		found, ok, err := m.registry.FindScamDomain(ctx, domain)
		if err != nil {
			return registryEntry{}, err
		}
		entry := registryEntry{found: ok, category: found.Category}
		m.cache.Add(domain, entry)
		return entry, nil
	})
	if err != nil {
		m.logger.Warn("scam registry lookup failed", zap.String("domain", domain), zap.Error(err))
		return registryEntry{}
	}
	return value.(registryEntry)
}

func (r *Result) add(match Match) {
	if !r.Detected {
		r.Detected = true
		r.MatchReason = match.Reason
		r.Action = threat.Deleted
	}
	r.Matches = append(r.Matches, match)
	if match.Severity > r.Severity {
		r.Severity = threat.ClampSeverity(match.Severity)
	}
}
