package antiphishing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"sentinel-guard/internal/config"
	"sentinel-guard/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRegistry struct {
	domains map[string]string
	err     error
	calls   atomic.Int32
}

func (f *fakeRegistry) FindScamDomain(ctx context.Context, domain string) (storage.ScamDomain, bool, error) {
	f.calls.Add(1)
	if f.err != nil {
		return storage.ScamDomain{}, false, f.err
	}
	category, ok := f.domains[domain]
	if !ok {
		return storage.ScamDomain{}, false, nil
	}
	return storage.ScamDomain{Domain: domain, Category: category}, true, nil
}

type fakeReputation struct {
	malicious bool
	calls     atomic.Int32
}

func (f *fakeReputation) IsMalicious(ctx context.Context, domain string) bool {
	f.calls.Add(1)
	return f.malicious
}

func newModule(cfg config.ScamConfig, registry Registry, reputation Reputation) *Module {
	return New(cfg, registry, reputation, nil, zap.NewNop())
}

func TestScamPhraseWithoutLink(t *testing.T) {
	module := newModule(config.ScamConfig{}, nil, nil)

	res := module.Check(context.Background(), "j0in our d1sc0rd-nitro giveaway now!!!")
	require.True(t, res.Detected)
	assert.Equal(t, ReasonPattern, res.MatchReason)
	assert.Equal(t, 0.9, res.Severity)

	assert.False(t, module.Check(context.Background(), "see you at the meetup tonight").Detected)
}

func TestAllowlistTakesPrecedence(t *testing.T) {
	reputation := &fakeReputation{malicious: true}
	registry := &fakeRegistry{domains: map[string]string{"discord.com": "phishing"}}
	module := newModule(config.ScamConfig{UseExternalAPI: true, BlockShorteners: true}, registry, reputation)

	res := module.Check(context.Background(), "https://discord.com/nitro-giveaway/claim https://cdn.discordapp.com/free-nitro.png")
	assert.False(t, res.Detected)
	assert.Equal(t, int32(0), reputation.calls.Load())
	assert.Equal(t, int32(0), registry.calls.Load())
}

func TestExtraSafeDomains(t *testing.T) {
	module := newModule(config.ScamConfig{BlockShorteners: true, ExtraSafeDomains: []string{"bit.ly"}}, nil, nil)
	assert.False(t, module.Check(context.Background(), "https://bit.ly/abc").Detected)
}

func TestURLKeywordPattern(t *testing.T) {
	module := newModule(config.ScamConfig{}, nil, nil)
	res := module.Check(context.Background(), "look https://example.net/free-nitro/claim")
	require.True(t, res.Detected)
	assert.Equal(t, ReasonPattern, res.MatchReason)
	require.Len(t, res.Matches, 1)
	assert.Equal(t, "example.net", res.Matches[0].Host)
}

func TestFakeDomains(t *testing.T) {
	module := newModule(config.ScamConfig{}, nil, nil)

	for _, content := range []string{
		"https://dlscord-app.com/login",
		"https://steamcomunity.ru/tradeoffer",
		"https://d\u0456scord.com/login",
		"https://discord.com.verify-account.ru/",
	} {
		res := module.Check(context.Background(), content)
		assert.True(t, res.Detected, content)
		assert.Equal(t, ReasonFakeDomain, res.MatchReason, content)
		assert.Equal(t, 0.95, res.Severity, content)
	}
}

func TestRegistryLookupIsCached(t *testing.T) {
	registry := &fakeRegistry{domains: map[string]string{"evil.example": "phishing", "meh.example": "other"}}
	module := newModule(config.ScamConfig{}, registry, nil)
	ctx := context.Background()

	res := module.Check(ctx, "https://login.evil.example/x")
	require.True(t, res.Detected)
	assert.Equal(t, ReasonRegistry, res.MatchReason)
	assert.Equal(t, 1.0, res.Severity)
	calls := registry.calls.Load()

	module.Check(ctx, "https://login.evil.example/x")
	assert.Equal(t, calls, registry.calls.Load())

	res = module.Check(ctx, "https://meh.example")
	assert.Equal(t, 0.7, res.Severity)

	delete(registry.domains, "evil.example")
	module.InvalidateDomain("evil.example")
	assert.False(t, module.Check(ctx, "https://evil.example/").Detected)
}

func TestRegistryErrorFailsOpen(t *testing.T) {
	module := newModule(config.ScamConfig{}, &fakeRegistry{err: errors.New("db down")}, nil)
	assert.False(t, module.Check(context.Background(), "https://unknown.example").Detected)
}

func TestShorteners(t *testing.T) {
	off := newModule(config.ScamConfig{}, nil, nil)
	assert.False(t, off.Check(context.Background(), "https://bit.ly/abc").Detected)

	on := newModule(config.ScamConfig{BlockShorteners: true}, nil, nil)
	res := on.Check(context.Background(), "https://bit.ly/abc")
	require.True(t, res.Detected)
	assert.Equal(t, ReasonShortener, res.MatchReason)
	assert.Equal(t, 0.5, res.Severity)
}

func TestSeverityIsMaxAcrossLinks(t *testing.T) {
	registry := &fakeRegistry{domains: map[string]string{"evil.example": "phishing"}}
	module := newModule(config.ScamConfig{BlockShorteners: true}, registry, nil)

	res := module.Check(context.Background(), "https://bit.ly/x and https://github.com/x and https://evil.example/y")
	require.True(t, res.Detected)
	assert.Equal(t, ReasonShortener, res.MatchReason)
	assert.Len(t, res.Matches, 2)
	assert.Equal(t, 1.0, res.Severity)
	assert.Equal(t, []string{"https://bit.ly/x", "https://evil.example/y"}, res.Details["urls"])
}

func TestExternalAPIOnlyWhenEnabled(t *testing.T) {
	reputation := &fakeReputation{malicious: true}

	off := newModule(config.ScamConfig{}, nil, reputation)
	assert.False(t, off.Check(context.Background(), "https://unknown.example").Detected)
	assert.Equal(t, int32(0), reputation.calls.Load())

	on := newModule(config.ScamConfig{UseExternalAPI: true}, nil, reputation)
	res := on.Check(context.Background(), "https://unknown.example")
	require.True(t, res.Detected)
	assert.Equal(t, ReasonExternalAPI, res.MatchReason)
	assert.Equal(t, 0.85, res.Severity)
}

func TestExternalAPITimeoutFailsOpen(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		_, _ = w.Write([]byte("true"))
	}))
	defer server.Close()

	reputation := NewHTTPReputation(server.URL, 50*time.Millisecond, 0, zap.NewNop())
	module := newModule(config.ScamConfig{UseExternalAPI: true}, nil, reputation)

	start := time.Now()
	res := module.Check(context.Background(), "https://unknown.example")
	assert.False(t, res.Detected)
	assert.Less(t, time.Since(start), time.Second)
}

func TestFakeDomainNeedsMisspelling(t *testing.T) {
	module := newModule(config.ScamConfig{}, nil, nil)

	for _, content := range []string{
		"https://discord.js.org/docs/packages/discord.js/main",
		"https://discordjs.guide/popular-topics/embeds.html",
		"https://discordpy.readthedocs.io/en/stable/",
		"https://www.discordbotlist.com/bots/sentinel",
		"https://discordservers.example/list",
		"https://store.steampowered.com/app/570",
	} {
		assert.False(t, module.Check(context.Background(), content).Detected, content)
	}

	for _, content := range []string{
		"https://dlscord.gift/claim",
		"https://discorrd.com/login",
		"https://steamcommunlty.com/id/x",
		"https://discord.gg.invite-join.top/x",
	} {
		res := module.Check(context.Background(), content)
		assert.True(t, res.Detected, content)
		assert.Equal(t, ReasonFakeDomain, res.MatchReason, content)
	}
}
