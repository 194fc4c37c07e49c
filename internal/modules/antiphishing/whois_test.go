package antiphishing

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"sentinel-guard/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeDomainAge struct {
	created time.Time
	ok      bool
	calls   atomic.Int32
}

func (f *fakeDomainAge) RegisteredAt(ctx context.Context, host string) (time.Time, bool) {
	f.calls.Add(1)
	return f.created, f.ok
}

func whoisRecord(domain string, created time.Time) string {
	return fmt.Sprintf(`   Domain Name: %s
   Registry Domain ID: 2876543210_DOMAIN_COM-VRSN
   Registrar WHOIS Server: whois.example-registrar.com
   Registrar URL: http://www.example-registrar.com
   Updated Date: %s
   Creation Date: %s
   Registry Expiry Date: 2030-01-01T00:00:00Z
   Registrar: Example Registrar, Inc.
   Domain Status: clientTransferProhibited
   Name Server: NS1.EXAMPLE-DNS.COM
   Name Server: NS2.EXAMPLE-DNS.COM
   DNSSEC: unsigned
`, domain, created.Format(time.RFC3339), created.Format(time.RFC3339))
}

func TestParseWhoisDate(t *testing.T) {
	cases := map[string]time.Time{
		"2024-03-05T10:11:12Z": time.Date(2024, 3, 5, 10, 11, 12, 0, time.UTC),
		"2024-03-05 10:11:12":  time.Date(2024, 3, 5, 10, 11, 12, 0, time.UTC),
		"2024-03-05":           time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
		"05-Mar-2024":          time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
	}
	for value, want := range cases {
		got, ok := parseWhoisDate(value)
		require.True(t, ok, value)
		assert.True(t, want.Equal(got), value)
	}

	_, ok := parseWhoisDate("")
	assert.False(t, ok)
	_, ok = parseWhoisDate("last tuesday")
	assert.False(t, ok)
}

func TestWhoisAgeQueriesRegistrableDomainOnce(t *testing.T) {
	created := time.Now().AddDate(0, 0, -3).UTC().Truncate(time.Second)
	var calls atomic.Int32
	var queried atomic.Value

	age := NewWhoisAge(time.Second, zap.NewNop())
	age.query = func(domain string) (string, error) {
		calls.Add(1)
		queried.Store(domain)
		return whoisRecord("FRESH-GIFTS.COM", created), nil
	}

	got, ok := age.RegisteredAt(context.Background(), "claim.fresh-gifts.com")
	require.True(t, ok)
	assert.True(t, created.Equal(got))
	assert.Equal(t, "fresh-gifts.com", queried.Load())

	_, ok = age.RegisteredAt(context.Background(), "www.fresh-gifts.com")
	assert.True(t, ok)
	assert.Equal(t, int32(1), calls.Load())
}

func TestWhoisAgeFailsOpen(t *testing.T) {
	age := NewWhoisAge(time.Second, zap.NewNop())
	age.query = func(domain string) (string, error) {
		return "", errors.New("connection refused")
	}
	_, ok := age.RegisteredAt(context.Background(), "example.org")
	assert.False(t, ok)

	release := make(chan struct{})
	defer close(release)
	slow := NewWhoisAge(20*time.Millisecond, zap.NewNop())
	slow.query = func(domain string) (string, error) {
		<-release
		return "", nil
	}
	start := time.Now()
	_, ok = slow.RegisteredAt(context.Background(), "example.net")
	assert.False(t, ok)
	assert.Less(t, time.Since(start), time.Second)

	_, ok = age.RegisteredAt(context.Background(), "localhost")
	assert.False(t, ok)
}

func TestNewDomainRule(t *testing.T) {
	fresh := &fakeDomainAge{created: time.Now().AddDate(0, 0, -2), ok: true}
	cfg := config.ScamConfig{CheckDomainAge: true, NewDomainDays: 14}

	res := newModule(cfg, nil, nil).WithDomainAge(fresh).Check(context.Background(), "look https://brand-new-site.com/page")
	require.True(t, res.Detected)
	assert.Equal(t, ReasonNewDomain, res.MatchReason)
	assert.Equal(t, 0.6, res.Severity)

	old := &fakeDomainAge{created: time.Now().AddDate(-5, 0, 0), ok: true}
	assert.False(t, newModule(cfg, nil, nil).WithDomainAge(old).Check(context.Background(), "https://established.com").Detected)

	unknown := &fakeDomainAge{}
	assert.False(t, newModule(cfg, nil, nil).WithDomainAge(unknown).Check(context.Background(), "https://established.com").Detected)

	disabled := &fakeDomainAge{created: time.Now(), ok: true}
	assert.False(t, newModule(config.ScamConfig{NewDomainDays: 14}, nil, nil).WithDomainAge(disabled).Check(context.Background(), "https://brand-new-site.com").Detected)
	assert.Equal(t, int32(0), disabled.calls.Load())
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func TestNewDomainRuleUsesClock(t *testing.T) {
	registered := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	age := &fakeDomainAge{created: registered, ok: true}
	cfg := config.ScamConfig{CheckDomainAge: true, NewDomainDays: 14}

	young := newModule(cfg, nil, nil).WithDomainAge(age).WithClock(fixedClock{now: registered.AddDate(0, 0, 4)})
	assert.True(t, young.Check(context.Background(), "https://brand-new-site.com").Detected)

	aged := newModule(cfg, nil, nil).WithDomainAge(age).WithClock(fixedClock{now: registered.AddDate(0, 1, 0)})
	assert.False(t, aged.Check(context.Background(), "https://brand-new-site.com").Detected)
}
