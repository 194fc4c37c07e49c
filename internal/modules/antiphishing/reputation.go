package antiphishing

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"sentinel-guard/internal/metrics"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const maxReputationBody = 64

// Reputation is an external domain reputation service. Implementations fail
// open: any error means "not malicious".
type Reputation interface {
	IsMalicious(ctx context.Context, domain string) bool
}

// HTTPReputation queries GET {base}/check/{domain}. The response body is a
// boolean-like string.
type HTTPReputation struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
	limiter *rate.Limiter
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewHTTPReputation(baseURL string, timeout time.Duration, perSecond float64, logger *zap.Logger) *HTTPReputation {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	burst := 1
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
		burst = int(perSecond) + 1
	}
	return &HTTPReputation{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		timeout: timeout,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}
}

func (r *HTTPReputation) WithMetrics(m *metrics.Metrics) *HTTPReputation {
	r.metrics = m
	return r
}

func (r *HTTPReputation) IsMalicious(ctx context.Context, domain string) bool {
	if r.baseURL == "" || domain == "" {
		return false
	}
	if !r.limiter.Allow() {
		r.metrics.ReputationCheck("limited")
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/check/"+url.PathEscape(domain), nil)
	if err != nil {
		r.fail(domain, err)
		return false
	}
	resp, err := r.client.Do(req)
	if err != nil {
		r.fail(domain, err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		r.fail(domain, fmt.Errorf("unexpected status %d", resp.StatusCode))
		return false
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReputationBody))
	if err != nil {
		r.fail(domain, err)
		return false
	}

	malicious := parseVerdict(string(body))
	if malicious {
		r.metrics.ReputationCheck("malicious")
	} else {
		r.metrics.ReputationCheck("clean")
	}
	return malicious
}

func (r *HTTPReputation) fail(domain string, err error) {
	r.metrics.ReputationCheck("error")
	r.logger.Warn("reputation check failed", zap.String("domain", domain), zap.Error(err))
}

func parseVerdict(body string) bool {
	switch strings.ToLower(strings.TrimSpace(body)) {
	case "true", "1", "yes", "malicious":
		return true
	default:
		return false
	}
}
