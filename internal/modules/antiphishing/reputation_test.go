package antiphishing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"sentinel-guard/internal/metrics"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestHTTPReputationVerdicts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/check/bad.example":
			_, _ = w.Write([]byte(" Malicious\n"))
		case "/check/one.example":
			_, _ = w.Write([]byte("1"))
		case "/check/broken.example":
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("true"))
		default:
			_, _ = w.Write([]byte("false"))
		}
	}))
	defer server.Close()

	reputation := NewHTTPReputation(server.URL+"/", 0, 0, zap.NewNop()).WithMetrics(metrics.New())
	ctx := context.Background()

	assert.True(t, reputation.IsMalicious(ctx, "bad.example"))
	assert.True(t, reputation.IsMalicious(ctx, "one.example"))
	assert.False(t, reputation.IsMalicious(ctx, "good.example"))
	assert.False(t, reputation.IsMalicious(ctx, "broken.example"))
}

func TestHTTPReputationUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	reputation := NewHTTPReputation(url, 0, 0, zap.NewNop())
	assert.False(t, reputation.IsMalicious(context.Background(), "bad.example"))
}

func TestHTTPReputationRateLimited(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("true"))
	}))
	defer server.Close()

	reputation := NewHTTPReputation(server.URL, 0, 0.001, zap.NewNop())
	assert.True(t, reputation.IsMalicious(context.Background(), "a.example"))
	assert.False(t, reputation.IsMalicious(context.Background(), "b.example"))
	assert.Equal(t, int32(1), hits.Load())
}

func TestParseVerdict(t *testing.T) {
	for _, body := range []string{"true", "TRUE", "1", "yes", "malicious"} {
		assert.True(t, parseVerdict(body), body)
	}
	for _, body := range []string{"", "false", "0", "no", "unknown"} {
		assert.False(t, parseVerdict(body), body)
	}
}
