package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strictConfig() *Config {
	return &Config{
		Enabled:         true,
		DefaultLimit:    100,
		DefaultWindow:   time.Minute,
		CleanupInterval: 0, // no cleanup goroutine in tests
		EndpointConfigs: []EndpointConfig{
			{Path: "/projects/", Method: "POST", Limit: 60, Window: time.Minute, Burst: 2},
		},
	}
}

func TestLimiter_BurstThenThrottle(t *testing.T) {
	l := NewLimiter(strictConfig())
	defer l.Stop()

	allowed, _ := l.Allow("1.2.3.4", "/projects/p1/analysis", "POST")
	assert.True(t, allowed)
	allowed, _ = l.Allow("1.2.3.4", "/projects/p1/analysis", "POST")
	assert.True(t, allowed)

	allowed, info := l.Allow("1.2.3.4", "/projects/p1/analysis", "POST")
	assert.False(t, allowed)
	assert.Equal(t, 60, info.Limit)
	assert.Greater(t, info.RetryAfter, time.Duration(0))
}

func TestLimiter_ClientsAreIndependent(t *testing.T) {
	l := NewLimiter(strictConfig())
	defer l.Stop()

	for i := 0; i < 2; i++ {
		allowed, _ := l.Allow("1.2.3.4", "/projects/p1/analysis", "POST")
		require.True(t, allowed)
	}
	allowed, _ := l.Allow("1.2.3.4", "/projects/p1/analysis", "POST")
	assert.False(t, allowed)

	allowed, _ = l.Allow("5.6.7.8", "/projects/p1/analysis", "POST")
	assert.True(t, allowed)
}

func TestLimiter_HealthIsUnlimited(t *testing.T) {
	l := NewLimiter(strictConfig())
	defer l.Stop()

	for i := 0; i < 500; i++ {
		allowed, _ := l.Allow("1.2.3.4", "/health", "GET")
		require.True(t, allowed)
	}
}

func TestLimiter_Disabled(t *testing.T) {
	l := NewLimiter(&Config{Enabled: false})
	defer l.Stop()

	for i := 0; i < 100; i++ {
		allowed, _ := l.Allow("1.2.3.4", "/projects/p1/analysis", "POST")
		require.True(t, allowed)
	}
}

func TestLimiter_DefaultBudgetForUnknownPaths(t *testing.T) {
	cfg := strictConfig()
	cfg.DefaultLimit = 3
	l := NewLimiter(cfg)
	defer l.Stop()

	for i := 0; i < 3; i++ {
		allowed, _ := l.Allow("1.2.3.4", "/analysis/some-run", "GET")
		require.True(t, allowed)
	}
	allowed, _ := l.Allow("1.2.3.4", "/analysis/some-run", "GET")
	assert.False(t, allowed)
}

func TestMatchEndpoint_PrefixMatching(t *testing.T) {
	configs := strictConfig().EndpointConfigs

	cfg := matchEndpoint("/projects/p1/analysis", "POST", configs)
	require.NotNil(t, cfg)
	assert.Equal(t, 60, cfg.Limit)

	assert.Nil(t, matchEndpoint("/projects/p1/analysis", "GET", configs))
	assert.Nil(t, matchEndpoint("/analysis/run-1", "POST", configs))
}

func TestLimiter_RemoveIdle(t *testing.T) {
	l := NewLimiter(strictConfig())
	defer l.Stop()

	l.Allow("1.2.3.4", "/projects/p1/analysis", "POST")
	require.Len(t, l.buckets, 1)

	l.removeIdle(time.Now().Add(time.Minute))
	assert.Empty(t, l.buckets)
}
