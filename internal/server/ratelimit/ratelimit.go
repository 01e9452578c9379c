// Package ratelimit provides per-client request throttling using token
// buckets. Analysis runs are expensive (generator calls), so the write
// endpoint gets a much stricter budget than reads.
package ratelimit

import (
	"strings"
	"sync"
	"time"
)

// EndpointConfig is the rate budget for one endpoint. Path supports prefix
// matching when it ends with "/".
type EndpointConfig struct {
	Path   string
	Method string
	Limit  int
	Window time.Duration
	Burst  int
}

// Config holds rate limiting configuration.
type Config struct {
	Enabled         bool
	DefaultLimit    int
	DefaultWindow   time.Duration
	CleanupInterval time.Duration
	EndpointConfigs []EndpointConfig
}

// DefaultConfig returns the standard budgets: strict on run starts, lenient
// on reads.
func DefaultConfig() *Config {
	return &Config{
		Enabled:         true,
		DefaultLimit:    600,
		DefaultWindow:   time.Minute,
		CleanupInterval: 5 * time.Minute,
		EndpointConfigs: []EndpointConfig{
			// Run starts trigger generator calls.
			{Path: "/projects/", Method: "POST", Limit: 30, Window: time.Hour, Burst: 5},
		},
	}
}

// matchEndpoint resolves the budget for a path and method. The health check
// is always unlimited.
func matchEndpoint(path, method string, configs []EndpointConfig) *EndpointConfig {
	if path == "/health" && method == "GET" {
		return &EndpointConfig{}
	}
	for i := range configs {
		cfg := &configs[i]
		if cfg.Method != method {
			continue
		}
		if cfg.Path == path {
			return cfg
		}
		if strings.HasSuffix(cfg.Path, "/") && strings.HasPrefix(path, cfg.Path) {
			return cfg
		}
	}
	return nil
}

// Info describes the outcome of one rate limit check.
type Info struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

type bucket struct {
	capacity   float64
	refillRate float64 // tokens per second
	tokens     float64
	lastRefill time.Time
	lastAccess time.Time
}

func (b *bucket) refill(now time.Time) {
	b.tokens += now.Sub(b.lastRefill).Seconds() * b.refillRate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastRefill = now
}

// Limiter throttles clients per endpoint. One bucket per
// client+endpoint+method key.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	config  *Config
	ticker  *time.Ticker
	stop    chan struct{}
}

// NewLimiter creates a limiter; nil config selects DefaultConfig.
func NewLimiter(config *Config) *Limiter {
	if config == nil {
		config = DefaultConfig()
	}
	l := &Limiter{
		buckets: make(map[string]*bucket),
		config:  config,
	}
	if config.Enabled && config.CleanupInterval > 0 {
		l.ticker = time.NewTicker(config.CleanupInterval)
		l.stop = make(chan struct{})
		go l.cleanupLoop()
	}
	return l
}

// Allow checks whether a request from clientID may proceed.
func (l *Limiter) Allow(clientID, path, method string) (bool, Info) {
	if !l.config.Enabled {
		return true, Info{Allowed: true}
	}

	cfg := matchEndpoint(path, method, l.config.EndpointConfigs)
	if cfg == nil {
		cfg = &EndpointConfig{
			Limit:  l.config.DefaultLimit,
			Window: l.config.DefaultWindow,
			Burst:  l.config.DefaultLimit,
		}
	}
	if cfg.Limit <= 0 {
		return true, Info{Allowed: true}
	}

	key := clientID + ":" + path + ":" + method
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		capacity := cfg.Burst
		if capacity <= 0 {
			capacity = cfg.Limit
		}
		b = &bucket{
			capacity:   float64(capacity),
			refillRate: float64(cfg.Limit) / cfg.Window.Seconds(),
			tokens:     float64(capacity),
			lastRefill: now,
		}
		l.buckets[key] = b
	}

	b.refill(now)
	b.lastAccess = now

	allowed := b.tokens >= 1
	if allowed {
		b.tokens--
	}

	var reset time.Time
	if b.tokens < b.capacity {
		secondsUntilFull := (b.capacity - b.tokens) / b.refillRate
		reset = now.Add(time.Duration(secondsUntilFull * float64(time.Second)))
	} else {
		reset = now
	}

	info := Info{
		Allowed:   allowed,
		Limit:     cfg.Limit,
		Remaining: int(b.tokens),
		ResetTime: reset,
	}
	if !allowed {
		info.RetryAfter = time.Duration(1 / b.refillRate * float64(time.Second))
	}
	return allowed, info
}

func (l *Limiter) cleanupLoop() {
	for {
		select {
		case <-l.ticker.C:
			l.removeIdle(time.Now().Add(-time.Hour))
		case <-l.stop:
			return
		}
	}
}

func (l *Limiter) removeIdle(cutoff time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.buckets {
		if b.lastAccess.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
}

// Stop halts the cleanup goroutine.
func (l *Limiter) Stop() {
	if l.ticker != nil {
		l.ticker.Stop()
	}
	if l.stop != nil {
		close(l.stop)
	}
}
