package forward

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// BackoffConfig configures exponential backoff.
type BackoffConfig struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64 // 0.0 to 1.0
}

// DefaultBackoffConfig is used for retryable delivery failures.
var DefaultBackoffConfig = BackoffConfig{
	InitialDelay: 1 * time.Second,
	MaxDelay:     5 * time.Minute,
	Multiplier:   2.0,
	JitterFactor: 0.2,
}

// Backoff calculates exponential backoff with jitter.
// It owns its RNG so tests can fix the seed.
type Backoff struct {
	cfg BackoffConfig
	rng *rand.Rand
	mu  sync.Mutex
}

// NewBackoff creates a Backoff with a random seed.
func NewBackoff(cfg BackoffConfig) *Backoff {
	return NewBackoffWithSeed(cfg, time.Now().UnixNano())
}

// NewBackoffWithSeed creates a Backoff with a specific seed.
func NewBackoffWithSeed(cfg BackoffConfig, seed int64) *Backoff {
	return &Backoff{
		cfg: cfg,
		rng: rand.New(rand.NewSource(seed)),
	}
}

// Delay returns the delay for the given attempt number (0-indexed).
func (b *Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := float64(b.cfg.InitialDelay) * math.Pow(b.cfg.Multiplier, float64(attempt))
	if delay > float64(b.cfg.MaxDelay) {
		delay = float64(b.cfg.MaxDelay)
	}

	// jitter in [-JitterFactor, +JitterFactor] * delay
	if b.cfg.JitterFactor > 0 {
		b.mu.Lock()
		jitter := delay * b.cfg.JitterFactor * (b.rng.Float64()*2 - 1)
		b.mu.Unlock()
		delay += jitter
	}

	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}
