package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrCircuitOpen = errors.New("circuit open for group")
	ErrRateLimited = errors.New("group rate limited")
)

// GuardConfig tunes the per-group delivery guard.
type GuardConfig struct {
	FailureThreshold int
	Cooldown         time.Duration
	RateLimit        int
	RateWindow       time.Duration
}

// DeliveryGuard combines the circuit breaker and rate limiter in front of
// every group send. A nil guard admits everything, which is how the service
// runs when no Redis is configured.
type DeliveryGuard struct {
	breaker *CircuitBreaker
	limiter *RateLimiter
}

func NewDeliveryGuard(client *redis.Client, logger *slog.Logger, cfg GuardConfig) *DeliveryGuard {
	return &DeliveryGuard{
		breaker: NewCircuitBreaker(client, logger, cfg.FailureThreshold, cfg.Cooldown),
		limiter: NewRateLimiter(client, logger, cfg.RateLimit, cfg.RateWindow),
	}
}

// Acquire returns ErrCircuitOpen or ErrRateLimited when the send must be skipped.
func (g *DeliveryGuard) Acquire(ctx context.Context, groupID string) error {
	if g == nil {
		return nil
	}
	if _, ok := g.breaker.Allow(ctx, groupID); !ok {
		return ErrCircuitOpen
	}
	if !g.limiter.Allow(ctx, groupID) {
		return ErrRateLimited
	}
	return nil
}

// Report feeds the send outcome back into the breaker.
func (g *DeliveryGuard) Report(ctx context.Context, groupID string, sendErr error) {
	if g == nil {
		return
	}
	if sendErr != nil {
		g.breaker.RecordFailure(ctx, groupID)
		return
	}
	g.breaker.RecordSuccess(ctx, groupID)
}

// State returns the breaker state for one group.
func (g *DeliveryGuard) State(ctx context.Context, groupID string) BreakerState {
	if g == nil {
		return BreakerState{State: StateClosed}
	}
	return g.breaker.State(ctx, groupID)
}

// ConnectRedis parses a redis:// URL and verifies the server answers.
func ConnectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return client, nil
}
