package engine

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Circuit breaker states
const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half-open"
)

// CircuitBreaker tracks delivery failures per destination group in Redis so
// a group the bot was removed from stops receiving sends for a while.
//
//   - Closed: deliveries go through, failures are counted.
//   - Open: deliveries are refused until the cooldown elapses.
//   - Half-open: one trial delivery; success closes, failure reopens.
type CircuitBreaker struct {
	client    *redis.Client
	logger    *slog.Logger
	threshold int
	cooldown  time.Duration
	now       func() time.Time
}

// BreakerState is the observable state of one group's circuit.
type BreakerState struct {
	State        string `json:"state"`
	Failures     int    `json:"failures"`
	LastFailedAt string `json:"last_failed_at,omitempty"`
}

func NewCircuitBreaker(client *redis.Client, logger *slog.Logger, threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &CircuitBreaker{
		client:    client,
		logger:    logger,
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

func breakerKey(groupID string) string {
	return "alerts:cb:" + groupID
}

// Allow reports the group's state and whether a delivery may proceed.
// Redis errors fail open.
func (cb *CircuitBreaker) Allow(ctx context.Context, groupID string) (string, bool) {
	key := breakerKey(groupID)

	data, err := cb.client.HGetAll(ctx, key).Result()
	if err != nil {
		cb.logger.Warn("circuit breaker lookup failed", "group_id", groupID, "error", err)
		return StateClosed, true
	}
	if len(data) == 0 {
		return StateClosed, true
	}

	switch data["state"] {
	case StateOpen:
		if !cb.cooledDown(data["last_failed_at"]) {
			return StateOpen, false
		}
		cb.client.HSet(ctx, key, "state", StateHalfOpen)
		cb.logger.Info("circuit breaker half-open", "group_id", groupID)
		return StateHalfOpen, true
	case StateHalfOpen:
		return StateHalfOpen, true
	default:
		return StateClosed, true
	}
}

// RecordSuccess closes the circuit and clears the failure count.
func (cb *CircuitBreaker) RecordSuccess(ctx context.Context, groupID string) {
	key := breakerKey(groupID)

	prev, _ := cb.client.HGet(ctx, key, "state").Result()
	if err := cb.client.HSet(ctx, key, "state", StateClosed, "failures", 0).Err(); err != nil {
		cb.logger.Warn("failed to record circuit breaker success", "group_id", groupID, "error", err)
		return
	}
	if prev == StateHalfOpen {
		cb.logger.Info("circuit breaker closed (recovered)", "group_id", groupID)
	}
}

// RecordFailure counts a failed delivery and opens the circuit once the
// threshold is reached, or immediately when the half-open trial failed.
func (cb *CircuitBreaker) RecordFailure(ctx context.Context, groupID string) {
	key := breakerKey(groupID)

	var incr *redis.IntCmd
	var state *redis.StringCmd
	_, err := cb.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		state = pipe.HGet(ctx, key, "state")
		incr = pipe.HIncrBy(ctx, key, "failures", 1)
		pipe.HSet(ctx, key, "last_failed_at", cb.now().Unix())
		return nil
	})
	if err != nil && err != redis.Nil {
		cb.logger.Warn("failed to record circuit breaker failure", "group_id", groupID, "error", err)
		return
	}
	failures := incr.Val()

	switch {
	case state.Val() == StateHalfOpen:
		cb.client.HSet(ctx, key, "state", StateOpen)
		cb.logger.Warn("circuit breaker re-opened (trial delivery failed)", "group_id", groupID)
	case failures >= int64(cb.threshold):
		cb.client.HSet(ctx, key, "state", StateOpen)
		cb.logger.Warn("circuit breaker opened",
			"group_id", groupID,
			"failures", failures,
			"threshold", cb.threshold,
		)
	case state.Val() == "":
		cb.client.HSet(ctx, key, "state", StateClosed)
	}
}

// State returns the group's circuit without changing it.
func (cb *CircuitBreaker) State(ctx context.Context, groupID string) BreakerState {
	data, err := cb.client.HGetAll(ctx, breakerKey(groupID)).Result()
	if err != nil || len(data) == 0 {
		return BreakerState{State: StateClosed}
	}

	failures, _ := strconv.Atoi(data["failures"])
	state := data["state"]
	if state == "" {
		state = StateClosed
	}
	if state == StateOpen && cb.cooledDown(data["last_failed_at"]) {
		state = StateHalfOpen
	}

	result := BreakerState{State: state, Failures: failures}
	if ts, _ := strconv.ParseInt(data["last_failed_at"], 10, 64); ts > 0 {
		result.LastFailedAt = time.Unix(ts, 0).UTC().Format(time.RFC3339)
	}
	return result
}

func (cb *CircuitBreaker) cooledDown(lastFailedAt string) bool {
	ts, _ := strconv.ParseInt(lastFailedAt, 10, 64)
	return cb.now().Unix()-ts >= int64(cb.cooldown.Seconds())
}
