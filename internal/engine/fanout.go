package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Priya8975/keyword-alerts/internal/domain"
	"github.com/Priya8975/keyword-alerts/internal/metrics"
	"github.com/Priya8975/keyword-alerts/internal/websocket"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const defaultConcurrency = 4

// PostLedger is the slice of the store the fan-out needs.
type PostLedger interface {
	IsPostProcessed(ctx context.Context, postID string) (bool, error)
	FindSubscribersByKeywordMatch(ctx context.Context, text string) ([]domain.Subscriber, error)
	RecordProcessedPost(ctx context.Context, postID, text, link string) (bool, error)
}

// GroupSender delivers one post to one destination group.
type GroupSender interface {
	SendPost(ctx context.Context, groupID string, post domain.Post) error
}

// EventPublisher receives live delivery events.
type EventPublisher interface {
	Publish(event websocket.Event)
}

// Result is the telemetry of one Process call.
type Result struct {
	PostID             string `json:"post_id"`
	Duplicate          bool   `json:"duplicate"`
	MatchedSubscribers int    `json:"matching_users"`
	UniqueGroups       int    `json:"unique_groups"`
	Delivered          int    `json:"delivery_count"`
	Failed             int    `json:"failed_count"`
	Skipped            int    `json:"skipped_count"`
}

// FanOutEngine matches a post against subscriber keywords and delivers it
// once to every distinct group of the matched subscribers.
type FanOutEngine struct {
	ledger      PostLedger
	sender      GroupSender
	logger      *slog.Logger
	guard       *DeliveryGuard
	metrics     *metrics.Metrics
	events      EventPublisher
	concurrency int
	inflight    singleflight.Group
}

// Option configures a FanOutEngine.
type Option func(*FanOutEngine)

// WithGuard puts a circuit breaker and rate limiter in front of each send.
func WithGuard(g *DeliveryGuard) Option {
	return func(f *FanOutEngine) { f.guard = g }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(f *FanOutEngine) { f.metrics = m }
}

func WithEvents(p EventPublisher) Option {
	return func(f *FanOutEngine) { f.events = p }
}

// WithConcurrency bounds how many groups are sent to at once.
func WithConcurrency(n int) Option {
	return func(f *FanOutEngine) {
		if n > 0 {
			f.concurrency = n
		}
	}
}

func NewFanOutEngine(ledger PostLedger, sender GroupSender, logger *slog.Logger, opts ...Option) *FanOutEngine {
	f := &FanOutEngine{
		ledger:      ledger,
		sender:      sender,
		logger:      logger,
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Process runs one post through the duplicate gate, the matcher and the
// per-group delivery, then records it in the ledger whatever the delivery
// outcome. Only storage failures are returned as errors.
//
// Concurrent calls for the same post id collapse into one run; the callers
// that did not run it get a duplicate result.
func (f *FanOutEngine) Process(ctx context.Context, post domain.Post) (*Result, error) {
	post = post.WithID()

	executed := false
	v, err, _ := f.inflight.Do(post.ID, func() (any, error) {
		executed = true
		return f.process(context.WithoutCancel(ctx), post)
	})
	if err != nil {
		return nil, err
	}
	if !executed {
		return &Result{PostID: post.ID, Duplicate: true}, nil
	}
	return v.(*Result), nil
}

func (f *FanOutEngine) process(ctx context.Context, post domain.Post) (*Result, error) {
	start := time.Now()
	result := &Result{PostID: post.ID}

	processed, err := f.ledger.IsPostProcessed(ctx, post.ID)
	if err != nil {
		return nil, fmt.Errorf("checking ledger: %w", err)
	}
	if processed {
		f.logger.Info("post already processed", "post_id", post.ID)
		result.Duplicate = true
		return result, nil
	}

	subscribers, err := f.ledger.FindSubscribersByKeywordMatch(ctx, post.Text)
	if err != nil {
		return nil, fmt.Errorf("matching subscribers: %w", err)
	}
	groups := distinctGroups(subscribers)
	result.MatchedSubscribers = len(subscribers)
	result.UniqueGroups = len(groups)

	if len(groups) > 0 {
		f.deliver(ctx, post, groups, result)
	}

	inserted, err := f.ledger.RecordProcessedPost(ctx, post.ID, post.Text, post.Link)
	if err != nil {
		return nil, fmt.Errorf("recording processed post: %w", err)
	}
	if !inserted {
		f.logger.Warn("post was recorded by another writer during fan-out", "post_id", post.ID)
	}

	if f.metrics != nil {
		f.metrics.FanOutDuration.Observe(time.Since(start).Seconds())
		f.metrics.MatchedSubscribers.Observe(float64(result.MatchedSubscribers))
	}

	f.logger.Info("fan-out complete",
		"post_id", post.ID,
		"matching_users", result.MatchedSubscribers,
		"unique_groups", result.UniqueGroups,
		"delivered", result.Delivered,
		"failed", result.Failed,
		"skipped", result.Skipped,
	)
	return result, nil
}

// deliver sends to every group concurrently. Each send is isolated: a
// failure is counted and logged, never propagated.
func (f *FanOutEngine) deliver(ctx context.Context, post domain.Post, groups []string, result *Result) {
	var delivered, failed, skipped atomic.Int64

	var g errgroup.Group
	g.SetLimit(f.concurrency)
	for _, groupID := range groups {
		g.Go(func() error {
			switch err := f.sendOne(ctx, groupID, post); {
			case err == nil:
				delivered.Add(1)
			case errors.Is(err, ErrCircuitOpen), errors.Is(err, ErrRateLimited):
				skipped.Add(1)
			default:
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	result.Delivered = int(delivered.Load())
	result.Failed = int(failed.Load())
	result.Skipped = int(skipped.Load())
}

func (f *FanOutEngine) sendOne(ctx context.Context, groupID string, post domain.Post) error {
	if err := f.guard.Acquire(ctx, groupID); err != nil {
		f.logger.Warn("delivery skipped", "post_id", post.ID, "group_id", groupID, "reason", err)
		f.count("skipped")
		if f.metrics != nil {
			reason := "circuit_open"
			if errors.Is(err, ErrRateLimited) {
				reason = "rate_limited"
			}
			f.metrics.DeliveryGuardDenied.WithLabelValues(reason).Inc()
		}
		f.publish(websocket.EventPostSkipped, post.ID, groupID, err)
		return err
	}

	err := f.sender.SendPost(ctx, groupID, post)
	f.guard.Report(ctx, groupID, err)
	if err != nil {
		f.logger.Error("delivery failed", "post_id", post.ID, "group_id", groupID, "error", err)
		f.count("failed")
		f.publish(websocket.EventPostFailed, post.ID, groupID, err)
		return err
	}

	f.logger.Debug("post delivered", "post_id", post.ID, "group_id", groupID)
	f.count("success")
	f.publish(websocket.EventPostDelivered, post.ID, groupID, nil)
	return nil
}

func (f *FanOutEngine) count(result string) {
	if f.metrics != nil {
		f.metrics.GroupDeliveryTotal.WithLabelValues(result).Inc()
	}
}

func (f *FanOutEngine) publish(eventType, postID, groupID string, err error) {
	if f.events == nil {
		return
	}
	ev := websocket.Event{Type: eventType, PostID: postID, GroupID: groupID}
	if err != nil {
		ev.Error = err.Error()
	}
	f.events.Publish(ev)
}

// distinctGroups returns each bound group id once, in first-seen order.
func distinctGroups(subscribers []domain.Subscriber) []string {
	seen := make(map[string]struct{}, len(subscribers))
	groups := make([]string, 0, len(subscribers))
	for _, sub := range subscribers {
		if sub.GroupID == "" {
			continue
		}
		if _, ok := seen[sub.GroupID]; ok {
			continue
		}
		seen[sub.GroupID] = struct{}{}
		groups = append(groups, sub.GroupID)
	}
	return groups
}
