package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Priya8975/keyword-alerts/internal/domain"
	"github.com/Priya8975/keyword-alerts/internal/metrics"
	"github.com/Priya8975/keyword-alerts/internal/store"
	"github.com/Priya8975/keyword-alerts/internal/websocket"
)

const fallbackGroupTopic = "Geral"

// ErrInviteUnavailable wraps failures to obtain an invite link from the
// messaging platform, as opposed to storage failures.
var ErrInviteUnavailable = errors.New("invite link unavailable")

// GroupStore is the slice of the store the reconciliation loop needs.
type GroupStore interface {
	ListIncompleteGroups(ctx context.Context) ([]domain.Group, error)
	ListOrphanedGroups(ctx context.Context) ([]domain.Group, error)
	GetGroup(ctx context.Context, groupID string) (*domain.Group, error)
	AddGroup(ctx context.Context, groupID, name, inviteLink string) (int64, error)
	UpdateGroup(ctx context.Context, groupID, name, inviteLink string) (bool, error)
	SetGroupInviteLink(ctx context.Context, groupID, inviteLink string, replace bool) (bool, error)
	NextUnassignedSubscriber(ctx context.Context) (*domain.Subscriber, error)
	BindSubscriberGroup(ctx context.Context, address, groupID, groupName, inviteLink string) (bool, error)
}

// Inviter provisions invite links and delivers them.
type Inviter interface {
	CreateInviteLink(ctx context.Context, groupID string) (string, error)
	SendInvite(ctx context.Context, address, inviteLink string) error
}

// EventPublisher receives live monitor events.
type EventPublisher interface {
	Publish(event websocket.Event)
}

// CycleReport summarizes one reconciliation cycle.
type CycleReport struct {
	Incomplete  int  `json:"incomplete"`
	Bound       int  `json:"bound"`
	InvitesSent int  `json:"invites_sent"`
	Skipped     int  `json:"skipped"`
	Exhausted   bool `json:"exhausted"`
	Orphaned    int  `json:"orphaned"`
}

// GroupMonitor pairs incomplete groups with unassigned subscribers on a
// fixed interval. Only one loop runs at a time.
type GroupMonitor struct {
	store    GroupStore
	inviter  Inviter
	interval time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
	events   EventPublisher

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

func NewGroupMonitor(s GroupStore, inviter Inviter, interval time.Duration, logger *slog.Logger, m *metrics.Metrics, events EventPublisher) *GroupMonitor {
	if interval <= 0 {
		interval = time.Minute
	}
	return &GroupMonitor{
		store:    s,
		inviter:  inviter,
		interval: interval,
		logger:   logger,
		metrics:  m,
		events:   events,
	}
}

// Start launches the loop. It returns false if the loop is already running.
func (gm *GroupMonitor) Start(ctx context.Context) bool {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	if gm.running {
		gm.logger.Warn("group monitor already running")
		return false
	}
	gm.running = true
	gm.stop = make(chan struct{})
	gm.done = make(chan struct{})

	go gm.loop(ctx, gm.stop, gm.done)
	gm.logger.Info("group monitor started", "interval", gm.interval)
	return true
}

// Stop signals the loop and waits up to timeout for the current cycle to
// finish. It reports whether the loop exited in time.
func (gm *GroupMonitor) Stop(timeout time.Duration) bool {
	gm.mu.Lock()
	if !gm.running {
		gm.mu.Unlock()
		return true
	}
	gm.running = false
	close(gm.stop)
	done := gm.done
	gm.mu.Unlock()

	select {
	case <-done:
		gm.logger.Info("group monitor stopped")
		return true
	case <-time.After(timeout):
		gm.logger.Warn("group monitor did not stop in time", "timeout", timeout)
		return false
	}
}

// Running reports whether the loop is active.
func (gm *GroupMonitor) Running() bool {
	gm.mu.Lock()
	defer gm.mu.Unlock()
	return gm.running
}

func (gm *GroupMonitor) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(gm.interval)
	defer ticker.Stop()

	for {
		// A started cycle always runs to completion; stop is only seen between ticks.
		if _, err := gm.RunCycle(context.WithoutCancel(ctx)); err != nil {
			gm.logger.Error("group monitor cycle failed", "error", err)
		}

		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunCycle performs one reconciliation pass. A returned error means the
// storage layer failed and the rest of the cycle was abandoned.
func (gm *GroupMonitor) RunCycle(ctx context.Context) (CycleReport, error) {
	var report CycleReport

	groups, err := gm.store.ListIncompleteGroups(ctx)
	if err != nil {
		gm.countCycle("error")
		return report, fmt.Errorf("listing incomplete groups: %w", err)
	}
	report.Incomplete = len(groups)
	if gm.metrics != nil {
		gm.metrics.IncompleteGroups.Set(float64(len(groups)))
	}

	if len(groups) == 0 {
		gm.logger.Debug("no incomplete groups")
		gm.checkOrphans(ctx, &report)
		gm.countCycle("idle")
		return report, nil
	}
	gm.logger.Info("found incomplete groups", "count", len(groups))

	for _, group := range groups {
		if group.IsComplete() {
			continue
		}

		sub, err := gm.store.NextUnassignedSubscriber(ctx)
		if err != nil {
			gm.countCycle("error")
			return report, fmt.Errorf("fetching unassigned subscriber: %w", err)
		}
		if sub == nil {
			gm.logger.Info("no unassigned subscribers left, ending cycle",
				"remaining_groups", report.Incomplete-report.Bound-report.Skipped,
			)
			report.Exhausted = true
			break
		}

		if gm.assign(ctx, group, sub, &report) {
			report.Bound++
		} else {
			report.Skipped++
		}
	}

	gm.checkOrphans(ctx, &report)

	outcome := "completed"
	if report.Exhausted {
		outcome = "exhausted"
	}
	gm.countCycle(outcome)
	gm.logger.Info("group monitor cycle finished",
		"incomplete", report.Incomplete,
		"bound", report.Bound,
		"skipped", report.Skipped,
		"invites_sent", report.InvitesSent,
		"exhausted", report.Exhausted,
	)
	return report, nil
}

// assign completes group for sub and binds them. It returns false when the
// group was left incomplete or the binding was not written.
func (gm *GroupMonitor) assign(ctx context.Context, group domain.Group, sub *domain.Subscriber, report *CycleReport) bool {
	log := gm.logger.With("group_id", group.GroupID, "address", sub.Address)

	invite, err := gm.inviter.CreateInviteLink(ctx, group.GroupID)
	if err != nil {
		log.Error("failed to generate invite link", "error", err)
		return false
	}

	name := GroupName(sub)
	updated, err := gm.store.UpdateGroup(ctx, group.GroupID, name, invite)
	if err != nil || !updated {
		log.Error("failed to update group", "error", err, "updated", updated)
		return false
	}
	log.Info("updated group", "group_name", name)

	bound, err := gm.store.BindSubscriberGroup(ctx, sub.Address, group.GroupID, name, invite)
	if err != nil || !bound {
		// The group is complete now and will not be revisited; it shows up
		// in the orphaned-group report until an operator fixes it.
		log.Error("failed to bind subscriber to completed group", "error", err, "bound", bound)
		return false
	}
	log.Info("assigned group to subscriber", "name", sub.Name)
	if gm.metrics != nil {
		gm.metrics.GroupsBoundTotal.Inc()
	}
	gm.publish(websocket.Event{Type: websocket.EventGroupBound, GroupID: group.GroupID, Address: sub.Address})

	if err := gm.inviter.SendInvite(ctx, sub.Address, invite); err != nil {
		log.Error("failed to send invite link", "error", err)
		gm.countInvite("failed")
		gm.publish(websocket.Event{Type: websocket.EventInviteFailed, GroupID: group.GroupID, Address: sub.Address, Error: err.Error()})
		return true
	}
	report.InvitesSent++
	gm.countInvite("success")
	gm.publish(websocket.Event{Type: websocket.EventInviteSent, GroupID: group.GroupID, Address: sub.Address})
	return true
}

func (gm *GroupMonitor) checkOrphans(ctx context.Context, report *CycleReport) {
	orphans, err := gm.store.ListOrphanedGroups(ctx)
	if err != nil {
		gm.logger.Warn("failed to list orphaned groups", "error", err)
		return
	}
	report.Orphaned = len(orphans)
	if gm.metrics != nil {
		gm.metrics.OrphanedGroups.Set(float64(len(orphans)))
	}
	for _, g := range orphans {
		gm.logger.Warn("complete group has no bound subscriber", "group_id", g.GroupID, "group_name", g.Name)
	}
}

// ProcessGroup reconciles one group on demand. An unknown group is
// registered empty for the loop to complete; a known group gets a fresh
// invite link when it has none or force is set. Only the link is written, so
// a name set by a concurrent cycle is kept, and a forced refresh also updates
// the bound subscriber's copy of the link.
func (gm *GroupMonitor) ProcessGroup(ctx context.Context, groupID string, force bool) error {
	gm.logger.Info("processing group", "group_id", groupID, "force_update", force)

	group, err := gm.store.GetGroup(ctx, groupID)
	if err != nil {
		return fmt.Errorf("looking up group: %w", err)
	}

	if group == nil {
		if _, err := gm.store.AddGroup(ctx, groupID, "", ""); err != nil && !errors.Is(err, store.ErrDuplicate) {
			return fmt.Errorf("adding group: %w", err)
		}
		gm.logger.Info("added new group", "group_id", groupID)
		return nil
	}

	if !force && group.InviteLink != "" {
		return nil
	}

	invite, err := gm.inviter.CreateInviteLink(ctx, groupID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInviteUnavailable, err)
	}
	updated, err := gm.store.SetGroupInviteLink(ctx, groupID, invite, force)
	if err != nil {
		return fmt.Errorf("updating group invite: %w", err)
	}
	if !updated {
		gm.logger.Info("group already has an invite link, keeping it", "group_id", groupID)
		return nil
	}
	gm.logger.Info("updated group with new invite link", "group_id", groupID)
	return nil
}

// GroupName builds the display name from the subscriber's name and first
// three keywords.
func GroupName(sub *domain.Subscriber) string {
	topic := fallbackGroupTopic
	if len(sub.Keywords) > 0 {
		kws := sub.Keywords
		if len(kws) > 3 {
			kws = kws[:3]
		}
		topic = strings.Join(kws, ", ")
	}
	return fmt.Sprintf("Grupo de %s - %s", sub.Name, topic)
}

func (gm *GroupMonitor) countCycle(outcome string) {
	if gm.metrics != nil {
		gm.metrics.MonitorCyclesTotal.WithLabelValues(outcome).Inc()
	}
}

func (gm *GroupMonitor) countInvite(result string) {
	if gm.metrics != nil {
		gm.metrics.InvitesTotal.WithLabelValues(result).Inc()
	}
}

func (gm *GroupMonitor) publish(ev websocket.Event) {
	if gm.events != nil {
		gm.events.Publish(ev)
	}
}
