package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Priya8975/keyword-alerts/internal/domain"
	"github.com/Priya8975/keyword-alerts/internal/metrics"
	"github.com/Priya8975/keyword-alerts/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeInviter struct {
	mu         sync.Mutex
	links      int
	invites    []string
	failLink   map[string]bool
	failInvite bool
}

func (f *fakeInviter) CreateInviteLink(ctx context.Context, groupID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failLink[groupID] {
		return "", errors.New("not enough rights")
	}
	f.links++
	return fmt.Sprintf("https://t.me/+%s-%d", groupID, f.links), nil
}

func (f *fakeInviter) SendInvite(ctx context.Context, address, link string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invites = append(f.invites, address)
	if f.failInvite {
		return errors.New("bot was blocked by the user")
	}
	return nil
}

type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func setupTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	clock := &stepClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "alerts.db"), store.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func addSubscriber(t *testing.T, s *store.SQLiteStore, address, name, keywords string) {
	t.Helper()
	_, err := s.AddSubscriber(context.Background(), domain.NewSubscriber{
		Address: address, Name: name, Email: name + "@example.com", Intention: "alerts", Keywords: keywords,
	})
	if err != nil {
		t.Fatalf("add subscriber: %v", err)
	}
}

func addGroup(t *testing.T, s *store.SQLiteStore, groupID string) {
	t.Helper()
	if _, err := s.AddGroup(context.Background(), groupID, "", ""); err != nil {
		t.Fatalf("add group: %v", err)
	}
}

func TestRunCycle_BindsBrunoToG1(t *testing.T) {
	s := setupTestStore(t)
	inviter := &fakeInviter{}
	m := metrics.New()
	monitor := NewGroupMonitor(s, inviter, time.Minute, testLogger(), m, nil)
	ctx := context.Background()

	addGroup(t, s, "G1")
	addSubscriber(t, s, "bruno", "Bruno", "ai, data")

	report, err := monitor.RunCycle(ctx)
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if report.Bound != 1 || report.InvitesSent != 1 || report.Exhausted {
		t.Errorf("unexpected report: %+v", report)
	}

	g, _ := s.GetGroup(ctx, "G1")
	if !g.IsComplete() || g.Name != "Grupo de Bruno - ai, data" {
		t.Errorf("group not completed: %+v", g)
	}

	sub, _ := s.GetSubscriberByAddress(ctx, "bruno")
	if sub.GroupID != "G1" || sub.GroupName != g.Name || sub.InviteLink != g.InviteLink {
		t.Errorf("subscriber binding mismatch: %+v", sub)
	}

	if len(inviter.invites) != 1 || inviter.invites[0] != "bruno" {
		t.Errorf("expected exactly one invitation to bruno, got %v", inviter.invites)
	}

	// Nothing left to do on the next cycle.
	report, err = monitor.RunCycle(ctx)
	if err != nil || report.Incomplete != 0 || len(inviter.invites) != 1 {
		t.Errorf("second cycle should be idle: %+v err=%v invites=%v", report, err, inviter.invites)
	}
}

func TestRunCycle_NoUnassignedSubscribers(t *testing.T) {
	s := setupTestStore(t)
	inviter := &fakeInviter{}
	monitor := NewGroupMonitor(s, inviter, time.Minute, testLogger(), nil, nil)
	ctx := context.Background()

	addGroup(t, s, "G1")
	addGroup(t, s, "G2")

	report, err := monitor.RunCycle(ctx)
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if report.Bound != 0 || !report.Exhausted {
		t.Errorf("expected no bindings and an exhausted cycle, got %+v", report)
	}

	incomplete, _ := s.ListIncompleteGroups(ctx)
	if len(incomplete) != 2 {
		t.Errorf("both groups should remain incomplete, got %d", len(incomplete))
	}
	if inviter.links != 0 {
		t.Errorf("no invite links should be created, got %d", inviter.links)
	}
}

func TestRunCycle_NeverSharesAGroup(t *testing.T) {
	s := setupTestStore(t)
	monitor := NewGroupMonitor(s, &fakeInviter{}, time.Minute, testLogger(), nil, nil)
	ctx := context.Background()

	addGroup(t, s, "G1")
	addGroup(t, s, "G2")
	addSubscriber(t, s, "1", "Ana", "rust")
	addSubscriber(t, s, "2", "Bruno", "go")
	addSubscriber(t, s, "3", "Carla", "")

	for i := 0; i < 3; i++ {
		if _, err := monitor.RunCycle(ctx); err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
	}

	subs, _ := s.ListSubscribers(ctx, false)
	seen := map[string]string{}
	for _, sub := range subs {
		if (sub.GroupID == "") != (sub.InviteLink == "") || (sub.GroupID == "") != (sub.GroupName == "") {
			t.Errorf("partial binding for %s: %+v", sub.Address, sub)
		}
		if sub.GroupID == "" {
			continue
		}
		if other, dup := seen[sub.GroupID]; dup {
			t.Errorf("group %s bound to both %s and %s", sub.GroupID, other, sub.Address)
		}
		seen[sub.GroupID] = sub.Address
	}
	if len(seen) != 2 {
		t.Errorf("expected two bound groups, got %v", seen)
	}

	carla, _ := s.GetSubscriberByAddress(ctx, "3")
	if carla.HasGroup() {
		t.Error("the youngest subscriber should still be waiting")
	}
}

func TestRunCycle_InviteFailureSkipsGroup(t *testing.T) {
	s := setupTestStore(t)
	inviter := &fakeInviter{failLink: map[string]bool{"G1": true}}
	monitor := NewGroupMonitor(s, inviter, time.Minute, testLogger(), nil, nil)
	ctx := context.Background()

	addGroup(t, s, "G1")
	addGroup(t, s, "G2")
	addSubscriber(t, s, "1", "Ana", "rust")

	report, err := monitor.RunCycle(ctx)
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if report.Skipped != 1 || report.Bound != 1 {
		t.Errorf("expected G1 skipped and G2 bound, got %+v", report)
	}

	ana, _ := s.GetSubscriberByAddress(ctx, "1")
	if ana.GroupID != "G2" {
		t.Errorf("ana should be bound to G2, got %q", ana.GroupID)
	}
	g1, _ := s.GetGroup(ctx, "G1")
	if g1.IsComplete() {
		t.Error("G1 should remain incomplete")
	}
}

func TestRunCycle_InviteDeliveryFailureKeepsBinding(t *testing.T) {
	s := setupTestStore(t)
	inviter := &fakeInviter{failInvite: true}
	monitor := NewGroupMonitor(s, inviter, time.Minute, testLogger(), nil, nil)
	ctx := context.Background()

	addGroup(t, s, "G1")
	addSubscriber(t, s, "1", "Ana", "rust")

	report, err := monitor.RunCycle(ctx)
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if report.Bound != 1 || report.InvitesSent != 0 {
		t.Errorf("unexpected report: %+v", report)
	}
	ana, _ := s.GetSubscriberByAddress(ctx, "1")
	if ana.GroupID != "G1" {
		t.Error("binding must survive a failed invitation")
	}
}

// failingBindStore fails every binding write.
type failingBindStore struct {
	*store.SQLiteStore
}

func (f failingBindStore) BindSubscriberGroup(context.Context, string, string, string, string) (bool, error) {
	return false, errors.New("disk I/O error")
}

func TestRunCycle_BindFailureLeavesOrphan(t *testing.T) {
	s := setupTestStore(t)
	inviter := &fakeInviter{}
	monitor := NewGroupMonitor(failingBindStore{s}, inviter, time.Minute, testLogger(), nil, nil)
	ctx := context.Background()

	addGroup(t, s, "G1")
	addSubscriber(t, s, "1", "Ana", "rust")

	report, err := monitor.RunCycle(ctx)
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if report.Bound != 0 || report.Orphaned != 1 {
		t.Errorf("expected an orphaned group, got %+v", report)
	}
	if len(inviter.invites) != 0 {
		t.Error("no invitation without a binding")
	}
	ana, _ := s.GetSubscriberByAddress(ctx, "1")
	if ana.HasGroup() {
		t.Error("ana should remain unassigned")
	}
}

func TestRunCycle_StorageFailure(t *testing.T) {
	s := setupTestStore(t)
	monitor := NewGroupMonitor(s, &fakeInviter{}, time.Minute, testLogger(), nil, nil)
	s.Close()

	if _, err := monitor.RunCycle(context.Background()); !errors.Is(err, store.ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestProcessGroup(t *testing.T) {
	s := setupTestStore(t)
	inviter := &fakeInviter{}
	monitor := NewGroupMonitor(s, inviter, time.Minute, testLogger(), nil, nil)
	ctx := context.Background()

	// Unknown group is created empty.
	if err := monitor.ProcessGroup(ctx, "G1", false); err != nil {
		t.Fatalf("process new: %v", err)
	}
	g, _ := s.GetGroup(ctx, "G1")
	if g == nil || g.IsComplete() || inviter.links != 0 {
		t.Fatalf("expected empty group G1, got %+v links=%d", g, inviter.links)
	}

	// Known group without invite gets one; the name is kept.
	s.UpdateGroup(ctx, "G1", "Named", "")
	if err := monitor.ProcessGroup(ctx, "G1", false); err != nil {
		t.Fatalf("process missing invite: %v", err)
	}
	g, _ = s.GetGroup(ctx, "G1")
	if g.Name != "Named" || g.InviteLink == "" {
		t.Errorf("unexpected group: %+v", g)
	}
	first := g.InviteLink

	// Complete group is left alone unless forced.
	if err := monitor.ProcessGroup(ctx, "G1", false); err != nil {
		t.Fatalf("process complete: %v", err)
	}
	g, _ = s.GetGroup(ctx, "G1")
	if g.InviteLink != first {
		t.Error("invite should not change without force")
	}

	if err := monitor.ProcessGroup(ctx, "G1", true); err != nil {
		t.Fatalf("process forced: %v", err)
	}
	g, _ = s.GetGroup(ctx, "G1")
	if g.InviteLink == first {
		t.Error("forced refresh should replace the invite")
	}
}

func TestProcessGroup_InviteFailure(t *testing.T) {
	s := setupTestStore(t)
	monitor := NewGroupMonitor(s, &fakeInviter{failLink: map[string]bool{"G1": true}}, time.Minute, testLogger(), nil, nil)
	ctx := context.Background()
	addGroup(t, s, "G1")

	err := monitor.ProcessGroup(ctx, "G1", true)
	if !errors.Is(err, ErrInviteUnavailable) {
		t.Errorf("expected ErrInviteUnavailable, got %v", err)
	}
}

func TestProcessGroup_ForcedRefreshUpdatesBinding(t *testing.T) {
	s := setupTestStore(t)
	monitor := NewGroupMonitor(s, &fakeInviter{}, time.Minute, testLogger(), nil, nil)
	ctx := context.Background()
	addGroup(t, s, "G1")
	addSubscriber(t, s, "bruno", "Bruno", "ai")

	if _, err := monitor.RunCycle(ctx); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	before, _ := s.GetSubscriberByAddress(ctx, "bruno")

	if err := monitor.ProcessGroup(ctx, "G1", true); err != nil {
		t.Fatalf("process forced: %v", err)
	}
	g, _ := s.GetGroup(ctx, "G1")
	sub, _ := s.GetSubscriberByAddress(ctx, "bruno")
	if g.InviteLink == before.InviteLink {
		t.Fatal("forced refresh should replace the invite")
	}
	if sub.InviteLink != g.InviteLink || sub.GroupName != g.Name {
		t.Errorf("binding out of sync with group: sub=%+v group=%+v", sub, g)
	}
}

// blockingInviter holds the first invite request for holdGroup until release
// is closed.
type blockingInviter struct {
	*fakeInviter
	holdGroup string
	started   chan struct{}
	release   chan struct{}
	once      sync.Once
}

func (b *blockingInviter) CreateInviteLink(ctx context.Context, groupID string) (string, error) {
	held := false
	if groupID == b.holdGroup {
		b.once.Do(func() { held = true })
	}
	if held {
		close(b.started)
		<-b.release
	}
	return b.fakeInviter.CreateInviteLink(ctx, groupID)
}

func TestProcessGroup_ConcurrentCycleKeepsSingleBinding(t *testing.T) {
	s := setupTestStore(t)
	inviter := &blockingInviter{
		fakeInviter: &fakeInviter{},
		holdGroup:   "G1",
		started:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	monitor := NewGroupMonitor(s, inviter, time.Minute, testLogger(), nil, nil)
	ctx := context.Background()

	addGroup(t, s, "G1")
	addSubscriber(t, s, "ana", "Ana", "rust")
	addSubscriber(t, s, "bruno", "Bruno", "go")

	processed := make(chan error, 1)
	go func() { processed <- monitor.ProcessGroup(ctx, "G1", false) }()
	<-inviter.started

	// The cycle completes G1 while the on-demand refresh is waiting on the
	// platform.
	report, err := monitor.RunCycle(ctx)
	if err != nil || report.Bound != 1 {
		t.Fatalf("first cycle: %+v err=%v", report, err)
	}
	close(inviter.release)
	if err := <-processed; err != nil {
		t.Fatalf("process group: %v", err)
	}

	g, _ := s.GetGroup(ctx, "G1")
	if !g.IsComplete() || g.Name != "Grupo de Ana - rust" {
		t.Fatalf("group lost its name: %+v", g)
	}

	report, err = monitor.RunCycle(ctx)
	if err != nil || report.Incomplete != 0 || report.Bound != 0 {
		t.Errorf("second cycle should be idle: %+v err=%v", report, err)
	}

	subs, _ := s.ListSubscribers(ctx, false)
	bound := 0
	for _, sub := range subs {
		if sub.GroupID == "G1" {
			bound++
			if sub.InviteLink != g.InviteLink {
				t.Errorf("binding link %q differs from group link %q", sub.InviteLink, g.InviteLink)
			}
		}
	}
	if bound != 1 {
		t.Errorf("expected G1 bound to exactly one subscriber, got %d", bound)
	}
}

func TestGroupName(t *testing.T) {
	tests := []struct {
		name     string
		keywords []string
		want     string
	}{
		{"Ana", []string{"rust", "go", "zig", "c"}, "Grupo de Ana - rust, go, zig"},
		{"Bruno", []string{"ai"}, "Grupo de Bruno - ai"},
		{"Carla", nil, "Grupo de Carla - Geral"},
	}
	for _, tt := range tests {
		got := GroupName(&domain.Subscriber{Name: tt.name, Keywords: tt.keywords})
		if got != tt.want {
			t.Errorf("GroupName(%s) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestGroupMonitor_StartStop(t *testing.T) {
	s := setupTestStore(t)
	inviter := &fakeInviter{}
	monitor := NewGroupMonitor(s, inviter, 20*time.Millisecond, testLogger(), nil, nil)

	addGroup(t, s, "G1")

	if !monitor.Start(context.Background()) {
		t.Fatal("first start should succeed")
	}
	if monitor.Start(context.Background()) {
		t.Error("second start should report already running")
	}

	// The group becomes complete once a subscriber shows up.
	addSubscriber(t, s, "1", "Ana", "rust")
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if g, _ := s.GetGroup(context.Background(), "G1"); g != nil && g.IsComplete() {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if g, _ := s.GetGroup(context.Background(), "G1"); !g.IsComplete() {
		t.Error("loop should have completed G1")
	}

	if !monitor.Stop(time.Second) {
		t.Error("monitor should stop within the timeout")
	}
	if monitor.Running() {
		t.Error("monitor should not be running after stop")
	}
	if !monitor.Stop(time.Second) {
		t.Error("stopping twice should be harmless")
	}
}
