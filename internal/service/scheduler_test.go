package service

import (
	"context"
	"testing"
	"time"

	"github.com/agentorg/runtime/internal/adapter/inmembus"
	"github.com/agentorg/runtime/internal/port/store"
)

var _ store.ApprovalStore = (*mockApprovalStore)(nil)

type mockApprovalStore struct {
	items map[string]*store.ApprovalItem
}

func newMockApprovalStore() *mockApprovalStore {
	return &mockApprovalStore{items: make(map[string]*store.ApprovalItem)}
}

func (m *mockApprovalStore) CreateApproval(_ context.Context, item *store.ApprovalItem) error {
	m.items[item.ID] = item
	return nil
}

func (m *mockApprovalStore) GetApproval(_ context.Context, id string) (*store.ApprovalItem, error) {
	item, ok := m.items[id]
	if !ok {
		return nil, errNotFoundForTest
	}
	return item, nil
}

func (m *mockApprovalStore) ListApprovals(_ context.Context, status store.ApprovalStatus) ([]*store.ApprovalItem, error) {
	var out []*store.ApprovalItem
	for _, item := range m.items {
		if item.Status == status {
			out = append(out, item)
		}
	}
	return out, nil
}

func (m *mockApprovalStore) UpdateApproval(_ context.Context, item *store.ApprovalItem) error {
	m.items[item.ID] = item
	return nil
}

var errNotFoundForTest = &testError{"approval not found"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }

func TestDailyJobSeedsNextRunAtTime(t *testing.T) {
	job, err := NewDailyJob("standup", "standup", 9, 0, func(context.Context, *Scheduler) error { return nil })
	if err != nil {
		t.Fatalf("NewDailyJob: %v", err)
	}
	now := time.Date(2026, 7, 31, 8, 0, 0, 0, time.UTC)
	job.seedNextRun(now)
	want := time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)
	if !job.NextRun.Equal(want) {
		t.Fatalf("NextRun = %v, want %v", job.NextRun, want)
	}

	// once past 09:00 the next run rolls to tomorrow
	job.seedNextRun(want.Add(time.Minute))
	if !job.NextRun.After(want) || job.NextRun.Sub(want) < 23*time.Hour {
		t.Fatalf("NextRun did not roll to the following day: %v", job.NextRun)
	}
}

func TestWeeklyJobFiresOnExpectedWeekday(t *testing.T) {
	job, err := NewWeeklyJob("board_report", "board report", time.Friday, 16, 0, func(context.Context, *Scheduler) error { return nil })
	if err != nil {
		t.Fatalf("NewWeeklyJob: %v", err)
	}
	now := time.Date(2026, 7, 27, 0, 0, 0, 0, time.UTC) // Monday
	job.seedNextRun(now)
	if job.NextRun.Weekday() != time.Friday {
		t.Fatalf("NextRun weekday = %v, want Friday", job.NextRun.Weekday())
	}
}

func TestSchedulerRunDueJobsAdvancesAfterFiring(t *testing.T) {
	bus := inmembus.New()
	sched := NewScheduler(bus, map[string]*AgentRuntime{}, newMockApprovalStore(), "chairman")
	runs := 0
	job := NewIntervalJob("tick_job", "tick job", time.Hour, func(context.Context, *Scheduler) error {
		runs++
		return nil
	})
	sched.now = func() time.Time { return time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC) }
	job.seedNextRun(sched.now())
	sched.RegisterJob(job)

	sched.runDueJobs(context.Background())
	if runs != 0 {
		t.Fatalf("job fired before its NextRun: runs=%d", runs)
	}

	sched.now = func() time.Time { return time.Date(2026, 7, 31, 11, 0, 1, 0, time.UTC) }
	sched.runDueJobs(context.Background())
	if runs != 1 {
		t.Fatalf("runs = %d, want 1", runs)
	}
	if sched.Jobs()[0].RunCount != 1 {
		t.Fatalf("RunCount = %d, want 1", sched.Jobs()[0].RunCount)
	}
}

func TestSubmitApprovalNotifiesChairman(t *testing.T) {
	bus := inmembus.New()
	bus.RegisterMailbox("chairman")
	approvals := newMockApprovalStore()
	sched := NewScheduler(bus, map[string]*AgentRuntime{}, approvals, "chairman")

	ctx := context.Background()
	item, err := sched.SubmitApproval(ctx, "hiring", "Hire researcher_07", "new hire", "lead_quant", nil, time.Hour)
	if err != nil {
		t.Fatalf("SubmitApproval: %v", err)
	}
	msgs, err := bus.GetMessages(ctx, "chairman", 50*time.Millisecond, 10)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("chairman mailbox has %d messages, want 1", len(msgs))
	}

	if err := sched.DecideApproval(ctx, item.ID, "chairman", "approved for headcount", true); err != nil {
		t.Fatalf("DecideApproval: %v", err)
	}
	got, err := approvals.GetApproval(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetApproval: %v", err)
	}
	if got.Status != store.ApprovalApproved {
		t.Fatalf("Status = %v, want approved", got.Status)
	}
}

func TestSweepExpiredApprovalsAutoRejects(t *testing.T) {
	bus := inmembus.New()
	approvals := newMockApprovalStore()
	sched := NewScheduler(bus, map[string]*AgentRuntime{}, approvals, "chairman")
	sched.now = func() time.Time { return time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC) }

	item := &store.ApprovalItem{
		ID: "approval_expired", Kind: "tool_request", Requester: "trader_01",
		Status: store.ApprovalPending, ExpiresAt: sched.now().Add(-time.Minute),
	}
	if err := approvals.CreateApproval(context.Background(), item); err != nil {
		t.Fatalf("CreateApproval: %v", err)
	}

	sched.sweepExpiredApprovals(context.Background())

	got, err := approvals.GetApproval(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("GetApproval: %v", err)
	}
	if got.Status != store.ApprovalRejected {
		t.Fatalf("Status = %v, want rejected", got.Status)
	}
	if got.DecisionReason != "expired" {
		t.Fatalf("DecisionReason = %q, want %q", got.DecisionReason, "expired")
	}
}
