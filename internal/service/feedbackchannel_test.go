package service

import (
	"context"
	"testing"
	"time"

	"github.com/agentorg/runtime/internal/domain/feedback"
	"github.com/agentorg/runtime/internal/domain/toolcall"
	"github.com/agentorg/runtime/internal/port/store"
)

var _ store.FeedbackStore = (*mockFeedbackStore)(nil)
var _ store.ToolCallStore = (*mockToolCallStore)(nil)

type mockFeedbackStore struct {
	items   map[string]*feedback.Item
	reports []*feedback.CapabilityGapReport
}

func newMockFeedbackStore() *mockFeedbackStore {
	return &mockFeedbackStore{items: make(map[string]*feedback.Item)}
}

func (m *mockFeedbackStore) UpsertFeedbackItem(_ context.Context, item *feedback.Item) error {
	m.items[item.ID] = item
	return nil
}

func (m *mockFeedbackStore) FindOpenToolRequest(_ context.Context, toolName string) (*feedback.Item, error) {
	for _, item := range m.items {
		if item.Category == feedback.CategoryToolRequest && item.ToolName == toolName && !item.Deployed {
			return item, nil
		}
	}
	return nil, errNotFoundForTest
}

func (m *mockFeedbackStore) ListFeedbackItems(_ context.Context, category feedback.Category) ([]*feedback.Item, error) {
	var out []*feedback.Item
	for _, item := range m.items {
		if item.Category == category {
			out = append(out, item)
		}
	}
	return out, nil
}

func (m *mockFeedbackStore) AppendCapabilityGapReport(_ context.Context, r *feedback.CapabilityGapReport) error {
	m.reports = append(m.reports, r)
	return nil
}

type mockToolCallStore struct {
	calls []*toolcall.Call
}

func (m *mockToolCallStore) AppendToolCall(_ context.Context, c *toolcall.Call) error {
	m.calls = append(m.calls, c)
	return nil
}

func (m *mockToolCallStore) ListToolCalls(_ context.Context, agentID string, since time.Time) ([]*toolcall.Call, error) {
	var out []*toolcall.Call
	for _, c := range m.calls {
		if c.Timestamp.Before(since) {
			continue
		}
		if agentID != "" && c.AgentID != agentID {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func TestSubmitDuplicateToolRequestIncrementsCount(t *testing.T) {
	st := newMockFeedbackStore()
	ch := NewFeedbackChannel(st)
	ctx := context.Background()

	first, err := ch.Submit(ctx, "trader_01", feedback.CategoryToolRequest, "options_chain", "need options data", 0.6, 0.5)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	second, err := ch.Submit(ctx, "trader_02", feedback.CategoryToolRequest, "options_chain", "also need it", 0.8, 0.5)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected duplicate tool request to reuse the existing item")
	}
	if second.RequestCount != 2 {
		t.Fatalf("RequestCount = %d, want 2", second.RequestCount)
	}
}

func TestSubmitDeployedToolRequestStartsFreshItem(t *testing.T) {
	st := newMockFeedbackStore()
	ch := NewFeedbackChannel(st)
	ctx := context.Background()

	first, err := ch.Submit(ctx, "trader_01", feedback.CategoryToolRequest, "options_chain", "need options data", 0.6, 0.5)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := ch.MarkDeployed(ctx, "options_chain"); err != nil {
		t.Fatalf("MarkDeployed: %v", err)
	}
	second, err := ch.Submit(ctx, "trader_02", feedback.CategoryToolRequest, "options_chain", "need it again", 0.3, 0.5)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if second.ID == first.ID {
		t.Fatalf("expected a fresh item after the first was deployed")
	}
}

func TestPriorityScoreFormula(t *testing.T) {
	item := &feedback.Item{RequestCount: 20, Urgency: 0.5, Feasibility: 1.0}
	got := item.PriorityScore()
	want := 1.0*0.3 + 0.5*0.3 + 1.0*0.4
	if got != want {
		t.Fatalf("PriorityScore = %v, want %v", got, want)
	}
}

func TestGenerateReportFlagsDeprecationCandidates(t *testing.T) {
	fb := newMockFeedbackStore()
	calls := &mockToolCallStore{}
	start := time.Now().Add(-20 * 24 * time.Hour)
	end := time.Now()

	for i := 0; i < 50; i++ {
		calls.calls = append(calls.calls, &toolcall.Call{Tool: "market_data", Timestamp: start.Add(time.Hour)})
	}
	calls.calls = append(calls.calls, &toolcall.Call{Tool: "rarely_used", Timestamp: start.Add(time.Hour)})

	sys := NewCapabilitySystem(calls, fb)
	report, err := sys.GenerateReport(context.Background(), start, end)
	if err != nil {
		t.Fatalf("GenerateReport: %v", err)
	}
	found := false
	for _, d := range report.DeprecationCandidates {
		if d == "rarely_used" {
			found = true
		}
		if d == "market_data" {
			t.Fatalf("market_data should not be a deprecation candidate")
		}
	}
	if !found {
		t.Fatalf("expected rarely_used to be a deprecation candidate, got %v", report.DeprecationCandidates)
	}
	if len(fb.reports) != 1 {
		t.Fatalf("reports persisted = %d, want 1", len(fb.reports))
	}
}
