package service

import (
	"strings"
	"testing"

	"github.com/agentorg/runtime/internal/domain/topic"
)

func TestDetectRequiresTwoKeywordMatches(t *testing.T) {
	d := NewIntentionDetector(nil, nil)

	if _, ok := d.Detect("researcher_01", "research", "the weather is nice today"); ok {
		t.Fatalf("expected no detection for unrelated text")
	}

	got, ok := d.Detect("researcher_01", "research", "I found a new alpha opportunity, here is my strategy idea")
	if !ok {
		t.Fatalf("expected detection for strategy-laden text")
	}
	if got.Category != topic.CategoryStrategy {
		t.Fatalf("Category = %v, want strategy", got.Category)
	}
	if got.RequiredSeconds != 2 {
		t.Fatalf("RequiredSeconds = %d, want 2", got.RequiredSeconds)
	}
	if got.Status != topic.StatusSeconding {
		t.Fatalf("Status = %v, want SECONDING", got.Status)
	}
}

func TestDetectEmergencyCategorySkipsSeconding(t *testing.T) {
	d := NewIntentionDetector(nil, nil)
	got, ok := d.Detect("risk_01", "risk", "urgent critical crash, must act immediately")
	if !ok {
		t.Fatalf("expected detection")
	}
	if got.Category != topic.CategoryEmergency {
		t.Fatalf("Category = %v, want emergency", got.Category)
	}
	if got.RequiredSeconds != 0 {
		t.Fatalf("RequiredSeconds = %d, want 0", got.RequiredSeconds)
	}
	if got.Status != topic.StatusScheduled {
		t.Fatalf("Status = %v, want SCHEDULED", got.Status)
	}
	if got.Priority != topic.PriorityUrgent {
		t.Fatalf("Priority = %v, want URGENT", got.Priority)
	}
}

func TestDetectPicksBestMatchingCategory(t *testing.T) {
	d := NewIntentionDetector(nil, nil)
	got, ok := d.Detect("lead_01", "research", "risk exposure breach: position limit drawdown warning, concerned about concentration")
	if !ok {
		t.Fatalf("expected detection")
	}
	if got.Category != topic.CategoryRisk {
		t.Fatalf("Category = %v, want risk", got.Category)
	}
}

func TestExplicitIntentionParsesMarkerBlock(t *testing.T) {
	text := "Some preamble.\n[PROPOSE_TOPIC]\ntitle: Rotate into defensive assets\ndescription: Market volatility is rising\ncategory: strategy\nurgency: high\nparticipants: lead_01, director_02\n"
	got, ok := ExplicitIntention(text)
	if !ok {
		t.Fatalf("expected explicit intention to parse")
	}
	if got.Title != "Rotate into defensive assets" {
		t.Fatalf("Title = %q", got.Title)
	}
	if got.Category != "strategy" {
		t.Fatalf("Category = %q", got.Category)
	}
	if len(got.Participants) != 2 || got.Participants[0] != "lead_01" || got.Participants[1] != "director_02" {
		t.Fatalf("Participants = %v", got.Participants)
	}
}

func TestExplicitIntentionMissingMarkerReturnsFalse(t *testing.T) {
	if _, ok := ExplicitIntention("no marker here"); ok {
		t.Fatalf("expected no explicit intention without the marker")
	}
}

func TestTitleForTruncatesAndTags(t *testing.T) {
	long := strings.Repeat("a", 80)
	got := titleFor(long, topic.CategoryRisk)
	if !strings.HasPrefix(got, "[RISK] ") {
		t.Fatalf("title missing category tag: %q", got)
	}
	if len(got) > len("[RISK] ")+53 {
		t.Fatalf("title not truncated: %q", got)
	}
}
