package service

import (
	"strings"

	"github.com/agentorg/runtime/internal/domain/topic"
)

// KeywordTable maps a topic category to the lowercase tokens that signal it.
// Loaded from config YAML in production (REDESIGN FLAG: the keyword table
// is data, not code); DefaultKeywords below is the built-in fallback.
type KeywordTable map[topic.Category][]string

// RequiredSecondsTable maps a topic category to the number of seconds
// required before TopicManager escalates it to SCHEDULED.
type RequiredSecondsTable map[topic.Category]int

// DefaultKeywords is the built-in keyword table, grounded on
// original_source/agents/intention.py's INTENTION_KEYWORDS and
// original_source/orchestrator/topic_meeting.py's category set.
func DefaultKeywords() KeywordTable {
	return KeywordTable{
		topic.CategoryRisk: {
			"risk", "danger", "warning", "anomaly", "exceeds", "drawdown", "loss",
			"concerned", "concern", "careful", "breach",
		},
		topic.CategoryStrategy: {
			"strategy", "idea", "hypothesis", "discovered", "opportunity", "alpha",
			"proposal", "suggest", "approach",
		},
		topic.CategoryData: {
			"data", "dataset", "missing data", "stale", "quality", "pipeline",
			"feed", "source",
		},
		topic.CategoryTrading: {
			"position", "order", "execution", "slippage", "fill", "trade", "pnl",
		},
		topic.CategoryGovernance: {
			"compliance", "policy", "violation", "audit", "governance", "approve",
			"authorization",
		},
		topic.CategoryProcess: {
			"process", "efficiency", "improve", "optimize", "workflow", "bottleneck",
		},
		topic.CategoryOrganization: {
			"hire", "headcount", "team", "reorg", "promotion", "termination",
		},
		topic.CategoryEmergency: {
			"urgent", "immediately", "critical", "crash", "must", "emergency",
			"right now",
		},
	}
}

// DefaultRequiredSeconds mirrors topic_meeting.py's
// CATEGORY_SECOND_REQUIREMENTS: risk and emergency topics need the fewest
// (or no) endorsements before escalating.
func DefaultRequiredSeconds() RequiredSecondsTable {
	return RequiredSecondsTable{
		topic.CategoryStrategy:     2,
		topic.CategoryRisk:         1,
		topic.CategoryData:         2,
		topic.CategoryTrading:      2,
		topic.CategoryGovernance:   3,
		topic.CategoryProcess:      2,
		topic.CategoryOrganization: 3,
		topic.CategoryEmergency:    0,
	}
}

var urgencyLexicon = []string{"urgent", "immediately", "critical", "right now", "asap"}

var categoryTag = map[topic.Category]string{
	topic.CategoryRisk:         "[RISK]",
	topic.CategoryStrategy:     "[PROPOSAL]",
	topic.CategoryData:         "[DATA]",
	topic.CategoryTrading:      "[TRADING]",
	topic.CategoryGovernance:   "[GOVERNANCE]",
	topic.CategoryProcess:      "[PROCESS]",
	topic.CategoryOrganization: "[ORG]",
	topic.CategoryEmergency:    "[URGENT]",
}

// IntentionDetector scans agent-produced text for topic-proposal signals.
// Pure function over its keyword/threshold tables, grounded on
// original_source/agents/intention.py's detect_intention.
type IntentionDetector struct {
	keywords KeywordTable
	required RequiredSecondsTable
}

// NewIntentionDetector builds a detector over the given tables. Pass nil
// for either to use the built-in defaults.
func NewIntentionDetector(keywords KeywordTable, required RequiredSecondsTable) *IntentionDetector {
	if keywords == nil {
		keywords = DefaultKeywords()
	}
	if required == nil {
		required = DefaultRequiredSeconds()
	}
	return &IntentionDetector{keywords: keywords, required: required}
}

// Detect scans text for the category with the most keyword matches. Returns
// false if the best category matched fewer than two keywords (spec.md
// §4.6 step 2).
func (d *IntentionDetector) Detect(proposer, department, text string) (topic.Topic, bool) {
	lower := strings.ToLower(text)

	var best topic.Category
	bestMatches := 0
	for category, kws := range d.keywords {
		matches := 0
		for _, kw := range kws {
			if strings.Contains(lower, kw) {
				matches++
			}
		}
		if matches > bestMatches {
			bestMatches = matches
			best = category
		}
	}
	if bestMatches < 2 {
		return topic.Topic{}, false
	}

	priority := topic.PriorityNormal
	for _, kw := range urgencyLexicon {
		if strings.Contains(lower, kw) {
			priority = topic.PriorityUrgent
			break
		}
	}

	required := d.required[best]
	status := topic.StatusSeconding
	if required == 0 {
		status = topic.StatusScheduled
	}

	return topic.Topic{
		Category:        best,
		Title:           titleFor(text, best),
		Description:     truncate(text, 500),
		Priority:        priority,
		Status:          status,
		Proposer:        proposer,
		RequiredSeconds: required,
	}, true
}

func titleFor(text string, category topic.Category) string {
	first := text
	if i := strings.IndexAny(text, "\n."); i >= 0 {
		first = text[:i]
	}
	first = strings.TrimSpace(first)
	if len(first) > 50 {
		first = first[:50] + "..."
	}
	tag := categoryTag[category]
	if tag == "" {
		return first
	}
	return tag + " " + first
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// ExplicitTopic is the parsed result of a [PROPOSE_TOPIC] marker (spec.md
// §4.6's ExplicitIntention).
type ExplicitTopic struct {
	Title        string
	Description  string
	Category     string
	Urgency      string
	Participants []string
}

const explicitTopicMarker = "[PROPOSE_TOPIC]"

// ExplicitIntention parses a [PROPOSE_TOPIC] block of key:value lines out
// of text, per original_source/agents/intention.py's
// check_explicit_intention but matching the ASCII marker spec.md names.
func ExplicitIntention(text string) (ExplicitTopic, bool) {
	idx := strings.Index(text, explicitTopicMarker)
	if idx < 0 {
		return ExplicitTopic{}, false
	}
	var out ExplicitTopic
	found := false
	for _, line := range strings.Split(text[idx:], "\n") {
		key, value, ok := splitKeyValue(line)
		if !ok {
			continue
		}
		switch strings.ToLower(key) {
		case "title":
			out.Title = value
			found = true
		case "description":
			out.Description = value
			found = true
		case "kind", "category":
			out.Category = value
			found = true
		case "urgency":
			out.Urgency = value
			found = true
		case "participants":
			out.Participants = splitList(value)
			found = true
		}
	}
	return out, found
}

func splitKeyValue(line string) (key, value string, ok bool) {
	i := strings.IndexAny(line, ":")
	if i < 0 {
		return "", "", false
	}
	key = strings.TrimSpace(line[:i])
	value = strings.TrimSpace(line[i+1:])
	if key == "" || value == "" {
		return "", "", false
	}
	return key, value, true
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
