package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/agentorg/runtime/internal/adapter/otel"
	"github.com/agentorg/runtime/internal/domain"
	"github.com/agentorg/runtime/internal/domain/agent"
	"github.com/agentorg/runtime/internal/domain/message"
	"github.com/agentorg/runtime/internal/domain/task"
	"github.com/agentorg/runtime/internal/port/bus"
	"github.com/agentorg/runtime/internal/port/llm"
)

const (
	defaultAgentInterval    = 2 * time.Second
	defaultMailboxTimeout   = 100 * time.Millisecond
	defaultMailboxBatch     = 10
	activityLogCap          = 100
	conversationHistoryCap  = 50
)

// ActivityEntry is one row of an agent's bounded activity log.
type ActivityEntry struct {
	Timestamp time.Time
	Type      string
	Details   string
}

// ConversationEntry is one row of an agent's bounded conversation history,
// used as LLM context for subsequent Think calls.
type ConversationEntry struct {
	Timestamp time.Time
	Role      string
	Content   string
}

// TaskHandlerFunc executes one task kind and returns structured result data.
type TaskHandlerFunc func(ctx context.Context, rt *AgentRuntime, t *task.Task) (map[string]any, error)

// RoleBehavior supplies the role-specific parts of an AgentRuntime per
// spec.md §4.11/§9: CheckForWork and any extra task kinds a role handles,
// beyond the base kinds (think/respond/review/report/meeting) every
// AgentRuntime supports by default.
type RoleBehavior interface {
	// CheckForWork inspects rt's state and enqueues proactive tasks. Called
	// once per tick when the agent is otherwise idle.
	CheckForWork(ctx context.Context, rt *AgentRuntime)

	// TaskHandlers returns additional task.Kind dispatch targets this role
	// understands, layered on top of the base set.
	TaskHandlers() map[task.Kind]TaskHandlerFunc
}

// AgentRuntime is the per-agent cooperative loop of spec.md §4.4. Grounded
// on the teacher's service/runtime.go per-run goroutine + sync.Map
// bookkeeping shape, generalized from a single coding-agent execution run
// to an indefinitely-looping mailbox/task-queue cycle.
type AgentRuntime struct {
	Agent *agent.Agent

	bus    bus.Bus
	queue  *task.Queue
	llm    llm.Client
	router *ToolRouter
	role   RoleBehavior

	metrics *otel.Metrics

	mu           sync.Mutex
	activityLog  []ActivityEntry
	conversation []ConversationEntry
	discoveries  []string
	lastActive   time.Time

	interval time.Duration
	running  bool
	stop     chan struct{}
	done     chan struct{}
}

// SetMetrics attaches an OTEL metrics instrument set. Pass nil to disable.
func (rt *AgentRuntime) SetMetrics(m *otel.Metrics) {
	rt.metrics = m
}

// NewAgentRuntime constructs a stopped runtime for ag. The bus mailbox must
// already be registered by the caller (Runtime does this at construction).
func NewAgentRuntime(ag *agent.Agent, b bus.Bus, q *task.Queue, llmClient llm.Client, router *ToolRouter, role RoleBehavior) *AgentRuntime {
	return &AgentRuntime{
		Agent: ag, bus: b, queue: q, llm: llmClient, router: router, role: role,
		interval: defaultAgentInterval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins the cooperative loop on its own goroutine.
func (rt *AgentRuntime) Start(ctx context.Context) {
	rt.mu.Lock()
	if rt.running {
		rt.mu.Unlock()
		return
	}
	rt.running = true
	rt.stop = make(chan struct{})
	rt.done = make(chan struct{})
	rt.mu.Unlock()

	go rt.loop(ctx)
}

// Stop flips isRunning=false; the loop finishes its current tick (current
// task runs to completion) and exits at the next boundary, per spec.md
// §4.4's cancellation contract.
func (rt *AgentRuntime) Stop() {
	rt.mu.Lock()
	if !rt.running {
		rt.mu.Unlock()
		return
	}
	rt.running = false
	close(rt.stop)
	rt.mu.Unlock()
	<-rt.done
}

// IsRunning reports whether the loop goroutine is active.
func (rt *AgentRuntime) IsRunning() bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.running
}

// LastActive returns the timestamp of the runtime's most recent tick, used
// by the scheduler's health-check job to flag idle agents.
func (rt *AgentRuntime) LastActive() time.Time {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.lastActive
}

func (rt *AgentRuntime) loop(ctx context.Context) {
	defer close(rt.done)
	ticker := time.NewTicker(rt.interval)
	defer ticker.Stop()

	for {
		select {
		case <-rt.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			rt.tick(ctx)
		}
	}
}

func (rt *AgentRuntime) tick(ctx context.Context) {
	rt.mu.Lock()
	rt.lastActive = time.Now()
	rt.mu.Unlock()

	msgs, err := rt.bus.GetMessages(ctx, rt.Agent.ID, defaultMailboxTimeout, defaultMailboxBatch)
	if err != nil && ctx.Err() == nil {
		slog.Debug("agentruntime: get messages", "agent", rt.Agent.ID, "error", err)
	}
	for _, m := range msgs {
		rt.HandleBusMessage(ctx, m)
	}

	if rt.queue.Size() == 0 && rt.role != nil {
		rt.role.CheckForWork(ctx, rt)
	}

	if rt.queue.Size() > 0 {
		if t := rt.queue.PopBlocking(ctx, 0); t != nil {
			rt.ProcessTask(ctx, t)
		}
	}
}

// HandleBusMessage dispatches an inbound message per spec.md §4.4: system
// kind is handled directly (logged), meeting kind becomes a meeting task,
// everything else becomes a respond task.
func (rt *AgentRuntime) HandleBusMessage(ctx context.Context, m message.Message) {
	switch m.ChannelKind {
	case message.ChannelSystem:
		rt.logActivity("system_message", m.Subject+": "+m.Content)
	case message.ChannelMeeting:
		rt.Enqueue(task.KindMeeting, map[string]any{
			"meeting_id": m.ChannelID,
			"agenda":     m.Content,
		}, task.PriorityNormal, 2)
	default:
		rt.Enqueue(task.KindRespond, map[string]any{
			"message": m.Content,
			"from":    m.From,
		}, priorityFromMessage(m.Priority), 2)
	}
}

func priorityFromMessage(p message.Priority) task.Priority {
	switch p {
	case message.PriorityCritical:
		return task.PriorityUrgent
	case message.PriorityHigh:
		return task.PriorityHigh
	case message.PriorityLow:
		return task.PriorityLow
	default:
		return task.PriorityNormal
	}
}

// Enqueue pushes a new task of kind onto this agent's queue.
func (rt *AgentRuntime) Enqueue(kind task.Kind, payload map[string]any, priority task.Priority, maxRetries int) *task.Task {
	t := task.New(newTaskID(), rt.Agent.ID, kind, payload, priority, maxRetries, time.Now())
	rt.queue.Push(t)
	return t
}

// ProcessTask executes t per its kind, retrying transient failures and
// logging the outcome to the activity log.
func (rt *AgentRuntime) ProcessTask(ctx context.Context, t *task.Task) {
	if t.Expired(time.Now()) {
		t.Status = task.StatusFailed
		t.Err = "deadline exceeded before execution"
		rt.logActivity("task_expired", t.ID)
		return
	}

	ctx, span := otel.StartTaskSpan(ctx, rt.Agent.ID, t.ID, string(t.Kind))
	defer span.End()
	start := time.Now()

	t.Status = task.StatusRunning
	handler := rt.resolveHandler(t.Kind)
	if handler == nil {
		t.Status = task.StatusFailed
		t.Err = fmt.Sprintf("no handler for task kind %q", t.Kind)
		rt.logActivity("task_unhandled", t.Err)
		return
	}

	result, err := handler(ctx, rt, t)
	if err != nil {
		if errors.Is(err, domain.ErrTransient) && rt.queue.Retry(t, time.Now()) {
			rt.logActivity("task_retry", fmt.Sprintf("%s: %v", t.ID, err))
			return
		}
		t.Status = task.StatusFailed
		t.Err = err.Error()
		rt.logActivity("task_failed", fmt.Sprintf("%s: %v", t.ID, err))
		if rt.metrics != nil {
			rt.metrics.TasksFailed.Add(ctx, 1)
			rt.metrics.TaskDuration.Record(ctx, time.Since(start).Seconds())
		}
		return
	}

	t.Status = task.StatusDone
	t.Result = result
	rt.logActivity("task_completed", fmt.Sprintf("%s in %s", t.ID, time.Since(start)))
	if rt.metrics != nil {
		rt.metrics.TasksProcessed.Add(ctx, 1)
		rt.metrics.TaskDuration.Record(ctx, time.Since(start).Seconds())
	}
}

func (rt *AgentRuntime) resolveHandler(kind task.Kind) TaskHandlerFunc {
	if rt.role != nil {
		if extra := rt.role.TaskHandlers(); extra != nil {
			if h, ok := extra[kind]; ok {
				return h
			}
		}
	}
	return baseTaskHandlers[kind]
}

// baseTaskHandlers implements the five universal task kinds of spec.md
// §4.4; role-specific kinds are layered on top via RoleBehavior.TaskHandlers.
var baseTaskHandlers = map[task.Kind]TaskHandlerFunc{
	task.KindThink:   handleThink,
	task.KindRespond: handleRespond,
	task.KindReview:  handleReview,
	task.KindReport:  handleReport,
	task.KindMeeting: handleMeeting,
}

func handleThink(ctx context.Context, rt *AgentRuntime, t *task.Task) (map[string]any, error) {
	prompt, _ := t.Payload["prompt"].(string)
	reply, err := rt.llm.Think(ctx, prompt, rt.llmContext())
	if err != nil {
		return nil, fmt.Errorf("think: %w: %v", domain.ErrTransient, err)
	}
	rt.appendConversation("assistant", reply)
	return map[string]any{"response": reply}, nil
}

func handleRespond(ctx context.Context, rt *AgentRuntime, t *task.Task) (map[string]any, error) {
	content, _ := t.Payload["message"].(string)
	from, _ := t.Payload["from"].(string)
	rt.appendConversation("user", content)

	prompt := rt.personaPrompt() + "\n\nRespond to this message from " + from + ":\n" + content
	reply, err := rt.llm.Think(ctx, prompt, rt.llmContext())
	if err != nil {
		return nil, fmt.Errorf("respond: %w: %v", domain.ErrTransient, err)
	}
	rt.appendConversation("assistant", reply)

	if _, err := rt.bus.SendDirect(ctx, rt.Agent.ID, from, "Re: message", reply, message.KindText, nil, message.PriorityNormal); err != nil {
		return nil, fmt.Errorf("respond: send reply: %w", err)
	}
	return map[string]any{"reply": reply}, nil
}

func handleReview(ctx context.Context, rt *AgentRuntime, t *task.Task) (map[string]any, error) {
	item, _ := t.Payload["item"].(string)
	reviewType, _ := t.Payload["review_type"].(string)
	prompt := fmt.Sprintf("%s\n\nReview this %s and respond with exactly one word: approved, rejected, or need_revision.\n\n%s", rt.personaPrompt(), reviewType, item)
	decision, err := rt.llm.Think(ctx, prompt, rt.llmContext())
	if err != nil {
		return nil, fmt.Errorf("review: %w: %v", domain.ErrTransient, err)
	}
	return map[string]any{"decision": parseReviewDecision(decision)}, nil
}

func parseReviewDecision(raw string) string {
	switch {
	case containsCI(raw, "approved"):
		return "approved"
	case containsCI(raw, "need_revision"), containsCI(raw, "revision"):
		return "need_revision"
	default:
		return "rejected"
	}
}

func containsCI(haystack, needle string) bool {
	h, n := []rune(haystack), []rune(needle)
	if len(n) == 0 || len(n) > len(h) {
		return false
	}
	lowerH := toLowerRunes(h)
	lowerN := toLowerRunes(n)
	for i := 0; i+len(lowerN) <= len(lowerH); i++ {
		match := true
		for j := range lowerN {
			if lowerH[i+j] != lowerN[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func toLowerRunes(r []rune) []rune {
	out := make([]rune, len(r))
	for i, c := range r {
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return out
}

func handleReport(ctx context.Context, rt *AgentRuntime, t *task.Task) (map[string]any, error) {
	reportType, _ := t.Payload["report_type"].(string)
	prompt := fmt.Sprintf("%s\n\nGenerate a %s report from this data:\n%v", rt.personaPrompt(), reportType, t.Payload["data"])
	report, err := rt.llm.Think(ctx, prompt, rt.llmContext())
	if err != nil {
		return nil, fmt.Errorf("report: %w: %v", domain.ErrTransient, err)
	}
	return map[string]any{"report": report}, nil
}

func handleMeeting(ctx context.Context, rt *AgentRuntime, t *task.Task) (map[string]any, error) {
	meetingID, _ := t.Payload["meeting_id"].(string)
	agenda, _ := t.Payload["agenda"].(string)

	room, ok := rt.bus.GetRoom(ctx, meetingID)
	transcript := ""
	if ok {
		for _, m := range room.Transcript {
			transcript += m.From + ": " + m.Content + "\n"
		}
	}

	prompt := fmt.Sprintf("%s\n\nMeeting agenda: %s\n\nRecent transcript:\n%s\n\nContribute your input.", rt.personaPrompt(), agenda, transcript)
	contribution, err := rt.llm.Think(ctx, prompt, rt.llmContext())
	if err != nil {
		return nil, fmt.Errorf("meeting: %w: %v", domain.ErrTransient, err)
	}

	if _, err := rt.bus.SendToMeeting(ctx, meetingID, rt.Agent.ID, contribution, message.KindDiscussion); err != nil {
		return nil, fmt.Errorf("meeting: send contribution: %w", err)
	}
	return map[string]any{"contribution": contribution}, nil
}

// AddDiscovery appends to the agent's discoveries[] slice (no size cap), used by
// role-specific research tasks (spec.md §4.11).
func (rt *AgentRuntime) AddDiscovery(d string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.discoveries = append(rt.discoveries, d)
}

// Discoveries returns a snapshot copy of the agent's recorded discoveries.
func (rt *AgentRuntime) Discoveries() []string {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return append([]string(nil), rt.discoveries...)
}

func (rt *AgentRuntime) logActivity(kind, details string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.activityLog = append(rt.activityLog, ActivityEntry{Timestamp: time.Now(), Type: kind, Details: details})
	if len(rt.activityLog) > activityLogCap {
		rt.activityLog = rt.activityLog[len(rt.activityLog)-activityLogCap:]
	}
}

// ActivityLog returns a snapshot copy of the bounded activity ring.
func (rt *AgentRuntime) ActivityLog() []ActivityEntry {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return append([]ActivityEntry(nil), rt.activityLog...)
}

func (rt *AgentRuntime) appendConversation(role, content string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.conversation = append(rt.conversation, ConversationEntry{Timestamp: time.Now(), Role: role, Content: content})
	if len(rt.conversation) > conversationHistoryCap {
		rt.conversation = rt.conversation[len(rt.conversation)-conversationHistoryCap:]
	}
}

func (rt *AgentRuntime) llmContext() map[string]any {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	history := make([]map[string]string, 0, len(rt.conversation))
	for _, c := range rt.conversation {
		history = append(history, map[string]string{"role": c.Role, "content": c.Content})
	}
	return map[string]any{
		"agent_id":   rt.Agent.ID,
		"department": rt.Agent.Department,
		"history":    history,
	}
}

func (rt *AgentRuntime) personaPrompt() string {
	traits := ""
	for i, t := range rt.Agent.PersonaTraits {
		if i > 0 {
			traits += ", "
		}
		traits += t
	}
	return fmt.Sprintf("You are %s, a %s in the %s department. Persona traits: %s.", rt.Agent.Name, rt.Agent.RoleKind, rt.Agent.Department, traits)
}

func newTaskID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return "task_" + hex.EncodeToString(buf)
}
