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

	"github.com/robfig/cron/v3"

	"github.com/agentorg/runtime/internal/domain/message"
	"github.com/agentorg/runtime/internal/domain/task"
	"github.com/agentorg/runtime/internal/port/bus"
	"github.com/agentorg/runtime/internal/port/store"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// JobKind is the schedule shape of a Scheduler job (spec.md §4.5).
type JobKind string

const (
	JobInterval JobKind = "interval"
	JobDaily    JobKind = "daily"
	JobWeekly   JobKind = "weekly"
)

// JobHandler performs a scheduled job's work.
type JobHandler func(ctx context.Context, sched *Scheduler) error

// Job is one entry of the scheduler's job table: a handler plus its own
// run bookkeeping. Grounded on haasonsaas-nexus's internal/cron.Job/Schedule
// pattern (cron.Schedule.Next computing the next fire time from a parsed
// expression), generalized from webhook/message/custom job types to the
// spec's interval/daily/weekly kinds and an in-process handler closure.
type Job struct {
	ID       string
	Name     string
	Kind     JobKind
	Interval time.Duration
	cronExpr cron.Schedule // nil for JobInterval

	Handler  JobHandler
	LastRun  time.Time
	NextRun  time.Time
	RunCount int
	Enabled  bool
}

// NewIntervalJob builds a job that reruns every d.
func NewIntervalJob(id, name string, d time.Duration, handler JobHandler) *Job {
	return &Job{ID: id, Name: name, Kind: JobInterval, Interval: d, Handler: handler, Enabled: true}
}

// NewDailyJob builds a job firing once a day at hh:mm.
func NewDailyJob(id, name string, hh, mm int, handler JobHandler) (*Job, error) {
	expr := fmt.Sprintf("%d %d * * *", mm, hh)
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("scheduler: parse daily schedule %q: %w", expr, err)
	}
	return &Job{ID: id, Name: name, Kind: JobDaily, cronExpr: sched, Handler: handler, Enabled: true}, nil
}

// NewWeeklyJob builds a job firing once a week on dow at hh:mm.
func NewWeeklyJob(id, name string, dow time.Weekday, hh, mm int, handler JobHandler) (*Job, error) {
	expr := fmt.Sprintf("%d %d * * %d", mm, hh, int(dow))
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("scheduler: parse weekly schedule %q: %w", expr, err)
	}
	return &Job{ID: id, Name: name, Kind: JobWeekly, cronExpr: sched, Handler: handler, Enabled: true}, nil
}

func (j *Job) seedNextRun(now time.Time) {
	switch j.Kind {
	case JobInterval:
		j.NextRun = now.Add(j.Interval)
	default:
		j.NextRun = j.cronExpr.Next(now)
	}
}

// State is the scheduler's own lifecycle, independent of the agent loops it
// owns (spec.md §4.5: "Pause stops processing but keeps loops alive").
type State string

const (
	StateStopped  State = "STOPPED"
	StateStarting State = "STARTING"
	StateRunning  State = "RUNNING"
	StatePaused   State = "PAUSED"
	StateStopping State = "STOPPING"
)

var errAlreadyRunning = errors.New("scheduler: already running")

const schedulerTick = 10 * time.Second
const healthCheckInterval = 5 * time.Minute
const idleThreshold = 5 * time.Minute

// Scheduler owns every AgentRuntime and the global job/approval timers.
// Grounded on haasonsaas-nexus's internal/cron.Scheduler (sync.Mutex running
// flag, ticker-driven runDue loop, execution bookkeeping per job) merged
// with the teacher's internal/service/runtime_approval.go HITL approval
// channel, generalized to the spec's approval-queue item shape.
type Scheduler struct {
	bus       bus.Bus
	runtimes  map[string]*AgentRuntime
	approvals store.ApprovalStore
	chairman  string

	mu    sync.RWMutex
	jobs  []*Job
	state State
	now   func() time.Time

	stop chan struct{}
	done chan struct{}
}

// NewScheduler constructs a stopped Scheduler over the given bus, the
// already-constructed agent runtimes keyed by agent id, the approval store,
// and the chairman's agent id (notified on every approval submission).
func NewScheduler(b bus.Bus, runtimes map[string]*AgentRuntime, approvals store.ApprovalStore, chairmanID string) *Scheduler {
	return &Scheduler{
		bus: b, runtimes: runtimes, approvals: approvals, chairman: chairmanID,
		state: StateStopped, now: time.Now,
	}
}

// RegisterJob adds a job to the table. Safe to call before or after Start.
func (s *Scheduler) RegisterJob(j *Job) {
	if j == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.jobs {
		if existing.ID == j.ID {
			s.jobs[i] = j
			return
		}
	}
	s.jobs = append(s.jobs, j)
}

// Jobs returns a snapshot of the job table.
func (s *Scheduler) Jobs() []*Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Job, len(s.jobs))
	for i, j := range s.jobs {
		cp := *j
		out[i] = &cp
	}
	return out
}

// State reports the scheduler's own lifecycle state.
func (s *Scheduler) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Start transitions STOPPED->STARTING->RUNNING: registers every runtime's
// mailbox, starts its loop, seeds next-run times for every registered job,
// and enters the 10s main loop (spec.md §4.5).
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateStopped {
		s.mu.Unlock()
		return errAlreadyRunning
	}
	s.state = StateStarting
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	now := s.now()
	for _, j := range s.jobs {
		if j.NextRun.IsZero() {
			j.seedNextRun(now)
		}
	}
	s.mu.Unlock()

	for agentID, rt := range s.runtimes {
		s.bus.RegisterMailbox(agentID)
		rt.Start(ctx)
	}

	s.mu.Lock()
	s.state = StateRunning
	s.mu.Unlock()

	go s.loop(ctx)
	return nil
}

// Stop transitions RUNNING/PAUSED->STOPPING->STOPPED: cancels every agent
// loop, stops the bus, and drains statistics into the log.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return
	}
	s.state = StateStopping
	close(s.stop)
	s.mu.Unlock()
	<-s.done

	for _, rt := range s.runtimes {
		rt.Stop()
	}
	stats := s.bus.Stats()
	if err := s.bus.Close(); err != nil {
		slog.Warn("scheduler: bus close", "error", err)
	}
	slog.Info("scheduler: stopped", "delivered", stats.Delivered, "failed", stats.Failed, "dropped", stats.Dropped)

	s.mu.Lock()
	s.state = StateStopped
	s.mu.Unlock()
}

// Pause stops job/approval processing but leaves agent loops running.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateRunning {
		s.state = StatePaused
	}
}

// Resume resumes job/approval processing after Pause.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StatePaused {
		s.state = StateRunning
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(schedulerTick)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.RLock()
			paused := s.state == StatePaused
			s.mu.RUnlock()
			if paused {
				continue
			}
			s.runDueJobs(ctx)
			s.sweepExpiredApprovals(ctx)
		}
	}
}

func (s *Scheduler) runDueJobs(ctx context.Context) {
	now := s.now()
	s.mu.RLock()
	due := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		if j.Enabled && !j.NextRun.IsZero() && !now.Before(j.NextRun) {
			due = append(due, j)
		}
	}
	s.mu.RUnlock()

	for _, j := range due {
		if err := j.Handler(ctx, s); err != nil {
			slog.Warn("scheduler: job failed", "job", j.ID, "error", err)
		}
		s.mu.Lock()
		j.LastRun = now
		j.RunCount++
		j.seedNextRun(now)
		s.mu.Unlock()
	}
}

// SubmitApproval enqueues an approval-queue item and notifies the chairman
// (spec.md §4.5).
func (s *Scheduler) SubmitApproval(ctx context.Context, kind, title, description, requester string, data map[string]any, ttl time.Duration) (*store.ApprovalItem, error) {
	item := &store.ApprovalItem{
		ID: newApprovalID(), Kind: kind, Title: title, Description: description,
		Requester: requester, Data: data, Status: store.ApprovalPending,
		ExpiresAt: s.now().Add(ttl), CreatedAt: s.now(),
	}
	if err := s.approvals.CreateApproval(ctx, item); err != nil {
		return nil, fmt.Errorf("scheduler: create approval: %w", err)
	}
	if s.chairman != "" {
		_, _ = s.bus.SendDirect(ctx, "scheduler", s.chairman, "Approval requested: "+title, description,
			message.KindApproval, map[string]any{"approval_id": item.ID}, message.PriorityHigh)
	}
	return item, nil
}

// DecideApproval approves or rejects an approval-queue item and notifies
// the original requester.
func (s *Scheduler) DecideApproval(ctx context.Context, id, decisionBy, reason string, approve bool) error {
	item, err := s.approvals.GetApproval(ctx, id)
	if err != nil {
		return fmt.Errorf("scheduler: get approval: %w", err)
	}
	if item.Status != store.ApprovalPending {
		return fmt.Errorf("scheduler: approval %s already decided", id)
	}
	if approve {
		item.Status = store.ApprovalApproved
	} else {
		item.Status = store.ApprovalRejected
	}
	item.DecisionBy = decisionBy
	item.DecisionReason = reason
	if err := s.approvals.UpdateApproval(ctx, item); err != nil {
		return fmt.Errorf("scheduler: update approval: %w", err)
	}
	subject := "Approval rejected: " + item.Title
	if approve {
		subject = "Approval granted: " + item.Title
	}
	_, _ = s.bus.SendDirect(ctx, "scheduler", item.Requester, subject, reason,
		message.KindApproval, map[string]any{"approval_id": item.ID}, message.PriorityNormal)
	return nil
}

// sweepExpiredApprovals auto-rejects items past ExpiresAt with reason
// "expired" (spec.md §4.5).
func (s *Scheduler) sweepExpiredApprovals(ctx context.Context) {
	pending, err := s.approvals.ListApprovals(ctx, store.ApprovalPending)
	if err != nil {
		slog.Warn("scheduler: list pending approvals", "error", err)
		return
	}
	now := s.now()
	for _, item := range pending {
		if now.Before(item.ExpiresAt) {
			continue
		}
		if err := s.DecideApproval(ctx, item.ID, "scheduler", "expired", false); err != nil {
			slog.Warn("scheduler: expire approval", "id", item.ID, "error", err)
		}
	}
}

func newApprovalID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return "approval_" + hex.EncodeToString(buf)
}

// DefaultJobs builds spec.md §4.5's four default jobs: daily standup,
// weekly board report, daily compliance review, and the idle-agent health
// check. leadIDs are the participants invited to the standup.
func DefaultJobs(leadIDs []string, chiefOfStaffID, governanceAgentID string) []*Job {
	jobs := make([]*Job, 0, 4)

	standup, err := NewDailyJob("daily_standup", "Daily standup", 9, 0, func(ctx context.Context, s *Scheduler) error {
		participants := append([]string{s.chairman}, leadIDs...)
		_, err := s.bus.CreateMeetingRoom(ctx, "standup_"+s.now().Format("20060102"), "Daily standup", s.chairman, participants)
		return err
	})
	if err == nil {
		jobs = append(jobs, standup)
	}

	board, err := NewWeeklyJob("weekly_board_report", "Weekly board report", time.Friday, 16, 0, func(ctx context.Context, s *Scheduler) error {
		rt, ok := s.runtimes[chiefOfStaffID]
		if !ok {
			return fmt.Errorf("chief of staff runtime %s not registered", chiefOfStaffID)
		}
		rt.Enqueue(task.KindReport, map[string]any{"report": "weekly_board"}, task.PriorityHigh, 1)
		return nil
	})
	if err == nil {
		jobs = append(jobs, board)
	}

	compliance, err := NewDailyJob("daily_compliance_review", "Daily compliance review", 18, 0, func(ctx context.Context, s *Scheduler) error {
		rt, ok := s.runtimes[governanceAgentID]
		if !ok {
			return fmt.Errorf("governance runtime %s not registered", governanceAgentID)
		}
		rt.Enqueue(task.KindReview, map[string]any{"review": "daily_compliance"}, task.PriorityHigh, 1)
		return nil
	})
	if err == nil {
		jobs = append(jobs, compliance)
	}

	healthCheck := NewIntervalJob("agent_health_check", "Agent health check", healthCheckInterval, func(ctx context.Context, s *Scheduler) error {
		now := s.now()
		for id, rt := range s.runtimes {
			if last := rt.LastActive(); !last.IsZero() && now.Sub(last) > idleThreshold {
				slog.Warn("scheduler: agent idle", "agent", id, "idle_for", now.Sub(last))
			}
		}
		return nil
	})
	jobs = append(jobs, healthCheck)

	return jobs
}
