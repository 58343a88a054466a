// Package scheduler drives the control side of the system: a fixed-interval
// tick promotes due jobs and dispatches them to the execution agent, and
// inbound envelopes from the agent are applied to the queue.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/DevSkits916/postdeck/internal/bridge"
	"github.com/DevSkits916/postdeck/internal/logger"
	"github.com/DevSkits916/postdeck/internal/metrics"
	"github.com/DevSkits916/postdeck/internal/queue"
	"github.com/DevSkits916/postdeck/internal/schema"
)

// DefaultTickInterval is how often due schedules are evaluated.
const DefaultTickInterval = 10 * time.Second

// logRingCapacity bounds the in-memory tail of agent log lines.
const logRingCapacity = 200

// Sender delivers an envelope to the peer context. Satisfied by
// *bridge.Bridge.
type Sender interface {
	Send(ctx context.Context, m *schema.Message) error
}

// Options configures a scheduler.
type Options struct {
	Queue   *queue.Queue
	Sender  Sender
	Metrics *metrics.Collector
	Logger  logger.Logger

	// TickInterval defaults to DefaultTickInterval when zero.
	TickInterval time.Duration
}

// Scheduler owns the tick loop and the control side of the message
// protocol.
type Scheduler struct {
	queue   *queue.Queue
	sender  Sender
	metrics *metrics.Collector
	log     logger.Logger
	tick    time.Duration
	seen    *bridge.SeenCache

	mu              sync.Mutex
	connected       bool
	activeAccountID string
	agentLogs       []*schema.LogPayload
}

// New creates a scheduler. Queue and Sender are required.
func New(opts Options) *Scheduler {
	log := opts.Logger
	if log == nil {
		log = logger.Default()
	}
	m := opts.Metrics
	if m == nil {
		m = &metrics.Collector{}
	}
	tick := opts.TickInterval
	if tick <= 0 {
		tick = DefaultTickInterval
	}

	return &Scheduler{
		queue:   opts.Queue,
		sender:  opts.Sender,
		metrics: m,
		log:     log.WithComponent(logger.ComponentScheduler),
		tick:    tick,
		seen:    bridge.NewSeenCache(0),
	}
}

// Start runs the tick loop until the context is canceled. An immediate
// first tick picks up anything that came due while the process was down.
func (s *Scheduler) Start(ctx context.Context) {
	s.log.Info("scheduler started", "tick_interval", s.tick.String())

	s.Tick(ctx, time.Now())

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		case now := <-ticker.C:
			s.Tick(ctx, now)
		}
	}
}

// Tick evaluates due schedules once. Dispatches are only sent when the
// promotion pass changed something; an idle tick has no side effects.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	s.metrics.Tick()

	promoted, err := s.queue.PromoteDue(now)
	if err != nil {
		s.log.Error("promotion pass failed", "error", err)
		return
	}
	if promoted == 0 {
		return
	}

	s.metrics.Promoted(promoted)
	s.log.Info("tick promoted jobs", "count", promoted)
	s.dispatchRunning(ctx)
}

// dispatchRunning sends a run-now envelope for every running job. The agent
// holds a single-job lease, so at most one of these is accepted per cycle;
// the rest are redelivered on the next state change.
func (s *Scheduler) dispatchRunning(ctx context.Context) {
	for _, d := range s.queue.Running() {
		m := schema.MustMessage(schema.TypeRunNow, schema.RunNowPayload{
			Item:    *d.Job,
			Account: *d.Account,
		})
		if err := s.sender.Send(ctx, m); err != nil {
			s.metrics.SendFailed()
			s.log.Warn("run-now dispatch failed", "job_id", d.Job.ID, "error", err)
			continue
		}
		s.metrics.Dispatched()
		s.log.Debug("run-now dispatched", "job_id", d.Job.ID, "account_id", d.Account.ID)
	}
}

// HandleMessage applies one inbound envelope. The transports may deliver
// the same envelope on more than one channel; repeats are dropped here by
// envelope id before any side effect.
func (s *Scheduler) HandleMessage(ctx context.Context, m *schema.Message) {
	if s.seen.Seen(m.ID) {
		s.metrics.DuplicateDropped()
		s.log.Debug("duplicate envelope dropped", "message_id", m.ID, "type", string(m.Type))
		return
	}

	switch m.Type {
	case schema.TypeStatusUpdate:
		s.handleStatusUpdate(ctx, m)
	case schema.TypeEnqueue:
		s.handleEnqueue(m)
	case schema.TypeState, schema.TypeHandshake:
		s.handleState(m)
	case schema.TypeLog:
		s.handleLog(m)
	case schema.TypeRequestState:
		s.replyState(ctx)
	}
}

func (s *Scheduler) handleStatusUpdate(ctx context.Context, m *schema.Message) {
	p, err := m.StatusUpdatePayload()
	if err != nil {
		s.log.Warn("malformed status update", "message_id", m.ID, "error", err)
		return
	}

	changed, err := s.queue.ApplyStatus(p)
	if err != nil {
		s.log.Error("failed to apply status", "job_id", p.QueueID, "error", err)
		return
	}
	if !changed {
		return
	}

	switch p.Status {
	case schema.StatusSuccess:
		s.metrics.Succeeded()
	case schema.StatusFailed:
		s.metrics.Failed()
	}

	// A finished job frees the agent's lease; redeliver whatever is still
	// running so the next job starts without waiting for a tick.
	s.dispatchRunning(ctx)
}

func (s *Scheduler) handleEnqueue(m *schema.Message) {
	p, err := m.EnqueuePayload()
	if err != nil {
		s.log.Warn("malformed enqueue", "message_id", m.ID, "error", err)
		return
	}

	job := p.Item
	if err := s.queue.Enqueue(&job); err != nil {
		s.log.Warn("remote enqueue rejected", "job_id", job.ID, "error", err)
	}
}

func (s *Scheduler) handleState(m *schema.Message) {
	p, err := m.StatePayload()
	if err != nil {
		s.log.Warn("malformed state announcement", "message_id", m.ID, "error", err)
		return
	}

	s.mu.Lock()
	s.connected = p.Connected
	s.activeAccountID = p.ActiveAccountID
	s.mu.Unlock()

	s.log.Info("agent state changed",
		"connected", p.Connected,
		"active_account_id", p.ActiveAccountID)
}

func (s *Scheduler) handleLog(m *schema.Message) {
	p, err := m.LogPayload()
	if err != nil {
		return
	}

	s.mu.Lock()
	s.agentLogs = append(s.agentLogs, p)
	if len(s.agentLogs) > logRingCapacity {
		s.agentLogs = s.agentLogs[len(s.agentLogs)-logRingCapacity:]
	}
	s.mu.Unlock()

	s.log.Debug("agent log", "level", p.Level, "message", p.Message)
}

func (s *Scheduler) replyState(ctx context.Context) {
	s.mu.Lock()
	p := schema.StatePayload{
		Connected:       s.connected,
		ActiveAccountID: s.activeAccountID,
	}
	s.mu.Unlock()

	if err := s.sender.Send(ctx, schema.MustMessage(schema.TypeState, p)); err != nil {
		s.metrics.SendFailed()
		s.log.Warn("state reply failed", "error", err)
	}
}

// Connected reports the last announced agent connection state.
func (s *Scheduler) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// AgentLogs returns a snapshot of the retained agent log tail.
func (s *Scheduler) AgentLogs() []*schema.LogPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*schema.LogPayload, len(s.agentLogs))
	copy(out, s.agentLogs)
	return out
}
