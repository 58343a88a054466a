// Package agent is the execution side of the system: it accepts run-now
// dispatches one at a time, drives a Poster through the publishing steps
// with retries and human-paced delays, and reports every status transition
// back to the control surface.
package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/DevSkits916/postdeck/internal/bridge"
	"github.com/DevSkits916/postdeck/internal/logger"
	"github.com/DevSkits916/postdeck/internal/schema"
)

// busyReason is reported when a dispatch arrives while another job holds
// the lease. The wording is part of the protocol; the control surface shows
// it verbatim.
const busyReason = "Another job is running"

// Sender delivers an envelope to the control surface. Satisfied by
// *bridge.Bridge.
type Sender interface {
	Send(ctx context.Context, m *schema.Message) error
}

// Options configures a runner. Zero values fall back to production
// defaults; tests shrink the delays.
type Options struct {
	Poster Poster
	Sender Sender
	Logger logger.Logger

	// RetryLimit is the number of attempts per publishing step.
	RetryLimit int
	// BaseDelay seeds the per-step retry backoff.
	BaseDelay time.Duration
	// ThinkMin and ThinkMax bound the pause between publishing steps.
	ThinkMin time.Duration
	ThinkMax time.Duration
}

const (
	defaultRetryLimit = 3
	defaultBaseDelay  = time.Second
	defaultThinkMin   = 500 * time.Millisecond
	defaultThinkMax   = 3 * time.Second
)

// Runner holds the single-job lease and executes dispatches against the
// configured poster.
type Runner struct {
	poster Poster
	sender Sender
	log    logger.Logger
	opts   Options
	seen   *bridge.SeenCache

	mu              sync.Mutex
	active          bool
	activeJobID     string
	activeAccountID string

	wg sync.WaitGroup
}

// New creates a runner. Poster and Sender are required.
func New(opts Options) *Runner {
	log := opts.Logger
	if log == nil {
		log = logger.Default()
	}
	if opts.RetryLimit <= 0 {
		opts.RetryLimit = defaultRetryLimit
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = defaultBaseDelay
	}
	if opts.ThinkMin <= 0 {
		opts.ThinkMin = defaultThinkMin
	}
	if opts.ThinkMax <= 0 {
		opts.ThinkMax = defaultThinkMax
	}

	return &Runner{
		poster: opts.Poster,
		sender: opts.Sender,
		log:    log.WithComponent(logger.ComponentAgent),
		opts:   opts,
		seen:   bridge.NewSeenCache(0),
	}
}

// Announce tells the control surface the agent is up.
func (r *Runner) Announce(ctx context.Context) error {
	return r.sender.Send(ctx, schema.MustMessage(schema.TypeState,
		schema.StatePayload{Connected: true}))
}

// Wait blocks until any in-flight job finishes. Used at shutdown.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// HandleMessage applies one inbound envelope. Repeats of the same envelope
// id are dropped before any side effect.
func (r *Runner) HandleMessage(ctx context.Context, m *schema.Message) {
	if r.seen.Seen(m.ID) {
		r.log.Debug("duplicate envelope dropped", "message_id", m.ID, "type", string(m.Type))
		return
	}

	switch m.Type {
	case schema.TypeRunNow:
		r.handleRunNow(ctx, m)
	case schema.TypeRequestState, schema.TypeHandshake:
		r.replyState(ctx)
	}
}

// handleRunNow takes the lease and starts executing, or rejects the job.
// The control surface redelivers run-now for every running job on each
// state change, so a dispatch naming the job already being executed is
// redundant and ignored rather than rejected.
func (r *Runner) handleRunNow(ctx context.Context, m *schema.Message) {
	p, err := m.RunNowPayload()
	if err != nil {
		r.log.Warn("malformed run-now", "message_id", m.ID, "error", err)
		return
	}

	r.mu.Lock()
	if r.active {
		activeID := r.activeJobID
		r.mu.Unlock()
		if activeID == p.Item.ID {
			r.log.Debug("redelivered dispatch for the active job ignored", "job_id", p.Item.ID)
			return
		}
		r.log.Info("dispatch rejected, lease held",
			"job_id", p.Item.ID,
			"active_job_id", activeID)
		r.reportStatus(ctx, p.Item.ID, schema.StatusFailed, "", "", busyReason)
		return
	}
	r.active = true
	r.activeJobID = p.Item.ID
	r.activeAccountID = p.Account.ID
	r.mu.Unlock()

	job := p.Item
	account := p.Account
	r.wg.Add(1)
	go r.execute(ctx, &job, &account)
}

// execute runs the full publishing flow for one job. The lease is released
// no matter how the flow ends; a panic in the poster is converted into a
// failed status instead of taking the process down.
func (r *Runner) execute(ctx context.Context, job *schema.Job, account *schema.Account) {
	defer r.wg.Done()
	defer r.release()
	defer func() {
		if rec := recover(); rec != nil {
			reason := fmt.Sprintf("publishing step panicked: %v", rec)
			r.log.Error("job panicked", "job_id", job.ID, "panic", fmt.Sprint(rec))
			r.reportStatus(ctx, job.ID, schema.StatusFailed, "", "", reason)
		}
	}()

	r.log.Info("job accepted", "job_id", job.ID, "account_id", account.ID)
	r.reportStatus(ctx, job.ID, schema.StatusRunning, "", "", "")

	steps := []struct {
		name string
		run  func(context.Context) error
	}{
		{"prepare", func(ctx context.Context) error { return r.poster.Prepare(ctx, account, job.Target) }},
		{"establish-session", func(ctx context.Context) error { return r.poster.EstablishSession(ctx, account) }},
		{"compose", r.poster.Compose},
		{"fill-text", func(ctx context.Context) error { return r.poster.FillText(ctx, job.Content.Text) }},
		{"attach-media", func(ctx context.Context) error {
			if len(job.Content.Media) == 0 {
				return nil
			}
			return r.poster.AttachMedia(ctx, job.Content.Media)
		}},
		{"submit", r.poster.Submit},
	}

	for i, step := range steps {
		if i > 0 {
			if err := sleep(ctx, thinkDelay(r.opts.ThinkMin, r.opts.ThinkMax)); err != nil {
				r.reportStatus(ctx, job.ID, schema.StatusFailed, "", "", err.Error())
				return
			}
		}
		if err := r.retryStep(ctx, job.ID, step.name, step.run); err != nil {
			reason := fmt.Sprintf("%s failed: %v", step.name, err)
			r.log.Warn("job failed", "job_id", job.ID, "step", step.name, "error", err)
			r.reportStatus(ctx, job.ID, schema.StatusFailed, "", "", reason)
			return
		}
	}

	// Proof collection is best-effort: a post that went out without a
	// recoverable id or screenshot is still a success.
	postID, err := r.poster.PostID(ctx)
	if err != nil {
		r.log.Warn("post id not recovered", "job_id", job.ID, "error", err)
		postID = ""
	}
	screenshot, err := r.poster.Screenshot(ctx)
	if err != nil {
		r.log.Warn("screenshot not captured", "job_id", job.ID, "error", err)
		screenshot = ""
	}

	r.log.Info("job published", "job_id", job.ID, "post_id", postID)
	r.reportStatus(ctx, job.ID, schema.StatusSuccess, postID, screenshot, "")
}

// retryStep runs one publishing step with exponential backoff, forwarding a
// log envelope per attempt so the control surface can show progress.
func (r *Runner) retryStep(ctx context.Context, jobID, name string, run func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < r.opts.RetryLimit; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, stepDelay(attempt-1, r.opts.BaseDelay)); err != nil {
				return err
			}
		}

		err := run(ctx)
		if err == nil {
			r.forwardLog(ctx, "info", fmt.Sprintf("step %s completed", name), jobID)
			return nil
		}
		lastErr = err
		r.forwardLog(ctx, "warn",
			fmt.Sprintf("step %s failed (attempt %d/%d): %v", name, attempt+1, r.opts.RetryLimit, err),
			jobID)
	}
	return lastErr
}

func (r *Runner) release() {
	r.mu.Lock()
	r.active = false
	r.activeJobID = ""
	r.activeAccountID = ""
	r.mu.Unlock()
}

// Active reports whether a job currently holds the lease.
func (r *Runner) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

func (r *Runner) reportStatus(ctx context.Context, jobID string, status schema.JobStatus, postID, screenshot, reason string) {
	m := schema.MustMessage(schema.TypeStatusUpdate, schema.StatusUpdatePayload{
		QueueID:    jobID,
		Status:     status,
		PostID:     postID,
		Screenshot: screenshot,
		Reason:     reason,
		Timestamp:  time.Now().UTC(),
	})
	if err := r.sender.Send(ctx, m); err != nil {
		r.log.Error("status report lost", "job_id", jobID, "status", string(status), "error", err)
	}
}

func (r *Runner) forwardLog(ctx context.Context, level, message, jobID string) {
	m := schema.MustMessage(schema.TypeLog, schema.LogPayload{
		Level:     level,
		Message:   message,
		Context:   map[string]string{"jobId": jobID},
		Timestamp: time.Now().UTC(),
	})
	if err := r.sender.Send(ctx, m); err != nil {
		r.log.Debug("log forward lost", "error", err)
	}
}

func (r *Runner) replyState(ctx context.Context) {
	r.mu.Lock()
	p := schema.StatePayload{
		Connected:       true,
		ActiveAccountID: r.activeAccountID,
	}
	r.mu.Unlock()

	if err := r.sender.Send(ctx, schema.MustMessage(schema.TypeState, p)); err != nil {
		r.log.Warn("state reply failed", "error", err)
	}
}
