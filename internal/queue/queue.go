// Package queue owns the posting queue: accounts, jobs, templates and the
// analytics trail. All mutations funnel through a single mutex and every
// successful mutation is persisted before the call returns.
package queue

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/DevSkits916/postdeck/internal/batch"
	"github.com/DevSkits916/postdeck/internal/cronexpr"
	"github.com/DevSkits916/postdeck/internal/logger"
	"github.com/DevSkits916/postdeck/internal/schema"
	"github.com/DevSkits916/postdeck/internal/similarity"
	"github.com/DevSkits916/postdeck/internal/store"
)

var (
	// ErrUnknownAccount is returned when a job references an account id
	// that does not exist.
	ErrUnknownAccount = errors.New("unknown account")
	// ErrUnknownJob is returned when an operation names a job id that is
	// not in the queue.
	ErrUnknownJob = errors.New("unknown job")
	// ErrUnknownTemplate is returned when a template id does not exist.
	ErrUnknownTemplate = errors.New("unknown template")
	// ErrInvalidCron is returned for a malformed cron schedule.
	ErrInvalidCron = errors.New("invalid cron expression")
	// ErrTooSimilar is returned when the post text scores as a
	// near-duplicate of recently posted content.
	ErrTooSimilar = errors.New("content too similar to a recent post")
)

// recentLimit bounds how many recent analytics texts the dedup check
// consults.
const recentLimit = 20

// Dispatch pairs a running job with its resolved account, ready to be sent
// to the execution agent.
type Dispatch struct {
	Job     *schema.Job
	Account *schema.Account
}

// Queue is the in-memory view of the persisted state plus the mutation
// rules around it.
type Queue struct {
	mu        sync.Mutex
	store     *store.Store
	state     *store.State
	log       logger.Logger
	threshold float64
}

// New loads the persisted state and wraps it in a queue. A non-positive
// threshold falls back to the similarity default.
func New(st *store.Store, log logger.Logger, threshold float64) (*Queue, error) {
	if log == nil {
		log = logger.Default()
	}
	if threshold <= 0 {
		threshold = similarity.DefaultThreshold
	}

	state, err := st.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load queue state: %w", err)
	}

	return &Queue{
		store:     st,
		state:     state,
		log:       log.WithComponent(logger.ComponentQueue),
		threshold: threshold,
	}, nil
}

// Enqueue validates and appends a job to the queue. A cron schedule gets
// its first occurrence stamped into RunAt at enqueue time; the post text is
// checked against recent analytics content and rejected when it scores as a
// near-duplicate.
func (q *Queue) Enqueue(job *schema.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.enqueueLocked(job)
}

func (q *Queue) enqueueLocked(job *schema.Job) error {
	if q.accountLocked(job.AccountID) == nil {
		return fmt.Errorf("%w: %s", ErrUnknownAccount, job.AccountID)
	}

	if job.Schedule.Type == schema.ScheduleCron {
		next, ok := cronexpr.Next(time.Now(), job.Schedule.Cron)
		if !ok {
			return fmt.Errorf("%w: %q", ErrInvalidCron, job.Schedule.Cron)
		}
		job.Schedule.RunAt = &next
	}

	if similarity.IsTooSimilar(job.Content.Text, q.recentTextsLocked(), q.threshold) {
		return ErrTooSimilar
	}

	q.state.Queue = append(q.state.Queue, job)
	q.log.Info("job enqueued",
		"job_id", job.ID,
		"account_id", job.AccountID,
		"schedule", string(job.Schedule.Type))
	return q.persistLocked()
}

// Retry moves a failed job back to queued, consuming one retry. Jobs that
// are not failed, or that have exhausted their retries, are left untouched.
func (q *Queue) Retry(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job := q.jobLocked(id)
	if job == nil {
		return fmt.Errorf("%w: %s", ErrUnknownJob, id)
	}
	if job.Status != schema.StatusFailed || job.Retries >= job.MaxRetries {
		return nil
	}

	job.Retries++
	job.LastError = ""
	job.UpdateStatus(schema.StatusQueued)
	q.log.Info("job retried",
		"job_id", job.ID,
		"retries", job.Retries,
		"max_retries", job.MaxRetries)
	return q.persistLocked()
}

// Pause excludes a queued or running job from future ticks. There is no
// resume; a paused job stays paused until removed.
func (q *Queue) Pause(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job := q.jobLocked(id)
	if job == nil {
		return fmt.Errorf("%w: %s", ErrUnknownJob, id)
	}
	if job.Status != schema.StatusQueued && job.Status != schema.StatusRunning {
		return nil
	}

	job.UpdateStatus(schema.StatusPaused)
	q.log.Info("job paused", "job_id", job.ID)
	return q.persistLocked()
}

// Remove deletes a job from the queue. Its analytics records stay.
func (q *Queue) Remove(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, job := range q.state.Queue {
		if job.ID == id {
			q.state.Queue = append(q.state.Queue[:i], q.state.Queue[i+1:]...)
			q.log.Info("job removed", "job_id", id)
			return q.persistLocked()
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownJob, id)
}

// PromoteDue moves every queued job whose schedule has come due into the
// running status and returns how many were promoted. A cron job gets its
// next occurrence recomputed so it fires again after this run.
func (q *Queue) PromoteDue(now time.Time) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	promoted := 0
	for _, job := range q.state.Queue {
		if job.Status != schema.StatusQueued {
			continue
		}

		switch job.Schedule.Type {
		case schema.ScheduleNone:
			// due immediately
		case schema.ScheduleTime:
			if job.Schedule.RunAt == nil || job.Schedule.RunAt.After(now) {
				continue
			}
		case schema.ScheduleCron:
			if job.Schedule.RunAt == nil || job.Schedule.RunAt.After(now) {
				continue
			}
			if next, ok := cronexpr.Next(now, job.Schedule.Cron); ok {
				job.Schedule.RunAt = &next
			} else {
				job.Schedule.RunAt = nil
			}
		default:
			continue
		}

		job.UpdateStatus(schema.StatusRunning)
		promoted++
		q.log.Info("job promoted", "job_id", job.ID, "schedule", string(job.Schedule.Type))
	}

	if promoted == 0 {
		return 0, nil
	}
	return promoted, q.persistLocked()
}

// ApplyStatus applies an agent status report to the job it names. Reports
// for unknown jobs and repeats of an already-applied terminal status are
// ignored. A terminal report appends exactly one analytics record. Returns
// whether anything changed.
func (q *Queue) ApplyStatus(p *schema.StatusUpdatePayload) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job := q.jobLocked(p.QueueID)
	if job == nil {
		q.log.Warn("status report for unknown job", "job_id", p.QueueID)
		return false, nil
	}
	if job.Status == p.Status {
		return false, nil
	}
	if job.Status.Terminal() && p.Status == schema.StatusRunning {
		// Stale running report arriving after the terminal one.
		return false, nil
	}

	job.UpdateStatus(p.Status)
	if p.Status == schema.StatusFailed {
		job.LastError = p.Reason
	}

	if p.Status.Terminal() {
		record := schema.NewAnalyticsRecord(job.ID, p.Status, p.Timestamp, job.Content.Text)
		record.PostID = p.PostID
		record.Screenshot = p.Screenshot
		record.Reason = p.Reason
		q.state.Analytics = append(q.state.Analytics, record)
	}

	q.log.Info("status applied",
		"job_id", job.ID,
		"status", string(p.Status),
		"reason", p.Reason)
	return true, q.persistLocked()
}

// Running returns every running job paired with its account. Jobs whose
// account has been removed are skipped; they can never be dispatched.
func (q *Queue) Running() []Dispatch {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []Dispatch
	for _, job := range q.state.Queue {
		if job.Status != schema.StatusRunning {
			continue
		}
		account := q.accountLocked(job.AccountID)
		if account == nil {
			q.log.Warn("running job has no account", "job_id", job.ID, "account_id", job.AccountID)
			continue
		}
		out = append(out, Dispatch{Job: job, Account: account})
	}
	return out
}

// Jobs returns a snapshot of the queue.
func (q *Queue) Jobs() []*schema.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*schema.Job, len(q.state.Queue))
	copy(out, q.state.Queue)
	return out
}

// Job returns the job with the given id, or nil.
func (q *Queue) Job(id string) *schema.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.jobLocked(id)
}

// AddAccount registers an account.
func (q *Queue) AddAccount(account *schema.Account) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.state.Accounts = append(q.state.Accounts, account)
	q.log.Info("account added", "account_id", account.ID, "label", account.Label)
	return q.persistLocked()
}

// RemoveAccount deletes an account. Jobs referencing it stay queued but are
// skipped at dispatch time.
func (q *Queue) RemoveAccount(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, account := range q.state.Accounts {
		if account.ID == id {
			q.state.Accounts = append(q.state.Accounts[:i], q.state.Accounts[i+1:]...)
			q.log.Info("account removed", "account_id", id)
			return q.persistLocked()
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownAccount, id)
}

// Accounts returns a snapshot of the registered accounts.
func (q *Queue) Accounts() []*schema.Account {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*schema.Account, len(q.state.Accounts))
	copy(out, q.state.Accounts)
	return out
}

// SaveTemplate stores a template, replacing any existing one with the same
// id.
func (q *Queue) SaveTemplate(t *schema.Template) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, existing := range q.state.Templates {
		if existing.ID == t.ID {
			q.state.Templates[i] = t
			return q.persistLocked()
		}
	}
	q.state.Templates = append(q.state.Templates, t)
	q.log.Info("template saved", "template_id", t.ID, "variants", len(t.Variants))
	return q.persistLocked()
}

// Templates returns a snapshot of the stored templates.
func (q *Queue) Templates() []*schema.Template {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*schema.Template, len(q.state.Templates))
	copy(out, q.state.Templates)
	return out
}

// VariantFor picks the template variant least similar to recent posts. A
// fallback reason means every variant was a near-duplicate and the caller
// should treat the text with suspicion.
func (q *Queue) VariantFor(templateID string) (string, similarity.Reason, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, t := range q.state.Templates {
		if t.ID != templateID {
			continue
		}
		variants := make([]string, 0, len(t.Variants))
		for _, v := range t.Variants {
			variants = append(variants, v.Text)
		}
		text, reason := similarity.ChooseVariant(variants, q.recentTextsLocked(), q.threshold)
		return text, reason, nil
	}
	return "", similarity.ReasonFallback, fmt.Errorf("%w: %s", ErrUnknownTemplate, templateID)
}

// ImportBatch enqueues one job per CSV row for the given account. Rows that
// fail the dedup check are skipped rather than aborting the import; any
// other error aborts. Returns how many jobs were added and skipped.
func (q *Queue) ImportBatch(rows []batch.Row, accountID string) (added, skipped int, err error) {
	jobs, err := batch.Jobs(rows, accountID)
	if err != nil {
		return 0, 0, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	for _, job := range jobs {
		switch err := q.enqueueLocked(job); {
		case errors.Is(err, ErrTooSimilar):
			skipped++
		case err != nil:
			return added, skipped, err
		default:
			added++
		}
	}
	q.log.Info("batch imported", "added", added, "skipped", skipped)
	return added, skipped, nil
}

// Analytics returns a snapshot of the analytics trail.
func (q *Queue) Analytics() []*schema.AnalyticsRecord {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*schema.AnalyticsRecord, len(q.state.Analytics))
	copy(out, q.state.Analytics)
	return out
}

// RecordEngagement updates the engagement counters on an analytics record.
func (q *Queue) RecordEngagement(recordID string, e schema.Engagement) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, record := range q.state.Analytics {
		if record.ID == recordID {
			record.Engagement = e
			return q.persistLocked()
		}
	}
	return fmt.Errorf("unknown analytics record: %s", recordID)
}

// SetDebug toggles the persisted debug setting.
func (q *Queue) SetDebug(debug bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.state.Settings.Debug = debug
	return q.persistLocked()
}

func (q *Queue) jobLocked(id string) *schema.Job {
	for _, job := range q.state.Queue {
		if job.ID == id {
			return job
		}
	}
	return nil
}

func (q *Queue) accountLocked(id string) *schema.Account {
	for _, account := range q.state.Accounts {
		if account.ID == id {
			return account
		}
	}
	return nil
}

// recentTextsLocked returns the texts of the most recent analytics records,
// newest first.
func (q *Queue) recentTextsLocked() []string {
	var out []string
	for i := len(q.state.Analytics) - 1; i >= 0 && len(out) < recentLimit; i-- {
		if text := q.state.Analytics[i].ContentText; text != "" {
			out = append(out, text)
		}
	}
	return out
}

func (q *Queue) persistLocked() error {
	if err := q.store.Save(q.state); err != nil {
		return fmt.Errorf("failed to persist queue state: %w", err)
	}
	return nil
}
