package schema

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the current status of a queued job
type JobStatus string

const (
	// StatusQueued indicates the job is waiting for its schedule to come due
	StatusQueued JobStatus = "queued"
	// StatusRunning indicates the job has been dispatched to the execution agent
	StatusRunning JobStatus = "running"
	// StatusSuccess indicates the agent reported the post was published
	StatusSuccess JobStatus = "success"
	// StatusFailed indicates the agent reported an unrecoverable error
	StatusFailed JobStatus = "failed"
	// StatusPaused indicates the operator excluded the job from future ticks
	StatusPaused JobStatus = "paused"
)

// Terminal reports whether a status ends the job's lifecycle. The scheduler
// never moves a job out of a terminal status on its own; only an operator
// retry does.
func (s JobStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// TargetType identifies the kind of destination a post is published to
type TargetType string

const (
	TargetProfile TargetType = "profile"
	TargetGroup   TargetType = "group"
	TargetPage    TargetType = "page"
	TargetStory   TargetType = "story"
)

// Target is the destination identifier for a post
type Target struct {
	Type  TargetType `json:"type"`
	Value string     `json:"value"`
}

// MediaKind distinguishes image and video attachments
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

// MediaItem is one attachment of a post. DataURL is a payload reference,
// not necessarily inline data.
type MediaItem struct {
	ID      string    `json:"id"`
	Kind    MediaKind `json:"type"`
	Name    string    `json:"name"`
	DataURL string    `json:"dataUrl"`
	Size    int64     `json:"size"`
}

// PostContent is the text and ordered media of a post. Immutable once the
// job is enqueued.
type PostContent struct {
	Text  string      `json:"text"`
	Media []MediaItem `json:"media"`
}

// ScheduleType tags the schedule variant
type ScheduleType string

const (
	// ScheduleNone runs the job on the next scheduler tick
	ScheduleNone ScheduleType = "none"
	// ScheduleTime runs the job once at a specific instant
	ScheduleTime ScheduleType = "time"
	// ScheduleCron runs the job recurrently; RunAt holds the next computed
	// occurrence and is recomputed every time the job fires
	ScheduleCron ScheduleType = "cron"
)

// Schedule describes when a job becomes eligible to run
type Schedule struct {
	Type  ScheduleType `json:"type"`
	RunAt *time.Time   `json:"runAt,omitempty"`
	Cron  string       `json:"cron,omitempty"`
}

// Job is a single queue item owned by the control surface
type Job struct {
	ID        string      `json:"id"`
	AccountID string      `json:"accountId"`
	Target    Target      `json:"target"`
	Content   PostContent `json:"content"`
	Schedule  Schedule    `json:"schedule"`
	Status    JobStatus   `json:"status"`
	Retries   int         `json:"retries"`
	MaxRetries int        `json:"maxRetries"`
	LastError string      `json:"lastError,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// NewJob creates a queued job for the given account, target and content.
//
// Example usage:
//
//	j := schema.NewJob(account.ID, target, content, schema.Schedule{Type: schema.ScheduleNone})
func NewJob(accountID string, target Target, content PostContent, schedule Schedule) *Job {
	now := time.Now().UTC()

	return &Job{
		ID:         uuid.New().String(),
		AccountID:  accountID,
		Target:     target,
		Content:    content,
		Schedule:   schedule,
		Status:     StatusQueued,
		Retries:    0,
		MaxRetries: 3,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// UpdateStatus updates the job's status and UpdatedAt timestamp
func (j *Job) UpdateStatus(status JobStatus) {
	j.Status = status
	j.UpdatedAt = time.Now().UTC()
}

// Account is an identity used to run jobs. Referenced by id from jobs,
// never embedded.
type Account struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	Email     string    `json:"email,omitempty"`
	Password  string    `json:"password,omitempty"`
	Cookie    string    `json:"cookie,omitempty"`
	Proxy     string    `json:"proxy,omitempty"`
	UserAgent string    `json:"userAgent,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewAccount creates an account with a fresh id. An empty label falls back
// to the email, then to "Untitled".
func NewAccount(label, email string) *Account {
	if label == "" {
		label = email
	}
	if label == "" {
		label = "Untitled"
	}
	return &Account{
		ID:        uuid.New().String(),
		Label:     label,
		Email:     email,
		CreatedAt: time.Now().UTC(),
	}
}
