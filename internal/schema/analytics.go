package schema

import (
	"time"

	"github.com/google/uuid"
)

// Engagement holds post engagement counters. Records start at zero; a
// separate enrichment flow updates them later.
type Engagement struct {
	Reactions int `json:"reactions"`
	Comments  int `json:"comments"`
	Shares    int `json:"shares"`
}

// AnalyticsRecord is an immutable append-only record created exactly once
// per terminal status transition of a job.
type AnalyticsRecord struct {
	ID          string     `json:"id"`
	QueueID     string     `json:"queueId"`
	PostID      string     `json:"postId,omitempty"`
	Status      JobStatus  `json:"status"`
	Timestamp   time.Time  `json:"timestamp"`
	Screenshot  string     `json:"screenshot,omitempty"`
	ContentText string     `json:"contentText,omitempty"`
	Engagement  Engagement `json:"engagement"`
	Reason      string     `json:"reason,omitempty"`
}

// NewAnalyticsRecord builds a record for a terminal status report. The
// content text is captured from the job at the time of submission.
func NewAnalyticsRecord(queueID string, status JobStatus, timestamp time.Time, contentText string) *AnalyticsRecord {
	return &AnalyticsRecord{
		ID:          uuid.New().String(),
		QueueID:     queueID,
		Status:      status,
		Timestamp:   timestamp,
		ContentText: contentText,
	}
}

// TemplateVariant is one independently selectable text variant
type TemplateVariant struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Template is a named, reusable set of text variants for the dedup engine
// to choose from.
type Template struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Variants []TemplateVariant `json:"variants"`
}

// NewTemplate creates a template from raw variant texts, skipping empties.
func NewTemplate(name string, variants []string) *Template {
	if name == "" {
		name = "Untitled"
	}
	t := &Template{
		ID:   uuid.New().String(),
		Name: name,
	}
	for _, text := range variants {
		if text == "" {
			continue
		}
		t.Variants = append(t.Variants, TemplateVariant{
			ID:   uuid.New().String(),
			Text: text,
		})
	}
	return t
}
