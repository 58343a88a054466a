// Package batch implements the CSV batch format used to import and export
// posting jobs in bulk.
//
// The format is a header row "target,text,file_url,schedule_time" followed
// by one row per job, with standard RFC 4180 quoting. A schedule_time value
// implies a time-type schedule; an absent value means the job runs on the
// next tick.
package batch

import (
	"encoding/csv"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/DevSkits916/postdeck/internal/schema"
)

// Row is one line of the batch CSV
type Row struct {
	Target       string
	Text         string
	FileURL      string
	ScheduleTime string
}

var headers = []string{"target", "text", "file_url", "schedule_time"}

// Parse reads batch rows from CSV input. Column order follows the header
// row; missing columns read as empty and fully empty lines are skipped.
func Parse(input string) ([]Row, error) {
	r := csv.NewReader(strings.NewReader(input))
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	index := make(map[string]int, len(headers))
	for _, h := range headers {
		index[h] = -1
	}
	for i, name := range records[0] {
		name = strings.TrimSpace(name)
		if _, ok := index[name]; ok {
			index[name] = i
		}
	}

	get := func(record []string, header string) string {
		i := index[header]
		if i < 0 || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var rows []Row
	for _, record := range records[1:] {
		row := Row{
			Target:       get(record, "target"),
			Text:         get(record, "text"),
			FileURL:      get(record, "file_url"),
			ScheduleTime: get(record, "schedule_time"),
		}
		if row.Target == "" && row.Text == "" && row.FileURL == "" && row.ScheduleTime == "" {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Write serializes rows back to CSV, header first.
func Write(rows []Row) string {
	var b strings.Builder
	w := csv.NewWriter(&b)

	// csv.Writer errors only surface on flush; a strings.Builder sink
	// cannot fail, so the error is checked once at the end.
	_ = w.Write(headers)
	for _, row := range rows {
		_ = w.Write([]string{row.Target, row.Text, row.FileURL, row.ScheduleTime})
	}
	w.Flush()
	return b.String()
}

// Jobs converts parsed rows into queued jobs bound to one account. Targets
// import as group destinations; a file_url becomes a single media item with
// the kind inferred from its extension.
func Jobs(rows []Row, accountID string) ([]*schema.Job, error) {
	jobs := make([]*schema.Job, 0, len(rows))
	for i, row := range rows {
		schedule := schema.Schedule{Type: schema.ScheduleNone}
		if row.ScheduleTime != "" {
			runAt, err := time.Parse(time.RFC3339, row.ScheduleTime)
			if err != nil {
				return nil, fmt.Errorf("row %d: invalid schedule_time %q: %w", i+1, row.ScheduleTime, err)
			}
			schedule = schema.Schedule{Type: schema.ScheduleTime, RunAt: &runAt}
		}

		content := schema.PostContent{Text: row.Text}
		if row.FileURL != "" {
			content.Media = []schema.MediaItem{{
				ID:      uuid.New().String(),
				Kind:    mediaKind(row.FileURL),
				Name:    fileName(row.FileURL),
				DataURL: row.FileURL,
			}}
		}

		target := schema.Target{Type: schema.TargetGroup, Value: row.Target}
		jobs = append(jobs, schema.NewJob(accountID, target, content, schedule))
	}
	return jobs, nil
}

func mediaKind(url string) schema.MediaKind {
	switch strings.ToLower(ext(url)) {
	case "mp4", "mov", "webm", "mkv", "avi":
		return schema.MediaVideo
	default:
		return schema.MediaImage
	}
}

func ext(url string) string {
	name := fileName(url)
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i+1:]
	}
	return ""
}

func fileName(url string) string {
	trimmed := strings.TrimRight(url, "/")
	if i := strings.LastIndexByte(trimmed, '/'); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}
