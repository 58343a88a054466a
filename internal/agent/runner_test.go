package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DevSkits916/postdeck/internal/schema"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []*schema.Message
}

func (f *fakeSender) Send(_ context.Context, m *schema.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, m)
	return nil
}

func (f *fakeSender) statusReports() []*schema.StatusUpdatePayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*schema.StatusUpdatePayload
	for _, m := range f.sent {
		if m.Type != schema.TypeStatusUpdate {
			continue
		}
		p, err := m.StatusUpdatePayload()
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	return out
}

func (f *fakeSender) waitForStatus(t *testing.T, jobID string, status schema.JobStatus) *schema.StatusUpdatePayload {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		for _, p := range f.statusReports() {
			if p.QueueID == jobID && p.Status == status {
				return p
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no %s report for job %s", status, jobID)
	return nil
}

func (f *fakeSender) countStatus(jobID string, status schema.JobStatus) int {
	count := 0
	for _, p := range f.statusReports() {
		if p.QueueID == jobID && p.Status == status {
			count++
		}
	}
	return count
}

// fakePoster scripts step outcomes. failures maps a step name to how many
// attempts of it should fail before succeeding; blockSubmit makes Submit
// wait until released.
type fakePoster struct {
	mu          sync.Mutex
	calls       []string
	failures    map[string]int
	panicStep   string
	blockSubmit chan struct{}
}

func (p *fakePoster) step(name string) error {
	p.mu.Lock()
	p.calls = append(p.calls, name)
	if p.panicStep == name {
		p.mu.Unlock()
		panic("scripted panic in " + name)
	}
	remaining := p.failures[name]
	if remaining > 0 {
		p.failures[name] = remaining - 1
		p.mu.Unlock()
		return fmt.Errorf("scripted failure in %s", name)
	}
	p.mu.Unlock()
	return nil
}

func (p *fakePoster) Prepare(_ context.Context, _ *schema.Account, _ schema.Target) error {
	return p.step("prepare")
}
func (p *fakePoster) EstablishSession(_ context.Context, _ *schema.Account) error {
	return p.step("establish-session")
}
func (p *fakePoster) Compose(context.Context) error { return p.step("compose") }
func (p *fakePoster) FillText(_ context.Context, _ string) error {
	return p.step("fill-text")
}
func (p *fakePoster) AttachMedia(_ context.Context, _ []schema.MediaItem) error {
	return p.step("attach-media")
}
func (p *fakePoster) Submit(context.Context) error {
	if p.blockSubmit != nil {
		<-p.blockSubmit
	}
	return p.step("submit")
}
func (p *fakePoster) PostID(context.Context) (string, error)     { return "post-abc", nil }
func (p *fakePoster) Screenshot(context.Context) (string, error) { return "data:image/png;base64,", nil }

func (p *fakePoster) callNames() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.calls))
	copy(out, p.calls)
	return out
}

func newTestRunner(poster Poster, sender Sender) *Runner {
	return New(Options{
		Poster:     poster,
		Sender:     sender,
		RetryLimit: 3,
		BaseDelay:  time.Millisecond,
		ThinkMin:   time.Millisecond,
		ThinkMax:   2 * time.Millisecond,
	})
}

func dispatch(job *schema.Job, account *schema.Account) *schema.Message {
	return schema.MustMessage(schema.TypeRunNow, schema.RunNowPayload{
		Item:    *job,
		Account: *account,
	})
}

func testJob(text string) (*schema.Job, *schema.Account) {
	account := schema.NewAccount("Test", "test@example.com")
	job := schema.NewJob(account.ID, schema.Target{Type: schema.TargetProfile},
		schema.PostContent{Text: text}, schema.Schedule{Type: schema.ScheduleNone})
	return job, account
}

func TestExecute_HappyPath(t *testing.T) {
	poster := &fakePoster{}
	sender := &fakeSender{}
	r := newTestRunner(poster, sender)

	job, account := testJob("hello world")
	job.Content.Media = []schema.MediaItem{{ID: "m1", Kind: schema.MediaImage, Name: "pic.png"}}
	r.HandleMessage(context.Background(), dispatch(job, account))

	sender.waitForStatus(t, job.ID, schema.StatusRunning)
	report := sender.waitForStatus(t, job.ID, schema.StatusSuccess)
	r.Wait()

	if report.PostID != "post-abc" {
		t.Errorf("expected the recovered post id, got %q", report.PostID)
	}
	if report.Screenshot == "" {
		t.Error("expected a screenshot on the success report")
	}

	want := []string{"prepare", "establish-session", "compose", "fill-text", "attach-media", "submit"}
	if got := poster.callNames(); len(got) != len(want) {
		t.Fatalf("expected steps %v, got %v", want, got)
	} else {
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("expected steps %v, got %v", want, got)
			}
		}
	}

	if r.Active() {
		t.Error("lease must be released after success")
	}
}

func TestExecute_RetriesTransientStepFailure(t *testing.T) {
	poster := &fakePoster{failures: map[string]int{"compose": 2}}
	sender := &fakeSender{}
	r := newTestRunner(poster, sender)

	job, account := testJob("flaky composer")
	r.HandleMessage(context.Background(), dispatch(job, account))

	sender.waitForStatus(t, job.ID, schema.StatusSuccess)
	r.Wait()

	composeCalls := 0
	for _, name := range poster.callNames() {
		if name == "compose" {
			composeCalls++
		}
	}
	if composeCalls != 3 {
		t.Errorf("expected 3 compose attempts, got %d", composeCalls)
	}
}

func TestExecute_ExhaustedStepFailsJob(t *testing.T) {
	poster := &fakePoster{failures: map[string]int{"fill-text": 99}}
	sender := &fakeSender{}
	r := newTestRunner(poster, sender)

	job, account := testJob("never types")
	r.HandleMessage(context.Background(), dispatch(job, account))

	report := sender.waitForStatus(t, job.ID, schema.StatusFailed)
	r.Wait()

	if !strings.Contains(report.Reason, "fill-text failed") {
		t.Errorf("expected the failing step in the reason, got %q", report.Reason)
	}
	for _, name := range poster.callNames() {
		if name == "submit" {
			t.Error("submit must not run after an exhausted earlier step")
		}
	}
	if r.Active() {
		t.Error("lease must be released after failure")
	}
}

func TestExecute_PanicReleasesLease(t *testing.T) {
	poster := &fakePoster{panicStep: "submit"}
	sender := &fakeSender{}
	r := newTestRunner(poster, sender)

	job, account := testJob("panicky")
	r.HandleMessage(context.Background(), dispatch(job, account))

	report := sender.waitForStatus(t, job.ID, schema.StatusFailed)
	r.Wait()

	if !strings.Contains(report.Reason, "panicked") {
		t.Errorf("expected a panic reason, got %q", report.Reason)
	}
	if r.Active() {
		t.Error("lease must be released after a panic")
	}

	// The runner is still usable.
	next, nextAccount := testJob("after the panic")
	poster.mu.Lock()
	poster.panicStep = ""
	poster.mu.Unlock()
	r.HandleMessage(context.Background(), dispatch(next, nextAccount))
	sender.waitForStatus(t, next.ID, schema.StatusSuccess)
	r.Wait()
}

func TestHandleRunNow_RejectsWhileBusy(t *testing.T) {
	poster := &fakePoster{blockSubmit: make(chan struct{})}
	sender := &fakeSender{}
	r := newTestRunner(poster, sender)

	first, firstAccount := testJob("long running")
	r.HandleMessage(context.Background(), dispatch(first, firstAccount))
	sender.waitForStatus(t, first.ID, schema.StatusRunning)

	// A different job while the lease is held gets rejected outright.
	second, secondAccount := testJob("impatient")
	r.HandleMessage(context.Background(), dispatch(second, secondAccount))
	rejection := sender.waitForStatus(t, second.ID, schema.StatusFailed)
	if rejection.Reason != busyReason {
		t.Errorf("expected %q, got %q", busyReason, rejection.Reason)
	}

	// A redelivery naming the active job is ignored, not rejected.
	r.HandleMessage(context.Background(), dispatch(first, firstAccount))
	time.Sleep(20 * time.Millisecond)
	if got := sender.countStatus(first.ID, schema.StatusFailed); got != 0 {
		t.Errorf("redelivered dispatch must not fail the active job, saw %d failures", got)
	}

	close(poster.blockSubmit)
	sender.waitForStatus(t, first.ID, schema.StatusSuccess)
	r.Wait()
}

func TestHandleMessage_DuplicateEnvelopeDropped(t *testing.T) {
	poster := &fakePoster{}
	sender := &fakeSender{}
	r := newTestRunner(poster, sender)

	job, account := testJob("sent twice")
	m := dispatch(job, account)
	r.HandleMessage(context.Background(), m)
	sender.waitForStatus(t, job.ID, schema.StatusSuccess)
	r.Wait()

	// The same envelope arriving on a second channel is a no-op.
	r.HandleMessage(context.Background(), m)
	time.Sleep(20 * time.Millisecond)
	r.Wait()

	if got := sender.countStatus(job.ID, schema.StatusRunning); got != 1 {
		t.Errorf("expected a single running report, got %d", got)
	}
}

func TestReplyState(t *testing.T) {
	poster := &fakePoster{blockSubmit: make(chan struct{})}
	sender := &fakeSender{}
	r := newTestRunner(poster, sender)

	job, account := testJob("state probe")
	r.HandleMessage(context.Background(), dispatch(job, account))
	sender.waitForStatus(t, job.ID, schema.StatusRunning)

	r.HandleMessage(context.Background(), schema.MustMessage(schema.TypeRequestState, struct{}{}))

	deadline := time.Now().Add(time.Second)
	var state *schema.StatePayload
	for time.Now().Before(deadline) && state == nil {
		sender.mu.Lock()
		for _, m := range sender.sent {
			if m.Type == schema.TypeState {
				state, _ = m.StatePayload()
			}
		}
		sender.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	if state == nil {
		t.Fatal("no state reply")
	}
	if !state.Connected {
		t.Error("state reply must report connected")
	}
	if state.ActiveAccountID != account.ID {
		t.Errorf("expected the active account id, got %q", state.ActiveAccountID)
	}

	close(poster.blockSubmit)
	sender.waitForStatus(t, job.ID, schema.StatusSuccess)
	r.Wait()
}

func TestExecute_ForwardsStepLogs(t *testing.T) {
	poster := &fakePoster{}
	sender := &fakeSender{}
	r := newTestRunner(poster, sender)

	job, account := testJob("logged")
	r.HandleMessage(context.Background(), dispatch(job, account))
	sender.waitForStatus(t, job.ID, schema.StatusSuccess)
	r.Wait()

	logs := 0
	sender.mu.Lock()
	for _, m := range sender.sent {
		if m.Type != schema.TypeLog {
			continue
		}
		p, err := m.LogPayload()
		if err != nil {
			continue
		}
		if p.Context["jobId"] != job.ID {
			t.Errorf("log line missing the job id: %+v", p)
		}
		logs++
	}
	sender.mu.Unlock()

	// One completion line per step.
	if logs != 6 {
		t.Errorf("expected 6 forwarded log lines, got %d", logs)
	}
}

func TestDryRunPoster_FullFlow(t *testing.T) {
	poster := &DryRunPoster{StepDuration: 2 * time.Millisecond}
	sender := &fakeSender{}
	r := newTestRunner(poster, sender)

	job, account := testJob("dry run")
	job.Content.Media = []schema.MediaItem{{ID: "m1", Kind: schema.MediaImage, Name: "pic.png"}}
	r.HandleMessage(context.Background(), dispatch(job, account))

	report := sender.waitForStatus(t, job.ID, schema.StatusSuccess)
	r.Wait()

	if report.PostID == "" {
		t.Error("expected a synthesized post id")
	}
	if report.Screenshot == "" {
		t.Error("expected a synthesized screenshot")
	}
}
