package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/DevSkits916/postdeck/internal/schema"
)

// DryRunPoster walks the full publishing flow without touching any real
// posting surface. It is the default poster for local operation and demos:
// every step succeeds after a short simulated readiness wait and the proof
// artifacts are synthesized.
type DryRunPoster struct {
	// StepDuration is how long the simulated surface takes to become
	// ready for each step.
	StepDuration time.Duration

	mu      sync.Mutex
	ready   time.Time
	target  schema.Target
	text    string
	media   int
	posted  bool
	postID  string
}

func (p *DryRunPoster) stepDuration() time.Duration {
	if p.StepDuration <= 0 {
		return 10 * time.Millisecond
	}
	return p.StepDuration
}

// await simulates waiting for the surface to settle after an action.
func (p *DryRunPoster) await(ctx context.Context) error {
	p.mu.Lock()
	p.ready = time.Now().Add(p.stepDuration())
	p.mu.Unlock()

	return WaitFor(ctx, 10*p.stepDuration()+time.Second, p.stepDuration()/2+time.Millisecond,
		func() (bool, error) {
			p.mu.Lock()
			defer p.mu.Unlock()
			return !time.Now().Before(p.ready), nil
		})
}

func (p *DryRunPoster) Prepare(ctx context.Context, _ *schema.Account, target schema.Target) error {
	p.mu.Lock()
	p.target = target
	p.posted = false
	p.postID = ""
	p.mu.Unlock()
	return p.await(ctx)
}

func (p *DryRunPoster) EstablishSession(ctx context.Context, account *schema.Account) error {
	if account == nil || account.ID == "" {
		return fmt.Errorf("no account to sign in with")
	}
	return p.await(ctx)
}

func (p *DryRunPoster) Compose(ctx context.Context) error {
	return p.await(ctx)
}

func (p *DryRunPoster) FillText(ctx context.Context, text string) error {
	p.mu.Lock()
	p.text = text
	p.mu.Unlock()
	return p.await(ctx)
}

func (p *DryRunPoster) AttachMedia(ctx context.Context, media []schema.MediaItem) error {
	p.mu.Lock()
	p.media = len(media)
	p.mu.Unlock()
	return p.await(ctx)
}

func (p *DryRunPoster) Submit(ctx context.Context) error {
	if err := p.await(ctx); err != nil {
		return err
	}
	p.mu.Lock()
	p.posted = true
	p.postID = uuid.New().String()
	p.mu.Unlock()
	return nil
}

func (p *DryRunPoster) PostID(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.posted {
		return "", fmt.Errorf("nothing submitted")
	}
	return p.postID, nil
}

func (p *DryRunPoster) Screenshot(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.posted {
		return "", fmt.Errorf("nothing submitted")
	}
	return "data:image/png;base64,", nil
}
