package agent

import (
	"context"

	"github.com/DevSkits916/postdeck/internal/schema"
)

// Poster performs the actual publishing steps for one job. Each method is a
// retryable step; the runner drives them in order with human-paced delays
// in between. PostID and Screenshot run after submission and are
// best-effort.
type Poster interface {
	// Prepare points the posting surface at the job's target.
	Prepare(ctx context.Context, account *schema.Account, target schema.Target) error
	// EstablishSession makes sure the account is signed in and usable.
	EstablishSession(ctx context.Context, account *schema.Account) error
	// Compose opens the post composer.
	Compose(ctx context.Context) error
	// FillText types the post text into the composer.
	FillText(ctx context.Context, text string) error
	// AttachMedia uploads the job's attachments in order.
	AttachMedia(ctx context.Context, media []schema.MediaItem) error
	// Submit publishes the post.
	Submit(ctx context.Context) error
	// PostID recovers the published post's identifier, if discoverable.
	PostID(ctx context.Context) (string, error)
	// Screenshot captures proof of the published post.
	Screenshot(ctx context.Context) (string, error)
}
