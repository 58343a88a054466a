package agent

import (
	"context"
	"fmt"
	"time"
)

// WaitFor polls condition every interval until it reports done, the timeout
// elapses, or the context ends. A condition error aborts the wait
// immediately.
func WaitFor(ctx context.Context, timeout, interval time.Duration, condition func() (bool, error)) error {
	deadline := time.Now().Add(timeout)

	for {
		done, err := condition()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("condition not met within %s", timeout)
		}
		if err := sleep(ctx, interval); err != nil {
			return err
		}
	}
}
