package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/errors"
)

// WithTimeout runs fn under a deadline and waits for it to return, so any
// lock fn holds is released before WithTimeout does. When the deadline is
// what stopped fn, the result matches both apperrors.ErrTimeout and
// context.DeadlineExceeded. A non-positive timeout runs fn unbounded.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	expired := apperrors.Wrap(apperrors.ErrTimeout, context.DeadlineExceeded, fmt.Sprintf("%s exceeded %v", name, timeout))
	tctx, cancel := context.WithTimeoutCause(ctx, timeout, expired)
	defer cancel()

	err := fn(tctx)
	if err != nil && ctx.Err() == nil && errors.Is(context.Cause(tctx), apperrors.ErrTimeout) {
		return expired
	}
	return err
}
