package services

import (
	"context"
	"errors"
	"time"

	customerrors "github.com/axellelanca/locashare/internal/errors"
)

// StorePolicy bounds every store call with a timeout and optionally retries
// once on a transient failure.
type StorePolicy struct {
	Timeout      time.Duration
	RetryBackoff time.Duration
}

// DefaultStorePolicy is used when a zero policy is passed to a constructor.
var DefaultStorePolicy = StorePolicy{Timeout: 3 * time.Second, RetryBackoff: 50 * time.Millisecond}

func (p StorePolicy) orDefault() StorePolicy {
	if p.Timeout <= 0 {
		return DefaultStorePolicy
	}
	return p
}

func (p StorePolicy) call(ctx context.Context, fn func(ctx context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	err := fn(callCtx)
	if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		var de *customerrors.Error
		if !errors.As(err, &de) {
			err = customerrors.StoreUnavailable("store", err)
		}
	}
	return err
}

// do runs fn once under the timeout.
func (p StorePolicy) do(ctx context.Context, fn func(ctx context.Context) error) error {
	return p.call(ctx, fn)
}

// doRetry runs fn and, if it failed with StoreUnavailable, once more after
// the backoff.
func (p StorePolicy) doRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	err := p.call(ctx, fn)
	if err == nil || !errors.Is(err, customerrors.ErrStoreUnavailable) {
		return err
	}
	select {
	case <-ctx.Done():
		return err
	case <-time.After(p.RetryBackoff):
	}
	return p.call(ctx, fn)
}
