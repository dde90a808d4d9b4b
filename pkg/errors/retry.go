package errors

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = time.Second
)

// RetryOptions tune the retry policy applied to remote store calls.
// MaxAttempts bounds the total number of attempts, not just the retries.
type RetryOptions struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Exponential bool
}

// DefaultRetryOptions returns the policy used unless a caller overrides it:
// three attempts with 1s, 2s exponential delays between them.
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{
		MaxAttempts: defaultMaxAttempts,
		BaseDelay:   defaultBaseDelay,
		Exponential: true,
	}
}

func (o RetryOptions) normalize() RetryOptions {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = defaultMaxAttempts
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = defaultBaseDelay
	}
	return o
}

// Retry executes op, retrying only failures whose classified kind is marked
// retryable. Non-retryable kinds surface immediately without delay; the final
// failed attempt surfaces its classified error unchanged. A server-supplied
// retry-after hint stretches the next delay when it exceeds the backoff.
func Retry[T any](ctx context.Context, opts RetryOptions, op func(ctx context.Context) (T, error)) (T, error) {
	opts = opts.normalize()

	var base retry.Backoff
	if opts.Exponential {
		base = retry.NewExponential(opts.BaseDelay)
	} else {
		base = retry.NewConstant(opts.BaseDelay)
	}
	base = retry.WithMaxRetries(uint64(opts.MaxAttempts-1), base)

	var result T
	var hint time.Duration
	err := retry.Do(ctx, &serverHintBackoff{base: base, hint: &hint}, func(ctx context.Context) error {
		value, opErr := op(ctx)
		if opErr == nil {
			result = value
			return nil
		}
		classified := Classify(opErr)
		if !classified.Retryable() {
			return classified
		}
		hint = classified.RetryAfter()
		return retry.RetryableError(classified)
	})
	if err != nil {
		var zero T
		return zero, Classify(err)
	}
	return result, nil
}

// serverHintBackoff defers to the base schedule but lets a rate-limited
// response push the next delay out to whatever the server asked for.
type serverHintBackoff struct {
	base retry.Backoff
	hint *time.Duration
}

func (b *serverHintBackoff) Next() (time.Duration, bool) {
	delay, stop := b.base.Next()
	if stop {
		return delay, true
	}
	if h := *b.hint; h > delay {
		return h, false
	}
	return delay, false
}
