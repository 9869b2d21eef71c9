// Package retry consolidates the retry loops of the pipeline into one
// policy: bounded attempts, exponential backoff for rate-limit errors,
// a short fixed delay for other transient errors, and immediate stop for
// fatal ones.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/prepgrid/question-etl/internal/common"
)

// Class tags an error for the retry driver.
type Class int

const (
	// ClassFatal stops retrying immediately.
	ClassFatal Class = iota
	// ClassTransient retries after a short fixed delay.
	ClassTransient
	// ClassRateLimit retries after an exponential cooldown.
	ClassRateLimit
)

// Classifier maps an error to its retry class.
type Classifier func(error) Class

// DefaultClassify understands the error taxonomy of the pipeline:
// rate-limit signals back off, exhausted model chains are not worth
// retrying, everything else is transient.
func DefaultClassify(err error) Class {
	switch {
	case errors.Is(err, common.ErrRateLimited):
		return ClassRateLimit
	case errors.Is(err, common.ErrModelUnavailable):
		return ClassFatal
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ClassFatal
	default:
		return ClassTransient
	}
}

// Policy parameterizes one retry loop.
type Policy struct {
	MaxAttempts int
	// BaseDelay seeds the exponential backoff used after a rate limit.
	BaseDelay time.Duration
	// TransientDelay is the fixed wait after other retryable failures.
	TransientDelay time.Duration
	Classify       Classifier
	Logger         *slog.Logger

	// Sleep is swappable so tests do not block; nil means time.Sleep.
	Sleep func(time.Duration)
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 2 * time.Second
	}
	if p.TransientDelay <= 0 {
		p.TransientDelay = 5 * time.Second
	}
	if p.Classify == nil {
		p.Classify = DefaultClassify
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	if p.Sleep == nil {
		p.Sleep = time.Sleep
	}
	return p
}

// Do runs op up to MaxAttempts times. It returns nil on the first success,
// the last error once attempts are exhausted, and immediately on a fatal
// error or context cancellation.
func (p Policy) Do(ctx context.Context, label string, op func() error) error {
	p = p.withDefaults()

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = p.BaseDelay
	expo.RandomizationFactor = 0
	expo.Multiplier = 2
	expo.MaxElapsedTime = 0
	expo.Reset()

	var err error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err = ctx.Err(); err != nil {
			return err
		}
		if err = op(); err == nil {
			return nil
		}

		class := p.Classify(err)
		if class == ClassFatal {
			p.Logger.Error("retry.fatal", "op", label, "attempt", attempt, "error", err)
			return err
		}
		if attempt == p.MaxAttempts {
			break
		}

		var wait time.Duration
		switch class {
		case ClassRateLimit:
			wait = expo.NextBackOff()
			p.Logger.Warn("retry.rate_limited", "op", label, "attempt", attempt, "wait", wait, "error", err)
		default:
			wait = p.TransientDelay
			p.Logger.Warn("retry.transient", "op", label, "attempt", attempt, "wait", wait, "error", err)
		}
		p.Sleep(wait)
	}

	p.Logger.Error("retry.exhausted", "op", label, "attempts", p.MaxAttempts, "error", err)
	return err
}
