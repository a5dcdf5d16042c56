package migrator

import (
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
)

type Option func(*Runner)

func WithLogger(logger *logrus.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithDryRun reports what would change without writing anything, ledger included.
func WithDryRun(dryRun bool) Option {
	return func(r *Runner) {
		r.dryRun = dryRun
	}
}

// WithLedger turns the migration ledger on or off. It is on by default.
func WithLedger(enabled bool) Option {
	return func(r *Runner) {
		r.useLedger = enabled
	}
}

// WithVerify re-checks every step against the live schema even when the
// ledger says it was applied.
func WithVerify(verify bool) Option {
	return func(r *Runner) {
		r.verify = verify
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(r *Runner) {
		r.tracer = tracer
	}
}

func WithRunID(id uuid.UUID) Option {
	return func(r *Runner) {
		r.runID = id
	}
}
