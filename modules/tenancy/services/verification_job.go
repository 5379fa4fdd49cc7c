package services

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/tenancy/pkg/logging"
)

const DefaultScanInterval = 6 * time.Hour

type Scanner interface {
	ScanOnce(ctx context.Context) (ScanSummary, error)
}

type VerificationJobOptions struct {
	Interval time.Duration
	Logger   *logrus.Entry
}

// VerificationJob re-checks pending domain verifications on a fixed schedule.
type VerificationJob struct {
	scanner Scanner
	opts    VerificationJobOptions
}

func NewVerificationJob(scanner Scanner, opts VerificationJobOptions) *VerificationJob {
	if opts.Interval <= 0 {
		opts.Interval = DefaultScanInterval
	}
	opts.Logger = logging.OrNop(opts.Logger).WithField("component", "verification_job")
	return &VerificationJob{scanner: scanner, opts: opts}
}

// Run scans once right away and then every Interval until ctx is done.
// Scan failures are logged and never stop the schedule.
func (j *VerificationJob) Run(ctx context.Context) error {
	j.opts.Logger.WithField("interval", j.opts.Interval).Info("verification job started")
	j.tick(ctx)

	ticker := time.NewTicker(j.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.opts.Logger.Info("verification job stopped")
			return ctx.Err()
		case <-ticker.C:
		}
		j.tick(ctx)
	}
}

func (j *VerificationJob) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			j.opts.Logger.WithField("panic", r).Error("verification scan panicked")
		}
	}()
	if _, err := j.scanner.ScanOnce(ctx); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		j.opts.Logger.WithError(err).Warn("verification scan failed")
	}
}
