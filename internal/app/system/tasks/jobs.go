// internal/app/system/tasks/jobs.go
package tasks

import (
	"context"
	"time"

	"github.com/dalemusser/jamiifunds/internal/app/loans"
	"github.com/dalemusser/jamiifunds/internal/app/store"
	"github.com/dalemusser/jamiifunds/internal/app/system/auditlog"
	"go.uber.org/zap"
)

// Job is a unit of periodic background work.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// PaymentSweepJob creates a job that times out payment events still pending
// or initiated after timeout. A provider callback that arrives later finds the
// event terminal and is treated as a duplicate.
func PaymentSweepJob(events store.PaymentEvents, audit *auditlog.Logger, logger *zap.Logger, interval, timeout time.Duration) Job {
	return Job{
		Name:     "payment-sweep",
		Interval: interval,
		Run: func(ctx context.Context) error {
			now := time.Now().UTC()
			count, err := events.ExpireStale(ctx, now.Add(-timeout), now)
			if err != nil {
				return err
			}
			if count > 0 {
				logger.Info("timed out stale payment events",
					zap.Int64("count", count),
					zap.Duration("timeout", timeout))
				audit.PaymentsExpired(ctx, count)
			}
			return nil
		},
	}
}

// InterestAccruer records a month of loan interest. *loans.Service satisfies it.
type InterestAccruer interface {
	AccrueMonth(ctx context.Context, month time.Time) (loans.Accrual, error)
}

// InterestAccrualJob creates a job that records the current month's interest
// for every approved loan. Months already recorded are left alone, so the job
// may run many times a month.
func InterestAccrualJob(accruer InterestAccruer, interval time.Duration) Job {
	return Job{
		Name:     "interest-accrual",
		Interval: interval,
		Run: func(ctx context.Context) error {
			_, err := accruer.AccrueMonth(ctx, time.Now().UTC())
			return err
		},
	}
}
