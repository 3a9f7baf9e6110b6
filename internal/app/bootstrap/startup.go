// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/jamiifunds/internal/app/system/tasks"
	"github.com/dalemusser/jamiifunds/internal/app/system/timeouts"
	"github.com/dalemusser/jamiifunds/internal/app/system/workers"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Startup runs one-time application initialization after DB connections and
// schema setup are complete, but before the HTTP handler is built. It applies
// the operation budgets, builds the services and starts the payment sweeper
// and the interest accrual job.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	timeouts.Configure(timeouts.Config{
		Short:  appCfg.TimeoutShort,
		Medium: appCfg.TimeoutMedium,
		Long:   appCfg.TimeoutLong,
	})

	// No provider client ships with the service; initiation reports
	// ErrProviderUnavailable until one is wired here.
	svc, err := NewServices(deps.MongoDatabase, appCfg, nil, logger)
	if err != nil {
		return err
	}
	deps.Runtime.Services = svc

	sweep := tasks.PaymentSweepJob(svc.Stores.PaymentEvents, svc.Audit, logger,
		appCfg.PaymentSweepInterval, appCfg.PaymentInitiationTimeout)
	accrual := tasks.InterestAccrualJob(svc.Loans, appCfg.LoanInterestAccrualInterval)
	deps.Runtime.Scheduler = workers.NewScheduler(logger, timeouts.Long(), sweep, accrual)
	deps.Runtime.Scheduler.Start()
	return nil
}
