// internal/app/bootstrap/services.go
package bootstrap

import (
	"github.com/dalemusser/jamiifunds/internal/app/chamas"
	"github.com/dalemusser/jamiifunds/internal/app/loans"
	"github.com/dalemusser/jamiifunds/internal/app/payments"
	"github.com/dalemusser/jamiifunds/internal/app/profits"
	"github.com/dalemusser/jamiifunds/internal/app/reconcile"
	"github.com/dalemusser/jamiifunds/internal/app/savings"
	"github.com/dalemusser/jamiifunds/internal/app/store"
	auditstore "github.com/dalemusser/jamiifunds/internal/app/store/audit"
	contributionstore "github.com/dalemusser/jamiifunds/internal/app/store/contributions"
	distributionstore "github.com/dalemusser/jamiifunds/internal/app/store/distributions"
	groupstore "github.com/dalemusser/jamiifunds/internal/app/store/groups"
	interestentrystore "github.com/dalemusser/jamiifunds/internal/app/store/interest"
	loanstore "github.com/dalemusser/jamiifunds/internal/app/store/loans"
	membershipstore "github.com/dalemusser/jamiifunds/internal/app/store/memberships"
	paymenteventstore "github.com/dalemusser/jamiifunds/internal/app/store/paymentevents"
	personstore "github.com/dalemusser/jamiifunds/internal/app/store/persons"
	profitsharestore "github.com/dalemusser/jamiifunds/internal/app/store/profitshares"
	repaymentstore "github.com/dalemusser/jamiifunds/internal/app/store/repayments"
	"github.com/dalemusser/jamiifunds/internal/app/system/auditlog"
	"github.com/dalemusser/jamiifunds/internal/app/system/txn"
	"github.com/dalemusser/jamiifunds/internal/app/system/workers"
	"github.com/dalemusser/jamiifunds/internal/domain/money"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Runtime holds what Startup builds for the later hooks.
type Runtime struct {
	Services  *Services
	Scheduler *workers.Scheduler
}

// Services is the ledger core wired to MongoDB.
type Services struct {
	Stores    store.Set
	Audit     *auditlog.Logger
	Chamas    *chamas.Service
	Savings   *savings.Service
	Loans     *loans.Service
	Payments  *payments.Service
	Reconcile *reconcile.Engine
	Profits   *profits.Service
}

// NewStores builds the Mongo-backed store set.
func NewStores(db *mongo.Database) store.Set {
	return store.Set{
		Groups:        groupstore.New(db),
		Persons:       personstore.New(db),
		Memberships:   membershipstore.New(db),
		Contributions: contributionstore.New(db),
		Loans:         loanstore.New(db),
		Repayments:    repaymentstore.New(db),
		PaymentEvents: paymenteventstore.New(db),

		InterestEntries: interestentrystore.New(db),
		Distributions:   distributionstore.New(db),
		ProfitShares:    profitsharestore.New(db),
	}
}

// NewServices wires the core services over db. provider may be nil, in
// which case payment initiation fails with payments.ErrProviderUnavailable.
func NewServices(db *mongo.Database, appCfg AppConfig, provider payments.MobileMoney, logger *zap.Logger) (*Services, error) {
	rate, err := money.ParseRate(appCfg.LoanDefaultInterestRate)
	if err != nil {
		return nil, err
	}

	stores := NewStores(db)
	runner := txn.New(db, logger)
	audit := auditlog.New(auditstore.New(db), logger, auditlog.Config{
		Loan:       appCfg.AuditLogLoan,
		Payment:    appCfg.AuditLogPayment,
		Membership: appCfg.AuditLogMembership,
	})

	cs := chamas.New(stores, runner, audit, logger, appCfg.PhoneCountryCode)
	sav := savings.New(stores, int64(appCfg.LoanSavingsMultiple))
	ls := loans.New(stores, cs.Directory(), sav, runner, audit, logger, loans.Config{
		DefaultRate:     rate,
		MaxTenureMonths: appCfg.LoanMaxTenureMonths,
	})

	return &Services{
		Stores:    stores,
		Audit:     audit,
		Chamas:    cs,
		Savings:   sav,
		Loans:     ls,
		Payments:  payments.New(stores, cs, provider, audit, logger),
		Reconcile: reconcile.New(stores, cs.Directory(), ls, runner, audit, logger, appCfg.PhoneCountryCode),
		Profits:   profits.New(stores, cs.Directory(), runner, audit, logger),
	}, nil
}
