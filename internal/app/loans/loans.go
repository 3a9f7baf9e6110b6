// Package loans runs the loan lifecycle: application against savings,
// admin approval or rejection, repayment posting and closure.
package loans

import (
	"context"
	"time"

	"github.com/dalemusser/jamiifunds/internal/app/chamas"
	"github.com/dalemusser/jamiifunds/internal/app/savings"
	"github.com/dalemusser/jamiifunds/internal/app/store"
	"github.com/dalemusser/jamiifunds/internal/app/system/auditlog"
	"github.com/dalemusser/jamiifunds/internal/app/system/authz"
	"github.com/dalemusser/jamiifunds/internal/app/system/txn"
	"github.com/dalemusser/jamiifunds/internal/domain/amortize"
	"github.com/dalemusser/jamiifunds/internal/domain/apperr"
	"github.com/dalemusser/jamiifunds/internal/domain/models"
	"github.com/dalemusser/jamiifunds/internal/domain/money"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Config holds lending policy.
type Config struct {
	DefaultRate     money.Rate // percent per month
	MaxTenureMonths int        // 0 means no limit
}

// DefaultConfig is 1.50% per month with tenures up to five years.
func DefaultConfig() Config {
	return Config{DefaultRate: money.MustParseRate("1.50"), MaxTenureMonths: 60}
}

type Service struct {
	loans      store.Loans
	repayments store.Repayments
	interest   store.InterestEntries
	dir        *chamas.Directory
	savings    *savings.Service
	txn        txn.Runner
	audit      *auditlog.Logger
	log        *zap.Logger
	cfg        Config
}

func New(stores store.Set, dir *chamas.Directory, sav *savings.Service, runner txn.Runner, audit *auditlog.Logger, log *zap.Logger, cfg Config) *Service {
	return &Service{
		loans:      stores.Loans,
		repayments: stores.Repayments,
		interest:   stores.InterestEntries,
		dir:        dir,
		savings:    sav,
		txn:        runner,
		audit:      audit,
		log:        log,
		cfg:        cfg,
	}
}

// Application is a member's request for a loan. A nil Rate uses the
// configured default.
type Application struct {
	MembershipID primitive.ObjectID
	Principal    money.Amount
	TenureMonths int
	Rate         *money.Rate
}

// Apply creates a pending loan if the membership is active, the terms are
// valid and confirmed savings cover the principal times the savings multiple.
func (s *Service) Apply(ctx context.Context, app Application) (models.Loan, error) {
	mc, err := s.dir.Resolve(ctx, app.MembershipID)
	if err != nil {
		return models.Loan{}, err
	}
	if !mc.CanAccrue() {
		return models.Loan{}, apperr.New(apperr.ErrNotMember, "membership is not active")
	}

	terms := amortize.Terms{Principal: app.Principal, Rate: s.cfg.DefaultRate, TenureMonths: app.TenureMonths}
	if app.Rate != nil {
		terms.Rate = *app.Rate
	}
	if err := s.checkTenure(terms.TenureMonths); err != nil {
		return models.Loan{}, err
	}
	quote, err := amortize.Compute(terms)
	if err != nil {
		return models.Loan{}, err
	}

	ok, saved, err := s.savings.IsLoanEligible(ctx, mc.Membership.ID, terms.Principal)
	if err != nil {
		return models.Loan{}, err
	}
	if !ok {
		return models.Loan{}, apperr.Newf(apperr.ErrInsufficientSavings,
			"confirmed savings of %s do not cover %d times the requested %s",
			saved, s.savings.Multiple(), terms.Principal)
	}

	loan, err := s.loans.Create(ctx, models.Loan{
		MembershipID:   mc.Membership.ID,
		GroupID:        mc.Group.ID,
		Principal:      terms.Principal,
		InterestRate:   terms.Rate,
		TenureMonths:   terms.TenureMonths,
		TotalRepayable: quote.TotalRepayable,
	})
	if err != nil {
		return models.Loan{}, err
	}
	s.audit.LoanApplied(ctx, loan, &mc.Membership.ID)
	return loan, nil
}

func (s *Service) get(ctx context.Context, loanID primitive.ObjectID) (models.Loan, error) {
	l, err := s.loans.GetByID(ctx, loanID)
	if err != nil {
		return models.Loan{}, store.NotFound(err, "loan")
	}
	return l, nil
}

// transition moves a loan to status to on behalf of a group admin. The
// status check and the write are one guarded update, so of two concurrent
// calls exactly one succeeds.
func (s *Service) transition(ctx context.Context, loanID, actorID primitive.ObjectID, to models.LoanStatus) (models.Loan, error) {
	loan, err := s.get(ctx, loanID)
	if err != nil {
		return models.Loan{}, err
	}
	actor, err := s.dir.Membership(ctx, actorID)
	if err != nil {
		return models.Loan{}, err
	}
	if err := authz.RequireManage(actor, loan); err != nil {
		return models.Loan{}, err
	}
	if !loan.Status.CanTransition(to) {
		return models.Loan{}, apperr.Newf(apperr.ErrIllegalTransition, "a %s loan cannot become %s", loan.Status, to)
	}

	ok, err := s.loans.Transition(ctx, loan.ID, loan.Status, to, time.Now().UTC(), &actorID)
	if err != nil {
		return models.Loan{}, err
	}
	if !ok {
		current, err := s.get(ctx, loan.ID)
		if err != nil {
			return models.Loan{}, err
		}
		if current.Status != loan.Status {
			return models.Loan{}, apperr.Newf(apperr.ErrIllegalTransition, "loan is already %s", current.Status)
		}
		return models.Loan{}, apperr.New(apperr.ErrConflict, "loan was modified concurrently")
	}

	loan, err = s.get(ctx, loan.ID)
	if err != nil {
		return models.Loan{}, err
	}
	s.log.Info("loan status changed",
		zap.String("loan_id", loan.ID.Hex()),
		zap.String("status", string(to)),
		zap.String("actor_id", actorID.Hex()))
	return loan, nil
}

func (s *Service) Approve(ctx context.Context, loanID, actorID primitive.ObjectID) (models.Loan, error) {
	loan, err := s.transition(ctx, loanID, actorID, models.LoanApproved)
	if err != nil {
		return models.Loan{}, err
	}
	s.audit.LoanApproved(ctx, loan, &actorID)
	return loan, nil
}

func (s *Service) Reject(ctx context.Context, loanID, actorID primitive.ObjectID) (models.Loan, error) {
	loan, err := s.transition(ctx, loanID, actorID, models.LoanRejected)
	if err != nil {
		return models.Loan{}, err
	}
	s.audit.LoanRejected(ctx, loan, &actorID)
	return loan, nil
}

// MarkRepaid closes an approved loan by hand, whatever its balance.
func (s *Service) MarkRepaid(ctx context.Context, loanID, actorID primitive.ObjectID) (models.Loan, error) {
	loan, err := s.transition(ctx, loanID, actorID, models.LoanRepaid)
	if err != nil {
		return models.Loan{}, err
	}
	s.audit.LoanRepaid(ctx, loan, &actorID)
	return loan, nil
}

// MarkDefaulted writes off an approved loan. Deciding when a loan has
// defaulted is group policy outside this service.
func (s *Service) MarkDefaulted(ctx context.Context, loanID, actorID primitive.ObjectID) (models.Loan, error) {
	loan, err := s.transition(ctx, loanID, actorID, models.LoanDefaulted)
	if err != nil {
		return models.Loan{}, err
	}
	s.audit.LoanDefaulted(ctx, loan, &actorID)
	return loan, nil
}
