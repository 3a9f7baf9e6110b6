// Package store declares the persistence contracts the ledger services
// depend on. Each subpackage implements one contract against a single
// MongoDB collection; testutil/memstore implements all of them in memory.
//
// Conventions shared by every implementation:
//   - lookups of a missing document return mongo.ErrNoDocuments unchanged;
//   - unique-constraint violations return a sentinel wrapping ErrDuplicate;
//   - methods returning (bool, error) are compare-and-set updates and report
//     false when the guard did not match, which callers treat as a lost race
//     or an illegal transition.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/jamiifunds/internal/domain/apperr"
	"github.com/dalemusser/jamiifunds/internal/domain/models"
	"github.com/dalemusser/jamiifunds/internal/domain/money"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// ErrDuplicate is wrapped by every store's unique-constraint sentinel.
var ErrDuplicate = errors.New("duplicate")

// NotFound classifies mongo.ErrNoDocuments as apperr.ErrNotFound naming what
// was looked up. Other errors pass through unchanged.
func NotFound(err error, what string) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return apperr.Wrap(apperr.ErrNotFound, what+" not found", err)
	}
	return err
}

type Groups interface {
	Create(ctx context.Context, g models.Group) (models.Group, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (models.Group, error)
	SetActive(ctx context.Context, id primitive.ObjectID, active bool) error
	Delete(ctx context.Context, id primitive.ObjectID) (int64, error)
}

type Persons interface {
	Create(ctx context.Context, p models.Person) (models.Person, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (models.Person, error)
	GetByPhone(ctx context.Context, phone string) (models.Person, error)
	SetActive(ctx context.Context, id primitive.ObjectID, active bool) error
	Delete(ctx context.Context, id primitive.ObjectID) (int64, error)
}

type Memberships interface {
	Create(ctx context.Context, m models.Membership) (models.Membership, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (models.Membership, error)
	ListByGroup(ctx context.Context, groupID primitive.ObjectID) ([]models.Membership, error)
	// ListByPerson returns the person's memberships, oldest first.
	ListByPerson(ctx context.Context, personID primitive.ObjectID) ([]models.Membership, error)
	SetActive(ctx context.Context, id primitive.ObjectID, active bool) error
	SetAdmin(ctx context.Context, id primitive.ObjectID, isAdmin bool) error
	DeleteByIDs(ctx context.Context, ids []primitive.ObjectID) (int64, error)
}

type Contributions interface {
	Create(ctx context.Context, c models.Contribution) (models.Contribution, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (models.Contribution, error)
	ListByMembership(ctx context.Context, membershipID primitive.ObjectID) ([]models.Contribution, error)
	SumConfirmed(ctx context.Context, membershipID primitive.ObjectID) (money.Amount, error)
	SumUnconfirmed(ctx context.Context, membershipID primitive.ObjectID) (money.Amount, error)
	SumConfirmedByGroup(ctx context.Context, groupID primitive.ObjectID) (money.Amount, error)
	// ListUnconfirmedByAmount returns unconfirmed contributions of exactly
	// amount on the membership, oldest first.
	ListUnconfirmedByAmount(ctx context.Context, membershipID primitive.ObjectID, amount money.Amount) ([]models.Contribution, error)
	// Confirm sets confirmed=true if the contribution is still unconfirmed.
	Confirm(ctx context.Context, id primitive.ObjectID, ref *string, at time.Time) (bool, error)
	DeleteByMemberships(ctx context.Context, membershipIDs []primitive.ObjectID) (int64, error)
}

type Loans interface {
	Create(ctx context.Context, l models.Loan) (models.Loan, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (models.Loan, error)
	ListByMembership(ctx context.Context, membershipID primitive.ObjectID) ([]models.Loan, error)
	// ListApprovedByMembership returns approved loans, earliest approval first.
	ListApprovedByMembership(ctx context.Context, membershipID primitive.ObjectID) ([]models.Loan, error)
	// ListApproved returns every approved loan, earliest approval first.
	ListApproved(ctx context.Context) ([]models.Loan, error)
	// Transition moves the loan from one status to another if it is still in from.
	Transition(ctx context.Context, id primitive.ObjectID, from, to models.LoanStatus, at time.Time, actor *primitive.ObjectID) (bool, error)
	// ApplyRepayment adds amount to total_paid if the loan is approved and
	// still at version. When repaid is true the loan also moves to repaid.
	ApplyRepayment(ctx context.Context, id primitive.ObjectID, version int64, amount money.Amount, repaid bool, at time.Time) (bool, error)
	// SumOutstandingPrincipalByGroup sums principal over pending and approved loans.
	SumOutstandingPrincipalByGroup(ctx context.Context, groupID primitive.ObjectID) (money.Amount, error)
	IDsByMemberships(ctx context.Context, membershipIDs []primitive.ObjectID) ([]primitive.ObjectID, error)
	DeleteByIDs(ctx context.Context, ids []primitive.ObjectID) (int64, error)
}

type Repayments interface {
	Create(ctx context.Context, r models.Repayment) (models.Repayment, error)
	ListByLoan(ctx context.Context, loanID primitive.ObjectID) ([]models.Repayment, error)
	Delete(ctx context.Context, id primitive.ObjectID) error
	SumByLoan(ctx context.Context, loanID primitive.ObjectID) (money.Amount, error)
	DeleteByLoans(ctx context.Context, loanIDs []primitive.ObjectID) (int64, error)
}

type InterestEntries interface {
	// Create fails with a sentinel wrapping ErrDuplicate when the loan
	// already has an entry for the month.
	Create(ctx context.Context, e models.InterestEntry) (models.InterestEntry, error)
	ListByLoan(ctx context.Context, loanID primitive.ObjectID) ([]models.InterestEntry, error)
	// SumByGroup totals the group's interest for months in [from, to).
	SumByGroup(ctx context.Context, groupID primitive.ObjectID, from, to time.Time) (money.Amount, error)
	DeleteByLoans(ctx context.Context, loanIDs []primitive.ObjectID) (int64, error)
}

type Distributions interface {
	// Create fails with a sentinel wrapping ErrDuplicate when the group
	// already distributed profit for the year.
	Create(ctx context.Context, d models.ProfitDistribution) (models.ProfitDistribution, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (models.ProfitDistribution, error)
	ListByGroup(ctx context.Context, groupID primitive.ObjectID) ([]models.ProfitDistribution, error)
	Delete(ctx context.Context, id primitive.ObjectID) error
	DeleteByGroup(ctx context.Context, groupID primitive.ObjectID) (int64, error)
}

type ProfitShares interface {
	CreateMany(ctx context.Context, shares []models.ProfitShare) ([]models.ProfitShare, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (models.ProfitShare, error)
	ListByDistribution(ctx context.Context, distributionID primitive.ObjectID) ([]models.ProfitShare, error)
	ListByMembership(ctx context.Context, membershipID primitive.ObjectID) ([]models.ProfitShare, error)
	// MarkPaid sets paid=true if the share is still unpaid.
	MarkPaid(ctx context.Context, id primitive.ObjectID, at time.Time, actor *primitive.ObjectID) (bool, error)
	DeleteByGroup(ctx context.Context, groupID primitive.ObjectID) (int64, error)
	DeleteByMemberships(ctx context.Context, membershipIDs []primitive.ObjectID) (int64, error)
}

// Finalization is the terminal state written to a payment event when the
// provider's callback is processed.
type Finalization struct {
	Status     models.PaymentStatus
	ResultCode int
	ResultDesc string
	Receipt    *string
	Amount     *money.Amount // as reported by the provider, when present
	Phone      string        // normalized, when present
	RawPayload string
	At         time.Time
}

// Linkage records the outcome of matching a completed payment.
type Linkage struct {
	Outcome        models.MatchOutcome
	MembershipID   *primitive.ObjectID
	GroupID        *primitive.ObjectID
	ContributionID *primitive.ObjectID
	RepaymentID    *primitive.ObjectID
}

type PaymentEvents interface {
	Create(ctx context.Context, e models.PaymentEvent) (models.PaymentEvent, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (models.PaymentEvent, error)
	GetByCheckoutID(ctx context.Context, checkoutID string) (models.PaymentEvent, error)
	MarkInitiated(ctx context.Context, id primitive.ObjectID, checkoutID, merchantRequestID string, at time.Time) error
	MarkInitiationFailed(ctx context.Context, id primitive.ObjectID, reason string, at time.Time) error
	// Finalize moves the event with checkoutID to a terminal status if it is
	// not terminal already. False means another delivery got there first.
	Finalize(ctx context.Context, checkoutID string, f Finalization) (bool, error)
	Link(ctx context.Context, id primitive.ObjectID, l Linkage) error
	// MarkProcessingFailed sets the processing_failed outcome on a completed
	// event that has no outcome yet.
	MarkProcessingFailed(ctx context.Context, id primitive.ObjectID) (bool, error)
	// RecordLateSuccess stores a success callback on a timed-out event.
	RecordLateSuccess(ctx context.Context, checkoutID string, f Finalization) (bool, error)
	// ExpireStale times out pending and initiated events created before cutoff.
	ExpireStale(ctx context.Context, cutoff, at time.Time) (int64, error)
	// ListUnmatched returns events left for manual reconciliation: completed
	// events with a review outcome and timed-out events with a late success.
	ListUnmatched(ctx context.Context, limit int64) ([]models.PaymentEvent, error)
}

// Set bundles every store a service may need.
type Set struct {
	Groups        Groups
	Persons       Persons
	Memberships   Memberships
	Contributions Contributions
	Loans         Loans
	Repayments    Repayments
	PaymentEvents PaymentEvents

	InterestEntries InterestEntries
	Distributions   Distributions
	ProfitShares    ProfitShares
}
