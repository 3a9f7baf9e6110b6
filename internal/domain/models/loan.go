// internal/domain/models/loan.go
package models

import (
	"time"

	"github.com/dalemusser/jamiifunds/internal/domain/money"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// LoanStatus is the position of a loan in its lifecycle.
type LoanStatus string

const (
	LoanPending   LoanStatus = "pending"
	LoanApproved  LoanStatus = "approved"
	LoanRejected  LoanStatus = "rejected"
	LoanRepaid    LoanStatus = "repaid"
	LoanDefaulted LoanStatus = "defaulted"
)

// loanTransitions lists every legal (from, to) pair.
//
//	pending  -> approved | rejected
//	approved -> repaid | defaulted
var loanTransitions = map[LoanStatus][]LoanStatus{
	LoanPending:  {LoanApproved, LoanRejected},
	LoanApproved: {LoanRepaid, LoanDefaulted},
}

// CanTransition reports whether a loan may move from s to next.
func (s LoanStatus) CanTransition(next LoanStatus) bool {
	for _, to := range loanTransitions[s] {
		if to == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func (s LoanStatus) IsTerminal() bool { return len(loanTransitions[s]) == 0 }

// Loan is a member's loan against their group savings.
//
// TotalRepayable is fixed at application time from the terms. TotalPaid is
// the running sum of repayments; it is kept on the loan document so that
// the balance check and the increment happen in a single guarded update.
// Version increments on every write and is used for optimistic concurrency.
type Loan struct {
	ID           primitive.ObjectID `bson:"_id" json:"id"`
	MembershipID primitive.ObjectID `bson:"membership_id" json:"membership_id"`
	GroupID      primitive.ObjectID `bson:"group_id" json:"group_id"`

	Principal    money.Amount `bson:"principal" json:"principal"`
	InterestRate money.Rate   `bson:"interest_rate" json:"interest_rate"`
	TenureMonths int          `bson:"tenure_months" json:"tenure_months"`

	TotalRepayable money.Amount `bson:"total_repayable" json:"total_repayable"`
	TotalPaid      money.Amount `bson:"total_paid" json:"total_paid"`

	Status      LoanStatus          `bson:"status" json:"status"`
	AppliedAt   time.Time           `bson:"applied_at" json:"applied_at"`
	ApprovedAt  *time.Time          `bson:"approved_at,omitempty" json:"approved_at,omitempty"`
	ApprovedBy  *primitive.ObjectID `bson:"approved_by,omitempty" json:"approved_by,omitempty"`
	RejectedAt  *time.Time          `bson:"rejected_at,omitempty" json:"rejected_at,omitempty"`
	RepaidAt    *time.Time          `bson:"repaid_at,omitempty" json:"repaid_at,omitempty"`
	DefaultedAt *time.Time          `bson:"defaulted_at,omitempty" json:"defaulted_at,omitempty"`

	Version   int64     `bson:"version" json:"version"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

func (l Loan) OwningGroup() primitive.ObjectID { return l.GroupID }

// BalanceDue is TotalRepayable minus TotalPaid.
func (l Loan) BalanceDue() money.Amount { return l.TotalRepayable.Sub(l.TotalPaid) }
