// internal/domain/models/paymentevent.go
package models

import (
	"time"

	"github.com/dalemusser/jamiifunds/internal/domain/money"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PaymentType says what an inbound payment is meant to settle.
type PaymentType string

const (
	PaymentContribution  PaymentType = "contribution"
	PaymentLoanRepayment PaymentType = "loan_repayment"
)

// PaymentStatus tracks a mobile-money transaction.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentInitiated PaymentStatus = "initiated"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentCancelled PaymentStatus = "cancelled"
	PaymentTimeout   PaymentStatus = "timeout"
)

// TerminalPaymentStatuses are the statuses an event never leaves.
var TerminalPaymentStatuses = []PaymentStatus{PaymentCompleted, PaymentFailed, PaymentCancelled, PaymentTimeout}

// IsTerminal reports whether s is one of TerminalPaymentStatuses.
func (s PaymentStatus) IsTerminal() bool {
	for _, t := range TerminalPaymentStatuses {
		if s == t {
			return true
		}
	}
	return false
}

// MatchOutcome records what reconciliation did with a completed payment.
type MatchOutcome string

const (
	MatchContribution MatchOutcome = "matched_contribution"
	MatchRepayment    MatchOutcome = "matched_repayment"
	MatchNone         MatchOutcome = "unmatched"
	MatchUnknownPayer MatchOutcome = "unknown_payer"
	MatchFailed       MatchOutcome = "failed"
	// MatchProcessingFailed marks a completed event whose matching stopped
	// on an error after the terminal status was written.
	MatchProcessingFailed MatchOutcome = "processing_failed"
	// MatchLateSuccess marks a timed-out event whose provider later reported
	// the money as received.
	MatchLateSuccess MatchOutcome = "late_success"
)

// ReviewOutcomes are the outcomes of completed events left for manual
// reconciliation. Late successes are reviewed regardless of status.
var ReviewOutcomes = []MatchOutcome{MatchNone, MatchUnknownPayer, MatchProcessingFailed}

// PaymentEvent is one mobile-money transaction, created when a payment is
// initiated or when an unsolicited confirmation arrives. CheckoutID is the
// idempotency key for provider callbacks.
type PaymentEvent struct {
	ID                primitive.ObjectID `bson:"_id" json:"id"`
	Reference         string             `bson:"reference" json:"reference"`
	CheckoutID        *string            `bson:"checkout_id,omitempty" json:"checkout_id,omitempty"`
	MerchantRequestID string             `bson:"merchant_request_id,omitempty" json:"merchant_request_id,omitempty"`
	Receipt           *string            `bson:"receipt,omitempty" json:"receipt,omitempty"`

	Phone  string        `bson:"phone" json:"phone"`
	Amount money.Amount  `bson:"amount" json:"amount"`
	Type   PaymentType   `bson:"type" json:"type"`
	Status PaymentStatus `bson:"status" json:"status"`

	ResultCode *int   `bson:"result_code,omitempty" json:"result_code,omitempty"`
	ResultDesc string `bson:"result_desc,omitempty" json:"result_desc,omitempty"`

	// Hints recorded at initiation; reconciliation prefers them.
	MembershipID *primitive.ObjectID `bson:"membership_id,omitempty" json:"membership_id,omitempty"`
	GroupID      *primitive.ObjectID `bson:"group_id,omitempty" json:"group_id,omitempty"`
	LoanID       *primitive.ObjectID `bson:"loan_id,omitempty" json:"loan_id,omitempty"`
	// ContributionID is set at initiation for contribution payments.
	ContributionID *primitive.ObjectID `bson:"contribution_id,omitempty" json:"contribution_id,omitempty"`

	// Set by reconciliation.
	Outcome              MatchOutcome        `bson:"outcome,omitempty" json:"outcome,omitempty"`
	LinkedContributionID *primitive.ObjectID `bson:"linked_contribution_id,omitempty" json:"linked_contribution_id,omitempty"`
	LinkedRepaymentID    *primitive.ObjectID `bson:"linked_repayment_id,omitempty" json:"linked_repayment_id,omitempty"`
	LinkedMembershipID   *primitive.ObjectID `bson:"linked_membership_id,omitempty" json:"linked_membership_id,omitempty"`

	RawPayload string `bson:"raw_payload,omitempty" json:"-"`

	CreatedAt   time.Time  `bson:"created_at" json:"created_at"`
	InitiatedAt *time.Time `bson:"initiated_at,omitempty" json:"initiated_at,omitempty"`
	CompletedAt *time.Time `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
}

// OwningGroup returns the group hint, or NilObjectID for unsolicited events
// that have not been linked.
func (e PaymentEvent) OwningGroup() primitive.ObjectID {
	if e.GroupID != nil {
		return *e.GroupID
	}
	return primitive.NilObjectID
}

// NeedsReview reports whether money was received for e without being
// applied to the ledger.
func (e PaymentEvent) NeedsReview() bool {
	if e.Outcome == MatchLateSuccess {
		return true
	}
	if e.Status != PaymentCompleted {
		return false
	}
	for _, o := range ReviewOutcomes {
		if e.Outcome == o {
			return true
		}
	}
	return false
}
