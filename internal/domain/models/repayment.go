// internal/domain/models/repayment.go
package models

import (
	"time"

	"github.com/dalemusser/jamiifunds/internal/domain/money"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Repayment is an amount applied against an approved loan.
type Repayment struct {
	ID             primitive.ObjectID `bson:"_id" json:"id"`
	LoanID         primitive.ObjectID `bson:"loan_id" json:"loan_id"`
	MembershipID   primitive.ObjectID `bson:"membership_id" json:"membership_id"`
	GroupID        primitive.ObjectID `bson:"group_id" json:"group_id"`
	Amount         money.Amount       `bson:"amount" json:"amount"`
	Date           time.Time          `bson:"date" json:"date"`
	TransactionRef *string            `bson:"transaction_ref,omitempty" json:"transaction_ref,omitempty"`
}

func (r Repayment) OwningGroup() primitive.ObjectID { return r.GroupID }
