// internal/domain/models/interest.go
package models

import (
	"time"

	"github.com/dalemusser/jamiifunds/internal/domain/money"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// InterestEntry is the interest a loan accrued in one calendar month, taken
// from the loan's amortization schedule. Month is the first instant of the
// month in UTC; a loan has at most one entry per month.
type InterestEntry struct {
	ID           primitive.ObjectID `bson:"_id" json:"id"`
	LoanID       primitive.ObjectID `bson:"loan_id" json:"loan_id"`
	MembershipID primitive.ObjectID `bson:"membership_id" json:"membership_id"`
	GroupID      primitive.ObjectID `bson:"group_id" json:"group_id"`
	Month        time.Time          `bson:"month" json:"month"`
	Installment  int                `bson:"installment" json:"installment"`
	Amount       money.Amount       `bson:"amount" json:"amount"`
	RecordedAt   time.Time          `bson:"recorded_at" json:"recorded_at"`
}

func (e InterestEntry) OwningGroup() primitive.ObjectID { return e.GroupID }

// MonthStart returns the first instant of t's calendar month in UTC.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
