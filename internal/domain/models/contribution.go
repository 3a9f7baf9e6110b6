// internal/domain/models/contribution.go
package models

import (
	"time"

	"github.com/dalemusser/jamiifunds/internal/domain/money"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Contribution is a member's deposit into group savings. It is created
// unconfirmed and flips to confirmed exactly once, either when a matching
// payment arrives or when a group admin confirms it by hand.
type Contribution struct {
	ID             primitive.ObjectID `bson:"_id" json:"id"`
	MembershipID   primitive.ObjectID `bson:"membership_id" json:"membership_id"`
	GroupID        primitive.ObjectID `bson:"group_id" json:"group_id"`
	Amount         money.Amount       `bson:"amount" json:"amount"`
	Date           time.Time          `bson:"date" json:"date"`
	Confirmed      bool               `bson:"confirmed" json:"confirmed"`
	TransactionRef *string            `bson:"transaction_ref,omitempty" json:"transaction_ref,omitempty"`
	ConfirmedAt    *time.Time         `bson:"confirmed_at,omitempty" json:"confirmed_at,omitempty"`
	CreatedAt      time.Time          `bson:"created_at" json:"created_at"`
}

func (c Contribution) OwningGroup() primitive.ObjectID { return c.GroupID }
