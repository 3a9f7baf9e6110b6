// internal/domain/models/profit.go
package models

import (
	"time"

	"github.com/dalemusser/jamiifunds/internal/domain/money"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ProfitDistribution is a group's profit for one year, split among members
// in proportion to their confirmed savings. A group distributes once per year.
type ProfitDistribution struct {
	ID            primitive.ObjectID  `bson:"_id" json:"id"`
	GroupID       primitive.ObjectID  `bson:"group_id" json:"group_id"`
	Year          int                 `bson:"year" json:"year"`
	TotalProfit   money.Amount        `bson:"total_profit" json:"total_profit"`
	TotalSavings  money.Amount        `bson:"total_savings" json:"total_savings"`
	DistributedOn time.Time           `bson:"distributed_on" json:"distributed_on"`
	Notes         string              `bson:"notes,omitempty" json:"notes,omitempty"`
	CreatedBy     *primitive.ObjectID `bson:"created_by,omitempty" json:"created_by,omitempty"`
	CreatedAt     time.Time           `bson:"created_at" json:"created_at"`
}

func (d ProfitDistribution) OwningGroup() primitive.ObjectID { return d.GroupID }

// ProfitShare is one membership's part of a distribution. Paid flips to true
// exactly once, when the group pays the share out.
type ProfitShare struct {
	ID             primitive.ObjectID  `bson:"_id" json:"id"`
	DistributionID primitive.ObjectID  `bson:"distribution_id" json:"distribution_id"`
	MembershipID   primitive.ObjectID  `bson:"membership_id" json:"membership_id"`
	GroupID        primitive.ObjectID  `bson:"group_id" json:"group_id"`
	Savings        money.Amount        `bson:"savings" json:"savings"`
	Amount         money.Amount        `bson:"amount" json:"amount"`
	Paid           bool                `bson:"paid" json:"paid"`
	PaidAt         *time.Time          `bson:"paid_at,omitempty" json:"paid_at,omitempty"`
	PaidBy         *primitive.ObjectID `bson:"paid_by,omitempty" json:"paid_by,omitempty"`
}

func (s ProfitShare) OwningGroup() primitive.ObjectID { return s.GroupID }
