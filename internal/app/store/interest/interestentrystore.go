// internal/app/store/interest/interestentrystore.go
package interestentrystore

import (
	"context"
	"fmt"
	"time"

	"github.com/dalemusser/jamiifunds/internal/app/store"
	"github.com/dalemusser/jamiifunds/internal/domain/models"
	"github.com/dalemusser/jamiifunds/internal/domain/money"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrDuplicateMonth = fmt.Errorf("%w: interest already recorded for this loan and month", store.ErrDuplicate)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("interest_entries")}
}

// Create inserts e with Month moved to the start of its month.
func (s *Store) Create(ctx context.Context, e models.InterestEntry) (models.InterestEntry, error) {
	e.ID = primitive.NewObjectID()
	e.Month = models.MonthStart(e.Month)
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now().UTC()
	}
	if _, err := s.c.InsertOne(ctx, e); err != nil {
		if wafflemongo.IsDup(err) {
			return models.InterestEntry{}, ErrDuplicateMonth
		}
		return models.InterestEntry{}, err
	}
	return e, nil
}

// ListByLoan returns the loan's entries, earliest month first.
func (s *Store) ListByLoan(ctx context.Context, loanID primitive.ObjectID) ([]models.InterestEntry, error) {
	cur, err := s.c.Find(ctx, bson.M{"loan_id": loanID},
		options.Find().SetSort(bson.D{{Key: "month", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.InterestEntry
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SumByGroup totals the group's interest for months in [from, to).
func (s *Store) SumByGroup(ctx context.Context, groupID primitive.ObjectID, from, to time.Time) (money.Amount, error) {
	cur, err := s.c.Aggregate(ctx, []bson.M{
		{"$match": bson.M{
			"group_id": groupID,
			"month":    bson.M{"$gte": from, "$lt": to},
		}},
		{"$group": bson.M{"_id": nil, "total": bson.M{"$sum": "$amount"}}},
	})
	if err != nil {
		return money.Zero, err
	}
	defer cur.Close(ctx)

	var row struct {
		Total money.Amount `bson:"total"`
	}
	if cur.Next(ctx) {
		if err := cur.Decode(&row); err != nil {
			return money.Zero, err
		}
	}
	return row.Total, cur.Err()
}

func (s *Store) DeleteByLoans(ctx context.Context, loanIDs []primitive.ObjectID) (int64, error) {
	if len(loanIDs) == 0 {
		return 0, nil
	}
	res, err := s.c.DeleteMany(ctx, bson.M{"loan_id": bson.M{"$in": loanIDs}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
