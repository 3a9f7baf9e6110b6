// internal/app/store/repayments/repaymentstore.go
package repaymentstore

import (
	"context"
	"time"

	"github.com/dalemusser/jamiifunds/internal/domain/models"
	"github.com/dalemusser/jamiifunds/internal/domain/money"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("repayments")}
}

func (s *Store) Create(ctx context.Context, r models.Repayment) (models.Repayment, error) {
	r.ID = primitive.NewObjectID()
	if r.Date.IsZero() {
		r.Date = time.Now().UTC()
	}
	if _, err := s.c.InsertOne(ctx, r); err != nil {
		return models.Repayment{}, err
	}
	return r, nil
}

func (s *Store) ListByLoan(ctx context.Context, loanID primitive.ObjectID) ([]models.Repayment, error) {
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.c.Find(ctx, bson.M{"loan_id": loanID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Repayment
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SumByLoan totals the repayment rows of a loan. It should always equal the
// loan's total_paid.
func (s *Store) SumByLoan(ctx context.Context, loanID primitive.ObjectID) (money.Amount, error) {
	cur, err := s.c.Aggregate(ctx, []bson.M{
		{"$match": bson.M{"loan_id": loanID}},
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

// Delete removes one repayment row. PostRepayment uses it to withdraw a row
// whose loan update did not apply.
func (s *Store) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
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
