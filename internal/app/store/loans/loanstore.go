// internal/app/store/loans/loanstore.go
package loanstore

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
	return &Store{c: db.Collection("loans")}
}

// timestampField names the field stamped when a loan enters a status.
var timestampField = map[models.LoanStatus]string{
	models.LoanApproved:  "approved_at",
	models.LoanRejected:  "rejected_at",
	models.LoanRepaid:    "repaid_at",
	models.LoanDefaulted: "defaulted_at",
}

// Create inserts l as a pending loan at version 1.
func (s *Store) Create(ctx context.Context, l models.Loan) (models.Loan, error) {
	now := time.Now().UTC()
	l.ID = primitive.NewObjectID()
	l.Status = models.LoanPending
	l.TotalPaid = money.Zero
	l.Version = 1
	if l.AppliedAt.IsZero() {
		l.AppliedAt = now
	}
	l.UpdatedAt = now
	if _, err := s.c.InsertOne(ctx, l); err != nil {
		return models.Loan{}, err
	}
	return l, nil
}

func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Loan, error) {
	var l models.Loan
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&l); err != nil {
		return models.Loan{}, err
	}
	return l, nil
}

func (s *Store) find(ctx context.Context, filter bson.M, sort bson.D) ([]models.Loan, error) {
	cur, err := s.c.Find(ctx, filter, options.Find().SetSort(sort))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Loan
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) ListByMembership(ctx context.Context, membershipID primitive.ObjectID) ([]models.Loan, error) {
	return s.find(ctx, bson.M{"membership_id": membershipID},
		bson.D{{Key: "applied_at", Value: 1}, {Key: "_id", Value: 1}})
}

func (s *Store) ListApproved(ctx context.Context) ([]models.Loan, error) {
	return s.find(ctx, bson.M{"status": models.LoanApproved},
		bson.D{{Key: "approved_at", Value: 1}, {Key: "_id", Value: 1}})
}

func (s *Store) ListApprovedByMembership(ctx context.Context, membershipID primitive.ObjectID) ([]models.Loan, error) {
	return s.find(ctx, bson.M{"membership_id": membershipID, "status": models.LoanApproved},
		bson.D{{Key: "approved_at", Value: 1}, {Key: "_id", Value: 1}})
}

// Transition moves the loan from one status to another in a single guarded
// update. It reports false if the loan was not in from.
func (s *Store) Transition(ctx context.Context, id primitive.ObjectID, from, to models.LoanStatus, at time.Time, actor *primitive.ObjectID) (bool, error) {
	set := bson.M{"status": to, "updated_at": at}
	if f, ok := timestampField[to]; ok {
		set[f] = at
	}
	if to == models.LoanApproved && actor != nil {
		set["approved_by"] = *actor
	}
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "status": from},
		bson.M{"$set": set, "$inc": bson.M{"version": 1}},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

// ApplyRepayment increments total_paid by amount, guarded on status and
// version so that concurrent repayments cannot both pass a stale balance check.
func (s *Store) ApplyRepayment(ctx context.Context, id primitive.ObjectID, version int64, amount money.Amount, repaid bool, at time.Time) (bool, error) {
	set := bson.M{"updated_at": at}
	if repaid {
		set["status"] = models.LoanRepaid
		set["repaid_at"] = at
	}
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "status": models.LoanApproved, "version": version},
		bson.M{
			"$set": set,
			"$inc": bson.M{"total_paid": amount.Cents(), "version": 1},
		},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

// SumOutstandingPrincipalByGroup sums principal over pending and approved loans.
func (s *Store) SumOutstandingPrincipalByGroup(ctx context.Context, groupID primitive.ObjectID) (money.Amount, error) {
	cur, err := s.c.Aggregate(ctx, []bson.M{
		{"$match": bson.M{
			"group_id": groupID,
			"status":   bson.M{"$in": []models.LoanStatus{models.LoanPending, models.LoanApproved}},
		}},
		{"$group": bson.M{"_id": nil, "total": bson.M{"$sum": "$principal"}}},
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

func (s *Store) IDsByMemberships(ctx context.Context, membershipIDs []primitive.ObjectID) ([]primitive.ObjectID, error) {
	if len(membershipIDs) == 0 {
		return nil, nil
	}
	cur, err := s.c.Find(ctx,
		bson.M{"membership_id": bson.M{"$in": membershipIDs}},
		options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var rows []struct {
		ID primitive.ObjectID `bson:"_id"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}
	ids := make([]primitive.ObjectID, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	return ids, nil
}

func (s *Store) DeleteByIDs(ctx context.Context, ids []primitive.ObjectID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := s.c.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
