// internal/app/store/contributions/contributionstore.go
package contributionstore

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
	return &Store{c: db.Collection("contributions")}
}

// oldestFirst orders by contribution date, then insertion order.
var oldestFirst = bson.D{{Key: "date", Value: 1}, {Key: "_id", Value: 1}}

// Create inserts c as unconfirmed.
func (s *Store) Create(ctx context.Context, c models.Contribution) (models.Contribution, error) {
	now := time.Now().UTC()
	c.ID = primitive.NewObjectID()
	c.Confirmed = false
	c.ConfirmedAt = nil
	if c.Date.IsZero() {
		c.Date = now
	}
	c.CreatedAt = now
	if _, err := s.c.InsertOne(ctx, c); err != nil {
		return models.Contribution{}, err
	}
	return c, nil
}

func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Contribution, error) {
	var c models.Contribution
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&c); err != nil {
		return models.Contribution{}, err
	}
	return c, nil
}

func (s *Store) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.Contribution, error) {
	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Contribution
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) ListByMembership(ctx context.Context, membershipID primitive.ObjectID) ([]models.Contribution, error) {
	return s.find(ctx, bson.M{"membership_id": membershipID}, options.Find().SetSort(oldestFirst))
}

// ListUnconfirmedByAmount returns unconfirmed contributions of exactly amount
// on the membership, oldest first.
func (s *Store) ListUnconfirmedByAmount(ctx context.Context, membershipID primitive.ObjectID, amount money.Amount) ([]models.Contribution, error) {
	filter := bson.M{
		"membership_id": membershipID,
		"confirmed":     false,
		"amount":        amount,
	}
	return s.find(ctx, filter, options.Find().SetSort(oldestFirst).SetLimit(20))
}

// Confirm flips confirmed to true and stamps the reference. It reports false
// when the contribution is missing or already confirmed.
func (s *Store) Confirm(ctx context.Context, id primitive.ObjectID, ref *string, at time.Time) (bool, error) {
	set := bson.M{"confirmed": true, "confirmed_at": at}
	if ref != nil {
		set["transaction_ref"] = *ref
	}
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": id, "confirmed": false}, bson.M{"$set": set})
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

func (s *Store) sum(ctx context.Context, match bson.M) (money.Amount, error) {
	cur, err := s.c.Aggregate(ctx, []bson.M{
		{"$match": match},
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

// SumConfirmed is the membership's confirmed savings.
func (s *Store) SumConfirmed(ctx context.Context, membershipID primitive.ObjectID) (money.Amount, error) {
	return s.sum(ctx, bson.M{"membership_id": membershipID, "confirmed": true})
}

// SumUnconfirmed is the total still awaiting confirmation.
func (s *Store) SumUnconfirmed(ctx context.Context, membershipID primitive.ObjectID) (money.Amount, error) {
	return s.sum(ctx, bson.M{"membership_id": membershipID, "confirmed": false})
}

func (s *Store) SumConfirmedByGroup(ctx context.Context, groupID primitive.ObjectID) (money.Amount, error) {
	return s.sum(ctx, bson.M{"group_id": groupID, "confirmed": true})
}

func (s *Store) DeleteByMemberships(ctx context.Context, membershipIDs []primitive.ObjectID) (int64, error) {
	if len(membershipIDs) == 0 {
		return 0, nil
	}
	res, err := s.c.DeleteMany(ctx, bson.M{"membership_id": bson.M{"$in": membershipIDs}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
