// internal/app/store/profitshares/profitsharestore.go
package profitsharestore

import (
	"context"
	"fmt"
	"time"

	"github.com/dalemusser/jamiifunds/internal/app/store"
	"github.com/dalemusser/jamiifunds/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrDuplicateShare = fmt.Errorf("%w: membership already has a share in this distribution", store.ErrDuplicate)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("profit_shares")}
}

// CreateMany inserts unpaid shares in order and returns them with their ids.
// Outside a transaction a failed batch removes whatever part of it landed.
func (s *Store) CreateMany(ctx context.Context, shares []models.ProfitShare) ([]models.ProfitShare, error) {
	if len(shares) == 0 {
		return nil, nil
	}
	out := make([]models.ProfitShare, len(shares))
	docs := make([]interface{}, len(shares))
	ids := make([]primitive.ObjectID, len(shares))
	for i, sh := range shares {
		sh.ID = primitive.NewObjectID()
		sh.Paid = false
		sh.PaidAt = nil
		sh.PaidBy = nil
		out[i] = sh
		docs[i] = sh
		ids[i] = sh.ID
	}
	if _, err := s.c.InsertMany(ctx, docs); err != nil {
		if mongo.SessionFromContext(ctx) == nil {
			_, _ = s.c.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
		}
		if wafflemongo.IsDup(err) {
			return nil, ErrDuplicateShare
		}
		return nil, err
	}
	return out, nil
}

func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.ProfitShare, error) {
	var sh models.ProfitShare
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&sh); err != nil {
		return models.ProfitShare{}, err
	}
	return sh, nil
}

func (s *Store) find(ctx context.Context, filter bson.M) ([]models.ProfitShare, error) {
	cur, err := s.c.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.ProfitShare
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) ListByDistribution(ctx context.Context, distributionID primitive.ObjectID) ([]models.ProfitShare, error) {
	return s.find(ctx, bson.M{"distribution_id": distributionID})
}

func (s *Store) ListByMembership(ctx context.Context, membershipID primitive.ObjectID) ([]models.ProfitShare, error) {
	return s.find(ctx, bson.M{"membership_id": membershipID})
}

// MarkPaid sets paid=true if the share is still unpaid.
func (s *Store) MarkPaid(ctx context.Context, id primitive.ObjectID, at time.Time, actor *primitive.ObjectID) (bool, error) {
	set := bson.M{"paid": true, "paid_at": at}
	if actor != nil {
		set["paid_by"] = *actor
	}
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": id, "paid": false}, bson.M{"$set": set})
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

func (s *Store) DeleteByGroup(ctx context.Context, groupID primitive.ObjectID) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"group_id": groupID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
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
