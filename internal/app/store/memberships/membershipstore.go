// internal/app/store/memberships/membershipstore.go
package membershipstore

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

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("memberships")}
}

var ErrDuplicateMembership = fmt.Errorf("%w: person is already a member of this group", store.ErrDuplicate)

// Create inserts an active membership. The caller checks that the person and
// group exist and are active.
func (s *Store) Create(ctx context.Context, m models.Membership) (models.Membership, error) {
	m.ID = primitive.NewObjectID()
	m.Active = true
	if m.JoinedAt.IsZero() {
		m.JoinedAt = time.Now().UTC()
	}
	if _, err := s.c.InsertOne(ctx, m); err != nil {
		if wafflemongo.IsDup(err) {
			return models.Membership{}, ErrDuplicateMembership
		}
		return models.Membership{}, err
	}
	return m, nil
}

func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Membership, error) {
	var m models.Membership
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
		return models.Membership{}, err
	}
	return m, nil
}

func (s *Store) list(ctx context.Context, filter bson.M) ([]models.Membership, error) {
	opts := options.Find().SetSort(bson.D{{Key: "joined_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Membership
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListByGroup returns all memberships of a group, oldest first.
func (s *Store) ListByGroup(ctx context.Context, groupID primitive.ObjectID) ([]models.Membership, error) {
	return s.list(ctx, bson.M{"group_id": groupID})
}

// ListByPerson returns all memberships of a person, oldest first.
func (s *Store) ListByPerson(ctx context.Context, personID primitive.ObjectID) ([]models.Membership, error) {
	return s.list(ctx, bson.M{"person_id": personID})
}

func (s *Store) set(ctx context.Context, id primitive.ObjectID, field string, v bool) error {
	res, err := s.c.UpdateByID(ctx, id, bson.M{"$set": bson.M{field: v}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

func (s *Store) SetActive(ctx context.Context, id primitive.ObjectID, active bool) error {
	return s.set(ctx, id, "active", active)
}

func (s *Store) SetAdmin(ctx context.Context, id primitive.ObjectID, isAdmin bool) error {
	return s.set(ctx, id, "is_admin", isAdmin)
}

// DeleteByIDs removes the given memberships.
// Returns the number of documents deleted.
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
