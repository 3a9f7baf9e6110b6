// internal/app/store/persons/personstore.go
package personstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dalemusser/jamiifunds/internal/app/store"
	"github.com/dalemusser/jamiifunds/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type Store struct {
	c *mongo.Collection
}

var (
	ErrDuplicatePhone      = fmt.Errorf("%w: a person with this phone number is already registered", store.ErrDuplicate)
	ErrDuplicateNationalID = fmt.Errorf("%w: a person with this national ID is already registered", store.ErrDuplicate)
)

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("persons")}
}

// Create inserts p as a new active person. Phone and NationalID must already
// be normalized by the caller.
func (s *Store) Create(ctx context.Context, p models.Person) (models.Person, error) {
	now := time.Now().UTC()
	p.ID = primitive.NewObjectID()
	p.FullNameCI = text.Fold(p.FullName)
	p.Active = true
	p.CreatedAt = now
	p.UpdatedAt = now
	if _, err := s.c.InsertOne(ctx, p); err != nil {
		if wafflemongo.IsDup(err) {
			// The duplicate-key message names the violated index.
			if strings.Contains(err.Error(), "national_id") {
				return models.Person{}, ErrDuplicateNationalID
			}
			return models.Person{}, ErrDuplicatePhone
		}
		return models.Person{}, err
	}
	return p, nil
}

func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Person, error) {
	var p models.Person
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&p); err != nil {
		return models.Person{}, err
	}
	return p, nil
}

// GetByPhone looks a person up by normalized phone.
func (s *Store) GetByPhone(ctx context.Context, phone string) (models.Person, error) {
	var p models.Person
	if err := s.c.FindOne(ctx, bson.M{"phone": phone}).Decode(&p); err != nil {
		return models.Person{}, err
	}
	return p, nil
}

func (s *Store) SetActive(ctx context.Context, id primitive.ObjectID, active bool) error {
	res, err := s.c.UpdateByID(ctx, id, bson.M{"$set": bson.M{
		"active":     active,
		"updated_at": time.Now().UTC(),
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id primitive.ObjectID) (int64, error) {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
