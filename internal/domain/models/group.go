// internal/domain/models/group.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Group is a chama: a savings and credit group.
//
// NOTE:
//   - Members are not embedded; membership lives in the memberships collection.
//   - NameCI is the folded name and carries the uniqueness constraint.
type Group struct {
	ID          primitive.ObjectID `bson:"_id" json:"id"`
	Name        string             `bson:"name" json:"name"`
	NameCI      string             `bson:"name_ci" json:"-"`
	Description string             `bson:"description" json:"description"`
	Active      bool               `bson:"active" json:"active"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// OwningGroup implements Scoped.
func (g Group) OwningGroup() primitive.ObjectID { return g.ID }
