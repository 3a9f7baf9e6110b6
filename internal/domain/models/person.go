// internal/domain/models/person.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Person is an individual who may belong to several groups.
// Phone is stored normalized (country code prefixed, digits only) and is the
// key used to match inbound mobile-money payments.
type Person struct {
	ID         primitive.ObjectID `bson:"_id" json:"id"`
	FullName   string             `bson:"full_name" json:"full_name"`
	FullNameCI string             `bson:"full_name_ci" json:"-"`
	Phone      string             `bson:"phone" json:"phone"`
	NationalID string             `bson:"national_id" json:"national_id"`
	Email      *string            `bson:"email,omitempty" json:"email,omitempty"`
	Active     bool               `bson:"active" json:"active"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
