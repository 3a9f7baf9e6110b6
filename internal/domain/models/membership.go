// internal/domain/models/membership.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Membership joins a Person to a Group. Exactly one document per
// (group_id, person_id). Contributions and loans hang off the membership.
type Membership struct {
	ID       primitive.ObjectID `bson:"_id" json:"id"`
	GroupID  primitive.ObjectID `bson:"group_id" json:"group_id"`
	PersonID primitive.ObjectID `bson:"person_id" json:"person_id"`
	IsAdmin  bool               `bson:"is_admin" json:"is_admin"`
	Active   bool               `bson:"active" json:"active"`
	JoinedAt time.Time          `bson:"joined_at" json:"joined_at"`
}

func (m Membership) OwningGroup() primitive.ObjectID { return m.GroupID }

// MembershipContext is a membership resolved together with its person and group.
type MembershipContext struct {
	Membership Membership
	Person     Person
	Group      Group
}

// CanAccrue reports whether new contributions and loans may be recorded
// against the membership: the person, the group and the membership itself
// must all be active.
func (mc MembershipContext) CanAccrue() bool {
	return mc.Membership.Active && mc.Person.Active && mc.Group.Active
}
