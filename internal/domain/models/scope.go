// internal/domain/models/scope.go
package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// Scoped is implemented by every ledger entity that belongs to exactly one
// group. Authorization decisions are made against OwningGroup.
type Scoped interface {
	OwningGroup() primitive.ObjectID
}
