// internal/app/system/authz/authz.go
package authz

import (
	"github.com/dalemusser/jamiifunds/internal/domain/apperr"
	"github.com/dalemusser/jamiifunds/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// IsGroupAdmin reports whether actor is an active admin membership of groupID.
func IsGroupAdmin(actor models.Membership, groupID primitive.ObjectID) bool {
	return actor.Active && actor.IsAdmin && !groupID.IsZero() && actor.GroupID == groupID
}

// CanManage reports whether actor may act on entity as an administrator
// (approve, reject, confirm, mark defaulted). The decision depends only on
// the actor's membership and the entity's owning group.
func CanManage(actor models.Membership, entity models.Scoped) bool {
	return IsGroupAdmin(actor, entity.OwningGroup())
}

// CanView reports whether actor belongs to the entity's group.
func CanView(actor models.Membership, entity models.Scoped) bool {
	g := entity.OwningGroup()
	return actor.Active && !g.IsZero() && actor.GroupID == g
}

// RequireManage returns an ErrForbidden error when CanManage is false.
func RequireManage(actor models.Membership, entity models.Scoped) error {
	if !CanManage(actor, entity) {
		return apperr.New(apperr.ErrForbidden, "only an active admin of this group can do that")
	}
	return nil
}
