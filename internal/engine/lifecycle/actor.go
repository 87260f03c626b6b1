package lifecycle

import (
	"referral-workers/internal/common/errors"
	"referral-workers/internal/models"
)

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleSupplier Role = "supplier"
)

// Actor is whoever requests a transition. For suppliers ID is the supplier id.
type Actor struct {
	Role Role   `json:"role"`
	ID   string `json:"id"`
}

func Admin(id string) Actor    { return Actor{Role: RoleAdmin, ID: id} }
func Supplier(id string) Actor { return Actor{Role: RoleSupplier, ID: id} }

func (a Actor) String() string {
	return string(a.Role) + ":" + a.ID
}

func requireAdmin(a Actor, op string) error {
	if a.Role != RoleAdmin {
		return errors.NewUnauthorizedError(op + " requires an admin").
			WithMetadata("actor", a.String())
	}
	return nil
}

// authorizeSupplierEdge allows the accountable supplier and, as an
// override, any admin.
func authorizeSupplierEdge(a Actor, ref *models.Referral) error {
	switch a.Role {
	case RoleAdmin:
		return nil
	case RoleSupplier:
		if a.ID != "" && a.ID == ref.Holder() {
			return nil
		}
	}
	return errors.NewUnauthorizedError("actor is not the supplier on this referral").
		WithMetadata("actor", a.String()).
		WithMetadata("referralId", ref.ID)
}
