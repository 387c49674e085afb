// Package owners is the minimal member/group directory backing the ledger's
// polymorphic owner checks. Membership management proper lives outside this
// repo; the ledger only needs to create owners and verify they exist.
package owners

import (
	"context"
	"time"

	"github.com/google/uuid"

	"shareledger/internal/shares/models"
	dErrors "shareledger/pkg/domain-errors"
)

// Member is an individual capable of holding shares.
type Member struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Group is a collective capable of holding shares.
type Group struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Directory resolves owner references against the member and group stores.
type Directory interface {
	CreateMember(ctx context.Context, m Member) error
	CreateGroup(ctx context.Context, g Group) error
	GetMember(ctx context.Context, id uuid.UUID) (Member, error)
	GetGroup(ctx context.Context, id uuid.UUID) (Group, error)
	Exists(ctx context.Context, owner models.OwnerRef) (bool, error)
}

// Validate checks that a member or group name is usable.
func validateName(name string) error {
	if name == "" {
		return dErrors.New(dErrors.CodeValidation, "name cannot be empty")
	}
	if len(name) > 128 {
		return dErrors.New(dErrors.CodeValidation, "name must be 128 characters or less")
	}
	return nil
}
