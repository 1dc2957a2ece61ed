package access

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository persists access grants. VerifyPending is the single atomic
// check-and-set verification depends on: of two concurrent calls exactly one
// sees the pending row with a matching code and wins.
type Repository interface {
	Create(ctx context.Context, g *Grant) error
	GetByID(ctx context.Context, id uuid.UUID) (*Grant, error)

	// VerifyPending atomically moves the grant to verified iff it is still
	// pending, the code matches exactly, and it was issued after issuedAfter.
	// It returns the updated grant, or ErrInvalidState-classed failure when
	// the conditions do not hold. It must not reveal which condition failed.
	VerifyPending(ctx context.Context, id uuid.UUID, code string, issuedAfter, verifiedAt, expiresAt time.Time) (*Grant, error)
}
