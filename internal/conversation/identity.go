package conversation

import (
	"context"

	"github.com/google/uuid"
)

type sessionIdentity struct {
	id uuid.UUID
}

// SessionIdentity returns an Identity bound to the user a session was
// authenticated as. A nil id means no session: lookups fail closed.
func SessionIdentity(id uuid.UUID) Identity {
	return sessionIdentity{id: id}
}

func (s sessionIdentity) CurrentUser(ctx context.Context) (uuid.UUID, error) {
	return s.id, nil
}
