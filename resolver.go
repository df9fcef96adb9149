package session

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
)

// RoleResolver performs the single-shot role lookup for a signed-in identity
// against the users collection.
type RoleResolver struct {
	store  DocumentStore
	logger Logger
}

// NewRoleResolver returns a resolver reading from the given store.
func NewRoleResolver(store DocumentStore) *RoleResolver {
	return &RoleResolver{
		store:  store,
		logger: defLogger{},
	}
}

func (r *RoleResolver) WithLogger(logger Logger) *RoleResolver {
	if logger != nil {
		r.logger = logger
	}
	return r
}

// Resolve fetches the role recorded for the identity. An absent document or a
// role value outside {admin, user} is a lookup failure, never a default.
func (r *RoleResolver) Resolve(ctx context.Context, identityID string) (Role, error) {
	doc, err := r.store.GetDocument(ctx, CollectionUsers, identityID)
	if err != nil {
		r.logger.Error("role document fetch failed: %v", err)
		return RoleUnknown, goerrors.Wrap(err, goerrors.CategoryAuth, "unable to resolve identity role")
	}

	role := Role(doc.String("role"))
	if !role.IsValid() {
		r.logger.Error("unrecognized role %q for identity %s", role, identityID)
		return RoleUnknown, ErrRoleLookupFailed.WithMetadata(map[string]any{
			"identity_id": identityID,
			"role":        string(role),
		})
	}

	return role, nil
}
