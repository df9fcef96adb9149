package session

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

type RegisterEmployeeMessage struct {
	FirstName       string   `json:"first_name"`
	LastName        string   `json:"last_name"`
	Email           string   `json:"email"`
	Alias           string   `json:"alias"`
	RoleAssignments []string `json:"role_assignments"`
}

func (e RegisterEmployeeMessage) Type() string { return "employee.register" }

// Validate checks required profile fields. Email syntax is checked
// separately so it can surface as a typed failure.
func (e RegisterEmployeeMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.FirstName, validation.Required),
		validation.Field(&e.LastName, validation.Required),
		validation.Field(&e.Alias, validation.Required),
		validation.Field(&e.Email, validation.Required),
	)
}

// RegisterEmployeeHandler creates an identity plus profile pair for a new
// employee. The provider handle must be a secondary instance dedicated to
// registration: creating an identity signs the new principal in on that
// handle, and the handler signs it back out before returning so the
// administrator's own session is never displaced.
//
// The alias uniqueness check runs before any write; a conflict performs zero
// writes. The identity provider and document store are separate systems with
// no shared transaction: if identity creation succeeds and a profile write
// then fails, an orphaned identity remains. That gap is surfaced through
// ErrProfileWriteFailed with the identity id in the metadata.
type RegisterEmployeeHandler struct {
	registrar IdentityProvider
	store     DocumentStore
	logger    Logger
	secret    func() string
}

type RegisterEmployeeOption func(*RegisterEmployeeHandler)

func WithRegisterLogger(logger Logger) RegisterEmployeeOption {
	return func(h *RegisterEmployeeHandler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithThrowawaySecret overrides the generated throwaway credential, mainly
// for tests.
func WithThrowawaySecret(fn func() string) RegisterEmployeeOption {
	return func(h *RegisterEmployeeHandler) {
		if fn != nil {
			h.secret = fn
		}
	}
}

func NewRegisterEmployeeHandler(registrar IdentityProvider, store DocumentStore, opts ...RegisterEmployeeOption) *RegisterEmployeeHandler {
	h := &RegisterEmployeeHandler{
		registrar: registrar,
		store:     store,
		logger:    defLogger{},
		secret:    uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

func (h *RegisterEmployeeHandler) Execute(ctx context.Context, event RegisterEmployeeMessage) (*EmployeeProfile, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during employee registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterEmployeeHandler) execute(ctx context.Context, event RegisterEmployeeMessage) (*EmployeeProfile, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if err := event.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid registration payload")
	}

	email := strings.ToLower(strings.TrimSpace(event.Email))
	if err := validation.Validate(email, is.Email); err != nil {
		return nil, ErrInvalidEmail.WithMetadata(map[string]any{"email": email})
	}

	// Aliases are stored lowercased, so the equality query below is the
	// case-insensitive conflict check.
	alias := strings.ToLower(strings.TrimSpace(event.Alias))
	matches, err := h.store.QueryDocuments(ctx, CollectionEmployees, "alias", alias)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "alias lookup failed")
	}
	if len(matches) > 0 {
		return nil, ErrAliasConflict.WithMetadata(map[string]any{"alias": alias})
	}

	identity, err := h.registrar.CreateIdentity(ctx, email, h.secret())
	if err != nil {
		// The provider surfaces ErrEmailConflict and ErrInvalidEmail typed.
		return nil, err
	}

	if err := h.registrar.SignOut(ctx); err != nil {
		h.logger.Error("failed to sign out throwaway registration session: %v", err)
	}

	userDoc := Document{
		"first_name": strings.ToLower(strings.TrimSpace(event.FirstName)),
		"last_name":  strings.ToLower(strings.TrimSpace(event.LastName)),
		"email":      email,
		"role":       string(RoleUser),
	}
	if err := h.store.SetDocument(ctx, CollectionUsers, identity.ID(), userDoc); err != nil {
		h.logger.Error("user record write failed for identity %s: %v", identity.ID(), err)
		return nil, ErrProfileWriteFailed.WithMetadata(map[string]any{
			"identity_id": identity.ID(),
			"collection":  CollectionUsers,
		})
	}

	employeeDoc := Document{
		"alias":            alias,
		"role_assignments": event.RoleAssignments,
	}
	if err := h.store.SetDocument(ctx, CollectionEmployees, identity.ID(), employeeDoc); err != nil {
		h.logger.Error("employee record write failed for identity %s: %v", identity.ID(), err)
		return nil, ErrProfileWriteFailed.WithMetadata(map[string]any{
			"identity_id": identity.ID(),
			"collection":  CollectionEmployees,
		})
	}

	return &EmployeeProfile{
		ID:              identity.ID(),
		Alias:           alias,
		RoleAssignments: event.RoleAssignments,
	}, nil
}
