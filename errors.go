package session

import (
	goerrors "github.com/goliatone/go-errors"
)

const (
	textCodeRoleLookupFailed   = "ROLE_LOOKUP_FAILED"
	textCodeAliasConflict      = "ALIAS_CONFLICT"
	textCodeEmailConflict      = "EMAIL_CONFLICT"
	textCodeInvalidEmail       = "INVALID_EMAIL"
	textCodeInvalidCredentials = "INVALID_CREDENTIALS"
	textCodeUnknownEmail       = "UNKNOWN_EMAIL"
	textCodeInvalidCycleSpan   = "INVALID_CYCLE_SPAN"
	textCodeDocumentNotFound   = "DOCUMENT_NOT_FOUND"
	textCodeProfileWriteFailed = "PROFILE_WRITE_FAILED"
	textCodeManagerStarted     = "SESSION_MANAGER_STARTED"
)

// ErrRoleLookupFailed is returned when an identity's role document is absent
// or carries an unrecognized role value. It is fatal for the session; the
// manager never falls back to a default role.
var ErrRoleLookupFailed = goerrors.New("unable to resolve identity role", goerrors.CategoryAuth).
	WithTextCode(textCodeRoleLookupFailed).
	WithCode(goerrors.CodeForbidden)

// ErrAliasConflict is returned when a requested alias case-insensitively
// matches an existing employee profile. No writes are performed.
var ErrAliasConflict = goerrors.New("alias already in use", goerrors.CategoryConflict).
	WithTextCode(textCodeAliasConflict).
	WithCode(goerrors.CodeConflict)

// ErrEmailConflict is returned when an identity already exists for the email.
var ErrEmailConflict = goerrors.New("email already registered", goerrors.CategoryConflict).
	WithTextCode(textCodeEmailConflict).
	WithCode(goerrors.CodeConflict)

// ErrInvalidEmail is returned for a syntactically invalid email address.
var ErrInvalidEmail = goerrors.New("email address is not valid", goerrors.CategoryBadInput).
	WithTextCode(textCodeInvalidEmail).
	WithCode(goerrors.CodeBadRequest)

// ErrInvalidCredentials is returned on sign-in with a wrong secret or an
// email no identity exists for.
var ErrInvalidCredentials = goerrors.New("invalid email or secret", goerrors.CategoryAuth).
	WithTextCode(textCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrUnknownEmail is returned when a password reset is requested for an email
// no identity exists for.
var ErrUnknownEmail = goerrors.New("no identity registered for email", goerrors.CategoryNotFound).
	WithTextCode(textCodeUnknownEmail).
	WithCode(goerrors.CodeNotFound)

// ErrInvalidCycleSpan is returned when the requested cycle period does not
// cover exactly seven days counted inclusively, end after start.
var ErrInvalidCycleSpan = goerrors.New("cycle period must span exactly seven days", goerrors.CategoryValidation).
	WithTextCode(textCodeInvalidCycleSpan).
	WithCode(goerrors.CodeBadRequest)

// ErrDocumentNotFound is returned by DocumentStore implementations when a
// document is absent.
var ErrDocumentNotFound = goerrors.New("document not found", goerrors.CategoryNotFound).
	WithTextCode(textCodeDocumentNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrProfileWriteFailed is returned when identity creation succeeded but a
// subsequent profile write failed, leaving an orphaned identity. The
// identity id is carried in the error metadata for manual reconciliation.
var ErrProfileWriteFailed = goerrors.New("profile write failed after identity creation", goerrors.CategoryInternal).
	WithTextCode(textCodeProfileWriteFailed)

// ErrManagerStarted is returned when Start is called on a running manager.
var ErrManagerStarted = goerrors.New("session manager already started", goerrors.CategoryOperation).
	WithTextCode(textCodeManagerStarted).
	WithCode(goerrors.CodeConflict)
