// Package local implements the identity provider contract on top of the
// document store itself: credentials live in a credentials collection keyed
// by a hash of the email, secrets are bcrypt-hashed, and the signed-in
// session is represented by a short-lived HS256 token whose expiry drives
// the session-expiry sign-out event.
package local

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	session "github.com/rotaplan/go-session"
	"golang.org/x/crypto/bcrypt"
)

// Collections owned by the provider.
const (
	CollectionCredentials    = "credentials"
	CollectionPasswordResets = "password_resets"
)

type identity struct {
	id    string
	email string
}

func (i identity) ID() string    { return i.id }
func (i identity) Email() string { return i.email }

// Provider implements session.IdentityProvider. One Provider instance holds
// at most one signed-in session; registration workflows use a second
// instance so creating an identity never displaces the administrator's own
// session.
type Provider struct {
	store      session.DocumentStore
	logger     session.Logger
	signingKey []byte
	issuer     string
	tokenTTL   time.Duration
	hashCost   int
	now        func() time.Time

	mu         sync.Mutex
	current    *identity
	token      string
	watchers   map[int]func(session.Identity)
	watcherSeq int
}

var _ session.IdentityProvider = (*Provider)(nil)

type Option func(*Provider)

func WithLogger(logger session.Logger) Option {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithSigningKey(key []byte) Option {
	return func(p *Provider) {
		if len(key) > 0 {
			p.signingKey = key
		}
	}
}

func WithTokenTTL(ttl time.Duration) Option {
	return func(p *Provider) {
		if ttl > 0 {
			p.tokenTTL = ttl
		}
	}
}

// WithSecretHashCost overrides the bcrypt cost, mainly for tests.
func WithSecretHashCost(cost int) Option {
	return func(p *Provider) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			p.hashCost = cost
		}
	}
}

// WithClock injects a custom clock (useful for expiry tests).
func WithClock(clock func() time.Time) Option {
	return func(p *Provider) {
		if clock != nil {
			p.now = clock
		}
	}
}

func New(store session.DocumentStore, opts ...Option) *Provider {
	p := &Provider{
		store:      store,
		logger:     session.DefaultLogger(),
		signingKey: []byte(uuid.NewString()),
		issuer:     "go-session/local",
		tokenTTL:   time.Hour,
		hashCost:   bcrypt.DefaultCost,
		now:        time.Now,
		watchers:   map[int]func(session.Identity){},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

func credentialDocID(email string) (string, error) {
	id, err := hashid.NewUUID("credential/" + email)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to derive credential id")
	}
	return id.String(), nil
}

// SignIn verifies the secret against the stored credential and publishes the
// identity on the change stream. Unknown emails and wrong secrets are both
// reported as ErrInvalidCredentials.
func (p *Provider) SignIn(ctx context.Context, email, secret string) error {
	email = normalizeEmail(email)

	credID, err := credentialDocID(email)
	if err != nil {
		return err
	}

	doc, err := p.store.GetDocument(ctx, CollectionCredentials, credID)
	if err != nil {
		if errors.Is(err, session.ErrDocumentNotFound) {
			return session.ErrInvalidCredentials.WithMetadata(map[string]any{"email": email})
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "credential lookup failed")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(doc.String("secret_hash")), []byte(secret)); err != nil {
		return session.ErrInvalidCredentials.WithMetadata(map[string]any{"email": email})
	}

	ident := &identity{id: doc.String("identity_id"), email: email}
	token, err := p.mintToken(ident.id)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.current = ident
	p.token = token
	watchers := p.snapshotWatchersLocked()
	p.mu.Unlock()

	p.logger.Info("signed in identity %s", ident.id)
	notifyIdentity(watchers, ident)
	return nil
}

// SignOut clears the current session and publishes "none". Signing out an
// already signed-out provider is a no-op.
func (p *Provider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	if p.current == nil {
		p.mu.Unlock()
		return nil
	}
	id := p.current.id
	p.current = nil
	p.token = ""
	watchers := p.snapshotWatchersLocked()
	p.mu.Unlock()

	p.logger.Info("signed out identity %s", id)
	notifyIdentity(watchers, nil)
	return nil
}

// CreateIdentity registers a credential for the email and signs the new
// principal in on this provider instance. Callers owning an administrator
// session must use a dedicated instance and sign the new session back out.
func (p *Provider) CreateIdentity(ctx context.Context, email, secret string) (session.Identity, error) {
	email = normalizeEmail(email)
	if err := validation.Validate(email, validation.Required, is.Email); err != nil {
		return nil, session.ErrInvalidEmail.WithMetadata(map[string]any{"email": email})
	}

	credID, err := credentialDocID(email)
	if err != nil {
		return nil, err
	}

	if _, err := p.store.GetDocument(ctx, CollectionCredentials, credID); err == nil {
		return nil, session.ErrEmailConflict.WithMetadata(map[string]any{"email": email})
	} else if !errors.Is(err, session.ErrDocumentNotFound) {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "credential lookup failed")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), p.hashCost)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash secret")
	}

	idUUID, err := hashid.NewUUID(email)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to derive identity id")
	}

	ident := &identity{id: idUUID.String(), email: email}
	doc := session.Document{
		"identity_id": ident.id,
		"email":       email,
		"secret_hash": string(hash),
	}
	if err := p.store.SetDocument(ctx, CollectionCredentials, credID, doc); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "credential write failed")
	}

	token, err := p.mintToken(ident.id)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.current = ident
	p.token = token
	watchers := p.snapshotWatchersLocked()
	p.mu.Unlock()

	p.logger.Info("created identity %s", ident.id)
	notifyIdentity(watchers, ident)
	return ident, nil
}

// OnIdentityChanged registers a watcher for sign-in/sign-out transitions,
// starting with the next change. The returned unsubscribe is synchronous and
// idempotent.
func (p *Provider) OnIdentityChanged(fn func(session.Identity)) session.Unsubscribe {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.watcherSeq++
	id := p.watcherSeq
	p.watchers[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.watchers, id)
	}
}

// SendPasswordReset records a reset token for the email. Delivery is left to
// an outer mail collaborator reading the password_resets collection.
func (p *Provider) SendPasswordReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)

	credID, err := credentialDocID(email)
	if err != nil {
		return err
	}

	cred, err := p.store.GetDocument(ctx, CollectionCredentials, credID)
	if err != nil {
		if errors.Is(err, session.ErrDocumentNotFound) {
			return session.ErrUnknownEmail.WithMetadata(map[string]any{"email": email})
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "credential lookup failed")
	}

	resetID := uuid.NewString()
	doc := session.Document{
		"identity_id":  cred.String("identity_id"),
		"email":        email,
		"token":        uuid.NewString(),
		"status":       "requested",
		"requested_at": p.now().UTC().Format(time.RFC3339),
	}
	if err := p.store.SetDocument(ctx, CollectionPasswordResets, resetID, doc); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "password reset write failed")
	}

	p.logger.Info("password reset requested for %s (reset %s)", email, resetID)
	return nil
}

// CurrentIdentity returns the signed-in identity, lazily expiring the
// session when its token has run out. An expiry publishes "none" on the
// change stream, same as an explicit sign-out.
func (p *Provider) CurrentIdentity() session.Identity {
	p.mu.Lock()
	ident := p.current
	token := p.token
	p.mu.Unlock()

	if ident == nil {
		return nil
	}

	if err := p.validateToken(token); err != nil {
		p.logger.Info("session for identity %s expired: %v", ident.id, err)
		p.expireSession(ident)
		return nil
	}
	return ident
}

// SessionToken returns the current session token, or "" when signed out.
func (p *Provider) SessionToken() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.token
}

func (p *Provider) expireSession(expired *identity) {
	p.mu.Lock()
	if p.current != expired {
		// A newer session replaced the expired one in the meantime.
		p.mu.Unlock()
		return
	}
	p.current = nil
	p.token = ""
	watchers := p.snapshotWatchersLocked()
	p.mu.Unlock()

	notifyIdentity(watchers, nil)
}

func (p *Provider) snapshotWatchersLocked() []func(session.Identity) {
	watchers := make([]func(session.Identity), 0, len(p.watchers))
	for _, fn := range p.watchers {
		watchers = append(watchers, fn)
	}
	return watchers
}

func notifyIdentity(watchers []func(session.Identity), ident session.Identity) {
	for _, fn := range watchers {
		fn(ident)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
