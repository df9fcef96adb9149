package session

import (
	"context"
	"sync"

	goerrors "github.com/goliatone/go-errors"
)

// Manager composes the identity provider's change stream with the role
// resolver into one authoritative AuthState, and holds the cycle
// synchronizer's subscription exactly while the state is authorized.
//
// The state machine is Unauthenticated -> Resolving -> Authorized | Failed.
// A Failed resolution forces a sign-out through the provider, which brings
// the state back to Unauthenticated via the identity stream.
//
// Identity changes and role lookups are independent asynchronous operations
// with no guaranteed completion order. Every identity change bumps a
// generation counter and each in-flight resolution carries the generation it
// was started under; a resolution whose generation no longer matches is
// discarded instead of being applied to the wrong session.
type Manager struct {
	provider    IdentityProvider
	resolver    *RoleResolver
	cycle       *CycleSync
	logger      Logger
	fatalNotice func(error)

	mu            sync.Mutex
	started       bool
	state         AuthState
	generation    uint64
	unsubIdentity Unsubscribe
	ctx           context.Context
	cancel        context.CancelFunc
	observers     map[int]func(AuthState)
	observerSeq   int
}

type ManagerOption func(*Manager)

func WithManagerLogger(logger Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
			m.resolver.WithLogger(logger)
		}
	}
}

// WithFatalNoticeHandler sets the hook surfacing a user-visible blocking
// notice when role resolution fails.
func WithFatalNoticeHandler(fn func(error)) ManagerOption {
	return func(m *Manager) {
		if fn != nil {
			m.fatalNotice = fn
		}
	}
}

// WithCycleSync overrides the cycle synchronizer, mainly for tests.
func WithCycleSync(cycle *CycleSync) ManagerOption {
	return func(m *Manager) {
		if cycle != nil {
			m.cycle = cycle
		}
	}
}

// NewManager returns a stopped manager. Call Start to begin observing the
// identity stream.
func NewManager(provider IdentityProvider, store DocumentStore, opts ...ManagerOption) *Manager {
	m := &Manager{
		provider:  provider,
		resolver:  NewRoleResolver(store),
		cycle:     NewCycleSync(store),
		logger:    defLogger{},
		state:     AuthState{Status: StatusUnauthenticated, Role: RoleUnknown},
		observers: map[int]func(AuthState){},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Start subscribes to the identity provider's change stream. The given
// context bounds every resolution the manager starts; cancelling it has the
// same effect as Stop on in-flight lookups.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return ErrManagerStarted
	}
	m.started = true
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.mu.Unlock()

	unsub := m.provider.OnIdentityChanged(m.handleIdentityChanged)

	m.mu.Lock()
	m.unsubIdentity = unsub
	m.mu.Unlock()
	return nil
}

// Stop releases the identity subscription, deactivates cycle sync, discards
// any in-flight resolution, and resets the state to unauthenticated.
// Idempotent.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	m.generation++
	unsub := m.unsubIdentity
	m.unsubIdentity = nil
	cancel := m.cancel
	m.ctx, m.cancel = nil, nil
	m.cycle.Deactivate()
	state := AuthState{Status: StatusUnauthenticated, Role: RoleUnknown}
	m.state = state
	observers := m.snapshotObserversLocked()
	m.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if cancel != nil {
		cancel()
	}
	notifyAuthState(observers, state)
}

// State returns the current AuthState snapshot.
func (m *Manager) State() AuthState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Cycle returns the cycle synchronizer owned by this manager.
func (m *Manager) Cycle() *CycleSync {
	return m.cycle
}

// OnChange registers an observer for AuthState changes. The returned
// Unsubscribe is idempotent.
func (m *Manager) OnChange(fn func(AuthState)) Unsubscribe {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observerSeq++
	id := m.observerSeq
	m.observers[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.observers, id)
	}
}

// LogIn signs in through the identity provider. The resulting identity event
// arrives through the change stream and drives role resolution.
func (m *Manager) LogIn(ctx context.Context, email, secret string) error {
	m.setInProgress(true)
	defer m.setInProgress(false)

	if err := m.provider.SignIn(ctx, email, secret); err != nil {
		m.logger.Error("sign in failed: %v", err)
		return goerrors.Wrap(err, goerrors.CategoryAuth, "sign in failed")
	}
	return nil
}

// LogOut signs out through the identity provider.
func (m *Manager) LogOut(ctx context.Context) error {
	if err := m.provider.SignOut(ctx); err != nil {
		m.logger.Error("sign out failed: %v", err)
		return goerrors.Wrap(err, goerrors.CategoryAuth, "sign out failed")
	}
	return nil
}

// ResetPassword requests a password reset for the email.
func (m *Manager) ResetPassword(ctx context.Context, email string) error {
	m.setInProgress(true)
	defer m.setInProgress(false)

	if err := m.provider.SendPasswordReset(ctx, email); err != nil {
		m.logger.Error("password reset request failed: %v", err)
		return goerrors.Wrap(err, goerrors.CategoryAuth, "password reset request failed")
	}
	return nil
}

func (m *Manager) handleIdentityChanged(identity Identity) {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.generation++
	generation := m.generation
	// Any identity change leaves Authorized; drop the shared-record
	// subscription before a new one can be taken.
	m.cycle.Deactivate()

	if identity == nil {
		state := m.stateLocked(AuthState{Status: StatusUnauthenticated, Role: RoleUnknown})
		observers := m.snapshotObserversLocked()
		m.mu.Unlock()
		notifyAuthState(observers, state)
		return
	}

	ctx := m.ctx
	state := m.stateLocked(AuthState{Identity: identity, Status: StatusResolving, Role: RoleUnknown})
	observers := m.snapshotObserversLocked()
	m.mu.Unlock()

	notifyAuthState(observers, state)
	go m.resolveRole(ctx, generation, identity)
}

func (m *Manager) resolveRole(ctx context.Context, generation uint64, identity Identity) {
	role, err := m.resolver.Resolve(ctx, identity.ID())

	m.mu.Lock()
	if !m.started || generation != m.generation {
		m.mu.Unlock()
		m.logger.Debug("discarding stale role resolution for identity %s", identity.ID())
		return
	}

	if err != nil {
		state := m.stateLocked(AuthState{Identity: identity, Status: StatusFailed, Role: RoleUnknown})
		observers := m.snapshotObserversLocked()
		m.mu.Unlock()

		notifyAuthState(observers, state)
		m.logger.Error("role resolution failed for identity %s: %v", identity.ID(), err)
		if m.fatalNotice != nil {
			m.fatalNotice(err)
		}
		// Failed is terminal for this sign-in: force a sign-out so the
		// identity stream brings the state back to Unauthenticated.
		if serr := m.provider.SignOut(ctx); serr != nil {
			m.logger.Error("forced sign out failed: %v", serr)
		}
		return
	}

	m.cycle.Activate()
	state := m.stateLocked(AuthState{Identity: identity, Role: role, Status: StatusAuthorized})
	observers := m.snapshotObserversLocked()
	m.mu.Unlock()

	notifyAuthState(observers, state)
}

// stateLocked applies next while preserving the busy flag. Callers hold m.mu.
func (m *Manager) stateLocked(next AuthState) AuthState {
	next.InProgress = m.state.InProgress
	m.state = next
	return next
}

func (m *Manager) setInProgress(busy bool) {
	m.mu.Lock()
	if m.state.InProgress == busy {
		m.mu.Unlock()
		return
	}
	m.state.InProgress = busy
	state := m.state
	observers := m.snapshotObserversLocked()
	m.mu.Unlock()
	notifyAuthState(observers, state)
}

func (m *Manager) snapshotObserversLocked() []func(AuthState) {
	observers := make([]func(AuthState), 0, len(m.observers))
	for _, fn := range m.observers {
		observers = append(observers, fn)
	}
	return observers
}

func notifyAuthState(observers []func(AuthState), state AuthState) {
	for _, fn := range observers {
		fn(state)
	}
}
