package session

import (
	"context"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
)

// CycleSync keeps a local cached copy of the shared cycle record current
// through a push subscription, and exposes the named transitions that mutate
// it. The cache only ever updates from the subscription; a transition write
// that fails leaves the cache untouched.
//
// Transitions are full-record overwrites with no optimistic locking:
// concurrent writers race with last-write-wins semantics. That is an accepted
// limitation of the shared record, not something this type papers over.
type CycleSync struct {
	store  DocumentStore
	logger Logger

	mu          sync.Mutex
	active      bool
	unsub       Unsubscribe
	state       CycleState
	observers   map[int]func(CycleState)
	observerSeq int
}

type CycleSyncOption func(*CycleSync)

func WithCycleSyncLogger(logger Logger) CycleSyncOption {
	return func(c *CycleSync) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCycleSync returns an inactive synchronizer for the singleton cycle
// record in the given store.
func NewCycleSync(store DocumentStore, opts ...CycleSyncOption) *CycleSync {
	c := &CycleSync{
		store:     store,
		logger:    defLogger{},
		state:     CycleState{Lifecycle: CycleNonActive},
		observers: map[int]func(CycleState){},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Activate subscribes to the shared record. Idempotent: at most one
// subscription is ever held.
func (c *CycleSync) Activate() {
	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return
	}
	c.active = true
	c.mu.Unlock()

	unsub := c.store.OnDocumentChanged(CollectionAppState, CycleDocumentID, c.applyRemote)

	c.mu.Lock()
	if !c.active {
		// Deactivated while the subscription was being registered.
		c.mu.Unlock()
		unsub()
		return
	}
	c.unsub = unsub
	c.mu.Unlock()
}

// Deactivate releases the subscription. Synchronous and idempotent; safe to
// call on an already inactive synchronizer.
func (c *CycleSync) Deactivate() {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	c.active = false
	unsub := c.unsub
	c.unsub = nil
	c.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

// Active reports whether the push subscription is currently held.
func (c *CycleSync) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// State returns the cached cycle snapshot.
func (c *CycleSync) State() CycleState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnChange registers an observer for cache updates. The returned Unsubscribe
// is idempotent. Observers are invoked on the delivery path and should hand
// off to their own scheduling rather than call back into the session manager.
func (c *CycleSync) OnChange(fn func(CycleState)) Unsubscribe {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observerSeq++
	id := c.observerSeq
	c.observers[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.observers, id)
	}
}

func (c *CycleSync) applyRemote(doc Document) {
	c.mu.Lock()
	if !c.active {
		// A push delivered after deactivation is dropped.
		c.mu.Unlock()
		return
	}
	state := CycleStateFromDocument(doc)
	c.state = state
	observers := c.snapshotObserversLocked()
	c.mu.Unlock()

	c.logger.Debug("cycle state update: %s %s..%s", state.Lifecycle, state.Date1, state.Date2)
	for _, fn := range observers {
		fn(state)
	}
}

func (c *CycleSync) snapshotObserversLocked() []func(CycleState) {
	observers := make([]func(CycleState), 0, len(c.observers))
	for _, fn := range c.observers {
		observers = append(observers, fn)
	}
	return observers
}

// StartCycle writes lifecycle=active with the given dates. date1 and date2
// are calendar days in CycleDateLayout; date2 must fall exactly six days
// after date1 so the period covers seven days counted inclusively.
func (c *CycleSync) StartCycle(ctx context.Context, date1, date2 string) error {
	if err := validateCycleDates(date1, date2); err != nil {
		return err
	}
	next := CycleState{Lifecycle: CycleActive, Date1: date1, Date2: date2}
	return c.overwrite(ctx, next)
}

// BlockCycle writes lifecycle=blocked, preserving the cached dates.
func (c *CycleSync) BlockCycle(ctx context.Context) error {
	return c.transitionLifecycle(ctx, CycleBlocked)
}

// EndCycle writes lifecycle=nonActive, preserving the cached dates.
func (c *CycleSync) EndCycle(ctx context.Context) error {
	return c.transitionLifecycle(ctx, CycleNonActive)
}

func (c *CycleSync) transitionLifecycle(ctx context.Context, lifecycle CycleLifecycle) error {
	c.mu.Lock()
	next := c.state
	c.mu.Unlock()

	next.Lifecycle = lifecycle
	return c.overwrite(ctx, next)
}

func (c *CycleSync) overwrite(ctx context.Context, next CycleState) error {
	if err := c.store.SetDocument(ctx, CollectionAppState, CycleDocumentID, next.Document()); err != nil {
		c.logger.Error("cycle state write failed: %v", err)
		return goerrors.Wrap(err, goerrors.CategoryOperation, "cycle state write failed")
	}
	return nil
}

func validateCycleDates(date1, date2 string) error {
	err := validation.Errors{
		"date1": validation.Validate(date1, validation.Required, validation.Date(CycleDateLayout)),
		"date2": validation.Validate(date2, validation.Required, validation.Date(CycleDateLayout)),
	}.Filter()
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid cycle dates")
	}

	d1, _ := time.Parse(CycleDateLayout, date1)
	d2, _ := time.Parse(CycleDateLayout, date2)
	if !d2.After(d1) || d2.Sub(d1) != (cycleSpanDays-1)*24*time.Hour {
		return ErrInvalidCycleSpan.WithMetadata(map[string]any{
			"date1": date1,
			"date2": date2,
		})
	}
	return nil
}
