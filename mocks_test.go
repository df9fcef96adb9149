package session_test

import (
	"context"
	"sync"

	session "github.com/rotaplan/go-session"
)

type fakeIdentity struct {
	id    string
	email string
}

func (f fakeIdentity) ID() string    { return f.id }
func (f fakeIdentity) Email() string { return f.email }

// fakeProvider implements session.IdentityProvider with a controllable
// identity change stream.
type fakeProvider struct {
	mu         sync.Mutex
	watchers   map[int]func(session.Identity)
	watcherSeq int

	signIns   []string
	signOuts  int
	resets    []string
	created   []string
	signInErr error
	resetErr  error
	createErr error
	createdID session.Identity

	// emitNoneOnSignOut mirrors a real provider: a forced sign-out surfaces
	// as a "none" event on the identity stream.
	emitNoneOnSignOut bool
}

var _ session.IdentityProvider = (*fakeProvider)(nil)

func newFakeProvider() *fakeProvider {
	return &fakeProvider{watchers: map[int]func(session.Identity){}}
}

func (p *fakeProvider) SignIn(ctx context.Context, email, secret string) error {
	p.mu.Lock()
	p.signIns = append(p.signIns, email)
	err := p.signInErr
	p.mu.Unlock()
	return err
}

func (p *fakeProvider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	p.signOuts++
	emit := p.emitNoneOnSignOut
	p.mu.Unlock()
	if emit {
		p.Emit(nil)
	}
	return nil
}

func (p *fakeProvider) CreateIdentity(ctx context.Context, email, secret string) (session.Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.createErr != nil {
		return nil, p.createErr
	}
	p.created = append(p.created, email)
	if p.createdID != nil {
		return p.createdID, nil
	}
	return fakeIdentity{id: "identity-" + email, email: email}, nil
}

func (p *fakeProvider) OnIdentityChanged(fn func(session.Identity)) session.Unsubscribe {
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

func (p *fakeProvider) SendPasswordReset(ctx context.Context, email string) error {
	p.mu.Lock()
	p.resets = append(p.resets, email)
	err := p.resetErr
	p.mu.Unlock()
	return err
}

// Emit publishes an identity change to every registered watcher.
func (p *fakeProvider) Emit(identity session.Identity) {
	p.mu.Lock()
	watchers := make([]func(session.Identity), 0, len(p.watchers))
	for _, fn := range p.watchers {
		watchers = append(watchers, fn)
	}
	p.mu.Unlock()
	for _, fn := range watchers {
		fn(identity)
	}
}

func (p *fakeProvider) WatcherCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.watchers)
}

func (p *fakeProvider) SignOuts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.signOuts
}

// fakeStore implements session.DocumentStore in memory, with per-document
// failure injection and read gates for resolution-ordering tests.
type fakeStore struct {
	mu         sync.Mutex
	docs       map[string]session.Document
	writes     []string
	setErr     map[string]error
	getGate    map[string]chan struct{}
	watchers   map[string]map[int]func(session.Document)
	watcherSeq int
}

var _ session.DocumentStore = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		docs:     map[string]session.Document{},
		setErr:   map[string]error{},
		getGate:  map[string]chan struct{}{},
		watchers: map[string]map[int]func(session.Document){},
	}
}

func storeKey(collection, id string) string { return collection + "/" + id }

func (s *fakeStore) seed(collection, id string, doc session.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[storeKey(collection, id)] = cloneDoc(doc)
}

// blockReads makes GetDocument for the given document wait until the
// returned channel is closed.
func (s *fakeStore) blockReads(collection, id string) chan struct{} {
	gate := make(chan struct{})
	s.mu.Lock()
	s.getGate[storeKey(collection, id)] = gate
	s.mu.Unlock()
	return gate
}

func (s *fakeStore) failWrites(collection, id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setErr[storeKey(collection, id)] = err
}

func (s *fakeStore) GetDocument(ctx context.Context, collection, id string) (session.Document, error) {
	key := storeKey(collection, id)
	s.mu.Lock()
	gate := s.getGate[key]
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[key]
	if !ok {
		return nil, session.ErrDocumentNotFound.WithMetadata(map[string]any{
			"collection": collection,
			"id":         id,
		})
	}
	return cloneDoc(doc), nil
}

func (s *fakeStore) SetDocument(ctx context.Context, collection, id string, data session.Document) error {
	key := storeKey(collection, id)
	s.mu.Lock()
	if err := s.setErr[key]; err != nil {
		s.mu.Unlock()
		return err
	}
	s.docs[key] = cloneDoc(data)
	s.writes = append(s.writes, key)
	set := s.watchers[key]
	watchers := make([]func(session.Document), 0, len(set))
	for _, fn := range set {
		watchers = append(watchers, fn)
	}
	s.mu.Unlock()

	for _, fn := range watchers {
		fn(cloneDoc(data))
	}
	return nil
}

func (s *fakeStore) QueryDocuments(ctx context.Context, collection, field string, value any) ([]session.Document, error) {
	prefix := collection + "/"
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []session.Document
	for key, doc := range s.docs {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			if v, ok := doc[field]; ok && v == value {
				out = append(out, cloneDoc(doc))
			}
		}
	}
	return out, nil
}

func (s *fakeStore) OnDocumentChanged(collection, id string, fn func(session.Document)) session.Unsubscribe {
	key := storeKey(collection, id)
	s.mu.Lock()
	s.watcherSeq++
	watcherID := s.watcherSeq
	if s.watchers[key] == nil {
		s.watchers[key] = map[int]func(session.Document){}
	}
	s.watchers[key][watcherID] = fn
	doc, ok := s.docs[key]
	if ok {
		doc = cloneDoc(doc)
	}
	s.mu.Unlock()

	if ok {
		fn(doc)
	}

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if set, ok := s.watchers[key]; ok {
			delete(set, watcherID)
			if len(set) == 0 {
				delete(s.watchers, key)
			}
		}
	}
}

func (s *fakeStore) WatcherCount(collection, id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watchers[storeKey(collection, id)])
}

func (s *fakeStore) WriteCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.writes)
}

func cloneDoc(doc session.Document) session.Document {
	out := make(session.Document, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}
