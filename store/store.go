package store

import (
	"context"
	"database/sql"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	session "github.com/rotaplan/go-session"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// DocumentRecord is the Bun model backing every collection. Documents are
// rows keyed by a uuid derived from collection and document id, so Set is a
// plain primary-key upsert.
type DocumentRecord struct {
	bun.BaseModel `bun:"table:documents,alias:doc"`

	ID         uuid.UUID      `bun:"id,pk,type:uuid"`
	Collection string         `bun:"collection,notnull"`
	DocID      string         `bun:"doc_id,notnull"`
	Data       map[string]any `bun:"data,type:jsonb"`
	UpdatedAt  time.Time      `bun:"updated_at,notnull"`
}

// Store implements session.DocumentStore on a Bun database, with push
// subscriptions fanned out after each successful local write.
//
// The write mutex serializes write plus fan-out, and subscription
// registration plus replay, so every watcher observes writes in one total
// order. Watch callbacks run on the write path and must not write back
// through the store.
type Store struct {
	db     *bun.DB
	logger session.Logger

	writeMu sync.Mutex

	mu         sync.Mutex
	watchers   map[string]map[int]func(session.Document)
	watcherSeq int
}

type Option func(*Store)

func WithLogger(logger session.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

var _ session.DocumentStore = (*Store)(nil)

// New wraps an already-open Bun database.
func New(db *bun.DB, opts ...Option) *Store {
	s := &Store{
		db:       db,
		logger:   noopLogger{},
		watchers: map[string]map[int]func(session.Document){},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// OpenDB opens a sqlite database through the shim driver.
func OpenDB(dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open sqlite database")
	}
	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}

// Init creates the documents table and its collection index.
func (s *Store) Init(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().
		Model((*DocumentRecord)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create documents table")
	}

	if _, err := s.db.NewCreateIndex().
		Model((*DocumentRecord)(nil)).
		Index("documents_collection_idx").
		Column("collection").
		IfNotExists().
		Exec(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create collection index")
	}

	return nil
}

func documentKey(collection, id string) (uuid.UUID, error) {
	return hashid.NewUUID(collection + "/" + id)
}

func (s *Store) GetDocument(ctx context.Context, collection, id string) (session.Document, error) {
	key, err := documentKey(collection, id)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to derive document key")
	}

	var rec DocumentRecord
	err = s.db.NewSelect().
		Model(&rec).
		Where("doc.id = ?", key).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) || err == sql.ErrNoRows {
			return nil, session.ErrDocumentNotFound.WithMetadata(map[string]any{
				"collection": collection,
				"id":         id,
			})
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "document fetch failed")
	}

	return session.Document(rec.Data), nil
}

// SetDocument overwrites the full record and notifies watchers of the
// document in write order.
func (s *Store) SetDocument(ctx context.Context, collection, id string, data session.Document) error {
	key, err := documentKey(collection, id)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to derive document key")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	rec := &DocumentRecord{
		ID:         key,
		Collection: collection,
		DocID:      id,
		Data:       data,
		UpdatedAt:  time.Now(),
	}

	_, err = s.db.NewInsert().
		Model(rec).
		On("CONFLICT (id) DO UPDATE").
		Set("data = EXCLUDED.data").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "document write failed")
	}

	s.logger.Debug("document write %s/%s", collection, id)
	s.notify(collection, id, cloneDocument(data))
	return nil
}

func (s *Store) QueryDocuments(ctx context.Context, collection, field string, value any) ([]session.Document, error) {
	var recs []DocumentRecord
	err := s.db.NewSelect().
		Model(&recs).
		Where("collection = ?", collection).
		Scan(ctx)
	if err != nil && !repository.IsRecordNotFound(err) && err != sql.ErrNoRows {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "document query failed")
	}

	out := make([]session.Document, 0, len(recs))
	for _, rec := range recs {
		if v, ok := rec.Data[field]; ok && v == value {
			out = append(out, session.Document(rec.Data))
		}
	}
	return out, nil
}

// OnDocumentChanged registers a push callback for one document. When the
// document already exists the callback fires with its current contents
// before OnDocumentChanged returns, then after every subsequent write. The
// returned unsubscribe is synchronous and idempotent.
func (s *Store) OnDocumentChanged(collection, id string, fn func(session.Document)) session.Unsubscribe {
	key := watchKey(collection, id)

	s.writeMu.Lock()

	s.mu.Lock()
	s.watcherSeq++
	watcherID := s.watcherSeq
	if s.watchers[key] == nil {
		s.watchers[key] = map[int]func(session.Document){}
	}
	s.watchers[key][watcherID] = fn
	s.mu.Unlock()

	if doc, err := s.GetDocument(context.Background(), collection, id); err == nil {
		fn(doc)
	}

	s.writeMu.Unlock()

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

// WatcherCount reports the number of active subscriptions for a document.
func (s *Store) WatcherCount(collection, id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watchers[watchKey(collection, id)])
}

func (s *Store) notify(collection, id string, doc session.Document) {
	s.mu.Lock()
	set := s.watchers[watchKey(collection, id)]
	watchers := make([]func(session.Document), 0, len(set))
	for _, fn := range set {
		watchers = append(watchers, fn)
	}
	s.mu.Unlock()

	for _, fn := range watchers {
		fn(doc)
	}
}

func watchKey(collection, id string) string {
	return collection + "/" + id
}

func cloneDocument(doc session.Document) session.Document {
	out := make(session.Document, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
