package session

import (
	"context"
	"fmt"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Error(format string, args ...any)
}

// Unsubscribe releases a subscription. Implementations are synchronous and
// idempotent: calling one twice is a no-op.
type Unsubscribe func()

// Identity holds the attributes of a provider-issued principal
type Identity interface {
	ID() string
	Email() string
}

// IdentityProvider is the authentication backend the session layer consumes.
// OnIdentityChanged delivers the signed-in Identity, or nil after a sign-out,
// session expiry, or provider channel failure. Events arrive one at a time in
// occurrence order, starting with the first change after registration.
type IdentityProvider interface {
	SignIn(ctx context.Context, email, secret string) error
	SignOut(ctx context.Context) error
	CreateIdentity(ctx context.Context, email, secret string) (Identity, error)
	OnIdentityChanged(fn func(Identity)) Unsubscribe
	SendPasswordReset(ctx context.Context, email string) error
}

// Document is the raw payload of a document-store record.
type Document map[string]any

// String returns the value under key when it is a string, otherwise "".
func (d Document) String(key string) string {
	v, _ := d[key].(string)
	return v
}

// StringSlice returns the value under key as a string slice, tolerating the
// []any shape produced by JSON decoding.
func (d Document) StringSlice(key string) []string {
	switch v := d[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// DocumentStore is the persistence backend the session layer consumes.
// SetDocument is a full-record overwrite. OnDocumentChanged fires with the
// current contents on registration when the document exists, then after every
// successful write, in write order.
type DocumentStore interface {
	GetDocument(ctx context.Context, collection, id string) (Document, error)
	SetDocument(ctx context.Context, collection, id string, data Document) error
	QueryDocuments(ctx context.Context, collection, field string, value any) ([]Document, error)
	OnDocumentChanged(collection, id string, fn func(Document)) Unsubscribe
}

// DefaultLogger returns the stdout logger components fall back to when no
// logger is configured.
func DefaultLogger() Logger {
	return defLogger{}
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] SESSION "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] SESSION "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] SESSION "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
