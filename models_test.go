package session_test

import (
	"testing"

	session "github.com/rotaplan/go-session"
	"github.com/stretchr/testify/assert"
)

func TestRoleIsValid(t *testing.T) {
	assert.True(t, session.RoleAdmin.IsValid())
	assert.True(t, session.RoleUser.IsValid())
	assert.False(t, session.RoleUnknown.IsValid())
	assert.False(t, session.Role("manager").IsValid())
	assert.False(t, session.Role("").IsValid())
}

func TestAuthStateIsAuthorized(t *testing.T) {
	assert.True(t, session.AuthState{Status: session.StatusAuthorized, Role: session.RoleUser}.IsAuthorized())
	assert.False(t, session.AuthState{Status: session.StatusAuthorized, Role: session.RoleUnknown}.IsAuthorized())
	assert.False(t, session.AuthState{Status: session.StatusResolving, Role: session.RoleUser}.IsAuthorized())
}

func TestCycleStateDocumentRoundtrip(t *testing.T) {
	state := session.CycleState{
		Lifecycle: session.CycleActive,
		Date1:     "2024-01-01",
		Date2:     "2024-01-07",
	}
	assert.Equal(t, state, session.CycleStateFromDocument(state.Document()))
}

func TestCycleStateFromEmptyDocument(t *testing.T) {
	state := session.CycleStateFromDocument(session.Document{})
	assert.Equal(t, session.CycleNonActive, state.Lifecycle)
	assert.Empty(t, state.Date1)
	assert.Empty(t, state.Date2)
}

func TestDocumentStringSlice(t *testing.T) {
	doc := session.Document{
		"typed":   []string{"a", "b"},
		"decoded": []any{"a", "b", 3},
		"scalar":  "a",
	}
	assert.Equal(t, []string{"a", "b"}, doc.StringSlice("typed"))
	assert.Equal(t, []string{"a", "b"}, doc.StringSlice("decoded"))
	assert.Nil(t, doc.StringSlice("scalar"))
	assert.Nil(t, doc.StringSlice("missing"))
}
