package session_test

import (
	"testing"

	session "github.com/rotaplan/go-session"
	"github.com/stretchr/testify/assert"
)

func TestRouteMapping(t *testing.T) {
	ada := fakeIdentity{id: "id-ada", email: "ada@example.com"}

	tests := []struct {
		name  string
		state session.AuthState
		want  session.Path
	}{
		{
			name:  "authorized admin goes to admin home",
			state: session.AuthState{Identity: ada, Role: session.RoleAdmin, Status: session.StatusAuthorized},
			want:  session.PathAdminHome,
		},
		{
			name:  "authorized user goes to user home",
			state: session.AuthState{Identity: ada, Role: session.RoleUser, Status: session.StatusAuthorized},
			want:  session.PathUserHome,
		},
		{
			name:  "unauthenticated goes to login",
			state: session.AuthState{Status: session.StatusUnauthenticated, Role: session.RoleUnknown},
			want:  session.PathLogin,
		},
		{
			name:  "resolving keeps current route",
			state: session.AuthState{Identity: ada, Status: session.StatusResolving, Role: session.RoleUnknown},
			want:  session.PathUnresolved,
		},
		{
			name:  "failed keeps current route",
			state: session.AuthState{Identity: ada, Status: session.StatusFailed, Role: session.RoleUnknown},
			want:  session.PathUnresolved,
		},
		{
			name:  "authorized with unknown role keeps current route",
			state: session.AuthState{Identity: ada, Status: session.StatusAuthorized, Role: session.RoleUnknown},
			want:  session.PathUnresolved,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, session.Route(tt.state))
		})
	}
}

func TestRouteIsPure(t *testing.T) {
	state := session.AuthState{
		Identity: fakeIdentity{id: "id-ada", email: "ada@example.com"},
		Role:     session.RoleAdmin,
		Status:   session.StatusAuthorized,
	}

	first := session.Route(state)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, session.Route(state))
	}
	// The busy flag does not influence routing.
	state.InProgress = true
	assert.Equal(t, first, session.Route(state))
}
