package session

// Path is a route target for the client shell.
type Path string

const (
	PathLogin     Path = "/login"
	PathAdminHome Path = "/admin/dashboard"
	PathUserHome  Path = "/user/disposition"
	// PathUnresolved means the caller keeps its current route until the
	// session reaches a terminal state.
	PathUnresolved Path = ""
)

// Route maps an auth state to its target route. Pure: no side effects, no
// I/O, same input always yields the same output.
func Route(state AuthState) Path {
	switch state.Status {
	case StatusAuthorized:
		switch state.Role {
		case RoleAdmin:
			return PathAdminHome
		case RoleUser:
			return PathUserHome
		}
		return PathUnresolved
	case StatusUnauthenticated:
		return PathLogin
	default:
		return PathUnresolved
	}
}
