package session

// Document collections and the singleton cycle record id.
const (
	CollectionUsers     = "users"
	CollectionEmployees = "employees"
	CollectionAppState  = "statesApp"

	CycleDocumentID = "cycleState"
)

// Role is the authorization level attached to an identity
type Role string

const (
	// RoleAdmin may manage the cycle and register employees
	RoleAdmin Role = "admin"
	// RoleUser may read the cycle and submit dispositions
	RoleUser Role = "user"
	// RoleUnknown is the zero role before resolution completes
	RoleUnknown Role = "unknown"
)

// IsValid checks if the role is one of the two recognized roles
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleUser:
		return true
	default:
		return false
	}
}

// AuthStatus is the session status
type AuthStatus string

const (
	StatusUnauthenticated AuthStatus = "unauthenticated"
	StatusResolving       AuthStatus = "resolving"
	StatusAuthorized      AuthStatus = "authorized"
	StatusFailed          AuthStatus = "error"
)

// AuthState is the snapshot the Manager exposes to routing and UI
// collaborators. Status StatusAuthorized implies Role is admin or user.
type AuthState struct {
	Identity   Identity
	Role       Role
	Status     AuthStatus
	InProgress bool
}

// IsAuthorized reports whether the session finished resolution with a
// recognized role.
func (s AuthState) IsAuthorized() bool {
	return s.Status == StatusAuthorized && s.Role.IsValid()
}

// CycleLifecycle is the shared cycle record's lifecycle phase
type CycleLifecycle string

const (
	CycleNonActive CycleLifecycle = "nonActive"
	CycleActive    CycleLifecycle = "active"
	CycleBlocked   CycleLifecycle = "blocked"
)

// CycleDateLayout is the calendar-day format cycle dates are recorded in.
const CycleDateLayout = "2006-01-02"

// cycleSpanDays is the inclusive day count a cycle must cover.
const cycleSpanDays = 7

// CycleState is the shared scheduling period record. When Lifecycle is
// CycleActive, Date2 is exactly six calendar days after Date1 (a seven day
// span counted inclusively).
type CycleState struct {
	Lifecycle CycleLifecycle `json:"state"`
	Date1     string         `json:"date1"`
	Date2     string         `json:"date2"`
}

// Document returns the full-record payload written to the shared document.
func (c CycleState) Document() Document {
	return Document{
		"state": string(c.Lifecycle),
		"date1": c.Date1,
		"date2": c.Date2,
	}
}

// CycleStateFromDocument decodes the shared document payload. A missing or
// empty lifecycle decodes as CycleNonActive.
func CycleStateFromDocument(doc Document) CycleState {
	lifecycle := CycleLifecycle(doc.String("state"))
	if lifecycle == "" {
		lifecycle = CycleNonActive
	}
	return CycleState{
		Lifecycle: lifecycle,
		Date1:     doc.String("date1"),
		Date2:     doc.String("date2"),
	}
}

// EmployeeProfile is the registration record keyed by the new identity's id.
// Alias is unique across all profiles and stored lowercased.
type EmployeeProfile struct {
	ID              string   `json:"id"`
	Alias           string   `json:"alias"`
	RoleAssignments []string `json:"role_assignments"`
}
