package auth

import "fmt"

// Role is the closed set of user roles known to the system.
type Role int

const (
	RoleStudent Role = iota
	RoleLecturer
	RoleAdmin
)

// User is the authenticated request context.
type User struct {
	ID   string
	Role Role
}

// Operation names a capability-checked action.
type Operation int

const (
	OpManageSchedules Operation = iota
	OpActivateSemester
	OpManageSessions
	OpAmendAttendance
	OpViewAttendance
	OpVerifyAttendance
	OpRegisterFace
)

// capabilities is the single place role dispatch happens; handlers ask
// Can instead of comparing role strings.
var capabilities = map[Role]map[Operation]bool{
	RoleAdmin: {
		OpManageSchedules:  true,
		OpActivateSemester: true,
		OpManageSessions:   true,
		OpAmendAttendance:  true,
		OpViewAttendance:   true,
	},
	RoleLecturer: {
		OpManageSchedules: true,
		OpManageSessions:  true,
		OpAmendAttendance: true,
		OpViewAttendance:  true,
	},
	RoleStudent: {
		OpVerifyAttendance: true,
		OpRegisterFace:     true,
	},
}

// Can reports whether the user may perform op.
func (u User) Can(op Operation) bool {
	return capabilities[u.Role][op]
}

// ParseRole maps a claim string onto the closed role set.
func ParseRole(s string) (Role, error) {
	switch s {
	case "student":
		return RoleStudent, nil
	case "lecturer":
		return RoleLecturer, nil
	case "admin":
		return RoleAdmin, nil
	}
	return 0, fmt.Errorf("unknown role %q", s)
}

func (r Role) String() string {
	switch r {
	case RoleStudent:
		return "student"
	case RoleLecturer:
		return "lecturer"
	case RoleAdmin:
		return "admin"
	}
	return "unknown"
}
