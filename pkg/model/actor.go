package model

type Role string

const (
	RolePatient    Role = "patient"
	RoleDoctor     Role = "doctor"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// Actor is the authenticated caller descriptor handed over by the identity
// layer. The booking core trusts it as given; token verification happens
// upstream.
type Actor struct {
	Role      Role   `json:"role"`
	SubjectID string `json:"subject_id"`
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin || a.Role == RoleSuperAdmin
}

func (a Actor) Valid() bool {
	switch a.Role {
	case RolePatient, RoleDoctor:
		return a.SubjectID != ""
	case RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}
