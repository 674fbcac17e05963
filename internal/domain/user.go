package domain

type Role string

const (
	RolePayer Role = "PAYER" // buyer or tenant
	RoleAgent Role = "AGENT"
	RoleAdmin Role = "ADMIN"
)

func (r Role) Valid() bool {
	switch r {
	case RolePayer, RoleAgent, RoleAdmin:
		return true
	}
	return false
}

// Actor is the caller of a mutating operation as asserted by the identity
// service. The ledger trusts it and performs no credential checks.
type Actor struct {
	ID   int32 `json:"id"`
	Role Role  `json:"role"`
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// User is read-only reference data, used to address notifications.
type User struct {
	ID        int32  `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Role      Role   `json:"role"`
	CreatedOn string `json:"created_on"`
}
