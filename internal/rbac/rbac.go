package rbac

type Role string
type Action string

const (
	RoleOperations Role = "operations"
	RoleSales      Role = "sales"
	RoleCredit     Role = "credit"
	RoleAdmin      Role = "admin"
)

const (
	ActionRead    Action = "read"
	ActionSubmit  Action = "submit"
	ActionRespond Action = "respond"
	ActionResolve Action = "resolve"
	ActionImport  Action = "import"
	ActionAdmin   Action = "admin"
)

// Can reports whether a role may perform an action. Operations raises
// queries and imports sanctioned applications; sales and credit answer
// and resolve them; admin does everything.
func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleOperations:
		return action == ActionRead || action == ActionSubmit || action == ActionRespond || action == ActionImport
	case RoleSales, RoleCredit:
		return action == ActionRead || action == ActionRespond || action == ActionResolve
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleOperations, RoleSales, RoleCredit, RoleAdmin:
		return Role(role)
	default:
		return RoleOperations
	}
}

// Team reports whether the role identifies one of the two resolver teams
// that queries are routed to.
func Team(role Role) bool {
	return role == RoleSales || role == RoleCredit
}
