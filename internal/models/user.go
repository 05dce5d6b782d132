package models

// UserRole represents the employee roles used for RBAC.
type UserRole string

const (
	RoleAdmin            UserRole = "ADMIN"
	RoleSalesHead        UserRole = "SALES_HEAD"
	RoleSalesRep         UserRole = "SALES_REP"
	RoleConfirmationTeam UserRole = "CONFIRMATION_TEAM"
	RoleAccounts         UserRole = "ACCOUNTS"
)

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// Valid reports whether r is a known role.
func (r UserRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleSalesHead, RoleSalesRep, RoleConfirmationTeam, RoleAccounts:
		return true
	default:
		return false
	}
}
