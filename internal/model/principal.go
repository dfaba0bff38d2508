package model

// Role is the authenticated user's role in the treasury application.
type Role string

const (
	RoleAdmin      Role = "ADMIN_FISCAL"
	RoleAgent      Role = "AGENT_FISCAL"
	RoleEntreprise Role = "ENTREPRISE"
)

// Principal is the authenticated user a notification view is built for.
type Principal struct {
	UserID int64 `json:"user_id"`
	Role   Role  `json:"role"`

	// TenantID is the entreprise the user belongs to, when known.
	TenantID *int64 `json:"tenant_id,omitempty"`

	// TenantSiret is the secondary tenant identifier.
	TenantSiret string `json:"siret,omitempty"`
}

// IsTenantScoped reports whether the principal only sees its own
// entreprise's notifications.
func (p Principal) IsTenantScoped() bool {
	return p.Role == RoleEntreprise
}

// HasTenant reports whether any tenant identifier is resolvable.
func (p Principal) HasTenant() bool {
	return (p.TenantID != nil && *p.TenantID != 0) || p.TenantSiret != ""
}
