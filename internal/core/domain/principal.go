package domain

const (
	RoleAgent      = "agent"
	RoleDispatcher = "dispatcher"
	RoleAdmin      = "admin"
)

// Principal is the caller identified by a verified token. Tokens are issued
// by the identity service; this service only reads them.
type Principal struct {
	Subject string `json:"sub"`
	Role    string `json:"role"`
	// JobID binds an agent token to the single job it is driving.
	JobID string `json:"job_id,omitempty"`
}

// CanReportFor reports whether the principal may submit positions for entityID.
func (p Principal) CanReportFor(entityID string) bool {
	switch p.Role {
	case RoleAdmin:
		return true
	case RoleAgent:
		return p.JobID != "" && p.JobID == entityID
	default:
		return false
	}
}

// CanView reports whether the principal may read or drive tracking of entityID.
func (p Principal) CanView(entityID string) bool {
	switch p.Role {
	case RoleAdmin, RoleDispatcher:
		return true
	case RoleAgent:
		return p.JobID != "" && p.JobID == entityID
	default:
		return false
	}
}
