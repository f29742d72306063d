package models

// Status is the gatekeeper snapshot reported to operators.
type Status struct {
	AuthEnabled              bool `json:"auth_enabled"`
	SSLEnabled               bool `json:"ssl_enabled"`
	RateLimitingEnabled      bool `json:"rate_limiting_enabled"`
	AuditEnabled             bool `json:"audit_enabled"`
	InputValidationEnabled   bool `json:"input_validation_enabled"`
	SessionManagementEnabled bool `json:"session_management_enabled"`
	UserCount                int  `json:"user_count"`
	ActiveConnections        int  `json:"active_connections"`
	BlockedIPCount           int  `json:"blocked_ip_count"`
	TrackedIPCount           int  `json:"tracked_ip_count"`
	AuditEntries             int  `json:"audit_entries"`
}
