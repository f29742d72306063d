package security

import "github.com/pgElephant/ramd/internal/server/models"

// Control-plane actions checked by the gatekeeper.
const (
	// ActionView is the single action a VIEWER may perform.
	ActionView = "view"

	ActionSwitchover      = "switchover"
	ActionFailover        = "failover"
	ActionConfigChange    = "config_change"
	ActionParameterChange = "parameter_change"
	ActionBackup          = "backup"
	ActionAuditRead       = "audit_read"
	ActionLogin           = "login"

	ActionAddUser       = "add_user"
	ActionSetRole       = "set_role"
	ActionSetUserActive = "set_user_active"
)

var userManagementActions = map[string]struct{}{
	ActionAddUser:       {},
	ActionSetRole:       {},
	ActionSetUserActive: {},
}

// IsUserManagement reports whether action changes the credential registry.
func IsUserManagement(action string) bool {
	_, ok := userManagementActions[action]
	return ok
}

// Permits is the role table: ADMIN may do anything, OPERATOR anything but
// user management, VIEWER only ActionView. Everything else is denied.
func Permits(role models.Role, action string) bool {
	switch role {
	case models.RoleAdmin:
		return true
	case models.RoleOperator:
		return !IsUserManagement(action)
	case models.RoleViewer:
		return action == ActionView
	default:
		return false
	}
}
