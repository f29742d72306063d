package models

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pgElephant/ramd/internal/common"
)

// Role is a coarse permission tier. Higher values grant more.
type Role int

const (
	RoleNone Role = iota
	RoleViewer
	RoleOperator
	RoleAdmin
)

var roleNames = map[Role]string{
	RoleNone:     "NONE",
	RoleViewer:   "VIEWER",
	RoleOperator: "OPERATOR",
	RoleAdmin:    "ADMIN",
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

// ParseRole accepts role names case-insensitively.
func ParseRole(s string) (Role, error) {
	want := strings.ToUpper(strings.TrimSpace(s))
	for role, name := range roleNames {
		if name == want {
			return role, nil
		}
	}
	return RoleNone, fmt.Errorf("%w: unknown role %q", common.ErrValidation, s)
}

func (r Role) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r *Role) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseRole(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
