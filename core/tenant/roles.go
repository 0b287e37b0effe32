package tenant

import (
	"database/sql/driver"
	"encoding/json"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
)

type Role string

// Roles
const (
	RoleSuperAdmin Role = "SUPERADMIN"
	RoleAdmin      Role = "ADMIN"
	RoleTeacher    Role = "TEACHER"
	RoleStudent    Role = "STUDENT"
	RoleParent     Role = "PARENT"
)

var (
	rolePriorities = map[Role]int{
		RoleSuperAdmin: 40,
		RoleAdmin:      30,
		RoleTeacher:    20,
		RoleStudent:    10,
		RoleParent:     10,
	}

	Roles = []RoleInfo{
		{Name: "Student", Value: RoleStudent},
		{Name: "Parent", Value: RoleParent},
		{Name: "Teacher", Value: RoleTeacher},
		{Name: "Admin", Value: RoleAdmin},
		{Name: "Super Admin", Value: RoleSuperAdmin},
	}

	roleTag  = "role"
	roleText = "invalid role"
)

type RoleInfo struct {
	Name  string `json:"name"`
	Value Role   `json:"value"`
}

func (r Role) Valid() bool {
	_, ok := rolePriorities[r]
	return ok
}

func (r Role) Priority() int {
	return rolePriorities[r]
}

func MaxRolePriority(roles ...Role) int {
	var max int
	for _, role := range roles {
		if role.Priority() > max {
			max = role.Priority()
		}
	}
	return max
}

// Permissions holds per-membership capability overrides: action -> granted.
type Permissions map[string]bool

func (p Permissions) Value() (driver.Value, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(p)
}

func (p *Permissions) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*p = Permissions{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.Errorf("cannot scan %T into Permissions", src)
	}
	perms := make(Permissions)
	if err := json.Unmarshal(data, &perms); err != nil {
		return errors.Wrap(err, "unmarshalling permissions")
	}
	*p = perms
	return nil
}

// RegisterValidators registers the `role` tag (combine with `dive` on slices).
func RegisterValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(roleTag, roleValidation)
	core.RegisterCustomTranslation(validate, translator, roleTag, roleText)
}

func roleValidation(fl validator.FieldLevel) bool {
	return Role(fl.Field().String()).Valid()
}
