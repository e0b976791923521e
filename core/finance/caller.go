package finance

import (
	"strings"

	"github.com/pkg/errors"
)

// Roles
const (
	RoleAdmin          = "admin:"
	RoleAdminOwner     = "admin:owner"
	RoleAdminPrincipal = "admin:principal"
	RoleAdminBursar    = "admin:bursar"

	RoleGuardian = "guardian:"
	RoleStudent  = "student:"
)

var AllRoles = []string{RoleAdmin, RoleAdminOwner, RoleAdminPrincipal, RoleAdminBursar, RoleGuardian, RoleStudent}

// Caller is the authenticated actor of an operation.
type Caller struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Roles []string `json:"roles"`
	// StudentIDs restricts which students the caller can see. nil means every student.
	StudentIDs []string `json:"student_ids,omitempty"`
}

// System is used by background jobs (reminders, gateway confirmations from the CLI).
var System = Caller{ID: "system", Name: "System", Roles: []string{RoleAdmin}}

func (c Caller) roleStartsWith(prefix string) bool {
	for _, role := range c.Roles {
		if strings.HasPrefix(role, prefix) {
			return true
		}
	}
	return false
}

func (c Caller) IsAdmin() bool {
	return c.roleStartsWith(RoleAdmin)
}

func (c Caller) CanAccessStudent(studentID string) bool {
	if c.StudentIDs == nil {
		return true
	}
	return containsString(c.StudentIDs, studentID)
}

// scope narrows a requested student list to what the caller may see.
// A nil result with ok=true means "no restriction".
func (c Caller) scope(requested []string) (ids []string, ok bool) {
	if c.StudentIDs == nil {
		return requested, true
	}
	if len(requested) == 0 {
		return c.StudentIDs, len(c.StudentIDs) > 0
	}
	ids = make([]string, 0, len(requested))
	for _, id := range requested {
		if containsString(c.StudentIDs, id) {
			ids = append(ids, id)
		}
	}
	return ids, len(ids) > 0
}

func (c Caller) mustBeAdmin(action string) error {
	if !c.IsAdmin() {
		return errors.Wrapf(ErrForbidden, "%s requires an admin role", action)
	}
	return nil
}

func (c Caller) mustAccess(studentID string) error {
	if !c.CanAccessStudent(studentID) {
		return errors.Wrapf(ErrForbidden, "student %q is not accessible", studentID)
	}
	return nil
}
