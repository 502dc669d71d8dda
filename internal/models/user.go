package models

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleSuperAdmin     UserRole = "SUPERADMIN"
	RoleAdmin          UserRole = "ADMIN"
	RoleAcademicAffair UserRole = "ACADEMIC_AFFAIR"
	RoleTeacher        UserRole = "TEACHER"
	RoleStudent        UserRole = "STUDENT"
)

// StaffRoles may decide requests and act on behalf of students.
var StaffRoles = []UserRole{RoleSuperAdmin, RoleAdmin, RoleAcademicAffair}

// IsStaff reports whether the role belongs to academic staff.
func (r UserRole) IsStaff() bool {
	for _, s := range StaffRoles {
		if r == s {
			return true
		}
	}
	return false
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
