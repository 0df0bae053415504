package services

type Role string

const (
	RoleAdmin       Role = "admin"
	RoleDoctor      Role = "doctor"
	RoleRadiologist Role = "radiologist"
	RoleTechnician  Role = "technician"
	RoleViewer      Role = "viewer"
)

type Permission string

const (
	PermReadDiagnostics   Permission = "read_diagnostics"
	PermCreateDiagnostics Permission = "create_diagnostics"
	PermUpdateDiagnostics Permission = "update_diagnostics"
	PermDeleteDiagnostics Permission = "delete_diagnostics"
	PermManageUsers       Permission = "manage_users"
	PermViewAnalytics     Permission = "view_analytics"
	PermExportData        Permission = "export_data"
)

var allPermissions = []Permission{
	PermReadDiagnostics, PermCreateDiagnostics, PermUpdateDiagnostics, PermDeleteDiagnostics,
	PermManageUsers, PermViewAnalytics, PermExportData,
}

var rolePermissions = map[Role][]Permission{
	RoleAdmin:       allPermissions,
	RoleDoctor:      {PermReadDiagnostics, PermCreateDiagnostics, PermUpdateDiagnostics, PermViewAnalytics},
	RoleRadiologist: {PermReadDiagnostics, PermCreateDiagnostics, PermUpdateDiagnostics},
	RoleTechnician:  {PermCreateDiagnostics},
	RoleViewer:      {PermReadDiagnostics},
}

// HasPermission reports whether role grants p. Unknown roles grant nothing.
func HasPermission(role string, p Permission) bool {
	for _, granted := range rolePermissions[Role(role)] {
		if granted == p {
			return true
		}
	}
	return false
}
