package shared

// SchemaConfig carries the table names used by the persistence layer. Every
// repository receives it at construction time so a host application can remap
// tables without touching query code.
type SchemaConfig struct {
	Permissions         string
	Roles               string
	Sections            string
	Containers          string
	Users               string
	RoleHasPermissions  string
	ModelHasPermissions string
	ModelHasRoles       string
	ContainerRole       string
	ContainerSection    string
}

// WithPrefix returns a copy with every table name prefixed, for hosts that
// share a database with other schemas.
func (s SchemaConfig) WithPrefix(prefix string) SchemaConfig {
	s.Permissions = prefix + s.Permissions
	s.Roles = prefix + s.Roles
	s.Sections = prefix + s.Sections
	s.Containers = prefix + s.Containers
	s.Users = prefix + s.Users
	s.RoleHasPermissions = prefix + s.RoleHasPermissions
	s.ModelHasPermissions = prefix + s.ModelHasPermissions
	s.ModelHasRoles = prefix + s.ModelHasRoles
	s.ContainerRole = prefix + s.ContainerRole
	s.ContainerSection = prefix + s.ContainerSection
	return s
}

// DefaultSchema returns the stock table names.
func DefaultSchema() SchemaConfig {
	return SchemaConfig{
		Permissions:         "permissions",
		Roles:               "roles",
		Sections:            "sections",
		Containers:          "containers",
		Users:               "users",
		RoleHasPermissions:  "role_has_permissions",
		ModelHasPermissions: "model_has_permissions",
		ModelHasRoles:       "model_has_roles",
		ContainerRole:       "container_role",
		ContainerSection:    "container_section",
	}
}
