package rbac

// RolePermissions is the default policy.
var RolePermissions = map[Role][]string{
	RoleStudent: {
		"exam:view",
		"subject:view",
		"attempt:start",
		"attempt:submit",
		"attempt:view-own",
		"attempt:history",
		"dashboard:student",
		"user:change_password",
	},
	RoleAdmin: {
		"*",
	},
}
