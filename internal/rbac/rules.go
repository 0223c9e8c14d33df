package rbac

const (
	PermTake       = "quiz:take"
	PermViewOwn    = "attempt:view-own"
	PermViewAll    = "attempt:view-all"
	PermGrade      = "attempt:grade"
	PermExpire     = "attempt:expire"
	PermReadAssets = "assets:read"
)

// RolePermissions is the default policy. The engine knows nothing of roles; only these capabilities.
var RolePermissions = map[string][]string{
	"student": {
		PermTake,
		PermViewOwn,
	},
	"grader": {
		PermViewAll,
		PermGrade,
		PermReadAssets,
	},
	"admin": {
		"*",
	},
	"scheduler": {
		PermExpire,
		PermViewAll,
	},
}
