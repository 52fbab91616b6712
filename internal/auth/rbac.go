package auth

import (
	"net/http"
	"slices"

	"github.com/nikhilbhutani/promptlab/internal/identity"
)

type Permission string

const (
	PermPromptsRead    Permission = "prompts:read"
	PermPromptsWrite   Permission = "prompts:write"
	PermPromptsReview  Permission = "prompts:review"
	PermRunsWrite      Permission = "runs:write"
	PermRunsExecute    Permission = "runs:execute"
	PermAnalyticsRead  Permission = "analytics:read"
	PermWebhooksManage Permission = "webhooks:manage"
	PermAdminRead      Permission = "admin:read"
	PermWildcard       Permission = "*"
)

const (
	RoleAdmin    = "admin"
	RoleReviewer = "reviewer"
	RoleEditor   = "editor"
	RoleViewer   = "viewer"
)

// DefaultRoles grants each built-in role its permissions.
var DefaultRoles = map[string][]Permission{
	RoleAdmin:    {PermWildcard},
	RoleReviewer: {PermPromptsRead, PermPromptsWrite, PermPromptsReview, PermRunsWrite, PermRunsExecute, PermAnalyticsRead},
	RoleEditor:   {PermPromptsRead, PermPromptsWrite, PermRunsWrite, PermRunsExecute, PermAnalyticsRead},
	RoleViewer:   {PermPromptsRead, PermAnalyticsRead},
}

type RBAC struct {
	roles map[string][]Permission
}

func NewRBAC(roles map[string][]Permission) *RBAC {
	if roles == nil {
		roles = DefaultRoles
	}
	return &RBAC{roles: roles}
}

func (r *RBAC) RequirePermission(perm Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			user := identity.UserFromContext(req.Context())
			if user == nil {
				writeError(w, http.StatusForbidden, "no user in context")
				return
			}

			if user.Role == "" {
				writeError(w, http.StatusForbidden, "no role assigned")
				return
			}

			if !r.Allowed(user.Role, perm) {
				writeError(w, http.StatusForbidden, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, req)
		})
	}
}

func (r *RBAC) Allowed(role string, perm Permission) bool {
	perms := r.roles[role]
	return slices.Contains(perms, PermWildcard) || slices.Contains(perms, perm)
}
