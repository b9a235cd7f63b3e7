package page

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vaultadmin/pkg/rbac"
)

func builtin(t *testing.T, role string) *rbac.SessionUser {
	t.Helper()
	set, ok := rbac.BuiltinPermissions(role)
	require.True(t, ok)
	return &rbac.SessionUser{Role: role, Permissions: set, Source: rbac.SourceBuiltin}
}

func actionIDs(m *Manifest) []string {
	ids := make([]string, 0, len(m.Actions))
	for _, a := range m.Actions {
		ids = append(ids, a.ID)
	}
	return ids
}

func TestLookupNormalizes(t *testing.T) {
	p, ok := Default().Lookup("admin/roles/")
	require.True(t, ok)
	assert.Equal(t, "/admin/roles", p.Path)

	_, ok = Default().Lookup("/nope")
	assert.False(t, ok)
}

func TestEvaluateFiltersActions(t *testing.T) {
	routes := rbac.DefaultRoutes()
	p, _ := Default().Lookup("/users")

	state := rbac.SessionState{User: &rbac.SessionUser{
		Role:        rbac.RoleStaff,
		Permissions: rbac.NewPermissionSet(rbac.PermViewUsers, rbac.PermEditUsers),
	}}
	decision, manifest := Evaluate(state, routes, p)
	require.True(t, decision.Allowed())
	assert.Equal(t, []string{"edit"}, actionIDs(manifest))

	state.User = builtin(t, rbac.RoleSuperAdmin)
	_, manifest = Evaluate(state, routes, p)
	assert.Equal(t, []string{"create", "edit", "delete", "assign_role"}, actionIDs(manifest))
}

func TestEvaluateDenials(t *testing.T) {
	routes := rbac.DefaultRoutes()
	p, _ := Default().Lookup("/admin/roles")

	cases := []struct {
		name  string
		state rbac.SessionState
		want  rbac.DecisionKind
	}{
		{"loading", rbac.SessionState{Loading: true}, rbac.DecisionLoading},
		{"anonymous", rbac.SessionState{}, rbac.DecisionUnauthenticated},
		{"viewer", rbac.SessionState{User: builtin(t, rbac.RoleViewer)}, rbac.DecisionRouteDenied},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			decision, manifest := Evaluate(tc.state, routes, p)
			assert.Equal(t, tc.want, decision.Kind)
			assert.Nil(t, manifest)
		})
	}
}

func TestStaffPageAnyOf(t *testing.T) {
	routes := rbac.DefaultRoutes()
	p, _ := Default().Lookup("/admin/staff")

	state := rbac.SessionState{User: &rbac.SessionUser{
		Role:        rbac.RoleStaff,
		Permissions: rbac.NewPermissionSet(rbac.PermEditUsers),
	}}
	decision, manifest := Evaluate(state, routes, p)
	require.True(t, decision.Allowed())
	assert.Equal(t, []string{"edit"}, actionIDs(manifest))
}

func TestProfileOpenToAnySession(t *testing.T) {
	p, _ := Default().Lookup("/profile")
	decision, manifest := Evaluate(rbac.SessionState{User: builtin(t, rbac.RoleViewer)}, rbac.DefaultRoutes(), p)
	assert.True(t, decision.Allowed())
	assert.Empty(t, manifest.Actions)
}

func TestNav(t *testing.T) {
	routes := rbac.DefaultRoutes()
	assert.Empty(t, Default().Nav(rbac.SessionState{}, routes))
	assert.Empty(t, Default().Nav(rbac.SessionState{Loading: true, User: builtin(t, rbac.RoleSuperAdmin)}, routes))

	nav := Default().Nav(rbac.SessionState{User: builtin(t, rbac.RoleSuperAdmin)}, routes)
	paths := make([]string, 0, len(nav))
	for _, p := range nav {
		paths = append(paths, p.Path)
		assert.True(t, p.Nav)
	}
	assert.Contains(t, paths, "/admin/roles")
	assert.NotContains(t, paths, "/profile")

	for _, p := range Default().Nav(rbac.SessionState{User: builtin(t, rbac.RoleViewer)}, routes) {
		assert.NotEqual(t, "/admin/roles", p.Path)
	}
}

func TestNewCatalogLastWins(t *testing.T) {
	c := NewCatalog(Page{Path: "/a", Title: "one"}, Page{Path: "a/", Title: "two"})
	require.Len(t, c.Pages(), 1)
	p, _ := c.Lookup("/a")
	assert.Equal(t, "two", p.Title)
}
