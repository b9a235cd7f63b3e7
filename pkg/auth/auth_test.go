package auth

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vaultadmin/pkg/config"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestJWTRoundTrip(t *testing.T) {
	m := NewJWTManager(&config.JWTConfig{Secret: "s3cret", Issuer: "vaultadmin", Expire: 60})
	info, err := m.CreateTokenInfo(Subject{UserID: "u1", Email: "a@b.c", Name: "A", Role: "staff", RoleID: "R1"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer", info.TokenType)
	assert.Equal(t, int64(60), info.ExpiresIn)

	claims, err := m.ParseToken(info.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "staff", claims.Role)
	assert.Equal(t, "R1", claims.RoleID)
	assert.Equal(t, "vaultadmin", claims.Issuer)
}

func TestJWTWrongSecret(t *testing.T) {
	a := NewJWTManager(&config.JWTConfig{Secret: "a", Expire: 60})
	b := NewJWTManager(&config.JWTConfig{Secret: "b", Expire: 60})
	token, err := a.GenerateToken(Subject{UserID: "u1"})
	require.NoError(t, err)

	_, err = b.ParseToken(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("hunter2")
	require.NoError(t, err)
	assert.True(t, CheckPassword("hunter2", hash))
	assert.False(t, CheckPassword("hunter3", hash))
}

func newPolicyStore(t *testing.T) *PolicyStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	store, err := NewPolicyStore(db, nil)
	require.NoError(t, err)
	return store
}

func TestPolicyStorePermissions(t *testing.T) {
	store := newPolicyStore(t)
	role := RoleSubject("R1")

	require.NoError(t, store.SetPermissions(role, []string{"view_users", "edit_users", "view_users"}))
	perms, err := store.Permissions(role)
	require.NoError(t, err)
	assert.Equal(t, []string{"edit_users", "view_users"}, perms)

	require.NoError(t, store.SetPermissions(role, []string{"view_files"}))
	perms, err = store.Permissions(role)
	require.NoError(t, err)
	assert.Equal(t, []string{"view_files"}, perms)
}

func TestPolicyStoreAssignment(t *testing.T) {
	store := newPolicyStore(t)
	require.NoError(t, store.SetPermissions(RoleSubject("R1"), []string{"view_users"}))
	require.NoError(t, store.SetPermissions(BuiltinSubject("viewer"), []string{"view_dashboard"}))

	require.NoError(t, store.AssignUser("u1", RoleSubject("R1")))
	ok, err := store.Allowed("u1", "view_users")
	require.NoError(t, err)
	assert.True(t, ok)

	// 重新分配会替换原有角色
	require.NoError(t, store.AssignUser("u1", BuiltinSubject("viewer")))
	ok, _ = store.Allowed("u1", "view_users")
	assert.False(t, ok)
	ok, _ = store.Allowed("u1", "view_dashboard")
	assert.True(t, ok)

	subject, err := store.SubjectOf("u1")
	require.NoError(t, err)
	assert.Equal(t, BuiltinSubject("viewer"), subject)

	users, err := store.UsersOf(BuiltinSubject("viewer"))
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, users)
}

func TestPolicyStoreRemoveSubject(t *testing.T) {
	store := newPolicyStore(t)
	require.NoError(t, store.SetPermissions(RoleSubject("R1"), []string{"view_users"}))
	require.NoError(t, store.AssignUser("u1", RoleSubject("R1")))

	require.NoError(t, store.RemoveSubject(RoleSubject("R1")))
	perms, err := store.Permissions(RoleSubject("R1"))
	require.NoError(t, err)
	assert.Empty(t, perms)
	ok, _ := store.Allowed("u1", "view_users")
	assert.False(t, ok)
}

func TestPolicyStoreInMemory(t *testing.T) {
	store, err := NewPolicyStore(nil, nil)
	require.NoError(t, err)
	require.NoError(t, store.SetPermissions(RoleSubject("R1"), []string{"view_users"}))
	require.NoError(t, store.AssignUser("u1", RoleSubject("R1")))
	ok, err := store.Allowed("u1", "view_users")
	require.NoError(t, err)
	assert.True(t, ok)
}
