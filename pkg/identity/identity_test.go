package identity

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vaultadmin/pkg/auth"
	"github.com/vaultadmin/pkg/config"
)

func TestMeRoleIDString(t *testing.T) {
	var me Me
	require.NoError(t, json.Unmarshal([]byte(`{"id":"u1","email":"a@b.c","role":"staff","roleId":"R1"}`), &me))
	assert.Equal(t, "R1", me.RoleID)
	assert.Nil(t, me.InlineRole)
}

func TestMeRoleIDPopulated(t *testing.T) {
	raw := `{"id":"u1","role":"staff","roleId":{"_id":"R1","name":"ops","displayName":"Operations","permissions":["view_users"]}}`
	var me Me
	require.NoError(t, json.Unmarshal([]byte(raw), &me))
	require.NotNil(t, me.InlineRole)
	assert.Equal(t, "R1", me.RoleID)
	assert.Equal(t, "Operations", me.InlineRole.Label())
	assert.Equal(t, []string{"view_users"}, me.InlineRole.Permissions)

	out, err := json.Marshal(me)
	require.NoError(t, err)
	var back Me
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Equal(t, me, back)
}

func TestMeRoleIDNull(t *testing.T) {
	var me Me
	require.NoError(t, json.Unmarshal([]byte(`{"id":"u1","role":"viewer","roleId":null}`), &me))
	assert.Empty(t, me.RoleID)
	assert.Nil(t, me.InlineRole)
}

type fetcherFunc func(ctx context.Context) (*Me, error)

func (f fetcherFunc) GetMe(ctx context.Context) (*Me, error) { return f(ctx) }

func newJWT() *auth.JWTManager {
	return auth.NewJWTManager(&config.JWTConfig{Secret: "test-secret", Issuer: "test", Expire: 60})
}

func TestServiceLoginPublishes(t *testing.T) {
	jwt := newJWT()
	token, err := jwt.GenerateToken(auth.Subject{UserID: "u1", Email: "a@b.c", Name: "A", Role: "staff", RoleID: "R1"})
	require.NoError(t, err)

	svc := NewService(jwt, nil)
	var got []*Identity
	unsubscribe := svc.Subscribe(func(id *Identity) { got = append(got, id) })

	id, err := svc.Login(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, &Identity{ID: "u1", Email: "a@b.c", Name: "A", Role: "staff", RoleID: "R1"}, id)
	assert.Equal(t, token, svc.Token())

	svc.Logout()
	assert.Nil(t, svc.Current())
	assert.Empty(t, svc.Token())

	unsubscribe()
	svc.SetIdentity(&Identity{ID: "u2"})

	require.Len(t, got, 2)
	assert.Equal(t, "u1", got[0].ID)
	assert.Nil(t, got[1])
}

func TestServiceLoginRejectsBadToken(t *testing.T) {
	svc := NewService(newJWT(), nil)
	_, err := svc.Login(context.Background(), "garbage")
	assert.ErrorIs(t, err, auth.ErrTokenMalformed)
	assert.Nil(t, svc.Current())
}

func TestServiceLoginExpiredToken(t *testing.T) {
	jwt := auth.NewJWTManager(&config.JWTConfig{Secret: "s", Expire: -1})
	token, err := jwt.GenerateToken(auth.Subject{UserID: "u1"})
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)

	_, err = NewService(jwt, nil).Login(context.Background(), token)
	assert.ErrorIs(t, err, auth.ErrTokenExpired)
}

func TestServiceRefresh(t *testing.T) {
	calls := 0
	fetcher := fetcherFunc(func(context.Context) (*Me, error) {
		calls++
		if calls > 1 {
			return nil, errors.New("down")
		}
		return &Me{Identity: Identity{ID: "u1", Role: "moderator"}}, nil
	})
	svc := NewService(nil, fetcher)

	assert.ErrorIs(t, svc.Refresh(context.Background()), ErrNotAuthenticated)

	svc.SetIdentity(&Identity{ID: "u1", Role: "viewer"})
	require.NoError(t, svc.Refresh(context.Background()))
	assert.Equal(t, "moderator", svc.Current().Role)

	assert.Error(t, svc.Refresh(context.Background()))
	assert.Equal(t, "moderator", svc.Current().Role)
}
