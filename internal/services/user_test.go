package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tecnokaijin/storefront/internal/models"
)

func strPtr(s string) *string { return &s }

func TestRegisterDuplicateEmailIgnoresCase(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.users.Register(context.Background(), models.RegisterInput{
		Name: "Otro", Email: "USER@TecnoKaijin.cl", Password: "secret1", ConfirmPassword: "secret1",
	})
	assert.ErrorIs(t, err, models.ErrDuplicateEmail)
}

func TestRegisterStoresHashAndUserRole(t *testing.T) {
	env := newTestEnv(t)
	assert.Equal(t, models.RoleUser, env.customer.Role)
	assert.NotEqual(t, "user123", env.customer.PasswordHash)
	assert.NotEmpty(t, env.customer.PasswordHash)

	_, err := env.users.Register(context.Background(), models.RegisterInput{
		Name: "Ana", Email: "ana@x.com", Password: "abc", ConfirmPassword: "abc",
	})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestAuthenticateFailuresAreIdentical(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, errUnknown := env.users.Authenticate(ctx, "nobody@tecnokaijin.cl", "user123")
	_, errWrong := env.users.Authenticate(ctx, "user@tecnokaijin.cl", "wrong-password")
	require.Error(t, errUnknown)
	require.Error(t, errWrong)
	assert.Equal(t, errUnknown, errWrong)
	assert.Equal(t, errUnknown.Error(), errWrong.Error())
	assert.ErrorIs(t, errUnknown, models.ErrInvalidCredentials)

	u, err := env.users.Authenticate(ctx, " User@TecnoKaijin.CL ", "user123")
	require.NoError(t, err)
	assert.Equal(t, env.customer.ID, u.ID)

	_, err = env.users.Authenticate(ctx, "", "")
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestPrimaryAdminIsProtected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	assert.True(t, env.users.IsPrimary(env.admin))
	assert.ErrorIs(t, env.users.Delete(ctx, env.admin.ID), models.ErrPrimaryAdmin)

	role := models.RoleUser
	_, err := env.users.Update(ctx, env.admin.ID, models.UpdateUserInput{Role: &role})
	assert.ErrorIs(t, err, models.ErrPrimaryAdmin)

	updated, err := env.users.Update(ctx, env.admin.ID, models.UpdateUserInput{Name: strPtr("Jefe")})
	require.NoError(t, err)
	assert.Equal(t, "Jefe", updated.Name)
	assert.Equal(t, models.RoleAdmin, updated.Role)

	u, err := env.users.FindByID(ctx, env.admin.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, u.Role)
}

func TestEnsurePrimaryAdminIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	again, err := env.users.EnsurePrimaryAdmin(ctx, "Otro Nombre", "otherpass")
	require.NoError(t, err)
	assert.Equal(t, env.admin.ID, again.ID)

	n, err := env.users.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// the unchanged password still works
	_, err = env.users.Authenticate(ctx, primaryEmail, "admin123")
	assert.NoError(t, err)
}

func TestUpdateAndDeleteUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	admin := models.RoleAdmin
	u, err := env.users.Update(ctx, env.customer.ID, models.UpdateUserInput{Role: &admin, Password: strPtr("newpass1")})
	require.NoError(t, err)
	assert.True(t, u.IsAdmin())

	_, err = env.users.Authenticate(ctx, "user@tecnokaijin.cl", "newpass1")
	require.NoError(t, err)

	bad := models.Role("root")
	_, err = env.users.Update(ctx, env.customer.ID, models.UpdateUserInput{Role: &bad})
	assert.ErrorIs(t, err, models.ErrValidation)

	require.NoError(t, env.users.Delete(ctx, env.customer.ID))
	_, err = env.users.FindByID(ctx, env.customer.ID)
	assert.ErrorIs(t, err, models.ErrUserNotFound)
	assert.ErrorIs(t, env.users.Delete(ctx, env.customer.ID), models.ErrUserNotFound)
}

func TestListAllOrderedByID(t *testing.T) {
	env := newTestEnv(t)
	users, err := env.users.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, primaryEmail, users[0].Email)
	assert.Equal(t, "user@tecnokaijin.cl", users[1].Email)
}

func TestSessionStore(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	t1 := env.sessions.Issue(ctx, env.customer.ID)
	t2 := env.sessions.Issue(ctx, env.customer.ID)
	t3 := env.sessions.Issue(ctx, env.admin.ID)
	assert.NotEqual(t, t1, t2)
	assert.Equal(t, 2, env.sessions.ActiveUsers())

	id, ok := env.sessions.Resolve(t1)
	assert.True(t, ok)
	assert.Equal(t, env.customer.ID, id)

	env.sessions.Revoke(ctx, t3)
	_, ok = env.sessions.Resolve(t3)
	assert.False(t, ok)

	env.sessions.RevokeUser(ctx, env.customer.ID)
	_, ok = env.sessions.Resolve(t2)
	assert.False(t, ok)
	assert.Zero(t, env.sessions.ActiveUsers())
}
