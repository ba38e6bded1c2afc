package services

import (
	"context"
	"testing"

	"github.com/princeprakhar/reviewnext-backend/internal/models"
	"github.com/princeprakhar/reviewnext-backend/internal/store"
	"github.com/princeprakhar/reviewnext-backend/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func TestSignupAndLogin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := NewAuthService(f.db, testSecret, f.policy, f.logger)

	resp, err := svc.Signup(ctx, SignupRequest{Email: "admin@example.com", Password: "password123", Username: "root_admin"})
	require.NoError(t, err)
	assert.Equal(t, "admin", resp.Role)
	assert.NotEmpty(t, resp.User.ID)
	assert.NotEqual(t, "password123", resp.User.Password)

	claims, err := utils.ValidateToken(resp.Token.AccessToken, testSecret)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, claims.UserID)
	assert.Equal(t, "root_admin", claims.Username)

	_, err = svc.Signup(ctx, SignupRequest{Email: "admin@example.com", Password: "password123", Username: "other"})
	assert.ErrorIs(t, err, store.ErrDuplicate)

	login, err := svc.Login(ctx, LoginRequest{Email: "admin@example.com", Password: "password123"})
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, login.User.ID)

	_, err = svc.Login(ctx, LoginRequest{Email: "admin@example.com", Password: "wrong-password"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, LoginRequest{Email: "nobody@example.com", Password: "password123"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestSignup_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := NewAuthService(f.db, testSecret, f.policy, f.logger)

	cases := []SignupRequest{
		{Email: "not-an-email", Password: "password123", Username: "alice"},
		{Email: "alice@example.com", Password: "short", Username: "alice"},
		{Email: "alice@example.com", Password: "password123", Username: "a"},
	}
	for _, req := range cases {
		_, err := svc.Signup(ctx, req)
		assert.ErrorIs(t, err, ErrInvalidInput, "%+v", req)
	}

	resp, err := svc.Signup(ctx, SignupRequest{Email: "alice@example.com", Password: "password123", Username: "alice"})
	require.NoError(t, err)
	assert.Equal(t, "user", resp.Role)
}

func TestRefreshTokenRotation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := NewAuthService(f.db, testSecret, f.policy, f.logger)

	resp, err := svc.Signup(ctx, SignupRequest{Email: "alice@example.com", Password: "password123", Username: "alice"})
	require.NoError(t, err)

	rotated, err := svc.RefreshToken(ctx, RefreshRequest{RefreshToken: resp.Token.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, resp.Token.RefreshToken, rotated.Token.RefreshToken)

	// The old token is revoked once used.
	_, err = svc.RefreshToken(ctx, RefreshRequest{RefreshToken: resp.Token.RefreshToken})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	// An access token is not a refresh token.
	_, err = svc.RefreshToken(ctx, RefreshRequest{RefreshToken: rotated.Token.AccessToken})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	require.NoError(t, svc.Logout(ctx, rotated.Token.RefreshToken))
	_, err = svc.RefreshToken(ctx, RefreshRequest{RefreshToken: rotated.Token.RefreshToken})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	var active int64
	require.NoError(t, f.db.Model(&models.RefreshToken{}).Where("is_revoked = ?", false).Count(&active).Error)
	assert.Zero(t, active)
}

func TestProfile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := NewAuthService(f.db, testSecret, f.policy, f.logger)

	a, err := svc.Signup(ctx, SignupRequest{Email: "alice@example.com", Password: "password123", Username: "alice"})
	require.NoError(t, err)
	_, err = svc.Signup(ctx, SignupRequest{Email: "bob@example.com", Password: "password123", Username: "bob"})
	require.NoError(t, err)

	profile, err := svc.Profile(ctx, a.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", profile.Username)
	assert.Equal(t, "user", profile.Role)

	_, err = svc.UpdateProfile(ctx, a.User.ID, UpdateProfileRequest{Username: "bob"})
	assert.ErrorIs(t, err, store.ErrDuplicate)

	_, err = svc.UpdateProfile(ctx, a.User.ID, UpdateProfileRequest{Username: "x"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	profile, err = svc.UpdateProfile(ctx, a.User.ID, UpdateProfileRequest{Username: "alice_w"})
	require.NoError(t, err)
	assert.Equal(t, "alice_w", profile.Username)

	_, err = svc.GetUserByID(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := NewAuthService(f.db, testSecret, f.policy, f.logger)

	resp, err := svc.Signup(ctx, SignupRequest{Email: "alice@example.com", Password: "password123", Username: "alice"})
	require.NoError(t, err)
	uid := resp.User.ID

	err = svc.ChangePassword(ctx, uid, ChangePasswordRequest{CurrentPassword: "wrong-password", NewPassword: "newpassword1"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	err = svc.ChangePassword(ctx, uid, ChangePasswordRequest{CurrentPassword: "password123", NewPassword: "short"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	require.NoError(t, svc.ChangePassword(ctx, uid, ChangePasswordRequest{CurrentPassword: "password123", NewPassword: "newpassword1"}))

	_, err = svc.RefreshToken(ctx, RefreshRequest{RefreshToken: resp.Token.RefreshToken})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, LoginRequest{Email: "alice@example.com", Password: "password123"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, LoginRequest{Email: "alice@example.com", Password: "newpassword1"})
	require.NoError(t, err)
}
