package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/princeprakhar/reviewnext-backend/internal/models"
	"github.com/princeprakhar/reviewnext-backend/internal/policy"
	"github.com/princeprakhar/reviewnext-backend/internal/store"
	"github.com/princeprakhar/reviewnext-backend/internal/types"
	"github.com/princeprakhar/reviewnext-backend/internal/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type AuthService struct {
	db        *gorm.DB
	jwtSecret string
	policy    *policy.AuthorizationPolicy
	log       logrus.FieldLogger
}

func NewAuthService(db *gorm.DB, jwtSecret string, p *policy.AuthorizationPolicy, log logrus.FieldLogger) *AuthService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &AuthService{
		db:        db,
		jwtSecret: jwtSecret,
		policy:    p,
		log:       log.WithField("service", "auth"),
	}
}

type SignupRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Username string `json:"username" binding:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type UpdateProfileRequest struct {
	Username string `json:"username" binding:"required"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

func dbError(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return store.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %w", store.ErrDuplicate, err)
	default:
		return fmt.Errorf("%w: %w", store.ErrTransport, err)
	}
}

func (s *AuthService) Signup(ctx context.Context, req SignupRequest) (*types.AuthResponse, error) {
	email := utils.SanitizeString(req.Email)
	username := utils.SanitizeString(req.Username)

	if !utils.IsValidEmail(email) {
		return nil, fmt.Errorf("%w: invalid email format", ErrInvalidInput)
	}
	if !utils.IsValidPassword(req.Password) {
		return nil, fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}
	if !utils.IsValidUsername(username) {
		return nil, fmt.Errorf("%w: username must be 3-32 letters, digits, '.', '_' or '-'", ErrInvalidInput)
	}

	db := s.db.WithContext(ctx)

	var count int64
	if err := db.Model(&models.User{}).Where("email = ? OR username = ?", email, username).Count(&count).Error; err != nil {
		return nil, dbError(err)
	}
	if count > 0 {
		return nil, fmt.Errorf("%w: user already exists", store.ErrDuplicate)
	}

	user := models.User{
		Email:    email,
		Username: username,
		Password: req.Password, // Will be hashed in BeforeCreate hook
		IsActive: true,
	}
	if err := db.Create(&user).Error; err != nil {
		return nil, dbError(err)
	}

	s.log.WithField("user_id", user.ID).Info("User signed up")
	return s.issueTokens(db, user)
}

func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*types.AuthResponse, error) {
	db := s.db.WithContext(ctx)

	var user models.User
	if err := db.Where("email = ? AND is_active = ?", utils.SanitizeString(req.Email), true).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, dbError(err)
	}
	if !user.CheckPassword(req.Password) {
		return nil, ErrInvalidCredentials
	}

	// Revoke all existing refresh tokens for this user
	if err := db.Model(&models.RefreshToken{}).Where("user_id = ?", user.ID).Update("is_revoked", true).Error; err != nil {
		return nil, dbError(err)
	}
	return s.issueTokens(db, user)
}

// issueTokens mints a token pair and persists the refresh token.
func (s *AuthService) issueTokens(db *gorm.DB, user models.User) (*types.AuthResponse, error) {
	tokenPair, err := utils.GenerateTokenPair(user.ID, user.Email, user.Username, s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to generate tokens: %w", err)
	}

	refreshToken := models.RefreshToken{
		UserID:    user.ID,
		Token:     tokenPair.RefreshToken,
		ExpiresAt: time.Unix(tokenPair.RefreshTokenExpiresAt, 0),
	}
	if err := db.Create(&refreshToken).Error; err != nil {
		return nil, dbError(err)
	}
	return s.response(user, tokenPair), nil
}

func (s *AuthService) response(user models.User, pair *utils.TokenPair) *types.AuthResponse {
	return &types.AuthResponse{
		Token: types.TokenPair{
			AccessToken:           pair.AccessToken,
			RefreshToken:          pair.RefreshToken,
			AccessTokenExpiresAt:  pair.AccessTokenExpiresAt,
			RefreshTokenExpiresAt: pair.RefreshTokenExpiresAt,
		},
		User: user,
		Role: s.policy.Role(user.Email),
	}
}

// RefreshToken rotates a refresh token: the presented one is revoked and a
// new pair issued in one transaction.
func (s *AuthService) RefreshToken(ctx context.Context, req RefreshRequest) (*types.AuthResponse, error) {
	claims, err := utils.ValidateToken(req.RefreshToken, s.jwtSecret)
	if err != nil || claims.Type != string(utils.RefreshToken) {
		return nil, ErrInvalidCredentials
	}

	var resp *types.AuthResponse
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var stored models.RefreshToken
		if err := tx.Where("token = ? AND is_revoked = ? AND expires_at > ?", req.RefreshToken, false, time.Now()).
			First(&stored).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInvalidCredentials
			}
			return dbError(err)
		}

		var user models.User
		if err := tx.Where("id = ? AND is_active = ?", stored.UserID, true).First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInvalidCredentials
			}
			return dbError(err)
		}

		res := tx.Model(&models.RefreshToken{}).
			Where("id = ? AND is_revoked = ?", stored.ID, false).
			Update("is_revoked", true)
		if res.Error != nil {
			return dbError(res.Error)
		}
		if res.RowsAffected == 0 {
			// Already rotated by a concurrent request.
			return ErrInvalidCredentials
		}

		var err error
		resp, err = s.issueTokens(tx, user)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	err := s.db.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("token = ?", refreshToken).
		Update("is_revoked", true).Error
	if err != nil {
		return dbError(err)
	}
	return nil
}

func (s *AuthService) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("id = ? AND is_active = ?", userID, true).First(&user).Error; err != nil {
		return nil, dbError(err)
	}
	return &user, nil
}

func (s *AuthService) Profile(ctx context.Context, userID string) (*types.Profile, error) {
	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &types.Profile{User: *user, Role: s.policy.Role(user.Email)}, nil
}

// UpdateProfile changes the username. Existing logs keep the name they were
// written under.
func (s *AuthService) UpdateProfile(ctx context.Context, userID string, req UpdateProfileRequest) (*types.Profile, error) {
	username := utils.SanitizeString(req.Username)
	if !utils.IsValidUsername(username) {
		return nil, fmt.Errorf("%w: username must be 3-32 letters, digits, '.', '_' or '-'", ErrInvalidInput)
	}

	db := s.db.WithContext(ctx)
	var count int64
	if err := db.Model(&models.User{}).Where("username = ? AND id <> ?", username, userID).Count(&count).Error; err != nil {
		return nil, dbError(err)
	}
	if count > 0 {
		return nil, fmt.Errorf("%w: username already taken", store.ErrDuplicate)
	}

	res := db.Model(&models.User{}).Where("id = ? AND is_active = ?", userID, true).Update("username", username)
	if res.Error != nil {
		return nil, dbError(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, store.ErrNotFound
	}
	return s.Profile(ctx, userID)
}

// ChangePassword replaces the password and revokes every refresh token so
// other sessions must log in again.
func (s *AuthService) ChangePassword(ctx context.Context, userID string, req ChangePasswordRequest) error {
	if !utils.IsValidPassword(req.NewPassword) {
		return fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Where("id = ? AND is_active = ?", userID, true).First(&user).Error; err != nil {
			return dbError(err)
		}
		if !user.CheckPassword(req.CurrentPassword) {
			return ErrInvalidCredentials
		}
		if err := user.UpdatePassword(req.NewPassword); err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}
		if err := tx.Model(&models.User{}).Where("id = ?", user.ID).Update("password", user.Password).Error; err != nil {
			return dbError(err)
		}
		if err := tx.Model(&models.RefreshToken{}).Where("user_id = ?", user.ID).Update("is_revoked", true).Error; err != nil {
			return dbError(err)
		}
		s.log.WithField("user_id", user.ID).Info("Password changed")
		return nil
	})
}
