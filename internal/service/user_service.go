package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"auth-notify-service/internal/encryption"
	"auth-notify-service/internal/hashing"
	"auth-notify-service/internal/models"
	"auth-notify-service/internal/repository/relational"
	"auth-notify-service/internal/social"
	"auth-notify-service/internal/token"
	"auth-notify-service/internal/util"

	"go.uber.org/zap"
	"gorm.io/datatypes"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrUserAlreadyExists  = errors.New("email already registered")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountInactive    = errors.New("account is inactive")
	ErrInvalidToken       = errors.New("invalid token")
	ErrEmailRequired      = errors.New("email permission required")
)

const TokenTypeBearer = "bearer"

// GoogleVerifier checks a Google ID token.
type GoogleVerifier interface {
	Verify(ctx context.Context, idToken string) (*social.GoogleProfile, error)
}

// FacebookVerifier checks that a Facebook access token belongs to userID.
type FacebookVerifier interface {
	Verify(ctx context.Context, accessToken, userID string) error
}

type RegisterRequest struct {
	Email    string         `json:"email" validate:"required,email,max=255"`
	Password string         `json:"password" validate:"required,min=6,max=128"`
	Name     string         `json:"name" validate:"max=255"`
	Picture  string         `json:"picture" validate:"omitempty,url,max=1024"`
	Mobile   string         `json:"mobile" validate:"omitempty,e164"`
	Misc     map[string]any `json:"misc"`
}

// UpdateUserRequest carries a partial update. Nil fields are left alone;
// Misc is merged key by key.
type UpdateUserRequest struct {
	Email    *string        `json:"email" validate:"omitempty,email,max=255"`
	Password *string        `json:"password" validate:"omitempty,min=6,max=128"`
	Name     *string        `json:"name" validate:"omitempty,max=255"`
	Picture  *string        `json:"picture" validate:"omitempty,max=1024"`
	Mobile   *string        `json:"mobile" validate:"omitempty,e164"`
	IsActive *bool          `json:"is_active"`
	Misc     map[string]any `json:"misc"`
}

type FacebookUserData struct {
	ID    string `json:"id" validate:"required"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// SocialProfile is what a social provider tells us about the user.
type SocialProfile struct {
	Email   string
	Name    string
	Picture string
}

type AuthResult struct {
	User         *models.User `json:"user"`
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	TokenType    string       `json:"token_type"`
}

// UserService handles all user-related business logic
type UserService struct {
	users      relational.UserRepository
	hasher     *hashing.Hasher
	tokens     *token.Service
	encryption *encryption.EncryptionManager
	google     GoogleVerifier
	facebook   FacebookVerifier
	logger     *zap.Logger
}

func NewUserService(
	users relational.UserRepository,
	hasher *hashing.Hasher,
	tokens *token.Service,
	encryptionMgr *encryption.EncryptionManager,
	google GoogleVerifier,
	facebook FacebookVerifier,
	logger *zap.Logger,
) *UserService {
	return &UserService{
		users:      users,
		hasher:     hasher,
		tokens:     tokens,
		encryption: encryptionMgr,
		google:     google,
		facebook:   facebook,
		logger:     logger.Named("users"),
	}
}

// Register creates an email/password account.
func (s *UserService) Register(ctx context.Context, req *RegisterRequest) (*models.User, error) {
	email := util.NormalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}
	if util.ContainsSuspicious(req.Name) {
		return nil, fmt.Errorf("%w: name contains disallowed content", ErrInvalidInput)
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, ErrUserAlreadyExists
	} else if !errors.Is(err, relational.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up email: %w", err)
	}

	hashed, err := s.hasher.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	misc := datatypes.JSONMap{}
	for k, v := range req.Misc {
		misc[k] = v
	}
	if _, ok := misc[models.MiscRegisterMode]; !ok {
		misc[models.MiscRegisterMode] = models.RegisterModeEmail
	}

	user := &models.User{
		Email:          email,
		HashedPassword: &hashed,
		Name:           util.SanitizeInput(req.Name),
		Picture:        req.Picture,
		Misc:           misc,
		IsActive:       true,
	}
	if err := s.setMobile(ctx, user, req.Mobile); err != nil {
		return nil, err
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, relational.ErrDuplicateEmail) {
			return nil, ErrUserAlreadyExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info("user registered", zap.Uint("user_id", user.ID))
	return user, nil
}

// Login checks email and password and issues a token pair. Accounts without
// a password, unknown emails and wrong passwords all fail the same way.
func (s *UserService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	user, err := s.users.GetByEmail(ctx, util.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, relational.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if !user.HasPassword() || password == "" {
		return nil, ErrInvalidCredentials
	}

	match, needsRehash, err := s.hasher.VerifyPassword(password, *user.HashedPassword)
	if err != nil {
		s.logger.Warn("stored password hash unusable", zap.Uint("user_id", user.ID), zap.Error(err))
		return nil, ErrInvalidCredentials
	}
	if !match {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrAccountInactive
	}

	if needsRehash {
		s.rehash(ctx, user, password)
	}
	return s.issue(ctx, user)
}

func (s *UserService) rehash(ctx context.Context, user *models.User, password string) {
	hashed, err := s.hasher.HashPassword(password)
	if err != nil {
		s.logger.Warn("password rehash failed", zap.Uint("user_id", user.ID), zap.Error(err))
		return
	}
	user.HashedPassword = &hashed
	if err := s.users.Save(ctx, user); err != nil {
		s.logger.Warn("failed to store rehashed password", zap.Uint("user_id", user.ID), zap.Error(err))
		return
	}
	s.logger.Info("password hash upgraded", zap.Uint("user_id", user.ID))
}

func (s *UserService) GetUser(ctx context.Context, id uint) (*models.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, relational.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	s.reveal(ctx, user)
	return user, nil
}

func (s *UserService) ListUsers(ctx context.Context, skip, limit int) ([]models.User, error) {
	users, err := s.users.List(ctx, skip, limit)
	if err != nil {
		return nil, err
	}
	for i := range users {
		s.reveal(ctx, &users[i])
	}
	return users, nil
}

// UpdateUser applies a partial update. Changing the email to one owned by
// another user fails with ErrUserAlreadyExists.
func (s *UserService) UpdateUser(ctx context.Context, id uint, req *UpdateUserRequest) (*models.User, error) {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Email != nil {
		email := util.NormalizeEmail(*req.Email)
		if email == "" {
			return nil, fmt.Errorf("%w: email cannot be empty", ErrInvalidInput)
		}
		if email != user.Email {
			owner, err := s.users.GetByEmail(ctx, email)
			switch {
			case err == nil && owner.ID != user.ID:
				return nil, ErrUserAlreadyExists
			case err != nil && !errors.Is(err, relational.ErrNotFound):
				return nil, fmt.Errorf("failed to look up email: %w", err)
			}
			user.Email = email
		}
	}
	if req.Name != nil {
		if util.ContainsSuspicious(*req.Name) {
			return nil, fmt.Errorf("%w: name contains disallowed content", ErrInvalidInput)
		}
		user.Name = util.SanitizeInput(*req.Name)
	}
	if req.Picture != nil {
		user.Picture = *req.Picture
	}
	if req.Mobile != nil {
		if err := s.setMobile(ctx, user, *req.Mobile); err != nil {
			return nil, err
		}
	}
	if req.Password != nil {
		hashed, err := s.hasher.HashPassword(*req.Password)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		user.HashedPassword = &hashed
	}
	if req.IsActive != nil {
		user.IsActive = *req.IsActive
	}
	if len(req.Misc) > 0 {
		user.Misc = mergeMisc(user.Misc, req.Misc, false)
	}

	if err := s.users.Save(ctx, user); err != nil {
		if errors.Is(err, relational.ErrDuplicateEmail) {
			return nil, ErrUserAlreadyExists
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	s.logger.Info("user updated", zap.Uint("user_id", user.ID))
	return user, nil
}

// UpsertByEmail finds or creates the account behind a social login. The
// first registration mode recorded on an account is kept.
func (s *UserService) UpsertByEmail(ctx context.Context, profile SocialProfile, providerMisc map[string]any) (*models.User, error) {
	email := util.NormalizeEmail(profile.Email)
	if email == "" {
		return nil, ErrEmailRequired
	}

	existing, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return s.mergeSocial(ctx, existing, profile, providerMisc)
	case !errors.Is(err, relational.ErrNotFound):
		return nil, fmt.Errorf("failed to look up email: %w", err)
	}

	user := &models.User{
		Email:    email,
		Name:     util.SanitizeInput(profile.Name),
		Picture:  profile.Picture,
		Misc:     mergeMisc(nil, providerMisc, true),
		IsActive: true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if !errors.Is(err, relational.ErrDuplicateEmail) {
			return nil, fmt.Errorf("failed to create user: %w", err)
		}
		// Lost a race with a concurrent login for the same email.
		existing, err := s.users.GetByEmail(ctx, email)
		if err != nil {
			return nil, fmt.Errorf("failed to reload user: %w", err)
		}
		return s.mergeSocial(ctx, existing, profile, providerMisc)
	}

	s.logger.Info("user created from social login",
		zap.Uint("user_id", user.ID),
		zap.String("register_mode", user.RegisterMode()))
	return user, nil
}

func (s *UserService) mergeSocial(ctx context.Context, user *models.User, profile SocialProfile, providerMisc map[string]any) (*models.User, error) {
	if profile.Name != "" {
		user.Name = util.SanitizeInput(profile.Name)
	}
	if profile.Picture != "" {
		user.Picture = profile.Picture
	}
	user.Misc = mergeMisc(user.Misc, providerMisc, true)

	if err := s.users.Save(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	s.reveal(ctx, user)
	return user, nil
}

func (s *UserService) GoogleLogin(ctx context.Context, idToken string) (*AuthResult, error) {
	profile, err := s.google.Verify(ctx, idToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	user, err := s.UpsertByEmail(ctx,
		SocialProfile{Email: profile.Email, Name: profile.Name, Picture: profile.Picture},
		map[string]any{
			models.MiscRegisterMode: models.RegisterModeGoogle,
			models.MiscGoogleID:     profile.Subject,
		})
	if err != nil {
		return nil, err
	}
	return s.socialSession(ctx, user)
}

func (s *UserService) FacebookLogin(ctx context.Context, accessToken string, data FacebookUserData) (*AuthResult, error) {
	if err := s.facebook.Verify(ctx, accessToken, data.ID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if data.Email == "" {
		return nil, ErrEmailRequired
	}

	user, err := s.UpsertByEmail(ctx,
		SocialProfile{Email: data.Email, Name: data.Name},
		map[string]any{
			models.MiscRegisterMode: models.RegisterModeFacebook,
			models.MiscFacebookID:   data.ID,
		})
	if err != nil {
		return nil, err
	}
	return s.socialSession(ctx, user)
}

func (s *UserService) socialSession(ctx context.Context, user *models.User) (*AuthResult, error) {
	if !user.IsActive {
		return nil, ErrAccountInactive
	}
	return s.issue(ctx, user)
}

// RefreshToken exchanges a valid refresh token of an active user for a new
// token pair.
func (s *UserService) RefreshToken(ctx context.Context, refreshToken string) (*AuthResult, error) {
	claims := s.tokens.VerifyType(refreshToken, token.TypeRefresh)
	if claims == nil {
		return nil, ErrInvalidToken
	}
	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil {
		return nil, ErrInvalidToken
	}

	user, err := s.GetUser(ctx, uint(id))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrInvalidToken
	}
	return s.issue(ctx, user)
}

// VerifyToken validates one of our access tokens, or a Google ID token when
// provider is "google".
func (s *UserService) VerifyToken(ctx context.Context, tok, provider string) (map[string]any, error) {
	if provider == models.RegisterModeGoogle {
		profile, err := s.google.Verify(ctx, tok)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		return profile.Raw, nil
	}

	claims := s.tokens.Verify(tok)
	if claims == nil {
		return nil, ErrInvalidToken
	}
	out := map[string]any{
		"sub":  claims.Subject,
		"type": claims.Type,
	}
	if claims.Email != "" {
		out["email"] = claims.Email
	}
	if claims.Name != "" {
		out["name"] = claims.Name
	}
	if claims.IssuedAt != nil {
		out["iat"] = claims.IssuedAt.Unix()
	}
	if claims.ExpiresAt != nil {
		out["exp"] = claims.ExpiresAt.Unix()
	}
	return out, nil
}

// Authenticate resolves a bearer access token to its user id.
func (s *UserService) Authenticate(tok string) (uint, error) {
	claims := s.tokens.VerifyType(tok, token.TypeAccess)
	if claims == nil {
		return 0, ErrInvalidToken
	}
	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || id == 0 {
		return 0, ErrInvalidToken
	}
	return uint(id), nil
}

func (s *UserService) issue(ctx context.Context, user *models.User) (*AuthResult, error) {
	subject := strconv.FormatUint(uint64(user.ID), 10)
	access, err := s.tokens.IssueAccessToken(subject, user.Email, user.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to issue access token: %w", err)
	}
	refresh, err := s.tokens.IssueRefreshToken(subject)
	if err != nil {
		return nil, fmt.Errorf("failed to issue refresh token: %w", err)
	}
	s.reveal(ctx, user)
	return &AuthResult{
		User:         user,
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    TokenTypeBearer,
	}, nil
}

func (s *UserService) setMobile(ctx context.Context, user *models.User, mobile string) error {
	sealed, err := s.encryption.Seal(ctx, mobile)
	if err != nil {
		return fmt.Errorf("failed to encrypt mobile: %w", err)
	}
	user.MobileEncrypted = sealed
	if mobile == "" {
		user.Mobile = nil
	} else {
		user.Mobile = &mobile
	}
	return nil
}

// reveal fills the transient Mobile field from its encrypted column.
func (s *UserService) reveal(ctx context.Context, user *models.User) {
	if user.Mobile != nil || len(user.MobileEncrypted) == 0 {
		return
	}
	decryptCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	mobile, err := s.encryption.Open(decryptCtx, user.MobileEncrypted)
	if err != nil {
		s.logger.Warn("failed to decrypt mobile", zap.Uint("user_id", user.ID), zap.Error(err))
		return
	}
	if mobile != "" {
		user.Mobile = &mobile
	}
}

// mergeMisc copies incoming keys over base. With keepMode the existing
// register_mode survives.
func mergeMisc(base datatypes.JSONMap, incoming map[string]any, keepMode bool) datatypes.JSONMap {
	merged := datatypes.JSONMap{}
	for k, v := range base {
		merged[k] = v
	}
	existingMode, hasMode := merged[models.MiscRegisterMode]
	for k, v := range incoming {
		merged[k] = v
	}
	if keepMode && hasMode && existingMode != "" {
		merged[models.MiscRegisterMode] = existingMode
	}
	return merged
}
