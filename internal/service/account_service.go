package service

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/weiawesome/wes-market/internal/audit"
	"github.com/weiawesome/wes-market/internal/domain"
	"github.com/weiawesome/wes-market/internal/repository"
	"github.com/weiawesome/wes-market/pkg/jwt"
	pkglog "github.com/weiawesome/wes-market/pkg/log"
)

// accountServiceImpl implements AccountService.
type accountServiceImpl struct {
	repo   repository.UserRepository
	tokens *jwt.Manager
}

// NewAccountService creates a new account service.
func NewAccountService(repo repository.UserRepository, tokens *jwt.Manager) AccountService {
	return &accountServiceImpl{
		repo:   repo,
		tokens: tokens,
	}
}

// Register registers a new user with the standard role.
func (s *accountServiceImpl) Register(ctx context.Context, req *domain.RegisterRequest) (*domain.AuthResponse, error) {
	if req == nil {
		return nil, ErrNilArgument
	}
	l := pkglog.Ctx(ctx)

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		l.Error().Err(err).Msg("failed to hash password")
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		Email:        req.Email,
		Username:     req.Username,
		PasswordHash: string(hashedPassword),
		Role:         domain.RoleStandard,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		switch {
		case errors.Is(err, repository.ErrEmailExists):
			return nil, ErrEmailExists
		case errors.Is(err, repository.ErrUsernameExists):
			return nil, ErrUsernameExists
		}
		l.Error().Err(err).Msg("failed to create user")
		return nil, fmt.Errorf("create user: %w", err)
	}

	resp, err := s.issue(user)
	if err != nil {
		l.Error().Err(err).Str(pkglog.FieldUserID, user.ID).Msg("failed to generate tokens after register")
		return nil, err
	}

	audit.Log(ctx, audit.ActionRegister, user.ID, "user registered")
	return resp, nil
}

// Login authenticates a user by email and password.
func (s *accountServiceImpl) Login(ctx context.Context, req *domain.LoginRequest) (*domain.AuthResponse, error) {
	if req == nil {
		return nil, ErrNilArgument
	}
	l := pkglog.Ctx(ctx)

	user, err := s.repo.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			audit.LogWithDetail(ctx, audit.ActionLoginFailed, "", req.Email, "login failed: user not found")
			return nil, ErrInvalidCredentials
		}
		l.Error().Err(err).Msg("failed to get user by email")
		return nil, fmt.Errorf("get user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		audit.LogWithDetail(ctx, audit.ActionLoginFailed, user.ID, req.Email, "login failed: wrong password")
		return nil, ErrInvalidCredentials
	}

	resp, err := s.issue(user)
	if err != nil {
		l.Error().Err(err).Str(pkglog.FieldUserID, user.ID).Msg("failed to generate tokens after login")
		return nil, err
	}

	audit.Log(ctx, audit.ActionLogin, user.ID, "user logged in")
	return resp, nil
}

// RefreshToken exchanges a refresh token for a new pair. The role is read
// again so a premium toggle shows up in the new access token.
func (s *accountServiceImpl) RefreshToken(ctx context.Context, req *domain.RefreshTokenRequest) (*domain.AuthResponse, error) {
	if req == nil {
		return nil, ErrNilArgument
	}
	l := pkglog.Ctx(ctx)

	claims, err := s.tokens.ValidateToken(req.RefreshToken)
	if err != nil || claims.Type != jwt.TokenTypeRefresh {
		l.Warn().Err(err).Msg("refresh token rejected")
		return nil, ErrInvalidToken
	}

	user, err := s.repo.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidToken
		}
		l.Error().Err(err).Str(pkglog.FieldUserID, claims.UserID).Msg("failed to get user for token refresh")
		return nil, fmt.Errorf("get user: %w", err)
	}

	resp, err := s.issue(user)
	if err != nil {
		return nil, err
	}

	audit.Log(ctx, audit.ActionRefreshToken, user.ID, "token refreshed")
	return resp, nil
}

// Logout revokes every token issued to the user so far.
func (s *accountServiceImpl) Logout(ctx context.Context, userID string) error {
	s.tokens.RevokeUserTokens(userID)
	audit.Log(ctx, audit.ActionLogout, userID, "user logged out")
	return nil
}

// GetUser retrieves a user by ID.
func (s *accountServiceImpl) GetUser(ctx context.Context, userID string) (*domain.UserResponse, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		l := pkglog.Ctx(ctx)
		l.Error().Err(err).Str(pkglog.FieldUserID, userID).Msg("failed to get user")
		return nil, fmt.Errorf("get user: %w", err)
	}

	resp := user.ToResponse()
	return &resp, nil
}

func (s *accountServiceImpl) issue(user *domain.User) (*domain.AuthResponse, error) {
	pair, err := s.tokens.GenerateTokenPair(user.ID, user.Email, user.Username, user.Roles())
	if err != nil {
		return nil, fmt.Errorf("generate tokens: %w", err)
	}
	return &domain.AuthResponse{
		User:         user.ToResponse(),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.AccessExpiresAt,
	}, nil
}

// Ensure interface is satisfied at compile time.
var _ AccountService = (*accountServiceImpl)(nil)
