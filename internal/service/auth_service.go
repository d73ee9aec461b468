package service

import (
	"context"
	"errors"
	"fmt"

	"chatcore/internal/domain"
	"chatcore/internal/security"
)

// ErrUnauthenticated is returned for missing, invalid or orphaned tokens.
var ErrUnauthenticated = errors.New("unauthenticated")

// AuthService resolves access tokens to users. Tokens are minted by the
// identity provider; IssueToken exists for local development.
type AuthService struct {
	users  domain.UserRepository
	tokens *security.TokenService
}

func NewAuthService(users domain.UserRepository, tokens *security.TokenService) *AuthService {
	return &AuthService{
		users:  users,
		tokens: tokens,
	}
}

// Principal is an authenticated caller.
type Principal struct {
	User        *domain.User
	Permissions []string
}

// Can reports whether the caller holds the required permission.
func (p *Principal) Can(required domain.Permission) bool {
	return p != nil && domain.HasPermission(p.Permissions, required)
}

type TokenResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	User        *domain.User `json:"user"`
}

func (s *AuthService) Authenticate(ctx context.Context, token string) (*Principal, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	user, err := s.users.GetByID(ctx, claims.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: user %d not found", ErrUnauthenticated, claims.UserID)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &Principal{User: user, Permissions: claims.Permissions}, nil
}

func (s *AuthService) IssueToken(ctx context.Context, userID int64, perms []string) (*TokenResponse, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	token, err := s.tokens.CreateForUser(user.ID, perms)
	if err != nil {
		return nil, fmt.Errorf("create token: %w", err)
	}
	return &TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		User:        user,
	}, nil
}
