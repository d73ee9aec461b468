package service

import (
	"context"
	"strings"

	"chatcore/internal/domain"
)

// UserService is the identity lookup used for display names.
type UserService struct {
	users domain.UserRepository
}

func NewUserService(users domain.UserRepository) *UserService {
	return &UserService{users: users}
}

func (s *UserService) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	return s.users.GetByID(ctx, id)
}

type CreateUserInput struct {
	Email     string
	Name      string
	AvatarURL *string
}

// Create registers an identity record. Credentials live outside this service.
func (s *UserService) Create(ctx context.Context, in CreateUserInput) (*domain.User, error) {
	email := strings.TrimSpace(in.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, domain.Validation("a valid email is required")
	}
	u := &domain.User{
		Email:     strings.ToLower(email),
		Name:      strings.TrimSpace(in.Name),
		AvatarURL: in.AvatarURL,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}
