package services

import (
	"context"
	"strings"

	"github.com/sweetshop/apiserver/types"
)

// UserService encapsulates account lookups and admin management.
type UserService struct {
	repo UserRepository
}

func NewUserService(repo UserRepository) *UserService {
	return &UserService{repo: repo}
}

func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	if id < 1 {
		return types.User{}, ErrInvalidInput
	}
	return s.repo.GetByID(ctx, id)
}

func (s *UserService) GetByUsername(ctx context.Context, username string) (types.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return types.User{}, ErrInvalidInput
	}
	return s.repo.GetByUsername(ctx, username)
}

// SetAdmin grants or revokes the admin flag. Tokens already issued keep the
// flag they were minted with until they expire.
func (s *UserService) SetAdmin(ctx context.Context, username string, isAdmin bool) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return ErrInvalidInput
	}
	return s.repo.SetAdmin(ctx, username, isAdmin)
}
