package service

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"attach_server/server/attachments/domain"
	"attach_server/server/attachments/repository"
)

// PrincipalService stands in for a host framework's user and authorization
// system: principals with bcrypt-hashed passwords and permission-string
// grants.
type PrincipalService struct {
	repo *repository.PrincipalRepository
}

func NewPrincipalService(repo *repository.PrincipalRepository) *PrincipalService {
	return &PrincipalService{repo: repo}
}

func (s *PrincipalService) Create(ctx context.Context, username, password string, perms []string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", errors.New("username is required")
	}
	if password == "" {
		return "", errors.New("password is required")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return s.repo.Create(ctx, username, string(hashed), perms)
}

func (s *PrincipalService) Authenticate(ctx context.Context, username, password string) (domain.Principal, error) {
	principal, passwordHash, err := s.repo.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Principal{}, errors.New("invalid credentials")
		}
		return domain.Principal{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)); err != nil {
		return domain.Principal{}, errors.New("invalid credentials")
	}
	return principal, nil
}

// EnsurePrincipal creates the named principal if absent, or refreshes its
// grants if present. Used for bootstrap accounts configured by env.
func (s *PrincipalService) EnsurePrincipal(ctx context.Context, username, password string, perms []string) error {
	_, _, err := s.repo.GetByUsername(ctx, username)
	if errors.Is(err, repository.ErrNotFound) {
		_, err = s.Create(ctx, username, password, perms)
		return err
	}
	if err != nil {
		return err
	}
	return s.repo.UpdatePerms(ctx, username, perms)
}
