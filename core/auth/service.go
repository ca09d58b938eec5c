package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"simplicity-itsm/core/rbac"
	"simplicity-itsm/core/store"
	"simplicity-itsm/core/utils"
)

var (
	ErrBadCredentials = errors.New("invalid email or password")
	ErrEmailTaken     = errors.New("email already registered")
)

// Service handles first sign-up and subsequent logins. Sign-up bootstraps a
// fresh organization on the free plan with the caller as its admin.
type Service struct {
	orgs   store.OrgsStore
	users  store.UsersStore
	tokens *TokenManager
	logger *utils.Logger
}

func NewService(orgs store.OrgsStore, users store.UsersStore, tokens *TokenManager, logger *utils.Logger) *Service {
	return &Service{orgs: orgs, users: users, tokens: tokens, logger: logger}
}

type SignupParams struct {
	Email    string
	Name     string
	Password string
	OrgName  string
}

type Session struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      *store.User `json:"user"`
}

func (s *Service) Signup(ctx context.Context, p SignupParams) (*Session, error) {
	email := strings.ToLower(strings.TrimSpace(p.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, errors.New("a valid email is required")
	}
	existing, err := s.users.FindUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}
	hash, err := HashPassword(p.Password)
	if err != nil {
		return nil, err
	}

	orgName := strings.TrimSpace(p.OrgName)
	if orgName == "" {
		owner := strings.TrimSpace(p.Name)
		if owner == "" {
			owner = email
		}
		orgName = fmt.Sprintf("%s's Organization", owner)
	}
	org, err := s.orgs.CreateOrganization(ctx, orgName, "free")
	if err != nil {
		return nil, err
	}
	user, err := s.users.CreateUser(ctx, &store.User{
		OrgID:        org.ID,
		Email:        email,
		Name:         strings.TrimSpace(p.Name),
		Roles:        []string{rbac.RoleAdmin},
		PasswordHash: hash,
	})
	if err != nil {
		return nil, err
	}
	if s.logger != nil {
		s.logger.Printf("signup org=%s user=%s", org.ID, user.ID)
	}
	return s.issueSession(user)
}

func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.users.FindUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil || !CheckPassword(user.PasswordHash, password) {
		return nil, ErrBadCredentials
	}
	return s.issueSession(user)
}

func (s *Service) issueSession(user *store.User) (*Session, error) {
	token, expires, err := s.tokens.Issue(Identity{UserID: user.ID, OrgID: user.OrgID})
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: expires, User: user}, nil
}
