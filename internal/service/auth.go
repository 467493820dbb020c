package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/compopedia/compopedia/internal/apperror"
	"github.com/compopedia/compopedia/internal/auth"
	"github.com/compopedia/compopedia/internal/model"
	"github.com/compopedia/compopedia/internal/repository"
)

// MinNameLength is the shortest accepted display name.
const MinNameLength = 2

// AuthService owns account rules: registration, password login, GitHub
// login and profile changes. It never touches HTTP; handlers turn the
// returned token into a cookie.
//
//	AuthHandler (HTTP) → AuthService (rules) → UserRepository (DB)
//	                   ↘ TokenService (JWT), PasswordService (bcrypt)
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
	}
}

// AuthResult bundles the user and a freshly signed session token.
type AuthResult struct {
	User  *model.User
	Token string
}

type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ProfileInput struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// errBadCredentials is shared by every login failure so responses do not
// reveal whether the email exists.
var errBadCredentials = apperror.Unauthenticated("invalid email or password")

// Register creates a password account. Emails are stored lower-cased.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	name, email, err := validateIdentity(in.Name, in.Email)
	if err != nil {
		return nil, err
	}
	if err := validatePassword("password", in.Password); err != nil {
		return nil, err
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: hashing password: %w", err)
	}

	user := &model.User{Name: name, Email: email, PasswordHash: hash}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, apperror.Duplicate("email", "email is already in use")
		}
		return nil, fmt.Errorf("service/auth: creating user: %w", err)
	}

	s.logger.Info("user registered", slog.String("userID", user.ID))
	return user, nil
}

// Login checks email and password and issues a session token.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	user, err := s.users.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, errBadCredentials
		}
		return nil, fmt.Errorf("service/auth: looking up user: %w", err)
	}

	// GitHub-only accounts have no password to log in with.
	if user.PasswordHash == "" {
		return nil, errBadCredentials
	}
	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, errBadCredentials
		}
		return nil, fmt.Errorf("service/auth: verifying password: %w", err)
	}

	return s.issue(user)
}

// UpdateProfile changes name and email and optionally the password. A new
// password needs the current one, except for accounts that never had a
// password (GitHub sign-ups).
func (s *AuthService) UpdateProfile(ctx context.Context, userID string, in ProfileInput) (*model.User, error) {
	name, email, err := validateIdentity(in.Name, in.Email)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthenticated("account no longer exists")
		}
		return nil, fmt.Errorf("service/auth: loading user %s: %w", userID, err)
	}

	if in.NewPassword != "" {
		if err := validatePassword("newPassword", in.NewPassword); err != nil {
			return nil, err
		}
		if user.PasswordHash != "" {
			if in.CurrentPassword == "" {
				return nil, apperror.ValidationFailed("currentPassword", "current password is required to set a new one")
			}
			if err := s.passwords.Verify(user.PasswordHash, in.CurrentPassword); err != nil {
				if errors.Is(err, auth.ErrPasswordMismatch) {
					return nil, apperror.ValidationFailed("currentPassword", "current password is incorrect")
				}
				return nil, fmt.Errorf("service/auth: verifying password: %w", err)
			}
		}
		hash, err := s.passwords.Hash(in.NewPassword)
		if err != nil {
			return nil, fmt.Errorf("service/auth: hashing password: %w", err)
		}
		user.PasswordHash = hash
	}

	user.Name = name
	user.Email = email
	if err := s.users.UpdateUser(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, apperror.Duplicate("email", "email is already in use")
		}
		return nil, fmt.Errorf("service/auth: updating user %s: %w", userID, err)
	}

	return user, nil
}

// LoginOrRegisterGitHub signs in a GitHub user. The account is found by
// GitHub id, then by email (linking the GitHub id to it), and is created
// otherwise. GitHub profiles without any email cannot be linked or created.
func (s *AuthService) LoginOrRegisterGitHub(ctx context.Context, gh *auth.GitHubUser) (*AuthResult, error) {
	if gh == nil {
		return nil, fmt.Errorf("service/auth: GitHub user must not be nil")
	}

	user, err := s.users.GetUserByGitHubID(ctx, gh.ID)
	switch {
	case err == nil:
		return s.issue(user)
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, fmt.Errorf("service/auth: looking up GitHub user %d: %w", gh.ID, err)
	}

	email := normalizeEmail(gh.Email)
	if email == "" {
		return nil, apperror.ValidationFailed("email", "your GitHub account has no verified email address")
	}

	ghID := gh.ID
	user, err = s.users.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		user.GitHubID = &ghID
		if err := s.users.UpdateUser(ctx, user); err != nil {
			return nil, fmt.Errorf("service/auth: linking GitHub account to %s: %w", user.ID, err)
		}
		s.logger.Info("GitHub account linked", slog.String("userID", user.ID), slog.Int64("githubID", ghID))
	case errors.Is(err, apperror.ErrNotFound):
		user = &model.User{Name: gh.DisplayName(), Email: email, GitHubID: &ghID}
		if err := s.users.CreateUser(ctx, user); err != nil {
			return nil, fmt.Errorf("service/auth: creating GitHub user: %w", err)
		}
		s.logger.Info("user registered via GitHub", slog.String("userID", user.ID), slog.Int64("githubID", ghID))
	default:
		return nil, fmt.Errorf("service/auth: looking up user by email: %w", err)
	}

	return s.issue(user)
}

// GetUserByID returns the account behind a session. A session whose user
// was removed is treated as unauthenticated.
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthenticated("account no longer exists")
		}
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", id, err)
	}
	return user, nil
}

// SessionTTL is the lifetime of issued tokens.
func (s *AuthService) SessionTTL() int {
	return int(s.tokens.TTL().Seconds())
}

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}
	return &AuthResult{User: user, Token: token}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateIdentity(name, email string) (string, string, error) {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) < MinNameLength {
		return "", "", apperror.ValidationFailed("name", fmt.Sprintf("name must be at least %d characters", MinNameLength))
	}

	email = normalizeEmail(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", "", apperror.ValidationFailed("email", "a valid email address is required")
	}
	return name, email, nil
}

func validatePassword(field, password string) error {
	if len(password) < auth.MinPasswordLength {
		return apperror.ValidationFailed(field, fmt.Sprintf("password must be at least %d characters", auth.MinPasswordLength))
	}
	if len(password) > auth.MaxPasswordLength {
		return apperror.ValidationFailed(field, fmt.Sprintf("password must be at most %d bytes", auth.MaxPasswordLength))
	}
	return nil
}
