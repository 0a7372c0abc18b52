package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	domain "github.com/doug-pr/API-Pizzaria/internal/domain"
	"github.com/doug-pr/API-Pizzaria/internal/platform/auth"
	"github.com/doug-pr/API-Pizzaria/internal/platform/textutil"
	"github.com/doug-pr/API-Pizzaria/internal/repositories"
)

const maxNameLength = 120

// TokenIssuer issues and validates the service's signed tokens.
type TokenIssuer interface {
	IssuePair(userID int64) (auth.TokenPair, error)
	IssueAccess(userID int64) (string, time.Time, error)
	ParseRefresh(token string) (auth.Claims, error)
}

// CredentialHasher hashes and verifies passwords.
type CredentialHasher interface {
	Hash(plaintext string) (string, error)
	Verify(hash, plaintext string) bool
}

// AuthServiceDeps bundles collaborators required to construct the auth service.
type AuthServiceDeps struct {
	Users      repositories.UserRepository
	Counters   repositories.CounterRepository
	UnitOfWork repositories.UnitOfWork
	Tokens     TokenIssuer
	Hasher     CredentialHasher
	// BootstrapAdminEmail marks the account registered with this exact email as admin.
	BootstrapAdminEmail string
	Clock               func() time.Time
	Logger              func(ctx context.Context, event string, fields map[string]any)
}

type authService struct {
	users      repositories.UserRepository
	counters   repositories.CounterRepository
	unitOfWork repositories.UnitOfWork
	tokens     TokenIssuer
	hasher     CredentialHasher
	adminEmail string
	clock      func() time.Time
	logger     func(context.Context, string, map[string]any)
}

var _ AuthService = (*authService)(nil)

// NewAuthService constructs the identity store and token facade.
func NewAuthService(deps AuthServiceDeps) (AuthService, error) {
	if deps.Users == nil {
		return nil, errors.New("auth service: user repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("auth service: counter repository is required")
	}
	if deps.Tokens == nil {
		return nil, errors.New("auth service: token issuer is required")
	}

	hasher := deps.Hasher
	if hasher == nil {
		hasher = auth.NewPasswordHasher(0)
	}
	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &authService{
		users:      deps.Users,
		counters:   deps.Counters,
		unitOfWork: unit,
		tokens:     deps.Tokens,
		hasher:     hasher,
		adminEmail: strings.TrimSpace(deps.BootstrapAdminEmail),
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (s *authService) Register(ctx context.Context, cmd RegisterCommand) (User, error) {
	name := textutil.SanitizeLabel(cmd.Name, maxNameLength)
	email := strings.TrimSpace(cmd.Email)
	if name == "" {
		return User{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return User{}, fmt.Errorf("%w: email is invalid", ErrInvalidInput)
	}
	if cmd.Password == "" {
		return User{}, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}

	hash, err := s.hasher.Hash(cmd.Password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return User{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return User{}, err
	}

	user := User{
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Active:       true,
		Admin:        s.adminEmail != "" && email == s.adminEmail,
		CreatedAt:    s.clock(),
	}
	err = s.unitOfWork.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.users.FindByEmail(ctx, email); err == nil {
			return fmt.Errorf("%w: %s", ErrDuplicateEmail, email)
		} else if !isRepositoryNotFound(err) {
			return mapRepositoryError(err, nil)
		}
		id, err := s.counters.Next(ctx, repositories.CounterUsers)
		if err != nil {
			return mapRepositoryError(err, nil)
		}
		user.ID = id
		return s.users.Insert(ctx, user)
	})
	if err != nil {
		if isRepositoryConflict(err) {
			return User{}, fmt.Errorf("%w: %s", ErrDuplicateEmail, email)
		}
		return User{}, mapRepositoryError(err, nil)
	}

	s.logger(ctx, "auth.registered", map[string]any{"userID": user.ID, "admin": user.Admin})
	return user, nil
}

func (s *authService) Login(ctx context.Context, cmd LoginCommand) (auth.TokenPair, error) {
	user, err := s.authenticate(ctx, cmd)
	if err != nil {
		return auth.TokenPair{}, err
	}
	pair, err := s.tokens.IssuePair(user.ID)
	if err != nil {
		return auth.TokenPair{}, fmt.Errorf("auth service: issue tokens: %w", err)
	}
	s.logger(ctx, "auth.login", map[string]any{"userID": user.ID})
	return pair, nil
}

func (s *authService) LoginAccessOnly(ctx context.Context, cmd LoginCommand) (AccessToken, error) {
	user, err := s.authenticate(ctx, cmd)
	if err != nil {
		return AccessToken{}, err
	}
	s.logger(ctx, "auth.login", map[string]any{"userID": user.ID, "form": true})
	return s.issueAccess(user.ID)
}

func (s *authService) Refresh(ctx context.Context, refreshToken string) (AccessToken, error) {
	claims, err := s.tokens.ParseRefresh(strings.TrimSpace(refreshToken))
	if errors.Is(err, auth.ErrExpiredToken) {
		return AccessToken{}, fmt.Errorf("%w: %v", ErrTokenExpired, err)
	}
	if err != nil {
		return AccessToken{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	userID, err := claims.UserID()
	if err != nil {
		return AccessToken{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if isRepositoryNotFound(err) {
			return AccessToken{}, fmt.Errorf("%w: unknown subject", ErrUnauthenticated)
		}
		return AccessToken{}, mapRepositoryError(err, nil)
	}
	if !user.Active {
		return AccessToken{}, fmt.Errorf("%w: user %d", ErrUserInactive, user.ID)
	}
	return s.issueAccess(user.ID)
}

// LoadPrincipal resolves the current role and active flag of a token subject.
func (s *authService) LoadPrincipal(ctx context.Context, userID int64) (Principal, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if isRepositoryNotFound(err) {
			return Principal{}, fmt.Errorf("%w: user %d", auth.ErrPrincipalNotFound, userID)
		}
		return Principal{}, mapRepositoryError(err, nil)
	}
	return principalFromUser(user), nil
}

// authenticate reports unknown emails and wrong passwords identically. The active flag is
// only revealed once the credentials check out.
func (s *authService) authenticate(ctx context.Context, cmd LoginCommand) (domain.User, error) {
	email := strings.TrimSpace(cmd.Email)
	if email == "" || cmd.Password == "" {
		return domain.User{}, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if isRepositoryNotFound(err) {
			return domain.User{}, ErrInvalidCredentials
		}
		return domain.User{}, mapRepositoryError(err, nil)
	}
	if !s.hasher.Verify(user.PasswordHash, cmd.Password) {
		return domain.User{}, ErrInvalidCredentials
	}
	if !user.Active {
		return domain.User{}, fmt.Errorf("%w: user %d", ErrUserInactive, user.ID)
	}
	return user, nil
}

func (s *authService) issueAccess(userID int64) (AccessToken, error) {
	token, expires, err := s.tokens.IssueAccess(userID)
	if err != nil {
		return AccessToken{}, fmt.Errorf("auth service: issue access token: %w", err)
	}
	return AccessToken{Token: token, ExpiresAt: expires}, nil
}

func principalFromUser(user domain.User) Principal {
	return Principal{ID: user.ID, Email: user.Email, Admin: user.Admin, Active: user.Active}
}

func isRepositoryNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
