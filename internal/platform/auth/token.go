package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/oklog/ulid/v2"
)

const (
	// DefaultAccessTTL is the lifetime of access tokens when not configured.
	DefaultAccessTTL = 30 * time.Minute
	// DefaultRefreshTTL is the lifetime of refresh tokens when not configured.
	DefaultRefreshTTL = 7 * 24 * time.Hour
	// AlgorithmHS256 is the only signing algorithm supported.
	AlgorithmHS256 = "HS256"
)

// TokenKind distinguishes access and refresh tokens.
type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)

var (
	// ErrInvalidToken signals a malformed, tampered, or wrong-kind token.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrExpiredToken signals a well-formed token past its expiry.
	ErrExpiredToken = errors.New("auth: token expired")
	// ErrSigningKeyMissing is returned when the service is built without a key.
	ErrSigningKeyMissing = errors.New("auth: signing key missing")
)

// Claims is the JWT payload issued by TokenService.
type Claims struct {
	Kind TokenKind `json:"typ"`
	jwt.RegisteredClaims
}

// UserID returns the numeric subject of the token.
func (c Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidToken
	}
	return id, nil
}

// TokenPair carries freshly issued access and refresh tokens.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// TokenService issues and validates HMAC-SHA256 signed tokens.
type TokenService struct {
	key        []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	clock      func() time.Time
	newID      func() string
}

// TokenOption customises TokenService.
type TokenOption func(*TokenService)

// WithAccessTTL overrides the access token lifetime.
func WithAccessTTL(d time.Duration) TokenOption {
	return func(s *TokenService) {
		if d > 0 {
			s.accessTTL = d
		}
	}
}

// WithRefreshTTL overrides the refresh token lifetime.
func WithRefreshTTL(d time.Duration) TokenOption {
	return func(s *TokenService) {
		if d > 0 {
			s.refreshTTL = d
		}
	}
}

// WithIssuer sets the iss claim; parsing then requires a matching issuer.
func WithIssuer(issuer string) TokenOption {
	return func(s *TokenService) {
		s.issuer = strings.TrimSpace(issuer)
	}
}

// WithTokenClock overrides the clock used for iat/exp.
func WithTokenClock(clock func() time.Time) TokenOption {
	return func(s *TokenService) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewTokenService constructs a TokenService signing with key.
func NewTokenService(key []byte, opts ...TokenOption) (*TokenService, error) {
	if len(key) == 0 {
		return nil, ErrSigningKeyMissing
	}
	s := &TokenService{
		key:        append([]byte(nil), key...),
		accessTTL:  DefaultAccessTTL,
		refreshTTL: DefaultRefreshTTL,
		clock:      time.Now,
		newID:      func() string { return ulid.Make().String() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// IssuePair issues an access token and a refresh token for userID.
func (s *TokenService) IssuePair(userID int64) (TokenPair, error) {
	access, accessExp, err := s.issue(userID, TokenKindAccess, s.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExp, err := s.issue(userID, TokenKindRefresh, s.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// IssueAccess issues only an access token.
func (s *TokenService) IssueAccess(userID int64) (string, time.Time, error) {
	return s.issue(userID, TokenKindAccess, s.accessTTL)
}

// ParseAccess validates an access token.
func (s *TokenService) ParseAccess(token string) (Claims, error) {
	return s.parse(token, TokenKindAccess)
}

// ParseRefresh validates a refresh token.
func (s *TokenService) ParseRefresh(token string) (Claims, error) {
	return s.parse(token, TokenKindRefresh)
}

func (s *TokenService) issue(userID int64, kind TokenKind, ttl time.Duration) (string, time.Time, error) {
	if userID <= 0 {
		return "", time.Time{}, fmt.Errorf("auth: issue %s token: invalid subject", kind)
	}
	now := s.clock().UTC()
	exp := now.Add(ttl)
	claims := Claims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        s.newID(),
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign %s token: %w", kind, err)
	}
	return signed, exp, nil
}

func (s *TokenService) parse(token string, kind TokenKind) (Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, ErrInvalidToken
	}

	var claims Claims
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	_, err := parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.key, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrExpiredToken
		}
		return Claims{}, ErrInvalidToken
	}
	if claims.Kind != kind {
		return Claims{}, ErrInvalidToken
	}
	if s.issuer != "" && !claims.VerifyIssuer(s.issuer, true) {
		return Claims{}, ErrInvalidToken
	}
	if claims.ExpiresAt == nil {
		return Claims{}, ErrInvalidToken
	}
	if _, err := claims.UserID(); err != nil {
		return Claims{}, err
	}
	return claims, nil
}
