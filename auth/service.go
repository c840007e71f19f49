package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"disputeflow/principal"
)

var (
	// ErrInvalidCredentials signals an unknown principal or wrong secret.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrWeakSecret signals the secret doesn't meet requirements.
	ErrWeakSecret = errors.New("auth: secret must be at least 8 characters")
	// ErrReservedPrincipal signals a principal owned by the service itself.
	ErrReservedPrincipal = errors.New("auth: principal is reserved")
)

// Service issues and verifies bearer tokens that prove a principal's
// authorization.
type Service struct {
	repo      Repository
	jwtSecret []byte
	tokenTTL  time.Duration
	reserved  map[principal.Principal]struct{}
	now       func() time.Time
}

// LoginResult bundles the token issued after a successful login.
type LoginResult struct {
	Token     string
	Principal principal.Principal
	ExpiresAt time.Time
}

// NewService creates a new authentication service. A non-positive ttl
// defaults to 24 hours.
func NewService(repo Repository, jwtSecret string, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{
		repo:      repo,
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  ttl,
		reserved:  make(map[principal.Principal]struct{}),
		now:       time.Now,
	}
}

// WithReserved refuses registration for the given service accounts.
func (s *Service) WithReserved(ps ...principal.Principal) *Service {
	for _, p := range ps {
		s.reserved[p] = struct{}{}
	}
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Register stores a hashed secret for a new principal.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Credential, error) {
	if len(req.Secret) < 8 {
		return nil, ErrWeakSecret
	}
	p, err := principal.Parse(req.Principal)
	if err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}
	if _, ok := s.reserved[p]; ok {
		return nil, ErrReservedPrincipal
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("auth: hash secret: %w", err)
	}

	cred, err := s.repo.CreateCredential(ctx, p, string(hash))
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

// Login verifies the secret and returns a signed token for the principal.
func (s *Service) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	p, err := principal.Parse(req.Principal)
	if err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}
	if _, ok := s.reserved[p]; ok {
		return LoginResult{}, ErrInvalidCredentials
	}
	cred, err := s.repo.GetCredential(ctx, p)
	if err != nil {
		if errors.Is(err, ErrCredentialNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(cred.SecretHash), []byte(req.Secret)); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	token, exp, err := s.generateToken(cred.Principal)
	if err != nil {
		return LoginResult{}, fmt.Errorf("auth: generate token: %w", err)
	}
	return LoginResult{Token: token, Principal: cred.Principal, ExpiresAt: exp}, nil
}

// VerifyToken validates a token and returns the principal it was issued to.
func (s *Service) VerifyToken(tokenString string) (principal.Principal, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return "", fmt.Errorf("auth: parse token: %w", err)
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		raw, ok := claims["principal"].(string)
		if !ok {
			return "", fmt.Errorf("auth: invalid principal in token")
		}
		p, err := principal.Parse(raw)
		if err != nil {
			return "", fmt.Errorf("auth: invalid principal in token: %w", err)
		}
		if _, ok := s.reserved[p]; ok {
			return "", ErrReservedPrincipal
		}
		return p, nil
	}
	return "", fmt.Errorf("auth: invalid token")
}

func (s *Service) generateToken(p principal.Principal) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(s.tokenTTL)
	claims := jwt.MapClaims{
		"principal": p.String(),
		"exp":       exp.Unix(),
		"iat":       now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}
