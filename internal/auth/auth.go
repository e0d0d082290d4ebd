// Package auth implements magic-link authentication: login links are
// mailed to users, verified links mint a JWT, and the JWT identifies
// the user on subsequent requests.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/thavelick/insight-magician-sub000/pkg/models"
)

var (
	ErrAuthDisabled = errors.New("auth disabled")
	ErrInvalidToken = errors.New("invalid token")
	ErrInvalidEmail = errors.New("invalid email address")
)

// Store persists users and single-use login tokens.
type Store interface {
	CreateLoginToken(ctx context.Context, token, email string, expiresAt time.Time) error
	ConsumeLoginToken(ctx context.Context, token string, now time.Time) (string, error)
	UpsertUser(ctx context.Context, email string, now time.Time) (*models.User, error)
}

// Config configures the auth service.
type Config struct {
	Enabled         bool
	JWTSecret       string
	TokenExpiry     time.Duration
	MagicLinkExpiry time.Duration
	// BaseURL is the externally visible origin used to compose login
	// links, e.g. https://insights.example.com.
	BaseURL string
	Store   Store
	Sender  Sender
}

// Service issues login links and validates the JWTs they produce.
type Service struct {
	jwt             *JWTService
	store           Store
	sender          Sender
	baseURL         string
	magicLinkExpiry time.Duration

	now func() time.Time
}

// NewService constructs an auth service. A disabled configuration
// returns a service whose Enabled reports false; callers then skip
// authentication entirely.
func NewService(cfg Config) *Service {
	s := &Service{
		store:           cfg.Store,
		sender:          cfg.Sender,
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		magicLinkExpiry: cfg.MagicLinkExpiry,
		now:             time.Now,
	}
	if cfg.Enabled && strings.TrimSpace(cfg.JWTSecret) != "" {
		s.jwt = NewJWTService(cfg.JWTSecret, cfg.TokenExpiry)
	}
	if s.magicLinkExpiry <= 0 {
		s.magicLinkExpiry = 15 * time.Minute
	}
	if s.sender == nil {
		s.sender = &LogSender{}
	}
	return s
}

// Enabled reports whether auth checks should run.
func (s *Service) Enabled() bool {
	return s != nil && s.jwt != nil
}

// GenerateJWT issues a signed token for the given user.
func (s *Service) GenerateJWT(user *models.User) (string, error) {
	if !s.Enabled() {
		return "", ErrAuthDisabled
	}
	return s.jwt.Generate(user)
}

// ValidateJWT validates a JWT and returns the user embedded in it.
func (s *Service) ValidateJWT(token string) (*models.User, error) {
	if !s.Enabled() {
		return nil, ErrAuthDisabled
	}
	return s.jwt.Validate(token)
}

// RequestLink creates a single-use login token for email and hands the
// resulting link to the configured sender.
func (s *Service) RequestLink(ctx context.Context, email string) error {
	if !s.Enabled() {
		return ErrAuthDisabled
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil || addr.Address != strings.TrimSpace(email) {
		return ErrInvalidEmail
	}

	token := uuid.NewString()
	expiresAt := s.now().Add(s.magicLinkExpiry)
	if err := s.store.CreateLoginToken(ctx, token, addr.Address, expiresAt); err != nil {
		return fmt.Errorf("failed to create login token: %w", err)
	}

	link := fmt.Sprintf("%s/auth/verify?token=%s", s.baseURL, url.QueryEscape(token))
	if err := s.sender.SendLoginLink(ctx, addr.Address, link); err != nil {
		return fmt.Errorf("failed to send login link: %w", err)
	}
	return nil
}

// VerifyLink consumes a login token, upserting the user it belongs to,
// and returns the user together with a freshly signed JWT. Unknown,
// expired, and already-used tokens all map to ErrInvalidToken.
func (s *Service) VerifyLink(ctx context.Context, token string) (*models.User, string, error) {
	if !s.Enabled() {
		return nil, "", ErrAuthDisabled
	}
	if strings.TrimSpace(token) == "" {
		return nil, "", ErrInvalidToken
	}

	email, err := s.store.ConsumeLoginToken(ctx, token, s.now())
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	user, err := s.store.UpsertUser(ctx, email, s.now())
	if err != nil {
		return nil, "", fmt.Errorf("failed to upsert user: %w", err)
	}
	signed, err := s.jwt.Generate(user)
	if err != nil {
		return nil, "", fmt.Errorf("failed to sign token: %w", err)
	}
	return user, signed, nil
}
