package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/gema-quiz-api/internal/dto"
)

// ErrInvalidCredentials indicates the admin password did not match.
var ErrInvalidCredentials = errors.New("invalid credentials")

// AdminTokenIssuer is the JWT issuer used for admin tokens.
const AdminTokenIssuer = "gema-quiz-api"

// AdminAuthService implements the admin password gate.
type AdminAuthService interface {
	Login(ctx context.Context, payload dto.AdminLoginRequest) (dto.AdminLoginResponse, error)
}

type adminAuthService struct {
	passwordHash []byte
	secret       []byte
	ttl          time.Duration
	validator    *validator.Validate
	activity     ActivityRecorder
	logger       zerolog.Logger
	now          func() time.Time
}

// NewAdminAuthService constructs the admin auth service from a bcrypt hash and a signing secret.
func NewAdminAuthService(passwordHash, secret string, ttl time.Duration, validate *validator.Validate, activity ActivityRecorder, logger zerolog.Logger) AdminAuthService {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &adminAuthService{
		passwordHash: []byte(passwordHash),
		secret:       []byte(secret),
		ttl:          ttl,
		validator:    validate,
		activity:     activity,
		logger:       logger.With().Str("component", "admin_auth_service").Logger(),
		now:          time.Now,
	}
}

func (s *adminAuthService) Login(ctx context.Context, payload dto.AdminLoginRequest) (dto.AdminLoginResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AdminLoginResponse{}, err
	}

	if err := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(payload.Password)); err != nil {
		s.logger.Warn().Msg("admin login rejected")
		return dto.AdminLoginResponse{}, ErrInvalidCredentials
	}

	now := s.now().UTC()
	expiresAt := now.Add(s.ttl)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  AdminActor.Subject,
		"iss":  AdminTokenIssuer,
		"iat":  now.Unix(),
		"exp":  expiresAt.Unix(),
		"role": AdminActor.Role,
	}).SignedString(s.secret)
	if err != nil {
		return dto.AdminLoginResponse{}, fmt.Errorf("sign admin token: %w", err)
	}

	recordActivity(ctx, s.activity, s.logger, AdminActor, "admin.login", "admin", nil, nil)

	return dto.AdminLoginResponse{Token: token, ExpiresAt: expiresAt}, nil
}
