package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/yungbote/medicore-backend/internal/platform/ctxutil"
	"github.com/yungbote/medicore-backend/internal/platform/logger"
)

var (
	ErrInvalidToken = errors.New("Invalid or expired token.")
	ErrInactiveUser = errors.New("Inactive user")
)

// JWTClaims is the access token body. Active defaults to true when the claim
// is absent.
type JWTClaims struct {
	Role   string `json:"role,omitempty"`
	Active *bool  `json:"active,omitempty"`
	jwt.RegisteredClaims
}

type AuthService interface {
	SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error)
	IssueToken(userID uuid.UUID, role Role, ttl time.Duration) (string, error)
}

type authService struct {
	log          *logger.Logger
	jwtSecretKey []byte
}

func NewAuthService(baseLog *logger.Logger, jwtSecretKey string) AuthService {
	return &authService{
		log:          baseLog.With("service", "AuthService"),
		jwtSecretKey: []byte(jwtSecretKey),
	}
}

func (as *authService) SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return ctx, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return as.jwtSecretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		as.log.Debug("Token rejected", "error", err)
		return ctx, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*JWTClaims)
	if !ok || !parsed.Valid {
		return ctx, ErrInvalidToken
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil || userID == uuid.Nil {
		return ctx, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	if claims.Active != nil && !*claims.Active {
		return ctx, ErrInactiveUser
	}

	role := strings.ToLower(strings.TrimSpace(claims.Role))
	if role == "" {
		role = string(RoleViewer)
	}
	rd := ctxutil.GetRequestData(ctx)
	if rd == nil {
		rd = &ctxutil.RequestData{}
	}
	next := *rd
	next.UserID = userID
	next.Role = role
	return ctxutil.WithRequestData(ctx, &next), nil
}

// IssueToken signs an HS256 access token. The API never mints tokens for
// clients; operators and tests use it.
func (as *authService) IssueToken(userID uuid.UUID, role Role, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = time.Hour
	}
	active := true
	now := time.Now()
	claims := JWTClaims{
		Role:   string(role),
		Active: &active,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(as.jwtSecretKey)
}
