package httpapi

import (
	"context"
	"errors"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"dukaanpos/backend/internal/domain"
	"dukaanpos/backend/internal/service"
	"dukaanpos/backend/internal/store"
)

type AuthManager struct {
	secret   []byte
	tokenTTL time.Duration
	users    UserSource
}

// UserSource is the slice of the repository the auth layer needs.
type UserSource interface {
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
}

type posClaims struct {
	jwtlib.RegisteredClaims
	Username string `json:"username"`
	Role     string `json:"role"`
	StoreID  string `json:"storeId,omitempty"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, users UserSource) *AuthManager {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &AuthManager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		users:    users,
	}
}

func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (*domain.LoginResponse, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		return nil, service.ErrBadCredentials
	}

	u, err := a.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, service.ErrBadCredentials
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil {
		return nil, service.ErrBadCredentials
	}

	token, err := a.sign(u)
	if err != nil {
		return nil, err
	}
	return &domain.LoginResponse{Token: token, User: u}, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &posClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	if !domain.ValidRole(claims.Role) {
		return domain.Actor{}, errors.New("invalid token role")
	}
	return domain.Actor{
		UserID:   sub,
		Username: claims.Username,
		Role:     claims.Role,
		StoreID:  claims.StoreID,
	}, nil
}

func (a *AuthManager) sign(u *domain.User) (string, error) {
	now := time.Now().UTC()
	claims := posClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(a.tokenTTL)),
			Issuer:    "dukaanpos",
		},
		Username: u.Username,
		Role:     u.Role,
		StoreID:  u.StoreID,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}
