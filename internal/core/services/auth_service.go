package services

import (
	"errors"
	"time"

	"collabgate/internal/core/domain"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrUnauthorized = errors.New("unauthorized")
)

type AuthService interface {
	GenerateToken(userID domain.UserID, username string, role domain.UserRole) (string, error)
	ValidateToken(tokenString string) (*Claims, error)
	Verify(token string) (*domain.User, domain.UserRole, error)
}

type Claims struct {
	UserID      domain.UserID   `json:"user_id"`
	Username    string          `json:"username"`
	DisplayName string          `json:"display_name,omitempty"`
	Role        domain.UserRole `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type authService struct {
	jwtSecret      []byte
	accessTokenTTL time.Duration
}

func NewAuthService(jwtSecret string, accessTokenTTL time.Duration) AuthService {
	return &authService{
		jwtSecret:      []byte(jwtSecret),
		accessTokenTTL: accessTokenTTL,
	}
}

func (s *authService) GenerateToken(userID domain.UserID, username string, role domain.UserRole) (string, error) {
	claims := &Claims{
		UserID:   userID,
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.accessTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func (s *authService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.jwtSecret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, ErrInvalidToken
}

// Verify implements ports.TokenVerifier for the gateway handshake.
func (s *authService) Verify(tokenString string) (*domain.User, domain.UserRole, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return nil, "", err
	}

	displayName := claims.DisplayName
	if displayName == "" {
		displayName = claims.Username
	}

	role := claims.Role
	if role == "" {
		role = domain.RoleUser
	}

	return &domain.User{
		ID:          claims.UserID,
		Username:    claims.Username,
		DisplayName: displayName,
	}, role, nil
}
