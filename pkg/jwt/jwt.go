package jwt

import (
	"errors"

	"opd-token-allocation/config"

	"github.com/golang-jwt/jwt/v5"
)

// RoleStaff is the role claim carried by reception and clinical staff.
const RoleStaff = "staff"

var ErrInvalidToken = errors.New("invalid token")

// Claims are issued by the hospital identity provider. Only the subject and
// role are read here.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// JWTService verifies HS256 bearer tokens. This service never issues tokens.
type JWTService struct {
	config config.JWTConfig
}

func NewJWTService(cfg config.JWTConfig) *JWTService {
	return &JWTService{config: cfg}
}

// Enabled reports whether a secret is configured.
func (s *JWTService) Enabled() bool {
	return s.config.Secret != ""
}

func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return []byte(s.config.Secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
