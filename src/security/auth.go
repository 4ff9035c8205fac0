package security

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/muni-world/muni-fullstack/backend/src/config"
	"github.com/muni-world/muni-fullstack/backend/src/league"
	"golang.org/x/crypto/bcrypt"
)

const bcryptCost = 12

type AuthService struct {
	JWTSecret string
}

func NewAuthService(secret string) *AuthService {
	return &AuthService{
		JWTSecret: secret,
	}
}

func (a *AuthService) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (a *AuthService) CompareHashAndPassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

// GenerateToken issues an access token for the user. The caller's tier is
// embedded as a custom claim; it is provisioned server-side and re-stamped on
// every issuance, so a tier change takes effect as soon as a new token is
// minted.
func (a *AuthService) GenerateToken(userID string, tier string) (string, error) {
	if config.Cfg == nil {
		return "", errors.New("configuration not loaded, cannot determine token expiry")
	}
	claims := jwt.MapClaims{
		"sub":  userID,
		"tier": tier,
		"exp":  time.Now().Add(config.Cfg.AccessTokenExpiry).Unix(),
		"iat":  time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(a.JWTSecret))
}

func (a *AuthService) GenerateRefreshToken() (string, error) {
	b := make([]byte, 32)
	_, err := rand.Read(b)
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// ValidateToken verifies the signature and expiry of an access token and
// returns the identity claims it carries. The tier attribute is passed through
// untouched; resolving it to an access tier (including fail-closed handling of
// unknown values) is league.ResolveTier's job.
func (a *AuthService) ValidateToken(tokenString string) (*league.Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(a.JWTSecret), nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		sub, ok := claims["sub"].(string)
		if !ok {
			return nil, errors.New("invalid token: 'sub' claim missing or not a string")
		}
		tier, _ := claims["tier"].(string) // absent or malformed tier resolves to guest downstream
		return &league.Claims{UserID: sub, TierAttribute: tier}, nil
	}

	return nil, errors.New("invalid token")
}
