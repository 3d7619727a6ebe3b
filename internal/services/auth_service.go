package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"

	"github.com/appfence/appfence/internal/logger"
	"github.com/appfence/appfence/internal/models"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

const tokenLifetime = 24 * time.Hour

// AuthService manages local operator accounts and their session tokens.
type AuthService struct {
	db     *gorm.DB
	secret []byte
}

// NewAuthService creates an auth service signing tokens with secret.
func NewAuthService(db *gorm.DB, secret string) *AuthService {
	return &AuthService{db: db, secret: []byte(secret)}
}

// EnsureAdmin bootstraps the "admin" operator with the given password if no
// operator exists yet. An empty password skips bootstrapping.
func (s *AuthService) EnsureAdmin(password string) error {
	if password == "" {
		return nil
	}

	var count int64
	if err := s.db.Model(&models.Operator{}).Count(&count).Error; err != nil {
		return fmt.Errorf("count operators: %w", err)
	}
	if count > 0 {
		return nil
	}

	admin := models.Operator{Username: "admin"}
	if err := admin.SetPassword(password); err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	if err := s.db.Create(&admin).Error; err != nil {
		return fmt.Errorf("create admin operator: %w", err)
	}

	logger.Log().Info("bootstrapped admin operator account")
	return nil
}

// Login verifies credentials and returns a signed session token.
func (s *AuthService) Login(username, password string) (string, error) {
	var operator models.Operator
	if err := s.db.Where("username = ?", username).First(&operator).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}
	if !operator.CheckPassword(password) {
		return "", ErrInvalidCredentials
	}

	now := time.Now()
	operator.LastLogin = &now
	s.db.Save(&operator)

	claims := jwt.MapClaims{
		"sub": operator.Username,
		"iat": now.Unix(),
		"exp": now.Add(tokenLifetime).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify validates a session token and returns the operator username.
func (s *AuthService) Verify(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", ErrInvalidToken
	}
	return sub, nil
}
