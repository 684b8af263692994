// Package auth подписывает и проверяет токены операторов для
// административных команд отладочного API.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "chunk-engine"

var (
	// ErrInvalidToken токен не прошёл проверку подписи или срока
	ErrInvalidToken = errors.New("auth: недействительный токен")
	// ErrNotAdmin токен действителен, но не даёт права администратора
	ErrNotAdmin = errors.New("auth: нет прав администратора")
	// ErrShortSecret ключ подписи короче 16 байт
	ErrShortSecret = errors.New("auth: ключ подписи слишком короткий")
)

// Claims represents JWT claims
type Claims struct {
	Operator string `json:"operator"`
	IsAdmin  bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

// Signer выпускает и проверяет токены HS256 одним ключом
type Signer struct {
	secret []byte
	now    func() time.Time
}

// NewSigner создаёт подписчика с ключом secret
func NewSigner(secret string) (*Signer, error) {
	if len(secret) < 16 {
		return nil, ErrShortSecret
	}
	return &Signer{secret: []byte(secret), now: time.Now}, nil
}

// Generate выпускает токен оператора со сроком жизни ttl
func (s *Signer) Generate(operator string, admin bool, ttl time.Duration) (string, error) {
	now := s.now()
	claims := &Claims{
		Operator: operator,
		IsAdmin:  admin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   operator,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Validate проверяет подпись, срок и издателя токена
func (s *Signer) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		// Verify signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

// RequireAdmin проверяет токен и право администратора
func (s *Signer) RequireAdmin(tokenString string) (*Claims, error) {
	claims, err := s.Validate(tokenString)
	if err != nil {
		return nil, err
	}
	if !claims.IsAdmin {
		return nil, ErrNotAdmin
	}
	return claims, nil
}

// GenerateSecureSecret generates a new secure secret key
func GenerateSecureSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return base64.StdEncoding.EncodeToString(b)
}
