// Package token 提供了用于生成和验证 JSON Web Tokens (JWT) 的功能。
package token

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token 类型
const (
	KindAccess  = "access"
	KindRefresh = "refresh"
)

// JWTManager 负责管理 JWT 的生成和验证。
type JWTManager struct {
	secretKey       []byte
	accessTokenDur  time.Duration
	refreshTokenDur time.Duration
}

// CustomClaims 定义了我们想要在 JWT 中存储的自定义数据。
type CustomClaims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	Kind     string `json:"kind"`
	jwt.RegisteredClaims
}

// NewJWTManager 创建一个新的 JWTManager 实例。
func NewJWTManager(secret string, accessTokenExpireHours, refreshTokenExpireDays int) *JWTManager {
	return &JWTManager{
		secretKey:       []byte(secret),
		accessTokenDur:  time.Hour * time.Duration(accessTokenExpireHours),
		refreshTokenDur: time.Duration(refreshTokenExpireDays) * 24 * time.Hour,
	}
}

func (m *JWTManager) sign(username, role, kind string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := CustomClaims{
		Username: username,
		Role:     role,
		Kind:     kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secretKey)
}

// GenerateToken 生成 access token。
func (m *JWTManager) GenerateToken(username, role string) (string, error) {
	return m.sign(username, role, KindAccess, m.accessTokenDur)
}

// GenerateRefreshToken 生成有效期更长的 refresh token。
func (m *JWTManager) GenerateRefreshToken(username, role string) (string, error) {
	return m.sign(username, role, KindRefresh, m.refreshTokenDur)
}

// VerifyToken 验证给定的 token 字符串并返回 claims。
func (m *JWTManager) VerifyToken(tokenString string) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secretKey, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*CustomClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

// GenerateRandomString generates a random hex string of a given length.
func GenerateRandomString(length int) string {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("fallback%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}
