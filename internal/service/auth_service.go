package service

import (
	"convai-builder-go/internal/config"
	"convai-builder-go/pkg/hash"
	"convai-builder-go/pkg/token"
	"errors"
)

// RoleAdmin 是管理员角色。
const RoleAdmin = "ADMIN"

// AuthService 处理管理员登录与 token 刷新。
type AuthService interface {
	Login(username, password string) (accessToken, refreshToken string, err error)
	RefreshToken(refreshTokenString string) (newAccessToken, newRefreshToken string, err error)
}

type authService struct {
	admin      config.AdminConfig
	jwtManager *token.JWTManager
}

// NewAuthService 创建一个新的 AuthService 实例。
func NewAuthService(admin config.AdminConfig, jwtManager *token.JWTManager) AuthService {
	return &authService{admin: admin, jwtManager: jwtManager}
}

func (s *authService) issue(username string) (string, string, error) {
	accessToken, err := s.jwtManager.GenerateToken(username, RoleAdmin)
	if err != nil {
		return "", "", err
	}
	refreshToken, err := s.jwtManager.GenerateRefreshToken(username, RoleAdmin)
	if err != nil {
		return "", "", err
	}
	return accessToken, refreshToken, nil
}

// Login 校验配置中的管理员账号，未配置密码哈希时拒绝所有登录。
func (s *authService) Login(username, password string) (string, string, error) {
	if s.admin.PasswordHash == "" || username != s.admin.Username {
		return "", "", ErrInvalidCredentials
	}
	if !hash.CheckPasswordHash(password, s.admin.PasswordHash) {
		return "", "", ErrInvalidCredentials
	}
	return s.issue(username)
}

func (s *authService) RefreshToken(refreshTokenString string) (string, string, error) {
	claims, err := s.jwtManager.VerifyToken(refreshTokenString)
	if err != nil {
		return "", "", err
	}
	if claims.Kind != token.KindRefresh {
		return "", "", errors.New("not a refresh token")
	}
	if claims.Username != s.admin.Username {
		return "", "", ErrInvalidCredentials
	}
	return s.issue(claims.Username)
}
