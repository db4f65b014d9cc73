// Package handler provides HTTP handlers for the API.
package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/reviewhub/reviewhub/internal/config"
	pkgerrors "github.com/reviewhub/reviewhub/pkg/errors"
	"github.com/reviewhub/reviewhub/pkg/logger"
)

// LoginRequest is the login payload
type LoginRequest struct {
	Username   string `json:"username" binding:"required"`
	Password   string `json:"password" binding:"required"`
	RememberMe bool   `json:"remember_me"`
}

// LoginResponse carries the issued token
type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

// Claims are the JWT claims for operator sessions
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// AuthHandler issues and validates operator tokens
type AuthHandler struct {
	cfg *config.AuthConfig
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(cfg *config.AuthConfig) *AuthHandler {
	return &AuthHandler{cfg: cfg}
}

// HandleLogin handles POST /api/v1/auth/login
func (h *AuthHandler) HandleLogin(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, pkgerrors.ErrCodeValidation,
			"invalid login request: "+err.Error())
		return
	}

	if h.cfg.Username == "" || h.cfg.PasswordHash == "" || h.cfg.JWTSecret == "" {
		logger.Warn("Login rejected, operator auth is not configured")
		respondError(c, http.StatusUnauthorized, pkgerrors.ErrCodeUnauthorized,
			"operator authentication is not configured")
		return
	}

	if req.Username != h.cfg.Username ||
		bcrypt.CompareHashAndPassword([]byte(h.cfg.PasswordHash), []byte(req.Password)) != nil {
		logger.Warn("Login failed",
			zap.String("username", req.Username),
			zap.String("ip", c.ClientIP()),
		)
		respondError(c, http.StatusUnauthorized, pkgerrors.ErrCodeUnauthorized,
			"invalid username or password")
		return
	}

	expiry := time.Duration(h.cfg.TokenExpiry) * time.Hour
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	if req.RememberMe && h.cfg.RememberDays > 0 {
		expiry = time.Duration(h.cfg.RememberDays) * 24 * time.Hour
	}
	expiresAt := time.Now().Add(expiry)

	claims := Claims{
		Username: req.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "reviewhub",
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(h.cfg.JWTSecret))
	if err != nil {
		logger.Error("Failed to sign token", zap.Error(err))
		respondError(c, http.StatusInternalServerError, pkgerrors.ErrCodeInternal,
			"failed to issue token")
		return
	}

	logger.Info("Operator logged in",
		zap.String("username", req.Username),
		zap.Bool("remember_me", req.RememberMe),
	)

	c.JSON(http.StatusOK, LoginResponse{
		Token:     signed,
		ExpiresAt: expiresAt.Format(time.RFC3339),
	})
}

// HandleMe handles GET /api/v1/auth/me
func (h *AuthHandler) HandleMe(c *gin.Context) {
	username, _ := c.Get("username")
	c.JSON(http.StatusOK, gin.H{"username": username})
}

// ValidateToken verifies a bearer token and returns the username. It
// implements middleware.TokenValidator.
func (h *AuthHandler) ValidateToken(tokenString string) (string, error) {
	if h.cfg.JWTSecret == "" {
		return "", fmt.Errorf("jwt secret not configured")
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(h.cfg.JWTSecret), nil
	})
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Username == "" {
		return "", jwt.ErrSignatureInvalid
	}
	return claims.Username, nil
}
