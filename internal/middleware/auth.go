// Package middleware содержит HTTP middleware API витрины.
package middleware

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mmeshcher/apse-storefront/internal/model"
)

type contextKey string

const (
	userIDKey contextKey = "userID"
	roleKey   contextKey = "role"
)

const (
	defaultTokenTTL = 72 * time.Hour
	purposeAccess   = "access"
)

// ErrInvalidToken возвращается для неподписанного, просроченного или чужого по назначению токена.
var ErrInvalidToken = errors.New("invalid token")

type claims struct {
	UserID  string     `json:"user_id"`
	Role    model.Role `json:"role,omitempty"`
	Purpose string     `json:"purpose"`
	jwt.RegisteredClaims
}

// AuthMiddleware выпускает и проверяет bearer-токены JWT (HS256).
type AuthMiddleware struct {
	secretKey []byte
	ttl       time.Duration
}

// NewAuthMiddleware создаёт новый экземпляр AuthMiddleware с указанным секретным ключом.
// Пустой секрет заменяется случайным: токены перестают быть действительными после перезапуска.
func NewAuthMiddleware(secret string, ttl time.Duration) *AuthMiddleware {
	key := []byte(secret)
	if len(key) == 0 {
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err == nil {
			key = randomKey
		} else {
			key = []byte("default-secret-key")
		}
	}
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}

	return &AuthMiddleware{
		secretKey: key,
		ttl:       ttl,
	}
}

// Issue выпускает токен доступа для пользователя.
func (a *AuthMiddleware) Issue(userID string, role model.Role) (string, error) {
	return a.sign(claims{UserID: userID, Role: role, Purpose: purposeAccess}, a.ttl)
}

// IssuePurpose выпускает одноцелевой токен, например для сброса пароля.
func (a *AuthMiddleware) IssuePurpose(userID, purpose string, ttl time.Duration) (string, error) {
	return a.sign(claims{UserID: userID, Purpose: purpose}, ttl)
}

// ParsePurpose проверяет одноцелевой токен и возвращает идентификатор пользователя.
func (a *AuthMiddleware) ParsePurpose(token, purpose string) (string, error) {
	c, err := a.parse(token)
	if err != nil {
		return "", err
	}
	if c.Purpose != purpose {
		return "", ErrInvalidToken
	}
	return c.UserID, nil
}

func (a *AuthMiddleware) sign(c claims, ttl time.Duration) (string, error) {
	now := time.Now()
	c.IssuedAt = jwt.NewNumericDate(now)
	c.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(a.secretKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (a *AuthMiddleware) parse(token string) (*claims, error) {
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		return a.secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid || c.UserID == "" {
		return nil, ErrInvalidToken
	}
	return &c, nil
}

// Middleware проверяет заголовок Authorization и добавляет пользователя и роль в контекст запроса.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "Authentication required")
			return
		}

		c, err := a.parse(token)
		if err != nil || c.Purpose != purposeAccess {
			writeError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, c.UserID)
		ctx = context.WithValue(ctx, roleKey, c.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole пропускает только запросы пользователей с одной из указанных ролей.
// Должен стоять после Middleware.
func RequireRole(roles ...model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, ok := GetRoleFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			if !slices.Contains(roles, role) {
				writeError(w, http.StatusForbidden, "Access denied")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetUserIDFromContext извлекает идентификатор пользователя из контекста запроса.
func GetUserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// GetRoleFromContext извлекает роль пользователя из контекста запроса.
func GetRoleFromContext(ctx context.Context) (model.Role, bool) {
	role, ok := ctx.Value(roleKey).(model.Role)
	return role, ok
}

// WithUser возвращает контекст с пользователем и ролью, как после успешной проверки токена.
func WithUser(ctx context.Context, userID string, role model.Role) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, roleKey, role)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": msg})
}
