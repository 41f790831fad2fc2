package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"pinspire/internal/service"
	"pinspire/pkg/logger"
)

// SessionCookieName — cookie с сессионным токеном, общая с основным приложением.
const SessionCookieName = "auth_tkn"

type AuthMiddleware struct {
	authService service.AuthService
	log         logger.Logger
}

func NewAuthMiddleware(authService service.AuthService, log logger.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		authService: authService,
		log:         log,
	}
}

// SessionToken достаёт токен из cookie или заголовка Authorization.
// Оба транспорта равноправны: realtime-рукопожатие использует тот же путь.
func SessionToken(r *http.Request) string {
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	authHeader := r.Header.Get("Authorization")
	parts := strings.Split(authHeader, " ")
	if len(parts) == 2 && parts[0] == "Bearer" {
		return parts[1]
	}

	return ""
}

func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := SessionToken(c.Request)
		if tokenString == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"result": false, "message": "Authentication required"})
			c.Abort()
			return
		}

		user, err := m.authService.ValidateToken(c.Request.Context(), tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"result": false, "message": "Invalid or expired token"})
			c.Abort()
			return
		}

		c.Set("user_id", user.ID)
		c.Set("username", user.Username)
		c.Next()
	}
}
