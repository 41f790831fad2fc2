package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	apperrors "pinspire/pkg/errors"
)

// SessionClaims — полезная нагрузка сессионного токена. Поле _id оставлено
// ради совместимости с токенами, которые выпускает основной auth-сервис.
type SessionClaims struct {
	UserID string `json:"_id"`
	jwt.RegisteredClaims
}

// ParseSession проверяет подпись и срок действия токена и возвращает id пользователя.
func ParseSession(tokenString, secret string) (uuid.UUID, error) {
	claims := &SessionClaims{}

	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apperrors.ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil {
		if claims.ExpiresAt != nil && claims.ExpiresAt.Before(time.Now()) {
			return uuid.Nil, apperrors.ErrTokenExpired
		}
		return uuid.Nil, apperrors.ErrInvalidToken
	}
	if !parsed.Valid {
		return uuid.Nil, apperrors.ErrInvalidToken
	}

	subject := claims.UserID
	if subject == "" {
		subject = claims.Subject
	}

	userID, err := uuid.Parse(subject)
	if err != nil {
		return uuid.Nil, apperrors.ErrInvalidToken
	}

	return userID, nil
}

// SignSession выпускает токен с тем же форматом claims. Основной путь выпуска
// живёт во внешнем auth-сервисе; здесь используется в тестах и утилитах.
func SignSession(userID uuid.UUID, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &SessionClaims{
		UserID: userID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
