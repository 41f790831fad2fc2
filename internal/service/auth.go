package service

import (
	"context"

	"pinspire/internal/config"
	"pinspire/internal/domain"
	"pinspire/internal/repository"
	apperrors "pinspire/pkg/errors"
	"pinspire/pkg/logger"
	"pinspire/pkg/token"
)

// AuthService проверяет сессионный токен, выпущенный основным приложением,
// и возвращает пользователя. Выпуск токенов (register/login) живёт снаружи.
type AuthService interface {
	ValidateToken(ctx context.Context, tokenString string) (*domain.User, error)
}

type authService struct {
	userRepo repository.UserRepository
	jwtCfg   config.JWTConfig
	log      logger.Logger
}

func NewAuthService(userRepo repository.UserRepository, jwtCfg config.JWTConfig, log logger.Logger) AuthService {
	return &authService{
		userRepo: userRepo,
		jwtCfg:   jwtCfg,
		log:      log,
	}
}

func (s *authService) ValidateToken(ctx context.Context, tokenString string) (*domain.User, error) {
	userID, err := token.ParseSession(tokenString, s.jwtCfg.Secret)
	if err != nil {
		return nil, err
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, apperrors.ErrInvalidToken
	}

	return user, nil
}
