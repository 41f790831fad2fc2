package service

import (
	"pinspire/internal/config"
	"pinspire/internal/repository"
	"pinspire/pkg/logger"
)

type Services struct {
	Auth      AuthService
	Presence  PresenceService
	Chat      ChatService
	RateLimit RateLimitService
}

func NewServices(repos *repository.Repositories, cfg *config.Config, log logger.Logger) *Services {
	presence := NewPresenceService(repos.Conversation, log)

	return &Services{
		Auth:      NewAuthService(repos.User, cfg.JWT, log),
		Presence:  presence,
		Chat:      NewChatService(repos.Conversation, repos.User, presence, log),
		RateLimit: NewRateLimitService(repos.RateLimit, log),
	}
}
