package domain

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	AvatarURL *string   `json:"avatar_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// UserPublic — публичный профиль, который видят собеседники.
type UserPublic struct {
	ID        uuid.UUID `json:"_id"`
	Username  string    `json:"username"`
	AvatarURL *string   `json:"profilePicture,omitempty"`
}

func (u *User) Public() *UserPublic {
	return &UserPublic{
		ID:        u.ID,
		Username:  u.Username,
		AvatarURL: u.AvatarURL,
	}
}
