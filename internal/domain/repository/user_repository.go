package repository

import (
	"context"
	"time"

	"medchat/internal/domain/entity"
)

type UserRepository interface {
	Create(ctx context.Context, user *entity.User) error
	GetByID(ctx context.Context, id string) (*entity.User, error)
	ListByRole(ctx context.Context, role string, limit int) ([]*entity.User, error)
	SetPresence(ctx context.Context, id string, isOnline bool, lastActive time.Time) error
	WatchPresence(ctx context.Context, id string, onChange func(entity.Presence)) error
}
