package repository

import (
	"context"
	"time"

	"medchat/internal/domain/entity"
)

type MessageMutator func(msg *entity.Message) error

type MessageRepository interface {
	Create(ctx context.Context, msg *entity.Message) error
	GetByID(ctx context.Context, conversationID, messageID string) (*entity.Message, error)
	Update(ctx context.Context, conversationID, messageID string, mutate MessageMutator) (*entity.Message, error)
	Delete(ctx context.Context, conversationID, messageID string) error

	// ListRecent returns up to limit messages, newest first.
	ListRecent(ctx context.Context, conversationID string, limit int) ([]*entity.Message, error)

	// ListBefore returns up to limit messages strictly older than before,
	// newest first.
	ListBefore(ctx context.Context, conversationID string, before time.Time, limit int) ([]*entity.Message, error)

	// FindLatest returns the newest message accepted by match.
	FindLatest(ctx context.Context, conversationID string, match func(*entity.Message) bool) (*entity.Message, error)

	// MarkReadBy adds userID to readBy of every message sent by someone else
	// that userID has not read yet. Returns how many messages changed.
	MarkReadBy(ctx context.Context, conversationID, userID string) (int, error)

	// MarkDeletedFor adds userID to deletedFor of every message.
	MarkDeletedFor(ctx context.Context, conversationID, userID string) (int, error)

	// WatchRecent is the live form of ListRecent.
	WatchRecent(ctx context.Context, conversationID string, limit int, onChange func([]*entity.Message)) error
}
