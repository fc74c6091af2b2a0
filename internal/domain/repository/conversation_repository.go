package repository

import (
	"context"
	"time"

	"medchat/internal/domain/entity"
)

// ConversationMutator edits a freshly read conversation inside an atomic
// read-modify-write. It may run more than once and must not have side
// effects outside the conversation it is given.
type ConversationMutator func(conv *entity.Conversation) error

type ConversationRepository interface {
	Create(ctx context.Context, conv *entity.Conversation) error
	GetByID(ctx context.Context, id string) (*entity.Conversation, error)

	// Delete removes the conversation document. Deleting a missing
	// conversation fails with NotFound.
	Delete(ctx context.Context, id string) error

	// FindByParticipants returns the conversation whose active participant set
	// equals participants exactly.
	FindByParticipants(ctx context.Context, participants []string) (*entity.Conversation, error)

	// ListByParticipant returns conversations where userID is active, most
	// recently updated first.
	ListByParticipant(ctx context.Context, userID string) ([]*entity.Conversation, error)

	// ListInvolving returns conversations where userID is active or removed.
	ListInvolving(ctx context.Context, userID string) ([]*entity.Conversation, error)

	Update(ctx context.Context, id string, mutate ConversationMutator) (*entity.Conversation, error)

	// SetTyping writes typingUsers[userID]; a nil at clears it.
	SetTyping(ctx context.Context, id, userID string, at *time.Time) error

	// Watch calls onChange with the current document and again after every
	// change. It blocks until ctx is done or the listener fails.
	Watch(ctx context.Context, id string, onChange func(*entity.Conversation)) error

	// WatchByParticipant is the live form of ListByParticipant.
	WatchByParticipant(ctx context.Context, userID string, onChange func([]*entity.Conversation)) error
}
