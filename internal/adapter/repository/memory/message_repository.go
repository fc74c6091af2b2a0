package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"medchat/internal/domain/entity"
	"medchat/internal/domain/repository"
	"medchat/pkg/errors"
)

type messageRepository struct {
	store *Store
}

func NewMessageRepository(store *Store) repository.MessageRepository {
	return &messageRepository{store: store}
}

func (r *messageRepository) Create(ctx context.Context, msg *entity.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.conversations[msg.ConversationID]; !ok {
		return errors.NotFound("Conversation", nil)
	}
	bucket, ok := r.store.messages[msg.ConversationID]
	if !ok {
		bucket = make(map[string]*entity.Message)
		r.store.messages[msg.ConversationID] = bucket
	}
	bucket[msg.ID] = msg.Clone()
	r.store.changed()
	return nil
}

func (r *messageRepository) GetByID(ctx context.Context, conversationID, messageID string) (*entity.Message, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	msg, ok := r.store.messages[conversationID][messageID]
	if !ok {
		return nil, errors.NotFound("Message", nil)
	}
	return msg.Clone(), nil
}

func (r *messageRepository) Update(ctx context.Context, conversationID, messageID string, mutate repository.MessageMutator) (*entity.Message, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	current, ok := r.store.messages[conversationID][messageID]
	if !ok {
		return nil, errors.NotFound("Message", nil)
	}
	working := current.Clone()
	if err := mutate(working); err != nil {
		return nil, err
	}
	working.ID = messageID
	working.ConversationID = conversationID
	r.store.messages[conversationID][messageID] = working
	r.store.changed()
	return working.Clone(), nil
}

func (r *messageRepository) Delete(ctx context.Context, conversationID, messageID string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.messages[conversationID][messageID]; !ok {
		return errors.NotFound("Message", nil)
	}
	delete(r.store.messages[conversationID], messageID)
	r.store.changed()
	return nil
}

func (r *messageRepository) ListRecent(ctx context.Context, conversationID string, limit int) ([]*entity.Message, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return r.store.newestFirst(conversationID, func(*entity.Message) bool { return true }, limit), nil
}

func (r *messageRepository) ListBefore(ctx context.Context, conversationID string, before time.Time, limit int) ([]*entity.Message, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return r.store.newestFirst(conversationID, func(m *entity.Message) bool { return m.Timestamp.Before(before) }, limit), nil
}

func (r *messageRepository) FindLatest(ctx context.Context, conversationID string, match func(*entity.Message) bool) (*entity.Message, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	found := r.store.newestFirst(conversationID, match, 1)
	if len(found) == 0 {
		return nil, errors.NotFound("Message", nil)
	}
	return found[0], nil
}

func (r *messageRepository) MarkReadBy(ctx context.Context, conversationID, userID string) (int, error) {
	return r.mutateAll(conversationID, func(m *entity.Message) bool { return m.MarkReadBy(userID) })
}

func (r *messageRepository) MarkDeletedFor(ctx context.Context, conversationID, userID string) (int, error) {
	return r.mutateAll(conversationID, func(m *entity.Message) bool { return m.DeleteFor(userID) })
}

func (r *messageRepository) WatchRecent(ctx context.Context, conversationID string, limit int, onChange func([]*entity.Message)) error {
	return watch(ctx, r.store, func() ([]*entity.Message, bool) {
		return r.store.newestFirst(conversationID, func(*entity.Message) bool { return true }, limit), true
	}, onChange)
}

func (r *messageRepository) mutateAll(conversationID string, apply func(*entity.Message) bool) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	changed := 0
	for _, m := range r.store.messages[conversationID] {
		if apply(m) {
			changed++
		}
	}
	if changed > 0 {
		r.store.changed()
	}
	return changed, nil
}

// newestFirst must be called with mu held.
func (s *Store) newestFirst(conversationID string, match func(*entity.Message) bool, limit int) []*entity.Message {
	out := []*entity.Message{}
	for _, m := range s.messages[conversationID] {
		if match(m) {
			out = append(out, m.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
