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

type conversationRepository struct {
	store *Store
}

func NewConversationRepository(store *Store) repository.ConversationRepository {
	return &conversationRepository{store: store}
}

func (r *conversationRepository) Create(ctx context.Context, conv *entity.Conversation) error {
	if conv.ID == "" {
		conv.ID = uuid.New().String()
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.conversations[conv.ID] = conv.Clone()
	r.store.changed()
	return nil
}

func (r *conversationRepository) GetByID(ctx context.Context, id string) (*entity.Conversation, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	conv, ok := r.store.conversations[id]
	if !ok {
		return nil, errors.NotFound("Conversation", nil)
	}
	return conv.Clone(), nil
}

func (r *conversationRepository) Delete(ctx context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.conversations[id]; !ok {
		return errors.NotFound("Conversation", nil)
	}
	delete(r.store.conversations, id)
	delete(r.store.messages, id)
	r.store.changed()
	return nil
}

func (r *conversationRepository) FindByParticipants(ctx context.Context, participants []string) (*entity.Conversation, error) {
	want := entity.SortedUnique(participants)

	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	for _, conv := range r.store.sortedConversations() {
		if equalStrings(conv.Participants, want) {
			return conv.Clone(), nil
		}
	}
	return nil, errors.NotFound("Conversation", nil)
}

func (r *conversationRepository) ListByParticipant(ctx context.Context, userID string) ([]*entity.Conversation, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return r.store.conversationsWhere(func(c *entity.Conversation) bool { return c.IsActive(userID) }), nil
}

func (r *conversationRepository) ListInvolving(ctx context.Context, userID string) ([]*entity.Conversation, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return r.store.conversationsWhere(func(c *entity.Conversation) bool { return c.IsMember(userID) }), nil
}

func (r *conversationRepository) Update(ctx context.Context, id string, mutate repository.ConversationMutator) (*entity.Conversation, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	current, ok := r.store.conversations[id]
	if !ok {
		return nil, errors.NotFound("Conversation", nil)
	}

	working := current.Clone()
	if err := mutate(working); err != nil {
		return nil, err
	}
	working.ID = id
	r.store.conversations[id] = working
	r.store.changed()
	return working.Clone(), nil
}

func (r *conversationRepository) SetTyping(ctx context.Context, id, userID string, at *time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	conv, ok := r.store.conversations[id]
	if !ok {
		return errors.NotFound("Conversation", nil)
	}
	if conv.TypingUsers == nil {
		conv.TypingUsers = make(map[string]*time.Time)
	}
	if at == nil {
		conv.TypingUsers[userID] = nil
	} else {
		t := *at
		conv.TypingUsers[userID] = &t
	}
	r.store.changed()
	return nil
}

func (r *conversationRepository) Watch(ctx context.Context, id string, onChange func(*entity.Conversation)) error {
	return watch(ctx, r.store, func() (*entity.Conversation, bool) {
		conv, ok := r.store.conversations[id]
		if !ok {
			return nil, false
		}
		return conv.Clone(), true
	}, onChange)
}

func (r *conversationRepository) WatchByParticipant(ctx context.Context, userID string, onChange func([]*entity.Conversation)) error {
	return watch(ctx, r.store, func() ([]*entity.Conversation, bool) {
		return r.store.conversationsWhere(func(c *entity.Conversation) bool { return c.IsActive(userID) }), true
	}, onChange)
}

// sortedConversations must be called with mu held.
func (s *Store) sortedConversations() []*entity.Conversation {
	out := make([]*entity.Conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// conversationsWhere must be called with mu held.
func (s *Store) conversationsWhere(match func(*entity.Conversation) bool) []*entity.Conversation {
	out := []*entity.Conversation{}
	for _, c := range s.sortedConversations() {
		if match(c) {
			out = append(out, c.Clone())
		}
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
