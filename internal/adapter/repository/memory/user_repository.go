package memory

import (
	"context"
	"sort"
	"time"

	"medchat/internal/domain/entity"
	"medchat/internal/domain/repository"
	"medchat/pkg/errors"
)

type userRepository struct {
	store *Store
}

func NewUserRepository(store *Store) repository.UserRepository {
	return &userRepository{store: store}
}

func (r *userRepository) Create(ctx context.Context, user *entity.User) error {
	if user.ID == "" {
		return errors.BadRequest("user id is required", nil)
	}
	u := *user

	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.users[u.ID] = &u
	r.store.changed()
	return nil
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*entity.User, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	u, ok := r.store.users[id]
	if !ok {
		return nil, errors.NotFound("User", nil)
	}
	out := *u
	return &out, nil
}

func (r *userRepository) ListByRole(ctx context.Context, role string, limit int) ([]*entity.User, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	users := []*entity.User{}
	for _, u := range r.store.users {
		if u.Role != role {
			continue
		}
		out := *u
		users = append(users, &out)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].DisplayName != users[j].DisplayName {
			return users[i].DisplayName < users[j].DisplayName
		}
		return users[i].ID < users[j].ID
	})
	if limit > 0 && len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}

func (r *userRepository) SetPresence(ctx context.Context, id string, isOnline bool, lastActive time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	u, ok := r.store.users[id]
	if !ok {
		u = &entity.User{ID: id}
		r.store.users[id] = u
	}
	u.IsOnline = isOnline
	u.LastActive = lastActive
	r.store.changed()
	return nil
}

func (r *userRepository) WatchPresence(ctx context.Context, id string, onChange func(entity.Presence)) error {
	return watch(ctx, r.store, func() (entity.Presence, bool) {
		u, ok := r.store.users[id]
		if !ok {
			return entity.Presence{}, false
		}
		return u.Presence(), true
	}, onChange)
}
