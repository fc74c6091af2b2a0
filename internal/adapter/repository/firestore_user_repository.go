package repository

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"medchat/internal/domain/entity"
	"medchat/internal/domain/repository"
	"medchat/pkg/errors"
	"medchat/pkg/logger"
)

const usersCollection = "users"

type firestoreUserRepository struct {
	client *firestore.Client
}

func NewFirestoreUserRepository(client *firestore.Client) repository.UserRepository {
	return &firestoreUserRepository{
		client: client,
	}
}

func (r *firestoreUserRepository) Create(ctx context.Context, user *entity.User) error {
	_, err := r.client.Collection(usersCollection).Doc(user.ID).Set(ctx, user)
	if err != nil {
		return errors.Internal("Failed to create user", err)
	}
	return nil
}

func (r *firestoreUserRepository) GetByID(ctx context.Context, id string) (*entity.User, error) {
	doc, err := r.client.Collection(usersCollection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("User", err)
		}
		return nil, errors.Internal("Failed to get user", err)
	}

	var user entity.User
	if err := doc.DataTo(&user); err != nil {
		return nil, errors.Internal("Failed to parse user data", err)
	}
	user.ID = doc.Ref.ID

	return &user, nil
}

func (r *firestoreUserRepository) ListByRole(ctx context.Context, role string, limit int) ([]*entity.User, error) {
	query := r.client.Collection(usersCollection).Where("role", "==", role)
	if limit > 0 {
		query = query.Limit(limit)
	}

	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, errors.Internal("Failed to query users by role", err)
	}

	users := make([]*entity.User, 0, len(docs))
	for _, doc := range docs {
		var user entity.User
		if err := doc.DataTo(&user); err != nil {
			logger.Warn("Skipping malformed user %s: %v", doc.Ref.ID, err)
			continue
		}
		user.ID = doc.Ref.ID
		users = append(users, &user)
	}

	return users, nil
}

func (r *firestoreUserRepository) SetPresence(ctx context.Context, id string, isOnline bool, lastActive time.Time) error {
	_, err := r.client.Collection(usersCollection).Doc(id).Set(ctx, map[string]interface{}{
		"isOnline":   isOnline,
		"lastActive": lastActive,
	}, firestore.MergeAll)
	if err != nil {
		return errors.Internal("Failed to update presence", err)
	}
	return nil
}

func (r *firestoreUserRepository) WatchPresence(ctx context.Context, id string, onChange func(entity.Presence)) error {
	iter := r.client.Collection(usersCollection).Doc(id).Snapshots(ctx)
	defer iter.Stop()

	for {
		doc, err := iter.Next()
		if err != nil {
			if listenerStopped(ctx, err) {
				return nil
			}
			return errors.Internal("Presence listener failed", err)
		}
		if !doc.Exists() {
			continue
		}

		var user entity.User
		if err := doc.DataTo(&user); err != nil {
			logger.Warn("WatchPresence: malformed user %s: %v", id, err)
			continue
		}
		user.ID = doc.Ref.ID
		onChange(user.Presence())
	}
}
