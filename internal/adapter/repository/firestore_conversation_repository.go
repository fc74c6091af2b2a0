package repository

import (
	"context"
	stderrors "errors"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"medchat/internal/domain/entity"
	"medchat/internal/domain/repository"
	"medchat/pkg/errors"
	"medchat/pkg/logger"
)

const conversationsCollection = "conversations"

type firestoreConversationRepository struct {
	client *firestore.Client
}

func NewFirestoreConversationRepository(client *firestore.Client) repository.ConversationRepository {
	return &firestoreConversationRepository{
		client: client,
	}
}

func (r *firestoreConversationRepository) collection() *firestore.CollectionRef {
	return r.client.Collection(conversationsCollection)
}

func (r *firestoreConversationRepository) Create(ctx context.Context, conv *entity.Conversation) error {
	if conv.ID == "" {
		conv.ID = uuid.New().String()
	}

	_, err := r.collection().Doc(conv.ID).Create(ctx, conv)
	if err != nil {
		return errors.Internal("Failed to create conversation", err)
	}

	return nil
}

func (r *firestoreConversationRepository) GetByID(ctx context.Context, id string) (*entity.Conversation, error) {
	doc, err := r.collection().Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Conversation", err)
		}
		return nil, errors.Internal("Failed to get conversation", err)
	}

	return decodeConversation(doc)
}

func (r *firestoreConversationRepository) Delete(ctx context.Context, id string) error {
	_, err := r.collection().Doc(id).Delete(ctx, firestore.Exists)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return errors.NotFound("Conversation", err)
		}
		return errors.Internal("Failed to delete conversation", err)
	}

	return nil
}

func (r *firestoreConversationRepository) FindByParticipants(ctx context.Context, participants []string) (*entity.Conversation, error) {
	// participants is stored sorted, so array equality is order-safe.
	query := r.collection().Where("participants", "==", entity.SortedUnique(participants)).Limit(1)
	iter := query.Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err != nil {
		if err == iterator.Done {
			return nil, errors.NotFound("Conversation", nil)
		}
		return nil, errors.Internal("Failed to query conversation by participants", err)
	}

	return decodeConversation(doc)
}

func (r *firestoreConversationRepository) ListByParticipant(ctx context.Context, userID string) ([]*entity.Conversation, error) {
	docs, err := r.activeQuery(userID).Documents(ctx).GetAll()
	if err != nil {
		logger.Error("Firestore error while fetching conversations for user %s: %v", userID, err)
		return nil, errors.Internal("Failed to fetch conversations", err)
	}

	return decodeConversations(docs), nil
}

func (r *firestoreConversationRepository) ListInvolving(ctx context.Context, userID string) ([]*entity.Conversation, error) {
	active, err := r.collection().Where("participants", "array-contains", userID).Documents(ctx).GetAll()
	if err != nil {
		return nil, errors.Internal("Failed to fetch conversations", err)
	}
	removed, err := r.collection().Where("removedParticipants", "array-contains", userID).Documents(ctx).GetAll()
	if err != nil {
		return nil, errors.Internal("Failed to fetch removed conversations", err)
	}

	seen := make(map[string]struct{})
	var convs []*entity.Conversation
	for _, conv := range decodeConversations(append(active, removed...)) {
		if _, ok := seen[conv.ID]; ok {
			continue
		}
		seen[conv.ID] = struct{}{}
		convs = append(convs, conv)
	}
	sort.Slice(convs, func(i, j int) bool { return convs[i].UpdatedAt.After(convs[j].UpdatedAt) })

	return convs, nil
}

// Update runs mutate inside a transaction so unread counters, participant
// lists and the preview cache never lose concurrent writes.
func (r *firestoreConversationRepository) Update(ctx context.Context, id string, mutate repository.ConversationMutator) (*entity.Conversation, error) {
	ref := r.collection().Doc(id)

	var updated *entity.Conversation
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return errors.NotFound("Conversation", err)
			}
			return err
		}

		conv, err := decodeConversation(doc)
		if err != nil {
			return err
		}
		if err := mutate(conv); err != nil {
			return err
		}
		conv.ID = id
		updated = conv

		return tx.Set(ref, conv)
	})
	if err != nil {
		var appErr *errors.AppError
		if stderrors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, errors.Internal("Failed to update conversation", err)
	}

	return updated, nil
}

func (r *firestoreConversationRepository) SetTyping(ctx context.Context, id, userID string, at *time.Time) error {
	var value interface{}
	if at != nil {
		value = *at
	}

	_, err := r.collection().Doc(id).Update(ctx, []firestore.Update{
		{FieldPath: firestore.FieldPath{"typingUsers", userID}, Value: value},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return errors.NotFound("Conversation", err)
		}
		return errors.Internal("Failed to update typing status", err)
	}

	return nil
}

func (r *firestoreConversationRepository) Watch(ctx context.Context, id string, onChange func(*entity.Conversation)) error {
	iter := r.collection().Doc(id).Snapshots(ctx)
	defer iter.Stop()

	for {
		doc, err := iter.Next()
		if err != nil {
			if listenerStopped(ctx, err) {
				return nil
			}
			return errors.Internal("Conversation listener failed", err)
		}
		if !doc.Exists() {
			continue
		}

		conv, err := decodeConversation(doc)
		if err != nil {
			logger.Warn("Watch: skipping malformed conversation %s: %v", id, err)
			continue
		}
		onChange(conv)
	}
}

func (r *firestoreConversationRepository) WatchByParticipant(ctx context.Context, userID string, onChange func([]*entity.Conversation)) error {
	iter := r.activeQuery(userID).Snapshots(ctx)
	defer iter.Stop()

	for {
		snap, err := iter.Next()
		if err != nil {
			if listenerStopped(ctx, err) {
				return nil
			}
			return errors.Internal("Conversation list listener failed", err)
		}

		docs, err := snap.Documents.GetAll()
		if err != nil {
			return errors.Internal("Failed to read conversation list snapshot", err)
		}
		onChange(decodeConversations(docs))
	}
}

func (r *firestoreConversationRepository) activeQuery(userID string) firestore.Query {
	return r.collection().Where("participants", "array-contains", userID).OrderBy("updatedAt", firestore.Desc)
}

func decodeConversation(doc *firestore.DocumentSnapshot) (*entity.Conversation, error) {
	var conv entity.Conversation
	if err := doc.DataTo(&conv); err != nil {
		return nil, errors.Internal("Failed to parse conversation data", err)
	}
	conv.ID = doc.Ref.ID
	return &conv, nil
}

func decodeConversations(docs []*firestore.DocumentSnapshot) []*entity.Conversation {
	convs := make([]*entity.Conversation, 0, len(docs))
	for _, doc := range docs {
		conv, err := decodeConversation(doc)
		if err != nil {
			logger.Warn("Skipping malformed conversation %s: %v", doc.Ref.ID, err)
			continue
		}
		convs = append(convs, conv)
	}
	return convs
}

// listenerStopped reports whether a snapshot iterator ended because the
// caller cancelled it rather than because the listener broke.
func listenerStopped(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	switch status.Code(err) {
	case codes.Canceled, codes.DeadlineExceeded:
		return true
	}
	return stderrors.Is(err, context.Canceled) || err == iterator.Done
}
