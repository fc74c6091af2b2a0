package repository

import (
	"context"
	stderrors "errors"
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

const messagesCollection = "messages"

type firestoreMessageRepository struct {
	client *firestore.Client
}

func NewFirestoreMessageRepository(client *firestore.Client) repository.MessageRepository {
	return &firestoreMessageRepository{
		client: client,
	}
}

func (r *firestoreMessageRepository) messages(conversationID string) *firestore.CollectionRef {
	return r.client.Collection(conversationsCollection).Doc(conversationID).Collection(messagesCollection)
}

func (r *firestoreMessageRepository) newestFirst(conversationID string) firestore.Query {
	return r.messages(conversationID).OrderBy("timestamp", firestore.Desc)
}

func (r *firestoreMessageRepository) Create(ctx context.Context, msg *entity.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}

	_, err := r.messages(msg.ConversationID).Doc(msg.ID).Create(ctx, msg)
	if err != nil {
		return errors.Internal("Failed to create message", err)
	}

	return nil
}

func (r *firestoreMessageRepository) GetByID(ctx context.Context, conversationID, messageID string) (*entity.Message, error) {
	doc, err := r.messages(conversationID).Doc(messageID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Message", err)
		}
		return nil, errors.Internal("Failed to get message", err)
	}

	return decodeMessage(conversationID, doc)
}

func (r *firestoreMessageRepository) Update(ctx context.Context, conversationID, messageID string, mutate repository.MessageMutator) (*entity.Message, error) {
	ref := r.messages(conversationID).Doc(messageID)

	var updated *entity.Message
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return errors.NotFound("Message", err)
			}
			return err
		}

		msg, err := decodeMessage(conversationID, doc)
		if err != nil {
			return err
		}
		if err := mutate(msg); err != nil {
			return err
		}
		updated = msg

		return tx.Set(ref, msg)
	})
	if err != nil {
		var appErr *errors.AppError
		if stderrors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, errors.Internal("Failed to update message", err)
	}

	return updated, nil
}

func (r *firestoreMessageRepository) Delete(ctx context.Context, conversationID, messageID string) error {
	// Exists precondition turns a repeated delete into NotFound instead of a
	// silent no-op.
	_, err := r.messages(conversationID).Doc(messageID).Delete(ctx, firestore.Exists)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return errors.NotFound("Message", err)
		}
		return errors.Internal("Failed to delete message", err)
	}

	return nil
}

func (r *firestoreMessageRepository) ListRecent(ctx context.Context, conversationID string, limit int) ([]*entity.Message, error) {
	query := r.newestFirst(conversationID)
	if limit > 0 {
		query = query.Limit(limit)
	}
	return r.collect(ctx, conversationID, query)
}

func (r *firestoreMessageRepository) ListBefore(ctx context.Context, conversationID string, before time.Time, limit int) ([]*entity.Message, error) {
	query := r.newestFirst(conversationID).Where("timestamp", "<", before)
	if limit > 0 {
		query = query.Limit(limit)
	}
	return r.collect(ctx, conversationID, query)
}

func (r *firestoreMessageRepository) FindLatest(ctx context.Context, conversationID string, match func(*entity.Message) bool) (*entity.Message, error) {
	iter := r.newestFirst(conversationID).Documents(ctx)
	defer iter.Stop()

	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			return nil, errors.NotFound("Message", nil)
		}
		if err != nil {
			return nil, errors.Internal("Failed to iterate messages", err)
		}

		msg, err := decodeMessage(conversationID, doc)
		if err != nil {
			logger.Warn("FindLatest: skipping malformed message %s in conversation %s: %v", doc.Ref.ID, conversationID, err)
			continue
		}
		if match(msg) {
			return msg, nil
		}
	}
}

func (r *firestoreMessageRepository) MarkReadBy(ctx context.Context, conversationID, userID string) (int, error) {
	// Firestore has no "array does not contain", so the unread set is
	// computed from a projection of every message.
	docs, err := r.messages(conversationID).Select("sender", "readBy", "status").Documents(ctx).GetAll()
	if err != nil {
		return 0, errors.Internal("Failed to query messages for read receipts", err)
	}

	var pending []bulkUpdate
	for _, doc := range docs {
		var msg entity.Message
		if err := doc.DataTo(&msg); err != nil {
			continue
		}
		if msg.Sender == userID || msg.IsReadBy(userID) {
			continue
		}

		updates := []firestore.Update{
			{Path: "readBy", Value: firestore.ArrayUnion(userID)},
			{Path: "read", Value: true},
		}
		if !msg.IsUnsent() {
			updates = append(updates, firestore.Update{Path: "status", Value: entity.MessageStatusRead})
		}
		pending = append(pending, bulkUpdate{ref: doc.Ref, updates: updates})
	}

	return r.applyBulk(ctx, pending)
}

func (r *firestoreMessageRepository) MarkDeletedFor(ctx context.Context, conversationID, userID string) (int, error) {
	docs, err := r.messages(conversationID).Select("deletedFor").Documents(ctx).GetAll()
	if err != nil {
		return 0, errors.Internal("Failed to query messages for deletion", err)
	}

	var pending []bulkUpdate
	for _, doc := range docs {
		var msg entity.Message
		if err := doc.DataTo(&msg); err == nil && msg.IsDeletedFor(userID) {
			continue
		}
		pending = append(pending, bulkUpdate{
			ref:     doc.Ref,
			updates: []firestore.Update{{Path: "deletedFor", Value: firestore.ArrayUnion(userID)}},
		})
	}

	return r.applyBulk(ctx, pending)
}

func (r *firestoreMessageRepository) WatchRecent(ctx context.Context, conversationID string, limit int, onChange func([]*entity.Message)) error {
	query := r.newestFirst(conversationID)
	if limit > 0 {
		query = query.Limit(limit)
	}

	iter := query.Snapshots(ctx)
	defer iter.Stop()

	for {
		snap, err := iter.Next()
		if err != nil {
			if listenerStopped(ctx, err) {
				return nil
			}
			return errors.Internal("Message listener failed", err)
		}

		docs, err := snap.Documents.GetAll()
		if err != nil {
			return errors.Internal("Failed to read message snapshot", err)
		}
		onChange(decodeMessages(conversationID, docs))
	}
}

type bulkUpdate struct {
	ref     *firestore.DocumentRef
	updates []firestore.Update
}

func (r *firestoreMessageRepository) applyBulk(ctx context.Context, pending []bulkUpdate) (int, error) {
	if len(pending) == 0 {
		return 0, nil
	}

	bw := r.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(pending))
	for _, p := range pending {
		job, err := bw.Update(p.ref, p.updates)
		if err != nil {
			bw.End()
			return 0, errors.Internal("Failed to enqueue message update", err)
		}
		jobs = append(jobs, job)
	}
	bw.End()

	changed := 0
	var firstErr error
	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		changed++
	}
	if firstErr != nil {
		return changed, errors.Internal("Failed to update messages", firstErr)
	}

	return changed, nil
}

func (r *firestoreMessageRepository) collect(ctx context.Context, conversationID string, query firestore.Query) ([]*entity.Message, error) {
	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		logger.Error("Firestore error while listing messages for conversation %s: %v", conversationID, err)
		return nil, errors.Internal("Failed to list messages", err)
	}
	return decodeMessages(conversationID, docs), nil
}

func decodeMessage(conversationID string, doc *firestore.DocumentSnapshot) (*entity.Message, error) {
	var msg entity.Message
	if err := doc.DataTo(&msg); err != nil {
		return nil, errors.Internal("Failed to parse message data", err)
	}
	msg.ID = doc.Ref.ID
	msg.ConversationID = conversationID
	return &msg, nil
}

func decodeMessages(conversationID string, docs []*firestore.DocumentSnapshot) []*entity.Message {
	messages := make([]*entity.Message, 0, len(docs))
	for _, doc := range docs {
		msg, err := decodeMessage(conversationID, doc)
		if err != nil {
			logger.Warn("Skipping malformed message %s in conversation %s: %v", doc.Ref.ID, conversationID, err)
			continue
		}
		messages = append(messages, msg)
	}
	return messages
}
