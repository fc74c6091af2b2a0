package usecase

import (
	"bytes"
	"context"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"medchat/internal/domain/entity"
	"medchat/internal/domain/repository"
	"medchat/internal/domain/service"
	"medchat/internal/infrastructure/attachment"
	"medchat/internal/infrastructure/storage"
	"medchat/pkg/errors"
	"medchat/pkg/logger"
)

type MessageUseCase struct {
	conversationRepo repository.ConversationRepository
	messageRepo      repository.MessageRepository
	userRepo         repository.UserRepository
	encoder          *attachment.Encoder
	fileStorage      service.FileStorage
	opts             Options
}

// NewMessageUseCase wires the message store. fileStorage may be nil, in which
// case SendFileMessage is unavailable and attachments are only sent inline.
func NewMessageUseCase(
	conversationRepo repository.ConversationRepository,
	messageRepo repository.MessageRepository,
	userRepo repository.UserRepository,
	encoder *attachment.Encoder,
	fileStorage service.FileStorage,
	opts Options,
) *MessageUseCase {
	if encoder == nil {
		encoder = attachment.NewEncoder(0, 0)
	}
	return &MessageUseCase{
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		userRepo:         userRepo,
		encoder:          encoder,
		fileStorage:      fileStorage,
		opts:             opts.withDefaults(),
	}
}

type SendMessageInput struct {
	ConversationID string
	SenderID       string
	Content        string
	Type           string // defaults to text, or to the attachment category
	Attachment     *attachment.Attachment
	ReplyToID      string
	CallData       *entity.CallData

	// fileData is set by SendFileMessage once the bytes are in the blob store.
	fileData *entity.FileData
}

type FileUploadInput struct {
	ConversationID string
	SenderID       string
	Filename       string
	ContentType    string
	Size           int64
	Content        string
	File           io.Reader
}

// Send is the single write path for every message type.
func (uc *MessageUseCase) Send(ctx context.Context, input SendMessageInput) (string, error) {
	conv, err := uc.conversationRepo.GetByID(ctx, input.ConversationID)
	if err != nil {
		logger.Error("SendMessage Error: Conversation %s not found: %v", input.ConversationID, err)
		return "", err
	}
	if !conv.IsMember(input.SenderID) {
		logger.Error("SendMessage Error: User %s is not a participant in conversation %s", input.SenderID, input.ConversationID)
		return "", errors.NotAParticipant(input.SenderID, input.ConversationID)
	}

	msgType := input.Type
	fileData := input.fileData
	if input.Attachment != nil {
		fileData, err = uc.encoder.Encode(input.Attachment)
		if err != nil {
			logger.Error("SendMessage Error: Attachment %q rejected for conversation %s: %v", input.Attachment.Name, input.ConversationID, err)
			return "", err
		}
	}
	if fileData != nil {
		// The stored type always follows the detected category, so the
		// ceiling checked is the ceiling of the stored type.
		if msgType != "" && msgType != entity.MessageTypeText && msgType != fileData.Category {
			logger.Error("SendMessage Error: Declared type %s does not match %s attachment in conversation %s", msgType, fileData.Category, input.ConversationID)
			return "", errors.BadRequest("Message type "+msgType+" does not match the "+fileData.Category+" attachment", nil)
		}
		msgType = fileData.Category
	}
	if msgType == "" {
		msgType = entity.MessageTypeText
	}
	if !entity.IsValidMessageType(msgType) {
		return "", errors.BadRequest("Unsupported message type "+msgType, nil)
	}
	if msgType == entity.MessageTypeText && strings.TrimSpace(input.Content) == "" {
		return "", errors.BadRequest("Message content is required", nil)
	}
	if msgType != entity.MessageTypeText && msgType != entity.MessageTypeSystem && fileData == nil {
		return "", errors.BadRequest("An attachment is required for "+msgType+" messages", nil)
	}

	var replyTo *entity.ReplyTo
	if input.ReplyToID != "" {
		replyTo, err = uc.replySnapshot(ctx, conv, input.ReplyToID)
		if err != nil {
			return "", err
		}
	}

	message := &entity.Message{
		ID:             uuid.New().String(),
		ConversationID: input.ConversationID,
		Sender:         input.SenderID,
		Content:        input.Content,
		Type:           msgType,
		Timestamp:      uc.opts.Clock(),
		ReadBy:         []string{input.SenderID},
		Status:         entity.MessageStatusDelivered,
		FileData:       fileData,
		DeletedFor:     []string{},
		ReplyTo:        replyTo,
		CallData:       input.CallData,
	}

	if err := uc.messageRepo.Create(ctx, message); err != nil {
		logger.Error("SendMessage Error: Failed to create message for conversation %s: %v", input.ConversationID, err)
		return "", err
	}

	senderID := input.SenderID
	_, err = uc.conversationRepo.Update(ctx, input.ConversationID, func(c *entity.Conversation) error {
		if !c.IsActive(senderID) && !c.Reactivate(senderID) {
			return errors.NotAParticipant(senderID, c.ID)
		}
		restoreOneToOnePeer(c, senderID)
		c.RecordSend(senderID, message.AsLastMessage())
		return nil
	})
	if err != nil {
		logger.Error("SendMessage Error: Failed to update conversation %s after message %s: %v", input.ConversationID, message.ID, err)
		if delErr := uc.messageRepo.Delete(ctx, input.ConversationID, message.ID); delErr != nil {
			logger.Error("SendMessage Error: Failed to roll back message %s: %v", message.ID, delErr)
		}
		return "", err
	}

	return message.ID, nil
}

// restoreOneToOnePeer brings the other side of a two-member conversation
// back when it had removed the conversation, so a new message is never sent
// to nobody. Their earlier messages stay hidden through deletedFor.
func restoreOneToOnePeer(c *entity.Conversation, senderID string) {
	members := c.Members()
	if len(members) != 2 {
		return
	}
	for _, m := range members {
		if m != senderID {
			c.Reactivate(m)
		}
	}
}

func (uc *MessageUseCase) replySnapshot(ctx context.Context, conv *entity.Conversation, messageID string) (*entity.ReplyTo, error) {
	quoted, err := uc.messageRepo.GetByID(ctx, conv.ID, messageID)
	if err != nil {
		logger.Error("SendMessage Error: Reply target %s not found in conversation %s: %v", messageID, conv.ID, err)
		return nil, err
	}

	senderName := quoted.Sender
	if detail, ok := conv.ParticipantDetails[quoted.Sender]; ok && detail.DisplayName != "" {
		senderName = detail.DisplayName
	}
	return quoted.Snapshot(senderName), nil
}

// SendFileMessage uploads the bytes to the blob store and sends a message
// that references them by URL instead of carrying them inline.
func (uc *MessageUseCase) SendFileMessage(ctx context.Context, input FileUploadInput) (string, error) {
	if uc.fileStorage == nil {
		return "", errors.BadRequest("File uploads are not configured", nil)
	}

	conv, err := uc.conversationRepo.GetByID(ctx, input.ConversationID)
	if err != nil {
		return "", err
	}
	if !conv.IsMember(input.SenderID) {
		return "", errors.NotAParticipant(input.SenderID, input.ConversationID)
	}

	// Sniff the header so a missing content type still gets a category.
	head := make([]byte, 261)
	n, err := io.ReadFull(input.File, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", errors.AttachmentProcessing("Failed to read upload", err)
	}
	head = head[:n]

	mime, category := attachment.Detect(input.ContentType, head)
	if err := attachment.CheckSize(category, input.Size); err != nil {
		return "", err
	}

	objectPath := storage.ChatFilePath(input.ConversationID, uc.opts.Clock(), input.Filename)
	url, err := uc.fileStorage.UploadFile(ctx, objectPath, mime, io.MultiReader(bytes.NewReader(head), input.File))
	if err != nil {
		logger.Error("SendFileMessage Error: Upload of %s failed: %v", objectPath, err)
		return "", errors.AttachmentProcessing("Failed to upload file", err)
	}

	id, err := uc.Send(ctx, SendMessageInput{
		ConversationID: input.ConversationID,
		SenderID:       input.SenderID,
		Content:        input.Content,
		Type:           string(category),
		fileData: &entity.FileData{
			URL:      url,
			Name:     input.Filename,
			Size:     input.Size,
			Type:     mime,
			Category: string(category),
		},
	})
	if err != nil {
		if delErr := uc.fileStorage.DeleteFile(ctx, url); delErr != nil {
			logger.Error("SendFileMessage Error: Failed to remove orphaned upload %s: %v", url, delErr)
		}
		return "", err
	}
	return id, nil
}

// SendCallEvent records a call as a system message in the thread.
func (uc *MessageUseCase) SendCallEvent(ctx context.Context, conversationID, initiatorID string, call entity.CallData) (string, error) {
	if call.Type != entity.CallTypeAudio && call.Type != entity.CallTypeVideo {
		return "", errors.BadRequest("Call type must be audio or video", nil)
	}
	switch call.Status {
	case entity.CallStatusStarted, entity.CallStatusEnded, entity.CallStatusMissed, entity.CallStatusDeclined:
	default:
		return "", errors.BadRequest("Unsupported call status "+call.Status, nil)
	}
	call.Initiator = initiatorID

	return uc.Send(ctx, SendMessageInput{
		ConversationID: conversationID,
		SenderID:       initiatorID,
		Content:        call.Summary(),
		Type:           entity.MessageTypeSystem,
		CallData:       &call,
	})
}

// FetchRecent returns the newest page visible to userID, oldest first.
func (uc *MessageUseCase) FetchRecent(ctx context.Context, conversationID, userID string, limit int) ([]*entity.Message, error) {
	if _, err := uc.memberConversation(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = uc.opts.RecentLimit
	}

	messages, err := uc.messageRepo.ListRecent(ctx, conversationID, limit)
	if err != nil {
		logger.Error("FetchRecent Error: Failed to list messages for conversation %s: %v", conversationID, err)
		return nil, err
	}
	return oldestFirst(entity.VisibleTo(messages, userID)), nil
}

// SubscribeRecent delivers the newest visible page, oldest first, now and
// after every change. A failing listener delivers the last known page once
// more and ends the subscription.
func (uc *MessageUseCase) SubscribeRecent(ctx context.Context, conversationID, userID string, limit int, deliver func([]*entity.Message)) (*Subscription, error) {
	if _, err := uc.memberConversation(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = uc.opts.RecentLimit
	}

	return startSubscription(ctx, func(ctx context.Context) {
		last := []*entity.Message{}
		err := uc.messageRepo.WatchRecent(ctx, conversationID, limit, func(messages []*entity.Message) {
			last = oldestFirst(entity.VisibleTo(messages, userID))
			deliver(last)
		})
		if err != nil && ctx.Err() == nil {
			logger.Warn("SubscribeRecent Warning: Listener for conversation %s failed: %v", conversationID, err)
			deliver(last)
		}
	}), nil
}

// FetchOlder returns up to limit visible messages strictly older than before,
// oldest first, for the caller to prepend.
func (uc *MessageUseCase) FetchOlder(ctx context.Context, conversationID, userID string, before time.Time, limit int) ([]*entity.Message, error) {
	if _, err := uc.memberConversation(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = uc.opts.OlderLimit
	}

	messages, err := uc.messageRepo.ListBefore(ctx, conversationID, before, limit)
	if err != nil {
		logger.Error("FetchOlder Error: Failed to list messages before %s for conversation %s: %v", before.Format(time.RFC3339Nano), conversationID, err)
		return nil, err
	}
	return oldestFirst(entity.VisibleTo(messages, userID)), nil
}

// Unsend scrubs a message for everyone but keeps it as a tombstone.
func (uc *MessageUseCase) Unsend(ctx context.Context, conversationID, messageID, senderID string) error {
	message, err := uc.messageRepo.GetByID(ctx, conversationID, messageID)
	if err != nil {
		return err
	}
	if message.Sender != senderID {
		logger.Error("Unsend Error: User %s attempted to unsend message %s sent by %s", senderID, messageID, message.Sender)
		return errors.NotAuthorized("Only the sender can unsend this message")
	}

	updated, err := uc.messageRepo.Update(ctx, conversationID, messageID, func(m *entity.Message) error {
		if m.Sender != senderID {
			return errors.NotAuthorized("Only the sender can unsend this message")
		}
		m.Unsend()
		return nil
	})
	if err != nil {
		logger.Error("Unsend Error: Failed to unsend message %s: %v", messageID, err)
		return err
	}

	return uc.recomputeIfLast(ctx, conversationID, updated, func(m *entity.Message) bool { return !m.IsUnsent() })
}

// DeleteForMe hides a message for userID only. The shared preview cache is
// left alone.
func (uc *MessageUseCase) DeleteForMe(ctx context.Context, conversationID, messageID, userID string) error {
	if _, err := uc.memberConversation(ctx, conversationID, userID); err != nil {
		return err
	}

	_, err := uc.messageRepo.Update(ctx, conversationID, messageID, func(m *entity.Message) error {
		m.DeleteFor(userID)
		return nil
	})
	if err != nil {
		logger.Error("DeleteForMe Error: Failed to delete message %s for %s: %v", messageID, userID, err)
	}
	return err
}

// DeleteForEveryone removes the message document. Sender only.
func (uc *MessageUseCase) DeleteForEveryone(ctx context.Context, conversationID, messageID, senderID string) error {
	message, err := uc.messageRepo.GetByID(ctx, conversationID, messageID)
	if err != nil {
		return err
	}
	if message.Sender != senderID {
		logger.Error("DeleteForEveryone Error: User %s attempted to delete message %s sent by %s", senderID, messageID, message.Sender)
		return errors.NotAuthorized("Only the sender can delete this message for everyone")
	}

	if err := uc.messageRepo.Delete(ctx, conversationID, messageID); err != nil {
		logger.Error("DeleteForEveryone Error: Failed to delete message %s: %v", messageID, err)
		return err
	}

	return uc.recomputeIfLast(ctx, conversationID, message, func(*entity.Message) bool { return true })
}

func (uc *MessageUseCase) recomputeIfLast(ctx context.Context, conversationID string, removed *entity.Message, eligible func(*entity.Message) bool) error {
	conv, err := uc.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if !conv.IsLastMessage(removed) {
		return nil
	}
	return uc.RecomputeLastMessage(ctx, conversationID, removed, eligible)
}

// RecomputeLastMessage rewrites the preview cache from the newest message
// accepted by eligible, or the empty state when there is none. The cache is
// only replaced while it still points at stale, so a send racing with this
// call wins.
func (uc *MessageUseCase) RecomputeLastMessage(ctx context.Context, conversationID string, stale *entity.Message, eligible func(*entity.Message) bool) error {
	var next entity.LastMessage
	latest, err := uc.messageRepo.FindLatest(ctx, conversationID, func(m *entity.Message) bool {
		return m.ID != stale.ID && eligible(m)
	})
	switch {
	case err == nil:
		next = latest.AsLastMessage()
	case errors.Is(err, errors.CodeNotFound):
		next = entity.LastMessage{Content: entity.EmptyLastMessageContent, Timestamp: uc.opts.Clock()}
	default:
		logger.Error("RecomputeLastMessage Error: Failed to find latest message in conversation %s: %v", conversationID, err)
		return err
	}

	_, err = uc.conversationRepo.Update(ctx, conversationID, func(c *entity.Conversation) error {
		if c.IsLastMessage(stale) {
			c.LastMessage = &next
		}
		return nil
	})
	if err != nil {
		logger.Error("RecomputeLastMessage Error: Failed to update conversation %s: %v", conversationID, err)
	}
	return err
}

func (uc *MessageUseCase) memberConversation(ctx context.Context, conversationID, userID string) (*entity.Conversation, error) {
	conv, err := uc.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.IsMember(userID) {
		return nil, errors.NotAParticipant(userID, conversationID)
	}
	return conv, nil
}

func oldestFirst(newestFirst []*entity.Message) []*entity.Message {
	out := make([]*entity.Message, len(newestFirst))
	for i, m := range newestFirst {
		out[len(newestFirst)-1-i] = m
	}
	return out
}
