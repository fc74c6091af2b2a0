package usecase

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"medchat/internal/domain/entity"
	"medchat/internal/domain/repository"
	"medchat/pkg/errors"
	"medchat/pkg/logger"
)

type ConversationUseCase struct {
	conversationRepo repository.ConversationRepository
	messageRepo      repository.MessageRepository
	userRepo         repository.UserRepository
	messages         *MessageUseCase
	opts             Options
}

func NewConversationUseCase(
	conversationRepo repository.ConversationRepository,
	messageRepo repository.MessageRepository,
	userRepo repository.UserRepository,
	messages *MessageUseCase,
	opts Options,
) *ConversationUseCase {
	return &ConversationUseCase{
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		userRepo:         userRepo,
		messages:         messages,
		opts:             opts.withDefaults(),
	}
}

// ConversationView is a conversation as seen by one participant.
type ConversationView struct {
	*entity.Conversation
	UnreadCount int  `json:"unreadCount"`
	IsMuted     bool `json:"isMuted"`
}

// CreateOrReuse returns the conversation between senderID and
// participantIDs. An identical active conversation is reused as is; a 1:1
// that one side soft-deleted is reactivated; otherwise a new conversation is
// created and firstMessage becomes its first message.
func (uc *ConversationUseCase) CreateOrReuse(ctx context.Context, senderID string, participantIDs []string, firstMessage string) (string, error) {
	participants := entity.SortedUnique(append(append([]string{}, participantIDs...), senderID))
	if len(participants) < 2 {
		return "", errors.BadRequest("A conversation needs at least two participants", nil)
	}

	existing, err := uc.conversationRepo.FindByParticipants(ctx, participants)
	if err == nil {
		logger.Info("CreateOrReuse: Reusing conversation %s", existing.ID)
		return existing.ID, nil
	}
	if !errors.Is(err, errors.CodeNotFound) {
		logger.Error("CreateOrReuse Error: Failed to look up conversation for %v: %v", participants, err)
		return "", err
	}

	if len(participants) == 2 {
		id, ok, err := uc.reactivateOneToOne(ctx, participants[0], participants[1])
		if err != nil {
			return "", err
		}
		if ok {
			return id, nil
		}
	}

	if strings.TrimSpace(firstMessage) == "" {
		return "", errors.BadRequest("First message is required", nil)
	}

	details, err := uc.participantDetails(ctx, participants)
	if err != nil {
		return "", err
	}

	conv := entity.NewConversation(participants, details, uc.opts.Clock())
	if err := uc.conversationRepo.Create(ctx, conv); err != nil {
		logger.Error("CreateOrReuse Error: Failed to create conversation: %v", err)
		return "", err
	}

	if _, err := uc.messages.Send(ctx, SendMessageInput{
		ConversationID: conv.ID,
		SenderID:       senderID,
		Content:        firstMessage,
		Type:           entity.MessageTypeText,
	}); err != nil {
		logger.Error("CreateOrReuse Error: Failed to send first message in conversation %s: %v", conv.ID, err)
		// An empty conversation would be reused later without its first message.
		if delErr := uc.conversationRepo.Delete(ctx, conv.ID); delErr != nil {
			logger.Error("CreateOrReuse Error: Failed to roll back conversation %s: %v", conv.ID, delErr)
		}
		return "", err
	}

	logger.Info("CreateOrReuse: Created conversation %s for %v", conv.ID, participants)
	return conv.ID, nil
}

func (uc *ConversationUseCase) reactivateOneToOne(ctx context.Context, a, b string) (string, bool, error) {
	candidates, err := uc.conversationRepo.ListInvolving(ctx, a)
	if err != nil {
		logger.Error("CreateOrReuse Error: Failed to list conversations involving %s: %v", a, err)
		return "", false, err
	}

	for _, c := range candidates {
		target, ok := c.ReactivationTarget(a, b)
		if !ok {
			continue
		}
		_, err := uc.conversationRepo.Update(ctx, c.ID, func(conv *entity.Conversation) error {
			conv.Reactivate(target)
			conv.UpdatedAt = uc.opts.Clock()
			return nil
		})
		if err != nil {
			logger.Error("CreateOrReuse Error: Failed to reactivate %s in conversation %s: %v", target, c.ID, err)
			return "", false, err
		}
		logger.Info("CreateOrReuse: Reactivated %s in conversation %s", target, c.ID)
		return c.ID, true, nil
	}
	return "", false, nil
}

// participantDetails snapshots every profile concurrently. A missing profile
// leaves an empty snapshot.
func (uc *ConversationUseCase) participantDetails(ctx context.Context, participants []string) (map[string]entity.ParticipantDetail, error) {
	var mu sync.Mutex
	details := make(map[string]entity.ParticipantDetail, len(participants))

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range participants {
		id := id
		g.Go(func() error {
			user, err := uc.userRepo.GetByID(gctx, id)
			detail := entity.ParticipantDetail{}
			switch {
			case err == nil:
				detail = user.Detail()
			case errors.Is(err, errors.CodeNotFound):
				logger.Warn("CreateOrReuse Warning: No profile for participant %s", id)
			default:
				return err
			}
			mu.Lock()
			details[id] = detail
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("CreateOrReuse Error: Failed to load participant profiles: %v", err)
		return nil, err
	}
	return details, nil
}

// MarkRead clears the user's unread count and records them as a reader of
// every message from others they have not read. A non-participant is a
// logged no-op.
func (uc *ConversationUseCase) MarkRead(ctx context.Context, conversationID, userID string) error {
	conv, err := uc.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if !conv.IsActive(userID) {
		logger.Info("MarkRead: User %s is not an active participant in conversation %s, skipping", userID, conversationID)
		return nil
	}

	if _, err := uc.conversationRepo.Update(ctx, conversationID, func(c *entity.Conversation) error {
		if c.UnreadCounts == nil {
			c.UnreadCounts = make(map[string]int)
		}
		c.UnreadCounts[userID] = 0
		return nil
	}); err != nil {
		logger.Error("MarkRead Error: Failed to reset unread count in conversation %s: %v", conversationID, err)
		return err
	}

	n, err := uc.messageRepo.MarkReadBy(ctx, conversationID, userID)
	if err != nil {
		logger.Error("MarkRead Error: Failed to mark messages read in conversation %s: %v", conversationID, err)
		return err
	}
	if n > 0 {
		logger.Info("MarkRead: Marked %d messages read by %s in conversation %s", n, userID, conversationID)
	}
	return nil
}

// MarkUnread flags the conversation as unread for the user.
func (uc *ConversationUseCase) MarkUnread(ctx context.Context, conversationID, userID string) error {
	_, err := uc.conversationRepo.Update(ctx, conversationID, func(c *entity.Conversation) error {
		if !c.IsActive(userID) {
			return errors.NotAParticipant(userID, c.ID)
		}
		if c.UnreadCounts == nil {
			c.UnreadCounts = make(map[string]int)
		}
		c.UnreadCounts[userID] = 1
		return nil
	})
	if err != nil {
		logger.Error("MarkUnread Error: Conversation %s, user %s: %v", conversationID, userID, err)
	}
	return err
}

func (uc *ConversationUseCase) ToggleMute(ctx context.Context, conversationID, userID string, muted bool) error {
	_, err := uc.conversationRepo.Update(ctx, conversationID, func(c *entity.Conversation) error {
		if !c.IsActive(userID) {
			return errors.NotAParticipant(userID, c.ID)
		}
		if c.Muted == nil {
			c.Muted = make(map[string]bool)
		}
		if muted {
			c.Muted[userID] = true
		} else {
			delete(c.Muted, userID)
		}
		return nil
	})
	if err != nil {
		logger.Error("ToggleMute Error: Conversation %s, user %s: %v", conversationID, userID, err)
	}
	return err
}

// SoftDelete hides every current message from the user and moves them to
// removedParticipants. Others keep the conversation untouched.
func (uc *ConversationUseCase) SoftDelete(ctx context.Context, conversationID, userID string) error {
	conv, err := uc.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		logger.Error("SoftDelete Error: Conversation %s not found: %v", conversationID, err)
		return err
	}
	if !conv.IsMember(userID) {
		return errors.NotAParticipant(userID, conversationID)
	}

	n, err := uc.messageRepo.MarkDeletedFor(ctx, conversationID, userID)
	if err != nil {
		logger.Error("SoftDelete Error: Failed to hide messages in conversation %s for %s: %v", conversationID, userID, err)
		return err
	}

	if _, err := uc.conversationRepo.Update(ctx, conversationID, func(c *entity.Conversation) error {
		c.Remove(userID)
		return nil
	}); err != nil {
		logger.Error("SoftDelete Error: Failed to remove %s from conversation %s: %v", userID, conversationID, err)
		return err
	}

	logger.Info("SoftDelete: User %s removed conversation %s (%d messages hidden)", userID, conversationID, n)
	return nil
}

// SetTyping records or clears the user's typing timestamp. Failures are
// logged and never returned.
func (uc *ConversationUseCase) SetTyping(ctx context.Context, conversationID, userID string, isTyping bool) {
	conv, err := uc.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		logger.Warn("SetTyping Warning: Conversation %s, user %s: %v", conversationID, userID, err)
		return
	}
	if !conv.IsActive(userID) {
		logger.Warn("SetTyping Warning: User %s is not an active participant in conversation %s", userID, conversationID)
		return
	}

	var at *time.Time
	if isTyping {
		now := uc.opts.Clock()
		at = &now
	}
	if err := uc.conversationRepo.SetTyping(ctx, conversationID, userID, at); err != nil {
		logger.Warn("SetTyping Warning: Conversation %s, user %s: %v", conversationID, userID, err)
	}
}

// ListConversations returns the user's active conversations, most recently
// updated first.
func (uc *ConversationUseCase) ListConversations(ctx context.Context, userID string) ([]*ConversationView, error) {
	convs, err := uc.conversationRepo.ListByParticipant(ctx, userID)
	if err != nil {
		logger.Error("ListConversations Error: User %s: %v", userID, err)
		return nil, err
	}
	return viewsFor(convs, userID), nil
}

// CountUnread sums the user's unread counts over unmuted conversations.
func (uc *ConversationUseCase) CountUnread(ctx context.Context, userID string) (int, error) {
	convs, err := uc.conversationRepo.ListByParticipant(ctx, userID)
	if err != nil {
		logger.Error("CountUnread Error: User %s: %v", userID, err)
		return 0, err
	}
	total := 0
	for _, c := range convs {
		if c.IsMutedFor(userID) {
			continue
		}
		total += c.UnreadFor(userID)
	}
	return total, nil
}

// SubscribeConversations is the live form of ListConversations.
func (uc *ConversationUseCase) SubscribeConversations(ctx context.Context, userID string, deliver func([]*ConversationView)) *Subscription {
	return startSubscription(ctx, func(ctx context.Context) {
		last := []*ConversationView{}
		err := uc.conversationRepo.WatchByParticipant(ctx, userID, func(convs []*entity.Conversation) {
			last = viewsFor(convs, userID)
			deliver(last)
		})
		if err != nil && ctx.Err() == nil {
			logger.Warn("SubscribeConversations Warning: Listener for %s failed: %v", userID, err)
			deliver(last)
		}
	})
}

// SubscribeTyping delivers who else is typing in the conversation. Entries
// age out at delivery time, and the set is re-evaluated on a ticker so a
// typist that went silent disappears without a further write.
func (uc *ConversationUseCase) SubscribeTyping(ctx context.Context, conversationID, selfID string, deliver func(map[string]time.Time)) (*Subscription, error) {
	conv, err := uc.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.IsMember(selfID) {
		return nil, errors.NotAParticipant(selfID, conversationID)
	}

	return startSubscription(ctx, func(ctx context.Context) {
		updates := make(chan *entity.Conversation, 1)
		watchErr := make(chan error, 1)
		go func() {
			watchErr <- uc.conversationRepo.Watch(ctx, conversationID, func(c *entity.Conversation) {
				// Keep only the newest document.
				select {
				case <-updates:
				default:
				}
				updates <- c
			})
		}()

		ticker := time.NewTicker(uc.opts.TypingRefreshInterval)
		defer ticker.Stop()

		var current *entity.Conversation
		var lastSent map[string]time.Time
		emit := func(force bool) {
			typers := map[string]time.Time{}
			if current != nil {
				typers = current.ActiveTypers(selfID, uc.opts.Clock(), uc.opts.TypingStaleAfter)
			}
			if !force && sameTypers(lastSent, typers) {
				return
			}
			lastSent = typers
			deliver(typers)
		}

		for {
			select {
			case <-ctx.Done():
				return
			case c := <-updates:
				current = c
				emit(lastSent == nil)
			case <-ticker.C:
				if lastSent != nil {
					emit(false)
				}
			case err := <-watchErr:
				if err != nil && ctx.Err() == nil {
					logger.Warn("SubscribeTyping Warning: Listener for conversation %s failed: %v", conversationID, err)
					if lastSent == nil {
						deliver(map[string]time.Time{})
					} else {
						deliver(lastSent)
					}
				}
				return
			}
		}
	}), nil
}

func sameTypers(a, b map[string]time.Time) bool {
	if a == nil || len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if w, ok := b[k]; !ok || !w.Equal(v) {
			return false
		}
	}
	return true
}

func viewsFor(convs []*entity.Conversation, userID string) []*ConversationView {
	views := make([]*ConversationView, 0, len(convs))
	for _, c := range convs {
		views = append(views, &ConversationView{
			Conversation: c,
			UnreadCount:  c.UnreadFor(userID),
			IsMuted:      c.IsMutedFor(userID),
		})
	}
	return views
}
