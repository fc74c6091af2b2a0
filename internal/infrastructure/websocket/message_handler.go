package websocket

import (
	"encoding/json"
	stderrors "errors"
	"time"

	"medchat/internal/domain/entity"
	"medchat/internal/infrastructure/ratelimit"
	"medchat/internal/usecase"
	"medchat/pkg/errors"
	"medchat/pkg/logger"
)

// Frame types sent by clients.
const (
	MessageTypePing                   = "ping"
	MessageTypeSubscribeMessages      = "subscribe_messages"
	MessageTypeSubscribeTyping        = "subscribe_typing"
	MessageTypeSubscribePresence      = "subscribe_presence"
	MessageTypeSubscribeConversations = "subscribe_conversations"
	MessageTypeUnsubscribe            = "unsubscribe"
	MessageTypeTyping                 = "typing"
	MessageTypeMarkRead               = "mark_read"
)

// Frame types sent by the server.
const (
	MessageTypePong          = "pong"
	MessageTypeSubscribed    = "subscribed"
	MessageTypeUnsubscribed  = "unsubscribed"
	MessageTypeMessages      = "messages"
	MessageTypeTypingUsers   = "typing_users"
	MessageTypePresence      = "presence"
	MessageTypeConversations = "conversations"
	MessageTypeError         = "error"
)

// WSMessage is the envelope of every frame.
type WSMessage struct {
	Type           string      `json:"type"`
	ConversationID string      `json:"conversationId,omitempty"`
	Data           interface{} `json:"data,omitempty"`
	Timestamp      string      `json:"timestamp"`
}

type inboundMessage struct {
	Type           string          `json:"type"`
	ConversationID string          `json:"conversationId"`
	Data           json.RawMessage `json:"data"`
}

type SubscribeMessagesData struct {
	Limit int `json:"limit"`
}

type SubscribePresenceData struct {
	UserID string `json:"userId"`
}

type UnsubscribeData struct {
	Key string `json:"key"`
}

type TypingData struct {
	IsTyping bool `json:"isTyping"`
}

type SubscriptionData struct {
	Key string `json:"key"`
}

type TypingUsersData struct {
	Users map[string]time.Time `json:"users"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func MessagesKey(conversationID string) string { return "messages:" + conversationID }
func TypingKey(conversationID string) string   { return "typing:" + conversationID }
func PresenceKey(userID string) string         { return "presence:" + userID }

const ConversationsKey = "conversations"

// HandleClientMessage processes one frame read from client.
func (m *Manager) HandleClientMessage(client *Client, raw []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		logger.Warn("WebSocket: Failed to unmarshal frame from client %s: %v", client.ID, err)
		m.sendErrorToClient(client, "", errors.BadRequest("Invalid message format", err))
		return
	}

	logger.Debug("WebSocket: Received '%s' from user %s", msg.Type, client.UserID)

	switch msg.Type {
	case MessageTypePing:
		m.sendToClient(client, WSMessage{Type: MessageTypePong, Data: map[string]string{"status": "alive"}})

	case MessageTypeSubscribeMessages:
		m.handleSubscribeMessages(client, msg)

	case MessageTypeSubscribeTyping:
		m.handleSubscribeTyping(client, msg)

	case MessageTypeSubscribePresence:
		m.handleSubscribePresence(client, msg)

	case MessageTypeSubscribeConversations:
		m.handleSubscribeConversations(client)

	case MessageTypeUnsubscribe:
		m.handleUnsubscribe(client, msg)

	case MessageTypeTyping:
		m.handleTyping(client, msg)

	case MessageTypeMarkRead:
		m.handleMarkRead(client, msg)

	default:
		logger.Warn("WebSocket: Unknown message type '%s' from client %s", msg.Type, client.ID)
		m.sendErrorToClient(client, msg.ConversationID, errors.BadRequest("Unknown message type", nil))
	}
}

func decodeData(msg inboundMessage, into interface{}) error {
	if len(msg.Data) == 0 || string(msg.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(msg.Data, into); err != nil {
		return errors.BadRequest("Invalid data for "+msg.Type, err)
	}
	return nil
}

func requireConversation(msg inboundMessage) error {
	if msg.ConversationID == "" {
		return errors.BadRequest("conversationId is required for "+msg.Type, nil)
	}
	return nil
}

func (m *Manager) handleSubscribeMessages(client *Client, msg inboundMessage) {
	var data SubscribeMessagesData
	if err := firstError(requireConversation(msg), decodeData(msg, &data)); err != nil {
		m.sendErrorToClient(client, msg.ConversationID, err)
		return
	}

	convID := msg.ConversationID
	ack := newAckGate()
	sub, err := m.services.Messages.SubscribeRecent(client.Context(), convID, client.UserID, data.Limit, func(messages []*entity.Message) {
		if ack.wait(client) {
			m.sendToClient(client, WSMessage{Type: MessageTypeMessages, ConversationID: convID, Data: messages})
		}
	})
	if err != nil {
		m.sendErrorToClient(client, convID, err)
		return
	}
	m.subscribed(client, MessagesKey(convID), convID, sub, ack)
}

func (m *Manager) handleSubscribeTyping(client *Client, msg inboundMessage) {
	if err := requireConversation(msg); err != nil {
		m.sendErrorToClient(client, "", err)
		return
	}

	convID := msg.ConversationID
	ack := newAckGate()
	sub, err := m.services.Conversations.SubscribeTyping(client.Context(), convID, client.UserID, func(users map[string]time.Time) {
		if ack.wait(client) {
			m.sendToClient(client, WSMessage{Type: MessageTypeTypingUsers, ConversationID: convID, Data: TypingUsersData{Users: users}})
		}
	})
	if err != nil {
		m.sendErrorToClient(client, convID, err)
		return
	}
	m.subscribed(client, TypingKey(convID), convID, sub, ack)
}

func (m *Manager) handleSubscribePresence(client *Client, msg inboundMessage) {
	var data SubscribePresenceData
	if err := decodeData(msg, &data); err != nil {
		m.sendErrorToClient(client, "", err)
		return
	}
	if data.UserID == "" {
		m.sendErrorToClient(client, "", errors.BadRequest("userId is required", nil))
		return
	}

	ack := newAckGate()
	sub := m.services.Presence.SubscribeOnlineStatus(client.Context(), data.UserID, func(p entity.Presence) {
		if ack.wait(client) {
			m.sendToClient(client, WSMessage{Type: MessageTypePresence, Data: p})
		}
	})
	m.subscribed(client, PresenceKey(data.UserID), "", sub, ack)
}

func (m *Manager) handleSubscribeConversations(client *Client) {
	ack := newAckGate()
	sub := m.services.Conversations.SubscribeConversations(client.Context(), client.UserID, func(views []*usecase.ConversationView) {
		if ack.wait(client) {
			m.sendToClient(client, WSMessage{Type: MessageTypeConversations, Data: views})
		}
	})
	m.subscribed(client, ConversationsKey, "", sub, ack)
}

// ackGate holds a subscription's deliveries until its "subscribed" frame is
// queued. Deliveries run on the subscription goroutine, never inline.
type ackGate chan struct{}

func newAckGate() ackGate { return make(ackGate) }

func (g ackGate) open() { close(g) }

// wait reports false when the client went away before the ack was queued.
func (g ackGate) wait(client *Client) bool {
	select {
	case <-g:
		return true
	case <-client.Context().Done():
		return false
	}
}

func (m *Manager) subscribed(client *Client, key, convID string, sub *usecase.Subscription, ack ackGate) {
	client.track(key, sub)
	m.sendToClient(client, WSMessage{Type: MessageTypeSubscribed, ConversationID: convID, Data: SubscriptionData{Key: key}})
	ack.open()
}

func (m *Manager) handleUnsubscribe(client *Client, msg inboundMessage) {
	var data UnsubscribeData
	if err := decodeData(msg, &data); err != nil {
		m.sendErrorToClient(client, "", err)
		return
	}
	if !client.untrack(data.Key) {
		m.sendErrorToClient(client, "", errors.NotFound("Subscription", nil))
		return
	}
	m.sendToClient(client, WSMessage{Type: MessageTypeUnsubscribed, Data: SubscriptionData{Key: data.Key}})
}

func (m *Manager) handleTyping(client *Client, msg inboundMessage) {
	var data TypingData
	if err := firstError(requireConversation(msg), decodeData(msg, &data)); err != nil {
		m.sendErrorToClient(client, msg.ConversationID, err)
		return
	}

	// Clearing is always allowed so a limited client can still stop typing.
	if data.IsTyping && m.services.RateLimiter != nil {
		if ok, _ := m.services.RateLimiter.Allow(client.UserID, ratelimit.ActionTyping); !ok {
			logger.Debug("WebSocket: Typing from %s rate limited", client.UserID)
			return
		}
	}
	m.services.Conversations.SetTyping(client.Context(), msg.ConversationID, client.UserID, data.IsTyping)
}

func (m *Manager) handleMarkRead(client *Client, msg inboundMessage) {
	if err := requireConversation(msg); err != nil {
		m.sendErrorToClient(client, "", err)
		return
	}
	if err := m.services.Conversations.MarkRead(client.Context(), msg.ConversationID, client.UserID); err != nil {
		m.sendErrorToClient(client, msg.ConversationID, err)
	}
}

func (m *Manager) sendToClient(client *Client, message WSMessage) {
	message.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	frame, err := json.Marshal(message)
	if err != nil {
		logger.Error("WebSocket: Failed to marshal '%s' for client %s: %v", message.Type, client.ID, err)
		return
	}
	client.enqueue(frame)
}

func (m *Manager) sendErrorToClient(client *Client, convID string, err error) {
	data := ErrorData{Code: errors.CodeInternal, Message: "Internal server error"}
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		data = ErrorData{Code: appErr.Code, Message: appErr.Message}
	}
	m.sendToClient(client, WSMessage{Type: MessageTypeError, ConversationID: convID, Data: data})
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
