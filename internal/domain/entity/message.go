package entity

import (
	"fmt"
	"time"
)

const (
	MessageTypeText   = "text"
	MessageTypeImage  = "image"
	MessageTypeAudio  = "audio"
	MessageTypeVideo  = "video"
	MessageTypeFile   = "file"
	MessageTypeSystem = "system"
)

const (
	MessageStatusSent      = "sent"
	MessageStatusDelivered = "delivered"
	MessageStatusRead      = "read"
	MessageStatusUnsent    = "unsent"
)

// UnsentPlaceholder replaces the content of an unsent message.
const UnsentPlaceholder = "This message was unsent"

func IsValidMessageType(t string) bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeAudio, MessageTypeVideo, MessageTypeFile, MessageTypeSystem:
		return true
	}
	return false
}

// FileData describes an attachment. Base64 holds an inline data URL; URL is
// set instead when the bytes live in the blob store.
type FileData struct {
	Base64   string  `json:"base64,omitempty" firestore:"base64,omitempty"`
	URL      string  `json:"url,omitempty" firestore:"url,omitempty"`
	Name     string  `json:"name" firestore:"name"`
	Size     int64   `json:"size" firestore:"size"`
	Type     string  `json:"type" firestore:"type"`
	Category string  `json:"category" firestore:"category"`
	Duration float64 `json:"duration,omitempty" firestore:"duration,omitempty"`
}

// ReplyTo is a snapshot of the quoted message taken at send time.
type ReplyTo struct {
	ID         string `json:"id" firestore:"id"`
	Content    string `json:"content" firestore:"content"`
	Sender     string `json:"sender" firestore:"sender"`
	SenderName string `json:"senderName" firestore:"senderName"`
	Type       string `json:"type" firestore:"type"`
}

const (
	CallTypeAudio = "audio"
	CallTypeVideo = "video"

	CallStatusStarted  = "started"
	CallStatusEnded    = "ended"
	CallStatusMissed   = "missed"
	CallStatusDeclined = "declined"
)

type CallData struct {
	Type      string `json:"type" firestore:"type"`
	Status    string `json:"status" firestore:"status"`
	Initiator string `json:"initiator" firestore:"initiator"`
	Duration  int    `json:"duration" firestore:"duration"` // seconds
}

// Summary renders the call event as message content.
func (d *CallData) Summary() string {
	kind := "Voice call"
	if d.Type == CallTypeVideo {
		kind = "Video call"
	}
	switch d.Status {
	case CallStatusStarted:
		return kind + " started"
	case CallStatusMissed:
		return "Missed " + lowerFirst(kind)
	case CallStatusDeclined:
		return kind + " declined"
	default:
		return fmt.Sprintf("%s ended (%d:%02d)", kind, d.Duration/60, d.Duration%60)
	}
}

type Message struct {
	ID             string    `json:"id" firestore:"id"`
	ConversationID string    `json:"conversationId" firestore:"conversationId"`
	Sender         string    `json:"sender" firestore:"sender"`
	Content        string    `json:"content" firestore:"content"`
	Type           string    `json:"type" firestore:"type"`
	Timestamp      time.Time `json:"timestamp" firestore:"timestamp"`
	Read           bool      `json:"read" firestore:"read"`
	ReadBy         []string  `json:"readBy" firestore:"readBy"`
	Status         string    `json:"status" firestore:"status"`
	FileData       *FileData `json:"fileData,omitempty" firestore:"fileData"`
	DeletedFor     []string  `json:"deletedFor" firestore:"deletedFor"`
	ReplyTo        *ReplyTo  `json:"replyTo,omitempty" firestore:"replyTo,omitempty"`
	CallData       *CallData `json:"callData,omitempty" firestore:"callData,omitempty"`
}

func (m *Message) IsDeletedFor(userID string) bool {
	return containsString(m.DeletedFor, userID)
}

func (m *Message) IsReadBy(userID string) bool {
	return containsString(m.ReadBy, userID)
}

func (m *Message) IsUnsent() bool {
	return m.Status == MessageStatusUnsent
}

// Preview is the text cached as the conversation's last message.
func (m *Message) Preview() string {
	if m.IsUnsent() {
		return UnsentPlaceholder
	}
	if m.Content != "" || m.Type == MessageTypeText || m.Type == MessageTypeSystem {
		return m.Content
	}
	return "Sent a " + m.Type
}

// AsLastMessage builds the preview cache entry for m.
func (m *Message) AsLastMessage() LastMessage {
	return LastMessage{
		MessageID: m.ID,
		Content:   m.Preview(),
		Timestamp: m.Timestamp,
		Sender:    m.Sender,
	}
}

// MarkReadBy records userID as a reader. Returns false if nothing changed.
func (m *Message) MarkReadBy(userID string) bool {
	if m.Sender == userID || m.IsReadBy(userID) {
		return false
	}
	m.ReadBy = append(m.ReadBy, userID)
	m.Read = true
	if !m.IsUnsent() {
		m.Status = MessageStatusRead
	}
	return true
}

// DeleteFor hides the message for userID only.
func (m *Message) DeleteFor(userID string) bool {
	if m.IsDeletedFor(userID) {
		return false
	}
	m.DeletedFor = append(m.DeletedFor, userID)
	return true
}

// Unsend scrubs the content and attachment but keeps the document as a
// tombstone. Reply and call snapshots are dropped with the content.
func (m *Message) Unsend() {
	m.Content = UnsentPlaceholder
	m.Status = MessageStatusUnsent
	m.FileData = nil
	m.ReplyTo = nil
	m.CallData = nil
}

// Snapshot returns the quote stored in replies to m.
func (m *Message) Snapshot(senderName string) *ReplyTo {
	return &ReplyTo{
		ID:         m.ID,
		Content:    m.Preview(),
		Sender:     m.Sender,
		SenderName: senderName,
		Type:       m.Type,
	}
}

func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	out := *m
	out.ReadBy = append([]string{}, m.ReadBy...)
	out.DeletedFor = append([]string{}, m.DeletedFor...)
	if m.FileData != nil {
		fd := *m.FileData
		out.FileData = &fd
	}
	if m.ReplyTo != nil {
		r := *m.ReplyTo
		out.ReplyTo = &r
	}
	if m.CallData != nil {
		cd := *m.CallData
		out.CallData = &cd
	}
	return &out
}

// VisibleTo filters out messages the user deleted for themselves.
func VisibleTo(messages []*Message, userID string) []*Message {
	out := make([]*Message, 0, len(messages))
	for _, m := range messages {
		if m.IsDeletedFor(userID) {
			continue
		}
		out = append(out, m)
	}
	return out
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'A' && b[0] <= 'Z' {
		b[0] += 'a' - 'A'
	}
	return string(b)
}
