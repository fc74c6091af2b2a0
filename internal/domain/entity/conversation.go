package entity

import (
	"sort"
	"time"
)

// EmptyLastMessageContent is cached when a conversation has no eligible
// message left to preview.
const EmptyLastMessageContent = "No messages yet"

// ParticipantDetail is a profile snapshot taken when the conversation is
// created. It is not kept in sync with the user document.
type ParticipantDetail struct {
	DisplayName string `json:"displayName" firestore:"displayName"`
	PhotoURL    string `json:"photoURL" firestore:"photoURL"`
	Role        string `json:"role" firestore:"role"`
	Specialty   string `json:"specialty,omitempty" firestore:"specialty,omitempty"`
	DOB         string `json:"dob,omitempty" firestore:"dob,omitempty"`
}

type LastMessage struct {
	MessageID string    `json:"messageId,omitempty" firestore:"messageId,omitempty"`
	Content   string    `json:"content" firestore:"content"`
	Timestamp time.Time `json:"timestamp" firestore:"timestamp"`
	Sender    string    `json:"sender" firestore:"sender"`
}

type Conversation struct {
	ID                  string                       `json:"id" firestore:"id"`
	Participants        []string                     `json:"participants" firestore:"participants"`
	ParticipantDetails  map[string]ParticipantDetail `json:"participantDetails" firestore:"participantDetails"`
	UnreadCounts        map[string]int               `json:"unreadCounts" firestore:"unreadCounts"`
	Muted               map[string]bool              `json:"muted" firestore:"muted"`
	RemovedParticipants []string                     `json:"removedParticipants" firestore:"removedParticipants"`
	LastMessage         *LastMessage                 `json:"lastMessage,omitempty" firestore:"lastMessage"`
	TypingUsers         map[string]*time.Time        `json:"typingUsers,omitempty" firestore:"typingUsers"`
	CreatedAt           time.Time                    `json:"createdAt" firestore:"createdAt"`
	UpdatedAt           time.Time                    `json:"updatedAt" firestore:"updatedAt"`
}

// NewConversation builds a conversation with sorted participants and zeroed
// bookkeeping maps.
func NewConversation(participants []string, details map[string]ParticipantDetail, now time.Time) *Conversation {
	sorted := SortedUnique(participants)
	unread := make(map[string]int, len(sorted))
	for _, p := range sorted {
		unread[p] = 0
	}
	if details == nil {
		details = make(map[string]ParticipantDetail)
	}
	return &Conversation{
		Participants:        sorted,
		ParticipantDetails:  details,
		UnreadCounts:        unread,
		Muted:               make(map[string]bool),
		RemovedParticipants: []string{},
		TypingUsers:         make(map[string]*time.Time),
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

func (c *Conversation) IsActive(userID string) bool {
	return containsString(c.Participants, userID)
}

func (c *Conversation) IsRemoved(userID string) bool {
	return containsString(c.RemovedParticipants, userID)
}

// IsMember reports whether the user is active or soft-removed.
func (c *Conversation) IsMember(userID string) bool {
	return c.IsActive(userID) || c.IsRemoved(userID)
}

// Members returns active and removed users together, sorted.
func (c *Conversation) Members() []string {
	all := make([]string, 0, len(c.Participants)+len(c.RemovedParticipants))
	all = append(all, c.Participants...)
	all = append(all, c.RemovedParticipants...)
	return SortedUnique(all)
}

// Remove moves the user from Participants to RemovedParticipants and clears
// their unread count. Returns false if the user was not active.
func (c *Conversation) Remove(userID string) bool {
	if !c.IsActive(userID) {
		return false
	}
	c.Participants = removeString(c.Participants, userID)
	if !c.IsRemoved(userID) {
		c.RemovedParticipants = append(c.RemovedParticipants, userID)
	}
	c.ensureMaps()
	c.UnreadCounts[userID] = 0
	delete(c.TypingUsers, userID)
	return true
}

// Reactivate moves a removed user back into Participants. Returns false if
// the user was not removed.
func (c *Conversation) Reactivate(userID string) bool {
	if !c.IsRemoved(userID) {
		return false
	}
	c.RemovedParticipants = removeString(c.RemovedParticipants, userID)
	c.Participants = SortedUnique(append(c.Participants, userID))
	return true
}

// ReactivationTarget reports whether the conversation is a soft-deleted 1:1
// between a and b, with exactly one of them still active and no third member.
// It returns the user that has to be moved back into Participants.
func (c *Conversation) ReactivationTarget(a, b string) (string, bool) {
	members := c.Members()
	if len(members) != 2 || !containsString(members, a) || !containsString(members, b) {
		return "", false
	}
	switch {
	case c.IsActive(a) && c.IsRemoved(b):
		return b, true
	case c.IsActive(b) && c.IsRemoved(a):
		return a, true
	}
	return "", false
}

// RecordSend applies the bookkeeping of a newly written message: the sender's
// unread count resets, every other active participant gets one more, and the
// preview cache points at the new message.
func (c *Conversation) RecordSend(senderID string, last LastMessage) {
	c.ensureMaps()
	for _, p := range c.Participants {
		if p == senderID {
			continue
		}
		c.UnreadCounts[p]++
	}
	c.UnreadCounts[senderID] = 0
	c.LastMessage = &last
	delete(c.TypingUsers, senderID)
	if last.Timestamp.After(c.UpdatedAt) {
		c.UpdatedAt = last.Timestamp
	}
}

// IsLastMessage reports whether the preview cache refers to m.
func (c *Conversation) IsLastMessage(m *Message) bool {
	if c.LastMessage == nil || m == nil {
		return false
	}
	if c.LastMessage.MessageID != "" {
		return c.LastMessage.MessageID == m.ID
	}
	return c.LastMessage.Sender == m.Sender && c.LastMessage.Timestamp.Equal(m.Timestamp)
}

func (c *Conversation) UnreadFor(userID string) int {
	if c.UnreadCounts == nil {
		return 0
	}
	return c.UnreadCounts[userID]
}

func (c *Conversation) IsMutedFor(userID string) bool {
	return c.Muted != nil && c.Muted[userID]
}

// ActiveTypers returns the users other than self whose typing timestamp is
// younger than staleAfter at now.
func (c *Conversation) ActiveTypers(self string, now time.Time, staleAfter time.Duration) map[string]time.Time {
	active := make(map[string]time.Time)
	for userID, at := range c.TypingUsers {
		if userID == self || at == nil || !c.IsActive(userID) {
			continue
		}
		if now.Sub(*at) >= staleAfter {
			continue
		}
		active[userID] = *at
	}
	return active
}

func (c *Conversation) ensureMaps() {
	if c.UnreadCounts == nil {
		c.UnreadCounts = make(map[string]int)
	}
	if c.Muted == nil {
		c.Muted = make(map[string]bool)
	}
	if c.TypingUsers == nil {
		c.TypingUsers = make(map[string]*time.Time)
	}
}

// Clone returns a deep copy.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	out.Participants = append([]string{}, c.Participants...)
	out.RemovedParticipants = append([]string{}, c.RemovedParticipants...)
	out.ParticipantDetails = make(map[string]ParticipantDetail, len(c.ParticipantDetails))
	for k, v := range c.ParticipantDetails {
		out.ParticipantDetails[k] = v
	}
	out.UnreadCounts = make(map[string]int, len(c.UnreadCounts))
	for k, v := range c.UnreadCounts {
		out.UnreadCounts[k] = v
	}
	out.Muted = make(map[string]bool, len(c.Muted))
	for k, v := range c.Muted {
		out.Muted[k] = v
	}
	out.TypingUsers = make(map[string]*time.Time, len(c.TypingUsers))
	for k, v := range c.TypingUsers {
		if v == nil {
			out.TypingUsers[k] = nil
			continue
		}
		t := *v
		out.TypingUsers[k] = &t
	}
	if c.LastMessage != nil {
		lm := *c.LastMessage
		out.LastMessage = &lm
	}
	return &out
}

// SortedUnique returns a sorted copy of ids without duplicates or blanks.
func SortedUnique(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func containsString(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

func removeString(slice []string, item string) []string {
	out := make([]string, 0, len(slice))
	for _, s := range slice {
		if s != item {
			out = append(out, s)
		}
	}
	return out
}
