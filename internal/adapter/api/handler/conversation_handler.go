package handler

import (
	"github.com/labstack/echo/v4"

	"medchat/internal/usecase"
	"medchat/pkg/response"
)

type ConversationHandler struct {
	conversationUseCase *usecase.ConversationUseCase
}

func NewConversationHandler(conversationUseCase *usecase.ConversationUseCase) *ConversationHandler {
	return &ConversationHandler{
		conversationUseCase: conversationUseCase,
	}
}

type createConversationRequest struct {
	ParticipantIDs []string `json:"participantIds" validate:"required,min=1,dive,required"`
	FirstMessage   string   `json:"firstMessage" validate:"required"`
}

type toggleMuteRequest struct {
	Muted bool `json:"muted"`
}

type setTypingRequest struct {
	IsTyping bool `json:"isTyping"`
}

// CreateConversation returns the existing conversation with these
// participants or starts a new one with firstMessage.
func (h *ConversationHandler) CreateConversation(c echo.Context) error {
	var req createConversationRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	userID, err := currentUser(c)
	if err != nil {
		return response.Error(c, err)
	}

	id, err := h.conversationUseCase.CreateOrReuse(c.Request().Context(), userID, req.ParticipantIDs, req.FirstMessage)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, map[string]string{"id": id})
}

func (h *ConversationHandler) ListConversations(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return response.Error(c, err)
	}

	views, err := h.conversationUseCase.ListConversations(c.Request().Context(), userID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.List(c, views, len(views), 0)
}

func (h *ConversationHandler) CountUnread(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return response.Error(c, err)
	}

	total, err := h.conversationUseCase.CountUnread(c.Request().Context(), userID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]int{"unread": total})
}

func (h *ConversationHandler) MarkRead(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return response.Error(c, err)
	}

	if err := h.conversationUseCase.MarkRead(c.Request().Context(), c.Param("id"), userID); err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]string{"message": "Conversation marked as read"})
}

func (h *ConversationHandler) MarkUnread(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return response.Error(c, err)
	}

	if err := h.conversationUseCase.MarkUnread(c.Request().Context(), c.Param("id"), userID); err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]string{"message": "Conversation marked as unread"})
}

func (h *ConversationHandler) ToggleMute(c echo.Context) error {
	var req toggleMuteRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	userID, err := currentUser(c)
	if err != nil {
		return response.Error(c, err)
	}

	if err := h.conversationUseCase.ToggleMute(c.Request().Context(), c.Param("id"), userID, req.Muted); err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]bool{"muted": req.Muted})
}

// DeleteConversation removes the conversation for the caller only.
func (h *ConversationHandler) DeleteConversation(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return response.Error(c, err)
	}

	if err := h.conversationUseCase.SoftDelete(c.Request().Context(), c.Param("id"), userID); err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]string{"message": "Conversation deleted"})
}

func (h *ConversationHandler) SetTyping(c echo.Context) error {
	var req setTypingRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	userID, err := currentUser(c)
	if err != nil {
		return response.Error(c, err)
	}

	h.conversationUseCase.SetTyping(c.Request().Context(), c.Param("id"), userID, req.IsTyping)
	return response.Success(c, map[string]bool{"isTyping": req.IsTyping})
}
