package handler

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"medchat/internal/adapter/api/middleware"
	"medchat/internal/usecase"
	"medchat/pkg/errors"
)

var (
	conversationHandler *ConversationHandler
	messageHandler      *MessageHandler
	presenceHandler     *PresenceHandler
	directoryHandler    *DirectoryHandler
)

func Setup(
	conversationUseCase *usecase.ConversationUseCase,
	messageUseCase *usecase.MessageUseCase,
	presenceUseCase *usecase.PresenceUseCase,
	directoryUseCase *usecase.DirectoryUseCase,
) {
	conversationHandler = NewConversationHandler(conversationUseCase)
	messageHandler = NewMessageHandler(messageUseCase)
	presenceHandler = NewPresenceHandler(presenceUseCase)
	directoryHandler = NewDirectoryHandler(directoryUseCase)
}

func GetConversationHandler() *ConversationHandler {
	return conversationHandler
}

func GetMessageHandler() *MessageHandler {
	return messageHandler
}

func GetPresenceHandler() *PresenceHandler {
	return presenceHandler
}

func GetDirectoryHandler() *DirectoryHandler {
	return directoryHandler
}

func currentUser(c echo.Context) (string, error) {
	uid := middleware.UserID(c)
	if uid == "" {
		return "", errors.Unauthorized("Authentication required", nil)
	}
	return uid, nil
}

// queryLimit parses ?limit=, returning 0 when absent so the usecase default
// applies.
func queryLimit(c echo.Context, max int) (int, error) {
	raw := c.QueryParam("limit")
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 0, errors.BadRequest("limit must be a positive integer", err)
	}
	if limit > max {
		limit = max
	}
	return limit, nil
}
