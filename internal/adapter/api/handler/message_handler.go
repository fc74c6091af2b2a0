package handler

import (
	"io"
	"mime/multipart"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"medchat/internal/domain/entity"
	"medchat/internal/infrastructure/attachment"
	"medchat/internal/usecase"
	"medchat/pkg/errors"
	"medchat/pkg/response"
)

const (
	maxPageSize = 100

	// Multipart bodies are read at most this far; the encoder rejects
	// anything above its category ceiling.
	maxInlineUpload = 10*1024*1024 + 1
)

type MessageHandler struct {
	messageUseCase *usecase.MessageUseCase
}

func NewMessageHandler(messageUseCase *usecase.MessageUseCase) *MessageHandler {
	return &MessageHandler{
		messageUseCase: messageUseCase,
	}
}

type attachmentRequest struct {
	Name     string  `json:"name" validate:"required"`
	MimeType string  `json:"mimeType"`
	Data     []byte  `json:"data" validate:"required"` // base64 in JSON
	Duration float64 `json:"duration"`
}

type sendMessageRequest struct {
	Content    string             `json:"content"`
	Type       string             `json:"type" validate:"omitempty,oneof=text image audio video file"`
	ReplyTo    string             `json:"replyTo"`
	Attachment *attachmentRequest `json:"attachment" validate:"omitempty"`
}

type callEventRequest struct {
	Type     string `json:"type" validate:"required,oneof=audio video"`
	Status   string `json:"status" validate:"required,oneof=started ended missed declined"`
	Duration int    `json:"duration" validate:"min=0"`
}

// SendMessage accepts JSON, with an optional base64 attachment, or a
// multipart form with content, type, replyTo and file fields.
func (h *MessageHandler) SendMessage(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return response.Error(c, err)
	}

	input := usecase.SendMessageInput{
		ConversationID: c.Param("id"),
		SenderID:       userID,
	}

	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		if err := fillFromMultipart(c, &input); err != nil {
			return response.Error(c, err)
		}
	} else {
		var req sendMessageRequest
		if err := c.Bind(&req); err != nil {
			return response.Error(c, err)
		}
		if err := c.Validate(&req); err != nil {
			return response.Error(c, err)
		}
		input.Content = req.Content
		input.Type = req.Type
		input.ReplyToID = req.ReplyTo
		if req.Attachment != nil {
			input.Attachment = &attachment.Attachment{
				Name:     req.Attachment.Name,
				MimeType: req.Attachment.MimeType,
				Data:     req.Attachment.Data,
				Duration: req.Attachment.Duration,
			}
		}
	}

	id, err := h.messageUseCase.Send(c.Request().Context(), input)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, map[string]string{"id": id})
}

func fillFromMultipart(c echo.Context, input *usecase.SendMessageInput) error {
	input.Content = c.FormValue("content")
	input.Type = c.FormValue("type")
	input.ReplyToID = c.FormValue("replyTo")

	file, err := c.FormFile("file")
	if err == nil {
		a, err := readAttachment(file)
		if err != nil {
			return err
		}
		if d := c.FormValue("duration"); d != "" {
			a.Duration, _ = strconv.ParseFloat(d, 64)
		}
		input.Attachment = a
	}
	return nil
}

func readAttachment(file *multipart.FileHeader) (*attachment.Attachment, error) {
	declared := file.Header.Get(echo.HeaderContentType)

	// A declared type lets oversized uploads fail before the body is read.
	if mime, category := attachment.Detect(declared, nil); mime != "application/octet-stream" {
		if err := attachment.CheckSize(category, file.Size); err != nil {
			return nil, err
		}
	}

	src, err := file.Open()
	if err != nil {
		return nil, errors.AttachmentProcessing("Failed to open upload", err)
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, maxInlineUpload))
	if err != nil {
		return nil, errors.AttachmentProcessing("Failed to read upload", err)
	}
	return &attachment.Attachment{Name: file.Filename, MimeType: declared, Data: data}, nil
}

// UploadFile stores the file in the blob store and sends it as a message.
func (h *MessageHandler) UploadFile(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return response.Error(c, err)
	}

	file, err := c.FormFile("file")
	if err != nil {
		return response.Error(c, errors.BadRequest("Missing or invalid file", err))
	}

	src, err := file.Open()
	if err != nil {
		return response.Error(c, errors.AttachmentProcessing("Failed to open upload", err))
	}
	defer src.Close()

	id, err := h.messageUseCase.SendFileMessage(c.Request().Context(), usecase.FileUploadInput{
		ConversationID: c.Param("id"),
		SenderID:       userID,
		Filename:       file.Filename,
		ContentType:    file.Header.Get(echo.HeaderContentType),
		Size:           file.Size,
		Content:        c.FormValue("content"),
		File:           src,
	})
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, map[string]string{"id": id})
}

func (h *MessageHandler) SendCallEvent(c echo.Context) error {
	var req callEventRequest
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

	id, err := h.messageUseCase.SendCallEvent(c.Request().Context(), c.Param("id"), userID, entity.CallData{
		Type:     req.Type,
		Status:   req.Status,
		Duration: req.Duration,
	})
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, map[string]string{"id": id})
}

// GetMessages returns the newest page, oldest first.
func (h *MessageHandler) GetMessages(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return response.Error(c, err)
	}
	limit, err := queryLimit(c, maxPageSize)
	if err != nil {
		return response.Error(c, err)
	}

	messages, err := h.messageUseCase.FetchRecent(c.Request().Context(), c.Param("id"), userID, limit)
	if err != nil {
		return response.Error(c, err)
	}

	return response.List(c, messages, len(messages), limit)
}

// GetOlderMessages pages backwards from ?before=, an RFC 3339 timestamp.
func (h *MessageHandler) GetOlderMessages(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return response.Error(c, err)
	}
	limit, err := queryLimit(c, maxPageSize)
	if err != nil {
		return response.Error(c, err)
	}

	before, err := time.Parse(time.RFC3339Nano, c.QueryParam("before"))
	if err != nil {
		return response.Error(c, errors.BadRequest("before must be an RFC 3339 timestamp", err))
	}

	messages, err := h.messageUseCase.FetchOlder(c.Request().Context(), c.Param("id"), userID, before, limit)
	if err != nil {
		return response.Error(c, err)
	}

	return response.List(c, messages, len(messages), limit)
}

func (h *MessageHandler) UnsendMessage(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return response.Error(c, err)
	}

	if err := h.messageUseCase.Unsend(c.Request().Context(), c.Param("id"), c.Param("messageId"), userID); err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]string{"message": "Message unsent"})
}

// DeleteMessage hides the message for the caller (?scope=me, the default) or
// removes it for everyone (?scope=everyone, sender only).
func (h *MessageHandler) DeleteMessage(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return response.Error(c, err)
	}

	ctx := c.Request().Context()
	convID, messageID := c.Param("id"), c.Param("messageId")

	switch scope := c.QueryParam("scope"); scope {
	case "", "me":
		err = h.messageUseCase.DeleteForMe(ctx, convID, messageID, userID)
	case "everyone":
		err = h.messageUseCase.DeleteForEveryone(ctx, convID, messageID, userID)
	default:
		err = errors.BadRequest("scope must be me or everyone", nil)
	}
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]string{"message": "Message deleted"})
}
