package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/chigogiggs/converse/internal/domain"
	"github.com/chigogiggs/converse/internal/service"
	"github.com/chigogiggs/converse/internal/transport/http/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxMediaBytes = 10 << 20 // 10 MiB

type MessageHandler struct {
	messageService *service.MessageService
	media          service.BlobStore
	logger         *zap.Logger
}

func NewMessageHandler(messageService *service.MessageService, media service.BlobStore, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{messageService: messageService, media: media, logger: logger}
}

// History returns the full conversation with the user in the path, mapped
// to the caller's view.
func (h *MessageHandler) History(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	otherID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid user ID")
		return
	}

	messages, err := h.messageService.History(r.Context(), userID, otherID)
	if err != nil {
		h.logger.Error("list history", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

// SendMedia uploads a blob and persists an image/voice message pointing at it.
func (h *MessageHandler) SendMedia(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	recipientID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid user ID")
		return
	}

	if err := r.ParseMultipartForm(maxMediaBytes); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_FORM", "Invalid multipart form")
		return
	}

	msgType := r.FormValue("type")
	if msgType != domain.MessageTypeImage && msgType != domain.MessageTypeVoice {
		writeError(w, http.StatusBadRequest, "INVALID_TYPE", "type must be image or voice")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "MISSING_FILE", "file is required")
		return
	}
	defer file.Close()

	blob, err := io.ReadAll(io.LimitReader(file, maxMediaBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "READ_FAILED", "Could not read file")
		return
	}

	path := service.MediaPath(userID, header.Filename)
	contentType := header.Header.Get("Content-Type")
	if err := h.media.Upload(r.Context(), path, contentType, blob); err != nil {
		h.logger.Error("upload media", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "UPLOAD_FAILED", "Could not store media")
		return
	}

	msg, err := h.messageService.SendMedia(r.Context(), userID, recipientID, msgType, path)
	if err != nil {
		h.logger.Error("send media message", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		return
	}

	url, err := h.media.PublicURL(r.Context(), path)
	if err != nil {
		h.logger.Warn("presign media url", zap.Error(err))
	}

	writeJSON(w, http.StatusCreated, map[string]any{"message": msg, "url": url})
}

// MediaURL resolves a stored media path to a fetchable URL.
func (h *MessageHandler) MediaURL(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "MISSING_PATH", "path is required")
		return
	}

	url, err := h.media.PublicURL(r.Context(), path)
	if err != nil {
		h.logger.Error("presign media url", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (h *MessageHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	messageID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid message ID")
		return
	}

	if err := h.messageService.MarkRead(r.Context(), userID, messageID); err != nil {
		switch {
		case errors.Is(err, service.ErrMessageNotFound):
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Message not found")
		case errors.Is(err, service.ErrNotRecipient):
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Only the recipient can mark a message read")
		default:
			h.logger.Error("mark read", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	messageID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid message ID")
		return
	}

	if err := h.messageService.Delete(r.Context(), userID, messageID); err != nil {
		switch {
		case errors.Is(err, service.ErrMessageNotFound):
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Message not found")
		case errors.Is(err, service.ErrNotMessageOwner):
			writeError(w, http.StatusForbidden, "FORBIDDEN", "You can only delete your own messages")
		default:
			h.logger.Error("delete message", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
