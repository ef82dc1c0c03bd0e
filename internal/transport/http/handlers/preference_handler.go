package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/chigogiggs/converse/internal/service"
	"github.com/chigogiggs/converse/internal/transport/http/middleware"
	"go.uber.org/zap"
)

type PreferenceHandler struct {
	prefService *service.PreferenceService
	logger      *zap.Logger
}

func NewPreferenceHandler(prefService *service.PreferenceService, logger *zap.Logger) *PreferenceHandler {
	return &PreferenceHandler{prefService: prefService, logger: logger}
}

func (h *PreferenceHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	pref, err := h.prefService.Get(r.Context(), userID)
	if err != nil {
		h.logger.Error("get preference", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		return
	}

	writeJSON(w, http.StatusOK, pref)
}

func (h *PreferenceHandler) Set(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var input struct {
		Language string `json:"language"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	if err := h.prefService.Set(r.Context(), userID, input.Language); err != nil {
		if errors.Is(err, service.ErrUnknownLanguage) {
			writeError(w, http.StatusBadRequest, "UNKNOWN_LANGUAGE", "Unsupported language code")
		} else {
			h.logger.Error("set preference", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
