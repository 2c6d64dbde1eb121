package chat

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/SluiooktueSvg/ia/internal/model/chat"
	"github.com/SluiooktueSvg/ia/internal/service/quota"
	"github.com/SluiooktueSvg/ia/internal/service/session"
	"github.com/SluiooktueSvg/ia/pkg/utils"
)

// Handler exposes the session controller over REST.
type Handler struct {
	controller *session.Controller
}

// New creates the chat handler.
func New(controller *session.Controller) *Handler {
	return &Handler{controller: controller}
}

// RegisterRoutes mounts the chat routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/chat", h.handleGetSession)
	r.Post("/chat/messages", h.handleSendMessage)
	r.Delete("/chat", h.handleClearChat)
	r.Post("/chat/save", h.handleSaveChat)
	r.Post("/chat/load", h.handleLoadChat)
	r.Post("/chat/messages/{id}/audio", h.handleGenerateAudio)
	r.Post("/chat/messages/{id}/play", h.handlePlayAudio)
}

type sessionPayload struct {
	Messages            []chat.Turn        `json:"messages"`
	HasSentFirstMessage bool               `json:"hasSentFirstMessage"`
	Quota               session.QuotaState `json:"quota"`
}

func (h *Handler) sessionSnapshot() sessionPayload {
	return sessionPayload{
		Messages:            h.controller.Messages(),
		HasSentFirstMessage: h.controller.HasSentFirstMessage(),
		Quota:               h.controller.Quota(),
	}
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.sessionSnapshot())
}

func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Text string `json:"text"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.controller.SendMessage(r.Context(), payload.Text); err != nil {
		status := http.StatusBadGateway
		if quota.Classify(err) == quota.RateLimit {
			status = http.StatusTooManyRequests
		}
		utils.RespondError(w, status, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, h.sessionSnapshot())
}

func (h *Handler) handleClearChat(w http.ResponseWriter, r *http.Request) {
	h.controller.ClearChat()
	utils.RespondJSON(w, http.StatusOK, h.sessionSnapshot())
}

func (h *Handler) handleSaveChat(w http.ResponseWriter, r *http.Request) {
	h.controller.SaveChat()
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

func (h *Handler) handleLoadChat(w http.ResponseWriter, r *http.Request) {
	h.controller.LoadChat(r.Context())
	utils.RespondJSON(w, http.StatusOK, h.sessionSnapshot())
}

func (h *Handler) handleGenerateAudio(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	err := h.controller.GenerateAudio(r.Context(), id)
	switch {
	case err == nil:
		utils.RespondJSON(w, http.StatusAccepted, map[string]string{"status": "generating"})
	case errors.Is(err, session.ErrTurnNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, session.ErrSpeechQuotaExhausted):
		// Expected daily-limit condition, not an alarm.
		utils.RespondJSON(w, http.StatusOK, map[string]string{"notice": err.Error()})
	default:
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	}
}

func (h *Handler) handlePlayAudio(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.controller.PlayAudio(id); err != nil {
		if errors.Is(err, session.ErrTurnNotFound) {
			utils.RespondError(w, http.StatusNotFound, err.Error())
			return
		}
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "playing"})
}
