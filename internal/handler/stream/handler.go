package stream

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/SluiooktueSvg/ia/internal/model/chat"
	"github.com/SluiooktueSvg/ia/internal/service/session"
	"github.com/SluiooktueSvg/ia/pkg/utils"
)

// PlayerHub fans playback requests out to every connected event stream. It is
// the backend-side stand-in for the audio element: the browser actually plays
// the data URL it receives.
type PlayerHub struct {
	mu      sync.Mutex
	subs    map[int]chan chat.Turn
	nextSub int
}

// NewPlayerHub creates an empty hub.
func NewPlayerHub() *PlayerHub {
	return &PlayerHub{subs: make(map[int]chan chat.Turn)}
}

// Play implements session.Player by broadcasting the turn to subscribers.
func (h *PlayerHub) Play(turn chat.Turn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- turn:
		default:
		}
	}
}

func (h *PlayerHub) subscribe() (<-chan chat.Turn, func()) {
	ch := make(chan chat.Turn, 16)

	h.mu.Lock()
	id := h.nextSub
	h.nextSub++
	h.subs[id] = ch
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if existing, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(existing)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Handler streams store mutations and playback requests to the UI over SSE,
// so the message log stays the single reactive source of truth.
type Handler struct {
	controller *session.Controller
	hub        *PlayerHub
}

// New creates the stream handler.
func New(controller *session.Controller, hub *PlayerHub) *Handler {
	return &Handler{controller: controller, hub: hub}
}

// RegisterRoutes mounts the events route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/chat/events", h.handleEvents)
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	utils.SetupSSEHeaders(w)

	storeEvents, cancelStore := h.controller.Subscribe()
	defer cancelStore()
	playEvents, cancelPlay := h.hub.subscribe()
	defer cancelPlay()

	// Initial snapshot so a reconnecting client starts from current state.
	utils.SendSSEEvent(w, flusher, "snapshot", map[string]any{
		"messages":            h.controller.Messages(),
		"hasSentFirstMessage": h.controller.HasSentFirstMessage(),
		"quota":               h.controller.Quota(),
	})

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return

		case event, open := <-storeEvents:
			if !open {
				return
			}
			utils.SendSSEEvent(w, flusher, string(event.Type), map[string]any{
				"turn":  event.Turn,
				"quota": h.controller.Quota(),
			})

		case turn, open := <-playEvents:
			if !open {
				return
			}
			utils.SendSSEEvent(w, flusher, "play", map[string]any{"turn": turn})

		case t := <-ticker.C:
			utils.SendSSEEvent(w, flusher, "heartbeat", map[string]any{
				"time": t.UTC().Format(time.RFC3339),
			})
		}
	}
}

var _ session.Player = (*PlayerHub)(nil)
