package chat

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"lifehub/internal/media"
	"lifehub/internal/middleware"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // TODO tighten once the frontend origin list is settled
	},
}

type Handler struct {
	hub       *Hub
	svc       *Service
	media     *media.Store
	maxUpload int64
	log       *zap.Logger
}

func NewHandler(hub *Hub, svc *Service, mediaStore *media.Store, maxUpload int64, log *zap.Logger) *Handler {
	return &Handler{
		hub:       hub,
		svc:       svc,
		media:     mediaStore,
		maxUpload: maxUpload,
		log:       log,
	}
}

// Routes mounts the chat API on an already-authenticated router group.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/ws", h.ServeWs)
	r.Post("/api/conversations", h.StartConversation)
	r.Get("/api/conversations", h.ListConversations)
	r.Get("/api/conversations/{conversationID}/messages", h.GetMessages)
	r.Post("/api/conversations/{conversationID}/read", h.MarkRead)
	r.Post("/api/messages", h.SendMessage)
}

func (h *Handler) principal(r *http.Request) (Principal, bool) {
	userID, ok := r.Context().Value(middleware.UserKey).(int)
	username, ok2 := r.Context().Value(middleware.UsernameKey).(string)
	if !ok || !ok2 {
		return Principal{}, false
	}
	return Principal{ID: userID, Username: username}, true
}

// ServeWs upgrades to a websocket. The JWT middleware already validated the
// credential; without it the request never gets here, so a bad token
// refuses the connection rather than individual calls.
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := newClient(h.hub, conn, h.svc, h.log, p.ID, p.Username)
	h.hub.Register <- client

	go client.WritePump()
	go client.ReadPump()
}

func (h *Handler) StartConversation(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req struct {
		UserID int `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == 0 {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	conv, created, err := h.svc.StartConversation(r.Context(), p.ID, req.UserID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, conv)
}

func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	summaries, err := h.svc.ListConversations(r.Context(), p.ID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if summaries == nil {
		summaries = []ConversationSummary{}
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	convID, err := strconv.Atoi(chi.URLParam(r, "conversationID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid conversation id")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	views, err := h.svc.ListMessages(r.Context(), p.ID, convID, limit, offset)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if views == nil {
		views = []*MessageView{}
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	convID, err := strconv.Atoi(chi.URLParam(r, "conversationID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid conversation id")
		return
	}

	count, err := h.svc.MarkRead(r.Context(), p.ID, convID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Messages marked as read",
		"count":   count,
	})
}

// SendMessage is the synchronous delivery path: multipart form with an
// optional "media" file. An attachment accepted to disk is rolled back if
// the message itself cannot be persisted.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid or oversized request body")
		return
	}

	convID, err := strconv.Atoi(r.FormValue("conversation_id"))
	if err != nil || convID <= 0 {
		writeError(w, http.StatusBadRequest, "conversation_id is required")
		return
	}

	in := SendInput{
		ConversationID: convID,
		Content:        r.FormValue("content"),
		KindHint:       r.FormValue("message_type"),
	}

	file, header, err := r.FormFile("media")
	switch {
	case err == nil:
		defer file.Close()
		mediaType := header.Header.Get("Content-Type")
		if mediaType == "" {
			mediaType = "application/octet-stream"
		}
		ref, err := h.media.Save(file, header.Filename, mediaType)
		if err != nil {
			h.log.Error("store attachment", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "could not store attachment")
			return
		}
		in.Media = ref
	case errors.Is(err, http.ErrMissingFile):
		// text-only message
	default:
		writeError(w, http.StatusBadRequest, "invalid media upload")
		return
	}

	view, err := h.svc.Send(r.Context(), p, in)
	if err != nil {
		if in.Media != nil {
			if rmErr := h.media.Remove(in.Media.URL); rmErr != nil {
				h.log.Error("roll back attachment", zap.String("url", in.Media.URL), zap.Error(rmErr))
			}
		}
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, view)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrConversationNotFound):
		writeError(w, http.StatusNotFound, "Conversation not found")
	case errors.Is(err, ErrSelfConversation):
		writeError(w, http.StatusBadRequest, "Cannot create conversation with yourself")
	case errors.Is(err, ErrMissingConversation):
		writeError(w, http.StatusBadRequest, "Conversation ID is required")
	default:
		h.log.Error("chat request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
