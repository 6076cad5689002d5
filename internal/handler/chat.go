package handler

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/roomchat/internal/auth"
	"github.com/sakif/roomchat/internal/service"
)

// ChatHandler serves the room list and the room pages. Both require a
// session (auth.RequireSession).
type ChatHandler struct {
	history *service.HistoryService
	pages   *Renderer
	logger  *slog.Logger
}

// NewChatHandler creates a ChatHandler.
func NewChatHandler(history *service.HistoryService, pages *Renderer, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{history: history, pages: pages, logger: logger}
}

// HandleChats renders the room list.
//
// HTTP: GET /chats
func (h *ChatHandler) HandleChats(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.SessionFromContext(r.Context())

	rooms, err := h.history.RoomList(r.Context())
	if err != nil {
		h.logger.Error("failed to list rooms", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	h.pages.render(w, http.StatusOK, pageChats, pageData{
		Title: "Chats",
		User:  &user,
		Rooms: rooms,
	})
}

// HandleChatRoom renders one room with its full history, oldest first.
// Rooms are implicit: an unknown name renders an empty room.
//
// HTTP: GET /chat/{chat_name}
func (h *ChatHandler) HandleChatRoom(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.SessionFromContext(r.Context())

	room := chi.URLParam(r, "chat_name")
	if unescaped, err := url.PathUnescape(room); err == nil {
		room = unescaped
	}

	messages, err := h.history.History(r.Context(), room)
	if err != nil {
		writeError(w, err)
		return
	}

	h.pages.render(w, http.StatusOK, pageChatRoom, pageData{
		Title:    room,
		User:     &user,
		ChatName: room,
		Messages: messages,
	})
}
