package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/roomchat/internal/apperror"
	"github.com/sakif/roomchat/internal/auth"
	"github.com/sakif/roomchat/internal/model"
	"github.com/sakif/roomchat/internal/service"
)

// MsgUnknownAction is shown when the entry form posts an action other than
// login or register.
const MsgUnknownAction = "Unknown action."

// AuthHandler serves the entry page (register and log in) and logout.
//
//   - HandleIndex      → GET  /
//   - HandleIndexPost  → POST /   (action=register | action=login)
//   - HandleLogout     → GET  /logout
type AuthHandler struct {
	accounts *service.AccountService
	sessions *auth.SessionManager
	pages    *Renderer
	logger   *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(
	accounts *service.AccountService,
	sessions *auth.SessionManager,
	pages *Renderer,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		accounts: accounts,
		sessions: sessions,
		pages:    pages,
		logger:   logger,
	}
}

// HandleIndex renders the entry form. Logged-in users go straight to the
// room list.
func (h *AuthHandler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.SessionFromContext(r.Context()); ok {
		http.Redirect(w, r, "/chats", http.StatusSeeOther)
		return
	}
	h.pages.render(w, http.StatusOK, pageIndex, pageData{Title: "Welcome"})
}

// HandleIndexPost registers or logs in, depending on the action field.
//
// Success issues the session cookie and redirects to /chats. Any failure
// re-renders the form with a message; only unexpected errors change the
// status code (500).
func (h *AuthHandler) HandleIndexPost(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.SessionFromContext(r.Context()); ok {
		http.Redirect(w, r, "/chats", http.StatusSeeOther)
		return
	}

	if err := r.ParseForm(); err != nil {
		h.pages.render(w, http.StatusBadRequest, pageIndex, pageData{
			Title:   "Welcome",
			Message: "Could not read the form.",
		})
		return
	}

	email := r.PostFormValue("email")
	var (
		user *model.User
		err  error
	)
	switch r.PostFormValue("action") {
	case "register":
		user, err = h.accounts.Register(r.Context(), r.PostFormValue("name"), email, r.PostFormValue("password"))
	case "login":
		user, err = h.accounts.Authenticate(r.Context(), email, r.PostFormValue("password"))
	default:
		h.pages.render(w, http.StatusOK, pageIndex, pageData{Title: "Welcome", Message: MsgUnknownAction})
		return
	}

	if err != nil {
		status := http.StatusOK
		if statusFor(err) == http.StatusInternalServerError {
			status = http.StatusInternalServerError
			h.logger.Error("entry form failed", slog.String("error", err.Error()))
		}
		h.pages.render(w, status, pageIndex, pageData{
			Title:   "Welcome",
			Message: apperror.UserMessage(err),
			Name:    r.PostFormValue("name"),
			Email:   email,
		})
		return
	}

	if err := h.sessions.Issue(w, user.Session()); err != nil {
		h.logger.Error("failed to issue session", slog.String("error", err.Error()))
		h.pages.render(w, http.StatusInternalServerError, pageIndex, pageData{
			Title:   "Welcome",
			Message: apperror.MsgInternal,
		})
		return
	}

	h.logger.Info("user logged in", slog.Int64("userID", user.ID))
	http.Redirect(w, r, "/chats", http.StatusSeeOther)
}

// HandleLogout drops the session and returns to the entry page.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Clear(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
