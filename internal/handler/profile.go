package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/roomchat/internal/apperror"
	"github.com/sakif/roomchat/internal/auth"
	"github.com/sakif/roomchat/internal/avatar"
	"github.com/sakif/roomchat/internal/service"
)

// multipartOverhead is the allowance for the non-file parts of the
// profile form on top of the avatar limit.
const multipartOverhead = 64 << 10

// ProfileHandler shows and updates the logged-in user's profile.
type ProfileHandler struct {
	accounts       *service.AccountService
	sessions       *auth.SessionManager
	avatars        avatar.Store
	pages          *Renderer
	maxAvatarBytes int64
	logger         *slog.Logger
}

// NewProfileHandler creates a ProfileHandler. maxAvatarBytes caps the
// uploaded file size.
func NewProfileHandler(
	accounts *service.AccountService,
	sessions *auth.SessionManager,
	avatars avatar.Store,
	pages *Renderer,
	maxAvatarBytes int64,
	logger *slog.Logger,
) *ProfileHandler {
	return &ProfileHandler{
		accounts:       accounts,
		sessions:       sessions,
		avatars:        avatars,
		pages:          pages,
		maxAvatarBytes: maxAvatarBytes,
		logger:         logger,
	}
}

// HandleProfile renders the profile from a fresh read of the users row.
//
// HTTP: GET /profile
func (h *ProfileHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	h.renderProfile(w, r, http.StatusOK, "")
}

// HandleProfileUpdate saves the bio and, when a file was chosen, a new
// avatar. An upload with an empty filename leaves the avatar unchanged.
// On success the session cookie is re-issued so the snapshot carries the
// new avatar, and the browser is redirected back to GET /profile.
//
// HTTP: POST /profile (multipart/form-data: about, avatar)
func (h *ProfileHandler) HandleProfileUpdate(w http.ResponseWriter, r *http.Request) {
	session, _ := auth.SessionFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.maxAvatarBytes+multipartOverhead)
	if err := r.ParseMultipartForm(h.maxAvatarBytes); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			h.renderProfile(w, r, http.StatusRequestEntityTooLarge, "Avatar is too large.")
			return
		}
		if !errors.Is(err, http.ErrNotMultipart) {
			h.renderProfile(w, r, http.StatusBadRequest, "Could not read the form.")
			return
		}
		// Plain urlencoded form: only the bio can change.
		if err := r.ParseForm(); err != nil {
			h.renderProfile(w, r, http.StatusBadRequest, "Could not read the form.")
			return
		}
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	user, err := h.accounts.Get(r.Context(), session.ID)
	if err != nil {
		h.handleMissingUser(w, r, err)
		return
	}

	avatarRef := user.Avatar
	file, header, err := r.FormFile("avatar")
	switch {
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		// no file chosen
	case err != nil:
		h.renderProfile(w, r, http.StatusBadRequest, "Could not read the avatar upload.")
		return
	default:
		defer file.Close()
		if header.Filename != "" {
			avatarRef, err = h.avatars.Save(r.Context(), header.Filename, file)
			if err != nil {
				h.logger.Warn("avatar upload failed",
					slog.Int64("userID", user.ID),
					slog.String("error", err.Error()),
				)
				h.renderProfile(w, r, statusFor(err), apperror.UserMessage(err))
				return
			}
		}
	}

	if err := h.accounts.UpdateProfile(r.Context(), user.ID, r.FormValue("about"), avatarRef); err != nil {
		if avatarRef != user.Avatar {
			h.discardAvatar(r.Context(), avatarRef)
		}
		h.renderProfile(w, r, statusFor(err), apperror.UserMessage(err))
		return
	}

	session.Avatar = avatarRef
	if err := h.sessions.Issue(w, session); err != nil {
		h.logger.Error("failed to re-issue session", slog.String("error", err.Error()))
	}

	http.Redirect(w, r, "/profile", http.StatusSeeOther)
}

// discardAvatar removes an upload whose profile update did not go through.
func (h *ProfileHandler) discardAvatar(ctx context.Context, ref string) {
	if err := h.avatars.Delete(context.WithoutCancel(ctx), ref); err != nil {
		h.logger.Warn("failed to remove orphaned avatar",
			slog.String("avatar", ref),
			slog.String("error", err.Error()),
		)
	}
}

func (h *ProfileHandler) renderProfile(w http.ResponseWriter, r *http.Request, status int, message string) {
	session, _ := auth.SessionFromContext(r.Context())

	user, err := h.accounts.Get(r.Context(), session.ID)
	if err != nil {
		h.handleMissingUser(w, r, err)
		return
	}

	h.pages.render(w, status, pageProfile, pageData{
		Title:     "Profile",
		User:      &session,
		Message:   message,
		Profile:   user,
		AvatarURL: h.avatars.URL(user.Avatar),
	})
}

// handleMissingUser covers a valid cookie whose users row is gone (for
// example after the database was reset): the session is dropped.
func (h *ProfileHandler) handleMissingUser(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, apperror.ErrNotFound) {
		h.sessions.Clear(w)
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	h.logger.Error("failed to load profile", slog.String("error", err.Error()))
	writeError(w, err)
}
