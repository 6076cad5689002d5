// Package handler contains the HTTP handlers: server-rendered pages, the
// WebSocket upgrade and the health probe.
//
// Handlers parse the request, call a service, and write the response.
// They hold no business rules of their own.
package handler

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/sakif/roomchat/internal/model"
)

// Page names, one template file each.
const (
	pageIndex    = "index"
	pageChats    = "chats"
	pageChatRoom = "chat_room"
	pageProfile  = "profile"
)

// pageData is the value every page template executes against. Pages use
// the fields they need.
type pageData struct {
	Title   string
	User    *model.SessionUser
	Message string

	// entry form
	Name  string
	Email string

	Rooms []string

	ChatName string
	Messages []model.Message

	Profile   *model.User
	AvatarURL string
}

// Renderer holds the parsed page templates.
//
// Each page is parsed together with base.html into its own set, so every
// page can define "content" without clashing with the others.
type Renderer struct {
	pages  map[string]*template.Template
	logger *slog.Logger
}

// funcs are the helpers available to every page.
var funcs = template.FuncMap{
	// pathEscape makes a room name safe as one /chat/{chat_name} segment.
	"pathEscape": url.PathEscape,
}

// NewRenderer parses base.html plus one file per page from fsys.
func NewRenderer(fsys fs.FS, logger *slog.Logger) (*Renderer, error) {
	r := &Renderer{
		pages:  make(map[string]*template.Template),
		logger: logger,
	}
	for _, name := range []string{pageIndex, pageChats, pageChatRoom, pageProfile} {
		tmpl, err := template.New("base.html").Funcs(funcs).ParseFS(fsys, "base.html", name+".html")
		if err != nil {
			return nil, fmt.Errorf("parsing %s template: %w", name, err)
		}
		r.pages[name] = tmpl
	}
	return r, nil
}

// render executes page into a buffer first so a template error can still
// produce a clean 500 instead of half a page.
func (r *Renderer) render(w http.ResponseWriter, status int, page string, data pageData) {
	tmpl, ok := r.pages[page]
	if !ok {
		r.logger.Error("unknown page", slog.String("page", page))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base", data); err != nil {
		r.logger.Error("failed to render template",
			slog.String("page", page),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}
