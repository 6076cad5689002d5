package handler

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sakif/roomchat/internal/apperror"
	"github.com/sakif/roomchat/internal/auth"
	"github.com/sakif/roomchat/internal/chat"
	"github.com/sakif/roomchat/internal/service"
)

// WSConfig carries the upgrade-time settings of the real-time channel.
type WSConfig struct {
	AllowedOrigins  []string
	BindSender      bool
	MaxMessageBytes int64
	RateBurst       int
	RateInterval    time.Duration
}

// WSHandler upgrades /ws requests into chat clients.
type WSHandler struct {
	hub      *chat.Hub
	sink     chat.Sink
	upgrader websocket.Upgrader
	cfg      WSConfig
	logger   *slog.Logger
}

// NewWSHandler creates a WSHandler that registers clients with hub and
// feeds their messages to sink.
func NewWSHandler(hub *chat.Hub, sink chat.Sink, cfg WSConfig, logger *slog.Logger) *WSHandler {
	h := &WSHandler{
		hub:    hub,
		sink:   sink,
		cfg:    cfg,
		logger: logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     newOriginChecker(cfg.AllowedOrigins, logger),
	}
	return h
}

// HandleWS upgrades the connection. The room being viewed comes from the
// ?chat= query parameter and may be empty. When sender binding is on, an
// anonymous caller is refused with 401 before the upgrade.
//
// HTTP: GET /ws?chat={room}
func (h *WSHandler) HandleWS(w http.ResponseWriter, r *http.Request) {
	opts := chat.ClientOptions{
		Room:            strings.TrimSpace(r.URL.Query().Get("chat")),
		MaxMessageBytes: h.cfg.MaxMessageBytes,
		RateBurst:       h.cfg.RateBurst,
		RateInterval:    h.cfg.RateInterval,
	}
	if opts.Room != "" {
		if err := service.ValidateRoomName(opts.Room); err != nil {
			writeError(w, err)
			return
		}
	}

	if user, ok := auth.SessionFromContext(r.Context()); ok {
		opts.Identity = &user
	} else if h.cfg.BindSender {
		writeError(w, apperror.Unauthenticated())
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	client := chat.NewClient(conn, h.hub, h.sink, opts, h.logger)
	if err := h.hub.Register(client); err != nil {
		h.logger.Warn("rejecting connection",
			slog.String("conn", client.ID()),
			slog.String("chat", client.Room()),
			slog.String("error", err.Error()),
		)
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		_ = conn.Close()
	}
}

// newOriginChecker returns the upgrader's CheckOrigin.
//
// With no configured origins only same-host requests are accepted. "*"
// accepts everything. A request without an Origin header is not from a
// browser and is accepted.
func newOriginChecker(origins []string, logger *slog.Logger) func(*http.Request) bool {
	allowed := make(map[string]struct{}, len(origins))
	allowAll := false
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "*" {
			allowAll = true
			continue
		}
		if n, ok := normalizeOrigin(o); ok {
			allowed[n] = struct{}{}
		} else if o != "" {
			logger.Warn("ignoring invalid origin in configuration", slog.String("origin", o))
		}
	}

	return func(r *http.Request) bool {
		header := r.Header.Get("Origin")
		if header == "" || allowAll {
			return true
		}

		origin, ok := normalizeOrigin(header)
		if !ok {
			return false
		}

		if len(allowed) == 0 {
			u, _ := url.Parse(origin)
			if strings.EqualFold(u.Host, r.Host) {
				return true
			}
		} else if _, ok := allowed[origin]; ok {
			return true
		}

		logger.Warn("blocked websocket connection from disallowed origin", slog.String("origin", header))
		return false
	}
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}
