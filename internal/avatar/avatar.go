// Package avatar stores uploaded profile pictures and turns stored
// references back into URLs. A reference is the value kept in users.avatar.
package avatar

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/rs/xid"

	"github.com/sakif/roomchat/internal/apperror"
	"github.com/sakif/roomchat/internal/model"
)

// DefaultURL is where the shared default picture is served from.
const DefaultURL = "/static/img/" + model.DefaultAvatar

// Backends.
const (
	BackendLocal = "local"
	BackendS3    = "s3"
)

var allowedExt = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// Store saves avatar images and resolves their references.
type Store interface {
	// Save stores the image read from r and returns its reference.
	// filename is the client's name for the upload; only its extension is used.
	Save(ctx context.Context, filename string, r io.Reader) (string, error)
	// URL returns the address a browser can load ref from.
	URL(ref string) string
	// Delete removes a stored image. The default avatar and unknown
	// references are ignored.
	Delete(ctx context.Context, ref string) error
}

// Config selects and configures a backend.
type Config struct {
	Backend string
	Dir     string // local
	S3      S3Config
}

// New builds the Store named by cfg.Backend.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case BackendLocal, "":
		return NewLocalStore(cfg.Dir)
	case BackendS3:
		return NewS3Store(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("avatar: unknown backend %q", cfg.Backend)
	}
}

// newKey returns a collision-free object name that keeps the upload's
// image extension, e.g. "cu5m2vbp0ghb1v6c9ukg.png".
func newKey(filename string) (string, string, error) {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	contentType, ok := allowedExt[ext]
	if !ok {
		return "", "", apperror.ValidationFailed("avatar",
			"Avatar must be a PNG, JPEG, GIF or WebP image.")
	}
	return xid.New().String() + ext, contentType, nil
}
