// Package repository declares the storage interfaces the services depend on.
// The sqlite subpackage is the production implementation.
package repository

import (
	"context"

	"github.com/sakif/roomchat/internal/model"
)

// UserRepository stores accounts.
//
// Create must report a UNIQUE(email) violation as apperror.DuplicateEmail
// rather than as a driver error.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateProfile(ctx context.Context, id int64, about, avatar string) error
}

// MessageRepository is the append-only message log.
type MessageRepository interface {
	Append(ctx context.Context, msg *model.Message) error
	History(ctx context.Context, chatName string) ([]model.Message, error)
	Rooms(ctx context.Context) ([]string, error)
}
