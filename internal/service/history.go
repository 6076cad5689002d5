package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/sakif/roomchat/internal/apperror"
	"github.com/sakif/roomchat/internal/model"
	"github.com/sakif/roomchat/internal/repository"
)

// MaxRoomNameLength bounds the chat name accepted from URLs and events.
const MaxRoomNameLength = 100

// HistoryService is the message log: append-only, grouped by room name.
type HistoryService struct {
	repo         repository.MessageRepository
	defaultRooms []string
	logger       *slog.Logger
}

// NewHistoryService creates a HistoryService. defaultRooms are always listed
// by RoomList, even before anyone has written to them.
func NewHistoryService(repo repository.MessageRepository, defaultRooms []string, logger *slog.Logger) *HistoryService {
	return &HistoryService{
		repo:         repo,
		defaultRooms: defaultRooms,
		logger:       logger,
	}
}

// Append stores one message and returns its id.
//
// Rooms are implicit, so there is no existence check; only an empty or
// oversized room name is refused. Content is stored as given.
func (s *HistoryService) Append(ctx context.Context, room, sender, content, timestamp string) (int64, error) {
	if err := ValidateRoomName(room); err != nil {
		return 0, err
	}

	msg := &model.Message{
		ChatName:  room,
		Sender:    sender,
		Content:   content,
		Timestamp: timestamp,
	}
	if err := s.repo.Append(ctx, msg); err != nil {
		return 0, fmt.Errorf("service/history: appending: %w", err)
	}

	s.logger.Debug("message stored",
		slog.Int64("id", msg.ID),
		slog.String("chat", room),
	)
	return msg.ID, nil
}

// History returns every message of room, oldest first.
func (s *HistoryService) History(ctx context.Context, room string) ([]model.Message, error) {
	if err := ValidateRoomName(room); err != nil {
		return nil, err
	}

	messages, err := s.repo.History(ctx, room)
	if err != nil {
		s.logger.Error("failed to load history",
			slog.String("chat", room),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("service/history: loading %q: %w", room, err)
	}
	return messages, nil
}

// RoomList returns the configured default rooms followed by every other room
// that has history, without duplicates. Extra rooms are sorted by name.
func (s *HistoryService) RoomList(ctx context.Context) ([]string, error) {
	stored, err := s.repo.Rooms(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/history: listing rooms: %w", err)
	}

	seen := make(map[string]struct{}, len(s.defaultRooms)+len(stored))
	rooms := make([]string, 0, len(s.defaultRooms)+len(stored))
	for _, r := range s.defaultRooms {
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		rooms = append(rooms, r)
	}

	var extra []string
	for _, r := range stored {
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		extra = append(extra, r)
	}
	sort.Strings(extra)

	return append(rooms, extra...), nil
}

// ValidateRoomName rejects names that cannot address a room.
func ValidateRoomName(room string) error {
	if strings.TrimSpace(room) == "" {
		return apperror.ValidationFailed("chat", "chat name is required")
	}
	if len(room) > MaxRoomNameLength {
		return apperror.ValidationFailed("chat",
			fmt.Sprintf("chat name must be %d characters or less", MaxRoomNameLength))
	}
	return nil
}
