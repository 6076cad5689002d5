package sqlite

import (
	"context"
	"fmt"

	"github.com/sakif/roomchat/internal/model"
	"github.com/sakif/roomchat/internal/repository"
)

var _ repository.MessageRepository = (*DB)(nil)

// Append inserts msg into the log and sets msg.ID.
//
// There is no rooms table, so any chat name is accepted; a room exists as
// soon as it has a message. ids are AUTOINCREMENT and therefore strictly
// increasing, which is what History orders by.
func (db *DB) Append(ctx context.Context, msg *model.Message) error {
	result, err := db.conn.ExecContext(ctx,
		`INSERT INTO messages (chat_name, sender, content, timestamp)
		 VALUES (?, ?, ?, ?)`,
		msg.ChatName,
		msg.Sender,
		msg.Content,
		msg.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("sqlite: appending message to %q: %w", msg.ChatName, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading message id: %w", err)
	}
	msg.ID = id

	return nil
}

// History returns every message of chatName in insertion order.
//
// The result is unbounded. Rooms are expected to stay small; paging would go
// here if they don't.
func (db *DB) History(ctx context.Context, chatName string) ([]model.Message, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, chat_name, sender, content, timestamp
		 FROM messages
		 WHERE chat_name = ?
		 ORDER BY id ASC`,
		chatName,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing history of %q: %w", chatName, err)
	}
	defer rows.Close()

	messages := make([]model.Message, 0)
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.ChatName, &m.Sender, &m.Content, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("sqlite: scanning message row: %w", err)
		}
		messages = append(messages, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating messages: %w", err)
	}

	return messages, nil
}

// Rooms returns the distinct names of rooms that have at least one message,
// sorted alphabetically.
func (db *DB) Rooms(ctx context.Context) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT DISTINCT chat_name FROM messages ORDER BY chat_name ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing rooms: %w", err)
	}
	defer rows.Close()

	var rooms []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("sqlite: scanning room row: %w", err)
		}
		rooms = append(rooms, name)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating rooms: %w", err)
	}

	return rooms, nil
}
