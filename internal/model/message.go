package model

import "time"

// TimestampLayout is the human-readable format stored in messages.timestamp
// (day.month.year hour:minute).
const TimestampLayout = "02.01.2006 15:04"

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// Message is one entry of a room's message log.
//
// Rooms are implicit: ChatName is just the room's name and there is no rooms
// table. Sender is the display name supplied by the client at send time.
// Messages are never updated or deleted; ID gives the total order.
//
// The `json:"..."` tags match the wire names used on the real-time channel
// ("message" for the body), so a Message can be sent to the browser as-is.
type Message struct {
	ID        int64  `json:"id"        db:"id"`
	ChatName  string `json:"chat"      db:"chat_name"`
	Sender    string `json:"sender"    db:"sender"`
	Content   string `json:"message"   db:"content"`
	Timestamp string `json:"timestamp" db:"timestamp"`
}
