// Package chat is the real-time side of the server: a hub of WebSocket
// clients, the event envelopes they exchange, and the relay that persists
// each message before it is fanned out.
//
//	Client.readPump → Relay (queue + workers) → HistoryService.Append → Hub.Broadcast → Client.writePump
package chat

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sakif/roomchat/internal/model"
)

// Event names on the wire.
const (
	EventSendMessage    = "send_message"
	EventReceiveMessage = "receive_message"
)

// ErrUnknownEvent is returned by DecodeSend for envelopes it does not handle.
var ErrUnknownEvent = errors.New("chat: unknown event")

// Envelope is the outer JSON frame: {"event": "...", "data": {...}}.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Incoming is the data of a send_message event.
type Incoming struct {
	Chat    string `json:"chat"`
	Sender  string `json:"sender"`
	Message string `json:"message"`

	// Identity is the session snapshot of the connection the event arrived
	// on, nil for anonymous connections. It never comes from the client.
	Identity *model.SessionUser `json:"-"`
}

// Outgoing is the data of a receive_message event.
type Outgoing struct {
	Sender    string `json:"sender"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	Chat      string `json:"chat"`
}

// DecodeSend parses a raw frame into an Incoming. Frames with another event
// name return ErrUnknownEvent.
func DecodeSend(raw []byte) (Incoming, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Incoming{}, fmt.Errorf("chat: decoding envelope: %w", err)
	}
	if env.Event != EventSendMessage {
		return Incoming{}, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}

	var in Incoming
	if len(env.Data) == 0 {
		return Incoming{}, errors.New("chat: send_message without data")
	}
	if err := json.Unmarshal(env.Data, &in); err != nil {
		return Incoming{}, fmt.Errorf("chat: decoding send_message: %w", err)
	}
	return in, nil
}

// EncodeReceive builds the receive_message frame for a stored message.
func EncodeReceive(out Outgoing) ([]byte, error) {
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("chat: encoding receive_message: %w", err)
	}
	return json.Marshal(Envelope{Event: EventReceiveMessage, Data: data})
}
