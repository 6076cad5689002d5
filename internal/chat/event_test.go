package chat

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeSend(t *testing.T) {
	in, err := DecodeSend([]byte(`{"event":"send_message","data":{"chat":"general","sender":"Alice","message":"hi"}}`))
	require.NoError(t, err)

	assert.Equal(t, "general", in.Chat)
	assert.Equal(t, "Alice", in.Sender)
	assert.Equal(t, "hi", in.Message)
	assert.Nil(t, in.Identity, "identity must never be read from the wire")
}

func TestDecodeSend_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		unknown bool
	}{
		{"not json", `hello`, false},
		{"other event", `{"event":"typing","data":{}}`, true},
		{"missing data", `{"event":"send_message"}`, false},
		{"data not an object", `{"event":"send_message","data":"hi"}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeSend([]byte(tt.raw))
			require.Error(t, err)
			assert.Equal(t, tt.unknown, errors.Is(err, ErrUnknownEvent))
		})
	}
}

func TestEncodeReceive(t *testing.T) {
	frame, err := EncodeReceive(Outgoing{
		Sender:    "Alice",
		Message:   "hi",
		Timestamp: "15.10.2026 09:30",
		Chat:      "general",
	})
	require.NoError(t, err)

	var decoded struct {
		Event string            `json:"event"`
		Data  map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(frame, &decoded))

	assert.Equal(t, EventReceiveMessage, decoded.Event)
	assert.Equal(t, map[string]string{
		"sender":    "Alice",
		"message":   "hi",
		"timestamp": "15.10.2026 09:30",
		"chat":      "general",
	}, decoded.Data)
}
