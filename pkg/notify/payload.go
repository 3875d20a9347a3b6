package notify

import (
	"encoding/json"
	"fmt"
)

// Push message commands understood by the service worker.
const (
	CommandNotify   = "notify"
	CommandUpdateSW = "update-sw"
)

// PushMessage is the wire format sent to the service worker:
// {"command": "notify"|"update-sw", "data": {...}}.
type PushMessage struct {
	Command string          `json:"command"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// NotifyData is the data object for a "notify" command.
type NotifyData struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Icon  string `json:"icon,omitempty"`
	URL   string `json:"url,omitempty"`
}

// NewNotifyMessage builds the push payload for a notification.
func NewNotifyMessage(data NotifyData) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal notify data: %w", err)
	}
	return json.Marshal(PushMessage{Command: CommandNotify, Data: raw})
}

// ParsePushMessage decodes a push payload. Payloads that predate the
// command envelope are treated as a bare notify data object, so old
// payload producers keep working.
func ParsePushMessage(raw []byte) (*PushMessage, error) {
	var msg PushMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("invalid push message: %w", err)
	}

	switch msg.Command {
	case CommandNotify, CommandUpdateSW:
		return &msg, nil
	default:
		// Unrecognized or missing command: the whole payload is the data.
		return &PushMessage{Command: CommandNotify, Data: raw}, nil
	}
}

// NotifyData decodes the message's data object for a notify command.
func (m *PushMessage) NotifyData() (*NotifyData, error) {
	if m.Command != CommandNotify {
		return nil, fmt.Errorf("not a notify message: %q", m.Command)
	}
	var data NotifyData
	if err := json.Unmarshal(m.Data, &data); err != nil {
		return nil, fmt.Errorf("invalid notify data: %w", err)
	}
	return &data, nil
}
