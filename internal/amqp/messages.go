package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// DatasetLoadedMessage announces that a session switched to a new table. It
// carries summary figures only, never the uploaded rows.
type DatasetLoadedMessage struct {
	SessionID string    `json:"session_id"`
	Source    string    `json:"source"`
	Rows      int       `json:"rows"`
	Classes   int       `json:"classes"`
	Total     int64     `json:"total"`
	Timestamp time.Time `json:"timestamp"`
}

// NewDatasetLoadedMessage stamps a load event with the current time.
func NewDatasetLoadedMessage(sessionID, source string, rows, classes int, total int64) *DatasetLoadedMessage {
	return &DatasetLoadedMessage{
		SessionID: sessionID,
		Source:    source,
		Rows:      rows,
		Classes:   classes,
		Total:     total,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *DatasetLoadedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// DatasetLoadedMessageFromJSON decodes and sanity checks a message body.
func DatasetLoadedMessageFromJSON(data []byte) (*DatasetLoadedMessage, error) {
	var msg DatasetLoadedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.SessionID == "" {
		return nil, fmt.Errorf("message has no session_id")
	}
	if msg.Rows < 0 || msg.Classes < 0 || msg.Total < 0 {
		return nil, fmt.Errorf("message has negative counts")
	}
	return &msg, nil
}
