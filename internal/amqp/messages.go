package amqp

import (
	"encoding/json"
	"time"
)

// RemoteReplayMessage asks a worker to push the latest local snapshot to
// the remote document. It carries no data: the worker always reads the
// current local copy, so stale or duplicate messages are harmless.
type RemoteReplayMessage struct {
	Revision  int64     `json:"revision"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewRemoteReplayMessage creates a replay request for the given in-memory
// revision.
func NewRemoteReplayMessage(revision int64, reason string) *RemoteReplayMessage {
	return &RemoteReplayMessage{
		Revision:  revision,
		Reason:    reason,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *RemoteReplayMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RemoteReplayMessageFromJSON creates a message from JSON bytes
func RemoteReplayMessageFromJSON(data []byte) (*RemoteReplayMessage, error) {
	var msg RemoteReplayMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
