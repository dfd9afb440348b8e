package sqs

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
)

func TestMessage_Marshal(t *testing.T) {
	msg := Message{
		UserID:     uuid.New().String(),
		Reason:     "comment_created",
		EnqueuedAt: 1234567890,
	}

	body, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}

	var decoded Message
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}

	if decoded.UserID != msg.UserID {
		t.Errorf("user id mismatch: got %s, want %s", decoded.UserID, msg.UserID)
	}
	if decoded.Reason != msg.Reason {
		t.Errorf("reason mismatch: got %s, want %s", decoded.Reason, msg.Reason)
	}
	if decoded.EnqueuedAt != msg.EnqueuedAt {
		t.Errorf("enqueued_at mismatch: got %d, want %d", decoded.EnqueuedAt, msg.EnqueuedAt)
	}
}
