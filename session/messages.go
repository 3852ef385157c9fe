// Package session is the host-page side of an embedding: it exchanges the
// launch token, hands the runtime token to the embedded surface over a typed
// message channel, and supervises the connection state machine.
package session

import (
	"encoding/json"
	"time"
)

// Message types exchanged between the host page and the embedded surface.
// The set is closed on our side; unknown inbound types are ignored so newer
// content can talk to older hosts.
const (
	TypeRuntimeToken     = "runtime.token"
	TypeReady            = "ready"
	TypeHeartbeat        = "heartbeat"
	TypeCheckpointSave   = "checkpoint.save"
	TypeCheckpointLoad   = "checkpoint.load"
	TypeProgress         = "progress"
	TypeAttemptCompleted = "attempt.completed"
	TypeError            = "error"
)

// Envelope is the tagged wire form of every channel message.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals the payload into a tagged envelope.
func NewEnvelope(msgType string, payload any) (Envelope, error) {
	if payload == nil {
		return Envelope{Type: msgType}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: msgType, Data: data}, nil
}

// RuntimeTokenPayload hands the exchanged credential to the content.
type RuntimeTokenPayload struct {
	RuntimeToken string    `json:"runtimeToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// CheckpointSavePayload carries opaque content state to persist.
type CheckpointSavePayload struct {
	State json.RawMessage `json:"state"`
}

// CheckpointLoadPayload returns previously saved content state.
type CheckpointLoadPayload struct {
	State json.RawMessage `json:"state,omitempty"`
}

// ProgressPayload reports progress from the content.
type ProgressPayload struct {
	Pct   float64 `json:"pct"`
	Topic string  `json:"topic,omitempty"`
}

// AttemptCompletedPayload reports a graded attempt from the content.
type AttemptCompletedPayload struct {
	Score            float64 `json:"score"`
	Max              float64 `json:"max"`
	Passed           bool    `json:"passed"`
	RuntimeAttemptID string  `json:"runtimeAttemptId,omitempty"`
}

// ErrorPayload reports a content-side failure.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
