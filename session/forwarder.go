package session

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/pkg/errors"
)

// Forwarder relays outbound content messages to the ingestion API using the
// runtime token as bearer credential.
type Forwarder interface {
	WriteProgress(ctx context.Context, bearer string, pct float64, topic string) error
	SubmitAttempt(ctx context.Context, bearer string, score, max float64, passed bool, runtimeAttemptID string) error
	EmitEvent(ctx context.Context, bearer string, eventType string, payload json.RawMessage) error
	SaveCheckpoint(ctx context.Context, bearer string, state json.RawMessage) error
}

// HTTPForwarder posts to the ingestion endpoints over HTTP.
type HTTPForwarder struct {
	baseURL string
	client  *http.Client
}

var _ Forwarder = (*HTTPForwarder)(nil)

// NewHTTPForwarder targets the ingestion API at baseURL. A nil client falls
// back to http.DefaultClient.
func NewHTTPForwarder(baseURL string, client *http.Client) *HTTPForwarder {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPForwarder{baseURL: baseURL, client: client}
}

func (f *HTTPForwarder) WriteProgress(ctx context.Context, bearer string, pct float64, topic string) error {
	return f.post(ctx, bearer, "/v1/progress", map[string]any{"pct": pct, "topic": topic})
}

func (f *HTTPForwarder) SubmitAttempt(ctx context.Context, bearer string, score, max float64, passed bool, runtimeAttemptID string) error {
	return f.post(ctx, bearer, "/v1/attempts", map[string]any{
		"score":            score,
		"max":              max,
		"passed":           passed,
		"runtimeAttemptId": runtimeAttemptID,
	})
}

func (f *HTTPForwarder) EmitEvent(ctx context.Context, bearer string, eventType string, payload json.RawMessage) error {
	return f.post(ctx, bearer, "/v1/events", map[string]any{"type": eventType, "payload": payload})
}

func (f *HTTPForwarder) SaveCheckpoint(ctx context.Context, bearer string, state json.RawMessage) error {
	return f.post(ctx, bearer, "/v1/checkpoint", map[string]any{"state": state})
}

func (f *HTTPForwarder) post(ctx context.Context, bearer, path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "[HTTPForwarder.post] marshal")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "[HTTPForwarder.post] request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := f.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "[HTTPForwarder.post] do")
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Errorf("[HTTPForwarder.post] %s returned %d", path, resp.StatusCode)
	}
	return nil
}
