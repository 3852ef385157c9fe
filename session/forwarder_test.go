package session_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/coursebridge/launchgate/session"
	"github.com/stretchr/testify/require"
)

func TestHTTPForwarder(t *testing.T) {
	type seen struct {
		method string
		path   string
		bearer string
		body   map[string]any
	}
	var got seen
	var status int

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got = seen{method: r.Method, path: r.URL.Path, bearer: r.Header.Get("Authorization")}
		_ = json.Unmarshal(body, &got.body)
		w.WriteHeader(status)
	}))
	defer srv.Close()

	f := session.NewHTTPForwarder(srv.URL, srv.Client())
	ctx := context.Background()

	t.Run("write progress", func(t *testing.T) {
		status = http.StatusOK
		require.NoError(t, f.WriteProgress(ctx, "rt-token", 25, "fractions"))
		require.Equal(t, http.MethodPost, got.method)
		require.Equal(t, "/v1/progress", got.path)
		require.Equal(t, "Bearer rt-token", got.bearer)
		require.Equal(t, 25.0, got.body["pct"])
	})

	t.Run("submit attempt", func(t *testing.T) {
		status = http.StatusOK
		require.NoError(t, f.SubmitAttempt(ctx, "rt-token", 9, 10, true, "a1"))
		require.Equal(t, "/v1/attempts", got.path)
		require.Equal(t, "a1", got.body["runtimeAttemptId"])
	})

	t.Run("emit event", func(t *testing.T) {
		status = http.StatusOK
		require.NoError(t, f.EmitEvent(ctx, "rt-token", "media.play", json.RawMessage(`{"t":12}`)))
		require.Equal(t, "/v1/events", got.path)
		require.Equal(t, "media.play", got.body["type"])
	})

	t.Run("save checkpoint", func(t *testing.T) {
		status = http.StatusOK
		require.NoError(t, f.SaveCheckpoint(ctx, "rt-token", json.RawMessage(`{"page":3}`)))
		require.Equal(t, "/v1/checkpoint", got.path)
	})

	t.Run("non-2xx is an error", func(t *testing.T) {
		status = http.StatusForbidden
		require.Error(t, f.WriteProgress(ctx, "rt-token", 25, ""))
	})
}
