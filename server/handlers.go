package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/coursebridge/launchgate/runtimeauth"
)

type exchangeRequest struct {
	LaunchToken string `json:"launchToken"`
}

type exchangeResponse struct {
	RuntimeToken string    `json:"runtimeToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// ExchangeHandler redeems a launch token for a runtime token. The caller's
// origin comes from the Origin header the transport saw, never from the body.
func (s *Server) ExchangeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req exchangeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.LaunchToken == "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{Code: CodeInvalidRequest, Message: "launchToken is required"})
			return
		}

		res, err := s.exchanger.Exchange(r.Context(), req.LaunchToken, r.Header.Get("Origin"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, exchangeResponse{
			RuntimeToken: res.RuntimeToken,
			ExpiresAt:    res.ExpiresAt,
		})
	}
}

type okResponse struct {
	OK bool `json:"ok"`
}

type progressRequest struct {
	Pct   float64 `json:"pct"`
	Topic string  `json:"topic"`
}

func (s *Server) ProgressHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := runtimeauth.FromContext(r.Context())
		if !ok {
			s.writeError(w, r, runtimeauth.ErrUnauthenticated)
			return
		}
		var req progressRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Code: CodeInvalidRequest, Message: "invalid body"})
			return
		}
		if err := s.outcomes.WriteProgress(r.Context(), claims, req.Pct, req.Topic); err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, okResponse{OK: true})
	}
}

type attemptRequest struct {
	Score            float64 `json:"score"`
	Max              float64 `json:"max"`
	Passed           bool    `json:"passed"`
	RuntimeAttemptID string  `json:"runtimeAttemptId"`
}

func (s *Server) AttemptsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := runtimeauth.FromContext(r.Context())
		if !ok {
			s.writeError(w, r, runtimeauth.ErrUnauthenticated)
			return
		}
		var req attemptRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Code: CodeInvalidRequest, Message: "invalid body"})
			return
		}
		if err := s.outcomes.SubmitAttempt(r.Context(), claims, req.Score, req.Max, req.Passed, req.RuntimeAttemptID); err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, okResponse{OK: true})
	}
}

type eventRequest struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func (s *Server) EventsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := runtimeauth.FromContext(r.Context())
		if !ok {
			s.writeError(w, r, runtimeauth.ErrUnauthenticated)
			return
		}
		var req eventRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Code: CodeInvalidRequest, Message: "invalid body"})
			return
		}
		if err := s.outcomes.EmitEvent(r.Context(), claims, req.Type, req.Payload); err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, okResponse{OK: true})
	}
}

type checkpointRequest struct {
	State json.RawMessage `json:"state"`
}

func (s *Server) CheckpointSaveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := runtimeauth.FromContext(r.Context())
		if !ok {
			s.writeError(w, r, runtimeauth.ErrUnauthenticated)
			return
		}
		var req checkpointRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Code: CodeInvalidRequest, Message: "invalid body"})
			return
		}
		if err := s.outcomes.SaveCheckpoint(r.Context(), claims, req.State); err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, okResponse{OK: true})
	}
}

type checkpointResponse struct {
	State   json.RawMessage `json:"state"`
	SavedAt *time.Time      `json:"savedAt,omitempty"`
}

func (s *Server) CheckpointLoadHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := runtimeauth.FromContext(r.Context())
		if !ok {
			s.writeError(w, r, runtimeauth.ErrUnauthenticated)
			return
		}
		rec, err := s.outcomes.LoadCheckpoint(r.Context(), claims)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		resp := checkpointResponse{}
		if rec != nil {
			resp.State = rec.State
			resp.SavedAt = &rec.SavedAt
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

type assetURLResponse struct {
	URL string `json:"url"`
}

func (s *Server) AssetURLHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := runtimeauth.FromContext(r.Context())
		if !ok {
			s.writeError(w, r, runtimeauth.ErrUnauthenticated)
			return
		}
		signed, err := s.outcomes.AssetURL(r.Context(), claims, r.URL.Query().Get("path"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, assetURLResponse{URL: signed})
	}
}

// JWKSHandler publishes the runtime token verification keys.
func (s *Server) JWKSHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jwks, err := s.jwksSigner.GetJWKS()
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, jwks)
	}
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, okResponse{OK: true})
	}
}
