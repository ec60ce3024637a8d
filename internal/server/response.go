package server

import (
	"encoding/json"
	"net/http"
	"time"
)

// envelope is the uniform response shape: exactly one of data and error
// is set, meta carries the serving timestamp. The error is a plain
// human-readable string.
type envelope struct {
	Data  any     `json:"data"`
	Error *string `json:"error"`
	Meta  meta    `json:"meta"`
}

type meta struct {
	ServedAt time.Time `json:"served_at"`
}

// writeJSON writes a success envelope.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := envelope{Data: data, Meta: meta{ServedAt: time.Now().UTC()}}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error envelope.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := envelope{Error: &message, Meta: meta{ServedAt: time.Now().UTC()}}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
