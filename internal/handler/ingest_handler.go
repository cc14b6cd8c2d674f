// Package handler contains the HTTP handlers for the ingest API.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/shiva/dayline/internal/stage"
)

// IngestHandler accepts location batches over HTTP and feeds them to
// the ingest stage.
type IngestHandler struct {
	ingestor *stage.Ingestor
	log      zerolog.Logger
}

// NewIngestHandler creates a handler wired to the ingest stage.
func NewIngestHandler(ingestor *stage.Ingestor, log zerolog.Logger) *IngestHandler {
	return &IngestHandler{ingestor: ingestor, log: log}
}

// Ingest handles POST /
//
// Accepts either shape:
//
//	{"deviceId":"d1","latitude":35.68,"longitude":139.76,"timestamp":"2024-05-01T10:00:00Z"}
//	{"deviceId":"d1","locations":[{"lat":35.68,"lon":139.76,"timestamp":1714557600}, ...]}
//
// Responds 200 {ok:true, saved:N, keys:[...]} or 400 {ok:false, error}.
func (h *IngestHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"ok": false, "error": "invalid_json",
		})
		return
	}

	// 8-character correlation id, carried into the raw object keys.
	rid := uuid.NewString()[:8]

	saved, err := h.ingestor.Ingest(r.Context(), body, rid)
	if err != nil {
		switch {
		case errors.Is(err, stage.ErrInvalidJSON):
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"ok": false, "error": "invalid_json",
			})
		case errors.Is(err, stage.ErrNoValidLocations):
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"ok": false, "error": "no_valid_locations",
			})
		default:
			h.log.Error().Str("event", "ingest_error").Str("rid", rid).Err(err).Send()
			writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
				"ok": false, "error": "internal_error",
			})
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok": true, "saved": len(saved), "keys": saved,
	})
}

// writeJSON is a helper that writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
