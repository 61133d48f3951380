package server

import (
	"errors"
	"io"
	"net/http"

	"mail-spool/internal/spool"
)

// ingestResponse is returned for every stored payload.
type ingestResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Size int    `json:"size"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// ingestHandler stores the request body as a new spool item.
//
// The whole body is read, within MaxBodyBytes, before anything touches the
// spool, so an oversized or aborted request never leaves a file behind.
func (s *Server) ingestHandler(w http.ResponseWriter, r *http.Request) {
	rid := RequestIDFromContext(r.Context())
	limit := s.cfg.maxBodyBytes()

	if r.ContentLength > limit {
		s.rejectTooLarge(w, rid, r.ContentLength, limit)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, limit)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			s.rejectTooLarge(w, rid, -1, limit)
			return
		}
		s.metrics.RecordIngestRejected("read_error")
		s.log.Warn("ingest body read failed", map[string]any{"rid": rid, "error": err.Error()})
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "bad request"})
		return
	}

	id, err := s.store.Create(payload)
	if err != nil {
		s.metrics.RecordStoreError("create", err)
		s.log.Error("store failed", map[string]any{
			"rid":  rid,
			"kind": spool.Kind(err),
			"size": len(payload),
		}, err)
		respondJSON(w, http.StatusInternalServerError, errorResponse{Error: "store failed"})
		return
	}

	s.metrics.RecordStored(len(payload))
	s.log.Info("stored", map[string]any{
		"rid":  rid,
		"id":   id.String(),
		"size": len(payload),
	})

	respondJSON(w, http.StatusOK, ingestResponse{
		ID:   id.String(),
		Name: s.store.FileName(id),
		Size: len(payload),
	})
}

func (s *Server) rejectTooLarge(w http.ResponseWriter, rid string, declared, limit int64) {
	s.metrics.RecordIngestRejected("too_large")
	s.log.Info("ingest rejected", map[string]any{
		"rid":            rid,
		"reason":         "too_large",
		"content_length": declared,
		"limit":          limit,
	})
	respondJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "payload too large"})
}
