package http

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"utilibill/internal/core"
)

// handleUpload accepts a multipart bill document ("bill" field) plus an
// optional "utility_type" field and runs it through the ingestion pipeline.
// The upload is spooled to disk under a random name; the pipeline removes it
// when done.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUserID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		respondError(w, http.StatusRequestEntityTooLarge, "upload too large or malformed")
		return
	}

	utilityType, err := core.ParseUtilityType(r.FormValue("utility_type"))
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, "utility type must be electric, gas, or water")
		return
	}

	file, header, err := r.FormFile("bill")
	if err != nil {
		respondError(w, http.StatusBadRequest, "missing bill file")
		return
	}
	defer file.Close()

	docPath, err := s.spoolUpload(file, header.Filename)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to spool upload", "error", err, "user_id", userID)
		respondError(w, http.StatusInternalServerError, "upload failed")
		return
	}

	report, err := s.ingestor.Ingest(r.Context(), userID, utilityType, docPath)
	switch {
	case errors.Is(err, core.ErrUnreadableDocument):
		respondError(w, http.StatusUnprocessableEntity, "document could not be read")
		return
	case errors.Is(err, core.ErrStorageFailure):
		respondError(w, http.StatusInternalServerError, "failed to store invoice")
		return
	case err != nil:
		slog.ErrorContext(r.Context(), "Ingestion failed", "error", err, "user_id", userID)
		respondError(w, http.StatusInternalServerError, "ingestion failed")
		return
	}

	respondJSON(w, http.StatusCreated, toInvoiceResponse(report))
}

// spoolUpload writes the multipart part to the upload directory under a
// random name, keeping the original extension so the extractor can pick a
// strategy.
func (s *Server) spoolUpload(file io.Reader, originalName string) (string, error) {
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return "", err
	}
	name := uuid.NewString() + filepath.Ext(originalName)
	path := filepath.Join(s.uploadDir, name)

	dst, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

func (s *Server) handleConsolidate(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUserID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	aggs, err := s.consolidator.Consolidate(r.Context(), userID)
	if err != nil {
		slog.ErrorContext(r.Context(), "Consolidation failed", "error", err, "user_id", userID)
		respondError(w, http.StatusInternalServerError, "consolidation failed")
		return
	}

	respondJSON(w, http.StatusOK, toAggregateResponses(aggs))
}

func (s *Server) handleMonthlyLedger(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUserID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	aggs, err := s.consolidator.MonthlyLedger(r.Context(), userID)
	if err != nil {
		slog.ErrorContext(r.Context(), "Ledger read failed", "error", err, "user_id", userID)
		respondError(w, http.StatusInternalServerError, "ledger read failed")
		return
	}

	respondJSON(w, http.StatusOK, toAggregateResponses(aggs))
}
