// Package handlers maps HTTP requests onto the ingestion service.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/granafin/ofxingest/internal/domain"
	"github.com/granafin/ofxingest/internal/ingest"
	"github.com/granafin/ofxingest/internal/ofx"
)

// maxUploadBytes caps one multipart upload. Bank statements are small;
// anything near this limit is not an OFX file.
const maxUploadBytes = 20 << 20

// Importer interface for dependency injection
type Importer interface {
	Import(ctx context.Context, req ingest.ImportRequest) (*domain.ImportResult, error)
}

// IngestHandler handles OFX upload requests
type IngestHandler struct {
	service Importer
	log     zerolog.Logger
}

// NewIngestHandler creates a new ingest handler
func NewIngestHandler(service Importer, log zerolog.Logger) *IngestHandler {
	return &IngestHandler{service: service, log: log}
}

type errorResponse struct {
	Error string `json:"error"`
}

// Import handles POST /api/ofx/import. The multipart form carries the
// statement under "file" plus "clientId" and "bankName" values.
func (h *IngestHandler) Import(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read uploaded file")
		return
	}

	result, err := h.service.Import(r.Context(), ingest.ImportRequest{
		ClientID: r.FormValue("clientId"),
		BankName: r.FormValue("bankName"),
		Filename: header.Filename,
		Data:     data,
	})
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		h.log.Error().Err(err).Msg("failed to encode import result")
	}
}

// statusFor maps pipeline errors to HTTP statuses. Bad input is the
// client's fault, everything else is ours.
func statusFor(err error) int {
	var parseErr *ofx.ParseError
	var validationErr *ingest.ValidationError
	if errors.As(err, &parseErr) || errors.As(err, &validationErr) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: msg})
}
