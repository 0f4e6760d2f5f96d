package invoice

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/zombor/invoice-tracker/internal/extraction"
	"github.com/zombor/invoice-tracker/internal/scanning"
)

// maxUploadSize is 50MB, enough for high-resolution phone photos
const maxUploadSize = int64(50 << 20)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// writeJSON encodes v as the response body
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeError writes a JSON error body
func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}

// writeServiceError maps service errors to status codes. Unexpected errors are logged and hidden.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "Invoice not found")
	case errors.Is(err, ErrAmountNotFound):
		writeError(w, http.StatusBadRequest, "No se pudo extraer el monto de la factura")
	case errors.Is(err, scanning.ErrUnsupportedFormat),
		errors.Is(err, scanning.ErrNoText),
		errors.Is(err, ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrMailboxDisabled):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		slog.Error("Request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

type uploadedFile struct {
	filename    string
	data        []byte
	contentType string
}

// readUpload reads the multipart "file" field, writing the error response itself when it fails
func readUpload(w http.ResponseWriter, r *http.Request) (*uploadedFile, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize+1<<20)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "File is too large. Maximum size is 50MB.")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "Error parsing form")
		return nil, false
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			writeError(w, http.StatusBadRequest, "No file was selected. Please choose a file to upload.")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "No file provided")
		return nil, false
	}
	defer f.Close()

	if header.Size > maxUploadSize {
		writeError(w, http.StatusRequestEntityTooLarge, "File is too large. Maximum size is 50MB.")
		return nil, false
	}

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, http.StatusInternalServerError, "Error reading file. Please try again.")
		return nil, false
	}

	contentType := strings.ToLower(strings.TrimSpace(header.Header.Get("Content-Type")))
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = scanning.ContentTypeFor(header.Filename)
	}

	return &uploadedFile{filename: header.Filename, data: data, contentType: contentType}, true
}

// handleProcess extracts invoice fields from an uploaded document without storing it
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	upload, ok := readUpload(w, r)
	if !ok {
		return
	}

	result, err := s.service.Scan(r.Context(), upload.filename, upload.data, upload.contentType)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleProcessAndCreate extracts, stores and records an uploaded invoice
func (s *Server) handleProcessAndCreate(w http.ResponseWriter, r *http.Request) {
	upload, ok := readUpload(w, r)
	if !ok {
		return
	}

	var category extraction.Category
	if c := r.FormValue("category"); c != "" {
		var err error
		if category, err = extraction.ParseCategory(c); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	inv, err := s.service.ProcessAndCreate(r.Context(), Upload{
		Filename:      upload.filename,
		Data:          upload.data,
		ContentType:   upload.contentType,
		PaymentMethod: strings.TrimSpace(r.FormValue("payment_method")),
		Category:      category,
		Description:   strings.TrimSpace(r.FormValue("description")),
		Source:        SourceUpload,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, inv)
}

// handleExtract runs extraction over text sent as JSON
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUploadSize)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	writeJSON(w, http.StatusOK, s.service.engine.Extract(req.Text))
}

// parseFilter reads the list filter from the query string
func parseFilter(r *http.Request) (Filter, error) {
	q := r.URL.Query()
	var filter Filter

	if v := q.Get("from"); v != "" {
		from, err := time.Parse("2006-01-02", v)
		if err != nil {
			return filter, fmt.Errorf("invalid from date %q", v)
		}
		filter.From = &from
	}
	if v := q.Get("to"); v != "" {
		to, err := time.Parse("2006-01-02", v)
		if err != nil {
			return filter, fmt.Errorf("invalid to date %q", v)
		}
		// Inclusive of the whole day
		end := to.Add(24*time.Hour - time.Nanosecond)
		filter.To = &end
	}
	if v := q.Get("category"); v != "" {
		category, err := extraction.ParseCategory(v)
		if err != nil {
			return filter, err
		}
		filter.Category = category
	}
	if v := q.Get("status"); v != "" {
		status, err := ParseStatus(v)
		if err != nil {
			return filter, err
		}
		filter.Status = status
	}
	filter.Provider = strings.TrimSpace(q.Get("provider"))

	return filter, nil
}

// handleListInvoices returns the filtered invoices, newest first
func (s *Server) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	invoices, err := s.service.ListInvoices(filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, invoices)
}

// handleExportInvoices returns the filtered invoices as a spreadsheet
func (s *Server) handleExportInvoices(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	data, err := s.service.ExportXLSX(filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="facturas.xlsx"`)
	w.Write(data)
}

// handleGetInvoice returns a single invoice
func (s *Server) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := s.service.GetInvoice(r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, inv)
}

// handleGetInvoiceFile returns the stored document for an invoice
func (s *Server) handleGetInvoiceFile(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.GetInvoiceFile(r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleSetStatus validates or rejects an invoice
func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	inv, err := s.service.SetStatus(r.PathValue("id"), Status(req.Status))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, inv)
}

// handleDeleteInvoice deletes an invoice
func (s *Server) handleDeleteInvoice(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteInvoice(r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleEmailSync imports invoices from the configured mailbox
func (s *Server) handleEmailSync(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", v))
			return
		}
		limit = n
	}

	report, err := s.service.SyncMailbox(r.Context(), r.URL.Query().Get("query"), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// handleHealth reports that the server is up
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
