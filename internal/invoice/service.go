package invoice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/zombor/invoice-tracker/internal/extraction"
	"github.com/zombor/invoice-tracker/internal/scanning"
)

// IDGenerator generates unique IDs for invoices
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// uuidGenerator generates random UUIDs
type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service handles invoice operations
type Service struct {
	db          DB
	scanner     scanning.Scanner
	storage     Storage
	engine      *extraction.Engine
	mailbox     Mailbox
	mailQuery   string
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with a UUID generator and the wall clock
func NewService(db DB, scanner scanning.Scanner, storage Storage, engine *extraction.Engine) *Service {
	return NewServiceWithDeps(db, scanner, storage, engine, &uuidGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, scanner scanning.Scanner, storage Storage, engine *extraction.Engine, idGen IDGenerator, timeSrc TimeSource) *Service {
	if engine == nil {
		engine = extraction.New()
	}
	return &Service{
		db:          db,
		scanner:     scanner,
		storage:     storage,
		engine:      engine,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// SetMailbox enables email ingestion
func (s *Service) SetMailbox(m Mailbox) {
	s.mailbox = m
}

// SetMailboxQuery replaces mailbox.DefaultQuery for syncs that name no query
func (s *Service) SetMailboxQuery(query string) {
	s.mailQuery = query
}

var (
	reUnsafeFilename = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	reSpaces         = regexp.MustCompile(`\s+`)
)

// sanitizeFilename cleans up a filename by removing special characters and truncating length
func sanitizeFilename(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))

	base = reUnsafeFilename.ReplaceAllString(base, "")
	base = strings.TrimSpace(reSpaces.ReplaceAllString(base, " "))

	// 50 chars for the base, plus extension
	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "factura"
	}

	return base + ext
}

// Scan reads a document and extracts its invoice fields without storing anything
func (s *Service) Scan(ctx context.Context, filename string, data []byte, contentType string) (*ScanResult, error) {
	if !scanning.IsSupportedFormat(filename) {
		return nil, fmt.Errorf("%w: %s", scanning.ErrUnsupportedFormat, filepath.Ext(filename))
	}
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = scanning.ContentTypeFor(filename)
	}

	doc, err := s.scanner.ScanText(ctx, data, contentType)
	if err != nil {
		slog.Error("Failed to scan document",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		return nil, fmt.Errorf("scanning document: %w", err)
	}
	if strings.TrimSpace(doc.Text) == "" {
		return nil, scanning.ErrNoText
	}

	result := &ScanResult{
		FileName:    filename,
		FileSize:    len(data),
		ContentType: contentType,
		Pages:       doc.Pages,
		Method:      doc.Method,
		TextLength:  utf8.RuneCountInString(doc.Text),
		ProcessedAt: s.timeSource.Now(),
		Extraction:  s.engine.Extract(doc.Text),
	}

	slog.Info("Scanned document",
		"filename", filename,
		"method", doc.Method,
		"text_length", result.TextLength,
		"confidence", result.Extraction.Confidence,
	)
	return result, nil
}

// ProcessAndCreate scans an uploaded document, stores it and records the invoice it describes.
// Documents without an amount are refused with ErrAmountNotFound.
func (s *Service) ProcessAndCreate(ctx context.Context, upload Upload) (*Invoice, error) {
	result, err := s.Scan(ctx, upload.Filename, upload.Data, upload.ContentType)
	if err != nil {
		return nil, err
	}
	if result.Extraction.Amount == nil {
		return nil, ErrAmountNotFound
	}

	id := s.idGenerator.Generate()
	now := s.timeSource.Now()

	savedPath, err := s.storage.Save(fmt.Sprintf("%s_%s", id, sanitizeFilename(upload.Filename)), upload.Data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	inv := newInvoice(id, now, result.Extraction)
	inv.Filename = savedPath
	inv.ContentType = result.ContentType
	inv.Source = upload.Source
	inv.EmailMessageID = upload.EmailMessageID
	if inv.Source == "" {
		inv.Source = SourceUpload
	}
	if upload.PaymentMethod != "" {
		inv.PaymentMethod = upload.PaymentMethod
	}
	if upload.Category != "" {
		inv.Category = upload.Category
	}
	if upload.Description != "" {
		inv.Description = upload.Description
	}

	if err := s.db.SaveInvoice(inv); err != nil {
		// Clean up file if database save fails
		if delErr := s.storage.Delete(savedPath); delErr != nil {
			slog.Warn("Failed to clean up file", "filename", savedPath, "error", delErr)
		}
		return nil, fmt.Errorf("saving invoice to database: %w", err)
	}

	slog.Info("Created invoice", "id", inv.ID, "provider", inv.Provider, "amount", inv.Amount.String())
	return inv, nil
}

// TextInvoice is free text, such as an email body, to turn into an invoice
type TextInvoice struct {
	Text             string
	FallbackProvider string
	FallbackDate     time.Time
	Description      string
	Source           Source
	EmailMessageID   string
}

// CreateFromText runs extraction over plain text and records the invoice it describes
func (s *Service) CreateFromText(ctx context.Context, in TextInvoice) (*Invoice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	extracted := s.engine.Extract(in.Text)
	if extracted.Amount == nil {
		return nil, ErrAmountNotFound
	}

	now := s.timeSource.Now()
	inv := newInvoice(s.idGenerator.Generate(), now, extracted)
	inv.Source = in.Source
	inv.EmailMessageID = in.EmailMessageID
	if inv.Source == "" {
		inv.Source = SourceUpload
	}
	if extracted.Provider == nil && in.FallbackProvider != "" {
		inv.Provider = in.FallbackProvider
	}
	if extracted.IssueDate == nil && !in.FallbackDate.IsZero() {
		inv.Date = in.FallbackDate
	}
	if in.Description != "" {
		inv.Description = in.Description
	}

	if err := s.db.SaveInvoice(inv); err != nil {
		return nil, fmt.Errorf("saving invoice to database: %w", err)
	}
	return inv, nil
}

// newInvoice builds a pending invoice from an extraction that found an amount
func newInvoice(id string, now time.Time, extracted extraction.ExtractedInvoice) *Invoice {
	inv := &Invoice{
		ID:            id,
		Date:          now,
		Provider:      UnknownProvider,
		Amount:        *extracted.Amount,
		Category:      extracted.Category,
		Description:   fmt.Sprintf("Factura procesada con OCR. Confianza: %.2f", extracted.Confidence),
		Status:        StatusPending,
		OCR:           &extracted,
		OCRConfidence: extracted.Confidence,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if extracted.IssueDate != nil {
		inv.Date = *extracted.IssueDate
	}
	if extracted.Provider != nil {
		inv.Provider = *extracted.Provider
	}
	if extracted.PaymentMethod != nil {
		inv.PaymentMethod = *extracted.PaymentMethod
	}
	if extracted.TaxID != nil {
		inv.TaxID = *extracted.TaxID
	}
	if extracted.InvoiceNumber != nil {
		inv.InvoiceNumber = *extracted.InvoiceNumber
	}
	if inv.Category == "" {
		inv.Category = extraction.CategoryOther
	}
	return inv
}

// GetInvoice retrieves an invoice by ID
func (s *Service) GetInvoice(id string) (*Invoice, error) {
	inv, err := s.db.GetInvoice(id)
	if err != nil {
		return nil, fmt.Errorf("getting invoice: %w", err)
	}
	return inv, nil
}

// ListInvoices returns the invoices passing filter, newest first
func (s *Service) ListInvoices(filter Filter) ([]*Invoice, error) {
	all, err := s.db.ListInvoices()
	if err != nil {
		return nil, fmt.Errorf("listing invoices: %w", err)
	}

	invoices := make([]*Invoice, 0, len(all))
	for _, inv := range all {
		if filter.Match(inv) {
			invoices = append(invoices, inv)
		}
	}

	slices.SortFunc(invoices, func(a, b *Invoice) int {
		if c := b.Date.Compare(a.Date); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return invoices, nil
}

// DeleteInvoice removes an invoice and its file
func (s *Service) DeleteInvoice(id string) error {
	inv, err := s.db.GetInvoice(id)
	if err != nil {
		return fmt.Errorf("getting invoice for deletion: %w", err)
	}

	if inv.Filename != "" {
		if err := s.storage.Delete(inv.Filename); err != nil {
			// Log error but continue with database deletion
			slog.Warn("Failed to delete file", "filename", inv.Filename, "error", err)
		}
	}

	if err := s.db.DeleteInvoice(id); err != nil {
		return fmt.Errorf("deleting invoice from database: %w", err)
	}
	return nil
}

// GetInvoiceFile retrieves the stored document for an invoice
func (s *Service) GetInvoiceFile(id string) ([]byte, string, error) {
	inv, err := s.db.GetInvoice(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting invoice: %w", err)
	}
	if inv.Filename == "" {
		return nil, "", fmt.Errorf("%w: invoice %s has no file", ErrNotFound, id)
	}

	data, err := s.storage.Get(inv.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("getting invoice file: %w", err)
	}

	return data, inv.ContentType, nil
}

// SetStatus moves an invoice through review. Any status may be set again.
func (s *Service) SetStatus(id string, status Status) (*Invoice, error) {
	status, err := ParseStatus(string(status))
	if err != nil {
		return nil, err
	}

	inv, err := s.db.GetInvoice(id)
	if err != nil {
		return nil, fmt.Errorf("getting invoice: %w", err)
	}

	inv.Status = status
	inv.UpdatedAt = s.timeSource.Now()
	if err := s.db.SaveInvoice(inv); err != nil {
		return nil, fmt.Errorf("updating invoice: %w", err)
	}
	return inv, nil
}

// ExportXLSX renders the invoices passing filter as a spreadsheet
func (s *Service) ExportXLSX(filter Filter) ([]byte, error) {
	invoices, err := s.ListInvoices(filter)
	if err != nil {
		return nil, err
	}
	data, err := writeWorkbook(invoices)
	if err != nil {
		return nil, fmt.Errorf("writing spreadsheet: %w", err)
	}
	return data, nil
}

// isClientError reports errors caused by the document rather than the system
func isClientError(err error) bool {
	return errors.Is(err, scanning.ErrUnsupportedFormat) ||
		errors.Is(err, scanning.ErrNoText) ||
		errors.Is(err, ErrAmountNotFound)
}
