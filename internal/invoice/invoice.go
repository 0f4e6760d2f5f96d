package invoice

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/invoice-tracker/internal/extraction"
	"github.com/zombor/invoice-tracker/internal/scanning"
)

var (
	// ErrNotFound is returned when no invoice has the requested ID
	ErrNotFound = errors.New("invoice not found")
	// ErrAmountNotFound is returned when a document yields no amount to invoice
	ErrAmountNotFound = errors.New("no amount found in document")
	// ErrInvalidStatus is returned for statuses outside the review lifecycle
	ErrInvalidStatus = errors.New("invalid invoice status")
	// ErrMailboxDisabled is returned by email sync when no mailbox is configured
	ErrMailboxDisabled = errors.New("email ingestion is not configured")
)

// UnknownProvider is recorded when neither the document nor the caller names a provider
const UnknownProvider = "Proveedor no identificado"

// Status is where an invoice is in the review lifecycle
type Status string

const (
	StatusPending   Status = "pending"
	StatusValidated Status = "validated"
	StatusRejected  Status = "rejected"
)

// ParseStatus validates a status name; the Spanish spellings are accepted as aliases
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending", "pendiente":
		return StatusPending, nil
	case "validated", "validada":
		return StatusValidated, nil
	case "rejected", "rechazada":
		return StatusRejected, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
}

// Source is how an invoice entered the system
type Source string

const (
	SourceUpload Source = "upload"
	SourceEmail  Source = "email"
)

// Invoice represents a stored expense invoice
type Invoice struct {
	ID             string                       `json:"id"`
	Date           time.Time                    `json:"date"`
	Provider       string                       `json:"provider"`
	Amount         decimal.Decimal              `json:"amount"`
	PaymentMethod  string                       `json:"payment_method,omitempty"`
	Category       extraction.Category          `json:"category"`
	TaxID          string                       `json:"nit,omitempty"`
	InvoiceNumber  string                       `json:"invoice_number,omitempty"`
	Description    string                       `json:"description"`
	Filename       string                       `json:"filename,omitempty"`
	ContentType    string                       `json:"content_type,omitempty"`
	Status         Status                       `json:"status"`
	Source         Source                       `json:"source"`
	EmailMessageID string                       `json:"email_message_id,omitempty"`
	OCR            *extraction.ExtractedInvoice `json:"ocr,omitempty"`
	OCRConfidence  float64                      `json:"ocr_confidence"`
	CreatedAt      time.Time                    `json:"created_at"`
	UpdatedAt      time.Time                    `json:"updated_at"`
}

// ScanResult is the extraction of one uploaded document, without persisting anything
type ScanResult struct {
	FileName    string                      `json:"file_name"`
	FileSize    int                         `json:"file_size"`
	ContentType string                      `json:"content_type"`
	Pages       int                         `json:"pages"`
	Method      scanning.Method             `json:"method"`
	TextLength  int                         `json:"text_length"`
	ProcessedAt time.Time                   `json:"processed_at"`
	Extraction  extraction.ExtractedInvoice `json:"extraction"`
}

// Upload is a document to turn into an invoice. The optional fields override what extraction finds.
type Upload struct {
	Filename    string
	Data        []byte
	ContentType string

	PaymentMethod string
	Category      extraction.Category
	Description   string

	Source         Source
	EmailMessageID string
}

// Filter narrows ListInvoices. Zero fields match everything.
type Filter struct {
	From     *time.Time
	To       *time.Time
	Category extraction.Category
	Status   Status
	Provider string
}

// Match reports whether inv passes every set criterion. From and To are inclusive.
func (f Filter) Match(inv *Invoice) bool {
	if f.From != nil && inv.Date.Before(*f.From) {
		return false
	}
	if f.To != nil && inv.Date.After(*f.To) {
		return false
	}
	if f.Category != "" && inv.Category != f.Category {
		return false
	}
	if f.Status != "" && inv.Status != f.Status {
		return false
	}
	if f.Provider != "" && !strings.Contains(strings.ToLower(inv.Provider), strings.ToLower(f.Provider)) {
		return false
	}
	return true
}
