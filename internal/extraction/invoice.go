package extraction

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// dateLayout is the ISO-8601 calendar date used on the wire
const dateLayout = "2006-01-02"

// ExtractedInvoice is the structured record recovered from one document's text.
// Optional fields are nil when the document did not yield them.
//
// Patterns match case-insensitively, but InvoiceNumber and TaxID keep the case they
// have in the document ("ABC-123" stays "ABC-123"). Records stored by extractors that
// lower-cased the whole text hold these values lower-cased, so compare them with
// strings.EqualFold.
type ExtractedInvoice struct {
	Amount        *decimal.Decimal
	Provider      *string
	IssueDate     *time.Time
	InvoiceNumber *string
	TaxID         *string
	PaymentMethod *string
	Category      Category
	Confidence    float64
	RawText       string
}

// wireInvoice is the flat key/value shape callers persist and serve
type wireInvoice struct {
	Amount        *json.Number `json:"amount"`
	Provider      *string      `json:"provider"`
	Date          *string      `json:"date"`
	InvoiceNumber *string      `json:"invoice_number"`
	TaxID         *string      `json:"nit"`
	PaymentMethod *string      `json:"payment_method"`
	Category      Category     `json:"category"`
	Confidence    float64      `json:"confidence"`
	RawText       string       `json:"raw_text"`
}

// MarshalJSON renders the record with amount as a JSON number and the date as YYYY-MM-DD
func (e ExtractedInvoice) MarshalJSON() ([]byte, error) {
	w := wireInvoice{
		Provider:      e.Provider,
		InvoiceNumber: e.InvoiceNumber,
		TaxID:         e.TaxID,
		PaymentMethod: e.PaymentMethod,
		Category:      e.Category,
		Confidence:    e.Confidence,
		RawText:       e.RawText,
	}
	if e.Amount != nil {
		n := json.Number(e.Amount.String())
		w.Amount = &n
	}
	if e.IssueDate != nil {
		d := e.IssueDate.Format(dateLayout)
		w.Date = &d
	}
	return json.Marshal(w)
}

// UnmarshalJSON reads the flat shape written by MarshalJSON
func (e *ExtractedInvoice) UnmarshalJSON(data []byte) error {
	var w wireInvoice
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	out := ExtractedInvoice{
		Provider:      w.Provider,
		InvoiceNumber: w.InvoiceNumber,
		TaxID:         w.TaxID,
		PaymentMethod: w.PaymentMethod,
		Category:      w.Category,
		Confidence:    w.Confidence,
		RawText:       w.RawText,
	}
	if out.Category == "" {
		out.Category = CategoryOther
	}
	if w.Amount != nil {
		amount, err := decimal.NewFromString(w.Amount.String())
		if err != nil {
			return fmt.Errorf("parsing amount: %w", err)
		}
		out.Amount = &amount
	}
	if w.Date != nil {
		date, err := time.Parse(dateLayout, *w.Date)
		if err != nil {
			return fmt.Errorf("parsing date: %w", err)
		}
		out.IssueDate = &date
	}

	*e = out
	return nil
}
