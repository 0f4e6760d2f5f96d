// Package extraction turns the text recovered from a scanned invoice into a
// structured, confidence-scored record.
//
// Every field is found by an ordered cascade of patterns where the first
// accepted match wins. The engine is deterministic, keeps no state between
// calls and is safe for concurrent use.
package extraction

import (
	"github.com/shopspring/decimal"
)

// Engine extracts invoice fields from plain text
type Engine struct {
	numbers     NumberFormat
	amountRules []rule[decimal.Decimal]
}

// Option configures an Engine
type Option func(*Engine)

// WithNumberFormat sets how amount tokens are read. The default is NumberAuto.
func WithNumberFormat(f NumberFormat) Option {
	return func(e *Engine) {
		e.numbers = f
	}
}

// New creates an Engine
func New(opts ...Option) *Engine {
	e := &Engine{numbers: NumberAuto}
	for _, opt := range opts {
		opt(e)
	}
	e.amountRules = amountRules(e.numbers)
	return e
}

// NumberFormat reports how the engine reads amounts
func (e *Engine) NumberFormat() NumberFormat {
	return e.numbers
}

var defaultEngine = New()

// Extract runs the default engine over text
func Extract(text string) ExtractedInvoice {
	return defaultEngine.Extract(text)
}

// Extract never fails: fields the text does not support are left nil and the
// category falls back to CategoryOther.
func (e *Engine) Extract(text string) ExtractedInvoice {
	clean := normalize(text)
	inv := ExtractedInvoice{RawText: text}

	if amount, ok := firstMatch(e.amountRules, clean); ok {
		inv.Amount = &amount
	}
	if provider, ok := firstMatch(providerRules, clean); ok {
		inv.Provider = &provider
	}
	if date, ok := firstMatch(dateRules, clean); ok {
		inv.IssueDate = &date
	}
	if number, ok := firstMatch(invoiceNumberRules, clean); ok {
		inv.InvoiceNumber = &number
	}
	if taxID, ok := firstMatch(taxIDRules, clean); ok {
		inv.TaxID = &taxID
	}
	if method, ok := firstMatch(paymentRules, clean); ok {
		inv.PaymentMethod = &method
	}

	inv.Category = Classify(text)
	inv.Confidence = confidence(inv)
	return inv
}
