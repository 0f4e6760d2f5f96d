package extraction

// Field weights in hundredths. Stored confidence values depend on these exact numbers.
const (
	weightAmount        = 30
	weightProvider      = 25
	weightDate          = 15
	weightInvoiceNumber = 10
	weightTaxID         = 10
	weightPaymentMethod = 5
	weightCategory      = 5
)

// confidence scores an invoice by which fields are present, never by their content
func confidence(inv ExtractedInvoice) float64 {
	points := 0
	if inv.Amount != nil {
		points += weightAmount
	}
	if inv.Provider != nil {
		points += weightProvider
	}
	if inv.IssueDate != nil {
		points += weightDate
	}
	if inv.InvoiceNumber != nil {
		points += weightInvoiceNumber
	}
	if inv.TaxID != nil {
		points += weightTaxID
	}
	if inv.PaymentMethod != nil {
		points += weightPaymentMethod
	}
	if inv.Category != "" && inv.Category != CategoryOther {
		points += weightCategory
	}

	if points > 100 {
		points = 100
	}
	return float64(points) / 100
}
