package extraction

import (
	"regexp"
	"strings"
	"time"
)

// labelEnd stops a free-text capture at the next recognizable label
const labelEnd = `(?:\s+fecha|\s+total|\s+factura|$)`

var providerRules = []rule[string]{
	{regexp.MustCompile(`(?i)([a-zñáéíóúü\s.]+s\.a\.s\.|[a-zñáéíóúü\s]+ltda|[a-zñáéíóúü\s]+s\.a\.)`), acceptProvider},
	{regexp.MustCompile(`(?i)proveedor[:\s]*([^\n\r]+?)` + labelEnd), acceptProvider},
	{regexp.MustCompile(`(?i)vendedor[:\s]*([^\n\r]+?)` + labelEnd), acceptProvider},
	{regexp.MustCompile(`(?i)empresa[:\s]*([^\n\r]+?)` + labelEnd), acceptProvider},
	{regexp.MustCompile(`(?i)raz[oó]n social[:\s]*([^\n\r]+?)` + labelEnd), acceptProvider},
}

// documentHeader is the document title a company-form capture picks up ahead of the name
var documentHeader = regexp.MustCompile(`(?i)^factura(?:\s+electr[oó]nica)?(?:\s+de\s+venta)?\s+`)

// structuralWords are label words a provider pattern can swallow when the real name is missing
var structuralWords = map[string]bool{
	"fecha":        true,
	"total":        true,
	"factura":      true,
	"visible":      true,
	"proveedor":    true,
	"vendedor":     true,
	"empresa":      true,
	"razón social": true,
}

func acceptProvider(capture string) (string, bool) {
	name := documentHeader.ReplaceAllString(strings.TrimSpace(capture), "")
	if len([]rune(name)) <= 2 || structuralWords[strings.ToLower(name)] {
		return "", false
	}
	return titleCase(name), true
}

const (
	yearFirst = `([0-9]{4}[/\-.][0-9]{1,2}[/\-.][0-9]{1,2})`
	dayFirst  = `([0-9]{1,2}[/\-.][0-9]{1,2}[/\-.][0-9]{2,4})`
)

var dateRules = []rule[time.Time]{
	{regexp.MustCompile(`(?i)fecha[:\s]*` + yearFirst), parseDate},
	{regexp.MustCompile(`(?i)emisi[oó]n[:\s]*` + yearFirst), parseDate},
	{regexp.MustCompile(`(?i)fecha[:\s]*` + dayFirst), parseDate},
	{regexp.MustCompile(`(?i)emisi[oó]n[:\s]*` + dayFirst), parseDate},
	{regexp.MustCompile(yearFirst), parseDate},
	{regexp.MustCompile(dayFirst), parseDate},
}

// dateLayouts are tried in order; the first that yields a valid calendar date wins
var dateLayouts = []string{
	"2/1/2006",
	"2-1-2006",
	"2.1.2006",
	"2/1/06",
	"2-1-06",
	"2.1.06",
	"2006-1-2",
	"2006/1/2",
	"2006.1.2",
}

func parseDate(token string) (time.Time, bool) {
	token = strings.TrimSpace(token)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, token); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

var invoiceNumberRules = []rule[string]{
	{regexp.MustCompile(`(?i)factura[:\s]*n[o°º]?(?:[:\s.]+|\b)([0-9a-z\-]+)`), nonEmpty},
	{regexp.MustCompile(`(?i)\bno[:\s.]*factura[:\s]*([0-9a-z\-]+)`), nonEmpty},
	{regexp.MustCompile(`(?i)comprobante[:\s]*n[o°º]?(?:[:\s.]+|\b)([0-9a-z\-]+)`), nonEmpty},
}

var taxIDRules = []rule[string]{
	{regexp.MustCompile(`(?i)\bnit[:\s]*([0-9\-.]+)`), acceptTaxID},
	{regexp.MustCompile(`(?i)identificaci[oó]n[:\s]*([0-9\-.]+)`), acceptTaxID},
}

// acceptTaxID drops punctuation trailing the identifier, e.g. the sentence's full stop
func acceptTaxID(capture string) (string, bool) {
	return nonEmpty(strings.TrimRight(strings.TrimSpace(capture), ".-"))
}

// paymentVocabulary maps payment keywords to their canonical method
var paymentVocabulary = map[string]string{
	"efectivo":      "cash",
	"contado":       "cash",
	"tarjeta":       "card",
	"credito":       "credit",
	"crédito":       "credit",
	"debito":        "debit",
	"débito":        "debit",
	"transferencia": "transfer",
}

var paymentRules = []rule[string]{
	{regexp.MustCompile(`(?i)\b(efectivo|contado|tarjeta|cr[eé]dito|d[eé]bito|transferencia)\b`), func(capture string) (string, bool) {
		method, ok := paymentVocabulary[strings.ToLower(capture)]
		return method, ok
	}},
	{regexp.MustCompile(`(?i)m[eé]todo de pago[:\s]*([^\n\r]+?)(?:\s+nit|\s+fecha|\s+total|\s+factura|$)`), func(capture string) (string, bool) {
		return nonEmpty(strings.ToLower(capture))
	}},
}
