package extraction

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// NumberFormat selects how thousands and decimal separators are told apart in amount tokens
type NumberFormat int

const (
	// NumberAuto treats the right-most separator as decimal when both kinds appear,
	// and a lone separator kind as thousands when it repeats or is followed by exactly three digits.
	NumberAuto NumberFormat = iota
	// NumberDotThousands strips every '.' and reads ',' as the decimal separator (1.234,56).
	NumberDotThousands
	// NumberCommaThousands strips every ',' and reads '.' as the decimal separator (1,234.56).
	NumberCommaThousands
)

func (f NumberFormat) String() string {
	switch f {
	case NumberDotThousands:
		return "dot-thousands"
	case NumberCommaThousands:
		return "comma-thousands"
	default:
		return "auto"
	}
}

// ParseNumberFormat reads the flag spelling of a NumberFormat
func ParseNumberFormat(s string) (NumberFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return NumberAuto, nil
	case "dot-thousands":
		return NumberDotThousands, nil
	case "comma-thousands":
		return NumberCommaThousands, nil
	default:
		return NumberAuto, fmt.Errorf("unknown number format %q (want auto, dot-thousands or comma-thousands)", s)
	}
}

// Amount patterns, most specific first
var (
	reLabelledTotal = regexp.MustCompile(`(?i)(?:total|a pagar|valor bruto|valor total)[:\s]*\$?\s*([0-9.,]+)`)
	reTotal         = regexp.MustCompile(`(?i)total[:\s]*\$?\s*([0-9,]+\.?[0-9]*)`)
	reMonto         = regexp.MustCompile(`(?i)monto[:\s]*\$?\s*([0-9,]+\.?[0-9]*)`)
	reImporte       = regexp.MustCompile(`(?i)importe[:\s]*\$?\s*([0-9,]+\.?[0-9]*)`)
	reValor         = regexp.MustCompile(`(?i)valor[:\s]*\$?\s*([0-9,]+\.?[0-9]*)`)
	reCurrency      = regexp.MustCompile(`\$\s*([0-9,]+\.?[0-9]*)`)
	rePesos         = regexp.MustCompile(`(?i)([0-9,]+\.?[0-9]*)\s*pesos?`)
)

func amountRules(format NumberFormat) []rule[decimal.Decimal] {
	accept := func(token string) (decimal.Decimal, bool) {
		return parseAmount(token, format)
	}
	return []rule[decimal.Decimal]{
		{reLabelledTotal, accept},
		{reTotal, accept},
		{reMonto, accept},
		{reImporte, accept},
		{reValor, accept},
		{reCurrency, accept},
		{rePesos, accept},
	}
}

// parseAmount normalizes a numeric token and keeps it only when strictly positive
func parseAmount(token string, format NumberFormat) (decimal.Decimal, bool) {
	normalized, ok := normalizeNumber(token, format)
	if !ok {
		return decimal.Decimal{}, false
	}
	amount, err := decimal.NewFromString(normalized)
	if err != nil || !amount.IsPositive() {
		return decimal.Decimal{}, false
	}
	return amount, true
}

func normalizeNumber(token string, format NumberFormat) (string, bool) {
	token = strings.TrimRight(strings.TrimSpace(token), ".,")
	if token == "" {
		return "", false
	}

	switch format {
	case NumberDotThousands:
		return strings.ReplaceAll(strings.ReplaceAll(token, ".", ""), ",", "."), true
	case NumberCommaThousands:
		return strings.ReplaceAll(token, ",", ""), true
	}

	lastDot := strings.LastIndex(token, ".")
	lastComma := strings.LastIndex(token, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			return withSeparators(token, ".", ","), true
		}
		return withSeparators(token, ",", "."), true
	case lastDot >= 0:
		return singleSeparator(token, ".", lastDot), true
	case lastComma >= 0:
		return singleSeparator(token, ",", lastComma), true
	}
	return token, true
}

// singleSeparator decides whether the only separator kind in token groups thousands or marks decimals
func singleSeparator(token, sep string, last int) string {
	if strings.Count(token, sep) > 1 || len(token)-last-1 == 3 {
		return strings.ReplaceAll(token, sep, "")
	}
	return withSeparators(token, "", sep)
}

func withSeparators(token, thousands, decimalSep string) string {
	if thousands != "" {
		token = strings.ReplaceAll(token, thousands, "")
	}
	return strings.ReplaceAll(token, decimalSep, ".")
}
