// Package mailbox reads invoice emails from a Gmail mailbox.
package mailbox

import (
	"net/mail"
	"path/filepath"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// UnknownProvider is returned when neither the sender nor the subject names a provider
const UnknownProvider = "Proveedor Desconocido"

// DefaultQuery selects recent messages that carry attachments
const DefaultQuery = "has:attachment newer_than:7d"

// Message is a decoded email
type Message struct {
	ID          string
	Subject     string
	From        string
	Date        time.Time
	Body        string
	Attachments []Attachment
}

// Attachment describes a file attached to a Message. Data is set only for inline parts;
// otherwise fetch it by ID.
type Attachment struct {
	ID       string
	Filename string
	MimeType string
	Size     int64
	Data     []byte
}

// invoiceKeywords mark a message as talking about a bill, in Spanish or English
var invoiceKeywords = []string{
	"factura", "invoice", "recibo", "comprobante",
	"gasto", "expense", "pago", "payment",
	"cobro", "charge", "servicio", "service",
}

var invoiceAttachmentTypes = map[string]bool{
	"application/pdf": true,
	"image/jpeg":      true,
	"image/png":       true,
}

// IsInvoiceEmail reports whether msg mentions an invoice keyword and carries a PDF or image attachment
func IsInvoiceEmail(msg *Message) bool {
	text := strings.ToLower(msg.Subject + "\n" + msg.Body)

	hasKeyword := false
	for _, keyword := range invoiceKeywords {
		if strings.Contains(text, keyword) {
			hasKeyword = true
			break
		}
	}
	if !hasKeyword {
		return false
	}

	for _, att := range msg.Attachments {
		if IsInvoiceAttachment(att) {
			return true
		}
	}
	return false
}

// IsInvoiceAttachment reports whether an attachment is a PDF, JPEG or PNG, by MIME type or extension
func IsInvoiceAttachment(att Attachment) bool {
	if invoiceAttachmentTypes[strings.ToLower(att.MimeType)] {
		return true
	}
	switch strings.ToLower(filepath.Ext(att.Filename)) {
	case ".pdf", ".jpg", ".jpeg", ".png":
		return true
	}
	return false
}

// ProviderFromSender names the provider after the sender's domain, falling back to the
// word after "de" or "from" in an invoice subject
func ProviderFromSender(from, subject string) string {
	address := from
	if parsed, err := mail.ParseAddress(from); err == nil {
		address = parsed.Address
	}
	if at := strings.LastIndex(address, "@"); at >= 0 {
		domain := strings.Trim(address[at+1:], "<> ")
		if label, _, _ := strings.Cut(domain, "."); label != "" {
			return capitalize(label)
		}
	}

	if strings.Contains(strings.ToLower(subject), "factura") {
		words := strings.Fields(subject)
		for i, word := range words {
			w := strings.ToLower(word)
			if (w == "de" || w == "from") && i+1 < len(words) {
				return capitalize(words[i+1])
			}
		}
	}

	return UnknownProvider
}

// Description summarizes a message for the invoice it produced
func Description(msg *Message) string {
	switch {
	case strings.TrimSpace(msg.Subject) != "":
		return truncateRunes(strings.TrimSpace(msg.Subject), 200)
	case strings.TrimSpace(msg.Body) != "":
		return truncateRunes(strings.TrimSpace(msg.Body), 200)
	default:
		return "Factura recibida por email"
	}
}

func capitalize(word string) string {
	r, size := utf8.DecodeRuneInString(word)
	if r == utf8.RuneError {
		return word
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(word[size:])
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
