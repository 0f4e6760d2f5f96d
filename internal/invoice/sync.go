package invoice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/zombor/invoice-tracker/internal/mailbox"
	"github.com/zombor/invoice-tracker/internal/scanning"
)

// Mailbox is the email source sync reads from
type Mailbox interface {
	Search(ctx context.Context, query string, max int) ([]*mailbox.Message, error)
	Attachment(ctx context.Context, messageID, attachmentID string) ([]byte, error)
	MarkAsRead(ctx context.Context, messageID string) error
}

// DefaultSyncLimit caps how many messages one sync reads when the caller gives no limit
const DefaultSyncLimit = 10

// SyncReport summarizes one mailbox sync
type SyncReport struct {
	Scanned  int        `json:"scanned"`
	Imported int        `json:"imported"`
	Skipped  int        `json:"skipped"`
	Failed   int        `json:"failed"`
	Invoices []*Invoice `json:"invoices"`
}

// SyncMailbox imports invoices from unread matching emails. Messages already handled by an
// earlier sync are skipped, so running it again is safe.
func (s *Service) SyncMailbox(ctx context.Context, query string, limit int) (*SyncReport, error) {
	if s.mailbox == nil {
		return nil, ErrMailboxDisabled
	}
	if query == "" {
		query = s.mailQuery
	}
	if query == "" {
		query = mailbox.DefaultQuery
	}
	if limit <= 0 {
		limit = DefaultSyncLimit
	}

	messages, err := s.mailbox.Search(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("searching mailbox: %w", err)
	}

	report := &SyncReport{Scanned: len(messages), Invoices: make([]*Invoice, 0)}
	for _, msg := range messages {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		logger := slog.With("message_id", msg.ID, "subject", msg.Subject)

		record, err := s.db.GetProcessedMessage(msg.ID)
		if err != nil {
			logger.Error("Failed to check message", "error", err)
			report.Failed++
			continue
		}
		if (record != nil && !record.Incomplete) || !mailbox.IsInvoiceEmail(msg) {
			report.Skipped++
			continue
		}
		if record == nil {
			record = &ProcessedMessage{ID: msg.ID}
		}

		invoices, err := s.importMessage(ctx, msg, record)
		report.Invoices = append(report.Invoices, invoices...)
		record.ProcessedAt = s.timeSource.Now()
		if err != nil {
			logger.Error("Failed to import message", "error", err, "imported", len(record.InvoiceIDs))
			report.Failed++
			if len(record.AttachmentIDs) > 0 {
				record.Incomplete = true
				s.saveProcessedMessage(logger, record)
			}
			continue
		}

		if len(record.InvoiceIDs) == 0 {
			logger.Info("No invoice found in message")
			report.Skipped++
		} else {
			report.Imported++
			if err := s.mailbox.MarkAsRead(ctx, msg.ID); err != nil {
				logger.Warn("Failed to mark message as read", "error", err)
			}
		}

		record.Incomplete = false
		s.saveProcessedMessage(logger, record)
	}

	slog.Info("Mailbox sync finished",
		"scanned", report.Scanned,
		"imported", report.Imported,
		"skipped", report.Skipped,
		"failed", report.Failed,
	)
	return report, nil
}

func (s *Service) saveProcessedMessage(logger *slog.Logger, record *ProcessedMessage) {
	if err := s.db.SaveProcessedMessage(record); err != nil {
		logger.Error("Failed to record processed message", "error", err)
	}
}

// importMessage creates one invoice per readable attachment, falling back to the message text.
// Attachments already listed in record are skipped, and every attachment handled here is added
// to it, so a failure part way through leaves record describing what was imported.
// Documents that simply hold no invoice are not errors.
func (s *Service) importMessage(ctx context.Context, msg *mailbox.Message, record *ProcessedMessage) ([]*Invoice, error) {
	description := mailbox.Description(msg)
	invoices := make([]*Invoice, 0, len(msg.Attachments))

	for _, att := range msg.Attachments {
		if !scanning.IsSupportedFormat(att.Filename) {
			continue
		}
		key := attachmentKey(att)
		if slices.Contains(record.AttachmentIDs, key) {
			continue
		}

		data := att.Data
		if len(data) == 0 {
			if att.ID == "" {
				return invoices, fmt.Errorf("attachment %s has no data to download", att.Filename)
			}
			var err error
			if data, err = s.mailbox.Attachment(ctx, msg.ID, att.ID); err != nil {
				return invoices, fmt.Errorf("downloading %s: %w", att.Filename, err)
			}
		}

		inv, err := s.ProcessAndCreate(ctx, Upload{
			Filename:       att.Filename,
			Data:           data,
			ContentType:    att.MimeType,
			Description:    description,
			Source:         SourceEmail,
			EmailMessageID: msg.ID,
		})
		if isClientError(err) {
			slog.Info("Attachment holds no invoice", "message_id", msg.ID, "filename", att.Filename, "reason", err)
			record.AttachmentIDs = append(record.AttachmentIDs, key)
			continue
		}
		if err != nil {
			return invoices, fmt.Errorf("processing %s: %w", att.Filename, err)
		}
		invoices = append(invoices, inv)
		record.InvoiceIDs = append(record.InvoiceIDs, inv.ID)
		record.AttachmentIDs = append(record.AttachmentIDs, key)
	}

	if len(record.InvoiceIDs) > 0 {
		return invoices, nil
	}

	inv, err := s.CreateFromText(ctx, TextInvoice{
		Text:             msg.Subject + "\n" + msg.Body,
		FallbackProvider: mailbox.ProviderFromSender(msg.From, msg.Subject),
		FallbackDate:     msg.Date,
		Description:      description,
		Source:           SourceEmail,
		EmailMessageID:   msg.ID,
	})
	if errors.Is(err, ErrAmountNotFound) {
		return invoices, nil
	}
	if err != nil {
		return invoices, err
	}
	record.InvoiceIDs = append(record.InvoiceIDs, inv.ID)
	return append(invoices, inv), nil
}

// attachmentKey identifies an attachment within its message. Inline parts may carry no ID.
func attachmentKey(att mailbox.Attachment) string {
	if att.ID != "" {
		return att.ID
	}
	return att.Filename
}
