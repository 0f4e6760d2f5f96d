package invoice

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const (
	invoiceBucketName = "invoices"
	messageBucketName = "email_messages"
)

// ProcessedMessage records an email that sync has already handled. An incomplete record
// lists the attachments imported before a failure so the next sync only retries the rest.
type ProcessedMessage struct {
	ID            string    `json:"id"`
	InvoiceIDs    []string  `json:"invoice_ids"`
	AttachmentIDs []string  `json:"attachment_ids,omitempty"`
	Incomplete    bool      `json:"incomplete,omitempty"`
	ProcessedAt   time.Time `json:"processed_at"`
}

// DB defines the interface for database operations
type DB interface {
	// SaveInvoice inserts or replaces an invoice
	SaveInvoice(invoice *Invoice) error

	// GetInvoice retrieves an invoice by ID, returning ErrNotFound when absent
	GetInvoice(id string) (*Invoice, error)

	// ListInvoices returns all invoices
	ListInvoices() ([]*Invoice, error)

	// DeleteInvoice removes an invoice from the database
	DeleteInvoice(id string) error

	// SaveProcessedMessage records an email message as handled by sync
	SaveProcessedMessage(msg *ProcessedMessage) error

	// GetProcessedMessage returns the sync record for a message, or nil when sync never saw it
	GetProcessedMessage(id string) (*ProcessedMessage, error)

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{invoiceBucketName, messageBucketName} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// SaveInvoice saves an invoice to the database
func (b *BoltDB) SaveInvoice(invoice *Invoice) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(invoice)
		if err != nil {
			return fmt.Errorf("marshaling invoice: %w", err)
		}
		return tx.Bucket([]byte(invoiceBucketName)).Put([]byte(invoice.ID), data)
	})
}

// GetInvoice retrieves an invoice by ID
func (b *BoltDB) GetInvoice(id string) (*Invoice, error) {
	var invoice *Invoice
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(invoiceBucketName)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return json.Unmarshal(data, &invoice)
	})
	if err != nil {
		return nil, err
	}
	return invoice, nil
}

// ListInvoices returns all invoices in key order
func (b *BoltDB) ListInvoices() ([]*Invoice, error) {
	invoices := make([]*Invoice, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(invoiceBucketName)).ForEach(func(k, v []byte) error {
			var invoice Invoice
			if err := json.Unmarshal(v, &invoice); err != nil {
				return fmt.Errorf("unmarshaling invoice %s: %w", k, err)
			}
			invoices = append(invoices, &invoice)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return invoices, nil
}

// DeleteInvoice removes an invoice from the database
func (b *BoltDB) DeleteInvoice(id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(invoiceBucketName))
		if bucket.Get([]byte(id)) == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return bucket.Delete([]byte(id))
	})
}

// SaveProcessedMessage records an email message as handled
func (b *BoltDB) SaveProcessedMessage(msg *ProcessedMessage) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("marshaling processed message: %w", err)
		}
		return tx.Bucket([]byte(messageBucketName)).Put([]byte(msg.ID), data)
	})
}

// GetProcessedMessage returns the sync record for an email message, or nil when there is none
func (b *BoltDB) GetProcessedMessage(id string) (*ProcessedMessage, error) {
	var msg *ProcessedMessage
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(messageBucketName)).Get([]byte(id))
		if data == nil {
			return nil
		}
		msg = &ProcessedMessage{}
		if err := json.Unmarshal(data, msg); err != nil {
			return fmt.Errorf("unmarshaling processed message: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
