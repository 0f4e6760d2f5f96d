package invoice

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/zombor/invoice-tracker/internal/mailbox"
)

var _ = Describe("SyncMailbox", func() {
	var (
		db          *mockDB
		storage     *mockStorage
		scanner     *mockScanner
		idGenerator *mockIDGenerator
		timeSource  *mockTimeSource
		inbox       *mockMailbox
		service     *Service
		ctx         context.Context

		query  string
		limit  int
		report *SyncReport
		err    error
	)

	received := date(2024, time.February, 3)

	BeforeEach(func() {
		db = newMockDB()
		storage = newMockStorage()
		scanner = newMockScanner()
		scanner.texts["logo"] = "ETB"
		scanner.texts["blank"] = "Gracias"
		idGenerator = &mockIDGenerator{id: "unexpected", queue: []string{"inv-1", "inv-4", "inv-5"}}
		timeSource = &mockTimeSource{now: time.Date(2024, 2, 5, 8, 0, 0, 0, time.UTC)}
		service = NewServiceWithDeps(db, scanner, storage, nil, idGenerator, timeSource)
		ctx = context.Background()
		query, limit = "", 0

		inbox = newMockMailbox(
			&mailbox.Message{
				ID:      "msg-1",
				Subject: "Factura electrónica Claro",
				From:    "Claro <facturas@claro.com.co>",
				Date:    received,
				Attachments: []mailbox.Attachment{
					{ID: "att-1", Filename: "factura.pdf", MimeType: "application/pdf", Data: []byte("pdf-1")},
				},
			},
			&mailbox.Message{
				ID:      "msg-2",
				Subject: "Factura ya importada",
				Attachments: []mailbox.Attachment{
					{ID: "att-2", Filename: "factura.pdf", MimeType: "application/pdf", Data: []byte("pdf-2")},
				},
			},
			&mailbox.Message{
				ID:      "msg-3",
				Subject: "Reunión mañana",
				Attachments: []mailbox.Attachment{
					{ID: "att-3", Filename: "agenda.pdf", MimeType: "application/pdf", Data: []byte("pdf-3")},
				},
			},
			&mailbox.Message{
				ID:      "msg-4",
				Subject: "Factura ETB",
				From:    "ETB <facturacion@etb.com.co>",
				Date:    received,
				Body:    "Valor: $120.000",
				Attachments: []mailbox.Attachment{
					{ID: "att-4", Filename: "logo.png", MimeType: "image/png", Data: []byte("logo")},
				},
			},
			&mailbox.Message{
				ID:      "msg-5",
				Subject: "Su recibo de pago",
				Attachments: []mailbox.Attachment{
					{ID: "att-5", Filename: "recibo.jpg", MimeType: "image/jpeg"},
				},
			},
			&mailbox.Message{
				ID:      "msg-6",
				Subject: "Comprobante de pago",
				Attachments: []mailbox.Attachment{
					{ID: "att-6", Filename: "scan.jpg", MimeType: "image/jpeg", Data: []byte("blank")},
				},
			},
			&mailbox.Message{
				ID:      "msg-7",
				Subject: "Factura adjunta",
				Attachments: []mailbox.Attachment{
					{ID: "att-7", Filename: "factura.pdf", MimeType: "application/pdf"},
				},
			},
		)
		inbox.attachments["msg-5/att-5"] = []byte("jpg-5")
		db.messages["msg-2"] = &ProcessedMessage{ID: "msg-2"}

		service.SetMailbox(inbox)
	})

	JustBeforeEach(func() {
		report, err = service.SyncMailbox(ctx, query, limit)
	})

	It("should not return an error", func() {
		Expect(err).NotTo(HaveOccurred())
	})

	It("should search with the default query and limit", func() {
		Expect(inbox.query).To(Equal(mailbox.DefaultQuery))
		Expect(inbox.max).To(Equal(DefaultSyncLimit))
	})

	It("should count every outcome", func() {
		Expect(report.Scanned).To(Equal(7))
		Expect(report.Imported).To(Equal(3))
		Expect(report.Skipped).To(Equal(3))
		Expect(report.Failed).To(Equal(1))
		Expect(report.Invoices).To(HaveLen(3))
	})

	It("should import attachments as email invoices", func() {
		inv := db.invoices["inv-1"]
		Expect(inv).NotTo(BeNil())
		Expect(inv.Source).To(Equal(SourceEmail))
		Expect(inv.EmailMessageID).To(Equal("msg-1"))
		Expect(inv.Description).To(Equal("Factura electrónica Claro"))
		Expect(inv.Provider).To(Equal("Supermercado Abc"))
		Expect(storage.files).To(HaveKey("inv-1_factura.pdf"))
	})

	It("should download attachments that are not inline", func() {
		Expect(db.invoices).To(HaveKey("inv-5"))
		Expect(storage.files).To(HaveKeyWithValue("inv-5_recibo.jpg", []byte("jpg-5")))
	})

	It("should fall back to the message text when no attachment holds an invoice", func() {
		inv := db.invoices["inv-4"]
		Expect(inv).NotTo(BeNil())
		Expect(inv.Amount.Equal(decimal.NewFromInt(120000))).To(BeTrue())
		Expect(inv.Provider).To(Equal("Etb"))
		Expect(inv.Date).To(Equal(received))
		Expect(inv.Filename).To(BeEmpty())
	})

	It("should mark imported messages as read", func() {
		Expect(inbox.read).To(Equal([]string{"msg-1", "msg-4", "msg-5"}))
	})

	It("should record handled messages but not failures", func() {
		Expect(db.messages).To(HaveKey("msg-1"))
		Expect(db.messages["msg-1"].InvoiceIDs).To(Equal([]string{"inv-1"}))
		Expect(db.messages["msg-1"].ProcessedAt).To(Equal(timeSource.now))
		Expect(db.messages).To(HaveKey("msg-6"))
		Expect(db.messages["msg-6"].InvoiceIDs).To(BeEmpty())
		Expect(db.messages).NotTo(HaveKey("msg-3"))
		Expect(db.messages).NotTo(HaveKey("msg-7"))
	})

	When("run a second time", func() {
		var second *SyncReport

		JustBeforeEach(func() {
			second, err = service.SyncMailbox(ctx, query, limit)
		})

		It("should not import anything again", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(second.Imported).To(Equal(0))
			Expect(second.Skipped).To(Equal(6))
			Expect(second.Failed).To(Equal(1))
			Expect(db.invoices).To(HaveLen(3))
		})
	})

	When("one attachment of a message fails to download", func() {
		BeforeEach(func() {
			idGenerator.queue = []string{"inv-a", "inv-b", "inv-c"}
			inbox = newMockMailbox(&mailbox.Message{
				ID:      "msg-8",
				Subject: "Factura de compra",
				Attachments: []mailbox.Attachment{
					{ID: "att-a", Filename: "a.pdf", MimeType: "application/pdf", Data: []byte("pdf-a")},
					{ID: "att-b", Filename: "b.pdf", MimeType: "application/pdf"},
				},
			})
			service.SetMailbox(inbox)
		})

		It("should keep the imported invoice and record the message as incomplete", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Failed).To(Equal(1))
			Expect(report.Imported).To(Equal(0))
			Expect(db.invoices).To(HaveLen(1))
			Expect(db.invoices).To(HaveKey("inv-a"))
			Expect(db.messages).To(HaveKey("msg-8"))
			Expect(db.messages["msg-8"].Incomplete).To(BeTrue())
			Expect(db.messages["msg-8"].InvoiceIDs).To(Equal([]string{"inv-a"}))
			Expect(db.messages["msg-8"].AttachmentIDs).To(Equal([]string{"att-a"}))
			Expect(inbox.read).To(BeEmpty())
		})

		When("synced again while the download still fails", func() {
			var second *SyncReport

			JustBeforeEach(func() {
				second, err = service.SyncMailbox(ctx, query, limit)
			})

			It("should not import the first attachment twice", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(second.Failed).To(Equal(1))
				Expect(second.Invoices).To(BeEmpty())
				Expect(db.invoices).To(HaveLen(1))
				Expect(db.messages["msg-8"].Incomplete).To(BeTrue())
			})
		})

		When("the download works on the next sync", func() {
			var second *SyncReport

			JustBeforeEach(func() {
				inbox.attachments["msg-8/att-b"] = []byte("pdf-b")
				second, err = service.SyncMailbox(ctx, query, limit)
			})

			It("should import only the missing attachment", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(second.Imported).To(Equal(1))
				Expect(second.Failed).To(Equal(0))
				Expect(second.Invoices).To(HaveLen(1))
				Expect(db.invoices).To(HaveLen(2))
				Expect(db.invoices).To(HaveKey("inv-b"))
				Expect(storage.files).To(HaveKeyWithValue("inv-b_b.pdf", []byte("pdf-b")))
			})

			It("should complete the message record", func() {
				Expect(db.messages["msg-8"].Incomplete).To(BeFalse())
				Expect(db.messages["msg-8"].InvoiceIDs).To(Equal([]string{"inv-a", "inv-b"}))
				Expect(inbox.read).To(Equal([]string{"msg-8"}))
			})
		})
	})

	When("an attachment has neither data nor an id", func() {
		BeforeEach(func() {
			inbox = newMockMailbox(&mailbox.Message{
				ID:      "msg-9",
				Subject: "Factura electrónica",
				Attachments: []mailbox.Attachment{
					{Filename: "factura.pdf", MimeType: "application/pdf"},
				},
			})
			service.SetMailbox(inbox)
		})

		It("should count the message as failed without recording it", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Failed).To(Equal(1))
			Expect(db.invoices).To(BeEmpty())
			Expect(db.messages).NotTo(HaveKey("msg-9"))
		})
	})

	When("given a query and limit", func() {
		BeforeEach(func() {
			query = "from:facturas@claro.com.co"
			limit = 3
		})

		It("should pass them to the mailbox", func() {
			Expect(inbox.query).To(Equal("from:facturas@claro.com.co"))
			Expect(inbox.max).To(Equal(3))
		})
	})

	When("the service has its own default query", func() {
		BeforeEach(func() {
			service.SetMailboxQuery("label:facturas is:unread")
		})

		It("should use it", func() {
			Expect(inbox.query).To(Equal("label:facturas is:unread"))
		})
	})

	When("the search fails", func() {
		BeforeEach(func() {
			inbox.searchErr = errors.New("quota exceeded")
		})

		It("should return the error", func() {
			Expect(err).To(MatchError(ContainSubstring("quota exceeded")))
		})
	})

	When("no mailbox is configured", func() {
		BeforeEach(func() {
			service.SetMailbox(nil)
		})

		It("should return ErrMailboxDisabled", func() {
			Expect(err).To(MatchError(ErrMailboxDisabled))
		})
	})
})
