package invoice

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
	"github.com/shopspring/decimal"

	"github.com/zombor/invoice-tracker/internal/extraction"
	"github.com/zombor/invoice-tracker/internal/mailbox"
)

// multipartUpload builds a form with a "file" part plus optional fields
func multipartUpload(filename string, content []byte, fields map[string]string) (*bytes.Buffer, string) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if filename != "" {
		part, err := writer.CreateFormFile("file", filename)
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write(content)
		Expect(err).NotTo(HaveOccurred())
	}
	for k, v := range fields {
		Expect(writer.WriteField(k, v)).To(Succeed())
	}
	Expect(writer.Close()).To(Succeed())
	return body, writer.FormDataContentType()
}

func decodeBody(resp *http.Response, v any) {
	defer resp.Body.Close()
	Expect(json.NewDecoder(resp.Body).Decode(v)).To(Succeed())
}

var _ = Describe("Server", func() {
	var (
		db          *mockDB
		storage     *mockStorage
		scanner     *mockScanner
		service     *Service
		server      *Server
		auth        BasicAuth
		ghttpServer *ghttp.Server
	)

	BeforeEach(func() {
		db = newMockDB()
		storage = newMockStorage()
		scanner = newMockScanner()
		service = NewServiceWithDeps(db, scanner, storage, nil,
			&mockIDGenerator{id: "test-id-123"},
			&mockTimeSource{now: time.Date(2024, 1, 20, 10, 0, 0, 0, time.UTC)},
		)
		auth = BasicAuth{}
	})

	JustBeforeEach(func() {
		server = NewServerWithMux(service, auth, http.NewServeMux())
		ghttpServer = ghttp.NewServer()
		ghttpServer.AppendHandlers(server.ServeHTTP)
	})

	AfterEach(func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
	})

	do := func(method, path string, body io.Reader, contentType string) *http.Response {
		req, err := http.NewRequest(method, ghttpServer.URL()+path, body)
		Expect(err).NotTo(HaveOccurred())
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	Describe("authentication", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "admin", Password: "secret"}
		})

		When("no credentials are sent", func() {
			It("should return Unauthorized with a challenge", func() {
				resp := do("GET", "/api/invoices", nil, "")
				Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
				Expect(resp.Header.Get("WWW-Authenticate")).To(ContainSubstring("Basic"))

				var body map[string]string
				decodeBody(resp, &body)
				Expect(body["error"]).To(Equal("Unauthorized"))
			})
		})

		When("valid credentials are sent", func() {
			It("should return status OK", func() {
				req, err := http.NewRequest("GET", ghttpServer.URL()+"/api/invoices", nil)
				Expect(err).NotTo(HaveOccurred())
				req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("admin:secret")))
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				resp.Body.Close()
			})
		})

		When("the wrong password is sent", func() {
			It("should return Unauthorized", func() {
				req, err := http.NewRequest("GET", ghttpServer.URL()+"/api/invoices", nil)
				Expect(err).NotTo(HaveOccurred())
				req.SetBasicAuth("admin", "wrong")
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
				resp.Body.Close()
			})
		})

		It("should leave the health check open", func() {
			resp := do("GET", "/healthz", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			resp.Body.Close()
		})
	})

	Describe("CORS", func() {
		It("should answer preflight requests", func() {
			resp := do("OPTIONS", "/api/ocr/process", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
			Expect(resp.Header.Get("Access-Control-Allow-Headers")).To(ContainSubstring("Authorization"))
			resp.Body.Close()
		})
	})

	Describe("POST /api/ocr/process", func() {
		It("should return the extraction without storing anything", func() {
			body, ct := multipartUpload("factura.jpg", []byte("jpeg"), nil)
			resp := do("POST", "/api/ocr/process", body, ct)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var result struct {
				FileName    string         `json:"file_name"`
				ContentType string         `json:"content_type"`
				Extraction  map[string]any `json:"extraction"`
			}
			decodeBody(resp, &result)
			Expect(result.FileName).To(Equal("factura.jpg"))
			Expect(result.ContentType).To(Equal("image/jpeg"))
			Expect(result.Extraction["amount"]).To(BeNumerically("==", 1500))
			Expect(result.Extraction["provider"]).To(Equal("Supermercado Abc"))
			Expect(result.Extraction["date"]).To(Equal("2024-01-15"))
			Expect(result.Extraction["category"]).To(Equal("groceries"))
			Expect(db.invoices).To(BeEmpty())
		})

		When("the file type is not supported", func() {
			It("should return Bad Request", func() {
				body, ct := multipartUpload("notas.docx", []byte("doc"), nil)
				resp := do("POST", "/api/ocr/process", body, ct)
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				resp.Body.Close()
			})
		})

		When("no file is sent", func() {
			It("should return Bad Request", func() {
				body, ct := multipartUpload("", nil, map[string]string{"description": "x"})
				resp := do("POST", "/api/ocr/process", body, ct)
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

				var errBody map[string]string
				decodeBody(resp, &errBody)
				Expect(errBody["error"]).To(ContainSubstring("No file"))
			})
		})
	})

	Describe("POST /api/ocr/process-and-create", func() {
		It("should create the invoice", func() {
			body, ct := multipartUpload("factura.pdf", []byte("%PDF"), map[string]string{
				"payment_method": "card",
				"category":       "food",
			})
			resp := do("POST", "/api/ocr/process-and-create", body, ct)
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			var inv map[string]any
			decodeBody(resp, &inv)
			Expect(inv["id"]).To(Equal("test-id-123"))
			Expect(inv["amount"]).To(Equal("1500"))
			Expect(inv["payment_method"]).To(Equal("card"))
			Expect(inv["category"]).To(Equal("food"))
			Expect(inv["status"]).To(Equal("pending"))
			Expect(db.invoices).To(HaveKey("test-id-123"))
		})

		When("the category is unknown", func() {
			It("should return Bad Request", func() {
				body, ct := multipartUpload("factura.pdf", []byte("%PDF"), map[string]string{"category": "toys"})
				resp := do("POST", "/api/ocr/process-and-create", body, ct)
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				resp.Body.Close()
				Expect(db.invoices).To(BeEmpty())
			})
		})

		When("no amount can be found", func() {
			BeforeEach(func() {
				scanner.text = "Gracias por su compra"
			})

			It("should return Bad Request", func() {
				body, ct := multipartUpload("factura.pdf", []byte("%PDF"), nil)
				resp := do("POST", "/api/ocr/process-and-create", body, ct)
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

				var errBody map[string]string
				decodeBody(resp, &errBody)
				Expect(errBody["error"]).To(Equal("No se pudo extraer el monto de la factura"))
			})
		})
	})

	Describe("POST /api/ocr/extract", func() {
		It("should extract fields from text", func() {
			resp := do("POST", "/api/ocr/extract", strings.NewReader(`{"text":"EDS Terpel\nNIT: 900.123.456-7\nTotal: 45.900\nEfectivo"}`), "application/json")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var result map[string]any
			decodeBody(resp, &result)
			Expect(result["amount"]).To(BeNumerically("==", 45900))
			Expect(result["nit"]).To(Equal("900.123.456-7"))
			Expect(result["payment_method"]).To(Equal("cash"))
			Expect(result["category"]).To(Equal("fuel"))
		})

		When("the body is not JSON", func() {
			It("should return Bad Request", func() {
				resp := do("POST", "/api/ocr/extract", strings.NewReader("not json"), "application/json")
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				resp.Body.Close()
			})
		})
	})

	Describe("invoice endpoints", func() {
		BeforeEach(func() {
			db.invoices["fuel-1"] = &Invoice{
				ID:          "fuel-1",
				Date:        time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
				Provider:    "Terpel",
				Amount:      decimal.NewFromInt(45900),
				Category:    extraction.CategoryFuel,
				Status:      StatusPending,
				Filename:    "fuel-1_tanqueo.jpg",
				ContentType: "image/jpeg",
			}
			db.invoices["hotel-1"] = &Invoice{
				ID:       "hotel-1",
				Date:     time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC),
				Provider: "Hotel Central",
				Amount:   decimal.NewFromInt(250000),
				Category: extraction.CategoryLodging,
				Status:   StatusValidated,
			}
			storage.files["fuel-1_tanqueo.jpg"] = []byte("jpeg")
		})

		Describe("GET /api/invoices", func() {
			It("should list invoices newest first", func() {
				resp := do("GET", "/api/invoices", nil, "")
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var invoices []map[string]any
				decodeBody(resp, &invoices)
				Expect(invoices).To(HaveLen(2))
				Expect(invoices[0]["id"]).To(Equal("fuel-1"))
				Expect(invoices[1]["id"]).To(Equal("hotel-1"))
			})

			It("should apply the query filters", func() {
				resp := do("GET", "/api/invoices?category=lodging&from=2024-02-10&to=2024-02-10&status=validada", nil, "")
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var invoices []map[string]any
				decodeBody(resp, &invoices)
				Expect(invoices).To(HaveLen(1))
				Expect(invoices[0]["id"]).To(Equal("hotel-1"))
			})

			It("should reject malformed dates", func() {
				resp := do("GET", "/api/invoices?from=05/03/2024", nil, "")
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				resp.Body.Close()
			})
		})

		Describe("GET /api/invoices/{id}", func() {
			It("should return the invoice", func() {
				resp := do("GET", "/api/invoices/hotel-1", nil, "")
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var inv map[string]any
				decodeBody(resp, &inv)
				Expect(inv["provider"]).To(Equal("Hotel Central"))
			})

			It("should return Not Found for unknown IDs", func() {
				resp := do("GET", "/api/invoices/missing", nil, "")
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
				resp.Body.Close()
			})
		})

		Describe("GET /api/invoices/{id}/file", func() {
			It("should return the stored document", func() {
				resp := do("GET", "/api/invoices/fuel-1/file", nil, "")
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(resp.Header.Get("Content-Type")).To(Equal("image/jpeg"))
				defer resp.Body.Close()
				data, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(data).To(Equal([]byte("jpeg")))
			})

			It("should return Not Found when the invoice has no file", func() {
				resp := do("GET", "/api/invoices/hotel-1/file", nil, "")
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
				resp.Body.Close()
			})
		})

		Describe("POST /api/invoices/{id}/status", func() {
			It("should update the status", func() {
				resp := do("POST", "/api/invoices/fuel-1/status", strings.NewReader(`{"status":"validated"}`), "application/json")
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				resp.Body.Close()
				Expect(db.invoices["fuel-1"].Status).To(Equal(StatusValidated))
			})

			It("should reject unknown statuses", func() {
				resp := do("POST", "/api/invoices/fuel-1/status", strings.NewReader(`{"status":"paid"}`), "application/json")
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				resp.Body.Close()
			})
		})

		Describe("DELETE /api/invoices/{id}", func() {
			It("should delete the invoice and its file", func() {
				resp := do("DELETE", "/api/invoices/fuel-1", nil, "")
				Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
				resp.Body.Close()
				Expect(db.invoices).NotTo(HaveKey("fuel-1"))
				Expect(storage.files).To(BeEmpty())
			})
		})

		Describe("GET /api/invoices/export.xlsx", func() {
			It("should return a spreadsheet", func() {
				resp := do("GET", "/api/invoices/export.xlsx", nil, "")
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(resp.Header.Get("Content-Type")).To(Equal(xlsxContentType))
				Expect(resp.Header.Get("Content-Disposition")).To(ContainSubstring("facturas.xlsx"))
				defer resp.Body.Close()
				data, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				// xlsx files are zip archives
				Expect(data[:2]).To(Equal([]byte("PK")))
			})
		})
	})

	Describe("POST /api/email/sync", func() {
		When("no mailbox is configured", func() {
			It("should return Service Unavailable", func() {
				resp := do("POST", "/api/email/sync", nil, "")
				Expect(resp.StatusCode).To(Equal(http.StatusServiceUnavailable))
				resp.Body.Close()
			})
		})

		When("a mailbox is configured", func() {
			var inbox *mockMailbox

			BeforeEach(func() {
				inbox = newMockMailbox(&mailbox.Message{
					ID:      "msg-1",
					Subject: "Factura de servicios",
					Attachments: []mailbox.Attachment{
						{ID: "att-1", Filename: "factura.pdf", MimeType: "application/pdf", Data: []byte("%PDF")},
					},
				})
				service.SetMailbox(inbox)
			})

			It("should return the sync report", func() {
				resp := do("POST", "/api/email/sync?limit=5&query=is:unread", nil, "")
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var report SyncReport
				decodeBody(resp, &report)
				Expect(report.Scanned).To(Equal(1))
				Expect(report.Imported).To(Equal(1))
				Expect(inbox.query).To(Equal("is:unread"))
				Expect(inbox.max).To(Equal(5))
			})

			It("should reject a bad limit", func() {
				resp := do("POST", "/api/email/sync?limit=many", nil, "")
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				resp.Body.Close()
			})
		})
	})
})
