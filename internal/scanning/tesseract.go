package scanning

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gen2brain/go-fitz"
)

// TesseractConfig configures the local OCR backend
type TesseractConfig struct {
	Binary  string        // binary name or absolute path; default "tesseract"
	Lang    string        // default "spa+eng"
	OEM     int           // default 3
	PSM     int           // default 6, a uniform block of text
	DPI     float64       // rasterization DPI for scanned PDF pages; default 300
	Timeout time.Duration // per document; default 60s
}

// Tesseract implements the Scanner interface with the PDF text layer and the tesseract binary
type Tesseract struct {
	cfg    TesseractConfig
	runner Runner
}

// NewTesseract creates a new Tesseract Scanner. A nil runner executes commands on the host.
func NewTesseract(cfg TesseractConfig, runner Runner) *Tesseract {
	if cfg.Binary == "" {
		cfg.Binary = "tesseract"
	}
	if cfg.Lang == "" {
		cfg.Lang = "spa+eng"
	}
	if cfg.OEM == 0 {
		cfg.OEM = 3
	}
	if cfg.PSM == 0 {
		cfg.PSM = 6
	}
	if cfg.DPI == 0 {
		cfg.DPI = 300
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Tesseract{cfg: cfg, runner: runner}
}

// ScanText reads the text layer of a PDF, OCRing the pages that have none, or OCRs an image
func (t *Tesseract) ScanText(ctx context.Context, data []byte, contentType string) (*Document, error) {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	mimeType := normalizeContentType(contentType)
	switch {
	case mimeType == "application/pdf":
		return t.scanPDF(ctx, data)
	case isHEICFormat(data) || isHEICMimeType(mimeType):
		pngData, err := imageToPNG(data, mimeType)
		if err != nil {
			return nil, fmt.Errorf("converting image to PNG: %w", err)
		}
		return t.scanImage(ctx, pngData)
	case strings.HasPrefix(mimeType, "image/"), mimeType == "":
		return t.scanImage(ctx, data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, mimeType)
	}
}

func (t *Tesseract) scanImage(ctx context.Context, data []byte) (*Document, error) {
	text, err := t.ocr(ctx, data)
	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, ErrNoText
	}
	return &Document{Text: text, Pages: 1, Method: MethodImageOCR}, nil
}

func (t *Tesseract) scanPDF(ctx context.Context, data []byte) (*Document, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	pages := make([]string, 0, pageCount)
	method := MethodPDFText
	for i := 0; i < pageCount; i++ {
		text, err := doc.Text(i)
		if err != nil {
			return nil, fmt.Errorf("reading PDF page %d: %w", i+1, err)
		}
		if strings.TrimSpace(text) == "" {
			// Scanned page without a text layer
			img, err := doc.ImagePNG(i, t.cfg.DPI)
			if err != nil {
				return nil, fmt.Errorf("rendering PDF page %d: %w", i+1, err)
			}
			if text, err = t.ocr(ctx, img); err != nil {
				return nil, err
			}
			method = MethodPDFOCR
		}
		pages = append(pages, text)
	}

	text := joinPages(pages)
	if text == "" {
		return nil, ErrNoText
	}

	slog.Debug("scanned PDF", "pages", pageCount, "method", method, "text_length", len(text))
	return &Document{Text: text, Pages: pageCount, Method: method}, nil
}

// ocr runs `tesseract stdin stdout` over one image
func (t *Tesseract) ocr(ctx context.Context, image []byte) (string, error) {
	args := []string{
		"stdin", "stdout",
		"-l", t.cfg.Lang,
		"--oem", strconv.Itoa(t.cfg.OEM),
		"--psm", strconv.Itoa(t.cfg.PSM),
	}
	out, errb, err := t.runner.Run(ctx, image, t.cfg.Binary, args...)
	if err != nil {
		return "", fmt.Errorf("tesseract: %w: %s", err, strings.TrimSpace(string(errb)))
	}
	return strings.TrimSpace(string(out)), nil
}

// Close is a no-op for the Tesseract backend
func (t *Tesseract) Close() error {
	return nil
}
