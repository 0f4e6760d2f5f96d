package scanning

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
)

var (
	// ErrUnsupportedFormat is returned for documents no backend can read
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrNoText is returned when a document was read but yielded no text
	ErrNoText = errors.New("no text found in document")
)

// Method records how a document's text was obtained
type Method string

const (
	MethodPDFText  Method = "pdf-text"
	MethodPDFOCR   Method = "pdf-ocr"
	MethodImageOCR Method = "image-ocr"
	MethodGemini   Method = "gemini"
	MethodOllama   Method = "ollama"
)

// Document is the text recovered from an uploaded file
type Document struct {
	Text   string `json:"text"`
	Pages  int    `json:"pages"`
	Method Method `json:"method"`
}

// Scanner defines the interface for turning a document into text
type Scanner interface {
	// ScanText reads every page of a PDF or image and returns its text
	ScanText(ctx context.Context, data []byte, contentType string) (*Document, error)
	// Close closes the scanner and releases resources
	Close() error
}

var contentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".tiff": "image/tiff",
	".tif":  "image/tiff",
	".bmp":  "image/bmp",
	".pdf":  "application/pdf",
	".heic": "image/heic",
	".heif": "image/heif",
}

// IsSupportedFormat reports whether the file's extension is one a scanner can read
func IsSupportedFormat(filename string) bool {
	_, ok := contentTypes[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// ContentTypeFor maps a filename to its MIME type, or application/octet-stream when unknown
func ContentTypeFor(filename string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(filename))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// normalizeContentType lowercases a MIME type and drops any parameters
func normalizeContentType(contentType string) string {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	return mimeType
}
