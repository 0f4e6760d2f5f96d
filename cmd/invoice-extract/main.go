// Command invoice-extract prints the invoice fields found in a document or in plain text.
//
//	invoice-extract [flags] FILE|-
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/invoice-tracker/internal/extraction"
	"github.com/zombor/invoice-tracker/internal/logging"
	"github.com/zombor/invoice-tracker/internal/scanning"
)

func main() {
	fs := ff.NewFlagSet("invoice-extract")
	var (
		textMode      = fs.BoolLong("text", "Treat the input as already transcribed text")
		scannerType   = fs.StringLong("scanner", "tesseract", "Scanner type: 'tesseract', 'gemini' or 'ollama'")
		contentType   = fs.StringLong("content-type", "", "MIME type of the input (detected when empty)")
		tesseractBin  = fs.StringLong("tesseract-binary", "tesseract", "Tesseract binary name or path")
		tesseractLang = fs.StringLong("tesseract-lang", "spa+eng", "Tesseract languages")
		geminiKey     = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel   = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ollamaURL     = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel   = fs.StringLong("ollama-model", "llava", "Ollama model name")
		numberFormat  = fs.StringLong("number-format", "auto", "Amount format: 'auto', 'dot-thousands' or 'comma-thousands'")
		logLevel      = fs.StringLong("log-level", "warn", "Log level: debug, info, warn or error")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("INVOICE_TRACKER"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	args := fs.GetArgs()
	if len(args) != 1 {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintln(os.Stderr, "error: expected exactly one FILE argument, or - for stdin")
		os.Exit(2)
	}

	level, err := logging.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	logging.Setup(logging.Config{Level: level})

	format, err := extraction.ParseNumberFormat(*numberFormat)
	if err != nil {
		slog.Error("Invalid number format", "error", err)
		os.Exit(1)
	}
	engine := extraction.New(extraction.WithNumberFormat(format))

	data, err := readInput(args[0])
	if err != nil {
		slog.Error("Failed to read input", "input", args[0], "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	text := string(data)
	if !*textMode {
		scanner, err := scanning.New(ctx, scanning.Config{
			Backend:     *scannerType,
			Tesseract:   scanning.TesseractConfig{Binary: *tesseractBin, Lang: *tesseractLang},
			GeminiKey:   *geminiKey,
			GeminiModel: *geminiModel,
			OllamaURL:   *ollamaURL,
			OllamaModel: *ollamaModel,
		})
		if err != nil {
			slog.Error("Failed to initialize scanner", "type", *scannerType, "error", err)
			os.Exit(1)
		}
		defer scanner.Close()

		doc, err := scanner.ScanText(ctx, data, inputContentType(args[0], *contentType, data))
		if err != nil {
			slog.Error("Failed to scan document", "input", args[0], "error", err)
			os.Exit(1)
		}
		slog.Info("Scanned document", "pages", doc.Pages, "method", doc.Method)
		text = doc.Text
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(engine.Extract(text)); err != nil {
		slog.Error("Failed to write result", "error", err)
		os.Exit(1)
	}
}

func readInput(name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(name)
}

// inputContentType prefers the flag, then the file extension, then sniffing the bytes
func inputContentType(name, flagValue string, data []byte) string {
	if flagValue != "" {
		return flagValue
	}
	if name != "-" && scanning.IsSupportedFormat(name) {
		return scanning.ContentTypeFor(name)
	}
	return http.DetectContentType(data)
}
