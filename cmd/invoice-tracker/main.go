package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/invoice-tracker/internal/extraction"
	"github.com/zombor/invoice-tracker/internal/invoice"
	"github.com/zombor/invoice-tracker/internal/logging"
	"github.com/zombor/invoice-tracker/internal/mailbox"
	"github.com/zombor/invoice-tracker/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("invoice-tracker")
	var (
		port           = fs.IntLong("port", 8080, "HTTP server port")
		dbPath         = fs.StringLong("db", "invoice-tracker.db", "Database file path")
		storagePath    = fs.StringLong("storage", "./uploads", "Storage directory path")
		scannerType    = fs.StringLong("scanner", "tesseract", "Scanner type: 'tesseract', 'gemini' or 'ollama'")
		tesseractBin   = fs.StringLong("tesseract-binary", "tesseract", "Tesseract binary name or path")
		tesseractLang  = fs.StringLong("tesseract-lang", "spa+eng", "Tesseract languages")
		tesseractDPI   = fs.IntLong("tesseract-dpi", 300, "DPI used to rasterize scanned PDF pages")
		geminiKey      = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel    = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ollamaURL      = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel    = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, llava-phi3, qwen2-vl)")
		numberFormat   = fs.StringLong("number-format", "auto", "Amount format: 'auto', 'dot-thousands' (1.234,56) or 'comma-thousands' (1,234.56)")
		gmailCreds     = fs.StringLong("gmail-credentials", "", "Google OAuth client credentials JSON; enables email sync")
		gmailToken     = fs.StringLong("gmail-token", "gmail-token.json", "File holding the Gmail OAuth token")
		gmailQuery     = fs.StringLong("gmail-query", mailbox.DefaultQuery, "Gmail search query used by email sync")
		gmailAuthorize = fs.BoolLong("gmail-authorize", "Authorize Gmail access interactively, save the token and exit")
		authUser       = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass       = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		logLevel       = fs.StringLong("log-level", "info", "Log level: debug, info, warn or error")
		logJSON        = fs.BoolLong("log-json", "Write logs as JSON lines")
		showVersion    = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("INVOICE_TRACKER"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	level, err := logging.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	logger := logging.Setup(logging.Config{Level: level, JSON: *logJSON})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *gmailAuthorize {
		if err := authorizeGmail(ctx, *gmailCreds, *gmailToken); err != nil {
			slog.Error("Failed to authorize Gmail", "error", err)
			os.Exit(1)
		}
		slog.Info("Saved Gmail token", "file", *gmailToken)
		return
	}

	format, err := extraction.ParseNumberFormat(*numberFormat)
	if err != nil {
		slog.Error("Invalid number format", "error", err)
		os.Exit(1)
	}
	engine := extraction.New(extraction.WithNumberFormat(format))

	// Initialize database
	slog.Info("Initializing database...", "path", *dbPath)
	db, err := invoice.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize scanner based on type
	scanner, err := scanning.New(ctx, scanning.Config{
		Backend: *scannerType,
		Tesseract: scanning.TesseractConfig{
			Binary: *tesseractBin,
			Lang:   *tesseractLang,
			DPI:    float64(*tesseractDPI),
		},
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

	// Initialize storage
	slog.Info("Initializing storage...", "path", *storagePath)
	store, err := invoice.NewLocalStorage(*storagePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	invoiceService := invoice.NewService(db, scanner, store, engine)

	if *gmailCreds != "" {
		gm, err := newGmail(ctx, *gmailCreds, *gmailToken, logger)
		if err != nil {
			slog.Error("Failed to initialize Gmail", "error", err)
			os.Exit(1)
		}
		invoiceService.SetMailbox(gm)
		invoiceService.SetMailboxQuery(*gmailQuery)
		slog.Info("Email sync enabled", "query", *gmailQuery)
	}

	basicAuth := invoice.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := invoice.NewServer(invoiceService, basicAuth)

	addr := fmt.Sprintf(":%d", *port)
	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "scanner", *scannerType, "number_format", format.String())
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Serve until interrupted
	if err := server.Start(ctx, addr); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	slog.Info("Shutting down...")
}

func newGmail(ctx context.Context, credentialsFile, tokenFile string, logger *slog.Logger) (*mailbox.Gmail, error) {
	config, err := mailbox.OAuthConfig(credentialsFile)
	if err != nil {
		return nil, err
	}
	client, err := mailbox.HTTPClient(ctx, config, tokenFile)
	if err != nil {
		return nil, err
	}
	return mailbox.NewGmail(ctx, client, logger, mailbox.WithRetry(3, 2*time.Second))
}

func authorizeGmail(ctx context.Context, credentialsFile, tokenFile string) error {
	if credentialsFile == "" {
		return fmt.Errorf("--gmail-credentials is required")
	}
	config, err := mailbox.OAuthConfig(credentialsFile)
	if err != nil {
		return err
	}
	return mailbox.Authorize(ctx, config, tokenFile, os.Stdin, os.Stdout)
}
