package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

type Config struct {
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
}

// Extractor picks a strategy by file extension: pdftotext for PDFs, a direct
// read for plain-text documents. Scanned (image-only) PDFs yield empty text,
// which downstream treats as a document with no matching facts, not an error.
type Extractor struct {
	cfg    Config
	runner Runner
}

func New(cfg Config) *Extractor {
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	return &Extractor{cfg: cfg, runner: execRunner{}}
}

// NewWithRunner is for tests that stub the external command.
func NewWithRunner(cfg Config, r Runner) *Extractor {
	e := New(cfg)
	e.runner = r
	return e
}

func (e *Extractor) Extract(ctx context.Context, path string) (Result, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return e.extractPDF(ctx, path)
	case ".txt", ".text":
		return e.extractPlain(path)
	default:
		return Result{}, fmt.Errorf("unsupported document type: %q", filepath.Ext(path))
	}
}

func (e *Extractor) extractPDF(ctx context.Context, path string) (Result, error) {
	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, errb, err := e.runner.Run(ctx, e.cfg.Pdftotext, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err != nil {
		return Result{}, fmt.Errorf("pdftotext: %w: %s", err, truncate(string(errb), 512))
	}
	text := string(out)
	// A form-feed \f is used as page separator by default.
	return Result{Text: text, Pages: 1 + strings.Count(text, "\f"), Method: "pdf-text"}, nil
}

func (e *Extractor) extractPlain(path string) (Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("read document: %w", err)
	}
	if !utf8.Valid(data) {
		return Result{}, fmt.Errorf("document is not valid text")
	}
	return Result{Text: string(data), Pages: 1, Method: "plain-text"}, nil
}
