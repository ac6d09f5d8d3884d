// Package document turns input files into the plain text sent to the
// extraction providers.
package document

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/healthmetrics-cli/internal/config"
)

// PDFExtractor extracts text content from PDF files.
type PDFExtractor interface {
	ExtractText(ctx context.Context, pdfPath string) (string, error)
}

// NewPDFExtractor creates a PDFExtractor based on config.
func NewPDFExtractor(cfg config.DocumentConfig) (PDFExtractor, error) {
	switch cfg.PDFExtractor {
	case "local", "":
		return NewPdfToText(cfg.PdfToTextPath), nil
	case "mistral":
		if cfg.MistralKey == "" {
			return nil, eris.New("document: mistral extractor requires mistral_api_key")
		}
		return NewMistralOCR(cfg.MistralKey, cfg.MistralModel), nil
	default:
		return nil, eris.Errorf("document: unknown pdf extractor %q", cfg.PDFExtractor)
	}
}

// Loader reads documents of any supported type as text.
type Loader struct {
	pdf      PDFExtractor
	maxBytes int
}

// NewLoader creates a Loader. maxBytes <= 0 disables truncation.
func NewLoader(pdf PDFExtractor, maxBytes int) *Loader {
	return &Loader{pdf: pdf, maxBytes: maxBytes}
}

// FromConfig creates a Loader with the configured PDF extractor.
func FromConfig(cfg config.DocumentConfig) (*Loader, error) {
	pdf, err := NewPDFExtractor(cfg)
	if err != nil {
		return nil, err
	}
	return NewLoader(pdf, cfg.MaxBytes), nil
}

// Load reads the file at path and returns its text. The format is chosen by
// extension: .pdf goes through the PDF extractor, .xlsx is flattened to
// tab-separated rows, everything else is decoded as text.
func (l *Loader) Load(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", eris.Wrap(err, "document: load")
	}

	var (
		text string
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		if l.pdf == nil {
			return "", eris.Errorf("document: no pdf extractor configured for %s", path)
		}
		text, err = l.pdf.ExtractText(ctx, path)
	case ".xlsx":
		text, err = ReadXLSX(path)
	default:
		var f *os.File
		f, err = os.Open(path)
		if err != nil {
			return "", eris.Wrapf(err, "document: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		text, err = DecodeText(f)
	}
	if err != nil {
		return "", err
	}

	return l.finish(path, text)
}

// Read decodes text from r, for stdin input.
func (l *Loader) Read(r io.Reader) (string, error) {
	text, err := DecodeText(r)
	if err != nil {
		return "", err
	}
	return l.finish("-", text)
}

func (l *Loader) finish(source, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", eris.Errorf("document: %s contains no text", source)
	}
	if l.maxBytes > 0 && len(text) > l.maxBytes {
		zap.L().Warn("document: truncating input",
			zap.String("source", source),
			zap.Int("bytes", len(text)),
			zap.Int("max_bytes", l.maxBytes),
		)
		text = Truncate(text, l.maxBytes)
	}
	return text, nil
}

// Truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func Truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
