package document

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/healthmetrics-cli/internal/config"
	"github.com/sells-group/healthmetrics-cli/internal/resilience"
)

type stubPDF struct {
	text string
	path string
}

func (s *stubPDF) ExtractText(_ context.Context, pdfPath string) (string, error) {
	s.path = pdfPath
	return s.text, nil
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func createTestXLSX(t *testing.T, sheets []string, rows map[string][][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	for _, name := range sheets {
		sheet, err := f.AddSheet(name)
		require.NoError(t, err)
		for _, rowData := range rows[name] {
			row := sheet.AddRow()
			for _, cellData := range rowData {
				row.AddCell().SetString(cellData)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "labs.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func testMistral(endpoint string) *MistralOCR {
	retry := resilience.DefaultRetryConfig()
	retry.InitialBackoff = time.Millisecond
	retry.MaxBackoff = time.Millisecond
	retry.JitterFraction = 0
	return &MistralOCR{
		apiKey:   "test-key",
		model:    "test-model",
		endpoint: endpoint,
		client:   &http.Client{},
		retry:    retry,
	}
}

func TestNewPDFExtractor(t *testing.T) {
	ext, err := NewPDFExtractor(config.DocumentConfig{PDFExtractor: "local", PdfToTextPath: "/usr/bin/pdftotext"})
	require.NoError(t, err)
	assert.IsType(t, &PdfToText{}, ext)

	ext, err = NewPDFExtractor(config.DocumentConfig{})
	require.NoError(t, err)
	assert.IsType(t, &PdfToText{}, ext)

	ext, err = NewPDFExtractor(config.DocumentConfig{PDFExtractor: "mistral", MistralKey: "k", MistralModel: "m"})
	require.NoError(t, err)
	require.IsType(t, &MistralOCR{}, ext)
	assert.Equal(t, "m", ext.(*MistralOCR).model)

	_, err = NewPDFExtractor(config.DocumentConfig{PDFExtractor: "mistral"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires mistral_api_key")

	_, err = NewPDFExtractor(config.DocumentConfig{PDFExtractor: "tesseract"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown pdf extractor "tesseract"`)
}

func TestFromConfig(t *testing.T) {
	l, err := FromConfig(config.DocumentConfig{PDFExtractor: "local", MaxBytes: 10})
	require.NoError(t, err)
	assert.Equal(t, 10, l.maxBytes)

	_, err = FromConfig(config.DocumentConfig{PDFExtractor: "bogus"})
	assert.Error(t, err)
}

func TestLoader_Text(t *testing.T) {
	path := writeFile(t, "visit.txt", []byte("  Blood pressure 120/80 mmHg\nPulse 72\n"))

	text, err := NewLoader(nil, 0).Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "Blood pressure 120/80 mmHg\nPulse 72", text)
}

func TestLoader_UTF8BOM(t *testing.T) {
	path := writeFile(t, "visit.md", append([]byte{0xEF, 0xBB, 0xBF}, []byte("Temp 98.6 °F")...))

	text, err := NewLoader(nil, 0).Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "Temp 98.6 °F", text)
}

func TestLoader_UTF16LE(t *testing.T) {
	// "HR 72" in UTF-16LE with BOM.
	data := []byte{0xFF, 0xFE, 'H', 0, 'R', 0, ' ', 0, '7', 0, '2', 0}
	path := writeFile(t, "export.csv", data)

	text, err := NewLoader(nil, 0).Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "HR 72", text)
}

func TestLoader_PDF(t *testing.T) {
	pdf := &stubPDF{text: "SpO2 98%"}
	path := writeFile(t, "Report.PDF", []byte("%PDF-1.4"))

	text, err := NewLoader(pdf, 0).Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "SpO2 98%", text)
	assert.Equal(t, path, pdf.path)
}

func TestLoader_PDFWithoutExtractor(t *testing.T) {
	path := writeFile(t, "report.pdf", []byte("%PDF-1.4"))

	_, err := NewLoader(nil, 0).Load(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no pdf extractor")
}

func TestLoader_XLSX(t *testing.T) {
	path := createTestXLSX(t, []string{"Vitals", "Labs"}, map[string][][]string{
		"Vitals": {{"Metric", "Value"}, {"Heart rate", "72"}, {"", ""}},
		"Labs":   {{"A1c", "5.6", ""}},
	})

	text, err := NewLoader(nil, 0).Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "# Vitals\nMetric\tValue\nHeart rate\t72\n\n# Labs\nA1c\t5.6", text)
}

func TestLoader_XLSXInvalid(t *testing.T) {
	path := writeFile(t, "broken.xlsx", []byte("not a zip"))

	_, err := NewLoader(nil, 0).Load(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open xlsx")
}

func TestLoader_Missing(t *testing.T) {
	_, err := NewLoader(nil, 0).Load(context.Background(), filepath.Join(t.TempDir(), "nope.txt"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "document: open")
}

func TestLoader_Empty(t *testing.T) {
	path := writeFile(t, "blank.txt", []byte(" \n\t"))

	_, err := NewLoader(nil, 0).Load(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "contains no text")
}

func TestLoader_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewLoader(nil, 0).Load(ctx, "whatever.txt")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoader_Truncates(t *testing.T) {
	path := writeFile(t, "long.txt", []byte(strings.Repeat("a", 50)))

	text, err := NewLoader(nil, 10).Load(context.Background(), path)
	require.NoError(t, err)
	assert.Len(t, text, 10)
}

func TestLoader_Read(t *testing.T) {
	text, err := NewLoader(nil, 0).Read(strings.NewReader("\ufeffBMI 24.5\n"))
	require.NoError(t, err)
	assert.Equal(t, "BMI 24.5", text)

	_, err = NewLoader(nil, 0).Read(strings.NewReader(""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "- contains no text")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 10))
	assert.Equal(t, "abc", Truncate("abc", 0))
	assert.Equal(t, "ab", Truncate("abc", 2))
	// "°" is two bytes; cutting inside it backs up to the rune start.
	assert.Equal(t, "98.6 ", Truncate("98.6 °F", 6))
	assert.Equal(t, "98.6 °", Truncate("98.6 °F", 7))
}

func TestPdfToText_BinPath(t *testing.T) {
	assert.Equal(t, "pdftotext", NewPdfToText("").binPath)
	assert.Equal(t, "/custom/pdftotext", NewPdfToText("/custom/pdftotext").binPath)
}

func TestPdfToText_ExtractText_Success(t *testing.T) {
	fakeBin := writeFile(t, "pdftotext", []byte("#!/bin/sh\necho 'Glucose 95 mg/dL'\n"))
	require.NoError(t, os.Chmod(fakeBin, 0o755))

	text, err := NewPdfToText(fakeBin).ExtractText(context.Background(), "/tmp/dummy.pdf")
	require.NoError(t, err)
	assert.Contains(t, text, "Glucose 95 mg/dL")
}

func TestPdfToText_ExtractText_BinaryNotFound(t *testing.T) {
	_, err := NewPdfToText("/nonexistent/pdftotext").ExtractText(context.Background(), "/tmp/test.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pdftotext failed")
}

func TestMistralOCR_Defaults(t *testing.T) {
	m := NewMistralOCR("key", "")
	assert.Equal(t, defaultMistralModel, m.model)
	assert.Equal(t, mistralOCREndpoint, m.endpoint)
}

func TestMistralOCR_ExtractText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req mistralOCRRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		assert.Equal(t, "document_url", req.Document.Type)
		assert.True(t, strings.HasPrefix(req.Document.DocumentURL, "data:application/pdf;base64,"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(mistralOCRResponse{Pages: []mistralOCRPage{ //nolint:errcheck
			{Index: 0, Markdown: "Page one"},
			{Index: 1, Markdown: "Page two"},
		}})
	}))
	defer srv.Close()

	pdfPath := writeFile(t, "test.pdf", []byte("%PDF-1.4 test"))
	text, err := testMistral(srv.URL).ExtractText(context.Background(), pdfPath)
	require.NoError(t, err)
	assert.Equal(t, "Page one\n\nPage two", text)
}

func TestMistralOCR_RetriesTransient(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(mistralOCRResponse{Pages: []mistralOCRPage{{Markdown: "ok"}}}) //nolint:errcheck
	}))
	defer srv.Close()

	pdfPath := writeFile(t, "test.pdf", []byte("%PDF-1.4 test"))
	text, err := testMistral(srv.URL).ExtractText(context.Background(), pdfPath)
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, int32(2), calls.Load())
}

func TestMistralOCR_AuthErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid api key"}`))
	}))
	defer srv.Close()

	pdfPath := writeFile(t, "test.pdf", []byte("%PDF-1.4 test"))
	_, err := testMistral(srv.URL).ExtractText(context.Background(), pdfPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "code 401")
	assert.Equal(t, int32(1), calls.Load())
}

func TestMistralOCR_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{invalid json`))
	}))
	defer srv.Close()

	pdfPath := writeFile(t, "test.pdf", []byte("%PDF-1.4 test"))
	_, err := testMistral(srv.URL).ExtractText(context.Background(), pdfPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal response")
}

func TestMistralOCR_FileNotFound(t *testing.T) {
	_, err := NewMistralOCR("key", "model").ExtractText(context.Background(), "/nonexistent/file.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read PDF")
}
