package document

import (
	"io"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// DecodeText reads r as UTF-8, honoring a UTF-8 or UTF-16 byte order mark.
// The BOM itself is stripped.
func DecodeText(r io.Reader) (string, error) {
	dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	data, err := io.ReadAll(transform.NewReader(r, dec))
	if err != nil {
		return "", eris.Wrap(err, "document: decode text")
	}
	return string(data), nil
}
