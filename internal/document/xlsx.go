package document

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// ReadXLSX flattens every sheet of a workbook into text. Each sheet starts
// with a "# name" line; rows are tab-separated and empty rows are dropped.
func ReadXLSX(path string) (string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return "", eris.Wrapf(err, "document: open xlsx %s", path)
	}

	var sb strings.Builder
	for _, sheet := range f.Sheets {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("# " + sheet.Name + "\n")
		for _, row := range sheet.Rows {
			line := rowText(row)
			if line == "" {
				continue
			}
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}
	return sb.String(), nil
}

func rowText(row *xlsx.Row) string {
	if row == nil {
		return ""
	}
	cells := make([]string, len(row.Cells))
	for i, cell := range row.Cells {
		cells[i] = strings.TrimSpace(cell.String())
	}
	return strings.TrimRight(strings.Join(cells, "\t"), "\t")
}
