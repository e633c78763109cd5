package ingest

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/drishti-labs/drishti-cli/internal/audit"
)

// readXLSX parses the first sheet of one XLSX source file. Row semantics
// match readCSV: first row is the header, bad rows are dropped and counted.
func readXLSX(path string) ([]audit.UpdateRecord, int, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, 0, eris.Wrap(err, "xlsx: open file")
	}
	if len(f.Sheets) == 0 {
		return nil, 0, eris.New("xlsx: file has no sheets")
	}

	sheet := f.Sheets[0]
	if len(sheet.Rows) == 0 {
		return nil, 0, eris.New("xlsx: sheet has no rows")
	}

	header := normalizeHeader(rowToStrings(sheet.Rows[0]))

	var records []audit.UpdateRecord
	dropped := 0

	for _, row := range sheet.Rows[1:] {
		rec, ok := recordFromRow(header, rowToStrings(row))
		if !ok {
			dropped++
			continue
		}
		records = append(records, rec)
	}

	return records, dropped, nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}
