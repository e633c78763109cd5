package ingest

import (
	"encoding/csv"
	"io"
	"os"

	"github.com/rotisserie/eris"

	"github.com/drishti-labs/drishti-cli/internal/audit"
)

// readCSV parses one CSV source file. The first row is the header; malformed
// data rows and rows with unusable pincodes are dropped and counted rather
// than failing the file.
func readCSV(path string) ([]audit.UpdateRecord, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, eris.Wrap(err, "csv: open")
	}
	defer f.Close() //nolint:errcheck

	reader := csv.NewReader(f)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1 // allow variable fields

	header, err := reader.Read()
	if err != nil {
		return nil, 0, eris.Wrap(err, "csv: read header")
	}
	header = normalizeHeader(header)

	var records []audit.UpdateRecord
	dropped := 0

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			dropped++
			continue // skip malformed rows
		}

		rec, ok := recordFromRow(header, row)
		if !ok {
			dropped++
			continue
		}
		records = append(records, rec)
	}

	return records, dropped, nil
}
