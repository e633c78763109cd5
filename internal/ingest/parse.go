package ingest

import (
	"strconv"
	"strings"
	"time"

	"github.com/drishti-labs/drishti-cli/internal/audit"
)

// pincodeWidth is the canonical width of an Indian postal code. Numeric keys
// shorter than this (leading zeros lost upstream) are left-padded; anything
// non-numeric or wider is rejected at ingestion.
const pincodeWidth = 6

// reserved column names that never become count columns.
const (
	colPincode  = "pincode"
	colState    = "state"
	colDistrict = "district"
	colDate     = "date"
)

var dateLayouts = []string{"2006-01-02", "02-01-2006", "02/01/2006", "2006/01/02"}

// normalizeHeader trims and lowercases every header cell; source files vary
// in case and padding.
func normalizeHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		out[i] = strings.ToLower(strings.TrimSpace(h))
	}
	return out
}

// canonicalPincode validates and zero-pads a region key to fixed width.
func canonicalPincode(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	// Tolerate float-formatted keys ("110001.0") from spreadsheet exports.
	if i := strings.IndexByte(s, '.'); i >= 0 {
		if strings.Trim(s[i+1:], "0") != "" {
			return "", false
		}
		s = s[:i]
	}
	if s == "" || len(s) > pincodeWidth {
		return "", false
	}
	if _, err := strconv.ParseUint(s, 10, 64); err != nil {
		return "", false
	}
	return strings.Repeat("0", pincodeWidth-len(s)) + s, true
}

// parseCountOr parses a count cell, returning def when empty or malformed.
func parseCountOr(s string, def float64) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v != v { // reject NaN
		return def
	}
	return v
}

// parseDate tries the known source layouts; nil when none match.
func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// recordFromRow builds an UpdateRecord from one data row given the
// normalized header. Returns false when the region key is unusable.
func recordFromRow(header, row []string) (audit.UpdateRecord, bool) {
	rec := audit.UpdateRecord{Counts: make(map[string]float64, len(header))}

	for i, col := range header {
		if i >= len(row) {
			break
		}
		cell := row[i]
		switch col {
		case colPincode:
			pin, ok := canonicalPincode(cell)
			if !ok {
				return audit.UpdateRecord{}, false
			}
			rec.Pincode = pin
		case colState:
			rec.State = strings.TrimSpace(cell)
		case colDistrict:
			rec.District = strings.TrimSpace(cell)
		case colDate:
			rec.Date = parseDate(cell)
		case "":
			// unnamed column, nothing to key the count on
		default:
			rec.Counts[col] = parseCountOr(cell, 0)
		}
	}

	if rec.Pincode == "" {
		return audit.UpdateRecord{}, false
	}
	return rec, true
}
