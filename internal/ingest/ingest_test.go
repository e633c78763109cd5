package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drishti-labs/drishti-cli/internal/audit"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		kind audit.SourceKind
		ok   bool
	}{
		{"enrolment_2024.csv", audit.SourceEnrolment, true},
		{"Enrollment_north.xlsx", audit.SourceEnrolment, true},
		{"biometric_update_logs.csv", audit.SourceBiometric, true},
		{"demographic_jan.csv", audit.SourceDemographic, true},
		{"enrolment_biometric.csv", audit.SourceBiometric, true}, // specific wins
		{"random_notes.csv", "", false},
		{"enrolment.txt", "", false},
		{"enrolment.pdf", "", false},
	}
	for _, tt := range tests {
		kind, ok := classify(tt.name)
		assert.Equal(t, tt.ok, ok, tt.name)
		if tt.ok {
			assert.Equal(t, tt.kind, kind, tt.name)
		}
	}
}

func TestCanonicalPincode(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"110001", "110001", true},
		{" 110001 ", "110001", true},
		{"1001", "001001", true}, // leading zeros restored
		{"110001.0", "110001", true},
		{"110001.5", "", false},
		{"ABC123", "", false},
		{"", "", false},
		{"1100011", "", false}, // too wide
	}
	for _, tt := range tests {
		got, ok := canonicalPincode(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		if tt.ok {
			assert.Equal(t, tt.want, got, tt.in)
		}
	}
}

func TestScan_ReadsAndClassifies(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "enrolment_a.csv",
		"Pincode,State,District,age_0_5,age_18_greater\n110001,Delhi,New Delhi,10,20\n400001,Maharashtra,Mumbai,5,5\n")
	writeFile(t, dir, "biometric_a.csv",
		"pincode,bio_age_5_17,bio_age_17_greater\n110001,3,7\n")
	writeFile(t, dir, "demographic_a.csv",
		"pincode,demo_age_5_17,demo_age_17_greater\n110001,1,9\n")
	writeFile(t, dir, "README.md", "not data")

	res, err := Scan(dir)
	require.NoError(t, err)

	assert.Len(t, res.Enrolment, 2)
	assert.Len(t, res.Biometric, 1)
	assert.Len(t, res.Demographic, 1)
	assert.Equal(t, 1, res.FilesRead[audit.SourceEnrolment])
	assert.Zero(t, res.FilesSkipped)

	// Header normalization: mixed-case header becomes count keys.
	first := res.Enrolment[0]
	assert.Equal(t, "110001", first.Pincode)
	assert.Equal(t, "Delhi", first.State)
	assert.Equal(t, 10.0, first.Counts["age_0_5"])
	assert.Equal(t, 20.0, first.Counts["age_18_greater"])
}

func TestScan_SkipsUnreadableFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "enrolment_good.csv",
		"pincode,age_0_5,age_18_greater\n110001,1,2\n")
	// An XLSX that is not a zip archive fails to open.
	writeFile(t, dir, "biometric_broken.xlsx", "this is not a spreadsheet")

	res, err := Scan(dir)
	require.NoError(t, err)
	assert.Len(t, res.Enrolment, 1)
	assert.Empty(t, res.Biometric)
	assert.Equal(t, 1, res.FilesSkipped)
}

func TestScan_DropsBadPincodes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "enrolment.csv",
		"pincode,age_0_5,age_18_greater\nnot-a-pin,1,2\n110001,3,4\n,5,6\n")

	res, err := Scan(dir)
	require.NoError(t, err)
	require.Len(t, res.Enrolment, 1)
	assert.Equal(t, "110001", res.Enrolment[0].Pincode)
	assert.Equal(t, 2, res.RowsDropped)
}

func TestScan_MissingDir(t *testing.T) {
	_, err := Scan(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestRecordFromRow_DateAndCounts(t *testing.T) {
	header := []string{"pincode", "date", "state", "bio_age_17_greater"}
	rec, ok := recordFromRow(header, []string{"560001", "2024-03-15", "Karnataka", "12"})
	require.True(t, ok)
	require.NotNil(t, rec.Date)
	assert.Equal(t, "2024-03-15", rec.Date.Format("2006-01-02"))
	assert.Equal(t, 12.0, rec.Counts["bio_age_17_greater"])
	// Reserved columns never become counts.
	assert.NotContains(t, rec.Counts, "state")
	assert.NotContains(t, rec.Counts, "date")
}

func TestRecordFromRow_MalformedCountDefaultsZero(t *testing.T) {
	header := []string{"pincode", "age_0_5"}
	rec, ok := recordFromRow(header, []string{"110001", "oops"})
	require.True(t, ok)
	assert.Zero(t, rec.Counts["age_0_5"])
}
