package features

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/drishti-labs/drishti-cli/internal/audit"
)

// Pattern is a named substring contract for locating an age-bracket count
// column within a source. A column matches when it contains every substring
// in All and, if Any is non-empty, at least one substring in Any.
type Pattern struct {
	Name string   // human-readable, used in error messages
	All  []string // every substring must be present
	Any  []string // at least one must be present, when non-empty
}

// Bracket patterns reproduced from the source naming conventions:
// enrolment carries age_0_5 / age_18_greater, biometric bio_age_* brackets
// with a 17-and-over adult bracket, demographic demo_age_* likewise.
var (
	patternEnrolChild = Pattern{Name: "enrolment child bracket", All: []string{"age", "0", "5"}}
	patternEnrolAdult = Pattern{Name: "enrolment adult bracket", All: []string{"age"}, Any: []string{"18", "17"}}
	patternBioAll     = Pattern{Name: "biometric bracket", All: []string{"bio_age"}}
	patternBioAdult   = Pattern{Name: "biometric adult bracket", All: []string{"bio"}, Any: []string{"17", "18"}}
	patternDemoAll    = Pattern{Name: "demographic bracket", All: []string{"demo_age"}}
	patternDemoAdult  = Pattern{Name: "demographic adult bracket", All: []string{"demo"}, Any: []string{"17", "18"}}
)

func (p Pattern) matches(col string) bool {
	for _, s := range p.All {
		if !strings.Contains(col, s) {
			return false
		}
	}
	if len(p.Any) == 0 {
		return true
	}
	for _, s := range p.Any {
		if strings.Contains(col, s) {
			return true
		}
	}
	return false
}

// countColumns returns the sorted union of count-column names across a
// record set. Sorting fixes the lookup order: when several columns match a
// pattern, the lexicographically smallest wins. The naming convention does
// not rule out multiple matches, so the tie-break must be deterministic.
func countColumns(records []audit.UpdateRecord) []string {
	seen := make(map[string]struct{})
	for _, r := range records {
		for col := range r.Counts {
			seen[col] = struct{}{}
		}
	}
	cols := make([]string, 0, len(seen))
	for col := range seen {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

// locate finds the first column matching p, in sorted column order.
func locate(cols []string, p Pattern) (string, bool) {
	for _, col := range cols {
		if p.matches(col) {
			return col, true
		}
	}
	return "", false
}

// mustLocate is locate with a hard failure mode: a non-empty source missing
// a required bracket column is a data-integrity failure naming the source
// and pattern.
func mustLocate(cols []string, p Pattern, source audit.SourceKind) (string, error) {
	col, ok := locate(cols, p)
	if !ok {
		return "", eris.Wrapf(audit.ErrDataIntegrity,
			"features: %s source has no column matching %q", source, p.Name)
	}
	return col, nil
}

// locateAll returns every column matching p, in sorted order.
func locateAll(cols []string, p Pattern) []string {
	var out []string
	for _, col := range cols {
		if p.matches(col) {
			out = append(out, col)
		}
	}
	return out
}
