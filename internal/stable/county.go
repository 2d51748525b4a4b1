package stable

import (
	"slices"
	"strings"
)

// counties maps the licensing board's two-letter county codes to county
// names. Several counties carry two codes in the source data.
var counties = map[string]string{
	"AL": "Allegany County",
	"AA": "Anne Arundel County",
	"BL": "Baltimore County",
	"BA": "Baltimore County",
	"BC": "Baltimore City",
	"CV": "Calvert County",
	"CL": "Caroline County",
	"CR": "Carroll County",
	"CC": "Cecil County",
	"CE": "Cecil County",
	"CH": "Charles County",
	"DR": "Dorchester County",
	"FR": "Frederick County",
	"GR": "Garrett County",
	"HF": "Harford County",
	"HR": "Harford County",
	"HW": "Howard County",
	"KN": "Kent County",
	"KT": "Kent County",
	"MG": "Montgomery County",
	"PG": "Prince George's County",
	"QA": "Queen Anne's County",
	"SM": "St. Mary's County",
	"SS": "Somerset County",
	"SO": "Somerset County",
	"TA": "Talbot County",
	"TB": "Talbot County",
	"WA": "Washington County",
	"WH": "Washington County",
	"WC": "Wicomico County",
	"WI": "Wicomico County",
	"WO": "Worcester County",
	"WR": "Worcester County",
}

// CountyName resolves a county code. Codes are matched case-insensitively.
func CountyName(code string) (string, bool) {
	name, ok := counties[strings.ToUpper(strings.TrimSpace(code))]
	return name, ok
}

// CountyCodes returns every known county code in sorted order.
func CountyCodes() []string {
	codes := make([]string, 0, len(counties))
	for code := range counties {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	return codes
}
