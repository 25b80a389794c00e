package google

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// maxTitleRunes is the longest tab title Sheets accepts.
const maxTitleRunes = 100

// UntitledTab is used for labels with no letters or digits.
const UntitledTab = "Untitled"

var nonWordRun = regexp.MustCompile(`[^\p{L}\p{N}_]+`)

// FormatCollectionTitle expands {org} and {year} in a spreadsheet title
// template, e.g. "{org} Waterfront - Year {year}".
func FormatCollectionTitle(template, org string, year int) string {
	r := strings.NewReplacer("{org}", org, "{year}", strconv.Itoa(year))
	return strings.TrimSpace(r.Replace(template))
}

// SanitizeTabTitle turns a free-form label (an appointment type) into a
// stable tab title: diacritics stripped, non-word runs collapsed to one
// space, trimmed. A label with nothing left becomes UntitledTab.
func SanitizeTabTitle(label string) string {
	decomposed := norm.NFD.String(label)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}

	title := strings.TrimSpace(nonWordRun.ReplaceAllString(b.String(), " "))
	if runes := []rune(title); len(runes) > maxTitleRunes {
		title = strings.TrimSpace(string(runes[:maxTitleRunes]))
	}
	if title == "" {
		return UntitledTab
	}
	return title
}

// A1 returns an A1-notation range on a tab, quoting the title.
func A1(tab, cells string) string {
	quoted := "'" + strings.ReplaceAll(tab, "'", "''") + "'"
	if cells == "" {
		return quoted
	}
	return quoted + "!" + cells
}

// ColumnLetter converts a 1-based column index to its A1 letters.
func ColumnLetter(col int) string {
	var s []byte
	for col > 0 {
		col--
		s = append([]byte{byte('A' + col%26)}, s...)
		col /= 26
	}
	return string(s)
}
