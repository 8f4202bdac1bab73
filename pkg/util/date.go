package util

import (
	"strings"
	"time"
)

// dateTpl maps template placeholders to time layout elements. Longer
// placeholders come first so "YYYY" is not read as two "YY".
var dateTpl = strings.NewReplacer(
	"YYYY", "2006",
	"YY", "06",
	"MM", "01",
	"DD", "02",
	"hh", "15",
	"mm", "04",
	"ss", "05",
)

// FormatDate formats t using a template with placeholders:
// YYYY, YY, MM, DD, hh, mm, ss. A zero time formats as "".
//
//	FormatDate(t, "YYYY.MM.DD")       // "2023.11.10"
//	FormatDate(t, "DD/MM/YYYY hh:mm") // "10/11/2023 00:00"
func FormatDate(t time.Time, tpl string) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateTpl.Replace(tpl))
}
