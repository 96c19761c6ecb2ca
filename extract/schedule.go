package extract

import (
	"regexp"
	"strings"
)

// Row is one labelled time range of a bell schedule.
type Row struct {
	Label string `json:"label"`
	Start string `json:"start"`
	End   string `json:"end"`
}

const clock = `(\d{1,2}:[0-5]\d(?:\s*[ap]\.?\s*m\.?)?)`

var (
	rangeRe = regexp.MustCompile(`(?i)` + clock + `\s*(?:-|–|—|to)\s*` + clock)
	ampmRe  = regexp.MustCompile(`(?i)\s*([ap])\.?\s*m\.?$`)
)

// ParseSchedule finds lines holding a label and a start–end range, such
// as "Period 1  8:05 - 8:55 AM". Lines without a label are skipped.
func ParseSchedule(text string) []Row {
	var rows []Row
	for _, line := range strings.Split(text, "\n") {
		loc := rangeRe.FindStringSubmatchIndex(line)
		if loc == nil {
			continue
		}
		label := cleanLabel(line[:loc[0]])
		if label == "" {
			continue
		}
		rows = append(rows, Row{
			Label: label,
			Start: normClock(line[loc[2]:loc[3]]),
			End:   normClock(line[loc[4]:loc[5]]),
		})
	}
	return rows
}

// scheduleFromTables reads rows whose cells include a time range, or a
// start and an end cell.
func scheduleFromTables(tables []Table) []Row {
	var rows []Row
	for _, t := range tables {
		for _, r := range t.Rows {
			var label string
			var times []string
			for _, cell := range r {
				if m := rangeRe.FindStringSubmatch(cell); m != nil {
					times = append(times, m[1], m[2])
					continue
				}
				if clockOnly(cell) {
					times = append(times, cell)
					continue
				}
				if label == "" {
					label = cleanLabel(cell)
				}
			}
			if label != "" && len(times) >= 2 {
				rows = append(rows, Row{Label: label, Start: normClock(times[0]), End: normClock(times[1])})
			}
		}
	}
	return rows
}

var clockRe = regexp.MustCompile(`(?i)^` + clock + `$`)

func clockOnly(s string) bool { return clockRe.MatchString(strings.TrimSpace(s)) }

func cleanLabel(s string) string {
	s = strings.Trim(strings.TrimSpace(s), ":-–—|*#\t ")
	return strings.Join(strings.Fields(s), " ")
}

// normClock renders "08:05 a.m." as "8:05 AM".
func normClock(s string) string {
	s = strings.TrimSpace(s)
	suffix := ""
	if m := ampmRe.FindStringSubmatch(s); m != nil {
		suffix = " " + strings.ToUpper(m[1]) + "M"
		s = strings.TrimSpace(s[:len(s)-len(m[0])])
	}
	if len(s) > 4 && s[0] == '0' {
		s = s[1:]
	}
	return s + suffix
}
