package deadline

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// monthPattern only matches whole month names or their abbreviations, so
// words such as "marks" or "separate" are not read as months.
const monthPattern = `(jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sept?(?:ember)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)\b\.?`

var (
	ordinalSuffix = regexp.MustCompile(`\b(\d{1,2})(st|nd|rd|th)\b`)
	// ISO dates may carry a time part: 2025-09-30T23:59:00Z.
	isoDate       = regexp.MustCompile(`\b(\d{4})[-/.](\d{1,2})[-/.](\d{1,2})(?:t|\b)`)
	dayFirstDate  = regexp.MustCompile(`\b(\d{1,2})[-/.](\d{1,2})[-/.](\d{4})\b`)
	dayMonthYear  = regexp.MustCompile(`\b(\d{1,2})\s+` + monthPattern + `,?\s+(\d{4})\b`)
	monthDayYear  = regexp.MustCompile(`\b` + monthPattern + `\s+(\d{1,2}),?\s+(\d{4})\b`)
	dayMonth      = regexp.MustCompile(`\b(\d{1,2})\s+` + monthPattern)
	monthDay      = regexp.MustCompile(`\b` + monthPattern + `\s+(\d{1,2})\b`)
)

var monthsByPrefix = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

func month(name string) int {
	if len(name) < 3 {
		return 0
	}
	return int(monthsByPrefix[name[:3]])
}

// ParseDate finds the first calendar date inside token. Dates without a
// year take the year of now. The result is midnight in now's location.
func ParseDate(token string, now time.Time) (time.Time, bool) {
	s := strings.ToLower(strings.TrimSpace(token))
	if s == "" {
		return time.Time{}, false
	}
	s = ordinalSuffix.ReplaceAllString(s, "$1")
	loc := now.Location()

	if m := isoDate.FindStringSubmatch(s); m != nil {
		return build(atoi(m[1]), atoi(m[2]), atoi(m[3]), loc)
	}
	if m := dayFirstDate.FindStringSubmatch(s); m != nil {
		return build(atoi(m[3]), atoi(m[2]), atoi(m[1]), loc)
	}
	if m := dayMonthYear.FindStringSubmatch(s); m != nil {
		return build(atoi(m[3]), month(m[2]), atoi(m[1]), loc)
	}
	if m := monthDayYear.FindStringSubmatch(s); m != nil {
		return build(atoi(m[3]), month(m[1]), atoi(m[2]), loc)
	}
	if m := dayMonth.FindStringSubmatch(s); m != nil {
		return build(now.Year(), month(m[2]), atoi(m[1]), loc)
	}
	if m := monthDay.FindStringSubmatch(s); m != nil {
		return build(now.Year(), month(m[1]), atoi(m[2]), loc)
	}
	return time.Time{}, false
}

func build(year, month, day int, loc *time.Location) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 || year < 1900 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc)
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, false
	}
	return t, true
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
