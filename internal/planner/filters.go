package planner

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/docuflow/docuflow/internal/models"
)

// defaultNumericField is the canonical field a bare range clause ("over
// $500") attaches to when the query names no field explicitly. amount is
// the only monetary entry in models.DefaultCanonicalNames.
const defaultNumericField = "amount"

// defaultDateField is the canonical field a bare date clause ("last month")
// attaches to when the query names no field explicitly.
const defaultDateField = "date"

var quotedPattern = regexp.MustCompile(`"([^"]+)"`)

var numericAmount = `\$?([0-9][0-9,]*(?:\.[0-9]+)?)`

var gtePattern = regexp.MustCompile(`(?i)\b(?:over|above|more\s+than|greater\s+than|at\s+least)\s+` + numericAmount)
var ltePattern = regexp.MustCompile(`(?i)\b(?:under|below|less\s+than|at\s+most)\s+` + numericAmount)
var betweenPattern = regexp.MustCompile(`(?i)\bbetween\s+` + numericAmount + `\s+and\s+` + numericAmount)
var eqPattern = regexp.MustCompile(`(?i)\b(?:exactly|equal\s+to)\s+` + numericAmount)

var lastNDaysPattern = regexp.MustCompile(`(?i)\blast\s+(\d+)\s+days\b`)
var quarterPattern = regexp.MustCompile(`(?i)\bQ([1-4])\s*(\d{4})\b`)
var ytdPattern = regexp.MustCompile(`(?i)\bytd\b|\byear\s+to\s+date\b`)
var lastMonthPattern = regexp.MustCompile(`(?i)\blast\s+month\b`)
var thisMonthPattern = regexp.MustCompile(`(?i)\bthis\s+month\b`)
var lastQuarterPattern = regexp.MustCompile(`(?i)\blast\s+quarter\b`)
var thisQuarterPattern = regexp.MustCompile(`(?i)\bthis\s+quarter\b`)

func parseMoney(s string) (float64, bool) {
	clean := strings.ReplaceAll(s, ",", "")
	n, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// extractFilters pulls numeric-range, date-range, and quoted-entity filters
// out of a normalized query (§4.8 step 2). It returns the extracted Filters
// and the query text with matched clauses removed, so the remaining free
// text can drive SearchIndex's full-text match without the filter language
// muddying the keyword search.
func extractFilters(now time.Time, query string) ([]models.Filter, string) {
	var filters []models.Filter
	remainder := query

	if m := betweenPattern.FindStringSubmatch(remainder); m != nil {
		lo, ok1 := parseMoney(m[1])
		hi, ok2 := parseMoney(m[2])
		if ok1 && ok2 {
			filters = append(filters, models.Filter{Field: defaultNumericField, Op: models.FilterOpBetween, Value: lo, ValueTo: hi})
			remainder = strings.Replace(remainder, m[0], "", 1)
		}
	}
	if m := gtePattern.FindStringSubmatch(remainder); m != nil {
		if n, ok := parseMoney(m[1]); ok {
			filters = append(filters, models.Filter{Field: defaultNumericField, Op: models.FilterOpGte, Value: n})
			remainder = strings.Replace(remainder, m[0], "", 1)
		}
	}
	if m := ltePattern.FindStringSubmatch(remainder); m != nil {
		if n, ok := parseMoney(m[1]); ok {
			filters = append(filters, models.Filter{Field: defaultNumericField, Op: models.FilterOpLte, Value: n})
			remainder = strings.Replace(remainder, m[0], "", 1)
		}
	}
	if m := eqPattern.FindStringSubmatch(remainder); m != nil {
		if n, ok := parseMoney(m[1]); ok {
			filters = append(filters, models.Filter{Field: defaultNumericField, Op: models.FilterOpEq, Value: n})
			remainder = strings.Replace(remainder, m[0], "", 1)
		}
	}

	if f, text, ok := extractDateFilter(now, remainder); ok {
		filters = append(filters, f)
		remainder = text
	}

	for _, m := range quotedPattern.FindAllStringSubmatch(remainder, -1) {
		filters = append(filters, models.Filter{Field: "entity_name", Op: models.FilterOpEq, ValueStr: m[1]})
		remainder = strings.Replace(remainder, m[0], "", 1)
	}

	return filters, strings.Join(strings.Fields(remainder), " ")
}

// extractDateFilter resolves one relative or explicit date-window clause
// into a concrete [From, To] Filter. Only the first recognized clause in a
// query is honored; queries naming more than one window are unusual enough
// that picking the first keeps the heuristic simple.
func extractDateFilter(now time.Time, query string) (models.Filter, string, bool) {
	startOfDay := func(t time.Time) time.Time {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	}
	startOfMonth := func(t time.Time) time.Time {
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	}
	quarterStart := func(year, quarter int, loc *time.Location) time.Time {
		month := time.Month((quarter-1)*3 + 1)
		return time.Date(year, month, 1, 0, 0, 0, 0, loc)
	}

	if m := lastNDaysPattern.FindStringSubmatch(query); m != nil {
		days, _ := strconv.Atoi(m[1])
		from := startOfDay(now.AddDate(0, 0, -days))
		to := startOfDay(now)
		return dateFilter(from, to), strings.Replace(query, m[0], "", 1), true
	}
	if m := quarterPattern.FindStringSubmatch(query); m != nil {
		q, _ := strconv.Atoi(m[1])
		year, _ := strconv.Atoi(m[2])
		from := quarterStart(year, q, now.Location())
		to := from.AddDate(0, 3, 0)
		return dateFilter(from, to), strings.Replace(query, m[0], "", 1), true
	}
	if loc := ytdPattern.FindString(query); loc != "" {
		from := time.Date(now.Year(), 1, 1, 0, 0, 0, 0, now.Location())
		return dateFilter(from, now), strings.Replace(query, loc, "", 1), true
	}
	if loc := lastMonthPattern.FindString(query); loc != "" {
		from := startOfMonth(now).AddDate(0, -1, 0)
		to := startOfMonth(now)
		return dateFilter(from, to), strings.Replace(query, loc, "", 1), true
	}
	if loc := thisMonthPattern.FindString(query); loc != "" {
		from := startOfMonth(now)
		to := from.AddDate(0, 1, 0)
		return dateFilter(from, to), strings.Replace(query, loc, "", 1), true
	}
	if loc := lastQuarterPattern.FindString(query); loc != "" {
		quarter := (int(now.Month())-1)/3 + 1
		year := now.Year()
		quarter--
		if quarter == 0 {
			quarter = 4
			year--
		}
		from := quarterStart(year, quarter, now.Location())
		to := from.AddDate(0, 3, 0)
		return dateFilter(from, to), strings.Replace(query, loc, "", 1), true
	}
	if loc := thisQuarterPattern.FindString(query); loc != "" {
		quarter := (int(now.Month())-1)/3 + 1
		from := quarterStart(now.Year(), quarter, now.Location())
		to := from.AddDate(0, 3, 0)
		return dateFilter(from, to), strings.Replace(query, loc, "", 1), true
	}

	return models.Filter{}, query, false
}

func dateFilter(from, to time.Time) models.Filter {
	return models.Filter{Field: defaultDateField, Op: models.FilterOpBetween, IsDate: true, From: &from, To: &to}
}
