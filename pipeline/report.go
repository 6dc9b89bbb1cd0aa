package pipeline

import (
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/aluiziolira/fortunemusic-history/models"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// ReportHeader is the first line of every report.
var ReportHeader = []string{"メンバー", "CD", "日付", "場所", "部", "当選数", "申込数", "金額"}

type aggregateKey struct {
	date   string
	venue  string
	disc   string
	person string
	period string
}

// Aggregate folds every product line into one row per (date, venue, disc,
// person, period). Rows come back in first-seen order. Lines whose name did
// not parse cannot be keyed; their raw names are returned as excluded.
func Aggregate(details []models.Detail) (rows []models.ReportRow, excluded []string) {
	index := make(map[aggregateKey]int)
	for _, detail := range details {
		for _, product := range detail.Products {
			parsed := product.Parsed
			if parsed == nil {
				excluded = append(excluded, product.Name)
				continue
			}
			key := aggregateKey{
				date:   parsed.Date,
				venue:  parsed.Venue,
				disc:   parsed.Disc,
				person: parsed.Person,
				period: parsed.Period,
			}
			i, ok := index[key]
			if !ok {
				i = len(rows)
				index[key] = i
				rows = append(rows, models.ReportRow{})
			}

			row := &rows[i]
			row.Person = parsed.Person
			row.Disc = parsed.Disc
			row.Date = parsed.Date
			row.Venue = parsed.Venue
			row.Period = parsed.Period
			row.AcceptedCount += models.IntValue(product.AcceptedCount)
			row.AppliedCount += models.IntValue(product.AppliedCount)
			row.Total += models.IntValue(product.Total)
		}
	}
	return rows, excluded
}

var (
	leadingDigits  = regexp.MustCompile(`^\d+`)
	trailingDigits = regexp.MustCompile(`\d+$`)
)

// SortRows orders rows newest disc first, then by fiscal month and day
// (latest first), then member name and period.
func SortRows(rows []models.ReportRow) {
	collator := collate.New(language.Japanese)
	slices.SortStableFunc(rows, func(a, b models.ReportRow) int {
		if c := leadingNumber(b.Disc) - leadingNumber(a.Disc); c != 0 {
			return c
		}
		if c := fiscalMonth(b.Date) - fiscalMonth(a.Date); c != 0 {
			return c
		}
		if c := trailingNumber(b.Date) - trailingNumber(a.Date); c != 0 {
			return c
		}
		if c := collator.CompareString(a.Person, b.Person); c != 0 {
			return c
		}
		return atoi(a.Period) - atoi(b.Period)
	})
}

// fiscalMonth shifts January-May behind December so an April-start
// season sorts in order.
func fiscalMonth(date string) int {
	month := leadingNumber(date)
	if month < 6 {
		month += 12
	}
	return month
}

func leadingNumber(s string) int {
	return atoi(leadingDigits.FindString(s))
}

func trailingNumber(s string) int {
	return atoi(trailingDigits.FindString(s))
}

func atoi(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}

// Fields renders a row in report column order.
func Fields(row models.ReportRow) []string {
	return []string{
		row.Person,
		row.Disc,
		row.Date,
		row.Venue,
		row.Period,
		strconv.Itoa(row.AcceptedCount),
		strconv.Itoa(row.AppliedCount),
		"¥" + strconv.Itoa(row.Total),
	}
}

// BuildReport aggregates and sorts details into report rows.
func BuildReport(details []models.Detail) []models.ReportRow {
	rows, _ := Aggregate(details)
	SortRows(rows)
	return rows
}

// ExportTSV renders the aggregated report as tab-separated text with a
// header line. Lines are joined with "\n" and there is no trailing newline.
func ExportTSV(details []models.Detail) string {
	rows := BuildReport(details)
	lines := make([]string, 0, len(rows)+1)
	lines = append(lines, strings.Join(ReportHeader, "\t"))
	for _, row := range rows {
		lines = append(lines, strings.Join(Fields(row), "\t"))
	}
	return strings.Join(lines, "\n")
}
