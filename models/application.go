// Package models defines data structures shared by the scraper and the report pipeline.
package models

import "time"

// Credentials are the member login pair supplied once per run.
type Credentials struct {
	LoginID  string
	Password string
}

// Entry is one row of the paginated application list.
type Entry struct {
	URL        string `json:"url"`
	Identifier string `json:"identifier"`
	Date       string `json:"date"`
	Charge     *int   `json:"charge,omitempty"`
	Title      string `json:"title"`
	Status     string `json:"status"`
	Result     string `json:"result"`
}

// ParsedName holds the fields extracted from a product label.
type ParsedName struct {
	Person string `json:"person"`
	Date   string `json:"date"`
	Venue  string `json:"venue"`
	Period string `json:"period"`
	Disc   string `json:"disc"`
}

// ProductLine is one merchandise row of a detail page.
type ProductLine struct {
	Name          string      `json:"name"`
	UnitValue     *int        `json:"unit_value,omitempty"`
	AppliedCount  *int        `json:"applied_count,omitempty"`
	AcceptedCount *int        `json:"accepted_count,omitempty"`
	Total         *int        `json:"total,omitempty"`
	Parsed        *ParsedName `json:"parsed"`
}

// Detail is an Entry expanded with its detail page.
// Charge shadows Entry.Charge with the value read from the page footer.
type Detail struct {
	Entry
	Charge      *int          `json:"charge,omitempty"`
	ShippingFee *int          `json:"shipping_fee,omitempty"`
	Price       *int          `json:"price,omitempty"`
	Products    []ProductLine `json:"products"`
}

// ReportRow is one aggregated line of the history report.
type ReportRow struct {
	Person        string
	Disc          string
	Date          string
	Venue         string
	Period        string
	AcceptedCount int
	AppliedCount  int
	Total         int
}

// CrawlStats counts the network work done by a scraper.
type CrawlStats struct {
	PageCount         int
	RequestCount      int
	SkippedDuplicates int
}

// Result summarises a complete run.
type Result struct {
	CrawlStats
	RunID         string
	StartTime     time.Time
	EndTime       time.Time
	EntryCount    int
	DetailCount   int
	ProductCount  int
	RowCount      int
	UnparsedCount int
}

// IntValue dereferences an optional amount, treating nil as zero.
func IntValue(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
