package scraper

import (
	"context"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/fortunemusic-history/models"
	"github.com/aluiziolira/fortunemusic-history/parser"
)

// cell is the trimmed text of an optional table cell.
type cell struct {
	text    string
	present bool
}

func cellOf(sel *goquery.Selection) cell {
	if sel.Length() == 0 {
		return cell{}
	}
	return cell{text: strings.TrimSpace(sel.First().Text()), present: true}
}

// listRow is one row of the application list table.
type listRow struct {
	href       string
	identifier cell
	date       cell
	charge     cell
	title      cell
	status     cell
	result     cell
}

// productRow is one merchandise row of a detail table.
type productRow struct {
	name          string
	unitValue     cell
	appliedCount  cell
	acceptedCount cell
	total         cell
}

// detailTable is the product section of a detail page plus its footer.
type detailTable struct {
	products    []productRow
	charge      cell
	shippingFee cell
	price       cell
}

func extractListRows(table *goquery.Selection) []listRow {
	var rows []listRow
	table.Find("tbody tr").Each(func(_ int, tr *goquery.Selection) {
		first := tr.ChildrenFiltered("td:nth-child(1)")
		href, ok := first.Find("a").Attr("href")
		if !ok {
			return
		}
		rows = append(rows, listRow{
			href:       href,
			identifier: cellOf(first),
			date:       cellOf(tr.ChildrenFiltered("td:nth-child(2)")),
			charge:     cellOf(tr.ChildrenFiltered("td:nth-child(3)")),
			title:      cellOf(tr.ChildrenFiltered("td:nth-child(4)")),
			status:     cellOf(tr.ChildrenFiltered("td:nth-child(5)")),
			result:     cellOf(tr.ChildrenFiltered("td:nth-child(6)")),
		})
	})
	return rows
}

func extractDetail(table *goquery.Selection) detailTable {
	var out detailTable
	rows := table.Find("tbody:nth-child(1) tr")
	rows.Each(func(_ int, tr *goquery.Selection) {
		name := tr.Find(".span4:nth-child(1)")
		if name.Length() == 0 {
			return
		}
		out.products = append(out.products, productRow{
			name:          strings.TrimSpace(name.First().Text()),
			unitValue:     cellOf(tr.Find(".span2:nth-child(2)")),
			appliedCount:  cellOf(tr.Find(".span2:nth-child(3)")),
			acceptedCount: cellOf(tr.Find(".span2:nth-child(4)")),
			total:         cellOf(tr.Find(".span2:nth-child(5)")),
		})
	})

	// Footer rows, counted from the end: charge, shipping fee, price.
	if n := rows.Length(); n > 4 {
		out.charge = cellOf(rows.Eq(n - 2).Find("td:nth-child(2)"))
		out.shippingFee = cellOf(rows.Eq(n - 3).Find("td:nth-child(2)"))
		out.price = cellOf(rows.Eq(n - 4).Find("td:nth-child(2)"))
	}
	return out
}

func (s *Scraper) toEntry(ctx context.Context, row listRow) models.Entry {
	return models.Entry{
		URL:        s.session.resolve(row.href),
		Identifier: row.identifier.text,
		Date:       row.date.text,
		Charge:     s.amount(ctx, "charge", row.charge),
		Title:      row.title.text,
		Status:     row.status.text,
		Result:     row.result.text,
	}
}

func (s *Scraper) toDetail(ctx context.Context, entry models.Entry, table detailTable) models.Detail {
	detail := models.Detail{
		Entry:       entry,
		Charge:      s.amount(ctx, "charge", table.charge),
		ShippingFee: s.amount(ctx, "shipping_fee", table.shippingFee),
		Price:       s.amount(ctx, "price", table.price),
		Products:    make([]models.ProductLine, 0, len(table.products)),
	}
	for _, row := range table.products {
		parsed := parser.ParseProductName(row.name)
		if parsed == nil {
			s.Metrics.IncUnparsed("name")
		}
		detail.Products = append(detail.Products, models.ProductLine{
			Name:          row.name,
			UnitValue:     s.amount(ctx, "unit_value", row.unitValue),
			AppliedCount:  s.amount(ctx, "applied_count", row.appliedCount),
			AcceptedCount: s.amount(ctx, "accepted_count", row.acceptedCount),
			Total:         s.amount(ctx, "total", row.total),
			Parsed:        parsed,
		})
	}
	return detail
}

// amount normalizes an optional numeric cell. Absent or malformed cells are nil.
func (s *Scraper) amount(ctx context.Context, field string, c cell) *int {
	if !c.present {
		return nil
	}
	n, err := parser.ParseNumber(c.text)
	if err != nil {
		s.Metrics.IncUnparsed(field)
		s.logger.WarnContext(ctx, "ignoring malformed amount",
			slog.String("field", field),
			slog.Any("error", err),
		)
		return nil
	}
	return &n
}
