// Package render produces the downloadable PDF document for an invoice.
package render

import (
	"fmt"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/metergate/metergate/internal/invoice/domain"
	"github.com/metergate/metergate/internal/invoice/format"
)

// BillTo is the customer block on the rendered document.
type BillTo struct {
	Name  string
	Email string
}

type Renderer struct {
	issuer string
}

func NewRenderer(issuer string) *Renderer {
	if issuer == "" {
		issuer = "Metergate"
	}
	return &Renderer{issuer: issuer}
}

// Render lays out the invoice as a single-page PDF. Items must already be
// loaded on the invoice.
func (r *Renderer) Render(invoice domain.Invoice, billTo BillTo) ([]byte, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(8, "Invoice", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, r.issuer, props.Text{
			Size:  12,
			Align: align.Right,
			Top:   3,
		}),
	)

	m.AddRow(22,
		col.New(6).Add(
			text.New("Invoice number: "+invoice.Number, props.Text{Top: 0}),
			text.New("Date of issue: "+format.Date(invoice.CreatedAt), props.Text{Top: 5}),
			text.New("Date due: "+format.Date(invoice.DueDate), props.Text{Top: 10}),
			text.New("Service period: "+format.Period(invoice.PeriodStart, invoice.PeriodEnd), props.Text{Top: 15}),
		),
		col.New(6).Add(
			text.New("Bill to", props.Text{Style: fontstyle.Bold}),
			text.New(billTo.Name, props.Text{Top: 5}),
			text.New(billTo.Email, props.Text{Top: 10}),
		),
	)

	m.AddRow(12,
		text.NewCol(12, fmt.Sprintf("%s due %s", format.Money(invoice.Amount), format.Date(invoice.DueDate)), props.Text{
			Size:  14,
			Style: fontstyle.Bold,
			Top:   3,
		}),
	)

	m.AddRow(8,
		text.NewCol(6, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Qty", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Unit price", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	for _, item := range invoice.Items {
		m.AddRow(10,
			text.NewCol(6, item.Description, props.Text{Size: 9}),
			text.NewCol(2, fmt.Sprintf("%d", item.Quantity), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, format.Money(item.UnitPrice), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, format.Money(item.Amount), props.Text{Size: 9, Align: align.Right}),
		)
	}

	m.AddRow(10,
		col.New(8),
		text.NewCol(2, "Total", props.Text{Size: 9}),
		text.NewCol(2, format.Money(invoice.Amount), props.Text{Size: 9, Align: align.Right}),
	)
	m.AddRow(8,
		col.New(8),
		text.NewCol(2, "Usage", props.Text{Size: 9}),
		text.NewCol(2, fmt.Sprintf("%d calls", invoice.TotalUsage), props.Text{Size: 9, Align: align.Right}),
	)

	if invoice.Status == domain.InvoiceStatusPaid {
		paidAt := ""
		if invoice.PaidAt != nil {
			paidAt = " on " + format.Date(*invoice.PaidAt)
		}
		m.AddRow(12,
			text.NewCol(12, "PAID"+paidAt, props.Text{
				Size:  16,
				Style: fontstyle.Bold,
				Align: align.Center,
				Top:   3,
			}),
		)
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}
