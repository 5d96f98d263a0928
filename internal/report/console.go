// Package report renders portfolio state and the trade journal for
// operators: tables on the console, spreadsheets for export.
package report

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/quantflow/tradeengine/internal/portfolio"
	"github.com/quantflow/tradeengine/pkg/types"
)

// PrintPortfolio renders the portfolio snapshot as a console table.
func PrintPortfolio(w io.Writer, snap portfolio.Snapshot) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("PORTFOLIO")
	t.SetStyle(table.StyleRounded)

	t.AppendRows([]table.Row{
		{"Cash", fmt.Sprintf("%s %s", snap.Cash.Amount.StringFixed(2), snap.Cash.Currency)},
		{"Equity", fmt.Sprintf("%s %s", snap.Equity.Amount.StringFixed(2), snap.Equity.Currency)},
		{"Buying Power", fmt.Sprintf("%s %s", snap.BuyingPower.Amount.StringFixed(2), snap.BuyingPower.Currency)},
		{"Realized P&L", snap.RealizedPnL.StringFixed(2)},
		{"Unrealized P&L", snap.UnrealizedPnL.StringFixed(2)},
		{"Positions", len(snap.Positions)},
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 16, Align: text.AlignLeft},
		{Number: 2, WidthMin: 20, Align: text.AlignRight},
	})
	t.Render()

	if len(snap.Positions) == 0 {
		return
	}

	pt := table.NewWriter()
	pt.SetOutputMirror(w)
	pt.SetTitle("OPEN POSITIONS")
	pt.SetStyle(table.StyleRounded)
	pt.AppendHeader(table.Row{"Symbol", "Quantity", "Avg Cost", "Unrealized", "Realized"})
	for _, p := range snap.Positions {
		pt.AppendRow(table.Row{
			p.Symbol,
			p.Quantity.String(),
			p.AverageCost.StringFixed(2),
			p.UnrealizedPnL.StringFixed(2),
			p.RealizedPnL.StringFixed(2),
		})
	}
	pt.Render()
}

// PrintFills renders recent fills as a console table.
func PrintFills(w io.Writer, fills []types.Fill) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("TRADE JOURNAL")
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Time", "Symbol", "Side", "Quantity", "Price", "Commission"})
	for _, f := range fills {
		t.AppendRow(table.Row{
			f.Timestamp.Format("2006-01-02 15:04:05"),
			f.Symbol,
			f.Side,
			f.Quantity.String(),
			f.Price.StringFixed(2),
			f.Commission.StringFixed(4),
		})
	}
	t.Render()
}
