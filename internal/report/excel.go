package report

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/quantflow/tradeengine/internal/portfolio"
	"github.com/quantflow/tradeengine/pkg/types"
)

const (
	fillsSheet     = "Fills"
	positionsSheet = "Positions"
	summarySheet   = "Summary"
)

// WriteJournalXLSX exports the fill journal and portfolio state to an
// Excel workbook at path.
func WriteJournalXLSX(path string, fills []types.Fill, snap portfolio.Snapshot) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	fx := excelize.NewFile()
	defer fx.Close()

	fx.SetSheetName(fx.GetSheetName(0), fillsSheet)
	if _, err := fx.NewSheet(positionsSheet); err != nil {
		return err
	}
	if _, err := fx.NewSheet(summarySheet); err != nil {
		return err
	}

	if err := writeFillsSheet(fx, fills); err != nil {
		return err
	}
	if err := writePositionsSheet(fx, snap); err != nil {
		return err
	}
	if err := writeSummarySheet(fx, snap); err != nil {
		return err
	}

	return fx.SaveAs(path)
}

func writeFillsSheet(fx *excelize.File, fills []types.Fill) error {
	headers := []string{"Fill ID", "Order ID", "Timestamp", "Symbol", "Side", "Quantity", "Price", "Commission"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := fx.SetCellValue(fillsSheet, cell, h); err != nil {
			return err
		}
	}

	for row, f := range fills {
		values := []interface{}{
			f.ID,
			f.OrderID,
			f.Timestamp.Format("2006-01-02 15:04:05"),
			string(f.Symbol),
			string(f.Side),
			f.Quantity.String(),
			f.Price.StringFixed(2),
			f.Commission.StringFixed(4),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			if err := fx.SetCellValue(fillsSheet, cell, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func writePositionsSheet(fx *excelize.File, snap portfolio.Snapshot) error {
	headers := []string{"Symbol", "Quantity", "Avg Cost", "Unrealized P&L", "Realized P&L"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := fx.SetCellValue(positionsSheet, cell, h); err != nil {
			return err
		}
	}

	for row, p := range snap.Positions {
		values := []interface{}{
			string(p.Symbol),
			p.Quantity.String(),
			p.AverageCost.StringFixed(2),
			p.UnrealizedPnL.StringFixed(2),
			p.RealizedPnL.StringFixed(2),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			if err := fx.SetCellValue(positionsSheet, cell, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeSummarySheet(fx *excelize.File, snap portfolio.Snapshot) error {
	rows := [][2]interface{}{
		{"Cash", snap.Cash.Amount.StringFixed(2)},
		{"Equity", snap.Equity.Amount.StringFixed(2)},
		{"Buying Power", snap.BuyingPower.Amount.StringFixed(2)},
		{"Realized P&L", snap.RealizedPnL.StringFixed(2)},
		{"Unrealized P&L", snap.UnrealizedPnL.StringFixed(2)},
		{"Day Start Equity", snap.DayStartEquity.StringFixed(2)},
		{"Peak Equity", snap.PeakEquity.StringFixed(2)},
		{"Open Positions", len(snap.Positions)},
		{"As Of", snap.UpdatedAt.Format("2006-01-02 15:04:05")},
	}
	for i, r := range rows {
		keyCell, _ := excelize.CoordinatesToCellName(1, i+1)
		valCell, _ := excelize.CoordinatesToCellName(2, i+1)
		if err := fx.SetCellValue(summarySheet, keyCell, r[0]); err != nil {
			return err
		}
		if err := fx.SetCellValue(summarySheet, valCell, r[1]); err != nil {
			return err
		}
	}
	return nil
}
