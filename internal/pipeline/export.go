package pipeline

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/xuri/excelize/v2"

	"taxlien/internal"
	"taxlien/internal/util"
)

var exportHeaders = []string{
	"Parcel ID", "Power to Sale Date", "Tax Area", "Location",
	"Delinquent Amount", "Land Value", "Improvement Value",
	"Property Description", "Address", "Property Type",
	"Equity Ratio", "Delinquency Age (days)", "Investment Score",
	"Estimated Redemption",
}

// Unwrap drops storage ids so stored and freshly scored rows export the same way.
func Unwrap(stored []internal.StoredProperty) []internal.AnalyzedProperty {
	out := make([]internal.AnalyzedProperty, len(stored))
	for i, p := range stored {
		out[i] = p.AnalyzedProperty
	}
	return out
}

func saleDate(p internal.AnalyzedProperty) string {
	if p.PowerToSaleDate == nil {
		return ""
	}
	return p.PowerToSaleDate.Format("2006-01-02")
}

func ExportCSV(w io.Writer, props []internal.AnalyzedProperty) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeaders); err != nil {
		return err
	}
	for _, p := range props {
		record := []string{
			util.Deref(p.ParcelID),
			saleDate(p),
			util.Deref(p.TaxArea),
			util.Deref(p.Location),
			util.FormatMoneyPtr(p.DelinquentAmount),
			util.FormatMoneyPtr(p.LandValue),
			util.FormatMoneyPtr(p.ImprovementValue),
			util.Deref(p.PropertyDescription),
			util.Deref(p.Address),
			string(p.PropertyType),
			strconv.FormatFloat(p.EquityRatio, 'f', 2, 64),
			strconv.Itoa(p.DelinquencyAgeDays),
			strconv.Itoa(p.InvestmentScore),
			util.FormatMoney(p.EstimatedRedemption),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func ExportCSVFile(props []internal.AnalyzedProperty, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	f, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	if err := ExportCSV(f, props); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func ExportXLSX(props []internal.AnalyzedProperty, outputPath string) error {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	for i, h := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for i, p := range props {
		r := i + 2
		set := func(col int, value any) {
			cell, _ := excelize.CoordinatesToCellName(col, r)
			_ = f.SetCellValue(sheet, cell, value)
		}

		set(1, util.Deref(p.ParcelID))
		set(2, saleDate(p))
		set(3, util.Deref(p.TaxArea))
		set(4, util.Deref(p.Location))
		set(5, derefMoney(p.DelinquentAmount))
		set(6, derefMoney(p.LandValue))
		set(7, derefMoney(p.ImprovementValue))
		set(8, util.Deref(p.PropertyDescription))
		set(9, util.Deref(p.Address))
		set(10, string(p.PropertyType))
		set(11, p.EquityRatio)
		set(12, p.DelinquencyAgeDays)
		set(13, p.InvestmentScore)
		set(14, util.RoundCents(p.EstimatedRedemption))
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

func derefMoney(v *float64) any {
	if v == nil {
		return ""
	}
	return util.RoundCents(*v)
}
