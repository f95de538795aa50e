package inference

import (
	"fmt"
	"slices"

	"taxlien/internal"
)

// MaxIssues caps ValidationReport.Issues; the counters are never capped.
const MaxIssues = 50

// Validate tallies the rows that cannot be scored reliably.
func Validate(records []internal.TypedPropertyRecord) internal.ValidationReport {
	rep := internal.ValidationReport{TotalRows: len(records), Issues: []string{}}
	issue := func(row int, reason string) {
		if len(rep.Issues) < MaxIssues {
			rep.Issues = append(rep.Issues, fmt.Sprintf("Row %d: %s", row, reason))
		}
	}

	for i, rec := range records {
		row := i + 1
		valid := true
		if rec.ParcelID == nil || *rec.ParcelID == "" {
			rep.MissingParcelID++
			issue(row, "Missing parcel ID")
			valid = false
		}
		if rec.DelinquentAmount == nil || *rec.DelinquentAmount <= 0 {
			rep.MissingAmounts++
			issue(row, "Missing or invalid delinquent amount")
			valid = false
		}
		if invalidDate(rec) {
			rep.InvalidDates++
			issue(row, "Invalid date format")
			valid = false
		}
		if valid {
			rep.ValidRows++
		}
	}

	if rep.TotalRows > 0 {
		rep.QualityScore = float64(rep.ValidRows) / float64(rep.TotalRows) * 100
	}
	return rep
}

// A sale date cell counts as present-but-invalid when it had text that did not parse.
func invalidDate(rec internal.TypedPropertyRecord) bool {
	if rec.PowerToSaleDate != nil {
		return rec.PowerToSaleDate.IsZero()
	}
	return slices.Contains(rec.Unparsed, internal.FieldPowerToSaleDate)
}

// Result is a fully inferred batch.
type Result struct {
	Headers []string                       `json:"headers"`
	Mapping internal.ColumnMapping         `json:"columnMapping"`
	Records []internal.TypedPropertyRecord `json:"-"`
	Report  internal.ValidationReport      `json:"report"`
}

// Parse infers the mapping from the leading rows, then coerces and validates the whole batch.
func Parse(headers []string, rows []internal.RawRow) Result {
	mapping := Infer(headers, Sample(rows))
	records := CoerceAll(rows, mapping)
	return Result{
		Headers: headers,
		Mapping: mapping,
		Records: records,
		Report:  Validate(records),
	}
}
