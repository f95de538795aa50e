// Package inference guesses what each column of a delinquency list holds and turns raw cells into
// typed property records.
package inference

import (
	"regexp"

	"taxlien/internal"
	"taxlien/internal/util"
)

// SampleSize is the number of leading rows the column mapping is built from.
const SampleSize = 10

type synonyms struct {
	field   internal.SemanticType
	phrases []string
}

// catalog is checked top to bottom; the first entry with a phrase contained in the header wins.
var catalog = []synonyms{
	{internal.FieldParcelID, []string{"parcel", "parcel_id", "parcelid", "parcel number", "parcel no", "id"}},
	{internal.FieldPowerToSaleDate, []string{"power to sale", "power_to_sale", "power to sale date", "sale date", "tax sale date", "auction date"}},
	{internal.FieldTaxArea, []string{"tax area", "tax_area", "area", "district", "zone"}},
	{internal.FieldLocation, []string{"location", "city", "municipality", "town"}},
	{internal.FieldDelinquentAmount, []string{"delinquent", "delinquent amount", "delinquent_amount", "owed", "balance", "tax owed"}},
	{internal.FieldLandValue, []string{"land value", "land_value", "land", "land val", "land worth"}},
	{internal.FieldImprovementValue, []string{"improvement", "improvement value", "improvement_value", "improvements", "building value", "structure value"}},
	{internal.FieldPropertyDescription, []string{"description", "property description", "property_description", "legal description", "legal"}},
	{internal.FieldAddress, []string{"address", "street", "street address", "location address"}},
}

var (
	dateShapes = []*regexp.Regexp{
		regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{4}$`),
		regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`),
		regexp.MustCompile(`^\d{1,2}-\d{1,2}-\d{4}$`),
	}
	moneyShapes = []*regexp.Regexp{
		regexp.MustCompile(`^\$?[\d,]+\.?\d*$`),
		regexp.MustCompile(`^\$?[\d,]+$`),
	}
	addressShapes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\d+\s+\w+\s+(street|st|avenue|ave|road|rd|drive|dr|lane|ln|way|blvd|boulevard)`),
		regexp.MustCompile(`(?i)^\d+\s+.*\s+(street|st|avenue|ave|road|rd|drive|dr|lane|ln|way|blvd|boulevard)`),
	}
)

const descriptionMinLen = 50

// Sample returns the rows the mapping is inferred from.
func Sample(rows []internal.RawRow) []internal.RawRow {
	if len(rows) > SampleSize {
		return rows[:SampleSize]
	}
	return rows
}

// Infer assigns every header one semantic type, looking at the header text first and at the
// sampled cell values second. Only the first SampleSize rows of sample are considered.
func Infer(headers []string, sample []internal.RawRow) internal.ColumnMapping {
	sample = Sample(sample)
	mapping := make(internal.ColumnMapping, len(headers))
	for _, h := range headers {
		if field, ok := MatchHeader(h); ok {
			mapping[h] = field
			continue
		}
		mapping[h] = matchContent(columnValues(h, sample))
	}
	return mapping
}

// MatchHeader runs the synonym catalog against a single header.
func MatchHeader(header string) (internal.SemanticType, bool) {
	h := util.LowerTrim(header)
	if h == "" {
		return internal.FieldUnknown, false
	}
	for _, entry := range catalog {
		if util.ContainsAny(h, entry.phrases...) {
			return entry.field, true
		}
	}
	return internal.FieldUnknown, false
}

func columnValues(header string, sample []internal.RawRow) []string {
	out := make([]string, 0, len(sample))
	for _, row := range sample {
		if v, ok := row.Get(header); ok {
			out = append(out, v)
		}
	}
	return out
}

func matchContent(values []string) internal.SemanticType {
	switch {
	case anyMatch(values, dateShapes):
		return internal.FieldPowerToSaleDate
	case anyMatch(values, moneyShapes):
		return internal.FieldDelinquentAmount
	case anyMatch(values, addressShapes):
		return internal.FieldAddress
	}
	for _, v := range values {
		if len([]rune(v)) > descriptionMinLen {
			return internal.FieldPropertyDescription
		}
	}
	return internal.FieldUnknown
}

func anyMatch(values []string, shapes []*regexp.Regexp) bool {
	for _, v := range values {
		for _, re := range shapes {
			if re.MatchString(v) {
				return true
			}
		}
	}
	return false
}
