package inference

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"taxlien/internal"
	"taxlien/internal/util"
)

type datePattern struct {
	re               *regexp.Regexp
	year, month, day int
}

// Explicit captures only: 03/04/2024 is always March 4th.
var datePatterns = []datePattern{
	{regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`), 3, 1, 2},
	{regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})$`), 1, 2, 3},
	{regexp.MustCompile(`^(\d{1,2})-(\d{1,2})-(\d{4})$`), 3, 1, 2},
}

var fallbackLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"2006/01/02",
}

// ParseDate reads a sale date. Unrecognised text yields false.
func ParseDate(input string) (time.Time, bool) {
	s := strings.TrimSpace(input)
	if s == "" {
		return time.Time{}, false
	}
	for _, p := range datePatterns {
		m := p.re.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		y, _ := strconv.Atoi(m[p.year])
		mo, _ := strconv.Atoi(m[p.month])
		d, _ := strconv.Atoi(m[p.day])
		t := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC)
		if t.Year() != y || int(t.Month()) != mo || t.Day() != d {
			return time.Time{}, false
		}
		return t, true
	}
	for _, layout := range fallbackLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// Coerce converts one raw row using the batch mapping. It never fails: cells that cannot be
// read become nil and the field is listed in Unparsed.
func Coerce(row internal.RawRow, mapping internal.ColumnMapping, rowNumber int) internal.TypedPropertyRecord {
	rec := internal.TypedPropertyRecord{RowNumber: rowNumber}
	unparsed := map[internal.SemanticType]bool{}

	for _, h := range rowHeaders(row) {
		field, ok := mapping[h]
		if !ok {
			field = internal.FieldUnknown
		}
		raw, present := row.Get(h)
		text := strings.TrimSpace(raw)
		if field == internal.FieldUnknown {
			setExtra(&rec, h, text)
			continue
		}
		if !present || text == "" {
			continue
		}
		if fieldSet(&rec, field) {
			setExtra(&rec, h, text)
			continue
		}
		if !assign(&rec, field, text) {
			unparsed[field] = true
		}
	}

	for field := range unparsed {
		if !fieldSet(&rec, field) {
			rec.Unparsed = append(rec.Unparsed, field)
		}
	}
	sort.Slice(rec.Unparsed, func(i, j int) bool { return rec.Unparsed[i] < rec.Unparsed[j] })
	return rec
}

// CoerceAll applies Coerce to every row; row numbers are 1-based.
func CoerceAll(rows []internal.RawRow, mapping internal.ColumnMapping) []internal.TypedPropertyRecord {
	out := make([]internal.TypedPropertyRecord, len(rows))
	for i, row := range rows {
		out[i] = Coerce(row, mapping, i+1)
	}
	return out
}

func rowHeaders(row internal.RawRow) []string {
	if len(row.Headers) > 0 {
		return row.Headers
	}
	keys := make([]string, 0, len(row.Values))
	for k := range row.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func setExtra(rec *internal.TypedPropertyRecord, header, text string) {
	if rec.Extra == nil {
		rec.Extra = map[string]*string{}
	}
	if text == "" {
		rec.Extra[header] = nil
		return
	}
	rec.Extra[header] = util.StringPtr(text)
}

func fieldSet(rec *internal.TypedPropertyRecord, field internal.SemanticType) bool {
	switch field {
	case internal.FieldParcelID:
		return rec.ParcelID != nil
	case internal.FieldPowerToSaleDate:
		return rec.PowerToSaleDate != nil
	case internal.FieldTaxArea:
		return rec.TaxArea != nil
	case internal.FieldLocation:
		return rec.Location != nil
	case internal.FieldDelinquentAmount:
		return rec.DelinquentAmount != nil
	case internal.FieldLandValue:
		return rec.LandValue != nil
	case internal.FieldImprovementValue:
		return rec.ImprovementValue != nil
	case internal.FieldPropertyDescription:
		return rec.PropertyDescription != nil
	case internal.FieldAddress:
		return rec.Address != nil
	}
	return false
}

// assign stores text into field and reports whether it could be read.
func assign(rec *internal.TypedPropertyRecord, field internal.SemanticType, text string) bool {
	switch field {
	case internal.FieldPowerToSaleDate:
		t, ok := ParseDate(text)
		if !ok {
			return false
		}
		rec.PowerToSaleDate = &t
	case internal.FieldDelinquentAmount, internal.FieldLandValue, internal.FieldImprovementValue:
		v, ok := util.ParseMoney(text)
		if !ok {
			return false
		}
		switch field {
		case internal.FieldDelinquentAmount:
			rec.DelinquentAmount = &v
		case internal.FieldLandValue:
			rec.LandValue = &v
		default:
			rec.ImprovementValue = &v
		}
	case internal.FieldParcelID:
		rec.ParcelID = util.StringPtr(text)
	case internal.FieldTaxArea:
		rec.TaxArea = util.StringPtr(text)
	case internal.FieldLocation:
		rec.Location = util.StringPtr(text)
	case internal.FieldPropertyDescription:
		rec.PropertyDescription = util.StringPtr(text)
	case internal.FieldAddress:
		rec.Address = util.StringPtr(text)
	}
	return true
}
