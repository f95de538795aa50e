package inference

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"taxlien/internal"
)

func mkRows(headers []string, cells ...[]string) []internal.RawRow {
	rows := make([]internal.RawRow, 0, len(cells))
	for _, c := range cells {
		vals := map[string]string{}
		for i, h := range headers {
			if i < len(c) {
				vals[h] = c[i]
			}
		}
		rows = append(rows, internal.RawRow{Headers: headers, Values: vals})
	}
	return rows
}

func TestMatchHeader(t *testing.T) {
	cases := []struct {
		header string
		want   internal.SemanticType
	}{
		{"Parcel Number", internal.FieldParcelID},
		{"  POWER TO SALE DATE ", internal.FieldPowerToSaleDate},
		{"Tax Area", internal.FieldTaxArea},
		{"City", internal.FieldLocation},
		{"Amount Owed", internal.FieldDelinquentAmount},
		{"Land Value", internal.FieldLandValue},
		{"Building Value", internal.FieldImprovementValue},
		{"Legal Description", internal.FieldPropertyDescription},
		{"Street Address", internal.FieldAddress},
		// catalog order: "location" is checked before "address"
		{"Location Address", internal.FieldLocation},
		// "id" is a parcel synonym and parcel comes first
		{"Owner ID", internal.FieldParcelID},
	}
	for _, tc := range cases {
		t.Run(tc.header, func(t *testing.T) {
			got, ok := MatchHeader(tc.header)
			if !ok || got != tc.want {
				t.Fatalf("got=%s ok=%v want=%s", got, ok, tc.want)
			}
		})
	}
	if _, ok := MatchHeader("Owner"); ok {
		t.Fatal("expected no match")
	}
}

func TestInferContentFallback(t *testing.T) {
	headers := []string{"Col A", "Col B", "Col C", "Col D", "Col E"}
	long := strings.Repeat("Lot 4 Block 7 of the original plat ", 2)
	rows := mkRows(headers,
		[]string{"", "", "", "", "x"},
		[]string{"5/1/2024", "$1,200.50", "12 Oak Street", long, "y"},
	)
	m := Infer(headers, rows)
	want := map[string]internal.SemanticType{
		"Col A": internal.FieldPowerToSaleDate,
		"Col B": internal.FieldDelinquentAmount,
		"Col C": internal.FieldAddress,
		"Col D": internal.FieldPropertyDescription,
		"Col E": internal.FieldUnknown,
	}
	for h, w := range want {
		if m[h] != w {
			t.Fatalf("%s: got=%s want=%s", h, m[h], w)
		}
	}
}

func TestInferUsesOnlyLeadingRows(t *testing.T) {
	headers := []string{"Col"}
	cells := make([][]string, 0, 12)
	for i := 0; i < SampleSize; i++ {
		cells = append(cells, []string{"abc"})
	}
	cells = append(cells, []string{"01/02/2024"})
	rows := mkRows(headers, cells...)
	if got := Infer(headers, rows)["Col"]; got != internal.FieldUnknown {
		t.Fatalf("got=%s", got)
	}
	res := Parse(headers, rows)
	if len(res.Records) != 11 {
		t.Fatalf("len=%d", len(res.Records))
	}
	if v := res.Records[10].Extra["Col"]; v == nil || *v != "01/02/2024" {
		t.Fatalf("extra=%v", v)
	}
}

func TestParcelNumberScenario(t *testing.T) {
	headers := []string{"Parcel Number"}
	res := Parse(headers, mkRows(headers, []string{"123-456"}))
	if res.Mapping["Parcel Number"] != internal.FieldParcelID {
		t.Fatalf("mapping=%v", res.Mapping)
	}
	if p := res.Records[0].ParcelID; p == nil || *p != "123-456" {
		t.Fatalf("parcel=%v", p)
	}
}

func TestCoerceMoneyAndDates(t *testing.T) {
	headers := []string{"Parcel", "Delinquent Amount", "Land Value", "Sale Date", "Notes"}
	mapping := Infer(headers, nil)
	rec := Coerce(mkRows(headers, []string{" R1 ", "$12,500.00", "", "03/04/2024", "  "})[0], mapping, 1)

	if rec.DelinquentAmount == nil || *rec.DelinquentAmount != 12500 {
		t.Fatalf("amount=%v", rec.DelinquentAmount)
	}
	if rec.LandValue != nil {
		t.Fatal("empty cell must be nil")
	}
	if *rec.ParcelID != "R1" {
		t.Fatalf("parcel=%q", *rec.ParcelID)
	}
	want := time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC)
	if rec.PowerToSaleDate == nil || !rec.PowerToSaleDate.Equal(want) {
		t.Fatalf("date=%v", rec.PowerToSaleDate)
	}
	if v, ok := rec.Extra["Notes"]; !ok || v != nil {
		t.Fatalf("extra=%v", rec.Extra)
	}
}

func TestParseDate(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"1/2/2024", "2024-01-02", true},
		{"2024-12-31", "2024-12-31", true},
		{"12-25-2023", "2023-12-25", true},
		{"March 5, 2022", "2022-03-05", true},
		{"2022/07/09", "2022-07-09", true},
		{"13/45/2024", "", false},
		{"2023-02-30", "", false},
		{"soon", "", false},
	}
	for _, tc := range cases {
		got, ok := ParseDate(tc.in)
		if ok != tc.ok {
			t.Fatalf("%q: ok=%v", tc.in, ok)
		}
		if ok && got.Format("2006-01-02") != tc.want {
			t.Fatalf("%q: got=%s", tc.in, got.Format("2006-01-02"))
		}
	}
}

func TestCoerceDuplicateField(t *testing.T) {
	headers := []string{"Parcel", "Parcel No"}
	mapping := Infer(headers, nil)
	rec := Coerce(mkRows(headers, []string{"", "B-2"})[0], mapping, 1)
	if rec.ParcelID == nil || *rec.ParcelID != "B-2" {
		t.Fatalf("parcel=%v", rec.ParcelID)
	}
	rec = Coerce(mkRows(headers, []string{"A-1", "B-2"})[0], mapping, 1)
	if *rec.ParcelID != "A-1" || rec.Extra["Parcel No"] == nil {
		t.Fatalf("rec=%+v", rec)
	}
}

func TestCoerceNeverPanics(t *testing.T) {
	headers := []string{"Parcel", "Balance", "Auction Date", "Land", "Improvements", "Street"}
	junk := []string{"\x00", "$", "--", "....", "99/99/9999", "∞", "1e309", " , ", "2024-13-01"}
	mapping := Infer(headers, nil)
	for i, v := range junk {
		row := mkRows(headers, []string{v, v, v, v, v, v})[0]
		_ = Coerce(row, mapping, i+1)
	}
	_ = Coerce(internal.RawRow{}, mapping, 1)
}

func TestValidate(t *testing.T) {
	headers := []string{"Parcel", "Delinquent", "Sale Date"}
	rows := mkRows(headers,
		[]string{"A", "100", "01/01/2024"},
		[]string{"", "0", ""},
		[]string{"C", "50", "someday"},
	)
	res := Parse(headers, rows)
	rep := res.Report
	if rep.TotalRows != 3 || rep.ValidRows != 1 {
		t.Fatalf("report=%+v", rep)
	}
	if rep.MissingParcelID != 1 || rep.MissingAmounts != 1 || rep.InvalidDates != 1 {
		t.Fatalf("report=%+v", rep)
	}
	want := []string{
		"Row 2: Missing parcel ID",
		"Row 2: Missing or invalid delinquent amount",
		"Row 3: Invalid date format",
	}
	if len(rep.Issues) != len(want) {
		t.Fatalf("issues=%v", rep.Issues)
	}
	for i := range want {
		if rep.Issues[i] != want[i] {
			t.Fatalf("issue %d=%q", i, rep.Issues[i])
		}
	}
	if rep.QualityScore < 33.3 || rep.QualityScore > 33.4 {
		t.Fatalf("quality=%v", rep.QualityScore)
	}
}

func TestValidateCapsIssues(t *testing.T) {
	records := make([]internal.TypedPropertyRecord, 40)
	rep := Validate(records)
	if len(rep.Issues) != MaxIssues {
		t.Fatalf("len=%d", len(rep.Issues))
	}
	if rep.MissingParcelID != 40 || rep.MissingAmounts != 40 {
		t.Fatalf("report=%+v", rep)
	}
	if rep.Issues[49] != fmt.Sprintf("Row %d: Missing or invalid delinquent amount", 25) {
		t.Fatalf("last=%q", rep.Issues[49])
	}
	if rep.QualityScore != 0 {
		t.Fatalf("quality=%v", rep.QualityScore)
	}
}

func TestEmptyBatch(t *testing.T) {
	res := Parse([]string{"Parcel"}, nil)
	if res.Report.TotalRows != 0 || res.Report.ValidRows != 0 || res.Report.QualityScore != 0 {
		t.Fatalf("report=%+v", res.Report)
	}
	if res.Report.Issues == nil {
		t.Fatal("issues should be empty, not nil")
	}
}
