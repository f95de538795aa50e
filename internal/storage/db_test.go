package storage

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"taxlien/internal"
	"taxlien/internal/util"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func prop(parcel string, score int, equity, amount float64, location string, sale *time.Time) internal.AnalyzedProperty {
	return internal.AnalyzedProperty{
		TypedPropertyRecord: internal.TypedPropertyRecord{
			ParcelID:         util.StringPtr(parcel),
			DelinquentAmount: util.FloatPtr(amount),
			LandValue:        util.FloatPtr(equity * amount),
			Location:         util.StringPtr(location),
			Address:          util.StringPtr("1 Elm St"),
			PowerToSaleDate:  sale,
			Extra:            map[string]*string{"Owner": util.StringPtr("J. Doe")},
		},
		EquityRatio:         equity,
		InvestmentScore:     score,
		PropertyType:        internal.TypeRawLand,
		LocationQuality:     internal.LocationUnknown,
		RiskLevel:           internal.RiskHigh,
		EstimatedRedemption: amount + 100.004,
		Recommendations:     []internal.Recommendation{{Type: "info", Message: "m", Priority: "medium"}},
	}
}

func seed(t *testing.T, db *DB) internal.DatasetRow {
	t.Helper()
	ds, err := db.CreateDataset("roll.csv", "upload", 4, internal.ColumnMapping{"Parcel": internal.FieldParcelID}, internal.ValidationReport{TotalRows: 4, ValidRows: 4, Issues: []string{}})
	if err != nil {
		t.Fatal(err)
	}
	soon := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	later := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	props := []internal.AnalyzedProperty{
		prop("A", 85, 12, 1000.005, "Kansas City", &soon),
		prop("B", 65, 4, 60000, "Springfield", nil),
		prop("C", 40, 0.5, 3000, "", &later),
		prop("D", 65, 2, 9000, "kansas city", nil),
	}
	n, err := db.InsertProperties(ds.ID, props)
	if err != nil || n != 4 {
		t.Fatalf("n=%d err=%v", n, err)
	}
	if err := db.UpdateDatasetStatus(ds.ID, internal.DatasetCompleted, n); err != nil {
		t.Fatal(err)
	}
	return ds
}

func TestDatasets(t *testing.T) {
	db := openTestDB(t)
	ds := seed(t, db)
	if ds.UID == "" || ds.Status != internal.DatasetProcessing {
		t.Fatalf("ds=%+v", ds)
	}
	got, err := db.GetDataset(ds.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != internal.DatasetCompleted || got.ProcessedProperties != 4 || got.Mapping["Parcel"] != internal.FieldParcelID {
		t.Fatalf("got=%+v", got)
	}
	list, err := db.ListDatasets()
	if err != nil || len(list) != 1 {
		t.Fatalf("len=%d err=%v", len(list), err)
	}
	if _, err := db.GetDataset(999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v", err)
	}
}

func TestQueryProperties(t *testing.T) {
	db := openTestDB(t)
	seed(t, db)

	minScore := 60
	page, err := db.QueryProperties(PropertyFilter{MinScore: &minScore, Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if page.Pagination.Total != 3 || page.Pagination.Pages != 2 || len(page.Properties) != 2 {
		t.Fatalf("pagination=%+v len=%d", page.Pagination, len(page.Properties))
	}
	if *page.Properties[0].ParcelID != "A" || *page.Properties[1].ParcelID != "B" {
		t.Fatalf("order=%s,%s", *page.Properties[0].ParcelID, *page.Properties[1].ParcelID)
	}
	a := page.Properties[0]
	if *a.DelinquentAmount != 1000.01 || a.EstimatedRedemption != 1100.01 {
		t.Fatalf("amount=%v redemption=%v", *a.DelinquentAmount, a.EstimatedRedemption)
	}
	if a.PowerToSaleDate == nil || a.PowerToSaleDate.Format("2006-01-02") != "2025-06-10" {
		t.Fatalf("sale=%v", a.PowerToSaleDate)
	}
	if a.Extra["Owner"] == nil || len(a.Recommendations) != 1 || a.DatasetName != "roll.csv" {
		t.Fatalf("a=%+v", a)
	}

	page, err = db.QueryProperties(PropertyFilter{Location: "KANSAS", SortBy: "parcel_id", SortOrder: "asc"})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Properties) != 2 || *page.Properties[0].ParcelID != "A" {
		t.Fatalf("len=%d", len(page.Properties))
	}
	page, err = db.QueryProperties(PropertyFilter{Location: "elm st"})
	if err != nil || page.Pagination.Total != 4 {
		t.Fatalf("total=%d err=%v", page.Pagination.Total, err)
	}
	for _, loc := range []string{"_", "%", `\`, "kansas_city"} {
		page, err = db.QueryProperties(PropertyFilter{Location: loc})
		if err != nil || page.Pagination.Total != 0 {
			t.Fatalf("location=%q total=%d err=%v", loc, page.Pagination.Total, err)
		}
	}
	page, err = db.QueryProperties(PropertyFilter{SortBy: "1; DROP TABLE properties"})
	if err != nil || page.Pagination.Total != 4 {
		t.Fatalf("total=%d err=%v", page.Pagination.Total, err)
	}
}

func TestPropertyDetailAndWatchlist(t *testing.T) {
	db := openTestDB(t)
	seed(t, db)

	d, err := db.GetProperty(1)
	if err != nil {
		t.Fatal(err)
	}
	if d.IsWatchlisted || d.Watchlist != nil {
		t.Fatal("not watched yet")
	}
	if d.PotentialProfit != d.TotalPropertyValue-d.EstimatedRedemption {
		t.Fatalf("profit=%v", d.PotentialProfit)
	}

	if _, err := db.Watch(1, util.StringPtr("drive by"), ""); err != nil {
		t.Fatal(err)
	}
	entry, err := db.Watch(1, nil, internal.PriorityHigh)
	if err != nil {
		t.Fatal(err)
	}
	if entry.Priority != internal.PriorityHigh || entry.Notes != nil {
		t.Fatalf("entry=%+v", entry)
	}
	if _, err := db.Watch(1, nil, "urgent"); err == nil {
		t.Fatal("expected priority error")
	}
	if _, err := db.Watch(42, nil, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v", err)
	}

	list, pg, err := db.Watchlist(1, 10)
	if err != nil || len(list) != 1 || pg.Total != 1 {
		t.Fatalf("len=%d err=%v", len(list), err)
	}
	d, _ = db.GetProperty(1)
	if !d.IsWatchlisted {
		t.Fatal("expected watched")
	}
	if err := db.Unwatch(1); err != nil {
		t.Fatal(err)
	}
	if err := db.Unwatch(1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v", err)
	}
}

func TestAnalytics(t *testing.T) {
	db := openTestDB(t)
	ds := seed(t, db)

	rep, err := db.Portfolio(ds.ID)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Stats.TotalProperties != 4 || rep.Stats.HighScoreCount != 1 || rep.Stats.MediumScoreCount != 2 || rep.Stats.LowScoreCount != 1 {
		t.Fatalf("stats=%+v", rep.Stats)
	}
	if len(rep.ScoreDistribution) != 6 || rep.ScoreDistribution[1].Range != "80-89" || rep.ScoreDistribution[1].Count != 1 {
		t.Fatalf("scores=%+v", rep.ScoreDistribution)
	}
	if rep.EquityDistribution[0].Range != "10+" || rep.EquityDistribution[0].Count != 1 {
		t.Fatalf("equity=%+v", rep.EquityDistribution)
	}
	if len(rep.TopOpportunities) != 4 || *rep.TopOpportunities[0].ParcelID != "A" {
		t.Fatalf("top=%d", len(rep.TopOpportunities))
	}

	tr, err := db.Trends(ds.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(tr.Scatter) != 4 || tr.AmountDistribution[1].Range != "50k-99k" || tr.AmountDistribution[1].Count != 1 {
		t.Fatalf("trends=%+v", tr)
	}

	locs, err := db.Locations(ds.ID)
	if err != nil || len(locs) != 3 {
		t.Fatalf("locs=%+v err=%v", locs, err)
	}
	if locs[0].Location != "Kansas City" {
		t.Fatalf("first=%s", locs[0].Location)
	}

	risk, err := db.Risk(ds.ID, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), 30)
	if err != nil {
		t.Fatal(err)
	}
	if len(risk.Distribution) != 3 || risk.Distribution[0].RiskLevel != "Low Risk" {
		t.Fatalf("risk=%+v", risk.Distribution)
	}
	if len(risk.ApproachingSale) != 1 || *risk.ApproachingSale[0].ParcelID != "A" {
		t.Fatalf("approaching=%d", len(risk.ApproachingSale))
	}

	if _, err := db.Portfolio(77); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v", err)
	}
}

func TestDeleteDatasetCascades(t *testing.T) {
	db := openTestDB(t)
	ds := seed(t, db)
	if _, err := db.Watch(2, nil, internal.PriorityLow); err != nil {
		t.Fatal(err)
	}
	if err := db.PutAnalysis(ds.ID, "portfolio", map[string]int{"n": 4}); err != nil {
		t.Fatal(err)
	}
	var cached map[string]int
	if ok, err := db.GetAnalysis(ds.ID, "portfolio", &cached); !ok || err != nil || cached["n"] != 4 {
		t.Fatalf("ok=%v err=%v cached=%v", ok, err, cached)
	}

	if err := db.DeleteDataset(ds.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := db.GetProperty(2); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v", err)
	}
	if list, _, _ := db.Watchlist(1, 10); len(list) != 0 {
		t.Fatalf("watchlist=%d", len(list))
	}
	if ok, _ := db.GetAnalysis(ds.ID, "portfolio", &cached); ok {
		t.Fatal("cache should be gone")
	}
	if err := db.DeleteDataset(ds.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v", err)
	}
}

func TestMetadataAndRuns(t *testing.T) {
	db := openTestDB(t)
	v, err := db.GetMetadata("feed.lastRefresh")
	if err != nil || v != nil {
		t.Fatalf("v=%v err=%v", v, err)
	}
	if err := db.SetMetadata("feed.lastRefresh", "x"); err != nil {
		t.Fatal(err)
	}
	if v, _ := db.GetMetadata("feed.lastRefresh"); v == nil || *v != "x" {
		t.Fatal("metadata")
	}
	if err := db.InsertRun("trace", 0, 0, map[string]float64{"totalMs": 1}, map[string]int{"rows": 0}); err != nil {
		t.Fatal(err)
	}
	if n, _ := db.CountRuns(); n != 1 {
		t.Fatalf("runs=%d", n)
	}
}
