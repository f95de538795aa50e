package storage

import (
	"database/sql"
	"errors"
	"time"

	"taxlien/internal"
)

var (
	scoreRanges  = []string{"90-100", "80-89", "70-79", "60-69", "50-59", "0-49"}
	equityRanges = []string{"10+", "5-9.9", "3-4.9", "2-2.9", "1-1.9", "0-0.9"}
	amountRanges = []string{"100k+", "50k-99k", "25k-49k", "10k-24k", "5k-9k", "0-4k"}
	riskLabels   = []string{"Low Risk", "Medium Risk", "High Risk"}
)

const scoreRangeExpr = `CASE
  WHEN investmentScore >= 90 THEN '90-100'
  WHEN investmentScore >= 80 THEN '80-89'
  WHEN investmentScore >= 70 THEN '70-79'
  WHEN investmentScore >= 60 THEN '60-69'
  WHEN investmentScore >= 50 THEN '50-59'
  ELSE '0-49' END`

const equityRangeExpr = `CASE
  WHEN equityRatio >= 10 THEN '10+'
  WHEN equityRatio >= 5 THEN '5-9.9'
  WHEN equityRatio >= 3 THEN '3-4.9'
  WHEN equityRatio >= 2 THEN '2-2.9'
  WHEN equityRatio >= 1 THEN '1-1.9'
  ELSE '0-0.9' END`

const amountRangeExpr = `CASE
  WHEN delinquentAmount >= 100000 THEN '100k+'
  WHEN delinquentAmount >= 50000 THEN '50k-99k'
  WHEN delinquentAmount >= 25000 THEN '25k-49k'
  WHEN delinquentAmount >= 10000 THEN '10k-24k'
  WHEN delinquentAmount >= 5000 THEN '5k-9k'
  ELSE '0-4k' END`

const riskExpr = `CASE
  WHEN investmentScore >= 80 THEN 'Low Risk'
  WHEN investmentScore >= 60 THEN 'Medium Risk'
  ELSE 'High Risk' END`

func (d *DB) requireDataset(id int) error {
	var one int
	err := d.conn.QueryRow(`SELECT 1 FROM datasets WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound("dataset", id)
	}
	return err
}

// rangeCounts runs a bucketed count and returns every bucket in display order, empty ones included.
func (d *DB) rangeCounts(expr string, order []string, withScore bool, datasetID int) ([]internal.RangeCount, error) {
	rows, err := d.conn.Query(`SELECT `+expr+` AS bucket, COUNT(*), COALESCE(AVG(investmentScore), 0)
FROM properties WHERE datasetId = ? GROUP BY bucket`, datasetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	found := map[string]internal.RangeCount{}
	for rows.Next() {
		var rc internal.RangeCount
		if err := rows.Scan(&rc.Range, &rc.Count, &rc.AverageScore); err != nil {
			return nil, err
		}
		if !withScore {
			rc.AverageScore = 0
		}
		found[rc.Range] = rc
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]internal.RangeCount, 0, len(order))
	for _, r := range order {
		rc, ok := found[r]
		if !ok {
			rc = internal.RangeCount{Range: r}
		}
		out = append(out, rc)
	}
	return out, nil
}

func (d *DB) Portfolio(datasetID int) (internal.PortfolioReport, error) {
	var rep internal.PortfolioReport
	if err := d.requireDataset(datasetID); err != nil {
		return rep, err
	}

	s := &rep.Stats
	err := d.conn.QueryRow(`
SELECT
  COUNT(*),
  COALESCE(AVG(investmentScore), 0),
  COALESCE(AVG(equityRatio), 0),
  COALESCE(SUM(delinquentAmount), 0),
  COALESCE(SUM(COALESCE(landValue, 0) + COALESCE(improvementValue, 0)), 0),
  COALESCE(AVG(delinquencyAge), 0),
  COUNT(CASE WHEN investmentScore >= 70 THEN 1 END),
  COUNT(CASE WHEN investmentScore >= 50 AND investmentScore < 70 THEN 1 END),
  COUNT(CASE WHEN investmentScore < 50 THEN 1 END)
FROM properties WHERE datasetId = ?`, datasetID).Scan(
		&s.TotalProperties, &s.AverageScore, &s.AverageEquityRatio, &s.TotalDelinquent, &s.TotalPropertyValue,
		&s.AverageDelinquencyAge, &s.HighScoreCount, &s.MediumScoreCount, &s.LowScoreCount,
	)
	if err != nil {
		return rep, err
	}

	rows, err := d.conn.Query(`
SELECT propertyType, COUNT(*) AS n, AVG(investmentScore)
FROM properties WHERE datasetId = ?
GROUP BY propertyType ORDER BY n DESC, propertyType ASC`, datasetID)
	if err != nil {
		return rep, err
	}
	rep.PropertyTypes = []internal.TypeBreakdown{}
	for rows.Next() {
		var tb internal.TypeBreakdown
		var kind string
		if err := rows.Scan(&kind, &tb.Count, &tb.AverageScore); err != nil {
			_ = rows.Close()
			return rep, err
		}
		tb.PropertyType = internal.PropertyTypeClass(kind)
		rep.PropertyTypes = append(rep.PropertyTypes, tb)
	}
	_ = rows.Close()

	if rep.ScoreDistribution, err = d.rangeCounts(scoreRangeExpr, scoreRanges, false, datasetID); err != nil {
		return rep, err
	}
	if rep.EquityDistribution, err = d.rangeCounts(equityRangeExpr, equityRanges, false, datasetID); err != nil {
		return rep, err
	}

	top, err := d.conn.Query(`SELECT `+propertyColumns+propertyFrom+`
WHERE p.datasetId = ? ORDER BY p.investmentScore DESC, p.id ASC LIMIT 10`, datasetID)
	if err != nil {
		return rep, err
	}
	rep.TopOpportunities, err = collectProperties(top)
	return rep, err
}

func (d *DB) Trends(datasetID int) (internal.TrendsReport, error) {
	var rep internal.TrendsReport
	if err := d.requireDataset(datasetID); err != nil {
		return rep, err
	}

	rows, err := d.conn.Query(`
SELECT equityRatio, investmentScore, delinquentAmount, propertyType
FROM properties WHERE datasetId = ? ORDER BY investmentScore DESC, id ASC`, datasetID)
	if err != nil {
		return rep, err
	}
	rep.Scatter = []internal.TrendPoint{}
	for rows.Next() {
		var tp internal.TrendPoint
		var kind string
		if err := rows.Scan(&tp.EquityRatio, &tp.InvestmentScore, &tp.DelinquentAmount, &kind); err != nil {
			_ = rows.Close()
			return rep, err
		}
		tp.PropertyType = internal.PropertyTypeClass(kind)
		rep.Scatter = append(rep.Scatter, tp)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return rep, err
	}

	rep.AmountDistribution, err = d.rangeCounts(amountRangeExpr, amountRanges, true, datasetID)
	return rep, err
}

// Locations groups a dataset by its non-empty location, best average score first.
func (d *DB) Locations(datasetID int) ([]internal.LocationStat, error) {
	if err := d.requireDataset(datasetID); err != nil {
		return nil, err
	}
	rows, err := d.conn.Query(`
SELECT location, COUNT(*), AVG(investmentScore) AS avgScore, AVG(equityRatio), COALESCE(SUM(delinquentAmount), 0),
       COUNT(CASE WHEN investmentScore >= 70 THEN 1 END)
FROM properties
WHERE datasetId = ? AND location IS NOT NULL AND location != ''
GROUP BY location ORDER BY avgScore DESC, location ASC`, datasetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []internal.LocationStat{}
	for rows.Next() {
		var ls internal.LocationStat
		if err := rows.Scan(&ls.Location, &ls.PropertyCount, &ls.AverageScore, &ls.AverageEquityRatio, &ls.TotalDelinquent, &ls.HighScoreCount); err != nil {
			return nil, err
		}
		out = append(out, ls)
	}
	return out, rows.Err()
}

// Risk buckets a dataset by score and lists parcels whose sale date falls on or before
// today plus horizonDays.
func (d *DB) Risk(datasetID int, today time.Time, horizonDays int) (internal.RiskReport, error) {
	var rep internal.RiskReport
	if err := d.requireDataset(datasetID); err != nil {
		return rep, err
	}

	rows, err := d.conn.Query(`
SELECT `+riskExpr+` AS bucket, COUNT(*), AVG(equityRatio), AVG(delinquencyAge)
FROM properties WHERE datasetId = ? GROUP BY bucket`, datasetID)
	if err != nil {
		return rep, err
	}
	found := map[string]internal.RiskBucket{}
	for rows.Next() {
		var rb internal.RiskBucket
		if err := rows.Scan(&rb.RiskLevel, &rb.Count, &rb.AverageEquityRatio, &rb.AverageDelinquencyAge); err != nil {
			_ = rows.Close()
			return rep, err
		}
		found[rb.RiskLevel] = rb
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return rep, err
	}
	rep.Distribution = []internal.RiskBucket{}
	for _, label := range riskLabels {
		if rb, ok := found[label]; ok {
			rep.Distribution = append(rep.Distribution, rb)
		}
	}

	cutoff := today.AddDate(0, 0, horizonDays).Format(saleDateLayout)
	sale, err := d.conn.Query(`SELECT `+propertyColumns+propertyFrom+`
WHERE p.datasetId = ? AND p.powerToSaleDate IS NOT NULL AND p.powerToSaleDate <= ?
ORDER BY p.powerToSaleDate ASC, p.id ASC`, datasetID, cutoff)
	if err != nil {
		return rep, err
	}
	rep.ApproachingSale, err = collectProperties(sale)
	return rep, err
}
