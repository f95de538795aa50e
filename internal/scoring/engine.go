// Package scoring rates delinquent parcels as tax-lien investments.
package scoring

import (
	"context"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"taxlien/internal"
)

const (
	redemptionRate = 0.12
	redemptionFee  = 100.0
	topN           = 10
	longDelinquent = 1095
)

// Engine scores records against a reference date. Workers bounds AnalyzeBatch fan-out; values
// below 2 score sequentially.
type Engine struct {
	Now     func() time.Time
	Workers int
}

func NewEngine(now func() time.Time, workers int) *Engine {
	return &Engine{Now: now, Workers: workers}
}

func (e *Engine) now() time.Time {
	if e == nil || e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

func valueOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

// EquityRatio is assessed value over the delinquent amount, 0 when nothing is owed.
func EquityRatio(rec internal.TypedPropertyRecord) float64 {
	owed := valueOrZero(rec.DelinquentAmount)
	if owed == 0 {
		return 0
	}
	return (valueOrZero(rec.LandValue) + valueOrZero(rec.ImprovementValue)) / owed
}

// DelinquencyAge counts whole days since the sale date, rounded up. Future dates are negative.
func DelinquencyAge(rec internal.TypedPropertyRecord, now time.Time) int {
	if rec.PowerToSaleDate == nil {
		return 0
	}
	days := now.Sub(*rec.PowerToSaleDate).Hours() / 24
	return int(math.Ceil(days))
}

func EstimatedRedemption(rec internal.TypedPropertyRecord, ageDays int) float64 {
	base := valueOrZero(rec.DelinquentAmount)
	return base + base*redemptionRate*(float64(ageDays)/365) + redemptionFee
}

// Analyze derives every score component for one record.
func (e *Engine) Analyze(rec internal.TypedPropertyRecord) internal.AnalyzedProperty {
	ap := internal.AnalyzedProperty{TypedPropertyRecord: rec}
	ap.EquityRatio = EquityRatio(rec)
	ap.DelinquencyAgeDays = DelinquencyAge(rec, e.now())
	ap.PropertyType = ClassifyPropertyType(rec.PropertyDescription)
	ap.LocationQuality = AssessLocation(rec.Location, rec.Address)
	ap.Acreage = ExtractAcreage(rec.PropertyDescription)
	ap.EstimatedRedemption = EstimatedRedemption(rec, ap.DelinquencyAgeDays)
	ap.InvestmentScore = InvestmentScore(ap)
	ap.RiskLevel = Risk(ap.InvestmentScore)
	ap.Recommendations = Recommend(ap)
	return ap
}

// InvestmentScore sums the point buckets and clamps to [0,100].
func InvestmentScore(ap internal.AnalyzedProperty) int {
	score := equityPoints(ap.EquityRatio)
	score += agePoints(ap.DelinquencyAgeDays)
	if p, ok := typePoints[ap.PropertyType]; ok {
		score += p
	} else {
		score += unclassifiedPoints
	}
	if p, ok := locationPoints[ap.LocationQuality]; ok {
		score += p
	} else {
		score += unclassifiedPoints
	}
	score += acreagePoints(ap.Acreage)
	score += competitionPoints(ap.EquityRatio * valueOrZero(ap.DelinquentAmount))
	return min(max(score, 0), 100)
}

func Risk(score int) internal.RiskLevel {
	switch {
	case score >= 80:
		return internal.RiskLow
	case score >= 60:
		return internal.RiskMedium
	}
	return internal.RiskHigh
}

// ScoreBand buckets a score for portfolio distribution (≥70 high, ≥50 medium). It uses
// different thresholds from Risk.
func ScoreBand(score int) string {
	switch {
	case score >= 70:
		return "high"
	case score >= 50:
		return "medium"
	}
	return "low"
}

func Recommend(ap internal.AnalyzedProperty) []internal.Recommendation {
	recs := []internal.Recommendation{}
	if ap.EquityRatio >= 5 {
		recs = append(recs, internal.Recommendation{Type: "positive", Message: "Excellent equity ratio - strong potential for profit", Priority: "high"})
	}
	if ap.DelinquencyAgeDays > longDelinquent {
		recs = append(recs, internal.Recommendation{Type: "warning", Message: "Property has been delinquent for 3+ years - investigate why", Priority: "high"})
	}
	if ap.PropertyType == internal.TypeRawLand {
		recs = append(recs, internal.Recommendation{Type: "info", Message: "Raw land investment - consider development potential", Priority: "medium"})
	}
	if ap.LocationQuality == internal.LocationHigh {
		recs = append(recs, internal.Recommendation{Type: "positive", Message: "Prime location - high demand area", Priority: "high"})
	}
	switch {
	case ap.InvestmentScore >= 70:
		recs = append(recs, internal.Recommendation{Type: "action", Message: "Consider pre-sale contact with property owner", Priority: "high"})
	case ap.InvestmentScore >= 50:
		recs = append(recs, internal.Recommendation{Type: "action", Message: "Monitor for auction date and prepare to bid", Priority: "medium"})
	}
	return recs
}

// AnalyzeBatch scores records in input order. The reference date is read once so every record
// in the batch is aged against the same day.
func (e *Engine) AnalyzeBatch(ctx context.Context, records []internal.TypedPropertyRecord) ([]internal.AnalyzedProperty, error) {
	fixed := e.now()
	pinned := &Engine{Now: func() time.Time { return fixed }}
	out := make([]internal.AnalyzedProperty, len(records))

	workers := 1
	if e != nil && e.Workers > 1 {
		workers = e.Workers
	}
	if workers == 1 || len(records) < 2 {
		for i, rec := range records {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			out[i] = pinned.Analyze(rec)
		}
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range records {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = pinned.Analyze(records[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Aggregate summarises a scored batch. Top opportunities keep input order on equal scores.
func Aggregate(analyzed []internal.AnalyzedProperty) internal.PortfolioStats {
	stats := internal.PortfolioStats{
		PropertyTypes:    map[internal.PropertyTypeClass]int{},
		TopOpportunities: []internal.Opportunity{},
	}
	if len(analyzed) == 0 {
		return stats
	}
	stats.TotalProperties = len(analyzed)

	var scoreSum, equitySum float64
	for _, p := range analyzed {
		scoreSum += float64(p.InvestmentScore)
		equitySum += p.EquityRatio
		stats.TotalValue += valueOrZero(p.LandValue) + valueOrZero(p.ImprovementValue)
		stats.TotalDelinquent += valueOrZero(p.DelinquentAmount)
		switch ScoreBand(p.InvestmentScore) {
		case "high":
			stats.ScoreDistribution.High++
		case "medium":
			stats.ScoreDistribution.Medium++
		default:
			stats.ScoreDistribution.Low++
		}
		t := p.PropertyType
		if t == "" {
			t = internal.TypeUnknown
		}
		stats.PropertyTypes[t]++
	}
	n := float64(len(analyzed))
	stats.AverageScore = scoreSum / n
	stats.AverageEquityRatio = equitySum / n

	order := make([]int, len(analyzed))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return analyzed[order[a]].InvestmentScore > analyzed[order[b]].InvestmentScore
	})
	if len(order) > topN {
		order = order[:topN]
	}
	for _, i := range order {
		p := analyzed[i]
		stats.TopOpportunities = append(stats.TopOpportunities, internal.Opportunity{
			ParcelID:         p.ParcelID,
			InvestmentScore:  p.InvestmentScore,
			EquityRatio:      p.EquityRatio,
			DelinquentAmount: p.DelinquentAmount,
		})
	}
	return stats
}
