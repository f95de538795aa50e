package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"time"

	"taxlien/internal"
	"taxlien/internal/util"
)

const saleDateLayout = "2006-01-02"

// InsertProperties stores a scored batch in one transaction and returns the number of rows written.
func (d *DB) InsertProperties(datasetID int, props []internal.AnalyzedProperty) (int, error) {
	tx, err := d.conn.Begin()
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
INSERT INTO properties (
  datasetId, rowNumber, parcelId, powerToSaleDate, taxArea, location,
  delinquentAmount, landValue, improvementValue, propertyDescription, address,
  propertyType, locationQuality, equityRatio, delinquencyAge, acreage,
  investmentScore, riskLevel, estimatedRedemption, recommendationsJson, extraJson
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	n := 0
	for _, p := range props {
		var saleDate *string
		if p.PowerToSaleDate != nil {
			saleDate = util.StringPtr(p.PowerToSaleDate.Format(saleDateLayout))
		}
		recsJSON, _ := json.Marshal(p.Recommendations)
		extraJSON, _ := json.Marshal(p.Extra)
		if _, err := stmt.Exec(
			datasetID, p.RowNumber, p.ParcelID, saleDate, p.TaxArea, p.Location,
			util.RoundCentsPtr(p.DelinquentAmount), util.RoundCentsPtr(p.LandValue), util.RoundCentsPtr(p.ImprovementValue),
			p.PropertyDescription, p.Address,
			string(p.PropertyType), string(p.LocationQuality), p.EquityRatio, p.DelinquencyAgeDays, p.Acreage,
			p.InvestmentScore, string(p.RiskLevel), util.RoundCents(p.EstimatedRedemption), string(recsJSON), string(extraJSON),
		); err != nil {
			return 0, err
		}
		n++
	}

	return n, tx.Commit()
}

const propertyColumns = `
  p.id, p.datasetId, ds.filename, p.createdAt, p.rowNumber, p.parcelId, p.powerToSaleDate, p.taxArea, p.location,
  p.delinquentAmount, p.landValue, p.improvementValue, p.propertyDescription, p.address,
  p.propertyType, p.locationQuality, p.equityRatio, p.delinquencyAge, p.acreage,
  p.investmentScore, p.riskLevel, p.estimatedRedemption, p.recommendationsJson, p.extraJson`

const propertyFrom = `
FROM properties p
JOIN datasets ds ON ds.id = p.datasetId`

func scanProperty(s interface{ Scan(...any) error }, extra ...any) (internal.StoredProperty, error) {
	var p internal.StoredProperty
	var saleDate sql.NullString
	var propertyType, locationQuality, riskLevel, recsJSON, extraJSON string
	dest := []any{
		&p.ID, &p.DatasetID, &p.DatasetName, &p.CreatedAt, &p.RowNumber, &p.ParcelID, &saleDate, &p.TaxArea, &p.Location,
		&p.DelinquentAmount, &p.LandValue, &p.ImprovementValue, &p.PropertyDescription, &p.Address,
		&propertyType, &locationQuality, &p.EquityRatio, &p.DelinquencyAgeDays, &p.Acreage,
		&p.InvestmentScore, &riskLevel, &p.EstimatedRedemption, &recsJSON, &extraJSON,
	}
	if err := s.Scan(append(dest, extra...)...); err != nil {
		return p, err
	}
	if saleDate.Valid {
		if t, err := time.Parse(saleDateLayout, saleDate.String); err == nil {
			p.PowerToSaleDate = &t
		}
	}
	p.PropertyType = internal.PropertyTypeClass(propertyType)
	p.LocationQuality = internal.LocationQualityClass(locationQuality)
	p.RiskLevel = internal.RiskLevel(riskLevel)
	_ = json.Unmarshal([]byte(recsJSON), &p.Recommendations)
	_ = json.Unmarshal([]byte(extraJSON), &p.Extra)
	return p, nil
}

func collectProperties(rows *sql.Rows) ([]internal.StoredProperty, error) {
	defer rows.Close()
	out := []internal.StoredProperty{}
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// PropertyFilter narrows a property listing. Nil bounds are ignored.
type PropertyFilter struct {
	DatasetID      int
	MinScore       *int
	MaxScore       *int
	MinEquityRatio *float64
	MaxEquityRatio *float64
	MinAmount      *float64
	MaxAmount      *float64
	PropertyType   string
	// Location matches location or address, case-insensitively.
	Location  string
	SortBy    string
	SortOrder string
	Page      int
	Limit     int
}

var sortColumns = map[string]string{
	"investment_score":  "p.investmentScore",
	"equity_ratio":      "p.equityRatio",
	"delinquent_amount": "p.delinquentAmount",
	"delinquency_age":   "p.delinquencyAge",
	"created_at":        "p.createdAt",
	"parcel_id":         "p.parcelId",
}

// likeEscaper makes user input match literally inside a LIKE pattern.
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

func (f PropertyFilter) where() (string, []any) {
	var clauses []string
	var args []any
	add := func(clause string, arg ...any) {
		clauses = append(clauses, clause)
		args = append(args, arg...)
	}
	if f.DatasetID > 0 {
		add("p.datasetId = ?", f.DatasetID)
	}
	if f.MinScore != nil {
		add("p.investmentScore >= ?", *f.MinScore)
	}
	if f.MaxScore != nil {
		add("p.investmentScore <= ?", *f.MaxScore)
	}
	if f.MinEquityRatio != nil {
		add("p.equityRatio >= ?", *f.MinEquityRatio)
	}
	if f.MaxEquityRatio != nil {
		add("p.equityRatio <= ?", *f.MaxEquityRatio)
	}
	if f.MinAmount != nil {
		add("p.delinquentAmount >= ?", *f.MinAmount)
	}
	if f.MaxAmount != nil {
		add("p.delinquentAmount <= ?", *f.MaxAmount)
	}
	if f.PropertyType != "" {
		add("p.propertyType = ?", f.PropertyType)
	}
	if loc := strings.TrimSpace(f.Location); loc != "" {
		pattern := "%" + likeEscaper.Replace(strings.ToLower(loc)) + "%"
		add(`(LOWER(p.location) LIKE ? ESCAPE '\' OR LOWER(p.address) LIKE ? ESCAPE '\')`, pattern, pattern)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (f PropertyFilter) orderBy() string {
	col, ok := sortColumns[f.SortBy]
	if !ok {
		col = sortColumns["investment_score"]
	}
	dir := "DESC"
	if strings.EqualFold(f.SortOrder, "asc") {
		dir = "ASC"
	}
	return " ORDER BY " + col + " " + dir + ", p.id ASC"
}

// QueryProperties returns one page of properties. Limit must already be clamped by the caller.
func (d *DB) QueryProperties(f PropertyFilter) (internal.PropertyPage, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = 50
	}
	where, args := f.where()

	var total int
	if err := d.conn.QueryRow(`SELECT COUNT(*)`+propertyFrom+where, args...).Scan(&total); err != nil {
		return internal.PropertyPage{}, err
	}

	pageArgs := append(append([]any{}, args...), f.Limit, (f.Page-1)*f.Limit)
	rows, err := d.conn.Query(`SELECT `+propertyColumns+propertyFrom+where+f.orderBy()+` LIMIT ? OFFSET ?`, pageArgs...)
	if err != nil {
		return internal.PropertyPage{}, err
	}
	props, err := collectProperties(rows)
	if err != nil {
		return internal.PropertyPage{}, err
	}

	return internal.PropertyPage{
		Properties: props,
		Pagination: internal.Pagination{
			Page:  f.Page,
			Limit: f.Limit,
			Total: total,
			Pages: int(math.Ceil(float64(total) / float64(f.Limit))),
		},
	}, nil
}

// GetProperty returns a property with its watchlist entry and value summary.
func (d *DB) GetProperty(id int) (*internal.PropertyDetail, error) {
	var notes, priority, watchedAt sql.NullString
	p, err := scanProperty(d.conn.QueryRow(`SELECT `+propertyColumns+`, w.notes, w.priority, w.createdAt`+propertyFrom+`
LEFT JOIN watchlists w ON w.propertyId = p.id
WHERE p.id = ?`, id), &notes, &priority, &watchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("property", id)
	}
	if err != nil {
		return nil, err
	}

	total := util.Deref(p.LandValue) + util.Deref(p.ImprovementValue)
	detail := &internal.PropertyDetail{
		StoredProperty:     p,
		TotalPropertyValue: total,
		PotentialProfit:    total - p.EstimatedRedemption,
	}
	if priority.Valid {
		entry := internal.WatchlistEntry{PropertyID: p.ID, Priority: internal.WatchPriority(priority.String), CreatedAt: watchedAt.String}
		if notes.Valid {
			entry.Notes = util.StringPtr(notes.String)
		}
		detail.Watchlist = &entry
		detail.IsWatchlisted = true
	}
	return detail, nil
}

// ExportFilter selects rows for file exports.
type ExportFilter struct {
	DatasetID int
	MinScore  *int
}

// ExportProperties returns every matching property, best score first.
func (d *DB) ExportProperties(f ExportFilter) ([]internal.StoredProperty, error) {
	where, args := PropertyFilter{DatasetID: f.DatasetID, MinScore: f.MinScore}.where()
	rows, err := d.conn.Query(`SELECT `+propertyColumns+propertyFrom+where+` ORDER BY p.investmentScore DESC, p.id ASC`, args...)
	if err != nil {
		return nil, err
	}
	return collectProperties(rows)
}
