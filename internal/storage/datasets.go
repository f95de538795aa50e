package storage

import (
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"taxlien/internal"
)

// CreateDataset opens a dataset in the processing state and returns its id.
func (d *DB) CreateDataset(filename, source string, totalProperties int, mapping internal.ColumnMapping, report internal.ValidationReport) (internal.DatasetRow, error) {
	mappingJSON, _ := json.Marshal(mapping)
	reportJSON, _ := json.Marshal(report)
	uid := uuid.NewString()
	res, err := d.conn.Exec(`
INSERT INTO datasets (uid, filename, source, totalProperties, status, columnMappingJson, reportJson)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, uid, filename, source, totalProperties, string(internal.DatasetProcessing), string(mappingJSON), string(reportJSON))
	if err != nil {
		return internal.DatasetRow{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return internal.DatasetRow{}, err
	}
	row, err := d.GetDataset(int(id))
	if err != nil {
		return internal.DatasetRow{}, err
	}
	return *row, nil
}

func (d *DB) UpdateDatasetStatus(id int, status internal.DatasetStatus, processed int) error {
	res, err := d.conn.Exec(`UPDATE datasets SET status = ?, processedProperties = ? WHERE id = ?`, string(status), processed, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("dataset", id)
	}
	return nil
}

const datasetColumns = `id, uid, filename, source, uploadDate, totalProperties, processedProperties, status`

func scanDataset(s interface{ Scan(...any) error }, extra ...any) (internal.DatasetRow, error) {
	var row internal.DatasetRow
	var status string
	dest := []any{&row.ID, &row.UID, &row.Filename, &row.Source, &row.UploadDate, &row.TotalProperties, &row.ProcessedProperties, &status}
	err := s.Scan(append(dest, extra...)...)
	row.Status = internal.DatasetStatus(status)
	return row, err
}

// GetDataset returns ErrNotFound for unknown ids.
func (d *DB) GetDataset(id int) (*internal.DatasetRow, error) {
	var mappingJSON, reportJSON string
	row, err := scanDataset(d.conn.QueryRow(`SELECT `+datasetColumns+`, columnMappingJson, reportJson FROM datasets WHERE id = ?`, id), &mappingJSON, &reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("dataset", id)
	}
	if err != nil {
		return nil, err
	}
	_ = json.Unmarshal([]byte(mappingJSON), &row.Mapping)
	var report internal.ValidationReport
	if json.Unmarshal([]byte(reportJSON), &report) == nil {
		row.Report = &report
	}
	return &row, nil
}

// ListDatasets returns datasets newest first.
func (d *DB) ListDatasets() ([]internal.DatasetRow, error) {
	rows, err := d.conn.Query(`SELECT ` + datasetColumns + ` FROM datasets ORDER BY uploadDate DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []internal.DatasetRow{}
	for rows.Next() {
		row, err := scanDataset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// DeleteDataset removes a dataset with its properties, their watchlist entries and cached analyses.
func (d *DB) DeleteDataset(id int) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM watchlists WHERE propertyId IN (SELECT id FROM properties WHERE datasetId = ?)`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM properties WHERE datasetId = ?`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM analysis_cache WHERE datasetId = ?`, id); err != nil {
		return err
	}
	res, err := tx.Exec(`DELETE FROM datasets WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("dataset", id)
	}
	return tx.Commit()
}

// PutAnalysis caches a computed analysis for a dataset, replacing any previous one of that kind.
func (d *DB) PutAnalysis(datasetID int, kind string, result any) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return err
	}
	_, err = d.conn.Exec(`
INSERT INTO analysis_cache (datasetId, analysisType, resultJson) VALUES (?, ?, ?)
ON CONFLICT(datasetId, analysisType) DO UPDATE SET resultJson = excluded.resultJson, createdAt = CURRENT_TIMESTAMP
`, datasetID, kind, string(payload))
	return err
}

// GetAnalysis decodes a cached analysis into out. It reports false when nothing is cached.
func (d *DB) GetAnalysis(datasetID int, kind string, out any) (bool, error) {
	var payload string
	err := d.conn.QueryRow(`SELECT resultJson FROM analysis_cache WHERE datasetId = ? AND analysisType = ?`, datasetID, kind).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal([]byte(payload), out)
}
