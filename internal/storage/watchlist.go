package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"math"

	"taxlien/internal"
	"taxlien/internal/util"
)

// Watch adds a property to the watchlist or updates its notes and priority.
func (d *DB) Watch(propertyID int, notes *string, priority internal.WatchPriority) (internal.WatchlistEntry, error) {
	if priority == "" {
		priority = internal.PriorityMedium
	}
	switch priority {
	case internal.PriorityLow, internal.PriorityMedium, internal.PriorityHigh:
	default:
		return internal.WatchlistEntry{}, fmt.Errorf("invalid priority %q", priority)
	}

	var exists int
	err := d.conn.QueryRow(`SELECT 1 FROM properties WHERE id = ?`, propertyID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return internal.WatchlistEntry{}, notFound("property", propertyID)
	}
	if err != nil {
		return internal.WatchlistEntry{}, err
	}

	if _, err := d.conn.Exec(`
INSERT INTO watchlists (propertyId, notes, priority) VALUES (?, ?, ?)
ON CONFLICT(propertyId) DO UPDATE SET notes = excluded.notes, priority = excluded.priority
`, propertyID, notes, string(priority)); err != nil {
		return internal.WatchlistEntry{}, err
	}

	entry := internal.WatchlistEntry{PropertyID: propertyID}
	var storedNotes sql.NullString
	var storedPriority string
	if err := d.conn.QueryRow(`SELECT notes, priority, createdAt FROM watchlists WHERE propertyId = ?`, propertyID).
		Scan(&storedNotes, &storedPriority, &entry.CreatedAt); err != nil {
		return internal.WatchlistEntry{}, err
	}
	if storedNotes.Valid {
		entry.Notes = util.StringPtr(storedNotes.String)
	}
	entry.Priority = internal.WatchPriority(storedPriority)
	return entry, nil
}

func (d *DB) Unwatch(propertyID int) error {
	res, err := d.conn.Exec(`DELETE FROM watchlists WHERE propertyId = ?`, propertyID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("watchlist entry for property %d: %w", propertyID, ErrNotFound)
	}
	return nil
}

// Watchlist lists watched properties, most recently added first.
func (d *DB) Watchlist(page, limit int) ([]internal.WatchedProperty, internal.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}
	var total int
	if err := d.conn.QueryRow(`SELECT COUNT(*) FROM watchlists`).Scan(&total); err != nil {
		return nil, internal.Pagination{}, err
	}

	rows, err := d.conn.Query(`SELECT `+propertyColumns+`, w.notes, w.priority, w.createdAt`+propertyFrom+`
JOIN watchlists w ON w.propertyId = p.id
ORDER BY w.createdAt DESC, w.id DESC
LIMIT ? OFFSET ?`, limit, (page-1)*limit)
	if err != nil {
		return nil, internal.Pagination{}, err
	}
	defer rows.Close()

	out := []internal.WatchedProperty{}
	for rows.Next() {
		var notes sql.NullString
		var priority, createdAt string
		p, err := scanProperty(rows, &notes, &priority, &createdAt)
		if err != nil {
			return nil, internal.Pagination{}, err
		}
		w := internal.WatchedProperty{
			StoredProperty: p,
			Watchlist:      internal.WatchlistEntry{PropertyID: p.ID, Priority: internal.WatchPriority(priority), CreatedAt: createdAt},
		}
		if notes.Valid {
			w.Watchlist.Notes = util.StringPtr(notes.String)
		}
		out = append(out, w)
	}
	pages := int(math.Ceil(float64(total) / float64(limit)))
	return out, internal.Pagination{Page: page, Limit: limit, Total: total, Pages: pages}, rows.Err()
}
