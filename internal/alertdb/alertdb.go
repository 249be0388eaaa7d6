// Package alertdb persists the alert stream consumed by the global tracker to
// SQLite for after-the-fact review. It is an observability log, not tracker
// state: a restarted process always starts with an empty registry.
package alertdb

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/sentinel-vision/multicam/internal/alert"
	"github.com/sentinel-vision/multicam/internal/reid"
)

// DB wraps the alert log database handle.
type DB struct {
	*sql.DB
}

// NewDB opens (creating if needed) the alert log at path.
func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS alerts (
			alert_id          INTEGER PRIMARY KEY AUTOINCREMENT,
			alert_type        TEXT NOT NULL,
			camera_id         TEXT NOT NULL,
			global_id         TEXT,
			location          TEXT,
			signature         TEXT,
			event_time        DOUBLE NOT NULL,
			recorded_at       TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_alerts_global_id ON alerts(global_id);
		CREATE INDEX IF NOT EXISTS idx_alerts_event_time ON alerts(event_time);
	`)
	if err != nil {
		return nil, fmt.Errorf("create alert log schema: %w", err)
	}

	return &DB{db}, nil
}

// Record is one persisted alert row.
type Record struct {
	ID        int64      `json:"id"`
	Type      alert.Type `json:"type"`
	CameraID  string     `json:"camera_id"`
	GlobalID  string     `json:"global_id,omitempty"`
	Location  *reid.BBox `json:"location,omitempty"`
	Timestamp float64    `json:"timestamp"`
}

// RecordAlert appends one alert to the log. It satisfies the tracker's
// AlertSink interface.
func (db *DB) RecordAlert(a alert.Alert) error {
	var location interface{}
	if a.Location != nil {
		data, err := json.Marshal(a.Location)
		if err != nil {
			return fmt.Errorf("encode location: %w", err)
		}
		location = string(data)
	}
	var signature interface{}
	if len(a.Signature) > 0 {
		data, err := json.Marshal(a.Signature)
		if err != nil {
			return fmt.Errorf("encode signature: %w", err)
		}
		signature = string(data)
	}
	var globalID interface{}
	if a.GlobalID != "" {
		globalID = a.GlobalID
	}

	_, err := db.Exec(`
		INSERT INTO alerts (alert_type, camera_id, global_id, location, signature, event_time)
		VALUES (?, ?, ?, ?, ?, ?)`,
		string(a.Type), a.CameraID, globalID, location, signature, a.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// RecentAlerts returns up to limit alerts, newest first by insertion order.
func (db *DB) RecentAlerts(limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`
		SELECT alert_id, alert_type, camera_id, global_id, location, event_time
		FROM alerts ORDER BY alert_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent alerts: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// AlertsForTarget returns up to limit alerts referencing the given global id,
// oldest first.
func (db *DB) AlertsForTarget(globalID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`
		SELECT alert_id, alert_type, camera_id, global_id, location, event_time
		FROM alerts WHERE global_id = ? ORDER BY alert_id ASC LIMIT ?`, globalID, limit)
	if err != nil {
		return nil, fmt.Errorf("query alerts for target %q: %w", globalID, err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var out []Record
	for rows.Next() {
		var (
			rec      Record
			alertTyp string
			globalID sql.NullString
			location sql.NullString
		)
		if err := rows.Scan(&rec.ID, &alertTyp, &rec.CameraID, &globalID, &location, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("scan alert row: %w", err)
		}
		rec.Type = alert.Type(alertTyp)
		if globalID.Valid {
			rec.GlobalID = globalID.String
		}
		if location.Valid {
			var bbox reid.BBox
			if err := json.Unmarshal([]byte(location.String), &bbox); err != nil {
				return nil, fmt.Errorf("decode location: %w", err)
			}
			rec.Location = &bbox
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
