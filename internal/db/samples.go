package db

import (
	"fmt"

	"github.com/banshee-data/camspeed/internal/speed"
)

// SampleRecord is a persisted speed sample.
type SampleRecord struct {
	ID             int64   `json:"sample_id"`
	SessionID      string  `json:"session_id"`
	TrackID        int64   `json:"track_id"`
	Class          string  `json:"class"`
	OpenFrame      int64   `json:"open_frame"`
	CloseFrame     int64   `json:"close_frame"`
	ElapsedSeconds float64 `json:"elapsed_s"`
	DistanceMeters float64 `json:"distance_m"`
	Speed          float64 `json:"speed"`
	Smoothed       float64 `json:"smoothed"`
	SpeedMPS       float64 `json:"speed_mps"`
	Unit           string  `json:"unit"`
	RecordedUnix   float64 `json:"recorded_unix"`
}

// InsertSample stores one engine sample under sessionID.
func (db *DB) InsertSample(sessionID string, s speed.Sample) error {
	var mps float64
	if s.ElapsedSeconds > 0 {
		mps = s.DistanceMeters / s.ElapsedSeconds
	}
	_, err := db.Exec(`
		INSERT INTO speed_samples (
			session_id, track_id, class, open_frame, close_frame,
			elapsed_s, distance_m, speed, smoothed, speed_mps, unit, recorded_unix
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, s.TrackID, s.ClassLabel, s.OpenFrame, s.CloseFrame,
		s.ElapsedSeconds, s.DistanceMeters, s.RawSpeed, s.Smoothed, mps, s.Unit, unixNow(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert speed sample: %w", err)
	}
	return nil
}

// SampleFilter narrows ListSamples. Zero values match everything.
type SampleFilter struct {
	SessionID string
	TrackID   *int64
	Limit     int
}

// ListSamples returns samples matching f, newest first.
func (db *DB) ListSamples(f SampleFilter) ([]SampleRecord, error) {
	query := `
		SELECT sample_id, session_id, track_id, class, open_frame, close_frame,
			elapsed_s, distance_m, speed, smoothed, speed_mps, unit, recorded_unix
		FROM speed_samples
		WHERE 1=1`
	args := []interface{}{}

	if f.SessionID != "" {
		query += " AND session_id = ?"
		args = append(args, f.SessionID)
	}
	if f.TrackID != nil {
		query += " AND track_id = ?"
		args = append(args, *f.TrackID)
	}
	query += " ORDER BY sample_id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query speed samples: %w", err)
	}
	defer rows.Close()

	var out []SampleRecord
	for rows.Next() {
		var r SampleRecord
		if err := rows.Scan(&r.ID, &r.SessionID, &r.TrackID, &r.Class, &r.OpenFrame, &r.CloseFrame,
			&r.ElapsedSeconds, &r.DistanceMeters, &r.Speed, &r.Smoothed, &r.SpeedMPS, &r.Unit, &r.RecordedUnix); err != nil {
			return nil, fmt.Errorf("failed to scan speed sample: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating speed samples: %w", err)
	}
	return out, nil
}
