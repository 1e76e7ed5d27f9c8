package db

import (
	"database/sql"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/camspeed/internal/speed"
	"github.com/banshee-data/camspeed/internal/units"
)

// TrackRecord is the persisted summary of an evicted track.
type TrackRecord struct {
	ID           int64    `json:"summary_id"`
	SessionID    string   `json:"session_id"`
	TrackID      int64    `json:"track_id"`
	Class        string   `json:"class"`
	FirstFrame   int64    `json:"first_frame"`
	LastFrame    int64    `json:"last_frame"`
	Observations int      `json:"observations"`
	FinalSpeed   *float64 `json:"final_speed,omitempty"`
	SampleCount  int      `json:"sample_count"`
	P50Speed     *float64 `json:"p50_speed,omitempty"`
	P85Speed     *float64 `json:"p85_speed,omitempty"`
	P95Speed     *float64 `json:"p95_speed,omitempty"`
	MaxSpeed     *float64 `json:"max_speed,omitempty"`
	Unit         string   `json:"unit"`
	RecordedUnix float64  `json:"recorded_unix"`
}

// SpeedSummary holds aggregate statistics over the samples of a session.
// Speeds are in Unit; SpeedBuckets are km/h bands.
type SpeedSummary struct {
	SessionID    string         `json:"session_id,omitempty"`
	Count        int            `json:"count"`
	Unit         string         `json:"unit,omitempty"`
	MeanSpeed    float64        `json:"mean_speed"`
	P50Speed     float64        `json:"p50_speed"`
	P85Speed     float64        `json:"p85_speed"`
	P95Speed     float64        `json:"p95_speed"`
	MaxSpeed     float64        `json:"max_speed"`
	ByClass      map[string]int `json:"by_class"`
	SpeedBuckets map[string]int `json:"speed_buckets"` // "0-20", "20-30", "30-40", "40-50", "50+"
}

// InsertTrackSummary stores an evicted track, computing percentiles over its
// raw samples at insert time.
func (db *DB) InsertTrackSummary(sessionID string, s speed.TrackSummary) (*TrackRecord, error) {
	rec := &TrackRecord{
		SessionID:    sessionID,
		TrackID:      s.TrackID,
		Class:        s.ClassLabel,
		FirstFrame:   s.FirstFrame,
		LastFrame:    s.LastFrame,
		Observations: s.Observations,
		SampleCount:  len(s.Samples),
		Unit:         s.Unit,
		RecordedUnix: unixNow(),
	}
	if s.HasSpeed {
		v := s.Speed
		rec.FinalSpeed = &v
	}
	if len(s.Samples) > 0 {
		p50, p85, p95 := SpeedPercentiles(s.Samples)
		maxSpeed := floats.Max(s.Samples)
		rec.P50Speed, rec.P85Speed, rec.P95Speed, rec.MaxSpeed = &p50, &p85, &p95, &maxSpeed
	}

	res, err := db.Exec(`
		INSERT INTO track_summaries (
			session_id, track_id, class, first_frame, last_frame, observations,
			has_speed, final_speed, sample_count, p50_speed, p85_speed, p95_speed,
			max_speed, unit, recorded_unix
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID, rec.TrackID, rec.Class, rec.FirstFrame, rec.LastFrame, rec.Observations,
		s.HasSpeed, rec.FinalSpeed, rec.SampleCount, rec.P50Speed, rec.P85Speed, rec.P95Speed,
		rec.MaxSpeed, rec.Unit, rec.RecordedUnix,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert track summary: %w", err)
	}
	if rec.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("failed to read track summary id: %w", err)
	}
	return rec, nil
}

// ListTrackSummaries returns up to limit summaries for sessionID (all
// sessions when empty), newest first.
func (db *DB) ListTrackSummaries(sessionID string, limit int) ([]TrackRecord, error) {
	query := `
		SELECT summary_id, session_id, track_id, class, first_frame, last_frame, observations,
			final_speed, sample_count, p50_speed, p85_speed, p95_speed, max_speed, unit, recorded_unix
		FROM track_summaries
		WHERE 1=1`
	args := []interface{}{}
	if sessionID != "" {
		query += " AND session_id = ?"
		args = append(args, sessionID)
	}
	query += " ORDER BY summary_id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query track summaries: %w", err)
	}
	defer rows.Close()

	var out []TrackRecord
	for rows.Next() {
		var r TrackRecord
		var final, p50, p85, p95, maxSpeed sql.NullFloat64
		if err := rows.Scan(&r.ID, &r.SessionID, &r.TrackID, &r.Class, &r.FirstFrame, &r.LastFrame,
			&r.Observations, &final, &r.SampleCount, &p50, &p85, &p95, &maxSpeed, &r.Unit, &r.RecordedUnix); err != nil {
			return nil, fmt.Errorf("failed to scan track summary: %w", err)
		}
		r.FinalSpeed = nullable(final)
		r.P50Speed = nullable(p50)
		r.P85Speed = nullable(p85)
		r.P95Speed = nullable(p95)
		r.MaxSpeed = nullable(maxSpeed)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating track summaries: %w", err)
	}
	return out, nil
}

func nullable(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return &v.Float64
}

// GetSpeedSummary computes aggregate statistics over every raw sample of
// sessionID (all sessions when empty). Percentiles are exact over samples,
// not medians of per-track percentiles. Speeds are aggregated from m/s and
// reported in the unit all matching samples share, or units.Default when the
// samples were recorded in different units.
func (db *DB) GetSpeedSummary(sessionID string) (*SpeedSummary, error) {
	query := `SELECT speed_mps, class, unit FROM speed_samples WHERE 1=1`
	args := []interface{}{}
	if sessionID != "" {
		query += " AND session_id = ?"
		args = append(args, sessionID)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples for summary: %w", err)
	}
	defer rows.Close()

	summary := &SpeedSummary{
		SessionID:    sessionID,
		ByClass:      make(map[string]int),
		SpeedBuckets: make(map[string]int),
	}
	var (
		mps       []float64
		unitsSeen []string
	)
	for rows.Next() {
		var v float64
		var class, unit string
		if err := rows.Scan(&v, &class, &unit); err != nil {
			return nil, fmt.Errorf("failed to scan sample summary row: %w", err)
		}
		mps = append(mps, v)
		unitsSeen = append(unitsSeen, unit)
		if class == "" {
			class = "unknown"
		}
		summary.ByClass[class]++
		summary.SpeedBuckets[speedBucket(v*3.6)]++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sample summary rows: %w", err)
	}

	summary.Count = len(mps)
	if summary.Count == 0 {
		return summary, nil
	}
	summary.Unit = units.Common(unitsSeen)
	speeds := make([]float64, len(mps))
	for i, v := range mps {
		speeds[i] = units.ConvertSpeed(v, summary.Unit)
	}
	summary.MeanSpeed = stat.Mean(speeds, nil)
	summary.P50Speed, summary.P85Speed, summary.P95Speed = SpeedPercentiles(speeds)
	summary.MaxSpeed = floats.Max(speeds)
	return summary, nil
}
