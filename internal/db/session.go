package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/camspeed/internal/speed"
)

// ErrSessionNotFound is returned when no session has the requested id.
var ErrSessionNotFound = errors.New("session not found")

// Session records one run of the estimator against a feed, together with
// the calibration in force, so samples can be interpreted later.
type Session struct {
	ID          string              `json:"session_id"`
	StartedUnix float64             `json:"started_unix"`
	EndedUnix   *float64            `json:"ended_unix,omitempty"`
	Source      string              `json:"source"`
	SiteName    string              `json:"site_name"`
	Line        speed.ReferenceLine `json:"line"`
	FPS         float64             `json:"fps"`
	Unit        string              `json:"unit"`
}

func unixNow() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

// CreateSession assigns s a new id and start time and stores it.
func (db *DB) CreateSession(s *Session) error {
	s.ID = uuid.NewString()
	s.StartedUnix = unixNow()
	_, err := db.Exec(`
		INSERT INTO sessions (
			session_id, started_unix, source, site_name,
			line_ax, line_ay, line_bx, line_by, meters_per_pixel, fps, unit
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.StartedUnix, s.Source, s.SiteName,
		s.Line.A.X, s.Line.A.Y, s.Line.B.X, s.Line.B.Y, s.Line.MetersPerPixel, s.FPS, s.Unit,
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// EndSession stamps the session's end time.
func (db *DB) EndSession(id string) error {
	res, err := db.Exec(`UPDATE sessions SET ended_unix = ? WHERE session_id = ?`, unixNow(), id)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return nil
}

const sessionColumns = `session_id, started_unix, ended_unix, source, site_name,
	line_ax, line_ay, line_bx, line_by, meters_per_pixel, fps, unit`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var s Session
	var ended sql.NullFloat64
	if err := row.Scan(&s.ID, &s.StartedUnix, &ended, &s.Source, &s.SiteName,
		&s.Line.A.X, &s.Line.A.Y, &s.Line.B.X, &s.Line.B.Y, &s.Line.MetersPerPixel,
		&s.FPS, &s.Unit); err != nil {
		return nil, err
	}
	if ended.Valid {
		s.EndedUnix = &ended.Float64
	}
	return &s, nil
}

// GetSession returns the session with the given id.
func (db *DB) GetSession(id string) (*Session, error) {
	row := db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// ListSessions returns up to limit sessions, newest first.
func (db *DB) ListSessions(limit int) ([]Session, error) {
	rows, err := db.Query(`SELECT `+sessionColumns+` FROM sessions ORDER BY started_unix DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}
