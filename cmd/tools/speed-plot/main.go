// Command speed-plot renders PNG speed plots for a recorded session.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/banshee-data/camspeed/internal/db"
	"github.com/banshee-data/camspeed/internal/report"
	"github.com/banshee-data/camspeed/internal/security"
)

// Config holds the tool's settings.
type Config struct {
	DBPath    string
	SessionID string // Latest session when empty
	OutputDir string
	Bins      int
	Limit     int
}

func main() {
	var cfg Config
	flag.StringVar(&cfg.DBPath, "db-path", "camspeed.db", "Path to the sqlite database")
	flag.StringVar(&cfg.SessionID, "session", "", "Session id to plot (latest when empty, \"all\" for every session)")
	flag.StringVar(&cfg.OutputDir, "out", "plots", "Output directory")
	flag.IntVar(&cfg.Bins, "bins", report.DefaultBins, "Histogram bins")
	flag.IntVar(&cfg.Limit, "limit", 100000, "Maximum samples to plot")
	flag.Parse()

	if _, err := os.Stat(cfg.DBPath); err != nil {
		log.Fatalf("database %s: %v", cfg.DBPath, err)
	}
	database, err := db.OpenDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	paths, err := run(database, cfg)
	if err != nil {
		log.Fatalf("speed-plot: %v", err)
	}
	for _, p := range paths {
		fmt.Println(p)
	}
}

// run resolves the session, loads its samples and writes the plots.
func run(database *db.DB, cfg Config) ([]string, error) {
	title, sessionID, err := resolveSession(database, cfg.SessionID)
	if err != nil {
		return nil, err
	}
	samples, err := database.ListSamples(db.SampleFilter{SessionID: sessionID, Limit: cfg.Limit})
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(cfg.OutputDir, security.SanitizeFilename(title))
	if err := security.WithinDirectory(dir, cfg.OutputDir); err != nil {
		return nil, err
	}
	log.Printf("plotting %d samples from %s into %s", len(samples), title, dir)
	return report.Generate(samples, dir, report.Options{Title: title, Bins: cfg.Bins})
}

// resolveSession returns a plot title and the session filter for id.
func resolveSession(database *db.DB, id string) (title, sessionID string, err error) {
	switch id {
	case "all":
		return "all sessions", "", nil
	case "":
		sessions, err := database.ListSessions(1)
		if err != nil {
			return "", "", err
		}
		if len(sessions) == 0 {
			return "", "", fmt.Errorf("no sessions recorded")
		}
		return sessionTitle(&sessions[0]), sessions[0].ID, nil
	default:
		s, err := database.GetSession(id)
		if err != nil {
			return "", "", err
		}
		return sessionTitle(s), s.ID, nil
	}
}

func sessionTitle(s *db.Session) string {
	if s.SiteName != "" {
		return s.SiteName
	}
	return s.ID
}
