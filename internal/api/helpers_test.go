package api

import (
	"fmt"
	"log"

	"github.com/banshee-data/camspeed/internal/monitoring"
)

// captureLogs redirects monitoring output into dst and returns a restore func.
func captureLogs(dst *[]string) func() {
	monitoring.SetLogger(func(format string, v ...interface{}) {
		*dst = append(*dst, fmt.Sprintf(format, v...))
	})
	return func() { monitoring.SetLogger(log.Printf) }
}
