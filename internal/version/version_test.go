package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	oldV, oldSHA, oldT := Version, GitSHA, BuildTime
	t.Cleanup(func() { Version, GitSHA, BuildTime = oldV, oldSHA, oldT })

	assert.Equal(t, "camspeed dev (unknown, built unknown)", String())

	Version, GitSHA, BuildTime = "1.2.0", "0123456789abcdef0123", "2026-10-01T00:00:00Z"
	assert.Equal(t, "camspeed 1.2.0 (0123456789ab, built 2026-10-01T00:00:00Z)", String())
}
