package main

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvName(t *testing.T) {
	assert.Equal(t, "CAMSPEED_GRPC_LISTEN", envName("grpc-listen"))
	assert.Equal(t, "CAMSPEED_LISTEN", envName("listen"))
}

func TestApplyEnvOverrides(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	listenAddr := fs.String("listen", ":8080", "")
	dbFile := fs.String("db-path", "camspeed.db", "")
	debugOn := fs.Bool("debug", false, "")
	require.NoError(t, fs.Parse([]string{"-listen", ":9000"}))

	env := map[string]string{
		"CAMSPEED_LISTEN":  ":7000",
		"CAMSPEED_DB_PATH": "/var/lib/camspeed.db",
		"CAMSPEED_DEBUG":   "true",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	require.NoError(t, applyEnvOverrides(fs, lookup))
	assert.Equal(t, ":9000", *listenAddr, "command line wins over environment")
	assert.Equal(t, "/var/lib/camspeed.db", *dbFile)
	assert.True(t, *debugOn)
}

func TestApplyEnvOverrides_BadValue(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Float64("realtime", 0, "")
	require.NoError(t, fs.Parse(nil))

	err := applyEnvOverrides(fs, func(k string) (string, bool) { return "fast", k == "CAMSPEED_REALTIME" })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CAMSPEED_REALTIME")
}

func TestLoadEnvFile(t *testing.T) {
	require.NoError(t, loadEnvFile(""))
	require.NoError(t, loadEnvFile(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("CAMSPEED_TEST_ONLY=42\n"), 0o644))
	t.Setenv("CAMSPEED_TEST_ONLY", "")
	os.Unsetenv("CAMSPEED_TEST_ONLY")

	require.NoError(t, loadEnvFile(path))
	v, ok := lookupEnv("CAMSPEED_TEST_ONLY")
	assert.True(t, ok)
	assert.Equal(t, "42", v)
}
