package config

import (
	"net/netip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/tscap/internal/ts"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
tscap:
  log:
    level: debug
    format: json
  extract:
    source: "10.0.0.1:4000"
    destination: ":5000"
    carrier_pid: 2000
    keep_fillers: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "10.0.0.1:4000", cfg.Extract.Source)
	assert.Equal(t, 2000, cfg.Extract.CarrierPID)
	assert.True(t, cfg.Extract.KeepFillers)
	assert.Equal(t, ts.PID(2000), cfg.Extract.Carrier())
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "tscap:\n  log:\n    level: info\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, -1, cfg.Extract.CarrierPID)
	assert.Equal(t, ts.PIDNull, cfg.Extract.Carrier(), "negative PID disables decapsulation")
	assert.False(t, cfg.Extract.KeepFillers)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"bad level", "tscap:\n  log:\n    level: verbose\n"},
		{"bad format", "tscap:\n  log:\n    format: xml\n"},
		{"bad source", "tscap:\n  extract:\n    source: \"not an address\"\n"},
		{"carrier PID out of range", "tscap:\n  extract:\n    carrier_pid: 8191\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yml")
	assert.Error(t, err)
}

func TestParseAddrPort(t *testing.T) {
	cases := []struct {
		in       string
		wantAddr string
		wantPort uint16
	}{
		{"", "", 0},
		{"10.1.2.3:5000", "10.1.2.3", 5000},
		{"10.1.2.3", "10.1.2.3", 0},
		{":5000", "", 5000},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseAddrPort(tc.in)
			require.NoError(t, err)
			if tc.wantAddr == "" {
				assert.False(t, got.Addr().IsValid())
			} else {
				assert.Equal(t, netip.MustParseAddr(tc.wantAddr), got.Addr())
			}
			assert.Equal(t, tc.wantPort, got.Port())
		})
	}

	_, err := ParseAddrPort("999.1.1.1:80")
	assert.Error(t, err)
}
