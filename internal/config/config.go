// Package config handles configuration loading using viper.
package config

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/spf13/viper"

	"firestige.xyz/tscap/internal/ts"
)

// Config is the top-level static configuration. Maps to the `tscap:` root
// key in YAML; env vars use the TSCAP_ prefix (e.g. TSCAP_LOG_LEVEL).
type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	Extract ExtractConfig `mapstructure:"extract"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug | info | warn | error
	Format string `mapstructure:"format"` // json | text
}

// ExtractConfig selects the UDP stream and decapsulation behavior.
type ExtractConfig struct {
	// Source filters by "addr", "addr:port" or ":port". Empty = any.
	Source string `mapstructure:"source"`

	// Destination filters by "addr", "addr:port" or ":port". When address
	// or port is missing the extractor locks onto the first stream found.
	Destination string `mapstructure:"destination"`

	// CarrierPID enables PID decapsulation when in 0..8190.
	CarrierPID int `mapstructure:"carrier_pid"`

	// KeepFillers keeps the null packets produced by decapsulation.
	KeepFillers bool `mapstructure:"keep_fillers"`
}

// configRoot is the top-level wrapper matching the YAML structure.
type configRoot struct {
	TSCap Config `mapstructure:"tscap"`
}

// Load loads configuration from file.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// The `tscap.` key prefix maps to TSCAP_ env vars via the replacer.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.TSCap

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		panic(err)
	}
	cfg := root.TSCap
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("tscap.log.level", "info")
	v.SetDefault("tscap.log.format", "text")
	v.SetDefault("tscap.extract.source", "")
	v.SetDefault("tscap.extract.destination", "")
	v.SetDefault("tscap.extract.carrier_pid", -1)
	v.SetDefault("tscap.extract.keep_fillers", false)
}

// Validate checks field values without applying them.
func (cfg *Config) Validate() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug/info/warn/error)", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return fmt.Errorf("invalid log format: %s (must be json/text)", cfg.Log.Format)
	}
	if _, err := ParseAddrPort(cfg.Extract.Source); err != nil {
		return fmt.Errorf("invalid source filter: %w", err)
	}
	if _, err := ParseAddrPort(cfg.Extract.Destination); err != nil {
		return fmt.Errorf("invalid destination filter: %w", err)
	}
	if cfg.Extract.CarrierPID >= int(ts.PIDNull) {
		return fmt.Errorf("invalid carrier PID: %d", cfg.Extract.CarrierPID)
	}
	return nil
}

// Carrier returns the configured carrier PID, or the null PID when
// decapsulation is disabled.
func (cfg *ExtractConfig) Carrier() ts.PID {
	if cfg.CarrierPID < 0 || cfg.CarrierPID >= int(ts.PIDNull) {
		return ts.PIDNull
	}
	return ts.PID(cfg.CarrierPID)
}

// ParseAddrPort parses a partial socket address: "addr:port", a bare
// "addr" or a bare ":port". An empty string yields the zero value, which
// the extractor treats as a wildcard.
func ParseAddrPort(s string) (netip.AddrPort, error) {
	if s == "" {
		return netip.AddrPort{}, nil
	}
	if strings.HasPrefix(s, ":") {
		ap, err := netip.ParseAddrPort("0.0.0.0" + s)
		if err != nil {
			return netip.AddrPort{}, err
		}
		return netip.AddrPortFrom(netip.Addr{}, ap.Port()), nil
	}
	if !strings.Contains(s, ":") {
		addr, err := netip.ParseAddr(s)
		if err != nil {
			return netip.AddrPort{}, err
		}
		return netip.AddrPortFrom(addr, 0), nil
	}
	return netip.ParseAddrPort(s)
}
