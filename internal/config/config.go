// Package config defines the evodispatch process configuration,
// mirroring the teacher's internal/hub/config and internal/worker/config
// shape: a Config struct, a DefineFlags constructor, a Validate that
// creates the data directory, and path-helper methods.
//
// The dispatcher role additionally layers an optional YAML file and the
// environment over its flags via koanf, since it is the long-running
// supervisor process and the one role with an operational config file
// (flags stay highest precedence so an operator override always wins).
package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds the dispatcher supervisor's runtime configuration.
type Config struct {
	DataDir    string
	AdminAddr  string
	ConfigFile string

	ProbeInterval   time.Duration
	ConnectTimeout  time.Duration
	ReadIdleTimeout time.Duration
	RetryAttempts   int
	RetrySpacing    time.Duration
}

// DefineFlags registers command-line flags for dispatcher configuration.
// Call flag.Parse() separately after defining all flags.
func DefineFlags() *Config {
	c := &Config{}
	flag.StringVar(&c.DataDir, "data-dir", defaultDataDir(), "data directory")
	flag.StringVar(&c.AdminAddr, "admin-addr", ":9090", "admin listen address (/metrics)")
	flag.StringVar(&c.ConfigFile, "config", "", "optional YAML config file, layered under flags and env")
	flag.DurationVar(&c.ProbeInterval, "probe-interval", 5*time.Minute, "liveness probe interval per device")
	flag.DurationVar(&c.ConnectTimeout, "connect-timeout", 5*time.Second, "appliance connect budget")
	flag.DurationVar(&c.ReadIdleTimeout, "read-idle-timeout", 5*time.Second, "appliance read-idle budget")
	flag.IntVar(&c.RetryAttempts, "retry-attempts", 5, "bounded retry attempts per transport phase")
	flag.DurationVar(&c.RetrySpacing, "retry-spacing", 1*time.Second, "spacing between transport retries")
	return c
}

// Load layers env (EVODISPATCH_* prefix) and, if set, a YAML file over
// the flag-parsed values already in c, with the flags kept as the
// highest-precedence source: koanf's confmap provider seeds the merge
// from c's current (flag) values, file and env are merged on top, then
// any field an operator actually passed on the command line is
// re-applied so CLI always wins.
func (c *Config) Load() error {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(map[string]any{
		"data-dir":          c.DataDir,
		"admin-addr":        c.AdminAddr,
		"probe-interval":    c.ProbeInterval.String(),
		"connect-timeout":   c.ConnectTimeout.String(),
		"read-idle-timeout": c.ReadIdleTimeout.String(),
		"retry-attempts":    c.RetryAttempts,
		"retry-spacing":     c.RetrySpacing.String(),
	}, "."), nil); err != nil {
		return fmt.Errorf("seed config defaults: %w", err)
	}

	if c.ConfigFile != "" {
		if err := k.Load(file.Provider(c.ConfigFile), yaml.Parser()); err != nil {
			return fmt.Errorf("load config file %s: %w", c.ConfigFile, err)
		}
	}

	if err := k.Load(env.Provider("EVODISPATCH_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "EVODISPATCH_")), "_", "-")
	}), nil); err != nil {
		return fmt.Errorf("load env config: %w", err)
	}

	merged := &Config{
		DataDir:   k.String("data-dir"),
		AdminAddr: k.String("admin-addr"),
		RetryAttempts: func() int {
			if n := k.Int("retry-attempts"); n > 0 {
				return n
			}
			return c.RetryAttempts
		}(),
	}
	var err error
	if merged.ProbeInterval, err = parseDurationFallback(k.String("probe-interval"), c.ProbeInterval); err != nil {
		return err
	}
	if merged.ConnectTimeout, err = parseDurationFallback(k.String("connect-timeout"), c.ConnectTimeout); err != nil {
		return err
	}
	if merged.ReadIdleTimeout, err = parseDurationFallback(k.String("read-idle-timeout"), c.ReadIdleTimeout); err != nil {
		return err
	}
	if merged.RetrySpacing, err = parseDurationFallback(k.String("retry-spacing"), c.RetrySpacing); err != nil {
		return err
	}

	applyFlagOverrides(c, merged)
	*c = *merged
	return nil
}

// applyFlagOverrides re-applies any value an operator explicitly set on
// the command line over the file/env-merged result, so flags remain the
// highest-precedence source.
func applyFlagOverrides(flagged, merged *Config) {
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if set["data-dir"] {
		merged.DataDir = flagged.DataDir
	}
	if set["admin-addr"] {
		merged.AdminAddr = flagged.AdminAddr
	}
	if set["probe-interval"] {
		merged.ProbeInterval = flagged.ProbeInterval
	}
	if set["connect-timeout"] {
		merged.ConnectTimeout = flagged.ConnectTimeout
	}
	if set["read-idle-timeout"] {
		merged.ReadIdleTimeout = flagged.ReadIdleTimeout
	}
	if set["retry-attempts"] {
		merged.RetryAttempts = flagged.RetryAttempts
	}
	if set["retry-spacing"] {
		merged.RetrySpacing = flagged.RetrySpacing
	}
}

func parseDurationFallback(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	return d, nil
}

// Validate checks the configuration values and ensures required
// directories exist.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data-dir is required")
	}
	if err := os.MkdirAll(c.DataDir, 0o750); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	if err := os.MkdirAll(c.JournalDir(), 0o750); err != nil {
		return fmt.Errorf("create journal dir: %w", err)
	}
	return nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "evodispatch")
	}
	return filepath.Join(home, ".config", "evodispatch")
}

// DBPath returns the path to the source-of-truth SQLite database
// (devices, banners, hardware) the registry loads from at startup.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "evodispatch.db")
}

// QueueDBPath returns the path to the command-queue SQLite database.
func (c *Config) QueueDBPath() string {
	return filepath.Join(c.DataDir, "queue.db")
}

// JournalDir returns the directory holding one active-message journal
// file per device.
func (c *Config) JournalDir() string {
	return filepath.Join(c.DataDir, "journal")
}

// CGIConfig holds the CGI query endpoint's runtime configuration. It is
// deliberately smaller than Config: the CGI process is request-scoped
// and has no retry/probe behavior of its own to tune, only where to
// listen and which data directory's queue/journal/DB it reads.
type CGIConfig struct {
	DataDir    string
	ListenAddr string
}

// DefineCGIFlags registers command-line flags for the CGI process.
func DefineCGIFlags() *CGIConfig {
	c := &CGIConfig{}
	flag.StringVar(&c.DataDir, "data-dir", defaultDataDir(), "data directory (shared with the dispatcher)")
	flag.StringVar(&c.ListenAddr, "addr", ":8081", "listen address")
	return c
}

// Validate checks the CGI configuration.
func (c *CGIConfig) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("addr is required")
	}
	if _, err := os.Stat(c.DataDir); err != nil {
		return fmt.Errorf("data dir %s: %w", c.DataDir, err)
	}
	return nil
}

// DBPath returns the path to the source-of-truth SQLite database.
func (c *CGIConfig) DBPath() string {
	return filepath.Join(c.DataDir, "evodispatch.db")
}

// QueueDBPath returns the path to the command-queue SQLite database.
func (c *CGIConfig) QueueDBPath() string {
	return filepath.Join(c.DataDir, "queue.db")
}

// JournalDir returns the directory holding per-device journal files.
func (c *CGIConfig) JournalDir() string {
	return filepath.Join(c.DataDir, "journal")
}
