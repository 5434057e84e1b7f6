package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	TableDir    string `toml:"table_dir"`
	ExposureDir string `toml:"exposure_dir"`
	LogDir      string `toml:"log_dir"`
}

// Tables controls how processing tables are stored.
type Tables struct {
	Format string `toml:"format"`
}

// Queue contains batch queue settings. Timeouts are in seconds.
type Queue struct {
	Backend         string `toml:"backend"`
	SbatchBinary    string `toml:"sbatch_binary"`
	SacctBinary     string `toml:"sacct_binary"`
	Partition       string `toml:"partition"`
	Account         string `toml:"account"`
	Reservation     string `toml:"reservation"`
	CoresPerNode    int    `toml:"cores_per_node"`
	SubmitTimeout   int    `toml:"submit_timeout"`
	PollTimeout     int    `toml:"poll_timeout"`
	PollBatchSize   int    `toml:"poll_batch_size"`
	PollConcurrency int    `toml:"poll_concurrency"`
}

// Resubmit contains the automatic resubmission policy.
type Resubmit struct {
	States               []string `toml:"states"`
	MaxSubmissionsPerRun int      `toml:"max_submissions_per_run"`
}

// Jobs controls which exposures become rows and how their command is built.
type Jobs struct {
	CommandTemplate string   `toml:"command_template"`
	ProcessObsTypes []string `toml:"process_obstypes"`
	MaxArcExpTime   float64  `toml:"max_arc_exptime"`
}

// Dependencies controls dependency resolution for new rows.
type Dependencies struct {
	AllowMissing bool `toml:"allow_missing"`
	ArcFallback  bool `toml:"arc_fallback"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for nightproc.
//
// Configuration sections by subsystem:
//   - Paths: processing table, exposure table and log directories
//   - Tables: on-disk table format
//   - Queue: batch queue binaries, placement and polling limits
//   - Resubmit: resubmittable failure states and the per-pass cap
//   - Jobs: row seeding filters and the job command template
//   - Dependencies: resolution policy for new rows
//   - Logging: log format, level, and retention
type Config struct {
	Paths        Paths        `toml:"paths"`
	Tables       Tables       `toml:"tables"`
	Queue        Queue        `toml:"queue"`
	Resubmit     Resubmit     `toml:"resubmit"`
	Jobs         Jobs         `toml:"jobs"`
	Dependencies Dependencies `toml:"dependencies"`
	Logging      Logging      `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config %s: %w", resolvedPath, err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("nightproc.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories nightproc writes to.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.TableDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// TableExtension returns the file extension for the configured table format.
func (c *Config) TableExtension() string {
	if c.Tables.Format == "sqlite" {
		return ".sqlite"
	}
	return ".csv"
}

// TablePath returns the processing table path for a night.
func (c *Config) TablePath(night int) string {
	name := "processing_table_" + strconv.Itoa(night) + c.TableExtension()
	return filepath.Join(c.Paths.TableDir, name)
}

// ExposurePath returns the exposure table path for a night. Exposure tables
// are grouped in per-month directories.
func (c *Config) ExposurePath(night int) string {
	nightStr := strconv.Itoa(night)
	month := nightStr
	if len(nightStr) >= 6 {
		month = nightStr[:6]
	}
	return filepath.Join(c.Paths.ExposureDir, month, "exposure_table_"+nightStr+".csv")
}

// SubmitTimeoutDuration returns the per-dispatch timeout.
func (c *Config) SubmitTimeoutDuration() time.Duration {
	return time.Duration(c.Queue.SubmitTimeout) * time.Second
}

// PollTimeoutDuration returns the per-poll timeout.
func (c *Config) PollTimeoutDuration() time.Duration {
	return time.Duration(c.Queue.PollTimeout) * time.Second
}

// ResubmitStatesCSV joins the configured resubmission states.
func (c *Config) ResubmitStatesCSV() string {
	return strings.Join(c.Resubmit.States, ",")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// SampleConfig returns the embedded sample configuration.
func SampleConfig() string {
	return sampleConfig
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
