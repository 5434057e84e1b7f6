package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTables()
	c.normalizeQueue()
	c.normalizeResubmit()
	c.normalizeJobs()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if strings.TrimSpace(c.Paths.TableDir) == "" || c.Paths.TableDir == defaultTableDir {
		if value, ok := os.LookupEnv("NIGHTPROC_TABLE_DIR"); ok && strings.TrimSpace(value) != "" {
			c.Paths.TableDir = strings.TrimSpace(value)
		}
	}
	if strings.TrimSpace(c.Paths.ExposureDir) == "" || c.Paths.ExposureDir == defaultExposureDir {
		if value, ok := os.LookupEnv("NIGHTPROC_EXPOSURE_DIR"); ok && strings.TrimSpace(value) != "" {
			c.Paths.ExposureDir = strings.TrimSpace(value)
		}
	}
	var err error
	if c.Paths.TableDir, err = expandPath(c.Paths.TableDir); err != nil {
		return fmt.Errorf("paths.table_dir: %w", err)
	}
	if c.Paths.ExposureDir, err = expandPath(c.Paths.ExposureDir); err != nil {
		return fmt.Errorf("paths.exposure_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeTables() {
	c.Tables.Format = strings.ToLower(strings.TrimSpace(c.Tables.Format))
	if c.Tables.Format == "" {
		c.Tables.Format = defaultTableFormat
	}
}

func (c *Config) normalizeQueue() {
	c.Queue.Backend = strings.ToLower(strings.TrimSpace(c.Queue.Backend))
	if c.Queue.Backend == "" {
		c.Queue.Backend = defaultQueueBackend
	}
	c.Queue.SbatchBinary = strings.TrimSpace(c.Queue.SbatchBinary)
	if c.Queue.SbatchBinary == "" {
		c.Queue.SbatchBinary = defaultSbatchBinary
	}
	c.Queue.SacctBinary = strings.TrimSpace(c.Queue.SacctBinary)
	if c.Queue.SacctBinary == "" {
		c.Queue.SacctBinary = defaultSacctBinary
	}
	c.Queue.Partition = strings.TrimSpace(c.Queue.Partition)
	c.Queue.Account = strings.TrimSpace(c.Queue.Account)
	c.Queue.Reservation = strings.TrimSpace(c.Queue.Reservation)
}

func (c *Config) normalizeResubmit() {
	states := make([]string, 0, len(c.Resubmit.States))
	seen := make(map[string]struct{}, len(c.Resubmit.States))
	for _, state := range c.Resubmit.States {
		normalized := strings.ToUpper(strings.TrimSpace(state))
		if normalized == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		states = append(states, normalized)
	}
	c.Resubmit.States = states
}

func (c *Config) normalizeJobs() {
	c.Jobs.CommandTemplate = strings.TrimSpace(c.Jobs.CommandTemplate)
	if c.Jobs.CommandTemplate == "" {
		c.Jobs.CommandTemplate = defaultCommandTemplate
	}
	obstypes := make([]string, 0, len(c.Jobs.ProcessObsTypes))
	for _, obstype := range c.Jobs.ProcessObsTypes {
		if normalized := strings.ToLower(strings.TrimSpace(obstype)); normalized != "" {
			obstypes = append(obstypes, normalized)
		}
	}
	if len(obstypes) == 0 {
		obstypes = append(obstypes, defaultProcessObsTypes...)
	}
	c.Jobs.ProcessObsTypes = obstypes
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
