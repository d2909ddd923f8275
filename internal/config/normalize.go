package config

import (
	"fmt"
	"strings"
)

// Normalize fills unset fields with defaults and expands ~ in path fields.
// Load applies it automatically; configs built in code go through it when
// handed to the engine.
func (c *Config) Normalize() error {
	var err error
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = defaultDataDir
	}
	if c.DataDir, err = expandPath(c.DataDir); err != nil {
		return fmt.Errorf("data_dir: %w", err)
	}
	if strings.TrimSpace(c.LogDir) == "" {
		c.LogDir = defaultLogDir
	}
	if c.LogDir, err = expandPath(c.LogDir); err != nil {
		return fmt.Errorf("log_dir: %w", err)
	}

	c.DatabaseFile = strings.TrimSpace(c.DatabaseFile)
	if c.DatabaseFile == "" {
		c.DatabaseFile = defaultDatabaseFile
	}

	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	if c.LogFormat == "" {
		c.LogFormat = defaultLogFormat
	}
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}

	if c.WorkerGraceSeconds <= 0 {
		c.WorkerGraceSeconds = defaultWorkerGraceSeconds
	}
	return nil
}
