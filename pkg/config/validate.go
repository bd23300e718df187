package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
)

// ValidationError represents a single validation error with context.
type ValidationError struct {
	Path    string // e.g., "queue.overflow"
	Message string // e.g., "invalid value"
	Hint    string // e.g., "allowed values: drop_oldest, reject"
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s; %s", e.Path, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Validate performs comprehensive validation of the entire config.
// It aggregates all errors and returns them, allowing the caller to print all issues at once.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateLogging()...)
	errs = append(errs, c.validateQueue()...)
	errs = append(errs, c.validateEngine()...)
	errs = append(errs, c.validateClient()...)
	errs = append(errs, c.validateGateway()...)

	return errs
}

func (c *Config) validateLogging() []error {
	var errs []error
	log := c.Logging

	// Validate level
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[log.Level] {
		errs = append(errs, ValidationError{
			Path:    "logging.level",
			Message: fmt.Sprintf("invalid value %q", log.Level),
			Hint:    "allowed values: debug, info, warn, error",
		})
	}

	// Validate format
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[log.Format] {
		errs = append(errs, ValidationError{
			Path:    "logging.format",
			Message: fmt.Sprintf("invalid value %q", log.Format),
			Hint:    "allowed values: json, console",
		})
	}

	// Validate output_file
	if log.OutputFile != "" {
		dir := filepath.Dir(log.OutputFile)
		if dir != "" && dir != "." {
			if err := validateDirWritable(dir); err != nil {
				errs = append(errs, ValidationError{
					Path:    "logging.output_file",
					Message: fmt.Sprintf("parent directory not writable: %v", err),
				})
			}
		}
	}

	return errs
}

func (c *Config) validateQueue() []error {
	var errs []error
	q := c.Queue

	if q.Capacity < 0 {
		errs = append(errs, ValidationError{
			Path:    "queue.capacity",
			Message: fmt.Sprintf("must be >= 0; got %d", q.Capacity),
			Hint:    "0 means unbounded",
		})
	}

	validOverflow := map[string]bool{"drop_oldest": true, "reject": true}
	if q.Capacity > 0 && !validOverflow[q.Overflow] {
		errs = append(errs, ValidationError{
			Path:    "queue.overflow",
			Message: fmt.Sprintf("invalid value %q", q.Overflow),
			Hint:    "allowed values: drop_oldest, reject",
		})
	}

	return errs
}

func (c *Config) validateEngine() []error {
	var errs []error
	if c.Engine.BufferSize < 1 {
		errs = append(errs, ValidationError{
			Path:    "engine.buffer_size",
			Message: fmt.Sprintf("must be >= 1; got %d", c.Engine.BufferSize),
		})
	}
	return errs
}

func (c *Config) validateClient() []error {
	var errs []error
	if c.Client.CloseTimeout <= 0 {
		errs = append(errs, ValidationError{
			Path:    "client.close_timeout",
			Message: "must be positive",
			Hint:    "e.g. 5s",
		})
	}
	return errs
}

func (c *Config) validateGateway() []error {
	var errs []error
	gw := c.Gateway

	if err := validateListenAddr(gw.ListenAddr); err != nil {
		errs = append(errs, ValidationError{
			Path:    "gateway.listen_addr",
			Message: err.Error(),
			Hint:    "expected [host]:port",
		})
	}
	if gw.WriteTimeout <= 0 {
		errs = append(errs, ValidationError{
			Path:    "gateway.write_timeout",
			Message: "must be positive",
		})
	}
	if gw.PingInterval < 0 {
		errs = append(errs, ValidationError{
			Path:    "gateway.ping_interval",
			Message: "must be >= 0",
			Hint:    "0 disables pings",
		})
	}
	if gw.RateLimitPerMinute < 0 {
		errs = append(errs, ValidationError{
			Path:    "gateway.rate_limit_per_minute",
			Message: "must be >= 0",
			Hint:    "0 disables rate limiting",
		})
	}
	if gw.RateLimitPerMinute > 0 && gw.RateLimitBurst < 1 {
		errs = append(errs, ValidationError{
			Path:    "gateway.rate_limit_burst",
			Message: "must be >= 1 when rate limiting is enabled",
		})
	}

	return errs
}

// Helper validation functions

func validateDirWritable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("cannot access directory: %v", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory")
	}

	// Try to write a test file
	testFile := filepath.Join(path, ".write_test")
	if err := os.WriteFile(testFile, []byte(""), 0644); err != nil {
		return fmt.Errorf("directory not writable: %v", err)
	}
	os.Remove(testFile)

	return nil
}

func validateListenAddr(addr string) error {
	if addr == "" {
		return fmt.Errorf("must not be empty")
	}
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid address: %v", err)
	}
	portNum, err := strconv.Atoi(port)
	if err != nil || portNum < 0 || portNum > 65535 {
		return fmt.Errorf("port must be a number between 0 and 65535; got %q", port)
	}
	return nil
}
