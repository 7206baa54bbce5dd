// Package config reads the emulator's whitespace-tokenized key/value
// configuration file into a Config struct, applying the documented
// defaults and echoing unrecognised keys rather than rejecting them.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/adrg/xdg"
)

// Config holds every recognised tuning knob, pre-populated with the
// documented defaults.
type Config struct {
	NumCPU         int
	Scheduler      string // "fcfs" | "rr"
	QuantumCycles  int
	BatchProcessFreq int
	MinIns         int
	MaxIns         int
	DelayPerExecMs int
	MaxOverallMem  int
	MemPerFrame    int
	MinMemPerProc  int
	MaxMemPerProc  int
}

// Default returns the documented out-of-the-box configuration.
func Default() Config {
	return Config{
		NumCPU:           4,
		Scheduler:        "fcfs",
		QuantumCycles:    5,
		BatchProcessFreq: 1,
		MinIns:           5,
		MaxIns:           10,
		DelayPerExecMs:   100,
		MaxOverallMem:    16384,
		MemPerFrame:      16,
		MinMemPerProc:    64,
		MaxMemPerProc:    4096,
	}
}

// DefaultPath returns the XDG-conventional config file location used
// when the console isn't given an explicit `-config` flag, grounded on
// arctir-proctor's own use of `xdg.ConfigHome` for its tool config.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, "csopesy", "config.txt")
}

// Load reads path and overlays recognised key/value pairs onto the
// defaults. A missing or unreadable file is logged once and returned
// as an error together with the defaults; the caller decides whether to
// continue. A value that does not parse or is below its key's minimum
// is logged and skipped, leaving that key at its default while the
// other keys still apply.
func Load(path string) (Config, error) {
	cfg := Default()
	f, err := os.Open(path)
	if err != nil {
		slog.Warn("config: could not open file, using defaults", "path", path, "err", err)
		return cfg, fmt.Errorf("config: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var fields []string
	for scanner.Scan() {
		fields = append(fields, strings.Fields(scanner.Text())...)
	}
	if err := scanner.Err(); err != nil {
		slog.Warn("config: read error, using defaults so far", "path", path, "err", err)
		return cfg, fmt.Errorf("config: %w", err)
	}

	for i := 0; i+1 < len(fields); i += 2 {
		key, val := fields[i], fields[i+1]
		if err := cfg.set(key, val); err != nil {
			slog.Warn("config: skipping bad value", "key", key, "value", val, "err", err)
		}
	}
	return cfg, nil
}

func (c *Config) set(key, val string) error {
	switch key {
	case "num-cpu":
		return c.setInt(&c.NumCPU, val, 1)
	case "scheduler":
		if val != "fcfs" && val != "rr" {
			return fmt.Errorf("scheduler must be fcfs or rr")
		}
		c.Scheduler = val
	case "quantum-cycles":
		return c.setInt(&c.QuantumCycles, val, 1)
	case "batch-process-freq":
		return c.setInt(&c.BatchProcessFreq, val, 1)
	case "min-ins":
		return c.setInt(&c.MinIns, val, 1)
	case "max-ins":
		return c.setInt(&c.MaxIns, val, 1)
	case "delay-per-exec":
		return c.setInt(&c.DelayPerExecMs, val, 0)
	case "max-overall-mem":
		return c.setInt(&c.MaxOverallMem, val, 1)
	case "mem-per-frame":
		return c.setInt(&c.MemPerFrame, val, 1)
	case "min-mem-per-proc":
		return c.setInt(&c.MinMemPerProc, val, 1)
	case "max-mem-per-proc":
		return c.setInt(&c.MaxMemPerProc, val, 1)
	default:
		// Unknown keys are accepted and echoed, not rejected.
		slog.Debug("config: unrecognised key", "key", key, "value", val)
	}
	return nil
}

func (c *Config) setInt(dst *int, val string, min int) error {
	n, err := strconv.Atoi(val)
	if err != nil {
		return err
	}
	if n < min {
		return fmt.Errorf("value %d below minimum %d", n, min)
	}
	*dst = n
	return nil
}
