// Package config loads the small, static set of knobs this process needs at
// startup: where the control socket lives, which addresses to bind on boot,
// the sweep interval, and how to build the logger. There is no poll loop, no
// subscriber callback, no hot-reload — mapping and listener changes happen
// at runtime through the control socket, not by editing this file.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// LoggingConfig controls how internal/logging builds the process logger.
type LoggingConfig struct {
	// Level is one of: debug, info, warn, error.
	Level string
	// Format is one of: json, text.
	Format string
	// Output is one of: stderr, stdout, discard; or a file path.
	Output string
	// AddSource enables source file/line reporting (slightly higher overhead).
	AddSource bool
}

// Config is the full set of static startup parameters.
type Config struct {
	// ControlSocketPath is where the admin control listener binds.
	ControlSocketPath string

	// Listeners lists the addresses to bind on startup via Manager.MkListener.
	// Operators can add or remove more at runtime over the control socket.
	Listeners []string

	// SweepInterval overrides the sweeper's cadence. Zero means the default
	// (60s, per the routing table's design). Read once at startup from the
	// config file's sweep_interval_ms; never hot-reloaded.
	SweepInterval time.Duration

	// RoutingWasmParserPath, if set, loads an additional WASM-backed
	// HostParser chained after the built-in modern/legacy handshake parsers
	// as a fallback for connections the mandatory parse can't classify.
	RoutingWasmParserPath string

	Logging LoggingConfig
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		ControlSocketPath: defaultSocketPath(),
		Listeners:         []string{"0.0.0.0:25565"},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stderr",
		},
	}
}

type fileConfig struct {
	ControlSocketPath     string   `yaml:"control_socket_path" toml:"control_socket_path"`
	Listeners             []string `yaml:"listeners" toml:"listeners"`
	SweepIntervalMs       int      `yaml:"sweep_interval_ms" toml:"sweep_interval_ms"`
	RoutingWasmParserPath string   `yaml:"routing_wasm_parser_path" toml:"routing_wasm_parser_path"`
	Logging               *struct {
		Level     string `yaml:"level" toml:"level"`
		Format    string `yaml:"format" toml:"format"`
		Output    string `yaml:"output" toml:"output"`
		AddSource bool   `yaml:"add_source" toml:"add_source"`
	} `yaml:"logging" toml:"logging"`
}

// Load reads a TOML or YAML config file at path and overlays it onto Default().
// A missing path is not an error: the caller gets the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var fc fileConfig
	if err := unmarshalConfigFile(path, data, &fc); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if strings.TrimSpace(fc.ControlSocketPath) != "" {
		cfg.ControlSocketPath = fc.ControlSocketPath
	}
	if len(fc.Listeners) > 0 {
		cfg.Listeners = append([]string{}, fc.Listeners...)
	}
	if fc.SweepIntervalMs > 0 {
		cfg.SweepInterval = time.Duration(fc.SweepIntervalMs) * time.Millisecond
	}
	if strings.TrimSpace(fc.RoutingWasmParserPath) != "" {
		cfg.RoutingWasmParserPath = fc.RoutingWasmParserPath
	}
	if fc.Logging != nil {
		if strings.TrimSpace(fc.Logging.Level) != "" {
			cfg.Logging.Level = fc.Logging.Level
		}
		if strings.TrimSpace(fc.Logging.Format) != "" {
			cfg.Logging.Format = fc.Logging.Format
		}
		if strings.TrimSpace(fc.Logging.Output) != "" {
			cfg.Logging.Output = fc.Logging.Output
		}
		cfg.Logging.AddSource = fc.Logging.AddSource
	}

	return cfg, nil
}

func unmarshalConfigFile(path string, data []byte, dst any) error {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		return dec.Decode(dst)
	case ".toml":
		md, err := toml.Decode(string(data), dst)
		if err != nil {
			return err
		}
		if undec := md.Undecoded(); len(undec) > 0 {
			return fmt.Errorf("unknown fields: %v", undec)
		}
		return nil
	default:
		return fmt.Errorf("unsupported config extension %q (expected .toml or .yaml/.yml)", ext)
	}
}

// defaultSocketPath picks a fixed system path in a release build, or a
// local relative path otherwise.
func defaultSocketPath() string {
	if releaseBuild {
		return "/var/run/mcprox.sock"
	}
	return "mcprox.sock"
}
