// Package config loads the TOML configuration shared by the compiler and the
// executor. Reserved tables hold tool settings; every other top-level table is
// a section of compile-time variables addressed as SECTION:NAME.
package config

import (
	"fmt"
	"os"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// MissingPolicy decides what happens when a runtime variable is unset.
type MissingPolicy string

const (
	MissingIgnore MissingPolicy = "ignore"
	MissingWarn   MissingPolicy = "warn"
	MissingError  MissingPolicy = "error"
)

type Settings struct {
	Strict          bool          `toml:"strict"`
	MissingVariable MissingPolicy `toml:"missing_variable"`
	Schema          string        `toml:"schema"`
	IncludePaths    []string      `toml:"include_paths"`
}

type Results struct {
	Driver string `toml:"driver"`
	DSN    string `toml:"dsn"`
}

type Device struct {
	URL string `toml:"url"`
}

type Config struct {
	Settings Settings          `toml:"settings"`
	Results  Results           `toml:"results"`
	Devices  map[string]Device `toml:"devices"`

	// Operations defines command aliases: name = "device command".
	Operations map[string]string `toml:"operations"`

	sections map[string]map[string]string
}

var reserved = map[string]bool{"settings": true, "results": true, "devices": true, "operations": true}

// Default is the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Settings:   Settings{Strict: true, MissingVariable: MissingWarn},
		Devices:    map[string]Device{},
		Operations: map[string]string{},
		sections:   map[string]map[string]string{},
	}
}

// Load reads a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	cfg, err := Parse(string(data))
	if err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// Parse decodes configuration from TOML text.
func Parse(text string) (*Config, error) {
	cfg := Default()
	if _, err := toml.Decode(text, cfg); err != nil {
		return nil, errors.Wrap(err, "decode settings")
	}

	var raw map[string]any
	if _, err := toml.Decode(text, &raw); err != nil {
		return nil, errors.Wrap(err, "decode sections")
	}
	for name, v := range raw {
		table, ok := v.(map[string]any)
		if !ok || reserved[name] {
			continue
		}
		vars := make(map[string]string, len(table))
		for k, val := range table {
			vars[k] = fmt.Sprint(val)
		}
		cfg.sections[name] = vars
	}

	switch cfg.Settings.MissingVariable {
	case "":
		cfg.Settings.MissingVariable = MissingWarn
	case MissingIgnore, MissingWarn, MissingError:
	default:
		return nil, errors.Errorf("settings.missing_variable: unknown policy %q", cfg.Settings.MissingVariable)
	}
	if cfg.Devices == nil {
		cfg.Devices = map[string]Device{}
	}
	if cfg.Operations == nil {
		cfg.Operations = map[string]string{}
	}
	return cfg, nil
}

// Lookup resolves a SECTION:NAME compile-time variable.
func (c *Config) Lookup(section, name string) (string, bool) {
	vars, ok := c.sections[section]
	if !ok {
		return "", false
	}
	v, ok := vars[name]
	return v, ok
}

// Set defines a compile-time variable, creating the section if needed.
func (c *Config) Set(section, name, value string) {
	if c.sections[section] == nil {
		c.sections[section] = map[string]string{}
	}
	c.sections[section][name] = value
}

// Sections lists the variable sections in name order.
func (c *Config) Sections() []string {
	names := make([]string, 0, len(c.sections))
	for name := range c.sections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
