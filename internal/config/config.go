// Package config loads the fitctl YAML configuration.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"example.com/fitfaker/internal/batch"
	"example.com/fitfaker/internal/common"
	"example.com/fitfaker/internal/fit"
	"example.com/fitfaker/internal/rewrite"
)

// Manufacturer is a manufacturer code that may be written in YAML either as
// a number or as a profile name such as "garmin".
type Manufacturer uint16

func (m *Manufacturer) UnmarshalYAML(value *yaml.Node) error {
	s := strings.TrimSpace(value.Value)
	if n, err := strconv.ParseUint(s, 10, 16); err == nil {
		*m = Manufacturer(n)
		return nil
	}
	code, ok := fit.LookupManufacturer(s)
	if !ok {
		return fmt.Errorf("line %d: unknown manufacturer %q", value.Line, s)
	}
	*m = Manufacturer(code)
	return nil
}

type TargetConfig struct {
	Manufacturer Manufacturer `yaml:"manufacturer"`
	Product      uint16       `yaml:"product"`
}

// ProductConfig adds a display name to the product catalog.
type ProductConfig struct {
	Manufacturer Manufacturer `yaml:"manufacturer"`
	Product      uint16       `yaml:"product"`
	Name         string       `yaml:"name"`
}

type Config struct {
	Target    TargetConfig     `yaml:"target"`
	Products  []ProductConfig  `yaml:"products"`
	Suffix    string           `yaml:"suffix"`
	Workers   int              `yaml:"workers"`
	Recursive bool             `yaml:"recursive"`
	OutDir    string           `yaml:"outDir"`
	NoClobber bool             `yaml:"noClobber"`
	GzipLevel int              `yaml:"gzipLevel"`
	AuditLog  string           `yaml:"auditLog"`
	ReportDir string           `yaml:"reportDir"`
	Lang      string           `yaml:"lang"`
	Logs      common.LogConfig `yaml:"logs"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	cfg := Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Target.Manufacturer == 0 && c.Target.Product == 0 {
		c.Target.Manufacturer = Manufacturer(rewrite.DefaultTarget.Manufacturer)
		c.Target.Product = rewrite.DefaultTarget.Product
	}
	if c.Suffix == "" {
		c.Suffix = batch.DefaultSuffix
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.Lang == "" {
		c.Lang = "en"
	}
}

// Load reads path and applies defaults. Relative paths in the file are
// resolved against the file's directory when they exist there.
func Load(path string) (Config, error) {
	var cfg Config
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	baseDir := filepath.Dir(path)
	resolvePath := func(p string) string {
		p = strings.TrimSpace(p)
		if p == "" {
			return ""
		}
		if filepath.IsAbs(p) {
			return filepath.Clean(p)
		}
		candidate := filepath.Clean(filepath.Join(baseDir, p))
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		return filepath.Clean(p)
	}
	cfg.OutDir = resolvePath(cfg.OutDir)
	cfg.AuditLog = resolvePath(cfg.AuditLog)
	cfg.ReportDir = resolvePath(cfg.ReportDir)
	cfg.Logs.File = resolvePath(cfg.Logs.File)
	cfg.applyDefaults()
	return cfg, cfg.Validate()
}

// Validate checks values Load cannot default.
func (c Config) Validate() error {
	if c.Target.Product == 0 {
		return errors.New("config: target product is required when a manufacturer is set")
	}
	if strings.ContainsAny(c.Suffix, `/\`) {
		return fmt.Errorf("config: suffix %q must not contain a path separator", c.Suffix)
	}
	if c.GzipLevel < -2 || c.GzipLevel > 9 {
		return fmt.Errorf("config: gzipLevel %d out of range", c.GzipLevel)
	}
	for _, p := range c.Products {
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("config: product %d/%d has no name", p.Manufacturer, p.Product)
		}
	}
	return nil
}

// ToTarget returns the rewrite target described by the configuration.
func (c Config) ToTarget() rewrite.Target {
	return rewrite.Target{
		Manufacturer: uint16(c.Target.Manufacturer),
		Product:      c.Target.Product,
	}
}

// Catalog returns the default product table extended with configured names.
func (c Config) Catalog() fit.ProductTable {
	extra := make(map[fit.ProductKey]string, len(c.Products))
	for _, p := range c.Products {
		extra[fit.ProductKey{Manufacturer: uint16(p.Manufacturer), Product: p.Product}] = strings.TrimSpace(p.Name)
	}
	return fit.DefaultProducts.With(extra)
}
