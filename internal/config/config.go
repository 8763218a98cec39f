package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"wind-hindcast/internal/data"
	"wind-hindcast/internal/hindcast"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk run configuration (YAML).
type Config struct {
	// Relative input paths are resolved against the config file directory
	// when the file exists there, otherwise against the working directory.
	SitesFile       string `yaml:"sites_file"`
	PowerCurvesFile string `yaml:"power_curves_file"`
	TurbineClass    string `yaml:"turbine_class"`

	// Inclusive dates, YYYY-MM-DD.
	StartDate string `yaml:"start_date"`
	EndDate   string `yaml:"end_date"`

	Output    OutputConfig    `yaml:"output"`
	Source    SourceConfig    `yaml:"source"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type OutputConfig struct {
	TableFile   string `yaml:"table_file"`
	MissingFile string `yaml:"missing_file"`
}

type SourceConfig struct {
	BaseURL     string        `yaml:"base_url"`
	BBox        *data.BBox    `yaml:"bbox"`
	UVar        string        `yaml:"u_var"`
	VVar        string        `yaml:"v_var"`
	HeightIndex *int          `yaml:"height_index"`
	Timeout     time.Duration `yaml:"timeout"`
}

type RateLimitConfig struct {
	Every    int           `yaml:"every"`
	Cooldown time.Duration `yaml:"cooldown"`
}

// Environment variables applied by ApplyEnv.
const (
	EnvRAPBaseURL      = "RAP_BASE_URL"
	EnvPowerCurvesFile = "POWER_CURVES_FILE"
	EnvTurbineClass    = "TURBINE_CLASS"
)

func Load(path string) (*Config, error) {
	c, err := LoadUnchecked(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadUnchecked loads the config and resolves input paths, but does not
// validate it. Useful when CLI flags are merged in afterwards.
func LoadUnchecked(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	dir := filepath.Dir(path)
	c.SitesFile = resolvePath(dir, c.SitesFile)
	c.PowerCurvesFile = resolvePath(dir, c.PowerCurvesFile)
	return &c, nil
}

func resolvePath(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	// Prefer the config file directory, but fall back to the provided path
	// (relative to cwd) if nothing exists there.
	cand := filepath.Join(dir, p)
	if _, err := os.Stat(cand); err == nil {
		return cand
	}
	return p
}

func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.SitesFile == "" {
		return errors.New("sites_file is required")
	}
	if c.PowerCurvesFile == "" {
		return errors.New("power_curves_file is required")
	}
	if c.TurbineClass == "" {
		return errors.New("turbine_class is required")
	}
	if _, _, err := c.Dates(); err != nil {
		return err
	}
	if c.Source.BBox != nil {
		if err := c.Source.BBox.Validate(); err != nil {
			return fmt.Errorf("source.bbox invalid: %w", err)
		}
	}
	if c.Source.HeightIndex != nil && *c.Source.HeightIndex < 0 {
		return errors.New("source.height_index must be >= 0")
	}
	if c.Source.Timeout < 0 {
		return errors.New("source.timeout must be >= 0")
	}
	if c.RateLimit.Every < 0 {
		return errors.New("rate_limit.every must be >= 0")
	}
	if c.RateLimit.Cooldown < 0 {
		return errors.New("rate_limit.cooldown must be >= 0")
	}
	return nil
}

// Dates parses and checks the date range.
func (c *Config) Dates() (time.Time, time.Time, error) {
	if c.StartDate == "" || c.EndDate == "" {
		return time.Time{}, time.Time{}, errors.New("start_date and end_date are required")
	}
	start, err := hindcast.ParseDate(c.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("start_date: %w", err)
	}
	end, err := hindcast.ParseDate(c.EndDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("end_date: %w", err)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %s < %s", hindcast.ErrInvalidDateRange, c.EndDate, c.StartDate)
	}
	return start, end, nil
}

// ToSourceOptions fills unset source fields with the RAP defaults.
func (c *Config) ToSourceOptions() data.RAPOptions {
	opts := data.DefaultRAPOptions()
	s := c.Source
	if s.BaseURL != "" {
		opts.BaseURL = s.BaseURL
	}
	if s.BBox != nil {
		opts.BBox = *s.BBox
	}
	if s.UVar != "" {
		opts.UVar = s.UVar
	}
	if s.VVar != "" {
		opts.VVar = s.VVar
	}
	if s.HeightIndex != nil {
		opts.HeightIndex = *s.HeightIndex
	}
	if s.Timeout > 0 {
		opts.Timeout = s.Timeout
	}
	return opts
}

func (c *Config) ToRateLimit() hindcast.RateLimit {
	l := hindcast.DefaultRateLimit
	if c.RateLimit.Every > 0 {
		l.Every = c.RateLimit.Every
	}
	if c.RateLimit.Cooldown > 0 {
		l.Cooldown = c.RateLimit.Cooldown
	}
	return l
}

// ApplyEnv overrides fields from the environment when the variables are set.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvRAPBaseURL); v != "" {
		c.Source.BaseURL = v
	}
	if v := os.Getenv(EnvPowerCurvesFile); v != "" {
		c.PowerCurvesFile = v
	}
	if v := os.Getenv(EnvTurbineClass); v != "" {
		c.TurbineClass = v
	}
}

// MergeRun overlays non-zero fields from override onto base.
// This is used to apply CLI flags or API request fields on top of a config file.
func MergeRun(base, override Config) Config {
	out := base
	if override.SitesFile != "" {
		out.SitesFile = override.SitesFile
	}
	if override.PowerCurvesFile != "" {
		out.PowerCurvesFile = override.PowerCurvesFile
	}
	if override.TurbineClass != "" {
		out.TurbineClass = override.TurbineClass
	}
	if override.StartDate != "" {
		out.StartDate = override.StartDate
	}
	if override.EndDate != "" {
		out.EndDate = override.EndDate
	}
	if override.Output.TableFile != "" {
		out.Output.TableFile = override.Output.TableFile
	}
	if override.Output.MissingFile != "" {
		out.Output.MissingFile = override.Output.MissingFile
	}
	if override.Source.BaseURL != "" {
		out.Source.BaseURL = override.Source.BaseURL
	}
	if override.Source.BBox != nil {
		out.Source.BBox = override.Source.BBox
	}
	if override.Source.UVar != "" {
		out.Source.UVar = override.Source.UVar
	}
	if override.Source.VVar != "" {
		out.Source.VVar = override.Source.VVar
	}
	// height_index 0 is a valid choice, hence the pointer.
	if override.Source.HeightIndex != nil {
		out.Source.HeightIndex = override.Source.HeightIndex
	}
	if override.Source.Timeout != 0 {
		out.Source.Timeout = override.Source.Timeout
	}
	if override.RateLimit.Every != 0 {
		out.RateLimit.Every = override.RateLimit.Every
	}
	if override.RateLimit.Cooldown != 0 {
		out.RateLimit.Cooldown = override.RateLimit.Cooldown
	}
	return out
}
