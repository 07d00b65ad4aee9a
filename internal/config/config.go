package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"certline/internal/domain"
)

const FileName = "certline.yml"

// Config models certline.yml.
type Config struct {
	Tenant struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"tenant"`
	// Categories maps a category code to its display label.
	Categories map[domain.Category]string `yaml:"categories"`
	Dates      struct {
		Layout   string `yaml:"layout"`
		Timezone string `yaml:"timezone"`
	} `yaml:"dates"`
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Tenant.ID == "" {
		return fmt.Errorf("config.tenant.id is required")
	}
	for code, label := range c.Categories {
		if !code.Valid() {
			return fmt.Errorf("config.categories has unknown category %q", code)
		}
		if label == "" {
			return fmt.Errorf("category %s has empty label", code)
		}
	}
	if c.Dates.Layout != "" {
		probe := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
		if _, err := time.Parse(c.Dates.Layout, probe.Format(c.Dates.Layout)); err != nil {
			return fmt.Errorf("config.dates.layout %q does not round-trip: %w", c.Dates.Layout, err)
		}
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves dates.timezone, UTC when unset.
func (c *Config) Location() (*time.Location, error) {
	if c.Dates.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Dates.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config.dates.timezone %q: %w", c.Dates.Timezone, err)
	}
	return loc, nil
}

// Labels returns the category label catalog with defaults for missing codes.
func (c *Config) Labels() map[domain.Category]string {
	out := make(map[domain.Category]string, len(domain.Categories))
	for code, label := range defaultLabels {
		out[code] = label
	}
	for code, label := range c.Categories {
		out[code] = label
	}
	return out
}

// CategoryCodes lists configured category codes, sorted.
func (c *Config) CategoryCodes() []domain.Category {
	codes := make([]domain.Category, 0, len(c.Categories))
	for code := range c.Categories {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}

// ToYAML serializes the config.
func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with certline config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	cfg, err := Load(workspace)
	if err != nil {
		if _, statErr := os.Stat(Path(workspace)); os.IsNotExist(statErr) {
			return nil, nil
		}
		return nil, err
	}
	return cfg, nil
}

// GenerateDefault returns default config YAML.
func GenerateDefault(tenantID string) string {
	return fmt.Sprintf(defaultTemplate, tenantID, tenantID)
}

// Default returns the default Config struct for a tenant.
func Default(tenantID string) *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(GenerateDefault(tenantID)), &cfg); err != nil {
		panic(fmt.Sprintf("default config template: %v", err))
	}
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

var defaultLabels = map[domain.Category]string{
	domain.CategoryIndustrialSafety: "Промышленная безопасность",
	domain.CategoryEnergySafety:     "Электробезопасность",
	domain.CategoryLaborSafety:      "Охрана труда",
	domain.CategoryEcology:          "Экология",
	domain.CategoryOther:            "Прочее",
}

const defaultTemplate = `tenant:
  id: %s
  name: %s

categories:
  industrial_safety: "Промышленная безопасность"
  energy_safety: "Электробезопасность"
  labor_safety: "Охрана труда"
  ecology: "Экология"
  other: "Прочее"

dates:
  layout: "2006-01-02"
  timezone: UTC

server:
  addr: ":8080"
  base_path: /v0
`
