package config

import (
	"os"
	"path/filepath"
	"testing"

	"certline/internal/domain"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default("acme")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Tenant.ID != "acme" {
		t.Fatalf("expected tenant acme, got %s", cfg.Tenant.ID)
	}
	if got := cfg.Labels()[domain.CategoryEnergySafety]; got != "Электробезопасность" {
		t.Fatalf("unexpected energy label %q", got)
	}
	if len(cfg.CategoryCodes()) != len(domain.Categories) {
		t.Fatalf("expected every category in the default catalog")
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"missing tenant":   "tenant:\n  name: x\n",
		"unknown category": "tenant:\n  id: a\ncategories:\n  fire_safety: Fire\n",
		"empty label":      "tenant:\n  id: a\ncategories:\n  ecology: \"\"\n",
		"bad timezone":     "tenant:\n  id: a\ndates:\n  timezone: Mars/Olympus\n",
	}
	for name, doc := range cases {
		if _, err := FromYAML([]byte(doc)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLabelsMergeOverrides(t *testing.T) {
	cfg, err := FromYAML([]byte("tenant:\n  id: a\ncategories:\n  ecology: Environment\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	labels := cfg.Labels()
	if labels[domain.CategoryEcology] != "Environment" {
		t.Fatalf("override not applied: %q", labels[domain.CategoryEcology])
	}
	if labels[domain.CategoryLaborSafety] != "Охрана труда" {
		t.Fatalf("default label lost")
	}
}

func TestLocation(t *testing.T) {
	cfg, err := FromYAML([]byte("tenant:\n  id: a\ndates:\n  timezone: Europe/Moscow\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		t.Fatalf("location: %v", err)
	}
	if loc.String() != "Europe/Moscow" {
		t.Fatalf("unexpected location %s", loc)
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	if err != nil || cfg != nil {
		t.Fatalf("expected nil,nil for missing file, got %v %v", cfg, err)
	}
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(GenerateDefault("w1")), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err = LoadOptional(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Tenant.ID != "w1" {
		t.Fatalf("expected w1, got %s", cfg.Tenant.ID)
	}
}
