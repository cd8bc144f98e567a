package config

import (
	"encoding/json"
	"testing"

	"gopkg.in/yaml.v3"
)

// TestConfigJSONMarshaling tests marshaling Config to JSON.
func TestConfigJSONMarshaling(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = debugLevel
	cfg.Verbose = true
	cfg.Contour.FixedLevels = []float64{100, 200}

	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("json.Marshal() error: %v", err)
	}

	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("json.Unmarshal() error: %v", err)
	}

	if result["log_level"] != debugLevel {
		t.Errorf("Expected log_level '%s', got %v", debugLevel, result["log_level"])
	}
	contour, ok := result["contour"].(map[string]any)
	if !ok {
		t.Fatalf("Expected contour section, got %T", result["contour"])
	}
	if levels, ok := contour["fixed_levels"].([]any); !ok || len(levels) != 2 {
		t.Errorf("Expected two fixed levels, got %v", contour["fixed_levels"])
	}
}

// TestConfigYAMLUnmarshaling tests unmarshaling Config from YAML.
func TestConfigYAMLUnmarshaling(t *testing.T) {
	yamlData := `
log_level: warn
contour:
  interval: 2.5
  offset: 1
  nodata: -9999
  nodata_enabled: true
input:
  scale: 0.1
output:
  format: csv
  precision: 3
server:
  port: 9090
batch:
  workers: 8
  include: ["*.asc", "*.png"]
`
	var cfg Config
	if err := yaml.Unmarshal([]byte(yamlData), &cfg); err != nil {
		t.Fatalf("yaml.Unmarshal() error: %v", err)
	}

	if cfg.LogLevel != warnLevel {
		t.Errorf("Expected log_level '%s', got %s", warnLevel, cfg.LogLevel)
	}
	if cfg.Contour.Interval != 2.5 || cfg.Contour.Offset != 1 {
		t.Errorf("Unexpected contour interval/offset: %v/%v", cfg.Contour.Interval, cfg.Contour.Offset)
	}
	if !cfg.Contour.NoDataEnabled || cfg.Contour.NoData != -9999 {
		t.Errorf("Unexpected nodata: %v enabled=%v", cfg.Contour.NoData, cfg.Contour.NoDataEnabled)
	}
	if cfg.Input.Scale != 0.1 {
		t.Errorf("Expected input scale 0.1, got %v", cfg.Input.Scale)
	}
	if cfg.Output.Format != "csv" || cfg.Output.Precision != 3 {
		t.Errorf("Unexpected output section: %+v", cfg.Output)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Batch.Workers != 8 || len(cfg.Batch.Include) != 2 {
		t.Errorf("Unexpected batch section: %+v", cfg.Batch)
	}
}

// TestConfigYAMLRoundTrip checks the defaults survive a YAML round trip.
func TestConfigYAMLRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		t.Fatalf("yaml.Marshal() error: %v", err)
	}

	var back Config
	if err := yaml.Unmarshal(data, &back); err != nil {
		t.Fatalf("yaml.Unmarshal() error: %v", err)
	}
	if err := back.Validate(); err != nil {
		t.Errorf("round-tripped defaults do not validate: %v", err)
	}
	if back.Server != cfg.Server {
		t.Errorf("server section changed: %+v != %+v", back.Server, cfg.Server)
	}
}
