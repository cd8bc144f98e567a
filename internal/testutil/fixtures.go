package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/isoline/internal/raster"
)

// ContourFixture describes a raster on disk and the contours expected from it.
type ContourFixture struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	InputFile   string           `json:"input_file"`
	Interval    float64          `json:"interval"`
	Expected    ExpectedContours `json:"expected"`
	Metadata    map[string]any   `json:"metadata,omitempty"`
}

// ExpectedContours holds the counts a fixture must reproduce.
type ExpectedContours struct {
	Polylines int       `json:"polylines"`
	Closed    int       `json:"closed"`
	Levels    []float64 `json:"levels,omitempty"`
}

// LoadFixture loads a fixture description from dir/name.json.
func LoadFixture(t *testing.T, dir, name string) ContourFixture {
	t.Helper()

	fixturePath := filepath.Join(dir, name+".json")
	data, err := os.ReadFile(fixturePath) //nolint:gosec // G304: test fixture paths are controlled
	require.NoError(t, err, "Failed to read fixture file: %s", fixturePath)

	var fixture ContourFixture
	require.NoError(t, json.Unmarshal(data, &fixture), "Failed to unmarshal fixture JSON")
	return fixture
}

// SaveFixture writes a fixture description to dir/<name>.json.
func SaveFixture(t *testing.T, dir string, fixture ContourFixture) {
	t.Helper()

	require.NoError(t, EnsureDir(dir))
	data, err := json.MarshalIndent(fixture, "", "  ")
	require.NoError(t, err, "Failed to marshal fixture to JSON")

	fixturePath := filepath.Join(dir, fixture.Name+".json")
	require.NoError(t, os.WriteFile(fixturePath, data, 0o600), "Failed to write fixture file: %s", fixturePath)
}

// WriteASCIIGrid writes g as an ESRI ASCII grid to dir/name and returns the path.
func WriteASCIIGrid(t *testing.T, dir, name string, g *raster.Grid) string {
	t.Helper()

	require.NoError(t, EnsureDir(dir))
	path := filepath.Join(dir, name)
	f, err := os.Create(path) //nolint:gosec // G304: test fixture paths are controlled
	require.NoError(t, err)
	defer func() { require.NoError(t, f.Close()) }()

	require.NoError(t, raster.WriteASCIIGrid(f, g))
	return path
}

// WritePNG16 writes g as a 16-bit grayscale PNG where value = raw*scale+offset.
func WritePNG16(t *testing.T, dir, name string, g *raster.Grid, scale, offset float64) string {
	t.Helper()

	require.NoError(t, EnsureDir(dir))
	path := filepath.Join(dir, name)
	f, err := os.Create(path) //nolint:gosec // G304: test fixture paths are controlled
	require.NoError(t, err)
	defer func() { require.NoError(t, f.Close()) }()

	require.NoError(t, raster.EncodePNG16(f, g, scale, offset))
	return path
}

// SampleRasters returns small named surfaces used across package tests.
func SampleRasters() map[string]*raster.Grid {
	return map[string]*raster.Grid{
		"ramp":         raster.Ramp(12, 8, 1),
		"cone":         raster.Cone(16, 16, 6),
		"pits":         raster.Pits(9, 9, 5, 2, raster.Pixel{Col: 2, Row: 2}, raster.Pixel{Col: 6, Row: 6}),
		"checkerboard": raster.Checkerboard(12, 12, 4, 0, 3),
	}
}
