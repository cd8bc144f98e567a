package support

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/MeKo-Tech/isoline/internal/benchmark"
	"github.com/MeKo-Tech/isoline/internal/contour"
	"github.com/MeKo-Tech/isoline/internal/pipeline"
	"github.com/MeKo-Tech/isoline/internal/raster"
	"github.com/cucumber/godog"
)

// surface builds one of the named synthetic grids.
func surface(kind string, width, height int) (*raster.Grid, error) {
	build, ok := benchmark.Surfaces()[kind]
	if !ok {
		return nil, fmt.Errorf("unknown surface %q (known: %s)", kind, strings.Join(benchmark.SurfaceNames(), ", "))
	}
	return build(width, height), nil
}

// writeRaster stores a grid under the temp dir and registers it by name.
func (testCtx *TestContext) writeRaster(name, path string, g *raster.Grid, png bool) error {
	f, err := os.Create(path) //nolint:gosec // G304: test temp path
	if err != nil {
		return fmt.Errorf("failed to create raster %s: %w", path, err)
	}
	if png {
		err = raster.EncodePNG16(f, g, 1, 0)
	} else {
		err = raster.WriteASCIIGrid(f, g)
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("failed to write raster %s: %w", path, err)
	}
	if name != "" {
		testCtx.Rasters[name] = path
	}
	return nil
}

func (testCtx *TestContext) aSyntheticRasterNamed(kind, name string, width, height int) error {
	g, err := surface(kind, width, height)
	if err != nil {
		return err
	}
	return testCtx.writeRaster(name, filepath.Join(testCtx.TempDir, name+".asc"), g, false)
}

func (testCtx *TestContext) aSyntheticPNGRasterNamed(kind, name string, width, height int) error {
	g, err := surface(kind, width, height)
	if err != nil {
		return err
	}
	return testCtx.writeRaster(name, filepath.Join(testCtx.TempDir, name+".png"), g, true)
}

// aCorruptRasterNamed writes an ASCII grid whose header is broken.
func (testCtx *TestContext) aCorruptRasterNamed(name string) error {
	path := filepath.Join(testCtx.TempDir, name+".asc")
	if err := os.WriteFile(path, []byte("ncols banana\nnrows 3\n1 2 3\n"), 0o600); err != nil {
		return err
	}
	testCtx.Rasters[name] = path
	return nil
}

// aRasterDirectory fills a directory with count rasters of one surface and
// registers the directory under its name.
func (testCtx *TestContext) aRasterDirectory(name string, count int, kind string, width, height int) error {
	dir := filepath.Join(testCtx.TempDir, name)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	g, err := surface(kind, width, height)
	if err != nil {
		return err
	}
	for i := range count {
		path := filepath.Join(dir, fmt.Sprintf("%s_%d.asc", kind, i))
		if err := testCtx.writeRaster("", path, g, false); err != nil {
			return err
		}
	}
	testCtx.Rasters[name] = dir
	return nil
}

// referencePolylines traces a registered raster in-process.
func (testCtx *TestContext) referencePolylines(name string, interval float64) (int, error) {
	path, ok := testCtx.Rasters[name]
	if !ok {
		return 0, fmt.Errorf("no raster named %q", name)
	}
	p, err := pipeline.NewBuilder().WithInterval(interval, 0).Build()
	if err != nil {
		return 0, err
	}
	var collector contour.Collector
	if _, err := p.RunFile(context.Background(), path, raster.DefaultImageOptions(), &collector); err != nil {
		return 0, fmt.Errorf("reference run failed: %w", err)
	}
	if len(collector.Polylines) == 0 {
		return 0, fmt.Errorf("raster %q has no contours at interval %v", name, interval)
	}
	return len(collector.Polylines), nil
}

func (testCtx *TestContext) theGeoJSONFileShouldHoldTheContoursOf(filename, name string, interval float64) error {
	want, err := testCtx.referencePolylines(name, interval)
	if err != nil {
		return err
	}
	path := testCtx.resolvePath(testCtx.substituteCommandVariables(filename))
	data, err := os.ReadFile(path) //nolint:gosec // G304: test output path
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	var fc struct {
		Type     string            `json:"type"`
		Features []json.RawMessage `json:"features"`
	}
	if err := json.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("%s is not valid GeoJSON: %w", path, err)
	}
	if fc.Type != "FeatureCollection" {
		return fmt.Errorf("%s has type %q, expected FeatureCollection", path, fc.Type)
	}
	if len(fc.Features) != want {
		return fmt.Errorf("%s has %d features, expected %d", path, len(fc.Features), want)
	}
	return nil
}

func (testCtx *TestContext) theCSVOutputShouldHoldTheContoursOf(name string, interval float64) error {
	want, err := testCtx.referencePolylines(name, interval)
	if err != nil {
		return err
	}
	records, err := csv.NewReader(strings.NewReader(testCtx.LastStdout)).ReadAll()
	if err != nil {
		return fmt.Errorf("output is not valid CSV: %w", err)
	}
	if len(records) == 0 || records[0][0] != "id" {
		return fmt.Errorf("CSV output has no header\nOutput: %s", testCtx.LastStdout)
	}
	if got := len(records) - 1; got != want {
		return fmt.Errorf("CSV output has %d rows, expected %d", got, want)
	}
	for _, rec := range records[1:] {
		if !strings.HasPrefix(rec[len(rec)-1], "LINESTRING") {
			return fmt.Errorf("row %v has no LINESTRING geometry", rec)
		}
	}
	return nil
}

// RegisterRasterSteps registers raster fixture and contour result steps.
func (testCtx *TestContext) RegisterRasterSteps(sc *godog.ScenarioContext) {
	sc.Step(`^a synthetic (\w+) raster named "([^"]*)" of size (\d+)x(\d+)$`, testCtx.aSyntheticRasterNamed)
	sc.Step(`^a synthetic (\w+) PNG raster named "([^"]*)" of size (\d+)x(\d+)$`, testCtx.aSyntheticPNGRasterNamed)
	sc.Step(`^a corrupt raster named "([^"]*)"$`, testCtx.aCorruptRasterNamed)
	sc.Step(`^a directory "([^"]*)" with (\d+) synthetic (\w+) rasters of size (\d+)x(\d+)$`, testCtx.aRasterDirectory)

	sc.Step(`^the GeoJSON file "([^"]*)" should hold the contours of "([^"]*)" at interval ([0-9.]+)$`,
		testCtx.theGeoJSONFileShouldHoldTheContoursOf)
	sc.Step(`^the CSV output should hold the contours of "([^"]*)" at interval ([0-9.]+)$`,
		testCtx.theCSVOutputShouldHoldTheContoursOf)
}
