package batch

import (
	"strconv"
	"strings"

	"github.com/MeKo-Tech/isoline/internal/pipeline"
)

// buildPipeline creates a contour pipeline from the batch configuration.
// Progress is reported per file, so the pipeline itself stays silent.
func buildPipeline(config *Config) (*pipeline.Pipeline, error) {
	b := pipeline.NewBuilder().
		WithInterval(config.Interval, config.Offset).
		WithMaxPoints(config.MaxPoints)

	if len(config.FixedLevels) > 0 {
		b = b.WithFixedLevels(config.FixedLevels...)
	}
	if config.NoDataSet {
		b = b.WithNoData(config.NoData)
	}
	return b.Build()
}

// parseMemoryLimit parses a memory limit string (e.g., "1GB", "512MB") into bytes.
func parseMemoryLimit(limit string) (uint64, error) {
	limit = strings.TrimSpace(strings.ToUpper(limit))

	// Longest suffix first so "MB" is not read as "B".
	multipliers := []struct {
		suffix string
		factor uint64
	}{
		{"TB", 1024 * 1024 * 1024 * 1024},
		{"GB", 1024 * 1024 * 1024},
		{"MB", 1024 * 1024},
		{"KB", 1024},
		{"B", 1},
	}

	for _, m := range multipliers {
		if strings.HasSuffix(limit, m.suffix) {
			numStr := strings.TrimSpace(strings.TrimSuffix(limit, m.suffix))
			num, err := strconv.ParseFloat(numStr, 64)
			if err != nil {
				return 0, err
			}
			return uint64(num * float64(m.factor)), nil
		}
	}

	return strconv.ParseUint(limit, 10, 64)
}
