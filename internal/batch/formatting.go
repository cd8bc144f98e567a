package batch

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Summary is the JSON document describing a batch run.
type Summary struct {
	Files     []FileResult `json:"files"`
	Total     int          `json:"total"`
	Failed    int          `json:"failed"`
	Polylines int          `json:"polylines"`
	Vertices  int          `json:"vertices"`
	Workers   int          `json:"workers"`
	Duration  string       `json:"duration"`
	// Throughput is files per second.
	Throughput float64 `json:"throughput"`
}

func (r *Result) summary() Summary {
	s := Summary{
		Files:      r.Files,
		Total:      len(r.Files),
		Failed:     r.Failed(),
		Workers:    r.WorkerCount,
		Duration:   r.Duration.Round(time.Millisecond).String(),
		Throughput: r.Stats().ThroughputPerSec,
	}
	for _, f := range r.Files {
		s.Polylines += f.Polylines
		s.Vertices += f.Vertices
	}
	return s
}

// formatBatchResults formats the batch summary in the specified format.
func formatBatchResults(r *Result, format string) (string, error) {
	switch format {
	case "json":
		return formatJSON(r)
	case "csv":
		return formatCSV(r)
	case "text", "":
		return formatText(r), nil
	default:
		return "", fmt.Errorf("unknown summary format %q", format)
	}
}

// formatJSON formats the summary as indented JSON.
func formatJSON(r *Result) (string, error) {
	bts, err := json.MarshalIndent(r.summary(), "", "  ")
	return string(bts), err
}

// formatCSV writes one row per file.
func formatCSV(r *Result) (string, error) {
	var out strings.Builder
	writer := csv.NewWriter(&out)
	rows := [][]string{{
		"file", "width", "height", "levels", "polylines", "vertices", "anomalies", "duration_ms", "output", "error",
	}}
	for _, f := range r.Files {
		rows = append(rows, []string{
			f.Path,
			strconv.Itoa(f.Width),
			strconv.Itoa(f.Height),
			strconv.Itoa(len(f.Levels)),
			strconv.Itoa(f.Polylines),
			strconv.Itoa(f.Vertices),
			strconv.Itoa(f.Anomalies),
			strconv.FormatInt(f.Duration.Milliseconds(), 10),
			f.OutputPath,
			f.Error,
		})
	}
	if err := writer.WriteAll(rows); err != nil {
		return "", err
	}
	return out.String(), nil
}

// formatText writes a block per file with grouped numbers.
func formatText(r *Result) string {
	p := message.NewPrinter(language.English)
	var out strings.Builder
	for i, f := range r.Files {
		if i > 0 {
			out.WriteString("\n")
		}
		out.WriteString(fmt.Sprintf("# %s\n", f.Path))
		if f.Err != nil {
			out.WriteString(fmt.Sprintf("  error: %s\n", f.Error))
			continue
		}
		out.WriteString(p.Sprintf("  size: %dx%d\n", f.Width, f.Height))
		out.WriteString(p.Sprintf("  polylines: %d (%d vertices) over %d levels\n", f.Polylines, f.Vertices, len(f.Levels)))
		if f.Anomalies > 0 {
			out.WriteString(p.Sprintf("  anomalies: %d\n", f.Anomalies))
		}
		if f.OutputPath != "" {
			out.WriteString(fmt.Sprintf("  output: %s\n", f.OutputPath))
		}
	}
	return out.String()
}
