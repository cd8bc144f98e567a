package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/isoline/internal/contour"
	"github.com/MeKo-Tech/isoline/internal/output"
	"github.com/MeKo-Tech/isoline/internal/pipeline"
	"github.com/MeKo-Tech/isoline/internal/raster"
)

const (
	formatJSON    = "json"
	formatGeoJSON = output.FormatGeoJSON
	formatCSV     = output.FormatCSV
)

// ContourOptions are per-request overrides of the server's contouring
// settings. Nil fields keep the server default.
type ContourOptions struct {
	Interval *float64  `json:"interval,omitempty"`
	Offset   *float64  `json:"offset,omitempty"`
	Levels   []float64 `json:"levels,omitempty"`
	NoData   *float64  `json:"nodata,omitempty"`
	Format   string    `json:"format,omitempty"`
}

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeErrorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: versionString(),
		Time:    time.Now().UTC().Format(time.RFC3339),
	})
}

// contourHandler traces an uploaded raster and returns its contours.
func (s *Server) contourHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeErrorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := s.maxUploadMB * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		if isBodyTooLarge(err) {
			s.writeErrorResponse(w, "file too large", http.StatusRequestEntityTooLarge)
		} else {
			s.writeErrorResponse(w, "failed to parse form data", http.StatusBadRequest)
		}
		return
	}

	file, header, err := r.FormFile("raster")
	if err != nil {
		s.writeErrorResponse(w, "no raster file provided", http.StatusBadRequest)
		return
	}
	defer func() { _ = file.Close() }()
	uploadSizeBytes.Observe(float64(header.Size))

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeErrorResponse(w, "failed to read raster data", http.StatusInternalServerError)
		return
	}

	opts, err := parseFormOptions(r)
	if err != nil {
		s.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	format, err := normalizeFormat(opts.Format)
	if err != nil {
		s.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	cfg, err := s.requestConfig(opts)
	if err != nil {
		s.writeErrorResponse(w, fmt.Sprintf("invalid contour options: %v", err), http.StatusBadRequest)
		return
	}

	src, err := decodeUpload(header.Filename, data, s.image)
	if err != nil {
		s.writeErrorResponse(w, fmt.Sprintf("invalid raster: %v", err), http.StatusBadRequest)
		return
	}
	defer func() { _ = src.Close() }()

	ctx, cancel := context.WithTimeout(r.Context(), time.Duration(s.timeoutSec)*time.Second)
	defer cancel()

	if format == formatJSON {
		s.writeContourJSON(ctx, w, src, cfg)
		return
	}

	outOpts := s.output
	outOpts.Transform = src.GeoTransform()
	var buf bytes.Buffer
	writer, err := output.New(format, &buf, outOpts)
	if err != nil {
		s.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	summary, err := s.trace(ctx, "http", src, cfg, writer)
	if err == nil {
		err = writer.Close()
	}
	if err != nil {
		s.writeErrorResponse(w, fmt.Sprintf("contouring failed: %v", err), statusForError(err))
		return
	}

	setSummaryHeaders(w, summary)
	if format == formatCSV {
		w.Header().Set("Content-Type", "text/csv")
	} else {
		w.Header().Set("Content-Type", "application/geo+json")
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		s.logger.Error("failed to write contour response", "error", err)
	}
}

// writeContourJSON answers with the summary and every polyline in one JSON
// document.
func (s *Server) writeContourJSON(ctx context.Context, w http.ResponseWriter, src raster.Source, cfg pipeline.Config) {
	transform := src.GeoTransform()
	lines := make([]PolylineJSON, 0)
	sink := contour.SinkFunc(func(level float64, pts []contour.Point) error {
		lines = append(lines, toPolylineJSON(transform, level, pts))
		return nil
	})

	summary, err := s.trace(ctx, "http", src, cfg, sink)
	if err != nil {
		s.writeErrorResponse(w, fmt.Sprintf("contouring failed: %v", err), statusForError(err))
		return
	}
	setSummaryHeaders(w, summary)
	s.writeJSON(w, http.StatusOK, ContourResponse{Success: true, Summary: summary, Polylines: lines})
}

// trace runs one contouring pass and records its metrics under kind.
func (s *Server) trace(ctx context.Context, kind string, src raster.Source, cfg pipeline.Config, sink contour.Sink) (ContourSummary, error) {
	counter := &output.Counter{Next: sink}
	res, err := pipeline.Run(ctx, src, counter, cfg)
	if err != nil {
		contourRequestsTotal.WithLabelValues(kind, "error").Inc()
		s.logger.Warn("contouring failed", "type", kind, "error", err)
		return ContourSummary{}, err
	}

	contourRequestsTotal.WithLabelValues(kind, "success").Inc()
	contourProcessingDuration.WithLabelValues(kind).Observe(res.Duration.Seconds())
	contourPolylines.WithLabelValues(kind).Observe(float64(counter.Polylines))
	contourRasterRows.WithLabelValues(kind).Add(float64(res.Rows))

	return ContourSummary{
		Width:      res.Width,
		Height:     res.Height,
		Levels:     res.Levels,
		Stats:      res.Stats,
		PerLevel:   counter.Levels(),
		Polylines:  counter.Polylines,
		Vertices:   counter.Vertices,
		DurationMs: float64(res.Duration.Microseconds()) / 1000,
	}, nil
}

// requestConfig applies opts on top of the server's pipeline settings.
func (s *Server) requestConfig(opts ContourOptions) (pipeline.Config, error) {
	cfg := s.pipeline
	cfg.FixedLevels = slices.Clone(cfg.FixedLevels)
	if opts.Interval != nil {
		cfg.Interval = *opts.Interval
		cfg.FixedLevels = nil
	}
	if opts.Offset != nil {
		cfg.Offset = *opts.Offset
	}
	if len(opts.Levels) > 0 {
		cfg.FixedLevels = slices.Clone(opts.Levels)
	}
	if opts.NoData != nil {
		cfg.NoData = *opts.NoData
		cfg.NoDataSet = true
		cfg.IgnoreNoData = false
	}
	cfg.Progress = nil
	cfg.Logger = s.logger
	return cfg, cfg.Validate()
}

// parseFormOptions reads the contour form fields of r.
func parseFormOptions(r *http.Request) (ContourOptions, error) {
	var opts ContourOptions
	number := func(field string) (*float64, error) {
		raw := strings.TrimSpace(r.FormValue(field))
		if raw == "" {
			return nil, nil
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %q", field, raw)
		}
		return &v, nil
	}

	var err error
	if opts.Interval, err = number("interval"); err != nil {
		return opts, err
	}
	if opts.Offset, err = number("offset"); err != nil {
		return opts, err
	}
	if opts.NoData, err = number("nodata"); err != nil {
		return opts, err
	}
	if opts.Levels, err = parseLevels(r.FormValue("levels")); err != nil {
		return opts, err
	}

	opts.Format = r.FormValue("format")
	if opts.Format == "" {
		opts.Format = r.URL.Query().Get("format")
	}
	return opts, nil
}

// parseLevels parses a comma separated list of levels.
func parseLevels(raw string) ([]float64, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var levels []float64
	for part := range strings.SplitSeq(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid level %q", part)
		}
		levels = append(levels, v)
	}
	return levels, nil
}

func normalizeFormat(format string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", formatGeoJSON:
		return formatGeoJSON, nil
	case formatJSON:
		return formatJSON, nil
	case formatCSV:
		return formatCSV, nil
	}
	return "", fmt.Errorf("unsupported format %q (use geojson, json or csv)", format)
}

// decodeUpload turns uploaded bytes into a raster source. ASCII grids are
// recognised by extension; anything else is decoded as an image, falling
// back to ASCII when the name carries no hint.
func decodeUpload(filename string, data []byte, opts raster.ImageOptions) (raster.Source, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == ".asc" || ext == ".grd" {
		return raster.NewASCIIReader(bytes.NewReader(data))
	}
	g, err := raster.DecodeImage(bytes.NewReader(data), opts)
	if err == nil {
		return g.Reader(), nil
	}
	if ext == "" || ext == ".txt" {
		return raster.NewASCIIReader(bytes.NewReader(data))
	}
	return nil, err
}

func toPolylineJSON(t raster.GeoTransform, level float64, pts []contour.Point) PolylineJSON {
	coords := make([][2]float64, len(pts))
	for i, p := range pts {
		x, y := t.Apply(p.X, p.Y)
		coords[i] = [2]float64{x, y}
	}
	return PolylineJSON{
		Level:  level,
		Closed: contour.Polyline{Level: level, Points: pts}.Closed(),
		Points: coords,
	}
}

func setSummaryHeaders(w http.ResponseWriter, s ContourSummary) {
	w.Header().Set("X-Contour-Polylines", strconv.Itoa(s.Polylines))
	w.Header().Set("X-Contour-Vertices", strconv.Itoa(s.Vertices))
	w.Header().Set("X-Contour-Levels", strconv.Itoa(len(s.Levels)))
	w.Header().Set("X-Contour-Anomalies", strconv.Itoa(s.Stats.Anomalies))
	w.Header().Set("X-Contour-Duration-Ms", strconv.FormatFloat(s.DurationMs, 'f', 3, 64))
}

func isBodyTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "request body too large")
}

// statusForError maps a contouring failure to an HTTP status.
func statusForError(err error) int {
	var formatErr *raster.FormatError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, io.ErrUnexpectedEOF), errors.As(err, &formatErr):
		return http.StatusBadRequest
	case errors.Is(err, contour.ErrAllocation), errors.Is(err, contour.ErrInconsistentTopology):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// writeErrorResponse writes a JSON error response.
func (s *Server) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	s.writeJSON(w, statusCode, ErrorResponse{Success: false, Error: message})
}
