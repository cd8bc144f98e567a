package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MeKo-Tech/isoline/internal/contour"
	"github.com/MeKo-Tech/isoline/internal/output"
	"github.com/MeKo-Tech/isoline/internal/pipeline"
	"github.com/MeKo-Tech/isoline/internal/raster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, mutate func(*Config)) *Server {
	t.Helper()
	cfg := Config{
		CORSOrigin:    "*",
		MaxUploadMB:   1,
		TimeoutSec:    5,
		ProgressEvery: 4,
		Pipeline:      pipeline.DefaultConfig(),
		Image:         raster.DefaultImageOptions(),
		Output:        output.DefaultOptions(),
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := NewServer(cfg)
	require.NoError(t, err)
	return s
}

func asciiBytes(t *testing.T, g *raster.Grid) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, raster.WriteASCIIGrid(&buf, g))
	return buf.Bytes()
}

// referenceCount traces data directly and returns the number of polylines.
func referenceCount(t *testing.T, data []byte, cfg pipeline.Config) int {
	t.Helper()
	src, err := raster.NewASCIIReader(bytes.NewReader(data))
	require.NoError(t, err)
	var c contour.Collector
	_, err = pipeline.Run(context.Background(), src, &c, cfg)
	require.NoError(t, err)
	return len(c.Polylines)
}

func uploadRequest(t *testing.T, filename string, data []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if filename != "" {
		fw, err := mw.CreateFormFile("raster", filename)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/contour", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	return resp
}

func TestNewServer_Validation(t *testing.T) {
	base := Config{MaxUploadMB: 1, TimeoutSec: 1, Pipeline: pipeline.DefaultConfig()}

	_, err := NewServer(base)
	require.NoError(t, err)

	bad := base
	bad.MaxUploadMB = 0
	_, err = NewServer(bad)
	assert.Error(t, err)

	bad = base
	bad.TimeoutSec = 0
	_, err = NewServer(bad)
	assert.Error(t, err)

	bad = base
	bad.Pipeline.Interval = 0
	_, err = NewServer(bad)
	assert.Error(t, err)
}

func TestNewServer_RateLimiter(t *testing.T) {
	s := newTestServer(t, nil)
	assert.Nil(t, s.rateLimiter)

	s = newTestServer(t, func(c *Config) { c.RateLimits.PerMinute = 5 })
	assert.NotNil(t, s.rateLimiter)
}

func TestHealthHandler(t *testing.T) {
	s := newTestServer(t, nil)

	w := httptest.NewRecorder()
	s.healthHandler(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.NotEmpty(t, resp.Time)
	assert.NotEmpty(t, resp.Version)

	w = httptest.NewRecorder()
	s.healthHandler(w, httptest.NewRequest(http.MethodPost, "/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestContourHandler_GeoJSON(t *testing.T) {
	s := newTestServer(t, nil)
	data := asciiBytes(t, raster.Cone(24, 24, 10))
	want := referenceCount(t, data, pipeline.DefaultConfig())
	require.Positive(t, want)

	w := httptest.NewRecorder()
	s.contourHandler(w, uploadRequest(t, "cone.asc", data, nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/geo+json", w.Header().Get("Content-Type"))
	assert.Equal(t, fmt.Sprint(want), w.Header().Get("X-Contour-Polylines"))

	var fc struct {
		Type     string            `json:"type"`
		Features []json.RawMessage `json:"features"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	assert.Len(t, fc.Features, want)
}

func TestContourHandler_JSON(t *testing.T) {
	s := newTestServer(t, nil)
	data := asciiBytes(t, raster.Cone(24, 24, 10))
	want := referenceCount(t, data, pipeline.DefaultConfig())

	w := httptest.NewRecorder()
	s.contourHandler(w, uploadRequest(t, "cone.asc", data, map[string]string{"format": "json"}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp ContourResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 24, resp.Summary.Width)
	assert.Equal(t, 24, resp.Summary.Height)
	assert.Equal(t, want, resp.Summary.Polylines)
	assert.Equal(t, want, resp.Summary.Stats.Polylines)
	assert.Len(t, resp.Polylines, want)

	closed := 0
	for _, pl := range resp.Polylines {
		if pl.Closed {
			closed++
		}
	}
	assert.Positive(t, closed, "rings around the peak are closed")
}

func TestContourHandler_CSVWithLevels(t *testing.T) {
	s := newTestServer(t, nil)
	data := asciiBytes(t, raster.Cone(24, 24, 10))

	w := httptest.NewRecorder()
	s.contourHandler(w, uploadRequest(t, "cone.asc", data, map[string]string{
		"format": "csv",
		"levels": "2.5, 7.5",
	}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Equal(t, "2", w.Header().Get("X-Contour-Levels"))

	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	require.NotEmpty(t, lines)
	assert.Equal(t, "id,elev,points,wkt", lines[0])
	for _, line := range lines[1:] {
		fields := strings.SplitN(line, ",", 3)
		assert.Contains(t, []string{"2.5", "7.5"}, fields[1])
	}
}

func TestContourHandler_IntervalAndOffset(t *testing.T) {
	s := newTestServer(t, nil)
	data := asciiBytes(t, raster.Ramp(16, 8, 1))

	w := httptest.NewRecorder()
	s.contourHandler(w, uploadRequest(t, "ramp.asc", data, map[string]string{
		"format":   "json",
		"interval": "4",
		"offset":   "1",
	}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp ContourResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Summary.Levels)
	for _, lvl := range resp.Summary.Levels {
		assert.InDelta(t, 0, math.Remainder(lvl-1, 4), 1e-9, "level %v", lvl)
	}
}

func TestContourHandler_PNG16(t *testing.T) {
	s := newTestServer(t, nil)
	g := raster.Cone(20, 20, 50)
	var buf bytes.Buffer
	require.NoError(t, raster.EncodePNG16(&buf, g, 1, 0))

	w := httptest.NewRecorder()
	s.contourHandler(w, uploadRequest(t, "dem.png", buf.Bytes(), map[string]string{
		"format":   "json",
		"interval": "10",
	}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp ContourResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 20, resp.Summary.Width)
	assert.NotEmpty(t, resp.Polylines)
}

func TestContourHandler_Errors(t *testing.T) {
	data := asciiBytes(t, raster.Ramp(8, 8, 1))

	tests := []struct {
		name   string
		req    func(t *testing.T) *http.Request
		status int
	}{
		{
			name:   "wrong method",
			req:    func(t *testing.T) *http.Request { return httptest.NewRequest(http.MethodGet, "/contour", nil) },
			status: http.StatusMethodNotAllowed,
		},
		{
			name: "not multipart",
			req: func(t *testing.T) *http.Request {
				return httptest.NewRequest(http.MethodPost, "/contour", strings.NewReader("x"))
			},
			status: http.StatusBadRequest,
		},
		{
			name:   "missing file",
			req:    func(t *testing.T) *http.Request { return uploadRequest(t, "", nil, map[string]string{"interval": "1"}) },
			status: http.StatusBadRequest,
		},
		{
			name: "bad interval",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "a.asc", data, map[string]string{"interval": "abc"})
			},
			status: http.StatusBadRequest,
		},
		{
			name: "zero interval",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "a.asc", data, map[string]string{"interval": "0"})
			},
			status: http.StatusBadRequest,
		},
		{
			name: "bad level",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "a.asc", data, map[string]string{"levels": "1,x"})
			},
			status: http.StatusBadRequest,
		},
		{
			name: "unknown format",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "a.asc", data, map[string]string{"format": "shp"})
			},
			status: http.StatusBadRequest,
		},
		{
			name: "undecodable image",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "a.png", []byte("not a png"), nil)
			},
			status: http.StatusBadRequest,
		},
		{
			name: "truncated grid",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "a.asc", []byte("ncols 4\nnrows 4\nxllcorner 0\nyllcorner 0\ncellsize 1\n1 2 3 4\n"), nil)
			},
			status: http.StatusBadRequest,
		},
		{
			name: "too large",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "big.asc", bytes.Repeat([]byte("1 "), 1<<20), nil)
			},
			status: http.StatusRequestEntityTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, nil)
			w := httptest.NewRecorder()
			s.contourHandler(w, tt.req(t))
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			resp := decodeError(t, w)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestRequestConfig(t *testing.T) {
	s := newTestServer(t, func(c *Config) {
		c.Pipeline.FixedLevels = []float64{1, 2}
		c.Pipeline.IgnoreNoData = true
	})

	cfg, err := s.requestConfig(ContourOptions{})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, cfg.FixedLevels)

	interval := 5.0
	cfg, err = s.requestConfig(ContourOptions{Interval: &interval})
	require.NoError(t, err)
	assert.Nil(t, cfg.FixedLevels, "an explicit interval replaces fixed levels")
	assert.Equal(t, 5.0, cfg.Interval)

	nd := -9999.0
	cfg, err = s.requestConfig(ContourOptions{NoData: &nd, Levels: []float64{3}})
	require.NoError(t, err)
	assert.True(t, cfg.NoDataSet)
	assert.False(t, cfg.IgnoreNoData)
	assert.Equal(t, []float64{3}, cfg.FixedLevels)

	// The server defaults are not modified by requests.
	assert.Equal(t, []float64{1, 2}, s.pipeline.FixedLevels)
}

func TestParseLevels(t *testing.T) {
	levels, err := parseLevels(" 1, 2.5 ,,-3 ")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2.5, -3}, levels)

	levels, err = parseLevels("")
	require.NoError(t, err)
	assert.Nil(t, levels)

	_, err = parseLevels("1,two")
	assert.Error(t, err)
}

func TestNormalizeFormat(t *testing.T) {
	for in, want := range map[string]string{"": "geojson", "GeoJSON": "geojson", "json": "json", " csv ": "csv"} {
		got, err := normalizeFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := normalizeFormat("yaml")
	assert.Error(t, err)
}

func TestDecodeUpload_Fallback(t *testing.T) {
	data := asciiBytes(t, raster.Ramp(4, 3, 1))

	for _, name := range []string{"grid.asc", "grid.txt", "grid"} {
		src, err := decodeUpload(name, data, raster.DefaultImageOptions())
		require.NoError(t, err, name)
		assert.Equal(t, 4, src.Width())
		assert.Equal(t, 3, src.Height())
	}

	_, err := decodeUpload("grid.tif", data, raster.DefaultImageOptions())
	assert.Error(t, err)
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("run: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{fmt.Errorf("read row 3: %w", io.ErrUnexpectedEOF), http.StatusBadRequest},
		{fmt.Errorf("contour row 3: %w", contour.ErrAllocation), http.StatusUnprocessableEntity},
		{contour.ErrInconsistentTopology, http.StatusUnprocessableEntity},
		{fmt.Errorf("read row 1: %w", &raster.FormatError{Err: io.EOF}), http.StatusBadRequest},
		{&contour.SinkError{Level: 1, Err: errors.New("disk full")}, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusForError(tt.err), tt.err.Error())
	}
}

func TestSetupRoutes(t *testing.T) {
	s := newTestServer(t, nil)
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "isoline_http_requests_total")
}
