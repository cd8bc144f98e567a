package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/MeKo-Tech/isoline/internal/contour"
	"github.com/MeKo-Tech/isoline/internal/output"
	"github.com/MeKo-Tech/isoline/internal/pipeline"
	"github.com/MeKo-Tech/isoline/internal/raster"
	"github.com/MeKo-Tech/isoline/internal/version"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server holds the HTTP server state. Every request runs its own contour
// generator, so a Server is safe for concurrent use.
type Server struct {
	pipeline      pipeline.Config
	image         raster.ImageOptions
	output        output.Options
	corsOrigin    string
	maxUploadMB   int64
	timeoutSec    int
	progressEvery int
	rateLimiter   *RateLimiter
	logger        *slog.Logger
}

// Config holds server configuration.
type Config struct {
	Host          string
	Port          int
	CORSOrigin    string
	MaxUploadMB   int64
	TimeoutSec    int
	ProgressEvery int
	Pipeline      pipeline.Config
	Image         raster.ImageOptions
	Output        output.Options
	RateLimits    RateLimits
	Logger        *slog.Logger
}

// HealthResponse is returned by /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Time    string `json:"time"`
}

// ContourSummary describes a finished contouring run.
type ContourSummary struct {
	Width      int                 `json:"width"`
	Height     int                 `json:"height"`
	Levels     []float64           `json:"levels"`
	Stats      contour.Stats       `json:"stats"`
	PerLevel   []output.LevelCount `json:"per_level"`
	Polylines  int                 `json:"polylines"`
	Vertices   int                 `json:"vertices"`
	DurationMs float64             `json:"duration_ms"`
}

// PolylineJSON is one polyline in world coordinates.
type PolylineJSON struct {
	Level  float64      `json:"level"`
	Closed bool         `json:"closed"`
	Points [][2]float64 `json:"points"`
}

// ContourResponse is the body of a json-format /contour response.
type ContourResponse struct {
	Success   bool           `json:"success"`
	Summary   ContourSummary `json:"summary"`
	Polylines []PolylineJSON `json:"polylines"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// NewServer creates a contouring server.
func NewServer(config Config) (*Server, error) {
	if err := config.Pipeline.Validate(); err != nil {
		return nil, err
	}
	if config.MaxUploadMB <= 0 {
		return nil, errors.New("max upload size must be positive")
	}
	if config.TimeoutSec <= 0 {
		return nil, errors.New("request timeout must be positive")
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		pipeline:      config.Pipeline,
		image:         config.Image,
		output:        config.Output,
		corsOrigin:    config.CORSOrigin,
		maxUploadMB:   config.MaxUploadMB,
		timeoutSec:    config.TimeoutSec,
		progressEvery: config.ProgressEvery,
		logger:        logger,
	}
	if s.image.Scale == 0 {
		s.image = raster.DefaultImageOptions()
	}
	if config.RateLimits.Enabled() {
		s.rateLimiter = NewRateLimiter(config.RateLimits)
	}
	return s, nil
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.corsMiddleware(s.healthHandler))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/contour", s.corsMiddleware(s.rateLimitMiddleware(s.contourHandler)))
	mux.HandleFunc("/ws/contour", s.corsMiddleware(s.rateLimitMiddleware(s.contourWebSocketHandler)))
}

func versionString() string {
	v, _, _ := version.Info()
	return v
}
