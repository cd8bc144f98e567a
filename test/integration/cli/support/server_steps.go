package support

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MeKo-Tech/isoline/internal/config"
	"github.com/MeKo-Tech/isoline/internal/server"
	"github.com/cucumber/godog"
	"github.com/gorilla/websocket"
)

// startServer runs the contour server in-process behind httptest.
func (testCtx *TestContext) startServer(configure func(*config.Config)) error {
	testCtx.StopServer()

	cfg := config.DefaultConfig()
	cfg.Server.CORSOrigin = testCtx.ServerCORS
	if configure != nil {
		configure(&cfg)
	}
	serverCfg := cfg.ToServerConfig()
	serverCfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	srv, err := server.NewServer(serverCfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	mux := http.NewServeMux()
	srv.SetupRoutes(mux)
	testCtx.HTTPServer = httptest.NewServer(mux)
	return nil
}

func (testCtx *TestContext) theContourServerIsRunning() error {
	return testCtx.startServer(nil)
}

func (testCtx *TestContext) theContourServerIsRunningWithRequestsPerMinute(n int) error {
	return testCtx.startServer(func(c *config.Config) { c.Server.RequestsPerMinute = n })
}

func (testCtx *TestContext) theContourServerIsRunningWithCORSOrigin(origin string) error {
	return testCtx.startServer(func(c *config.Config) { c.Server.CORSOrigin = origin })
}

func (testCtx *TestContext) theContourServerIsRunningWithUploadLimit(mb int) error {
	return testCtx.startServer(func(c *config.Config) { c.Server.MaxUploadMB = mb })
}

// do sends a request and records status, headers and body.
func (testCtx *TestContext) do(req *http.Request) error {
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	testCtx.LastHTTPStatusCode = resp.StatusCode
	testCtx.LastHTTPResponse = string(body)
	testCtx.LastHTTPHeaders = make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		testCtx.LastHTTPHeaders[k] = resp.Header.Get(k)
	}
	return nil
}

func (testCtx *TestContext) serverURL(path string) (string, error) {
	if testCtx.HTTPServer == nil {
		return "", fmt.Errorf("server is not running")
	}
	return testCtx.HTTPServer.URL + path, nil
}

func (testCtx *TestContext) iSendRequest(method, path string) error {
	url, err := testCtx.serverURL(path)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(context.Background(), method, url, nil)
	if err != nil {
		return err
	}
	return testCtx.do(req)
}

// upload posts one file as the raster form field plus optional form fields.
func (testCtx *TestContext) upload(path, filename string, data []byte, fields map[string]string) error {
	url, err := testCtx.serverURL(path)
	if err != nil {
		return err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("raster", filename)
	if err != nil {
		return err
	}
	if _, err := part.Write(data); err != nil {
		return err
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return testCtx.do(req)
}

func (testCtx *TestContext) readRaster(name string) (string, []byte, error) {
	path, ok := testCtx.Rasters[name]
	if !ok {
		return "", nil, fmt.Errorf("no raster named %q", name)
	}
	data, err := os.ReadFile(path) //nolint:gosec // G304: test temp path
	if err != nil {
		return "", nil, err
	}
	return filepath.Base(path), data, nil
}

func (testCtx *TestContext) iUploadRaster(name, path string) error {
	filename, data, err := testCtx.readRaster(name)
	if err != nil {
		return err
	}
	return testCtx.upload(path, filename, data, nil)
}

func (testCtx *TestContext) iUploadRasterWithField(name, path, field, value string) error {
	filename, data, err := testCtx.readRaster(name)
	if err != nil {
		return err
	}
	return testCtx.upload(path, filename, data, map[string]string{field: value})
}

func (testCtx *TestContext) iUploadJunk(kb int, filename string) error {
	return testCtx.upload("/contour", filename, bytes.Repeat([]byte("x"), kb*1024), nil)
}

func (testCtx *TestContext) theResponseStatusShouldBe(code int) error {
	if testCtx.LastHTTPStatusCode != code {
		return fmt.Errorf("status is %d, expected %d\nBody: %s",
			testCtx.LastHTTPStatusCode, code, testCtx.LastHTTPResponse)
	}
	return nil
}

func (testCtx *TestContext) theResponseHeaderShouldBe(name, value string) error {
	got := testCtx.LastHTTPHeaders[http.CanonicalHeaderKey(name)]
	if got != value {
		return fmt.Errorf("header %s is %q, expected %q", name, got, value)
	}
	return nil
}

func (testCtx *TestContext) theResponseShouldContain(expected string) error {
	if !strings.Contains(testCtx.LastHTTPResponse, expected) {
		return fmt.Errorf("response does not contain %q\nBody: %s", expected, testCtx.LastHTTPResponse)
	}
	return nil
}

func (testCtx *TestContext) theResponseJSONFieldShouldBe(field string, expected int) error {
	v, err := jsonField(testCtx.LastHTTPResponse, field)
	if err != nil {
		return err
	}
	if n, ok := v.(float64); !ok || int(n) != expected {
		return fmt.Errorf("field %q is %v, expected %d", field, v, expected)
	}
	return nil
}

// theResponseShouldHoldTheContoursOf checks a json-format /contour response.
func (testCtx *TestContext) theResponseShouldHoldTheContoursOf(name string, interval float64) error {
	want, err := testCtx.referencePolylines(name, interval)
	if err != nil {
		return err
	}
	var resp server.ContourResponse
	if err := json.Unmarshal([]byte(testCtx.LastHTTPResponse), &resp); err != nil {
		return fmt.Errorf("response is not a contour response: %w", err)
	}
	if !resp.Success {
		return fmt.Errorf("response reports failure: %s", testCtx.LastHTTPResponse)
	}
	if len(resp.Polylines) != want || resp.Summary.Polylines != want {
		return fmt.Errorf("response has %d polylines (summary %d), expected %d",
			len(resp.Polylines), resp.Summary.Polylines, want)
	}
	return nil
}

// iStreamRaster sends one contour request over the WebSocket endpoint and
// reads messages until the server completes or fails it.
func (testCtx *TestContext) iStreamRaster(name string) error {
	url, err := testCtx.serverURL("/ws/contour")
	if err != nil {
		return err
	}
	filename, data, err := testCtx.readRaster(name)
	if err != nil {
		return err
	}

	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(url, "http"), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("failed to dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	err = conn.WriteJSON(server.WebSocketRequest{Type: "contour", RequestID: "godog", Filename: filename, Data: data})
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}

	testCtx.LastStreamTypes = nil
	testCtx.LastStreamPolylines = 0
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	for {
		var msg server.WebSocketMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("failed to read message: %w", err)
		}
		testCtx.LastStreamTypes = append(testCtx.LastStreamTypes, msg.Type)
		switch msg.Type {
		case "polyline":
			testCtx.LastStreamPolylines++
		case "completed", "error":
			return nil
		}
	}
}

func (testCtx *TestContext) theStreamShouldEndWith(typ string) error {
	n := len(testCtx.LastStreamTypes)
	if n == 0 || testCtx.LastStreamTypes[n-1] != typ {
		return fmt.Errorf("stream ended with %v, expected %q", testCtx.LastStreamTypes, typ)
	}
	return nil
}

func (testCtx *TestContext) theStreamShouldCarryTheContoursOf(name string, interval float64) error {
	want, err := testCtx.referencePolylines(name, interval)
	if err != nil {
		return err
	}
	if testCtx.LastStreamPolylines != want {
		return fmt.Errorf("stream carried %d polylines, expected %d", testCtx.LastStreamPolylines, want)
	}
	return nil
}

// RegisterServerSteps registers HTTP and WebSocket server steps.
func (testCtx *TestContext) RegisterServerSteps(sc *godog.ScenarioContext) {
	// Server lifecycle
	sc.Step(`^the contour server is running$`, testCtx.theContourServerIsRunning)
	sc.Step(`^the contour server is running with a limit of (\d+) requests per minute$`,
		testCtx.theContourServerIsRunningWithRequestsPerMinute)
	sc.Step(`^the contour server is running with CORS origin "([^"]*)"$`, testCtx.theContourServerIsRunningWithCORSOrigin)
	sc.Step(`^the contour server is running with a (\d+) MB upload limit$`, testCtx.theContourServerIsRunningWithUploadLimit)

	// Requests
	sc.Step(`^I send a (GET|POST|OPTIONS) request to "([^"]*)"$`, testCtx.iSendRequest)
	sc.Step(`^I upload raster "([^"]*)" to "([^"]*)"$`, testCtx.iUploadRaster)
	sc.Step(`^I upload raster "([^"]*)" to "([^"]*)" with "([^"]*)" set to "([^"]*)"$`, testCtx.iUploadRasterWithField)
	sc.Step(`^I upload (\d+) KB of junk as "([^"]*)"$`, testCtx.iUploadJunk)
	sc.Step(`^I stream raster "([^"]*)" over the WebSocket$`, testCtx.iStreamRaster)

	// Responses
	sc.Step(`^the response status should be (\d+)$`, testCtx.theResponseStatusShouldBe)
	sc.Step(`^the response header "([^"]*)" should be "([^"]*)"$`, testCtx.theResponseHeaderShouldBe)
	sc.Step(`^the response should contain "([^"]*)"$`, testCtx.theResponseShouldContain)
	sc.Step(`^the response JSON field "([^"]*)" should be (\d+)$`, testCtx.theResponseJSONFieldShouldBe)
	sc.Step(`^the response should hold the contours of "([^"]*)" at interval ([0-9.]+)$`,
		testCtx.theResponseShouldHoldTheContoursOf)
	sc.Step(`^the stream should end with "([^"]*)"$`, testCtx.theStreamShouldEndWith)
	sc.Step(`^the stream should carry the contours of "([^"]*)" at interval ([0-9.]+)$`,
		testCtx.theStreamShouldCarryTheContoursOf)
}
