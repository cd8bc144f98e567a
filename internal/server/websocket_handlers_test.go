package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MeKo-Tech/isoline/internal/pipeline"
	"github.com/MeKo-Tech/isoline/internal/raster"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingConn captures messages written by the handler.
type recordingConn struct {
	messages []WebSocketMessage
	raw      []json.RawMessage
	failAt   int
}

func (c *recordingConn) WriteMessage(messageType int, data []byte) error {
	if c.failAt > 0 && len(c.raw)+1 >= c.failAt {
		return errors.New("connection closed")
	}
	var envelope struct {
		WebSocketMessage
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return err
	}
	c.messages = append(c.messages, envelope.WebSocketMessage)
	c.raw = append(c.raw, envelope.Payload)
	return nil
}

func (c *recordingConn) types() []string {
	out := make([]string, len(c.messages))
	for i, m := range c.messages {
		out[i] = m.Type
	}
	return out
}

func (c *recordingConn) count(typ string) int {
	n := 0
	for _, m := range c.messages {
		if m.Type == typ {
			n++
		}
	}
	return n
}

func contourRequest(t *testing.T, filename string, data []byte, opts ContourOptions) []byte {
	t.Helper()
	msg, err := json.Marshal(WebSocketRequest{
		Type:      "contour",
		RequestID: "req-1",
		Filename:  filename,
		Data:      data,
		Options:   opts,
	})
	require.NoError(t, err)
	return msg
}

func TestHandleWebSocketMessage_StreamsPolylines(t *testing.T) {
	s := newTestServer(t, nil)
	data := asciiBytes(t, raster.Cone(24, 24, 10))
	want := referenceCount(t, data, pipeline.DefaultConfig())

	conn := &recordingConn{}
	s.handleWebSocketMessage(context.Background(), conn, contourRequest(t, "cone.asc", data, ContourOptions{}))

	types := conn.types()
	require.NotEmpty(t, types)
	assert.Equal(t, "progress", types[0])
	assert.Equal(t, "completed", types[len(types)-1])
	assert.Equal(t, want, conn.count("polyline"))
	// Start, every fourth row and the last row.
	assert.Equal(t, 1+24/4, conn.count("progress"))

	for _, m := range conn.messages {
		assert.Equal(t, "req-1", m.RequestID)
	}

	var summary ContourSummary
	require.NoError(t, json.Unmarshal(conn.raw[len(conn.raw)-1], &summary))
	assert.Equal(t, want, summary.Polylines)
	assert.Equal(t, 24, summary.Height)

	var line PolylineJSON
	for i, m := range conn.messages {
		if m.Type == "polyline" {
			require.NoError(t, json.Unmarshal(conn.raw[i], &line))
			break
		}
	}
	assert.GreaterOrEqual(t, len(line.Points), 2)
}

func TestHandleWebSocketMessage_PolylinesArriveBeforeEnd(t *testing.T) {
	// Rings around separated pits close long before the last row.
	s := newTestServer(t, nil)
	g := raster.Pits(32, 64, 10, 5, raster.Pixel{Col: 8, Row: 6}, raster.Pixel{Col: 24, Row: 56})
	data := asciiBytes(t, g)

	conn := &recordingConn{}
	s.handleWebSocketMessage(context.Background(), conn, contourRequest(t, "pits.asc", data, ContourOptions{}))

	firstPolyline, lastProgress := -1, -1
	for i, m := range conn.messages {
		switch m.Type {
		case "polyline":
			if firstPolyline < 0 {
				firstPolyline = i
			}
		case "progress":
			lastProgress = i
		}
	}
	require.GreaterOrEqual(t, firstPolyline, 0)
	assert.Less(t, firstPolyline, lastProgress, "polylines are streamed while rows are still being fed")
}

func TestHandleWebSocketMessage_Errors(t *testing.T) {
	s := newTestServer(t, nil)
	data := asciiBytes(t, raster.Ramp(4, 4, 1))
	zero := 0.0

	tests := []struct {
		name      string
		msg       []byte
		errorType string
	}{
		{"malformed json", []byte("{"), "invalid_request"},
		{"unknown type", []byte(`{"type":"render"}`), "invalid_request"},
		{"no data", []byte(`{"type":"contour"}`), "invalid_request"},
		{"bad options", contourRequest(t, "a.asc", data, ContourOptions{Interval: &zero}), "invalid_request"},
		{"bad raster", contourRequest(t, "a.png", []byte("nope"), ContourOptions{}), "invalid_raster"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := &recordingConn{}
			s.handleWebSocketMessage(context.Background(), conn, tt.msg)
			require.Len(t, conn.messages, 1)
			assert.Equal(t, "error", conn.messages[0].Type)

			var payload ErrorPayload
			require.NoError(t, json.Unmarshal(conn.raw[0], &payload))
			assert.Equal(t, tt.errorType, payload.ErrorType)
			assert.NotEmpty(t, payload.Message)
		})
	}
}

func TestHandleWebSocketMessage_WriteFailureAbortsTrace(t *testing.T) {
	s := newTestServer(t, nil)
	data := asciiBytes(t, raster.Cone(24, 24, 10))

	// Fail once the first few messages are out; the sink error stops the
	// generator and no completed message is produced.
	conn := &recordingConn{failAt: 3}
	s.handleWebSocketMessage(context.Background(), conn, contourRequest(t, "cone.asc", data, ContourOptions{}))
	assert.Zero(t, conn.count("completed"))
}

func TestContourWebSocket_EndToEnd(t *testing.T) {
	s := newTestServer(t, nil)
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/contour"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	data := asciiBytes(t, raster.Cone(16, 16, 8))
	want := referenceCount(t, data, pipeline.DefaultConfig())
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, contourRequest(t, "cone.asc", data, ContourOptions{})))

	polylines := 0
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	for {
		var msg struct {
			Type    string          `json:"type"`
			Payload json.RawMessage `json:"payload"`
		}
		require.NoError(t, conn.ReadJSON(&msg))
		switch msg.Type {
		case "polyline":
			polylines++
		case "error":
			t.Fatalf("unexpected error message: %s", msg.Payload)
		case "completed":
			var summary ContourSummary
			require.NoError(t, json.Unmarshal(msg.Payload, &summary))
			assert.Equal(t, want, summary.Polylines)
			assert.Equal(t, want, polylines)
			return
		}
	}
}
