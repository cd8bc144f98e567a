package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/MeKo-Tech/isoline/internal/contour"
	"github.com/gorilla/websocket"
)

const (
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
	wsWriteWait  = 10 * time.Second
)

// WebSocket upgrader with reasonable defaults.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketRequest asks for one raster to be traced. Data carries the raw
// file bytes, base64 encoded on the wire.
type WebSocketRequest struct {
	Type      string         `json:"type"`
	RequestID string         `json:"request_id,omitempty"`
	Filename  string         `json:"filename,omitempty"`
	Data      []byte         `json:"data,omitempty"`
	Options   ContourOptions `json:"options"`
}

// WebSocketMessage is every message the server sends. Type is one of
// progress, polyline, completed or error.
type WebSocketMessage struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// ProgressPayload reports rows fed so far.
type ProgressPayload struct {
	Row   int `json:"row"`
	Total int `json:"total"`
}

// ErrorPayload describes a failed request.
type ErrorPayload struct {
	ErrorType string `json:"error_type"`
	Message   string `json:"message"`
}

// WebSocketConnWriter is an interface for writing WebSocket messages.
type WebSocketConnWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// contourWebSocketHandler streams contouring results over a WebSocket.
func (s *Server) contourWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	websocketConnections.Inc()
	defer websocketConnections.Dec()

	s.logger.Info("WebSocket connection established", "remote_addr", r.RemoteAddr)
	s.handleWebSocketConnection(r.Context(), conn)
}

// handleWebSocketConnection serves requests until the client goes away.
func (s *Server) handleWebSocketConnection(ctx context.Context, conn *websocket.Conn) {
	conn.SetReadLimit(s.maxUploadMB*1024*1024*4/3 + 4096)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
					return
				}
			}
		}
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("WebSocket closed", "error", err)
			}
			return
		}
		websocketMessagesTotal.WithLabelValues("received").Inc()

		if messageType == websocket.TextMessage {
			s.handleWebSocketMessage(ctx, conn, data)
		}
	}
}

// handleWebSocketMessage traces one request, streaming every polyline as
// soon as the generator ejects it.
func (s *Server) handleWebSocketMessage(ctx context.Context, conn WebSocketConnWriter, data []byte) {
	var req WebSocketRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.sendWebSocketError(conn, "", "invalid_request", fmt.Sprintf("failed to parse request: %v", err))
		return
	}
	id := req.RequestID
	if id == "" {
		id = strconv.FormatInt(time.Now().UnixNano(), 10)
	}

	if req.Type != "contour" {
		s.sendWebSocketError(conn, id, "invalid_request", "unsupported request type: "+req.Type)
		return
	}
	if len(req.Data) == 0 {
		s.sendWebSocketError(conn, id, "invalid_request", "no raster data provided")
		return
	}

	cfg, err := s.requestConfig(req.Options)
	if err != nil {
		s.sendWebSocketError(conn, id, "invalid_request", fmt.Sprintf("invalid contour options: %v", err))
		return
	}
	src, err := decodeUpload(req.Filename, req.Data, s.image)
	if err != nil {
		s.sendWebSocketError(conn, id, "invalid_raster", fmt.Sprintf("invalid raster: %v", err))
		return
	}
	defer func() { _ = src.Close() }()

	ctx, cancel := context.WithTimeout(ctx, time.Duration(s.timeoutSec)*time.Second)
	defer cancel()

	cfg.Progress = &wsProgress{s: s, conn: conn, id: id}
	cfg.ProgressEvery = max(s.progressEvery, 1)

	transform := src.GeoTransform()
	sink := contour.SinkFunc(func(level float64, pts []contour.Point) error {
		return s.sendWebSocketMessage(conn, WebSocketMessage{
			Type:      "polyline",
			RequestID: id,
			Payload:   toPolylineJSON(transform, level, pts),
		})
	})

	summary, err := s.trace(ctx, "websocket", src, cfg, sink)
	if err != nil {
		s.sendWebSocketError(conn, id, "processing_error", fmt.Sprintf("contouring failed: %v", err))
		return
	}
	_ = s.sendWebSocketMessage(conn, WebSocketMessage{Type: "completed", RequestID: id, Payload: summary})
}

// wsProgress forwards pipeline progress as progress messages.
type wsProgress struct {
	s    *Server
	conn WebSocketConnWriter
	id   string
}

func (p *wsProgress) OnStart(total int) { p.send(0, total) }

func (p *wsProgress) OnProgress(current, total int) { p.send(current, total) }

func (p *wsProgress) OnComplete() {}

func (p *wsProgress) OnError(int, error) {}

func (p *wsProgress) send(row, total int) {
	_ = p.s.sendWebSocketMessage(p.conn, WebSocketMessage{
		Type:      "progress",
		RequestID: p.id,
		Payload:   ProgressPayload{Row: row, Total: total},
	})
}

// sendWebSocketMessage marshals and writes one message.
func (s *Server) sendWebSocketMessage(conn WebSocketConnWriter, msg WebSocketMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("failed to marshal WebSocket message", "error", err)
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.logger.Error("failed to send WebSocket message", "error", err)
		return err
	}
	websocketMessagesTotal.WithLabelValues("sent").Inc()
	return nil
}

// sendWebSocketError sends an error message over WebSocket.
func (s *Server) sendWebSocketError(conn WebSocketConnWriter, id, errorType, message string) {
	_ = s.sendWebSocketMessage(conn, WebSocketMessage{
		Type:      "error",
		RequestID: id,
		Payload:   ErrorPayload{ErrorType: errorType, Message: message},
	})
}
