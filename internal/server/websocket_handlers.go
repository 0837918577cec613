package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/litelens/internal/utils"
	"github.com/MeKo-Tech/litelens/internal/vision"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	writeWait  = 10 * time.Second
)

// WebSocket upgrader with reasonable defaults.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 16 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Camera clients are native apps and local pages
		return true
	},
}

// Message types pushed to camera clients.
const (
	msgState = "state"
	msgFrame = "frame"
	msgError = "error"
)

// WebSocketMessage represents a message sent over WebSocket.
type WebSocketMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// WebSocketControl is a text message sent by the camera client. Binary
// messages carry encoded frames instead.
type WebSocketControl struct {
	Type     string `json:"type"` // rotation, mode, viewport, dismiss
	Rotation int    `json:"rotation,omitempty"`
	Mode     string `json:"mode,omitempty"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
}

// WebSocketError is the payload of an error message.
type WebSocketError struct {
	ErrorType string `json:"error_type"`
	Message   string `json:"message"`
}

// cameraWebSocketHandler streams frames in and state snapshots out.
func (s *Server) cameraWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	rotation := 0
	if v := r.URL.Query().Get("rotation"); v != "" {
		var err error
		if rotation, err = strconv.Atoi(v); err != nil {
			s.writeErrorResponse(w, "Invalid rotation", http.StatusBadRequest)
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	websocketConnections.Inc()
	defer websocketConnections.Dec()

	slog.Info("Camera connected", "remote_addr", r.RemoteAddr)
	err = s.handleCameraConnection(r.Context(), conn, &cameraSession{rotation: rotation})
	slog.Info("Camera disconnected", "remote_addr", r.RemoteAddr, "error", err)
}

// cameraSession is the per-connection state touched only by the read loop.
type cameraSession struct {
	rotation int
}

// handleCameraConnection runs the read and write loops until either side
// fails or the client goes away.
func (s *Server) handleCameraConnection(ctx context.Context, conn *websocket.Conn, sess *cameraSession) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	conn.SetReadLimit(s.maxFrameMB * 1024 * 1024)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	out := make(chan WebSocketMessage, 16)
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
					return err
				}
				return nil
			}
			_ = conn.SetReadDeadline(time.Now().Add(pongWait))
			websocketMessagesTotal.WithLabelValues("received").Inc()

			var reply *WebSocketMessage
			switch mt {
			case websocket.BinaryMessage:
				reply = s.handleCameraFrame(sess, data)
			case websocket.TextMessage:
				reply = s.handleCameraControl(sess, data)
			}
			if reply == nil {
				continue
			}
			select {
			case out <- *reply:
			case <-ctx.Done():
				return nil
			}
		}
	})

	g.Go(func() error {
		// unblock the read loop once writing stops
		defer func() { _ = conn.Close() }()

		snaps, unsubscribe := s.analyzer.Store().Subscribe()
		defer unsubscribe()
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
				return nil
			case snap, ok := <-snaps:
				if !ok {
					return nil
				}
				if err := writeMessage(conn, WebSocketMessage{Type: msgState, Payload: snap}); err != nil {
					return err
				}
			case msg := <-out:
				if err := writeMessage(conn, msg); err != nil {
					return err
				}
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return err
				}
			}
		}
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// handleCameraFrame decodes and analyzes one binary frame.
func (s *Server) handleCameraFrame(sess *cameraSession, data []byte) *WebSocketMessage {
	img, _, err := utils.DecodeImage(data)
	if err != nil {
		return errorMessage("invalid_frame", fmt.Sprintf("Failed to decode frame: %v", err))
	}
	uploadSizeBytes.Observe(float64(len(data)))
	seq := s.nextSeq()
	outcome := s.analyzer.Analyze(vision.NewFrame(img, sess.rotation, seq, nil))
	return &WebSocketMessage{Type: msgFrame, Payload: FrameResponse{Seq: seq, Outcome: outcome}}
}

// handleCameraControl applies a control message. Successful controls are
// acknowledged through the next state push, so only errors reply directly.
func (s *Server) handleCameraControl(sess *cameraSession, data []byte) *WebSocketMessage {
	var ctl WebSocketControl
	if err := json.Unmarshal(data, &ctl); err != nil {
		return errorMessage("invalid_request", fmt.Sprintf("Failed to parse control: %v", err))
	}

	switch strings.ToLower(ctl.Type) {
	case "rotation":
		sess.rotation = vision.NormalizeRotation(ctl.Rotation)
	case "mode":
		mode, ok := vision.ParseMode(ctl.Mode)
		if !ok {
			return errorMessage("invalid_request", "Unknown mode: "+ctl.Mode)
		}
		s.analyzer.SetMode(mode)
	case "viewport":
		if ctl.Width <= 0 || ctl.Height <= 0 {
			return errorMessage("invalid_request", "Viewport must be positive")
		}
		s.analyzer.SetViewport(ctl.Width, ctl.Height)
	case "dismiss":
		s.analyzer.Store().DismissSheet()
	default:
		return errorMessage("invalid_request", "Unsupported control type: "+ctl.Type)
	}
	return nil
}

func errorMessage(errorType, message string) *WebSocketMessage {
	return &WebSocketMessage{Type: msgError, Payload: WebSocketError{ErrorType: errorType, Message: message}}
}

// WebSocketConnWriter is the write side of a websocket connection.
type WebSocketConnWriter interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
}

func writeMessage(conn WebSocketConnWriter, msg WebSocketMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("Failed to marshal WebSocket message", "type", msg.Type, "error", err)
		return nil
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	websocketMessagesTotal.WithLabelValues("sent").Inc()
	return nil
}
