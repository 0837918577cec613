package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/litelens/internal/utils"
	"github.com/MeKo-Tech/litelens/internal/version"
	"github.com/MeKo-Tech/litelens/internal/vision"
)

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: version.Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	})
}

// stateHandler returns the current pipeline snapshot.
func (s *Server) stateHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.analyzer.Store().Snapshot())
}

// modeHandler switches between object and text analysis.
func (s *Server) modeHandler(w http.ResponseWriter, r *http.Request) {
	var req ModeRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil {
		s.writeErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	mode, ok := vision.ParseMode(strings.TrimSpace(req.Mode))
	if !ok {
		s.writeErrorResponse(w, "Unknown mode: "+req.Mode, http.StatusBadRequest)
		return
	}
	gen := s.analyzer.SetMode(mode)
	slog.Info("Mode switched", "mode", mode, "generation", gen)
	writeJSON(w, http.StatusOK, ModeResponse{Mode: mode, Generation: gen})
}

// viewportHandler updates the on-screen viewport used for crop boxes.
func (s *Server) viewportHandler(w http.ResponseWriter, r *http.Request) {
	var req ViewportRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil {
		s.writeErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Width <= 0 || req.Height <= 0 {
		s.writeErrorResponse(w, "Viewport must be positive", http.StatusBadRequest)
		return
	}
	s.analyzer.SetViewport(req.Width, req.Height)
	writeJSON(w, http.StatusOK, s.analyzer.Viewport())
}

// dismissHandler hides the result sheet.
func (s *Server) dismissHandler(w http.ResponseWriter, _ *http.Request) {
	s.analyzer.Store().DismissSheet()
	w.WriteHeader(http.StatusNoContent)
}

// frameHandler ingests one camera frame, either as a raw image body or as a
// multipart "image" field. The optional rotation query parameter carries the
// sensor rotation in degrees.
func (s *Server) frameHandler(w http.ResponseWriter, r *http.Request) {
	limit := s.maxFrameMB * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	data, err := readFrameBody(r, limit)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			s.writeErrorResponse(w, "Frame too large", http.StatusRequestEntityTooLarge)
			return
		}
		s.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	uploadSizeBytes.Observe(float64(len(data)))

	rotation := 0
	if v := r.URL.Query().Get("rotation"); v != "" {
		rotation, err = strconv.Atoi(v)
		if err != nil {
			s.writeErrorResponse(w, "Invalid rotation", http.StatusBadRequest)
			return
		}
	}

	img, _, err := utils.DecodeImage(data)
	if err != nil {
		s.writeErrorResponse(w, "Invalid image format", http.StatusBadRequest)
		return
	}

	seq := s.nextSeq()
	outcome := s.analyzer.Analyze(vision.NewFrame(img, rotation, seq, nil))
	writeJSON(w, http.StatusAccepted, FrameResponse{Seq: seq, Outcome: outcome})
}

func readFrameBody(r *http.Request, limit int64) ([]byte, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(limit); err != nil {
			return nil, err
		}
		file, _, err := r.FormFile("image")
		if err != nil {
			return nil, errors.New("no image file provided")
		}
		defer func() { _ = file.Close() }()
		return io.ReadAll(file)
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("empty frame")
	}
	return data, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeErrorResponse writes a JSON error response.
func (s *Server) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, statusCode, ErrorResponse{Success: false, Error: message})
}
