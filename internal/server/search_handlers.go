package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/MeKo-Tech/litelens/internal/state"
	"github.com/MeKo-Tech/litelens/internal/store"
	"github.com/MeKo-Tech/litelens/internal/vision"
	"github.com/gorilla/mux"
)

// listSearchesHandler returns saved searches, newest first.
func (s *Server) listSearchesHandler(w http.ResponseWriter, r *http.Request) {
	if !s.searchesEnabled(w) {
		return
	}
	list, err := s.searches.List(r.Context())
	if err != nil {
		slog.Error("Failed to list saved searches", "error", err)
		s.writeErrorResponse(w, "Failed to list saved searches", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, SavedSearchesResponse{Searches: list, Count: len(list)})
}

// saveSearchHandler stores the current capture, with its detections drawn on
// top, together with the chosen result.
func (s *Server) saveSearchHandler(w http.ResponseWriter, r *http.Request) {
	if !s.searchesEnabled(w) {
		return
	}
	var req SaveSearchRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			s.writeErrorResponse(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	snap := s.analyzer.Store().Snapshot()
	result, ok := pickResult(snap, req)
	if !ok {
		s.writeErrorResponse(w, "No result to save", http.StatusConflict)
		return
	}
	capture := captureOf(snap.Detections)
	if capture == nil {
		s.writeErrorResponse(w, "No captured frame to save", http.StatusConflict)
		return
	}

	rendered := s.renderer.Render(capture.Image, snap.Detections)
	saved, err := s.searches.Save(r.Context(), rendered, result)
	if err != nil {
		savedSearchesTotal.WithLabelValues("save", "error").Inc()
		slog.Error("Failed to save search", "error", err)
		s.writeErrorResponse(w, "Failed to save search", http.StatusInternalServerError)
		return
	}
	savedSearchesTotal.WithLabelValues("save", "success").Inc()
	slog.Info("Saved search", "id", saved.ID, "type", saved.Type)
	writeJSON(w, http.StatusCreated, saved)
}

// getSearchHandler returns one saved search.
func (s *Server) getSearchHandler(w http.ResponseWriter, r *http.Request) {
	if !s.searchesEnabled(w) {
		return
	}
	saved, err := s.searches.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// searchImageHandler returns the JPEG stored with a saved search.
func (s *Server) searchImageHandler(w http.ResponseWriter, r *http.Request) {
	if !s.searchesEnabled(w) {
		return
	}
	data, err := s.searches.Image(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	_, _ = w.Write(data)
}

// deleteSearchHandler removes a saved search and its image.
func (s *Server) deleteSearchHandler(w http.ResponseWriter, r *http.Request) {
	if !s.searchesEnabled(w) {
		return
	}
	if err := s.searches.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		savedSearchesTotal.WithLabelValues("delete", "error").Inc()
		s.writeStoreError(w, err)
		return
	}
	savedSearchesTotal.WithLabelValues("delete", "success").Inc()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) searchesEnabled(w http.ResponseWriter) bool {
	if s.searches == nil {
		s.writeErrorResponse(w, "Saved searches are disabled", http.StatusServiceUnavailable)
		return false
	}
	return true
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		s.writeErrorResponse(w, "Saved search not found", http.StatusNotFound)
		return
	}
	slog.Error("Saved search request failed", "error", err)
	s.writeErrorResponse(w, "Saved search request failed", http.StatusInternalServerError)
}

func pickResult(snap state.Snapshot, req SaveSearchRequest) (vision.VisualSearchResult, bool) {
	if req.Translation {
		if snap.Translation == nil {
			return vision.VisualSearchResult{}, false
		}
		return *snap.Translation, true
	}
	if req.Index < 0 || req.Index >= len(snap.SearchResults) {
		return vision.VisualSearchResult{}, false
	}
	return snap.SearchResults[req.Index], true
}

// captureOf returns the first detection carrying a captured image.
func captureOf(dets []vision.Detection) *vision.Detection {
	for i := range dets {
		if dets[i].Image != nil {
			return &dets[i]
		}
	}
	return nil
}
