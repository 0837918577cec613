// Package state owns the observable result state of the frame pipeline.
// Every write goes through Store, which serializes them behind one mutex and
// fans snapshots out to subscribers.
package state

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/MeKo-Tech/litelens/internal/vision"
)

// Snapshot is an immutable copy of the pipeline state.
type Snapshot struct {
	Mode          vision.Mode                 `json:"mode"`
	Generation    uint64                      `json:"generation"`
	Searching     bool                        `json:"searching"`
	SheetVisible  bool                        `json:"sheet_visible"`
	Detections    []vision.Detection          `json:"detections"`
	Translation   *vision.VisualSearchResult  `json:"translation,omitempty"`
	SearchResults []vision.VisualSearchResult `json:"search_results"`
	Message       string                      `json:"message,omitempty"`
	UpdatedAt     time.Time                   `json:"updated_at"`
}

func (s Snapshot) clone() Snapshot {
	s.Detections = slices.Clone(s.Detections)
	s.SearchResults = slices.Clone(s.SearchResults)
	if s.Translation != nil {
		t := *s.Translation
		s.Translation = &t
	}
	return s
}

// Option configures a Store.
type Option func(*Store)

// WithAutoPresent shows the result sheet whenever search results or a
// translation arrive.
func WithAutoPresent(enabled bool) Option {
	return func(s *Store) { s.autoPresent = enabled }
}

// WithMode sets the initial analysis mode.
func WithMode(m vision.Mode) Option {
	return func(s *Store) { s.snap.Mode = m }
}

// Store is the single writer of pipeline state.
type Store struct {
	mu          sync.Mutex
	snap        Snapshot
	subs        map[int]chan Snapshot
	nextSub     int
	autoPresent bool
}

// NewStore creates a Store in object mode at generation 1.
func NewStore(opts ...Option) *Store {
	s := &Store{
		snap: Snapshot{Mode: vision.ModeObject, Generation: 1, UpdatedAt: time.Now()},
		subs: make(map[int]chan Snapshot),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.clone()
}

// Searching reports whether a visual search is in flight.
func (s *Store) Searching() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Searching
}

// SheetVisible reports whether a result sheet is being shown.
func (s *Store) SheetVisible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.SheetVisible
}

// Mode returns the active analysis mode.
func (s *Store) Mode() vision.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Mode
}

// Generation returns the token that results must carry to be accepted.
func (s *Store) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Generation
}

// Current returns the mode and generation read under one lock.
func (s *Store) Current() (vision.Mode, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Mode, s.snap.Generation
}

// SetMode switches the analysis mode, clears mode-specific results and starts
// a new generation. Setting the current mode is a no-op.
func (s *Store) SetMode(m vision.Mode) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m == s.snap.Mode {
		return s.snap.Generation
	}
	s.snap.Mode = m
	s.snap.Generation++
	s.snap.Detections = nil
	s.snap.Translation = nil
	s.snap.Message = ""
	slog.Info("Analysis mode changed", "mode", m, "generation", s.snap.Generation)
	s.publishLocked()
	return s.snap.Generation
}

// BeginSearch marks a visual search for generation gen as started. It returns
// false if one is already running or gen is no longer current.
func (s *Store) BeginSearch(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap.Searching || !s.currentLocked(gen, "search") {
		return false
	}
	s.snap.Searching = true
	s.publishLocked()
	return true
}

// EndSearch clears the searching flag.
func (s *Store) EndSearch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.snap.Searching {
		return
	}
	s.snap.Searching = false
	s.publishLocked()
}

// ShowSheet marks the result sheet as presented.
func (s *Store) ShowSheet() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap.SheetVisible {
		return
	}
	s.snap.SheetVisible = true
	s.publishLocked()
}

// DismissSheet hides the result sheet so analysis can resume.
func (s *Store) DismissSheet() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.snap.SheetVisible {
		return
	}
	s.snap.SheetVisible = false
	s.publishLocked()
}

// PublishDetections replaces the latest detections. Results from an older
// generation are discarded and false is returned.
func (s *Store) PublishDetections(gen uint64, dets []vision.Detection) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.currentLocked(gen, "detections") {
		return false
	}
	s.snap.Detections = slices.Clone(dets)
	s.publishLocked()
	return true
}

// PublishTranslation replaces the latest translation.
func (s *Store) PublishTranslation(gen uint64, r vision.VisualSearchResult) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.currentLocked(gen, "translation") {
		return false
	}
	s.snap.Translation = &r
	s.snap.Message = ""
	if s.autoPresent {
		s.snap.SheetVisible = true
	}
	s.publishLocked()
	return true
}

// PublishSearchResults replaces the visual search results.
func (s *Store) PublishSearchResults(gen uint64, results []vision.VisualSearchResult) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.currentLocked(gen, "search_results") {
		return false
	}
	s.snap.SearchResults = slices.Clone(results)
	s.snap.Message = ""
	if s.autoPresent && len(results) > 0 {
		s.snap.SheetVisible = true
	}
	s.publishLocked()
	return true
}

// Notify surfaces a user-facing status line, typically derived from an error.
func (s *Store) Notify(gen uint64, message string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.currentLocked(gen, "message") {
		return false
	}
	if s.snap.Message == message {
		return true
	}
	s.snap.Message = message
	s.publishLocked()
	return true
}

// ReportError surfaces err to the user as a status line.
func (s *Store) ReportError(gen uint64, err error) bool {
	if err == nil {
		return false
	}
	return s.Notify(gen, vision.UserMessage(err))
}

// Subscribe returns a channel receiving a snapshot after every change. Slow
// subscribers only see the latest snapshot. cancel closes the channel.
func (s *Store) Subscribe() (<-chan Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan Snapshot, 1)
	ch <- s.snap.clone()
	s.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

func (s *Store) currentLocked(gen uint64, what string) bool {
	if gen != s.snap.Generation {
		slog.Debug("Discarding stale result", "kind", what, "generation", gen, "current", s.snap.Generation)
		return false
	}
	return true
}

func (s *Store) publishLocked() {
	s.snap.UpdatedAt = time.Now()
	for _, ch := range s.subs {
		snap := s.snap.clone()
		select {
		case ch <- snap:
		default:
			// drop the stale snapshot and replace it
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}
