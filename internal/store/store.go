// Package store persists saved searches. Each search is a gorm document; the
// captured frame is kept as a JPEG blob in an afero filesystem.
package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/MeKo-Tech/litelens/internal/vision"
	"github.com/disintegration/imaging"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrNotFound is returned for unknown search ids.
var ErrNotFound = errors.New("saved search not found")

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const jpegQuality = 90

// Config selects the database and blob location.
type Config struct {
	Driver string
	DSN    string
	// BlobDir holds the JPEG captures. Empty keeps them in memory.
	BlobDir string
	Debug   bool
}

// DefaultConfig stores everything in ./litelens-data.
func DefaultConfig() Config {
	return Config{
		Driver:  DriverSQLite,
		DSN:     "litelens-data/litelens.db",
		BlobDir: "litelens-data/captures",
	}
}

// SavedSearch is one persisted result together with its capture.
type SavedSearch struct {
	ID             string            `gorm:"primaryKey;size:36" json:"id"`
	Type           vision.ResultType `gorm:"not null;index" json:"type"`
	Title          string            `json:"title,omitempty"`
	URL            string            `json:"url,omitempty"`
	Snippet        string            `json:"snippet,omitempty"`
	ThumbnailURL   string            `json:"thumbnail_url,omitempty"`
	OriginalText   string            `json:"original_text,omitempty"`
	SourceLanguage string            `json:"source_language,omitempty"`
	TranslatedText string            `json:"translated_text,omitempty"`
	TargetLanguage string            `json:"target_language,omitempty"`
	ImageKey       string            `json:"-"`
	ImageWidth     int               `json:"image_width"`
	ImageHeight    int               `json:"image_height"`
	CreatedAt      time.Time         `gorm:"not null;index" json:"created_at"`
}

// Result converts the document back into a search result.
func (s SavedSearch) Result() vision.VisualSearchResult {
	return vision.VisualSearchResult{
		Type:           s.Type,
		Title:          s.Title,
		URL:            s.URL,
		Snippet:        s.Snippet,
		ThumbnailURL:   s.ThumbnailURL,
		OriginalText:   s.OriginalText,
		SourceLanguage: s.SourceLanguage,
		TranslatedText: s.TranslatedText,
		TargetLanguage: s.TargetLanguage,
	}
}

// Store saves, lists and deletes searches.
type Store struct {
	db *gorm.DB
	fs afero.Fs
}

// Open connects to the configured database, migrates the schema and prepares
// the blob directory.
func Open(cfg Config) (*Store, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	level := logger.Silent
	if cfg.Debug {
		level = logger.Info
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(level)})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Driver, err)
	}
	if cfg.Driver == DriverSQLite || cfg.Driver == "" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to access sql handle: %w", err)
		}
		// sqlite allows a single writer
		sqlDB.SetMaxOpenConns(1)
	}

	fs := afero.NewMemMapFs()
	if cfg.BlobDir != "" {
		if err := os.MkdirAll(cfg.BlobDir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create blob dir: %w", err)
		}
		fs = afero.NewBasePathFs(afero.NewOsFs(), cfg.BlobDir)
	}

	s, err := New(db, fs)
	if err != nil {
		return nil, err
	}
	slog.Debug("Saved search store opened", "driver", cfg.Driver, "blob_dir", cfg.BlobDir)
	return s, nil
}

func dialectorFor(cfg Config) (gorm.Dialector, error) {
	switch strings.ToLower(cfg.Driver) {
	case DriverSQLite, "":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = "file::memory:"
		} else if dir := dirOf(dsn); dir != "" {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create database dir: %w", err)
			}
		}
		return sqlite.Open(dsn), nil
	case DriverPostgres:
		if cfg.DSN == "" {
			return nil, errors.New("postgres DSN is required")
		}
		return postgres.Open(cfg.DSN), nil
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}

// dirOf returns the directory of a file DSN, or "" for memory and URI DSNs.
func dirOf(dsn string) string {
	if strings.HasPrefix(dsn, "file:") || strings.Contains(dsn, ":memory:") {
		return ""
	}
	if i := strings.LastIndexAny(dsn, `/\`); i > 0 {
		return dsn[:i]
	}
	return ""
}

// New wraps an open database and blob filesystem.
func New(db *gorm.DB, fs afero.Fs) (*Store, error) {
	if db == nil || fs == nil {
		return nil, errors.New("database and filesystem are required")
	}
	if err := db.AutoMigrate(&SavedSearch{}); err != nil {
		return nil, fmt.Errorf("failed to migrate saved searches: %w", err)
	}
	return &Store{db: db, fs: fs}, nil
}

// Save stores result with the captured image and returns the new document.
func (s *Store) Save(ctx context.Context, img image.Image, result vision.VisualSearchResult) (SavedSearch, error) {
	if img == nil {
		return SavedSearch{}, errors.New("capture image is nil")
	}
	id := uuid.NewString()
	key := id + ".jpg"

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return SavedSearch{}, fmt.Errorf("failed to encode capture: %w", err)
	}
	if err := afero.WriteFile(s.fs, key, buf.Bytes(), 0o640); err != nil {
		return SavedSearch{}, fmt.Errorf("failed to write capture: %w", err)
	}

	b := img.Bounds()
	doc := SavedSearch{
		ID:             id,
		Type:           result.Type,
		Title:          result.Title,
		URL:            result.URL,
		Snippet:        result.Snippet,
		ThumbnailURL:   result.ThumbnailURL,
		OriginalText:   result.OriginalText,
		SourceLanguage: result.SourceLanguage,
		TranslatedText: result.TranslatedText,
		TargetLanguage: result.TargetLanguage,
		ImageKey:       key,
		ImageWidth:     b.Dx(),
		ImageHeight:    b.Dy(),
		CreatedAt:      time.Now().UTC(),
	}
	if doc.Type == "" {
		doc.Type = vision.ResultImageSearch
	}
	if err := s.db.WithContext(ctx).Create(&doc).Error; err != nil {
		if rmErr := s.fs.Remove(key); rmErr != nil {
			slog.Warn("Failed to remove orphaned capture", "key", key, "error", rmErr)
		}
		return SavedSearch{}, fmt.Errorf("failed to save search: %w", err)
	}
	slog.Info("Search saved", "id", id, "type", doc.Type)
	return doc, nil
}

// List returns all saved searches, newest first.
func (s *Store) List(ctx context.Context) ([]SavedSearch, error) {
	var out []SavedSearch
	if err := s.db.WithContext(ctx).Order("created_at desc").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list searches: %w", err)
	}
	return out, nil
}

// Get returns one saved search.
func (s *Store) Get(ctx context.Context, id string) (SavedSearch, error) {
	if _, err := uuid.Parse(id); err != nil {
		return SavedSearch{}, ErrNotFound
	}
	var doc SavedSearch
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return SavedSearch{}, ErrNotFound
	}
	if err != nil {
		return SavedSearch{}, fmt.Errorf("failed to load search %s: %w", id, err)
	}
	return doc, nil
}

// Image returns the JPEG capture of a saved search.
func (s *Store) Image(ctx context.Context, id string) ([]byte, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(s.fs, doc.ImageKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read capture %s: %w", doc.ImageKey, err)
	}
	return data, nil
}

// Delete removes a saved search and its capture.
func (s *Store) Delete(ctx context.Context, id string) error {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(&SavedSearch{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("failed to delete search %s: %w", id, err)
	}
	if err := s.fs.Remove(doc.ImageKey); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to remove capture", "key", doc.ImageKey, "error", err)
	}
	slog.Info("Search deleted", "id", id)
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
