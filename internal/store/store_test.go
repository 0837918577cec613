package store

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MeKo-Tech/litelens/internal/vision"
	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Driver: DriverSQLite})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func capture(w, h int) image.Image {
	return imaging.New(w, h, color.NRGBA{R: 200, G: 80, B: 40, A: 255})
}

func TestStore_SaveGetImage(t *testing.T) {
	s := memoryStore(t)
	ctx := context.Background()

	res := vision.VisualSearchResult{
		Type:    vision.ResultImageSearch,
		Title:   "Ceramic mug",
		URL:     "https://example.com/mug",
		Snippet: "Related search",
	}
	doc, err := s.Save(ctx, capture(64, 32), res)
	require.NoError(t, err)
	assert.Len(t, doc.ID, 36)
	assert.Equal(t, 64, doc.ImageWidth)
	assert.Equal(t, 32, doc.ImageHeight)

	got, err := s.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, res, got.Result())

	data, err := s.Image(ctx, doc.ID)
	require.NoError(t, err)
	img, err := imaging.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, image.Pt(64, 32), img.Bounds().Size())
}

func TestStore_SaveTranslation(t *testing.T) {
	s := memoryStore(t)
	ctx := context.Background()

	doc, err := s.Save(ctx, capture(8, 8), vision.NewTranslation("Ausgang", "de", "exit", "en"))
	require.NoError(t, err)

	got, err := s.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, vision.ResultTextSearch, got.Type)
	assert.Equal(t, "Ausgang", got.OriginalText)
	assert.Equal(t, "exit", got.TranslatedText)
}

func TestStore_ListNewestFirst(t *testing.T) {
	s := memoryStore(t)
	ctx := context.Background()

	first, err := s.Save(ctx, capture(4, 4), vision.VisualSearchResult{Title: "first"})
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	second, err := s.Save(ctx, capture(4, 4), vision.VisualSearchResult{Title: "second"})
	require.NoError(t, err)

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
	assert.Equal(t, vision.ResultImageSearch, list[1].Type, "empty type defaults to image search")
}

func TestStore_Delete(t *testing.T) {
	s := memoryStore(t)
	ctx := context.Background()

	doc, err := s.Save(ctx, capture(4, 4), vision.VisualSearchResult{Title: "gone"})
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, doc.ID))

	_, err = s.Get(ctx, doc.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Image(ctx, doc.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, doc.ID), ErrNotFound)

	exists, err := afExists(s, doc.ImageKey)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStore_UnknownIDs(t *testing.T) {
	s := memoryStore(t)
	ctx := context.Background()

	_, err := s.Get(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(ctx, "7d444840-9dc0-11d1-b245-5ffdce74fad2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_SaveNilImage(t *testing.T) {
	s := memoryStore(t)
	_, err := s.Save(context.Background(), nil, vision.VisualSearchResult{})
	assert.Error(t, err)
}

func TestStore_OnDisk(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		Driver:  DriverSQLite,
		DSN:     filepath.Join(dir, "db", "litelens.db"),
		BlobDir: filepath.Join(dir, "captures"),
	}
	s, err := Open(cfg)
	require.NoError(t, err)

	doc, err := s.Save(context.Background(), capture(4, 4), vision.VisualSearchResult{Title: "kept"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = os.Stat(filepath.Join(cfg.BlobDir, doc.ImageKey))
	require.NoError(t, err)

	reopened, err := Open(cfg)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()
	got, err := reopened.Get(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "kept", got.Title)
}

func TestDialectorFor(t *testing.T) {
	_, err := dialectorFor(Config{Driver: "mysql"})
	assert.Error(t, err)
	_, err = dialectorFor(Config{Driver: DriverPostgres})
	assert.Error(t, err)

	d, err := dialectorFor(Config{Driver: DriverPostgres, DSN: "host=localhost user=litelens dbname=litelens"})
	require.NoError(t, err)
	assert.Equal(t, "postgres", d.Name())
}

func TestDirOf(t *testing.T) {
	assert.Equal(t, "data", dirOf("data/litelens.db"))
	assert.Equal(t, "", dirOf("litelens.db"))
	assert.Equal(t, "", dirOf("file::memory:"))
	assert.Equal(t, "", dirOf("file:test.db?cache=shared"))
}

func afExists(s *Store, key string) (bool, error) {
	_, err := s.fs.Stat(key)
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}
