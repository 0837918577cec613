package visualsearch

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MeKo-Tech/litelens/internal/vision"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleResponse = `{
  "tags": [{
    "actions": [
      {"actionType": "PagesIncluding", "data": {"value": [
        {"name": "Blue mug", "hostPageUrl": "https://shop.example/mug", "thumbnailUrl": "https://t.example/1",
         "contentUrl": "https://c.example/1.jpg", "contentSize": "12345 B", "encodingFormat": "jpeg",
         "width": 640, "height": 480}
      ]}},
      {"actionType": "MoreSizes", "data": {"value": [{"name": "ignored"}]}},
      {"actionType": "ImageById", "data": {"value": [{"name": "ignored"}]}},
      {"actionType": "VisualSearch", "data": {"value": [
        {"name": "Ceramic cup", "hostPageUrl": "https://other.example/cup"}
      ]}},
      {"actionType": "RelatedSearches", "data": {"value": [
        {"text": "coffee mug", "displayText": "Coffee Mug", "webSearchUrl": "https://bing.example/search?q=coffee+mug",
         "thumbnailUrl": "https://t.example/2"}
      ]}}
    ]
  }]
}`

func TestBingClient_Search(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "secret", r.Header.Get("Ocp-Apim-Subscription-Key"))
		assert.Equal(t, "en-US", r.URL.Query().Get("mkt"))
		assert.Equal(t, "Strict", r.URL.Query().Get("safesearch"))

		f, hdr, err := r.FormFile("image")
		require.NoError(t, err)
		assert.Equal(t, "image.jpg", hdr.Filename)
		data, _ := io.ReadAll(f)
		assert.Equal(t, []byte("jpegdata"), data)

		_, _ = w.Write([]byte(sampleResponse))
	}))
	defer srv.Close()

	c, err := NewBingClient(Config{Endpoint: srv.URL, APIKey: "secret"}, srv.Client())
	require.NoError(t, err)

	results, err := c.Search(context.Background(), []byte("jpegdata"))
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, vision.VisualSearchResult{
		Type: vision.ResultImageSearch, ActionType: ActionPagesIncluding,
		Title: "Blue mug", URL: "https://shop.example/mug", Snippet: "Blue mug",
		ThumbnailURL: "https://t.example/1", ContentURL: "https://c.example/1.jpg",
		ContentSize: "12345 B", EncodingFormat: "jpeg", Width: 640, Height: 480,
	}, results[0])
	assert.Equal(t, ActionVisualSearch, results[1].ActionType)
	assert.Equal(t, "Coffee Mug", results[2].Title)
	assert.Equal(t, "Related search", results[2].Snippet)
	assert.Equal(t, "https://bing.example/search?q=coffee+mug", results[2].URL)
}

func TestBingClient_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewBingClient(Config{}, nil)
	assert.Error(t, err)

	c, err := NewBingClient(Config{Endpoint: srv.URL, APIKey: "k"}, nil)
	require.NoError(t, err)

	_, err = c.Search(context.Background(), nil)
	assert.Error(t, err)

	_, err = c.Search(context.Background(), []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Contains(t, err.Error(), "quota exceeded")
}
