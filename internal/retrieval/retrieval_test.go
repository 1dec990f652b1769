package retrieval

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/woktalk/recipe-engine/internal/recipe"
)

func TestFetchReturnsTranscript(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/watch", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "dQw4w9WgXcQ", r.URL.Query().Get("v"))
		fmt.Fprintf(w, `<html>"captionTracks":[{"baseUrl":"%s/timedtext","languageCode":"en"}]</html>`, srv.URL)
	})
	mux.HandleFunc("/timedtext", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<transcript><text start="0" dur="1">hello</text><text start="1" dur="1">world</text></transcript>`)
	})

	client, err := New(Config{Timeout: 5 * time.Second, Languages: []string{"en"}}, nil)
	require.NoError(t, err)
	client.watchBase = srv.URL + "/watch?v="

	tr, err := client.Fetch(context.Background(), "https://youtu.be/dQw4w9WgXcQ")
	require.NoError(t, err)
	require.Equal(t, recipe.Key("dQw4w9WgXcQ"), tr.Key)
	require.Equal(t, "hello world", tr.Text)
}

func TestFetchNoCaptionsYieldsEmptyTranscript(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body>player without captions</body></html>`)
	}))
	defer srv.Close()

	client, err := New(Config{Timeout: 5 * time.Second}, nil)
	require.NoError(t, err)
	client.watchBase = srv.URL + "/watch?v="

	tr, err := client.Fetch(context.Background(), "dQw4w9WgXcQ")
	require.NoError(t, err)
	require.Equal(t, recipe.Key("dQw4w9WgXcQ"), tr.Key)
	require.Empty(t, tr.Text)
}

func TestFetchInvalidInput(t *testing.T) {
	t.Parallel()

	client, err := New(Config{Timeout: time.Second}, nil)
	require.NoError(t, err)

	_, err = client.Fetch(context.Background(), "not a video")
	require.ErrorIs(t, err, recipe.ErrInvalidKey)
}

func TestFetchWatchPageError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client, err := New(Config{Timeout: time.Second}, nil)
	require.NoError(t, err)
	client.watchBase = srv.URL + "/watch?v="

	_, err = client.Fetch(context.Background(), "dQw4w9WgXcQ")
	require.Error(t, err)
}
