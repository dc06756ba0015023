package downloader

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maribox/rbg-live-dl/internal/common/config"
)

func newTestDownloader(t *testing.T) *HLSDownloader {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return New(&config.DownloaderConfig{
		TempDir:     t.TempDir(),
		Concurrency: 4,
	}, log)
}

func TestResolveSegmentsFollowsMasterPlaylist(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/master.m3u8", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=5000000\nplaylist.m3u8\n")
	})
	mux.HandleFunc("/playlist.m3u8", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "#EXTM3U\n#EXTINF:4.0,\nseg-0.ts\n#EXTINF:4.0,\nseg-1.ts\n#EXT-X-ENDLIST\n")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	d := newTestDownloader(t)
	segments, err := d.resolveSegments(context.Background(), srv.URL+"/master.m3u8", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{srv.URL + "/seg-0.ts", srv.URL + "/seg-1.ts"}, segments)
}

func TestResolveSegmentsRejectsDeepNesting(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/loop.m3u8", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "loop.m3u8\n")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	d := newTestDownloader(t)
	_, err := d.resolveSegments(context.Background(), srv.URL+"/loop.m3u8", 0)
	assert.Error(t, err)
}

func TestFetchSegmentsKeepsPlaylistOrder(t *testing.T) {
	mux := http.NewServeMux()
	for i := 0; i < 3; i++ {
		body := fmt.Sprintf("segment %d", i)
		mux.HandleFunc(fmt.Sprintf("/seg-%d.ts", i), func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, body)
		})
	}
	srv := httptest.NewServer(mux)
	defer srv.Close()

	d := newTestDownloader(t)
	workDir := t.TempDir()

	segments := []string{srv.URL + "/seg-0.ts", srv.URL + "/seg-1.ts", srv.URL + "/seg-2.ts"}
	files, err := d.fetchSegments(context.Background(), workDir, segments)
	require.NoError(t, err)
	require.Len(t, files, 3)

	for i, f := range files {
		assert.Equal(t, filepath.Join(workDir, fmt.Sprintf("segment-%d.ts", i)), f)
		data, err := os.ReadFile(f)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("segment %d", i), string(data))
	}
}

func TestFetchSegmentsSurfacesHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	d := newTestDownloader(t)
	_, err := d.fetchSegments(context.Background(), t.TempDir(), []string{srv.URL + "/seg-0.ts"})
	assert.Error(t, err)
}

func TestDownloadRejectsNonPlaylistURL(t *testing.T) {
	d := newTestDownloader(t)
	err := d.Download(context.Background(), "https://example.com/video.mpd", "out.mp4")
	assert.Error(t, err)
}
