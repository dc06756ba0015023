// Package downloader fetches an HLS stream and muxes it into a playable
// MP4 at a caller-chosen path. The crawl pipeline only sees the Download
// method; everything else is plumbing.
package downloader

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/maribox/rbg-live-dl/internal/common/config"
)

var playlistName = regexp.MustCompile(`([^/]+)\.m3u8`)

// HLSDownloader implements the stream-downloader capability over net/http
// segment fetches and an exec'd ffmpeg concat.
type HLSDownloader struct {
	cfg    *config.DownloaderConfig
	log    *logrus.Logger
	client *http.Client
}

func New(cfg *config.DownloaderConfig, log *logrus.Logger) *HLSDownloader {
	return &HLSDownloader{
		cfg:    cfg,
		log:    log,
		client: &http.Client{Timeout: 2 * time.Minute},
	}
}

// segmentJob is one segment fetch handed to a worker.
type segmentJob struct {
	index    int
	url      string
	fileName string
}

// Download fetches the playlist behind streamURL, downloads every segment
// through a bounded worker pool, and concatenates them into an MP4 at
// outputPath. The parent directory is created as needed; temp files are
// removed after a successful mux.
func (d *HLSDownloader) Download(ctx context.Context, streamURL, outputPath string) error {
	m := playlistName.FindStringSubmatch(streamURL)
	if m == nil {
		return fmt.Errorf("not an HLS playlist URL: %s", streamURL)
	}

	workDir := filepath.Join(d.cfg.TempDir, m[1])
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return fmt.Errorf("error creating temp directory: %w", err)
	}

	segments, err := d.resolveSegments(ctx, streamURL, 0)
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		return fmt.Errorf("no video segments found in playlist %s", streamURL)
	}

	d.log.WithFields(logrus.Fields{
		"segments": len(segments),
		"output":   outputPath,
	}).Debug("Found video segments")

	tsFiles, err := d.fetchSegments(ctx, workDir, segments)
	if err != nil {
		return err
	}

	if err := d.muxToMP4(ctx, workDir, tsFiles, outputPath); err != nil {
		return err
	}

	if err := os.RemoveAll(workDir); err != nil {
		d.log.WithError(err).Warn("Failed to clean up temp files after muxing")
	}

	return nil
}

// resolveSegments fetches a playlist and returns its media segment URLs,
// following one level of master-playlist indirection.
func (d *HLSDownloader) resolveSegments(ctx context.Context, playlistURL string, depth int) ([]string, error) {
	if depth > 2 {
		return nil, fmt.Errorf("playlist nesting too deep at %s", playlistURL)
	}

	base, err := url.Parse(playlistURL)
	if err != nil {
		return nil, fmt.Errorf("invalid playlist URL %s: %w", playlistURL, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, playlistURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch playlist: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("playlist fetch returned %s", resp.Status)
	}

	var entries []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ref, err := url.Parse(line)
		if err != nil {
			continue
		}
		entries = append(entries, base.ResolveReference(ref).String())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading playlist: %w", err)
	}

	// A master playlist lists variant playlists instead of segments; take
	// the first variant, which the portal orders best-first.
	if len(entries) > 0 && strings.Contains(entries[0], ".m3u8") {
		return d.resolveSegments(ctx, entries[0], depth+1)
	}

	return entries, nil
}

// fetchSegments downloads all segments through a worker pool and returns
// the local file names in playlist order.
func (d *HLSDownloader) fetchSegments(ctx context.Context, workDir string, segments []string) ([]string, error) {
	tsFiles := make([]string, len(segments))

	var wg sync.WaitGroup
	var mu sync.Mutex
	var downloadErr error

	numWorkers := d.cfg.Concurrency
	if numWorkers <= 0 {
		numWorkers = 10
	}
	if len(segments) < numWorkers {
		numWorkers = len(segments)
	}

	jobs := make(chan segmentJob, len(segments))

	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for job := range jobs {
				mu.Lock()
				failed := downloadErr != nil
				mu.Unlock()
				if failed || ctx.Err() != nil {
					continue
				}

				d.log.WithFields(logrus.Fields{
					"worker_id": workerID,
					"segment":   job.index,
				}).Debug("Worker downloading segment")

				if err := d.downloadFile(ctx, job.url, job.fileName); err != nil {
					mu.Lock()
					if downloadErr == nil {
						downloadErr = fmt.Errorf("error downloading segment %d: %w", job.index, err)
					}
					mu.Unlock()
					continue
				}

				tsFiles[job.index] = job.fileName
			}
		}(w)
	}

	for i, segment := range segments {
		jobs <- segmentJob{
			index:    i,
			url:      segment,
			fileName: filepath.Join(workDir, fmt.Sprintf("segment-%d.ts", i)),
		}
	}
	close(jobs)

	wg.Wait()

	if downloadErr != nil {
		return nil, downloadErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return tsFiles, nil
}

// downloadFile fetches one URL to disk with bounded retries.
func (d *HLSDownloader) downloadFile(ctx context.Context, url string, fileName string) error {
	maxRetries := 3
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			d.log.WithFields(logrus.Fields{
				"url":      url,
				"fileName": fileName,
				"attempt":  attempt + 1,
				"error":    lastErr,
			}).Debug("Retrying segment download")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt*500) * time.Millisecond):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}

		resp, err := d.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("error downloading file (attempt %d): %w", attempt+1, err)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			lastErr = fmt.Errorf("segment fetch returned %s (attempt %d)", resp.Status, attempt+1)
			continue
		}

		out, err := os.Create(fileName)
		if err != nil {
			resp.Body.Close()
			lastErr = fmt.Errorf("error creating file (attempt %d): %w", attempt+1, err)
			continue
		}

		_, err = io.Copy(out, resp.Body)
		resp.Body.Close()
		out.Close()

		if err != nil {
			lastErr = fmt.Errorf("error writing to file (attempt %d): %w", attempt+1, err)
			continue
		}

		return nil
	}

	return lastErr
}

// muxToMP4 concatenates the downloaded segments into outputPath via ffmpeg.
func (d *HLSDownloader) muxToMP4(ctx context.Context, workDir string, tsFiles []string, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("error creating output directory: %w", err)
	}

	listFileName := filepath.Join(workDir, "filelist.txt")
	listFile, err := os.Create(listFileName)
	if err != nil {
		return fmt.Errorf("error creating filelist: %w", err)
	}
	defer listFile.Close()

	for _, tsFile := range tsFiles {
		if _, err := os.Stat(tsFile); os.IsNotExist(err) {
			return fmt.Errorf("segment file missing: %s", tsFile)
		}

		absPath, err := filepath.Abs(tsFile)
		if err != nil {
			return fmt.Errorf("error getting absolute path: %w", err)
		}
		escapedPath := strings.ReplaceAll(absPath, "'", "'\\''")
		if _, err := fmt.Fprintf(listFile, "file '%s'\n", escapedPath); err != nil {
			return fmt.Errorf("error writing to filelist: %w", err)
		}
	}

	d.log.WithFields(logrus.Fields{
		"output":   outputPath,
		"segments": len(tsFiles),
	}).Info("Muxing segments to MP4")

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-f", "concat", "-safe", "0", "-i", listFileName,
		"-c:v", "copy", "-c:a", "copy", "-y", outputPath)

	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg error: %w: %s", err, tail(string(out), 512))
	}

	return nil
}

// tail returns at most the last n bytes of s, for error reporting.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
