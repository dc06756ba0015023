package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// writeFailureRecord drops a plain-text artifact next to where the video's
// MP4 would have gone, carrying the page URL and every attempt's error.
// The file has no extension, so the idempotency check never mistakes it
// for a finished download and a rerun naturally retries the video.
func writeFailureRecord(outputDir, folder string, ordinal int, stem, pageURL string, attemptErrs []error) (string, error) {
	dir := filepath.Join(outputDir, folder)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("error creating failure record directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%02d %s", ordinal, stem))

	var b strings.Builder
	fmt.Fprintf(&b, "download permanently failed at %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(&b, "page: %s\n", pageURL)
	fmt.Fprintf(&b, "error: %s\n\n", lastError(attemptErrs))
	b.WriteString("attempts:\n")
	for _, err := range attemptErrs {
		fmt.Fprintf(&b, "  %v\n", err)
	}

	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return "", fmt.Errorf("error writing failure record: %w", err)
	}
	return path, nil
}
