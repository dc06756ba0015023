package models

// Credentials holds the portal login pair, loaded once at startup and
// immutable for the rest of the run.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Course is one pinned course as discovered on the portal start page.
type Course struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// VideoRef points at one recorded session's page. Listing order is the
// portal's order, assumed most-recent-first.
type VideoRef struct {
	PageURL string `json:"pageUrl"`
}

// VideoMetadata is the result of resolving a session page: the playable
// stream source plus sanitized output naming.
type VideoMetadata struct {
	StreamURL  string `json:"streamUrl"`
	FolderName string `json:"folderName"`
	FileStem   string `json:"fileStem"`
}

// VideoStatus is the terminal state of one video within a run.
type VideoStatus string

const (
	StatusPending    VideoStatus = "pending"
	StatusSkipped    VideoStatus = "skipped"
	StatusDownloaded VideoStatus = "downloaded"
	StatusFailed     VideoStatus = "failed"
)

// VideoOutcome is the per-video result reported by the pipeline.
type VideoOutcome struct {
	Course     string      `json:"course"`
	PageURL    string      `json:"pageUrl"`
	Ordinal    int         `json:"ordinal"`
	Status     VideoStatus `json:"status"`
	OutputPath string      `json:"outputPath,omitempty"`
	Error      string      `json:"error,omitempty"`
	Attempts   int         `json:"attempts"`
}

// CrawlStats accumulates run-wide counters for event publishing.
type CrawlStats struct {
	TotalVideos int `json:"totalVideos"`
	Downloaded  int `json:"downloaded"`
	Skipped     int `json:"skipped"`
	Failed      int `json:"failed"`
}

// CrawlEvent is the message published per video outcome when event
// publishing is configured.
type CrawlEvent struct {
	RunID   string       `json:"runId"`
	Outcome VideoOutcome `json:"outcome"`
	Stats   CrawlStats   `json:"stats"`
}
