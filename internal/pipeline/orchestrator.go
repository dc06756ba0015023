// Package pipeline contains the crawl-and-download core: ordinal
// assignment, idempotency, per-video retry, and failure isolation.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/maribox/rbg-live-dl/internal/common/messaging"
	"github.com/maribox/rbg-live-dl/pkg/models"
)

const (
	// MaxAttempts bounds metadata resolution + download per video.
	MaxAttempts = 3
	// RetryDelay is the fixed pause between attempts. Not exponential, not
	// jittered; it only needs to outlive transient rendering hiccups.
	RetryDelay = 2 * time.Second
	// SkipThreshold is the minimum size in bytes for an existing output
	// file to count as a completed prior download. Anything smaller is a
	// truncated artifact from an interrupted run and gets re-downloaded.
	SkipThreshold = 1_000_000

	unknownFolder = "out"
	unknownStem   = "unknown"
)

// Lister enumerates a course's video pages in portal order, newest first.
type Lister interface {
	ListVideos(courseURL string) ([]models.VideoRef, error)
}

// MetadataResolver resolves one video page into stream URL + naming. Every
// call performs a fresh page load; the orchestrator leans on that to
// recover from pages that failed to render once.
type MetadataResolver interface {
	ResolveMetadata(pageURL string) (models.VideoMetadata, error)
}

// Downloader is the stream-downloader capability.
type Downloader interface {
	Download(ctx context.Context, streamURL, outputPath string) error
}

// Orchestrator walks discovered courses video by video, strictly
// sequentially: one browser session, one download at a time.
type Orchestrator struct {
	lister     Lister
	resolver   MetadataResolver
	downloader Downloader
	events     messaging.Publisher
	log        *logrus.Logger

	outputDir string
	overwrite bool
	runID     string

	stats models.CrawlStats
	sleep func(time.Duration)
}

// Options carries the run-scoped knobs.
type Options struct {
	OutputDir string
	Overwrite bool
	RunID     string
}

func New(lister Lister, resolver MetadataResolver, downloader Downloader,
	events messaging.Publisher, log *logrus.Logger, opts Options) *Orchestrator {
	if opts.OutputDir == "" {
		opts.OutputDir = "out"
	}
	return &Orchestrator{
		lister:     lister,
		resolver:   resolver,
		downloader: downloader,
		events:     events,
		log:        log,
		outputDir:  opts.OutputDir,
		overwrite:  opts.Overwrite,
		runID:      opts.RunID,
		sleep:      time.Sleep,
	}
}

// Run processes every video of every course. Per-video failures never
// propagate; the only errors returned are context cancellation. There is
// no global verdict beyond having attempted everything — permanent
// failures are durable on disk as failure records.
func (o *Orchestrator) Run(ctx context.Context, courses []models.Course) error {
	for _, course := range courses {
		if err := ctx.Err(); err != nil {
			return err
		}

		log := o.log.WithField("course", course.Name)

		refs, err := o.lister.ListVideos(course.URL)
		if err != nil {
			// One course whose listing never renders must not sink the
			// batch; the remaining courses are still worth crawling.
			log.WithError(err).Error("Failed to list course videos, skipping course")
			continue
		}

		o.stats.TotalVideos += len(refs)

		for i, ref := range refs {
			if err := ctx.Err(); err != nil {
				return err
			}

			// Listing is newest first, so the first-listed video gets the
			// highest ordinal and the oldest gets 1. Zero-padded ordinals
			// then sort oldest-to-newest on disk.
			ordinal := len(refs) - i

			outcome := o.processVideo(ctx, course, ref, ordinal)
			o.record(outcome)
		}

		log.WithFields(logrus.Fields{
			"videos":     len(refs),
			"downloaded": o.stats.Downloaded,
			"skipped":    o.stats.Skipped,
			"failed":     o.stats.Failed,
		}).Info("Course done")
	}

	o.log.WithFields(logrus.Fields{
		"total":      o.stats.TotalVideos,
		"downloaded": o.stats.Downloaded,
		"skipped":    o.stats.Skipped,
		"failed":     o.stats.Failed,
	}).Info("Crawl complete")
	return ctx.Err()
}

// processVideo drives one video through PENDING -> SKIPPED | DOWNLOADED |
// FAILED. Metadata resolution and download count as one retryable unit.
func (o *Orchestrator) processVideo(ctx context.Context, course models.Course, ref models.VideoRef, ordinal int) models.VideoOutcome {
	log := o.log.WithFields(logrus.Fields{
		"course":  course.Name,
		"ordinal": ordinal,
		"url":     ref.PageURL,
	})

	// Best-effort naming for failure artifacts, updated whenever a later
	// attempt resolves further than an earlier one did.
	folder, stem := unknownFolder, unknownStem

	var attemptErrs []error

	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		if attempt > 1 {
			o.sleep(RetryDelay)
		}

		log.WithField("attempt", attempt).Info("Processing video")

		meta, err := o.resolver.ResolveMetadata(ref.PageURL)
		if err != nil {
			log.WithError(err).WithField("attempt", attempt).Warn("Metadata resolution failed")
			attemptErrs = append(attemptErrs, fmt.Errorf("attempt %d: resolve: %w", attempt, err))
			continue
		}

		folder, stem = meta.FolderName, meta.FileStem
		target := filepath.Join(o.outputDir, folder, fmt.Sprintf("%02d %s.mp4", ordinal, stem))

		if !o.overwrite && existsLargerThan(target, SkipThreshold) {
			log.WithField("output", target).Info("Already downloaded, skipping")
			return models.VideoOutcome{
				Course:     course.Name,
				PageURL:    ref.PageURL,
				Ordinal:    ordinal,
				Status:     models.StatusSkipped,
				OutputPath: target,
				Attempts:   attempt,
			}
		}

		if err := o.downloader.Download(ctx, meta.StreamURL, target); err != nil {
			log.WithError(err).WithField("attempt", attempt).Warn("Download failed")
			attemptErrs = append(attemptErrs, fmt.Errorf("attempt %d: download: %w", attempt, err))
			continue
		}

		log.WithField("output", target).Info("Download complete")
		return models.VideoOutcome{
			Course:     course.Name,
			PageURL:    ref.PageURL,
			Ordinal:    ordinal,
			Status:     models.StatusDownloaded,
			OutputPath: target,
			Attempts:   attempt,
		}
	}

	recordPath, err := writeFailureRecord(o.outputDir, folder, ordinal, stem, ref.PageURL, attemptErrs)
	if err != nil {
		log.WithError(err).Error("Failed to write failure record")
	} else {
		log.WithField("record", recordPath).Error("Video permanently failed")
	}

	return models.VideoOutcome{
		Course:     course.Name,
		PageURL:    ref.PageURL,
		Ordinal:    ordinal,
		Status:     models.StatusFailed,
		OutputPath: recordPath,
		Error:      lastError(attemptErrs),
		Attempts:   MaxAttempts,
	}
}

// record updates run stats and publishes the outcome.
func (o *Orchestrator) record(outcome models.VideoOutcome) {
	switch outcome.Status {
	case models.StatusDownloaded:
		o.stats.Downloaded++
	case models.StatusSkipped:
		o.stats.Skipped++
	case models.StatusFailed:
		o.stats.Failed++
	}

	err := o.events.PublishJSON(messaging.CrawlEventRoutingKey, models.CrawlEvent{
		RunID:   o.runID,
		Outcome: outcome,
		Stats:   o.stats,
	})
	if err != nil {
		o.log.WithError(err).Warn("Failed to publish crawl event")
	}
}

// existsLargerThan reports whether path holds a regular file strictly
// larger than the threshold.
func existsLargerThan(path string, threshold int64) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Size() > threshold
}

func lastError(errs []error) string {
	if len(errs) == 0 {
		return ""
	}
	return errs[len(errs)-1].Error()
}
