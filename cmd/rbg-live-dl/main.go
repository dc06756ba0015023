package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/maribox/rbg-live-dl/internal/browser"
	"github.com/maribox/rbg-live-dl/internal/common/config"
	"github.com/maribox/rbg-live-dl/internal/common/logger"
	"github.com/maribox/rbg-live-dl/internal/common/messaging"
	"github.com/maribox/rbg-live-dl/internal/downloader"
	"github.com/maribox/rbg-live-dl/internal/pipeline"
	"github.com/maribox/rbg-live-dl/internal/portal"
)

func main() {
	// Optional .env with config overrides (RABBITMQ_URL etc.)
	_ = godotenv.Load()

	overwrite := pflag.Bool("overwrite", false, "re-download videos even when a finished output file already exists")
	pflag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg)

	if err := run(cfg, log, *overwrite); err != nil {
		log.WithError(err).Fatal("Run failed")
	}
}

// run owns every resource of the crawl so the browser session and broker
// connection are released on all exit paths before main decides the exit.
func run(cfg *config.Config, log *logrus.Logger, overwrite bool) error {
	creds, err := config.LoadCredentials(cfg.Portal.CredentialsFile)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runID := uuid.NewString()
	log.WithField("run_id", runID).Info("Starting crawl")

	// Event publishing is optional and best effort: a missing or dead
	// broker never blocks a multi-hour download run.
	var events messaging.Publisher = messaging.NoopPublisher{}
	if cfg.RabbitMq.URL != "" {
		client, err := messaging.NewRabbitMQClient(cfg.GetRabbitMQConfig())
		if err != nil {
			log.WithError(err).Warn("Event publishing disabled")
		} else {
			events = client
			defer client.Close()
		}
	}

	session, err := browser.NewChromeSession(ctx, cfg.GetPortalConfig(), log)
	if err != nil {
		return err
	}
	defer session.Close()

	client, err := portal.NewClient(session, cfg.GetPortalConfig(), log)
	if err != nil {
		return err
	}

	if err := client.Login(creds); err != nil {
		return err
	}

	courses, err := client.DiscoverCourses()
	if err != nil {
		return err
	}
	if len(courses) == 0 {
		return fmt.Errorf("no pinned courses found on %s", cfg.Portal.BaseURL)
	}

	orch := pipeline.New(client, client, downloader.New(cfg.GetDownloaderConfig(), log), events, log, pipeline.Options{
		OutputDir: cfg.Downloader.OutputDir,
		Overwrite: overwrite,
		RunID:     runID,
	})

	return orch.Run(ctx, courses)
}
