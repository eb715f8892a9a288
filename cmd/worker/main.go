// Package main - точка входа фонового воркера. Воркер по расписанию
// прогоняет пакетные задачи: рассылку писем из очереди (после ручных
// одобрений) и выгрузку помеченных продлений в Gradescope.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/cs161-staff/extensions/config"
	"github.com/cs161-staff/extensions/internal/application/command"
	"github.com/cs161-staff/extensions/internal/application/policy"
	"github.com/cs161-staff/extensions/internal/domain/assignment"
	"github.com/cs161-staff/extensions/internal/domain/record"
	"github.com/cs161-staff/extensions/internal/infrastructure/external/gradescope"
	"github.com/cs161-staff/extensions/internal/infrastructure/external/mailer"
	"github.com/cs161-staff/extensions/internal/infrastructure/external/slack"
	"github.com/cs161-staff/extensions/internal/infrastructure/persistence/postgres"
	"github.com/cs161-staff/extensions/internal/infrastructure/persistence/sheets"
	"github.com/cs161-staff/extensions/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.New(logger.Options{
		Level:  logger.LevelInfo,
		Output: os.Stdout,
	}).With(logger.String("app", cfg.App.Name+"-worker"))

	log.Info("starting worker", logger.String("env", string(cfg.App.Environment)))

	sheetsClient := sheets.NewClient(sheets.ClientConfig{
		SpreadsheetID: cfg.Sheets.SpreadsheetID,
		AccessToken:   cfg.Sheets.AccessToken,
		Timeout:       cfg.Sheets.Timeout,
		Logger:        log,
	})
	spreadsheet := sheets.NewSpreadsheet(sheetsClient)

	overrides, err := spreadsheet.EnvironmentOverrides(ctx)
	if err != nil {
		return err
	}
	cfg.ApplyOverrides(overrides)

	records, err := spreadsheet.AssignmentRecords(ctx)
	if err != nil {
		return err
	}
	catalog, err := assignment.NewCatalogFromRecords(records, cfg.App.Location)
	if err != nil {
		return err
	}

	var store record.Store
	if cfg.Database.UseAsRoster {
		conn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
		if err != nil {
			return err
		}
		defer conn.Close()
		store = postgres.NewRosterStore(conn)
	} else {
		store = sheets.NewRosterStore(sheetsClient)
	}

	notifier := slack.NewClient(slack.ClientConfig{
		WebhookURL: cfg.Slack.WebhookURL,
		Timeout:    cfg.Slack.Timeout,
		Logger:     log,
	})
	mailClient := mailer.NewClient(mailer.ClientConfig{
		Endpoint:     cfg.Email.Endpoint,
		MasterSecret: cfg.Email.MasterSecret,
		Timeout:      cfg.Email.Timeout,
		Logger:       log,
	})

	var extender policy.ExtensionApplier
	if cfg.Gradescope.Enabled {
		extender = gradescope.NewClient(gradescope.ClientConfig{
			Email:    cfg.Gradescope.Email,
			Password: cfg.Gradescope.Password,
			Timeout:  cfg.Gradescope.Timeout,
			Logger:   log,
		})
	}

	emailQueue := command.NewProcessEmailQueueHandler(store, catalog, mailClient, notifier, policy.EmailConfig{
		From:      cfg.Email.From,
		ReplyTo:   cfg.Email.ReplyTo,
		CC:        cfg.Email.CC,
		Subject:   cfg.Email.Subject,
		Signature: cfg.Email.Signature,
	}, cfg.App.Location, log)
	flush := command.NewFlushExtensionsHandler(store, catalog, extender, notifier, log)

	emailInterval := envDuration("WORKER_EMAIL_QUEUE_INTERVAL", 5*time.Minute)
	flushInterval := envDuration("WORKER_FLUSH_INTERVAL", 15*time.Minute)

	emailTicker := time.NewTicker(emailInterval)
	defer emailTicker.Stop()
	flushTicker := time.NewTicker(flushInterval)
	defer flushTicker.Stop()

	log.Info("worker running",
		logger.Duration("email_queue_interval", emailInterval),
		logger.Duration("flush_interval", flushInterval),
	)

	for {
		select {
		case <-ctx.Done():
			log.Info("worker stopping")
			return nil

		case <-emailTicker.C:
			// Scheduled runs stay quiet when the queue is empty; only
			// on-demand triggers want the "zero emails" notification.
			if result, err := emailQueue.Handle(ctx, command.ProcessEmailQueueCommand{}); err != nil {
				log.Error("email queue run failed", logger.Err(err))
			} else if result.SentCount > 0 {
				log.Info("email queue processed", logger.Int("sent", result.SentCount))
			}

		case <-flushTicker.C:
			if result, err := flush.Handle(ctx, command.FlushExtensionsCommand{}); err != nil {
				log.Error("extension flush failed", logger.Err(err))
			} else if len(result.Successes)+len(result.Failures) > 0 {
				log.Info("extensions flushed",
					logger.Int("successes", len(result.Successes)),
					logger.Int("failures", len(result.Failures)),
				)
			}
		}
	}
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultVal
}
