// Package main - точка входа HTTP-сервера обработки запросов на продление
// дедлайнов. Сервер принимает вебхуки формы, прогоняет каждую заявку через
// движок авто-одобрения и раскладывает результаты: статусы в ростер,
// уведомления в Slack, письма студентам, продления в Gradescope.
//
// Архитектура следует принципам Clean Architecture и DDD:
// - Domain: каталог заданий, записи ростера, разбор заявок
// - Application: движок политики и команды пакетной обработки
// - Infrastructure: Sheets/Postgres/Redis, Slack, почта, Gradescope
// - Interface: HTTP endpoints
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cs161-staff/extensions/config"
	"github.com/cs161-staff/extensions/internal/application/command"
	"github.com/cs161-staff/extensions/internal/application/policy"
	"github.com/cs161-staff/extensions/internal/domain/assignment"
	"github.com/cs161-staff/extensions/internal/domain/record"
	"github.com/cs161-staff/extensions/internal/infrastructure/external/gradescope"
	"github.com/cs161-staff/extensions/internal/infrastructure/external/mailer"
	"github.com/cs161-staff/extensions/internal/infrastructure/external/slack"
	"github.com/cs161-staff/extensions/internal/infrastructure/persistence/file"
	"github.com/cs161-staff/extensions/internal/infrastructure/persistence/postgres"
	redisguard "github.com/cs161-staff/extensions/internal/infrastructure/persistence/redis"
	"github.com/cs161-staff/extensions/internal/infrastructure/persistence/sheets"
	httpserver "github.com/cs161-staff/extensions/internal/interface/http"
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

	logLevel := logger.LevelInfo
	if cfg.App.Debug {
		logLevel = logger.LevelDebug
	}
	log := logger.New(logger.Options{
		Level:  logLevel,
		Output: os.Stdout,
	}).With(logger.String("app", cfg.App.Name))

	log.Info("starting server",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
	)

	// ──────────────────────────────────────────────────────────────────────
	// Источник данных курса: Sheets в проде, YAML-файл для офлайна.
	// ──────────────────────────────────────────────────────────────────────
	var (
		catalog   *assignment.Catalog
		questions []map[string]string
		store     record.Store
	)

	sheetsClient := sheets.NewClient(sheets.ClientConfig{
		SpreadsheetID: cfg.Sheets.SpreadsheetID,
		AccessToken:   cfg.Sheets.AccessToken,
		Timeout:       cfg.Sheets.Timeout,
		Logger:        log,
	})

	if cfg.App.CourseFile != "" {
		course, err := file.Load(cfg.App.CourseFile)
		if err != nil {
			return err
		}
		catalog, err = course.Catalog()
		if err != nil {
			return err
		}
		questions = course.QuestionRecords()
	} else {
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
		catalog, err = assignment.NewCatalogFromRecords(records, cfg.App.Location)
		if err != nil {
			return err
		}

		questions, err = spreadsheet.QuestionRecords(ctx)
		if err != nil {
			return err
		}
	}

	// ──────────────────────────────────────────────────────────────────────
	// Хранилище ростера и журнал аудита.
	// ──────────────────────────────────────────────────────────────────────
	var audit httpserver.AuditLog

	if cfg.Database.URL != "" {
		conn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
		if err != nil {
			return err
		}
		defer conn.Close()

		if err := postgres.RunMigrations(ctx, conn); err != nil {
			return err
		}
		audit = postgres.NewInvocationLog(conn)

		if cfg.Database.UseAsRoster {
			store = postgres.NewRosterStore(conn)
		}
	}
	if store == nil {
		store = sheets.NewRosterStore(sheetsClient)
	}

	// ──────────────────────────────────────────────────────────────────────
	// Внешние сервисы.
	// ──────────────────────────────────────────────────────────────────────
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

	var dedupe httpserver.DedupeGuard
	if !cfg.Redis.Disabled {
		guard, err := redisguard.NewDedupeGuard(ctx, redisguard.Config{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
			MarkerTTL:    cfg.Redis.MarkerTTL,
		})
		if err != nil {
			// Дедупликация - необязательный контур: без Redis дубликаты
			// просто дойдут до ручного разбора.
			log.Warn("redis unavailable, dedupe disabled", logger.Err(err))
		} else {
			defer guard.Close()
			dedupe = guard
		}
	}

	// ──────────────────────────────────────────────────────────────────────
	// Движок и обработчики команд.
	// ──────────────────────────────────────────────────────────────────────
	emailCfg := policy.EmailConfig{
		From:      cfg.Email.From,
		ReplyTo:   cfg.Email.ReplyTo,
		CC:        cfg.Email.CC,
		Subject:   cfg.Email.Subject,
		Signature: cfg.Email.Signature,
	}

	engine := policy.NewEngine(catalog, store, notifier, mailClient, extender, policy.Config{
		AutoApproveThreshold:           cfg.Policy.AutoApproveThreshold,
		AutoApproveThresholdDSP:        cfg.Policy.AutoApproveThresholdDSP,
		AutoApproveAssignmentThreshold: cfg.Policy.AutoApproveAssignmentThreshold,
		MaxTotalRequestedExtensions:    cfg.Policy.MaxTotalRequestedExtensions,
		SpreadsheetURL:                 cfg.Sheets.SpreadsheetURL,
		ReviewerTags:                   cfg.Slack.ReviewerTags,
		Location:                       cfg.App.Location,
		Email:                          emailCfg,
	}, log)

	server := httpserver.NewServer(httpserver.Config{
		Host:       cfg.Server.Host,
		Port:       cfg.Server.Port,
		SecretHash: cfg.Server.SecretHash,
	}, httpserver.Dependencies{
		ProcessSubmission: command.NewProcessSubmissionHandler(questions, engine, cfg.App.Location, log),
		ProcessEmailQueue: command.NewProcessEmailQueueHandler(store, catalog, mailClient, notifier, emailCfg, cfg.App.Location, log),
		FlushExtensions:   command.NewFlushExtensionsHandler(store, catalog, extender, notifier, log),
		Dedupe:            dedupe,
		Notifier:          notifier,
		Audit:             audit,
		Logger:            log,
	})

	// ──────────────────────────────────────────────────────────────────────
	// Запуск и graceful shutdown.
	// ──────────────────────────────────────────────────────────────────────
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
