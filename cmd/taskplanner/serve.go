package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"task-planner/internal/bot"
	"task-planner/internal/config"
	"task-planner/internal/logging"
	"task-planner/internal/metrics"
	"task-planner/internal/repository"
	"task-planner/internal/server"
	"task-planner/internal/service"
)

const digestTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the chat bot, reminder scheduler, digest job and admin HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg config.Config, logger logging.Logger) error {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	profiles, err := service.NewProfileService(repository.NewProfileRepository(store), cfg.DefaultTimezone, logging.With(logger, "profiles"))
	if err != nil {
		return err
	}

	var (
		api      *tgbotapi.BotAPI
		notifier service.Notifier = service.LogNotifier{Logger: logging.With(logger, "notify")}
	)
	if cfg.TelegramToken != "" {
		if api, err = bot.Connect(cfg.TelegramToken, logger); err != nil {
			return err
		}
		notifier = bot.NewNotifier(api, logging.With(logger, "notify"))
	} else {
		logger.Warn("TELEGRAM_TOKEN is not set; notifications go to the log only")
	}

	tasks := service.NewTaskService(repository.NewTaskRepository(store), profiles,
		service.WithMaxTasks(cfg.MaxTasks),
		service.WithTaskMetrics(m),
		service.WithTaskLogger(logging.With(logger, "tasks")))
	reminders := service.NewReminderService(tasks, repository.NewReminderRepository(store), profiles, notifier,
		service.WithReminderMetrics(m),
		service.WithReminderLogger(logging.With(logger, "reminders")))
	delegation := service.NewDelegationService(tasks, profiles, notifier, m, logging.With(logger, "delegation"))
	planner := service.NewPlanner(tasks, delegation, reminders, profiles)
	digest := service.NewDigestService(tasks, reminders, profiles, notifier, nil, m, logging.With(logger, "digest"))

	expirer := service.NewExpirer(nil, m, logging.With(logger, "expirer"))
	defer expirer.Stop()

	if err := reminders.Start(ctx); err != nil {
		return fmt.Errorf("start reminders: %w", err)
	}
	defer reminders.Stop()

	loc, err := time.LoadLocation(cfg.DefaultTimezone)
	if err != nil {
		return err
	}
	scheduler := service.NewSchedulerService(loc, logging.With(logger, "cron"))
	job := func() {
		jobCtx, cancel := context.WithTimeout(ctx, digestTimeout)
		defer cancel()
		if err := digest.RunOnce(jobCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("digest: %v", err)
		}
	}
	if cfg.DigestTime != "" {
		_, err = scheduler.ScheduleDaily("digest", cfg.DigestTime, job)
	} else {
		_, err = scheduler.ScheduleInterval("digest", cfg.ReportInterval, job)
	}
	if err != nil {
		return fmt.Errorf("schedule digest: %w", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.New(reminders, reg, logging.With(logger, "http")).Run(gctx, cfg.HTTPAddr)
	})
	if api != nil {
		telegram := bot.New(api, planner, expirer, cfg.EphemeralTTL, logging.With(logger, "bot"))
		g.Go(func() error {
			if err := telegram.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("bot stopped: %w", err)
			}
			return nil
		})
	}

	logger.Info("task planner started (store=%s, pending reminders=%d)", cfg.StoreBackend, reminders.Pending())
	err = g.Wait()
	logger.Info("shutdown complete")
	return err
}
