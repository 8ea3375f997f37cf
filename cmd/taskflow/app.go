package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/metalagman/taskflow/internal/comment"
	"github.com/metalagman/taskflow/internal/config"
	"github.com/metalagman/taskflow/internal/db"
	"github.com/metalagman/taskflow/internal/events"
	"github.com/metalagman/taskflow/internal/reconcile"
	"github.com/metalagman/taskflow/internal/reminder"
	"github.com/metalagman/taskflow/internal/task"
	"github.com/metalagman/taskflow/internal/timeentry"
	"github.com/rs/zerolog/log"
)

// app holds the services sharing one database and event bus.
type app struct {
	db          *sql.DB
	bus         *events.Bus
	tasks       *task.Service
	reminders   *reminder.Service
	timeEntries *timeentry.Service
	comments    *comment.Service
	sync        *reconcile.Reconciler
}

const schedulerLock = "scheduler"

// lockDir keeps lock files next to the database they guard.
func lockDir(cfg config.Config) string {
	return filepath.Join(filepath.Dir(cfg.DB.Path), "locks")
}

func openDB(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	return db.Open(path)
}

func newApp(cfg config.Config) (*app, error) {
	database, err := openDB(cfg.DB.Path)
	if err != nil {
		return nil, err
	}
	bus := events.NewBus()
	tasks := task.NewService(database, bus)
	return &app{
		db:          database,
		bus:         bus,
		tasks:       tasks,
		reminders:   reminder.NewService(database, bus),
		timeEntries: timeentry.NewService(database),
		comments:    comment.NewService(database, bus),
		sync:        reconcile.New(tasks),
	}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

// withApp opens the application for the duration of fn.
func withApp(cfg config.Config, fn func(a *app) error) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn().Err(err).Msg("close database")
		}
	}()
	return fn(a)
}

func newSender(cfg config.DeliveryConfig) reminder.Sender {
	if cfg.Type == config.DeliverySMTP {
		return reminder.NewSMTPSender(reminder.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
	}
	return reminder.LogSender{}
}

func newScheduler(a *app, cfg config.Config) *reminder.Scheduler {
	return reminder.NewScheduler(
		a.reminders,
		a.tasks,
		newSender(cfg.Delivery),
		reminder.StaticDirectory(cfg.Contacts),
		reminder.SchedulerConfig{
			Interval:    cfg.Scheduler.Interval,
			Concurrency: cfg.Scheduler.Concurrency,
		},
	)
}
