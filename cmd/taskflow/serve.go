package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/metalagman/taskflow/internal/config"
	"github.com/metalagman/taskflow/internal/lockfile"
	"github.com/metalagman/taskflow/internal/reminder"
	"github.com/metalagman/taskflow/internal/web"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func serveCmd(opts *options) *cobra.Command {
	var addr string
	var noScheduler bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run the reminder scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := opts.cfg
			if addr != "" {
				cfg.Server.Addr = addr
			}
			fxApp := fx.New(serveOptions(cfg, !noScheduler))
			if err := fxApp.Err(); err != nil {
				return err
			}
			fxApp.Run()
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "serve the API without delivering reminders")
	return cmd
}

// serveOptions assembles the application graph.
func serveOptions(cfg config.Config, withScheduler bool) fx.Option {
	invokes := []any{registerHTTP}
	if withScheduler {
		invokes = append(invokes, registerScheduler)
	}
	return fx.Options(
		fx.NopLogger,
		fx.Supply(cfg),
		fx.Provide(
			provideApp,
			newScheduler,
			provideServer,
		),
		fx.Invoke(invokes...),
	)
}

func provideApp(lc fx.Lifecycle, cfg config.Config) (*app, error) {
	a, err := newApp(cfg)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return a.Close() },
	})
	return a, nil
}

func provideServer(a *app) *web.Server {
	return web.NewServer(web.Deps{
		Tasks:       a.tasks,
		Comments:    a.comments,
		TimeEntries: a.timeEntries,
		Reminders:   a.reminders,
		Sync:        a.sync,
		Events:      a.bus,
	})
}

func registerHTTP(lc fx.Lifecycle, cfg config.Config, server *web.Server) {
	// Cancelled on stop so open event streams end before Shutdown waits on them.
	baseCtx, cancel := context.WithCancel(context.Background())
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", httpServer.Addr)
			if err != nil {
				return err
			}
			log.Info().Str("addr", ln.Addr().String()).Msg("http server listening")
			go func() {
				if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error().Err(err).Msg("http server failed")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			return httpServer.Shutdown(ctx)
		},
	})
}

func registerScheduler(lc fx.Lifecycle, cfg config.Config, scheduler *reminder.Scheduler) {
	var lock *lockfile.Lock
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			l, ok, err := lockfile.TryAcquire(lockDir(cfg), schedulerLock)
			if err != nil {
				return err
			}
			if !ok {
				log.Warn().Msg("another process is delivering reminders for this database, scheduler disabled")
				return nil
			}
			lock = l
			return scheduler.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			if lock == nil {
				return nil
			}
			err := scheduler.Stop(ctx)
			if relErr := lock.Release(); err == nil {
				err = relErr
			}
			return err
		},
	})
}
