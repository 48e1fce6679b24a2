package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
)

// RunFlow runs the harvest loop: load universe, run, wait for the next
// scheduled time, repeat. With RunOnce it returns after the first run.
// The metrics endpoint, if configured, is served alongside and stops with
// the loop.
func RunFlow(ctx context.Context, a *App) error {
	sched, err := a.Config.Schedule()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	if a.Config.MetricsAddr != "" {
		g.Go(func() error {
			slog.Info("serving metrics", "addr", a.Config.MetricsAddr)
			return a.Metrics.Serve(gctx, a.Config.MetricsAddr)
		})
	}
	g.Go(func() error {
		defer cancel()
		return runLoop(gctx, a, sched, time.Now)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runLoop(ctx context.Context, a *App, sched cron.Schedule, now func() time.Time) error {
	for {
		if err := runOnce(ctx, a); err != nil {
			return err
		}
		if a.Config.RunOnce {
			slog.Info("run_once set, exiting")
			return nil
		}

		next := sched.Next(now())
		wait := time.Until(next)
		slog.Info("done, wait until next run", "hours", wait.Hours(), "until", next.Format("2006-01-02 15:04 MST"))
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			slog.Info("stopping", "restart_at", next.Format("2006-01-02 15:04 MST"))
			return ctx.Err()
		}
	}
}

func runOnce(ctx context.Context, a *App) error {
	instruments, err := LoadInstruments(ctx, a.Config, a.Client, a.Store)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// A missing directory should not kill a long-running scheduler;
		// try again at the next slot.
		slog.Error("load instruments failed, skipping run", "err", err)
		return nil
	}

	_, err = a.Engine.Run(ctx, instruments)
	return err
}
