package serve

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tinyland-inc/autoreact/cmd/autoreact/internal"
	"github.com/tinyland-inc/autoreact/pkg/api"
	"github.com/tinyland-inc/autoreact/pkg/logger"
	"github.com/tinyland-inc/autoreact/pkg/rules"
	"github.com/tinyland-inc/autoreact/pkg/schedule"
)

const shutdownTimeout = 10 * time.Second

func serveCmd(debug, seedExamples bool) error {
	if debug {
		logger.SetLevel(logger.DEBUG)
		fmt.Println("🔍 Debug mode enabled")
	}

	cfg, err := internal.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	factory, err := internal.NewClientFactory(cfg)
	if err != nil {
		return err
	}
	rt, err := internal.NewRuntime(cfg, factory)
	if err != nil {
		return err
	}
	defer rt.Close()

	if seedExamples {
		if _, err := rt.SeedExamples(); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("✓ Platform: %s\n", cfg.Platform.Provider)
	fmt.Printf("✓ Rules: %d loaded from %s\n", rt.Rules.Len(), rt.Rules.Path())
	fmt.Printf("✓ Gateway starting on http://%s\n", cfg.Addr())
	fmt.Println("Press Ctrl+C to stop")

	err = run(ctx, rt, cfg.Addr())
	fmt.Println("\nShutting down...")
	if err == nil {
		fmt.Println("✓ Gateway stopped")
	}
	return err
}

// run serves until ctx is done or a component fails.
func run(ctx context.Context, rt *internal.Runtime, addr string) error {
	cfg := rt.Config

	sched, err := schedule.New(rt.Dispatcher, cfg.Reacting.StartSchedule, cfg.Reacting.StopSchedule)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	if err := rt.Start(gctx); err != nil {
		return err
	}

	srv := api.New(api.Options{
		Session:     rt.Session,
		Dispatcher:  rt.Dispatcher,
		Runner:      rt.Runner,
		Rules:       rt.Rules,
		Log:         rt.Log,
		Hub:         rt.Hub,
		Meter:       rt.Meter,
		Version:     internal.FormatVersion(),
		BaseContext: gctx,
	})

	g.Go(func() error {
		if err := srv.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http gateway: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if cfg.Reacting.WatchRules {
		watcher := rules.NewWatcher(rt.Rules)
		watcher.OnReload(func(count int) {
			logger.InfoCF("serve", "Rules reloaded from disk", map[string]any{"count": count})
		})
		if err := watcher.Start(gctx); err != nil {
			logger.WarnCF("serve", "Rule file watching disabled", map[string]any{"error": err.Error()})
		} else {
			g.Go(func() error {
				watcher.Wait()
				return nil
			})
		}
	}

	if sched.Enabled() {
		g.Go(func() error {
			sched.Run(gctx)
			return nil
		})
	}

	if cfg.Reacting.AutoStart {
		if err := rt.Dispatcher.Start(); err != nil {
			logger.WarnCF("serve", "Auto-start failed", map[string]any{"error": err.Error()})
		}
	}

	return g.Wait()
}
