package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/olivier-w/tftviz/internal/clock"
	"github.com/olivier-w/tftviz/internal/config"
	"github.com/olivier-w/tftviz/internal/display"
	"github.com/olivier-w/tftviz/internal/observe"
	"github.com/olivier-w/tftviz/internal/render"
	"github.com/olivier-w/tftviz/internal/termview"
	"github.com/olivier-w/tftviz/internal/visualizer"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := loadConfig(args, os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	// The terminal preview owns the screen, so logs go to a file.
	logOut := io.Writer(os.Stderr)
	if cfg.Display.Driver == config.DriverTerminal {
		path := filepath.Join(os.TempDir(), "tftviz.log")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		defer f.Close()
		logOut = f
	}
	logger := newLogger(cfg.LogLevel, logOut)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := openPanel(cfg)
	if err != nil {
		slog.Error("failed to open display", "driver", cfg.Display.Driver, "err", err)
		return 1
	}
	defer func() {
		if err := p.Halt(); err != nil {
			slog.Warn("halting display", "err", err)
		}
		if err := p.close(); err != nil {
			slog.Warn("closing display", "err", err)
		}
	}()

	slog.Info("tftviz starting",
		"display", p.String(),
		"visualizer", cfg.Visualizer.Enabled,
		"offset", cfg.Visualizer.Offset,
		"metrics", cfg.Metrics.Listen,
	)

	if err := serve(ctx, cfg, p); err != nil {
		if errors.Is(err, termview.ErrClosed) {
			return 0
		}
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("shutdown complete")
	return 0
}

// serve runs the visualizer (or the idle panel), the optional metrics
// listener and the panel's own loop until ctx is done or one of them fails.
func serve(ctx context.Context, cfg config.Config, p *openedPanel) error {
	var opts []visualizer.Option
	var checkers []observe.Checker
	var metrics *observe.Provider
	if cfg.Metrics.Listen != "" {
		var err error
		metrics, err = observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version()})
		if err != nil {
			return fmt.Errorf("init metrics: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metrics.Shutdown(shutdownCtx); err != nil {
				slog.Warn("metrics shutdown", "err", err)
			}
		}()
		m, err := observe.NewMetrics(metrics.MeterProvider)
		if err != nil {
			return fmt.Errorf("create metrics: %w", err)
		}
		opts = append(opts, visualizer.WithRecorder(m))
	}

	loop := func(ctx context.Context) error { return idle(ctx, p, cfg.Render.Background) }
	if cfg.Visualizer.Enabled {
		clk := clock.System{}
		opts = append(opts, visualizer.WithClock(clk), visualizer.WithLogger(slog.Default()))
		vis, err := visualizer.New(visualizer.FromConfig(cfg), visualizer.NewOpener(cfg.Audio, clk), p, opts...)
		if err != nil {
			return err
		}
		checkers = append(checkers, observe.Checker{Name: "audio", Check: vis.Ready})
		loop = vis.Run
	}

	g, gctx := errgroup.WithContext(ctx)
	if p.run != nil {
		g.Go(func() error { return p.run(gctx) })
	}
	g.Go(func() error { return loop(gctx) })

	if metrics != nil {
		srv := observe.NewServer(metrics.Handler, slog.Default(), checkers...)
		g.Go(func() error { return srv.ListenAndServe(gctx, cfg.Metrics.Listen) })
	}
	return g.Wait()
}

// idle clears the panel and waits for shutdown.
func idle(ctx context.Context, p panel, background string) error {
	bg, err := render.ParseColor(background)
	if err != nil {
		return err
	}
	if err := display.Clear(p, p.Bounds(), bg); err != nil {
		return err
	}
	slog.Info("visualizer disabled; panel cleared")
	<-ctx.Done()
	return nil
}

func newLogger(level config.LogLevel, w io.Writer) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

func version() string {
	if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" {
		return bi.Main.Version
	}
	return "dev"
}
