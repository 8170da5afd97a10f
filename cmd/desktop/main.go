// Command caminodesktop is the privileged process of the desktop build. It
// serves the bundled web build, owns the update state and talks to the UI
// over the update channel. The ui subcommand is a terminal client for the
// other end of that channel.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"caminomanager/internal/desktop/updatechannel"
	"caminomanager/internal/desktop/updater"
	"caminomanager/internal/platform/config"
	"caminomanager/internal/platform/httpserver"
	"caminomanager/internal/platform/logger"
	"caminomanager/internal/platform/metrics"
	"caminomanager/pkg/platform/middleware/request"
)

const ipcPath = "/ipc"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "caminodesktop:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("caminodesktop", pflag.ContinueOnError)
	flags.SetInterspersed(false)
	configDir := flags.String("config", "", "directory holding config.yaml")
	autoInstall := flags.Bool("auto-install", false, "ui: restart into the update as soon as it is staged")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configDir)
	if err != nil {
		return err
	}
	log := logger.New(os.Stderr, cfg.Log)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := "serve"
	if flags.NArg() > 0 {
		cmd = flags.Arg(0)
	}
	switch cmd {
	case "serve":
		return serve(ctx, stop, cfg, log)
	case "ui":
		return ui(ctx, cfg, log, *autoInstall)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

type installerFunc func(ctx context.Context) error

func (f installerFunc) InstallUpdate(ctx context.Context) error { return f(ctx) }

func serve(ctx context.Context, quit context.CancelFunc, cfg *config.Config, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	var upd *updater.Updater
	channel := updatechannel.NewServer(cfg.Desktop.AppVersion,
		installerFunc(func(ctx context.Context) error {
			if upd == nil {
				return updater.ErrNothingStaged
			}
			return upd.InstallUpdate(ctx)
		}),
		updatechannel.WithLogger(log),
		updatechannel.WithMetrics(m),
		updatechannel.WithAllowedOrigins(cfg.Server.AllowedOrigins),
	)
	defer channel.Close()

	if cfg.Desktop.FeedURL != "" {
		var err error
		upd, err = updater.New(cfg.Desktop.FeedURL, cfg.Desktop.AppVersion, cfg.Desktop.UpdateDir, channel,
			updater.WithLogger(log),
			updater.WithQuit(quit),
		)
		if err != nil {
			return err
		}
	} else {
		log.Info("update feed not configured, auto-update disabled")
	}

	r := chi.NewRouter()
	r.Use(request.Recover(log))
	r.Use(request.RequestID)
	r.Use(request.Logger(log))
	r.Handle(ipcPath, channel)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Handle("/*", http.FileServer(http.Dir(cfg.Desktop.WebDir)))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.Run(ctx, httpserver.New(cfg.Desktop.IPCAddr, r), cfg.Server.ShutdownTimeout, log)
	})
	if upd != nil {
		g.Go(func() error {
			return upd.Run(ctx, cfg.Desktop.PollInterval)
		})
	}
	log.Info("desktop shell started", "version", cfg.Desktop.AppVersion, "addr", cfg.Desktop.IPCAddr)
	return g.Wait()
}

func ui(ctx context.Context, cfg *config.Config, log *slog.Logger, autoInstall bool) error {
	bridge := updatechannel.NewBridge(updatechannel.WithBridgeLogger(log))

	var prompt *updatechannel.Prompt
	prompt = updatechannel.NewPrompt(bridge, func() {
		fmt.Println("Hay una actualización lista. Reinicia la aplicación para instalarla.")
		if autoInstall {
			prompt.Restart()
		}
	})
	defer prompt.Close()
	unsubscribe := bridge.OnUpdateAvailable(func() {
		fmt.Println("Descargando actualización...")
	})
	defer unsubscribe()

	if err := bridge.Connect(ctx, "ws://"+cfg.Desktop.IPCAddr+ipcPath); err != nil {
		// No channel means no prompt; the UI keeps running without it.
		<-ctx.Done()
		return nil
	}
	defer bridge.Close()

	if version, err := bridge.GetAppVersion(ctx); err != nil {
		log.Warn("app version unavailable", "error", err)
	} else {
		fmt.Println("CaminoManager", version)
	}

	select {
	case <-ctx.Done():
	case <-bridge.Done():
	}
	return nil
}
