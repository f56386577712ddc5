package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ahmetyasinc/whaleer-beta-1-sub003/internal/api"
	"github.com/ahmetyasinc/whaleer-beta-1-sub003/internal/cdpcontrol"
	"github.com/ahmetyasinc/whaleer-beta-1-sub003/internal/config"
	"github.com/ahmetyasinc/whaleer-beta-1-sub003/internal/frame"
	"github.com/ahmetyasinc/whaleer-beta-1-sub003/internal/netutil"
	"github.com/ahmetyasinc/whaleer-beta-1-sub003/internal/relay"
	"github.com/ahmetyasinc/whaleer-beta-1-sub003/internal/workspace"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		_, _ = io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n")
		os.Exit(1)
	}

	slog.Info("viewsyncd config loaded",
		"bind_addr", cfg.BindAddr,
		"port_auto_fallback", cfg.PortAutoFallback,
		"frame_interval_ms", cfg.FrameIntervalMS,
		"min_bars", cfg.MinBars,
		"cdp_enabled", cfg.CDPEnabled,
		"layout", cfg.LayoutPath,
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
	)

	bindAddr, err := netutil.SelectBindAddr(cfg.BindAddr, netutil.ParseCandidates(cfg.PortCandidates), cfg.PortAutoFallback)
	if err != nil {
		slog.Error("failed to select bind address", "preferred", cfg.BindAddr, "error", err)
		os.Exit(1)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	frames := frame.NewTicker(cfg.FrameInterval())
	frames.Start(ctx)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var cdpClient *cdpcontrol.Client
	if cfg.CDPEnabled {
		cdpClient = connectCDP(ctx, cfg)
		defer func() { _ = cdpClient.Close() }()
	}

	ws := workspace.New(workspace.Config{
		Frames:     frames,
		Registerer: reg,
		CDP:        cdpClient,
		Defaults: workspace.Defaults{
			Resolution:  cfg.Resolution,
			MinBars:     cfg.MinBars,
			ZoomIn:      cfg.ZoomIn,
			ZoomOut:     cfg.ZoomOut,
			RightOffset: cfg.RightOffset,
			Bars:        cfg.SimBars,
		},
	})
	defer func() { _ = ws.Close() }()

	var feeds *relay.RelayConfig
	if cfg.RelayFeedPath != "" {
		if feeds, err = relay.LoadConfig(cfg.RelayFeedPath); err != nil {
			slog.Error("failed to load relay feeds", "path", cfg.RelayFeedPath, "error", err)
			os.Exit(1)
		}
	}
	broker := relay.NewBroker()
	rl := relay.NewRelay(feeds, broker)
	rl.Start(ws.Bus())
	defer rl.Stop()

	if cfg.LayoutPath != "" {
		layout, err := workspace.LoadLayout(cfg.LayoutPath)
		if err != nil {
			slog.Error("failed to load layout", "path", cfg.LayoutPath, "error", err)
			os.Exit(1)
		}
		mounted, err := ws.MountLayout(ctx, layout)
		if err != nil {
			slog.Error("failed to mount layout", "path", cfg.LayoutPath, "mounted", len(mounted), "error", err)
			os.Exit(1)
		}
		slog.Info("layout mounted", "path", cfg.LayoutPath, "viewports", len(mounted))
	}

	h := api.NewServer(ws, api.Options{Broker: broker, Gatherer: reg})
	// SSE streams only end when their request context does.
	streamCtx, cancelStreams := context.WithCancel(ctx)
	srv := &http.Server{
		Addr:        bindAddr,
		Handler:     h,
		BaseContext: func(net.Listener) context.Context { return streamCtx },
	}
	srv.RegisterOnShutdown(cancelStreams)

	go func() {
		slog.Info("viewsyncd listening", "addr", bindAddr, "docs", "http://"+bindAddr+"/docs")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("viewsyncd server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("viewsyncd shutdown failed", "error", err)
	}
	stop()
	<-frames.Done()
}

// connectCDP opens any configured chart tabs and connects the CDP client.
func connectCDP(ctx context.Context, cfg *config.Config) *cdpcontrol.Client {
	if cfg.ChartTabsPath != "" {
		tabs, err := config.LoadChartTabs(cfg.ChartTabsPath)
		switch {
		case errors.Is(err, os.ErrNotExist):
			slog.Info("chart tabs config not found, skipping", "path", cfg.ChartTabsPath)
		case err != nil:
			slog.Error("failed to load chart tabs config", "path", cfg.ChartTabsPath, "error", err)
			os.Exit(1)
		default:
			opened, err := cdpcontrol.OpenChartTabs(ctx, cfg.GetCDPURL(), tabs.URLs())
			if err != nil {
				slog.Error("failed to open chart tabs", "cdp_url", cfg.GetCDPURL(), "error", err)
				os.Exit(1)
			}
			slog.Info("chart tabs ready", "configured", len(tabs.Tabs), "opened", len(opened))
		}
	}

	client := cdpcontrol.NewClient(cfg.GetCDPURL(), cfg.TabURLFilter, cfg.EvalTimeout())
	if err := client.Connect(ctx); err != nil {
		slog.Error("failed to connect CDP", "cdp_url", cfg.GetCDPURL(), "error", err)
		os.Exit(1)
	}
	return client
}

func setupLogger(level, filename string) error {
	if err := os.MkdirAll("logs", 0o755); err != nil {
		return err
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h))
	return nil
}
