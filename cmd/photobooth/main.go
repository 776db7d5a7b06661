package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/ayusman/photobooth/internal/app"
	"github.com/ayusman/photobooth/internal/booth"
	"github.com/ayusman/photobooth/internal/capture"
	"github.com/ayusman/photobooth/internal/config"
	"github.com/ayusman/photobooth/internal/detector"
	"github.com/ayusman/photobooth/internal/plugin"
	"github.com/ayusman/photobooth/internal/server"
	"github.com/ayusman/photobooth/internal/store"
	"github.com/ayusman/photobooth/internal/store/postgres"
	"github.com/ayusman/photobooth/internal/tray"
)

// Version is the application version.
const Version = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg, loadErr := config.Load()

	cmd := &cobra.Command{
		Use:           "photobooth",
		Short:         "Gesture-triggered webcam photo booth",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if loadErr != nil {
				return loadErr
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return run(cmd.Context(), cfg)
		},
	}

	f := cmd.Flags()
	f.IntVar(&cfg.CameraID, "camera", cfg.CameraID, "camera device index")
	f.IntVar(&cfg.Width, "width", cfg.Width, "requested frame width")
	f.IntVar(&cfg.Height, "height", cfg.Height, "requested frame height")
	f.StringSliceVar(&cfg.Backends, "backends", cfg.Backends, "camera backends in fallback order")
	f.StringVar(&cfg.Classifier, "classifier", cfg.Classifier, "classifier backend: dnn, yolo or mock")
	f.StringVar(&cfg.ModelPath, "model", cfg.ModelPath, "classifier model file")
	f.StringSliceVar(&cfg.ClassNames, "classes", cfg.ClassNames, "class names in model output order")
	f.StringVar(&cfg.TargetGesture, "target", cfg.TargetGesture, "class that triggers a capture")
	f.Float64Var(&cfg.TriggerThreshold, "threshold", cfg.TriggerThreshold, "minimum target confidence")
	f.StringVar(&cfg.HandScript, "hand-script", cfg.HandScript, "MediaPipe hand locator script")
	f.IntVar(&cfg.CountdownSeconds, "countdown", cfg.CountdownSeconds, "countdown length in seconds")
	f.IntVar(&cfg.SampleInterval, "sample-interval", cfg.SampleInterval, "classify every Nth frame")
	f.IntVar(&cfg.MinFrames, "min-frames", cfg.MinFrames, "consecutive qualifying samples to trigger")
	f.BoolVar(&cfg.Downscale, "downscale", cfg.Downscale, "classify at half resolution")
	f.StringVar(&cfg.CapturesDir, "captures", cfg.CapturesDir, "directory for saved photos")
	f.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database for capture records")
	f.StringVar(&cfg.DatabaseURL, "database-url", cfg.DatabaseURL, "PostgreSQL URL; replaces SQLite when set")
	f.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP listen address")
	f.StringVar(&cfg.StaticDir, "static", cfg.StaticDir, "frontend directory served at /")
	f.StringVar(&cfg.PluginDir, "plugins", cfg.PluginDir, "capture hook plugin directory")
	f.IntVar(&cfg.JPEGQuality, "jpeg-quality", cfg.JPEGQuality, "JPEG quality for stream and captures")
	f.DurationVar(&cfg.StreamInterval, "stream-interval", cfg.StreamInterval, "delay between MJPEG parts")
	f.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	f.BoolVar(&cfg.Tray, "tray", cfg.Tray, "show the system tray menu")

	return cmd
}

func run(ctx context.Context, cfg config.Config) error {
	slog.SetDefault(slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      cfg.SlogLevel(),
			TimeFormat: "15:04:05",
		}),
	))

	records, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	det, err := newDetector(cfg)
	if err != nil {
		return fmt.Errorf("load classifier: %w", err)
	}

	plugins := plugin.NewManager(cfg.PluginDir)
	if err := plugins.Discover(); err != nil {
		slog.Warn("plugin discovery failed", "dir", cfg.PluginDir, "err", err)
	}
	hook := plugin.NewCaptureHook(plugins, plugin.NewExecutor(plugin.DefaultTimeout))

	boothConfig := booth.DefaultConfig()
	boothConfig.Countdown = cfg.CountdownSeconds
	boothConfig.CapturesDir = cfg.CapturesDir
	boothConfig.Records = records
	boothConfig.Hooks = []booth.Hook{hook}

	application, err := app.New(app.Config{
		Camera: capture.NewCamera(capture.Config{
			DeviceID: cfg.CameraID,
			Width:    cfg.Width,
			Height:   cfg.Height,
			Backends: cfg.Backends,
		}),
		Detector:         det,
		TriggerThreshold: cfg.TriggerThreshold,
		MinFrames:        cfg.MinFrames,
		SampleInterval:   cfg.SampleInterval,
		Downscale:        cfg.Downscale,
		JPEGQuality:      cfg.JPEGQuality,
		Booth:            boothConfig,
	})
	if err != nil {
		det.Close()
		return err
	}

	staticDir := cfg.StaticDir
	if staticDir == "" {
		staticDir = findWebDir()
	}
	if staticDir != "" {
		slog.Info("serving static files", "dir", staticDir)
	}

	srv := server.New(server.Config{
		StaticDir:      staticDir,
		Source:         application,
		Captures:       records,
		StreamInterval: cfg.StreamInterval,
	})
	httpServer := &http.Server{Addr: cfg.Addr, Handler: srv}

	if err := application.Start(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			cancel()
		}
	}()

	if cfg.Tray {
		t := tray.New()
		t.OnToggle(application.SetEnabled)
		t.OnOpen(func() { openBrowser(browserURL(cfg.Addr)) })
		t.OnQuit(cancel)
		application.OnStatus(t.SetStatus)

		go func() {
			<-ctx.Done()
			t.Quit()
		}()
		// systray needs the main goroutine on macOS.
		t.Run()
	}

	<-ctx.Done()

	var runErr error
	select {
	case runErr = <-serveErr:
	default:
	}

	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	srv.Close()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("server shutdown", "err", err)
	}
	application.Stop()
	hook.Wait()

	if runErr != nil {
		return fmt.Errorf("server failed: %w", runErr)
	}
	return nil
}

// openStore picks Postgres when a URL is configured, SQLite otherwise.
func openStore(ctx context.Context, cfg config.Config) (store.CaptureStore, func(), error) {
	if cfg.DatabaseURL != "" {
		pg, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres store: %w", err)
		}
		slog.Info("capture records in postgres")
		return pg, pg.Close, nil
	}

	st, err := store.New(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite store: %w", err)
	}
	slog.Info("capture records in sqlite", "path", st.Path())
	return st.Captures(), func() { st.Close() }, nil
}

// detectorConfig maps the booth options onto the classifier. When frames are
// downscaled for detection the crop padding shrinks with them.
func detectorConfig(cfg config.Config) detector.Config {
	dc := detector.DefaultConfig()
	dc.ModelPath = cfg.ModelPath
	dc.ClassNames = cfg.ClassNames
	dc.Target = cfg.TargetGesture
	if cfg.Downscale {
		dc = dc.ForInputScale(app.DownscaleFactor)
	}
	return dc
}

// newDetector builds the configured classifier. Model load failures are fatal.
func newDetector(cfg config.Config) (detector.Detector, error) {
	dc := detectorConfig(cfg)

	switch cfg.Classifier {
	case config.ClassifierMock:
		slog.Warn("using mock classifier, captures will never trigger")
		return detector.NewMockDetector(), nil
	case config.ClassifierYOLO:
		return detector.NewYOLODetector(dc)
	default:
		var locator detector.HandLocator
		if l, err := detector.NewMediaPipeLocator(cfg.HandScript); err != nil {
			slog.Warn("hand locator unavailable, classifying whole frames", "err", err)
		} else {
			locator = l
		}
		return detector.NewDNNClassifier(dc, locator)
	}
}

// findWebDir searches for the frontend directory in common locations.
func findWebDir() string {
	for _, p := range []string{"web", "../web", "../../web"} {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}

	home := filepath.Join(config.DataDir(), "web")
	if info, err := os.Stat(home); err == nil && info.IsDir() {
		return home
	}
	return ""
}

func browserURL(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "http://localhost" + addr
	}
	return "http://" + addr
}

func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		slog.Warn("could not open browser", "url", url, "err", err)
		return
	}
	go cmd.Wait()
}
