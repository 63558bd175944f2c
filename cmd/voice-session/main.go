// Command voice-session runs the wake-word voice client against a voice-RAG
// backend: it listens for detections pushed over the backend's WebSocket,
// records queries, submits them to the pipeline, and plays the answers.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/vignanchoutpally/voice-rag/capture"
	"github.com/vignanchoutpally/voice-rag/detection"
	"github.com/vignanchoutpally/voice-rag/events"
	"github.com/vignanchoutpally/voice-rag/history"
	"github.com/vignanchoutpally/voice-rag/logger"
	vprom "github.com/vignanchoutpally/voice-rag/metrics/prometheus"
	"github.com/vignanchoutpally/voice-rag/pipeline"
	"github.com/vignanchoutpally/voice-rag/playback"
	"github.com/vignanchoutpally/voice-rag/session"
	"github.com/vignanchoutpally/voice-rag/telemetry"
	"github.com/vignanchoutpally/voice-rag/version"
)

const readyPollInterval = 2 * time.Second

func main() {
	var (
		configPath  = flag.String("config", "", "Path to YAML config file")
		backend     = flag.String("backend", "", "Backend base URL (overrides config)")
		redisAddr   = flag.String("redis", "", "Redis address for transcript history (overrides config)")
		metricsAddr = flag.String("metrics", "", "Prometheus metrics listen address (overrides config)")
		otlpURL     = flag.String("otlp", "", "OTLP trace endpoint (overrides config)")
		logLevel    = flag.String("log-level", "", "Log level: debug, info, warn, error")
		logFormat   = flag.String("log-format", "", "Log format: text or json")
		wakePhrase  = flag.String("wake-phrase", "", "Fallback wake phrase")
		uploadPath  = flag.String("upload", "", "Upload a PDF to the backend and exit")
		askText     = flag.String("ask", "", "Send a text query to the backend and exit")
		showVersion = flag.Bool("version", false, "Print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println(version.GetVersionInfo())
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	applyFlag(&cfg.Backend, *backend)
	applyFlag(&cfg.RedisAddr, *redisAddr)
	applyFlag(&cfg.MetricsAddr, *metricsAddr)
	applyFlag(&cfg.OTLPEndpoint, *otlpURL)
	applyFlag(&cfg.Log.Level, *logLevel)
	applyFlag(&cfg.Log.Format, *logFormat)
	applyFlag(&cfg.WakePhrase, *wakePhrase)

	if err := logger.Configure(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		CommonFields: map[string]string{
			"service": "voice-session",
		},
	}); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	version.LogStartup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *uploadPath, *askText); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("voice session exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg Config, uploadPath, askText string) error {
	backend := pipeline.New(cfg.Backend)

	// One-shot modes reuse the same client and skip the session entirely.
	if uploadPath != "" {
		return uploadDocument(ctx, backend, uploadPath)
	}
	if askText != "" {
		return askQuestion(ctx, backend, askText)
	}

	if err := waitReady(ctx, backend, cfg.VersionConstraint); err != nil {
		return err
	}

	bus := events.NewBus()
	bus.SubscribeAll(vprom.NewMetricsListener().Listener())

	if cfg.OTLPEndpoint != "" {
		telemetry.SetupPropagation()
		tp, err := telemetry.NewTracerProvider(ctx, cfg.OTLPEndpoint, "voice-session")
		if err != nil {
			return fmt.Errorf("failed to set up tracing: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tp.Shutdown(shutdownCtx)
		}()
		bus.SubscribeAll(telemetry.NewSpanListener(tp).Listener())
	}

	listenURL, err := wsURL(cfg.Backend, cfg.ListenPath)
	if err != nil {
		return err
	}
	heartbeatURL, err := wsURL(cfg.Backend, cfg.HeartbeatPath)
	if err != nil {
		return err
	}

	channel := detection.NewChannel(detection.ChannelConfig{
		URL: listenURL,
		Bus: bus,
	})

	var fallback detection.WakeWordSource
	if len(cfg.RecognizerCommand) > 0 {
		fallback = detection.NewFallback(
			&detection.CommandRecognizer{Command: cfg.RecognizerCommand},
			cfg.WakePhrase,
		)
	}

	var store history.Store
	if cfg.RedisAddr != "" {
		store = history.NewRedisStore(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}))
	} else {
		store = history.NewMemoryStore()
	}

	sess, err := session.New(session.Config{
		Primary:  channel,
		Fallback: fallback,
		Backend:  backend,
		Device:   &capture.ExecDevice{Command: cfg.CaptureCommand},
		Player: playback.New(backend, &playback.ExecSink{Command: cfg.PlayerCommand},
			playback.WithBus(bus)),
		History:            store,
		MaxRecording:       cfg.MaxRecording,
		ErrorRecoveryDelay: cfg.ErrorRecoveryDelay,
		ClearStateAtStart:  true,
		Bus:                bus,
	})
	if err != nil {
		return err
	}

	monitor := detection.NewMonitor(detection.MonitorConfig{
		URL:     heartbeatURL,
		Bus:     bus,
		OnStale: channel.ForceReconnect,
		OnPulse: sess.RecordHeartbeat,
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sess.Run(ctx) })
	g.Go(func() error { return ignoreCancel(monitor.Run(ctx)) })

	if cfg.MetricsAddr != "" {
		exporter := vprom.NewExporter(cfg.MetricsAddr)
		g.Go(func() error {
			if err := exporter.Start(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return exporter.Shutdown(shutdownCtx)
		})
	}

	logger.Info("voice session running",
		"session_id", sess.ID(),
		"backend", cfg.Backend,
		"listen_url", listenURL)
	return g.Wait()
}

// waitReady blocks until the backend reports its models loaded, checking the
// version constraint on the way.
func waitReady(ctx context.Context, backend *pipeline.Client, constraint string) error {
	for {
		status, err := backend.CheckCompatibility(ctx, constraint)
		switch {
		case err == nil && status.Ready():
			logger.Info("backend ready", "version", status.Version)
			return nil
		case err == nil:
			logger.Info("backend models still loading, waiting")
		default:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if strings.Contains(err.Error(), "does not satisfy") {
				return err
			}
			logger.Warn("backend not reachable yet", "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(readyPollInterval):
		}
	}
}

func uploadDocument(ctx context.Context, backend *pipeline.Client, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open document: %w", err)
	}
	defer f.Close()

	resp, err := backend.UploadDocument(ctx, f.Name(), f)
	if err != nil {
		return err
	}
	logger.Info("document uploaded", "file", path, "filename", resp.Filename)
	return nil
}

func askQuestion(ctx context.Context, backend *pipeline.Client, query string) error {
	resp, err := backend.ChatText(ctx, query)
	if err != nil {
		return err
	}
	fmt.Println(resp.ResponseText)
	return nil
}

// wsURL converts the backend HTTP base URL plus a path into a WebSocket URL.
func wsURL(base, path string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid backend URL %q: %w", base, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported backend scheme %q", u.Scheme)
	}
	u.Path = path
	return u.String(), nil
}

func applyFlag(dst *string, val string) {
	if val != "" {
		*dst = val
	}
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
