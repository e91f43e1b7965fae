package main

import (
	"context"
	"embed"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vivabot-tech/lingualive/internal/audio"
	"github.com/vivabot-tech/lingualive/internal/bargein"
	"github.com/vivabot-tech/lingualive/internal/config"
	"github.com/vivabot-tech/lingualive/internal/genlive"
	"github.com/vivabot-tech/lingualive/internal/observe"
	"github.com/vivabot-tech/lingualive/internal/server"
	"github.com/vivabot-tech/lingualive/internal/session"
	"github.com/vivabot-tech/lingualive/internal/storage"
	"github.com/vivabot-tech/lingualive/internal/token"
)

//go:embed static/*
var staticFiles embed.FS

// staticTokenSource hands out a fixed API key when no ephemeral token
// endpoint is configured.
type staticTokenSource struct {
	key string
}

func (s staticTokenSource) Fetch(context.Context) (string, error) {
	return s.key, nil
}

func main() {
	log.Println("lingualive: starting")

	cfg, warnings, err := config.Load(os.Getenv(config.EnvPrefix + "CONFIG"))
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	for _, w := range warnings {
		log.Printf("warning: %s", w)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		log.Fatalf("metrics init failed: %v", err)
	}
	metrics := observe.DefaultMetrics()

	store, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("storage init failed: %v", err)
	}
	defer func() { _ = store.Close() }()

	assets, err := fs.Sub(staticFiles, "static")
	if err != nil {
		log.Fatalf("static assets init failed: %v", err)
	}

	hub := server.NewHub()

	var tokens session.TokenSource
	if cfg.TokenEndpoint != "" {
		tokens = token.NewClient(cfg.TokenEndpoint)
	} else {
		tokens = staticTokenSource{key: cfg.GeminiAPIKey}
	}

	dial := func(ctx context.Context, liveCfg genlive.Config) (session.Channel, error) {
		return genlive.Connect(ctx, liveCfg)
	}

	audio.InitCaptureLib()
	defer audio.TeardownCaptureLib()

	captureFactory := func(h audio.FrameHandler) (session.Capture, error) {
		return audio.NewCapture(cfg.SampleRateCandidates(), h)
	}

	sink, err := audio.NewPortAudioSink()
	if err != nil {
		log.Fatalf("audio output init failed: %v", err)
	}
	scheduler := audio.NewScheduler(sink)

	detector := bargein.NewDetector(cfg.BargeInThreshold, cfg.ParsedBargeInCooldown())

	controller := session.NewController(
		tokens, dial, captureFactory, scheduler, hub, detector, metrics,
		session.Options{
			BaseURL: cfg.LiveBaseURL,
			Model:   cfg.LiveModel,
		},
	)
	scheduler.SetOnIdle(controller.PlaybackIdle)
	scheduler.Start()

	handler, err := server.Handler(assets, hub, controller, store, server.Options{
		PreviewDir: cfg.PreviewDir,
		Metrics:    metrics,
	})
	if err != nil {
		log.Fatalf("build http handler failed: %v", err)
	}

	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: handler}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("http server error: %v", err)
		}
	}()

	log.Printf("lingualive: web UI on http://127.0.0.1%s", cfg.ListenAddr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Println("lingualive: shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	controller.Stop()
	scheduler.Close()
	if err := sink.Close(); err != nil {
		log.Printf("warning: audio output close failed: %v", err)
	}

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("warning: http shutdown failed: %v", err)
	}
	if err := shutdownMetrics(shutdownCtx); err != nil {
		log.Printf("warning: metrics shutdown failed: %v", err)
	}
}
