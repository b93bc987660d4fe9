package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Lynam2022/y2tubex/internal/acquire"
	"github.com/Lynam2022/y2tubex/internal/media"
	"github.com/Lynam2022/y2tubex/internal/platform/config"
	"github.com/Lynam2022/y2tubex/internal/platform/logger"
	"github.com/Lynam2022/y2tubex/internal/platform/metrics"
	"github.com/Lynam2022/y2tubex/internal/progress"
	"github.com/Lynam2022/y2tubex/internal/source"
)

const (
	shutdownTimeout  = 10 * time.Second
	ytdlpTimeout     = 10 * time.Minute
	janitorInterval  = time.Minute
	recordIdlePeriod = 10 * time.Minute
)

func main() {
	_ = config.Load()
	cfg := config.FromEnv()

	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	dirs := media.Dirs{Downloads: cfg.DownloadDir, Subtitles: cfg.SubtitleDir, Temp: cfg.TempDir}
	if err := dirs.Ensure(); err != nil {
		log.Error("artifact directories", "error", err)
		os.Exit(1)
	}

	store := progress.NewInMemoryStore()
	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	defer stopJanitor()
	store.StartJanitor(janitorCtx, janitorInterval, recordIdlePeriod)

	met := metrics.New()
	meta := source.NewMetadataClient(cfg.MetadataAPIKey, cfg.AggregatorBaseURL, cfg.AggregatorAPIKey, log)
	processor := media.NewProcessor(cfg.FFmpegPath, log)
	aggregator := acquire.NewAggregatorStrategy(cfg.AggregatorBaseURL, cfg.AggregatorAPIKey, log)

	orch := acquire.NewOrchestrator(acquire.Options{
		Store:     store,
		Metadata:  meta,
		Processor: processor,
		SubtitleStrategies: []acquire.Strategy{
			acquire.NewYTDLPSubtitles(cfg.YTDLPPath, ytdlpTimeout, log),
			acquire.NewLibraryCaptions(log),
			acquire.NewCaptionLibrary(cfg.DefaultLanguage, log),
			acquire.NewCaptionsEndpoint(log),
		},
		MediaStrategies: []acquire.Strategy{
			acquire.NewYTDLPMedia(cfg.YTDLPPath, ytdlpTimeout, log),
			acquire.NewLibraryMedia(log),
			aggregator,
		},
		Aggregator: aggregator,
		Retry: acquire.RetryPolicy{
			MaxAttempts: cfg.MaxAttempts,
			BaseDelay:   cfg.BaseDelay,
			MaxDelay:    8 * cfg.BaseDelay,
		},
		Dirs:        dirs,
		RetainCount: cfg.RetainCount,
		Log:         log,
		Metrics:     met,
	})

	h := acquire.NewHandler(orch, meta, cfg.TempDir, log, met)
	stream := progress.NewStreamHandler(store, cfg.StreamInterval, log)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))

	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		met.Handler(func() { met.SetActiveDownloads(orch.ActiveCount()) }).ServeHTTP(w, req)
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/metadata", h.Metadata)
		r.Post("/download", h.Download)
		r.Post("/download-subtitle", h.DownloadSubtitle)
		r.Get("/download-progress/{downloadId}", stream.ServeProgress)
		r.Post("/cancel-download/{downloadId}", h.CancelDownload)
	})

	r.Handle("/downloads/*", http.StripPrefix("/downloads/", http.FileServer(http.Dir(cfg.DownloadDir))))
	r.Handle("/subtitles/*", http.StripPrefix("/subtitles/", http.FileServer(http.Dir(cfg.SubtitleDir))))

	addr := ":" + cfg.Port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", cfg.Port,
		"download_dir", cfg.DownloadDir,
		"retain_count", cfg.RetainCount,
		"log_level", cfg.LogLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
