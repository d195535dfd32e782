package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/local/docextract/internal/ai"
	cfgpkg "github.com/local/docextract/internal/config"
	"github.com/local/docextract/internal/converter"
	"github.com/local/docextract/internal/dispatcher"
	"github.com/local/docextract/internal/extract"
	"github.com/local/docextract/internal/filetype"
	"github.com/local/docextract/internal/limiter"
	logpkg "github.com/local/docextract/internal/logger"
	"github.com/local/docextract/internal/metrics"
	"github.com/local/docextract/internal/orchestrator"
	"github.com/local/docextract/internal/queue"
	"github.com/local/docextract/internal/raster"
	"github.com/local/docextract/internal/statuscheck"
	"github.com/local/docextract/internal/storage"
	"github.com/local/docextract/internal/store"
	"github.com/local/docextract/internal/summarize"
	"github.com/local/docextract/internal/web"
)

func main() {
	_ = godotenv.Load()
	cfg := cfgpkg.FromEnv()

	_ = logpkg.Init(logpkg.Options{
		Level:        cfg.Logging.Level,
		Pretty:       cfg.Logging.Pretty,
		File:         cfg.Logging.File,
		MaxSizeMB:    cfg.Logging.MaxSizeMB,
		MaxBackups:   cfg.Logging.MaxBackups,
		MaxAgeDays:   cfg.Logging.MaxAgeDays,
		Compress:     cfg.Logging.Compress,
		SendToAxiom:  cfg.Axiom.Send && cfg.Axiom.APIKey != "",
		AxiomAPIKey:  cfg.Axiom.APIKey,
		AxiomOrgID:   cfg.Axiom.OrgID,
		AxiomDataset: cfg.Axiom.Dataset,
		AxiomFlush:   cfg.Axiom.FlushInterval,
	})
	defer logpkg.Close()

	metrics.Init()

	rq, err := queue.NewRedisQueue(cfg.Queue.RedisURL, cfg.Queue.Stream, cfg.Queue.Group, cfg.Queue.PollInterval)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer rq.Close()

	rs, err := store.NewRedisStatus(cfg.Queue.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init redis status store")
	}
	defer rs.Close()

	results, err := store.NewResultStore(cfg.Queue.RedisURL, 0)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init result store")
	}
	defer results.Close()

	ctx := context.Background()
	s3c, err := storage.New(ctx, storage.Options{
		Bucket:    cfg.Storage.Bucket,
		Region:    cfg.Storage.Region,
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init s3 client")
	}

	lim, err := limiter.New(limiter.Options{
		RedisURL:    cfg.Queue.RedisURL,
		MaxInflight: cfg.Worker.MaxInflightPerModel,
		BaseBackoff: cfg.Worker.BreakerBaseBackoff,
		MaxBackoff:  cfg.Worker.BreakerMaxBackoff,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init rate limiter")
	}
	defer lim.CloseClient()

	// Extraction pipeline and its collaborators.
	weights, err := summarize.LoadWeights(cfg.Summary.WeightsFile)
	if err != nil {
		log.Warn().Err(err).Str("path", cfg.Summary.WeightsFile).Msg("weights file not loaded, using defaults")
		weights = summarize.DefaultWeights()
	}
	sum := summarize.New(weights, cfg.Summary.Budget)

	ras := raster.New(raster.Options{
		DPI:             cfg.Raster.DPI,
		MaxPages:        cfg.Raster.MaxPages,
		MaxDimensionPx:  cfg.Raster.MaxDimensionPx,
		MaxImageBytes:   cfg.Raster.MaxImageBytes,
		Quality:         cfg.Raster.Quality,
		FallbackQuality: cfg.Raster.FallbackQuality,
	})

	conv := converter.NewLibreOffice(2, cfg.Extract.DocTimeout)
	if !conv.Available() {
		log.Warn().Msg("libreoffice not found, legacy office conversion disabled")
	}

	pipeline := extract.New(extract.Config{
		MinTextLen:       cfg.Extract.MinTextLen,
		HeaderScanWindow: cfg.Extract.HeaderScanWindow,
	}, filetype.New(), sum, ras, conv)

	checker := statuscheck.New(statuscheck.Options{
		Redis:        rq,
		Converter:    conv,
		S3Bucket:     cfg.Storage.Bucket,
		S3Endpoint:   cfg.Storage.Endpoint,
		OpenAIKey:    os.Getenv("OPENAI_API_KEY"),
		AnthropicKey: os.Getenv("ANTHROPIC_API_KEY"),
	})

	orch := orchestrator.New(orchestrator.Dependencies{
		Queue:   rq,
		Status:  rs,
		Results: results,
		Storage: s3c,
		Checker: checker,
	}, cfg.Storage)
	mux := http.NewServeMux()
	orch.RegisterRoutes(mux)
	mux.Handle("/metrics", metrics.Handler())

	dash := web.New()
	dash.RegisterRoutes(mux)

	runDispatcher := os.Getenv("RUN_DISPATCHER")
	if runDispatcher == "" || runDispatcher == "1" || runDispatcher == "true" {
		disp := dispatcher.New(cfg, dispatcher.Dependencies{
			Queue:     rq,
			Storage:   s3c,
			Status:    rs,
			Results:   results,
			Pipeline:  pipeline,
			Limiter:   lim,
			OpenAI:    ai.NewOpenAIClient(),
			Anthropic: ai.NewAnthropicClient(),
		})
		disp.Start()
		defer disp.Stop(context.Background())
	}

	// Queue depth gauges for the dashboard and alerting.
	go func() {
		t := time.NewTicker(15 * time.Second)
		defer t.Stop()
		for range t.C {
			stream, delayed, dlq, err := rq.Depths(context.Background())
			if err != nil {
				continue
			}
			metrics.SetQueueDepth("stream", stream)
			metrics.SetQueueDepth("delayed", delayed)
			metrics.SetQueueDepth("dlq", dlq)
		}
	}()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{Addr: ":" + port, Handler: mux}

	go func() {
		log.Info().Msgf("HTTP server listening on :%s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	fmt.Println("shutdown complete")
}
