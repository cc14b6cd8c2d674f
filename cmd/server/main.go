package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/location"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/shiva/dayline/config"
	"github.com/shiva/dayline/internal/bus"
	"github.com/shiva/dayline/internal/geocode"
	"github.com/shiva/dayline/internal/handler"
	"github.com/shiva/dayline/internal/middleware"
	"github.com/shiva/dayline/internal/route"
	"github.com/shiva/dayline/internal/stage"
	"github.com/shiva/dayline/internal/store"
	"github.com/shiva/dayline/internal/tracker"
)

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Logger()

	// ── Load configuration ──────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Pipeline.DebugMode {
		log = log.Level(zerolog.DebugLevel)
	} else {
		log = log.Level(zerolog.InfoLevel)
	}

	ctx := context.Background()

	// ── AWS clients ─────────────────────────────────────
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load AWS config")
	}
	s3Client := s3.NewFromConfig(awsCfg)
	locClient := location.NewFromConfig(awsCfg)

	st := store.NewS3(s3Client, cfg.Pipeline.RawBucket)
	bucket := cfg.Pipeline.RawBucket
	log.Info().Str("event", "startup").Str("bucket", bucket).Str("region", cfg.AWS.Region).Send()

	// ── Geocoding (optional redis cache in front) ───────
	var gcProvider geocode.Provider
	if cfg.AWS.PlaceIndex != "" {
		gcProvider = geocode.NewAWSProvider(locClient, cfg.AWS.PlaceIndex, cfg.AWS.MaxResults, cfg.AWS.Language)
		if cfg.Redis.Addr != "" {
			rdb := redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			if err := rdb.Ping(ctx).Err(); err != nil {
				log.Warn().Str("event", "redis_unavailable").Err(err).Msg("geocode cache disabled")
			} else {
				gcProvider = geocode.NewCachedProvider(gcProvider, rdb, cfg.Redis.CacheTTL, log)
				defer rdb.Close()
			}
		}
	}
	var gcClient *geocode.Client
	if gcProvider != nil {
		gcClient = geocode.NewClient(gcProvider, log)
	}

	// ── Optional capabilities ───────────────────────────
	var trk tracker.Tracker
	if cfg.AWS.TrackerName != "" {
		trk = tracker.NewAWSTracker(locClient, cfg.AWS.TrackerName)
	}
	var calc route.Calculator
	if cfg.AWS.RouteCalculator != "" {
		calc = route.NewAWSCalculator(locClient, cfg.AWS.RouteCalculator)
	}

	// ── Pipeline bus ────────────────────────────────────
	// Function handles that look like deployed ARNs go through Lambda
	// invocation; plain names run the whole pipeline in this process.
	var b bus.Bus
	if isDeployedHandle(cfg.Pipeline.MergeFunction) {
		b = bus.NewLambda(lambda.NewFromConfig(awsCfg))
		log.Info().Str("event", "bus_mode").Str("mode", "lambda").Send()
	} else {
		inproc := bus.NewInProcess(log)
		b = inproc

		merger := stage.NewMerger(st, bucket, b, cfg.Pipeline.StaysFunction, log)
		segmenter := stage.NewSegmenter(st, bucket,
			stage.Thresholds{RadiusM: cfg.Pipeline.StayRadiusM, MinDur: cfg.Pipeline.StayThresholdDur()},
			stage.Thresholds{RadiusM: cfg.Pipeline.VisitRadiusM, MinDur: cfg.Pipeline.VisitThresholdDur()},
			b, cfg.Pipeline.EnrichFunction, log)
		enricher := stage.NewEnricher(st, bucket, gcClient, b, cfg.Pipeline.TripsFunction, log)
		tripBuilder := stage.NewTripBuilder(st, bucket, calc, log)

		inproc.Subscribe(cfg.Pipeline.MergeFunction, merger.HandleEvent)
		inproc.Subscribe(cfg.Pipeline.StaysFunction, segmenter.HandleEvent)
		inproc.Subscribe(cfg.Pipeline.EnrichFunction, enricher.HandleEvent)
		inproc.Subscribe(cfg.Pipeline.TripsFunction, tripBuilder.HandleEvent)
		log.Info().Str("event", "bus_mode").Str("mode", "in-process").Send()
	}

	// ── Ingest layer ────────────────────────────────────
	ingestor := stage.NewIngestor(st, bucket, trk, gcProvider, b, cfg.Pipeline.MergeFunction, log)
	ingestHandler := handler.NewIngestHandler(ingestor, log)

	// ── Setup router ────────────────────────────────────
	router := mux.NewRouter()
	router.HandleFunc("/health", healthHandler(st)).Methods(http.MethodGet)
	router.HandleFunc("/", ingestHandler.Ingest).Methods(http.MethodPost, http.MethodOptions)

	h := middleware.CORS(router)
	h = middleware.RequestLogger(log)(h)
	h = middleware.Recoverer(log)(h)

	// ── Start HTTP server ───────────────────────────────
	srv := &http.Server{
		Addr:         cfg.Server.ServerAddr(),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Str("event", "listening").Str("addr", cfg.Server.ServerAddr()).Send()
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// ── Graceful shutdown ───────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Str("event", "shutdown_begin").Send()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Str("event", "shutdown_complete").Send()
}

// isDeployedHandle reports whether a stage handle names a deployed
// function (an ARN) rather than an in-process target.
func isDeployedHandle(fn string) bool {
	return strings.HasPrefix(fn, "arn:")
}

// healthHandler checks object-store reachability.
func healthHandler(st *store.S3) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]string{"status": "ok"}
		if _, err := st.Exists(r.Context(), "health-probe"); err != nil {
			resp["status"] = "degraded"
			resp["store"] = "unhealthy: " + err.Error()
		} else {
			resp["store"] = "healthy"
		}
		w.Header().Set("Content-Type", "application/json")
		if resp["status"] != "ok" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(resp)
	}
}
