// Package config loads all pipeline configuration from environment
// variables (with an optional .env file for local runs).
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the pipeline.
type Config struct {
	Server   ServerConfig
	Pipeline PipelineConfig
	AWS      AWSConfig
	Redis    RedisConfig
}

// ServerConfig holds HTTP server settings for the ingest endpoint.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// PipelineConfig holds the shared bucket, the dwell thresholds, and
// the downstream stage handles.
type PipelineConfig struct {
	RawBucket string

	StayRadiusM  float64
	StayMinSec   int
	VisitRadiusM float64
	VisitMinSec  int

	// Stage handles for async invocation. In the single-binary runtime
	// these are in-process bus targets; in a Lambda deployment they
	// are function names.
	MergeFunction  string
	StaysFunction  string
	EnrichFunction string
	TripsFunction  string

	DebugMode bool
}

// AWSConfig holds region and capability resource handles. Empty
// handles disable the corresponding capability.
type AWSConfig struct {
	Region          string
	PlaceIndex      string
	RouteCalculator string
	TrackerName     string
	MaxResults      int32
	Language        string
}

// RedisConfig holds the optional reverse-geocode cache settings. An
// empty Addr disables the cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	CacheTTL time.Duration
}

// ServerAddr returns the HTTP listen address in host:port format.
func (s *ServerConfig) ServerAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StayThresholdDur returns the stay minimum duration.
func (p *PipelineConfig) StayThresholdDur() time.Duration {
	return time.Duration(p.StayMinSec) * time.Second
}

// VisitThresholdDur returns the visit minimum duration.
func (p *PipelineConfig) VisitThresholdDur() time.Duration {
	return time.Duration(p.VisitMinSec) * time.Second
}

// Load reads configuration from environment variables and .env file.
func Load() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// ── Defaults ────────────────────────────────────────
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_PORT", 8080)
	viper.SetDefault("SERVER_READ_TIMEOUT", "5s")
	viper.SetDefault("SERVER_WRITE_TIMEOUT", "30s")
	viper.SetDefault("SERVER_IDLE_TIMEOUT", "120s")

	viper.SetDefault("RAW_BUCKET", "")
	viper.SetDefault("STAY_RADIUS_M", 200)
	viper.SetDefault("STAY_MIN_SEC", 300)
	viper.SetDefault("VISIT_RADIUS_M", 120)
	viper.SetDefault("VISIT_MIN_SEC", 30)
	viper.SetDefault("MERGE_FUNCTION", "merge")
	viper.SetDefault("STAYS_FUNCTION", "segment")
	viper.SetDefault("ENRICH_FUNCTION", "enrich")
	viper.SetDefault("TRIPS_FUNCTION", "trips")
	viper.SetDefault("DEBUG_MODE", false)

	viper.SetDefault("AWS_REGION", "us-east-1")
	viper.SetDefault("PLACE_INDEX", "")
	viper.SetDefault("ROUTE_CALCULATOR", "")
	viper.SetDefault("TRACKER_NAME", "")
	viper.SetDefault("MAX_RESULTS", 1)
	viper.SetDefault("GEOCODE_LANGUAGE", "ja")

	viper.SetDefault("REDIS_ADDR", "")
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("GEOCODE_CACHE_TTL", "720h")

	// Try to read .env file. If it doesn't exist (e.g. in a container),
	// injected env vars are used instead.
	_ = viper.ReadInConfig()

	cfg := &Config{}

	// ── Server ──────────────────────────────────────────
	cfg.Server = ServerConfig{
		Host:         viper.GetString("SERVER_HOST"),
		Port:         viper.GetInt("SERVER_PORT"),
		ReadTimeout:  viper.GetDuration("SERVER_READ_TIMEOUT"),
		WriteTimeout: viper.GetDuration("SERVER_WRITE_TIMEOUT"),
		IdleTimeout:  viper.GetDuration("SERVER_IDLE_TIMEOUT"),
	}

	// ── Pipeline ────────────────────────────────────────
	cfg.Pipeline = PipelineConfig{
		RawBucket:      viper.GetString("RAW_BUCKET"),
		StayRadiusM:    viper.GetFloat64("STAY_RADIUS_M"),
		StayMinSec:     viper.GetInt("STAY_MIN_SEC"),
		VisitRadiusM:   viper.GetFloat64("VISIT_RADIUS_M"),
		VisitMinSec:    viper.GetInt("VISIT_MIN_SEC"),
		MergeFunction:  viper.GetString("MERGE_FUNCTION"),
		StaysFunction:  viper.GetString("STAYS_FUNCTION"),
		EnrichFunction: viper.GetString("ENRICH_FUNCTION"),
		TripsFunction:  viper.GetString("TRIPS_FUNCTION"),
		DebugMode:      viper.GetBool("DEBUG_MODE"),
	}
	if cfg.Pipeline.RawBucket == "" {
		return nil, fmt.Errorf("config: RAW_BUCKET is required")
	}

	// ── AWS capabilities ────────────────────────────────
	cfg.AWS = AWSConfig{
		Region:          viper.GetString("AWS_REGION"),
		PlaceIndex:      viper.GetString("PLACE_INDEX"),
		RouteCalculator: viper.GetString("ROUTE_CALCULATOR"),
		TrackerName:     viper.GetString("TRACKER_NAME"),
		MaxResults:      viper.GetInt32("MAX_RESULTS"),
		Language:        viper.GetString("GEOCODE_LANGUAGE"),
	}

	// ── Redis ───────────────────────────────────────────
	cfg.Redis = RedisConfig{
		Addr:     viper.GetString("REDIS_ADDR"),
		Password: viper.GetString("REDIS_PASSWORD"),
		DB:       viper.GetInt("REDIS_DB"),
		CacheTTL: viper.GetDuration("GEOCODE_CACHE_TTL"),
	}

	return cfg, nil
}
