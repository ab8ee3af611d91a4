package metrics

import (
	"time"

	"github.com/Brownie44l1/food-api/internal/config"
	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/rs/zerolog/log"
)

const (
	APIRequestLatency = "food_api.http.request.latency"
	APIRequestTotal   = "food_api.http.request.total"
	RateLimited       = "food_api.http.rate_limited"

	PipelineStageLatency = "food_api.pipeline.stage.latency"
	PipelineOutcome      = "food_api.pipeline.outcome"
	CatalogFallback      = "food_api.nutrition.default_fallback"
	InferenceLatency     = "food_api.model.inference.latency"
	ImageBytes           = "food_api.image.bytes"
)

var (
	// safe for concurrent use; a no-op until Init succeeds
	client       statsd.ClientInterface = &statsd.NoOpClient{}
	samplingRate                        = 1.0
)

func Init(cfg *config.Config) {
	c, err := statsd.New(cfg.TelegrafAddress(), statsd.WithTags([]string{
		"env:" + cfg.AppEnv,
		"service:" + cfg.AppName,
	}))
	if err != nil {
		// telegraf is optional in local setups
		log.Error().Err(err).Str("address", cfg.TelegrafAddress()).Msg("statsd client initialization failed, metrics disabled")
		return
	}
	client = c
	samplingRate = cfg.MetricsSamplingRate
	log.Info().Str("address", cfg.TelegrafAddress()).Float64("samplingRate", samplingRate).Msg("metrics client initialized")
}

func Close() {
	if err := client.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close statsd client")
	}
}

func Timing(name string, value time.Duration, tags []string) {
	if err := client.Timing(name, value, tags, samplingRate); err != nil {
		log.Warn().Err(err).Str("metric", name).Msg("statsd timing failed")
	}
}

func Count(name string, value int64, tags []string) {
	if err := client.Count(name, value, tags, samplingRate); err != nil {
		log.Warn().Err(err).Str("metric", name).Msg("statsd count failed")
	}
}

func Incr(name string, tags []string) {
	Count(name, 1, tags)
}

func Histogram(name string, value float64, tags []string) {
	if err := client.Histogram(name, value, tags, samplingRate); err != nil {
		log.Warn().Err(err).Str("metric", name).Msg("statsd histogram failed")
	}
}

// Tag formats a statsd key:value tag.
func Tag(key, value string) string {
	return key + ":" + value
}
