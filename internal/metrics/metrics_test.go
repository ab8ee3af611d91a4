package metrics

import (
	"testing"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/stretchr/testify/assert"
)

type recordingClient struct {
	statsd.NoOpClient
	counts     map[string]int64
	timings    map[string]time.Duration
	histograms map[string][]float64
}

func (r *recordingClient) Histogram(name string, value float64, _ []string, _ float64) error {
	r.histograms[name] = append(r.histograms[name], value)
	return nil
}

func (r *recordingClient) Count(name string, value int64, _ []string, _ float64) error {
	r.counts[name] += value
	return nil
}

func (r *recordingClient) Timing(name string, value time.Duration, _ []string, _ float64) error {
	r.timings[name] = value
	return nil
}

func TestCountAndTimingReachClient(t *testing.T) {
	rec := &recordingClient{counts: map[string]int64{}, timings: map[string]time.Duration{}}
	prev := client
	client = rec
	defer func() { client = prev }()

	Incr(APIRequestTotal, []string{Tag("status", "200")})
	Incr(APIRequestTotal, nil)
	Timing(APIRequestLatency, 15*time.Millisecond, nil)

	assert.Equal(t, int64(2), rec.counts[APIRequestTotal])
	assert.Equal(t, 15*time.Millisecond, rec.timings[APIRequestLatency])
}

func TestHistogramReachesClient(t *testing.T) {
	rec := &recordingClient{histograms: map[string][]float64{}}
	prev := client
	client = rec
	defer func() { client = prev }()

	Histogram(ImageBytes, 58397, []string{Tag("format", "png")})
	Histogram(ImageBytes, 1024, nil)

	assert.Equal(t, []float64{58397, 1024}, rec.histograms[ImageBytes])
}

func TestTag(t *testing.T) {
	assert.Equal(t, "stage:classify", Tag("stage", "classify"))
}
