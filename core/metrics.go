package core

import "context"

const (
	MetricUpdatesFetched   = "botpoll.updates.fetched"
	MetricUpdatesProcessed = "botpoll.updates.processed"
	MetricUpdatesFailed    = "botpoll.updates.failed"
	MetricFetchErrors      = "botpoll.fetch.errors"
	MetricEmptyPolls       = "botpoll.fetch.empty"
	MetricBackOffWait      = "botpoll.backoff.wait_ms"
	MetricCallRetries      = "botpoll.call.retries"
)

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

func CloneTags(tags map[string]string) map[string]string {
	if len(tags) == 0 {
		return map[string]string{}
	}
	copied := make(map[string]string, len(tags))
	for key, value := range tags {
		copied[key] = value
	}
	return copied
}

var _ MetricsRecorder = NopMetricsRecorder{}
