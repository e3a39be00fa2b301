package observability

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// InitMetrics installs a global meter provider backed by a Prometheus
// exporter and returns the scrape handler.
func InitMetrics() (http.Handler, func(context.Context) error, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	return promhttp.Handler(), provider.Shutdown, nil
}

// JobCounter reports how many jobs are waiting in the queue.
type JobCounter interface {
	CountJobs(ctx context.Context) (int, error)
}

// RegisterQueueDepth exposes the job queue length as an observable gauge.
// The store is only queried when metrics are collected.
func RegisterQueueDepth(jobs JobCounter) error {
	meter := otel.Meter("spotdown")
	_, err := meter.Int64ObservableGauge("spotdown.queue.depth",
		metric.WithDescription("Current number of jobs in the queue"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			n, err := jobs.CountJobs(ctx)
			if err != nil {
				// a failed count must not break the scrape
				return nil
			}
			obs.Observe(int64(n))
			return nil
		}),
	)
	return err
}
