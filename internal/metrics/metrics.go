// Package metrics holds the engine's OpenTelemetry counters.
package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "github.com/and161185/keygate"

// Metrics records engine events. A nil *Metrics is valid and records nothing.
type Metrics struct {
	redemptions metric.Int64Counter
	keysIssued  metric.Int64Counter
	throttled   metric.Int64Counter
	swept       metric.Int64Counter
}

// New creates the counters on meter.
func New(meter metric.Meter) (*Metrics, error) {
	var (
		m   Metrics
		err error
	)
	if m.redemptions, err = counter(meter, "keygate_redemptions_total", "Key redemption attempts by result"); err != nil {
		return nil, err
	}
	if m.keysIssued, err = counter(meter, "keygate_keys_issued_total", "Keys issued by admins"); err != nil {
		return nil, err
	}
	if m.throttled, err = counter(meter, "keygate_throttled_total", "Calls denied by the rate limiter"); err != nil {
		return nil, err
	}
	if m.swept, err = counter(meter, "keygate_swept_grants_total", "Expired grants removed by the sweeper"); err != nil {
		return nil, err
	}
	return &m, nil
}

// Nop returns metrics backed by a no-op meter.
func Nop() *Metrics {
	m, _ := New(noop.NewMeterProvider().Meter(meterName))
	return m
}

func counter(meter metric.Meter, name, desc string) (metric.Int64Counter, error) {
	c, err := meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		return nil, fmt.Errorf("failed to create counter %s: %w", name, err)
	}
	return c, nil
}

// Redemption counts a redeem attempt; result is "ok" or the failure class.
func (m *Metrics) Redemption(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.redemptions.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (m *Metrics) KeyIssued(ctx context.Context) {
	if m == nil {
		return
	}
	m.keysIssued.Add(ctx, 1)
}

func (m *Metrics) Throttled(ctx context.Context, op string) {
	if m == nil {
		return
	}
	m.throttled.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

func (m *Metrics) Swept(ctx context.Context, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.swept.Add(ctx, n)
}

// Prometheus wires a MeterProvider to a Prometheus exporter on its own registry.
// The returned handler serves that registry; shut the provider down on exit.
func Prometheus() (*sdkmetric.MeterProvider, http.Handler, error) {
	reg := prometheus.NewRegistry()
	exp, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exp))
	return mp, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
}

// Meter returns the engine meter from mp.
func Meter(mp metric.MeterProvider) metric.Meter {
	return mp.Meter(meterName)
}
