package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ProviderConfig configures the meter provider.
type ProviderConfig struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	subscriptionChanges metric.Int64Counter
	checkoutSessions    metric.Int64Counter
	webhookEvents       metric.Int64Counter
	entitlementChecks   metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg ProviderConfig, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg ProviderConfig, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "resumeforge"
	}
	meter := provider.Meter(name)

	subscriptionChanges, err := meter.Int64Counter("resumeforge_subscription_changes_total")
	if err != nil {
		return nil, err
	}
	checkoutSessions, err := meter.Int64Counter("resumeforge_checkout_sessions_total")
	if err != nil {
		return nil, err
	}
	webhookEvents, err := meter.Int64Counter("resumeforge_webhook_events_total")
	if err != nil {
		return nil, err
	}
	entitlementChecks, err := meter.Int64Counter("resumeforge_entitlement_checks_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		subscriptionChanges: subscriptionChanges,
		checkoutSessions:    checkoutSessions,
		webhookEvents:       webhookEvents,
		entitlementChecks:   entitlementChecks,
	}, nil
}

// RecordSubscriptionChange increments plan change counts.
func (m *Metrics) RecordSubscriptionChange(ctx context.Context, changeType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("change_type", strings.TrimSpace(changeType)))
	m.subscriptionChanges.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordCheckoutSession increments opened checkout session counts.
func (m *Metrics) RecordCheckoutSession(ctx context.Context, purpose, region string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("purpose", strings.TrimSpace(purpose)),
		attribute.String("region", strings.TrimSpace(region)),
	)
	m.checkoutSessions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordWebhookEvent increments webhook event counts.
func (m *Metrics) RecordWebhookEvent(ctx context.Context, provider, eventType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("provider", strings.TrimSpace(provider)),
		attribute.String("event_type", strings.TrimSpace(eventType)),
	)
	m.webhookEvents.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordEntitlementCheck increments feature entitlement check counts.
func (m *Metrics) RecordEntitlementCheck(ctx context.Context, featureCode string, allowed bool) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("feature_code", strings.TrimSpace(featureCode)),
		attribute.Bool("allowed", allowed),
	)
	m.entitlementChecks.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"change_type":  {},
	"purpose":      {},
	"region":       {},
	"provider":     {},
	"event_type":   {},
	"feature_code": {},
	"allowed":      {},
	"status_code":  {},
	"endpoint":     {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
