package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.30.0"
	"go.uber.org/zap"
)

const meterName = "github.com/fmueller/voxapi"

// Outcome values for the transcription counter.
const (
	OutcomeOK           = "ok"
	OutcomeDecodeError  = "decode_error"
	OutcomeModelError   = "model_error"
	OutcomeEngineError  = "engine_error"
	OutcomeInvalidInput = "invalid_input"
)

// ModelRejected labels requests whose model name was not accepted.
const ModelRejected = "invalid"

type Options struct {
	Enabled     bool
	ServiceName string
	Version     string
}

// Telemetry owns the meter provider and the private Prometheus registry it
// exports to.
type Telemetry struct {
	Instruments *Instruments

	provider *sdkmetric.MeterProvider
	handler  http.Handler
}

func Setup(ctx context.Context, opts Options, logger *zap.Logger) (*Telemetry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if !opts.Enabled {
		instruments, err := NewInstruments(noop.NewMeterProvider().Meter(meterName))
		if err != nil {
			return nil, err
		}
		logger.Debug("metrics disabled")
		return &Telemetry{Instruments: instruments}, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(opts.ServiceName),
			semconv.ServiceVersion(opts.Version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build telemetry resource: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)

	instruments, err := NewInstruments(provider.Meter(meterName))
	if err != nil {
		_ = provider.Shutdown(ctx)
		return nil, err
	}

	logger.Info("telemetry initialized", zap.String("exporter", "prometheus"))
	return &Telemetry{
		Instruments: instruments,
		provider:    provider,
		handler:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}, nil
}

// Handler serves the Prometheus exposition format, or nil when metrics are
// disabled.
func (t *Telemetry) Handler() http.Handler {
	return t.handler
}

func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

type Instruments struct {
	modelLoad      metric.Float64Histogram
	decode         metric.Float64Histogram
	transcriptions metric.Int64Counter
}

func NewInstruments(meter metric.Meter) (*Instruments, error) {
	modelLoad, err := meter.Float64Histogram("voxapi.model.load.duration",
		metric.WithDescription("Time spent making a model ready."),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create model load histogram: %w", err)
	}

	decode, err := meter.Float64Histogram("voxapi.decode.duration",
		metric.WithDescription("Time spent decoding uploaded audio."),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create decode histogram: %w", err)
	}

	transcriptions, err := meter.Int64Counter("voxapi.transcriptions",
		metric.WithDescription("Transcription requests by model and outcome."),
	)
	if err != nil {
		return nil, fmt.Errorf("create transcription counter: %w", err)
	}

	return &Instruments{modelLoad: modelLoad, decode: decode, transcriptions: transcriptions}, nil
}

func (i *Instruments) RecordModelLoad(ctx context.Context, model string, elapsed time.Duration) {
	if i == nil {
		return
	}
	i.modelLoad.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.String("model", model)))
}

func (i *Instruments) RecordDecode(ctx context.Context, elapsed time.Duration) {
	if i == nil {
		return
	}
	i.decode.Record(ctx, elapsed.Seconds())
}

func (i *Instruments) CountTranscription(ctx context.Context, model, outcome string) {
	if i == nil {
		return
	}
	i.transcriptions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("outcome", outcome),
	))
}
