package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	"github.com/edgechain/edgechain/coordinator"
	"github.com/edgechain/edgechain/coordinator/api"
	"github.com/edgechain/edgechain/coordinator/middleware"
	"github.com/edgechain/edgechain/pkg/blob"
	"github.com/edgechain/edgechain/pkg/fl"
	"github.com/edgechain/edgechain/pkg/mqtt"
	"github.com/edgechain/edgechain/pkg/storage"
	"github.com/edgechain/edgechain/pkg/verify"
)

const (
	svcName     = "coordinator"
	pathEnv     = ".env"
	stopTimeout = 5 * time.Second
)

type envConfig struct {
	LogLevel          string        `env:"COORDINATOR_LOG_LEVEL"             envDefault:"info"`
	InstanceID        string        `env:"COORDINATOR_INSTANCE_ID"`
	HTTPHost          string        `env:"COORDINATOR_HTTP_HOST"             envDefault:""`
	HTTPPort          string        `env:"COORDINATOR_HTTP_PORT"             envDefault:"7071"`
	StorageBackend    string        `env:"COORDINATOR_STORAGE_BACKEND"       envDefault:"memory"`
	StorageDir        string        `env:"COORDINATOR_STORAGE_DIR"           envDefault:"./data/coordinator"`
	BlobDir           string        `env:"COORDINATOR_BLOB_DIR"              envDefault:"./data/models"`
	VerifyURL         string        `env:"COORDINATOR_VERIFY_URL"`
	VerifyTimeout     time.Duration `env:"COORDINATOR_VERIFY_TIMEOUT"        envDefault:"10s"`
	MQTTAddress       string        `env:"COORDINATOR_MQTT_ADDRESS"`
	MQTTQoS           uint8         `env:"COORDINATOR_MQTT_QOS"              envDefault:"2"`
	MQTTUsername      string        `env:"COORDINATOR_MQTT_USERNAME"`
	MQTTPassword      string        `env:"COORDINATOR_MQTT_PASSWORD"`
	MQTTTimeout       time.Duration `env:"COORDINATOR_MQTT_TIMEOUT"          envDefault:"30s"`
	Algorithm         string        `env:"COORDINATOR_AGGREGATION_ALGORITHM" envDefault:"weighted-fedavg"`
	WeightingStrategy string        `env:"COORDINATOR_WEIGHTING_STRATEGY"    envDefault:"dataset-size"`
	MinSubmissions    int           `env:"COORDINATOR_MIN_SUBMISSIONS"       envDefault:"3"`
	OutlierDetection  bool          `env:"COORDINATOR_OUTLIER_DETECTION"     envDefault:"true"`
	OutlierThreshold  float64       `env:"COORDINATOR_OUTLIER_THRESHOLD"     envDefault:"2.5"`
	OTELURL           url.URL       `env:"COORDINATOR_OTEL_URL"`
	TraceRatio        float64       `env:"COORDINATOR_TRACE_RATIO"           envDefault:"0"`
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	if _, err := os.Stat(pathEnv); err == nil {
		_ = godotenv.Load(pathEnv)
	}

	cfg := envConfig{}
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("failed to load configuration : %s", err.Error())
	}

	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		log.Fatalf("failed to parse log level: %s", err.Error())
	}
	logHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	var tp trace.TracerProvider
	switch {
	case cfg.OTELURL == (url.URL{}):
		tp = noop.NewTracerProvider()
	default:
		sdktp, err := newTracerProvider(ctx, cfg.OTELURL, cfg.TraceRatio)
		if err != nil {
			logger.Error("failed to initialize opentelemetry", slog.String("error", err.Error()))

			return
		}
		defer func() {
			if err := sdktp.Shutdown(ctx); err != nil {
				logger.Error("error shutting down tracer provider", slog.Any("error", err))
			}
		}()
		tp = sdktp
	}
	tracer := tp.Tracer(svcName)

	var store storage.Storage
	switch cfg.StorageBackend {
	case "badger":
		badgerStore, err := storage.NewBadgerStorage(cfg.StorageDir)
		if err != nil {
			logger.Error("failed to open badger storage", slog.String("error", err.Error()))

			return
		}
		if closer, ok := badgerStore.(io.Closer); ok {
			defer closer.Close()
		}
		store = badgerStore
	case "memory":
		store = storage.NewInMemoryStorage()
	default:
		logger.Error("unknown storage backend", slog.String("backend", cfg.StorageBackend))

		return
	}

	blobs, err := blob.NewFSStore(cfg.BlobDir)
	if err != nil {
		logger.Error("failed to open model blob store", slog.String("error", err.Error()))

		return
	}

	var verifier verify.Gateway
	switch cfg.VerifyURL {
	case "":
		verifier = verify.NewSignatureGateway()
	default:
		verifier = verify.NewHTTPGateway(cfg.VerifyURL, cfg.VerifyTimeout)
	}

	var pubsub mqtt.PubSub
	if cfg.MQTTAddress != "" {
		pubsub, err = mqtt.NewPubSub(cfg.MQTTAddress, cfg.MQTTQoS, svcName, cfg.MQTTUsername, cfg.MQTTPassword, cfg.MQTTTimeout, logger)
		if err != nil {
			logger.Error("failed to initialize mqtt pubsub", slog.String("error", err.Error()))

			return
		}
		defer func() {
			if err := pubsub.Disconnect(ctx); err != nil {
				logger.Error("error disconnecting mqtt pubsub", slog.Any("error", err))
			}
		}()
	}

	aggCfg := fl.AggregationConfig{
		Algorithm:         cfg.Algorithm,
		MinSubmissions:    cfg.MinSubmissions,
		WeightingStrategy: cfg.WeightingStrategy,
		OutlierDetection:  cfg.OutlierDetection,
		OutlierThreshold:  cfg.OutlierThreshold,
	}

	svc, err := coordinator.NewService(store, blobs, verifier, pubsub, aggCfg, logger)
	if err != nil {
		logger.Error("failed to initialize coordinator service", slog.String("error", err.Error()))

		return
	}
	svc = middleware.Logging(logger, svc)
	svc = middleware.Tracing(tracer, svc)
	counter, latency := makeMetrics(svcName, "api")
	svc = middleware.Metrics(counter, latency, svc)

	if err := svc.Subscribe(ctx); err != nil {
		logger.Error("failed to subscribe to submission topic", slog.String("error", err.Error()))

		return
	}

	hs := &http.Server{
		Addr:    cfg.HTTPHost + ":" + cfg.HTTPPort,
		Handler: api.MakeHandler(svc, logger, cfg.InstanceID),
	}

	g.Go(func() error {
		logger.Info(fmt.Sprintf("%s service http server listening at %s", svcName, hs.Addr))
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	g.Go(func() error {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		select {
		case s := <-sig:
			logger.Info(fmt.Sprintf("%s service shutdown by signal: %s", svcName, s))
		case <-ctx.Done():
		}

		stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
		defer stopCancel()

		return hs.Shutdown(stopCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error(fmt.Sprintf("%s service exited with error: %s", svcName, err))
	}
}

func newTracerProvider(ctx context.Context, otelURL url.URL, ratio float64) (*sdktrace.TracerProvider, error) {
	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(otelURL.String()))
	if err != nil {
		return nil, err
	}

	res := sdkresource.NewSchemaless(semconv.ServiceName(svcName))

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	), nil
}

func makeMetrics(namespace, subsystem string) (*kitprometheus.Counter, *kitprometheus.Summary) {
	counter := kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "request_count",
		Help:      "Number of requests received.",
	}, []string{"method"})
	latency := kitprometheus.NewSummaryFrom(stdprometheus.SummaryOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "request_latency_microseconds",
		Help:      "Total duration of requests in microseconds.",
	}, []string{"method"})

	return counter, latency
}
