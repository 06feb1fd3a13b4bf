// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package server wires the concierge service and runs it until a
// shutdown signal. Both the container entrypoint and the CLI serve
// command go through Run.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/AleutianSupport/pkg/logging"
	"github.com/AleutianAI/AleutianSupport/services/concierge/backends"
	"github.com/AleutianAI/AleutianSupport/services/concierge/catalog"
	"github.com/AleutianAI/AleutianSupport/services/concierge/config"
	"github.com/AleutianAI/AleutianSupport/services/concierge/orchestrator"
	"github.com/AleutianAI/AleutianSupport/services/concierge/planner"
	"github.com/AleutianAI/AleutianSupport/services/concierge/routes"
	"github.com/AleutianAI/AleutianSupport/services/concierge/synthesis"
	"github.com/AleutianAI/AleutianSupport/services/concierge/telemetry"
	"github.com/AleutianAI/AleutianSupport/services/llm"

	// --- OpenTelemetry imports ---
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
)

// shutdownGrace bounds how long in-flight requests may finish after a
// termination signal.
const shutdownGrace = 10 * time.Second

func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "aleutian-otel-collector:4317"
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("concierge-service")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

// resolveConfigPath prefers the explicit path, then CONCIERGE_CONFIG,
// then a config.yaml next to the binary if one exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv("CONCIERGE_CONFIG"); env != "" {
		return env
	}
	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml"
	}
	slog.Info("no config file found, using defaults plus environment")
	return ""
}

// Run boots the concierge service and blocks until the listener fails
// or a SIGINT/SIGTERM arrives, then drains in-flight requests.
func Run(configPath string) error {
	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(os.Getenv("LOG_LEVEL")),
		Service: "concierge",
		JSON:    true,
		LogDir:  os.Getenv("CONCIERGE_LOG_DIR"),
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	cleanup, err := initTracer()
	if err != nil {
		return fmt.Errorf("failed to setup the OTLP tracer: %w", err)
	}
	defer cleanup(context.Background())

	cfg, err := config.Load(resolveConfigPath(configPath))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	weaviateClient, err := weaviate.NewClient(weaviate.Config{
		Host:   cfg.Weaviate.Host,
		Scheme: cfg.Weaviate.Scheme,
	})
	if err != nil {
		return fmt.Errorf("failed to create Weaviate client: %w", err)
	}
	corpus := backends.NewCorpus(weaviateClient, cfg.Weaviate.Class)

	llmClient, err := llm.NewOpenAIClient(llm.OpenAIOptions{
		Model:             cfg.LLM.Model,
		BaseURL:           cfg.LLM.BaseURL,
		RequestsPerSecond: cfg.LLM.RequestsPerSecond,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize LLM client: %w", err)
	}

	store, err := telemetry.OpenBadgerStore(cfg.Telemetry.BadgerPath)
	if err != nil {
		return fmt.Errorf("failed to open telemetry store: %w", err)
	}
	defer store.Close()

	var sink telemetry.Sink
	if cfg.Telemetry.Influx.Enabled() {
		influx := telemetry.NewInfluxSink(
			cfg.Telemetry.Influx.URL,
			cfg.Telemetry.Influx.Token,
			cfg.Telemetry.Influx.Org,
			cfg.Telemetry.Influx.Bucket)
		defer influx.Close()
		sink = influx
		slog.Info("InfluxDB telemetry sink enabled", "url", cfg.Telemetry.Influx.URL)
	}
	accountant := telemetry.NewAccountant(cfg.Rates, store, sink)

	engine := orchestrator.NewEngine(
		catalog.NewTenantCatalogs(corpus),
		planner.NewLLMPlanner(llmClient),
		synthesis.New(llmClient),
		accountant,
		cfg.Engine)

	router := gin.Default()
	router.Use(otelgin.Middleware("concierge-service"))
	routes.SetupRoutes(router, engine, cfg)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting the concierge server", "port", cfg.Server.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server stopped: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining requests")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("forced shutdown: %w", err)
		}
		return nil
	}
}
