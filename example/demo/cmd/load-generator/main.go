package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/pagedstore/docstore-go/docstore"
	"github.com/pagedstore/docstore-go/docstore/oteladapters"
	"github.com/pagedstore/docstore-go/docstore/postgresengine"
	"github.com/pagedstore/docstore-go/example/demo/config"
)

const (
	defaultRate            = 30
	defaultInitialDocs     = 1000
	defaultScenarioWeights = "70,25,5" // reads, writes, deletes
)

type Config struct {
	Rate                 int
	ObservabilityEnabled bool
	InitialDocs          int
	ScenarioWeights      []int
}

func main() {
	cfg := parseFlags()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	pool := config.PostgresPGXPool(ctx, config.PostgresDemoDSN())
	defer pool.Close()

	// Initialize observability (if enabled)
	var engineOptions []postgresengine.Option
	if cfg.ObservabilityEnabled {
		obsConfig := cfg.NewObservabilityConfig()
		if obsConfig.ContextualLogger != nil {
			engineOptions = append(engineOptions, postgresengine.WithContextualLogger(obsConfig.ContextualLogger))
		}
		if obsConfig.MetricsCollector != nil {
			engineOptions = append(engineOptions, postgresengine.WithMetrics(obsConfig.MetricsCollector))
		}
		if obsConfig.TracingCollector != nil {
			engineOptions = append(engineOptions, postgresengine.WithTracing(obsConfig.TracingCollector))
		}
		log.Printf("Observability enabled: metrics=%v, tracing=%v, logging=%v",
			obsConfig.MetricsCollector != nil,
			obsConfig.TracingCollector != nil,
			obsConfig.ContextualLogger != nil)
	}

	engine, err := postgresengine.NewEngineFromPGXPool(pool, engineOptions...)
	if err != nil {
		log.Fatalf("Failed to create storage engine: %v", err)
	}

	if _, ddlErr := pool.Exec(ctx, postgresengine.Schema("documents")); ddlErr != nil {
		log.Fatalf("Failed to create documents table: %v", ddlErr)
	}

	client, err := docstore.NewClient(engine)
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}

	loadGen := NewLoadGenerator(client, cfg)

	if seedErr := loadGen.Seed(ctx); seedErr != nil {
		log.Fatalf("Failed to seed initial documents: %v", seedErr)
	}

	// Start load generation in a goroutine
	errChan := make(chan error, 1)
	go func() {
		if runErr := loadGen.Start(ctx); runErr != nil {
			errChan <- fmt.Errorf("load generator failed: %w", runErr)
		}
	}()

	log.Printf("Docstore Load Generator started")
	log.Printf("Configuration: rate=%d req/s, initial_docs=%d, scenario_weights=%v",
		cfg.Rate, cfg.InitialDocs, cfg.ScenarioWeights)
	log.Printf("Press Ctrl+C to stop...")

	// Wait for shutdown signal or error
	select {
	case sig := <-sigChan:
		log.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()
	case runErr := <-errChan:
		log.Printf("Error occurred: %v", runErr)
		cancel()
	}

	// Give some time for graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if stopErr := loadGen.Stop(shutdownCtx); stopErr != nil {
		log.Printf("Error during shutdown: %v", stopErr)
	}

	log.Printf("Load generator stopped")
}

func parseFlags() Config {
	var (
		rate            = flag.Int("rate", defaultRate, "Requests per second")
		observability   = flag.Bool("observability-enabled", false, "Enable OpenTelemetry observability")
		initialDocs     = flag.Int("initial-docs", defaultInitialDocs, "Number of documents to store initially")
		scenarioWeights = flag.String("scenario-weights", defaultScenarioWeights, "Comma-separated weights for read,write,delete scenarios")
	)

	flag.Parse()

	weights, err := parseScenarioWeights(*scenarioWeights)
	if err != nil {
		log.Fatalf("Invalid scenario weights '%s': %v", *scenarioWeights, err)
	}

	return Config{
		Rate:                 *rate,
		ObservabilityEnabled: *observability,
		InitialDocs:          *initialDocs,
		ScenarioWeights:      weights,
	}
}

func parseScenarioWeights(weightsStr string) ([]int, error) {
	parts := strings.Split(weightsStr, ",")
	if len(parts) != 3 {
		return nil, fmt.Errorf("expected 3 weights, got %d", len(parts))
	}

	weights := make([]int, 3)
	total := 0
	for i, part := range parts {
		weight, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid weight '%s': %w", part, err)
		}
		if weight < 0 || weight > 100 {
			return nil, fmt.Errorf("weight %d out of range [0, 100]", weight)
		}
		weights[i] = weight
		total += weight
	}

	if total != 100 {
		return nil, fmt.Errorf("weights must sum to 100, got %d", total)
	}

	return weights, nil
}

// ObservabilityConfig holds the observability adapters for the storage engine.
type ObservabilityConfig struct {
	ContextualLogger docstore.ContextualLogger
	MetricsCollector docstore.MetricsCollector
	TracingCollector docstore.TracingCollector
}

func (c Config) NewObservabilityConfig() ObservabilityConfig {
	if !c.ObservabilityEnabled {
		return ObservabilityConfig{}
	}

	// Providers are set globally in OpenTelemetry, no need to store a reference
	_, err := config.NewObservabilityConfig()
	if err != nil {
		log.Printf("Failed to create observability providers: %v", err)
		return ObservabilityConfig{}
	}

	tracer := otel.Tracer("docstore-load-generator")
	meter := otel.Meter("docstore-load-generator")

	return ObservabilityConfig{
		ContextualLogger: oteladapters.NewSlogBridgeLogger("docstore-load-generator"),
		MetricsCollector: oteladapters.NewMetricsCollector(meter),
		TracingCollector: oteladapters.NewTracingCollector(tracer),
	}
}
