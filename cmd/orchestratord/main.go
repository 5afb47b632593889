// Command orchestratord wires the nine components into a runnable
// one-shot analysis runner: build the dependency graph from
// core.NewConfig, register whichever provider adapters have API keys
// configured, start one analysis from flags, and poll it to
// completion. It is deliberately not a web server or a full CLI
// framework; a thin runner is enough to exercise the wiring end to
// end the way core/cmd/example/main.go exercises a bare tool.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/stockmind/orchestrator/budget"
	"github.com/stockmind/orchestrator/catalog"
	"github.com/stockmind/orchestrator/collab"
	"github.com/stockmind/orchestrator/core"
	"github.com/stockmind/orchestrator/lifecycle"
	"github.com/stockmind/orchestrator/manager"
	"github.com/stockmind/orchestrator/orchestrator"
	"github.com/stockmind/orchestrator/providers"
	"github.com/stockmind/orchestrator/providers/anthropiclike"
	"github.com/stockmind/orchestrator/providers/gateway"
	"github.com/stockmind/orchestrator/providers/mock"
	"github.com/stockmind/orchestrator/providers/openailike"
	"github.com/stockmind/orchestrator/routing"
	"github.com/stockmind/orchestrator/store"
	"github.com/stockmind/orchestrator/telemetry"
)

func main() {
	var (
		symbol   = flag.String("symbol", "", "stock symbol to analyze, e.g. AAPL")
		market   = flag.String("market", "US", "market the symbol trades on")
		agents   = flag.String("agents", "fundamental_expert,technical_analyst,risk_manager", "comma-separated analyst roles")
		mode     = flag.String("mode", "sequential", "collaboration mode: sequential, parallel, or debate")
		depth    = flag.Int("depth", 2, "research depth, 1-5")
		budgetCp = flag.Float64("budget", 0, "per-session budget cap in dollars, 0 disables the check")
	)
	flag.Parse()

	if *symbol == "" {
		fmt.Fprintln(os.Stderr, "orchestratord: -symbol is required")
		os.Exit(2)
	}

	cfg, err := core.NewConfig(
		core.WithName("stockmind-orchestrator"),
		core.WithBudgetCap(*budgetCp),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "orchestratord: config: %v\n", err)
		os.Exit(1)
	}
	logger := core.NewProductionLogger(cfg.Logging, cfg.Development, cfg.Name)

	telemetryProvider, shutdownTelemetry := setupTelemetry(cfg, logger)
	defer shutdownTelemetry()

	dataStore := buildStore(cfg, logger)
	reg := catalog.NewRegistry()
	reg.SetLogger(logger)

	router := routing.NewEngine(dataStore)
	router.SetPoolTable(routing.DefaultPoolTable())

	budgetTracker := budget.NewTracker(dataStore)
	mgr := manager.New(reg, router, budgetTracker)
	mgr.SetLogger(logger)
	mgr.SetTelemetry(telemetryProvider)
	for _, adapter := range adapterList(logger) {
		mgr.RegisterAdapter(adapter)
	}

	coordinator := collab.New(mgr, cfg.Orchestration.MaxConcurrentTasks)
	coordinator.SetLogger(logger)
	coordinator.SetTelemetry(telemetryProvider)

	lifecycleTracker := lifecycle.New(dataStore)
	lifecycleTracker.SetLogger(logger)

	orch := orchestrator.New(orchestrator.Config{
		Catalog:            reg,
		Store:              dataStore,
		Budget:             budgetTracker,
		Router:             router,
		Manager:            mgr,
		Coordinator:        coordinator,
		Lifecycle:          lifecycleTracker,
		MaxConcurrentTasks: cfg.Orchestration.MaxConcurrentTasks,
		MaxQueueDepth:      cfg.Orchestration.MaxConcurrentTasks * 4,
		Logger:             logger,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	analysisID, err := orch.StartAnalysis(ctx, orchestrator.AnalysisConfig{
		StockSymbol:       *symbol,
		Market:            *market,
		AnalysisDate:      time.Now().Format("2006-01-02"),
		SelectedAgents:    splitAgents(*agents),
		CollaborationMode: collab.Mode(*mode),
		ResearchDepth:     *depth,
		BudgetCap:         *budgetCp,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "orchestratord: start analysis: %v\n", err)
		os.Exit(1)
	}

	logger.Info("analysis started", map[string]interface{}{"analysis_id": analysisID, "symbol": *symbol})

	for {
		run, err := orch.GetResult(ctx, analysisID)
		if err == nil && isTerminal(run.Status) {
			fmt.Printf("analysis %s finished with status %s\n", analysisID, run.Status)
			if run.ResultsSummary != nil {
				fmt.Println(run.ResultsSummary.FinalText)
			}
			return
		}

		snap, _ := orch.GetProgress(ctx, analysisID)
		logger.Info("analysis progress", map[string]interface{}{
			"analysis_id": analysisID,
			"percent":     snap.ProgressPercent,
			"message":     snap.Message,
		})

		select {
		case <-ctx.Done():
			fmt.Fprintln(os.Stderr, "orchestratord: timed out waiting for analysis")
			os.Exit(1)
		case <-time.After(time.Second):
		}
	}
}

func isTerminal(status orchestrator.RunStatus) bool {
	return status == orchestrator.RunCompleted || status == orchestrator.RunFailed || status == orchestrator.RunCancelled
}

func splitAgents(csv string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(csv); i++ {
		if i == len(csv) || csv[i] == ',' {
			if i > start {
				out = append(out, csv[start:i])
			}
			start = i + 1
		}
	}
	return out
}

// setupTelemetry builds the OTel span/metric provider for C6 task
// execution and C7 round execution when cfg.Telemetry.Enabled, falling
// back to a no-op provider otherwise. The returned func flushes and
// shuts the provider down; callers should defer it.
func setupTelemetry(cfg *core.Config, logger core.Logger) (core.Telemetry, func()) {
	if !cfg.Telemetry.Enabled {
		return &core.NoOpTelemetry{}, func() {}
	}

	provider, err := telemetry.EnableTelemetry(cfg.Telemetry, cfg.Name)
	if err != nil {
		logger.Warn("telemetry disabled: failed to start OTel provider", map[string]interface{}{"error": err.Error()})
		return &core.NoOpTelemetry{}, func() {}
	}

	return provider, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownable, ok := provider.(interface{ Shutdown(context.Context) error }); ok {
			if err := shutdownable.Shutdown(ctx); err != nil {
				logger.Warn("telemetry shutdown failed", map[string]interface{}{"error": err.Error()})
			}
		}
	}
}

// buildStore assembles the durable-state layer: Redis-backed when
// REDIS_URL resolves to a live server, falling back to the local file
// store otherwise, per store.FallbackStore's dual-write/read-through
// design.
func buildStore(cfg *core.Config, logger core.Logger) store.Store {
	fileStore, err := store.NewFileStore(dataDirOrDefault(cfg.Orchestration.DataDir), logger)
	if err != nil {
		logger.Error("failed to open file store", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	redisClient, err := core.NewRedisClient(core.RedisClientOptions{
		RedisURL:  cfg.Orchestration.RedisURL,
		DB:        core.RedisDBStore,
		Namespace: "orchestrator:store",
		Logger:    logger,
	})
	if err != nil {
		logger.Warn("redis unavailable, running on the file store only", map[string]interface{}{"error": err.Error()})
		return fileStore
	}

	redisStore := store.NewRedisStore(redisClient, logger)
	return store.NewFallbackStore(redisStore, fileStore, logger)
}

func dataDirOrDefault(dir string) string {
	if dir != "" {
		return dir
	}
	return "./data"
}

// adapterList builds one adapter per provider whose API key is present
// in the environment, falling back to the mock adapter so the runner
// still produces a result with no keys configured at all. Manager.
// RegisterAdapter wires each one into the catalog as it's registered.
func adapterList(logger core.Logger) []providers.Adapter {
	var out []providers.Adapter

	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		out = append(out, openailike.New(openailike.Config{
			APIKey: key,
			Logger: logger,
		}))
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		out = append(out, anthropiclike.New(anthropiclike.Config{
			APIKey: key,
			Logger: logger,
		}))
	}

	var backends []gateway.Backend
	modelBackend := map[string]string{}
	if key := os.Getenv("DEEPSEEK_API_KEY"); key != "" {
		backends = append(backends, gateway.Backend{Name: "deepseek", APIKey: key, BaseURL: os.Getenv("DEEPSEEK_BASE_URL")})
		modelBackend["deepseek-chat"] = "deepseek"
	}
	if key := os.Getenv("QWEN_API_KEY"); key != "" {
		backends = append(backends, gateway.Backend{Name: "qwen", APIKey: key, BaseURL: os.Getenv("QWEN_BASE_URL")})
		modelBackend["qwen-max"] = "qwen"
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		backends = append(backends, gateway.Backend{Name: "gemini", APIKey: key, BaseURL: os.Getenv("GEMINI_BASE_URL")})
		modelBackend["gemini-2.5-pro"] = "gemini"
	}
	if len(backends) > 0 {
		out = append(out, gateway.New(gateway.Config{
			Backends:     backends,
			ModelBackend: modelBackend,
			Logger:       logger,
		}))
	}

	if len(out) == 0 {
		out = append(out, mock.New())
	}
	return out
}
