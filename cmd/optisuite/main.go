// Package main provides the entry point for the Claude Optimization Suite.
// The binary provisions workspaces, generates content, optimizes prompts,
// estimates revenue, backs up outputs, and runs the HTTP API server that
// exposes the whole suite.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"

	"github.com/optisuite/optisuite/internal/api"
	"github.com/optisuite/optisuite/internal/buildinfo"
	"github.com/optisuite/optisuite/internal/claude"
	"github.com/optisuite/optisuite/internal/config"
	"github.com/optisuite/optisuite/internal/content"
	"github.com/optisuite/optisuite/internal/logging"
	"github.com/optisuite/optisuite/internal/results"
	"github.com/optisuite/optisuite/internal/revenue"
	"github.com/optisuite/optisuite/internal/setup"
	"github.com/optisuite/optisuite/internal/usage"
	"github.com/optisuite/optisuite/internal/util"
	"github.com/optisuite/optisuite/internal/workflow"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// init initializes the shared logger setup.
func init() {
	logging.SetupBaseLogger()
	buildinfo.Version = Version
	buildinfo.Commit = Commit
	buildinfo.BuildDate = BuildDate
}

// main parses command-line flags, loads configuration, and dispatches to the
// selected mode (setup, check, generate, optimize, estimate, backup, or the
// default server mode).
func main() {
	fmt.Printf("Claude Optimization Suite Version: %s, Commit: %s, BuiltAt: %s\n", buildinfo.Version, buildinfo.Commit, buildinfo.BuildDate)

	var runSetup bool
	var runCheck bool
	var runBackup bool
	var generateType string
	var generateTopic string
	var optimizePrompt string
	var optimizeGoal string
	var estimateService string
	var estimateQuantity int
	var estimatePrice float64
	var estimateTokensText string
	var configPath string

	flag.BoolVar(&runSetup, "setup", false, "Provision the workspace (directories, .env, script permissions)")
	flag.BoolVar(&runCheck, "check", false, "Send a test message to verify the Claude API connection")
	flag.BoolVar(&runBackup, "backup", false, "Upload outputs and ledger data to object storage")
	flag.StringVar(&generateType, "generate", "", "Generate content of the given type (blog_post, code, analysis, marketing)")
	flag.StringVar(&generateTopic, "topic", "", "Topic for content generation")
	flag.StringVar(&optimizePrompt, "optimize-prompt", "", "Optimize the given prompt")
	flag.StringVar(&optimizeGoal, "goal", "clarity", "Optimization goal for -optimize-prompt")
	flag.StringVar(&estimateService, "estimate", "", "Estimate revenue for the given service type")
	flag.IntVar(&estimateQuantity, "quantity", 1, "Quantity for -estimate")
	flag.Float64Var(&estimatePrice, "price", 0, "Custom unit price for -estimate")
	flag.StringVar(&estimateTokensText, "estimate-tokens", "", "Estimate the token count and cost of the given prompt without sending it")
	flag.StringVar(&configPath, "config", "", "Configure File Path")
	flag.Parse()

	wd, err := os.Getwd()
	if err != nil {
		log.Errorf("failed to get working directory: %v", err)
		return
	}

	// Load environment variables from .env if present.
	if errLoad := godotenv.Load(filepath.Join(wd, ".env")); errLoad != nil {
		if !errors.Is(errLoad, os.ErrNotExist) {
			log.WithError(errLoad).Warn("failed to load .env file")
		}
	}

	configFilePath := configPath
	if configFilePath == "" {
		configFilePath = filepath.Join(wd, "config.yaml")
	}
	cfg, err := config.LoadConfigOptional(configFilePath, true)
	if err != nil {
		log.Errorf("failed to load config: %v", err)
		return
	}

	if err = logging.ConfigureFileOutput(cfg.LoggingToFile, filepath.Join(cfg.WorkspaceDir, "logs")); err != nil {
		log.Errorf("failed to configure log output: %v", err)
		return
	}
	util.SetLogLevel(cfg)

	switch {
	case runSetup:
		doSetup(cfg)
	case runBackup:
		doBackup(cfg)
	case estimateService != "":
		doEstimate(cfg, estimateService, estimateQuantity, estimatePrice)
	case estimateTokensText != "":
		doEstimateTokens(cfg, estimateTokensText)
	case runCheck:
		withClient(cfg, func(client *claude.Client, stats *usage.Stats) {
			doCheck(client, stats)
		})
	case generateType != "":
		withClient(cfg, func(client *claude.Client, stats *usage.Stats) {
			doGenerate(cfg, client, stats, generateType, generateTopic)
		})
	case optimizePrompt != "":
		withClient(cfg, func(client *claude.Client, stats *usage.Stats) {
			doOptimize(client, optimizePrompt, optimizeGoal)
		})
	default:
		startService(cfg, configFilePath)
	}
}

// withClient builds the Claude client plus usage tracking and hands control
// to fn, stopping the usage dispatcher afterwards.
func withClient(cfg *config.Config, fn func(*claude.Client, *usage.Stats)) {
	stats := usage.NewStats(cfg.UsageStatisticsEnabled)
	manager := usage.NewManager()
	manager.Register(stats)
	manager.Start(context.Background())
	defer manager.Stop()

	client, err := claude.NewClient(cfg, manager)
	if err != nil {
		log.Error(err)
		log.Info("Please set your API key: export CLAUDE_API_KEY='your-key-here'")
		os.Exit(1)
	}
	fn(client, stats)
}

// doSetup provisions the workspace rooted at the configured directory.
func doSetup(cfg *config.Config) {
	provisioner := &setup.Provisioner{Dir: cfg.WorkspaceDir, Scripts: cfg.Scripts}
	if err := provisioner.Run(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
	log.Infof("workspace provisioned at %s", cfg.WorkspaceDir)
}

// doBackup uploads the outputs and data directories to object storage.
func doBackup(cfg *config.Config) {
	backupCfg, ok := results.BackupConfigFromEnv()
	if !ok {
		log.Info("backup skipped: BACKUP_ENDPOINT is not configured")
		return
	}
	backup, err := results.NewBackup(backupCfg)
	if err != nil {
		log.Error(err)
		os.Exit(1)
	}
	ctx := context.Background()
	if err = backup.EnsureBucket(ctx); err != nil {
		log.Error(err)
		os.Exit(1)
	}
	total := 0
	for _, dir := range []string{"outputs", "data"} {
		path := filepath.Join(cfg.WorkspaceDir, dir)
		if _, errStat := os.Stat(path); errStat != nil {
			continue
		}
		count, errUpload := backup.UploadDir(ctx, path)
		total += count
		if errUpload != nil {
			log.Error(errUpload)
			os.Exit(1)
		}
	}
	log.Infof("backup finished, %d files uploaded", total)
}

// doCheck sends a test message and prints the usage report.
func doCheck(client *claude.Client, stats *usage.Stats) {
	resp, err := client.Messages(context.Background(), claude.MessageRequest{
		Prompt: "Hello! Please respond with 'OK' if you're working.",
	})
	if err != nil {
		log.Error(err)
		os.Exit(1)
	}
	fmt.Println("Connection successful!")
	fmt.Printf("Response: %s\n", firstRunes(resp.Text, 100))

	report := stats.Snapshot()
	fmt.Printf("Requests: %d, tokens: %d, estimated cost: $%.4f\n",
		report.TotalRequests, report.TotalTokens, report.EstimatedCost)
}

// doGenerate produces one piece of content and saves it under outputs/.
func doGenerate(cfg *config.Config, client *claude.Client, stats *usage.Stats, contentType, topic string) {
	if strings.TrimSpace(topic) == "" {
		log.Error("generate: -topic is required")
		os.Exit(1)
	}
	generator := content.NewGenerator(client)
	text, err := generator.Generate(context.Background(), contentType, topic, nil)
	if err != nil {
		log.Error(err)
		os.Exit(1)
	}

	writer, err := results.NewWriter(filepath.Join(cfg.WorkspaceDir, "outputs"))
	if err != nil {
		log.Error(err)
		os.Exit(1)
	}
	path, err := writer.Save(results.Document{
		Model:       client.Model(),
		Results:     map[string]string{"content_type": contentType, "topic": topic, "content": text},
		Performance: stats.Snapshot(),
	}, "")
	if err != nil {
		log.Error(err)
		os.Exit(1)
	}
	fmt.Println(text)
	log.Infof("content saved to %s", path)
}

// doOptimize rewrites a prompt and prints the result.
func doOptimize(client *claude.Client, prompt, goal string) {
	generator := content.NewGenerator(client)
	optimized, err := generator.OptimizePrompt(context.Background(), prompt, goal)
	if err != nil {
		log.Error(err)
		os.Exit(1)
	}
	fmt.Println(optimized)
}

// doEstimate prints a revenue projection for a service type.
func doEstimate(cfg *config.Config, service string, quantity int, price float64) {
	pricing := revenue.NewPricing(cfg.Pricing, cfg.CostPerRequest)
	estimate, err := pricing.Estimate(service, quantity, price)
	if err != nil {
		log.Error(err)
		os.Exit(1)
	}
	fmt.Printf("Service: %s\nQuantity: %d\nPrice per unit: $%.2f\nTotal revenue: $%.2f\nEstimated cost: $%.2f\nEstimated profit: $%.2f\nProfit margin: %.2f%%\n",
		estimate.ServiceType, estimate.Quantity, estimate.PricePerUnit,
		estimate.TotalRevenue, estimate.EstimatedCost, estimate.Profit, estimate.ProfitMargin)
}

// doEstimateTokens prints the estimated token count and upstream cost of a
// prompt without sending it. Needs no API key.
func doEstimateTokens(cfg *config.Config, text string) {
	tokens, err := claude.EstimateTokens(text)
	if err != nil {
		log.Error(err)
		os.Exit(1)
	}
	fmt.Printf("Estimated tokens: %d\nEstimated cost: $%.6f\n", tokens, claude.EstimateCost(tokens, cfg.CostPerToken))
}

// startService wires every component and runs the HTTP API server until a
// shutdown signal arrives. The configuration file is watched for changes.
func startService(cfg *config.Config, configFilePath string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats := usage.NewStats(cfg.UsageStatisticsEnabled)
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	collector := usage.NewCollector(registry)

	manager := usage.NewManager()
	manager.Register(stats)
	manager.Register(collector)
	manager.Start(ctx)
	defer manager.Stop()

	client, err := claude.NewClient(cfg, manager)
	if err != nil {
		log.Error(err)
		log.Info("Please set your API key: export CLAUDE_API_KEY='your-key-here'")
		return
	}

	generator := content.NewGenerator(client)
	engine := workflow.NewEngine(client, cfg.Batch.MaxWorkers)
	if cfg.WorkflowsFile != "" {
		if err = engine.LoadFile(cfg.WorkflowsFile); err != nil {
			log.Errorf("failed to load workflows: %v", err)
			return
		}
	}

	pricing := revenue.NewPricing(cfg.Pricing, cfg.CostPerRequest)
	ledger, err := openLedger(ctx, cfg)
	if err != nil {
		log.Errorf("failed to open transaction ledger: %v", err)
		return
	}
	defer func() {
		_ = ledger.Close()
	}()
	packager := revenue.NewPackager(pricing, generator)

	server := api.NewServer(cfg, api.Deps{
		Messenger: client,
		Generator: generator,
		Engine:    engine,
		Pricing:   pricing,
		Ledger:    ledger,
		Packager:  packager,
		Stats:     stats,
		Registry:  registry,
	})

	watcher, err := config.NewWatcher(configFilePath, func(updated *config.Config) {
		util.SetLogLevel(updated)
		server.ApplyConfig(updated)
	})
	if err != nil {
		log.WithError(err).Warn("config watcher unavailable, hot reload disabled")
	} else {
		if err = watcher.Start(ctx); err != nil {
			log.WithError(err).Warn("failed to start config watcher")
		}
		defer func() {
			_ = watcher.Stop()
		}()
	}

	if err = server.Run(ctx); err != nil {
		log.Errorf("API server stopped: %v", err)
	}
}

// openLedger selects the ledger backend. The LEDGER_DSN environment variable
// forces Postgres; otherwise the configured backend decides.
func openLedger(ctx context.Context, cfg *config.Config) (revenue.Ledger, error) {
	dsn := strings.TrimSpace(os.Getenv("LEDGER_DSN"))
	if dsn == "" && strings.EqualFold(cfg.Ledger.Backend, "postgres") {
		dsn = strings.TrimSpace(cfg.Ledger.DSN)
	}
	if dsn != "" {
		ledger, err := revenue.NewPostgresLedger(ctx, dsn, cfg.Ledger.Schema)
		if err != nil {
			return nil, err
		}
		log.Info("postgres-backed transaction ledger enabled")
		return ledger, nil
	}
	return revenue.NewFileLedger(filepath.Join(cfg.WorkspaceDir, "data"))
}

// firstRunes truncates a string to at most n runes.
func firstRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
