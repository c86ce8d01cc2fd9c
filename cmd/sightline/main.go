// Sightline daemon - the cognitive core of the security monitoring agent.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sightline/sightline/internal/actions"
	"github.com/sightline/sightline/internal/agent"
	"github.com/sightline/sightline/internal/anomaly"
	"github.com/sightline/sightline/internal/api"
	"github.com/sightline/sightline/internal/config"
	"github.com/sightline/sightline/internal/goals"
	"github.com/sightline/sightline/internal/knowledge"
	"github.com/sightline/sightline/internal/llm"
	"github.com/sightline/sightline/internal/logging"
	"github.com/sightline/sightline/internal/scheduler"
	"github.com/sightline/sightline/internal/storage"
	"github.com/sightline/sightline/internal/strategy"
)

var (
	configPath string
	dataDir    string
	port       int

	version = "0.1.0"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "sightline",
		Short: "Sightline - cognitive security monitoring agent",
		Long: `Sightline is the reasoning core of a camera security system.

It consumes frame analysis results, maintains a knowledge base and
goal set, tracks subjects across cameras, raises incidents, and
plans responses. An Anthropic API key enables model-assisted
reasoning; without one the agent falls back to local heuristics.`,
	}

	home, _ := os.UserHomeDir()
	defaultDataDir := filepath.Join(home, ".sightline")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", defaultDataDir, "data directory")
	rootCmd.PersistentFlags().IntVar(&port, "port", 0, "HTTP server port (overrides config)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = filepath.Join(dataDir, "config.json")
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if port > 0 {
		cfg.Server.Port = port
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Sightline daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runDaemon(cfg)
		},
	}
}

func runDaemon(cfg *config.Config) error {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	// Database
	db, err := storage.Open(storage.Config{Path: filepath.Join(cfg.DataDir, "sightline.db")})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	modelStore := storage.NewModelStore(db)
	auditStore := storage.NewAuditStore(db)

	// Completion service
	completion := llm.NewService(llm.Config{
		APIKey:  cfg.Completion.APIKey,
		BaseURL: cfg.Completion.BaseURL,
		Model:   cfg.Completion.Model,
		Timeout: cfg.Completion.Timeout.Std(),
	}, cfg.Completion.Enabled)
	if completion.Enabled() {
		logging.Info("completion service configured (%s)", cfg.Completion.Model)
	} else {
		logging.Warn("completion service unavailable, using heuristic reasoning")
	}

	// Subsystems
	hub := api.NewEventHub()

	sched := scheduler.New(scheduler.Config{
		CleanupInterval: cfg.Engine.CleanupInterval.Std(),
	})
	store := knowledge.NewStore()
	tracker := goals.NewTracker()
	executor := actions.NewExecutor(actions.DefaultConfig())

	tactical := strategy.New(strategy.Config{
		UnknownVisitorThreshold: cfg.Engine.UnknownVisitorThreshold.Std(),
		SubjectIdleTimeout:      cfg.Engine.SubjectIdleTimeout.Std(),
		IncidentStaleTimeout:    cfg.Engine.IncidentStaleTimeout.Std(),
		PlanRetention:           cfg.Engine.PlanRetention.Std(),
		FrameWidth:              cfg.Engine.DefaultFrameWidth,
		FrameHeight:             cfg.Engine.DefaultFrameHeight,
	})
	tactical.SetAuditStore(auditStore)
	tactical.SetCompletion(completion)
	tactical.SetEventPublisher(hub)

	detector := anomaly.New(anomaly.Config{
		DeviceID:     "default",
		Threshold:    cfg.Anomaly.Threshold,
		TrainingSize: cfg.Anomaly.TrainingSize,
		Learning:     cfg.Anomaly.EnableLearning,
	})
	if err := detector.Load(modelStore); err != nil {
		logging.Warn("anomaly model load failed, starting untrained: %v", err)
	} else if n := detector.TrainedBuckets(); n > 0 {
		logging.Info("loaded %d trained anomaly buckets", n)
	}

	actions.RegisterDefaults(executor, actions.Deps{
		Strategy:   tactical,
		Knowledge:  store,
		Detector:   detector,
		Completion: completion,
		Models:     modelStore,
		Events:     hub,
	})

	engine := agent.New(agent.Config{
		ReflectionInterval: cfg.Engine.ReflectionInterval.Std(),
		CleanupInterval:    cfg.Engine.CleanupInterval.Std(),
		KnowledgeRetention: cfg.Engine.KnowledgeRetention.Std(),
		GoalRetention:      cfg.Engine.GoalRetention.Std(),
	}, agent.Deps{
		Scheduler:  sched,
		Knowledge:  store,
		Goals:      tracker,
		Executor:   executor,
		Strategy:   tactical,
		Detector:   detector,
		Completion: completion,
		Models:     modelStore,
	})
	if err := engine.Start(); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	server := api.New(api.Config{
		Port:      cfg.Server.Port,
		Engine:    engine,
		Strategy:  tactical,
		Goals:     tracker,
		Knowledge: store,
		Executor:  executor,
		AppConfig: cfg,
		Hub:       hub,
	})

	// Shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		logging.Info("shutting down")
		engine.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Stop(ctx); err != nil {
			logging.Warn("server shutdown: %v", err)
		}
	}()

	logging.Info("sightline %s listening on port %d", version, cfg.Server.Port)
	err = server.Start()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// statusCmd queries a running daemon over HTTP.
func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the status of a running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			url := fmt.Sprintf("http://%s:%d/api/status", cfg.Server.Host, cfg.Server.Port)
			client := &http.Client{Timeout: 5 * time.Second}
			resp, err := client.Get(url)
			if err != nil {
				return fmt.Errorf("daemon not reachable at %s: %w", url, err)
			}
			defer resp.Body.Close()

			var status map[string]any
			if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
				return fmt.Errorf("decode status: %w", err)
			}

			out, err := json.MarshalIndent(status, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("sightline %s\n", version)
		},
	}
}
