// edgewall/cmd/edgewalld/main.go

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"edgewall/pkg/compiler"
	"edgewall/pkg/edgeauth"
	"edgewall/pkg/lists"
	"edgewall/pkg/logging"
	"edgewall/pkg/ratelimit"
	"edgewall/pkg/runtime"
	"edgewall/pkg/store"
)

// Config represents the application configuration
type Config struct {
	LogLevel       string
	LogDestination string

	RulesSource  string // redis or file
	RulesFile    string
	RedisAddress string
	RedisPass    string
	RedisDB      int
	RulesKey     string
	RulesChannel string

	FailClosed bool

	EdgeAuthSecret    string
	EdgeAuthPOP       string
	EdgeAuthTolerance int

	DashboardEnabled  bool
	DashboardPort     int
	DashboardInterval int
}

// Dependencies holds the wired collaborators of the daemon.
type Dependencies struct {
	Source    store.Source
	Engine    *runtime.Engine
	Metrics   *runtime.Metrics
	Registry  *prometheus.Registry
	Dashboard *runtime.Dashboard
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx, os.Args); err != nil {
		log.Fatal().Err(err).Msg("Application failed")
	}
}

func run(ctx context.Context, args []string) error {
	config, err := parseConfig(args)
	if err != nil {
		return fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := logging.Configure(config.LogLevel, config.LogDestination); err != nil {
		return fmt.Errorf("failed to configure logger: %w", err)
	}

	deps, err := setupDependencies(config)
	if err != nil {
		return fmt.Errorf("failed to setup dependencies: %w", err)
	}
	defer deps.Source.Close()

	return runMainLoop(ctx, deps, config)
}

func parseConfig(args []string) (*Config, error) {
	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	configFile := fs.String("config", "", "Path to configuration file")
	if err := fs.Parse(args[1:]); err != nil {
		return nil, err
	}

	viper.SetConfigType("json")
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.output", "console")
	viper.SetDefault("rules.source", "redis")
	viper.SetDefault("rules.file", "rules.packed")
	viper.SetDefault("rules.key", "rules_packed")
	viper.SetDefault("rules.channel", "edgewall_updates")
	viper.SetDefault("redis.address", "localhost:6379")
	viper.SetDefault("redis.database", 0)
	viper.SetDefault("engine.fail_closed", false)
	viper.SetDefault("edge_auth.pop", "dev")
	viper.SetDefault("edge_auth.tolerance_seconds", 5)
	viper.SetDefault("dashboard.enabled", true)
	viper.SetDefault("dashboard.port", 8090)
	viper.SetDefault("dashboard.update_interval", 5)

	if *configFile == "" {
		viper.SetConfigName("edgewall_config")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.edgewall")
		viper.AddConfigPath("/etc/edgewall")
	} else {
		viper.SetConfigFile(*configFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || *configFile != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		log.Info().Msg("No configuration file found, using defaults")
	}

	return &Config{
		LogLevel:          viper.GetString("logging.level"),
		LogDestination:    viper.GetString("logging.output"),
		RulesSource:       viper.GetString("rules.source"),
		RulesFile:         viper.GetString("rules.file"),
		RedisAddress:      viper.GetString("redis.address"),
		RedisPass:         viper.GetString("redis.password"),
		RedisDB:           viper.GetInt("redis.database"),
		RulesKey:          viper.GetString("rules.key"),
		RulesChannel:      viper.GetString("rules.channel"),
		FailClosed:        viper.GetBool("engine.fail_closed"),
		EdgeAuthSecret:    viper.GetString("edge_auth.secret"),
		EdgeAuthPOP:       viper.GetString("edge_auth.pop"),
		EdgeAuthTolerance: viper.GetInt("edge_auth.tolerance_seconds"),
		DashboardEnabled:  viper.GetBool("dashboard.enabled"),
		DashboardPort:     viper.GetInt("dashboard.port"),
		DashboardInterval: viper.GetInt("dashboard.update_interval"),
	}, nil
}

func setupDependencies(config *Config) (*Dependencies, error) {
	var source store.Source
	var err error
	switch config.RulesSource {
	case "file":
		source, err = store.NewFileSource(config.RulesFile)
	case "redis":
		source, err = store.NewRedisSource(config.RedisAddress, config.RedisPass, config.RedisDB,
			config.RulesKey, config.RulesChannel)
	default:
		return nil, fmt.Errorf("unknown rules source %q", config.RulesSource)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize rule source: %w", err)
	}

	var limiter ratelimit.Limiter
	var listProvider lists.Provider
	if config.RulesSource == "redis" {
		limiter, err = ratelimit.NewRedisLimiter(config.RedisAddress, config.RedisPass, config.RedisDB)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize rate limiter: %w", err)
		}
		listProvider, err = lists.NewRedisProvider(config.RedisAddress, config.RedisPass, config.RedisDB)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize list provider: %w", err)
		}
	} else {
		limiter = ratelimit.NewMemoryLimiter()
		listProvider = lists.NewStaticProvider()
	}

	var signer *edgeauth.Signer
	if config.EdgeAuthSecret != "" {
		signer = edgeauth.NewSigner([]byte(config.EdgeAuthSecret), config.EdgeAuthPOP)
	}

	registry := prometheus.NewRegistry()
	metrics := runtime.NewMetrics(registry)

	engine := runtime.NewEngine(nil, runtime.Options{
		Limiter:    limiter,
		Lists:      listProvider,
		Signer:     signer,
		Metrics:    metrics,
		FailClosed: config.FailClosed,
	})

	if err := loadRules(engine, source, metrics); err != nil {
		// A broken payload at boot is fatal; at reload time the engine
		// keeps serving the previous graph instead.
		return nil, fmt.Errorf("failed to load initial rule set: %w", err)
	}

	deps := &Dependencies{
		Source:   source,
		Engine:   engine,
		Metrics:  metrics,
		Registry: registry,
	}
	if config.DashboardEnabled {
		deps.Dashboard = runtime.NewDashboard(engine, config.DashboardPort, registry,
			time.Duration(config.DashboardInterval)*time.Second)
	}
	return deps, nil
}

func loadRules(engine *runtime.Engine, source store.Source, metrics *runtime.Metrics) error {
	packed, err := source.Fetch()
	if err != nil {
		metrics.RuleSetLoads.WithLabelValues("fetch_error").Inc()
		return err
	}
	graph, err := compiler.Load(packed)
	if err != nil {
		metrics.RuleSetLoads.WithLabelValues("invalid").Inc()
		return err
	}
	engine.Swap(graph)
	metrics.RuleSetLoads.WithLabelValues("ok").Inc()
	return nil
}

func runMainLoop(ctx context.Context, deps *Dependencies, config *Config) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if deps.Dashboard != nil {
		go deps.Dashboard.Start()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	log.Info().Msg("edgewall engine started")

	for {
		select {
		case _, ok := <-deps.Source.Updates():
			if !ok {
				return fmt.Errorf("rule source closed unexpectedly")
			}
			if err := loadRules(deps.Engine, deps.Source, deps.Metrics); err != nil {
				log.Error().Err(err).Msg("Rule reload failed, keeping previous graph")
			}
		case <-sigChan:
			log.Info().Msg("Shutting down edgewall engine")
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}
