package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agentorg/runtime/internal/adapter/inmembus"
	"github.com/agentorg/runtime/internal/adapter/jsonschema"
	"github.com/agentorg/runtime/internal/adapter/litellm"
	"github.com/agentorg/runtime/internal/adapter/llm/anthropic"
	"github.com/agentorg/runtime/internal/adapter/llm/openai"
	"github.com/agentorg/runtime/internal/adapter/natsbus"
	orgotel "github.com/agentorg/runtime/internal/adapter/otel"
	"github.com/agentorg/runtime/internal/adapter/postgres"
	"github.com/agentorg/runtime/internal/config"
	"github.com/agentorg/runtime/internal/domain/agent"
	"github.com/agentorg/runtime/internal/domain/task"
	"github.com/agentorg/runtime/internal/logger"
	"github.com/agentorg/runtime/internal/port/llm"
	"github.com/agentorg/runtime/internal/port/toolhandler"
	"github.com/agentorg/runtime/internal/resilience"
	"github.com/agentorg/runtime/internal/secrets"
	"github.com/agentorg/runtime/internal/service"
)

func main() {
	// Temporary bootstrap logger until config is loaded.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	flags, err := config.ParseFlags(os.Args[1:])
	if err != nil {
		return fmt.Errorf("flags: %w", err)
	}
	cfg, yamlPath, err := config.LoadWithCLI(flags)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	holder := config.NewHolder(cfg, yamlPath)

	// Replace bootstrap logger with the configured one.
	logHandle, logCloser := logger.New(cfg.Logging)
	slog.SetDefault(logHandle)
	defer logCloser.Close()

	slog.Info("config loaded",
		"llm_backend", cfg.LLM.Backend,
		"log_level", cfg.Logging.Level,
		"pg_max_conns", cfg.Postgres.MaxConns,
		"chairman_id", cfg.Scheduler.ChairmanID,
	)

	vault, err := secrets.NewVault(secrets.EnvLoader(
		"ANTHROPIC_API_KEY", "OPENAI_API_KEY", "LITELLM_MASTER_KEY", "DATABASE_URL", "NATS_URL",
	))
	if err != nil {
		return fmt.Errorf("secrets: %w", err)
	}

	// Each outbound dependency gets its own breaker so a NATS outage
	// doesn't trip circuit state for LLM calls, or vice versa.
	llmBreaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
	natsBreaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)

	shutdownOTEL, err := orgotel.InitTracer(orgotel.OTELConfig{
		Enabled:     cfg.OTEL.Enabled,
		Endpoint:    cfg.OTEL.Endpoint,
		ServiceName: cfg.OTEL.ServiceName,
		Insecure:    cfg.OTEL.Insecure,
		SampleRate:  cfg.OTEL.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("otel tracer: %w", err)
	}
	metrics, err := orgotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("otel metrics: %w", err)
	}

	ctx := context.Background()

	// --- Infrastructure ---

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")
	st := postgres.NewStore(pool)

	orgBus := inmembus.New()
	var natsBridge *natsbus.Bridge
	if cfg.NATS.URL != "" {
		natsBridge, err = natsbus.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats bridge: %w", err)
		}
		natsBridge.SetBreaker(natsBreaker)
		orgBus.SetBridge(natsBridge)
		slog.Info("nats bridge connected", "url", cfg.NATS.URL)
	}

	llmClient, healthJob, err := buildLLMClient(cfg.LLM, vault, llmBreaker)
	if err != nil {
		return fmt.Errorf("llm backend: %w", err)
	}
	slog.Info("llm backend ready", "backend", cfg.LLM.Backend)

	// --- Declarative config: agents, permissions, keyword table ---

	agentDefs, err := config.LoadAgentsYAML(cfg.AgentsFile)
	if err != nil {
		return fmt.Errorf("agents file: %w", err)
	}
	perms, err := config.LoadPermissionsYAML(cfg.PermissionsFile)
	if err != nil {
		return fmt.Errorf("permissions file: %w", err)
	}
	keywords, requiredSeconds, err := config.LoadKeywordsYAML(cfg.KeywordsFile)
	if err != nil {
		return fmt.Errorf("keywords file: %w", err)
	}

	agents := make(map[string]*agent.Agent, len(agentDefs))
	now := time.Now()
	for id, def := range agentDefs {
		req, err := def.CreateRequest(id)
		if err != nil {
			return fmt.Errorf("agents file: %w", err)
		}
		agents[id] = agent.New(req, now)
	}
	roleOf := func(agentID string) agent.RoleKind {
		if a, ok := agents[agentID]; ok {
			return a.RoleKind
		}
		return ""
	}
	agentTeams := func(agentID string) (team, department string) {
		if a, ok := agents[agentID]; ok {
			return a.Team, a.Department
		}
		return "", ""
	}

	// --- Standing services ---

	toolRegistry := service.NewToolRegistry()
	// No tool handler adapters exist in this deployment yet; the registry
	// starts empty and is populated as domain-tool adapters land.
	handlers := toolhandler.NewRegistry()
	validator := jsonschema.NewValidator()
	router := service.NewToolRouter(toolRegistry, perms, handlers, validator, st, agentTeams)
	router.SetMetrics(metrics)

	topics := service.NewTopicManager(st, orgBus, roleOf)
	topics.SetMetrics(metrics)

	detector := service.NewIntentionDetector(keywords, requiredSeconds)
	cycles := service.NewResearchCycleService(st, orgBus, nil, roleOf)
	governance := service.NewRiskGovernance(st, orgBus, nil)
	governance.SetMetrics(metrics)
	autonomy := service.NewIntentionSystem(st, orgBus, nil, nil)
	feedback := service.NewFeedbackChannel(st)
	capabilities := service.NewCapabilitySystem(st, st)
	performance := service.NewPerformanceSystem(st, nil)

	runtimes := make(map[string]*service.AgentRuntime, len(agents))
	for id, ag := range agents {
		rt := service.NewAgentRuntime(ag, orgBus, task.NewQueue(), llmClient, router, roleBehaviorFor(ag.RoleKind, governance, autonomy))
		rt.SetMetrics(metrics)
		runtimes[id] = rt
	}

	sched := service.NewScheduler(orgBus, runtimes, st, cfg.Scheduler.ChairmanID)
	if healthJob != nil {
		sched.RegisterJob(healthJob)
	}

	rt := service.NewRuntime(orgBus, sched, toolRegistry, router, topics, detector, cycles, governance, autonomy, feedback, capabilities, performance, runtimes, agents)

	if err := rt.Start(ctx); err != nil {
		return fmt.Errorf("runtime start: %w", err)
	}
	slog.Info("runtime started", "agents", len(agents))

	// SIGHUP hot-reloads secrets and non-connection-level config, per
	// secrets.Vault/config.ConfigHolder's documented reload contract.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for range hup {
			if err := vault.Reload(); err != nil {
				slog.Error("sighup: secret reload failed", "error", err)
				continue
			}
			if err := holder.Reload(); err != nil {
				slog.Error("sighup: config reload failed", "error", err)
				continue
			}
			slog.Info("sighup: config and secrets reloaded")
		}
	}()

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)
	<-done

	// --- Ordered Graceful Shutdown ---

	// Phase 1: stop every agent loop and the scheduler's job/approval ticker.
	slog.Info("shutdown phase 1: stopping runtime")
	rt.Stop()

	// Phase 2: drain and close the optional cross-process bridge.
	if natsBridge != nil {
		slog.Info("shutdown phase 2: draining nats bridge")
		if err := natsBridge.Drain(); err != nil {
			slog.Error("nats drain error", "error", err)
		}
		if err := natsBridge.Close(); err != nil {
			slog.Error("nats close error", "error", err)
		}
	}

	// Phase 3: flush OTEL exporters.
	slog.Info("shutdown phase 3: shutting down otel")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := shutdownOTEL(shutdownCtx); err != nil {
		slog.Error("otel shutdown error", "error", err)
	}

	// Phase 4: close the database pool last, so in-flight queries can complete.
	slog.Info("shutdown phase 4: closing database pool")
	st.Close()

	slog.Info("shutdown complete")
	return nil
}

// buildLLMClient selects and constructs the port/llm.Client backend named by
// cfg.Backend. For the litellm backend it also returns a recurring health
// check job for the scheduler; the other backends have no equivalent.
func buildLLMClient(cfg config.LLM, vault *secrets.Vault, breaker *resilience.Breaker) (llm.Client, *service.Job, error) {
	switch cfg.Backend {
	case "anthropic":
		client, err := anthropic.New(anthropic.Config{
			APIKey:    cfg.Anthropic.APIKey,
			BaseURL:   cfg.Anthropic.BaseURL,
			Model:     cfg.Anthropic.Model,
			MaxTokens: cfg.Anthropic.MaxTokens,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("anthropic: %w", err)
		}
		return client, nil, nil

	case "openai":
		client, err := openai.New(openai.Config{
			APIKey:       cfg.OpenAI.APIKey,
			BaseURL:      cfg.OpenAI.BaseURL,
			ChatModel:    cfg.OpenAI.ChatModel,
			EmbedModel:   cfg.OpenAI.EmbedModel,
			SystemPrompt: cfg.OpenAI.SystemPrompt,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("openai: %w", err)
		}
		return client, nil, nil

	case "litellm":
		raw := litellm.NewClient(cfg.LiteLLM.BaseURL, cfg.LiteLLM.MasterKey)
		raw.SetBreaker(breaker)
		raw.SetVault(vault)
		adapter := litellm.NewThinkAdapter(raw, cfg.LiteLLM.ChatModel, cfg.LiteLLM.EmbedModel)
		if cfg.LiteLLM.SystemPrompt != "" {
			adapter.WithSystemPrompt(cfg.LiteLLM.SystemPrompt)
		}
		healthJob := service.NewIntervalJob("litellm_health", "LiteLLM proxy health check", 5*time.Minute,
			func(ctx context.Context, _ *service.Scheduler) error {
				ok, err := raw.Health(ctx)
				if err != nil {
					return fmt.Errorf("litellm health: %w", err)
				}
				if !ok {
					return fmt.Errorf("litellm health: proxy reported unhealthy")
				}
				return nil
			})
		return adapter, healthJob, nil

	default:
		return nil, nil, fmt.Errorf("unknown llm backend %q", cfg.Backend)
	}
}

// roleBehaviorFor maps an agent's RoleKind to its RoleBehavior. Director and
// Executive both get OfficerRole: in this org chart they are the oversight
// tier above Lead, and OfficerRole's daily-compliance cadence is the closest
// fit among the defined behaviors. positionOf/metricsOf are nil because no
// external market-data feed is wired into this deployment; both roles
// degrade to a plain LLM summary per their documented nil-fallback.
func roleBehaviorFor(kind agent.RoleKind, governance *service.RiskGovernance, autonomy *service.IntentionSystem) service.RoleBehavior {
	switch kind {
	case agent.RoleResearcher:
		return service.NewResearcherRole()
	case agent.RoleLead:
		return service.NewLeadRole()
	case agent.RoleRisk:
		return service.NewRiskRole(autonomy, nil)
	case agent.RoleTrader:
		return service.NewTraderRole()
	case agent.RoleIntelligence:
		return service.NewIntelligenceRole()
	case agent.RoleDirector, agent.RoleExecutive:
		return service.NewOfficerRole(governance, nil)
	default:
		return nil
	}
}
