package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/qunmoxiao/cybertown/internal/affinity"
	"github.com/qunmoxiao/cybertown/internal/ambient"
	"github.com/qunmoxiao/cybertown/internal/api"
	"github.com/qunmoxiao/cybertown/internal/chat"
	"github.com/qunmoxiao/cybertown/internal/config"
	"github.com/qunmoxiao/cybertown/internal/embedding"
	"github.com/qunmoxiao/cybertown/internal/gateway"
	"github.com/qunmoxiao/cybertown/internal/hooks"
	"github.com/qunmoxiao/cybertown/internal/keyword"
	"github.com/qunmoxiao/cybertown/internal/memory"
	"github.com/qunmoxiao/cybertown/internal/npc"
	"github.com/qunmoxiao/cybertown/internal/provider"
	"github.com/qunmoxiao/cybertown/internal/quiz"
	"github.com/qunmoxiao/cybertown/internal/relation"
	pgstore "github.com/qunmoxiao/cybertown/internal/store"
	"github.com/qunmoxiao/cybertown/internal/vectorstore"
)

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	logger.Info("Starting Cybertown...")

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/town.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.String("path", cfgPath), zap.Error(err))
	}
	logger.Info("Config loaded", zap.String("path", cfgPath))

	// Provider router
	router := provider.NewRouter(logger)
	for _, pc := range cfg.Providers {
		provCfg := provider.Config{
			ID: pc.ID, Type: pc.Type, Name: pc.Name,
			Endpoint: pc.Endpoint, APIKey: pc.APIKey,
			Model: pc.Model, Extra: pc.Extra,
		}
		switch pc.Type {
		case "openai":
			router.Register(provider.NewOpenAIProvider(provCfg, logger))
		case "anthropic":
			router.Register(provider.NewAnthropicProvider(provCfg, logger))
		default:
			logger.Warn("unknown provider type", zap.String("id", pc.ID), zap.String("type", pc.Type))
			continue
		}
		if pc.Default {
			router.SetDefault(pc.ID)
		}
	}

	roster := npc.DefaultRoster()

	// Memory: Redis working tier, Qdrant episodic tier. Either can be
	// absent; the tiered store degrades to whatever is available.
	var working memory.Store
	if cfg.Database.Redis.URL != "" {
		rs, redisErr := memory.NewRedisStore(cfg.Database.Redis.URL, logger)
		if redisErr != nil {
			logger.Warn("Redis unavailable, working memory is in-process", zap.Error(redisErr))
		} else {
			working = rs
			defer rs.Close()
		}
	}
	if working == nil {
		working = memory.NewInMemoryStore()
	}

	var episodic memory.Store
	var qdrantClient *vectorstore.Client
	if cfg.Database.Qdrant.Host != "" {
		qc, qErr := vectorstore.NewClient(vectorstore.Config{
			Host: cfg.Database.Qdrant.Host, Port: cfg.Database.Qdrant.Port,
		})
		if qErr != nil {
			logger.Warn("Qdrant unavailable, running without episodic memory", zap.Error(qErr))
		} else {
			embedder := embedding.New(embedding.Config{
				Backend: cfg.Embedding.Backend, Endpoint: cfg.Embedding.Endpoint,
				Model: cfg.Embedding.Model, APIKey: cfg.Embedding.APIKey,
				Dimension: cfg.Embedding.Dimension,
			})
			es, esErr := memory.NewEpisodicStore(context.Background(), qc, embedder, logger)
			if esErr != nil {
				logger.Warn("episodic memory unavailable", zap.Error(esErr))
				qc.Close()
			} else {
				episodic = es
				qdrantClient = qc
			}
		}
	}
	memories := memory.NewTieredStore(working, episodic, logger)

	// Affinity: Postgres when configured, in-process otherwise.
	var affinityStore affinity.Store = affinity.NewMemStore()
	var pgStore *pgstore.Store
	if cfg.Database.Postgres.DSN != "" {
		ps, pgErr := pgstore.New(cfg.Database.Postgres.DSN, logger)
		if pgErr != nil {
			logger.Warn("PostgreSQL unavailable, affinity is in-process", zap.Error(pgErr))
		} else {
			migrationsDir := cfg.Server.MigrationsDir
			if migrationsDir == "" {
				migrationsDir = "migrations"
			}
			if mErr := ps.Migrate(context.Background(), migrationsDir); mErr != nil {
				logger.Fatal("migration failed", zap.Error(mErr))
			}
			affinityStore = pgstore.NewAffinityStore(ps)
			pgStore = ps
		}
	}
	engine := affinity.NewEngine(affinityStore, router, logger)

	// Hooks
	bus := hooks.NewBus(logger)
	bus.SetEnabled(cfg.Hooks.Enabled)
	if cfg.Hooks.WebhookURL != "" {
		notifier := hooks.NewNotifier(cfg.Hooks.WebhookURL, cfg.Hooks.WebhookTimeoutDuration(), logger)
		bus.Register(hooks.EventAfterChat, notifier)
		bus.Register(hooks.EventAffinityChange, notifier)
	}

	// Relation graph mirrors affinity movement into Neo4j.
	var relationGraph *relation.Graph
	if cfg.Database.Neo4j.URI != "" {
		driver, neoErr := neo4j.NewDriverWithContext(cfg.Database.Neo4j.URI,
			neo4j.BasicAuth(cfg.Database.Neo4j.User, cfg.Database.Neo4j.Password, ""))
		if neoErr != nil {
			logger.Warn("Neo4j unavailable, running without relation graph", zap.Error(neoErr))
		} else {
			relationGraph = relation.NewGraph(driver, logger)
			bus.Register(hooks.EventAffinityChange, relationGraph.AffinityHook())
			logger.Info("Relation graph wired")
		}
	}

	// Gateway: websocket registry plus optional platform sinks.
	registry := gateway.NewRegistry(logger)
	var sinks []gateway.Sink
	if cfg.Gateway.Discord.Enabled && cfg.Gateway.Discord.BotToken != "" {
		ds, dsErr := gateway.NewDiscordSink(cfg.Gateway.Discord.BotToken, cfg.Gateway.Discord.ChannelID, logger)
		if dsErr != nil {
			logger.Warn("Discord sink unavailable", zap.Error(dsErr))
		} else {
			sinks = append(sinks, ds)
		}
	}
	if cfg.Gateway.Slack.Enabled && cfg.Gateway.Slack.BotToken != "" {
		ss, ssErr := gateway.NewSlackSink(cfg.Gateway.Slack.BotToken, cfg.Gateway.Slack.ChannelID, logger)
		if ssErr != nil {
			logger.Warn("Slack sink unavailable", zap.Error(ssErr))
		} else {
			sinks = append(sinks, ss)
		}
	}
	broadcaster := gateway.NewBroadcaster(registry, sinks, logger)

	// Ambient scheduler
	scheduler := ambient.NewScheduler(roster, router, broadcaster, bus, cfg.Ambient.IntervalDuration(), logger)

	// Chat pipeline
	orchestrator := chat.NewOrchestrator(roster, router, memories, engine, bus, scheduler, logger)
	wsHandler := gateway.NewWSHandler(registry, orchestrator, logger)

	// Quest keywords
	quests := make([]keyword.Quest, 0, len(cfg.Quests))
	for _, q := range cfg.Quests {
		quest := keyword.Quest{ID: q.ID, NPC: q.NPC}
		for _, g := range q.Keywords {
			if len(g) > 0 {
				quest.Groups = append(quest.Groups, keyword.Group(g))
			}
		}
		quests = append(quests, quest)
	}
	matcher := keyword.NewMatcher(quests, router, logger)

	quizzes := quiz.NewGenerator(roster, router, memories, logger)

	scheduler.Start()

	handler := api.NewHandler(roster, orchestrator, scheduler, engine, memories, matcher, quizzes, broadcaster, wsHandler, logger)

	port := fmt.Sprintf("%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: handler.Router(),
	}

	go func() {
		logger.Info("Cybertown listening", zap.String("port", port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down Cybertown...")
	scheduler.Stop()
	ctx := context.Background()
	srv.Shutdown(ctx)
	registry.CloseAll()
	broadcaster.Close()
	bus.Drain()
	if relationGraph != nil {
		relationGraph.Close(ctx)
	}
	if qdrantClient != nil {
		qdrantClient.Close()
	}
	if pgStore != nil {
		pgStore.Close()
	}
}
