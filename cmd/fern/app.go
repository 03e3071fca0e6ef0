package main

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/platform/database"
	platformredis "github.com/Ramsey-B/fern/internal/platform/redis"
	"github.com/Ramsey-B/fern/internal/platform/startup"
	"github.com/Ramsey-B/fern/pkg/canonicalizer"
	"github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/linkage"
	"github.com/Ramsey-B/fern/pkg/lock"
	"github.com/Ramsey-B/fern/pkg/pipeline"
	"github.com/Ramsey-B/fern/pkg/resolution"
	"github.com/Ramsey-B/fern/pkg/routes/entity"
	"github.com/Ramsey-B/fern/pkg/routes/health"
	"github.com/Ramsey-B/fern/pkg/routes/ingest"
	"github.com/Ramsey-B/fern/pkg/routes/trustrule"
	"github.com/Ramsey-B/fern/pkg/trust"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

type registrar interface {
	Register(g *echo.Group)
}

// app owns every long-lived dependency of the service
type app struct {
	cfg    *config.Config
	logger ectologger.Logger
	deps   *startup.Startup

	db         database.DB
	rdb        *redis.Client
	graph      *graph.Client
	producer   *kafka.Producer
	deadLetter *kafka.Producer
	consumer   *kafka.Consumer

	stores   *stores
	pipeline *pipeline.Pipeline
	health   *health.Checker
	routes   []registrar
}

func newApp(cfg *config.Config, logger ectologger.Logger) *app {
	a := &app{
		cfg:    cfg,
		logger: logger,
		deps:   startup.NewStartup(logger, cfg.StartupMaxAttempts),
		health: health.NewChecker(cfg.Version),
	}

	if cfg.StoreDriver == config.StoreDriverPostgres {
		a.deps.Add(&startup.Func{Name: "database", StartFunc: a.startDatabase, StopFunc: a.stopDatabase})
	}
	if cfg.LockDriver == config.LockDriverRedis {
		a.deps.Add(&startup.Func{Name: "redis", StartFunc: a.startRedis, StopFunc: a.stopRedis})
	}
	if cfg.GraphEnabled {
		a.deps.Add(&startup.Func{Name: "graph", StartFunc: a.startGraph, StopFunc: a.stopGraph})
	}
	if cfg.KafkaProducerEnabled || cfg.KafkaDeadLetterTopic != "" {
		a.deps.Add(&startup.Func{Name: "kafka-producer", StartFunc: a.startProducers, StopFunc: a.stopProducers})
	}

	parents := make([]string, 0, 4)
	for _, name := range []string{"database", "redis", "graph", "kafka-producer"} {
		if a.deps.Has(name) {
			parents = append(parents, name)
		}
	}
	a.deps.Add(&startup.Func{Name: "pipeline", Parents: parents, StartFunc: a.startPipeline})
	if cfg.KafkaConsumerEnabled {
		a.deps.Add(&startup.Func{Name: "kafka-consumer", Parents: []string{"pipeline"}, StartFunc: a.startConsumer, StopFunc: a.stopConsumer})
	}
	return a
}

func (a *app) start(ctx context.Context) error {
	return a.deps.Start(ctx)
}

func (a *app) stop(ctx context.Context) error {
	return a.deps.Stop(ctx)
}

func (a *app) startDatabase(ctx context.Context) error {
	db, err := database.Connect(ctx, database.ConnectionConfig{
		Host:            a.cfg.DatabaseHost,
		Port:            a.cfg.DatabasePort,
		User:            a.cfg.DatabaseUserName,
		Password:        a.cfg.DatabasePassword,
		Name:            a.cfg.DatabaseName,
		SSLMode:         a.cfg.DatabaseSSLMode,
		MaxOpenConns:    a.cfg.DatabaseMaxOpenConns,
		MaxIdleConns:    a.cfg.DatabaseMaxIdleConns,
		ConnMaxLifetime: a.cfg.DatabaseConnMaxLifetime,
	}, a.logger)
	if err != nil {
		return err
	}

	migrations := database.NewMigrationService(a.logger, &database.MigrationConfig{
		MigrationFolderPath: a.cfg.DatabaseMigrationFolderPath,
		Version:             a.cfg.DatabaseMigrationVersion,
		Force:               a.cfg.DatabaseMigrationForce,
		AutoRollback:        a.cfg.DatabaseMigrationAutoRollback,
	})
	if err := migrations.MigratePostgres(db.SQL(), a.cfg.DatabaseName); err != nil {
		_ = db.Close()
		return fmt.Errorf("migrate database: %w", err)
	}

	a.db = db
	a.health.AddCheck("database", health.PingFunc(db.PingContext))
	return nil
}

func (a *app) stopDatabase(context.Context) error {
	return a.db.Close()
}

func (a *app) startRedis(ctx context.Context) error {
	rdb, err := platformredis.Connect(ctx, platformredis.Config{
		Host:     a.cfg.RedisHost,
		Port:     a.cfg.RedisPort,
		Password: a.cfg.RedisPassword,
		DB:       a.cfg.RedisDB,
	}, a.logger)
	if err != nil {
		return err
	}
	a.rdb = rdb
	a.health.AddCheck("redis", platformredis.Pinger{Client: rdb})
	return nil
}

func (a *app) stopRedis(context.Context) error {
	return a.rdb.Close()
}

func (a *app) startGraph(ctx context.Context) error {
	client, err := graph.NewClient(graph.Config{
		URI:      a.cfg.GraphDBURI,
		Username: a.cfg.GraphDBUser,
		Password: a.cfg.GraphDBPassword,
		Database: a.cfg.GraphDBName,
	}, a.logger)
	if err != nil {
		return err
	}
	if err := client.VerifyConnectivity(ctx); err != nil {
		_ = client.Close(ctx)
		return err
	}
	a.graph = client
	a.health.AddCheck("graph", health.PingFunc(client.VerifyConnectivity))
	return nil
}

func (a *app) stopGraph(ctx context.Context) error {
	return a.graph.Close(ctx)
}

func (a *app) producerConfig(topic string) kafka.ProducerConfig {
	cfg := kafka.DefaultProducerConfig()
	cfg.Brokers = a.cfg.KafkaBrokers
	cfg.Topic = topic
	cfg.BatchSize = a.cfg.KafkaBatchSize
	cfg.BatchTimeout = time.Duration(a.cfg.KafkaBatchTimeoutMS) * time.Millisecond
	cfg.RequiredAcks = a.cfg.KafkaRequiredAcks
	cfg.Compression = a.cfg.KafkaCompression
	return cfg
}

func (a *app) startProducers(context.Context) error {
	if a.cfg.KafkaProducerEnabled {
		producer, err := kafka.NewProducer(a.producerConfig(a.cfg.KafkaOutputTopic), a.logger)
		if err != nil {
			return err
		}
		a.producer = producer
	}
	if a.cfg.KafkaDeadLetterTopic != "" {
		producer, err := kafka.NewProducer(a.producerConfig(a.cfg.KafkaDeadLetterTopic), a.logger)
		if err != nil {
			return err
		}
		a.deadLetter = producer
	}
	return nil
}

func (a *app) stopProducers(context.Context) error {
	var firstErr error
	for _, p := range []*kafka.Producer{a.producer, a.deadLetter} {
		if p == nil {
			continue
		}
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// startPipeline builds the stores, trust rules, engine and routes
func (a *app) startPipeline(ctx context.Context) error {
	if a.db != nil {
		a.stores = postgresStores(a.db, a.logger)
	} else {
		a.stores = memoryStores()
	}

	if a.cfg.TrustRulesFile != "" {
		rules, err := trust.LoadSeedFile(a.cfg.TrustRulesFile)
		if err != nil {
			return err
		}
		if err := trust.Seed(ctx, a.logger, a.stores.trustRules, rules); err != nil {
			return err
		}
	}

	policy, err := resolution.ParseTieBreakPolicy(a.cfg.TieBreakPolicy)
	if err != nil {
		return err
	}

	rules := trust.NewCachedProvider(a.stores.trustRules, a.cfg.TrustRuleCacheTTL)
	registry := canonicalizer.NewDefaultRegistry().WithLogger(a.logger)

	var locker lock.Locker
	lockOpts := lock.Options{TTL: a.cfg.LockTTL, WaitTimeout: a.cfg.LockWaitTimeout}
	if a.rdb != nil {
		locker = lock.NewRedisLocker(a.rdb, a.logger, a.cfg.LockKeyPrefix, lockOpts)
	} else {
		locker = lock.NewMemoryLocker(lockOpts.WaitTimeout)
	}

	var projectors []pipeline.Projector
	if a.graph != nil {
		projectors = append(projectors, graph.NewProjector(a.graph, a.logger))
	}
	if a.producer != nil {
		projectors = append(projectors, events.NewEmitter(a.producer, a.logger))
	}

	a.pipeline = pipeline.New(a.logger, pipeline.Deps{
		Payloads:   a.stores.payloads,
		Canonical:  a.stores.canonical,
		Canonicals: canonicalizer.NewService(a.logger, registry, a.stores.payloads, a.stores.canonical),
		Sources:    registry,
		Matcher: linkage.NewChainMatcher(
			linkage.NewRegistrationNumberMatcher(a.stores.entities),
			linkage.NewPayloadLinkMatcher(a.stores.entities),
		),
		Engine:     resolution.NewEngine(a.logger, trust.NewRuleSet(rules), resolution.WithTieBreakPolicy(policy)),
		Entities:   a.stores.entities,
		Audits:     a.stores.audits,
		Locker:     locker,
		Transactor: a.stores.transactor,
		Projectors: projectors,
	}, pipeline.Options{
		ResolveMaxAttempts: a.cfg.ResolveMaxAttempts,
		RetryBackoff:       a.cfg.ResolveRetryBackoff,
	})

	a.routes = []registrar{
		ingest.NewHandler(a.pipeline, a.stores.payloads, a.stores.canonical),
		entity.NewHandler(a.stores.entities, a.stores.audits),
		trustrule.NewHandler(a.stores.trustRules, rules, a.logger),
	}

	a.logger.WithContext(ctx).WithFields(map[string]any{
		"store_driver":     a.cfg.StoreDriver,
		"lock_driver":      a.cfg.LockDriver,
		"tie_break_policy": policy,
		"sources":          registry.Sources(),
		"projectors":       len(projectors),
	}).Info("Resolution pipeline ready")
	return nil
}

func (a *app) startConsumer(ctx context.Context) error {
	cfg := kafka.DefaultConsumerConfig()
	cfg.Brokers = a.cfg.KafkaBrokers
	cfg.Topic = a.cfg.KafkaInputTopic
	cfg.GroupID = a.cfg.KafkaConsumerGroup
	cfg.MaxWait = a.cfg.KafkaConsumerMaxWait

	a.consumer = kafka.NewConsumer(cfg, a.logger, a.pipeline.HandleMessage, kafka.WithDeadLetter(a.deadLetter, errors.IsPermanent))
	a.health.AddCheck("kafka-consumer", health.PingFunc(func(context.Context) error {
		if !a.consumer.Health() {
			return fmt.Errorf("consumer has no reader")
		}
		return nil
	}))
	// the consumer outlives the startup context
	return a.consumer.Start(context.WithoutCancel(ctx))
}

func (a *app) stopConsumer(context.Context) error {
	return a.consumer.Stop()
}
