// Package wiring constructs the resolver's concrete dependencies from
// environment configuration: setup-with-ping for Postgres and Redis, a
// single entry point that builds every adapter and hands back one
// Dependencies value. The stack is fixed (Postgres+Redis+RabbitMQ) rather
// than a storage-driver switch, since these bindings are not pluggable.
package wiring

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/clusterq/claimresolver/internal/advisoryqueue"
	"github.com/clusterq/claimresolver/internal/deptracker"
	"github.com/clusterq/claimresolver/internal/errs"
	"github.com/clusterq/claimresolver/internal/lock"
	"github.com/clusterq/claimresolver/internal/notify"
	"github.com/clusterq/claimresolver/internal/pendingqueue"
	"github.com/clusterq/claimresolver/internal/resolver"
	"github.com/clusterq/claimresolver/internal/store"
	"github.com/clusterq/claimresolver/internal/sweep"
	"github.com/clusterq/claimresolver/internal/telemetry"
)

// Settings holds every connection string and tunable the resolver process
// needs. Callers typically populate this from environment variables in
// cmd/resolver/main.go.
type Settings struct {
	PostgresURL      string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	RabbitMQURL      string
	RabbitMQExchange string
	Resolver         resolver.Config
	SweepParallelism int
}

// Dependencies is every constructed component the process needs to start
// and stop the resolver and, if enabled, the reconciliation sweep.
type Dependencies struct {
	DB       *sql.DB
	Redis    *redis.Client
	RabbitMQ *notify.RabbitMQPublisher

	Resolver *resolver.Resolver
	Sweep    *sweep.Sweep

	// SweepCronExpr is the robfig/cron "@every" expression derived from
	// Settings.Resolver.SweepInterval, ready to pass to Sweep.Start.
	SweepCronExpr string
}

// Build opens every connection, constructs every adapter, and wires them
// into a Resolver (and, if enabled, a Sweep) ready to Start.
func Build(ctx context.Context, cfg Settings) (*Dependencies, error) {
	db, err := sql.Open("postgres", cfg.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("wiring: open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("wiring: ping postgres: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("wiring: ping redis: %w", err)
	}

	publisher, err := notify.NewRabbitMQPublisher(cfg.RabbitMQURL, cfg.RabbitMQExchange)
	if err != nil {
		return nil, fmt.Errorf("wiring: connect rabbitmq: %w", err)
	}

	logger := telemetry.NewStdLogger()

	taskStore := store.NewPostgresTaskStore(db)
	advisoryQueue := advisoryqueue.NewPostgresAdvisoryQueue(db)
	pendingQueue := pendingqueue.NewRedisPendingQueue(rdb)
	depTracker := deptracker.NewPostgresDependencyTracker(db)
	lockMgr := lock.NewPostgresDistributedLockManager(db)

	res := resolver.New(cfg.Resolver, resolver.Dependencies{
		Store:             taskStore,
		AdvisoryQueue:     advisoryQueue,
		PendingQueue:      pendingQueue,
		Publisher:         publisher,
		DependencyTracker: depTracker,
		Logger:            logger,
		ErrorReporter:     logger,
		AlertSink:         logger,
	})

	deps := &Dependencies{
		DB:       db,
		Redis:    rdb,
		RabbitMQ: publisher,
		Resolver: res,
	}

	if cfg.Resolver.SweepEnabled {
		deps.Sweep = &sweep.Sweep{
			Store:       taskStore,
			Lock:        lockMgr,
			Parallelism: cfg.SweepParallelism,
			BatchSize:   cfg.Resolver.BatchSize,
			Logger:      logger,
			Errors:      logger,
		}
		// The sweep shares the resolver's message handler semantics but
		// needs its own *resolver.MessageHandler instance since the field
		// is unexported from resolver.New's perspective; build one the
		// same way resolver.New does.
		deps.Sweep.Handler = &resolver.MessageHandler{
			Store:        taskStore,
			PendingQueue: pendingQueue,
			Publisher:    publisher,
			DepTracker:   depTracker,
			Logger:       logger,
			Errors:       logger,
		}
		deps.SweepCronExpr = fmt.Sprintf("@every %s", cfg.Resolver.SweepInterval)
	}

	return deps, nil
}

// Close releases every connection. It does not stop the resolver or the
// sweep — call their own Terminate/Stop first.
func (d *Dependencies) Close() error {
	var agg errs.AggregateError
	agg.Add(d.RabbitMQ.Close())
	agg.Add(d.Redis.Close())
	agg.Add(d.DB.Close())
	if agg.HasErrors() {
		return fmt.Errorf("wiring: close: %w", &agg)
	}
	return nil
}
