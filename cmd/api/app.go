package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"disputeflow/admin"
	"disputeflow/appeal"
	"disputeflow/arbitration"
	"disputeflow/arbitrator"
	"disputeflow/asset"
	"disputeflow/auth"
	"disputeflow/config"
	"disputeflow/db"
	"disputeflow/dispute"
	"disputeflow/escrow"
	"disputeflow/memstore"
	"disputeflow/metrics"
	"disputeflow/notify"
	"disputeflow/postgres"
	"disputeflow/principal"
)

type outboxSource interface {
	notify.OutboxRepository
	metrics.PendingCounter
}

// app holds the wired services for one process.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	pool     *pgxpool.Pool
	store    arbitration.Store
	outbox   outboxSource
	recorder *metrics.Recorder
	server   *Server
	closers  []io.Closer
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, recorder: metrics.NewRecorder(nil)}

	var credentials auth.Repository
	switch cfg.Storage {
	case config.StorageMemory:
		mem := memstore.New()
		a.store = mem
		a.outbox = mem
		credentials = auth.NewMemoryRepository()
	case config.StoragePostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.MaxDBConns)
		if err != nil {
			return nil, err
		}
		a.pool = pool
		a.store = postgres.NewStore(pool)
		a.outbox = postgres.NewOutboxRepository(pool)
		credentials = auth.NewRepository(pool)
	default:
		return nil, fmt.Errorf("unsupported storage %q", cfg.Storage)
	}
	a.recorder.TrackOutbox(a.outbox)

	authz := principal.ContextAuthorizer{}
	ledger := asset.NewLedger(authz)
	esc := escrow.New(ledger, principal.Principal(cfg.EscrowAccount))

	a.server = &Server{
		logger:   logger,
		auth:     auth.NewService(credentials, cfg.JWTSecret, cfg.TokenTTL).WithReserved(esc.Custodian()),
		admin:    admin.NewService(a.store, authz),
		registry: arbitrator.NewRegistry(a.store, authz),
		disputes: dispute.NewService(a.store, authz, esc).WithObserver(a.recorder),
		appeals:  appeal.NewService(a.store, authz, esc).WithObserver(a.recorder),
		assets:   asset.NewService(a.store, ledger),
		metrics:  a.recorder,
	}
	return a, nil
}

// publisher fans out to the log and to every configured broker.
func (a *app) publisher(ctx context.Context) (notify.Publisher, error) {
	fanout := notify.FanoutPublisher{notify.NewLoggingPublisher(a.logger)}
	if len(a.cfg.KafkaBrokers) > 0 {
		kp, err := notify.NewKafkaPublisher(a.cfg.KafkaBrokers, a.cfg.KafkaTopicPrefix)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, kp)
		fanout = append(fanout, kp)
	}
	if a.cfg.RedisURL != "" {
		client, err := notify.ConnectRedis(ctx, a.cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client)
		fanout = append(fanout, notify.NewRedisStreamPublisher(client, a.cfg.RedisStream))
	}
	return fanout, nil
}

func (a *app) outboxWorker(ctx context.Context) (*notify.OutboxWorker, error) {
	pub, err := a.publisher(ctx)
	if err != nil {
		return nil, err
	}
	return notify.NewOutboxWorker(a.logger, a.outbox, pub, a.cfg.OutboxPollInterval, a.cfg.OutboxBatchSize).
		WithObserver(a.recorder), nil
}

func (a *app) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	if a.pool != nil {
		a.pool.Close()
	}
	return errors.Join(errs...)
}
