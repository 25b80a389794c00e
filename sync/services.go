package sync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"

	"github.com/syc/clubsync/acuity"
	"github.com/syc/clubsync/config"
	"github.com/syc/clubsync/distlock"
	"github.com/syc/clubsync/google"
	"github.com/syc/clubsync/metrics"
	"github.com/syc/clubsync/payments"
	"github.com/syc/clubsync/ratelimit"
	"github.com/syc/clubsync/sqlsink"
	"github.com/syc/clubsync/squarespace"
	"github.com/syc/clubsync/webhook"
)

// Services is the wired application. Scheduler and Router are nil when
// Google Sheets publishing is disabled.
type Services struct {
	Config    *config.Config
	Metrics   *metrics.Registry
	Workbooks *WorkbookRegistry
	Locker    distlock.Locker
	Scheduler *Scheduler
	Router    *EventRouter
	Webhooks  *webhook.Handler

	closers []func() error
}

// NewServices builds every client and sync component from cfg. Optional
// backends that are not configured or not reachable are left out with a
// warning.
func NewServices(ctx context.Context, app core.App, cfg *config.Config) (*Services, error) {
	svc := &Services{
		Config:    cfg,
		Metrics:   metrics.NewRegistry(),
		Workbooks: NewWorkbookRegistry(app),
	}

	redisClient := svc.openRedis(ctx)
	db := svc.openDatabase(ctx)
	svc.Locker = distlock.New(redisClient, db, time.Duration(cfg.Redis.LockTTLSeconds)*time.Second)

	svc.Webhooks = &webhook.Handler{
		Secret:  cfg.Acuity.WebhookSecret,
		Metrics: svc.Metrics,
	}
	if db != nil {
		svc.Webhooks.Orders = sqlsink.NewOrderSink(db, cfg.Database.OrdersTable)
	}

	store, err := newGoogleStore(ctx)
	if err != nil {
		return nil, err
	}
	if store == nil {
		slog.Warn("Google Sheets publishing is disabled; report syncs will not run")
		return svc, nil
	}

	resolver := NewDestinationResolver(cfg, store, svc.Workbooks, svc.Locker)
	writer := NewWriter(store, svc.Locker)

	var orders OrderFetcher
	if sq, err := squarespace.NewClient(squarespace.Config{
		APIKey:    cfg.Squarespace.APIKey,
		BaseURL:   cfg.Squarespace.BaseURL,
		UserAgent: cfg.Squarespace.UserAgent,
	}); err != nil {
		slog.Warn("Squarespace syncs disabled", "error", err)
	} else {
		orders = sq
	}

	var balances BalanceFetcher
	if st, err := payments.NewStripeClient(cfg.Stripe.APIKey, nil); err != nil {
		slog.Warn("Stripe sync disabled", "error", err)
	} else {
		balances = st
	}

	runner := NewBatchRunner(cfg, orders, balances, resolver, writer, svc.Metrics)
	svc.Scheduler = NewScheduler(runner, cfg.Schedule, NewPocketBaseRunLog(app))

	if ac, err := acuity.NewClient(acuity.Config{
		UserID:  cfg.Acuity.UserID,
		APIKey:  cfg.Acuity.APIKey,
		BaseURL: cfg.Acuity.BaseURL,
		Limiter: ratelimit.NewRateLimiter(ratelimit.DefaultConfig()),
	}); err != nil {
		slog.Warn("Acuity webhooks disabled", "error", err)
	} else {
		svc.Router = NewEventRouter(ac, store, resolver, writer, svc.Metrics)
		svc.Webhooks.Events = svc.Router
	}

	return svc, nil
}

func newGoogleStore(ctx context.Context) (SheetStore, error) {
	srv, err := google.NewSheetsClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating sheets client: %w", err)
	}
	if srv == nil {
		return nil, nil
	}
	drv, err := google.NewDriveClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating drive client: %w", err)
	}
	return NewGoogleStore(srv, google.NewDrive(drv, google.GetFolderID())), nil
}

func (s *Services) openRedis(ctx context.Context) *redis.Client {
	if s.Config.Redis.URL == "" {
		return nil
	}
	opts, err := redis.ParseURL(s.Config.Redis.URL)
	if err != nil {
		slog.Warn("Invalid Redis URL; using another lock backend", "error", err)
		return nil
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		slog.Warn("Redis unreachable; using another lock backend", "error", err)
		_ = client.Close()
		return nil
	}
	s.closers = append(s.closers, client.Close)
	return client
}

func (s *Services) openDatabase(ctx context.Context) *sql.DB {
	if s.Config.Database.URL == "" {
		return nil
	}
	db, err := sqlsink.Open(s.Config.Database.URL)
	if err != nil {
		slog.Warn("Order database disabled", "error", err)
		return nil
	}
	if err := db.PingContext(ctx); err != nil {
		slog.Warn("Order database unreachable", "error", err)
		_ = db.Close()
		return nil
	}
	s.closers = append(s.closers, db.Close)
	return db
}

// Start starts the scheduler when report syncs are enabled.
func (s *Services) Start() error {
	if s.Scheduler == nil {
		return nil
	}
	return s.Scheduler.Start()
}

// Close stops the scheduler and releases backend connections.
func (s *Services) Close() error {
	if s.Scheduler != nil {
		s.Scheduler.Stop()
	}
	var errs []error
	for _, c := range s.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
