// Package service wires the inventory watcher: store, inventory client,
// diff engine, scheduler, notifier and bot.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/okian/steamwatch/internal/adapters/repository"
	"github.com/okian/steamwatch/internal/adapters/repository/sqlite"
	"github.com/okian/steamwatch/internal/adapters/steam"
	"github.com/okian/steamwatch/internal/adapters/telegram"
	"github.com/okian/steamwatch/internal/bot"
	"github.com/okian/steamwatch/internal/config"
	"github.com/okian/steamwatch/internal/domain/diff"
	"github.com/okian/steamwatch/internal/domain/model"
	"github.com/okian/steamwatch/internal/domain/scheduler"
	"github.com/okian/steamwatch/internal/domain/types"
	"github.com/okian/steamwatch/pkg/clock"
	"github.com/okian/steamwatch/pkg/logger"
	"github.com/okian/steamwatch/pkg/metrics"
)

// ErrBotDisabled is returned by RunBot when no bot token is configured.
var ErrBotDisabled = errors.New("telegram bot disabled: no bot_token")

// TelegramAPI is what the service needs from the Bot API.
type TelegramAPI interface {
	bot.API
}

// Service owns every long-lived component of the watcher.
type Service struct {
	mu sync.RWMutex

	cfg *config.Config

	store          repository.Store
	telegram       TelegramAPI
	steamTransport http.RoundTripper
	steam          *steam.Client
	engine         *diff.Engine
	scheduler      *scheduler.Scheduler
	bot            *bot.Bot

	clock  clock.Clock
	logger logger.Logger

	started     bool
	pruneCancel context.CancelFunc
	pruneDone   chan struct{}
}

// New builds the service from cfg and opens its store. Nothing runs until
// Start.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Service, error) {
	if cfg == nil {
		cfg = config.New()
	}
	s := &Service{
		cfg:    cfg,
		clock:  clock.Real(),
		logger: logger.Get().Named("service"),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.store == nil {
		st, err := openStore(ctx, cfg, s.clock)
		if err != nil {
			return nil, err
		}
		s.store = st
	}

	if s.telegram == nil && cfg.BotToken != "" {
		tg, err := telegram.NewClient(cfg.BotToken, telegram.WithAPIURL(cfg.TelegramAPIURL))
		if err != nil {
			_ = s.store.Close()
			return nil, fmt.Errorf("telegram client: %w", err)
		}
		s.telegram = tg
	}

	steamOpts := []steam.Option{
		steam.WithMaxAttempts(cfg.MaxRetryAttempts),
		steam.WithBaseDelay(cfg.RequestDelay()),
		steam.WithClock(s.clock),
	}
	if cfg.SteamBaseURL != "" {
		steamOpts = append(steamOpts, steam.WithBaseURL(cfg.SteamBaseURL))
	}
	if cfg.ProxyURL != "" {
		steamOpts = append(steamOpts, steam.WithProxy(cfg.ProxyURL))
	}
	if s.steamTransport != nil {
		steamOpts = append(steamOpts, steam.WithHTTPTransport(s.steamTransport))
	}
	s.steam = steam.New(steamOpts...)
	s.engine = diff.NewEngine(s.steam, s.store, diff.WithPageSize(cfg.InventoryPageSize))

	var notifier scheduler.Notifier = logNotifier{logger: s.logger.Named("dry-run")}
	if s.telegram != nil {
		notifier = telegram.NewNotifier(s.telegram, cfg.MaxItemsPerNotification)
		s.bot = bot.New(s.telegram, s.store, s.engine,
			bot.WithDefaults(cfg.DefaultAppID, cfg.DefaultContextID),
			bot.WithSessionTTL(cfg.SessionTTL()),
			bot.WithClock(s.clock),
		)
	}

	s.scheduler = scheduler.New(s.engine, s.store, notifier, s.steam,
		scheduler.WithInterval(cfg.CheckInterval()),
		scheduler.WithRequestDelay(cfg.RequestDelay()),
		scheduler.WithCheckOnStart(cfg.CheckOnStart),
		scheduler.WithClock(s.clock),
	)
	return s, nil
}

func openStore(ctx context.Context, cfg *config.Config, c clock.Clock) (repository.Store, error) {
	switch cfg.Storage {
	case config.StorageMemory:
		return repository.NewMemoryStore(repository.WithClock(c)), nil
	default:
		st, err := sqlite.Open(ctx, cfg.DatabasePath, sqlite.WithClock(c))
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		return st, nil
	}
}

// Start begins scheduled checking and the retention loop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.logger.Info(ctx, "starting inventory watcher...")
	if err := s.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	pruneCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.pruneCancel = cancel
	s.pruneDone = make(chan struct{})
	go s.pruneLoop(pruneCtx, s.pruneDone)

	s.started = true
	s.logger.Info(ctx, "inventory watcher started",
		logger.String("storage", s.cfg.Storage),
		logger.Duration("interval", s.cfg.CheckInterval()),
		logger.Bool("bot", s.bot != nil),
	)
	return nil
}

// Stop halts the scheduler and the retention loop, then closes the store.
// Stop on a stopped service only closes the store.
func (s *Service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := context.Background()
	var errs []error
	if s.started {
		s.logger.Info(ctx, "stopping inventory watcher...")
		if err := s.scheduler.Stop(); err != nil {
			errs = append(errs, err)
		}
		s.pruneCancel()
		<-s.pruneDone
		s.started = false
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	s.logger.Info(ctx, "inventory watcher stopped")
	return errors.Join(errs...)
}

// RunBot polls the Bot API until ctx is done.
func (s *Service) RunBot(ctx context.Context) error {
	if s.bot == nil {
		return ErrBotDisabled
	}
	return s.bot.Run(ctx)
}

// RunNow queues a cycle on the running scheduler.
func (s *Service) RunNow(ctx context.Context) error {
	return s.scheduler.RunNow(ctx)
}

// RunOnce runs a single cycle inline. The service must not be started.
func (s *Service) RunOnce(ctx context.Context) (types.CycleReport, error) {
	return s.scheduler.RunOnce(ctx)
}

// Prune runs one retention pass.
func (s *Service) Prune(ctx context.Context) (int64, error) {
	n, err := s.store.PruneStale(ctx, s.cfg.SnapshotRetention())
	if err != nil {
		return 0, fmt.Errorf("prune snapshots: %w", err)
	}
	metrics.RecordSnapshotPruned(n)
	return n, nil
}

func (s *Service) pruneLoop(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	t := time.NewTicker(s.cfg.PruneInterval())
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := s.Prune(ctx)
			if err != nil {
				if ctx.Err() == nil {
					s.logger.Warn(ctx, "snapshot prune failed", logger.Error(err))
				}
				continue
			}
			s.logger.Info(ctx, "snapshot prune finished", logger.Int64("rows", n))
		}
	}
}

// Running reports whether the scheduler is ticking.
func (s *Service) Running() bool {
	return s.scheduler.Running()
}

// Statuses returns the health of every target checked so far.
func (s *Service) Statuses() []types.TargetStatus {
	return s.scheduler.Statuses()
}

// LastReport returns the most recent cycle summary.
func (s *Service) LastReport() (types.CycleReport, bool) {
	return s.scheduler.LastReport()
}

// Registrations lists every stored registration.
func (s *Service) Registrations(ctx context.Context) ([]model.Registration, error) {
	return s.store.ListRegistrations(ctx, repository.Filter{})
}

// Ready reports whether the store answers.
func (s *Service) Ready(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_, err := s.store.ListRegistrations(ctx, repository.Filter{WatcherID: -1})
	return err
}

// logNotifier stands in for Telegram when no token is configured, so a
// one-shot check still advances snapshots and shows what would be sent.
type logNotifier struct {
	logger logger.Logger
}

func (n logNotifier) Notify(ctx context.Context, watcherID int64, accountID string, gameID int64, items []model.NewItem) error {
	n.logger.Info(ctx, "new items (not sent)",
		logger.Int64("watcher_id", watcherID),
		logger.String("account_id", accountID),
		logger.Int64("app_id", gameID),
		logger.Int("items", len(items)),
	)
	return nil
}
