// Package bot implements the Telegram command surface: watchers add, list
// and remove tracked inventories through it.
package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/okian/steamwatch/internal/adapters/repository"
	"github.com/okian/steamwatch/internal/adapters/telegram"
	"github.com/okian/steamwatch/internal/domain/model"
	"github.com/okian/steamwatch/pkg/clock"
	"github.com/okian/steamwatch/pkg/logger"
	"github.com/okian/steamwatch/pkg/metrics"
)

// Default configuration values.
const (
	DefaultAppID       = 730
	DefaultContextID   = 2
	defaultPollTimeout = 30 * time.Second
	defaultRetryDelay  = 5 * time.Second
	defaultSeedBacklog = 16
)

// API is the subset of the Bot API the bot uses.
type API interface {
	GetUpdates(ctx context.Context, offset int, timeout time.Duration) ([]tgbotapi.Update, error)
	SendMessage(ctx context.Context, chatID int64, text string, opts telegram.MessageOptions) (int, error)
	EditMessageText(ctx context.Context, chatID int64, messageID int, text string, opts telegram.MessageOptions) error
	AnswerCallbackQuery(ctx context.Context, queryID, text string, showAlert bool) error
}

// Seeder records the current inventory of a fresh target as already seen.
type Seeder interface {
	Seed(ctx context.Context, t model.Target) (int, error)
}

// Bot dispatches updates to handlers.
type Bot struct {
	api    API
	store  repository.RegistrationStore
	seeder Seeder

	defaultAppID     int64
	defaultContextID int64
	sessionTTL       time.Duration
	pollTimeout      time.Duration
	retryDelay       time.Duration
	clock            clock.Clock
	logger           logger.Logger

	sessions *Sessions

	// seedSlots bounds seeds that are queued or running; seedMu lets one
	// fetch run at a time.
	seedSlots chan struct{}
	seedMu    sync.Mutex
	seeds     sync.WaitGroup
}

// New creates a bot.
func New(api API, store repository.RegistrationStore, seeder Seeder, opts ...Option) *Bot {
	b := &Bot{
		api:              api,
		store:            store,
		seeder:           seeder,
		defaultAppID:     DefaultAppID,
		defaultContextID: DefaultContextID,
		sessionTTL:       DefaultSessionTTL,
		pollTimeout:      defaultPollTimeout,
		retryDelay:       defaultRetryDelay,
		clock:            clock.Real(),
		logger:           logger.Get().Named("bot"),
		seedSlots:        make(chan struct{}, defaultSeedBacklog),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.sessions = NewSessions(b.sessionTTL, b.clock)
	return b
}

// Sessions exposes the add-flow table.
func (b *Bot) Sessions() *Sessions {
	return b.sessions
}

// WaitSeeds blocks until every started seed has finished.
func (b *Bot) WaitSeeds() {
	b.seeds.Wait()
}

// Run long-polls for updates until ctx is done. Poll failures are logged and
// retried; Run only returns when ctx ends and pending seeds have stopped.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info(ctx, "bot polling started")
	var offset int
	for {
		if ctx.Err() != nil {
			b.WaitSeeds()
			b.logger.Info(context.WithoutCancel(ctx), "bot polling stopped")
			return nil
		}

		if n := b.sessions.Sweep(); n > 0 {
			b.logger.Debug(ctx, "expired add sessions dropped", logger.Int("count", n))
		}

		updates, err := b.api.GetUpdates(ctx, offset, b.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			wait := b.retryDelay
			var apiErr *tgbotapi.Error
			if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
				wait = time.Duration(apiErr.RetryAfter) * time.Second
			}
			b.logger.Warn(ctx, "getUpdates failed", logger.Error(err), logger.Duration("retry_in", wait))
			_ = b.clock.Sleep(ctx, wait)
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			b.HandleUpdate(ctx, u)
		}
	}
}

// HandleUpdate routes one update. Handler failures are logged and never
// escape, so one bad update cannot stop polling.
func (b *Bot) HandleUpdate(ctx context.Context, u tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error(ctx, "update handler panicked",
				logger.Int("update_id", u.UpdateID),
				logger.String("panic", fmt.Sprint(r)),
			)
		}
	}()

	var err error
	switch {
	case u.CallbackQuery != nil:
		metrics.RecordBotUpdate("callback")
		err = b.handleCallback(ctx, u.CallbackQuery)
	case u.Message != nil:
		metrics.RecordBotUpdate("message")
		err = b.handleMessage(ctx, u.Message)
	default:
		metrics.RecordBotUpdate("ignored")
	}
	if err != nil {
		b.logger.Warn(ctx, "update handling failed", logger.Int("update_id", u.UpdateID), logger.Error(err))
	}
}

// seedAsync snapshots t off the update loop. When the backlog is full the
// seed is skipped and the target's first check reports what it finds.
func (b *Bot) seedAsync(ctx context.Context, t model.Target, log logger.Logger) {
	select {
	case b.seedSlots <- struct{}{}:
	default:
		log.Warn(ctx, "seed backlog full, skipping initial snapshot", logger.Int("backlog", cap(b.seedSlots)))
		return
	}

	b.seeds.Add(1)
	go func() {
		defer b.seeds.Done()
		defer func() { <-b.seedSlots }()

		b.seedMu.Lock()
		defer b.seedMu.Unlock()
		if ctx.Err() != nil {
			return
		}
		n, err := b.seeder.Seed(ctx, t)
		if err != nil {
			log.Warn(ctx, "initial snapshot failed", logger.Error(err))
			return
		}
		log.Info(ctx, "initial snapshot stored", logger.Int("seeded_items", n))
	}()
}
