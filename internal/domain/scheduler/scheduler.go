// Package scheduler runs periodic check cycles over every distinct
// (account, game) target and fans new items out to the watchers.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/steamwatch/internal/adapters/mq/queue"
	"github.com/okian/steamwatch/internal/adapters/mq/worker"
	"github.com/okian/steamwatch/internal/adapters/repository"
	"github.com/okian/steamwatch/internal/adapters/steam"
	"github.com/okian/steamwatch/internal/domain/diff"
	"github.com/okian/steamwatch/internal/domain/model"
	"github.com/okian/steamwatch/internal/domain/types"
	"github.com/okian/steamwatch/pkg/clock"
	"github.com/okian/steamwatch/pkg/logger"
	"github.com/okian/steamwatch/pkg/metrics"
)

// Default configuration values.
const (
	DefaultInterval        = 10 * time.Minute
	DefaultRequestDelay    = 3 * time.Second
	defaultShutdownTimeout = 30 * time.Second
)

// Cycle request reasons.
const (
	ReasonTick    = "tick"
	ReasonManual  = "manual"
	ReasonStartup = "startup"
)

// Detector reports new items for one target.
type Detector interface {
	DetectNewItems(ctx context.Context, t model.Target) ([]model.NewItem, error)
}

// Registrations lists watcher registrations.
type Registrations interface {
	ListRegistrations(ctx context.Context, f repository.Filter) ([]model.Registration, error)
}

// Notifier delivers new items to one watcher.
type Notifier interface {
	Notify(ctx context.Context, watcherID int64, accountID string, gameID int64, items []model.NewItem) error
}

// Session is the inventory client lifecycle owned by the scheduler.
type Session interface {
	Open(ctx context.Context) error
	Close() error
}

// Scheduler owns the cycle ticker, the cycle queue and its single worker.
type Scheduler struct {
	detector Detector
	regs     Registrations
	notifier Notifier
	session  Session

	interval        time.Duration
	requestDelay    time.Duration
	checkOnStart    bool
	shutdownTimeout time.Duration
	clock           clock.Clock
	logger          logger.Logger

	pacer *pacer

	mu         sync.Mutex
	started    bool
	oneShot    bool
	cancel     context.CancelFunc
	queue      *queue.InMemoryQueue
	worker     *worker.InMemoryWorker
	tickerDone chan struct{}

	statusMu   sync.RWMutex
	statuses   map[model.TargetKey]*types.TargetStatus
	lastReport *types.CycleReport
}

// New creates a stopped scheduler.
func New(detector Detector, regs Registrations, notifier Notifier, session Session, opts ...Option) *Scheduler {
	s := &Scheduler{
		detector:        detector,
		regs:            regs,
		notifier:        notifier,
		session:         session,
		interval:        DefaultInterval,
		requestDelay:    DefaultRequestDelay,
		shutdownTimeout: defaultShutdownTimeout,
		clock:           clock.Real(),
		logger:          logger.Get().Named("scheduler"),
		statuses:        make(map[model.TargetKey]*types.TargetStatus),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.pacer = newPacer(s.requestDelay, s.clock)
	return s
}

// Start opens the inventory session and begins ticking.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.oneShot {
		return ErrAlreadyRunning
	}

	if err := s.session.Open(ctx); err != nil {
		return fmt.Errorf("open inventory session: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.queue = queue.NewInMemoryQueue()
	s.worker = worker.NewInMemoryWorker(s.queue, s, worker.WithName("cycle-worker"))
	s.tickerDone = make(chan struct{})

	go s.worker.Run(runCtx)
	go s.tick(runCtx, s.queue, s.tickerDone)
	s.started = true

	s.logger.Info(ctx, "scheduler started",
		logger.Duration("interval", s.interval),
		logger.Duration("request_delay", s.requestDelay),
	)

	if s.checkOnStart {
		if err := s.enqueue(ctx, s.queue, ReasonStartup); err != nil {
			s.logger.Warn(ctx, "startup cycle not queued", logger.Error(err))
		}
	}
	return nil
}

// Stop cancels the running cycle, waits for the worker and releases the
// inventory session. Stop on a stopped scheduler is a no-op.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}
	s.started = false

	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	s.cancel()
	<-s.tickerDone

	var errs []error
	if err := s.worker.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.queue.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close queue: %w", err))
	}
	if err := s.session.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close inventory session: %w", err))
	}

	s.logger.Info(ctx, "scheduler stopped")
	return errors.Join(errs...)
}

// RunNow queues an immediate cycle. It returns ErrCycleQueued when one is
// already waiting.
func (s *Scheduler) RunNow(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return ErrNotRunning
	}
	return s.enqueue(ctx, s.queue, ReasonManual)
}

// RunOnce opens the session, runs one cycle inline and closes the session.
// Start and a second RunOnce are refused with ErrAlreadyRunning until it
// returns, and RunOnce is refused while the scheduler is started.
func (s *Scheduler) RunOnce(ctx context.Context) (types.CycleReport, error) {
	s.mu.Lock()
	if s.started || s.oneShot {
		s.mu.Unlock()
		return types.CycleReport{}, ErrAlreadyRunning
	}
	s.oneShot = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.oneShot = false
		s.mu.Unlock()
	}()

	if err := s.session.Open(ctx); err != nil {
		return types.CycleReport{}, fmt.Errorf("open inventory session: %w", err)
	}
	defer func() {
		if err := s.session.Close(); err != nil {
			s.logger.Warn(ctx, "close inventory session", logger.Error(err))
		}
	}()
	return s.CheckAll(ctx, uuid.NewString())
}

// Running reports whether Start has been called without a matching Stop.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

func (s *Scheduler) tick(ctx context.Context, q *queue.InMemoryQueue, done chan<- struct{}) {
	defer close(done)
	t := time.NewTicker(s.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := s.enqueue(ctx, q, ReasonTick); errors.Is(err, ErrCycleQueued) {
				metrics.RecordCycleSkipped()
				s.logger.Debug(ctx, "tick skipped, cycle already queued")
			}
		}
	}
}

func (s *Scheduler) enqueue(ctx context.Context, q *queue.InMemoryQueue, reason string) error {
	req := model.CycleRequest{ID: uuid.NewString(), Reason: reason, RequestedAt: s.clock.Now()}
	err := q.Enqueue(ctx, req)
	if errors.Is(err, queue.ErrFull) {
		return ErrCycleQueued
	}
	return err
}

// RunCycle implements worker.Runner. A cycle cut short by Stop is not an
// error.
func (s *Scheduler) RunCycle(ctx context.Context, r queue.Request) error {
	report, err := s.CheckAll(ctx, r.ID)
	if errors.Is(err, context.Canceled) {
		s.logger.Info(context.WithoutCancel(ctx), "check cycle interrupted",
			logger.String("cycle_id", r.ID),
			logger.Int("targets", report.Targets),
		)
		return nil
	}
	if err != nil {
		return err
	}
	s.logger.Info(ctx, "check cycle finished",
		logger.String("cycle_id", report.CycleID),
		logger.String("reason", r.Reason),
		logger.Int("targets", report.Targets),
		logger.Int("failed", report.Failed),
		logger.Int("new_items", report.NewItems),
		logger.Int("notified", report.Notified),
		logger.Duration("duration", report.Duration),
	)
	return nil
}

// CheckAll runs one cycle: every distinct target is checked in order, paced
// by the request delay. A failing target or watcher never aborts the cycle;
// only a failure to list registrations or a cancelled ctx returns an error.
func (s *Scheduler) CheckAll(ctx context.Context, cycleID string) (types.CycleReport, error) {
	start := s.clock.Now()
	report := types.CycleReport{CycleID: cycleID}
	log := s.logger.With(logger.String("cycle_id", cycleID))

	regs, err := s.regs.ListRegistrations(ctx, repository.Filter{})
	if err != nil {
		return report, fmt.Errorf("%w: %w", ErrListTargets, err)
	}
	targets := distinctTargets(regs)
	report.Targets = len(targets)
	metrics.UpdateTrackedTargets(len(targets))
	log.Debug(ctx, "check cycle started", logger.Int("targets", len(targets)))

	for _, t := range targets {
		if err := s.pacer.Wait(ctx); err != nil {
			break
		}

		items, err := s.detector.DetectNewItems(ctx, t)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			kind := Classify(err)
			report.Failed++
			s.recordFailure(t, kind, err)
			metrics.RecordTargetChecked(kind)
			log.Warn(ctx, "target check failed",
				logger.String("account_id", t.AccountID),
				logger.Int64("app_id", t.GameID),
				logger.String("kind", kind),
				logger.Error(err),
			)
			continue
		}

		s.recordSuccess(t, len(items))
		metrics.RecordTargetChecked("ok")
		if len(items) == 0 {
			continue
		}
		report.NewItems += len(items)
		metrics.RecordNewItems(len(items))

		sent, failed := s.fanOut(ctx, log, t, items)
		report.Notified += sent
		report.NotifyFailed += failed
	}

	report.Duration = s.clock.Now().Sub(start)
	metrics.RecordCycle(report.Duration.Seconds())
	s.statusMu.Lock()
	r := report
	s.lastReport = &r
	s.statusMu.Unlock()

	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

// fanOut notifies every watcher of the target's (account, game) pair.
func (s *Scheduler) fanOut(ctx context.Context, log logger.Logger, t model.Target, items []model.NewItem) (sent, failed int) {
	watchers, err := s.regs.ListRegistrations(ctx, repository.Filter{AccountID: t.AccountID, GameID: t.GameID})
	if err != nil {
		log.Error(ctx, "list watchers failed",
			logger.String("account_id", t.AccountID),
			logger.Int64("app_id", t.GameID),
			logger.Error(err),
		)
		return 0, 0
	}

	for _, w := range watchers {
		if err := s.notifier.Notify(ctx, w.WatcherID, t.AccountID, t.GameID, items); err != nil {
			failed++
			metrics.RecordNotification("failed")
			log.Warn(ctx, "notification failed",
				logger.Int64("watcher_id", w.WatcherID),
				logger.String("account_id", t.AccountID),
				logger.Int64("app_id", t.GameID),
				logger.Error(err),
			)
			continue
		}
		sent++
		metrics.RecordNotification("sent")
	}
	return sent, failed
}

// distinctTargets projects registrations onto (account, game) pairs in
// first-seen order; the context id comes from the first registration.
func distinctTargets(regs []model.Registration) []model.Target {
	seen := make(map[model.TargetKey]struct{}, len(regs))
	out := make([]model.Target, 0, len(regs))
	for _, r := range regs {
		t := r.Target()
		if _, ok := seen[t.Key()]; ok {
			continue
		}
		seen[t.Key()] = struct{}{}
		out = append(out, t)
	}
	return out
}

// Classify maps a target error onto a short, stable kind label.
func Classify(err error) string {
	switch {
	case errors.Is(err, steam.ErrPrivateInventory):
		return "private"
	case errors.Is(err, steam.ErrUpstream):
		return "upstream"
	case errors.Is(err, steam.ErrRetrievalExhausted):
		return "exhausted"
	case errors.Is(err, steam.ErrUnavailable):
		return "unavailable"
	case errors.Is(err, diff.ErrStore):
		return "store"
	default:
		return "other"
	}
}

func (s *Scheduler) status(t model.Target) *types.TargetStatus {
	st, ok := s.statuses[t.Key()]
	if !ok {
		st = &types.TargetStatus{AccountID: t.AccountID, GameID: t.GameID}
		s.statuses[t.Key()] = st
	}
	st.ContextID = t.ContextID
	return st
}

func (s *Scheduler) recordSuccess(t model.Target, newItems int) {
	now := s.clock.Now().UTC()
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	st := s.status(t)
	st.LastCheckedAt = now
	st.LastSuccessAt = now
	st.LastError = ""
	st.LastErrorKind = ""
	st.ConsecutiveFailures = 0
	st.LastNewItems = newItems
}

func (s *Scheduler) recordFailure(t model.Target, kind string, err error) {
	now := s.clock.Now().UTC()
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	st := s.status(t)
	st.LastCheckedAt = now
	st.LastError = err.Error()
	st.LastErrorKind = kind
	st.ConsecutiveFailures++
	st.LastNewItems = 0
}

// Statuses returns a copy of every target status, sorted by account then game.
func (s *Scheduler) Statuses() []types.TargetStatus {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	out := make([]types.TargetStatus, 0, len(s.statuses))
	for _, st := range s.statuses {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AccountID != out[j].AccountID {
			return out[i].AccountID < out[j].AccountID
		}
		return out[i].GameID < out[j].GameID
	})
	return out
}

// LastReport returns the report of the most recent cycle, if any.
func (s *Scheduler) LastReport() (types.CycleReport, bool) {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	if s.lastReport == nil {
		return types.CycleReport{}, false
	}
	return *s.lastReport, true
}
