package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/okian/steamwatch/internal/adapters/mq/queue"
	"github.com/okian/steamwatch/internal/adapters/repository"
	"github.com/okian/steamwatch/internal/adapters/steam"
	"github.com/okian/steamwatch/internal/domain/diff"
	"github.com/okian/steamwatch/internal/domain/model"
	"github.com/okian/steamwatch/pkg/clock"
	"github.com/okian/steamwatch/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init(logger.WithOutput(io.Discard))
}

const (
	acctA = "76561199109461098"
	acctB = "76561198000000001"
)

// mockDetector returns per-target results and counts calls.
type mockDetector struct {
	mu      sync.Mutex
	items   map[model.TargetKey][]model.NewItem
	errs    map[model.TargetKey]error
	calls   map[model.TargetKey]int
	order   []model.TargetKey
	block   chan struct{}
	entered chan struct{}
}

func newMockDetector() *mockDetector {
	return &mockDetector{
		items:   make(map[model.TargetKey][]model.NewItem),
		errs:    make(map[model.TargetKey]error),
		calls:   make(map[model.TargetKey]int),
		entered: make(chan struct{}, 16),
	}
}

func (m *mockDetector) DetectNewItems(ctx context.Context, t model.Target) ([]model.NewItem, error) {
	m.mu.Lock()
	m.calls[t.Key()]++
	m.order = append(m.order, t.Key())
	items, err, block := m.items[t.Key()], m.errs[t.Key()], m.block
	m.mu.Unlock()

	m.entered <- struct{}{}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return items, err
}

func (m *mockDetector) callCount(k model.TargetKey) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[k]
}

type notifyCall struct {
	watcherID int64
	accountID string
	gameID    int64
	items     int
}

type mockNotifier struct {
	mu    sync.Mutex
	calls []notifyCall
	fail  map[int64]error
}

func (m *mockNotifier) Notify(_ context.Context, watcherID int64, accountID string, gameID int64, items []model.NewItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, notifyCall{watcherID, accountID, gameID, len(items)})
	return m.fail[watcherID]
}

func (m *mockNotifier) recorded() []notifyCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]notifyCall, len(m.calls))
	copy(out, m.calls)
	return out
}

type mockSession struct {
	mu     sync.Mutex
	opens  int
	closes int
	err    error
}

func (m *mockSession) Open(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opens++
	return m.err
}

func (m *mockSession) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closes++
	return nil
}

func (m *mockSession) counts() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens, m.closes
}

func register(store *repository.MemoryStore, watcher int64, account string, game int64) {
	_, err := store.AddRegistration(context.Background(), model.Registration{
		WatcherID: watcher, AccountID: account, GameID: game, ContextID: 2,
	})
	So(err, ShouldBeNil)
}

func newItems(n int) []model.NewItem {
	out := make([]model.NewItem, n)
	for i := range out {
		out[i] = model.NewItem{Item: model.Item{AssetID: fmt.Sprint(i)}, DisplayName: "item"}
	}
	return out
}

func keyOf(account string, game int64) model.TargetKey {
	return model.TargetKey{AccountID: account, GameID: game}
}

func TestCheckAllFanOut(t *testing.T) {
	Convey("Given five watchers of the same target", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		for w := int64(1); w <= 5; w++ {
			register(store, w, acctA, 730)
		}
		det := newMockDetector()
		det.items[keyOf(acctA, 730)] = newItems(2)
		notifier := &mockNotifier{}
		fake := clock.NewFake(time.Unix(0, 0))
		s := New(det, store, notifier, &mockSession{}, WithClock(fake))

		Convey("When one cycle runs", func() {
			report, err := s.CheckAll(ctx, "cycle-1")

			Convey("Then the target is fetched once and every watcher is notified once", func() {
				So(err, ShouldBeNil)
				So(det.callCount(keyOf(acctA, 730)), ShouldEqual, 1)
				So(len(notifier.recorded()), ShouldEqual, 5)
				So(report.Targets, ShouldEqual, 1)
				So(report.NewItems, ShouldEqual, 2)
				So(report.Notified, ShouldEqual, 5)
				So(report.CycleID, ShouldEqual, "cycle-1")
			})
		})
	})
}

func TestCheckAllContainsFailures(t *testing.T) {
	Convey("Given a private target listed before a healthy one", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		register(store, 1, acctA, 730)
		register(store, 2, acctB, 730)
		det := newMockDetector()
		det.errs[keyOf(acctA, 730)] = steam.ErrPrivateInventory
		det.items[keyOf(acctB, 730)] = newItems(1)
		notifier := &mockNotifier{}
		s := New(det, store, notifier, &mockSession{}, WithClock(clock.NewFake(time.Unix(0, 0))))

		Convey("When one cycle runs", func() {
			report, err := s.CheckAll(ctx, "c")

			Convey("Then the healthy target is still checked and notified", func() {
				So(err, ShouldBeNil)
				So(report.Failed, ShouldEqual, 1)
				So(det.callCount(keyOf(acctB, 730)), ShouldEqual, 1)
				calls := notifier.recorded()
				So(len(calls), ShouldEqual, 1)
				So(calls[0].watcherID, ShouldEqual, 2)
			})

			Convey("Then the failure is visible in the target status", func() {
				statuses := s.Statuses()
				So(len(statuses), ShouldEqual, 2)
				var private bool
				for _, st := range statuses {
					if st.AccountID == acctA {
						private = true
						So(st.LastErrorKind, ShouldEqual, "private")
						So(st.ConsecutiveFailures, ShouldEqual, 1)
						So(st.LastSuccessAt.IsZero(), ShouldBeTrue)
					}
				}
				So(private, ShouldBeTrue)
			})

			Convey("And a second failing cycle increments the failure count", func() {
				_, _ = s.CheckAll(ctx, "c2")
				for _, st := range s.Statuses() {
					if st.AccountID == acctA {
						So(st.ConsecutiveFailures, ShouldEqual, 2)
					}
				}
			})
		})

		Convey("When a watcher's notification fails", func() {
			register(store, 3, acctB, 730)
			register(store, 4, acctB, 730)
			notifier.fail = map[int64]error{3: errors.New("blocked by user")}
			report, err := s.CheckAll(ctx, "c")

			Convey("Then the other watchers are still notified", func() {
				So(err, ShouldBeNil)
				So(len(notifier.recorded()), ShouldEqual, 3)
				So(report.Notified, ShouldEqual, 2)
				So(report.NotifyFailed, ShouldEqual, 1)
			})
		})
	})
}

func TestCheckAllGameFilter(t *testing.T) {
	Convey("Given watchers of the same account on different games", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		register(store, 1, acctA, 730)
		register(store, 2, acctA, 570)
		det := newMockDetector()
		det.items[keyOf(acctA, 730)] = newItems(1)
		notifier := &mockNotifier{}
		s := New(det, store, notifier, &mockSession{}, WithClock(clock.NewFake(time.Unix(0, 0))))

		Convey("When only one game has new items", func() {
			_, err := s.CheckAll(ctx, "c")

			Convey("Then only its watcher is notified", func() {
				So(err, ShouldBeNil)
				So(det.callCount(keyOf(acctA, 570)), ShouldEqual, 1)
				calls := notifier.recorded()
				So(len(calls), ShouldEqual, 1)
				So(calls[0].watcherID, ShouldEqual, 1)
				So(calls[0].gameID, ShouldEqual, 730)
			})
		})
	})
}

func TestCheckAllPacing(t *testing.T) {
	Convey("Given three distinct targets and a 3s request delay", t, func() {
		store := repository.NewMemoryStore()
		register(store, 1, acctA, 730)
		register(store, 1, acctA, 570)
		register(store, 2, acctB, 730)
		register(store, 3, acctA, 730)
		det := newMockDetector()
		fake := clock.NewFake(time.Unix(0, 0))
		s := New(det, store, &mockNotifier{}, &mockSession{}, WithClock(fake), WithRequestDelay(3*time.Second))

		Convey("When one cycle runs", func() {
			report, err := s.CheckAll(context.Background(), "c")

			Convey("Then targets are checked in first-seen order, spaced by the delay", func() {
				So(err, ShouldBeNil)
				So(report.Targets, ShouldEqual, 3)
				So(det.order, ShouldResemble, []model.TargetKey{keyOf(acctA, 730), keyOf(acctA, 570), keyOf(acctB, 730)})
				So(fake.TotalSlept(), ShouldEqual, 6*time.Second)
				So(report.Duration, ShouldEqual, 6*time.Second)
			})
		})
	})
}

// inventoryFetcher serves whatever assets are currently set.
type inventoryFetcher struct {
	mu     sync.Mutex
	assets []model.Item
}

func (f *inventoryFetcher) set(assetIDs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assets = f.assets[:0]
	for _, id := range assetIDs {
		f.assets = append(f.assets, model.Item{AssetID: id, ClassID: "c" + id, InstanceID: "0"})
	}
}

func (f *inventoryFetcher) Fetch(context.Context, string, int64, int64, int) (model.Inventory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return model.Inventory{Assets: append([]model.Item(nil), f.assets...)}, nil
}

func TestLateWatcherDoesNotHideItems(t *testing.T) {
	Convey("Given a watched target with a snapshot from an earlier cycle", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		fetcher := &inventoryFetcher{}
		engine := diff.NewEngine(fetcher, store)
		notifier := &mockNotifier{}
		s := New(engine, store, notifier, &mockSession{}, WithRequestDelay(0))
		target := model.Target{AccountID: acctA, GameID: 730, ContextID: 2}

		fetcher.set("1")
		register(store, 1, acctA, 730)
		_, err := engine.Seed(ctx, target)
		So(err, ShouldBeNil)
		_, err = s.CheckAll(ctx, "c1")
		So(err, ShouldBeNil)
		So(notifier.recorded(), ShouldBeEmpty)

		Convey("When an item appears and a second watcher registers before the next cycle", func() {
			fetcher.set("1", "2")
			register(store, 2, acctA, 730)
			_, err := engine.Seed(ctx, target)
			So(err, ShouldBeNil)

			report, err := s.CheckAll(ctx, "c2")

			Convey("Then the next cycle still reports the item to both watchers", func() {
				So(err, ShouldBeNil)
				So(report.NewItems, ShouldEqual, 1)
				calls := notifier.recorded()
				So(len(calls), ShouldEqual, 2)
				So(calls[0].watcherID, ShouldEqual, 1)
				So(calls[0].items, ShouldEqual, 1)
			})
		})
	})
}

func TestClassify(t *testing.T) {
	cases := map[string]error{
		"private":     fmt.Errorf("x: %w", steam.ErrPrivateInventory),
		"upstream":    steam.ErrUpstream,
		"exhausted":   fmt.Errorf("%w: %w", steam.ErrRetrievalExhausted, steam.ErrUnavailable),
		"unavailable": steam.ErrUnavailable,
		"store":       fmt.Errorf("%w: disk", diff.ErrStore),
		"other":       errors.New("weird"),
	}
	for want, err := range cases {
		if got := Classify(err); got != want {
			t.Errorf("Classify(%v) = %q, want %q", err, got, want)
		}
	}
}

func TestSchedulerLifecycle(t *testing.T) {
	Convey("Given a scheduler with a long interval", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		register(store, 1, acctA, 730)
		det := newMockDetector()
		session := &mockSession{}
		s := New(det, store, &mockNotifier{}, session,
			WithInterval(time.Hour),
			WithRequestDelay(0),
			WithShutdownTimeout(2*time.Second),
		)

		Convey("Stop before Start is a no-op", func() {
			So(s.Stop(), ShouldBeNil)
			opens, closes := session.counts()
			So(opens, ShouldEqual, 0)
			So(closes, ShouldEqual, 0)
		})

		Convey("RunNow before Start is rejected", func() {
			So(s.RunNow(ctx), ShouldEqual, ErrNotRunning)
		})

		Convey("When started", func() {
			So(s.Start(ctx), ShouldBeNil)
			So(s.Running(), ShouldBeTrue)

			Convey("A second Start is rejected", func() {
				So(s.Start(ctx), ShouldEqual, ErrAlreadyRunning)
				So(s.Stop(), ShouldBeNil)
			})

			Convey("RunNow triggers a cycle", func() {
				So(s.RunNow(ctx), ShouldBeNil)
				select {
				case <-det.entered:
				case <-time.After(2 * time.Second):
					t.Fatal("cycle did not run")
				}
				So(s.Stop(), ShouldBeNil)
				So(det.callCount(keyOf(acctA, 730)), ShouldEqual, 1)
			})

			Convey("Stopping twice releases the session exactly once", func() {
				So(s.Stop(), ShouldBeNil)
				So(s.Stop(), ShouldBeNil)
				So(s.Running(), ShouldBeFalse)
				opens, closes := session.counts()
				So(opens, ShouldEqual, 1)
				So(closes, ShouldEqual, 1)
			})
		})

		Convey("When a cycle is running and another is already queued", func() {
			det.block = make(chan struct{})
			So(s.Start(ctx), ShouldBeNil)
			So(s.RunNow(ctx), ShouldBeNil)
			<-det.entered
			So(s.RunNow(ctx), ShouldBeNil)

			Convey("Then a further request is refused", func() {
				So(s.RunNow(ctx), ShouldEqual, ErrCycleQueued)
			})

			Convey("Then Stop cancels the blocked cycle", func() {
				So(s.Stop(), ShouldBeNil)
				_, closes := session.counts()
				So(closes, ShouldEqual, 1)
			})

			Reset(func() {
				_ = s.Stop()
			})
		})

		Convey("When the session cannot be opened", func() {
			session.err = errors.New("bad proxy")

			Convey("Then Start fails and the scheduler stays stopped", func() {
				So(s.Start(ctx), ShouldNotBeNil)
				So(s.Running(), ShouldBeFalse)
			})
		})
	})
}

func TestRunOnce(t *testing.T) {
	Convey("Given a stopped scheduler", t, func() {
		store := repository.NewMemoryStore()
		register(store, 1, acctA, 730)
		det := newMockDetector()
		det.items[keyOf(acctA, 730)] = newItems(3)
		session := &mockSession{}
		notifier := &mockNotifier{}
		s := New(det, store, notifier, session, WithRequestDelay(0))

		Convey("When RunOnce is called", func() {
			report, err := s.RunOnce(context.Background())

			Convey("Then one cycle runs inside its own session", func() {
				So(err, ShouldBeNil)
				So(report.NewItems, ShouldEqual, 3)
				So(len(notifier.recorded()), ShouldEqual, 1)
				opens, closes := session.counts()
				So(opens, ShouldEqual, 1)
				So(closes, ShouldEqual, 1)
				last, ok := s.LastReport()
				So(ok, ShouldBeTrue)
				So(last.CycleID, ShouldEqual, report.CycleID)
			})
		})
	})
}

func TestRunOnceExclusive(t *testing.T) {
	Convey("Given a one-shot cycle blocked on its first target", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		register(store, 1, acctA, 730)
		det := newMockDetector()
		det.block = make(chan struct{})
		session := &mockSession{}
		s := New(det, store, &mockNotifier{}, session, WithRequestDelay(0), WithInterval(time.Hour))

		done := make(chan error, 1)
		go func() {
			_, err := s.RunOnce(ctx)
			done <- err
		}()
		<-det.entered

		Convey("Then Start and a second RunOnce are refused until it returns", func() {
			So(s.Start(ctx), ShouldEqual, ErrAlreadyRunning)
			_, err := s.RunOnce(ctx)
			So(err, ShouldEqual, ErrAlreadyRunning)

			close(det.block)
			So(<-done, ShouldBeNil)
			opens, closes := session.counts()
			So(opens, ShouldEqual, 1)
			So(closes, ShouldEqual, 1)

			So(s.Start(ctx), ShouldBeNil)
			So(s.Stop(), ShouldBeNil)
		})
	})
}

func TestRunCycleCancelled(t *testing.T) {
	Convey("Given a scheduler with a registered target", t, func() {
		store := repository.NewMemoryStore()
		register(store, 1, acctA, 730)
		det := newMockDetector()
		s := New(det, store, &mockNotifier{}, &mockSession{}, WithRequestDelay(time.Second))

		Convey("When the cycle context is cancelled by a shutdown", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			err := s.RunCycle(ctx, queue.Request{ID: "c", Reason: ReasonTick})

			Convey("Then the cycle ends cleanly without checking anything", func() {
				So(err, ShouldBeNil)
				So(det.callCount(keyOf(acctA, 730)), ShouldEqual, 0)
			})
		})

		Convey("When listing registrations fails for another reason", func() {
			s := New(det, failingRegs{}, &mockNotifier{}, &mockSession{})
			err := s.RunCycle(context.Background(), queue.Request{ID: "c"})

			Convey("Then the error is returned", func() {
				So(errors.Is(err, ErrListTargets), ShouldBeTrue)
			})
		})
	})
}

type failingRegs struct{}

func (failingRegs) ListRegistrations(context.Context, repository.Filter) ([]model.Registration, error) {
	return nil, errors.New("database is locked")
}
