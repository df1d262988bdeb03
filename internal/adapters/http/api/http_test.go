package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/okian/steamwatch/internal/adapters/http/api"
	"github.com/okian/steamwatch/internal/domain/model"
	"github.com/okian/steamwatch/internal/domain/scheduler"
	"github.com/okian/steamwatch/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

type mockDeps struct {
	readyErr  error
	regs      []model.Registration
	regsErr   error
	statuses  []types.TargetStatus
	report    *types.CycleReport
	runNowErr error
	runNows   int
}

func (m *mockDeps) Ready(context.Context) error { return m.readyErr }

func (m *mockDeps) Registrations(context.Context) ([]model.Registration, error) {
	return m.regs, m.regsErr
}

func (m *mockDeps) Statuses() []types.TargetStatus { return m.statuses }

func (m *mockDeps) LastReport() (types.CycleReport, bool) {
	if m.report == nil {
		return types.CycleReport{}, false
	}
	return *m.report, true
}

func (m *mockDeps) RunNow(context.Context) error {
	m.runNows++
	return m.runNowErr
}

func serve(deps *mockDeps, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	api.NewServer(deps).Handler().ServeHTTP(rec, req)
	return rec
}

func decode(rec *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return out
}

func TestHealth(t *testing.T) {
	Convey("Given the admin API", t, func() {
		deps := &mockDeps{}

		Convey("When the store answers", func() {
			rec := serve(deps, http.MethodGet, "/healthz")

			Convey("Then health is ok", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(decode(rec)["status"], ShouldEqual, "ok")
			})
		})

		Convey("When the store is down", func() {
			deps.readyErr = errors.New("store closed")
			rec := serve(deps, http.MethodGet, "/healthz")

			Convey("Then health reports 503", func() {
				So(rec.Code, ShouldEqual, http.StatusServiceUnavailable)
				So(decode(rec)["message"], ShouldEqual, "store closed")
			})
		})

		Convey("When scraping metrics", func() {
			_ = serve(deps, http.MethodGet, "/healthz")
			rec := serve(deps, http.MethodGet, "/metrics")

			Convey("Then the custom registry is exposed", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(rec.Body.String(), ShouldContainSubstring, "steamwatch_http_requests_total")
			})
		})

		Convey("When fetching the API document", func() {
			rec := serve(deps, http.MethodGet, "/openapi.yaml")

			Convey("Then it is served", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(rec.Body.String(), ShouldContainSubstring, "openapi:")
			})
		})

		Convey("When using the wrong method", func() {
			rec := serve(deps, http.MethodPost, "/healthz")

			Convey("Then the router rejects it", func() {
				So(rec.Code, ShouldEqual, http.StatusMethodNotAllowed)
			})
		})
	})
}

func TestTargets(t *testing.T) {
	Convey("Given registrations on two targets", t, func() {
		deps := &mockDeps{
			regs: []model.Registration{
				{WatcherID: 1, AccountID: "76561199109461098", GameID: 730},
				{WatcherID: 2, AccountID: "76561199109461098", GameID: 730},
				{WatcherID: 1, AccountID: "76561198000000000", GameID: 570},
			},
			statuses: []types.TargetStatus{
				{AccountID: "76561199109461098", GameID: 730, LastErrorKind: "private", ConsecutiveFailures: 2},
			},
		}

		Convey("When listing targets", func() {
			rec := serve(deps, http.MethodGet, "/targets")

			Convey("Then targets are grouped, sorted and carry their status", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				targets := decode(rec)["targets"].([]any)
				So(len(targets), ShouldEqual, 2)

				first := targets[0].(map[string]any)
				So(first["account_id"], ShouldEqual, "76561198000000000")
				So(first["watchers"], ShouldEqual, 1)
				So(first["status"], ShouldBeNil)

				second := targets[1].(map[string]any)
				So(second["watchers"], ShouldEqual, 2)
				status := second["status"].(map[string]any)
				So(status["last_error_kind"], ShouldEqual, "private")
				So(status["consecutive_failures"], ShouldEqual, 2)
			})
		})

		Convey("When the store fails", func() {
			deps.regsErr = errors.New("disk I/O error")
			rec := serve(deps, http.MethodGet, "/targets")

			Convey("Then a 500 is returned", func() {
				So(rec.Code, ShouldEqual, http.StatusInternalServerError)
				So(decode(rec)["code"], ShouldEqual, "store_error")
			})
		})

		Convey("When nothing is registered", func() {
			deps.regs = nil
			rec := serve(deps, http.MethodGet, "/targets")

			Convey("Then an empty list is returned", func() {
				So(strings.TrimSpace(rec.Body.String()), ShouldEqual, `{"targets":[]}`)
			})
		})
	})
}

func TestStats(t *testing.T) {
	Convey("Given no finished cycle", t, func() {
		deps := &mockDeps{}
		rec := serve(deps, http.MethodGet, "/stats")

		Convey("Then last_cycle is null", func() {
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(decode(rec)["last_cycle"], ShouldBeNil)
		})

		Convey("When a cycle has finished", func() {
			deps.report = &types.CycleReport{CycleID: "c-1", Targets: 3, Failed: 1, NewItems: 4}
			rec := serve(deps, http.MethodGet, "/stats")

			Convey("Then the report is returned", func() {
				last := decode(rec)["last_cycle"].(map[string]any)
				So(last["cycle_id"], ShouldEqual, "c-1")
				So(last["targets"], ShouldEqual, 3)
				So(last["new_items"], ShouldEqual, 4)
			})
		})
	})
}

func TestCheck(t *testing.T) {
	Convey("Given the check endpoint", t, func() {
		deps := &mockDeps{}

		Convey("When a cycle can be queued", func() {
			rec := serve(deps, http.MethodPost, "/check")

			Convey("Then it is accepted", func() {
				So(rec.Code, ShouldEqual, http.StatusAccepted)
				So(deps.runNows, ShouldEqual, 1)
			})
		})

		Convey("When a cycle is already waiting", func() {
			deps.runNowErr = scheduler.ErrCycleQueued
			rec := serve(deps, http.MethodPost, "/check")

			Convey("Then it conflicts", func() {
				So(rec.Code, ShouldEqual, http.StatusConflict)
				So(decode(rec)["code"], ShouldEqual, "already_queued")
			})
		})

		Convey("When the scheduler is stopped", func() {
			deps.runNowErr = scheduler.ErrNotRunning
			rec := serve(deps, http.MethodPost, "/check")

			Convey("Then it is unavailable", func() {
				So(rec.Code, ShouldEqual, http.StatusServiceUnavailable)
			})
		})

		Convey("When queuing fails otherwise", func() {
			deps.runNowErr = errors.New("boom")
			rec := serve(deps, http.MethodPost, "/check")

			Convey("Then a 500 is returned", func() {
				So(rec.Code, ShouldEqual, http.StatusInternalServerError)
			})
		})
	})
}
