package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/leaderboard/internal/adapters/http/api"
	service "github.com/okian/leaderboard/internal/app"
	"github.com/okian/leaderboard/internal/domain/dedupe"
	"github.com/okian/leaderboard/internal/domain/model"
	"github.com/okian/leaderboard/internal/domain/types"
	"github.com/okian/leaderboard/pkg/logger"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type submitBody struct {
	Message string       `json:"message"`
	Player  types.Player `json:"player"`
}

func newMux(deps api.Dependencies, stats api.StatsProvider, opts ...api.Option) *http.ServeMux {
	opts = append([]api.Option{api.WithLogger(logger.Nop())}, opts...)
	mux := http.NewServeMux()
	api.NewServer(deps, stats, opts...).Register(context.Background(), mux)
	return mux
}

func startedService(t *testing.T) *service.Service {
	t.Helper()
	svc := service.New(service.WithLogger(logger.Nop()))
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start service: %v", err)
	}
	t.Cleanup(svc.Stop)
	return svc
}

func do(mux http.Handler, method, target, body string, headers ...string) *httptest.ResponseRecorder {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		r.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)
	return w
}

func decode[T any](w *httptest.ResponseRecorder) T {
	var v T
	So(json.NewDecoder(bytes.NewReader(w.Body.Bytes())).Decode(&v), ShouldBeNil)
	return v
}

func TestServer_Leaderboard(t *testing.T) {
	Convey("Given an API server backed by a started service", t, func() {
		svc := startedService(t)
		mux := newMux(svc, svc, api.WithRateLimit(0, 0))

		Convey("When a score is submitted", func() {
			w := do(mux, http.MethodPost, "/leaderboard", `{"playerId":"p1","name":"Ann","score":42.5}`)

			Convey("Then it should be accepted", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				body := decode[submitBody](w)
				So(body.Message, ShouldEqual, "Score submitted successfully")
				So(body.Player.PlayerID, ShouldEqual, "p1")
				So(body.Player.Name, ShouldEqual, "Ann")
				So(body.Player.Score, ShouldEqual, 42.5)
				So(body.Player.CreatedAt, ShouldNotBeEmpty)
			})

			Convey("And a lower score is submitted for the same player", func() {
				w := do(mux, http.MethodPost, "/leaderboard", `{"playerId":"p1","name":"Annie","score":10}`)

				Convey("Then the best score should be kept and the name refreshed", func() {
					So(w.Code, ShouldEqual, http.StatusOK)
					body := decode[submitBody](w)
					So(body.Player.Score, ShouldEqual, 42.5)
					So(body.Player.Name, ShouldEqual, "Annie")
				})
			})

			Convey("And the player's rank is requested", func() {
				do(mux, http.MethodPost, "/leaderboard", `{"playerId":"p2","name":"Bob","score":99}`)
				w := do(mux, http.MethodGet, "/leaderboard/rank/p1", "")

				Convey("Then it should count the better player", func() {
					So(w.Code, ShouldEqual, http.StatusOK)
					st := decode[types.Standing](w)
					So(st.Rank, ShouldEqual, 2)
					So(st.Player.PlayerID, ShouldEqual, "p1")
					So(st.Player.Score, ShouldEqual, 42.5)
				})
			})
		})

		Convey("When several players have scored", func() {
			for _, body := range []string{
				`{"playerId":"a","name":"A","score":5}`,
				`{"playerId":"b","name":"B","score":50}`,
				`{"playerId":"c","name":"C","score":0}`,
			} {
				So(do(mux, http.MethodPost, "/leaderboard", body).Code, ShouldEqual, http.StatusOK)
			}

			Convey("Then top should list them best first", func() {
				w := do(mux, http.MethodGet, "/leaderboard/top?limit=2", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				entries := decode[[]types.Entry](w)
				So(entries, ShouldHaveLength, 2)
				So(entries[0], ShouldResemble, types.Entry{Rank: 1, PlayerID: "b", Name: "B", Score: 50})
				So(entries[1].PlayerID, ShouldEqual, "a")
			})

			Convey("Then an invalid limit should fall back to the default", func() {
				for _, q := range []string{"", "?limit=abc", "?limit=0", "?limit=-3"} {
					w := do(mux, http.MethodGet, "/leaderboard/top"+q, "")
					So(w.Code, ShouldEqual, http.StatusOK)
					So(decode[[]types.Entry](w), ShouldHaveLength, 3)
				}
			})

			Convey("Then an empty board should not be null", func() {
				empty := startedService(t)
				w := do(newMux(empty, empty), http.MethodGet, "/leaderboard/top", "")
				So(strings.TrimSpace(w.Body.String()), ShouldEqual, "[]")
			})
		})

		Convey("When the player is unknown", func() {
			w := do(mux, http.MethodGet, "/leaderboard/rank/ghost", "")

			Convey("Then it should return 404", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
				So(decode[errorBody](w).Code, ShouldEqual, "not_found")
			})
		})

		Convey("When the submission is invalid", func() {
			cases := []struct {
				body string
				code string
			}{
				{`{"name":"A","score":1}`, "missing_fields"},
				{`{"playerId":"p","score":1}`, "missing_fields"},
				{`{"playerId":"p","name":"  ","score":1}`, "missing_fields"},
				{`{"playerId":"p","name":"A"}`, "missing_fields"},
				{`{"playerId":"p","name":"A","score":null}`, "missing_fields"},
				{`{"playerId":"p","name":"A","score":"10"}`, "invalid_score"},
				{`{"playerId":"p","name":"A","score":true}`, "invalid_score"},
				{`{"playerId":"p","name":"A","score":-1}`, "invalid_score"},
				{`{"playerId":"p","name":"A","score":1e999}`, "invalid_score"},
				{`{"playerId":`, "bad_request"},
			}

			Convey("Then each should be rejected with its code", func() {
				for _, tc := range cases {
					w := do(mux, http.MethodPost, "/leaderboard", tc.body)
					So(w.Code, ShouldEqual, http.StatusBadRequest)
					So(decode[errorBody](w).Code, ShouldEqual, tc.code)
				}
				So(svc.GetStats()["totalPlayers"], ShouldEqual, 0)
			})
		})

		Convey("When using the wrong method", func() {
			w := do(mux, http.MethodGet, "/leaderboard", "")

			Convey("Then the mux should refuse it", func() {
				So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
			})
		})

		Convey("When probing operational endpoints", func() {
			Convey("Then healthz should report the store as up", func() {
				w := do(mux, http.MethodGet, "/healthz", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"status":"ok"`)
			})

			Convey("Then stats should be JSON", func() {
				w := do(mux, http.MethodGet, "/stats", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				stats := decode[map[string]any](w)
				So(stats["started"], ShouldEqual, true)
			})

			Convey("Then metrics should be exposed", func() {
				do(mux, http.MethodGet, "/leaderboard/top", "")
				w := do(mux, http.MethodGet, "/metrics", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, "http_requests_total")
			})
		})
	})
}

func TestServer_RequestID(t *testing.T) {
	Convey("Given an API server", t, func() {
		svc := startedService(t)
		mux := newMux(svc, svc)

		Convey("When the client sends a request id", func() {
			w := do(mux, http.MethodGet, "/healthz", "", api.RequestIDHeader, "abc-123")

			Convey("Then it should be echoed", func() {
				So(w.Header().Get(api.RequestIDHeader), ShouldEqual, "abc-123")
			})
		})

		Convey("When the client sends none", func() {
			w := do(mux, http.MethodGet, "/leaderboard/top", "")

			Convey("Then one should be generated", func() {
				So(w.Header().Get(api.RequestIDHeader), ShouldHaveLength, 36)
			})
		})
	})
}

func TestServer_Idempotency(t *testing.T) {
	Convey("Given an API server", t, func() {
		svc := startedService(t)
		mux := newMux(svc, svc)
		body := `{"playerId":"p1","name":"Ann","score":10}`

		Convey("When a submission is retried with the same key", func() {
			first := do(mux, http.MethodPost, "/leaderboard", body, api.IdempotencyKeyHeader, "k1")
			do(mux, http.MethodPost, "/leaderboard", `{"playerId":"p1","name":"Ann","score":20}`)
			second := do(mux, http.MethodPost, "/leaderboard", body, api.IdempotencyKeyHeader, "k1")

			Convey("Then the first response should be replayed", func() {
				So(first.Code, ShouldEqual, http.StatusOK)
				So(second.Code, ShouldEqual, http.StatusOK)
				So(second.Header().Get("Idempotent-Replayed"), ShouldEqual, "true")
				So(decode[submitBody](second).Player.Score, ShouldEqual, 10)
			})
		})

		Convey("When the key is reused with a different body", func() {
			do(mux, http.MethodPost, "/leaderboard", body, api.IdempotencyKeyHeader, "k2")
			w := do(mux, http.MethodPost, "/leaderboard", `{"playerId":"p1","name":"Ann","score":11}`,
				api.IdempotencyKeyHeader, "k2")

			Convey("Then it should conflict", func() {
				So(w.Code, ShouldEqual, http.StatusConflict)
				So(decode[errorBody](w).Code, ShouldEqual, "idempotency_conflict")
			})
		})
	})
}

func TestServer_RateLimit(t *testing.T) {
	Convey("Given a server allowing two requests per client", t, func() {
		svc := startedService(t)
		mux := newMux(svc, svc, api.WithRateLimit(1, 2))

		Convey("When a client exceeds the budget", func() {
			codes := make([]int, 0, 3)
			for range 3 {
				codes = append(codes, do(mux, http.MethodGet, "/leaderboard/top", "").Code)
			}

			Convey("Then the extra request should get 429", func() {
				So(codes, ShouldResemble, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests})
				w := do(mux, http.MethodGet, "/leaderboard/top", "")
				So(decode[errorBody](w).Code, ShouldEqual, "rate_limited")
				So(w.Header().Get("Retry-After"), ShouldEqual, "60")
			})

			Convey("Then other clients and health probes should be unaffected", func() {
				So(do(mux, http.MethodGet, "/leaderboard/top", "", "X-Forwarded-For", "10.0.0.9").Code, ShouldEqual, http.StatusOK)
				So(do(mux, http.MethodGet, "/healthz", "").Code, ShouldEqual, http.StatusOK)
			})
		})
	})
}

func TestServer_NotStarted(t *testing.T) {
	Convey("Given a server whose service is not started", t, func() {
		svc := service.New(service.WithLogger(logger.Nop()))
		mux := newMux(svc, svc)

		Convey("Then reads and health should be unavailable", func() {
			w := do(mux, http.MethodGet, "/leaderboard/top", "")
			So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
			So(decode[errorBody](w).Code, ShouldEqual, "unavailable")
			So(do(mux, http.MethodGet, "/healthz", "").Code, ShouldEqual, http.StatusServiceUnavailable)
		})
	})
}

// failingDeps fails every submission and records idempotency calls.
type failingDeps struct {
	unrecorded []string
}

func (f *failingDeps) SeenAndRecord(context.Context, string, string) (dedupe.Entry, bool) {
	return dedupe.Entry{}, false
}
func (f *failingDeps) Complete(context.Context, string, model.PlayerRecord) {}
func (f *failingDeps) Unrecord(_ context.Context, key string) {
	f.unrecorded = append(f.unrecorded, key)
}
func (f *failingDeps) Submit(context.Context, string, string, float64) (model.PlayerRecord, error) {
	return model.PlayerRecord{}, errors.New("disk on fire")
}
func (f *failingDeps) Top(context.Context, int) ([]model.Standing, error) { return nil, nil }
func (f *failingDeps) RankOf(context.Context, string) (model.Standing, error) {
	return model.Standing{}, model.ErrNotFound
}
func (f *failingDeps) Ping(context.Context) error { return nil }

func TestServer_InternalError(t *testing.T) {
	Convey("Given a server whose submissions fail", t, func() {
		deps := &failingDeps{}
		mux := newMux(deps, nil)

		Convey("When a keyed submission fails", func() {
			w := do(mux, http.MethodPost, "/leaderboard", `{"playerId":"p","name":"A","score":1}`,
				api.IdempotencyKeyHeader, "k")

			Convey("Then the key should be released and details hidden", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				body := decode[errorBody](w)
				So(body.Code, ShouldEqual, "internal_error")
				So(body.Message, ShouldNotContainSubstring, "disk")
				So(deps.unrecorded, ShouldResemble, []string{"k"})
			})
		})

		Convey("When stats has no provider", func() {
			w := do(mux, http.MethodGet, "/stats", "")

			Convey("Then it should return an empty object", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(strings.TrimSpace(w.Body.String()), ShouldEqual, "{}")
			})
		})
	})
}
