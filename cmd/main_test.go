package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/leaderboard/internal/config"
	"github.com/okian/leaderboard/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	_ = logger.SetLevelString("error")
}

func TestConfigWiring(t *testing.T) {
	convey.Convey("Given configuration from the environment", t, func() {
		t.Setenv("LEADERBOARD_ADDR", "127.0.0.1:0")
		t.Setenv("LEADERBOARD_MAX_TOP_LIMIT", "3")
		t.Setenv("LEADERBOARD_PERSIST_MODE", "async")

		cfg, err := config.Load(context.Background())
		convey.So(err, convey.ShouldBeNil)

		convey.Convey("When the service and handler are built from it", func() {
			ctx := context.Background()
			svc := newService(cfg, logger.Nop())
			convey.So(svc.Start(ctx), convey.ShouldBeNil)
			defer svc.Stop()
			h := newHandler(ctx, cfg, svc, logger.Nop())

			for _, id := range []string{"a", "b", "c", "d", "e"} {
				body := `{"playerId":"` + id + `","name":"N","score":1}`
				r := httptest.NewRequest(http.MethodPost, "/leaderboard", strings.NewReader(body))
				w := httptest.NewRecorder()
				h.ServeHTTP(w, r)
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
			}

			convey.Convey("Then the configured top limit should apply", func() {
				r := httptest.NewRequest(http.MethodGet, "/leaderboard/top?limit=50", nil)
				w := httptest.NewRecorder()
				h.ServeHTTP(w, r)
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(strings.Count(w.Body.String(), `"rank"`), convey.ShouldEqual, 3)
			})

			convey.Convey("Then the service should report the configured mode", func() {
				convey.So(svc.GetStats()["persistMode"], convey.ShouldEqual, "async")
			})

			convey.Convey("Then the docs should be served", func() {
				r := httptest.NewRequest(http.MethodGet, "/openapi.yaml", nil)
				w := httptest.NewRecorder()
				h.ServeHTTP(w, r)
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
			})
		})
	})
}

func TestRun(t *testing.T) {
	convey.Convey("Given a valid configuration", t, func() {
		cfg := config.New()
		cfg.Addr = "127.0.0.1:0"

		convey.Convey("When the context is cancelled", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
			defer cancel()

			convey.Convey("Then run should shut down cleanly", func() {
				convey.So(run(ctx, cfg), convey.ShouldBeNil)
			})
		})
	})

	convey.Convey("Given a configuration the service rejects", t, func() {
		cfg := config.New()
		cfg.Addr = "127.0.0.1:0"
		cfg.PersistMode = "eventually"

		convey.Convey("Then run should return the start error", func() {
			convey.So(run(context.Background(), cfg), convey.ShouldNotBeNil)
		})
	})
}

func TestMetricsUpdaters(t *testing.T) {
	convey.Convey("Given the background updaters", t, func() {
		convey.Convey("Then they should return once the context ends", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			cfg := config.New()
			svc := newService(cfg, logger.Nop())

			convey.So(func() { startSystemMetricsUpdater(ctx) }, convey.ShouldNotPanic)
			convey.So(func() { startServiceMetricsUpdater(ctx, svc) }, convey.ShouldNotPanic)
			convey.So(updateSystemMetrics, convey.ShouldNotPanic)
		})
	})
}
