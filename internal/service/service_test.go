package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/USSTM/microservice/internal/apipool"
	"github.com/USSTM/microservice/internal/config"
	"github.com/USSTM/microservice/internal/crash"
	"github.com/USSTM/microservice/internal/specs"
	"github.com/USSTM/microservice/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func notManaged() (string, error) { return "bash", nil }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Deploy = filepath.Join(t.TempDir(), config.DeployConfigName)
	cfg.Server.Port = 8080
	return cfg
}

func writeDeployConfig(t *testing.T, cfg *config.Config, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(cfg.Deploy, []byte(content), 0644))
}

func newLoadedService(t *testing.T, cfg *config.Config, opts ...Option) *API {
	t.Helper()
	opts = append([]Option{WithParentName(notManaged), WithEC2Detector(testutil.StaticEC2Detector(false))}, opts...)
	a, err := New(cfg, opts...)
	require.NoError(t, err)
	require.NoError(t, a.LoadAPIs(testutil.NewSpecDir(t), nil))
	return a
}

func TestSetup_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("before LoadAPIs", func(t *testing.T) {
		a, err := New(testConfig(t))
		require.NoError(t, err)

		_, err = a.Setup(ctx, []string{"orders"})
		assert.ErrorIs(t, err, ErrNotLoaded)
	})

	t.Run("empty serve list", func(t *testing.T) {
		a := newLoadedService(t, testConfig(t))

		_, err := a.Setup(ctx, nil)
		assert.ErrorIs(t, err, ErrEmptyServeList)
		assert.ErrorIs(t, a.Start(ctx), ErrEmptyServeList)
	})

	t.Run("unknown api", func(t *testing.T) {
		a := newLoadedService(t, testConfig(t))

		_, err := a.Setup(ctx, []string{"billing"})
		require.ErrorIs(t, err, ErrUnknownAPI)
		assert.Contains(t, err.Error(), "can't find billing.yaml (swagger file) in the api directory")
	})

	t.Run("after clients were loaded", func(t *testing.T) {
		a := newLoadedService(t, testConfig(t))
		require.NoError(t, a.LoadClients(ctx, testutil.NewSpecDir(t), []string{"users"}))

		_, err := a.Setup(ctx, []string{"orders"})
		assert.ErrorIs(t, err, apipool.ErrAlreadyMerged)
	})

	t.Run("twice", func(t *testing.T) {
		a := newLoadedService(t, testConfig(t))

		_, err := a.Setup(ctx, []string{"orders"})
		require.NoError(t, err)
		_, err = a.Setup(ctx, []string{"orders"})
		assert.ErrorIs(t, err, ErrAlreadySetup)
	})
}

func TestSetup_RetryAfterFailure(t *testing.T) {
	ctx := context.Background()
	dir := testutil.NewSpecDir(t)
	broken := testutil.WriteSpec(t, dir, "broken", "swagger: '2.0'\ninfo: [not, a, mapping]\n")

	a, err := New(testConfig(t), WithParentName(notManaged), WithEC2Detector(testutil.StaticEC2Detector(false)))
	require.NoError(t, err)
	require.NoError(t, a.LoadAPIs(dir, nil))

	_, first := a.Setup(ctx, []string{"orders"})
	require.Error(t, first)
	assert.False(t, a.Pool().Merged())
	assert.Empty(t, a.Pool().Names())

	_, second := a.Setup(ctx, []string{"orders"})
	require.Error(t, second)
	assert.Equal(t, first.Error(), second.Error())

	require.NoError(t, os.WriteFile(broken, []byte(testutil.UsersSpec), 0644))
	handler, err := a.Setup(ctx, []string{"orders"})
	require.NoError(t, err)

	resp := testutil.MakeRequest(t, handler, testutil.Request{Method: http.MethodGet, Path: "/v1/ping"})
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestSetup_ServesAPIs(t *testing.T) {
	a := newLoadedService(t, testConfig(t))
	a.Bind("orders", "createOrder", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "o-1"})
	}))

	handler, err := a.Setup(context.Background(), []string{"orders"})
	require.NoError(t, err)
	assert.Same(t, handler, a.Handler())

	t.Run("ping is always served", func(t *testing.T) {
		resp := testutil.MakeRequest(t, handler, testutil.Request{Method: http.MethodGet, Path: "/v1/ping"})
		assert.Equal(t, http.StatusOK, resp.Code)
		assert.JSONEq(t, `{}`, resp.ResponseRecorder.Body.String())
	})

	t.Run("bound operation", func(t *testing.T) {
		resp := testutil.MakeRequest(t, handler, testutil.Request{
			Method: http.MethodPost,
			Path:   "/v1/orders",
			Body:   map[string]any{"item": "book"},
		})
		assert.Equal(t, http.StatusOK, resp.Code)
		assert.Equal(t, "o-1", resp.Body["id"])
	})

	t.Run("unbound operation", func(t *testing.T) {
		resp := testutil.MakeRequest(t, handler, testutil.Request{Method: http.MethodPost, Path: "/v1/orders/o-1/cancel"})
		assert.Equal(t, http.StatusNotImplemented, resp.Code)
		assert.Len(t, resp.Body["error_id"], 36)
	})

	t.Run("served apis are local and persistent", func(t *testing.T) {
		orders, ok := a.Pool().API("orders")
		require.True(t, ok)
		assert.True(t, orders.Local)
		assert.True(t, orders.Persist)
		assert.Equal(t, "http://localhost:8080/v1", orders.BaseURL())

		ping, ok := a.Pool().API(specs.PingName)
		require.True(t, ok)
		assert.True(t, ping.Local)
	})

	t.Run("other apis are remote and not persistent", func(t *testing.T) {
		users, err := a.Client("users")
		require.NoError(t, err)
		assert.False(t, users.Local)
		assert.False(t, users.Persist)
		assert.Equal(t, "http://users.example.com:8080/api", users.BaseURL())
	})

	t.Run("current server", func(t *testing.T) {
		name, version := a.Pool().CurrentServer()
		assert.Equal(t, "orders", name)
		assert.Equal(t, "1.2.0", version)
	})

	t.Run("metrics", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "microservice_api_calls_total")
	})
}

func TestSetup_ReportsCrashes(t *testing.T) {
	t.Setenv(crash.DoReportEnv, "1")
	reporter := &testutil.RecordingReporter{}

	a := newLoadedService(t, testConfig(t), WithReporter(reporter))
	a.Bind("orders", "createOrder", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(errors.New("out of stock"))
	}))

	handler, err := a.Setup(context.Background(), []string{"orders"})
	require.NoError(t, err)

	resp := testutil.MakeRequest(t, handler, testutil.Request{
		Method: http.MethodPost,
		Path:   "/v1/orders",
		Body:   map[string]any{"item": "book"},
	})

	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.NotEmpty(t, resp.Body["error_id"])

	reports := reporter.All()
	require.Len(t, reports, 1)
	assert.Contains(t, reports[0].Title, "FATAL ERROR orders-1.2.0 500")
	assert.Contains(t, reports[0].Body, "out of stock")
}

func TestSetup_HTTPSRedirect(t *testing.T) {
	req := func() *http.Request {
		r := httptest.NewRequest(http.MethodGet, "http://api.example.com/v1/ping", nil)
		r.Header.Set("X-Forwarded-Proto", "http")
		return r
	}

	t.Run("on ec2 with a certificate", func(t *testing.T) {
		cfg := testConfig(t)
		writeDeployConfig(t, cfg, "live_host: api.example.com\naws_cert_arn: arn:aws:acm:eu-west-1:1:certificate/x\n")

		a := newLoadedService(t, cfg, WithEC2Detector(testutil.StaticEC2Detector(true)))
		handler, err := a.Setup(context.Background(), []string{"orders"})
		require.NoError(t, err)

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req())

		assert.Equal(t, http.StatusMovedPermanently, rec.Code)
		assert.Equal(t, "https://api.example.com/v1/ping", rec.Header().Get("Location"))
	})

	t.Run("off ec2", func(t *testing.T) {
		cfg := testConfig(t)
		writeDeployConfig(t, cfg, "live_host: api.example.com\naws_cert_arn: arn:aws:acm:eu-west-1:1:certificate/x\n")

		a := newLoadedService(t, cfg)
		handler, err := a.Setup(context.Background(), []string{"orders"})
		require.NoError(t, err)

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req())

		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestPublishAPIs(t *testing.T) {
	t.Run("before LoadAPIs", func(t *testing.T) {
		a, err := New(testConfig(t))
		require.NoError(t, err)
		assert.ErrorIs(t, a.PublishAPIs("doc"), ErrNotLoaded)
	})

	t.Run("empty prefix", func(t *testing.T) {
		a := newLoadedService(t, testConfig(t))
		assert.ErrorIs(t, a.PublishAPIs("/"), ErrEmptyPrefix)
	})

	t.Run("without deploy config", func(t *testing.T) {
		a := newLoadedService(t, testConfig(t))
		assert.Error(t, a.PublishAPIs("doc"))
	})

	t.Run("without live_host", func(t *testing.T) {
		cfg := testConfig(t)
		writeDeployConfig(t, cfg, "aws_cert_arn: arn:aws:acm:eu-west-1:1:certificate/x\n")

		a := newLoadedService(t, cfg)
		assert.ErrorIs(t, a.PublishAPIs("doc"), config.ErrMissingLiveHost)
	})

	t.Run("serves docs", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Docs.SwaggerUI = true
		writeDeployConfig(t, cfg, "live_host: api.example.com\naws_cert_arn: arn:aws:acm:eu-west-1:1:certificate/x\n")

		a := newLoadedService(t, cfg)
		require.NoError(t, a.PublishAPIs("doc"))
		handler, err := a.Setup(context.Background(), []string{"orders"})
		require.NoError(t, err)

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/doc/orders", nil))
		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "http://petstore.swagger.io/?url=https://api.example.com/doc/orders.yaml", rec.Header().Get("Location"))

		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/doc/orders.yaml", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
		assert.Equal(t, testutil.OrdersSpec, rec.Body.String())

		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/doc/ui/orders/index.html", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestLoadClients(t *testing.T) {
	ctx := context.Background()
	dir := testutil.NewSpecDir(t)

	t.Run("empty path", func(t *testing.T) {
		a, err := New(testConfig(t))
		require.NoError(t, err)
		assert.ErrorIs(t, a.LoadClients(ctx, "", []string{"users"}), specs.ErrMissingPath)
	})

	t.Run("no names", func(t *testing.T) {
		a, err := New(testConfig(t))
		require.NoError(t, err)
		assert.ErrorIs(t, a.LoadClients(ctx, dir, nil), ErrNoClients)
	})

	t.Run("missing spec", func(t *testing.T) {
		a, err := New(testConfig(t))
		require.NoError(t, err)
		assert.Error(t, a.LoadClients(ctx, dir, []string{"billing"}))
	})

	t.Run("loads clients", func(t *testing.T) {
		a, err := New(testConfig(t))
		require.NoError(t, err)
		require.NoError(t, a.LoadClients(ctx, dir, []string{"users", "orders"}))

		users, err := a.Client("users")
		require.NoError(t, err)
		assert.False(t, users.Persist)
		assert.Equal(t, "0.3.0", users.Version())

		_, err = a.Client("billing")
		assert.ErrorIs(t, err, ErrUnknownAPI)
	})
}

func TestStart(t *testing.T) {
	t.Run("under a process manager", func(t *testing.T) {
		a := newLoadedService(t, testConfig(t), WithParentName(func() (string, error) {
			return "/usr/local/bin/gunicorn", nil
		}))

		require.NoError(t, a.Start(context.Background(), "orders"))
		assert.NotNil(t, a.Handler())
	})

	t.Run("until cancelled", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Server.Port = 0
		a := newLoadedService(t, cfg)

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		assert.NoError(t, a.Start(ctx, "orders"))
	})
}

func TestLetsGo(t *testing.T) {
	run := func(t *testing.T, args ...string) *config.Config {
		t.Helper()
		var got *config.Config
		cmd := LetsGo("orders", config.New(), func(ctx context.Context, cfg *config.Config) error {
			got = cfg
			return nil
		})
		cmd.SetArgs(args)
		require.NoError(t, cmd.Execute())
		require.NotNil(t, got)
		return got
	}

	t.Run("defaults", func(t *testing.T) {
		cfg := run(t)
		assert.Equal(t, 80, cfg.Server.Port)
		assert.True(t, cfg.Debug)
	})

	t.Run("flags", func(t *testing.T) {
		cfg := run(t, "--port", "8081", "--no-debug", "--serve", "orders,users")
		assert.Equal(t, 8081, cfg.Server.Port)
		assert.False(t, cfg.Debug)
		assert.Equal(t, []string{"orders", "users"}, cfg.APIs.Serve)
	})
}
