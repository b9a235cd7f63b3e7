package gateway

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vaultadmin/pkg/config"
	pkgRegistry "github.com/vaultadmin/pkg/registry"
	"go-micro.dev/v5/registry"
)

type echo struct {
	Path      string `json:"path"`
	Query     string `json:"query"`
	Forwarded string `json:"forwarded"`
}

type upstream struct {
	*httptest.Server
	failures atomic.Int32
}

func newUpstream(t *testing.T) *upstream {
	t.Helper()
	u := &upstream{}
	mux := http.NewServeMux()
	mux.HandleFunc("/fail", func(w http.ResponseWriter, r *http.Request) {
		u.failures.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(echo{
			Path:      r.URL.Path,
			Query:     r.URL.RawQuery,
			Forwarded: r.Header.Get("X-Forwarded-Host"),
		})
	})
	u.Server = httptest.NewServer(mux)
	t.Cleanup(u.Close)
	return u
}

func register(t *testing.T, reg registry.Registry, name, basePath, url string) *registry.Service {
	t.Helper()
	svc := pkgRegistry.NewServiceBuilder(name, "1.0.0").
		WithAddress(strings.TrimPrefix(url, "http://")).
		WithMetadata(pkgRegistry.MetaBasePath, basePath).
		Build()
	require.NoError(t, reg.Register(svc))
	return svc
}

func newGateway(reg registry.Registry) *Gateway {
	return NewGateway(reg, &config.GatewayConfig{Timeout: 2000, BreakerThreshold: 2, BreakerTimeout: 60})
}

func get(t *testing.T, app *fiber.App, method, path string) (int, []byte) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(method, path, nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func TestProxyStripsPrefix(t *testing.T) {
	up := newUpstream(t)
	reg := pkgRegistry.NewMemoryRegistry()
	register(t, reg, "rbac-service", "rbac", up.URL)

	gw := newGateway(reg)
	require.NoError(t, gw.SyncRoutes())
	app := NewApp(gw)

	status, body := get(t, app, fiber.MethodGet, "/api/v1/rbac/roles?page=2")
	require.Equal(t, http.StatusOK, status)
	var got echo
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "/roles", got.Path)
	assert.Equal(t, "page=2", got.Query)
	assert.Equal(t, "example.com", got.Forwarded)

	status, body = get(t, app, fiber.MethodGet, "/api/v1/rbac")
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "/", got.Path)

	status, body = get(t, app, fiber.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `gateway_requests_total{method="GET",service="rbac-service",status="200"} 2`)
}

func TestLongestPrefixWins(t *testing.T) {
	gw := newGateway(pkgRegistry.NewMemoryRegistry())
	gw.RegisterRoute(&ServiceRoute{ServiceName: "a", PathPrefix: "/api/v1/rbac", Methods: DefaultMethods})
	gw.RegisterRoute(&ServiceRoute{ServiceName: "b", PathPrefix: "/api/v1/rbac/audit", Methods: DefaultMethods})

	assert.Equal(t, "b", gw.match("/api/v1/rbac/audit/logins").ServiceName)
	assert.Equal(t, "a", gw.match("/api/v1/rbac/auditors").ServiceName)
	assert.Nil(t, gw.match("/api/v1/rbacx"))
}

func TestUnknownServiceSyncsOnMiss(t *testing.T) {
	up := newUpstream(t)
	reg := pkgRegistry.NewMemoryRegistry()
	app := NewApp(newGateway(reg))

	status, body := get(t, app, fiber.MethodGet, "/api/v1/console/session/me")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, string(body), "服务未找到")

	_, body = get(t, app, fiber.MethodGet, "/metrics")
	assert.Contains(t, string(body), `gateway_rejected_total{reason="no_route"} 1`)

	register(t, reg, "console-service", "console", up.URL)
	status, body = get(t, app, fiber.MethodGet, "/api/v1/console/session/me")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"/session/me"`)
}

func TestSyncDropsDeregisteredService(t *testing.T) {
	up := newUpstream(t)
	reg := pkgRegistry.NewMemoryRegistry()
	svc := register(t, reg, "rbac-service", "rbac", up.URL)
	register(t, reg, "plain-service", "", up.URL)

	gw := newGateway(reg)
	require.NoError(t, gw.SyncRoutes())
	assert.Len(t, gw.Routes(), 1)
	assert.Contains(t, gw.Routes(), "/api/v1/rbac")

	require.NoError(t, reg.Deregister(svc))
	require.NoError(t, gw.SyncRoutes())
	assert.Empty(t, gw.Routes())
}

func TestMethodNotAllowed(t *testing.T) {
	gw := newGateway(pkgRegistry.NewMemoryRegistry())
	gw.RegisterRoute(&ServiceRoute{ServiceName: "rbac-service", PathPrefix: "/api/v1/rbac", Methods: []string{fiber.MethodGet}})

	status, _ := get(t, NewApp(gw), fiber.MethodPost, "/api/v1/rbac/roles")
	assert.Equal(t, http.StatusMethodNotAllowed, status)
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	up := newUpstream(t)
	reg := pkgRegistry.NewMemoryRegistry()
	register(t, reg, "rbac-service", "rbac", up.URL)
	gw := newGateway(reg)
	require.NoError(t, gw.SyncRoutes())
	app := NewApp(gw)

	for i := 0; i < 2; i++ {
		status, _ := get(t, app, fiber.MethodGet, "/api/v1/rbac/fail")
		assert.Equal(t, http.StatusInternalServerError, status)
	}

	status, body := get(t, app, fiber.MethodGet, "/api/v1/rbac/fail")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Contains(t, string(body), "服务暂时不可用")
	assert.Equal(t, int32(2), up.failures.Load())

	status, body = get(t, app, fiber.MethodGet, "/services")
	require.Equal(t, http.StatusOK, status)
	var env struct {
		Data struct {
			Services []ServiceStatus `json:"services"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &env))
	require.Len(t, env.Data.Services, 1)
	assert.Equal(t, "rbac-service", env.Data.Services[0].Name)
	assert.Equal(t, "healthy", env.Data.Services[0].Status)
	assert.Equal(t, 1, env.Data.Services[0].Nodes)
	assert.Equal(t, StateOpen, env.Data.Services[0].Breaker)
}

func TestUnreachableUpstreamIsBadGateway(t *testing.T) {
	up := newUpstream(t)
	url := up.URL
	up.Close()

	reg := pkgRegistry.NewMemoryRegistry()
	register(t, reg, "rbac-service", "rbac", url)
	gw := newGateway(reg)
	require.NoError(t, gw.SyncRoutes())

	status, _ := get(t, NewApp(gw), fiber.MethodGet, "/api/v1/rbac/roles")
	assert.Equal(t, http.StatusBadGateway, status)
}

func TestCircuitBreakerHalfOpen(t *testing.T) {
	now := time.Unix(0, 0)
	cb := NewCircuitBreaker(1, time.Second)
	cb.now = func() time.Time { return now }

	assert.True(t, cb.Allow())
	cb.Failure()
	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.Allow())

	now = now.Add(2 * time.Second)
	assert.True(t, cb.Allow())
	assert.Equal(t, StateHalfOpen, cb.State())
	cb.Failure()
	assert.Equal(t, StateOpen, cb.State())

	now = now.Add(2 * time.Second)
	assert.True(t, cb.Allow())
	cb.Success()
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerDisabled(t *testing.T) {
	cb := NewCircuitBreaker(0, time.Second)
	for i := 0; i < 10; i++ {
		cb.Failure()
	}
	assert.True(t, cb.Allow())
}

func TestHealth(t *testing.T) {
	status, body := get(t, NewApp(newGateway(pkgRegistry.NewMemoryRegistry())), fiber.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), ServiceName)
}
