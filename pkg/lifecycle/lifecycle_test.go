package lifecycle

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vaultadmin/pkg/events"
	vregistry "github.com/vaultadmin/pkg/registry"
	"go-micro.dev/v5/registry"
)

func TestServiceStartRegistersAndShutsDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	watcher := events.NewBridge("watcher", client)
	seen := make(chan Event, 8)
	OnEvent(watcher, func(m *Message) {
		if m.Service == "rbac" {
			seen <- m.Event
		}
	})
	require.NoError(t, watcher.Start())
	defer watcher.Stop()

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/health", func(c *fiber.Ctx) error { return c.SendString("ok") })

	reg := vregistry.NewMemoryRegistry()
	var order []string
	svc := NewBuilder("rbac").
		WithNodeID("rbac-test").
		WithAddress("127.0.0.1:0").
		WithRegistry(reg).
		WithMetadata(vregistry.MetaBasePath, "rbac").
		WithBridge(events.NewBridge("rbac-test", client)).
		WithApp(app).
		OnStart(func(context.Context) error { order = append(order, "start"); return nil }).
		OnReady(func(context.Context) error { order = append(order, "ready"); return nil }).
		OnStop(func(context.Context) error { order = append(order, "stop"); return nil }).
		Build()

	require.NoError(t, svc.Start(context.Background()))

	services, err := reg.GetService("rbac")
	require.NoError(t, err)
	assert.Equal(t, svc.Addr(), services[0].Nodes[0].Address)
	assert.Equal(t, "rbac", vregistry.BasePath(services[0]))

	resp, err := http.Get("http://" + svc.Addr() + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "ok", string(body))

	require.NoError(t, svc.Shutdown())
	_, err = reg.GetService("rbac")
	assert.ErrorIs(t, err, registry.ErrNotFound)
	assert.Equal(t, []string{"start", "ready", "stop"}, order)

	got := map[Event]bool{}
	timeout := time.After(2 * time.Second)
	for len(got) < 4 {
		select {
		case e := <-seen:
			got[e] = true
		case <-timeout:
			t.Fatalf("lifecycle events missing, got %v", got)
		}
	}
}

func TestStartHookFailureAborts(t *testing.T) {
	svc := NewBuilder("x").
		WithAddress("127.0.0.1:0").
		OnStart(func(context.Context) error { return assert.AnError }).
		Build()
	assert.ErrorIs(t, svc.Start(context.Background()), assert.AnError)
}
