package events

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopicOrderAndUnsubscribe(t *testing.T) {
	var topic Topic[int]
	var got []string

	topic.Subscribe(func(v int) { got = append(got, "a") })
	off := topic.Subscribe(func(v int) { got = append(got, "b") })
	topic.Subscribe(func(v int) { got = append(got, "c") })

	topic.Publish(1)
	off()
	off()
	topic.Publish(2)

	assert.Equal(t, []string{"a", "b", "c", "a", "c"}, got)
	assert.Equal(t, 2, topic.Len())
}

func TestTopicSubscribeDuringPublish(t *testing.T) {
	var topic Topic[string]
	calls := 0
	topic.Subscribe(func(string) {
		calls++
		topic.Subscribe(func(string) { calls++ })
	})
	topic.Publish("x")
	assert.Equal(t, 1, calls)
}

type roleChanged struct {
	RoleID string `json:"roleId"`
	Action string `json:"action"`
}

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestBridgeDeliversToOtherNodes(t *testing.T) {
	client := newRedis(t)

	consumer := NewBridge("console-1", client)
	received := make(chan roleChanged, 1)
	consumer.On("rbac.role_changed", func(msg *Message) {
		var ev roleChanged
		if err := msg.Decode(&ev); err == nil {
			received <- ev
		}
	})
	require.NoError(t, consumer.Start())
	defer consumer.Stop()

	producer := NewBridge("rbac-1", client)
	require.NoError(t, producer.Publish(context.Background(), "rbac.role_changed", roleChanged{RoleID: "R1", Action: "updated"}))

	select {
	case ev := <-received:
		assert.Equal(t, roleChanged{RoleID: "R1", Action: "updated"}, ev)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestBridgeIgnoresOwnMessages(t *testing.T) {
	client := newRedis(t)

	b := NewBridge("node-1", client)
	received := make(chan struct{}, 1)
	b.On("t", func(*Message) { received <- struct{}{} })
	require.NoError(t, b.Start())
	defer b.Stop()

	require.NoError(t, b.Publish(context.Background(), "t", "x"))

	select {
	case <-received:
		t.Fatal("own message delivered")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBridgeStopWithoutStart(t *testing.T) {
	b := NewBridge("n", newRedis(t))
	assert.NoError(t, b.Stop())
}
