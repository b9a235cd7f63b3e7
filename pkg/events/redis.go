package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vaultadmin/pkg/logger"
	"go.uber.org/zap"
)

// Channel 跨服务事件使用的 Redis 频道
const Channel = "vaultadmin:events"

// Message 跨服务事件消息
type Message struct {
	Topic     string          `json:"topic"`
	Sender    string          `json:"sender"`    // 发送者节点ID
	Payload   json.RawMessage `json:"payload"`   // 消息内容
	Timestamp time.Time       `json:"timestamp"` // 发送时间
}

// Decode 反序列化消息内容
func (m *Message) Decode(dest any) error {
	return json.Unmarshal(m.Payload, dest)
}

// Handler 事件处理器
type Handler func(msg *Message)

// Bridge 基于 Redis pub/sub 的跨服务事件桥
type Bridge struct {
	sender   string
	redis    *redis.Client
	handlers map[string][]Handler
	mu       sync.RWMutex
	ctx      context.Context
	cancel   context.CancelFunc
	pubsub   *redis.PubSub
	done     chan struct{}
}

// NewBridge 创建事件桥
func NewBridge(sender string, client *redis.Client) *Bridge {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		sender:   sender,
		redis:    client,
		handlers: make(map[string][]Handler),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// On 注册主题处理器
func (b *Bridge) On(topic string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], handler)
}

// Publish 发布事件
func (b *Bridge) Publish(ctx context.Context, topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	data, err := json.Marshal(&Message{
		Topic:     topic,
		Sender:    b.sender,
		Payload:   payload,
		Timestamp: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("marshal event message: %w", err)
	}

	return b.redis.Publish(ctx, Channel, data).Err()
}

// Start 启动监听
func (b *Bridge) Start() error {
	b.pubsub = b.redis.Subscribe(b.ctx, Channel)

	// 等待订阅确认
	if _, err := b.pubsub.Receive(b.ctx); err != nil {
		return fmt.Errorf("subscribe event channel: %w", err)
	}

	go b.listen()

	logger.Info("事件桥已启动", zap.String("sender", b.sender))
	return nil
}

// listen 监听消息
func (b *Bridge) listen() {
	defer close(b.done)
	ch := b.pubsub.Channel()

	for {
		select {
		case <-b.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			b.handleMessage(msg.Payload)
		}
	}
}

// handleMessage 分发消息
func (b *Bridge) handleMessage(payload string) {
	var msg Message
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		logger.Error("解析事件消息失败", zap.Error(err))
		return
	}

	// 不处理自己发送的消息
	if msg.Sender == b.sender {
		return
	}

	b.mu.RLock()
	handlers := b.handlers[msg.Topic]
	b.mu.RUnlock()

	for _, handler := range handlers {
		go handler(&msg)
	}
}

// Stop 停止监听
func (b *Bridge) Stop() error {
	b.cancel()
	if b.pubsub == nil {
		return nil
	}
	err := b.pubsub.Close()
	<-b.done
	return err
}

// Publisher 跨服务事件发布者
type Publisher interface {
	Publish(ctx context.Context, topic string, v any) error
}

var _ Publisher = (*Bridge)(nil)
