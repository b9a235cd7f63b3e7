package lifecycle

import (
	"context"
	"time"

	"github.com/vaultadmin/pkg/events"
	"github.com/vaultadmin/pkg/logger"
	"go.uber.org/zap"
)

// Event 生命周期事件类型
type Event string

const (
	EventStarting Event = "starting" // 服务启动中
	EventReady    Event = "ready"    // 服务就绪（可接收请求）
	EventStopping Event = "stopping" // 服务停止中
	EventStopped  Event = "stopped"  // 服务已停止
)

// Topic 生命周期事件在事件桥上的主题
const Topic = "service.lifecycle"

// Message 生命周期消息
type Message struct {
	Service   string    `json:"service"`
	NodeID    string    `json:"nodeId"`
	Event     Event     `json:"event"`
	Address   string    `json:"address,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Hook 生命周期钩子
type Hook func(ctx context.Context) error

// emit 通过事件桥广播，未配置事件桥时只记录日志
func (s *Service) emit(ctx context.Context, event Event) {
	logger.Debug("lifecycle",
		zap.String("service", s.opts.Name),
		zap.String("event", string(event)),
	)
	if s.opts.Bridge == nil {
		return
	}
	msg := &Message{
		Service:   s.opts.Name,
		NodeID:    s.opts.NodeID,
		Event:     event,
		Address:   s.Addr(),
		Timestamp: time.Now(),
	}
	if err := s.opts.Bridge.Publish(ctx, Topic, msg); err != nil {
		logger.Warn("发布生命周期事件失败", zap.String("event", string(event)), zap.Error(err))
	}
}

// OnEvent 监听其他节点的生命周期事件
func OnEvent(bridge *events.Bridge, handler func(*Message)) {
	bridge.On(Topic, func(m *events.Message) {
		var msg Message
		if err := m.Decode(&msg); err != nil {
			logger.Error("解析生命周期消息失败", zap.Error(err))
			return
		}
		handler(&msg)
	})
}
