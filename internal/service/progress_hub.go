package service

import (
	"sync"

	"pcconv-go/internal/pipeline"
	"pcconv-go/pkg/log"
)

// ProgressHub 把流水线事件广播给所有订阅者（WebSocket 连接）。
// 订阅者处理过慢时事件会被丢弃，不会阻塞转换流程。
type ProgressHub struct {
	mu   sync.RWMutex
	subs map[chan pipeline.Event]struct{}
}

// NewProgressHub 创建一个新的 ProgressHub 实例。
func NewProgressHub() *ProgressHub {
	return &ProgressHub{subs: make(map[chan pipeline.Event]struct{})}
}

// Notify 实现 pipeline.Notifier。
func (h *ProgressHub) Notify(e pipeline.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case ch <- e:
		default:
			log.Debugf("[ProgressHub] 订阅者缓冲区已满, 丢弃事件 %s", e.Type)
		}
	}
}

// Subscribe 注册一个订阅者，返回事件通道和取消函数。取消后通道会被关闭。
func (h *ProgressHub) Subscribe(buffer int) (<-chan pipeline.Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan pipeline.Event, buffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers 返回当前订阅者数量。
func (h *ProgressHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
