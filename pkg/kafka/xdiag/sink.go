package xdiag

import (
	"sync"
)

// Sink 诊断事件汇接口。
// Emit 在运行循环的关键路径上被调用，实现必须非阻塞且不 panic。
type Sink interface {
	Emit(ev Event)
}

// NoopSink 丢弃所有事件的空实现，是各组件的默认诊断汇。
type NoopSink struct{}

func (NoopSink) Emit(Event) {}

// RingSink 有界环形缓冲诊断汇。
// 保留最近 capacity 条事件，写满后覆盖最旧条目。并发安全。
// 使用完毕必须调用 Close 释放缓冲，Close 后的 Emit 被丢弃。
type RingSink struct {
	mu     sync.Mutex
	buf    []Event
	next   int // 下一个写入位置
	size   int // 当前有效条目数
	closed bool
}

// NewRingSink 创建环形缓冲诊断汇，capacity 最小为 1。
func NewRingSink(capacity int) *RingSink {
	if capacity < 1 {
		capacity = 1
	}
	return &RingSink{buf: make([]Event, capacity)}
}

// Emit 记录事件，缓冲已满时覆盖最旧条目。
func (s *RingSink) Emit(ev Event) {
	if ev == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.buf[s.next] = ev
	s.next = (s.next + 1) % len(s.buf)
	if s.size < len(s.buf) {
		s.size++
	}
}

// Events 返回当前缓冲内容的快照，从最旧到最新排列。
func (s *RingSink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.size == 0 {
		return nil
	}
	out := make([]Event, 0, s.size)
	start := (s.next - s.size + len(s.buf)) % len(s.buf)
	for i := range s.size {
		out = append(out, s.buf[(start+i)%len(s.buf)])
	}
	return out
}

// Close 释放缓冲。幂等，重复调用返回 nil。
func (s *RingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.buf = nil
	s.next, s.size = 0, 0
	return nil
}

// 确保实现接口
var (
	_ Sink = NoopSink{}
	_ Sink = (*RingSink)(nil)
)
