package xaccess

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/omeyang/streamkit/internal/kafcore"
)

// ===== 接口定义 =====

// Waker 是底层客户端可选实现的带外唤醒接口。
//
// confluent-kafka-go 的 Poll 本身有超时上限，真实客户端无需实现此接口；
// 测试替身或支持中断原语的客户端实现它后，取消等待可以立即生效而不必
// 等到 Poll 超时返回。
type Waker interface {
	// Wakeup 中断底层客户端当前正在阻塞的调用。必须可安全地与
	// 阻塞调用并发执行，且可重复调用。
	Wakeup()
}

// ===== 选项 =====

// Option 配置 Handle 的选项函数。
type Option func(*handleOptions)

type handleOptions struct {
	logger     *slog.Logger
	closeGrace time.Duration
}

func defaultOptions() *handleOptions {
	return &handleOptions{
		logger:     slog.Default(),
		closeGrace: 3 * time.Second,
	}
}

// WithLogger 设置日志记录器。默认使用 slog.Default()。
func WithLogger(logger *slog.Logger) Option {
	return func(o *handleOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithCloseGrace 设置 Close 在发出唤醒信号后等待在途调用退出的宽限时间。
// 默认 3 秒。非正值被忽略。
func WithCloseGrace(d time.Duration) Option {
	return func(o *handleOptions) {
		if d > 0 {
			o.closeGrace = d
		}
	}
}

// ===== Handle =====

// Handle 持有唯一的底层客户端引用和一枚互斥令牌。
//
// 除 Handle 自身外，任何代码不得保留对底层客户端的裸引用；
// 所有访问必须经由 WithHandle 或 Do 路由。
type Handle struct {
	client kafcore.BrokerClient
	opts   *handleOptions

	// permit 容量为 1，构造时预放入一枚令牌。
	// 取走令牌即获得独占访问权，worker 退出时归还。
	permit chan struct{}

	// closed 在 Close 时关闭，令所有等待令牌的调用方立即返回 ErrClosed。
	closed    chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// New 创建 Handle。client 为 nil 时返回 ErrNilClient。
func New(client kafcore.BrokerClient, opts ...Option) (*Handle, error) {
	if client == nil {
		return nil, ErrNilClient
	}

	options := defaultOptions()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(options)
	}

	permit := make(chan struct{}, 1)
	permit <- struct{}{}

	return &Handle{
		client: client,
		opts:   options,
		permit: permit,
		closed: make(chan struct{}),
	}, nil
}

// WithHandle 在令牌保护下执行 fn，返回 fn 的结果或其失败。
//
// 并发调用方按 Go runtime 的通道调度顺序排队等待令牌（不保证 FIFO 公平）。
// fn 被派发到独立 goroutine 执行；调用方 context 取消时，Handle 发出
// Wakeup 信号（若支持）并等待 fn 完全退出后返回 ctx 的错误。
// 取消路径下 fn 的返回值被丢弃。
func (h *Handle) WithHandle(ctx context.Context, fn func(kafcore.BrokerClient) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if fn == nil {
		return ErrNilFunc
	}

	if err := h.acquire(ctx); err != nil {
		return err
	}

	// done 带缓冲：即使调用方已在取消路径上离开，worker 的发送也不会阻塞。
	done := make(chan error, 1)
	go func() {
		// 令牌在 fn 完全退出后才归还，保证原生调用在途时
		// 不会有第二个调用方进入。
		defer func() { h.permit <- struct{}{} }()
		done <- fn(h.client)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		h.wake()
		// 等待 worker 从阻塞调用中退出。无 Waker 时此处最长阻塞
		// 到原生调用自身的超时返回。
		<-done
		return ctx.Err()
	}
}

// Do 在令牌保护下执行带返回值的 fn。语义与 WithHandle 相同。
func Do[T any](ctx context.Context, h *Handle, fn func(kafcore.BrokerClient) (T, error)) (T, error) {
	var out T
	if fn == nil {
		return out, ErrNilFunc
	}
	err := h.WithHandle(ctx, func(c kafcore.BrokerClient) error {
		v, err := fn(c)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// Close 在令牌保护下关闭底层客户端，幂等。
//
// 最长等待 timeout 获取令牌；超时后发出 Wakeup 并再等待宽限时间。
// 宽限期也耗尽时放弃等待直接关闭——此时底层客户端自身的线程安全
// 关闭语义是最后防线。
func (h *Handle) Close(timeout time.Duration) error {
	h.closeOnce.Do(func() {
		acquired := h.waitPermit(timeout)
		if !acquired {
			h.wake()
			acquired = h.waitPermit(h.opts.closeGrace)
		}
		if !acquired {
			h.opts.logger.Warn("closing handle with call still in flight",
				slog.Duration("timeout", timeout),
			)
		}

		close(h.closed)
		h.closeErr = h.client.Close()
	})
	return h.closeErr
}

// IsClosed 报告句柄是否已关闭。
func (h *Handle) IsClosed() bool {
	select {
	case <-h.closed:
		return true
	default:
		return false
	}
}

// acquire 等待令牌，受 ctx 取消和句柄关闭约束。
func (h *Handle) acquire(ctx context.Context) error {
	select {
	case <-h.closed:
		return ErrClosed
	default:
	}

	select {
	case <-h.permit:
		return nil
	case <-h.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// waitPermit 在 d 时间内尝试取得令牌，返回是否成功。
func (h *Handle) waitPermit(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-h.permit:
		return true
	case <-timer.C:
		return false
	}
}

func (h *Handle) wake() {
	if w, ok := h.client.(Waker); ok {
		w.Wakeup()
	}
}
