package xstream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.opentelemetry.io/otel/propagation"
	"golang.org/x/sync/errgroup"

	"github.com/omeyang/streamkit/internal/kafcore"
	"github.com/omeyang/streamkit/pkg/kafka/xaccess"
	"github.com/omeyang/streamkit/pkg/kafka/xdiag"
	"github.com/omeyang/streamkit/pkg/kafka/xoffset"
	"github.com/omeyang/streamkit/pkg/kafka/xrunloop"
)

// ClientFactory 创建底层客户端，注入点供测试替换真实消费者。
type ClientFactory func(cfg *kafka.ConfigMap) (kafcore.BrokerClient, error)

func defaultClientFactory(cfg *kafka.ConfigMap) (kafcore.BrokerClient, error) {
	return kafka.NewConsumer(cfg)
}

// ===== 选项 =====

// ConsumerOption 配置 Consumer 的选项函数。
type ConsumerOption func(*consumerOptions)

type consumerOptions struct {
	logger     *slog.Logger
	sink       xdiag.Sink
	factory    ClientFactory
	propagator propagation.TextMapPropagator
	commitSize int
}

func defaultConsumerOptions() *consumerOptions {
	return &consumerOptions{
		logger: slog.Default(),
		sink:   xdiag.NoopSink{},
		factory: defaultClientFactory,
		propagator: propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
		commitSize: 100,
	}
}

// WithLogger 设置日志记录器。默认使用 slog.Default()。
func WithLogger(logger *slog.Logger) ConsumerOption {
	return func(o *consumerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithSink 设置诊断事件接收器。默认丢弃所有事件。
func WithSink(sink xdiag.Sink) ConsumerOption {
	return func(o *consumerOptions) {
		if sink != nil {
			o.sink = sink
		}
	}
}

// WithClientFactory 替换底层客户端的构造方式，测试中用于注入替身。
func WithClientFactory(factory ClientFactory) ConsumerOption {
	return func(o *consumerOptions) {
		if factory != nil {
			o.factory = factory
		}
	}
}

// WithPropagator 设置从记录头提取链路上下文的 Propagator。
// 默认 W3C TraceContext + Baggage。
func WithPropagator(p propagation.TextMapPropagator) ConsumerOption {
	return func(o *consumerOptions) {
		if p != nil {
			o.propagator = p
		}
	}
}

// WithCommitBatchSize 设置 ConsumeWith 累积多少条记录后强制提交一次。
// 默认 100。
func WithCommitBatchSize(n int) ConsumerOption {
	return func(o *consumerOptions) {
		if n > 0 {
			o.commitSize = n
		}
	}
}

// ===== Consumer =====

// Consumer 是面向应用的消费者门面。
//
// 生命周期：New → Subscribe →（Partitions / Records / ConsumeWith 三选一）
// → Close。一个实例只承载一次订阅，不可重复使用。
type Consumer struct {
	settings Settings
	opts     *consumerOptions

	handle *xaccess.Handle
	loop   *xrunloop.Runloop

	subMu  sync.Mutex // 保护 group/runCtx/cancel 的一次性初始化
	group  *errgroup.Group
	runCtx context.Context
	cancel context.CancelFunc

	subscribed atomic.Bool
	claimed    atomic.Bool
	closeOnce  sync.Once
	closeErr   error

	// 统计计数
	messagesConsumed atomic.Int64
	bytesConsumed    atomic.Int64
	errorsCount      atomic.Int64
}

// NewConsumer 按配置创建消费者。底层客户端立即创建，循环在 Subscribe 时启动。
func NewConsumer(settings Settings, opts ...ConsumerOption) (*Consumer, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	options := defaultConsumerOptions()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(options)
	}

	client, err := options.factory(settings.configMap())
	if err != nil {
		return nil, fmt.Errorf("xstream: create client: %w", err)
	}

	handle, err := xaccess.New(client, xaccess.WithLogger(options.logger))
	if err != nil {
		return nil, err
	}

	c := &Consumer{
		settings: settings,
		opts:     options,
		handle:   handle,
	}

	loop, err := xrunloop.New(handle,
		xrunloop.WithLogger(options.logger),
		xrunloop.WithSink(&countingSink{next: options.sink, errors: &c.errorsCount}),
		xrunloop.WithPollTimeout(settings.PollTimeout),
		xrunloop.WithMaxPollRecords(settings.MaxPollRecords),
		xrunloop.WithPartitionBuffer(settings.PartitionBuffer),
		xrunloop.WithCommitRetries(settings.CommitRetries),
	)
	if err != nil {
		_ = handle.Close(settings.CloseTimeout)
		return nil, err
	}
	c.loop = loop
	return c, nil
}

// Subscribe 安装订阅并启动后台循环。每个消费者只能订阅一次。
func (c *Consumer) Subscribe(ctx context.Context, sub kafcore.Subscription) error {
	if c.handle.IsClosed() {
		return ErrClosed
	}
	c.subMu.Lock()
	if c.subscribed.Load() {
		c.subMu.Unlock()
		return ErrAlreadySubscribed
	}
	// 循环生命周期归消费者所有，与调用方 ctx 解耦。
	// 生命周期字段先于 subscribed 置位：claimStream 观察到 true 时
	// runCtx/group 必然已就绪。
	c.runCtx, c.cancel = context.WithCancel(context.Background())
	c.group, _ = errgroup.WithContext(c.runCtx)
	c.subscribed.Store(true)
	c.subMu.Unlock()

	c.group.Go(func() error {
		return c.loop.Run(c.runCtx)
	})

	if err := c.loop.Subscribe(ctx, sub); err != nil {
		c.cancel()
		return err
	}
	c.opts.logger.Info("subscribed",
		slog.String("subscription", sub.String()),
		slog.String("group", c.settings.GroupID),
	)
	return nil
}

// Commit 提交一组偏移量并等待结果。偏移量为记录自身位置，+1 转换由循环完成。
func (c *Consumer) Commit(ctx context.Context, offsets map[kafcore.TopicPartition]int64) error {
	return c.loop.Commit(ctx, offsets)
}

// CommitAsync 异步提交，立即返回结果通道。
func (c *Consumer) CommitAsync(offsets map[kafcore.TopicPartition]int64) <-chan error {
	return c.loop.CommitAsync(offsets)
}

// NewOffset 为已处理记录创建确认位置，绑定本消费者唯一的提交动作。
func (c *Consumer) NewOffset(rec kafcore.Record) (xoffset.Offset, error) {
	return xoffset.FromRecord(rec, c.commitFunc)
}

// commitFunc 是本消费者实例唯一的提交动作。
// 所有 Offset/Batch 共享它，合并永远不会触发混合动作检测。
func (c *Consumer) commitFunc(ctx context.Context, offsets map[kafcore.TopicPartition]int64) error {
	return c.loop.Commit(ctx, offsets)
}

// Err 返回循环的致命退出原因。运行中或正常退出返回 nil。
func (c *Consumer) Err() error {
	return c.loop.Cause()
}

// Close 停止循环并关闭底层客户端，幂等。
func (c *Consumer) Close() error {
	c.closeOnce.Do(func() {
		c.subMu.Lock()
		cancel, group := c.cancel, c.group
		c.subMu.Unlock()
		if cancel != nil {
			cancel()
			// 循环退出错误已经由 Err 暴露，这里只等待收尾完成
			_ = group.Wait()
		}
		c.closeErr = c.handle.Close(c.settings.CloseTimeout)
		c.opts.logger.Info("consumer closed", slog.String("group", c.settings.GroupID))
	})
	return c.closeErr
}

// claimStream 领取唯一的消费流。Partitions 与 Records 互斥。
func (c *Consumer) claimStream() error {
	if !c.subscribed.Load() {
		return ErrNotSubscribed
	}
	if !c.claimed.CompareAndSwap(false, true) {
		return ErrStreamClaimed
	}
	return nil
}

// countingSink 把诊断事件转发给用户 Sink，顺带累计错误计数。
type countingSink struct {
	next   xdiag.Sink
	errors *atomic.Int64
}

func (s *countingSink) Emit(ev xdiag.Event) {
	switch e := ev.(type) {
	case xdiag.CommitEvent:
		if e.Err != nil {
			s.errors.Add(1)
		}
	case xdiag.FailureEvent:
		s.errors.Add(1)
	}
	s.next.Emit(ev)
}
