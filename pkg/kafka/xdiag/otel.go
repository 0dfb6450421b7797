package xdiag

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName 作为 OTel instrumentation scope 名称。
const meterName = "github.com/omeyang/streamkit/pkg/kafka/xdiag"

// OTelSink 把诊断事件计入 OpenTelemetry 指标。
//
// 计数器：
//   - streamkit.consumer.polls          poll 迭代次数
//   - streamkit.consumer.records        拉取的记录数
//   - streamkit.consumer.rebalances     再均衡次数（attrs: assigned/revoked 数量）
//   - streamkit.consumer.commits        提交次数（attr: result=ok|error）
//   - streamkit.consumer.partitions     分区通道开闭次数（attr: state=opened|closed）
//   - streamkit.consumer.failures       运行循环致命失败次数
type OTelSink struct {
	polls      metric.Int64Counter
	records    metric.Int64Counter
	rebalances metric.Int64Counter
	commits    metric.Int64Counter
	partitions metric.Int64Counter
	failures   metric.Int64Counter
}

// OTelSinkOption OTelSink 配置选项。
type OTelSinkOption func(*otelSinkOptions)

type otelSinkOptions struct {
	provider metric.MeterProvider
}

// WithMeterProvider 设置自定义 MeterProvider，默认使用全局 Provider。
func WithMeterProvider(mp metric.MeterProvider) OTelSinkOption {
	return func(o *otelSinkOptions) {
		if mp != nil {
			o.provider = mp
		}
	}
}

// NewOTelSink 创建 OTel 指标诊断汇。
func NewOTelSink(opts ...OTelSinkOption) (*OTelSink, error) {
	options := &otelSinkOptions{}
	for _, opt := range opts {
		opt(options)
	}

	var meter metric.Meter
	if options.provider != nil {
		meter = options.provider.Meter(meterName)
	} else {
		meter = otel.Meter(meterName)
	}

	s := &OTelSink{}
	var err error
	if s.polls, err = meter.Int64Counter("streamkit.consumer.polls",
		metric.WithDescription("Completed poll iterations"),
		metric.WithUnit("{iteration}")); err != nil {
		return nil, err
	}
	if s.records, err = meter.Int64Counter("streamkit.consumer.records",
		metric.WithDescription("Records fetched from the broker"),
		metric.WithUnit("{record}")); err != nil {
		return nil, err
	}
	if s.rebalances, err = meter.Int64Counter("streamkit.consumer.rebalances",
		metric.WithDescription("Partition rebalance notifications"),
		metric.WithUnit("{rebalance}")); err != nil {
		return nil, err
	}
	if s.commits, err = meter.Int64Counter("streamkit.consumer.commits",
		metric.WithDescription("Offset commit attempts"),
		metric.WithUnit("{commit}")); err != nil {
		return nil, err
	}
	if s.partitions, err = meter.Int64Counter("streamkit.consumer.partitions",
		metric.WithDescription("Partition channel open/close transitions"),
		metric.WithUnit("{transition}")); err != nil {
		return nil, err
	}
	if s.failures, err = meter.Int64Counter("streamkit.consumer.failures",
		metric.WithDescription("Fatal run loop failures"),
		metric.WithUnit("{failure}")); err != nil {
		return nil, err
	}
	return s, nil
}

// Emit 记录事件对应的指标。
// 设计决策: 使用 context.Background() 而非调用方 context——Emit 是
// fire-and-forget 的同步计数，不参与取消，也不应关联调用方的 trace。
func (s *OTelSink) Emit(ev Event) {
	ctx := context.Background()
	switch e := ev.(type) {
	case PollEvent:
		s.polls.Add(ctx, 1)
		if e.Records > 0 {
			s.records.Add(ctx, int64(e.Records))
		}
	case RebalanceEvent:
		s.rebalances.Add(ctx, 1, metric.WithAttributes(
			attribute.Int("assigned", len(e.Assigned)),
			attribute.Int("revoked", len(e.Revoked)),
		))
	case CommitEvent:
		result := "ok"
		if e.Err != nil {
			result = "error"
		}
		s.commits.Add(ctx, 1, metric.WithAttributes(
			attribute.String("result", result),
			attribute.Bool("retried", e.Retried),
		))
	case PartitionOpenedEvent:
		s.partitions.Add(ctx, 1, metric.WithAttributes(
			attribute.String("state", "opened"),
		))
	case PartitionClosedEvent:
		s.partitions.Add(ctx, 1, metric.WithAttributes(
			attribute.String("state", "closed"),
			attribute.Bool("revoked", e.Revoked),
		))
	case FailureEvent:
		s.failures.Add(ctx, 1)
	}
}

// 确保实现接口
var _ Sink = (*OTelSink)(nil)
