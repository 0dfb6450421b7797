package xstream

import (
	"context"
	"fmt"

	"github.com/omeyang/streamkit/internal/kafcore"
)

// ConsumerStats 消费者运行统计快照。
type ConsumerStats struct {
	// MessagesConsumed 已投递给下游的记录总数。
	MessagesConsumed int64
	// BytesConsumed 已投递记录的键值字节总量。
	BytesConsumed int64
	// Errors 提交失败与循环故障的累计次数。
	Errors int64
}

// Stats 返回统计快照。
func (c *Consumer) Stats() ConsumerStats {
	return ConsumerStats{
		MessagesConsumed: c.messagesConsumed.Load(),
		BytesConsumed:    c.bytesConsumed.Load(),
		Errors:           c.errorsCount.Load(),
	}
}

// Health 执行健康检查。
// 已分配分区视为健康；未分配时尝试拉取元数据验证 broker 连通性。
func (c *Consumer) Health(ctx context.Context) error {
	if c.handle.IsClosed() {
		return ErrClosed
	}
	if cause := c.loop.Cause(); cause != nil {
		return fmt.Errorf("xstream: consumer unhealthy: %w", cause)
	}

	assignment, err := c.Assignment(ctx)
	if err != nil {
		return fmt.Errorf("xstream: health check failed: %w", err)
	}
	if len(assignment) > 0 {
		return nil
	}

	_, err = c.ListTopics(ctx)
	if err != nil {
		return fmt.Errorf("xstream: health check failed: %w", err)
	}
	return nil
}

// Lag 计算各已分配分区的消费延迟（高水位减去已提交偏移量）。
// 无已提交偏移量的分区延迟按高水位减去低水位计算。
func (c *Consumer) Lag(ctx context.Context) (map[kafcore.TopicPartition]int64, error) {
	assignment, err := c.Assignment(ctx)
	if err != nil {
		return nil, err
	}
	if len(assignment) == 0 {
		return nil, nil
	}

	committed, err := c.Committed(ctx, assignment)
	if err != nil {
		return nil, err
	}
	high, err := c.EndOffsets(ctx, assignment)
	if err != nil {
		return nil, err
	}
	low, err := c.BeginningOffsets(ctx, assignment)
	if err != nil {
		return nil, err
	}

	out := make(map[kafcore.TopicPartition]int64, len(assignment))
	for _, tp := range assignment {
		base, ok := committed[tp]
		if !ok || base < 0 {
			base = low[tp]
		}
		lag := high[tp] - base
		if lag < 0 {
			lag = 0
		}
		out[tp] = lag
	}
	return out, nil
}
