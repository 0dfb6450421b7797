package xstream

import (
	"context"
	"sync"

	"github.com/omeyang/streamkit/internal/kafcore"
	"github.com/omeyang/streamkit/pkg/kafka/xrunloop"
)

// PartitionStream 是单个分区的顺序记录流。
//
// Records 按 broker 投递顺序产出记录，通道关闭表示分区被撤销或消费者
// 关闭（正常结束），或循环遇到致命错误；关闭后调用 Err 区分两者。
type PartitionStream struct {
	tp      kafcore.TopicPartition
	records chan kafcore.Record
	loop    *xrunloop.Runloop
}

// TopicPartition 返回流所属的分区。
func (s *PartitionStream) TopicPartition() kafcore.TopicPartition {
	return s.tp
}

// Records 返回记录通道。
func (s *PartitionStream) Records() <-chan kafcore.Record {
	return s.records
}

// Err 返回流的致命结束原因。撤销或关闭导致的正常结束返回 nil。
func (s *PartitionStream) Err() error {
	return s.loop.Cause()
}

// Partitions 以分区流序列的形式暴露分配结果。
//
// 每当一个分区被分配给本消费者，通道产出一个新的 PartitionStream；
// 消费者关闭后通道关闭。序列不可重放，且与 Records 互斥——两者只能
// 领取其一，且只能领取一次。
func (c *Consumer) Partitions() (<-chan *PartitionStream, error) {
	if err := c.claimStream(); err != nil {
		return nil, err
	}

	out := make(chan *PartitionStream)
	c.group.Go(func() error {
		defer close(out)
		for ap := range c.loop.Assigned() {
			ps := &PartitionStream{
				tp:      ap.TopicPartition,
				records: make(chan kafcore.Record, c.settings.PrefetchDepth),
				loop:    c.loop,
			}
			chunks := ap.Records
			c.group.Go(func() error {
				defer close(ps.records)
				c.pump(chunks, ps.records)
				return nil
			})

			select {
			case out <- ps:
			case <-c.runCtx.Done():
				return nil
			}
		}
		return nil
	})
	return out, nil
}

// Records 把全部分区流扁平化为一个无序交错的记录通道。
//
// 跨分区不保证顺序，单分区内部仍保持投递顺序。消费者关闭或循环停止
// 后通道关闭，调用方用 Err 判断结束原因。与 Partitions 互斥。
func (c *Consumer) Records() (<-chan kafcore.Record, error) {
	if err := c.claimStream(); err != nil {
		return nil, err
	}

	out := make(chan kafcore.Record, c.settings.PrefetchDepth)
	c.group.Go(func() error {
		var wg sync.WaitGroup
		for ap := range c.loop.Assigned() {
			chunks := ap.Records
			wg.Add(1)
			go func() {
				defer wg.Done()
				c.pump(chunks, out)
			}()
		}
		wg.Wait()
		close(out)
		return nil
	})
	return out, nil
}

// pump 把记录块摊平成单条记录写入 dst，顺带累计消费统计。
// 上游通道关闭或消费者关闭时退出。
func (c *Consumer) pump(src <-chan []kafcore.Record, dst chan<- kafcore.Record) {
	for chunk := range src {
		for _, rec := range chunk {
			select {
			case dst <- rec:
				c.messagesConsumed.Add(1)
				c.bytesConsumed.Add(int64(len(rec.Key) + len(rec.Value)))
			case <-c.runCtx.Done():
				return
			}
		}
	}
}

// RecordContext 从记录头提取链路上下文（W3C TraceContext 等，
// 由 WithPropagator 决定），返回携带远端 span 的派生 ctx。
func (c *Consumer) RecordContext(ctx context.Context, rec kafcore.Record) context.Context {
	return extractTrace(ctx, rec, c.opts.propagator)
}
