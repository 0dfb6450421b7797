package xstream

import (
	"context"
	"time"

	"github.com/omeyang/streamkit/internal/kafcore"
	"github.com/omeyang/streamkit/pkg/kafka/xoffset"
)

// finalFlushTimeout 是关闭路径上最后一次批次提交的时间上限。
const finalFlushTimeout = 5 * time.Second

// Handler 处理单条记录。
//
// 契约：handler 自行吸收业务失败（内部重试或记入死信），返回非 nil
// 错误会使 ConsumeWith 停止消费并原样返回该错误，已处理未提交的
// 偏移量在下次再均衡后重新投递。
type Handler func(ctx context.Context, rec kafcore.Record) error

// ConsumeWith 订阅并以回调方式消费全部分区，自动聚合并提交偏移量。
//
// 记录被逐条交给 handler；产生的确认位置折叠进运行中的批次，批次在
// 通道暂时无记录（空闲间隙）或累积达到 WithCommitBatchSize 阈值时
// 提交。提交频率换吞吐量，语义为至少一次：处理完成与提交之间的崩溃
// 会导致重新投递。
//
// 返回条件：ctx 取消（返回 ctx 错误）、handler 失败（原样返回）或
// 循环致命停止（返回其原因）。返回前尽力提交已累积的批次。
func (c *Consumer) ConsumeWith(ctx context.Context, sub kafcore.Subscription, handler Handler) error {
	if handler == nil {
		return ErrNilHandler
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if err := c.Subscribe(ctx, sub); err != nil {
		return err
	}
	records, err := c.Records()
	if err != nil {
		return err
	}

	batch := xoffset.EmptyBatch()
	pending := 0

	// 调用方 ctx 已取消时退化为带时限的后台 ctx：关闭路径上的
	// 最后一次提交是尽力而为，不应一律随取消作废。
	flush := func() error {
		if batch.IsEmpty() {
			return nil
		}
		cctx := ctx
		if ctx.Err() != nil {
			var cancel context.CancelFunc
			cctx, cancel = context.WithTimeout(context.Background(), finalFlushTimeout)
			defer cancel()
		}
		err := batch.Commit(cctx)
		batch = xoffset.EmptyBatch()
		pending = 0
		return err
	}

	process := func(rec kafcore.Record) error {
		if err := handler(c.RecordContext(ctx, rec), rec); err != nil {
			return err
		}
		off, err := xoffset.FromRecord(rec, c.commitFunc)
		if err != nil {
			return err
		}
		batch = batch.Add(off)
		pending++
		if pending >= c.opts.commitSize {
			return flush()
		}
		return nil
	}

	for {
		// 先吃掉就绪的记录，通道暂时排空后提交累积批次
		select {
		case rec, ok := <-records:
			if !ok {
				ferr := flush()
				if cause := c.loop.Cause(); cause != nil {
					return cause
				}
				return ferr
			}
			if err := process(rec); err != nil {
				_ = flush()
				return err
			}
			continue
		default:
		}

		if err := flush(); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			_ = flush()
			return ctx.Err()
		case rec, ok := <-records:
			if !ok {
				if cause := c.loop.Cause(); cause != nil {
					return cause
				}
				return nil
			}
			if err := process(rec); err != nil {
				_ = flush()
				return err
			}
		}
	}
}
