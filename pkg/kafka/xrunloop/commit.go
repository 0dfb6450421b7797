package xrunloop

import (
	"context"
	"maps"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/omeyang/streamkit/internal/kafcore"
)

// commitRequest 是一次排队中的提交。done 带缓冲，循环完成请求时
// 永远不会阻塞。
type commitRequest struct {
	offsets   map[kafcore.TopicPartition]int64
	done      chan error
	remaining int
}

// CommitAsync 将偏移量提交请求入队，立即返回结果通道。
//
// 请求在循环的下一轮迭代中与其他排队请求合并提交；可重试类失败按
// WithCommitRetries 预算自动重新入队，预算耗尽或遇到不可重试失败时
// 结果通道收到最终错误。入队永远不会阻塞调用方。
func (r *Runloop) CommitAsync(offsets map[kafcore.TopicPartition]int64) <-chan error {
	done := make(chan error, 1)
	if len(offsets) == 0 {
		done <- ErrEmptyOffsets
		return done
	}

	req := &commitRequest{
		offsets:   maps.Clone(offsets),
		done:      done,
		remaining: r.opts.commitRetries,
	}
	r.enqueueCommit(req)
	return done
}

// Commit 提交偏移量并等待结果。
func (r *Runloop) Commit(ctx context.Context, offsets map[kafcore.TopicPartition]int64) error {
	if ctx == nil {
		ctx = context.Background()
	}
	done := r.CommitAsync(offsets)
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-r.stopped:
		return r.stopCause()
	}
}

func (r *Runloop) enqueueCommit(req *commitRequest) {
	r.commitMu.Lock()
	if r.commitClosed {
		r.commitMu.Unlock()
		req.done <- r.stopCause()
		return
	}
	r.commitQueue = append(r.commitQueue, req)
	r.commitMu.Unlock()
}

// takeCommits 取走当前排队的全部提交请求。
func (r *Runloop) takeCommits() []*commitRequest {
	r.commitMu.Lock()
	defer r.commitMu.Unlock()
	reqs := r.commitQueue
	r.commitQueue = nil
	return reqs
}

// failCommits 以 err 完成队列中剩余的全部请求，并拒绝后续入队。
func (r *Runloop) failCommits(err error) {
	r.commitMu.Lock()
	reqs := r.commitQueue
	r.commitQueue = nil
	r.commitClosed = true
	r.commitMu.Unlock()

	for _, req := range reqs {
		req.done <- err
	}
}

// coalesceOffsets 将多个请求的偏移量合并为一次提交，同分区取最大值，
// 并转换为 broker 的提交语义（记录偏移量 +1）。
func coalesceOffsets(reqs []*commitRequest) []kafka.TopicPartition {
	merged := make(map[kafcore.TopicPartition]int64)
	for _, req := range reqs {
		for tp, off := range req.offsets {
			if cur, ok := merged[tp]; !ok || off > cur {
				merged[tp] = off
			}
		}
	}

	out := make([]kafka.TopicPartition, 0, len(merged))
	for tp, off := range merged {
		out = append(out, tp.ToKafka(kafka.Offset(off+1)))
	}
	return out
}
