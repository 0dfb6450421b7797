package xrunloop

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/omeyang/streamkit/internal/kafcore"
	"github.com/omeyang/streamkit/pkg/kafka/xaccess"
	"github.com/omeyang/streamkit/pkg/kafka/xdiag"
	"github.com/omeyang/streamkit/pkg/kafka/xoffset"
)

// Runloop 驱动一个消费者的 提交→轮询→调整分配→派发 循环。
//
// 所有对底层客户端的访问都经由独占句柄；除再均衡回调外，
// partitions 等循环状态只被 Run 所在的 goroutine 触碰。
// 再均衡回调在 Poll 内部同步执行，其写入在 Poll 返回后对循环可见。
type Runloop struct {
	handle *xaccess.Handle
	opts   *runloopOptions

	commitMu     sync.Mutex
	commitQueue  []*commitRequest
	commitClosed bool

	// assigned 发布新分配的分区及其记录通道，循环退出时关闭。
	assigned chan AssignedPartition

	running atomic.Bool
	stopped chan struct{}
	cause   error

	// 以下字段仅循环 goroutine（含 Poll 内同步回调）访问
	partitions      map[kafcore.TopicPartition]*partitionQueue
	pendingAssigned []kafcore.TopicPartition
	pendingRevoked  []kafcore.TopicPartition
}

// New 创建 Runloop。handle 为 nil 时返回 ErrNilHandle。
func New(handle *xaccess.Handle, opts ...Option) (*Runloop, error) {
	if handle == nil {
		return nil, ErrNilHandle
	}

	options := defaultRunloopOptions()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(options)
	}

	return &Runloop{
		handle:     handle,
		opts:       options,
		assigned:   make(chan AssignedPartition, options.assignedBuffer),
		stopped:    make(chan struct{}),
		partitions: make(map[kafcore.TopicPartition]*partitionQueue),
	}, nil
}

// Subscribe 安装订阅并注册再均衡回调。应在 Run 启动前或启动后尽早调用。
func (r *Runloop) Subscribe(ctx context.Context, sub kafcore.Subscription) error {
	if sub.IsZero() {
		return kafcore.ErrEmptySubscription
	}
	return r.handle.WithHandle(ctx, func(c kafcore.BrokerClient) error {
		return c.SubscribeTopics(sub.List(), r.rebalanceCb)
	})
}

// Unsubscribe 取消当前订阅。已分配分区的撤销随后由再均衡回调送达。
func (r *Runloop) Unsubscribe(ctx context.Context) error {
	return r.handle.WithHandle(ctx, func(c kafcore.BrokerClient) error {
		return c.Unsubscribe()
	})
}

// Assigned 返回新分配分区的发布队列。循环退出时通道关闭。
func (r *Runloop) Assigned() <-chan AssignedPartition {
	return r.assigned
}

// Done 返回循环退出信号。
func (r *Runloop) Done() <-chan struct{} {
	return r.stopped
}

// Cause 返回循环的致命退出原因。循环仍在运行或正常退出时返回 nil。
// 下游看到分区通道关闭后用它区分"干净结束"与"循环故障"。
func (r *Runloop) Cause() error {
	select {
	case <-r.stopped:
		return r.cause
	default:
		return nil
	}
}

// Run 驱动循环直到 ctx 取消或遇到致命错误。
// ctx 取消属正常关闭，返回 nil；致命错误原样返回。
// Run 只能调用一次。
func (r *Runloop) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if !r.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer r.finish()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := r.iterate(ctx); err != nil {
			if isCancellation(err) {
				return nil
			}
			r.cause = err
			r.opts.sink.Emit(xdiag.FailureEvent{Err: err})
			r.opts.logger.Error("runloop stopped on fatal error", slog.Any("error", err))
			return err
		}
	}
}

// iterate 执行一轮迭代。返回非 nil 即视为致命，循环停止。
func (r *Runloop) iterate(ctx context.Context) error {
	if err := r.flushBacklog(ctx); err != nil {
		return err
	}
	if err := r.drainCommits(ctx); err != nil {
		return err
	}
	polled, err := r.poll(ctx)
	if err != nil {
		return err
	}
	if err := r.reconcile(ctx); err != nil {
		return err
	}
	return r.dispatch(ctx, polled)
}

// ===== 阶段一：冲刷派发积压 =====

// flushBacklog 尽量排空各分区的本地积压，积压清空的分区恢复拉取。
func (r *Runloop) flushBacklog(ctx context.Context) error {
	var ready []*partitionQueue
	var resume []kafka.TopicPartition
	for _, q := range r.partitions {
		if q.flush() {
			ready = append(ready, q)
			resume = append(resume, q.tp.ToKafka(kafka.OffsetInvalid))
		}
	}
	if len(resume) == 0 {
		return nil
	}

	err := r.handle.WithHandle(ctx, func(c kafcore.BrokerClient) error {
		return c.Resume(resume)
	})
	if err != nil {
		if isCancellation(err) {
			return err
		}
		// Resume 失败不致命，分区保持 Pause 状态下一轮重试
		r.opts.logger.Warn("resume partitions failed", slog.Any("error", err))
		return nil
	}
	for _, q := range ready {
		q.paused = false
	}
	return nil
}

// ===== 阶段二：提交排队中的偏移量 =====

// drainCommits 取走累积的提交请求，合并为一次同步提交。
// 可重试类失败把剩余预算非零的请求重新入队，其余请求收到最终错误。
func (r *Runloop) drainCommits(ctx context.Context) error {
	reqs := r.takeCommits()
	if len(reqs) == 0 {
		return nil
	}

	offsets := coalesceOffsets(reqs)
	err := r.handle.WithHandle(ctx, func(c kafcore.BrokerClient) error {
		_, cerr := c.CommitOffsets(offsets)
		return cerr
	})

	switch {
	case err == nil:
		for _, req := range reqs {
			req.done <- nil
		}
		r.opts.sink.Emit(xdiag.CommitEvent{Offsets: len(offsets)})
		return nil

	case isCancellation(err):
		for _, req := range reqs {
			req.done <- err
		}
		return err

	case xoffset.IsRetriable(err):
		for _, req := range reqs {
			if req.remaining > 0 {
				req.remaining--
				r.enqueueCommit(req)
			} else {
				req.done <- err
			}
		}
		r.opts.sink.Emit(xdiag.CommitEvent{Offsets: len(offsets), Err: err, Retried: true})
		r.opts.logger.Warn("retriable commit failure, requeued", slog.Any("error", err))
		return nil

	default:
		// 不可重试的提交失败交给等待者处理，循环自身继续
		for _, req := range reqs {
			req.done <- err
		}
		r.opts.sink.Emit(xdiag.CommitEvent{Offsets: len(offsets), Err: err})
		return nil
	}
}

// ===== 阶段三：轮询 =====

// poll 在独占句柄下拉取一批记录。首次 Poll 以配置超时阻塞，
// 后续以零超时排空就绪事件，事件总数以 maxPollRecords 为上限。
// 再均衡回调在 Poll 内部同步执行，记录 pendingAssigned/pendingRevoked。
func (r *Runloop) poll(ctx context.Context) (map[kafcore.TopicPartition][]kafcore.Record, error) {
	timeoutMs := int(r.opts.pollTimeout.Milliseconds())
	start := time.Now()

	polled, err := xaccess.Do(ctx, r.handle,
		func(c kafcore.BrokerClient) (map[kafcore.TopicPartition][]kafcore.Record, error) {
			byPartition := make(map[kafcore.TopicPartition][]kafcore.Record)
			// 预算按事件总数计，而非仅记录数：持续到达的统计类事件
			// 同样会耗尽预算并结束本轮，句柄按期交还
			for events := 0; events < r.opts.maxPollRecords; events++ {
				t := 0
				if events == 0 {
					t = timeoutMs
				}
				ev := c.Poll(t)
				if ev == nil {
					break
				}
				switch e := ev.(type) {
				case *kafka.Message:
					rec := kafcore.RecordFromMessage(e)
					byPartition[rec.TopicPartition] = append(byPartition[rec.TopicPartition], rec)
				case kafka.Error:
					if e.IsFatal() {
						return byPartition, e
					}
					r.opts.logger.Warn("transient broker error", slog.Any("error", e))
				default:
					// 统计等其他事件不在本层关心范围
				}
			}
			return byPartition, nil
		})
	if err != nil {
		return nil, err
	}

	total := 0
	for _, recs := range polled {
		total += len(recs)
	}
	r.opts.sink.Emit(xdiag.PollEvent{
		Records:    total,
		Partitions: len(polled),
		Elapsed:    time.Since(start),
	})
	return polled, nil
}

// rebalanceCb 由底层客户端在 Poll 内部同步调用。
// 只记录变更集合，绝不在此处回调句柄，否则会与单持有者令牌死锁。
// 回调返回后由底层客户端执行默认的分配/撤销动作。
func (r *Runloop) rebalanceCb(_ *kafka.Consumer, ev kafka.Event) error {
	switch e := ev.(type) {
	case kafka.AssignedPartitions:
		r.pendingAssigned = append(r.pendingAssigned, kafcore.FromKafkaAll(e.Partitions)...)
	case kafka.RevokedPartitions:
		r.pendingRevoked = append(r.pendingRevoked, kafcore.FromKafkaAll(e.Partitions)...)
	}
	return nil
}

// ===== 阶段四：调整分区通道映射 =====

// reconcile 根据再均衡回调记录的变更开闭分区通道。
// 撤销分区的通道以正常结束态关闭；新分配分区开通道并发布到 Assigned 队列。
func (r *Runloop) reconcile(ctx context.Context) error {
	if len(r.pendingAssigned) == 0 && len(r.pendingRevoked) == 0 {
		return nil
	}
	assigned, revoked := r.pendingAssigned, r.pendingRevoked
	r.pendingAssigned, r.pendingRevoked = nil, nil

	for _, tp := range revoked {
		q, ok := r.partitions[tp]
		if !ok {
			continue
		}
		q.shutdown()
		delete(r.partitions, tp)
		r.opts.sink.Emit(xdiag.PartitionClosedEvent{Partition: tp, Revoked: true})
	}

	for _, tp := range assigned {
		if _, ok := r.partitions[tp]; ok {
			continue
		}
		q := newPartitionQueue(tp, r.opts.partitionBuffer)
		r.partitions[tp] = q

		select {
		case r.assigned <- AssignedPartition{TopicPartition: tp, Records: q.ch}:
		case <-ctx.Done():
			return ctx.Err()
		}
		r.opts.sink.Emit(xdiag.PartitionOpenedEvent{Partition: tp})
	}

	r.opts.sink.Emit(xdiag.RebalanceEvent{Assigned: assigned, Revoked: revoked})
	r.opts.logger.Info("partition assignment changed",
		slog.Int("assigned", len(assigned)),
		slog.Int("revoked", len(revoked)),
	)
	return nil
}

// ===== 阶段五：派发 =====

// dispatch 把本轮拉取的记录块推入对应分区通道。
// 通道满的分区转入本地积压并 Pause，慢分区只影响自己。
func (r *Runloop) dispatch(ctx context.Context, polled map[kafcore.TopicPartition][]kafcore.Record) error {
	if len(polled) == 0 {
		return nil
	}

	var pause []kafka.TopicPartition
	for tp, recs := range polled {
		q, ok := r.partitions[tp]
		if !ok {
			// 分区在同一轮内被撤销，记录未提交，再均衡后重新投递
			continue
		}
		if q.offer(recs) {
			pause = append(pause, tp.ToKafka(kafka.OffsetInvalid))
		}
	}
	if len(pause) == 0 {
		return nil
	}

	err := r.handle.WithHandle(ctx, func(c kafcore.BrokerClient) error {
		return c.Pause(pause)
	})
	if err != nil && !isCancellation(err) {
		// Pause 失败时记录仍安全地留在积压中，最多多拉取一轮
		r.opts.logger.Warn("pause partitions failed", slog.Any("error", err))
		return nil
	}
	return err
}

// ===== 收尾 =====

// finish 在 Run 退出时执行：先断提交队列并公布退出原因，
// 再以正常结束态关闭全部分区通道和分配队列。
func (r *Runloop) finish() {
	r.failCommits(r.stopCause())
	close(r.stopped)

	for tp, q := range r.partitions {
		q.shutdown()
		r.opts.sink.Emit(xdiag.PartitionClosedEvent{Partition: tp})
	}
	r.partitions = nil
	close(r.assigned)
}

func (r *Runloop) stopCause() error {
	if r.cause != nil {
		return r.cause
	}
	return ErrStopped
}

// isCancellation 判断 err 是否属于关闭/取消类控制流信号。
func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, xaccess.ErrClosed)
}
