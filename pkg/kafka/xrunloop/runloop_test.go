package xrunloop

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/omeyang/streamkit/internal/kafcore"
	"github.com/omeyang/streamkit/pkg/kafka/xaccess"
	"github.com/omeyang/streamkit/pkg/kafka/xdiag"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// pollEnd 让脚本化 Poll 返回 nil，结束当前迭代的拉取阶段。
type pollEnd struct{}

// scriptedClient 按预置脚本回放事件的测试替身。
// 再均衡条目会像真实客户端一样在 Poll 内部同步调用注册的回调。
type scriptedClient struct {
	mu         sync.Mutex
	cb         kafka.RebalanceCb
	script     []any
	commits    [][]kafka.TopicPartition
	commitErrs []error
	paused     [][]kafka.TopicPartition
	resumed    [][]kafka.TopicPartition
	closed     bool
}

func newScriptedClient(script ...any) *scriptedClient {
	return &scriptedClient{script: script}
}

func (s *scriptedClient) append(entries ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script = append(s.script, entries...)
}

func (s *scriptedClient) SubscribeTopics(_ []string, cb kafka.RebalanceCb) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cb = cb
	return nil
}

func (s *scriptedClient) Unsubscribe() error { return nil }

func (s *scriptedClient) Poll(int) kafka.Event {
	s.mu.Lock()
	if len(s.script) == 0 {
		s.mu.Unlock()
		return nil
	}
	entry := s.script[0]
	s.script = s.script[1:]
	cb := s.cb
	s.mu.Unlock()

	switch e := entry.(type) {
	case pollEnd:
		return nil
	case kafka.AssignedPartitions, kafka.RevokedPartitions:
		if cb != nil {
			_ = cb(nil, e.(kafka.Event))
		}
		return nil
	case kafka.Event:
		return e
	default:
		return nil
	}
}

func (s *scriptedClient) Assignment() ([]kafka.TopicPartition, error) { return nil, nil }

func (s *scriptedClient) CommitOffsets(offsets []kafka.TopicPartition) ([]kafka.TopicPartition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commits = append(s.commits, append([]kafka.TopicPartition(nil), offsets...))
	if len(s.commitErrs) > 0 {
		err := s.commitErrs[0]
		s.commitErrs = s.commitErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return offsets, nil
}

func (s *scriptedClient) commitCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.commits)
}

func (s *scriptedClient) Committed(p []kafka.TopicPartition, _ int) ([]kafka.TopicPartition, error) {
	return p, nil
}
func (s *scriptedClient) SeekPartitions(p []kafka.TopicPartition) ([]kafka.TopicPartition, error) {
	return p, nil
}
func (s *scriptedClient) QueryWatermarkOffsets(string, int32, int) (int64, int64, error) {
	return 0, 0, nil
}
func (s *scriptedClient) OffsetsForTimes(t []kafka.TopicPartition, _ int) ([]kafka.TopicPartition, error) {
	return t, nil
}
func (s *scriptedClient) GetMetadata(*string, bool, int) (*kafka.Metadata, error) { return nil, nil }
func (s *scriptedClient) Position(p []kafka.TopicPartition) ([]kafka.TopicPartition, error) {
	return p, nil
}

func (s *scriptedClient) Pause(p []kafka.TopicPartition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = append(s.paused, append([]kafka.TopicPartition(nil), p...))
	return nil
}

func (s *scriptedClient) Resume(p []kafka.TopicPartition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resumed = append(s.resumed, append([]kafka.TopicPartition(nil), p...))
	return nil
}

func (s *scriptedClient) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

var _ kafcore.BrokerClient = (*scriptedClient)(nil)

var (
	p0 = kafcore.TopicPartition{Topic: "orders", Partition: 0}
	p1 = kafcore.TopicPartition{Topic: "orders", Partition: 1}
)

func assign(tps ...kafcore.TopicPartition) kafka.AssignedPartitions {
	out := make([]kafka.TopicPartition, len(tps))
	for i, tp := range tps {
		out[i] = tp.ToKafka(kafka.OffsetInvalid)
	}
	return kafka.AssignedPartitions{Partitions: out}
}

func revoke(tps ...kafcore.TopicPartition) kafka.RevokedPartitions {
	out := make([]kafka.TopicPartition, len(tps))
	for i, tp := range tps {
		out[i] = tp.ToKafka(kafka.OffsetInvalid)
	}
	return kafka.RevokedPartitions{Partitions: out}
}

func msg(tp kafcore.TopicPartition, offset int64) *kafka.Message {
	topic := tp.Topic
	return &kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &topic,
			Partition: tp.Partition,
			Offset:    kafka.Offset(offset),
		},
		Value: []byte("v"),
	}
}

// startLoop 订阅并在后台启动循环，返回 Runloop 与停止函数。
func startLoop(t *testing.T, client *scriptedClient, opts ...Option) (*Runloop, func() error) {
	t.Helper()

	h, err := xaccess.New(client)
	require.NoError(t, err)

	opts = append([]Option{WithPollTimeout(time.Millisecond)}, opts...)
	r, err := New(h, opts...)
	require.NoError(t, err)
	require.NoError(t, r.Subscribe(context.Background(), kafcore.Topics("orders")))

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- r.Run(ctx) }()

	// 等待循环真正启动；running 一旦置位便不会复位（Run 只能调用一次），
	// 否则在单核调度下测试自身对 Run 的再次调用可能抢先占用 running 标志。
	for !r.running.Load() {
		time.Sleep(time.Millisecond)
	}

	var stopOnce sync.Once
	var stopped error
	stop := func() error {
		stopOnce.Do(func() {
			cancel()
			select {
			case stopped = <-runErr:
			case <-time.After(5 * time.Second):
				t.Fatal("runloop did not stop")
			}
			_ = h.Close(time.Second)
		})
		return stopped
	}
	t.Cleanup(func() { _ = stop() })
	return r, stop
}

func collect(t *testing.T, ch <-chan []kafcore.Record, want int) []kafcore.Record {
	t.Helper()
	var out []kafcore.Record
	deadline := time.After(5 * time.Second)
	for len(out) < want {
		select {
		case chunk, ok := <-ch:
			if !ok {
				t.Fatalf("channel closed after %d of %d records", len(out), want)
			}
			out = append(out, chunk...)
		case <-deadline:
			t.Fatalf("timed out after %d of %d records", len(out), want)
		}
	}
	return out
}

func TestRunloop_RoutesRecordsByPartition(t *testing.T) {
	client := newScriptedClient(
		assign(p0, p1),
		pollEnd{},
		msg(p0, 0), msg(p1, 0), msg(p0, 1), msg(p0, 2),
	)
	r, stop := startLoop(t, client)

	ap0 := <-r.Assigned()
	ap1 := <-r.Assigned()
	assert.Equal(t, p0, ap0.TopicPartition)
	assert.Equal(t, p1, ap1.TopicPartition)

	recs0 := collect(t, ap0.Records, 3)
	recs1 := collect(t, ap1.Records, 1)

	// 分区内保序
	for i, rec := range recs0 {
		assert.Equal(t, int64(i), rec.Offset)
		assert.Equal(t, p0, rec.TopicPartition)
	}
	assert.Equal(t, int64(0), recs1[0].Offset)

	require.NoError(t, stop())

	// 关闭后所有通道正常结束
	_, ok := <-ap0.Records
	assert.False(t, ok)
	_, ok = <-ap1.Records
	assert.False(t, ok)
	assert.NoError(t, r.Cause())
}

func TestRunloop_RevocationClosesOnlyThatPartition(t *testing.T) {
	client := newScriptedClient(
		assign(p0, p1),
		pollEnd{},
		msg(p1, 0),
		revoke(p0),
		pollEnd{},
		msg(p1, 1),
	)
	r, stop := startLoop(t, client)

	ap0 := <-r.Assigned()
	ap1 := <-r.Assigned()

	// p0 撤销后其通道正常关闭
	select {
	case _, ok := <-ap0.Records:
		assert.False(t, ok, "revoked partition must close, not deliver")
	case <-time.After(5 * time.Second):
		t.Fatal("revoked partition channel never closed")
	}
	assert.NoError(t, r.Cause(), "revocation is a normal completion")

	// p1 不受影响，持续产出
	recs := collect(t, ap1.Records, 2)
	assert.Equal(t, int64(0), recs[0].Offset)
	assert.Equal(t, int64(1), recs[1].Offset)

	require.NoError(t, stop())
}

func TestRunloop_CommitCoalescesMaxPerPartition(t *testing.T) {
	client := newScriptedClient()
	h, err := xaccess.New(client)
	require.NoError(t, err)
	r, err := New(h, WithPollTimeout(time.Millisecond))
	require.NoError(t, err)

	// 先入队再启动，两个请求在首轮迭代中合并为一次提交
	d1 := r.CommitAsync(map[kafcore.TopicPartition]int64{p0: 5})
	d2 := r.CommitAsync(map[kafcore.TopicPartition]int64{p0: 3, p1: 7})

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- r.Run(ctx) }()

	assert.NoError(t, <-d1)
	assert.NoError(t, <-d2)

	cancel()
	require.NoError(t, <-runErr)
	require.NoError(t, h.Close(time.Second))

	client.mu.Lock()
	defer client.mu.Unlock()
	require.Len(t, client.commits, 1)
	got := map[kafcore.TopicPartition]kafka.Offset{}
	for _, ktp := range client.commits[0] {
		got[kafcore.FromKafka(ktp)] = ktp.Offset
	}
	// 同分区取最大记录偏移量，提交时 +1
	assert.Equal(t, kafka.Offset(6), got[p0])
	assert.Equal(t, kafka.Offset(8), got[p1])
}

func TestRunloop_RetriableCommitRequeued(t *testing.T) {
	client := newScriptedClient()
	client.commitErrs = []error{
		kafka.NewError(kafka.ErrRebalanceInProgress, "group rebalancing", false),
		nil,
	}
	r, _ := startLoop(t, client)

	err := r.Commit(context.Background(), map[kafcore.TopicPartition]int64{p0: 9})
	assert.NoError(t, err)
	assert.Equal(t, 2, client.commitCount())
}

func TestRunloop_CommitRetryBudgetExhausted(t *testing.T) {
	retriable := kafka.NewError(kafka.ErrRebalanceInProgress, "group rebalancing", false)
	client := newScriptedClient()
	client.commitErrs = []error{retriable, retriable, retriable}
	r, _ := startLoop(t, client, WithCommitRetries(2))

	err := r.Commit(context.Background(), map[kafcore.TopicPartition]int64{p0: 1})
	assert.ErrorIs(t, err, retriable)
	assert.Equal(t, 3, client.commitCount())
}

func TestRunloop_NonRetriableCommitNotRetried(t *testing.T) {
	boom := kafka.NewError(kafka.ErrInvalidArg, "bad offsets", false)
	client := newScriptedClient()
	client.commitErrs = []error{boom}
	r, stop := startLoop(t, client)

	err := r.Commit(context.Background(), map[kafcore.TopicPartition]int64{p0: 1})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, client.commitCount())

	// 提交失败不致命，循环仍正常关闭
	require.NoError(t, stop())
	assert.NoError(t, r.Cause())
}

func TestRunloop_EmptyCommitRejected(t *testing.T) {
	client := newScriptedClient()
	r, _ := startLoop(t, client)

	assert.ErrorIs(t, <-r.CommitAsync(nil), ErrEmptyOffsets)
}

func TestRunloop_FatalBrokerErrorStopsLoop(t *testing.T) {
	fatal := kafka.NewError(kafka.ErrFenced, "fenced", true)
	client := newScriptedClient(
		assign(p0),
		pollEnd{},
		fatal,
	)

	h, err := xaccess.New(client)
	require.NoError(t, err)
	r, err := New(h, WithPollTimeout(time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, r.Subscribe(context.Background(), kafcore.Topics("orders")))

	runErr := make(chan error, 1)
	go func() { runErr <- r.Run(context.Background()) }()

	ap := <-r.Assigned()

	select {
	case err := <-runErr:
		assert.ErrorIs(t, err, fatal)
	case <-time.After(5 * time.Second):
		t.Fatal("runloop did not stop on fatal error")
	}

	// 分区通道已关闭，且 Cause 暴露故障原因
	_, ok := <-ap.Records
	assert.False(t, ok)
	assert.ErrorIs(t, r.Cause(), fatal)

	// 停止后的提交立即失败
	assert.ErrorIs(t, <-r.CommitAsync(map[kafcore.TopicPartition]int64{p0: 1}), fatal)

	require.NoError(t, h.Close(time.Second))
}

func TestRunloop_BackpressurePausesAndResumes(t *testing.T) {
	client := newScriptedClient(
		assign(p0),
		pollEnd{},
		msg(p0, 0), pollEnd{},
		msg(p0, 1), pollEnd{},
		msg(p0, 2), pollEnd{},
	)
	r, stop := startLoop(t, client, WithPartitionBuffer(1))

	ap := <-r.Assigned()

	// 不读取通道，等待背压触发 Pause
	require.Eventually(t, func() bool {
		client.mu.Lock()
		defer client.mu.Unlock()
		return len(client.paused) > 0
	}, 5*time.Second, time.Millisecond, "partition was never paused")

	// 开始消费后积压被冲刷，分区被 Resume，记录保序无丢失
	recs := collect(t, ap.Records, 3)
	for i, rec := range recs {
		assert.Equal(t, int64(i), rec.Offset)
	}

	require.Eventually(t, func() bool {
		client.mu.Lock()
		defer client.mu.Unlock()
		return len(client.resumed) > 0
	}, 5*time.Second, time.Millisecond, "partition was never resumed")

	require.NoError(t, stop())
}

func TestRunloop_RunTwiceRejected(t *testing.T) {
	client := newScriptedClient()
	r, _ := startLoop(t, client)

	assert.ErrorIs(t, r.Run(context.Background()), ErrAlreadyRunning)
}

func TestRunloop_StoppedCommitFails(t *testing.T) {
	client := newScriptedClient()
	r, stop := startLoop(t, client)
	require.NoError(t, stop())

	assert.ErrorIs(t, <-r.CommitAsync(map[kafcore.TopicPartition]int64{p0: 1}), ErrStopped)
	assert.ErrorIs(t, r.Commit(context.Background(), map[kafcore.TopicPartition]int64{p0: 1}), ErrStopped)
}

func TestNew_NilHandle(t *testing.T) {
	r, err := New(nil)
	assert.Nil(t, r)
	assert.ErrorIs(t, err, ErrNilHandle)
}

func TestSubscribe_EmptySubscription(t *testing.T) {
	h, err := xaccess.New(newScriptedClient())
	require.NoError(t, err)
	defer func() { _ = h.Close(time.Second) }()

	r, err := New(h)
	require.NoError(t, err)
	assert.ErrorIs(t, r.Subscribe(context.Background(), kafcore.Subscription{}), kafcore.ErrEmptySubscription)
}

// recordingSink 无界记录所有事件的测试诊断汇。
// 循环在脚本耗尽后仍会持续产生空 poll 事件，有界环形缓冲会把
// 早期事件挤出，因此断言事件序列时用它替代 RingSink。
type recordingSink struct {
	mu     sync.Mutex
	events []xdiag.Event
}

func (s *recordingSink) Emit(ev xdiag.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) snapshot() []xdiag.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]xdiag.Event(nil), s.events...)
}

func TestRunloop_PartitionLifecycleEventsEmitted(t *testing.T) {
	sink := &recordingSink{}
	client := newScriptedClient(
		assign(p0, p1),
		pollEnd{},
		revoke(p0),
		pollEnd{},
	)
	r, stop := startLoop(t, client, WithSink(sink))

	ap0 := <-r.Assigned()
	ap1 := <-r.Assigned()

	// p0 撤销后其通道关闭
	select {
	case _, ok := <-ap0.Records:
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("revoked partition channel never closed")
	}
	require.NoError(t, stop())

	// p1 由收尾关闭
	_, ok := <-ap1.Records
	assert.False(t, ok)

	var opened []kafcore.TopicPartition
	var closed []xdiag.PartitionClosedEvent
	for _, ev := range sink.snapshot() {
		switch e := ev.(type) {
		case xdiag.PartitionOpenedEvent:
			opened = append(opened, e.Partition)
		case xdiag.PartitionClosedEvent:
			closed = append(closed, e)
		}
	}
	assert.ElementsMatch(t, []kafcore.TopicPartition{p0, p1}, opened)

	require.Len(t, closed, 2)
	revokedBy := make(map[kafcore.TopicPartition]bool, 2)
	for _, e := range closed {
		revokedBy[e.Partition] = e.Revoked
	}
	assert.True(t, revokedBy[p0], "revocation-triggered close carries Revoked")
	flag, present := revokedBy[p1]
	require.True(t, present)
	assert.False(t, flag, "shutdown close is not a revocation")
}

func TestRunloop_NonRecordEventsCountTowardPollBudget(t *testing.T) {
	sink := &recordingSink{}
	transient := kafka.NewError(kafka.ErrAllBrokersDown, "transient", false)
	client := newScriptedClient(
		assign(p0),
		transient, transient, transient, transient, transient,
		msg(p0, 0),
		pollEnd{},
	)
	r, stop := startLoop(t, client, WithSink(sink), WithMaxPollRecords(4))

	ap := <-r.Assigned()
	recs := collect(t, ap.Records, 1)
	assert.Equal(t, int64(0), recs[0].Offset)

	require.NoError(t, stop())

	// 迭代一消费 assign 条目；迭代二消费 4 条瞬时错误后事件预算耗尽，
	// 空手返回；迭代三才拉到记录。记录数落在第三个 poll 事件上。
	var polls []xdiag.PollEvent
	for _, ev := range sink.snapshot() {
		if p, isPoll := ev.(xdiag.PollEvent); isPoll {
			polls = append(polls, p)
		}
	}
	require.GreaterOrEqual(t, len(polls), 3)
	assert.Equal(t, 0, polls[0].Records)
	assert.Equal(t, 0, polls[1].Records, "error-only iteration must end on event budget")
	assert.Equal(t, 1, polls[2].Records)
}
