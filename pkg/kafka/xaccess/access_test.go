package xaccess

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/omeyang/streamkit/internal/kafcore"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeClient 是满足 kafcore.BrokerClient 和 Waker 的测试替身。
type fakeClient struct {
	closed   atomic.Bool
	wakeOnce sync.Once
	woken    chan struct{}
}

func newFakeClient() *fakeClient {
	return &fakeClient{woken: make(chan struct{})}
}

func (f *fakeClient) Wakeup() {
	f.wakeOnce.Do(func() { close(f.woken) })
}

func (f *fakeClient) SubscribeTopics([]string, kafka.RebalanceCb) error { return nil }
func (f *fakeClient) Unsubscribe() error                                { return nil }
func (f *fakeClient) Poll(int) kafka.Event                              { return nil }
func (f *fakeClient) Assignment() ([]kafka.TopicPartition, error)       { return nil, nil }
func (f *fakeClient) CommitOffsets(offsets []kafka.TopicPartition) ([]kafka.TopicPartition, error) {
	return offsets, nil
}
func (f *fakeClient) Committed(p []kafka.TopicPartition, _ int) ([]kafka.TopicPartition, error) {
	return p, nil
}
func (f *fakeClient) SeekPartitions(p []kafka.TopicPartition) ([]kafka.TopicPartition, error) {
	return p, nil
}
func (f *fakeClient) QueryWatermarkOffsets(string, int32, int) (int64, int64, error) {
	return 0, 0, nil
}
func (f *fakeClient) OffsetsForTimes(t []kafka.TopicPartition, _ int) ([]kafka.TopicPartition, error) {
	return t, nil
}
func (f *fakeClient) GetMetadata(*string, bool, int) (*kafka.Metadata, error) { return nil, nil }
func (f *fakeClient) Position(p []kafka.TopicPartition) ([]kafka.TopicPartition, error) {
	return p, nil
}
func (f *fakeClient) Pause([]kafka.TopicPartition) error  { return nil }
func (f *fakeClient) Resume([]kafka.TopicPartition) error { return nil }
func (f *fakeClient) Close() error {
	f.closed.Store(true)
	return nil
}

var (
	_ kafcore.BrokerClient = (*fakeClient)(nil)
	_ Waker                = (*fakeClient)(nil)
)

func TestNew_NilClient(t *testing.T) {
	h, err := New(nil)
	assert.Nil(t, h)
	assert.ErrorIs(t, err, ErrNilClient)
}

func TestWithHandle_NilFunc(t *testing.T) {
	h := mustHandle(t)
	defer closeHandle(t, h)

	err := h.WithHandle(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNilFunc)
}

func TestWithHandle_RunsFn(t *testing.T) {
	fc := newFakeClient()
	h, err := New(fc)
	require.NoError(t, err)
	defer closeHandle(t, h)

	var got kafcore.BrokerClient
	err = h.WithHandle(context.Background(), func(c kafcore.BrokerClient) error {
		got = c
		return nil
	})
	require.NoError(t, err)
	assert.Same(t, fc, got)
}

func TestWithHandle_PropagatesError(t *testing.T) {
	h := mustHandle(t)
	defer closeHandle(t, h)

	boom := errors.New("boom")
	err := h.WithHandle(context.Background(), func(kafcore.BrokerClient) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestWithHandle_MutualExclusion(t *testing.T) {
	h := mustHandle(t)
	defer closeHandle(t, h)

	const callers = 32
	var active, maxActive atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := h.WithHandle(context.Background(), func(kafcore.BrokerClient) error {
				n := active.Add(1)
				if n > maxActive.Load() {
					maxActive.Store(n)
				}
				time.Sleep(time.Millisecond)
				active.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxActive.Load(), "two callers executed inside the handle concurrently")
}

func TestWithHandle_CancelWakesAndUnwinds(t *testing.T) {
	fc := newFakeClient()
	h, err := New(fc)
	require.NoError(t, err)
	defer closeHandle(t, h)

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	var unwound atomic.Bool

	done := make(chan error, 1)
	go func() {
		done <- h.WithHandle(ctx, func(kafcore.BrokerClient) error {
			close(started)
			<-fc.woken
			unwound.Store(true)
			return nil
		})
	}()

	<-started
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled call did not return")
	}

	// 取消返回前 worker 必须已完全退出
	assert.True(t, unwound.Load())

	// 令牌已归还，新调用可立即进入
	acquireCtx, acquireCancel := context.WithTimeout(context.Background(), time.Second)
	defer acquireCancel()
	assert.NoError(t, h.WithHandle(acquireCtx, func(kafcore.BrokerClient) error { return nil }))
}

func TestDo_ReturnsValue(t *testing.T) {
	h := mustHandle(t)
	defer closeHandle(t, h)

	got, err := Do(context.Background(), h, func(kafcore.BrokerClient) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestDo_Error(t *testing.T) {
	h := mustHandle(t)
	defer closeHandle(t, h)

	boom := errors.New("boom")
	got, err := Do(context.Background(), h, func(kafcore.BrokerClient) (string, error) {
		return "ignored", boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, got)
}

func TestClose_Idempotent(t *testing.T) {
	fc := newFakeClient()
	h, err := New(fc)
	require.NoError(t, err)

	require.NoError(t, h.Close(time.Second))
	require.NoError(t, h.Close(time.Second))
	assert.True(t, fc.closed.Load())
	assert.True(t, h.IsClosed())
}

func TestClose_RejectsNewCalls(t *testing.T) {
	h := mustHandle(t)
	require.NoError(t, h.Close(time.Second))

	err := h.WithHandle(context.Background(), func(kafcore.BrokerClient) error { return nil })
	assert.ErrorIs(t, err, ErrClosed)

	_, err = Do(context.Background(), h, func(kafcore.BrokerClient) (int, error) { return 0, nil })
	assert.ErrorIs(t, err, ErrClosed)
}

func TestClose_WakesInFlightCall(t *testing.T) {
	fc := newFakeClient()
	h, err := New(fc, WithCloseGrace(2*time.Second))
	require.NoError(t, err)

	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- h.WithHandle(context.Background(), func(kafcore.BrokerClient) error {
			close(started)
			<-fc.woken
			return nil
		})
	}()

	<-started
	// 令牌被在途调用持有，Close 在短超时后发出唤醒并等待其退出
	require.NoError(t, h.Close(10*time.Millisecond))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight call did not unwind after wakeup")
	}
	assert.True(t, fc.closed.Load())
}

func mustHandle(t *testing.T) *Handle {
	t.Helper()
	h, err := New(newFakeClient())
	require.NoError(t, err)
	return h
}

func closeHandle(t *testing.T, h *Handle) {
	t.Helper()
	require.NoError(t, h.Close(time.Second))
}
