// Package xaccess 提供对非线程安全的阻塞式 Kafka 消费者句柄的独占访问包装。
//
// confluent-kafka-go 的 *kafka.Consumer 不可重入：Poll、CommitOffsets 等
// 操作不允许并发调用。xaccess.Handle 通过容量为 1 的令牌通道串行化所有
// 访问，并将每个阻塞调用派发到独立 goroutine 上执行，使调用方可以用
// context 取消一个正在阻塞中的原生调用。
//
// 取消语义：调用方 context 取消后，Handle 会向底层客户端发出带外唤醒
// 信号（若其实现了 Waker 接口），并等待 worker goroutine 从阻塞调用中
// 完全退出后才归还令牌。令牌永远不会在原生调用仍在进行时被释放。
//
// 使用方式：
//
//	h, err := xaccess.New(consumer)
//	if err != nil { ... }
//	err = h.WithHandle(ctx, func(c kafcore.BrokerClient) error {
//	    _, err := c.CommitOffsets(offsets)
//	    return err
//	})
//	defer h.Close(5 * time.Second)
package xaccess
