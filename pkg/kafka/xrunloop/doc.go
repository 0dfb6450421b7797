// Package xrunloop 实现消费者的后台轮询循环。
//
// Runloop 拥有调用 Poll 的唯一代码路径。每轮迭代按固定顺序执行四个
// 阶段：冲刷待派发积压、提交排队中的偏移量、轮询新记录、按当前分区
// 分配调整 分区→通道 映射并把记录派发到对应通道。顺序固定是为了避免
// 向一个分配刚刚变更的句柄提交偏移量。
//
// 再均衡回调由底层客户端在 Poll 内部同步调用，它只记录被撤销/新分配
// 的分区集合供下一阶段处理，绝不回调句柄自身，否则会对单持有者令牌
// 形成死锁。
//
// 背压模型：每个分区通道有界；通道满时该分区被 Pause 并把记录暂存在
// 分区本地积压中，下游跟上后 Resume。慢消费者只阻塞自己的分区，
// 不阻塞整个循环。
//
// 提交从循环视角是即发即收：调用方经 CommitAsync 入队后循环在下一轮
// 迭代合并提交（同分区取最大偏移量），可重试类失败按请求剩余预算
// 重新入队。
package xrunloop
