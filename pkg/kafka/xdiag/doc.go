// Package xdiag 提供消费协调层的诊断事件汇。
//
// 运行循环在关键节点（poll 完成、分区再均衡、提交完成、分区通道开闭、
// 循环失败）以
// fire-and-forget 的方式发出诊断事件，Sink 实现决定如何处置：
//
//   - NoopSink：默认实现，丢弃所有事件
//   - RingSink：有界环形缓冲，保留最近 N 条事件供检查，覆盖最旧条目；
//     使用完毕必须调用 Close 释放缓冲
//   - OTelSink：把事件计入 OpenTelemetry 指标计数器
//
// Emit 必须是非阻塞且不 panic 的：它在运行循环的关键路径上被调用。
package xdiag
