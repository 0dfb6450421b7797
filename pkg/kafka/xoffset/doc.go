// Package xoffset 提供偏移量及偏移量批次的不可变值类型。
//
// Offset 表示"分区 P 上已读完记录 X，下次读取应从其后继续"；Batch 是
// 跨分区的偏移量合并映射，合并语义为按分区取最大值，乱序合并永远不会
// 使某分区已记录的偏移量回退。EmptyBatch 是合并运算的幺元。
//
// 提交动作（CommitFunc）由创建方注入，Batch 自身不感知 broker 细节。
// CommitOrRetry 仅在失败同时满足"broker 定义的可重试类别"与"调用方
// 重试策略仍允许"两个条件时重试，两者是合取关系。
//
// 所有类型均为纯值，可跨 goroutine 自由共享，无需同步。
package xoffset
