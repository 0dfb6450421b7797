package kafcore

import "strings"

// Subscription 描述一次订阅：主题名集合或正则模式，二选一。
//
// 设计决策: 用封闭的二元变体（内部标记字段）而非接口层次表达订阅类型，
// 订阅种类是固定的，开放扩展没有意义。零值 Subscription 表示"未订阅"，
// 可通过 IsZero 检测。
type Subscription struct {
	topics  []string
	pattern string
}

// Topics 构造基于主题名集合的订阅。
func Topics(topics ...string) Subscription {
	return Subscription{topics: topics}
}

// Pattern 构造基于正则模式的订阅。
// librdkafka 要求模式以 "^" 开头才按正则匹配，缺失时自动补全。
func Pattern(expr string) Subscription {
	if expr != "" && !strings.HasPrefix(expr, "^") {
		expr = "^" + expr
	}
	return Subscription{pattern: expr}
}

// IsPattern 报告订阅是否为正则模式。
func (s Subscription) IsPattern() bool {
	return s.pattern != ""
}

// IsZero 报告订阅是否为空（既无主题也无模式）。
func (s Subscription) IsZero() bool {
	return len(s.topics) == 0 && s.pattern == ""
}

// List 返回传给 SubscribeTopics 的主题列表。
// 正则模式订阅返回单元素列表（librdkafka 通过 "^" 前缀识别正则）。
func (s Subscription) List() []string {
	if s.IsPattern() {
		return []string{s.pattern}
	}
	return s.topics
}

// String 返回订阅的可读表示。
func (s Subscription) String() string {
	if s.IsPattern() {
		return "pattern:" + s.pattern
	}
	return "topics:" + strings.Join(s.topics, ",")
}
