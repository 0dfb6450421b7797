package xstream

import "errors"

// 预定义错误变量，便于调用方使用 errors.Is 进行判断。
var (
	// ErrMissingBrokers 表示配置缺少 bootstrap 地址。
	ErrMissingBrokers = errors.New("xstream: bootstrap servers are required")

	// ErrMissingGroupID 表示配置缺少消费组 ID。
	ErrMissingGroupID = errors.New("xstream: group id is required")

	// ErrUnsupportedFormat 表示不支持的配置格式。
	ErrUnsupportedFormat = errors.New("xstream: unsupported settings format")

	// ErrSettingsLoad 表示配置加载失败。
	ErrSettingsLoad = errors.New("xstream: load settings failed")

	// ErrClosed 表示消费者已关闭。
	ErrClosed = errors.New("xstream: consumer closed")

	// ErrAlreadySubscribed 表示消费者已有订阅。一个消费者实例只承载
	// 一次订阅生命周期。
	ErrAlreadySubscribed = errors.New("xstream: already subscribed")

	// ErrNotSubscribed 表示操作要求先订阅。
	ErrNotSubscribed = errors.New("xstream: not subscribed")

	// ErrStreamClaimed 表示流已被领取。Partitions 与 Records 互斥，
	// 且均不可重复调用。
	ErrStreamClaimed = errors.New("xstream: stream already claimed")

	// ErrNilHandler 表示回调函数为 nil。
	ErrNilHandler = errors.New("xstream: handler is nil")
)
