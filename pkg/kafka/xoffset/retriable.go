package xoffset

import (
	"errors"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// IsRetriable 报告 err 是否属于 broker 定义的可重试提交失败类别。
//
// librdkafka 给每个错误码标注了 retriable 属性；此外消费组再均衡
// 进行中的提交失败（REBALANCE_IN_PROGRESS）换届完成后重试即可成功，
// 一并归入可重试类别。非 kafka.Error 的错误一律视为不可重试。
func IsRetriable(err error) bool {
	var kerr kafka.Error
	if !errors.As(err, &kerr) {
		return false
	}
	if kerr.IsFatal() {
		return false
	}
	return kerr.IsRetriable() || kerr.Code() == kafka.ErrRebalanceInProgress
}
