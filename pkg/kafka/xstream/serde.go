package xstream

import (
	"encoding/json"

	"github.com/omeyang/streamkit/internal/kafcore"
)

// DecodeFunc 把原始字节反序列化为 T。
// 反序列化发生在派发之后的调用方侧，不占用轮询临界路径。
type DecodeFunc[T any] func(data []byte) (T, error)

// JSONDecoder 返回基于 encoding/json 的解码器。
func JSONDecoder[T any]() DecodeFunc[T] {
	return func(data []byte) (T, error) {
		var v T
		err := json.Unmarshal(data, &v)
		return v, err
	}
}

// StringDecoder 返回将字节原样转为字符串的解码器。
func StringDecoder() DecodeFunc[string] {
	return func(data []byte) (string, error) {
		return string(data), nil
	}
}

// DecodeValue 解码记录的值。
func DecodeValue[T any](rec kafcore.Record, decode DecodeFunc[T]) (T, error) {
	return decode(rec.Value)
}

// DecodeKey 解码记录的键。
func DecodeKey[T any](rec kafcore.Record, decode DecodeFunc[T]) (T, error) {
	return decode(rec.Key)
}
