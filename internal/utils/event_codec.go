package utils

import (
	"encoding/binary"
	"errors"
	"fmt"
	"reflect"

	"github.com/near/borsh-go"
)

const eventPrefixSize = 4

// EncodeEvent 将事件编码为带事件类型前缀的二进制数据：
// - 前 4 字节为事件类型（uint32，小端序）
// - 后续为 borsh 序列化数据
//
// msg 必须是值类型，指针会被 borsh 编码为 Option，DecodeEvent 无法还原。
func EncodeEvent(eventType uint32, msg any) ([]byte, error) {
	if reflect.ValueOf(msg).Kind() == reflect.Pointer {
		return nil, fmt.Errorf("EncodeEvent: pointer message %T", msg)
	}
	body, err := borsh.Serialize(msg)
	if err != nil {
		return nil, fmt.Errorf("EncodeEvent: serialize %T: %w", msg, err)
	}
	buf := make([]byte, eventPrefixSize, eventPrefixSize+len(body))
	binary.LittleEndian.PutUint32(buf, eventType)
	return append(buf, body...), nil
}

// PeekEventType 读取事件类型前缀
func PeekEventType(data []byte) (uint32, error) {
	if len(data) < eventPrefixSize {
		return 0, errors.New("event too short")
	}
	return binary.LittleEndian.Uint32(data[:eventPrefixSize]), nil
}

// DecodeEvent 校验事件类型并反序列化到 out（指针）
func DecodeEvent(data []byte, wantType uint32, out any) (err error) {
	eventType, err := PeekEventType(data)
	if err != nil {
		return err
	}
	if eventType != wantType {
		return fmt.Errorf("event type %d, want %d", eventType, wantType)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("DecodeEvent: panic: %v", r)
		}
	}()
	if err := borsh.Deserialize(out, data[eventPrefixSize:]); err != nil {
		return fmt.Errorf("DecodeEvent: deserialize %T: %w", out, err)
	}
	return nil
}
