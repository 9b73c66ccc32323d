package mq

import (
	"fmt"

	"ctoken-engine-sol/internal/config"
	"ctoken-engine-sol/internal/utils"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// NewKafkaConsumer 创建请求消费者并订阅 topic。
// offset 手动提交：请求处理完（无论成功与否）才提交。
func NewKafkaConsumer(cfg config.KafkaConsumerConfig) (*kafka.Consumer, error) {
	consumer, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":     cfg.Brokers,
		"group.id":              cfg.GroupID,
		"client.id":             fmt.Sprintf("ctoken-engine-consumer-%s", utils.GetLocalIP()),
		"auto.offset.reset":     "earliest",
		"enable.auto.commit":    false,
		"session.timeout.ms":    10000, // 会话超时时间 10 秒
		"heartbeat.interval.ms": 3000,  // 心跳间隔 3 秒
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}
	if err := consumer.Subscribe(cfg.Topic, nil); err != nil {
		_ = consumer.Close()
		return nil, fmt.Errorf("failed to subscribe %s: %w", cfg.Topic, err)
	}
	return consumer, nil
}
