package service

import (
	"context"
	"time"

	"ctoken-engine-sol/internal/metrics"
	"ctoken-engine-sol/internal/mq"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// Publisher 发送事件消息，返回失败的部分
type Publisher interface {
	Publish(ctx context.Context, jobs []*mq.KafkaJob) []mq.KafkaSendResult
}

// KafkaPublisher 基于 confluent-kafka 的 Publisher
type KafkaPublisher struct {
	producer *kafka.Producer
	timeout  time.Duration
	metrics  *metrics.Metrics
}

func NewKafkaPublisher(producer *kafka.Producer, perMessageTimeout time.Duration, m *metrics.Metrics) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, timeout: perMessageTimeout, metrics: m}
}

func (p *KafkaPublisher) Publish(ctx context.Context, jobs []*mq.KafkaJob) []mq.KafkaSendResult {
	ok, failed := mq.SendKafkaJobs(ctx, p.producer, jobs, p.timeout)
	for _, job := range ok {
		p.metrics.AddPublished(job.Topic, job.Count)
	}
	for _, res := range failed {
		p.metrics.AddPublishFailures(res.Job.Topic, 1)
	}
	return failed
}
