package mq

import (
	"context"
	"fmt"
	"time"

	"ctoken-engine-sol/internal/config"
	"ctoken-engine-sol/internal/pkg/logger"
	"ctoken-engine-sol/internal/utils"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

const (
	defaultBatchSize = 32 * 1024
	defaultLingerMs  = 5
	adminTimeout     = 10 * time.Second
)

// topicSpec 需要保证存在的 topic
type topicSpec struct {
	topic      string
	partitions int
}

// NewKafkaProducer 先保证 transition / balance topic 存在，再创建幂等生产者
func NewKafkaProducer(cfg config.KafkaProducerConfig) (*kafka.Producer, error) {
	if err := ensureTopics(cfg.Brokers, []topicSpec{
		{cfg.Topics.Transition, cfg.Partitions.Transition},
		{cfg.Topics.Balance, cfg.Partitions.Balance},
	}); err != nil {
		return nil, err
	}

	producer, err := kafka.NewProducer(producerConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}
	return producer, nil
}

// ensureTopics 创建缺失的 topic；多 broker 时副本数取 2
func ensureTopics(brokers string, specs []topicSpec) error {
	admin, err := kafka.NewAdminClient(&kafka.ConfigMap{"bootstrap.servers": brokers})
	if err != nil {
		return fmt.Errorf("failed to create admin client: %w", err)
	}
	defer admin.Close()

	meta, err := admin.GetMetadata(nil, true, int(adminTimeout.Milliseconds()))
	if err != nil {
		return fmt.Errorf("failed to get metadata: %w", err)
	}

	replication := 1
	if len(meta.Brokers) > 1 {
		replication = 2
	}

	missing := make([]kafka.TopicSpecification, 0, len(specs))
	seen := make(map[string]bool, len(meta.Topics)+len(specs))
	for name := range meta.Topics {
		seen[name] = true
	}
	for _, s := range specs {
		if s.topic == "" || seen[s.topic] {
			continue
		}
		seen[s.topic] = true
		missing = append(missing, kafka.TopicSpecification{
			Topic:             s.topic,
			NumPartitions:     max(s.partitions, 1),
			ReplicationFactor: replication,
		})
	}
	if len(missing) == 0 {
		return nil
	}

	logger.Infof("[Kafka] brokers=%d replication=%d, creating %d topic(s)", len(meta.Brokers), replication, len(missing))

	ctx, cancel := context.WithTimeout(context.Background(), adminTimeout)
	defer cancel()
	results, err := admin.CreateTopics(ctx, missing)
	if err != nil {
		return fmt.Errorf("failed to create topics: %w", err)
	}
	for _, r := range results {
		// 并发启动的实例可能已抢先创建
		if code := r.Error.Code(); code != kafka.ErrNoError && code != kafka.ErrTopicAlreadyExists {
			return fmt.Errorf("failed to create topic %s: %w", r.Topic, r.Error)
		}
	}
	return nil
}

func producerConfig(cfg config.KafkaProducerConfig) *kafka.ConfigMap {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	lingerMs := cfg.LingerMs
	if lingerMs < 0 {
		lingerMs = defaultLingerMs
	}

	return &kafka.ConfigMap{
		"bootstrap.servers": cfg.Brokers,
		"client.id":         fmt.Sprintf("ctoken-engine-%s", utils.GetLocalIP()),

		// 同一 mint 的事件必须有序且不重复
		"acks":                                  "all",
		"enable.idempotence":                    true,
		"max.in.flight.requests.per.connection": 5, // 幂等模式的上限

		"delivery.timeout.ms": 30000,
		"request.timeout.ms":  30000,
		"retries":             5,
		"retry.backoff.ms":    100,

		"batch.size":       batchSize,
		"linger.ms":        lingerMs,
		"compression.type": "lz4",

		"message.max.bytes": 2 * 1024 * 1024,
	}
}
