package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"ctoken-engine-sol/internal/config"
	"ctoken-engine-sol/internal/logic/core"
	"ctoken-engine-sol/internal/metrics"
	"ctoken-engine-sol/internal/mq"
	"ctoken-engine-sol/internal/pkg/logger"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

const (
	consumeResultOK       = "ok"
	consumeResultRejected = "rejected"
	consumeResultInvalid  = "invalid"
)

// RequestConsumer 从 Kafka 读取 JSON 请求并交给 TransitionService。
// 每条消息处理完（成功、拒绝或无法解析）都提交 offset，不做重放。
type RequestConsumer struct {
	mu          sync.Mutex
	consumer    *kafka.Consumer
	service     *TransitionService
	metrics     *metrics.Metrics
	pollTimeout time.Duration
	stopped     bool
	done        chan struct{}
}

func NewRequestConsumer(cfg config.KafkaConsumerConfig, s *TransitionService, m *metrics.Metrics) (*RequestConsumer, error) {
	consumer, err := mq.NewKafkaConsumer(cfg)
	if err != nil {
		return nil, err
	}
	return &RequestConsumer{
		consumer:    consumer,
		service:     s,
		metrics:     m,
		pollTimeout: time.Duration(cfg.PollTimeoutMs) * time.Millisecond,
		done:        make(chan struct{}),
	}, nil
}

func (c *RequestConsumer) Start() {
	defer close(c.done)
	logger.Infof("[RequestConsumer] started")

	for !c.isStopped() {
		msg, err := c.consumer.ReadMessage(c.pollTimeout)
		if err != nil {
			var kerr kafka.Error
			if errors.As(err, &kerr) && kerr.Code() == kafka.ErrTimedOut {
				continue
			}
			logger.Warnf("[RequestConsumer] read failed: %v", err)
			continue
		}

		result := c.handle(context.Background(), msg.Value)
		c.metrics.IncConsumed(result)

		if _, err := c.consumer.CommitMessage(msg); err != nil {
			logger.Warnf("[RequestConsumer] commit offset %v failed: %v", msg.TopicPartition, err)
		}
	}
}

func (c *RequestConsumer) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	c.mu.Unlock()

	<-c.done
	if err := c.consumer.Close(); err != nil {
		logger.Warnf("[RequestConsumer] close failed: %v", err)
	}
	logger.Infof("[RequestConsumer] stopped")
}

func (c *RequestConsumer) isStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

// handle 处理一条消息，返回用于指标的结果标签
func (c *RequestConsumer) handle(ctx context.Context, value []byte) string {
	req, err := DecodeRequest(value)
	if err != nil {
		logger.Warnf("[RequestConsumer] invalid request: %v", err)
		return consumeResultInvalid
	}
	res, err := c.service.Submit(ctx, req)
	if err != nil {
		logger.Infof("[RequestConsumer] req=%s rejected: code=%d %s", req.ID, core.ErrorCodeOf(err), core.ErrorNameOf(err))
		return consumeResultRejected
	}
	logger.Debugf("[RequestConsumer] req=%s committed seq=%d", req.ID, res.Receipt.Sequence)
	return consumeResultOK
}
