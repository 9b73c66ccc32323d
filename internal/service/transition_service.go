package service

import (
	"context"
	"fmt"
	"time"

	"ctoken-engine-sol/internal/config"
	"ctoken-engine-sol/internal/logic/core"
	"ctoken-engine-sol/internal/logic/dispatcher"
	"ctoken-engine-sol/internal/logic/engine"
	"ctoken-engine-sol/internal/metrics"
	"ctoken-engine-sol/internal/pkg/logger"

	"github.com/google/uuid"
)

// TransitionService 在引擎外包一层：请求 id、超时、指标、事件发送
type TransitionService struct {
	engine        *engine.Engine
	publisher     Publisher // 为 nil 时不发送事件
	topics        config.KafkaProducerConfig
	metrics       *metrics.Metrics
	commitTimeout time.Duration
	now           func() time.Time
}

type TransitionServiceOption func(*TransitionService)

func WithPublisher(p Publisher, cfg config.KafkaProducerConfig) TransitionServiceOption {
	return func(s *TransitionService) {
		s.publisher = p
		s.topics = cfg
	}
}

func WithMetrics(m *metrics.Metrics) TransitionServiceOption {
	return func(s *TransitionService) {
		s.metrics = m
	}
}

func NewTransitionService(e *engine.Engine, commitTimeout time.Duration, opts ...TransitionServiceOption) *TransitionService {
	s := &TransitionService{
		engine:        e,
		commitTimeout: commitTimeout,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit 执行一次转换。提交成功后事件发送失败只记录日志，不影响返回值：
// Ledger 已经落账，调用方重试会被 nullifier 拒绝。
func (s *TransitionService) Submit(ctx context.Context, req *engine.TransitionRequest) (*engine.TransitionResult, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: nil request", core.ErrInvalidRequest)
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	if s.commitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.commitTimeout)
		defer cancel()
	}

	start := s.now()
	res, err := s.engine.Execute(ctx, req)
	s.metrics.ObserveTransition(req.Kind, time.Since(start), err)
	if err != nil {
		logger.Warnf("[TransitionService] req=%s kind=%s rejected: %s (%v)", req.ID, req.Kind, core.ErrorNameOf(err), err)
		return nil, err
	}
	s.metrics.SetSequence(res.Receipt.Sequence)

	if s.publisher != nil {
		s.publish(ctx, req, res)
	}
	return res, nil
}

func (s *TransitionService) publish(ctx context.Context, req *engine.TransitionRequest, res *engine.TransitionResult) {
	events := []core.TransitionEvent{dispatcher.BuildTransitionEvent(req, res, s.now())}
	balances := dispatcher.BuildBalanceEvents(req, res)

	jobs, err := dispatcher.BuildAllKafkaJobs(events, balances, s.topics)
	if err != nil {
		logger.Errorf("[TransitionService] req=%s: build kafka jobs failed: %v", req.ID, err)
		return
	}
	// 提交已完成，发送不受请求超时影响
	failed := s.publisher.Publish(context.WithoutCancel(ctx), jobs)
	for _, f := range failed {
		logger.Errorf("[TransitionService] req=%s seq=%d: publish to %s/%d failed: %v",
			req.ID, res.Receipt.Sequence, f.Job.Topic, f.Job.Partition, f.Err)
	}
}
