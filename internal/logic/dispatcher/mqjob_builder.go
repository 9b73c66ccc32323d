package dispatcher

import (
	"ctoken-engine-sol/internal/config"
	"ctoken-engine-sol/internal/logic/core"
	"ctoken-engine-sol/internal/mq"
)

// BuildAllKafkaJobs 构建转换事件和余额事件的所有 KafkaJob。
// 返回的 []*mq.KafkaJob 可直接传入 mq.SendKafkaJobs 发送。
func BuildAllKafkaJobs(
	events []core.TransitionEvent,
	balances []core.BalanceEvent,
	cfg config.KafkaProducerConfig,
) ([]*mq.KafkaJob, error) {
	eventJobs, err := BuildEventKafkaJobs(cfg.Topics.Transition, cfg.Partitions.Transition, events)
	if err != nil {
		return nil, err
	}
	balanceJobs, err := BuildBalanceKafkaJobs(cfg.Topics.Balance, cfg.Partitions.Balance, balances)
	if err != nil {
		return nil, err
	}

	jobs := make([]*mq.KafkaJob, 0, len(eventJobs)+len(balanceJobs))
	jobs = append(jobs, eventJobs...)
	jobs = append(jobs, balanceJobs...)
	return jobs, nil
}
