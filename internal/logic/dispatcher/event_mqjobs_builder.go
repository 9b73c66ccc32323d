package dispatcher

import (
	"fmt"

	"ctoken-engine-sol/internal/consts"
	"ctoken-engine-sol/internal/logic/core"
	"ctoken-engine-sol/internal/mq"
	"ctoken-engine-sol/internal/types"
	"ctoken-engine-sol/internal/utils"
)

// BuildEventKafkaJobs 构造转换事件的 KafkaJob。
// 按 mint 分区，同一 mint 的事件保持提交顺序；每个分区一个 Job，封装为 core.TransitionEvents。
func BuildEventKafkaJobs(topic string, partitions int, events []core.TransitionEvent) ([]*mq.KafkaJob, error) {
	if len(events) == 0 {
		return nil, nil
	}

	buckets := bucketize(events, partitions, func(e *core.TransitionEvent) types.Pubkey { return e.Mint })

	jobs := make([]*mq.KafkaJob, 0, len(buckets))
	for pid, list := range buckets {
		if len(list) == 0 {
			continue
		}
		value, err := utils.EncodeEvent(core.EventTypeTransition, core.TransitionEvents{
			Version: core.EventVersion,
			ChainID: consts.ChainIDSolana,
			Events:  list,
		})
		if err != nil {
			return nil, fmt.Errorf("encode transition events for partition %d: %w", pid, err)
		}
		jobs = append(jobs, &mq.KafkaJob{
			Topic:     topic,
			Partition: int32(pid),
			Value:     value,
			Count:     len(list),
		})
	}
	return jobs, nil
}
