package dispatcher

import (
	"fmt"

	"ctoken-engine-sol/internal/consts"
	"ctoken-engine-sol/internal/logic/core"
	"ctoken-engine-sol/internal/mq"
	"ctoken-engine-sol/internal/types"
	"ctoken-engine-sol/internal/utils"
)

// BuildBalanceKafkaJobs 构造原生侧余额变动的 KafkaJob，按账户分区
func BuildBalanceKafkaJobs(topic string, partitions int, balances []core.BalanceEvent) ([]*mq.KafkaJob, error) {
	if len(balances) == 0 {
		return nil, nil
	}

	buckets := bucketize(balances, partitions, func(b *core.BalanceEvent) types.Pubkey { return b.Account })

	jobs := make([]*mq.KafkaJob, 0, len(buckets))
	for pid, list := range buckets {
		if len(list) == 0 {
			continue
		}
		value, err := utils.EncodeEvent(core.EventTypeBalance, core.BalanceEvents{
			Version: core.EventVersion,
			ChainID: consts.ChainIDSolana,
			Events:  list,
		})
		if err != nil {
			return nil, fmt.Errorf("encode balance events for partition %d: %w", pid, err)
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
