package dispatcher

import (
	"testing"
	"time"

	"ctoken-engine-sol/internal/config"
	"ctoken-engine-sol/internal/logic/core"
	"ctoken-engine-sol/internal/logic/engine"
	"ctoken-engine-sol/internal/types"
	"ctoken-engine-sol/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func key(b byte) types.Pubkey {
	var p types.Pubkey
	for i := range p {
		p[i] = b + byte(i)
	}
	return p
}

func sampleResult(mint types.Pubkey, id string) (*engine.TransitionRequest, *engine.TransitionResult) {
	delegate := key(9)
	req := &engine.TransitionRequest{ID: id, Kind: core.KindMintTo, Mint: mint, Signer: key(2)}
	res := &engine.TransitionResult{
		RequestID: id,
		Kind:      core.KindMintTo,
		NewRecords: []core.TokenRecord{
			{Mint: mint, Owner: key(3), Amount: 70, State: core.StateInitialized},
			{Mint: mint, Owner: key(4), Amount: 30, State: core.StateFrozen, Delegate: &delegate, DelegatedAmount: 30},
		},
		NewPositions: []core.MerkleContext{
			{TreeID: key(5), LeafIndex: 7},
			{TreeID: key(5), LeafIndex: 8},
		},
		NativeDeltas: []core.NativeDelta{{Account: key(6), Credit: 100}},
		SupplyDelta:  100,
		Receipt:      &core.CommitReceipt{Sequence: 42, Roots: []types.Hash{{1}}},
	}
	return req, res
}

func TestBuildTransitionEvent(t *testing.T) {
	req, res := sampleResult(key(1), "r1")
	now := time.UnixMilli(1_700_000_000_000)

	evt := BuildTransitionEvent(req, res, now)
	assert.Equal(t, "r1", evt.RequestID)
	assert.Equal(t, uint8(core.KindMintTo), evt.Kind)
	assert.Equal(t, uint64(42), evt.Sequence)
	assert.Equal(t, int64(100), evt.SupplyDelta)
	assert.Equal(t, now.UnixMilli(), evt.Timestamp)
	require.Len(t, evt.Created, 2)
	assert.Equal(t, uint32(8), evt.Created[1].LeafIndex)
	assert.True(t, evt.Created[1].HasDelegate)
	assert.True(t, evt.Created[1].Frozen)
	assert.Equal(t, key(9), evt.Created[1].Delegate)
	assert.False(t, evt.Created[0].HasDelegate)

	balances := BuildBalanceEvents(req, res)
	require.Len(t, balances, 1)
	assert.Equal(t, key(6), balances[0].Account)
	assert.Equal(t, uint64(100), balances[0].Credit)
	assert.Equal(t, uint64(42), balances[0].Sequence)
}

func TestBuildAllKafkaJobs_PartitionByMint(t *testing.T) {
	var cfg config.KafkaProducerConfig
	cfg.Topics.Transition = "ctoken_transition"
	cfg.Topics.Balance = "ctoken_balance"
	cfg.Partitions.Transition = 4
	cfg.Partitions.Balance = 3

	var events []core.TransitionEvent
	var balances []core.BalanceEvent
	for i, mint := range []types.Pubkey{key(10), key(20), key(10), key(30)} {
		req, res := sampleResult(mint, string(rune('a'+i)))
		events = append(events, BuildTransitionEvent(req, res, time.Now()))
		balances = append(balances, BuildBalanceEvents(req, res)...)
	}

	jobs, err := BuildAllKafkaJobs(events, balances, cfg)
	require.NoError(t, err)

	total := map[string]int{}
	for _, job := range jobs {
		total[job.Topic] += job.Count
		switch job.Topic {
		case cfg.Topics.Transition:
			var batch core.TransitionEvents
			require.NoError(t, utils.DecodeEvent(job.Value, core.EventTypeTransition, &batch))
			assert.Equal(t, job.Count, len(batch.Events))
			for _, evt := range batch.Events {
				assert.Equal(t, job.Partition, utils.PartitionOf(evt.Mint, cfg.Partitions.Transition), "同一 mint 必须落在同一分区")
			}
		case cfg.Topics.Balance:
			var batch core.BalanceEvents
			require.NoError(t, utils.DecodeEvent(job.Value, core.EventTypeBalance, &batch))
			assert.Equal(t, job.Count, len(batch.Events))
		default:
			t.Fatalf("unexpected topic %s", job.Topic)
		}
	}
	assert.Equal(t, 4, total[cfg.Topics.Transition])
	assert.Equal(t, 4, total[cfg.Topics.Balance])
}

func TestBuildEventKafkaJobs_OrderWithinMint(t *testing.T) {
	mint := key(10)
	var events []core.TransitionEvent
	for _, id := range []string{"first", "second", "third"} {
		req, res := sampleResult(mint, id)
		events = append(events, BuildTransitionEvent(req, res, time.Now()))
	}

	jobs, err := BuildEventKafkaJobs("t", 8, events)
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	var batch core.TransitionEvents
	require.NoError(t, utils.DecodeEvent(jobs[0].Value, core.EventTypeTransition, &batch))
	ids := make([]string, 0, len(batch.Events))
	for _, e := range batch.Events {
		ids = append(ids, e.RequestID)
	}
	assert.Equal(t, []string{"first", "second", "third"}, ids)
	assert.Equal(t, uint32(100000), batch.ChainID)
}

func TestBuildKafkaJobs_Empty(t *testing.T) {
	jobs, err := BuildAllKafkaJobs(nil, nil, config.KafkaProducerConfig{})
	require.NoError(t, err)
	assert.Empty(t, jobs)
}
