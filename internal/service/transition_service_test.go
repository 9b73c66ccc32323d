package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"ctoken-engine-sol/internal/config"
	"ctoken-engine-sol/internal/ledger"
	"ctoken-engine-sol/internal/logic/core"
	"ctoken-engine-sol/internal/logic/engine"
	"ctoken-engine-sol/internal/metrics"
	"ctoken-engine-sol/internal/mq"
	"ctoken-engine-sol/internal/types"
	"ctoken-engine-sol/internal/utils"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func key(b byte) types.Pubkey {
	var p types.Pubkey
	p[0] = b
	p[31] = b
	return p
}

var (
	mint     = key(1)
	mintAuth = key(2)
	alice    = key(4)
	bob      = key(5)
	tree     = key(9)
	queue    = key(10)
)

type fakePublisher struct {
	mu   sync.Mutex
	jobs []*mq.KafkaJob
	fail bool
}

func (f *fakePublisher) Publish(_ context.Context, jobs []*mq.KafkaJob) []mq.KafkaSendResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, jobs...)
	if !f.fail {
		return nil
	}
	out := make([]mq.KafkaSendResult, len(jobs))
	for i, j := range jobs {
		out[i] = mq.KafkaSendResult{Job: j, Err: errors.New("broker down")}
	}
	return out
}

func topics() config.KafkaProducerConfig {
	var cfg config.KafkaProducerConfig
	cfg.Topics.Transition = "ctoken_transition"
	cfg.Topics.Balance = "ctoken_balance"
	cfg.Partitions.Transition = 2
	cfg.Partitions.Balance = 2
	return cfg
}

type fixture struct {
	ledger    *ledger.Ledger
	engine    *engine.Engine
	metrics   *metrics.Metrics
	publisher *fakePublisher
	service   *TransitionService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	l := ledger.New(ledger.NewMemoryStore())
	_, err := l.CreateTree(ctx, ledger.TreeConfig{ID: tree, Queue: queue, Version: core.TreeVersionV1, Height: 8, RootHistory: 16})
	require.NoError(t, err)
	ma := mintAuth
	require.NoError(t, l.RegisterMint(ctx, core.MintInfo{Mint: mint, MintAuthority: &ma, Decimals: 2}))
	require.NoError(t, l.EnsurePools(ctx, mint, 1))

	e := engine.New(engine.Deps{Ledger: l, Mints: l, Accounts: l})
	m := metrics.New()
	pub := &fakePublisher{}
	return &fixture{
		ledger:    l,
		engine:    e,
		metrics:   m,
		publisher: pub,
		service:   NewTransitionService(e, 0, WithPublisher(pub, topics()), WithMetrics(m)),
	}
}

func (f *fixture) mintToJSON(t *testing.T, amount uint64) []byte {
	t.Helper()
	p, err := f.engine.Pools().Derive(mint, 0)
	require.NoError(t, err)
	return []byte(fmt.Sprintf(`{
		"kind": "mint_to",
		"mint": %q,
		"signer": %q,
		"output_tree": {"tree": %q, "queue": %q},
		"recipients": [%q],
		"amounts": [%d],
		"native": {"pool": {"address": %q, "index": 0}}
	}`, mint, mintAuth, tree, queue, alice, amount, p.Address))
}

func TestSubmit_MintThenTransferPublishesEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := DecodeRequest(f.mintToJSON(t, 1000))
	require.NoError(t, err)
	res, err := f.service.Submit(ctx, req)
	require.NoError(t, err)
	assert.NotEmpty(t, req.ID, "未指定 id 时自动生成")
	assert.Equal(t, req.ID, res.RequestID)

	// 铸造：一条转换事件 + 资金池余额事件
	require.Len(t, f.publisher.jobs, 2)
	var transition core.TransitionEvents
	for _, job := range f.publisher.jobs {
		if job.Topic == "ctoken_transition" {
			require.NoError(t, utils.DecodeEvent(job.Value, core.EventTypeTransition, &transition))
			assert.Equal(t, utils.PartitionOf(mint, 2), job.Partition)
		}
	}
	require.Len(t, transition.Events, 1)
	assert.Equal(t, int64(1000), transition.Events[0].SupplyDelta)
	assert.Equal(t, uint64(1), transition.Events[0].Sequence)

	// 转账
	s, err := f.ledger.Spendable(ctx, tree, res.NewPositions[0].LeafIndex)
	require.NoError(t, err)
	transfer := &engine.TransitionRequest{
		ID:         "transfer-1",
		Kind:       core.KindTransfer,
		Mint:       mint,
		Signer:     alice,
		Inputs:     []engine.InputRecord{{Data: s.Data, Context: s.Context}},
		Proof:      core.ValidityProof{RootIndices: []*uint16{s.RootIndex}},
		OutputTree: core.TreeInfo{TreeID: tree, QueueID: queue},
		Outputs: []engine.OutputSpec{
			{Owner: bob, Amount: 400},
			{Owner: alice, Amount: 600},
		},
	}
	_, err = f.service.Submit(ctx, transfer)
	require.NoError(t, err)
	assert.Len(t, f.publisher.jobs, 3, "转账没有原生侧变动，只有转换事件")

	n, err := testutil.GatherAndCount(f.metrics.Registry(), "ctoken_engine_transitions_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "mint_to / transfer 各一条成功序列")
}

func TestSubmit_RejectedNotPublished(t *testing.T) {
	f := newFixture(t)
	req, err := DecodeRequest(f.mintToJSON(t, 10))
	require.NoError(t, err)
	req.Signer = alice

	_, err = f.service.Submit(context.Background(), req)
	assert.ErrorIs(t, err, core.ErrInvalidAuthorityMint)
	assert.Empty(t, f.publisher.jobs)

	n, err := testutil.GatherAndCount(f.metrics.Registry(), "ctoken_engine_transition_errors_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSubmit_PublishFailureKeepsCommit(t *testing.T) {
	f := newFixture(t)
	f.publisher.fail = true

	req, err := DecodeRequest(f.mintToJSON(t, 10))
	require.NoError(t, err)
	res, err := f.service.Submit(context.Background(), req)
	require.NoError(t, err, "事件发送失败不回滚已提交的转换")
	assert.Equal(t, uint64(1), res.Receipt.Sequence)

	seq, err := f.ledger.Sequence(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)
}

func TestSubmit_WithoutPublisher(t *testing.T) {
	f := newFixture(t)
	s := NewTransitionService(f.engine, 0)

	req, err := DecodeRequest(f.mintToJSON(t, 10))
	require.NoError(t, err)
	req.ID = "fixed"
	res, err := s.Submit(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "fixed", res.RequestID)

	_, err = s.Submit(context.Background(), nil)
	assert.ErrorIs(t, err, core.ErrInvalidRequest)
}

func TestRequestConsumer_Handle(t *testing.T) {
	f := newFixture(t)
	c := &RequestConsumer{service: f.service, metrics: f.metrics}
	ctx := context.Background()

	assert.Equal(t, consumeResultOK, c.handle(ctx, f.mintToJSON(t, 5)))
	assert.Equal(t, consumeResultInvalid, c.handle(ctx, []byte(`{"kind":"teleport"}`)))
	assert.Equal(t, consumeResultInvalid, c.handle(ctx, []byte(`not json`)))

	bad := []byte(fmt.Sprintf(`{"kind":"transfer","mint":%q,"signer":%q}`, mint, alice))
	assert.Equal(t, consumeResultRejected, c.handle(ctx, bad), "没有输入的转账被引擎拒绝")
}
