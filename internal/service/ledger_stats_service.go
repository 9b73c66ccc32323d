package service

import (
	"context"
	"time"

	"ctoken-engine-sol/internal/ledger"
	"ctoken-engine-sol/internal/metrics"
	"ctoken-engine-sol/internal/pkg/logger"
	"ctoken-engine-sol/internal/types"
)

// LedgerStatsService 定时采集 Ledger 序号与各棵树的填充程度
type LedgerStatsService struct {
	ledger   *ledger.Ledger
	metrics  *metrics.Metrics
	trees    []types.Pubkey
	interval time.Duration
	stopChan chan struct{}
}

func NewLedgerStatsService(l *ledger.Ledger, m *metrics.Metrics, trees []types.Pubkey, interval time.Duration) *LedgerStatsService {
	return &LedgerStatsService{
		ledger:   l,
		metrics:  m,
		trees:    trees,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

func (ls *LedgerStatsService) Start() {
	ls.update()

	ticker := time.NewTicker(ls.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ls.update()
		case <-ls.stopChan:
			return
		}
	}
}

func (ls *LedgerStatsService) Stop() {
	close(ls.stopChan)
}

func (ls *LedgerStatsService) update() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	seq, err := ls.ledger.Sequence(ctx)
	if err != nil {
		logger.Warnf("[LedgerStats] read sequence failed: %v", err)
	} else {
		ls.metrics.SetSequence(seq)
	}

	for _, id := range ls.trees {
		tree, err := ls.ledger.Tree(ctx, id)
		if err != nil {
			logger.Warnf("[LedgerStats] read tree %s failed: %v", id, err)
			continue
		}
		ls.metrics.SetTreeFill(id.String(), tree.NextIndex, tree.Capacity())
		if tree.Capacity()-tree.NextIndex < tree.Capacity()/10 {
			logger.Warnf("[LedgerStats] tree %s almost full: %d/%d", id, tree.NextIndex, tree.Capacity())
		}
	}
}
