package main

import (
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"ctoken-engine-sol/internal/pkg/logger"
	"ctoken-engine-sol/internal/service"
	"ctoken-engine-sol/internal/svc"

	"github.com/spf13/cobra"
	"github.com/zeromicro/go-zero/core/logx"
	zerosvc "github.com/zeromicro/go-zero/core/service"
)

// serveCmd 常驻服务：消费 Kafka 转换请求并暴露指标
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动常驻服务",
	RunE: func(cmd *cobra.Command, args []string) error {
		defer func() {
			if r := recover(); r != nil {
				logx.Errorf("panic: %+v\nstack: %s", r, debug.Stack())
			}
		}()

		c, err := loadConfig(true)
		if err != nil {
			return err
		}
		defer logger.Sync()

		serviceContext, err := svc.NewServiceContext(c)
		if err != nil {
			return err
		}
		defer serviceContext.Close()

		sg := zerosvc.NewServiceGroup()
		if c.MetricsConf.Addr != "" {
			sg.Add(service.NewMetricsServer(c.MetricsConf, serviceContext.Metrics))
			interval := time.Duration(c.MetricsConf.StatsIntervalMs) * time.Millisecond
			sg.Add(service.NewLedgerStatsService(serviceContext.Ledger, serviceContext.Metrics, serviceContext.TreeIDs, interval))
		}
		if c.KafkaConsumerConf.Enabled() {
			consumer, err := service.NewRequestConsumer(c.KafkaConsumerConf, serviceContext.Transitions, serviceContext.Metrics)
			if err != nil {
				return err
			}
			sg.Add(consumer)
		}

		logger.Infof("Starting ctoken services (metrics=%q consumer=%v)", c.MetricsConf.Addr, c.KafkaConsumerConf.Enabled())

		// 各服务的 Start 都会阻塞
		go sg.Start()

		// 等待退出信号
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig

		logger.Infof("Shutting down services...")
		sg.Stop()
		return nil
	},
}
