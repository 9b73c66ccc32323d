package main

import (
	"fmt"
	"os"

	"ctoken-engine-sol/internal/config"
	"ctoken-engine-sol/internal/pkg/logger"

	"github.com/spf13/cobra"
)

var configFile string

// rootCmd 根命令
var rootCmd = &cobra.Command{
	Use:   "ctoken",
	Short: "压缩 token 状态转换引擎",
	Long: `ctoken - 压缩 token 守恒与授权引擎

子命令:
  run      按 YAML 场景执行一组状态转换
  serve    启动常驻服务（Kafka 请求消费 + Prometheus 指标）
  pool     推导资金池 PDA
  record   解码压缩 token 记录`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "配置文件路径")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(poolCmd)
	rootCmd.AddCommand(recordCmd)
}

// loadConfig 读取配置并初始化日志，未指定文件时使用默认配置（内存 Ledger）
func loadConfig(required bool) (*config.Config, error) {
	var (
		c   *config.Config
		err error
	)
	switch {
	case configFile != "":
		c, err = config.Load(configFile)
	case required:
		return nil, fmt.Errorf("--config is required")
	default:
		c, err = config.Parse([]byte("{}"))
	}
	if err != nil {
		return nil, err
	}
	if err := logger.Init(c.LogConf.ToLogOption()); err != nil {
		return nil, fmt.Errorf("初始化日志: %w", err)
	}
	return c, nil
}
