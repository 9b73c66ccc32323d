package main

import (
	"context"
	"fmt"
	"os"

	"ctoken-engine-sol/internal/consts"
	"ctoken-engine-sol/internal/ledger"
	"ctoken-engine-sol/internal/logic/core"
	"ctoken-engine-sol/internal/pkg/logger"
	"ctoken-engine-sol/internal/scenario"
	"ctoken-engine-sol/internal/svc"
	"ctoken-engine-sol/internal/types"

	"github.com/spf13/cobra"
)

var scenarioFile string

// runCmd 执行场景
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "按 YAML 场景执行状态转换",
	Long:  "按场景文件依次执行状态转换，输出各步骤结果、未花费记录、原生余额与供应量。未指定 --config 时使用内存 Ledger。",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig(false)
		if err != nil {
			return err
		}
		defer logger.Sync()

		sc, err := scenario.Load(scenarioFile)
		if err != nil {
			return err
		}

		serviceContext, err := svc.NewServiceContext(c)
		if err != nil {
			return err
		}
		defer serviceContext.Close()

		ctx := context.Background()
		tree, err := scenarioTree(ctx, serviceContext)
		if err != nil {
			return err
		}

		runner := scenario.NewRunner(serviceContext.Transitions, serviceContext.Ledger, serviceContext.Engine.Pools(), tree)
		report, runErr := runner.Run(ctx, sc)
		report.Print(os.Stdout)
		if runErr != nil {
			return fmt.Errorf("scenario %s: %w", sc.Name, runErr)
		}
		return nil
	},
}

// scenarioTree 没有配置树时创建一棵默认 v1 树
func scenarioTree(ctx context.Context, sc *svc.ServiceContext) (types.Pubkey, error) {
	if len(sc.TreeIDs) > 0 {
		return sc.TreeIDs[0], nil
	}
	id, queue := scenario.AccountKey("scenario-tree"), scenario.AccountKey("scenario-queue")
	_, err := sc.Ledger.CreateTree(ctx, ledger.TreeConfig{
		ID:          id,
		Queue:       queue,
		Version:     core.TreeVersionV1,
		Height:      consts.DefaultTreeHeight,
		RootHistory: consts.DefaultRootHistoryV1,
	})
	if err != nil {
		return id, fmt.Errorf("create scenario tree: %w", err)
	}
	return id, nil
}

func init() {
	runCmd.Flags().StringVarP(&scenarioFile, "scenario", "s", "", "场景文件路径")
	_ = runCmd.MarkFlagRequired("scenario")
}
