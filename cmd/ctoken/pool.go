package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"ctoken-engine-sol/internal/consts"
	"ctoken-engine-sol/internal/logic/pool"
	"ctoken-engine-sol/internal/types"

	"github.com/spf13/cobra"
)

var (
	poolMint    string
	poolIndex   int
	poolProgram string
)

var poolCmd = &cobra.Command{
	Use:   "pool",
	Short: "资金池工具",
}

// poolDeriveCmd 推导 mint 的资金池地址，index 为 -1 时输出全部
var poolDeriveCmd = &cobra.Command{
	Use:   "derive",
	Short: "推导资金池 PDA",
	RunE: func(cmd *cobra.Command, args []string) error {
		mint, err := types.TryPubkeyFromBase58(poolMint)
		if err != nil {
			return fmt.Errorf("--mint: %w", err)
		}
		program, err := types.TryPubkeyFromBase58(poolProgram)
		if err != nil {
			return fmt.Errorf("--program: %w", err)
		}
		resolver := pool.NewResolver(program, consts.NumMaxPoolAccounts)

		var addrs []pool.Address
		if poolIndex < 0 {
			if addrs, err = resolver.All(mint); err != nil {
				return err
			}
		} else {
			if poolIndex > 255 {
				return fmt.Errorf("--index %d out of range", poolIndex)
			}
			addr, err := resolver.Derive(mint, uint8(poolIndex))
			if err != nil {
				return err
			}
			addrs = append(addrs, addr)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "INDEX\tADDRESS\tBUMP")
		for _, a := range addrs {
			fmt.Fprintf(w, "%d\t%s\t%d\n", a.Index, a.Address, a.Bump)
		}
		return w.Flush()
	},
}

func init() {
	poolDeriveCmd.Flags().StringVar(&poolMint, "mint", "", "mint 地址（base58）")
	poolDeriveCmd.Flags().IntVar(&poolIndex, "index", -1, "资金池下标，-1 表示全部")
	poolDeriveCmd.Flags().StringVar(&poolProgram, "program", consts.CompressedTokenProgramStr, "compressed-token 程序地址")
	_ = poolDeriveCmd.MarkFlagRequired("mint")

	poolCmd.AddCommand(poolDeriveCmd)
}
