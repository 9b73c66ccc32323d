package main

import (
	"fmt"
	"os"

	"ctoken-engine-sol/internal/logic/codec"
	"ctoken-engine-sol/internal/logic/commitment"
	"ctoken-engine-sol/internal/service"
	"ctoken-engine-sol/internal/types"

	"github.com/spf13/cobra"
	"github.com/zeromicro/go-zero/core/jsonx"
)

var recordHex string

// recordView 解码结果的 JSON 形式
type recordView struct {
	Mint            types.Pubkey    `json:"mint"`
	Owner           types.Pubkey    `json:"owner"`
	Amount          uint64          `json:"amount"`
	Delegate        *types.Pubkey   `json:"delegate,omitempty"`
	DelegatedAmount uint64          `json:"delegated_amount"`
	State           string          `json:"state"`
	IsNative        *uint64         `json:"is_native,omitempty"`
	CloseAuthority  *types.Pubkey   `json:"close_authority,omitempty"`
	Extensions      []extensionView `json:"extensions,omitempty"`
	LeafHash        string          `json:"leaf_hash"`
}

type extensionView struct {
	Type    uint8            `json:"type"`
	Payload service.HexBytes `json:"payload"`
}

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "压缩 token 记录工具",
}

// recordDecodeCmd 解码记录字节并输出 JSON
var recordDecodeCmd = &cobra.Command{
	Use:   "decode",
	Short: "解码 hex 编码的记录",
	RunE: func(cmd *cobra.Command, args []string) error {
		var raw service.HexBytes
		if err := raw.UnmarshalText([]byte(recordHex)); err != nil {
			return fmt.Errorf("--hex: %w", err)
		}
		r, err := codec.New(nil).Decode(raw)
		if err != nil {
			return err
		}

		view := recordView{
			Mint:            r.Mint,
			Owner:           r.Owner,
			Amount:          r.Amount,
			Delegate:        r.Delegate,
			DelegatedAmount: r.DelegatedAmount,
			State:           r.State.String(),
			IsNative:        r.IsNative,
			CloseAuthority:  r.CloseAuthority,
			LeafHash:        commitment.LeafHash(raw).Hex(),
		}
		for _, e := range r.Extensions {
			view.Extensions = append(view.Extensions, extensionView{Type: uint8(e.Type), Payload: e.Payload})
		}

		out, err := jsonx.Marshal(view)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(os.Stdout, string(out))
		return err
	},
}

func init() {
	recordDecodeCmd.Flags().StringVar(&recordHex, "hex", "", "记录字节（hex，可带 0x 前缀）")
	_ = recordDecodeCmd.MarkFlagRequired("hex")

	recordCmd.AddCommand(recordDecodeCmd)
}
