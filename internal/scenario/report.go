package scenario

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
)

type StepReport struct {
	Name      string
	Kind      string
	RequestID string
	Sequence  uint64
	Error     string // 错误名，成功时为空
	Outputs   []string
}

type Holding struct {
	Owner    string
	Mint     string
	Amount   uint64
	Decimals uint8
	Records  int
}

type Balance struct {
	Account  string
	Mint     string
	Amount   uint64
	Decimals uint8
}

type Supply struct {
	Mint     string
	Amount   uint64
	Decimals uint8
}

type Report struct {
	Name     string
	Steps    []StepReport
	Holdings []Holding
	Balances []Balance
	Supplies []Supply
}

// Holding 查找某个 owner 在某个 mint 上的未花费总额
func (r *Report) Holding(owner, mint string) (Holding, bool) {
	for _, h := range r.Holdings {
		if h.Owner == owner && h.Mint == mint {
			return h, true
		}
	}
	return Holding{}, false
}

// collect 汇总未花费记录、原生余额与供应量
func (r *Runner) collect(ctx context.Context, st *runState, report *Report) error {
	type holdingKey struct{ owner, mint string }
	agg := make(map[holdingKey]*Holding)
	for _, label := range st.labels {
		leaf, ok := st.leaves[label]
		if !ok {
			continue
		}
		k := holdingKey{st.name(leaf.record.Owner), leaf.mint.name}
		h, ok := agg[k]
		if !ok {
			h = &Holding{Owner: k.owner, Mint: k.mint, Decimals: leaf.mint.decimals}
			agg[k] = h
		}
		h.Amount += leaf.record.Amount
		h.Records++
	}
	for _, h := range agg {
		report.Holdings = append(report.Holdings, *h)
	}
	sort.Slice(report.Holdings, func(i, j int) bool {
		a, b := report.Holdings[i], report.Holdings[j]
		if a.Mint != b.Mint {
			return a.Mint < b.Mint
		}
		return a.Owner < b.Owner
	})

	for account, m := range st.natives {
		amount, err := r.ledger.TokenBalance(ctx, account)
		if err != nil {
			return err
		}
		report.Balances = append(report.Balances, Balance{Account: st.name(account), Mint: m.name, Amount: amount, Decimals: m.decimals})
	}
	sort.Slice(report.Balances, func(i, j int) bool { return report.Balances[i].Account < report.Balances[j].Account })

	for _, m := range st.mints {
		info, err := r.ledger.MintInfo(ctx, m.key)
		if err != nil {
			return err
		}
		report.Supplies = append(report.Supplies, Supply{Mint: m.name, Amount: info.Supply, Decimals: m.decimals})
	}
	sort.Slice(report.Supplies, func(i, j int) bool { return report.Supplies[i].Mint < report.Supplies[j].Mint })
	return nil
}

// check 对比 expect 段，返回所有不一致
func (r *Runner) check(ctx context.Context, st *runState, report *Report) error {
	exp := st.sc.Expect
	var errs []error

	for _, want := range exp.Holdings {
		m, err := st.mint(want.Mint)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		amount, err := ParseUIAmount(want.Amount, m.decimals)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		got, _ := report.Holding(want.Owner, m.name)
		if got.Amount != amount {
			errs = append(errs, fmt.Errorf("holding %s/%s: want %s, got %s",
				want.Owner, m.name, FormatUIAmount(amount, m.decimals), FormatUIAmount(got.Amount, m.decimals)))
		}
	}

	for _, want := range exp.Balances {
		m, err := st.mint(want.Mint)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		amount, err := ParseUIAmount(want.Amount, m.decimals)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		account, err := r.nativeAccount(st, want.Account)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		got, err := r.ledger.TokenBalance(ctx, account)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if got != amount {
			errs = append(errs, fmt.Errorf("balance %s: want %s, got %s",
				want.Account, FormatUIAmount(amount, m.decimals), FormatUIAmount(got, m.decimals)))
		}
	}

	for name, want := range exp.Supply {
		m, err := st.mint(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		amount, err := ParseUIAmount(want, m.decimals)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		info, err := r.ledger.MintInfo(ctx, m.key)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if info.Supply != amount {
			errs = append(errs, fmt.Errorf("supply %s: want %s, got %s",
				name, FormatUIAmount(amount, m.decimals), FormatUIAmount(info.Supply, m.decimals)))
		}
	}
	return errors.Join(errs...)
}

// Print 以表格形式输出报告
func (r *Report) Print(w io.Writer) {
	fmt.Fprintf(w, "scenario: %s\n\n", r.Name)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STEP\tKIND\tSEQ\tRESULT\tOUTPUTS")
	for _, s := range r.Steps {
		result, seq := "ok", fmt.Sprint(s.Sequence)
		if s.Error != "" {
			result, seq = s.Error, "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%v\n", s.Name, s.Kind, seq, result, s.Outputs)
	}
	_ = tw.Flush()

	fmt.Fprintln(w)
	fmt.Fprintln(tw, "OWNER\tMINT\tCOMPRESSED\tRECORDS")
	for _, h := range r.Holdings {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", h.Owner, h.Mint, FormatUIAmount(h.Amount, h.Decimals), h.Records)
	}
	_ = tw.Flush()

	fmt.Fprintln(w)
	fmt.Fprintln(tw, "ACCOUNT\tMINT\tNATIVE")
	for _, b := range r.Balances {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", b.Account, b.Mint, FormatUIAmount(b.Amount, b.Decimals))
	}
	_ = tw.Flush()

	fmt.Fprintln(w)
	fmt.Fprintln(tw, "MINT\tSUPPLY")
	for _, s := range r.Supplies {
		fmt.Fprintf(tw, "%s\t%s\n", s.Mint, FormatUIAmount(s.Amount, s.Decimals))
	}
	_ = tw.Flush()
}
