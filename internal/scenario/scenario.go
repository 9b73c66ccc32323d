// Package scenario 按 YAML 描述的步骤驱动引擎，用于演示和回归。
// 账户、mint 以名字引用，金额使用带小数的展示金额。
package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"ctoken-engine-sol/internal/consts"
	"ctoken-engine-sol/internal/logic/core"

	"gopkg.in/yaml.v3"
)

type MintSpec struct {
	MintAuthority   string `yaml:"mint_authority"`   // 账户名，可为空
	FreezeAuthority string `yaml:"freeze_authority"` // 账户名，可为空
	Decimals        uint8  `yaml:"decimals"`
	Pools           uint8  `yaml:"pools"` // 需要创建的资金池数量，缺省 1
}

// BalanceSpec 原生 token 账户余额，账户可以写成 pool:<mint>:<index>。
// 只有登记了 owner 的账户才能作为 compress 的来源。
type BalanceSpec struct {
	Account         string `yaml:"account"`
	Mint            string `yaml:"mint"`
	Amount          string `yaml:"amount"`
	Owner           string `yaml:"owner"`
	Delegate        string `yaml:"delegate"`
	DelegatedAmount string `yaml:"delegated_amount"`
}

type OutputSpec struct {
	Owner  string `yaml:"owner"`
	Amount string `yaml:"amount"`
}

type NativeSpec struct {
	Amount          string  `yaml:"amount"`
	Pool            uint8   `yaml:"pool"`           // 资金池地址按该 index 推导
	DeclaredIndex   *uint8  `yaml:"declared_index"` // 请求中声明的 index，缺省与 pool 相同
	ExtraPools      []uint8 `yaml:"extra_pools"`
	Account         string  `yaml:"account"`
	RemainingAmount string  `yaml:"remaining_amount"`
}

type Step struct {
	Name                string       `yaml:"name"`
	Kind                string       `yaml:"kind"`
	Mint                string       `yaml:"mint"` // 只有一个 mint 时可省略
	Signer              string       `yaml:"signer"`
	Inputs              []string     `yaml:"inputs"` // 之前步骤保存的输出标签
	Outputs             []OutputSpec `yaml:"outputs"`
	IsDelegate          bool         `yaml:"is_delegate"`
	DelegateChangeIndex *uint8       `yaml:"delegate_change_index"`
	Delegate            string       `yaml:"delegate"`
	DelegatedAmount     string       `yaml:"delegated_amount"`
	BurnAmount          string       `yaml:"burn_amount"`
	Recipients          []string     `yaml:"recipients"`
	Amounts             []string     `yaml:"amounts"`
	Amount              string       `yaml:"amount"` // batch_compress 共用金额
	Native              *NativeSpec  `yaml:"native"`
	Save                []string     `yaml:"save"`         // 按顺序给新输出命名
	ExpectError         string       `yaml:"expect_error"` // 期望的错误名，例如 SumCheckFailed
}

type HoldingSpec struct {
	Owner  string `yaml:"owner"`
	Mint   string `yaml:"mint"`
	Amount string `yaml:"amount"`
}

type Expectation struct {
	Holdings []HoldingSpec     `yaml:"holdings"` // 未花费压缩记录之和
	Balances []BalanceSpec     `yaml:"balances"`
	Supply   map[string]string `yaml:"supply"`
}

type Scenario struct {
	Name     string              `yaml:"name"`
	Tree     string              `yaml:"tree"` // 输出树 id（base58），为空时使用运行器默认树
	Mints    map[string]MintSpec `yaml:"mints"`
	Balances []BalanceSpec       `yaml:"balances"`
	Steps    []Step              `yaml:"steps"`
	Expect   *Expectation        `yaml:"expect"`
}

func Load(path string) (*Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Scenario) Validate() error {
	var errs []error
	if len(s.Mints) == 0 {
		errs = append(errs, errors.New("scenario declares no mints"))
	}
	for name, m := range s.Mints {
		if m.Pools > consts.NumMaxPoolAccounts {
			errs = append(errs, fmt.Errorf("mint %s: pools %d exceeds %d", name, m.Pools, consts.NumMaxPoolAccounts))
		}
	}
	for i, b := range s.Balances {
		if b.Delegate != "" && b.Owner == "" {
			errs = append(errs, fmt.Errorf("balances[%d]: delegate requires an owner", i))
		}
	}
	labels := make(map[string]int)
	for i, st := range s.Steps {
		if _, err := core.ParseTransitionKind(st.Kind); err != nil {
			errs = append(errs, fmt.Errorf("steps[%d]: %w", i, err))
		}
		if st.Mint != "" {
			if _, ok := s.Mints[st.Mint]; !ok {
				errs = append(errs, fmt.Errorf("steps[%d]: unknown mint %q", i, st.Mint))
			}
		} else if len(s.Mints) > 1 {
			errs = append(errs, fmt.Errorf("steps[%d]: mint is required when several mints are declared", i))
		}
		for _, in := range st.Inputs {
			if _, ok := labels[in]; !ok {
				errs = append(errs, fmt.Errorf("steps[%d]: input %q is not saved by an earlier step", i, in))
			}
		}
		for _, label := range st.Save {
			if prev, dup := labels[label]; dup {
				errs = append(errs, fmt.Errorf("steps[%d]: label %q already saved by steps[%d]", i, label, prev))
			}
			labels[label] = i
		}
	}
	return errors.Join(errs...)
}

// StepName 步骤名，未命名时使用序号
func (st *Step) StepName(i int) string {
	if st.Name != "" {
		return st.Name
	}
	return fmt.Sprintf("step-%d", i+1)
}
