package core

import (
	"errors"
	"fmt"
)

// ErrorCategory 错误分类
type ErrorCategory uint8

const (
	CategoryEncoding      ErrorCategory = 1 // 编解码错误
	CategoryConservation  ErrorCategory = 2 // 守恒校验错误（求和、溢出）
	CategoryAuthorization ErrorCategory = 3 // 签名者 / 权限错误
	CategoryPool          ErrorCategory = 4 // 资金池 PDA 错误
	CategoryRequest       ErrorCategory = 5 // 请求参数错误
	CategoryLedger        ErrorCategory = 6 // Ledger Service 返回的错误
)

func (c ErrorCategory) String() string {
	switch c {
	case CategoryEncoding:
		return "encoding"
	case CategoryConservation:
		return "conservation"
	case CategoryAuthorization:
		return "authorization"
	case CategoryPool:
		return "pool"
	case CategoryRequest:
		return "request"
	case CategoryLedger:
		return "ledger"
	default:
		return "unknown"
	}
}

// CodeError 带错误码的哨兵错误，调用方通过 errors.Is 判断
type CodeError struct {
	Code     uint32
	Name     string
	Category ErrorCategory
}

func (e *CodeError) Error() string {
	return fmt.Sprintf("%s (%d)", e.Name, e.Code)
}

func newCodeError(code uint32, name string, category ErrorCategory) *CodeError {
	return &CodeError{Code: code, Name: name, Category: category}
}

// 6000 起的错误码与链上 compressed-token 程序保持一致
var (
	ErrPublicKeyAmountMissmatch           = newCodeError(6000, "PublicKeyAmountMissmatch", CategoryRequest)
	ErrComputeInputSumFailed              = newCodeError(6001, "ComputeInputSumFailed", CategoryConservation)
	ErrComputeOutputSumFailed             = newCodeError(6002, "ComputeOutputSumFailed", CategoryConservation)
	ErrComputeCompressSumFailed           = newCodeError(6003, "ComputeCompressSumFailed", CategoryConservation)
	ErrComputeDecompressSumFailed         = newCodeError(6004, "ComputeDecompressSumFailed", CategoryConservation)
	ErrSumCheckFailed                     = newCodeError(6005, "SumCheckFailed", CategoryConservation)
	ErrDelegateSignerCheckFailed          = newCodeError(6011, "DelegateSignerCheckFailed", CategoryAuthorization)
	ErrMintTooLarge                       = newCodeError(6012, "MintTooLarge", CategoryConservation)
	ErrArithmeticUnderflow                = newCodeError(6016, "ArithmeticUnderflow", CategoryConservation)
	ErrInvalidAuthorityMint               = newCodeError(6018, "InvalidAuthorityMint", CategoryAuthorization)
	ErrInvalidFreezeAuthority             = newCodeError(6019, "InvalidFreezeAuthority", CategoryAuthorization)
	ErrInvalidDelegateIndex               = newCodeError(6020, "InvalidDelegateIndex", CategoryRequest)
	ErrTokenPoolPdaUndefined              = newCodeError(6021, "TokenPoolPdaUndefined", CategoryPool)
	ErrIsTokenPoolPda                     = newCodeError(6022, "IsTokenPoolPda", CategoryPool)
	ErrInvalidTokenPoolPda                = newCodeError(6023, "InvalidTokenPoolPda", CategoryPool)
	ErrNoInputTokenAccountsProvided       = newCodeError(6024, "NoInputTokenAccountsProvided", CategoryRequest)
	ErrNoInputsProvided                   = newCodeError(6025, "NoInputsProvided", CategoryRequest)
	ErrMintHasNoFreezeAuthority           = newCodeError(6026, "MintHasNoFreezeAuthority", CategoryAuthorization)
	ErrInsufficientTokenAccountBalance    = newCodeError(6028, "InsufficientTokenAccountBalance", CategoryConservation)
	ErrInvalidTokenPoolBump               = newCodeError(6029, "InvalidTokenPoolBump", CategoryPool)
	ErrFailedToDecompress                 = newCodeError(6030, "FailedToDecompress", CategoryPool)
	ErrFailedToBurnSplTokensFromTokenPool = newCodeError(6031, "FailedToBurnSplTokensFromTokenPool", CategoryPool)
	ErrNoAmount                           = newCodeError(6033, "NoAmount", CategoryRequest)
	ErrAmountsAndAmountProvided           = newCodeError(6034, "AmountsAndAmountProvided", CategoryRequest)
	ErrInvalidExtensionType               = newCodeError(6040, "InvalidExtensionType", CategoryEncoding)
)

// 7000 起为引擎本地错误
var (
	ErrMalformedRecord    = newCodeError(7000, "MalformedRecord", CategoryEncoding)
	ErrInvalidState       = newCodeError(7001, "InvalidState", CategoryEncoding)
	ErrDuplicateExtension = newCodeError(7002, "DuplicateExtension", CategoryEncoding)
	ErrInvalidAuthority   = newCodeError(7003, "InvalidAuthority", CategoryAuthorization)
	ErrZeroAmountOutput   = newCodeError(7004, "ZeroAmountOutput", CategoryConservation)
	ErrInvalidRequest     = newCodeError(7005, "InvalidRequest", CategoryRequest)
	ErrUnknownTransition  = newCodeError(7006, "UnknownTransition", CategoryRequest)
)

// 9000 起为 Ledger Service 错误，原样透传
var (
	ErrProofVerificationFailed                     = newCodeError(9000, "ProofVerificationFailed", CategoryLedger)
	ErrStateMerkleTreeAccountDiscriminatorMismatch = newCodeError(9001, "StateMerkleTreeAccountDiscriminatorMismatch", CategoryLedger)
	ErrAccountDiscriminatorMismatch                = newCodeError(9002, "AccountDiscriminatorMismatch", CategoryLedger)
	ErrNullifierAlreadyExists                      = newCodeError(9003, "NullifierAlreadyExists", CategoryLedger)
	ErrStaleLedgerState                            = newCodeError(9004, "StaleLedgerState", CategoryLedger)
	ErrMerkleTreeFull                              = newCodeError(9005, "MerkleTreeFull", CategoryLedger)
)

// AsCodeError 取出错误链上的 CodeError
func AsCodeError(err error) (*CodeError, bool) {
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// ErrorCodeOf 返回错误码，非 CodeError 时返回 0
func ErrorCodeOf(err error) uint32 {
	if ce, ok := AsCodeError(err); ok {
		return ce.Code
	}
	return 0
}

// ErrorNameOf 返回错误名，用于日志和指标 label
func ErrorNameOf(err error) string {
	if err == nil {
		return "ok"
	}
	if ce, ok := AsCodeError(err); ok {
		return ce.Name
	}
	return "internal"
}
