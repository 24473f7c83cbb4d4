package bundler

import (
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/mitchellh/mapstructure"
)

// GasEstimation is the bundler's answer to eth_estimateUserOperationGas.
type GasEstimation struct {
	PreVerificationGas   *big.Int `mapstructure:"preVerificationGas"`
	VerificationGasLimit *big.Int `mapstructure:"verificationGasLimit"`
	CallGasLimit         *big.Int `mapstructure:"callGasLimit"`
}

// TransactionSummary is the slice of the enclosing transaction receipt a
// wallet needs to reconcile an operation.
type TransactionSummary struct {
	TransactionHash common.Hash `mapstructure:"transactionHash"`
	BlockHash       common.Hash `mapstructure:"blockHash"`
	BlockNumber     *big.Int    `mapstructure:"blockNumber"`
	GasUsed         *big.Int    `mapstructure:"gasUsed"`
}

// UserOperationReceipt is the eth_getUserOperationReceipt result. Success
// false means the operation was included but its execution reverted, with
// Reason carrying whatever revert string the relay extracted.
type UserOperationReceipt struct {
	UserOpHash    common.Hash              `mapstructure:"userOpHash"`
	EntryPoint    common.Address           `mapstructure:"entryPoint"`
	Sender        common.Address           `mapstructure:"sender"`
	Paymaster     common.Address           `mapstructure:"paymaster"`
	Nonce         *big.Int                 `mapstructure:"nonce"`
	Success       bool                     `mapstructure:"success"`
	ActualGasCost *big.Int                 `mapstructure:"actualGasCost"`
	ActualGasUsed *big.Int                 `mapstructure:"actualGasUsed"`
	Reason        string                   `mapstructure:"reason"`
	Logs          []map[string]interface{} `mapstructure:"logs"`
	Receipt       *TransactionSummary      `mapstructure:"receipt"`
}

// UserOperationLookup is the eth_getUserOperationByHash result. Block
// fields are nil while the operation is still pending.
type UserOperationLookup struct {
	UserOperation   map[string]interface{} `mapstructure:"userOperation"`
	EntryPoint      common.Address         `mapstructure:"entryPoint"`
	BlockNumber     *big.Int               `mapstructure:"blockNumber"`
	BlockHash       *common.Hash           `mapstructure:"blockHash"`
	TransactionHash *common.Hash           `mapstructure:"transactionHash"`
}

// decodeWire maps a relay's loosely typed JSON object onto a typed struct.
// Relay implementations disagree on quantity encoding (hex string, decimal
// string, bare number), so the hooks below accept all of them.
func decodeWire(src map[string]interface{}, dst interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			quantityHook, hashHook, addressHook, boolHook,
		),
		Result: dst,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(src)
}

var (
	bigIntType  = reflect.TypeOf((*big.Int)(nil))
	hashType    = reflect.TypeOf(common.Hash{})
	addressType = reflect.TypeOf(common.Address{})
)

func quantityHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if to != bigIntType {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		q, err := decodeQuantityString(v)
		if err != nil || q == nil {
			// untyped nil keeps the destination field unset
			return nil, err
		}
		return q, nil
	case float64:
		if v != math.Trunc(v) || v < 0 {
			return nil, fmt.Errorf("non-integral quantity %v", v)
		}
		return new(big.Int).SetUint64(uint64(v)), nil
	default:
		return data, nil
	}
}

func decodeQuantityString(s string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := hexutil.DecodeBig(s)
		if err != nil {
			return nil, fmt.Errorf("malformed hex quantity %q: %v", s, err)
		}
		return v, nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("malformed quantity %q", s)
	}
	return v, nil
}

func hashHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if to != hashType {
		return data, nil
	}
	if s, ok := data.(string); ok {
		return common.HexToHash(s), nil
	}
	return data, nil
}

func addressHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if to != addressType {
		return data, nil
	}
	if s, ok := data.(string); ok {
		return common.HexToAddress(s), nil
	}
	return data, nil
}

func boolHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if to.Kind() != reflect.Bool {
		return data, nil
	}
	if s, ok := data.(string); ok {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("malformed boolean %q", s)
		}
		return b, nil
	}
	return data, nil
}
