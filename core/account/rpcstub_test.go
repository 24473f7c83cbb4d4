package account

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/labstack/echo/v4"
)

var getNonceSelector = crypto.Keccak256([]byte("getNonce(address,uint192)"))[:4]

// stubRPC plays both endpoints the controller talks to: the Ethereum node
// and the ERC-4337 relay. One echo server answers both because the method
// sets never overlap. State lives behind mu so tests can flip fixtures
// while the controller is polling.
type stubRPC struct {
	url string

	mu      sync.Mutex
	chainID *big.Int
	code    map[common.Address][]byte
	nonce   *big.Int
	baseFee *big.Int
	tip     *big.Int

	estimatePre          *big.Int
	estimateVerification *big.Int
	estimateCall         *big.Int

	receiptSuccess bool
	receiptReason  string
	receiptPolls   int
	pollsSeen      int
	sendError      string

	codeQueries   int
	headerQueries int
	tipQueries    int
	chainIDCalls  int
	estimateCalls int

	lastEstimatedOp map[string]any
	sentOps         []map[string]any
}

func newStubRPC(t *testing.T) *stubRPC {
	t.Helper()

	s := &stubRPC{
		chainID:              big.NewInt(11155111),
		code:                 map[common.Address][]byte{},
		nonce:                big.NewInt(0),
		baseFee:              big.NewInt(2_000_000_000),
		tip:                  big.NewInt(1_000_000_000),
		estimatePre:          big.NewInt(48_500),
		estimateVerification: big.NewInt(310_000),
		estimateCall:         big.NewInt(120_000),
		receiptSuccess:       true,
	}

	e := echo.New()
	e.HideBanner = true
	e.POST("/", s.handle)

	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	s.url = srv.URL
	return s
}

type rpcRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      json.RawMessage   `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

func (s *stubRPC) handle(c echo.Context) error {
	var req rpcRequest
	if err := c.Bind(&req); err != nil {
		return err
	}

	result, err := s.dispatch(&req)
	body := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	if err != nil {
		body["error"] = map[string]any{"code": -32000, "message": err.Error()}
	} else {
		body["result"] = result
	}
	return c.JSON(http.StatusOK, body)
}

func (s *stubRPC) dispatch(req *rpcRequest) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch req.Method {
	case "eth_chainId":
		s.chainIDCalls++
		return hexutil.EncodeBig(s.chainID), nil

	case "eth_getCode":
		s.codeQueries++
		var addr common.Address
		if err := json.Unmarshal(req.Params[0], &addr); err != nil {
			return nil, err
		}
		return hexutil.Encode(s.code[addr]), nil

	case "eth_call":
		var msg struct {
			To    *common.Address `json:"to"`
			Input hexutil.Bytes   `json:"input"`
			Data  hexutil.Bytes   `json:"data"`
		}
		if err := json.Unmarshal(req.Params[0], &msg); err != nil {
			return nil, err
		}
		data := msg.Input
		if len(data) == 0 {
			data = msg.Data
		}
		if len(data) >= 4 && bytes.Equal(data[:4], getNonceSelector) {
			return hexutil.Encode(common.LeftPadBytes(s.nonce.Bytes(), 32)), nil
		}
		return nil, fmt.Errorf("stub: unsupported eth_call %s", hexutil.Encode(data))

	case "eth_maxPriorityFeePerGas":
		s.tipQueries++
		return hexutil.EncodeBig(s.tip), nil

	case "eth_getBlockByNumber":
		s.headerQueries++
		head := &types.Header{
			Number:     big.NewInt(7_000_000),
			Difficulty: big.NewInt(0),
			GasLimit:   30_000_000,
			GasUsed:    12_000_000,
			Time:       1_700_000_000,
			BaseFee:    s.baseFee,
			Extra:      []byte{},
		}
		raw, err := json.Marshal(head)
		if err != nil {
			return nil, err
		}
		return json.RawMessage(raw), nil

	case "eth_estimateUserOperationGas":
		s.estimateCalls++
		var op map[string]any
		if err := json.Unmarshal(req.Params[0], &op); err != nil {
			return nil, err
		}
		s.lastEstimatedOp = op
		return map[string]any{
			"preVerificationGas":   hexutil.EncodeBig(s.estimatePre),
			"verificationGasLimit": hexutil.EncodeBig(s.estimateVerification),
			"callGasLimit":         hexutil.EncodeBig(s.estimateCall),
		}, nil

	case "eth_sendUserOperation":
		if s.sendError != "" {
			return nil, fmt.Errorf("%s", s.sendError)
		}
		var op map[string]any
		if err := json.Unmarshal(req.Params[0], &op); err != nil {
			return nil, err
		}
		s.sentOps = append(s.sentOps, op)
		return stubOpHash(len(s.sentOps)).Hex(), nil

	case "eth_getUserOperationReceipt":
		var opHash common.Hash
		if err := json.Unmarshal(req.Params[0], &opHash); err != nil {
			return nil, err
		}
		s.pollsSeen++
		if s.pollsSeen <= s.receiptPolls {
			return nil, nil
		}
		return s.receiptFor(opHash), nil

	default:
		return nil, fmt.Errorf("stub: unsupported method %s", req.Method)
	}
}

func stubOpHash(n int) common.Hash {
	return crypto.Keccak256Hash([]byte(fmt.Sprintf("stub-user-op-%d", n)))
}

func (s *stubRPC) receiptFor(opHash common.Hash) map[string]any {
	return map[string]any{
		"userOpHash":    opHash.Hex(),
		"entryPoint":    "0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789",
		"sender":        "0x7c3a76086588230c7B3f4839A4c1F5BBafcd57C6",
		"nonce":         "0x0",
		"success":       s.receiptSuccess,
		"reason":        s.receiptReason,
		"actualGasCost": "0x2386f26fc10000",
		"actualGasUsed": "0x78bc0",
		"logs":          []any{},
		"receipt": map[string]any{
			"transactionHash": crypto.Keccak256Hash(opHash.Bytes()).Hex(),
			"blockHash":       crypto.Keccak256Hash([]byte("stub-block")).Hex(),
			"blockNumber":     "0x6acfc0",
			"gasUsed":         "0x78bc0",
		},
	}
}

// setCode installs account bytecode so the next eth_getCode sees a deployed
// contract.
func (s *stubRPC) setCode(addr common.Address, code []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.code[addr] = code
}

func (s *stubRPC) setNonce(n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nonce = big.NewInt(n)
}

func (s *stubRPC) setReceipt(success bool, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receiptSuccess = success
	s.receiptReason = reason
}

// setReceiptPolls makes the next n receipt queries answer "not included yet".
func (s *stubRPC) setReceiptPolls(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receiptPolls = n
	s.pollsSeen = 0
}

func (s *stubRPC) setSendError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendError = msg
}

func (s *stubRPC) queryCounts() (codeQueries, headerQueries, tipQueries, estimateCalls int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codeQueries, s.headerQueries, s.tipQueries, s.estimateCalls
}

func (s *stubRPC) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sentOps)
}

func (s *stubRPC) lastSentOp() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sentOps) == 0 {
		return nil
	}
	return s.sentOps[len(s.sentOps)-1]
}

func (s *stubRPC) lastEstimated() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastEstimatedOp
}
