package paymaster

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-resty/resty/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"

	"github.com/AvaProtocol/ap-wallet/pkg/erc4337/userop"
)

const (
	methodGetPaymasterData = "pm_getPaymasterData"
	defaultRemoteTimeout   = 10 * time.Second
	tokenTTL               = time.Minute
)

// Default hard caps on service gas suggestions. A suggestion above its cap
// rejects the whole sponsorship: clamping the value instead would break the
// service's signature over it.
var (
	DefaultMaxVerificationGas    = big.NewInt(10_000_000)
	DefaultMaxCallGas            = big.NewInt(10_000_000)
	DefaultMaxPreVerificationGas = big.NewInt(1_000_000)
)

// RemoteConfig wires a RemoteProvider to a sponsorship service.
type RemoteConfig struct {
	// URL of the service's JSON-RPC endpoint.
	URL string

	// APIKey, when set, is sent on every request as X-API-Key.
	APIKey string

	// JWTSecret, when set, mints a short-lived HS256 bearer token per
	// request. Services use one or the other; both may be empty for
	// unauthenticated endpoints.
	JWTSecret []byte

	// Issuer names this client in minted tokens. Defaults to "ap-wallet".
	Issuer string

	Timeout time.Duration

	// Nil caps fall back to the package defaults.
	MaxVerificationGas    *big.Int
	MaxCallGas            *big.Int
	MaxPreVerificationGas *big.Int
}

// RemoteProvider obtains sponsorships from an ERC-7677 style service. It
// sends the unsigned operation and gets back ready-to-use paymasterAndData,
// usually with gas suggestions the service signed over. Every failure mode
// wraps ErrSponsorshipUnavailable so callers can fall back to self-funding
// with one errors.Is check.
type RemoteProvider struct {
	url        string
	httpClient *resty.Client
	jwtSecret  []byte
	issuer     string

	maxVerificationGas    *big.Int
	maxCallGas            *big.Int
	maxPreVerificationGas *big.Int
}

var _ Provider = (*RemoteProvider)(nil)

func NewRemoteProvider(cfg RemoteConfig) *RemoteProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRemoteTimeout
	}

	client := resty.New().SetTimeout(timeout)
	headers := map[string]string{
		"Accept":       "application/json",
		"Content-Type": "application/json",
	}
	if cfg.APIKey != "" {
		headers["X-API-Key"] = cfg.APIKey
	}
	client.SetHeaders(headers)

	issuer := cfg.Issuer
	if issuer == "" {
		issuer = "ap-wallet"
	}

	return &RemoteProvider{
		url:                   cfg.URL,
		httpClient:            client,
		jwtSecret:             cfg.JWTSecret,
		issuer:                issuer,
		maxVerificationGas:    capOrDefault(cfg.MaxVerificationGas, DefaultMaxVerificationGas),
		maxCallGas:            capOrDefault(cfg.MaxCallGas, DefaultMaxCallGas),
		maxPreVerificationGas: capOrDefault(cfg.MaxPreVerificationGas, DefaultMaxPreVerificationGas),
	}
}

func capOrDefault(v, def *big.Int) *big.Int {
	if v == nil {
		return def
	}
	return v
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      string        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// sponsorshipResult is the service's result object. Gas fields are optional;
// services that never adjust gas omit them.
type sponsorshipResult struct {
	PaymasterAndData     string `json:"paymasterAndData"`
	CallGasLimit         string `json:"callGasLimit,omitempty"`
	VerificationGasLimit string `json:"verificationGasLimit,omitempty"`
	PreVerificationGas   string `json:"preVerificationGas,omitempty"`
}

type rpcResponse struct {
	JSONRPC string             `json:"jsonrpc"`
	ID      string             `json:"id"`
	Result  *sponsorshipResult `json:"result"`
	Error   *rpcError          `json:"error"`
}

func (p *RemoteProvider) GetPaymasterData(ctx context.Context, op *userop.UserOperation, entryPoint common.Address, chainID *big.Int) (*Result, error) {
	if chainID == nil {
		chainID = big.NewInt(0)
	}

	request := rpcRequest{
		JSONRPC: "2.0",
		ID:      ulid.Make().String(),
		Method:  methodGetPaymasterData,
		Params: []interface{}{
			op,
			entryPoint.Hex(),
			hexutil.EncodeBig(chainID),
			map[string]string{},
		},
	}

	req := p.httpClient.R().
		SetContext(ctx).
		SetBody(request).
		SetResult(&rpcResponse{})

	if len(p.jwtSecret) > 0 {
		token, err := p.mintToken()
		if err != nil {
			return nil, fmt.Errorf("%w: minting bearer token: %v", ErrSponsorshipUnavailable, err)
		}
		req.SetAuthToken(token)
	}

	resp, err := req.Post(p.url)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSponsorshipUnavailable, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("%w: service returned status %d: %s",
			ErrSponsorshipUnavailable, resp.StatusCode(), resp.String())
	}

	rpcResp := resp.Result().(*rpcResponse)
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("%w: service error %d: %s",
			ErrSponsorshipUnavailable, rpcResp.Error.Code, rpcResp.Error.Message)
	}
	if rpcResp.Result == nil || rpcResp.Result.PaymasterAndData == "" {
		return nil, fmt.Errorf("%w: service returned no paymasterAndData", ErrSponsorshipUnavailable)
	}

	blob, err := hexutil.Decode(rpcResp.Result.PaymasterAndData)
	if err != nil {
		return nil, fmt.Errorf("%w: undecodable paymasterAndData %q: %v",
			ErrSponsorshipUnavailable, rpcResp.Result.PaymasterAndData, err)
	}

	suggestions, err := p.parseGasSuggestions(rpcResp.Result)
	if err != nil {
		return nil, err
	}

	return &Result{PaymasterAndData: blob, GasSuggestions: suggestions}, nil
}

// parseGasSuggestions decodes the optional gas fields and cross-checks each
// against its hard cap.
func (p *RemoteProvider) parseGasSuggestions(result *sponsorshipResult) (*GasSuggestions, error) {
	suggestions := &GasSuggestions{}
	any := false

	parse := func(name, raw string, limit *big.Int, dst **big.Int) error {
		if raw == "" {
			return nil
		}
		v, err := hexutil.DecodeBig(raw)
		if err != nil {
			return fmt.Errorf("%w: undecodable %s %q: %v", ErrSponsorshipUnavailable, name, raw, err)
		}
		if v.Cmp(limit) > 0 {
			return fmt.Errorf("%w: suggested %s %s exceeds cap %s", ErrSponsorshipUnavailable, name, v, limit)
		}
		*dst = v
		any = true
		return nil
	}

	if err := parse("callGasLimit", result.CallGasLimit, p.maxCallGas, &suggestions.CallGasLimit); err != nil {
		return nil, err
	}
	if err := parse("verificationGasLimit", result.VerificationGasLimit, p.maxVerificationGas, &suggestions.VerificationGasLimit); err != nil {
		return nil, err
	}
	if err := parse("preVerificationGas", result.PreVerificationGas, p.maxPreVerificationGas, &suggestions.PreVerificationGas); err != nil {
		return nil, err
	}

	if !any {
		return nil, nil
	}
	return suggestions, nil
}

func (p *RemoteProvider) mintToken() (string, error) {
	now := time.Now()
	claims := &jwt.RegisteredClaims{
		Issuer:    p.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(p.jwtSecret)
}
