package account

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AvaProtocol/ap-wallet/core/chainio/aa"
	"github.com/AvaProtocol/ap-wallet/core/chainio/signer"
	"github.com/AvaProtocol/ap-wallet/core/testutil"
	"github.com/AvaProtocol/ap-wallet/pkg/erc4337/paymaster"
	"github.com/AvaProtocol/ap-wallet/pkg/erc4337/userop"
)

var (
	testTargetA = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testTargetB = common.HexToAddress("0x2222222222222222222222222222222222222222")

	// transfer(address,uint256) calldata, the shape most wallet calls take.
	testTransferData = common.FromHex(
		"0xa9059cbb" +
			"0000000000000000000000002222222222222222222222222222222222222222" +
			"0000000000000000000000000000000000000000000000000de0b6b3a7640000")
)

func newTestHandle(t *testing.T, stub *stubRPC, mods ...func(*ControllerConfig)) *Handle {
	t.Helper()

	ctrl := newTestController(t, stub, mods...)
	h, err := ctrl.Handle(testOwner(), big.NewInt(0))
	require.NoError(t, err)
	return h
}

func TestBuildOperationPacksSingleExecute(t *testing.T) {
	stub := newStubRPC(t)
	h := newTestHandle(t, stub)

	op, err := h.BuildOperation(context.Background(), []Call{
		{To: testTargetA, Value: big.NewInt(1000), Data: testTransferData},
	}, BuildOptions{})
	require.NoError(t, err)

	assert.Equal(t, h.Address(), op.Sender)
	assert.False(t, aa.IsExecuteBatch(op.CallData))

	target, value, data, err := aa.UnpackExecute(op.CallData)
	require.NoError(t, err)
	assert.Equal(t, testTargetA, target)
	assert.Zero(t, value.Cmp(big.NewInt(1000)))
	assert.Equal(t, testTransferData, data)

	// Fresh account: init code rides along and names the factory first.
	require.GreaterOrEqual(t, len(op.InitCode), 20)
	assert.Equal(t, h.factory.Bytes(), op.InitCode[:20])

	assert.Zero(t, op.Nonce.Sign())
	assert.Nil(t, op.CallGasLimit)
	assert.Nil(t, op.VerificationGasLimit)
	assert.Nil(t, op.PreVerificationGas)
	assert.NotNil(t, op.Signature)
	assert.Empty(t, op.Signature)
	assert.NotNil(t, op.PaymasterAndData)
	assert.Empty(t, op.PaymasterAndData)
}

func TestBuildOperationPacksBatch(t *testing.T) {
	stub := newStubRPC(t)
	h := newTestHandle(t, stub)

	op, err := h.BuildOperation(context.Background(), []Call{
		{To: testTargetA, Value: big.NewInt(1), Data: testTransferData},
		{To: testTargetB}, // nil value and data pack as zero and empty
	}, BuildOptions{})
	require.NoError(t, err)

	require.True(t, aa.IsExecuteBatch(op.CallData))

	targets, values, datas, err := aa.UnpackExecuteBatch(op.CallData)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{testTargetA, testTargetB}, targets)
	assert.Zero(t, values[0].Cmp(big.NewInt(1)))
	assert.Zero(t, values[1].Sign())
	assert.Equal(t, testTransferData, datas[0])
	assert.Empty(t, datas[1])
}

func TestBuildOperationRequiresCalls(t *testing.T) {
	stub := newStubRPC(t)
	h := newTestHandle(t, stub)

	_, err := h.BuildOperation(context.Background(), nil, BuildOptions{})
	assert.ErrorIs(t, err, ErrNoCalls)
}

func TestBuildOperationSkipsInitCodeOnceDeployed(t *testing.T) {
	stub := newStubRPC(t)
	h := newTestHandle(t, stub)
	stub.setCode(h.Address(), []byte{0x60, 0x80, 0x60, 0x40})

	op, err := h.BuildOperation(context.Background(), []Call{{To: testTargetA}}, BuildOptions{})
	require.NoError(t, err)

	assert.Empty(t, op.InitCode)
	assert.Equal(t, DeploymentDeployed, h.DeploymentState())
}

func TestBuildOperationReadsEntryPointNonce(t *testing.T) {
	stub := newStubRPC(t)
	h := newTestHandle(t, stub)
	stub.setNonce(7)

	op, err := h.BuildOperation(context.Background(), []Call{{To: testTargetA}}, BuildOptions{})
	require.NoError(t, err)
	assert.Zero(t, op.Nonce.Cmp(big.NewInt(7)))

	// Second build reads again; nonce is never cached.
	stub.setNonce(8)
	op, err = h.BuildOperation(context.Background(), []Call{{To: testTargetA}}, BuildOptions{})
	require.NoError(t, err)
	assert.Zero(t, op.Nonce.Cmp(big.NewInt(8)))
}

func TestBuildOperationSuggestsFees(t *testing.T) {
	stub := newStubRPC(t)
	h := newTestHandle(t, stub)

	op, err := h.BuildOperation(context.Background(), []Call{{To: testTargetA}}, BuildOptions{})
	require.NoError(t, err)

	// Stub serves a 1 gwei tip and a 2 gwei base fee, so both suggestions
	// land on their floors: 2 gwei tip, 20 gwei max fee.
	assert.Zero(t, op.MaxPriorityFeePerGas.Cmp(big.NewInt(2_000_000_000)))
	assert.Zero(t, op.MaxFeePerGas.Cmp(big.NewInt(20_000_000_000)))
}

func TestBuildOperationFeeOverridesSkipSuggestion(t *testing.T) {
	stub := newStubRPC(t)
	h := newTestHandle(t, stub)

	op, err := h.BuildOperation(context.Background(), []Call{{To: testTargetA}}, BuildOptions{
		MaxFeePerGas:         big.NewInt(30_000_000_000),
		MaxPriorityFeePerGas: big.NewInt(3_000_000_000),
	})
	require.NoError(t, err)

	assert.Zero(t, op.MaxFeePerGas.Cmp(big.NewInt(30_000_000_000)))
	assert.Zero(t, op.MaxPriorityFeePerGas.Cmp(big.NewInt(3_000_000_000)))

	_, headerQueries, tipQueries, _ := stub.queryCounts()
	assert.Zero(t, headerQueries)
	assert.Zero(t, tipQueries)
}

func TestBuildOperationTipOverrideKeepsHeadroom(t *testing.T) {
	stub := newStubRPC(t)
	h := newTestHandle(t, stub)

	op, err := h.BuildOperation(context.Background(), []Call{{To: testTargetA}}, BuildOptions{
		MaxPriorityFeePerGas: big.NewInt(5_000_000_000),
	})
	require.NoError(t, err)

	// Suggestion is (20 gwei, 2 gwei); pinning the tip to 5 gwei keeps the
	// 18 gwei base fee headroom on top of it.
	assert.Zero(t, op.MaxPriorityFeePerGas.Cmp(big.NewInt(5_000_000_000)))
	assert.Zero(t, op.MaxFeePerGas.Cmp(big.NewInt(23_000_000_000)))
}

func TestEstimateAndFillSkipsWhenPreloaded(t *testing.T) {
	stub := newStubRPC(t)
	h := newTestHandle(t, stub)

	op, err := h.BuildOperation(context.Background(), []Call{{To: testTargetA}}, BuildOptions{
		CallGasLimit:         big.NewInt(100_000),
		VerificationGasLimit: big.NewInt(200_000),
		PreVerificationGas:   big.NewInt(50_000),
	})
	require.NoError(t, err)
	require.NoError(t, h.EstimateAndFill(context.Background(), op))

	assert.Zero(t, op.CallGasLimit.Cmp(big.NewInt(100_000)))
	assert.Zero(t, op.VerificationGasLimit.Cmp(big.NewInt(200_000)))
	assert.Zero(t, op.PreVerificationGas.Cmp(big.NewInt(50_000)))

	_, _, _, estimateCalls := stub.queryCounts()
	assert.Zero(t, estimateCalls)
}

func TestEstimateAndFillUsesPlaceholderSignature(t *testing.T) {
	stub := newStubRPC(t)
	h := newTestHandle(t, stub)

	op, err := h.BuildOperation(context.Background(), []Call{{To: testTargetA}}, BuildOptions{})
	require.NoError(t, err)
	require.NoError(t, h.EstimateAndFill(context.Background(), op))

	assert.Zero(t, op.CallGasLimit.Cmp(big.NewInt(120_000)))
	assert.Zero(t, op.VerificationGasLimit.Cmp(big.NewInt(310_000)))
	assert.Zero(t, op.PreVerificationGas.Cmp(big.NewInt(48_500)))

	// The relay saw the placeholder; the operation itself stays unsigned.
	estimated := stub.lastEstimated()
	require.NotNil(t, estimated)
	assert.Equal(t, hexutil.Encode(dummySignature), estimated["signature"])
	assert.Empty(t, op.Signature)
}

func TestSponsorOperationAttachesBlob(t *testing.T) {
	stub := newStubRPC(t)
	paymasterAddr := common.HexToAddress("0xB985af5f96EF2722DC99aEBA573520903B86505e")
	sponsorKey := testutil.TestOwnerSigner()

	h := newTestHandle(t, stub, func(cc *ControllerConfig) {
		cc.Sponsor = paymaster.NewLocalProvider(paymasterAddr, sponsorKey, time.Hour)
	})

	op, err := h.BuildOperation(context.Background(), []Call{{To: testTargetA}}, BuildOptions{})
	require.NoError(t, err)
	require.NoError(t, h.EstimateAndFill(context.Background(), op))
	require.NoError(t, h.SponsorOperation(context.Background(), op))

	parsedAddr, window, sig, err := paymaster.ParsePaymasterAndData(op.PaymasterAndData)
	require.NoError(t, err)
	assert.Equal(t, paymasterAddr, parsedAddr)

	// The sponsorship signature covers the operation as sponsored, scoped
	// to the stub's chain, and recovers to the sponsor key.
	digest, err := paymaster.PaymasterHash(op, big.NewInt(11155111), paymasterAddr, window)
	require.NoError(t, err)
	recovered, err := signer.RecoverMessageSigner(digest.Bytes(), sig)
	require.NoError(t, err)
	assert.Equal(t, sponsorKey.Address(), recovered)
}

func TestSponsorOperationWithoutProvider(t *testing.T) {
	stub := newStubRPC(t)
	h := newTestHandle(t, stub)

	err := h.SponsorOperation(context.Background(), &userop.UserOperation{})
	assert.ErrorIs(t, err, ErrNoSponsor)
}
