package cmd

import (
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AvaProtocol/ap-wallet/core/config"
)

func TestCommandTree(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, want := range []string{"wallet", "session", "op", "backup", "restore", "config", "version"} {
		assert.True(t, names[want], "root command should register %q", want)
	}

	walletSubs := map[string]bool{}
	for _, c := range walletCmd.Commands() {
		walletSubs[c.Name()] = true
	}
	for _, want := range []string{"address", "list", "deploy", "send", "hide", "unhide"} {
		assert.True(t, walletSubs[want], "wallet command should register %q", want)
	}

	sessionSubs := map[string]bool{}
	for _, c := range sessionCmd.Commands() {
		sessionSubs[c.Name()] = true
	}
	for _, want := range []string{"create", "list", "revoke", "export", "import", "authorize", "purge"} {
		assert.True(t, sessionSubs[want], "session command should register %q", want)
	}
}

func TestParseEtherAmount(t *testing.T) {
	wei, err := parseEtherAmount("0")
	require.NoError(t, err)
	assert.Equal(t, int64(0), wei.Int64())

	wei, err = parseEtherAmount("1")
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000", wei.String())

	wei, err = parseEtherAmount("0.25")
	require.NoError(t, err)
	assert.Equal(t, "250000000000000000", wei.String())

	wei, err = parseEtherAmount("0.000000000000000001")
	require.NoError(t, err)
	assert.Equal(t, int64(1), wei.Int64())

	_, err = parseEtherAmount("-1")
	assert.Error(t, err)

	_, err = parseEtherAmount("0.0000000000000000001")
	assert.Error(t, err, "sub-wei precision should be rejected")

	_, err = parseEtherAmount("not-a-number")
	assert.Error(t, err)
}

func TestFormatEther(t *testing.T) {
	assert.Equal(t, "0", formatEther(nil))
	assert.Equal(t, "1", formatEther(big.NewInt(1_000_000_000_000_000_000)))
	assert.Equal(t, "0.25", formatEther(big.NewInt(250_000_000_000_000_000)))
}

func TestParseSelector(t *testing.T) {
	fromHex, err := parseSelector("0xa9059cbb")
	require.NoError(t, err)

	fromSignature, err := parseSelector("transfer(address,uint256)")
	require.NoError(t, err)
	assert.Equal(t, fromHex, fromSignature, "hex and signature forms should agree")

	_, err = parseSelector("0x123456")
	assert.Error(t, err, "short hex should be rejected")

	_, err = parseSelector("transfer")
	assert.Error(t, err, "bare names are ambiguous")
}

func TestBuildCreateRequest(t *testing.T) {
	origValidFor, origValidAfter := sessionValidFor, sessionValidAfter
	origMaxValue, origMaxTotal := sessionMaxValue, sessionMaxTotal
	origAllow, origSelectors := sessionAllow, sessionSelectors
	defer func() {
		sessionValidFor, sessionValidAfter = origValidFor, origValidAfter
		sessionMaxValue, sessionMaxTotal = origMaxValue, origMaxTotal
		sessionAllow, sessionSelectors = origAllow, origSelectors
	}()

	sessionValidFor = time.Hour
	sessionValidAfter = 1_700_000_000
	sessionMaxValue = "0.5"
	sessionMaxTotal = "2"
	sessionAllow = []string{"0x1111111111111111111111111111111111111111"}
	sessionSelectors = []string{"transfer(address,uint256)"}

	req, err := buildCreateRequest()
	require.NoError(t, err)

	assert.Equal(t, int64(1_700_000_000), req.ValidAfter)
	assert.Equal(t, int64(1_700_003_600), req.ValidUntil)
	assert.Equal(t, "500000000000000000", req.MaxValuePerCall.String())
	assert.Equal(t, "2000000000000000000", req.MaxTotalValue.String())
	require.Len(t, req.AllowedTargets, 1)
	assert.Equal(t, common.HexToAddress("0x1111111111111111111111111111111111111111"), req.AllowedTargets[0])
	require.Len(t, req.AllowedSelectors, 1)
	assert.Equal(t, "0xa9059cbb", req.AllowedSelectors[0].Hex())
}

func TestConfigInitTemplateLoads(t *testing.T) {
	origPath := cfgPath
	defer func() { cfgPath = origPath }()

	cfgPath = filepath.Join(t.TempDir(), "wallet.yaml")
	configInitCmd.Run(configInitCmd, nil)

	cfg, err := config.NewConfig(cfgPath)
	require.NoError(t, err, "the shipped template must load cleanly")

	assert.Equal(t, int64(11155111), cfg.SmartWallet.ChainID.Int64())
	assert.Equal(t, common.HexToAddress(config.DefaultEntrypointAddress), cfg.SmartWallet.EntrypointAddress)
	assert.Equal(t, common.HexToAddress("0x29adA1b5217242DEaBB142BC3b1bCfFdd56008e7"), cfg.SmartWallet.FactoryAddress)
	assert.Nil(t, cfg.SmartWallet.ControllerPrivateKey, "template must not ship a key")
}
