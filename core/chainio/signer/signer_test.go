package signer

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKeyHex = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"

var (
	_ Signer      = (*ECDSASigner)(nil)
	_ KeyExporter = (*ECDSASigner)(nil)
)

func TestSignMessage_ProducesRecoverableEIP191Signature(t *testing.T) {
	key, err := crypto.HexToECDSA(testKeyHex)
	require.NoError(t, err)

	message := []byte("attest to this")
	sig, err := SignMessage(key, message)
	require.NoError(t, err)

	require.Len(t, sig, 65)
	assert.Contains(t, []byte{27, 28}, sig[64], "v must be adjusted to 27/28")

	recovered, err := RecoverMessageSigner(message, sig)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), recovered)
}

func TestSignMessage_IsDeterministic(t *testing.T) {
	key, err := crypto.HexToECDSA(testKeyHex)
	require.NoError(t, err)

	sig1, err := SignMessage(key, []byte{0x01, 0x02})
	require.NoError(t, err)
	sig2, err := SignMessage(key, []byte{0x01, 0x02})
	require.NoError(t, err)

	assert.Equal(t, sig1, sig2)
}

func TestSignMessageAsHex(t *testing.T) {
	key, err := crypto.HexToECDSA(testKeyHex)
	require.NoError(t, err)

	sigHex, err := SignMessageAsHex(key, []byte("payload"))
	require.NoError(t, err)
	assert.Len(t, sigHex, 130, "65 bytes as unprefixed hex")
}

func TestECDSASigner_SignDigestMatchesSignMessage(t *testing.T) {
	key, err := crypto.HexToECDSA(testKeyHex)
	require.NoError(t, err)
	s := FromPrivateKey(key)

	digest := crypto.Keccak256Hash([]byte("op to sign"))

	fromSigner, err := s.SignDigest(context.Background(), digest)
	require.NoError(t, err)
	fromHelper, err := SignMessage(key, digest.Bytes())
	require.NoError(t, err)

	assert.Equal(t, fromHelper, fromSigner, "SignDigest is the EIP-191 envelope over the 32-byte digest")

	recovered, err := RecoverMessageSigner(digest.Bytes(), fromSigner)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), recovered)
}

func TestFromPrivateKeyHex_PrefixHandling(t *testing.T) {
	plain, err := FromPrivateKeyHex(testKeyHex)
	require.NoError(t, err)

	prefixed, err := FromPrivateKeyHex("0x" + testKeyHex)
	require.NoError(t, err)

	assert.Equal(t, plain.Address(), prefixed.Address())

	_, err = FromPrivateKeyHex("not-a-key")
	assert.Error(t, err)
}

func TestECDSASigner_ExportPrivateKey(t *testing.T) {
	key, err := crypto.HexToECDSA(testKeyHex)
	require.NoError(t, err)

	exported, err := FromPrivateKey(key).ExportPrivateKey()
	require.NoError(t, err)
	assert.Equal(t, key, exported)
}

func TestRecoverMessageSigner_RejectsShortSignature(t *testing.T) {
	_, err := RecoverMessageSigner([]byte("data"), []byte{0x01})
	assert.Error(t, err)
}
