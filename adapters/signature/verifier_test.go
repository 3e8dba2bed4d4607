package signature

import (
	"crypto/ecdsa"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/assetgate/adapters/clock"
	"github.com/layer-3/assetgate/core"
	"github.com/layer-3/assetgate/internal/testutil"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func personalSign(t *testing.T, key *ecdsa.PrivateKey, message string) string {
	t.Helper()
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
	require.NoError(t, err)
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig)
}

func newVerifier() *Verifier {
	return NewVerifier(clock.NewManual(testNow), testutil.MakeNoopLogger())
}

func TestVerifier_PersonalSign(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	address := crypto.PubkeyToAddress(key.PublicKey).Hex()
	message := "login-1699999999"
	sig := personalSign(t, key, message)
	v := newVerifier()

	t.Run("valid", func(t *testing.T) {
		assert.True(t, v.Verify(core.WalletChallenge{Address: address, Signature: sig, Message: message}))
	})

	t.Run("address compared case-insensitively", func(t *testing.T) {
		assert.True(t, v.Verify(core.WalletChallenge{Address: strings.ToLower(address), Signature: sig, Message: message}))
		assert.True(t, v.Verify(core.WalletChallenge{Address: "0x" + strings.ToUpper(address[2:]), Signature: sig, Message: message}))
	})

	t.Run("signature without 0x prefix", func(t *testing.T) {
		assert.True(t, v.Verify(core.WalletChallenge{Address: address, Signature: sig[2:], Message: message}))
	})

	t.Run("recovery id 0/1", func(t *testing.T) {
		raw, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
		require.NoError(t, err)
		assert.True(t, v.Verify(core.WalletChallenge{Address: address, Signature: hexutil.Encode(raw), Message: message}))
	})

	t.Run("other message", func(t *testing.T) {
		assert.False(t, v.Verify(core.WalletChallenge{Address: address, Signature: sig, Message: "login-1700000000"}))
	})

	t.Run("other wallet", func(t *testing.T) {
		other, err := crypto.GenerateKey()
		require.NoError(t, err)
		otherAddr := crypto.PubkeyToAddress(other.PublicKey).Hex()
		assert.False(t, v.Verify(core.WalletChallenge{Address: otherAddr, Signature: sig, Message: message}))
	})
}

func TestVerifier_PersonalSignMalformed(t *testing.T) {
	v := newVerifier()
	address := "0x0000000000000000000000000000000000000001"

	tests := []struct {
		name string
		sig  string
	}{
		{"empty", ""},
		{"not hex", "0xzz"},
		{"too short", "0x1234"},
		{"bad recovery id", "0x" + strings.Repeat("11", 64) + "05"},
		{"colon but evm address", "0.0.1:abc:18e"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, v.Verify(core.WalletChallenge{Address: address, Signature: tt.sig, Message: "hello"}))
		})
	}
}

func TestVerifier_EmbeddedHash(t *testing.T) {
	const account = "0.0.123456"
	const message = "login-1699999999"
	v := newVerifier()

	tests := []struct {
		name    string
		address string
		sig     string
		want    bool
	}{
		{"valid", account, EmbeddedSignature(account, message, testNow.Add(-time.Minute)), true},
		{"account mismatch", account, EmbeddedSignature("0.0.654321", message, testNow), false},
		{"hash mismatch", account, EmbeddedSignature(account, "another message", testNow), false},
		{"uppercase hash accepted", account, upperHash(EmbeddedSignature(account, message, testNow)), true},
		{"4 minutes old", account, EmbeddedSignature(account, message, testNow.Add(-4*time.Minute)), true},
		{"6 minutes old", account, EmbeddedSignature(account, message, testNow.Add(-6*time.Minute)), false},
		{"exactly 5 minutes old", account, EmbeddedSignature(account, message, testNow.Add(-5*time.Minute)), true},
		{"5 minutes and 1ms old", account, EmbeddedSignature(account, message, testNow.Add(-5*time.Minute-time.Millisecond)), false},
		{"6 minutes in the future", account, EmbeddedSignature(account, message, testNow.Add(6*time.Minute)), false},
		{"4 minutes in the future", account, EmbeddedSignature(account, message, testNow.Add(4*time.Minute)), true},
		{"bad timestamp", account, account + ":" + sha(message) + ":xyz", false},
		{"hex timestamp with prefix", account, account + ":" + sha(message) + ":0x" + strconv.FormatInt(testNow.UnixMilli(), 16), true},
		{"missing segment", account, account + ":" + sha(message), false},
		{"extra segment", account, EmbeddedSignature(account, message, testNow) + ":x", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := v.Verify(core.WalletChallenge{Address: tt.address, Signature: tt.sig, Message: message})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestScheme(t *testing.T) {
	assert.Equal(t, SchemeEmbeddedHash, Scheme(core.WalletChallenge{Address: "0.0.42", Signature: "a:b:c"}))
	assert.Equal(t, SchemePersonalSign, Scheme(core.WalletChallenge{Address: "0.0.42", Signature: "0xabcdef"}))
	assert.Equal(t, SchemePersonalSign, Scheme(core.WalletChallenge{Address: "0xabc", Signature: "a:b:c"}))
}

func TestIsHashPackAddress(t *testing.T) {
	assert.True(t, IsHashPackAddress("0.0.1"))
	assert.True(t, IsHashPackAddress("1.2.3456789"))
	assert.False(t, IsHashPackAddress("0.0"))
	assert.False(t, IsHashPackAddress("0x0000000000000000000000000000000000000001"))
	assert.False(t, IsHashPackAddress("0.0.1-abcde"))
}

func sha(message string) string {
	parts := strings.Split(EmbeddedSignature("x", message, testNow), ":")
	return parts[1]
}

func upperHash(sig string) string {
	parts := strings.Split(sig, ":")
	parts[1] = strings.ToUpper(parts[1])
	return strings.Join(parts, ":")
}
