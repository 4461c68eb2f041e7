package keys

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSeed = bytes.Repeat([]byte{7}, ed25519.SeedSize)

func TestBase36ID(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want string
	}{
		{"single byte", []byte{35}, "z"},
		{"two bytes", []byte{1, 0}, "74"},
		{"leading zeros", []byte{0, 0, 36}, "0010"},
		{"all zeros", []byte{0, 0}, "00"},
		{"empty", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Base36ID(tt.in))
		})
	}
}

func TestFromSeed(t *testing.T) {
	k, err := FromSeed(testSeed)
	require.NoError(t, err)
	assert.Equal(t, Base36ID(k.PublicKey()), k.HoloportID)
	assert.NotEmpty(t, k.HoloportID)

	_, err = FromSeed([]byte("short"))
	assert.Error(t, err)
}

func TestSign(t *testing.T) {
	k, err := FromSeed(testSeed)
	require.NoError(t, err)

	payload := map[string][]string{"redemption_ids": {"a", "b"}}
	sig, err := k.Sign(payload)
	require.NoError(t, err)
	assert.NotContains(t, sig, "=")

	body, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.True(t, Verify(k.PublicKey(), body, sig))
	assert.False(t, Verify(k.PublicKey(), []byte("tampered"), sig))
	assert.False(t, Verify(k.PublicKey(), body, "not base64!"))
}

func TestBundleRoundTrip(t *testing.T) {
	bundle, err := lockBundle(bytes.NewReader(bytes.Repeat([]byte{1}, 64)), testSeed, "pass")
	require.NoError(t, err)

	seed, err := UnlockBundle(bundle, "pass")
	require.NoError(t, err)
	assert.Equal(t, testSeed, seed)

	_, err = UnlockBundle(bundle, "wrong")
	assert.ErrorIs(t, err, ErrWrongPassword)

	_, err = UnlockBundle("%%%", "pass")
	assert.Error(t, err)
}

func TestLoadFromConfig(t *testing.T) {
	bundle, err := LockBundle(testSeed, "pass")
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "hpos-config.json")
	cfg := map[string]interface{}{
		"v2": map[string]interface{}{
			"device_bundle": bundle,
			"settings":      map[string]interface{}{"admin": map[string]string{"email": "host@example.com"}},
		},
	}
	raw, err := json.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0600))

	k, err := LoadFromConfig(path, "pass")
	require.NoError(t, err)

	want, err := FromSeed(testSeed)
	require.NoError(t, err)
	assert.Equal(t, want.HoloportID, k.HoloportID)

	_, err = LoadFromConfig(path, "nope")
	assert.ErrorIs(t, err, ErrWrongPassword)

	_, err = LoadFromConfig(filepath.Join(dir, "missing.json"), "pass")
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`{"v1":{}}`), 0600))
	_, err = LoadFromConfig(path, "pass")
	assert.Error(t, err)
}

func TestHoloportIDFromAgentKey(t *testing.T) {
	k, err := FromSeed(testSeed)
	require.NoError(t, err)

	raw := append([]byte{0x84, 0x20, 0x24}, k.PublicKey()...)
	raw = append(raw, 0, 0, 0, 0)
	agentKey := "u" + base64.RawURLEncoding.EncodeToString(raw)

	id, err := HoloportIDFromAgentKey(agentKey)
	require.NoError(t, err)
	assert.Equal(t, k.HoloportID, id)

	for _, bad := range []string{"", "xabc", "u!!!", "u" + base64.RawURLEncoding.EncodeToString([]byte{1, 2, 3})} {
		_, err := HoloportIDFromAgentKey(bad)
		assert.Error(t, err, bad)
	}
}
