package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"

	"github.com/goccy/go-json"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"
)

// ErrWrongPassword is returned when a device bundle cannot be opened with the given password
var ErrWrongPassword = errors.New("device bundle password is incorrect")

// argon2id parameters used to derive the bundle key
const (
	argonTime    = 2
	argonMemory  = 64 * 1024
	argonThreads = 4
	saltSize     = 16
	nonceSize    = 24
)

// Keys is the holoport signing key
type Keys struct {
	private ed25519.PrivateKey
	// HoloportID is the base36 encoding of the public key
	HoloportID string
}

// FromSeed builds Keys from a 32 byte ed25519 seed
func FromSeed(seed []byte) (*Keys, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &Keys{
		private:    priv,
		HoloportID: Base36ID(priv.Public().(ed25519.PublicKey)),
	}, nil
}

// PublicKey returns the ed25519 public key
func (k *Keys) PublicKey() ed25519.PublicKey {
	return k.private.Public().(ed25519.PublicKey)
}

// SignBytes signs body and returns the signature as unpadded standard base64
func (k *Keys) SignBytes(body []byte) string {
	return base64.RawStdEncoding.EncodeToString(ed25519.Sign(k.private, body))
}

// Sign signs the JSON encoding of payload
func (k *Keys) Sign(payload interface{}) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode payload for signing: %w", err)
	}
	return k.SignBytes(body), nil
}

// Verify checks a signature produced by SignBytes
func Verify(pub ed25519.PublicKey, body []byte, signature string) bool {
	sig, err := base64.RawStdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	return ed25519.Verify(pub, body, sig)
}

const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// Base36ID encodes a public key as a lowercase base36 holoport id. Leading
// zero bytes are kept as leading '0' digits.
func Base36ID(pub []byte) string {
	var zeros int
	for zeros < len(pub) && pub[zeros] == 0 {
		zeros++
	}
	rest := ""
	if zeros < len(pub) {
		rest = new(big.Int).SetBytes(pub[zeros:]).Text(36)
	}
	return strings.Repeat(string(base36Alphabet[0]), zeros) + rest
}

// agentKeyLen is the decoded length of a holochain agent key: a 3 byte type
// prefix, the 32 byte ed25519 key and a 4 byte location
const agentKeyLen = 39

// AgentKeyBytes extracts the ed25519 public key from a "uhCAk..." agent key
func AgentKeyBytes(agentKey string) ([]byte, error) {
	if !strings.HasPrefix(agentKey, "u") {
		return nil, fmt.Errorf("agent key %q: missing multibase prefix", agentKey)
	}
	raw, err := base64.RawURLEncoding.DecodeString(agentKey[1:])
	if err != nil {
		return nil, fmt.Errorf("agent key %q: %w", agentKey, err)
	}
	if len(raw) != agentKeyLen {
		return nil, fmt.Errorf("agent key %q: expected %d bytes, got %d", agentKey, agentKeyLen, len(raw))
	}
	return raw[3:35], nil
}

// HoloportIDFromAgentKey returns the holoport id of the host agent key
func HoloportIDFromAgentKey(agentKey string) (string, error) {
	pub, err := AgentKeyBytes(agentKey)
	if err != nil {
		return "", err
	}
	return Base36ID(pub), nil
}

// hposConfig is the subset of the HPOS config file holding the device bundle
type hposConfig struct {
	V2 *struct {
		DeviceBundle string `json:"device_bundle"`
		Settings     struct {
			Admin struct {
				Email string `json:"email"`
			} `json:"admin"`
		} `json:"settings"`
	} `json:"v2"`
}

// lockedBundle is a password locked ed25519 seed
type lockedBundle struct {
	Salt   []byte `json:"salt"`
	Nonce  []byte `json:"nonce"`
	Cipher []byte `json:"cipher"`
}

// LoadFromConfig reads the device bundle from the HPOS config file at path and
// unlocks it with password
func LoadFromConfig(path, password string) (*Keys, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read hpos config %s: %w", path, err)
	}

	var cfg hposConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse hpos config %s: %w", path, err)
	}
	if cfg.V2 == nil || cfg.V2.DeviceBundle == "" {
		return nil, fmt.Errorf("hpos config %s: unsupported version, expected v2 with a device bundle", path)
	}

	seed, err := UnlockBundle(cfg.V2.DeviceBundle, password)
	if err != nil {
		return nil, fmt.Errorf("hpos config %s: %w", path, err)
	}
	return FromSeed(seed)
}

// UnlockBundle decrypts a device bundle produced by LockBundle
func UnlockBundle(bundle, password string) ([]byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(bundle, "="))
	if err != nil {
		return nil, fmt.Errorf("failed to decode device bundle: %w", err)
	}
	var lb lockedBundle
	if err := json.Unmarshal(raw, &lb); err != nil {
		return nil, fmt.Errorf("failed to parse device bundle: %w", err)
	}
	if len(lb.Nonce) != nonceSize {
		return nil, fmt.Errorf("device bundle nonce must be %d bytes", nonceSize)
	}

	key := deriveKey(password, lb.Salt)
	var nonce [nonceSize]byte
	copy(nonce[:], lb.Nonce)

	seed, ok := secretbox.Open(nil, lb.Cipher, &nonce, &key)
	if !ok {
		return nil, ErrWrongPassword
	}
	return seed, nil
}

// LockBundle encrypts seed with password into a device bundle string
func LockBundle(seed []byte, password string) (string, error) {
	return lockBundle(rand.Reader, seed, password)
}

func lockBundle(random io.Reader, seed []byte, password string) (string, error) {
	lb := lockedBundle{Salt: make([]byte, saltSize)}
	if _, err := io.ReadFull(random, lb.Salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(random, nonce[:]); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	lb.Nonce = nonce[:]

	key := deriveKey(password, lb.Salt)
	lb.Cipher = secretbox.Seal(nil, seed, &nonce, &key)

	raw, err := json.Marshal(lb)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func deriveKey(password string, salt []byte) [32]byte {
	var key [32]byte
	copy(key[:], argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, 32))
	return key
}
