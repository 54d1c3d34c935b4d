package proofs

import (
	"crypto/ed25519"
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// Signer produces the receipt signature over the input hash.
type Signer interface {
	// Algorithm names the scheme, e.g. "mock-sha256" or "ed25519".
	Algorithm() string
	// PublicKey returns the hex encoded verification key, or "" if the
	// scheme has none.
	PublicKey() string
	Sign(data []byte) (string, error)
	Verify(data []byte, signature, publicKey string) (bool, error)
}

// NewSigner builds the signer named by algorithm: "mock", "ed25519" or
// "secp256k1". keyHex is ignored for mock.
func NewSigner(algorithm, keyHex string) (Signer, error) {
	switch strings.ToLower(strings.TrimSpace(algorithm)) {
	case "", "mock":
		return MockSigner{}, nil
	case "ed25519":
		s, err := NewEd25519SignerFromHex(keyHex)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "secp256k1":
		s, err := NewSecp256k1SignerFromHex(keyHex)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported signer algorithm %q", algorithm)
	}
}

// MockSigner is the default signer. It is NOT a signature: the output is
// sha256(MockSignatureMark + data), which anyone can recompute. It exists so
// the receipt has a stable signature slot until a real key is configured.
type MockSigner struct{}

func (MockSigner) Algorithm() string { return "mock-sha256" }

func (MockSigner) PublicKey() string { return "" }

func (MockSigner) Sign(data []byte) (string, error) {
	return Digest(MockSignatureMark + string(data)), nil
}

func (s MockSigner) Verify(data []byte, signature, _ string) (bool, error) {
	expected, _ := s.Sign(data)
	return expected == signature, nil
}

// Ed25519Signer signs with an Ed25519 private key. Signatures are hex.
type Ed25519Signer struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// NewEd25519Signer wraps an existing key.
func NewEd25519Signer(priv ed25519.PrivateKey) (*Ed25519Signer, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("ed25519: invalid private key size %d", len(priv))
	}
	return &Ed25519Signer{priv: priv, pub: priv.Public().(ed25519.PublicKey)}, nil
}

// NewEd25519SignerFromHex accepts either a 32-byte seed or a 64-byte key.
func NewEd25519SignerFromHex(keyHex string) (*Ed25519Signer, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(keyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("ed25519: decode key: %w", err)
	}
	switch len(raw) {
	case ed25519.SeedSize:
		return NewEd25519Signer(ed25519.NewKeyFromSeed(raw))
	case ed25519.PrivateKeySize:
		return NewEd25519Signer(ed25519.PrivateKey(raw))
	default:
		return nil, fmt.Errorf("ed25519: key must be %d or %d bytes, got %d", ed25519.SeedSize, ed25519.PrivateKeySize, len(raw))
	}
}

// GenerateEd25519Signer creates a fresh key from rand.
func GenerateEd25519Signer(rand io.Reader) (*Ed25519Signer, error) {
	_, priv, err := ed25519.GenerateKey(rand)
	if err != nil {
		return nil, fmt.Errorf("ed25519: generate key: %w", err)
	}
	return NewEd25519Signer(priv)
}

func (s *Ed25519Signer) Algorithm() string { return "ed25519" }

func (s *Ed25519Signer) PublicKey() string { return hex.EncodeToString(s.pub) }

func (s *Ed25519Signer) Sign(data []byte) (string, error) {
	return hex.EncodeToString(ed25519.Sign(s.priv, data)), nil
}

func (s *Ed25519Signer) Verify(data []byte, signature, publicKey string) (bool, error) {
	pub, err := hex.DecodeString(publicKey)
	if err != nil {
		return false, fmt.Errorf("ed25519: decode public key: %w", err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return false, fmt.Errorf("ed25519: invalid public key size %d", len(pub))
	}
	sig, err := hex.DecodeString(signature)
	if err != nil {
		return false, nil
	}
	return ed25519.Verify(ed25519.PublicKey(pub), data, sig), nil
}

// Secp256k1Signer signs keccak256(data) with an Ethereum style key. The
// signature is the 65-byte [R || S || V] form, hex encoded, so the signer
// address can be recovered on chain.
type Secp256k1Signer struct {
	key *ecdsa.PrivateKey
}

// NewSecp256k1Signer wraps an existing key.
func NewSecp256k1Signer(key *ecdsa.PrivateKey) (*Secp256k1Signer, error) {
	if key == nil {
		return nil, fmt.Errorf("secp256k1: nil private key")
	}
	return &Secp256k1Signer{key: key}, nil
}

// NewSecp256k1SignerFromHex loads a 32-byte hex private key, 0x prefix optional.
func NewSecp256k1SignerFromHex(keyHex string) (*Secp256k1Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(keyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("secp256k1: load key: %w", err)
	}
	return NewSecp256k1Signer(key)
}

func (s *Secp256k1Signer) Algorithm() string { return "secp256k1-keccak256" }

func (s *Secp256k1Signer) PublicKey() string {
	return hex.EncodeToString(crypto.CompressPubkey(&s.key.PublicKey))
}

// Address returns the checksummed Ethereum address of the key.
func (s *Secp256k1Signer) Address() string {
	return crypto.PubkeyToAddress(s.key.PublicKey).Hex()
}

func (s *Secp256k1Signer) Sign(data []byte) (string, error) {
	sig, err := crypto.Sign(crypto.Keccak256(data), s.key)
	if err != nil {
		return "", fmt.Errorf("secp256k1: sign: %w", err)
	}
	return hex.EncodeToString(sig), nil
}

func (s *Secp256k1Signer) Verify(data []byte, signature, publicKey string) (bool, error) {
	pub, err := hex.DecodeString(publicKey)
	if err != nil {
		return false, fmt.Errorf("secp256k1: decode public key: %w", err)
	}
	sig, err := hex.DecodeString(signature)
	if err != nil || len(sig) != crypto.SignatureLength {
		return false, nil
	}
	return crypto.VerifySignature(pub, crypto.Keccak256(data), sig[:crypto.RecoveryIDOffset]), nil
}

var (
	_ Signer = MockSigner{}
	_ Signer = (*Ed25519Signer)(nil)
	_ Signer = (*Secp256k1Signer)(nil)
)
