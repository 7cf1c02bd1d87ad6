// Package chain holds the blockchain-facing seams of the coordinator:
// signature verification over frozen transaction bytes and submission of a
// fully signed transaction. The coordinator never talks to a node directly;
// deployments plug in a relay executor or run the simulated network.
package chain

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrBadPublicKey = errors.New("public key is not a recognized encoding")
	ErrBadSignature = errors.New("signature does not verify")
)

// Verifier checks a signature over the exact frozen transaction bytes.
type Verifier interface {
	Verify(publicKey string, message, signature []byte) error
}

// KeyKind is the curve family a public key belongs to.
type KeyKind string

const (
	KeyEd25519   KeyKind = "ed25519"
	KeySecp256k1 KeyKind = "secp256k1"
)

// ed25519DERPrefix is the SubjectPublicKeyInfo header some wallets prepend
// to raw ed25519 keys.
const ed25519DERPrefix = "302a300506032b6570032100"

// Key is a decoded public key.
type Key struct {
	Kind  KeyKind
	Bytes []byte
}

// NormalizeKey canonicalizes a hex public key for map keying and equality:
// trimmed, lowercased, 0x prefix dropped.
func NormalizeKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "0x")
	return s
}

// DecodeKey parses a hex-encoded public key. Key lengths decide the curve:
// 32 bytes (optionally DER-wrapped) is ed25519; 33 or 65 bytes is secp256k1
// in compressed or uncompressed form.
func DecodeKey(publicKey string) (*Key, error) {
	norm := NormalizeKey(publicKey)
	if strings.HasPrefix(norm, ed25519DERPrefix) && len(norm) == len(ed25519DERPrefix)+2*ed25519.PublicKeySize {
		norm = norm[len(ed25519DERPrefix):]
	}
	raw, err := hex.DecodeString(norm)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPublicKey, err)
	}

	switch len(raw) {
	case ed25519.PublicKeySize:
		return &Key{Kind: KeyEd25519, Bytes: raw}, nil
	case 33:
		if raw[0] != 0x02 && raw[0] != 0x03 {
			return nil, fmt.Errorf("%w: compressed secp256k1 key has tag 0x%02x", ErrBadPublicKey, raw[0])
		}
		return &Key{Kind: KeySecp256k1, Bytes: raw}, nil
	case 65:
		if raw[0] != 0x04 {
			return nil, fmt.Errorf("%w: uncompressed secp256k1 key has tag 0x%02x", ErrBadPublicKey, raw[0])
		}
		return &Key{Kind: KeySecp256k1, Bytes: raw}, nil
	default:
		return nil, fmt.Errorf("%w: %d bytes", ErrBadPublicKey, len(raw))
	}
}

// KeyVerifier verifies signatures for both curve families used by wallets:
// ed25519 signs the raw frozen bytes, secp256k1 signs their Keccak-256
// digest.
type KeyVerifier struct{}

// Verify implements Verifier.
func (KeyVerifier) Verify(publicKey string, message, signature []byte) error {
	key, err := DecodeKey(publicKey)
	if err != nil {
		return err
	}

	switch key.Kind {
	case KeyEd25519:
		if len(signature) != ed25519.SignatureSize {
			return fmt.Errorf("%w: ed25519 signature is %d bytes, want %d",
				ErrBadSignature, len(signature), ed25519.SignatureSize)
		}
		if !ed25519.Verify(ed25519.PublicKey(key.Bytes), message, signature) {
			return ErrBadSignature
		}
		return nil

	case KeySecp256k1:
		// Recovery byte, if present, is dropped: VerifySignature wants R||S.
		if len(signature) == crypto.SignatureLength {
			signature = signature[:crypto.SignatureLength-1]
		}
		if len(signature) != crypto.SignatureLength-1 {
			return fmt.Errorf("%w: secp256k1 signature is %d bytes, want %d",
				ErrBadSignature, len(signature), crypto.SignatureLength-1)
		}
		digest := crypto.Keccak256(message)
		if !crypto.VerifySignature(key.Bytes, digest, signature) {
			return ErrBadSignature
		}
		return nil
	}

	return ErrBadPublicKey
}
