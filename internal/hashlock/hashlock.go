// Package hashlock generates swap secrets and derives the hash-lock commitments
// an order places with the settlement service. Every call draws fresh secrets
// from the system CSPRNG; secrets are never reused across orders.
package hashlock

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// SecretSize is the byte length of every generated swap secret.
const SecretSize = 32

// leafDomain separates multi-fill tree leaves from plain secret hashes so a
// revealed secret cannot be replayed as an aggregate commitment.
var leafDomain = []byte("xchain-hashlock-leaf-v1")

// Result bundles the secrets, their hashes and the aggregate commitment for one
// order. Secrets and SecretHashes are parallel, index-addressable sequences.
type Result struct {
	Secrets      []string
	SecretHashes []string
	HashLock     string
}

// GenerateSecretsAndHashLock produces secretsCount independent random secrets,
// their keccak256 hashes, and the hash-lock commitment: the single secret hash
// for a one-fill order, or a Merkle-style aggregate over domain-separated
// (fillIndex, secretHash) leaves for multi-fill orders.
func GenerateSecretsAndHashLock(secretsCount int) (*Result, error) {
	if secretsCount < 1 {
		return nil, fmt.Errorf("secretsCount must be positive, got %d", secretsCount)
	}

	secrets := make([]string, secretsCount)
	secretHashes := make([]string, secretsCount)
	seen := make(map[string]struct{}, secretsCount)

	for i := 0; i < secretsCount; i++ {
		buf := make([]byte, SecretSize)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("failed to draw random secret: %w", err)
		}

		secret := "0x" + hex.EncodeToString(buf)
		if _, dup := seen[secret]; dup {
			// 32 bytes of CSPRNG output colliding means the random source is broken
			return nil, fmt.Errorf("duplicate secret generated, refusing to continue")
		}
		seen[secret] = struct{}{}

		secrets[i] = secret
		secretHashes[i] = crypto.Keccak256Hash(buf).Hex()
	}

	hashLock, err := Commitment(secretHashes)
	if err != nil {
		return nil, err
	}

	return &Result{
		Secrets:      secrets,
		SecretHashes: secretHashes,
		HashLock:     hashLock,
	}, nil
}

// HashSecret returns the keccak256 commitment of a hex-encoded 32-byte secret.
func HashSecret(secret string) (string, error) {
	raw, err := DecodeHex32(secret)
	if err != nil {
		return "", fmt.Errorf("invalid secret: %w", err)
	}
	return crypto.Keccak256Hash(raw[:]).Hex(), nil
}

// Commitment derives the hash-lock commitment for an ordered sequence of secret
// hashes: the hash itself for a single fill, the Merkle aggregate otherwise.
func Commitment(secretHashes []string) (string, error) {
	if len(secretHashes) == 0 {
		return "", fmt.Errorf("no secret hashes to commit to")
	}
	if len(secretHashes) == 1 {
		if _, err := DecodeHex32(secretHashes[0]); err != nil {
			return "", fmt.Errorf("invalid secret hash: %w", err)
		}
		return secretHashes[0], nil
	}

	leaves := make([]ethcommon.Hash, len(secretHashes))
	for i, h := range secretHashes {
		raw, err := DecodeHex32(h)
		if err != nil {
			return "", fmt.Errorf("invalid secret hash at index %d: %w", i, err)
		}

		var index [8]byte
		binary.BigEndian.PutUint64(index[:], uint64(i))
		leaves[i] = crypto.Keccak256Hash(leafDomain, index[:], raw[:])
	}

	return merkleRoot(leaves).Hex(), nil
}

// merkleRoot folds the leaves pairwise with keccak256 until one hash remains.
// An odd node at any level is promoted unchanged.
func merkleRoot(leaves []ethcommon.Hash) ethcommon.Hash {
	level := leaves
	for len(level) > 1 {
		next := make([]ethcommon.Hash, 0, (len(level)+1)/2)
		for i := 0; i+1 < len(level); i += 2 {
			next = append(next, crypto.Keccak256Hash(level[i].Bytes(), level[i+1].Bytes()))
		}
		if len(level)%2 == 1 {
			next = append(next, level[len(level)-1])
		}
		level = next
	}
	return level[0]
}

// DecodeHex32 parses a hex string, with or without 0x prefix, into exactly 32 bytes.
func DecodeHex32(s string) ([32]byte, error) {
	var out [32]byte
	s = strings.TrimPrefix(s, "0x")
	if len(s)%2 != 0 {
		return out, fmt.Errorf("hex must have even length")
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, err
	}
	if len(b) != 32 {
		return out, fmt.Errorf("expected 32 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}
