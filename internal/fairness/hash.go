package fairness

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/fystack/plinko-engine/pkg/common/enum"
	"golang.org/x/crypto/sha3"
)

// Hasher is the one-way function linking consecutive chain entries.
type Hasher func(string) string

func SHA256(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func SHA3256(s string) string {
	sum := sha3.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func HasherFor(alg enum.HashAlgorithm) (Hasher, error) {
	switch alg {
	case enum.HashSHA256, "":
		return SHA256, nil
	case enum.HashSHA3256:
		return SHA3256, nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm %q", alg)
	}
}

// GenesisHash is the first chain link for the root seed.
func GenesisHash(h Hasher, seed string) string {
	return h(seed)
}

func NextHash(h Hasher, previous string) string {
	return h(previous)
}

// SaltedCommitment is the public value published for a chain link. The game
// name is part of the message so the same link never commits to two games.
func SaltedCommitment(game enum.Game, hash, salt string) string {
	return hex.EncodeToString(hmacSHA256(hash, string(game)+":"+salt))
}

// RoundSeed derives the secret seed of a round from the game's server seed.
func RoundSeed(serverSeed, roundID string) string {
	return hex.EncodeToString(hmacSHA256(serverSeed, roundID))
}

// RoundHash is the public commitment to a round seed.
func RoundHash(seed string) string {
	return SHA256(seed)
}

// VerifyLink reports whether next follows previous under h.
func VerifyLink(h Hasher, previous, next string) bool {
	return h(previous) == next
}
